package main

import (
	"context"
	"fmt"
	"slices"
	"sync/atomic"
	"time"

	"github.com/danmuck/optimistic/src/optimistic"
	"github.com/danmuck/optimistic/src/todos"
	logs "github.com/danmuck/smplog"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// script drives an optimistic todo list the way a busy UI would: bursts of
// appends, toggles and removals whose commits race each other.
type script struct {
	list    *optimistic.List[todos.Todo]
	svc     todos.Service
	cfg     RuntimeConfig
	commits atomic.Int64
}

func newScript(list *optimistic.List[todos.Todo], svc todos.Service, cfg RuntimeConfig) *script {
	return &script{list: list, svc: svc, cfg: cfg}
}

// shouldFail picks every FailEvery-th commit for a simulated server failure.
func (s *script) shouldFail() bool {
	n := s.commits.Add(1)
	return s.cfg.FailEvery > 0 && n%int64(s.cfg.FailEvery) == 0
}

func (s *script) commit(fn func(ctx context.Context, fail bool) error) optimistic.CommitFunc {
	fail := s.shouldFail()
	return func(ctx context.Context) error {
		if s.cfg.TimeoutSec > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, time.Duration(s.cfg.TimeoutSec)*time.Second)
			defer cancel()
		}
		return fn(ctx, fail)
	}
}

func (s *script) add(ctx context.Context, text string) {
	todo := todos.Todo{ID: uuid.NewString(), Text: text}
	logs.Infof("add %q (%s)", todo.Text, todo.ID)
	s.list.Append(ctx, todo, s.commit(func(ctx context.Context, fail bool) error {
		_, err := s.svc.Create(ctx, todo, fail)
		return err
	}))
}

func (s *script) toggle(ctx context.Context, target todos.Todo) {
	completed := !target.Completed
	logs.Infof("toggle %q -> completed=%t", target.Text, completed)
	s.list.Patch(ctx, target.ID, func(t todos.Todo) todos.Todo {
		t.Completed = completed
		return t
	}, s.commit(func(ctx context.Context, fail bool) error {
		_, err := s.svc.Patch(ctx, target.ID, todos.Updates{Completed: &completed}, fail)
		return err
	}))
}

func (s *script) remove(ctx context.Context, target todos.Todo) {
	logs.Infof("remove %q", target.Text)
	s.list.Remove(ctx, target.ID, s.commit(func(ctx context.Context, fail bool) error {
		return s.svc.Delete(ctx, target.ID, fail)
	}))
}

// round fires one burst and waits for every commit in it to settle.
func (s *script) round(ctx context.Context, n int) error {
	items := s.list.Items()
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)

	g.Go(func() error {
		s.add(ctx, fmt.Sprintf("round %d task", n))
		return nil
	})
	if len(items) > 0 {
		first := items[0]
		g.Go(func() error {
			s.toggle(ctx, first)
			return nil
		})
	}
	if len(items) > 1 {
		last := items[len(items)-1]
		g.Go(func() error {
			s.remove(ctx, last)
			return nil
		})
	}
	return g.Wait()
}

// run plays every round, then reconciles the local list with the server's.
// It reports whether the two agreed before the reset.
func (s *script) run(ctx context.Context) (bool, error) {
	for n := 1; n <= s.cfg.Rounds; n++ {
		if err := s.round(ctx, n); err != nil {
			return false, err
		}
		st := s.list.State()
		logs.Infof("round %d settled: status=%s todos=%d", n, st.Status, len(st.Value))
	}

	remote, err := s.svc.List(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to fetch server list: %w", err)
	}
	agreed := slices.Equal(s.list.Items(), remote)
	if !agreed {
		logs.Warnf("local list diverged from server (%d local, %d remote), resetting", len(s.list.Items()), len(remote))
		s.list.Reset(remote)
	}
	return agreed, nil
}
