package todos

import (
	"context"
	"slices"
	"sync"
	"time"

	logs "github.com/danmuck/smplog"
)

var _ Service = (*Store)(nil)

// Store is the server side of the mock todo API: an in-memory collection
// that answers after a fixed latency and fails writes on request.
type Store struct {
	mu           sync.Mutex
	todos        []Todo
	listLatency  time.Duration
	writeLatency time.Duration
}

func NewStore(cfg Config) *Store {
	return &Store{
		todos:        slices.Clone(cfg.Seed),
		listLatency:  cfg.ListLatency(),
		writeLatency: cfg.WriteLatency(),
	}
}

// List returns a copy of the collection. It never fails except on ctx.
func (s *Store) List(ctx context.Context) ([]Todo, error) {
	if err := sleep(ctx, s.listLatency); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.todos), nil
}

func (s *Store) Create(ctx context.Context, todo Todo, simulateFailure bool) (Todo, error) {
	if err := s.writeDelay(ctx, simulateFailure); err != nil {
		return Todo{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.todos = append(s.todos, todo)
	logs.Debugf("Create(%s): %d todo(s)", todo.ID, len(s.todos))
	return todo, nil
}

// Delete removes id. Deleting an id that is not stored succeeds.
func (s *Store) Delete(ctx context.Context, id string, simulateFailure bool) error {
	if err := s.writeDelay(ctx, simulateFailure); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.todos = slices.DeleteFunc(s.todos, func(t Todo) bool { return t.ID == id })
	logs.Debugf("Delete(%s): %d todo(s)", id, len(s.todos))
	return nil
}

func (s *Store) Patch(ctx context.Context, id string, updates Updates, simulateFailure bool) (Todo, error) {
	if err := s.writeDelay(ctx, simulateFailure); err != nil {
		return Todo{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := slices.IndexFunc(s.todos, func(t Todo) bool { return t.ID == id })
	if idx == -1 {
		return Todo{}, ErrNotFound
	}
	s.todos[idx] = updates.Apply(s.todos[idx])
	logs.Debugf("Patch(%s): %+v", id, s.todos[idx])
	return s.todos[idx], nil
}

func (s *Store) writeDelay(ctx context.Context, simulateFailure bool) error {
	if err := sleep(ctx, s.writeLatency); err != nil {
		return err
	}
	if simulateFailure {
		return ErrSimulated
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
