package optimistic

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gate is a commit the test resolves by hand.
type gate struct {
	started chan struct{}
	release chan error
	calls   int
	mu      sync.Mutex
}

func newGate() *gate {
	return &gate{
		started: make(chan struct{}),
		release: make(chan error, 1),
	}
}

// commit ignores ctx so a test can settle it after Dispose.
func (g *gate) commit(context.Context) error {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()
	close(g.started)
	return <-g.release
}

func (g *gate) called() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

// launch runs Execute on its own goroutine and waits until the apply step
// has happened. The returned channel closes when Execute returns.
func launch[S any](t *testing.T, tr *Tracker[S], transform func(S) S, g *gate) <-chan struct{} {
	t.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		tr.Execute(context.Background(), transform, g.commit)
	}()
	select {
	case <-g.started:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for commit to start")
	}
	return done
}

func wait(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for Execute to return")
	}
}

func appendInt(v int) func([]int) []int {
	return func(cur []int) []int { return append(slices.Clip(cur), v) }
}

func succeed(context.Context) error { return nil }

func fail(msg string) CommitFunc {
	return func(context.Context) error { return errors.New(msg) }
}

func TestTrackerStartsIdle(t *testing.T) {
	tr := NewTracker([]int{1}, Options{})
	st := tr.State()
	assert.Equal(t, StatusIdle, st.Status)
	assert.NoError(t, st.Err)
	assert.Equal(t, []int{1}, st.Value)
	assert.Zero(t, tr.Pending())
}

func TestTrackerSuccessKeepsTransform(t *testing.T) {
	tr := NewTracker([]int{1}, Options{})
	tr.Execute(context.Background(), appendInt(2), succeed)

	assert.Equal(t, []int{1, 2}, tr.Snapshot())
	assert.Equal(t, StatusSuccess, tr.Status())
	assert.NoError(t, tr.Err())
	assert.Zero(t, tr.Pending())
}

func TestTrackerFailureRollsBack(t *testing.T) {
	tr := NewTracker([]int{1}, Options{})
	tr.Execute(context.Background(), appendInt(2), fail("boom"))

	assert.Equal(t, []int{1}, tr.Snapshot())
	assert.Equal(t, StatusError, tr.Status())
	require.Error(t, tr.Err())
	assert.Equal(t, "boom", tr.Err().Error())

	var me *MutationError
	require.ErrorAs(t, tr.Err(), &me)
	assert.Equal(t, uint64(1), me.ID)
}

func TestTrackerAppliesBeforeCommit(t *testing.T) {
	tr := NewTracker([]int{}, Options{})
	g := newGate()
	done := launch(t, tr, appendInt(7), g)

	st := tr.State()
	assert.Equal(t, []int{7}, st.Value)
	assert.Equal(t, StatusPending, st.Status)
	assert.Equal(t, 1, tr.Pending())

	g.release <- nil
	wait(t, done)
	assert.Equal(t, StatusSuccess, tr.Status())
}

func TestTrackerNewMutationClearsError(t *testing.T) {
	tr := NewTracker(0, Options{})
	tr.Execute(context.Background(), func(int) int { return 1 }, fail("first"))
	require.Error(t, tr.Err())

	g := newGate()
	done := launch(t, tr, func(int) int { return 2 }, g)
	assert.NoError(t, tr.Err())
	assert.Equal(t, StatusPending, tr.Status())

	g.release <- nil
	wait(t, done)
	assert.Equal(t, 2, tr.Snapshot())
}

func TestTrackerStatusAggregation(t *testing.T) {
	tests := []struct {
		name       string
		firstErr   error // resolved first
		secondErr  error // resolved last, drains the registry
		wantStatus Status
		wantErr    string
	}{
		{name: "both succeed", wantStatus: StatusSuccess},
		{name: "last one fails", secondErr: errors.New("late"), wantStatus: StatusError, wantErr: "late"},
		{name: "first fails last succeeds", firstErr: errors.New("early"), wantStatus: StatusSuccess},
		{name: "both fail", firstErr: errors.New("early"), secondErr: errors.New("late"), wantStatus: StatusError, wantErr: "late"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := NewTracker(0, Options{})
			a, b := newGate(), newGate()
			doneA := launch(t, tr, func(v int) int { return v + 1 }, a)
			doneB := launch(t, tr, func(v int) int { return v + 10 }, b)

			a.release <- tt.firstErr
			wait(t, doneA)
			assert.Equal(t, StatusPending, tr.Status(), "registry still holds the second mutation")
			assert.NoError(t, tr.Err(), "error is only published when the registry drains")

			b.release <- tt.secondErr
			wait(t, doneB)
			assert.Equal(t, tt.wantStatus, tr.Status())
			if tt.wantErr == "" {
				assert.NoError(t, tr.Err())
			} else {
				require.Error(t, tr.Err())
				assert.Equal(t, tt.wantErr, tr.Err().Error())
			}
			assert.Zero(t, tr.Pending())
		})
	}
}

func TestTrackerRollbackRestoresOwnSnapshot(t *testing.T) {
	// A applies first, B second; B fails after A succeeded.
	tr := NewTracker([]int{}, Options{})
	a, b := newGate(), newGate()
	doneA := launch(t, tr, appendInt(1), a)
	doneB := launch(t, tr, appendInt(2), b)
	assert.Equal(t, []int{1, 2}, tr.Snapshot())

	a.release <- nil
	wait(t, doneA)
	b.release <- errors.New("boom")
	wait(t, doneB)

	assert.Equal(t, []int{1}, tr.Snapshot())
	assert.Equal(t, StatusError, tr.Status())
}

func TestTrackerRollbackAfterLaterFailureFirst(t *testing.T) {
	tr := NewTracker([]int{}, Options{})
	a, b := newGate(), newGate()
	doneA := launch(t, tr, appendInt(1), a)
	doneB := launch(t, tr, appendInt(2), b)

	b.release <- errors.New("boom")
	wait(t, doneB)
	assert.Equal(t, []int{1}, tr.Snapshot())
	assert.Equal(t, StatusPending, tr.Status())
	assert.NoError(t, tr.Err())

	a.release <- nil
	wait(t, doneA)
	assert.Equal(t, []int{1}, tr.Snapshot())
	assert.Equal(t, StatusSuccess, tr.Status())
}

func TestTrackerEarlierFailureDiscardsLaterApply(t *testing.T) {
	// Rollback restores the snapshot captured at the failing mutation's apply,
	// which predates B even though B committed.
	tr := NewTracker([]int{}, Options{})
	a, b := newGate(), newGate()
	doneA := launch(t, tr, appendInt(1), a)
	doneB := launch(t, tr, appendInt(2), b)

	b.release <- nil
	wait(t, doneB)
	a.release <- errors.New("boom")
	wait(t, doneA)

	assert.Empty(t, tr.Snapshot())
	assert.Equal(t, StatusError, tr.Status())
}

func TestTrackerCallbacksFireOnDrain(t *testing.T) {
	var successes int
	var failures []error
	tr := NewTracker(0, Options{
		OnSuccess: func() { successes++ },
		OnError:   func(err error) { failures = append(failures, err) },
	})

	a, b := newGate(), newGate()
	doneA := launch(t, tr, func(v int) int { return v + 1 }, a)
	doneB := launch(t, tr, func(v int) int { return v + 1 }, b)
	a.release <- nil
	wait(t, doneA)
	assert.Zero(t, successes, "no callback while mutations are pending")
	b.release <- nil
	wait(t, doneB)
	assert.Equal(t, 1, successes)

	tr.Execute(context.Background(), func(v int) int { return v + 1 }, fail("boom"))
	require.Len(t, failures, 1)
	assert.EqualError(t, failures[0], "boom")
	assert.Equal(t, 1, successes)
}

func TestTrackerNormalizesPanics(t *testing.T) {
	tests := []struct {
		name    string
		commit  CommitFunc
		wantMsg string
		generic bool
	}{
		{
			name:    "panic with error keeps message",
			commit:  func(context.Context) error { panic(errors.New("kaput")) },
			wantMsg: "kaput",
		},
		{
			name:    "panic with string is generic",
			commit:  func(context.Context) error { panic("nope") },
			wantMsg: "Mutation failed",
			generic: true,
		},
		{
			name:    "returned error keeps message",
			commit:  fail("boom"),
			wantMsg: "boom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := NewTracker("a", Options{})
			tr.Execute(context.Background(), func(string) string { return "b" }, tt.commit)

			assert.Equal(t, "a", tr.Snapshot())
			assert.Equal(t, StatusError, tr.Status())
			require.Error(t, tr.Err())
			assert.Equal(t, tt.wantMsg, tr.Err().Error())
			assert.Equal(t, tt.generic, errors.Is(tr.Err(), ErrMutationFailed))
		})
	}
}

func TestTrackerNilCommitSucceeds(t *testing.T) {
	tr := NewTracker(1, Options{})
	tr.Execute(context.Background(), func(v int) int { return v * 2 }, nil)
	assert.Equal(t, 2, tr.Snapshot())
	assert.Equal(t, StatusSuccess, tr.Status())
}

func TestTrackerCallerContextCancelFailsCommit(t *testing.T) {
	tr := NewTracker(1, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tr.Execute(ctx, func(int) int { return 2 }, func(ctx context.Context) error {
		return ctx.Err()
	})
	assert.Equal(t, 1, tr.Snapshot())
	assert.Equal(t, StatusError, tr.Status())
	assert.ErrorIs(t, tr.Err(), context.Canceled)
}

func TestTrackerDisposeSilencesLateResolution(t *testing.T) {
	for _, settle := range []error{nil, errors.New("boom")} {
		var callbacks int
		tr := NewTracker([]int{1}, Options{
			OnSuccess: func() { callbacks++ },
			OnError:   func(error) { callbacks++ },
		})
		g := newGate()
		done := launch(t, tr, appendInt(2), g)

		tr.Dispose()
		before := tr.State()
		assert.Equal(t, []int{1, 2}, before.Value, "dispose keeps the optimistic value")
		assert.Equal(t, StatusPending, before.Status)
		assert.Zero(t, tr.Pending())

		g.release <- settle
		wait(t, done)

		assert.Equal(t, before, tr.State())
		assert.Zero(t, callbacks)
	}
}

func TestTrackerDisposeCancelsCommitContext(t *testing.T) {
	tr := NewTracker(0, Options{})
	started := make(chan struct{})
	done := make(chan struct{})
	var commitErr error
	go func() {
		defer close(done)
		tr.Execute(context.Background(), func(int) int { return 1 }, func(ctx context.Context) error {
			close(started)
			<-ctx.Done()
			commitErr = ctx.Err()
			return commitErr
		})
	}()
	<-started

	tr.Dispose()
	wait(t, done)
	assert.ErrorIs(t, commitErr, context.Canceled)
	assert.Equal(t, 1, tr.Snapshot())
	assert.Equal(t, StatusPending, tr.Status())
	assert.NoError(t, tr.Err())
}

func TestTrackerExecuteAfterDispose(t *testing.T) {
	tr := NewTracker(1, Options{})
	tr.Dispose()
	tr.Dispose()

	called := false
	tr.Execute(context.Background(), func(int) int { return 2 }, func(context.Context) error {
		called = true
		return nil
	})
	assert.False(t, called)
	assert.Equal(t, 1, tr.Snapshot())
	assert.Equal(t, StatusIdle, tr.Status())
}

func TestTrackerSubscribe(t *testing.T) {
	tr := NewTracker(0, Options{})
	var seen []State[int]
	unsubscribe := tr.Subscribe(func(st State[int]) { seen = append(seen, st) })

	tr.Execute(context.Background(), func(v int) int { return v + 1 }, succeed)
	tr.Execute(context.Background(), func(v int) int { return v + 1 }, fail("boom"))

	require.Len(t, seen, 4)
	assert.Equal(t, []Status{StatusPending, StatusSuccess, StatusPending, StatusError},
		[]Status{seen[0].Status, seen[1].Status, seen[2].Status, seen[3].Status})
	assert.Equal(t, 2, seen[2].Value)
	assert.Equal(t, 1, seen[3].Value)
	for i := 1; i < len(seen); i++ {
		assert.Greater(t, seen[i].Version, seen[i-1].Version)
	}

	unsubscribe()
	tr.Execute(context.Background(), func(v int) int { return v + 1 }, succeed)
	assert.Len(t, seen, 4)
}

func TestTrackerReset(t *testing.T) {
	tr := NewTracker([]int{1}, Options{})
	tr.Execute(context.Background(), appendInt(2), fail("boom"))

	tr.Reset([]int{9})
	st := tr.State()
	assert.Equal(t, []int{9}, st.Value)
	assert.Equal(t, StatusError, st.Status, "reset does not touch status")

	tr.Dispose()
	tr.Reset([]int{10})
	assert.Equal(t, []int{9}, tr.Snapshot())
}

func TestTrackerConcurrentExecute(t *testing.T) {
	tr := NewTracker(map[int]struct{}{}, Options{})
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var commit CommitFunc = succeed
			if i%5 == 0 {
				commit = fail("boom")
			}
			tr.Execute(context.Background(), func(cur map[int]struct{}) map[int]struct{} {
				next := cloneMap(cur)
				next[i] = struct{}{}
				return next
			}, commit)
		}()
	}
	wg.Wait()

	assert.Zero(t, tr.Pending())
	assert.Contains(t, []Status{StatusSuccess, StatusError}, tr.Status())
}
