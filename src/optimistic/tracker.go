package optimistic

import (
	"context"
	"sync"

	logs "github.com/danmuck/smplog"
)

// CommitFunc is the authoritative side effect an optimistic update stands in
// for. The ctx it receives is cancelled when the owning tracker is disposed.
// Returning an error, or panicking, rolls the update back.
type CommitFunc func(ctx context.Context) error

// Options carries the optional completion callbacks. They fire only when the
// pending registry drains, never once per mutation, and are invoked with no
// tracker lock held.
type Options struct {
	OnSuccess func()
	OnError   func(err error)
}

// mutation is the bookkeeping for one in-flight commit: the snapshot to
// restore on failure and the token that silences it after Dispose.
type mutation[S any] struct {
	id        uint64
	previous  S
	cancel    context.CancelFunc
	cancelled bool
}

type subscriber[S any] struct {
	id uint64
	fn func(State[S])
}

// Tracker owns one optimistic snapshot of type S, the registry of mutations
// still waiting on their commit, and the aggregate status/error pair.
//
// Snapshots handed out by the tracker are shared with its rollback records
// and must be treated as read-only; every change goes through Execute.
type Tracker[S any] struct {
	mu       sync.Mutex
	value    S
	status   Status
	err      error
	version  uint64
	nextID   uint64
	pending  map[uint64]*mutation[S]
	disposed bool
	opts     Options

	// emitMu serialises delivery so subscribers never see versions go backwards.
	emitMu  sync.Mutex
	subMu   sync.Mutex
	subs    []subscriber[S]
	nextSub uint64
	emitted uint64
}

// NewTracker returns an idle tracker publishing initial.
func NewTracker[S any](initial S, opts Options) *Tracker[S] {
	return &Tracker[S]{
		value:   initial,
		status:  StatusIdle,
		pending: make(map[uint64]*mutation[S]),
		opts:    opts,
	}
}

// Execute applies transform to the current snapshot immediately, then runs
// commit and waits for it. On failure the snapshot captured just before this
// mutation's apply is restored. Execute returns normally in both cases;
// outcomes are reported through Status, Err and the Options callbacks.
//
// transform must be pure and must return a value that shares no mutable
// state with its argument. Concurrent callers each run Execute on their own
// goroutine; apply steps never interleave.
func (t *Tracker[S]) Execute(ctx context.Context, transform func(S) S, commit CommitFunc) {
	m, mctx, st, ok := t.begin(ctx, transform)
	if !ok {
		logs.Debugf("Execute(): tracker disposed, mutation dropped")
		return
	}
	t.emit(st)
	logs.Debugf("Execute(%s): applied, committing", mutationName(m.id))

	t.resolve(m, runCommit(mctx, commit))
}

// begin is the synchronous apply step: snapshot, transform, register, publish.
func (t *Tracker[S]) begin(ctx context.Context, transform func(S) S) (*mutation[S], context.Context, State[S], bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.disposed {
		return nil, nil, State[S]{}, false
	}

	previous := t.value
	next := transform(previous)

	mctx, cancel := context.WithCancel(ctx)
	t.nextID++
	m := &mutation[S]{
		id:       t.nextID,
		previous: previous,
		cancel:   cancel,
	}
	t.pending[m.id] = m

	t.value = next
	t.status = StatusPending
	t.err = nil
	return m, mctx, t.publishLocked(), true
}

func runCommit(ctx context.Context, commit CommitFunc) (err error) {
	if commit == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = normalizeFailure(0, r)
		}
	}()
	return commit(ctx)
}

// resolve folds one commit outcome back into the tracker.
func (t *Tracker[S]) resolve(m *mutation[S], commitErr error) {
	t.mu.Lock()
	if m.cancelled {
		t.mu.Unlock()
		logs.Debugf("resolve(%s): settled after dispose, ignored", mutationName(m.id))
		return
	}
	m.cancel()
	delete(t.pending, m.id)

	var failure *MutationError
	if commitErr != nil {
		failure = normalizeFailure(m.id, commitErr)
		t.value = m.previous
	}

	drained := len(t.pending) == 0
	if drained {
		if failure != nil {
			t.status = StatusError
			t.err = failure
		} else {
			t.status = StatusSuccess
		}
	}

	var st State[S]
	changed := failure != nil || drained
	if changed {
		st = t.publishLocked()
	}
	onSuccess, onError := t.opts.OnSuccess, t.opts.OnError
	t.mu.Unlock()

	if failure != nil {
		logs.Debugf("resolve(%s): commit failed, rolled back: %v", mutationName(m.id), failure)
	} else {
		logs.Debugf("resolve(%s): committed", mutationName(m.id))
	}
	if changed {
		t.emit(st)
	}
	if !drained {
		return
	}
	if failure != nil {
		if onError != nil {
			onError(failure)
		}
		return
	}
	if onSuccess != nil {
		onSuccess()
	}
}

// Dispose signals every pending mutation's token and clears the registry.
// The published snapshot is left as is, later settlements are ignored and
// subscribers are dropped. Execute and Reset become no-ops.
func (t *Tracker[S]) Dispose() {
	t.mu.Lock()
	if t.disposed {
		t.mu.Unlock()
		return
	}
	t.disposed = true
	n := len(t.pending)
	for id, m := range t.pending {
		m.cancelled = true
		m.cancel()
		delete(t.pending, id)
	}
	t.mu.Unlock()

	t.subMu.Lock()
	t.subs = nil
	t.subMu.Unlock()
	logs.Debugf("Dispose(): cancelled %d pending mutation(s)", n)
}

// Reset replaces the published snapshot without going through a commit, the
// way a host re-seeds local state when its source of truth reloads. Pending
// mutations keep their own rollback snapshots.
func (t *Tracker[S]) Reset(value S) {
	t.mu.Lock()
	if t.disposed {
		t.mu.Unlock()
		return
	}
	t.value = value
	st := t.publishLocked()
	t.mu.Unlock()
	t.emit(st)
}

// Subscribe registers fn to receive every state published from now on. fn
// runs on the goroutine that caused the publication and must not call back
// into Execute, Reset or Subscribe synchronously.
func (t *Tracker[S]) Subscribe(fn func(State[S])) (unsubscribe func()) {
	t.subMu.Lock()
	defer t.subMu.Unlock()
	t.nextSub++
	id := t.nextSub
	t.subs = append(t.subs, subscriber[S]{id: id, fn: fn})

	return func() {
		t.subMu.Lock()
		defer t.subMu.Unlock()
		for i, s := range t.subs {
			if s.id == id {
				t.subs = append(t.subs[:i:i], t.subs[i+1:]...)
				return
			}
		}
	}
}

func (t *Tracker[S]) Snapshot() S {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.value
}

func (t *Tracker[S]) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Err is the most recent failure that drained the registry, or nil.
func (t *Tracker[S]) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

func (t *Tracker[S]) State() State[S] {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stateLocked()
}

// Pending reports how many mutations are waiting on their commit.
func (t *Tracker[S]) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

func (t *Tracker[S]) stateLocked() State[S] {
	return State[S]{
		Value:   t.value,
		Status:  t.status,
		Err:     t.err,
		Version: t.version,
	}
}

func (t *Tracker[S]) publishLocked() State[S] {
	t.version++
	return t.stateLocked()
}

func (t *Tracker[S]) emit(st State[S]) {
	t.emitMu.Lock()
	defer t.emitMu.Unlock()
	if st.Version <= t.emitted {
		return
	}
	t.emitted = st.Version

	t.subMu.Lock()
	subs := t.subs
	t.subMu.Unlock()
	for _, s := range subs {
		s.fn(st)
	}
}
