package optimistic

import (
	"context"
	"maps"
	"slices"

	logs "github.com/danmuck/smplog"
)

// Set tracks a set of comparable values.
type Set[T comparable] struct {
	*Tracker[map[T]struct{}]
}

func NewSet[T comparable](initial []T, opts Options) *Set[T] {
	values := make(map[T]struct{}, len(initial))
	for _, v := range initial {
		values[v] = struct{}{}
	}
	return &Set[T]{Tracker: NewTracker(values, opts)}
}

func (s *Set[T]) Has(value T) bool {
	_, ok := s.Snapshot()[value]
	return ok
}

func (s *Set[T]) Len() int {
	return len(s.Snapshot())
}

// Values returns the members in no particular order.
func (s *Set[T]) Values() []T {
	return slices.Collect(maps.Keys(s.Snapshot()))
}

func (s *Set[T]) Add(ctx context.Context, value T, commit CommitFunc) {
	s.Execute(ctx, func(current map[T]struct{}) map[T]struct{} {
		next := cloneMap(current)
		next[value] = struct{}{}
		return next
	}, commit)
}

// Remove deletes value. A value absent from the published set is logged and
// ignored; commit is not called.
func (s *Set[T]) Remove(ctx context.Context, value T, commit CommitFunc) {
	if !s.Has(value) {
		logs.Warnf("Value not found in set: %v", value)
		return
	}
	s.Execute(ctx, func(current map[T]struct{}) map[T]struct{} {
		next := cloneMap(current)
		delete(next, value)
		return next
	}, commit)
}

func (s *Set[T]) Clear(ctx context.Context, commit CommitFunc) {
	s.Execute(ctx, func(map[T]struct{}) map[T]struct{} {
		return make(map[T]struct{})
	}, commit)
}
