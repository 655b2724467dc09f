package optimistic

import (
	"context"
	"slices"

	logs "github.com/danmuck/smplog"
)

// KeyFunc returns the identity of a list item as a string.
type KeyFunc[T any] func(item T) string

// List tracks an ordered sequence of items identified by a key function.
type List[T any] struct {
	*Tracker[[]T]
	key KeyFunc[T]
}

// NewList copies initial and tracks the copy. Use FieldKey to identify items
// by a named field.
func NewList[T any](initial []T, key KeyFunc[T], opts Options) *List[T] {
	return &List[T]{
		Tracker: NewTracker(slices.Clone(initial), opts),
		key:     key,
	}
}

// Items is the published sequence. Callers must not modify it.
func (l *List[T]) Items() []T {
	return l.Snapshot()
}

// Append adds item to the end of the list.
func (l *List[T]) Append(ctx context.Context, item T, commit CommitFunc) {
	l.Execute(ctx, func(current []T) []T {
		return append(slices.Clip(current), item)
	}, commit)
}

// Remove drops every item whose key equals id. An id that is not in the
// published list is logged and ignored; commit is not called.
func (l *List[T]) Remove(ctx context.Context, id string, commit CommitFunc) {
	if !l.contains(id) {
		logs.Warnf("Item with id %q not found", id)
		return
	}
	l.Execute(ctx, func(current []T) []T {
		return slices.DeleteFunc(slices.Clone(current), func(item T) bool {
			return l.key(item) == id
		})
	}, commit)
}

// Patch replaces the matching item with update(item). See MergeFields for
// patching by partial fields. Unknown ids are logged and ignored.
func (l *List[T]) Patch(ctx context.Context, id string, update func(T) T, commit CommitFunc) {
	if !l.contains(id) {
		logs.Warnf("Item with id %q not found", id)
		return
	}
	l.Execute(ctx, func(current []T) []T {
		next := make([]T, len(current))
		for i, item := range current {
			if l.key(item) == id {
				item = update(item)
			}
			next[i] = item
		}
		return next
	}, commit)
}

// contains checks the currently published list, not the one a concurrent
// Execute may be about to capture.
func (l *List[T]) contains(id string) bool {
	return slices.ContainsFunc(l.Snapshot(), func(item T) bool {
		return l.key(item) == id
	})
}
