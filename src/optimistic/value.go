package optimistic

import "context"

// Value tracks a single value.
type Value[T any] struct {
	*Tracker[T]
}

func NewValue[T any](initial T, opts Options) *Value[T] {
	return &Value[T]{Tracker: NewTracker(initial, opts)}
}

func (v *Value[T]) Get() T {
	return v.Snapshot()
}

// Update replaces the value with next.
func (v *Value[T]) Update(ctx context.Context, next T, commit CommitFunc) {
	v.Execute(ctx, func(T) T { return next }, commit)
}

// UpdateFunc replaces the value with fn applied to the value current at
// apply time.
func (v *Value[T]) UpdateFunc(ctx context.Context, fn func(T) T, commit CommitFunc) {
	v.Execute(ctx, fn, commit)
}
