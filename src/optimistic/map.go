package optimistic

import (
	"context"
	"maps"

	logs "github.com/danmuck/smplog"
)

// Map tracks a key/value mapping. Every change produces a new map.
type Map[K comparable, V any] struct {
	*Tracker[map[K]V]
}

func NewMap[K comparable, V any](initial map[K]V, opts Options) *Map[K, V] {
	return &Map[K, V]{Tracker: NewTracker(cloneMap(initial), opts)}
}

// Entries is the published map. Callers must not modify it.
func (m *Map[K, V]) Entries() map[K]V {
	return m.Snapshot()
}

func (m *Map[K, V]) Get(key K) (V, bool) {
	v, ok := m.Snapshot()[key]
	return v, ok
}

func (m *Map[K, V]) Len() int {
	return len(m.Snapshot())
}

// Set inserts or overwrites key.
func (m *Map[K, V]) Set(ctx context.Context, key K, value V, commit CommitFunc) {
	m.Execute(ctx, func(current map[K]V) map[K]V {
		next := cloneMap(current)
		next[key] = value
		return next
	}, commit)
}

// Remove deletes key. A key absent from the published map is logged and
// ignored; commit is not called.
func (m *Map[K, V]) Remove(ctx context.Context, key K, commit CommitFunc) {
	if _, ok := m.Get(key); !ok {
		logs.Warnf("Key not found in map: %v", key)
		return
	}
	m.Execute(ctx, func(current map[K]V) map[K]V {
		next := cloneMap(current)
		delete(next, key)
		return next
	}, commit)
}

// Clear empties the map.
func (m *Map[K, V]) Clear(ctx context.Context, commit CommitFunc) {
	m.Execute(ctx, func(map[K]V) map[K]V {
		return make(map[K]V)
	}, commit)
}

func cloneMap[K comparable, V any](src map[K]V) map[K]V {
	if src == nil {
		return make(map[K]V)
	}
	return maps.Clone(src)
}
