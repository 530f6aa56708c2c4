// Package cache provides small read-through caches for expensive
// database summaries. Callers invalidate explicitly at mutation points;
// the TTL is only a backstop against missed invalidations.
package cache

import (
	"context"
	"sync"
	"time"
)

// DefaultTTL is the backstop expiry for cached values.
const DefaultTTL = 5 * time.Minute

// Value caches a single loaded value.
type Value[T any] struct {
	mu       sync.RWMutex
	value    T
	loadedAt time.Time
	loaded   bool
	ttl      time.Duration
}

// NewValue creates a value cache. A non-positive ttl uses DefaultTTL.
func NewValue[T any](ttl time.Duration) *Value[T] {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Value[T]{ttl: ttl}
}

// Get returns the cached value, loading it when absent or expired.
// A load failure is returned without caching.
func (v *Value[T]) Get(ctx context.Context, load func(ctx context.Context) (T, error)) (T, error) {
	v.mu.RLock()
	if v.loaded && time.Since(v.loadedAt) < v.ttl {
		value := v.value
		v.mu.RUnlock()
		return value, nil
	}
	v.mu.RUnlock()

	value, err := load(ctx)
	if err != nil {
		return value, err
	}

	v.mu.Lock()
	v.value = value
	v.loadedAt = time.Now()
	v.loaded = true
	v.mu.Unlock()

	return value, nil
}

// Invalidate discards the cached value.
func (v *Value[T]) Invalidate() {
	v.mu.Lock()
	v.loaded = false
	var zero T
	v.value = zero
	v.mu.Unlock()
}

type mapEntry[V any] struct {
	value    V
	loadedAt time.Time
}

// Map caches values per string key.
type Map[V any] struct {
	mu      sync.RWMutex
	entries map[string]mapEntry[V]
	ttl     time.Duration
}

// NewMap creates a keyed cache. A non-positive ttl uses DefaultTTL.
func NewMap[V any](ttl time.Duration) *Map[V] {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Map[V]{
		entries: make(map[string]mapEntry[V]),
		ttl:     ttl,
	}
}

// Get returns the cached value for key, loading it when absent or
// expired.
func (m *Map[V]) Get(ctx context.Context, key string, load func(ctx context.Context) (V, error)) (V, error) {
	m.mu.RLock()
	entry, ok := m.entries[key]
	m.mu.RUnlock()
	if ok && time.Since(entry.loadedAt) < m.ttl {
		return entry.value, nil
	}

	value, err := load(ctx)
	if err != nil {
		return value, err
	}

	m.mu.Lock()
	m.entries[key] = mapEntry[V]{value: value, loadedAt: time.Now()}
	m.mu.Unlock()

	return value, nil
}

// Invalidate discards the given keys, or every entry when called with
// none.
func (m *Map[V]) Invalidate(keys ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(keys) == 0 {
		m.entries = make(map[string]mapEntry[V])
		return
	}
	for _, key := range keys {
		delete(m.entries, key)
	}
}
