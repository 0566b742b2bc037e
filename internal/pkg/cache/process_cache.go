// Package cache provides an owned, versioned in-process cache.
package cache

import (
	"context"
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"
)

type entry[V any] struct {
	version int64
	value   V
}

// ProcessCache maps keys to values that are valid for one version stamp
// (a file mtime, a dataset generation). A lookup with a different version
// is a miss and the loader runs again. The cache is bounded; the oldest
// inserted key is evicted first.
type ProcessCache[K comparable, V any] struct {
	mu      sync.Mutex
	entries map[K]entry[V]
	order   []K
	max     int
	group   singleflight.Group
	keyFn   func(K) string
}

// New creates a cache holding at most maxEntries keys (0 means unbounded).
// keyFn renders a key for load de-duplication.
func New[K comparable, V any](maxEntries int, keyFn func(K) string) *ProcessCache[K, V] {
	return &ProcessCache[K, V]{
		entries: make(map[K]entry[V]),
		max:     maxEntries,
		keyFn:   keyFn,
	}
}

// Get returns the value stored for key if it was stored under version.
func (c *ProcessCache[K, V]) Get(key K, version int64) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || e.version != version {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Put stores value for key under version, replacing any older version.
func (c *ProcessCache[K, V]) Put(key K, version int64, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[key]; !exists {
		c.order = append(c.order, key)
	}
	c.entries[key] = entry[V]{version: version, value: value}
	for c.max > 0 && len(c.order) > c.max {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
}

// GetOrLoad returns the cached value for (key, version) or runs load once,
// even under concurrent callers, and stores its result. Errors are not cached.
func (c *ProcessCache[K, V]) GetOrLoad(key K, version int64, load func() (V, error)) (V, bool, error) {
	return c.GetOrLoadContext(context.Background(), key, version, func(context.Context) (V, error) {
		return load()
	})
}

// GetOrLoadContext is GetOrLoad for loads shared between callers with
// different lifetimes. load runs without the caller's cancellation, so one
// caller giving up never fails the others waiting on the same load; that
// caller alone returns ctx.Err().
func (c *ProcessCache[K, V]) GetOrLoadContext(ctx context.Context, key K, version int64, load func(context.Context) (V, error)) (V, bool, error) {
	var zero V
	if v, ok := c.Get(key, version); ok {
		return v, true, nil
	}
	loadCtx := context.WithoutCancel(ctx)
	flightKey := c.keyFn(key) + "@" + strconv.FormatInt(version, 10)
	ch := c.group.DoChan(flightKey, func() (interface{}, error) {
		if v, ok := c.Get(key, version); ok {
			return v, nil
		}
		v, err := load(loadCtx)
		if err != nil {
			return nil, err
		}
		c.Put(key, version, v)
		return v, nil
	})
	select {
	case <-ctx.Done():
		return zero, false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, false, res.Err
		}
		return res.Val.(V), false, nil
	}
}

// Invalidate drops key regardless of version.
func (c *ProcessCache[K, V]) Invalidate(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; !ok {
		return
	}
	delete(c.entries, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

// Purge drops every entry.
func (c *ProcessCache[K, V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[K]entry[V])
	c.order = nil
}

// Len returns the number of stored keys.
func (c *ProcessCache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
