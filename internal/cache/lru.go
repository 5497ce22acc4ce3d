// Package cache provides a count- and cost-bounded LRU used by the detail
// cache and the image cache memory tier. Each entry carries an explicit
// cost (bytes, or a weighted size estimate); the cache evicts least recently
// used entries until both the entry limit and the aggregate cost limit hold.
//
// All operations are guarded by a mutex and safe for concurrent use.
package cache

import (
	"container/list"
	"sync"
)

// Costed is a thread-safe LRU bounded by entry count and total cost.
type Costed[K comparable, V any] struct {
	mu         sync.Mutex
	maxEntries int
	maxCost    int64
	cost       int64
	ll         *list.List
	items      map[K]*list.Element
	onEvict    func(K, V)
}

type entry[K comparable, V any] struct {
	key   K
	value V
	cost  int64
}

// NewCosted returns a cache that holds at most maxEntries entries and
// maxCost aggregate cost, whichever binds first. A limit <= 0 means
// unbounded on that axis. onEvict, when non-nil, is called for every entry
// removed by eviction or Remove (not for in-place replacement).
func NewCosted[K comparable, V any](maxEntries int, maxCost int64, onEvict func(K, V)) *Costed[K, V] {
	return &Costed[K, V]{
		maxEntries: maxEntries,
		maxCost:    maxCost,
		ll:         list.New(),
		items:      make(map[K]*list.Element),
		onEvict:    onEvict,
	}
}

// Add inserts or replaces the entry for key and marks it most recently used,
// then evicts from the cold end until the limits hold. An entry whose own
// cost exceeds maxCost is still admitted; it will simply be the first evicted
// when anything else arrives.
func (c *Costed[K, V]) Add(key K, value V, cost int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		ent := el.Value.(*entry[K, V])
		c.cost += cost - ent.cost
		ent.value = value
		ent.cost = cost
		c.ll.MoveToFront(el)
	} else {
		el := c.ll.PushFront(&entry[K, V]{key: key, value: value, cost: cost})
		c.items[key] = el
		c.cost += cost
	}
	c.evictLocked()
}

// Get returns the value for key and marks it most recently used.
func (c *Costed[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		var zero V
		return zero, false
	}
	c.ll.MoveToFront(el)
	return el.Value.(*entry[K, V]).value, true
}

// Peek returns the value for key without touching recency.
func (c *Costed[K, V]) Peek(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		var zero V
		return zero, false
	}
	return el.Value.(*entry[K, V]).value, true
}

// Remove evicts the entry for key, if present, and reports whether it was.
func (c *Costed[K, V]) Remove(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return false
	}
	c.removeLocked(el)
	return true
}

// Purge evicts every entry. onEvict is invoked for each.
func (c *Costed[K, V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for c.ll.Len() > 0 {
		c.removeLocked(c.ll.Back())
	}
}

// Len reports the number of cached entries.
func (c *Costed[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

// Cost reports the aggregate cost of cached entries.
func (c *Costed[K, V]) Cost() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cost
}

// evictLocked removes cold entries until both limits hold. It keeps at least
// one entry so a single oversized value does not thrash.
func (c *Costed[K, V]) evictLocked() {
	for c.ll.Len() > 1 &&
		((c.maxEntries > 0 && c.ll.Len() > c.maxEntries) ||
			(c.maxCost > 0 && c.cost > c.maxCost)) {
		c.removeLocked(c.ll.Back())
	}
}

func (c *Costed[K, V]) removeLocked(el *list.Element) {
	ent := el.Value.(*entry[K, V])
	c.ll.Remove(el)
	delete(c.items, ent.key)
	c.cost -= ent.cost
	if c.onEvict != nil {
		c.onEvict(ent.key, ent.value)
	}
}
