// Package events provides the in-process change bus that decouples the post
// store from its downstream caches. Dispatch is synchronous and unbuffered:
// a subscriber that is not registered at publish time misses the event, and
// consumers are expected to tolerate that by re-fetching on their next read.
package events

import (
	"sort"
	"sync"
)

// Kind tags a change event.
type Kind int

const (
	// Created marks a newly created entity.
	Created Kind = iota
	// Updated marks an entity whose fields changed.
	Updated
	// Deleted marks a removed entity.
	Deleted
)

// String returns the human-readable tag for logs.
func (k Kind) String() string {
	switch k {
	case Created:
		return "created"
	case Updated:
		return "updated"
	case Deleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// PostChange is published by the post store after every successful mutation
// or reconciliation step: exactly one event per touched entity.
type PostChange struct {
	Kind    Kind
	PostID  int64
	DateKey string // YYYY-MM-DD entry date of the affected post
}

// DetailChange is emitted by the detail cache whenever a polled detail is
// refreshed, so views showing the detail can re-render.
type DetailChange struct {
	PostID int64
}

// Bus is a typed publish/subscribe channel. Handlers run synchronously on
// the publisher's goroutine, in registration order. Events are transient:
// there is no buffering and no replay.
type Bus[T any] struct {
	mu   sync.Mutex
	next int
	subs map[int]func(T)
}

// NewBus returns an empty bus.
func NewBus[T any]() *Bus[T] {
	return &Bus[T]{subs: make(map[int]func(T))}
}

// Subscribe registers a handler and returns its unsubscribe func. The
// handler must not block; it runs inline during Publish.
func (b *Bus[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = fn
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}

// Publish synchronously notifies all current subscribers. The subscriber set
// is snapshotted under the lock so a handler may unsubscribe (itself or
// others) without deadlocking.
func (b *Bus[T]) Publish(ev T) {
	b.mu.Lock()
	ids := make([]int, 0, len(b.subs))
	for id := range b.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	handlers := make([]func(T), 0, len(ids))
	for _, id := range ids {
		handlers = append(handlers, b.subs[id])
	}
	b.mu.Unlock()

	for _, fn := range handlers {
		fn(ev)
	}
}

// Len reports the number of active subscribers.
func (b *Bus[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
