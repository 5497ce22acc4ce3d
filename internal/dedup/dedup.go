// Package dedup provides a typed in-flight call coalescer: for a given key,
// at most one operation executes at a time, and concurrent callers for the
// same key share its result. Both the image cache and the detail poller
// route their fetches through this primitive.
package dedup

import (
	"golang.org/x/sync/singleflight"
)

// Group coalesces concurrent calls by key. The zero value is ready to use.
type Group[V any] struct {
	sf singleflight.Group
}

// Do executes fn for key unless a call for the same key is already in
// flight, in which case it waits for that call and returns its result.
// shared reports whether the result was delivered to more than one caller.
// Errors are shared with joiners exactly like values.
func (g *Group[V]) Do(key string, fn func() (V, error)) (v V, shared bool, err error) {
	res, err, shared := g.sf.Do(key, func() (any, error) {
		return fn()
	})
	if res != nil {
		v = res.(V)
	}
	return v, shared, err
}

// DoAsync runs fn for key on a new goroutine unless a call for the same key
// is already in flight. Results are discarded; callers that need them use Do.
func (g *Group[V]) DoAsync(key string, fn func() (V, error)) {
	go func() {
		_, _, _ = g.Do(key, fn)
	}()
}

// Forget drops the in-flight registration for key so the next Do starts a
// fresh call instead of joining a stale one.
func (g *Group[V]) Forget(key string) {
	g.sf.Forget(key)
}
