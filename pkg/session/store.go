// Package session holds short-lived per-conversation interaction state:
// a pending multi-candidate selection awaiting a numeric reply, expiring
// on a timer.
package session

import (
	"sync"
	"time"
)

// Store maps an interaction key to at most one pending value. A pending
// entry is consumed by Take, dropped by Drop, or expired by its timer.
// Expiry is generation-checked: a timer firing after its entry was
// consumed or replaced is a no-op.
type Store[K comparable, V any] struct {
	mu       sync.Mutex
	ttl      time.Duration
	nextGen  uint64
	entries  map[K]*entry[V]
	onExpire func(K, V)
}

type entry[V any] struct {
	value     V
	gen       uint64
	timer     *time.Timer
	createdAt time.Time
}

// NewStore builds a store whose entries expire after ttl. onExpire is
// invoked (on the timer goroutine) for entries that age out; it may be
// nil.
func NewStore[K comparable, V any](ttl time.Duration, onExpire func(K, V)) *Store[K, V] {
	return &Store[K, V]{
		ttl:      ttl,
		entries:  make(map[K]*entry[V]),
		onExpire: onExpire,
	}
}

// Begin creates a pending entry for key and arms its expiry timer.
// It reports false, leaving existing state untouched, when the key is
// already pending: a new interaction never displaces one in flight.
func (s *Store[K, V]) Begin(key K, value V) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[key]; exists {
		return false
	}

	s.nextGen++
	gen := s.nextGen
	e := &entry[V]{value: value, gen: gen, createdAt: time.Now()}
	e.timer = time.AfterFunc(s.ttl, func() { s.expire(key, gen) })
	s.entries[key] = e

	return true
}

// Get peeks at the pending value without consuming it.
func (s *Store[K, V]) Get(key K) (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		var zero V
		return zero, false
	}

	return e.value, true
}

// Take consumes the pending value and stops its timer. A timer that
// already fired concurrently becomes a no-op through the generation
// check.
func (s *Store[K, V]) Take(key K) (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		var zero V
		return zero, false
	}

	e.timer.Stop()
	delete(s.entries, key)

	return e.value, true
}

// Drop removes the pending value, if any, without invoking onExpire.
func (s *Store[K, V]) Drop(key K) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[key]; ok {
		e.timer.Stop()
		delete(s.entries, key)
	}
}

// Len reports the number of pending entries.
func (s *Store[K, V]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *Store[K, V]) expire(key K, gen uint64) {
	s.mu.Lock()
	e, ok := s.entries[key]
	if !ok || e.gen != gen {
		// Resolved or superseded between the timer firing and this
		// running; nothing to expire.
		s.mu.Unlock()
		return
	}
	delete(s.entries, key)
	value := e.value
	s.mu.Unlock()

	if s.onExpire != nil {
		s.onExpire(key, value)
	}
}
