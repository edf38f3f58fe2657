// Package cache provides the in-memory TTL cache backing the report
// engine. Entries expire lazily and the store is bounded: when full,
// the oldest-inserted entry is evicted (insertion age, not access
// recency — access tracking is deliberately absent).
package cache

import (
	"encoding/json"
	"strings"
	"sync"
	"time"
)

type entry[T any] struct {
	value     T
	expiresAt time.Time
}

// Store is a thread-safe in-memory cache with TTL and bounded size.
type Store[T any] struct {
	mu      sync.RWMutex
	items   map[string]entry[T]
	order   []string // insertion order, oldest first
	ttl     time.Duration
	maxSize int
}

// New creates a cache with the given default TTL and maximum entry
// count. maxSize <= 0 means unbounded.
func New[T any](ttl time.Duration, maxSize int) *Store[T] {
	return &Store[T]{
		items:   make(map[string]entry[T]),
		ttl:     ttl,
		maxSize: maxSize,
	}
}

// Get retrieves a value. Returns false if absent or expired; callers
// treat both identically as a miss.
func (s *Store[T]) Get(key string) (T, bool) {
	s.mu.RLock()
	e, ok := s.items[key]
	s.mu.RUnlock()

	if !ok {
		var zero T
		return zero, false
	}
	if time.Now().After(e.expiresAt) {
		s.Delete(key)
		var zero T
		return zero, false
	}
	return e.value, true
}

// Set stores a value with the default TTL.
func (s *Store[T]) Set(key string, value T) {
	s.SetTTL(key, value, s.ttl)
}

// SetTTL stores a value with a per-call TTL. Overwriting an existing
// key keeps its insertion-age position.
func (s *Store[T]) SetTTL(key string, value T, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.items[key]; !exists {
		if s.maxSize > 0 && len(s.items) >= s.maxSize {
			s.evictOldestLocked()
		}
		s.order = append(s.order, key)
	}
	s.items[key] = entry[T]{
		value:     value,
		expiresAt: time.Now().Add(ttl),
	}
}

// Delete removes a single key.
func (s *Store[T]) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(key)
}

// InvalidatePattern removes every entry whose key contains the given
// substring. Used to blanket-invalidate a whole report kind after a
// transaction mutation.
func (s *Store[T]) InvalidatePattern(substring string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key := range s.items {
		if strings.Contains(key, substring) {
			s.removeLocked(key)
		}
	}
}

// Clear removes all entries.
func (s *Store[T]) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = make(map[string]entry[T])
	s.order = nil
}

// Len returns the current number of entries, expired ones included.
func (s *Store[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

func (s *Store[T]) evictOldestLocked() {
	for len(s.order) > 0 {
		oldest := s.order[0]
		s.order = s.order[1:]
		if _, ok := s.items[oldest]; ok {
			delete(s.items, oldest)
			return
		}
	}
}

func (s *Store[T]) removeLocked(key string) {
	if _, ok := s.items[key]; !ok {
		return
	}
	delete(s.items, key)
	for i, k := range s.order {
		if k == key {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// Key builds a deterministic cache key from a report kind and its
// parameters. encoding/json marshals map keys in sorted order, so
// structurally equal parameter sets always produce the same key
// regardless of how the map was assembled.
func Key(kind string, params map[string]any) string {
	b, err := json.Marshal(params)
	if err != nil {
		// Unreachable for the plain string/slice params used here;
		// degrade to an uncacheable-ish key rather than failing.
		return kind + ":?"
	}
	return kind + ":" + string(b)
}
