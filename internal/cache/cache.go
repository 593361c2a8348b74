// Package cache keeps parsed GeoJSON documents keyed by source identifier.
package cache

import (
	"sort"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/paulmach/orb/geojson"
)

// Entry is a cached document with its fetch metadata.
type Entry struct {
	Document  *geojson.FeatureCollection
	FetchedAt time.Time
	// Size is the length in bytes of the raw payload the document was parsed from.
	Size int
	// Normalized is true when the coordinates went through geo.Normalize.
	Normalized bool
}

// Large reports whether the entry should use the deferred styling strategy.
func (e Entry) Large(threshold int64) bool {
	return threshold > 0 && int64(e.Size) >= threshold
}

// Store is a concurrency safe document cache.
// A zero capacity keeps every entry for the life of the store, otherwise the
// least recently used entry is evicted once capacity is exceeded.
type Store struct {
	mu      sync.RWMutex
	entries map[string]Entry
	lru     *lru.Cache[string, Entry]
}

// New creates an empty store. Negative capacities are treated as zero.
func New(capacity int) *Store {
	if capacity <= 0 {
		return &Store{entries: make(map[string]Entry)}
	}

	// lru.New only fails for non-positive sizes
	c, _ := lru.New[string, Entry](capacity)
	return &Store{lru: c}
}

// Get returns the entry cached under id.
func (s *Store) Get(id string) (Entry, bool) {
	if s.lru != nil {
		return s.lru.Get(id)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	return e, ok
}

// Put stores e under id, replacing any previous entry.
func (s *Store) Put(id string, e Entry) {
	if e.FetchedAt.IsZero() {
		e.FetchedAt = time.Now()
	}

	if s.lru != nil {
		s.lru.Add(id, e)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[id] = e
}

// Has reports whether id is cached without touching its recency.
func (s *Store) Has(id string) bool {
	if s.lru != nil {
		return s.lru.Contains(id)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.entries[id]
	return ok
}

// Len returns the number of cached documents.
func (s *Store) Len() int {
	if s.lru != nil {
		return s.lru.Len()
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Keys returns the cached identifiers in sorted order.
func (s *Store) Keys() []string {
	var keys []string
	if s.lru != nil {
		keys = s.lru.Keys()
	} else {
		s.mu.RLock()
		keys = make([]string, 0, len(s.entries))
		for k := range s.entries {
			keys = append(keys, k)
		}
		s.mu.RUnlock()
	}

	sort.Strings(keys)
	return keys
}

// Purge drops every entry.
func (s *Store) Purge() {
	if s.lru != nil {
		s.lru.Purge()
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]Entry)
}
