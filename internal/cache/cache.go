// Package cache holds the single cached viewport entry.
package cache

import (
	"sync"
	"time"

	"github.com/mohammed-shakir/listings-viewport-cache/internal/core/model"
	"github.com/mohammed-shakir/listings-viewport-cache/internal/geo"
)

const DefaultTTL = 5 * time.Minute

// Entry is one successful fetch: the padded region it covers, the normalized
// ads and derived houses, and the generation that produced it. Entries are
// never modified after Put.
type Entry struct {
	Region     model.Region  `json:"region"`
	Ads        []model.Ad    `json:"ads"`
	Houses     []model.House `json:"houses"`
	FetchedAt  time.Time     `json:"fetched_at"`
	Generation uint64        `json:"generation"`
}

// IsValid reports whether e is fresh at now and its padded region covers the
// requested viewport.
func IsValid(e *Entry, requested model.Region, now time.Time, ttl time.Duration) bool {
	if e == nil {
		return false
	}
	if now.Sub(e.FetchedAt) >= ttl {
		return false
	}
	return geo.Contains(e.Region, requested)
}

// Store is a single-slot holder. Writers replace the whole entry.
type Store struct {
	mu    sync.RWMutex
	entry *Entry
}

func NewStore() *Store { return &Store{} }

func (s *Store) Get() *Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entry
}

func (s *Store) Put(e *Entry) {
	s.mu.Lock()
	s.entry = e
	s.mu.Unlock()
}

func (s *Store) Clear() {
	s.mu.Lock()
	s.entry = nil
	s.mu.Unlock()
}
