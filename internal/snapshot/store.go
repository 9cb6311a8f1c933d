// Package snapshot holds the per-provider snapshots a client resolves from.
// Readers load an immutable slot list through an atomic pointer; writers
// serialize on a mutex and publish a modified copy.
package snapshot

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/OrlandoBitencourt/flagship/pkg/domain"
)

// Slot is the state kept for one provider. Slots are values; a published
// slot is never modified.
type Slot struct {
	Provider    string
	Live        *domain.Snapshot
	Cached      *domain.Snapshot
	LastError   error
	LastAttempt time.Time
}

// Hit is a lookup result.
type Hit struct {
	Provider string
	Snapshot *domain.Snapshot
	Cached   bool
}

// Store keeps one slot per provider, in configuration order.
type Store struct {
	mu    sync.Mutex
	slots atomic.Pointer[[]Slot]
	index map[string]int
}

// New creates a store with an empty slot per provider name.
func New(providers []string) *Store {
	s := &Store{index: make(map[string]int, len(providers))}
	slots := make([]Slot, len(providers))
	for i, name := range providers {
		slots[i] = Slot{Provider: name}
		s.index[name] = i
	}
	s.slots.Store(&slots)
	return s
}

// Slots returns the current slot list. Callers must not modify it.
func (s *Store) Slots() []Slot {
	return *s.slots.Load()
}

// Slot returns the slot for provider.
func (s *Store) Slot(provider string) (Slot, bool) {
	i, ok := s.index[provider]
	if !ok {
		return Slot{}, false
	}
	return s.Slots()[i], true
}

// update applies fn to a copy of the named slot and publishes the result.
func (s *Store) update(provider string, fn func(*Slot)) bool {
	i, ok := s.index[provider]
	if !ok {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur := *s.slots.Load()
	next := make([]Slot, len(cur))
	copy(next, cur)
	fn(&next[i])
	s.slots.Store(&next)
	return true
}

// SetLive installs a freshly fetched snapshot and clears the last error.
func (s *Store) SetLive(provider string, snap *domain.Snapshot, at time.Time) bool {
	return s.update(provider, func(slot *Slot) {
		slot.Live = snap
		slot.LastError = nil
		slot.LastAttempt = at
	})
}

// SetCached installs a snapshot restored from the persistent cache.
func (s *Store) SetCached(provider string, snap *domain.Snapshot) bool {
	return s.update(provider, func(slot *Slot) {
		slot.Cached = snap
	})
}

// RecordFailure keeps the current snapshots and records err.
func (s *Store) RecordFailure(provider string, err error, at time.Time) bool {
	return s.update(provider, func(slot *Slot) {
		slot.LastError = err
		slot.LastAttempt = at
	})
}

// LookupFlag returns the first live snapshot holding key, in provider
// order, then the first cached one.
func (s *Store) LookupFlag(key string) (Hit, bool) {
	return s.lookup(func(snap *domain.Snapshot) bool {
		_, ok := snap.Flag(key)
		return ok
	})
}

// LookupExperiment is LookupFlag for experiment definitions.
func (s *Store) LookupExperiment(key string) (Hit, bool) {
	return s.lookup(func(snap *domain.Snapshot) bool {
		_, ok := snap.Experiment(key)
		return ok
	})
}

// LookupLiveFlag only considers live snapshots.
func (s *Store) LookupLiveFlag(key string) (Hit, bool) {
	for _, slot := range s.Slots() {
		if _, ok := slot.Live.Flag(key); ok {
			return Hit{Provider: slot.Provider, Snapshot: slot.Live}, true
		}
	}
	return Hit{}, false
}

// LookupCachedFlag only considers cached snapshots.
func (s *Store) LookupCachedFlag(key string) (Hit, bool) {
	for _, slot := range s.Slots() {
		if _, ok := slot.Cached.Flag(key); ok {
			return Hit{Provider: slot.Provider, Snapshot: slot.Cached, Cached: true}, true
		}
	}
	return Hit{}, false
}

func (s *Store) lookup(has func(*domain.Snapshot) bool) (Hit, bool) {
	slots := s.Slots()

	for _, slot := range slots {
		if slot.Live != nil && has(slot.Live) {
			return Hit{Provider: slot.Provider, Snapshot: slot.Live}, true
		}
	}
	for _, slot := range slots {
		if slot.Cached != nil && has(slot.Cached) {
			return Hit{Provider: slot.Provider, Snapshot: slot.Cached, Cached: true}, true
		}
	}
	return Hit{}, false
}

// HasLive reports whether any provider has a live snapshot.
func (s *Store) HasLive() bool {
	for _, slot := range s.Slots() {
		if slot.Live != nil {
			return true
		}
	}
	return false
}

// Reset empties every slot.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := *s.slots.Load()
	next := make([]Slot, len(cur))
	for i, slot := range cur {
		next[i] = Slot{Provider: slot.Provider}
	}
	s.slots.Store(&next)
}
