// Package override keeps local per-key value overrides. Overrides take
// precedence over every provider and are never persisted.
package override

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/OrlandoBitencourt/flagship/pkg/domain"
)

// Entry is one override.
type Entry struct {
	Value domain.Value
	SetAt time.Time
}

// Store is safe for concurrent use. Get never blocks on writers.
type Store struct {
	mu       sync.Mutex
	entries  atomic.Pointer[map[string]Entry]
	now      func() time.Time
	onChange func(key string)
}

// New creates an empty store. onChange, if set, is called synchronously
// after every mutation, outside the write lock.
func New(now func() time.Time, onChange func(key string)) *Store {
	if now == nil {
		now = time.Now
	}
	s := &Store{now: now, onChange: onChange}
	empty := map[string]Entry{}
	s.entries.Store(&empty)
	return s
}

// Get returns the override for key.
func (s *Store) Get(key string) (Entry, bool) {
	e, ok := (*s.entries.Load())[key]
	return e, ok
}

// Set installs or replaces the override for key.
func (s *Store) Set(key string, value domain.Value) error {
	if key == "" {
		return domain.NewValidationError("override key must not be empty")
	}
	if !value.IsValid() {
		return domain.NewValidationError("override value for " + key + " is invalid")
	}

	s.mu.Lock()
	next := s.copy()
	next[key] = Entry{Value: value, SetAt: s.now()}
	s.entries.Store(&next)
	s.mu.Unlock()

	s.notify(key)
	return nil
}

// Clear removes the override for key and reports whether one existed.
// Listeners are only notified when something was removed.
func (s *Store) Clear(key string) bool {
	s.mu.Lock()
	if _, ok := (*s.entries.Load())[key]; !ok {
		s.mu.Unlock()
		return false
	}
	next := s.copy()
	delete(next, key)
	s.entries.Store(&next)
	s.mu.Unlock()

	s.notify(key)
	return true
}

// ClearAll removes every override, notifying once per removed key in key
// order. It returns the removed keys.
func (s *Store) ClearAll() []string {
	s.mu.Lock()
	cur := *s.entries.Load()
	keys := make([]string, 0, len(cur))
	for k := range cur {
		keys = append(keys, k)
	}
	empty := map[string]Entry{}
	s.entries.Store(&empty)
	s.mu.Unlock()

	sort.Strings(keys)
	for _, k := range keys {
		s.notify(k)
	}
	return keys
}

// List returns a copy of all overrides.
func (s *Store) List() map[string]Entry {
	cur := *s.entries.Load()
	out := make(map[string]Entry, len(cur))
	for k, v := range cur {
		out[k] = v
	}
	return out
}

// Len returns the number of overrides.
func (s *Store) Len() int {
	return len(*s.entries.Load())
}

// copy must be called with mu held.
func (s *Store) copy() map[string]Entry {
	cur := *s.entries.Load()
	next := make(map[string]Entry, len(cur)+1)
	for k, v := range cur {
		next[k] = v
	}
	return next
}

func (s *Store) notify(key string) {
	if s.onChange != nil {
		s.onChange(key)
	}
}
