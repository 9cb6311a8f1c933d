package domain

import (
	"time"
)

// Snapshot is an immutable bundle of flags and experiments fetched from one
// provider at one point in time. A newer snapshot replaces an older one as a
// whole; neither the maps nor the experiments are modified after NewSnapshot.
type Snapshot struct {
	Flags       map[string]Value      `json:"flags"`
	Experiments map[string]Experiment `json:"experiments"`
	Revision    string                `json:"revision"`
	FetchedAt   time.Time             `json:"fetched_at"`
	TTL         time.Duration         `json:"ttl"`
	Signature   string                `json:"signature,omitempty"`
}

// SnapshotOption configures NewSnapshot.
type SnapshotOption func(*Snapshot)

func WithRevision(revision string) SnapshotOption {
	return func(s *Snapshot) { s.Revision = revision }
}

func WithTTL(ttl time.Duration) SnapshotOption {
	return func(s *Snapshot) { s.TTL = ttl }
}

func WithFetchedAt(at time.Time) SnapshotOption {
	return func(s *Snapshot) { s.FetchedAt = at }
}

func WithSignature(signature string) SnapshotOption {
	return func(s *Snapshot) { s.Signature = signature }
}

// NewSnapshot builds a snapshot owning private copies of flags and
// experiments. Experiments without a key inherit their map key.
func NewSnapshot(flags map[string]Value, experiments map[string]Experiment, opts ...SnapshotOption) *Snapshot {
	s := &Snapshot{
		Flags:       make(map[string]Value, len(flags)),
		Experiments: make(map[string]Experiment, len(experiments)),
		FetchedAt:   time.Now(),
	}

	for k, v := range flags {
		s.Flags[k] = v
	}

	for k, e := range experiments {
		if e.Key == "" {
			e.Key = k
		}
		variants := make([]Variant, len(e.Variants))
		copy(variants, e.Variants)
		e.Variants = variants
		s.Experiments[k] = e
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Flag returns the flag stored under key.
func (s *Snapshot) Flag(key string) (Value, bool) {
	if s == nil {
		return Value{}, false
	}
	v, ok := s.Flags[key]
	return v, ok
}

// Experiment returns the experiment stored under key.
func (s *Snapshot) Experiment(key string) (Experiment, bool) {
	if s == nil {
		return Experiment{}, false
	}
	e, ok := s.Experiments[key]
	return e, ok
}

// Age returns how long ago the snapshot was fetched.
func (s *Snapshot) Age(now time.Time) time.Duration {
	return now.Sub(s.FetchedAt)
}

// IsFresh reports whether the snapshot is within its TTL. A non-positive TTL
// never expires.
func (s *Snapshot) IsFresh(now time.Time) bool {
	if s.TTL <= 0 {
		return true
	}
	return s.Age(now) <= s.TTL
}

// Validate checks every experiment in the snapshot.
func (s *Snapshot) Validate() error {
	for _, e := range s.Experiments {
		if err := e.Validate(); err != nil {
			return err
		}
	}
	for k, v := range s.Flags {
		if k == "" {
			return NewValidationError("flag with empty key")
		}
		if !v.IsValid() {
			return NewValidationError("flag " + k + " has no value")
		}
	}
	return nil
}
