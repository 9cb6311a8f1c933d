// Package circuit tracks consecutive failures of a flag source and trips
// after too many in a row.
package circuit

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// State is the breaker position.
type State int

const (
	// StateClosed means fetches are succeeding, or failing below the limit.
	StateClosed State = iota
	// StateOpen means MaxFailures consecutive fetches failed.
	StateOpen
	// StateHalfOpen means the cooldown elapsed and the next outcome decides.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config holds breaker configuration
type Config struct {
	// MaxFailures is the number of consecutive failures that opens the breaker
	MaxFailures int

	// Cooldown is how long the breaker stays open before a probe is allowed
	Cooldown time.Duration

	// Now overrides the clock, for tests
	Now func() time.Time
}

// DefaultConfig returns the default breaker configuration
func DefaultConfig() Config {
	return Config{
		MaxFailures: 3,
		Cooldown:    30 * time.Second,
	}
}

// Breaker records fetch outcomes. Providers feed it with Record; callers
// that want to skip fetches while the source is down gate on Allow.
type Breaker struct {
	mu sync.RWMutex

	maxFailures int
	cooldown    time.Duration
	now         func() time.Time

	state       State
	failures    int
	openedAt    time.Time
	lastFailure time.Time
	lastSuccess time.Time
	lastErr     error
}

// New creates a closed breaker. Non-positive limits fall back to defaults.
func New(config Config) *Breaker {
	def := DefaultConfig()
	if config.MaxFailures <= 0 {
		config.MaxFailures = def.MaxFailures
	}
	if config.Cooldown <= 0 {
		config.Cooldown = def.Cooldown
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	return &Breaker{
		maxFailures: config.MaxFailures,
		cooldown:    config.Cooldown,
		now:         config.Now,
	}
}

// Allow returns an *OpenError while the breaker is open and its cooldown
// has not elapsed. After the cooldown the breaker moves to half-open and
// lets one outcome through.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StateOpen {
		return nil
	}
	if b.now().Sub(b.openedAt) >= b.cooldown {
		b.state = StateHalfOpen
		return nil
	}
	return &OpenError{
		Failures:    b.failures,
		LastFailure: b.lastFailure,
		Err:         b.lastErr,
	}
}

// Record registers the outcome of one fetch. A success closes the breaker;
// a failure in half-open, or the MaxFailures-th in a row, opens it.
func (b *Breaker) Record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	if err == nil {
		b.state = StateClosed
		b.failures = 0
		b.lastErr = nil
		b.lastSuccess = now
		return
	}

	b.failures++
	b.lastErr = err
	b.lastFailure = now

	if b.state != StateClosed || b.failures >= b.maxFailures {
		b.state = StateOpen
		b.openedAt = now
	}
}

// State returns the current position
func (b *Breaker) State() State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

// Reset closes the breaker and forgets failures. The last success time is
// kept.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = StateClosed
	b.failures = 0
	b.lastErr = nil
}

// Stats is a point-in-time view of a breaker
type Stats struct {
	State       State
	Failures    int
	LastFailure time.Time
	LastSuccess time.Time
	LastErr     error
}

// Stats returns the current breaker statistics
func (b *Breaker) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return Stats{
		State:       b.state,
		Failures:    b.failures,
		LastFailure: b.lastFailure,
		LastSuccess: b.lastSuccess,
		LastErr:     b.lastErr,
	}
}

// OpenError is returned by Allow while the breaker is open
type OpenError struct {
	Failures    int
	LastFailure time.Time
	Err         error
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("circuit open after %d consecutive failures (last at %s)",
		e.Failures, e.LastFailure.Format(time.RFC3339))
}

func (e *OpenError) Unwrap() error {
	return e.Err
}

// IsOpen reports whether err is, or wraps, an *OpenError
func IsOpen(err error) bool {
	var target *OpenError
	return errors.As(err, &target)
}
