package provider

import (
	"time"

	"github.com/OrlandoBitencourt/flagship/pkg/circuit"
)

// Health tracks fetch outcomes for a provider on top of a circuit breaker.
// A provider is healthy while its breaker is not open. Providers embed a
// *Health to satisfy the health half of the Provider interface.
type Health struct {
	breaker *circuit.Breaker
}

// NewHealth creates a tracker that turns unhealthy after maxFailures
// consecutive failures and probes again after cooldown.
func NewHealth(maxFailures int, cooldown time.Duration) *Health {
	config := circuit.DefaultConfig()
	config.MaxFailures = maxFailures
	config.Cooldown = cooldown
	return &Health{breaker: circuit.New(config)}
}

// NewHealthWithConfig creates a tracker from a full breaker configuration.
func NewHealthWithConfig(config circuit.Config) *Health {
	return &Health{breaker: circuit.New(config)}
}

// DefaultHealth uses the breaker defaults.
func DefaultHealth() *Health {
	return &Health{breaker: circuit.New(circuit.DefaultConfig())}
}

// Record registers the outcome of a fetch.
func (h *Health) Record(err error) {
	h.breaker.Record(err)
}

// IsHealthy reports whether the breaker is not open.
func (h *Health) IsHealthy() bool {
	return h.breaker.State() != circuit.StateOpen
}

func (h *Health) LastSuccessfulFetch() (time.Time, bool) {
	last := h.breaker.Stats().LastSuccess
	return last, !last.IsZero()
}

func (h *Health) ConsecutiveFailures() int {
	return h.breaker.Stats().Failures
}

// LastError returns the error of the latest failed fetch, cleared by the
// next success.
func (h *Health) LastError() error {
	return h.breaker.Stats().LastErr
}

// Reset forgets all recorded outcomes.
func (h *Health) Reset() {
	h.breaker.Reset()
}
