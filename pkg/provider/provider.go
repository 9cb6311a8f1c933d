// Package provider defines the contract between the evaluation engine and the
// sources of flag snapshots, plus the providers bundled with the SDK.
package provider

import (
	"context"
	"time"

	"github.com/OrlandoBitencourt/flagship/pkg/domain"
)

// Provider is a source of flag and experiment snapshots. Bootstrap and
// Refresh perform I/O and may block; the engine always calls them with a
// bounded context. Implementations must be safe for concurrent use.
type Provider interface {
	// Name identifies the provider. Names must be unique within a client.
	Name() string

	// Bootstrap performs the initial fetch.
	Bootstrap(ctx context.Context) (*domain.Snapshot, error)

	// Refresh re-fetches the full snapshot.
	Refresh(ctx context.Context) (*domain.Snapshot, error)

	// EvaluateFlag resolves a single flag for a caller context. ok is false
	// when the provider has no opinion on the key.
	EvaluateFlag(ctx context.Context, key string, evalCtx domain.Context) (value domain.Value, ok bool, err error)

	// EvaluateExperiment resolves an experiment the engine has no definition
	// for. A nil assignment means "not assigned".
	EvaluateExperiment(ctx context.Context, key string, evalCtx domain.Context) (*domain.Assignment, error)

	IsHealthy() bool
	LastSuccessfulFetch() (time.Time, bool)
	ConsecutiveFailures() int
}

// Watcher is implemented by providers that can push change notifications.
// Watch blocks until ctx is cancelled, calling onChange after each change.
type Watcher interface {
	Watch(ctx context.Context, onChange func()) error
}

// Status is a point-in-time health summary of a provider.
type Status struct {
	Name                string
	Healthy             bool
	LastSuccessfulFetch time.Time
	ConsecutiveFailures int
}

// StatusOf reads the health accessors of p.
func StatusOf(p Provider) Status {
	last, _ := p.LastSuccessfulFetch()
	return Status{
		Name:                p.Name(),
		Healthy:             p.IsHealthy(),
		LastSuccessfulFetch: last,
		ConsecutiveFailures: p.ConsecutiveFailures(),
	}
}
