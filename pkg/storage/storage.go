// Package storage persists provider snapshots so a client can serve
// last-known values when providers are unreachable at startup.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/OrlandoBitencourt/flagship/pkg/domain"
)

// ErrNotFound is returned by Load when nothing is stored for a provider.
var ErrNotFound = errors.New("snapshot not found")

var errSetDropped = errors.New("write dropped by admission policy")

// Cache stores at most one snapshot per provider name. Implementations must
// be safe for concurrent use.
type Cache interface {
	// Save replaces the snapshot stored for provider.
	Save(ctx context.Context, provider string, snap *domain.Snapshot) error

	// Load returns the stored snapshot or ErrNotFound.
	Load(ctx context.Context, provider string) (*domain.Snapshot, error)

	// Clear removes the snapshot stored for provider.
	Clear(ctx context.Context, provider string) error

	// ClearAll removes every stored snapshot.
	ClearAll(ctx context.Context) error
}

// Metrics represents cache metrics
type Metrics struct {
	Hits        uint64
	Misses      uint64
	KeysAdded   uint64
	KeysUpdated uint64
	KeysEvicted uint64
	SetsDropped uint64
	HitRatio    float64
}

// Config holds in-memory cache configuration
type Config struct {
	MaxCost     int64 // Maximum number of snapshots kept
	NumCounters int64 // Number of counters for admission policy
	BufferItems int64 // Number of keys per buffer

	// TTL bounds how long a saved snapshot is kept; zero keeps it until evicted.
	TTL time.Duration

	MetricsEnabled bool
}

// DefaultConfig returns default in-memory cache configuration
func DefaultConfig() Config {
	return Config{
		MaxCost:        1024,
		NumCounters:    10_240,
		BufferItems:    64,
		MetricsEnabled: true,
	}
}

// Noop is a Cache that stores nothing.
type Noop struct{}

func (Noop) Save(context.Context, string, *domain.Snapshot) error { return nil }

func (Noop) Load(context.Context, string) (*domain.Snapshot, error) { return nil, ErrNotFound }

func (Noop) Clear(context.Context, string) error { return nil }

func (Noop) ClearAll(context.Context) error { return nil }
