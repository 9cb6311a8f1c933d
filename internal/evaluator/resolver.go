// Package evaluator resolves flag values and experiment assignments from
// overrides, provider snapshots and provider evaluation hooks.
package evaluator

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/OrlandoBitencourt/flagship/internal/override"
	"github.com/OrlandoBitencourt/flagship/internal/snapshot"
	"github.com/OrlandoBitencourt/flagship/pkg/domain"
	"github.com/OrlandoBitencourt/flagship/pkg/provider"
)

// Resolution is a resolved flag value and where it came from.
type Resolution struct {
	Value    domain.Value
	Source   domain.Source
	Provider string

	// Snapshot is nil for overrides and provider hook results.
	Snapshot *domain.Snapshot
	SetAt    time.Time
}

// Resolver applies flag precedence: override, then the first live provider
// snapshot holding the key, then provider hooks (only when asked), then the
// first cached snapshot.
type Resolver struct {
	overrides *override.Store
	snapshots *snapshot.Store
	providers []provider.Provider
	now       func() time.Time
	onStale   func(provider string)
	logger    logrus.FieldLogger
}

// Config wires a Resolver or an Assigner.
type Config struct {
	Overrides *override.Store
	Snapshots *snapshot.Store
	Providers []provider.Provider
	Now       func() time.Time

	// OnStale is called when a read is served from a snapshot past its TTL.
	OnStale func(provider string)

	Logger logrus.FieldLogger
}

func (c Config) withDefaults() Config {
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.OnStale == nil {
		c.OnStale = func(string) {}
	}
	if c.Logger == nil {
		c.Logger = logrus.StandardLogger()
	}
	return c
}

// NewResolver creates a resolver
func NewResolver(cfg Config) *Resolver {
	cfg = cfg.withDefaults()
	return &Resolver{
		overrides: cfg.Overrides,
		snapshots: cfg.Snapshots,
		providers: cfg.Providers,
		now:       cfg.Now,
		onStale:   cfg.OnStale,
		logger:    cfg.Logger,
	}
}

// Resolve returns the winning value for key without consulting provider
// hooks. An empty key never resolves.
func (r *Resolver) Resolve(key string) (Resolution, bool) {
	if key == "" {
		return Resolution{}, false
	}

	if res, ok := r.fromOverride(key); ok {
		return res, true
	}
	if res, ok := r.fromLive(key, true); ok {
		return res, true
	}
	return r.fromCached(key)
}

// ResolveFor is Resolve with provider evaluation hooks consulted, in
// provider order, between live and cached snapshots.
func (r *Resolver) ResolveFor(ctx context.Context, key string, evalCtx domain.Context) (Resolution, bool) {
	if key == "" {
		return Resolution{}, false
	}

	if res, ok := r.fromOverride(key); ok {
		return res, true
	}
	if res, ok := r.fromLive(key, true); ok {
		return res, true
	}
	if res, ok := r.fromHooks(ctx, key, evalCtx); ok {
		return res, true
	}
	return r.fromCached(key)
}

func (r *Resolver) fromOverride(key string) (Resolution, bool) {
	entry, ok := r.overrides.Get(key)
	if !ok {
		return Resolution{}, false
	}
	return Resolution{Value: entry.Value, Source: domain.SourceOverride, SetAt: entry.SetAt}, true
}

func (r *Resolver) fromLive(key string, triggerStale bool) (Resolution, bool) {
	hit, ok := r.snapshots.LookupLiveFlag(key)
	if !ok {
		return Resolution{}, false
	}

	v, _ := hit.Snapshot.Flag(key)
	source := domain.SourceProvider
	if !hit.Snapshot.IsFresh(r.now()) {
		source = domain.SourceCache
		if triggerStale {
			r.onStale(hit.Provider)
		}
	}

	return Resolution{
		Value:    v,
		Source:   source,
		Provider: hit.Provider,
		Snapshot: hit.Snapshot,
		SetAt:    hit.Snapshot.FetchedAt,
	}, true
}

func (r *Resolver) fromCached(key string) (Resolution, bool) {
	hit, ok := r.snapshots.LookupCachedFlag(key)
	if !ok {
		return Resolution{}, false
	}

	v, _ := hit.Snapshot.Flag(key)
	return Resolution{
		Value:    v,
		Source:   domain.SourceCache,
		Provider: hit.Provider,
		Snapshot: hit.Snapshot,
		SetAt:    hit.Snapshot.FetchedAt,
	}, true
}

func (r *Resolver) fromHooks(ctx context.Context, key string, evalCtx domain.Context) (Resolution, bool) {
	for _, p := range r.providers {
		v, ok, err := p.EvaluateFlag(ctx, key, evalCtx)
		if err != nil {
			r.logger.WithFields(logrus.Fields{
				"provider": p.Name(),
				"key":      key,
				"error":    err,
			}).Debug("provider flag evaluation failed")
			continue
		}
		if ok && v.IsValid() {
			return Resolution{Value: v, Source: domain.SourceProvider, Provider: p.Name(), SetAt: r.now()}, true
		}
	}
	return Resolution{}, false
}

// Status describes how key currently resolves. It never triggers a refresh.
func (r *Resolver) Status(key string) domain.FlagStatus {
	status := domain.FlagStatus{Key: key, Source: domain.SourceDefault}
	if key == "" {
		return status
	}

	res, ok := r.fromOverride(key)
	if !ok {
		res, ok = r.fromLive(key, false)
	}
	if !ok {
		res, ok = r.fromCached(key)
	}
	if !ok {
		status.LastError = r.firstError()
		return status
	}

	status.Exists = true
	status.Source = res.Source
	status.LastUpdated = res.SetAt
	status.ProviderName = res.Provider

	if res.Snapshot != nil {
		status.Age = res.Snapshot.Age(r.now())
		status.TTL = res.Snapshot.TTL
		if slot, ok := r.snapshots.Slot(res.Provider); ok {
			status.LastError = slot.LastError
		}
	}
	return status
}

func (r *Resolver) firstError() error {
	for _, slot := range r.snapshots.Slots() {
		if slot.LastError != nil {
			return slot.LastError
		}
	}
	return nil
}
