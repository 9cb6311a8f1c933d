// Package engine runs provider bootstrap and refresh and installs their
// snapshots into the snapshot store.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/OrlandoBitencourt/flagship/internal/listener"
	"github.com/OrlandoBitencourt/flagship/internal/snapshot"
	"github.com/OrlandoBitencourt/flagship/pkg/domain"
	"github.com/OrlandoBitencourt/flagship/pkg/provider"
	"github.com/OrlandoBitencourt/flagship/pkg/storage"
	"github.com/OrlandoBitencourt/flagship/pkg/telemetry"
)

// ErrBootstrapTimeout is returned by RefreshAndWait when bootstrap did not
// settle in time.
var ErrBootstrapTimeout = errors.New("bootstrap did not settle before timeout")

// ErrStopped is returned by Start after Stop.
var ErrStopped = errors.New("engine stopped")

const (
	phaseBootstrap = "bootstrap"
	phaseRefresh   = "refresh"
)

// State is the bootstrap lifecycle state.
type State int32

const (
	Unbootstrapped State = iota
	Bootstrapping
	Ready
)

func (s State) String() string {
	switch s {
	case Unbootstrapped:
		return "unbootstrapped"
	case Bootstrapping:
		return "bootstrapping"
	case Ready:
		return "ready"
	default:
		return "unknown"
	}
}

// ParseState converts a wire name back into a State.
func ParseState(s string) (State, error) {
	switch s {
	case "unbootstrapped":
		return Unbootstrapped, nil
	case "bootstrapping":
		return Bootstrapping, nil
	case "ready":
		return Ready, nil
	default:
		return Unbootstrapped, fmt.Errorf("unknown state %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(b []byte) error {
	parsed, err := ParseState(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Engine orchestrates providers, the snapshot store and the cache.
type Engine struct {
	// Dependencies (injected)
	providers []provider.Provider
	snapshots *snapshot.Store
	cache     storage.Cache
	bus       *listener.Bus
	telemetry telemetry.Provider
	logger    logrus.FieldLogger
	now       func() time.Time

	// Configuration
	config Config

	// State management
	state      atomic.Int32
	generation atomic.Uint64
	installMu  sync.RWMutex
	refreshing atomic.Int32
	group      singleflight.Group
	stale      map[string]*atomic.Bool

	lastBootstrap atomic.Pointer[time.Time]
	lastRefresh   atomic.Pointer[time.Time]

	// Lifetime
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	started bool
	stopped bool
}

// Option configures an Engine.
type Option func(*Engine)

func WithConfig(cfg Config) Option {
	return func(e *Engine) { e.config = cfg }
}

func WithCache(c storage.Cache) Option {
	return func(e *Engine) { e.cache = c }
}

func WithBus(b *listener.Bus) Option {
	return func(e *Engine) { e.bus = b }
}

func WithTelemetry(t telemetry.Provider) Option {
	return func(e *Engine) { e.telemetry = t }
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(e *Engine) { e.logger = l }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an engine over providers. store must hold one slot per
// provider name.
func New(providers []provider.Provider, store *snapshot.Store, opts ...Option) (*Engine, error) {
	e := &Engine{
		providers: providers,
		snapshots: store,
		config:    DefaultConfig(),
		stale:     make(map[string]*atomic.Bool, len(providers)),
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.snapshots == nil {
		return nil, fmt.Errorf("snapshot store is required")
	}
	if err := e.config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	for _, p := range providers {
		if _, ok := e.snapshots.Slot(p.Name()); !ok {
			return nil, fmt.Errorf("snapshot store has no slot for provider %q", p.Name())
		}
		e.stale[p.Name()] = new(atomic.Bool)
	}

	if e.cache == nil {
		e.cache = storage.Noop{}
	}
	if e.logger == nil {
		e.logger = logrus.StandardLogger()
	}
	if e.bus == nil {
		e.bus = listener.New(e.logger)
	}
	if e.telemetry == nil {
		e.telemetry = telemetry.NewNoOp()
	}
	if e.now == nil {
		e.now = time.Now
	}

	e.ctx, e.cancel = context.WithCancel(context.Background())
	return e, nil
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	return State(e.state.Load())
}

// IsRefreshing reports whether a refresh cycle is in flight.
func (e *Engine) IsRefreshing() bool {
	return e.refreshing.Load() > 0
}

// Providers returns the configured providers in order.
func (e *Engine) Providers() []provider.Provider {
	return e.providers
}

// EnsureBootstrap bootstraps every provider once. It returns true when the
// fan-out has settled, whatever each provider's outcome, and false when the
// wait ends first. Ending the wait never cancels the fetches. A
// non-positive timeout uses the configured initial timeout.
func (e *Engine) EnsureBootstrap(ctx context.Context, timeout time.Duration) bool {
	if e.State() == Ready {
		return true
	}

	if len(e.providers) == 0 {
		if e.state.Swap(int32(Ready)) != int32(Ready) {
			e.markBootstrapped()
		}
		return true
	}

	if timeout <= 0 {
		timeout = e.config.InitialTimeout
	}

	done := e.bootstrap()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		return true
	case <-timer.C:
		e.logger.WithField("timeout", timeout).Warn("bootstrap did not settle in time")
		return false
	case <-ctx.Done():
		return false
	}
}

// bootstrap joins or launches the bootstrap flight of the current
// generation.
func (e *Engine) bootstrap() <-chan singleflight.Result {
	gen := e.generation.Load()
	key := phaseBootstrap + ":" + strconv.FormatUint(gen, 10)

	return e.group.DoChan(key, func() (interface{}, error) {
		if e.State() == Ready {
			return nil, nil
		}
		e.state.CompareAndSwap(int32(Unbootstrapped), int32(Bootstrapping))
		e.logger.WithField("providers", len(e.providers)).Debug("bootstrap started")

		ctx, span := e.telemetry.StartSpan(e.ctx, "flagship.bootstrap",
			telemetry.WithAttributes(telemetry.Int("providers", len(e.providers))),
		)
		defer span.End()

		// The cache is read alongside the fetch so a provider that hangs
		// until its timeout still has its last snapshot served meanwhile.
		var wg sync.WaitGroup
		for _, p := range e.providers {
			wg.Add(2)
			go func(p provider.Provider) {
				defer wg.Done()
				e.fetch(ctx, p, phaseBootstrap, gen)
			}(p)
			go func(name string) {
				defer wg.Done()
				loadCtx, cancel := e.fetchContext(ctx)
				defer cancel()
				e.restore(loadCtx, name, gen)
			}(p.Name())
		}
		wg.Wait()

		var ready bool
		e.install(gen, func() {
			ready = e.state.CompareAndSwap(int32(Bootstrapping), int32(Ready))
		})
		if ready {
			e.markBootstrapped()
		}
		return nil, nil
	})
}

func (e *Engine) markBootstrapped() {
	now := e.now()
	e.lastBootstrap.Store(&now)
	e.recordHealth(e.ctx)

	e.logger.WithField("live", e.snapshots.HasLive()).Info("bootstrap complete")
	e.bus.SnapshotUpdated(domain.UpdateBootstrap)
}

// fetch runs one provider call and installs the outcome. Results from a
// generation dropped by Reset are discarded.
func (e *Engine) fetch(ctx context.Context, p provider.Provider, phase string, gen uint64) {
	name := p.Name()
	log := e.logger.WithFields(logrus.Fields{"provider": name, "phase": phase})

	ctx, span := e.telemetry.StartSpan(ctx, "flagship.fetch",
		telemetry.WithAttributes(
			telemetry.String("provider", name),
			telemetry.String("phase", phase),
		),
	)
	defer span.End()

	fetchCtx, cancel := e.fetchContext(ctx)
	start := e.now()

	var snap *domain.Snapshot
	var err error
	if phase == phaseBootstrap {
		snap, err = p.Bootstrap(fetchCtx)
	} else {
		snap, err = p.Refresh(fetchCtx)
	}
	cancel()

	if err == nil && snap == nil {
		err = domain.NewProviderError(name, errors.New("provider returned no snapshot"))
	}
	if err == nil {
		if verr := snap.Validate(); verr != nil {
			err = domain.NewParseError(name, verr)
		}
	}

	elapsed := e.now().Sub(start)
	e.telemetry.RecordFetch(ctx, name, phase, err == nil, elapsed)

	if err != nil {
		if !e.install(gen, func() { e.snapshots.RecordFailure(name, err, e.now()) }) {
			return
		}
		span.RecordError(err)
		log.WithError(err).Warn("provider fetch failed")
		if phase == phaseRefresh {
			e.restore(ctx, name, gen)
		}
		return
	}

	if !e.install(gen, func() { e.snapshots.SetLive(name, snap, e.now()) }) {
		return
	}
	log.WithFields(logrus.Fields{
		"revision": snap.Revision,
		"flags":    len(snap.Flags),
		"duration": elapsed,
	}).Debug("snapshot installed")

	if err := e.cache.Save(ctx, name, snap); err != nil {
		e.cacheFailed(ctx, "save", name, err)
	}
}

// restore installs the cached snapshot for a provider with nothing to
// serve.
func (e *Engine) restore(ctx context.Context, name string, gen uint64) {
	slot, ok := e.snapshots.Slot(name)
	if !ok || slot.Live != nil || slot.Cached != nil {
		return
	}

	snap, err := e.cache.Load(ctx, name)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			e.cacheFailed(ctx, "load", name, err)
		}
		return
	}

	var installed bool
	e.install(gen, func() {
		if slot, ok := e.snapshots.Slot(name); ok && slot.Live == nil && slot.Cached == nil {
			installed = e.snapshots.SetCached(name, snap)
		}
	})
	if !installed {
		return
	}
	e.logger.WithFields(logrus.Fields{
		"provider": name,
		"revision": snap.Revision,
	}).Info("serving cached snapshot")
}

// install runs fn unless Reset has moved past gen. Reset waits for a
// running fn, so nothing from a dropped generation lands after it.
func (e *Engine) install(gen uint64, fn func()) bool {
	e.installMu.RLock()
	defer e.installMu.RUnlock()

	if e.generation.Load() != gen {
		return false
	}
	fn()
	return true
}

func (e *Engine) cacheFailed(ctx context.Context, op, name string, err error) {
	if !domain.IsCacheError(err) {
		err = domain.NewCacheError(op, name, err)
	}
	e.telemetry.RecordCacheError(ctx, op)
	e.logger.WithFields(logrus.Fields{
		"provider": name,
		"op":       op,
		"error":    err,
	}).Warn("snapshot cache failed")
}

func (e *Engine) fetchContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.config.ProviderTimeout > 0 {
		return context.WithTimeout(ctx, e.config.ProviderTimeout)
	}
	return context.WithCancel(ctx)
}

func (e *Engine) recordHealth(ctx context.Context) {
	healthy := 0
	for _, p := range e.providers {
		if p.IsHealthy() {
			healthy++
		}
	}
	e.telemetry.RecordHealthyProviders(ctx, healthy)
}

// Reset drops every snapshot and returns to Unbootstrapped. In-flight
// fetches finish but their results are discarded.
func (e *Engine) Reset() {
	e.installMu.Lock()
	e.generation.Add(1)
	e.snapshots.Reset()
	e.state.Store(int32(Unbootstrapped))
	e.lastBootstrap.Store(nil)
	e.lastRefresh.Store(nil)
	e.installMu.Unlock()

	e.logger.Debug("engine reset")
}

// Stats describes the engine for introspection.
type Stats struct {
	State         State
	Refreshing    bool
	LastBootstrap time.Time
	LastRefresh   time.Time
	Providers     []provider.Status
}

// Stats returns current engine stats.
func (e *Engine) Stats() Stats {
	s := Stats{
		State:      e.State(),
		Refreshing: e.IsRefreshing(),
		Providers:  make([]provider.Status, 0, len(e.providers)),
	}
	if t := e.lastBootstrap.Load(); t != nil {
		s.LastBootstrap = *t
	}
	if t := e.lastRefresh.Load(); t != nil {
		s.LastRefresh = *t
	}
	for _, p := range e.providers {
		s.Providers = append(s.Providers, provider.StatusOf(p))
	}
	return s
}
