// Package flagship evaluates feature flags and experiments from an ordered
// list of providers, with local overrides, snapshot caching and
// deterministic bucketing.
package flagship

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/OrlandoBitencourt/flagship/internal/engine"
	"github.com/OrlandoBitencourt/flagship/internal/evaluator"
	"github.com/OrlandoBitencourt/flagship/internal/listener"
	"github.com/OrlandoBitencourt/flagship/internal/override"
	"github.com/OrlandoBitencourt/flagship/internal/server"
	"github.com/OrlandoBitencourt/flagship/internal/snapshot"
	"github.com/OrlandoBitencourt/flagship/pkg/domain"
	"github.com/OrlandoBitencourt/flagship/pkg/storage"
	"github.com/OrlandoBitencourt/flagship/pkg/telemetry"
)

const (
	preloadConcurrency = 8
	shutdownTimeout    = 5 * time.Second
)

// Client is the main entry point for flagship.
// It is safe for concurrent use; reads never block on writers.
type Client struct {
	config    Config
	logger    logrus.FieldLogger
	telemetry telemetry.Provider
	cache     storage.Cache

	snapshots *snapshot.Store
	overrides *override.Store
	bus       *listener.Bus
	engine    *engine.Engine
	resolver  *evaluator.Resolver
	assigner  *evaluator.Assigner

	defaultContext atomic.Pointer[domain.Context]

	// Server configurations
	webhookEnabled bool
	webhookAddr    string
	adminEnabled   bool
	adminAddr      string

	mu      sync.Mutex
	servers []*http.Server
}

// New creates a new flagship client with the given options. It performs no
// I/O; call Start or EnsureBootstrap to fetch snapshots.
//
// Example:
//
//	client, err := flagship.New(
//	    flagship.WithAppKey("checkout"),
//	    flagship.WithProviders(provider.NewFileProvider("flags.yaml")),
//	    flagship.WithCache(diskCache),
//	)
func New(opts ...Option) (*Client, error) {
	cfg := defaultClientConfig()

	// Apply options
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.config.AppKey == "" {
		return nil, domain.NewConfigurationError("AppKey", "app key must not be empty")
	}
	if err := cfg.config.Validate(); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(cfg.providers))
	seen := make(map[string]bool, len(cfg.providers))
	for _, p := range cfg.providers {
		name := p.Name()
		if name == "" {
			return nil, domain.NewConfigurationError("providers", "provider name must not be empty")
		}
		if seen[name] {
			return nil, domain.NewConfigurationError("providers", fmt.Sprintf("duplicate provider name %q", name))
		}
		seen[name] = true
		names = append(names, name)
	}

	if cfg.logger == nil {
		cfg.logger = cfg.defaultLogger()
	}
	if cfg.telemetry == nil {
		cfg.telemetry = telemetry.NewNoOp()
	}
	if cfg.cache == nil {
		cfg.cache = storage.Noop{}
	}
	if cfg.now == nil {
		cfg.now = time.Now
	}

	c := &Client{
		config:         cfg.config,
		logger:         cfg.logger,
		telemetry:      cfg.telemetry,
		cache:          cfg.cache,
		snapshots:      snapshot.New(names),
		bus:            listener.New(cfg.logger),
		webhookEnabled: cfg.webhookEnabled,
		webhookAddr:    cfg.webhookAddr,
		adminEnabled:   cfg.adminEnabled,
		adminAddr:      cfg.adminAddr,
	}
	c.defaultContext.Store(&cfg.defaultContext)
	c.overrides = override.New(cfg.now, c.bus.OverrideChanged)

	eng, err := engine.New(cfg.providers, c.snapshots,
		engine.WithConfig(engine.Config{
			InitialTimeout:  cfg.config.InitialTimeout,
			RefreshInterval: cfg.config.RefreshInterval,
			ProviderTimeout: cfg.config.ProviderTimeout,
		}),
		engine.WithCache(cfg.cache),
		engine.WithBus(c.bus),
		engine.WithTelemetry(cfg.telemetry),
		engine.WithLogger(cfg.logger),
		engine.WithClock(cfg.now),
	)
	if err != nil {
		return nil, domain.NewConfigurationError("engine", err.Error())
	}
	c.engine = eng

	evalCfg := evaluator.Config{
		Overrides: c.overrides,
		Snapshots: c.snapshots,
		Providers: cfg.providers,
		Now:       cfg.now,
		OnStale:   eng.OnStale,
		Logger:    cfg.logger,
	}
	c.resolver = evaluator.NewResolver(evalCfg)
	c.assigner = evaluator.NewAssigner(evalCfg)

	return c, nil
}

// Start begins background refresh and provider watches, then blocks until
// bootstrap settles when AwaitBootstrap is set. A bootstrap that does not
// settle within InitialTimeout is not an error: the client keeps serving
// defaults and cached snapshots while it completes.
func (c *Client) Start(ctx context.Context) error {
	if err := c.engine.Start(ctx); err != nil {
		return err
	}

	if c.config.AwaitBootstrap {
		c.engine.EnsureBootstrap(ctx, c.config.InitialTimeout)
	}

	// Start optional servers
	if c.webhookEnabled {
		c.serve("webhook", c.webhookAddr, c.WebhookHandler(c.config.WebhookSecret))
	}
	if c.adminEnabled {
		c.serve("admin", c.adminAddr, c.AdminHandler())
	}

	c.logger.WithFields(logrus.Fields{
		"environment": c.config.Environment,
		"state":       c.engine.State(),
	}).Info("client started")
	return nil
}

// Stop shuts down background work and any servers started by Start. It is
// safe to call more than once.
func (c *Client) Stop() error {
	c.mu.Lock()
	servers := c.servers
	c.servers = nil
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var firstErr error
	for _, srv := range servers {
		if err := srv.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	c.engine.Stop()
	return firstErr
}

func (c *Client) serve(name, addr string, handler http.Handler) {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	c.mu.Lock()
	c.servers = append(c.servers, srv)
	c.mu.Unlock()

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			c.logger.WithError(err).WithField("server", name).Error("server stopped")
		}
	}()
}

// EnsureBootstrap bootstraps every provider once and waits up to timeout
// (InitialTimeout when non-positive). It reports whether bootstrap settled;
// a false result never cancels the fetches.
func (c *Client) EnsureBootstrap(ctx context.Context, timeout time.Duration) bool {
	return c.engine.EnsureBootstrap(ctx, timeout)
}

// Refresh re-fetches stale providers, or all of them when force is set, in
// the background.
func (c *Client) Refresh(force bool) {
	c.engine.Refresh(force)
}

// RefreshAndWait is Refresh that waits for the cycle to finish.
func (c *Client) RefreshAndWait(ctx context.Context, force bool) error {
	return c.engine.RefreshAndWait(ctx, force)
}

// RefreshProviders force-refreshes the named providers in the background.
// Unknown names are ignored; no names means all providers.
func (c *Client) RefreshProviders(names ...string) {
	c.engine.RefreshProviders(names...)
}

// Reset drops every snapshot and override and returns to Unbootstrapped.
func (c *Client) Reset() {
	c.engine.Reset()
	c.overrides.ClearAll()
}

// State returns the bootstrap lifecycle state.
func (c *Client) State() State {
	return c.engine.State()
}

// SetDefaultContext replaces the evaluation context used when a call passes
// none.
func (c *Client) SetDefaultContext(evalCtx Context) {
	c.defaultContext.Store(&evalCtx)
}

// contextFor picks the evaluation context: explicit argument, then the one
// stored by the HTTP middleware, then the default.
func (c *Client) contextFor(ctx context.Context, evalCtx []Context) domain.Context {
	if len(evalCtx) > 0 {
		return evalCtx[0]
	}
	if fromReq, ok := server.ContextFrom(ctx); ok {
		return fromReq
	}
	return *c.defaultContext.Load()
}

func (c *Client) await(ctx context.Context) {
	if c.config.AwaitBootstrap && c.engine.State() != engine.Ready {
		c.engine.EnsureBootstrap(ctx, c.config.InitialTimeout)
	}
}

// lookup resolves key for the context-taking accessors.
func (c *Client) lookup(ctx context.Context, key string, evalCtx []Context) (evaluator.Resolution, bool) {
	c.await(ctx)
	res, ok := c.resolver.ResolveFor(ctx, key, c.contextFor(ctx, evalCtx))
	c.recordEvaluation(ctx, key, res, ok)
	return res, ok
}

// lookupSync resolves key for the Sync accessors.
func (c *Client) lookupSync(op, key string) (evaluator.Resolution, bool, error) {
	if state := c.engine.State(); state != engine.Ready {
		return evaluator.Resolution{}, false, domain.NewIllegalStateError(op, state.String())
	}
	res, ok := c.resolver.Resolve(key)
	c.recordEvaluation(context.Background(), key, res, ok)
	return res, ok, nil
}

func (c *Client) recordEvaluation(ctx context.Context, key string, res evaluator.Resolution, ok bool) {
	source := domain.SourceDefault
	if ok {
		source = res.Source
	}
	c.telemetry.RecordEvaluation(ctx, key, source.String())
}

// typed extracts a kind from a resolution without coercion.
func typed[T any](res evaluator.Resolution, ok bool, as func(domain.Value) (T, bool), def T) T {
	if !ok {
		return def
	}
	if v, match := as(res.Value); match {
		return v
	}
	return def
}

// typedOrError is typed with the failure reason kept.
func typedOrError[T any](key string, want domain.Kind, res evaluator.Resolution, ok bool, as func(domain.Value) (T, bool)) Result[T] {
	if key == "" {
		return Fail[T](domain.NewValidationError("flag key must not be empty"))
	}
	if !ok {
		return Fail[T](domain.NewNotFoundError("flag", key))
	}
	v, match := as(res.Value)
	if !match {
		return Fail[T](domain.NewTypeMismatchError(key, want, res.Value.Kind()))
	}
	return Ok(v)
}

// Bool returns the Bool value of key, or def when the key is missing or
// holds another kind.
//
// Example:
//
//	enabled := client.Bool(ctx, "new-checkout", false, flagship.NewContext("user-123"))
func (c *Client) Bool(ctx context.Context, key string, def bool, evalCtx ...Context) bool {
	res, ok := c.lookup(ctx, key, evalCtx)
	return typed(res, ok, domain.Value.AsBool, def)
}

// IsEnabled is Bool.
func (c *Client) IsEnabled(ctx context.Context, key string, def bool, evalCtx ...Context) bool {
	return c.Bool(ctx, key, def, evalCtx...)
}

// Int returns the Int value of key, or def.
func (c *Client) Int(ctx context.Context, key string, def int64, evalCtx ...Context) int64 {
	res, ok := c.lookup(ctx, key, evalCtx)
	return typed(res, ok, domain.Value.AsInt, def)
}

// Double returns the Double value of key, or def.
func (c *Client) Double(ctx context.Context, key string, def float64, evalCtx ...Context) float64 {
	res, ok := c.lookup(ctx, key, evalCtx)
	return typed(res, ok, domain.Value.AsDouble, def)
}

// String returns the String value of key, or def.
func (c *Client) String(ctx context.Context, key string, def string, evalCtx ...Context) string {
	res, ok := c.lookup(ctx, key, evalCtx)
	return typed(res, ok, domain.Value.AsString, def)
}

// JSON returns the JSON value of key, or def.
func (c *Client) JSON(ctx context.Context, key string, def json.RawMessage, evalCtx ...Context) json.RawMessage {
	res, ok := c.lookup(ctx, key, evalCtx)
	return typed(res, ok, domain.Value.AsJSON, def)
}

// Value returns the resolved value of key whatever its kind. ok is false
// when nothing resolves it.
func (c *Client) Value(ctx context.Context, key string, evalCtx ...Context) (Value, bool) {
	res, ok := c.lookup(ctx, key, evalCtx)
	if !ok {
		return Value{}, false
	}
	return res.Value, true
}

// BoolSync returns the Bool value of key without waiting. It fails with an
// IllegalStateError before bootstrap completes.
func (c *Client) BoolSync(key string, def bool) (bool, error) {
	res, ok, err := c.lookupSync("BoolSync", key)
	if err != nil {
		return def, err
	}
	return typed(res, ok, domain.Value.AsBool, def), nil
}

// IsEnabledSync is BoolSync.
func (c *Client) IsEnabledSync(key string, def bool) (bool, error) {
	res, ok, err := c.lookupSync("IsEnabledSync", key)
	if err != nil {
		return def, err
	}
	return typed(res, ok, domain.Value.AsBool, def), nil
}

// IntSync returns the Int value of key without waiting.
func (c *Client) IntSync(key string, def int64) (int64, error) {
	res, ok, err := c.lookupSync("IntSync", key)
	if err != nil {
		return def, err
	}
	return typed(res, ok, domain.Value.AsInt, def), nil
}

// DoubleSync returns the Double value of key without waiting.
func (c *Client) DoubleSync(key string, def float64) (float64, error) {
	res, ok, err := c.lookupSync("DoubleSync", key)
	if err != nil {
		return def, err
	}
	return typed(res, ok, domain.Value.AsDouble, def), nil
}

// StringSync returns the String value of key without waiting.
func (c *Client) StringSync(key string, def string) (string, error) {
	res, ok, err := c.lookupSync("StringSync", key)
	if err != nil {
		return def, err
	}
	return typed(res, ok, domain.Value.AsString, def), nil
}

// JSONSync returns the JSON value of key without waiting.
func (c *Client) JSONSync(key string, def json.RawMessage) (json.RawMessage, error) {
	res, ok, err := c.lookupSync("JSONSync", key)
	if err != nil {
		return def, err
	}
	return typed(res, ok, domain.Value.AsJSON, def), nil
}

// BoolOrError returns the Bool value of key, or why there is none.
//
// Example:
//
//	client.BoolOrError(ctx, "new-checkout").
//	    OnFailure(func(err error) { log.Warn(err) }).
//	    GetOrElse(false)
func (c *Client) BoolOrError(ctx context.Context, key string, evalCtx ...Context) Result[bool] {
	res, ok := c.lookup(ctx, key, evalCtx)
	return typedOrError(key, domain.KindBool, res, ok, domain.Value.AsBool)
}

// IntOrError returns the Int value of key, or why there is none.
func (c *Client) IntOrError(ctx context.Context, key string, evalCtx ...Context) Result[int64] {
	res, ok := c.lookup(ctx, key, evalCtx)
	return typedOrError(key, domain.KindInt, res, ok, domain.Value.AsInt)
}

// DoubleOrError returns the Double value of key, or why there is none.
func (c *Client) DoubleOrError(ctx context.Context, key string, evalCtx ...Context) Result[float64] {
	res, ok := c.lookup(ctx, key, evalCtx)
	return typedOrError(key, domain.KindDouble, res, ok, domain.Value.AsDouble)
}

// StringOrError returns the String value of key, or why there is none.
func (c *Client) StringOrError(ctx context.Context, key string, evalCtx ...Context) Result[string] {
	res, ok := c.lookup(ctx, key, evalCtx)
	return typedOrError(key, domain.KindString, res, ok, domain.Value.AsString)
}

// JSONOrError returns the JSON value of key, or why there is none.
func (c *Client) JSONOrError(ctx context.Context, key string, evalCtx ...Context) Result[json.RawMessage] {
	res, ok := c.lookup(ctx, key, evalCtx)
	return typedOrError(key, domain.KindJSON, res, ok, domain.Value.AsJSON)
}

// Assign buckets the evaluation context into experiment key. It returns nil
// when the experiment is unknown, targeting excludes the context, the
// context has no bucketing identifier, or no variant carries weight.
// Overrides never apply to experiments.
func (c *Client) Assign(ctx context.Context, key string, evalCtx ...Context) *Assignment {
	c.await(ctx)

	assignment := c.assigner.Assign(ctx, key, c.contextFor(ctx, evalCtx))
	if assignment != nil {
		c.telemetry.RecordAssignment(ctx, key, assignment.Variant)
	}
	return assignment
}

// AssignOrError is Assign with the reason for a missing assignment.
func (c *Client) AssignOrError(ctx context.Context, key string, evalCtx ...Context) Result[*Assignment] {
	if key == "" {
		return Fail[*Assignment](domain.NewValidationError("experiment key must not be empty"))
	}

	c.await(ctx)
	resolved := c.contextFor(ctx, evalCtx)

	exp, ok := c.assigner.Definition(key)
	if !ok {
		if assignment := c.assigner.Assign(ctx, key, resolved); assignment != nil {
			c.telemetry.RecordAssignment(ctx, key, assignment.Variant)
			return Ok(assignment)
		}
		return Fail[*Assignment](domain.NewNotFoundError("experiment", key))
	}

	assignment := c.assigner.Evaluate(exp, resolved)
	if assignment == nil {
		return Fail[*Assignment](domain.NewNotFoundError("assignment", key))
	}
	c.telemetry.RecordAssignment(ctx, key, assignment.Variant)
	return Ok(assignment)
}

// SetOverride pins key to value for every subsequent read until cleared.
// Listeners are notified before it returns.
func (c *Client) SetOverride(key string, value Value) error {
	if err := c.overrides.Set(key, value); err != nil {
		return err
	}
	c.logger.WithFields(logrus.Fields{"key": key, "kind": value.Kind()}).Debug("override set")
	return nil
}

// ClearOverride removes the override for key. It reports whether one existed.
func (c *Client) ClearOverride(key string) bool {
	return c.overrides.Clear(key)
}

// ClearOverrides removes every override.
func (c *Client) ClearOverrides() {
	c.overrides.ClearAll()
}

// ListOverrides returns a copy of the current overrides.
func (c *Client) ListOverrides() map[string]Value {
	entries := c.overrides.List()
	out := make(map[string]Value, len(entries))
	for key, e := range entries {
		out[key] = e.Value
	}
	return out
}

// AddListener registers l for snapshot and override notifications.
func (c *Client) AddListener(l Listener) ListenerID {
	return c.bus.Add(l)
}

// RemoveListener unregisters a listener. It reports whether it was
// registered.
func (c *Client) RemoveListener(id ListenerID) bool {
	return c.bus.Remove(id)
}

// FlagStatus describes how key currently resolves.
func (c *Client) FlagStatus(key string) FlagStatus {
	return c.resolver.Status(key)
}

// ProviderStatuses returns the health of every provider in order.
func (c *Client) ProviderStatuses() []ProviderStatus {
	return c.engine.Stats().Providers
}

// Metrics returns a point-in-time view of the client.
func (c *Client) Metrics() Metrics {
	stats := c.engine.Stats()

	m := Metrics{
		State:      stats.State,
		Refreshing: stats.Refreshing,
		Providers:  stats.Providers,
		Overrides:  c.overrides.Len(),
		Listeners:  c.bus.Len(),
	}
	if !stats.LastBootstrap.IsZero() {
		m.LastBootstrap = stats.LastBootstrap.Format(time.RFC3339)
	}
	if !stats.LastRefresh.IsZero() {
		m.LastRefresh = stats.LastRefresh.Format(time.RFC3339)
	}
	if reporter, ok := c.cache.(interface{ Metrics() storage.Metrics }); ok {
		cm := reporter.Metrics()
		m.Cache = &cm
	}
	return m
}

// Preload bootstraps and resolves keys so later reads are served from
// memory. It is best effort and returns how many keys resolved.
func (c *Client) Preload(ctx context.Context, keys []string) int {
	return c.preload(ctx, keys, c.contextFor(ctx, nil))
}

// PreloadForUser is Preload with provider hooks evaluated for userID.
func (c *Client) PreloadForUser(ctx context.Context, userID string, keys []string) int {
	evalCtx := c.contextFor(ctx, nil).WithUserID(userID)
	return c.preload(ctx, keys, evalCtx)
}

func (c *Client) preload(ctx context.Context, keys []string, evalCtx domain.Context) int {
	if c.engine.State() != engine.Ready {
		c.engine.EnsureBootstrap(ctx, c.config.InitialTimeout)
	}

	var resolved atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(preloadConcurrency)
	for _, key := range keys {
		key := key
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			if _, ok := c.resolver.ResolveFor(gctx, key, evalCtx); ok {
				resolved.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	n := int(resolved.Load())
	c.logger.WithFields(logrus.Fields{"keys": len(keys), "resolved": n}).Debug("preload complete")
	return n
}

// Providers returns the configured providers in order.
func (c *Client) Providers() []Provider {
	return c.engine.Providers()
}
