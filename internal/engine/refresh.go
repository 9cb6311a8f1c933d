package engine

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/OrlandoBitencourt/flagship/pkg/domain"
	"github.com/OrlandoBitencourt/flagship/pkg/provider"
)

// Refresh launches a background refresh and returns at once. Without force
// only providers with no live snapshot or a stale one are fetched. Before
// Ready it launches bootstrap instead.
func (e *Engine) Refresh(force bool) {
	if e.State() != Ready {
		e.spawn(func() { <-e.bootstrap() })
		return
	}
	e.spawn(func() { <-e.refresh(e.due(force)) })
}

// RefreshAndWait is Refresh that blocks until the cycle completes or ctx
// is done.
func (e *Engine) RefreshAndWait(ctx context.Context, force bool) error {
	if e.State() != Ready {
		deadline := e.config.InitialTimeout
		if d, ok := ctx.Deadline(); ok {
			deadline = time.Until(d)
		}
		if !e.EnsureBootstrap(ctx, deadline) {
			if err := ctx.Err(); err != nil {
				return err
			}
			return ErrBootstrapTimeout
		}
		return nil
	}

	select {
	case <-e.refresh(e.due(force)):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RefreshProviders force-refreshes the named providers in the background.
// Unknown names are ignored; an empty list refreshes every provider.
func (e *Engine) RefreshProviders(names ...string) {
	if len(names) == 0 {
		e.Refresh(true)
		return
	}
	if e.State() != Ready {
		e.Refresh(true)
		return
	}

	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	var selected []provider.Provider
	for _, p := range e.providers {
		if want[p.Name()] {
			selected = append(selected, p)
		}
	}
	e.spawn(func() { <-e.refresh(selected) })
}

// OnStale is called when a read was served from a stale snapshot. It
// refreshes that provider in the background unless one is already pending.
func (e *Engine) OnStale(name string) {
	if e.State() != Ready {
		return
	}
	pending, ok := e.stale[name]
	if !ok || !pending.CompareAndSwap(false, true) {
		return
	}

	var target provider.Provider
	for _, p := range e.providers {
		if p.Name() == name {
			target = p
			break
		}
	}

	e.logger.WithField("provider", name).Debug("stale snapshot served, refreshing")
	if !e.spawn(func() {
		defer pending.Store(false)
		<-e.refresh([]provider.Provider{target})
	}) {
		pending.Store(false)
	}
}

// due returns the providers a refresh cycle should fetch.
func (e *Engine) due(force bool) []provider.Provider {
	if force {
		return e.providers
	}

	now := e.now()
	var out []provider.Provider
	for _, p := range e.providers {
		slot, ok := e.snapshots.Slot(p.Name())
		if !ok {
			continue
		}
		if slot.Live == nil || !slot.Live.IsFresh(now) {
			out = append(out, p)
		}
	}
	return out
}

// refresh runs one cycle over providers. Concurrent cycles share in-flight
// fetches per provider. Listeners hear about every cycle that fetched.
func (e *Engine) refresh(providers []provider.Provider) <-chan struct{} {
	done := make(chan struct{})
	if len(providers) == 0 {
		close(done)
		return done
	}

	gen := e.generation.Load()
	e.refreshing.Add(1)

	ctx, span := e.telemetry.StartSpan(e.ctx, "flagship.refresh")

	pending := make([]<-chan singleflight.Result, 0, len(providers))
	for _, p := range providers {
		p := p
		pending = append(pending, e.group.DoChan(phaseRefresh+":"+p.Name(), func() (interface{}, error) {
			e.fetch(ctx, p, phaseRefresh, gen)
			return nil, nil
		}))
	}

	go func() {
		defer close(done)
		defer span.End()
		defer e.refreshing.Add(-1)

		for _, ch := range pending {
			<-ch
		}
		if e.generation.Load() != gen {
			return
		}

		now := e.now()
		e.lastRefresh.Store(&now)
		e.recordHealth(ctx)

		e.logger.WithField("providers", len(providers)).Debug("refresh complete")
		e.bus.SnapshotUpdated(domain.UpdateRefresh)
	}()

	return done
}

// spawn runs fn on a goroutine tracked by Stop. It reports false once the
// engine is stopped.
func (e *Engine) spawn(fn func()) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stopped {
		return false
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		fn()
	}()
	return true
}

// Start launches bootstrap, the periodic refresh loop and provider
// watchers. The background work stops when ctx is done or on Stop.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return ErrStopped
	}
	if e.started {
		e.mu.Unlock()
		return nil
	}
	e.started = true
	e.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	context.AfterFunc(e.ctx, cancel)

	if e.State() != Ready {
		e.Refresh(false)
	}

	if e.config.RefreshInterval > 0 {
		e.spawn(func() { e.refreshLoop(runCtx) })
	}

	for _, p := range e.providers {
		w, ok := p.(provider.Watcher)
		if !ok {
			continue
		}
		name := p.Name()
		e.spawn(func() { e.watch(runCtx, name, w) })
	}

	return nil
}

// refreshLoop runs the periodic refresh in background
func (e *Engine) refreshLoop(ctx context.Context) {
	ticker := time.NewTicker(e.config.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			if e.State() != Ready {
				<-e.bootstrap()
				continue
			}
			<-e.refresh(e.due(false))
		}
	}
}

func (e *Engine) watch(ctx context.Context, name string, w provider.Watcher) {
	log := e.logger.WithField("provider", name)
	log.Debug("watching provider for changes")

	err := w.Watch(ctx, func() {
		log.Debug("provider reported a change")
		e.RefreshProviders(name)
	})
	if err != nil && ctx.Err() == nil {
		log.WithFields(logrus.Fields{"error": err}).Warn("provider watch stopped")
	}
}

// Stop cancels background work and in-flight fetches and waits for tracked
// goroutines to exit.
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	e.stopped = true
	e.mu.Unlock()

	e.cancel()
	e.wg.Wait()
	e.logger.Debug("engine stopped")
}
