package storage

import (
	"context"
	"sync"

	"github.com/dgraph-io/ristretto"

	"github.com/OrlandoBitencourt/flagship/pkg/domain"
)

// MemoryCache keeps snapshots in a Ristretto cache. Each snapshot costs 1,
// so MaxCost is the number of providers that can be held.
type MemoryCache struct {
	cache *ristretto.Cache
	cfg   Config

	// ristretto has no key enumeration, ClearAll uses this set
	mu   sync.Mutex
	keys map[string]struct{}
}

// NewMemoryCache creates a new in-memory cache
func NewMemoryCache(cfg Config) (*MemoryCache, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: cfg.BufferItems,
		Metrics:     cfg.MetricsEnabled,

		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, err
	}

	return &MemoryCache{
		cache: cache,
		cfg:   cfg,
		keys:  make(map[string]struct{}),
	}, nil
}

func (m *MemoryCache) Save(ctx context.Context, provider string, snap *domain.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var ok bool
	if m.cfg.TTL > 0 {
		ok = m.cache.SetWithTTL(provider, snap, 1, m.cfg.TTL)
	} else {
		ok = m.cache.Set(provider, snap, 1)
	}
	if !ok {
		return domain.NewCacheError("save", provider, errSetDropped)
	}

	// make the write visible to the next Load
	m.cache.Wait()

	m.mu.Lock()
	m.keys[provider] = struct{}{}
	m.mu.Unlock()
	return nil
}

func (m *MemoryCache) Load(ctx context.Context, provider string) (*domain.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	value, found := m.cache.Get(provider)
	if !found {
		return nil, ErrNotFound
	}

	snap, ok := value.(*domain.Snapshot)
	if !ok {
		return nil, ErrNotFound
	}
	return snap, nil
}

func (m *MemoryCache) Clear(ctx context.Context, provider string) error {
	m.cache.Del(provider)

	m.mu.Lock()
	delete(m.keys, provider)
	m.mu.Unlock()
	return nil
}

func (m *MemoryCache) ClearAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cache.Clear()
	m.keys = make(map[string]struct{})
	return nil
}

// Providers lists the names saved since the last ClearAll.
func (m *MemoryCache) Providers() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, 0, len(m.keys))
	for k := range m.keys {
		names = append(names, k)
	}
	return names
}

// Metrics returns cache metrics. All counters are zero unless
// MetricsEnabled was set.
func (m *MemoryCache) Metrics() Metrics {
	rm := m.cache.Metrics
	if rm == nil {
		return Metrics{}
	}

	return Metrics{
		Hits:        rm.Hits(),
		Misses:      rm.Misses(),
		KeysAdded:   rm.KeysAdded(),
		KeysUpdated: rm.KeysUpdated(),
		KeysEvicted: rm.KeysEvicted(),
		SetsDropped: rm.SetsDropped(),
		HitRatio:    rm.Ratio(),
	}
}

// Close stops the cache's background goroutines
func (m *MemoryCache) Close() {
	m.cache.Close()
}
