package storage

import (
	"context"
	"sync"

	"github.com/OrlandoBitencourt/flagship/pkg/domain"
)

// MockCache is a map-backed Cache for testing with overridable behaviors.
type MockCache struct {
	mu        sync.RWMutex
	snapshots map[string]*domain.Snapshot

	// Mock behaviors
	SaveFunc     func(ctx context.Context, provider string, snap *domain.Snapshot) error
	LoadFunc     func(ctx context.Context, provider string) (*domain.Snapshot, error)
	ClearFunc    func(ctx context.Context, provider string) error
	ClearAllFunc func(ctx context.Context) error

	// Call tracking
	saveCalls     int
	loadCalls     int
	clearCalls    int
	clearAllCalls int
}

// NewMockCache creates a new mock cache
func NewMockCache() *MockCache {
	return &MockCache{snapshots: make(map[string]*domain.Snapshot)}
}

// Put stores a snapshot without tracking.
func (m *MockCache) Put(provider string, snap *domain.Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[provider] = snap
}

// Snapshot reads a stored snapshot without tracking.
func (m *MockCache) Snapshot(provider string) *domain.Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshots[provider]
}

func (m *MockCache) Save(ctx context.Context, provider string, snap *domain.Snapshot) error {
	m.mu.Lock()
	m.saveCalls++
	fn := m.SaveFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, provider, snap)
	}

	m.Put(provider, snap)
	return nil
}

func (m *MockCache) Load(ctx context.Context, provider string) (*domain.Snapshot, error) {
	m.mu.Lock()
	m.loadCalls++
	fn := m.LoadFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, provider)
	}

	if snap := m.Snapshot(provider); snap != nil {
		return snap, nil
	}
	return nil, ErrNotFound
}

func (m *MockCache) Clear(ctx context.Context, provider string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.clearCalls++
	if m.ClearFunc != nil {
		return m.ClearFunc(ctx, provider)
	}

	delete(m.snapshots, provider)
	return nil
}

func (m *MockCache) ClearAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.clearAllCalls++
	if m.ClearAllFunc != nil {
		return m.ClearAllFunc(ctx)
	}

	m.snapshots = make(map[string]*domain.Snapshot)
	return nil
}

// AssertCalled asserts methods were called expected times
func (m *MockCache) AssertCalled(t interface{ Errorf(string, ...interface{}) }, method string, expected int) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var actual int
	switch method {
	case "Save":
		actual = m.saveCalls
	case "Load":
		actual = m.loadCalls
	case "Clear":
		actual = m.clearCalls
	case "ClearAll":
		actual = m.clearAllCalls
	default:
		t.Errorf("unknown method: %s", method)
		return
	}

	if actual != expected {
		t.Errorf("%s called %d times, expected %d", method, actual, expected)
	}
}
