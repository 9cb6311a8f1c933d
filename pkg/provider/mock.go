package provider

import (
	"context"
	"sync"
	"time"

	"github.com/OrlandoBitencourt/flagship/pkg/domain"
)

// Mock is a configurable Provider for tests. Unset funcs fall back to
// serving the snapshot given to SetSnapshot.
type Mock struct {
	*Health

	mu sync.RWMutex

	name string
	snap *domain.Snapshot

	// Mock behaviors
	BootstrapFunc          func(ctx context.Context) (*domain.Snapshot, error)
	RefreshFunc            func(ctx context.Context) (*domain.Snapshot, error)
	EvaluateFlagFunc       func(ctx context.Context, key string, evalCtx domain.Context) (domain.Value, bool, error)
	EvaluateExperimentFunc func(ctx context.Context, key string, evalCtx domain.Context) (*domain.Assignment, error)

	// Call tracking
	bootstrapCalls          int
	refreshCalls            int
	evaluateFlagCalls       int
	evaluateExperimentCalls int
}

// NewMock creates a mock provider serving an empty snapshot.
func NewMock(name string) *Mock {
	return &Mock{
		Health: DefaultHealth(),
		name:   name,
		snap:   domain.NewSnapshot(nil, nil),
	}
}

func (m *Mock) Name() string { return m.name }

// SetSnapshot sets the snapshot served by the default behaviors.
func (m *Mock) SetSnapshot(snap *domain.Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap = snap
}

func (m *Mock) Bootstrap(ctx context.Context) (*domain.Snapshot, error) {
	m.mu.Lock()
	m.bootstrapCalls++
	fn := m.BootstrapFunc
	m.mu.Unlock()

	if fn != nil {
		return m.record(fn(ctx))
	}
	return m.record(m.current(), nil)
}

func (m *Mock) Refresh(ctx context.Context) (*domain.Snapshot, error) {
	m.mu.Lock()
	m.refreshCalls++
	fn := m.RefreshFunc
	m.mu.Unlock()

	if fn != nil {
		return m.record(fn(ctx))
	}
	return m.record(m.current(), nil)
}

func (m *Mock) EvaluateFlag(ctx context.Context, key string, evalCtx domain.Context) (domain.Value, bool, error) {
	m.mu.Lock()
	m.evaluateFlagCalls++
	fn := m.EvaluateFlagFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, key, evalCtx)
	}
	return domain.Value{}, false, nil
}

func (m *Mock) EvaluateExperiment(ctx context.Context, key string, evalCtx domain.Context) (*domain.Assignment, error) {
	m.mu.Lock()
	m.evaluateExperimentCalls++
	fn := m.EvaluateExperimentFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, key, evalCtx)
	}
	return nil, nil
}

func (m *Mock) current() *domain.Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return domain.NewSnapshot(m.snap.Flags, m.snap.Experiments,
		domain.WithRevision(m.snap.Revision),
		domain.WithTTL(m.snap.TTL),
		domain.WithFetchedAt(time.Now()),
	)
}

func (m *Mock) record(snap *domain.Snapshot, err error) (*domain.Snapshot, error) {
	m.Health.Record(err)
	return snap, err
}

// Calls returns how many times method was invoked.
func (m *Mock) Calls(method string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	switch method {
	case "Bootstrap":
		return m.bootstrapCalls
	case "Refresh":
		return m.refreshCalls
	case "EvaluateFlag":
		return m.evaluateFlagCalls
	case "EvaluateExperiment":
		return m.evaluateExperimentCalls
	default:
		return -1
	}
}

// Reset clears call counters and health.
func (m *Mock) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.bootstrapCalls = 0
	m.refreshCalls = 0
	m.evaluateFlagCalls = 0
	m.evaluateExperimentCalls = 0
	m.Health.Reset()
}

// AssertCalled asserts methods were called expected times
func (m *Mock) AssertCalled(t interface{ Errorf(string, ...interface{}) }, method string, expected int) {
	actual := m.Calls(method)
	if actual < 0 {
		t.Errorf("unknown method: %s", method)
		return
	}
	if actual != expected {
		t.Errorf("%s called %d times, expected %d", method, actual, expected)
	}
}
