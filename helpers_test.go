package flagship

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/OrlandoBitencourt/flagship/pkg/domain"
	"github.com/OrlandoBitencourt/flagship/pkg/provider"
)

func quietLogger() logrus.FieldLogger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// newTestClient builds a client with a quiet logger and short timeouts.
// Extra options are applied last.
func newTestClient(t *testing.T, providers []Provider, opts ...Option) *Client {
	t.Helper()

	base := []Option{
		WithAppKey("test-app"),
		WithProviders(providers...),
		WithLogger(quietLogger()),
		WithInitialTimeout(time.Second),
		WithRefreshInterval(0),
	}
	client, err := New(append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Stop() })
	return client
}

// bootstrapped is newTestClient followed by a settled bootstrap.
func bootstrapped(t *testing.T, providers []Provider, opts ...Option) *Client {
	t.Helper()

	client := newTestClient(t, providers, opts...)
	require.True(t, client.EnsureBootstrap(context.Background(), time.Second))
	require.Equal(t, StateReady, client.State())
	return client
}

func mockWith(name string, flags map[string]Value, experiments map[string]Experiment) *provider.Mock {
	m := provider.NewMock(name)
	m.SetSnapshot(domain.NewSnapshot(flags, experiments, domain.WithRevision("1")))
	return m
}

// recordingListener captures notifications.
type recordingListener struct {
	mu        sync.Mutex
	snapshots []UpdateSource
	overrides []string
}

func (l *recordingListener) OnSnapshotUpdated(source UpdateSource) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.snapshots = append(l.snapshots, source)
}

func (l *recordingListener) OnOverrideChanged(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.overrides = append(l.overrides, key)
}

func (l *recordingListener) Snapshots() []UpdateSource {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]UpdateSource(nil), l.snapshots...)
}

func (l *recordingListener) Overrides() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.overrides...)
}
