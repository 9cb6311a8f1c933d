package flagship

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OrlandoBitencourt/flagship/pkg/domain"
	"github.com/OrlandoBitencourt/flagship/pkg/provider"
	"github.com/OrlandoBitencourt/flagship/pkg/storage"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name      string
		options   []Option
		expectErr bool
	}{
		{
			name:    "valid configuration",
			options: []Option{WithAppKey("app"), WithProviders(provider.NewMock("remote"))},
		},
		{
			name:    "no providers",
			options: []Option{WithAppKey("app")},
		},
		{
			name:      "missing app key",
			options:   []Option{WithProviders(provider.NewMock("remote"))},
			expectErr: true,
		},
		{
			name: "duplicate provider names",
			options: []Option{
				WithAppKey("app"),
				WithProviders(provider.NewMock("remote"), provider.NewMock("remote")),
			},
			expectErr: true,
		},
		{
			name:      "nil provider",
			options:   []Option{WithAppKey("app"), WithProviders(nil)},
			expectErr: true,
		},
		{
			name:      "zero initial timeout",
			options:   []Option{WithAppKey("app"), WithInitialTimeout(0)},
			expectErr: true,
		},
		{
			name:      "negative refresh interval",
			options:   []Option{WithAppKey("app"), WithRefreshInterval(-time.Second)},
			expectErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := New(append(tt.options, WithLogger(quietLogger()))...)
			if tt.expectErr {
				require.Error(t, err)
				assert.True(t, IsConfigurationError(err), "got %T", err)
				assert.Nil(t, client)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, StateUnbootstrapped, client.State())
		})
	}
}

func TestClient_OverrideScenario(t *testing.T) {
	remote := mockWith("remote", map[string]Value{"flag1": BoolValue(true)}, nil)
	client := bootstrapped(t, []Provider{remote})
	ctx := context.Background()

	assert.True(t, client.IsEnabled(ctx, "flag1", false))
	assert.False(t, client.IsEnabled(ctx, "missing", false))

	require.NoError(t, client.SetOverride("flag1", BoolValue(false)))
	assert.False(t, client.IsEnabled(ctx, "flag1", true))

	assert.True(t, client.ClearOverride("flag1"))
	assert.True(t, client.IsEnabled(ctx, "flag1", false))
	assert.False(t, client.ClearOverride("flag1"))
}

func TestClient_ProviderOrder(t *testing.T) {
	first := mockWith("first", map[string]Value{"shared": StringValue("first")}, nil)
	second := mockWith("second", map[string]Value{
		"shared": StringValue("second"),
		"only":   IntValue(7),
	}, nil)
	client := bootstrapped(t, []Provider{first, second})
	ctx := context.Background()

	assert.Equal(t, "first", client.String(ctx, "shared", "default"))
	assert.Equal(t, int64(7), client.Int(ctx, "only", 0))

	status := client.FlagStatus("only")
	assert.Equal(t, "second", status.ProviderName)
	assert.Equal(t, SourceProvider, status.Source)
}

func TestClient_NoCoercion(t *testing.T) {
	remote := mockWith("remote", map[string]Value{
		"count": IntValue(3),
		"name":  StringValue("3"),
		"ratio": DoubleValue(0.5),
		"cfg":   domain.MustJSON(`{"a":1}`),
	}, nil)
	client := bootstrapped(t, []Provider{remote})
	ctx := context.Background()

	assert.Equal(t, "def", client.String(ctx, "count", "def"))
	assert.Equal(t, int64(-1), client.Int(ctx, "name", -1))
	assert.Equal(t, int64(-1), client.Int(ctx, "ratio", -1))
	assert.False(t, client.Bool(ctx, "count", false))
	assert.Equal(t, 0.5, client.Double(ctx, "ratio", 0))
	assert.JSONEq(t, `{"a":1}`, string(client.JSON(ctx, "cfg", nil)))
	assert.Equal(t, "def", client.String(ctx, "", "def"))
}

func TestClient_SyncAccessors(t *testing.T) {
	remote := mockWith("remote", map[string]Value{"flag1": BoolValue(true), "n": IntValue(2)}, nil)
	client := newTestClient(t, []Provider{remote})

	_, err := client.BoolSync("flag1", false)
	require.Error(t, err)
	assert.True(t, IsIllegalState(err))

	_, err = client.IntSync("n", 0)
	assert.True(t, IsIllegalState(err))

	require.True(t, client.EnsureBootstrap(context.Background(), time.Second))

	enabled, err := client.IsEnabledSync("flag1", false)
	require.NoError(t, err)
	assert.True(t, enabled)

	n, err := client.IntSync("n", 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	s, err := client.StringSync("n", "def")
	require.NoError(t, err)
	assert.Equal(t, "def", s)
}

func TestClient_AsyncAccessorAwaitsBootstrap(t *testing.T) {
	remote := mockWith("remote", map[string]Value{"flag1": BoolValue(true)}, nil)
	client := newTestClient(t, []Provider{remote})

	assert.True(t, client.Bool(context.Background(), "flag1", false))
	assert.Equal(t, StateReady, client.State())
	assert.Equal(t, 1, remote.Calls("Bootstrap"))
}

func TestClient_NoAwaitReturnsDefault(t *testing.T) {
	remote := mockWith("remote", map[string]Value{"flag1": BoolValue(true)}, nil)
	client := newTestClient(t, []Provider{remote}, WithAwaitBootstrap(false))

	assert.False(t, client.Bool(context.Background(), "flag1", false))
	assert.Equal(t, StateUnbootstrapped, client.State())
	assert.Equal(t, 0, remote.Calls("Bootstrap"))
}

func TestClient_OrError(t *testing.T) {
	remote := mockWith("remote", map[string]Value{"flag1": BoolValue(true), "n": IntValue(4)}, nil)
	client := bootstrapped(t, []Provider{remote})
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		var got bool
		res := client.BoolOrError(ctx, "flag1").OnSuccess(func(v bool) { got = v })
		assert.True(t, res.IsSuccess())
		assert.True(t, got)
	})

	t.Run("not found", func(t *testing.T) {
		var failed error
		res := client.StringOrError(ctx, "missing").OnFailure(func(err error) { failed = err })
		assert.True(t, IsNotFound(failed))
		assert.Equal(t, "fallback", res.GetOrElse("fallback"))
	})

	t.Run("type mismatch", func(t *testing.T) {
		_, err := client.BoolOrError(ctx, "n").Get()
		require.Error(t, err)
		assert.True(t, IsTypeMismatch(err))

		var mismatch *TypeMismatchError
		require.True(t, errors.As(err, &mismatch))
		assert.Equal(t, KindBool, mismatch.Want)
		assert.Equal(t, KindInt, mismatch.Got)
	})

	t.Run("empty key", func(t *testing.T) {
		err := client.IntOrError(ctx, "").Err()
		assert.True(t, IsValidationError(err))
	})
}

func testExperiment() Experiment {
	return Experiment{
		Key: "exp1",
		Variants: []Variant{
			{Name: "control", Weight: 0.5, Payload: StringValue("blue")},
			{Name: "treatment", Weight: 0.5, Payload: StringValue("green")},
		},
	}
}

func TestClient_Assign(t *testing.T) {
	remote := mockWith("remote", nil, map[string]Experiment{"exp1": testExperiment()})
	client := bootstrapped(t, []Provider{remote})
	ctx := context.Background()

	counts := map[string]int{}
	for i := 0; i < 100; i++ {
		evalCtx := NewContext(fmt.Sprintf("user-%d", i))
		a := client.Assign(ctx, "exp1", evalCtx)
		require.NotNil(t, a)
		assert.Equal(t, "exp1", a.Key)
		counts[a.Variant]++

		again := client.Assign(ctx, "exp1", evalCtx)
		assert.Equal(t, a.Variant, again.Variant, "assignment must be stable")
	}
	assert.Len(t, counts, 2)
	assert.Equal(t, 100, counts["control"]+counts["treatment"])

	assert.Nil(t, client.Assign(ctx, "exp1", Context{}))
	assert.Nil(t, client.Assign(ctx, "unknown", NewContext("user-1")))
}

func TestClient_AssignIgnoresOverrides(t *testing.T) {
	remote := mockWith("remote", nil, map[string]Experiment{"exp1": testExperiment()})
	client := bootstrapped(t, []Provider{remote})

	require.NoError(t, client.SetOverride("exp1", StringValue("forced")))

	a := client.Assign(context.Background(), "exp1", NewContext("user-1"))
	require.NotNil(t, a)
	assert.Contains(t, []string{"control", "treatment"}, a.Variant)
}

func TestClient_AssignOrError(t *testing.T) {
	exp := testExperiment()
	exp.Targeting = domain.RegionIn("US")
	remote := mockWith("remote", nil, map[string]Experiment{"exp1": exp})
	client := bootstrapped(t, []Provider{remote})
	ctx := context.Background()

	res := client.AssignOrError(ctx, "exp1", NewContext("user-1").WithRegion("US"))
	require.True(t, res.IsSuccess())

	err := client.AssignOrError(ctx, "exp1", NewContext("user-1").WithRegion("BR")).Err()
	assert.True(t, IsNotFound(err))

	err = client.AssignOrError(ctx, "unknown", NewContext("user-1")).Err()
	assert.True(t, IsNotFound(err))

	err = client.AssignOrError(ctx, "", NewContext("user-1")).Err()
	assert.True(t, IsValidationError(err))
}

func TestClient_EvaluationContextPrecedence(t *testing.T) {
	remote := provider.NewMock("remote")
	remote.EvaluateFlagFunc = func(_ context.Context, key string, evalCtx domain.Context) (domain.Value, bool, error) {
		if key != "who" {
			return domain.Value{}, false, nil
		}
		return domain.String(evalCtx.UserID), true, nil
	}
	client := bootstrapped(t, []Provider{remote}, WithDefaultContext(NewContext("default-user")))
	ctx := context.Background()

	assert.Equal(t, "default-user", client.String(ctx, "who", "none"))

	client.SetDefaultContext(NewContext("other-default"))
	assert.Equal(t, "other-default", client.String(ctx, "who", "none"))

	reqCtx := WithEvaluationContext(ctx, NewContext("request-user"))
	assert.Equal(t, "request-user", client.String(reqCtx, "who", "none"))
	assert.Equal(t, "explicit", client.String(reqCtx, "who", "none", NewContext("explicit")))

	// Sync accessors never consult provider hooks.
	s, err := client.StringSync("who", "none")
	require.NoError(t, err)
	assert.Equal(t, "none", s)
}

func TestClient_Listeners(t *testing.T) {
	remote := mockWith("remote", map[string]Value{"flag1": BoolValue(true)}, nil)
	client := newTestClient(t, []Provider{remote})

	l := &recordingListener{}
	id := client.AddListener(l)
	assert.NotEmpty(t, id)

	require.True(t, client.EnsureBootstrap(context.Background(), time.Second))
	assert.Equal(t, []UpdateSource{UpdateBootstrap}, l.Snapshots())

	require.NoError(t, client.SetOverride("flag1", BoolValue(false)))
	client.ClearOverride("flag1")
	assert.Equal(t, []string{"flag1", "flag1"}, l.Overrides())

	require.NoError(t, client.RefreshAndWait(context.Background(), true))
	assert.Equal(t, []UpdateSource{UpdateBootstrap, UpdateRefresh}, l.Snapshots())

	assert.True(t, client.RemoveListener(id))
	assert.False(t, client.RemoveListener(id))

	require.NoError(t, client.SetOverride("flag1", BoolValue(false)))
	assert.Len(t, l.Overrides(), 2)
}

func TestClient_ListenerFuncs(t *testing.T) {
	client := bootstrapped(t, nil)

	var changed []string
	client.AddListener(ListenerFuncs{
		OverrideChanged: func(key string) { changed = append(changed, key) },
	})

	require.NoError(t, client.SetOverride("a", IntValue(1)))
	require.NoError(t, client.SetOverride("b", IntValue(2)))
	assert.ElementsMatch(t, []string{"a", "b"}, changed)

	client.ClearOverrides()
	assert.Len(t, changed, 4)
	assert.Empty(t, client.ListOverrides())
}

func TestClient_SetOverrideValidation(t *testing.T) {
	client := bootstrapped(t, nil)

	err := client.SetOverride("", BoolValue(true))
	assert.True(t, IsValidationError(err))

	err = client.SetOverride("flag", Value{})
	assert.True(t, IsValidationError(err))

	assert.Empty(t, client.ListOverrides())
}

func TestClient_FlagStatus(t *testing.T) {
	remote := mockWith("remote", map[string]Value{"flag1": BoolValue(true)}, nil)
	client := bootstrapped(t, []Provider{remote})

	status := client.FlagStatus("flag1")
	assert.True(t, status.Exists)
	assert.Equal(t, SourceProvider, status.Source)
	assert.True(t, status.IsHealthy())
	assert.True(t, status.IsFresh())

	require.NoError(t, client.SetOverride("flag1", BoolValue(false)))
	status = client.FlagStatus("flag1")
	assert.Equal(t, SourceOverride, status.Source)
	assert.True(t, status.IsHealthy())
	assert.False(t, status.IsFresh())

	status = client.FlagStatus("missing")
	assert.False(t, status.Exists)
	assert.Equal(t, SourceDefault, status.Source)
	assert.False(t, status.IsHealthy())
}

func TestClient_CacheFallback(t *testing.T) {
	cache := storage.NewMockCache()
	cache.Put("remote", domain.NewSnapshot(map[string]Value{"flag1": BoolValue(true)}, nil))

	remote := provider.NewMock("remote")
	remote.BootstrapFunc = func(context.Context) (*domain.Snapshot, error) {
		return nil, domain.NewNetworkError("remote", errors.New("connection refused"))
	}
	client := bootstrapped(t, []Provider{remote}, WithCache(cache))

	assert.True(t, client.Bool(context.Background(), "flag1", false))

	status := client.FlagStatus("flag1")
	assert.Equal(t, SourceCache, status.Source)
	assert.False(t, status.IsFresh())

	statuses := client.ProviderStatuses()
	require.Len(t, statuses, 1)
	assert.Equal(t, 1, statuses[0].ConsecutiveFailures)
}

func TestClient_CacheServedWhileProviderHangs(t *testing.T) {
	cache := storage.NewMockCache()
	cache.Put("remote", domain.NewSnapshot(map[string]Value{"flag1": BoolValue(true)}, nil))

	remote := provider.NewMock("remote")
	remote.BootstrapFunc = func(ctx context.Context) (*domain.Snapshot, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	client := newTestClient(t, []Provider{remote},
		WithCache(cache),
		WithInitialTimeout(100*time.Millisecond),
	)

	assert.True(t, client.Bool(context.Background(), "flag1", false))
	assert.Equal(t, StateBootstrapping, client.State())
	assert.Equal(t, SourceCache, client.FlagStatus("flag1").Source)
}

func TestClient_Reset(t *testing.T) {
	remote := mockWith("remote", map[string]Value{"flag1": BoolValue(true)}, nil)
	client := bootstrapped(t, []Provider{remote})
	require.NoError(t, client.SetOverride("x", IntValue(1)))

	client.Reset()

	assert.Equal(t, StateUnbootstrapped, client.State())
	assert.Empty(t, client.ListOverrides())

	_, err := client.BoolSync("flag1", false)
	assert.True(t, IsIllegalState(err))

	require.True(t, client.EnsureBootstrap(context.Background(), time.Second))
	assert.Equal(t, 2, remote.Calls("Bootstrap"))
}

func TestClient_Metrics(t *testing.T) {
	cache, err := storage.NewMemoryCache(storage.DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(cache.Close)

	remote := mockWith("remote", map[string]Value{"flag1": BoolValue(true)}, nil)
	client := bootstrapped(t, []Provider{remote}, WithCache(cache))

	require.NoError(t, client.SetOverride("x", IntValue(1)))
	client.AddListener(ListenerFuncs{})

	m := client.Metrics()
	assert.Equal(t, StateReady, m.State)
	assert.Equal(t, 1, m.Overrides)
	assert.Equal(t, 1, m.Listeners)
	assert.NotEmpty(t, m.LastBootstrap)
	require.Len(t, m.Providers, 1)
	assert.True(t, m.Providers[0].Healthy)
	assert.NotNil(t, m.Cache)

	data, err := json.Marshal(m)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"state":"ready"`)
}

func TestClient_Preload(t *testing.T) {
	remote := mockWith("remote", map[string]Value{"a": BoolValue(true), "b": IntValue(1)}, nil)
	client := newTestClient(t, []Provider{remote})

	n := client.Preload(context.Background(), []string{"a", "b", "c"})
	assert.Equal(t, 2, n)
	assert.Equal(t, StateReady, client.State())

	hooks := provider.NewMock("hooks")
	var seen []string
	var mu sync.Mutex
	hooks.EvaluateFlagFunc = func(_ context.Context, key string, evalCtx domain.Context) (domain.Value, bool, error) {
		mu.Lock()
		seen = append(seen, evalCtx.UserID)
		mu.Unlock()
		return domain.Bool(true), true, nil
	}
	client = bootstrapped(t, []Provider{hooks})

	n = client.PreloadForUser(context.Background(), "user-9", []string{"x", "y"})
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"user-9", "user-9"}, seen)
}

func TestClient_ConcurrentReadsAndOverrides(t *testing.T) {
	remote := mockWith("remote", map[string]Value{"flag1": BoolValue(true)}, nil)
	client := bootstrapped(t, []Provider{remote})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				_, err := client.BoolSync("flag1", false)
				assert.NoError(t, err)
				client.Bool(ctx, "flag1", false)
			}
		}()
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("k%d", i)
			for j := 0; j < 50; j++ {
				assert.NoError(t, client.SetOverride(key, IntValue(int64(j))))
				client.ClearOverride(key)
			}
		}(i)
	}
	wg.Wait()

	assert.Empty(t, client.ListOverrides())
	assert.True(t, client.Bool(ctx, "flag1", false))
}

func TestClient_StartStop(t *testing.T) {
	remote := mockWith("remote", map[string]Value{"flag1": BoolValue(true)}, nil)
	client := newTestClient(t, []Provider{remote}, WithRefreshInterval(time.Hour))

	require.NoError(t, client.Start(context.Background()))
	assert.Equal(t, StateReady, client.State())
	assert.True(t, client.Bool(context.Background(), "flag1", false))

	require.NoError(t, client.Stop())
	require.NoError(t, client.Stop())
}
