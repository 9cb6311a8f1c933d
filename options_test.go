package flagship

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OrlandoBitencourt/flagship/pkg/storage"
	"github.com/OrlandoBitencourt/flagship/pkg/telemetry"
)

func TestOptions(t *testing.T) {
	now := time.Date(2025, 1, 15, 10, 30, 0, 0, time.UTC)
	cache := storage.NewMockCache()
	tel := telemetry.NewNoOp()
	logger := quietLogger()

	cfg := defaultClientConfig()
	opts := []Option{
		WithAppKey("app"),
		WithEnvironment("staging"),
		WithCache(cache),
		WithLogger(logger),
		WithTelemetry(tel),
		WithInitialTimeout(time.Second),
		WithRefreshInterval(time.Minute),
		WithProviderTimeout(10 * time.Second),
		WithAwaitBootstrap(false),
		WithDefaultContext(NewContext("user-1")),
		WithClock(func() time.Time { return now }),
	}
	for _, opt := range opts {
		require.NoError(t, opt(cfg))
	}

	assert.Equal(t, "app", cfg.config.AppKey)
	assert.Equal(t, "staging", cfg.config.Environment)
	assert.Equal(t, cache, cfg.cache)
	assert.Equal(t, logger, cfg.logger)
	assert.Equal(t, tel, cfg.telemetry)
	assert.Equal(t, time.Second, cfg.config.InitialTimeout)
	assert.Equal(t, time.Minute, cfg.config.RefreshInterval)
	assert.Equal(t, 10*time.Second, cfg.config.ProviderTimeout)
	assert.False(t, cfg.config.AwaitBootstrap)
	assert.Equal(t, "user-1", cfg.defaultContext.UserID)
	assert.Equal(t, now, cfg.now())
}

func TestOptions_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		option Option
	}{
		{name: "nil provider", option: WithProviders(nil)},
		{name: "nil clock", option: WithClock(nil)},
		{name: "empty webhook addr", option: WithWebhookServer(WebhookConfig{})},
		{name: "empty admin addr", option: WithAdminServer(AdminConfig{})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.option(defaultClientConfig()))
		})
	}
}

func TestServerOptions(t *testing.T) {
	cfg := defaultClientConfig()

	require.NoError(t, WithWebhookServer(WebhookConfig{Addr: ":18001", Secret: "s3cret"})(cfg))
	require.NoError(t, WithAdminServer(AdminConfig{Addr: ":19000"})(cfg))

	assert.True(t, cfg.webhookEnabled)
	assert.Equal(t, ":18001", cfg.webhookAddr)
	assert.Equal(t, "s3cret", cfg.config.WebhookSecret)
	assert.True(t, cfg.adminEnabled)
	assert.Equal(t, ":19000", cfg.adminAddr)
}
