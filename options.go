package flagship

import (
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/OrlandoBitencourt/flagship/pkg/domain"
	"github.com/OrlandoBitencourt/flagship/pkg/provider"
	"github.com/OrlandoBitencourt/flagship/pkg/storage"
	"github.com/OrlandoBitencourt/flagship/pkg/telemetry"
)

// Option configures a flagship client.
type Option func(*clientConfig) error

// clientConfig holds internal configuration.
type clientConfig struct {
	config Config

	providers      []provider.Provider
	cache          storage.Cache
	logger         logrus.FieldLogger
	telemetry      telemetry.Provider
	defaultContext domain.Context
	now            func() time.Time

	// Server options
	webhookEnabled bool
	webhookAddr    string
	adminEnabled   bool
	adminAddr      string
}

// WebhookConfig configures the webhook server that receives change pushes.
type WebhookConfig struct {
	// Addr is the listen address, e.g. ":18001"
	Addr string

	// Secret is the shared HMAC-SHA256 secret. Empty disables signature
	// checks.
	Secret string
}

// AdminConfig configures the admin server.
type AdminConfig struct {
	// Addr is the listen address, e.g. ":19000"
	Addr string
}

func defaultClientConfig() *clientConfig {
	return &clientConfig{config: DefaultConfig()}
}

func (c *clientConfig) defaultLogger() logrus.FieldLogger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(c.config.logLevel())
	return logger.WithField("app", c.config.AppKey)
}

// WithConfig applies a full Config struct.
// This is an alternative to using individual options.
//
// Example:
//
//	cfg, err := flagship.LoadConfig()
//	client, err := flagship.New(flagship.WithConfig(cfg), flagship.WithProviders(p))
func WithConfig(cfg Config) Option {
	return func(c *clientConfig) error {
		c.config = cfg
		return nil
	}
}

// WithAppKey sets the application key. This is required.
func WithAppKey(appKey string) Option {
	return func(c *clientConfig) error {
		c.config.AppKey = appKey
		return nil
	}
}

// WithEnvironment sets the deployment environment.
// Default: "production"
func WithEnvironment(environment string) Option {
	return func(c *clientConfig) error {
		c.config.Environment = environment
		return nil
	}
}

// WithProviders appends providers. Order is precedence: the first provider
// holding a key wins.
//
// Example: flagship.WithProviders(remote, provider.NewFileProvider("flags.yaml"))
func WithProviders(providers ...Provider) Option {
	return func(c *clientConfig) error {
		for _, p := range providers {
			if p == nil {
				return domain.NewConfigurationError("providers", "provider must not be nil")
			}
		}
		c.providers = append(c.providers, providers...)
		return nil
	}
}

// WithCache sets the snapshot cache used when providers fail.
// Default: no cache
func WithCache(cache Cache) Option {
	return func(c *clientConfig) error {
		c.cache = cache
		return nil
	}
}

// WithLogger sets the logger.
// Default: a logrus logger writing to stderr at Config.LogLevel
func WithLogger(logger logrus.FieldLogger) Option {
	return func(c *clientConfig) error {
		c.logger = logger
		return nil
	}
}

// WithTelemetry sets the telemetry provider.
//
// Example:
//
//	tel, _ := telemetry.NewOTel()
//	client, err := flagship.New(flagship.WithTelemetry(tel), ...)
func WithTelemetry(t telemetry.Provider) Option {
	return func(c *clientConfig) error {
		c.telemetry = t
		return nil
	}
}

// WithInitialTimeout sets how long bootstrap is awaited.
// Default: 5 seconds
func WithInitialTimeout(timeout time.Duration) Option {
	return func(c *clientConfig) error {
		c.config.InitialTimeout = timeout
		return nil
	}
}

// WithRefreshInterval sets how often snapshots are refreshed after Start.
// Zero disables background refresh.
// Default: 5 minutes
//
// Example: flagship.WithRefreshInterval(time.Minute)
func WithRefreshInterval(interval time.Duration) Option {
	return func(c *clientConfig) error {
		c.config.RefreshInterval = interval
		return nil
	}
}

// WithProviderTimeout bounds every provider fetch.
// Default: 30 seconds
func WithProviderTimeout(timeout time.Duration) Option {
	return func(c *clientConfig) error {
		c.config.ProviderTimeout = timeout
		return nil
	}
}

// WithAwaitBootstrap controls whether context-taking accessors wait for
// bootstrap before answering.
// Default: true
func WithAwaitBootstrap(await bool) Option {
	return func(c *clientConfig) error {
		c.config.AwaitBootstrap = await
		return nil
	}
}

// WithDefaultContext sets the evaluation context used when a call passes
// none and the request carries none.
func WithDefaultContext(evalCtx Context) Option {
	return func(c *clientConfig) error {
		c.defaultContext = evalCtx
		return nil
	}
}

// WithClock replaces time.Now. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(c *clientConfig) error {
		if now == nil {
			return domain.NewConfigurationError("clock", "clock must not be nil")
		}
		c.now = now
		return nil
	}
}

// WithWebhookServer serves the webhook handler on its own listener while
// the client runs.
//
// Example:
//
//	client, err := flagship.New(
//	    flagship.WithAppKey("checkout"),
//	    flagship.WithWebhookServer(flagship.WebhookConfig{
//	        Addr:   ":18001",
//	        Secret: "shared-secret-key",
//	    }),
//	)
//
// The webhook answers POST /webhook with payload:
//
//	{
//	  "event": "snapshot.updated",
//	  "providers": ["remote"],
//	  "timestamp": "2025-01-15T10:30:00Z"
//	}
func WithWebhookServer(config WebhookConfig) Option {
	return func(c *clientConfig) error {
		if config.Addr == "" {
			return fmt.Errorf("webhook address cannot be empty")
		}
		c.webhookEnabled = true
		c.webhookAddr = config.Addr
		c.config.WebhookSecret = config.Secret
		return nil
	}
}

// WithAdminServer serves the admin handler on its own listener while the
// client runs.
//
// Endpoints:
//   - GET /health
//   - GET /admin/stats
//   - GET /admin/flags/{key}
//   - POST /admin/refresh
//   - GET|PUT|DELETE /admin/overrides[/{key}]
func WithAdminServer(config AdminConfig) Option {
	return func(c *clientConfig) error {
		if config.Addr == "" {
			return fmt.Errorf("admin address cannot be empty")
		}
		c.adminEnabled = true
		c.adminAddr = config.Addr
		return nil
	}
}
