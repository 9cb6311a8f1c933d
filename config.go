package flagship

import (
	"errors"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/OrlandoBitencourt/flagship/pkg/domain"
)

// EnvPrefix prefixes every environment variable read by LoadConfig.
const EnvPrefix = "FLAGSHIP_"

var validate = validator.New(validator.WithRequiredStructEnabled())

// Config holds all configuration for a flagship client.
type Config struct {
	// AppKey identifies the host application to providers. Required.
	AppKey string `env:"APP_KEY" validate:"required"`

	// Environment names the deployment, e.g. "production"
	Environment string `env:"ENVIRONMENT" envDefault:"production"`

	// InitialTimeout bounds the wait for bootstrap
	InitialTimeout time.Duration `env:"INITIAL_TIMEOUT" envDefault:"5s" validate:"gt=0"`

	// RefreshInterval is the background refresh period after Start; zero
	// disables it
	RefreshInterval time.Duration `env:"REFRESH_INTERVAL" envDefault:"5m" validate:"gte=0"`

	// ProviderTimeout bounds every provider fetch; zero disables it
	ProviderTimeout time.Duration `env:"PROVIDER_TIMEOUT" envDefault:"30s" validate:"gte=0"`

	// AwaitBootstrap makes the context-taking accessors wait for bootstrap
	// (up to InitialTimeout) instead of answering with defaults
	AwaitBootstrap bool `env:"AWAIT_BOOTSTRAP" envDefault:"true"`

	// LogLevel applies to the default logger only
	LogLevel string `env:"LOG_LEVEL" envDefault:"info" validate:"omitempty,oneof=trace debug info warn warning error fatal panic"`

	// WebhookSecret signs webhook pushes; empty disables signature checks
	WebhookSecret string `env:"WEBHOOK_SECRET"`
}

// DefaultConfig returns recommended default configuration. AppKey is left
// empty.
func DefaultConfig() Config {
	return Config{
		Environment:     "production",
		InitialTimeout:  5 * time.Second,
		RefreshInterval: 5 * time.Minute,
		ProviderTimeout: 30 * time.Second,
		AwaitBootstrap:  true,
		LogLevel:        "info",
	}
}

// LoadConfig reads a Config from FLAGSHIP_* environment variables.
func LoadConfig() (Config, error) {
	cfg, err := env.ParseAsWithOptions[Config](env.Options{Prefix: EnvPrefix})
	if err != nil {
		return Config{}, errors.Join(domain.NewConfigurationError("env", "failed to parse environment"), err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration. Failures are ConfigurationErrors
// naming the first offending field.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return domain.NewConfigurationError(fe.Field(), "failed on "+fe.Tag())
	}
	return domain.NewConfigurationError("config", err.Error())
}

func (c Config) logLevel() logrus.Level {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}
