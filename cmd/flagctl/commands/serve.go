package commands

import (
	"context"
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/OrlandoBitencourt/flagship"
	"github.com/OrlandoBitencourt/flagship/pkg/provider"
	"github.com/OrlandoBitencourt/flagship/pkg/storage"
	"github.com/OrlandoBitencourt/flagship/pkg/telemetry"
)

type serveOptions struct {
	adminAddr   string
	webhookAddr string
	cacheDir    string
	redis       bool
	memory      bool
	otel        bool
}

func newServeCommand(opts *globalOptions) *cobra.Command {
	var so serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a client with the admin and webhook servers",
		Long: `Run a flagship client over the flag document until interrupted.

Configuration is read from FLAGSHIP_* environment variables; the document is
watched for changes and the snapshot is cached in the selected cache.`,
		Example: `  # Serve the admin API on :19000
  flagctl serve --admin :19000

  # Cache snapshots in Redis (FLAGSHIP_REDIS_URL) and accept webhook pushes
  flagctl serve --redis --webhook :18001`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts, so)
		},
	}

	cmd.Flags().StringVar(&so.adminAddr, "admin", ":19000", "admin server address (empty disables)")
	cmd.Flags().StringVar(&so.webhookAddr, "webhook", "", "webhook server address (empty disables)")
	cmd.Flags().StringVar(&so.cacheDir, "cache-dir", "", "cache snapshots on disk under this directory")
	cmd.Flags().BoolVar(&so.redis, "redis", false, "cache snapshots in Redis")
	cmd.Flags().BoolVar(&so.memory, "memory", false, "cache snapshots in memory")
	cmd.Flags().BoolVar(&so.otel, "otel", false, "record OpenTelemetry metrics and spans")
	cmd.MarkFlagsMutuallyExclusive("cache-dir", "redis", "memory")

	return cmd
}

func runServe(ctx context.Context, opts *globalOptions, so serveOptions) error {
	cfg := flagship.DefaultConfig()
	if loaded, err := flagship.LoadConfig(); err == nil {
		cfg = loaded
	} else {
		opts.logger.WithError(err).Debug("using default configuration")
	}
	if cfg.AppKey == "" {
		cfg.AppKey = "flagctl"
	}
	if !opts.verbose {
		if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
			opts.logger.SetLevel(level)
		}
	}

	cache, closeCache, err := so.openCache(ctx)
	if err != nil {
		return err
	}
	defer closeCache()

	clientOpts := []flagship.Option{
		flagship.WithConfig(cfg),
		flagship.WithProviders(provider.NewFileProvider(opts.file, provider.WithFileLogger(opts.logger))),
		flagship.WithLogger(opts.logger.WithField("app", cfg.AppKey)),
		flagship.WithCache(cache),
	}

	if so.otel {
		tel, err := telemetry.NewOTel()
		if err != nil {
			return fmt.Errorf("failed to set up telemetry: %w", err)
		}
		defer tel.Shutdown(context.Background())
		clientOpts = append(clientOpts, flagship.WithTelemetry(tel))
	}
	if so.adminAddr != "" {
		clientOpts = append(clientOpts, flagship.WithAdminServer(flagship.AdminConfig{Addr: so.adminAddr}))
	}
	if so.webhookAddr != "" {
		clientOpts = append(clientOpts, flagship.WithWebhookServer(flagship.WebhookConfig{
			Addr:   so.webhookAddr,
			Secret: cfg.WebhookSecret,
		}))
	}

	client, err := flagship.New(clientOpts...)
	if err != nil {
		return err
	}
	if err := client.Start(ctx); err != nil {
		return err
	}

	opts.logger.WithFields(logrus.Fields{
		"file":    opts.file,
		"admin":   so.adminAddr,
		"webhook": so.webhookAddr,
		"state":   client.State(),
	}).Info("serving")

	<-ctx.Done()
	opts.logger.Info("shutting down")
	return client.Stop()
}

// openCache returns the selected snapshot cache and its release func.
func (so serveOptions) openCache(ctx context.Context) (flagship.Cache, func(), error) {
	switch {
	case so.cacheDir != "":
		disk, err := storage.NewDiskCache(so.cacheDir)
		if err != nil {
			return nil, nil, err
		}
		return disk, func() {}, nil

	case so.redis:
		redisCfg, err := env.ParseAs[storage.RedisConfig]()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to parse redis config: %w", err)
		}
		db, err := storage.ConnectRedis(ctx, redisCfg)
		if err != nil {
			return nil, nil, err
		}
		cache := storage.NewRedisCache(db, redisCfg)
		return cache, func() { _ = cache.Close() }, nil

	case so.memory:
		mem, err := storage.NewMemoryCache(storage.DefaultConfig())
		if err != nil {
			return nil, nil, err
		}
		return mem, mem.Close, nil

	default:
		return storage.Noop{}, func() {}, nil
	}
}
