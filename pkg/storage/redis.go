package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/OrlandoBitencourt/flagship/pkg/domain"
)

var (
	ErrFailedToParseRedisURL = errors.New("failed to parse redis connection url")
	ErrRedisNotReady         = errors.New("redis is not ready")
)

// RedisConfig configures ConnectRedis and RedisCache.
type RedisConfig struct {
	ConnectionURL  string        `env:"FLAGSHIP_REDIS_URL" envDefault:"redis://localhost:6379/0"`
	RetryAttempts  int           `env:"FLAGSHIP_REDIS_RETRY_ATTEMPTS" envDefault:"3"`
	RetryInterval  time.Duration `env:"FLAGSHIP_REDIS_RETRY_INTERVAL" envDefault:"1s"`
	ConnectTimeout time.Duration `env:"FLAGSHIP_REDIS_CONNECT_TIMEOUT" envDefault:"10s"`
	KeyPrefix      string        `env:"FLAGSHIP_REDIS_KEY_PREFIX" envDefault:"flagship:snapshot:"`
	TTL            time.Duration `env:"FLAGSHIP_REDIS_TTL" envDefault:"0s"`
	ScanBatchSize  int64         `env:"FLAGSHIP_REDIS_SCAN_BATCH_SIZE" envDefault:"100"`
}

// ConnectRedis opens a client and pings it, retrying up to RetryAttempts
// times within ConnectTimeout.
func ConnectRedis(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}

	opts, err := redis.ParseURL(cfg.ConnectionURL)
	if err != nil {
		return nil, errors.Join(ErrFailedToParseRedisURL, err)
	}

	attempts := max(cfg.RetryAttempts, 1)
	for attempt := 0; attempt < attempts; attempt++ {
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err == nil {
			return client, nil
		}
		_ = client.Close()

		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrRedisNotReady, ctx.Err())
		case <-time.After(cfg.RetryInterval):
		}
	}

	return nil, ErrRedisNotReady
}

// RedisCache stores each provider's snapshot as a JSON string under
// KeyPrefix+provider.
type RedisCache struct {
	db            redis.UniversalClient
	prefix        string
	ttl           time.Duration
	scanBatchSize int64
}

// NewRedisCache wraps an existing client.
func NewRedisCache(db redis.UniversalClient, cfg RedisConfig) *RedisCache {
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "flagship:snapshot:"
	}
	batch := cfg.ScanBatchSize
	if batch <= 0 {
		batch = 100
	}
	return &RedisCache{db: db, prefix: prefix, ttl: cfg.TTL, scanBatchSize: batch}
}

func (r *RedisCache) key(provider string) string {
	return r.prefix + provider
}

func (r *RedisCache) Save(ctx context.Context, provider string, snap *domain.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return domain.NewCacheError("save", provider, fmt.Errorf("failed to marshal snapshot: %w", err))
	}
	if err := r.db.Set(ctx, r.key(provider), data, r.ttl).Err(); err != nil {
		return domain.NewCacheError("save", provider, err)
	}
	return nil
}

func (r *RedisCache) Load(ctx context.Context, provider string) (*domain.Snapshot, error) {
	data, err := r.db.Get(ctx, r.key(provider)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, domain.NewCacheError("load", provider, err)
	}

	var snap domain.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, domain.NewCacheError("load", provider, fmt.Errorf("failed to decode snapshot: %w", err))
	}
	return &snap, nil
}

func (r *RedisCache) Clear(ctx context.Context, provider string) error {
	if err := r.db.Del(ctx, r.key(provider)).Err(); err != nil {
		return domain.NewCacheError("clear", provider, err)
	}
	return nil
}

// ClearAll deletes every key under the prefix using SCAN, leaving other keys
// in the database untouched.
func (r *RedisCache) ClearAll(ctx context.Context) error {
	var cursor uint64
	for {
		keys, next, err := r.db.Scan(ctx, cursor, r.prefix+"*", r.scanBatchSize).Result()
		if err != nil {
			return domain.NewCacheError("clear", "*", err)
		}
		if len(keys) > 0 {
			if err := r.db.Del(ctx, keys...).Err(); err != nil {
				return domain.NewCacheError("clear", "*", err)
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

// Close terminates the Redis connection.
func (r *RedisCache) Close() error {
	return r.db.Close()
}
