package cache

import (
	"context"
	"time"

	"github.com/erp/ledger/internal/domain/ledger"
	"github.com/erp/ledger/internal/domain/shared"
	"github.com/erp/ledger/internal/infrastructure/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Coordination bundles the stores that must be shared between instances
// when more than one runs: ingest idempotency and the run lock.
type Coordination struct {
	Idempotency shared.IdempotencyStore
	RunLock     ledger.RunLock
	// Redis is nil when running in-process
	Redis *redis.Client
}

// Close releases the stores and the Redis client
func (c *Coordination) Close() error {
	err := c.Idempotency.Close()
	if c.Redis != nil {
		if cerr := c.Redis.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// FactoryOption is a functional option for NewCoordination
type FactoryOption func(*factoryOptions)

type factoryOptions struct {
	logger                *zap.Logger
	allowInMemoryFallback bool
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) FactoryOption {
	return func(o *factoryOptions) {
		o.logger = logger
	}
}

// WithInMemoryFallback controls whether an unreachable Redis falls back to
// in-process stores. Default is true.
func WithInMemoryFallback(allow bool) FactoryOption {
	return func(o *factoryOptions) {
		o.allowInMemoryFallback = allow
	}
}

// NewCoordination builds Redis-backed stores when Redis is configured and
// reachable, and in-process stores otherwise
func NewCoordination(ctx context.Context, cfg config.RedisConfig, lockTTL time.Duration, opts ...FactoryOption) (*Coordination, error) {
	o := factoryOptions{logger: zap.NewNop(), allowInMemoryFallback: true}
	for _, opt := range opts {
		opt(&o)
	}

	if cfg.Enabled() {
		client, err := NewRedisClient(ctx, cfg)
		if err == nil {
			o.logger.Info("Using Redis for ingest idempotency and run lock", zap.String("addr", cfg.Addr()))
			return &Coordination{
				Idempotency: NewRedisIdempotencyStore(client, IngestKeyPrefix),
				RunLock:     NewRedisRunLock(client, lockTTL, o.logger),
				Redis:       client,
			}, nil
		}
		if !o.allowInMemoryFallback {
			return nil, err
		}
		o.logger.Warn("Redis unavailable, falling back to in-process idempotency and run lock. "+
			"Concurrent instances may run reconciliation at the same time.",
			zap.Error(err),
		)
	}

	return &Coordination{
		Idempotency: NewInMemoryIdempotencyStore(DefaultCleanupInterval),
		RunLock:     NewLocalRunLock(),
	}, nil
}
