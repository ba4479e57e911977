package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/erp/ledger/internal/domain/ledger"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultLockTTL is the run lock TTL when none is configured
const DefaultLockTTL = 15 * time.Minute

// LocalRunLock serializes runs within one process
type LocalRunLock struct {
	mu sync.Mutex
}

// NewLocalRunLock creates a new LocalRunLock
func NewLocalRunLock() *LocalRunLock {
	return &LocalRunLock{}
}

// TryAcquire takes the lock or returns ErrRunInProgress without waiting
func (l *LocalRunLock) TryAcquire(_ context.Context) (func(context.Context) error, error) {
	if !l.mu.TryLock() {
		return nil, ledger.ErrRunInProgress
	}
	var once sync.Once
	return func(context.Context) error {
		once.Do(l.mu.Unlock)
		return nil
	}, nil
}

// RedisRunLock serializes runs across instances with a Redis lock. The
// lock is refreshed at half its TTL while held, so a run longer than the
// TTL keeps it, and a crashed holder frees it after one TTL.
type RedisRunLock struct {
	locker *redislock.Client
	key    string
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisRunLock creates a run lock on client
func NewRedisRunLock(client redis.UniversalClient, ttl time.Duration, logger *zap.Logger) *RedisRunLock {
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisRunLock{
		locker: redislock.New(client),
		key:    RunLockKey,
		ttl:    ttl,
		logger: logger,
	}
}

// TryAcquire obtains the lock or returns ErrRunInProgress
func (l *RedisRunLock) TryAcquire(ctx context.Context) (func(context.Context) error, error) {
	lock, err := l.locker.Obtain(ctx, l.key, l.ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, ledger.ErrRunInProgress
	}
	if err != nil {
		return nil, fmt.Errorf("obtain run lock: %w", err)
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go l.keepAlive(lock, stop, done)

	var once sync.Once
	release := func(ctx context.Context) error {
		var releaseErr error
		once.Do(func() {
			close(stop)
			<-done
			releaseErr = lock.Release(ctx)
			if errors.Is(releaseErr, redislock.ErrLockNotHeld) {
				l.logger.Warn("Run lock expired before release", zap.String("key", l.key))
				releaseErr = nil
			}
		})
		return releaseErr
	}
	return release, nil
}

func (l *RedisRunLock) keepAlive(lock *redislock.Lock, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(l.ttl / 2)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err := lock.Refresh(ctx, l.ttl, nil)
			cancel()
			if err != nil {
				l.logger.Error("Failed to refresh run lock", zap.String("key", l.key), zap.Error(err))
				return
			}
		}
	}
}

var (
	_ ledger.RunLock = (*LocalRunLock)(nil)
	_ ledger.RunLock = (*RedisRunLock)(nil)
)
