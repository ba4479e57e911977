package cache

import (
	"context"
	"testing"
	"time"

	"github.com/erp/ledger/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewCoordination_RedisDisabled(t *testing.T) {
	c, err := NewCoordination(context.Background(), config.RedisConfig{}, time.Minute)
	require.NoError(t, err)
	defer c.Close()

	assert.Nil(t, c.Redis)
	assert.IsType(t, &InMemoryIdempotencyStore{}, c.Idempotency)
	assert.IsType(t, &LocalRunLock{}, c.RunLock)
}

func TestNewCoordination_RedisUnreachable(t *testing.T) {
	unreachable := config.RedisConfig{Host: "127.0.0.1", Port: 1}

	t.Run("falls back with a warning", func(t *testing.T) {
		core, logs := observer.New(zap.WarnLevel)
		c, err := NewCoordination(context.Background(), unreachable, time.Minute, WithLogger(zap.New(core)))
		require.NoError(t, err)
		defer c.Close()

		assert.IsType(t, &LocalRunLock{}, c.RunLock)
		assert.Equal(t, 1, logs.FilterMessageSnippet("falling back").Len())
	})

	t.Run("fails without fallback", func(t *testing.T) {
		_, err := NewCoordination(context.Background(), unreachable, time.Minute, WithInMemoryFallback(false))
		assert.Error(t, err)
	})
}
