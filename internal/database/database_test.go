package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"nexus/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheConstants(t *testing.T) {
	assert.Equal(t, 0, GENERAL_CACHE_INDEX)
	assert.Equal(t, 1, RATE_LIMIT_CACHE_INDEX)
}

func TestNew_WithoutCache(t *testing.T) {
	db, err := New(config.Config{})
	require.NoError(t, err)

	assert.False(t, db.HasCache())
	assert.NoError(t, db.Ping(context.Background()))
	assert.NoError(t, db.Close())
}

func TestCacheBuilder_HashPattern(t *testing.T) {
	builder := NewCacheBuilder(nil, "10.0.0.1|curl").WithHashPattern("telemetry_rate_limit:%s")
	assert.Equal(t, "telemetry_rate_limit:10.0.0.1|curl", builder.key)

	unchanged := NewCacheBuilder(nil, "abc").WithHashPattern("")
	assert.Equal(t, "abc", unchanged.key)
}

func TestCacheBuilder_RequiresKey(t *testing.T) {
	builder := NewCacheBuilder(nil, "")

	_, err := builder.Incr()
	assert.Error(t, err)
	assert.Error(t, builder.Expire())

	_, _, err = builder.TTL()
	assert.Error(t, err)
}

func TestCacheBuilder_ExpireRequiresPositiveTTL(t *testing.T) {
	err := NewCacheBuilder(nil, "key").WithTTL(0).Expire()
	assert.Error(t, err)
}

func TestCacheBuilder_TimeoutContext(t *testing.T) {
	t.Run("Applies builder timeout", func(t *testing.T) {
		ctx, cancel := NewCacheBuilder(nil, "key").createTimeoutContext()
		defer cancel()

		deadline, ok := ctx.Deadline()
		require.True(t, ok)
		assert.WithinDuration(t, time.Now().Add(5*time.Second), deadline, 100*time.Millisecond)
	})

	t.Run("Keeps a shorter parent deadline", func(t *testing.T) {
		parent, parentCancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer parentCancel()

		ctx, cancel := NewCacheBuilder(nil, "key").WithContext(parent).createTimeoutContext()
		defer cancel()

		parentDeadline, _ := parent.Deadline()
		deadline, ok := ctx.Deadline()
		require.True(t, ok)
		assert.Equal(t, parentDeadline, deadline)
	})
}

func TestIsKeyNotFoundError(t *testing.T) {
	assert.False(t, isKeyNotFoundError(nil))
	assert.True(t, isKeyNotFoundError(errors.New("key not found")))
	assert.False(t, isKeyNotFoundError(errors.New("connection refused")))
}
