package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/valkey-io/valkey-go"
)

type CacheBuilder struct {
	cache      valkey.Client
	key        string
	ttl        time.Duration
	ctx        context.Context
	ctxTimeout time.Duration
}

func NewCacheBuilder(cache valkey.Client, key string) *CacheBuilder {
	return &CacheBuilder{
		cache:      cache,
		key:        key,
		ttl:        1 * time.Hour,
		ctxTimeout: 5 * time.Second,
		ctx:        context.Background(),
	}
}

func (cb *CacheBuilder) WithHashPattern(hashPattern string) *CacheBuilder {
	if hashPattern != "" {
		cb.key = fmt.Sprintf(hashPattern, cb.key)
	}

	return cb
}

func (cb *CacheBuilder) WithTTL(ttl time.Duration) *CacheBuilder {
	cb.ttl = ttl
	return cb
}

func (cb *CacheBuilder) WithContext(ctx context.Context) *CacheBuilder {
	cb.ctx = ctx
	return cb
}

// Incr increments the counter at key and returns its new value
func (cb *CacheBuilder) Incr() (int64, error) {
	if cb.key == "" {
		return 0, fmt.Errorf("key is required")
	}

	ctx, cancel := cb.createTimeoutContext()
	defer cancel()

	return cb.cache.Do(ctx, cb.cache.B().Incr().Key(cb.key).Build()).AsInt64()
}

// Expire sets the key to expire after the builder TTL, with millisecond precision
func (cb *CacheBuilder) Expire() error {
	if cb.key == "" {
		return fmt.Errorf("key is required")
	}

	if cb.ttl <= 0 {
		return fmt.Errorf("ttl must be positive")
	}

	ctx, cancel := cb.createTimeoutContext()
	defer cancel()

	return cb.cache.Do(ctx, cb.cache.B().Pexpire().Key(cb.key).Milliseconds(cb.ttl.Milliseconds()).Build()).
		Error()
}

// TTL returns the remaining lifetime of key. The bool is false when the key
// does not exist or has no expiry.
func (cb *CacheBuilder) TTL() (time.Duration, bool, error) {
	if cb.key == "" {
		return 0, false, fmt.Errorf("key is required")
	}

	ctx, cancel := cb.createTimeoutContext()
	defer cancel()

	ms, err := cb.cache.Do(ctx, cb.cache.B().Pttl().Key(cb.key).Build()).AsInt64()
	if err != nil {
		if isKeyNotFoundError(err) {
			return 0, false, nil
		}
		return 0, false, err
	}

	if ms < 0 {
		return 0, false, nil
	}

	return time.Duration(ms) * time.Millisecond, true, nil
}

func (cb *CacheBuilder) createTimeoutContext() (context.Context, context.CancelFunc) {
	if deadline, ok := cb.ctx.Deadline(); ok {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return context.WithCancel(cb.ctx)
		}
		if remaining < cb.ctxTimeout {
			return context.WithCancel(cb.ctx)
		}
	}
	return context.WithTimeout(cb.ctx, cb.ctxTimeout)
}

// isKeyNotFoundError checks if the error is a "key not found" error from Valkey/Redis
func isKeyNotFoundError(err error) bool {
	if err == nil {
		return false
	}

	errStr := err.Error()
	return strings.Contains(errStr, "key not found") ||
		valkey.IsValkeyNil(err)
}
