package services

import (
	"context"
	"fmt"
	"time"

	"nexus/internal/database"

	"github.com/valkey-io/valkey-go"
)

const TELEMETRY_RATE_LIMIT_KEY = "telemetry_rate_limit:%s" // %s = client identifier

// ValkeyRateLimitStore shares fixed windows between instances. Each window is a
// counter key whose TTL is the window length, so expired windows reclaim themselves.
type ValkeyRateLimitStore struct {
	cache valkey.Client
}

func NewValkeyRateLimitStore(cache valkey.Client) *ValkeyRateLimitStore {
	return &ValkeyRateLimitStore{cache: cache}
}

func (v *ValkeyRateLimitStore) Hit(
	ctx context.Context,
	key string,
	now time.Time,
	window time.Duration,
) (RateLimitRecord, error) {
	counter := database.NewCacheBuilder(v.cache, key).
		WithHashPattern(TELEMETRY_RATE_LIMIT_KEY).
		WithContext(ctx).
		WithTTL(window)

	count, err := counter.Incr()
	if err != nil {
		return RateLimitRecord{}, fmt.Errorf("failed to increment rate limit counter: %w", err)
	}

	if count == 1 {
		if err := counter.Expire(); err != nil {
			return RateLimitRecord{}, fmt.Errorf("failed to set rate limit window: %w", err)
		}
		return RateLimitRecord{Count: count, ResetTime: now.Add(window)}, nil
	}

	ttl, ok, err := counter.TTL()
	if err != nil {
		return RateLimitRecord{}, fmt.Errorf("failed to read rate limit window: %w", err)
	}

	// A counter without TTL means the expiry after the first hit was lost; restart the window
	if !ok {
		if err := counter.Expire(); err != nil {
			return RateLimitRecord{}, fmt.Errorf("failed to repair rate limit window: %w", err)
		}
		ttl = window
	}

	return RateLimitRecord{
		Count:     count,
		ResetTime: now.Add(ttl),
	}, nil
}

// Sweep is a no-op: valkey expires window keys on its own
func (v *ValkeyRateLimitStore) Sweep(context.Context, time.Time) (int, error) {
	return 0, nil
}
