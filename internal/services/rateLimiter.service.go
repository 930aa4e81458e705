package services

import (
	"context"
	"strings"
	"sync"
	"time"

	"nexus/internal/utils"

	logger "github.com/Bparsons0904/goLogger"
)

const (
	TELEMETRY_RATE_LIMIT        = 10               // requests per window
	TELEMETRY_RATE_WINDOW       = 60 * time.Second // fixed window
	CLIENT_ID_USER_AGENT_LENGTH = 64
	UNKNOWN_CLIENT_ID           = "unknown"
)

// RateLimitRecord is the fixed-window counter kept per client identifier
type RateLimitRecord struct {
	Count     int64
	ResetTime time.Time
}

// RateLimitDecision is the outcome of a single Allow call
type RateLimitDecision struct {
	Allowed   bool
	Count     int64
	Limit     int64
	Remaining int64
	ResetAt   time.Time
}

// RetryAfter returns the time left in the window, rounded up to whole seconds
func (d RateLimitDecision) RetryAfter(now time.Time) time.Duration {
	wait := d.ResetAt.Sub(now)
	if wait <= 0 {
		return 0
	}
	return (wait + time.Second - 1).Truncate(time.Second)
}

// RateLimitStore counts hits for a key inside a fixed window
type RateLimitStore interface {
	// Hit records one request and returns the window's count and reset time
	Hit(ctx context.Context, key string, now time.Time, window time.Duration) (RateLimitRecord, error)
	// Sweep removes windows that ended before now and returns how many were removed
	Sweep(ctx context.Context, now time.Time) (int, error)
}

type RateLimiterService struct {
	store  RateLimitStore
	limit  int64
	window time.Duration
	now    func() time.Time
	log    logger.Logger
}

func NewRateLimiterService(store RateLimitStore, limit int, window time.Duration) *RateLimiterService {
	log := logger.New("rateLimiterService")

	if store == nil {
		store = NewMemoryRateLimitStore()
	}
	if limit <= 0 {
		limit = TELEMETRY_RATE_LIMIT
	}
	if window <= 0 {
		window = TELEMETRY_RATE_WINDOW
	}

	log.Info("Rate limiter initialized", "limit", limit, "window", window.String())

	return &RateLimiterService{
		store:  store,
		limit:  int64(limit),
		window: window,
		now:    time.Now,
		log:    log,
	}
}

// Allow counts the request against the client's window.
// Store failures fail open.
func (r *RateLimiterService) Allow(ctx context.Context, clientID string) RateLimitDecision {
	log := r.log.Function("Allow")
	now := r.now()

	record, err := r.store.Hit(ctx, clientID, now, r.window)
	if err != nil {
		log.Er("Rate limit store failed, allowing request", err, "clientID", clientID)
		return RateLimitDecision{
			Allowed:   true,
			Limit:     r.limit,
			Remaining: r.limit,
			ResetAt:   now.Add(r.window),
		}
	}

	remaining := r.limit - record.Count
	if remaining < 0 {
		remaining = 0
	}

	decision := RateLimitDecision{
		Allowed:   record.Count <= r.limit,
		Count:     record.Count,
		Limit:     r.limit,
		Remaining: remaining,
		ResetAt:   record.ResetTime,
	}

	if !decision.Allowed {
		log.Info("Client rate limited",
			"clientID", clientID,
			"count", record.Count,
			"limit", r.limit,
			"resetAt", record.ResetTime)
	}

	return decision
}

// Sweep drops expired windows from the store
func (r *RateLimiterService) Sweep(ctx context.Context) (int, error) {
	log := r.log.Function("Sweep")

	removed, err := r.store.Sweep(ctx, r.now())
	if err != nil {
		return 0, log.Err("failed to sweep rate limit store", err)
	}

	if removed > 0 {
		log.Debug("Swept expired rate limit windows", "removed", removed)
	}
	return removed, nil
}

// Now exposes the limiter clock so responses compute Retry-After consistently
func (r *RateLimiterService) Now() time.Time {
	return r.now()
}

// ClientIdentifier derives the rate limit key: the trusted proxy header, else the socket
// address, joined with a truncated user agent. X-Forwarded-For is never consulted.
func ClientIdentifier(proxyIP, remoteIP, userAgent string) string {
	ip := strings.TrimSpace(proxyIP)
	if ip == "" {
		ip = strings.TrimSpace(remoteIP)
	}

	agent, _ := utils.CleanUTF8(strings.TrimSpace(userAgent))
	agent = utils.Truncate(agent, CLIENT_ID_USER_AGENT_LENGTH)

	switch {
	case ip == "" && agent == "":
		return UNKNOWN_CLIENT_ID
	case agent == "":
		return ip
	case ip == "":
		return UNKNOWN_CLIENT_ID + "|" + agent
	default:
		return ip + "|" + agent
	}
}

// MemoryRateLimitStore keeps windows in process memory. It protects a single
// instance only.
type MemoryRateLimitStore struct {
	mu      sync.Mutex
	records map[string]*RateLimitRecord
}

func NewMemoryRateLimitStore() *MemoryRateLimitStore {
	return &MemoryRateLimitStore{
		records: make(map[string]*RateLimitRecord),
	}
}

func (m *MemoryRateLimitStore) Hit(
	_ context.Context,
	key string,
	now time.Time,
	window time.Duration,
) (RateLimitRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, ok := m.records[key]
	if !ok || now.After(record.ResetTime) {
		record = &RateLimitRecord{Count: 1, ResetTime: now.Add(window)}
		m.records[key] = record
		return *record, nil
	}

	record.Count++
	return *record, nil
}

func (m *MemoryRateLimitStore) Sweep(_ context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for key, record := range m.records {
		if now.After(record.ResetTime) {
			delete(m.records, key)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of tracked clients
func (m *MemoryRateLimitStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}
