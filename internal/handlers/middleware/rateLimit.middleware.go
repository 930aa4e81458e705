package middleware

import (
	"strconv"
	"time"

	"nexus/internal/services"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
)

const (
	RateLimitLimitHeader     = "X-RateLimit-Limit"
	RateLimitRemainingHeader = "X-RateLimit-Remaining"
	RateLimitExceededError   = "rate_limit_exceeded"
)

// RateLimit counts the request against the caller's fixed window and answers 429
// once the window is exhausted
func (m *Middleware) RateLimit() fiber.Handler {
	return func(c *fiber.Ctx) error {
		log := m.log.TraceFromContext(c.UserContext()).Function("RateLimit")

		clientID := m.ClientID(c)
		decision := m.rateLimiter.Allow(c.UserContext(), clientID)

		c.Set(RateLimitLimitHeader, strconv.FormatInt(decision.Limit, 10))
		c.Set(RateLimitRemainingHeader, strconv.FormatInt(decision.Remaining, 10))

		if decision.Allowed {
			return c.Next()
		}

		retryAfter := decision.RetryAfter(m.rateLimiter.Now())
		c.Set(fiber.HeaderRetryAfter, strconv.FormatInt(int64(retryAfter/time.Second), 10))

		log.Warn("Rejected rate limited request", "clientID", clientID, "path", c.Path())
		return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
			"ok":    false,
			"error": RateLimitExceededError,
		})
	}
}

// ClientID derives the rate limit key from the configured proxy header, the socket
// address and the user agent. Header values are copied since fasthttp reuses their
// buffers once the request completes and the key outlives it in the store.
func (m *Middleware) ClientID(c *fiber.Ctx) string {
	proxyIP := ""
	if m.Config.RateLimitClientHeader != "" {
		proxyIP = utils.CopyString(c.Get(m.Config.RateLimitClientHeader))
	}

	remoteIP := ""
	if ip := c.Context().RemoteIP(); ip != nil && !ip.IsUnspecified() {
		remoteIP = ip.String()
	}

	userAgent := utils.CopyString(c.Get(fiber.HeaderUserAgent))

	return services.ClientIdentifier(proxyIP, remoteIP, userAgent)
}
