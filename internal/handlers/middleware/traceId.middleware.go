package middleware

import (
	logger "github.com/Bparsons0904/goLogger"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const (
	// TraceIDHeader is the HTTP header for trace ID
	TraceIDHeader = "X-Trace-ID"

	// TraceIDLocalKey is the Fiber locals key for trace ID
	TraceIDLocalKey = "traceID"

	maxTraceIDLength = 128
)

// TraceID middleware extracts or generates a trace ID for request tracking
func (m *Middleware) TraceID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		traceID := c.Get(TraceIDHeader)

		// Client-supplied IDs are echoed back, so keep them bounded
		if traceID == "" || len(traceID) > maxTraceIDLength {
			traceID = uuid.New().String()
		}

		c.Set(TraceIDHeader, traceID)
		c.Locals(TraceIDLocalKey, traceID)

		// Add to Go context for use with logger.TraceFromContext()
		ctx := logger.ContextWithTraceID(c.UserContext(), traceID)
		c.SetUserContext(ctx)

		return c.Next()
	}
}
