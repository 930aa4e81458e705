package handlers

import (
	"errors"

	"nexus/internal/app"
	"nexus/internal/services"
	"nexus/internal/types"

	logger "github.com/Bparsons0904/goLogger"
	"github.com/gofiber/fiber/v2"
)

const (
	InvalidPayloadError = "invalid_payload"
	InternalError       = "internal_error"
	errorEntryLocal     = "errorLogEntry"
)

// TelemetrySink appends one record to the log of the given kind
type TelemetrySink interface {
	Append(kind types.LogKind, record any) error
}

type TelemetryHandler struct {
	Handler
	validation *services.ValidationService
	sink       TelemetrySink
}

func NewTelemetryHandler(app app.App, router fiber.Router) *TelemetryHandler {
	log := logger.New("handlers").File("telemetry_handler")
	return &TelemetryHandler{
		validation: app.Services.Validation,
		sink:       app.Services.LogWriter,
		Handler: Handler{
			log:        log,
			router:     router,
			middleware: app.Middleware,
		},
	}
}

func (h *TelemetryHandler) Register() {
	h.router.Post("/log-error", h.parseErrorLog, h.middleware.RateLimit(), h.logError)
	h.router.Post("/vitals", h.vitals)
}

// parseErrorLog rejects bad payloads before they count against the caller's window
func (h *TelemetryHandler) parseErrorLog(c *fiber.Ctx) error {
	log := h.log.TraceFromContext(c.UserContext()).Function("parseErrorLog")

	entry, err := h.validation.ParseErrorLog(c.Body())
	if err != nil {
		details := err.Error()
		var validationErr *services.ValidationError
		if !errors.As(err, &validationErr) {
			log.Er("Unexpected error parsing error log", err)
			details = "request body could not be read"
		}
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"ok":      false,
			"error":   InvalidPayloadError,
			"details": details,
		})
	}

	c.Locals(errorEntryLocal, entry)
	return c.Next()
}

func (h *TelemetryHandler) logError(c *fiber.Ctx) error {
	log := h.log.TraceFromContext(c.UserContext()).Function("logError")

	entry, ok := c.Locals(errorEntryLocal).(types.ErrorLogEntry)
	if !ok {
		log.Warn("Error log entry missing from request context")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"ok":    false,
			"error": InternalError,
		})
	}

	if err := h.sink.Append(types.LogKindErrors, entry); err != nil {
		log.Er("Failed to persist error log", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"ok":    false,
			"error": InternalError,
		})
	}

	return c.JSON(fiber.Map{"ok": true})
}

func (h *TelemetryHandler) vitals(c *fiber.Ctx) error {
	log := h.log.TraceFromContext(c.UserContext()).Function("vitals")

	entry, err := h.validation.ParseVital(c.Body())
	if err != nil {
		log.Debug("Rejected vital metric", "reason", err.Error())
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"ok":    false,
			"error": InvalidPayloadError,
		})
	}

	if err := h.sink.Append(types.LogKindVitals, entry); err != nil {
		log.Er("Failed to persist vital metric", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"ok": false})
	}

	return c.JSON(fiber.Map{"ok": true})
}
