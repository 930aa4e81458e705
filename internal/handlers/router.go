package handlers

import (
	"nexus/internal/app"
	"nexus/internal/handlers/middleware"
	"nexus/internal/types"

	logger "github.com/Bparsons0904/goLogger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

type Handler struct {
	middleware middleware.Middleware
	log        logger.Logger
	router     fiber.Router
}

func Router(router fiber.Router, app *app.App) (err error) {
	router.Use(app.Middleware.TraceID())

	if app.Websocket != nil {
		setupWebSocketRoute(router, app)
	}

	NewObservabilityHandler(*app, router).Register()

	api := router.Group("/api")
	HealthHandler(api, app)
	NewTelemetryHandler(*app, api).Register()

	return nil
}

func setupWebSocketRoute(router fiber.Router, app *app.App) {
	router.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			c.Locals("kind", feedKind(c.Query("kind")))
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	router.Get("/ws/telemetry", websocket.New(func(c *websocket.Conn) {
		kind, _ := c.Locals("kind").(types.LogKind)
		app.Websocket.HandleWebSocket(c, kind)
	}))
}

// feedKind maps the ?kind= filter of the live feed; anything unknown means every kind
func feedKind(value string) types.LogKind {
	for _, kind := range types.LogKinds {
		if string(kind) == value {
			return kind
		}
	}
	return ""
}
