package handlers

import (
	"time"

	"nexus/internal/app"

	logger "github.com/Bparsons0904/goLogger"
	"github.com/gofiber/fiber/v2"
)

const healthTimestampLayout = "2006-01-02T15:04:05.000Z07:00"

func HealthHandler(router fiber.Router, app *app.App) {
	log := logger.New("handlers").File("health_handler")

	router.Get("/health", func(c *fiber.Ctx) error {
		timestamp := time.Now().UTC().Format(healthTimestampLayout)
		log := log.TraceFromContext(c.UserContext()).Function("health")

		if err := app.Services.LogWriter.Ready(); err != nil {
			log.Er("Health check failed", err)
			return healthError(c, timestamp, "log directory unavailable")
		}

		cache := "disabled"
		if app.Database.HasCache() {
			if err := app.Database.Ping(c.UserContext()); err != nil {
				log.Er("Health check failed", err)
				return healthError(c, timestamp, "cache unavailable")
			}
			cache = "ok"
		}

		return c.JSON(fiber.Map{
			"status":      "ok",
			"timestamp":   timestamp,
			"environment": app.Config.Environment,
			"version":     app.Config.GeneralVersion,
			"apis": fiber.Map{
				"modules":   "ok",
				"telemetry": "ok",
				"cache":     cache,
			},
		})
	})
}

func healthError(c *fiber.Ctx, timestamp, reason string) error {
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"status":    "error",
		"timestamp": timestamp,
		"error":     reason,
	})
}
