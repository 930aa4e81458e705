package middleware

import (
	"nexus/config"
	"nexus/internal/services"

	logger "github.com/Bparsons0904/goLogger"
)

type Middleware struct {
	Config      config.Config
	log         logger.Logger
	rateLimiter *services.RateLimiterService
}

func New(
	config config.Config,
	rateLimiter *services.RateLimiterService,
) Middleware {
	log := logger.New("middleware")

	return Middleware{
		Config:      config,
		log:         log,
		rateLimiter: rateLimiter,
	}
}
