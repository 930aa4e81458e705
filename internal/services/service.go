package services

import (
	"time"

	"nexus/config"
	"nexus/internal/database"
)

type Service struct {
	Validation   *ValidationService
	RateLimiter  *RateLimiterService
	LogWriter    *LogWriterService
	Aggregator   *AggregatorService
	LogRetention *LogRetentionService
	LogTail      *LogTailService
	LogForwarder *LogForwarderService
	Scheduler    *SchedulerService
}

func New(db database.DB, config config.Config) (Service, error) {
	var store RateLimitStore = NewMemoryRateLimitStore()
	if db.HasCache() {
		store = NewValkeyRateLimitStore(db.Cache.RateLimit)
	}

	rateLimiterService := NewRateLimiterService(
		store,
		config.RateLimitMax,
		time.Duration(config.RateLimitWindowSeconds)*time.Second,
	)

	return Service{
		Validation:   NewValidationService(),
		RateLimiter:  rateLimiterService,
		LogWriter:    NewLogWriterService(config.LogDir, config.LogMaxBytes),
		Aggregator:   NewAggregatorService(config.LogDir),
		LogRetention: NewLogRetentionService(config.LogDir, config.LogRetentionDays),
		LogTail:      NewLogTailService(config.LogDir),
		LogForwarder: NewLogForwarderService(config.LogForwardURL),
		Scheduler:    NewSchedulerService(),
	}, nil
}
