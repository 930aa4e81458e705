package jobs

import (
	"context"

	"nexus/internal/services"

	logger "github.com/Bparsons0904/goLogger"
)

type RateLimitSweepJob struct {
	rateLimiter *services.RateLimiterService
	log         logger.Logger
	schedule    services.Schedule
}

func NewRateLimitSweepJob(
	rateLimiter *services.RateLimiterService,
	schedule services.Schedule,
) *RateLimitSweepJob {
	log := logger.New("rateLimitSweepJob")
	log.Info("Creating new rate limit sweep job", "schedule", schedule.String())

	return &RateLimitSweepJob{
		rateLimiter: rateLimiter,
		log:         log,
		schedule:    schedule,
	}
}

func (j *RateLimitSweepJob) Name() string {
	return "RateLimitSweep"
}

func (j *RateLimitSweepJob) Execute(ctx context.Context) error {
	log := j.log.Function("Execute")

	removed, err := j.rateLimiter.Sweep(ctx)
	if err != nil {
		return log.Err("rate limit sweep failed", err)
	}

	log.Debug("Rate limit sweep completed", "removed", removed)
	return nil
}

func (j *RateLimitSweepJob) Schedule() services.Schedule {
	return j.schedule
}
