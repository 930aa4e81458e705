package jobs

import (
	"nexus/config"
	"nexus/internal/services"

	logger "github.com/Bparsons0904/goLogger"
)

const (
	EveryMinute = services.EveryMinute
	Daily       = services.Daily
)

// RegisterAllJobs registers all jobs with the scheduler service
func RegisterAllJobs(
	schedulerService *services.SchedulerService,
	config config.Config,
	services services.Service,
) error {
	log := logger.New("jobs").Function("RegisterAllJobs")

	if !config.SchedulerEnabled {
		log.Info("Scheduler disabled, skipping job registration")
		return nil
	}

	log.Info("Registering jobs")

	rateLimitSweepJob := NewRateLimitSweepJob(services.RateLimiter, EveryMinute)
	if err := schedulerService.AddJob(rateLimitSweepJob); err != nil {
		return log.Err("failed to register rate limit sweep job", err)
	}

	if services.LogRetention.Enabled() {
		logRetentionJob := NewLogRetentionJob(services.LogRetention, Daily)
		if err := schedulerService.AddJob(logRetentionJob); err != nil {
			return log.Err("failed to register log retention job", err)
		}
	} else {
		log.Info("Log retention disabled, rotated files are kept")
	}

	return nil
}
