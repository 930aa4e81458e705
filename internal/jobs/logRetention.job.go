package jobs

import (
	"context"

	"nexus/internal/services"

	logger "github.com/Bparsons0904/goLogger"
)

type LogRetentionJob struct {
	retention *services.LogRetentionService
	log       logger.Logger
	schedule  services.Schedule
}

func NewLogRetentionJob(
	retention *services.LogRetentionService,
	schedule services.Schedule,
) *LogRetentionJob {
	log := logger.New("logRetentionJob")
	log.Info("Creating new log retention job", "schedule", schedule.String())

	return &LogRetentionJob{
		retention: retention,
		log:       log,
		schedule:  schedule,
	}
}

func (j *LogRetentionJob) Name() string {
	return "RotatedLogRetention"
}

func (j *LogRetentionJob) Execute(ctx context.Context) error {
	log := j.log.Function("Execute")

	log.Info("Starting scheduled rotated log cleanup")

	removed, err := j.retention.CleanupExpired(ctx)
	if err != nil {
		return log.Err("scheduled rotated log cleanup failed", err)
	}

	log.Info("Scheduled rotated log cleanup completed", "removed", removed)
	return nil
}

func (j *LogRetentionJob) Schedule() services.Schedule {
	return j.schedule
}
