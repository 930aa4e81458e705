package jobs

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"nexus/config"
	"nexus/internal/database"
	"nexus/internal/services"
	"nexus/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServices(t *testing.T, cfg config.Config) services.Service {
	t.Helper()
	svc, err := services.New(database.DB{}, cfg)
	require.NoError(t, err)
	return svc
}

func testConfig(t *testing.T) config.Config {
	return config.Config{
		LogDir:                 t.TempDir(),
		LogMaxBytes:            config.DefaultLogMaxBytes,
		RateLimitMax:           config.DefaultRateLimitMax,
		RateLimitWindowSeconds: config.DefaultRateLimitWindow,
		SchedulerEnabled:       true,
	}
}

func TestRegisterAllJobs(t *testing.T) {
	t.Run("Scheduler disabled", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.SchedulerEnabled = false
		svc := newTestServices(t, cfg)

		require.NoError(t, RegisterAllJobs(svc.Scheduler, cfg, svc))
		assert.Equal(t, 0, svc.Scheduler.GetJobCount())
	})

	t.Run("Retention disabled", func(t *testing.T) {
		cfg := testConfig(t)
		svc := newTestServices(t, cfg)

		require.NoError(t, RegisterAllJobs(svc.Scheduler, cfg, svc))
		assert.Equal(t, 1, svc.Scheduler.GetJobCount())
		assert.NoError(t, svc.Scheduler.TriggerJobByName(context.Background(), "RateLimitSweep"))
	})

	t.Run("Retention enabled", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.LogRetentionDays = 1
		svc := newTestServices(t, cfg)

		require.NoError(t, RegisterAllJobs(svc.Scheduler, cfg, svc))
		assert.Equal(t, 2, svc.Scheduler.GetJobCount())
	})
}

func TestLogRetentionJob_Execute(t *testing.T) {
	cfg := testConfig(t)
	cfg.LogRetentionDays = 1
	svc := newTestServices(t, cfg)

	old := time.Now().Add(-72 * time.Hour)
	expired := filepath.Join(cfg.LogDir, services.RotatedName(types.LogKindErrors, old))
	require.NoError(t, os.WriteFile(expired, []byte("{}\n"), services.LOG_FILE_MODE))
	require.NoError(t, os.Chtimes(expired, old, old))

	fresh := filepath.Join(cfg.LogDir, services.RotatedName(types.LogKindVitals, time.Now()))
	require.NoError(t, os.WriteFile(fresh, []byte("{}\n"), services.LOG_FILE_MODE))

	job := NewLogRetentionJob(svc.LogRetention, Daily)
	assert.Equal(t, Daily, job.Schedule())
	require.NoError(t, job.Execute(context.Background()))

	assert.NoFileExists(t, expired)
	assert.FileExists(t, fresh)
}

func TestRateLimitSweepJob_Execute(t *testing.T) {
	limiter := services.NewRateLimiterService(services.NewMemoryRateLimitStore(), 1, time.Millisecond)
	limiter.Allow(context.Background(), "client")

	job := NewRateLimitSweepJob(limiter, EveryMinute)
	assert.Equal(t, "RateLimitSweep", job.Name())
	assert.Equal(t, EveryMinute, job.Schedule())

	time.Sleep(5 * time.Millisecond)
	require.NoError(t, job.Execute(context.Background()))

	decision := limiter.Allow(context.Background(), "client")
	assert.True(t, decision.Allowed)
	assert.Equal(t, int64(1), decision.Count)
}
