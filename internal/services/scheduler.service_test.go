package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingJob struct {
	name     string
	schedule Schedule
	runs     atomic.Int32
	err      error
}

func (j *countingJob) Name() string { return j.name }

func (j *countingJob) Execute(ctx context.Context) error {
	j.runs.Add(1)
	return j.err
}

func (j *countingJob) Schedule() Schedule { return j.schedule }

func TestSchedulerService_Lifecycle(t *testing.T) {
	scheduler := NewSchedulerService()
	ctx := context.Background()

	t.Run("Start without jobs is a no-op", func(t *testing.T) {
		require.NoError(t, scheduler.Start(ctx))
		assert.False(t, scheduler.IsRunning())
		assert.Nil(t, scheduler.GetNextRunTime())
	})

	job := &countingJob{name: "sweep", schedule: EveryMinute}
	require.NoError(t, scheduler.AddJob(job))
	require.NoError(t, scheduler.AddJob(&countingJob{name: "cleanup", schedule: Daily}))
	assert.Equal(t, 2, scheduler.GetJobCount())

	require.NoError(t, scheduler.Start(ctx))
	assert.True(t, scheduler.IsRunning())
	assert.NotNil(t, scheduler.GetNextRunTime())

	require.NoError(t, scheduler.Stop(ctx))
	assert.False(t, scheduler.IsRunning())
	require.NoError(t, scheduler.Stop(ctx))
}

func TestSchedulerService_RejectsUnknownSchedule(t *testing.T) {
	scheduler := NewSchedulerService()

	err := scheduler.AddJob(&countingJob{name: "odd", schedule: Schedule(42)})
	assert.Error(t, err)
	assert.Equal(t, 0, scheduler.GetJobCount())
}

func TestSchedulerService_TriggerJobByName(t *testing.T) {
	scheduler := NewSchedulerService()
	ctx := context.Background()

	job := &countingJob{name: "sweep", schedule: EveryMinute}
	failing := &countingJob{name: "broken", schedule: Daily, err: errors.New("boom")}
	require.NoError(t, scheduler.AddJob(job))
	require.NoError(t, scheduler.AddJob(failing))

	require.NoError(t, scheduler.TriggerJobByName(ctx, "sweep"))
	assert.Equal(t, int32(1), job.runs.Load())

	assert.Error(t, scheduler.TriggerJobByName(ctx, "broken"))
	assert.Equal(t, int32(1), failing.runs.Load())

	assert.Error(t, scheduler.TriggerJobByName(ctx, "missing"))
}

func TestSchedule_String(t *testing.T) {
	assert.Equal(t, "every-minute", EveryMinute.String())
	assert.Equal(t, "daily", Daily.String())
	assert.Equal(t, "unknown", Schedule(9).String())
}
