package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextstep-hub/learning-engine/pkg/logger"
)

type nullWriter struct{}

func (nullWriter) Write(p []byte) (int, error) { return len(p), nil }

func newTestScheduler() *Scheduler {
	cfg := DefaultConfig()
	cfg.Logger = logger.New(logger.Options{Level: logger.LevelError, Output: nullWriter{}})
	return New(cfg)
}

type stubJob struct {
	name string
	runs atomic.Int64
	err  error
}

func (j *stubJob) Name() string        { return j.name }
func (j *stubJob) Description() string { return "stub job" }
func (j *stubJob) Run(context.Context) error {
	j.runs.Add(1)
	return j.err
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	s := newTestScheduler()
	sched := NewIntervalSchedule(time.Hour)

	require.NoError(t, s.Register(&stubJob{name: "sweep"}, sched))
	err := s.Register(&stubJob{name: "sweep"}, sched)
	assert.ErrorIs(t, err, ErrJobAlreadyExists)
}

func TestRegisterNilGuards(t *testing.T) {
	s := newTestScheduler()

	assert.ErrorIs(t, s.Register(nil, NewIntervalSchedule(time.Hour)), ErrNilJob)
	assert.ErrorIs(t, s.Register(&stubJob{name: "x"}, nil), ErrNilSchedule)
}

func TestRunNowExecutesAndRecords(t *testing.T) {
	s := newTestScheduler()
	job := &stubJob{name: "rebuild"}
	require.NoError(t, s.Register(job, NewIntervalSchedule(time.Hour)))

	result, err := s.RunNow(context.Background(), "rebuild")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, int64(1), job.runs.Load())

	history := s.GetHistory(10)
	require.Len(t, history, 1)
	assert.Equal(t, "rebuild", history[0].JobName)
	assert.Equal(t, true, history[0].Metadata["manual"])
}

func TestRunNowUnknownJob(t *testing.T) {
	s := newTestScheduler()

	_, err := s.RunNow(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestRunNowPropagatesJobError(t *testing.T) {
	s := newTestScheduler()
	job := &stubJob{name: "flaky", err: errors.New("db down")}
	require.NoError(t, s.Register(job, NewIntervalSchedule(time.Hour)))

	result, err := s.RunNow(context.Background(), "flaky")
	require.Error(t, err)
	assert.False(t, result.Success)

	snap := s.Metrics().Snapshot()
	assert.Equal(t, int64(1), snap.TotalFailures)
}

func TestStartStopLifecycle(t *testing.T) {
	s := newTestScheduler()

	require.NoError(t, s.Start(context.Background()))
	assert.True(t, s.IsRunning())
	assert.ErrorIs(t, s.Start(context.Background()), ErrSchedulerAlreadyRunning)

	require.NoError(t, s.Stop())
	assert.False(t, s.IsRunning())
	assert.ErrorIs(t, s.Stop(), ErrSchedulerNotRunning)
}

func TestDisableAndEnableJob(t *testing.T) {
	s := newTestScheduler()
	require.NoError(t, s.Register(&stubJob{name: "sweep"}, NewIntervalSchedule(time.Hour)))

	require.NoError(t, s.DisableJob("sweep"))
	jobs := s.ListJobs()
	require.Len(t, jobs, 1)
	assert.False(t, jobs[0].Enabled)

	require.NoError(t, s.EnableJob("sweep"))
	assert.True(t, s.ListJobs()[0].Enabled)

	assert.ErrorIs(t, s.DisableJob("ghost"), ErrJobNotFound)
}

func TestIntervalSchedule(t *testing.T) {
	sched := NewIntervalSchedule(15 * time.Minute)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, base.Add(15*time.Minute), sched.Next(base))
	assert.Equal(t, "@every 15m0s", sched.String())
}

func TestCronExpression_DailyAt21(t *testing.T) {
	ce, err := ParseCronExpression(EveryDay21PM)
	require.NoError(t, err)

	morning := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	next := ce.Next(morning)
	assert.Equal(t, time.Date(2026, 3, 1, 21, 0, 0, 0, time.UTC), next)

	// After 21:00 it rolls into the next day.
	evening := time.Date(2026, 3, 1, 21, 0, 30, 0, time.UTC)
	next = ce.Next(evening)
	assert.Equal(t, time.Date(2026, 3, 2, 21, 0, 0, 0, time.UTC), next)
}

func TestCronExpression_StepValues(t *testing.T) {
	ce, err := ParseCronExpression(Every15Minutes)
	require.NoError(t, err)

	base := time.Date(2026, 3, 1, 10, 7, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 3, 1, 10, 15, 0, 0, time.UTC), ce.Next(base))
}

func TestCronExpression_Invalid(t *testing.T) {
	cases := []string{
		"* * * *",        // 4 fields
		"61 * * * *",     // minute out of range
		"* 25 * * *",     // hour out of range
		"bad * * * *",    // not a number
		"*/0 * * * *",    // zero step
		"* * * * * * *",  // too many fields
	}
	for _, expr := range cases {
		_, err := ParseCronExpression(expr)
		assert.Error(t, err, expr)
	}
}
