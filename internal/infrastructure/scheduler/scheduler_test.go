package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/founderlink/founder-match/pkg/logger"
)

type recordingMetrics struct {
	mu   sync.Mutex
	runs map[string]int
	errs map[string]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{runs: map[string]int{}, errs: map[string]int{}}
}

func (m *recordingMetrics) JobExecuted(job string, _ time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[job]++
	if err != nil {
		m.errs[job]++
	}
}

func TestSchedulerRunsDueJobs(t *testing.T) {
	var calls atomic.Int32
	s := New(Config{Logger: logger.NewTest(t), TickInterval: 10 * time.Millisecond})
	require.NoError(t, s.Register(JobFunc{JobName: "tick", Fn: func(context.Context) error {
		calls.Add(1)
		return nil
	}}, IntervalSchedule{interval: 20 * time.Millisecond}))

	require.NoError(t, s.Start(context.Background()))
	assert.Eventually(t, func() bool { return calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	require.NoError(t, s.Stop())

	assert.ErrorIs(t, s.Stop(), ErrSchedulerNotRunning)
}

func TestSchedulerDoesNotOverlapJob(t *testing.T) {
	var (
		active, peak atomic.Int32
		release      = make(chan struct{})
	)
	s := New(Config{TickInterval: 5 * time.Millisecond})
	require.NoError(t, s.Register(JobFunc{JobName: "slow", Fn: func(ctx context.Context) error {
		n := active.Add(1)
		defer active.Add(-1)
		if n > peak.Load() {
			peak.Store(n)
		}
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	}}, IntervalSchedule{interval: time.Millisecond}))

	require.NoError(t, s.Start(context.Background()))
	time.Sleep(50 * time.Millisecond)
	close(release)
	require.NoError(t, s.Stop())

	assert.Equal(t, int32(1), peak.Load())
}

func TestRunNowRecordsFailuresAndPanics(t *testing.T) {
	metrics := newRecordingMetrics()
	s := New(Config{Metrics: metrics})

	require.NoError(t, s.Register(JobFunc{JobName: "fail", Fn: func(context.Context) error {
		return errors.New("boom")
	}}, Every(time.Hour)))
	require.NoError(t, s.Register(JobFunc{JobName: "panic", Fn: func(context.Context) error {
		panic("kaput")
	}}, Every(time.Hour)))

	res, err := s.RunNow(context.Background(), "fail")
	assert.EqualError(t, err, "boom")
	assert.True(t, res.Manual)

	_, err = s.RunNow(context.Background(), "panic")
	assert.ErrorContains(t, err, "panicked: kaput")

	_, err = s.RunNow(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)

	jobs := s.ListJobs()
	require.Len(t, jobs, 2)
	assert.Equal(t, "fail", jobs[0].Name)
	assert.Equal(t, int64(1), jobs[0].Failures)
	assert.Equal(t, "every 1h0m0s", jobs[0].Schedule)
	assert.Equal(t, 1, metrics.errs["panic"])
}

func TestRegisterValidation(t *testing.T) {
	s := New(Config{})
	assert.ErrorIs(t, s.Register(nil, Every(time.Second)), ErrNilJob)

	job := JobFunc{JobName: "a", Fn: func(context.Context) error { return nil }}
	assert.ErrorIs(t, s.Register(job, nil), ErrNilSchedule)
	require.NoError(t, s.Register(job, Every(time.Second)))
	assert.ErrorIs(t, s.Register(job, Every(time.Second)), ErrJobAlreadyExists)
}

func TestEveryRoundsUp(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, start.Add(time.Second), Every(time.Millisecond).Next(start))
}

type fakeSweeper struct{ maxAge time.Duration }

func (f *fakeSweeper) SweepIdle(maxAge time.Duration) int {
	f.maxAge = maxAge
	return 3
}

type fakeReloader struct {
	err   error
	loads int
}

func (f *fakeReloader) Reload() error {
	f.loads++
	return f.err
}

func (f *fakeReloader) Len() int { return 7 }

func TestMaintenanceJobs(t *testing.T) {
	sweeper := &fakeSweeper{}
	require.NoError(t, NewSweepSessionsJob(sweeper, 24*time.Hour, nil).Run(context.Background()))
	assert.Equal(t, 24*time.Hour, sweeper.maxAge)

	reloader := &fakeReloader{}
	job := NewRefreshSnapshotJob(reloader, logger.NewTest(t))
	assert.Equal(t, JobRefreshSnapshot, job.Name())
	require.NoError(t, job.Run(context.Background()))

	reloader.err = errors.New("bad json")
	assert.EqualError(t, job.Run(context.Background()), "bad json")
	assert.Equal(t, 2, reloader.loads)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, job.Run(ctx), context.Canceled)
}
