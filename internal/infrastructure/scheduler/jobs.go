package scheduler

import (
	"context"
	"time"

	"github.com/founderlink/founder-match/pkg/logger"
)

// Job names.
const (
	JobSweepSessions   = "sweep_sessions"
	JobRefreshSnapshot = "refresh_snapshot"
)

// SessionSweeper closes sessions older than maxAge and reports how many.
type SessionSweeper interface {
	SweepIdle(maxAge time.Duration) int
}

// SnapshotReloader re-reads the profile snapshot.
type SnapshotReloader interface {
	Reload() error
	Len() int
}

// SweepSessionsJob expires swipe sessions after maxAge.
// Connections outlive their sessions.
type SweepSessionsJob struct {
	sessions SessionSweeper
	maxAge   time.Duration
	log      *logger.Logger
}

// NewSweepSessionsJob creates the job.
func NewSweepSessionsJob(sessions SessionSweeper, maxAge time.Duration, log *logger.Logger) *SweepSessionsJob {
	if log == nil {
		log = logger.NewNop()
	}
	return &SweepSessionsJob{sessions: sessions, maxAge: maxAge, log: log}
}

// Name implements Job.
func (j *SweepSessionsJob) Name() string { return JobSweepSessions }

// Run implements Job.
func (j *SweepSessionsJob) Run(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if n := j.sessions.SweepIdle(j.maxAge); n > 0 {
		j.log.Info("expired swipe sessions", logger.Int("closed", n))
	}
	return nil
}

// RefreshSnapshotJob reloads the snapshot; a failed reload keeps the old one.
type RefreshSnapshotJob struct {
	snapshot SnapshotReloader
	log      *logger.Logger
}

// NewRefreshSnapshotJob creates the job.
func NewRefreshSnapshotJob(snapshot SnapshotReloader, log *logger.Logger) *RefreshSnapshotJob {
	if log == nil {
		log = logger.NewNop()
	}
	return &RefreshSnapshotJob{snapshot: snapshot, log: log}
}

// Name implements Job.
func (j *RefreshSnapshotJob) Name() string { return JobRefreshSnapshot }

// Run implements Job.
func (j *RefreshSnapshotJob) Run(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := j.snapshot.Reload(); err != nil {
		return err
	}
	j.log.Debug("profile snapshot refreshed", logger.PoolSize(j.snapshot.Len()))
	return nil
}
