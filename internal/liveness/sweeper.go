// Package liveness implements the Heartbeat & Liveness Monitor's background
// half: a periodic sweeper that marks stale workers dead and reclaims their
// in-flight jobs.
package liveness

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/aosc-dev/buildit/internal/store"
)

// Sweeper is registered with pkg/job.Manager via job.WithScheduledTask; its
// Schedule() is expressed in whole minutes because the underlying cron
// parser has no seconds field, so a sub-minute LIVENESS_TICK recommendation
// rounds up to the nearest minute here. The staleness comparison itself
// still uses Timeout at full duration precision, independent of tick
// granularity.
type Sweeper struct {
	store    *store.Store
	timeout  time.Duration
	tickCron string
	logger   *slog.Logger
}

// New constructs a Sweeper. tick is rounded to the nearest whole minute (at
// least one) for the cron schedule; timeout is the full-precision liveness
// window.
func New(s *store.Store, tick, timeout time.Duration, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		store:    s,
		timeout:  timeout,
		tickCron: cronEveryNMinutes(tick),
		logger:   logger,
	}
}

func (s *Sweeper) Name() string     { return "liveness_sweeper" }
func (s *Sweeper) Schedule() string { return s.tickCron }

// Handle is idempotent: reclaiming an already-completed job is a no-op
// because ReclaimJobsOfWorker's WHERE clause requires status = 'assigned'.
// The sweeper never surfaces errors to callers; it logs and continues.
func (s *Sweeper) Handle(ctx context.Context) error {
	cutoff := time.Now().Add(-s.timeout)

	deadWorkerIDs, err := s.store.ListDeadWorkers(ctx, cutoff)
	if err != nil {
		s.logger.ErrorContext(ctx, "sweeper: failed to list dead workers", "error", err)
		return nil
	}

	for _, id := range deadWorkerIDs {
		n, err := s.store.ReclaimJobsOfWorker(ctx, id)
		if err != nil {
			s.logger.ErrorContext(ctx, "sweeper: failed to reclaim jobs", "worker_id", id, "error", err)
			continue
		}
		if n > 0 {
			s.logger.InfoContext(ctx, "sweeper: reclaimed jobs from dead worker", "worker_id", id, "jobs_reclaimed", n)
		}
	}

	return nil
}

// cronEveryNMinutes builds a 5-field cron expression firing every N whole
// minutes, where N is d rounded to the nearest whole minute and raised to at
// least one.
func cronEveryNMinutes(d time.Duration) string {
	minutes := int(d.Round(time.Minute) / time.Minute)
	if minutes < 1 {
		minutes = 1
	}
	if minutes == 1 {
		return "* * * * *"
	}
	return "*/" + strconv.Itoa(minutes) + " * * * *"
}
