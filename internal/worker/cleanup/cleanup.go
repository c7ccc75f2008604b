// Package cleanup removes completed tasks once they are past the retention
// period. It runs weekly from the scheduler and is idempotent.
package cleanup

import (
	"context"
	"time"

	"focusbot/internal/logger"
	"focusbot/internal/metrics"
	"focusbot/internal/schedule"

	"github.com/m-mizutani/goerr/v2"
	"go.uber.org/zap"
)

// Store deletes completed tasks finished before olderThan.
type Store interface {
	CleanupOldCompletedTasks(ctx context.Context, olderThan time.Time) (int64, error)
}

type Job struct {
	store   Store
	log     *zap.Logger
	metrics metrics.Recorder
	now     func() time.Time

	RetentionDays int
}

func NewJob(store Store, log *zap.Logger, m metrics.Recorder, now func() time.Time) *Job {
	if m == nil {
		m = metrics.Nop{}
	}
	if now == nil {
		now = time.Now
	}
	return &Job{
		store:         store,
		log:           log,
		metrics:       m,
		now:           now,
		RetentionDays: 7,
	}
}

// Run deletes completed tasks whose completion is more than RetentionDays old.
func (j *Job) Run(ctx context.Context) error {
	start := j.now()
	cutoff := start.AddDate(0, 0, -j.RetentionDays)

	deleted, err := j.store.CleanupOldCompletedTasks(ctx, cutoff)
	if err != nil {
		return goerr.Wrap(err, "task cleanup failed", goerr.V("retention_days", j.RetentionDays))
	}

	j.metrics.TasksCleaned(deleted)
	j.log.Info("task cleanup finished",
		zap.Int64("deleted_count", deleted),
		zap.Int("retention_days", j.RetentionDays),
		zap.Time("cutoff", cutoff),
	)
	return nil
}

// Register runs the job on the recurrence rule spec in timezone.
func (j *Job) Register(sched schedule.Scheduler, spec, timezone string) (schedule.Handle, error) {
	h, err := sched.Recurring(spec, timezone, func() {
		if err := j.Run(context.Background()); err != nil {
			j.log.Error("task cleanup failed", logger.ErrFields(err)...)
		}
	})
	if err != nil {
		return 0, goerr.Wrap(err, "failed to schedule task cleanup", goerr.V("spec", spec))
	}
	return h, nil
}
