package scheduler

import (
	"context"
	"time"

	"github.com/riverqueue/river"
)

type AutoReleaseArgs struct{}

func (AutoReleaseArgs) Kind() string { return "auto_release_sweep" }

// AutoReleaseWorker runs one sweep per job.
type AutoReleaseWorker struct {
	river.WorkerDefaults[AutoReleaseArgs]
	sweeper *Sweeper
}

func NewAutoReleaseWorker(s *Sweeper) *AutoReleaseWorker {
	return &AutoReleaseWorker{sweeper: s}
}

func (w *AutoReleaseWorker) Work(ctx context.Context, _ *river.Job[AutoReleaseArgs]) error {
	_, err := w.sweeper.Sweep(ctx)
	return err
}

// Timeout bounds a sweep. Gateway calls already in flight are detached
// from this deadline by settlement.
func (w *AutoReleaseWorker) Timeout(*river.Job[AutoReleaseArgs]) time.Duration {
	return 5 * time.Minute
}

// PeriodicJob enqueues a sweep every interval. Uniqueness by period keeps
// several nodes from sweeping the same window twice.
func PeriodicJob(interval time.Duration) *river.PeriodicJob {
	return river.NewPeriodicJob(
		river.PeriodicInterval(interval),
		func() (river.JobArgs, *river.InsertOpts) {
			return AutoReleaseArgs{}, &river.InsertOpts{
				MaxAttempts: 1,
				UniqueOpts:  river.UniqueOpts{ByPeriod: interval},
			}
		},
		&river.PeriodicJobOpts{RunOnStart: true},
	)
}
