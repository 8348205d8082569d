// Package jobs runs periodic maintenance against the backend.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// Pruner deletes rate-limit bookkeeping older than retain.
type Pruner interface {
	PruneRateLimitHits(ctx context.Context, retain time.Duration) (int, error)
}

// Options configures the scheduler.
type Options struct {
	Every   time.Duration
	Retain  time.Duration
	Timeout time.Duration
}

// DefaultOptions prunes hourly and keeps a day of history.
var DefaultOptions = Options{Every: time.Hour, Retain: 24 * time.Hour, Timeout: time.Minute}

// StartPruner schedules the rate-limit cleanup and starts the scheduler.
// The first run happens immediately. Callers must Shutdown the result.
func StartPruner(p Pruner, opts Options, logger *slog.Logger) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("new scheduler: %w", err)
	}

	_, err = sched.NewJob(
		gocron.DurationJob(opts.Every),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), opts.Timeout)
			defer cancel()
			n, err := p.PruneRateLimitHits(ctx, opts.Retain)
			if err != nil {
				logger.Error("prune rate limit hits", "error", err)
				return
			}
			logger.Debug("pruned rate limit hits", "removed", n)
		}),
		gocron.WithName("prune-rate-limit-hits"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		_ = sched.Shutdown()
		return nil, fmt.Errorf("schedule prune job: %w", err)
	}

	sched.Start()
	return sched, nil
}
