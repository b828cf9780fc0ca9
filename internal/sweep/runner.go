package sweep

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/cydriclopez/badmeter.com/internal/platform/logging"
)

// Runner drives the sweeper on a fixed interval. Before each pass it asks
// the elector for leadership so only one instance sweeps a shared ledger.
type Runner struct {
	sweeper  *Sweeper
	elector  *LeaderElector
	clock    clockwork.Clock
	interval time.Duration
}

func NewRunner(sweeper *Sweeper, elector *LeaderElector, clock clockwork.Clock, interval time.Duration) *Runner {
	return &Runner{
		sweeper:  sweeper,
		elector:  elector,
		clock:    clock,
		interval: interval,
	}
}

// Run blocks until ctx is cancelled, sweeping once per interval.
func (r *Runner) Run(ctx context.Context) {
	ticker := r.clock.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			r.tick(ctx)
		}
	}
}

func (r *Runner) tick(ctx context.Context) {
	if r.elector != nil {
		leader, err := r.elector.TryAcquire(ctx)
		if err != nil {
			logging.WithError(err).Warn("leader election failed, skipping sweep")
			return
		}
		if !leader {
			slog.Debug("not the sweep leader, skipping pass")
			return
		}
		defer func() {
			if err := r.elector.Release(ctx); err != nil {
				logging.WithError(err).Warn("failed to release sweep leadership")
			}
		}()
	}

	purged, err := r.sweeper.Sweep(ctx, r.clock.Now())
	if err != nil {
		logging.WithError(err).Error("sweep pass failed")
		return
	}
	if len(purged) > 0 {
		slog.Info("sweep pass complete", "purged", len(purged))
	}
}
