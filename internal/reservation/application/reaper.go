package application

import (
	"context"
	"log/slog"
	"time"

	"github.com/gridseoul/landcell/internal/clock"
)

const reapBatchSize = 500

// Reaper clears persisted hold fields whose lease elapsed without a
// settlement or cancel, as a backstop against crashed or abandoned flows.
// The lock store expires its own entries by TTL; the reaper only repairs
// the database mirror.
type Reaper struct {
	log      *slog.Logger
	cells    CellRepository
	clock    clock.Clock
	lease    time.Duration
	interval time.Duration
}

// NewReaper sweeps at the given interval. The interval should be a fraction
// of the lease so a cell never appears held for long after its lease ends.
func NewReaper(log *slog.Logger, cells CellRepository, clk clock.Clock, lease, interval time.Duration) *Reaper {
	return &Reaper{
		log:      log,
		cells:    cells,
		clock:    clk,
		lease:    lease,
		interval: interval,
	}
}

func (r *Reaper) Run(ctx context.Context) error {
	t := time.NewTicker(r.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Info("reaper stopping")
			return nil
		case <-t.C:
			cleared, err := r.Sweep(ctx)
			if err != nil {
				r.log.Error("reaper sweep error", "err", err)
				continue
			}
			if cleared > 0 {
				r.log.Info("stale holds cleared", "count", cleared)
			}
		}
	}
}

// Sweep runs one iteration. Safe to run concurrently with in-flight
// settlements: each clear is conditional on the updated_at value seen by
// the scan, so a hold renewed after the cutoff was computed is not
// clobbered.
func (r *Reaper) Sweep(ctx context.Context) (int, error) {
	now := r.clock.Now()
	cutoff := now.Add(-r.lease)

	stale, err := r.cells.ListStaleHolds(ctx, cutoff, reapBatchSize)
	if err != nil {
		return 0, err
	}

	cleared := 0
	for _, cell := range stale {
		ok, err := r.cells.ClearHoldIfUnchanged(ctx, cell.ID, cell.UpdatedAt, now)
		if err != nil {
			return cleared, err
		}
		if ok {
			cleared++
		}
	}
	return cleared, nil
}
