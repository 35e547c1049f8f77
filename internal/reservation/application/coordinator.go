package application

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/gridseoul/landcell/internal/clock"
	"github.com/gridseoul/landcell/internal/reservation/domain"
)

// HoldStatus is the per-cell outcome of an acquire call.
type HoldStatus string

const (
	HoldStarted     HoldStatus = "STARTED"
	HoldAlreadyHeld HoldStatus = "ALREADY_HELD_BY_YOU"
	HoldBlocked     HoldStatus = "BLOCKED"
)

type CellHold struct {
	CellID         int64
	Status         HoldStatus
	LeaseRemaining time.Duration
}

type HoldResult struct {
	// Acquired lists cells the buyer now holds (newly started or already
	// held). Blocked lists cells contended by another buyer; when it is
	// non-empty nothing newly acquired in this call survives.
	Acquired []int64
	Blocked  []int64
	Cells    []CellHold
}

// LockKey is the lock-store key for a cell.
func LockKey(cellID int64) string {
	return fmt.Sprintf("cell:%d", cellID)
}

// HolderKey is the lock-store value identifying a buyer.
func HolderKey(buyerID int64) string {
	return strconv.FormatInt(buyerID, 10)
}

// Coordinator grants and releases time-bounded exclusive holds on cells.
// It never calls the payment gateway.
type Coordinator struct {
	log     *slog.Logger
	cells   CellRepository
	areas   AreaRepository
	refunds RefundLookup
	locks   LockStore
	clock   clock.Clock
	lease   time.Duration
}

func NewCoordinator(log *slog.Logger, cells CellRepository, areas AreaRepository, refunds RefundLookup, locks LockStore, clk clock.Clock, lease time.Duration) *Coordinator {
	return &Coordinator{
		log:     log,
		cells:   cells,
		areas:   areas,
		refunds: refunds,
		locks:   locks,
		clock:   clk,
		lease:   lease,
	}
}

// AcquireHold attempts to hold every cell in cellIDs for buyerID with
// all-or-nothing semantics. A cell already held by the same buyer counts as
// success (idempotent retry) and keeps its remaining lease. If any cell is
// blocked by another buyer, every cell newly acquired in this call is
// released again; holds from the buyer's earlier calls are left untouched.
func (c *Coordinator) AcquireHold(ctx context.Context, cellIDs []int64, buyerID int64) (HoldResult, error) {
	if len(cellIDs) == 0 {
		return HoldResult{}, domain.ErrCellNotFound
	}

	cells, err := c.cells.GetCells(ctx, cellIDs)
	if err != nil {
		return HoldResult{}, err
	}
	if len(cells) != len(cellIDs) {
		return HoldResult{}, domain.ErrCellNotFound
	}
	if err := c.checkPurchasable(ctx, cells, buyerID); err != nil {
		return HoldResult{}, err
	}

	holder := HolderKey(buyerID)
	result := HoldResult{}
	var newly []int64

	for _, id := range cellIDs {
		key := LockKey(id)

		ok, err := c.locks.TryAcquire(ctx, key, holder, c.lease)
		if err != nil {
			c.releaseKeys(ctx, newly, holder)
			return HoldResult{}, err
		}
		if ok {
			newly = append(newly, id)
			result.Acquired = append(result.Acquired, id)
			result.Cells = append(result.Cells, CellHold{CellID: id, Status: HoldStarted, LeaseRemaining: c.lease})
			continue
		}

		current, present, err := c.locks.Get(ctx, key)
		if err != nil {
			c.releaseKeys(ctx, newly, holder)
			return HoldResult{}, err
		}
		if present && current == holder {
			remaining, err := c.locks.RemainingTTL(ctx, key)
			if err != nil {
				remaining = 0
			}
			result.Acquired = append(result.Acquired, id)
			result.Cells = append(result.Cells, CellHold{CellID: id, Status: HoldAlreadyHeld, LeaseRemaining: remaining})
			continue
		}

		result.Blocked = append(result.Blocked, id)
		result.Cells = append(result.Cells, CellHold{CellID: id, Status: HoldBlocked})
	}

	if len(result.Blocked) > 0 {
		// Compensating rollback: only keys taken in this call go back.
		c.releaseKeys(ctx, newly, holder)
		c.log.Info("hold request blocked",
			"buyer_id", buyerID, "cell_ids", cellIDs, "blocked", result.Blocked)
		return HoldResult{Blocked: result.Blocked, Cells: result.Cells}, nil
	}

	// Write-through mirror for listing endpoints. Not required for
	// correctness; the reaper repairs it if this write is lost.
	now := c.clock.Now()
	err = c.cells.WithTx(ctx, func(txCtx context.Context) error {
		return c.cells.MarkOnHold(txCtx, cellIDs, buyerID, now)
	})
	if err != nil {
		c.log.Warn("hold mirror write failed", "buyer_id", buyerID, "cell_ids", cellIDs, "err", err)
	}

	c.log.Info("hold acquired", "buyer_id", buyerID, "cell_ids", cellIDs)
	return result, nil
}

// Cancel releases the buyer's holds without waiting for lease expiry. It
// only ever releases authority, so no lock-store verification is needed
// before clearing the mirror.
func (c *Coordinator) Cancel(ctx context.Context, cellIDs []int64, buyerID int64) error {
	now := c.clock.Now()
	err := c.cells.WithTx(ctx, func(txCtx context.Context) error {
		return c.cells.ClearHold(txCtx, cellIDs, now)
	})
	if err != nil {
		return err
	}
	c.releaseKeys(ctx, cellIDs, HolderKey(buyerID))
	c.log.Info("hold cancelled", "buyer_id", buyerID, "cell_ids", cellIDs)
	return nil
}

func (c *Coordinator) checkPurchasable(ctx context.Context, cells []domain.Cell, buyerID int64) error {
	for _, cell := range cells {
		if !cell.Purchasable() {
			return domain.ErrAlreadyOwned
		}
	}

	area, err := c.areas.GetArea(ctx, cells[0].AreaID)
	if err != nil {
		return err
	}
	if area.Status != domain.AreaStatusOpen {
		return domain.ErrAreaNotPurchasable
	}

	refunded, err := c.refunds.HasRefunded(ctx, buyerID, area.ID)
	if err != nil {
		return err
	}
	if refunded {
		return domain.ErrRefundBlocksRepurchase
	}
	return nil
}

func (c *Coordinator) releaseKeys(ctx context.Context, cellIDs []int64, holder string) {
	for _, id := range cellIDs {
		if _, err := c.locks.Release(ctx, LockKey(id), holder); err != nil {
			c.log.Error("lock release failed", "cell_id", id, "holder", holder, "err", err)
		}
	}
}
