package application

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/gridseoul/landcell/internal/clock"
	"github.com/gridseoul/landcell/internal/reservation/domain"
	"github.com/gridseoul/landcell/internal/reservation/infrastructure/memory"
)

const testLease = 600 * time.Second

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func openArea(id int64) domain.Area {
	return domain.Area{ID: id, Name: "seoul-a", Status: domain.AreaStatusOpen, CellCount: 100}
}

func availableCell(id, areaID int64) domain.Cell {
	return domain.Cell{ID: id, AreaID: areaID}
}

func newTestCoordinator(cells *fakeCellRepo, clk clock.Clock) (*Coordinator, *memory.LockStore) {
	locks := memory.NewLockStore(clk)
	c := NewCoordinator(testLogger(), cells, newFakeAreaRepo(openArea(1)), newFakeRefundLookup(), locks, clk, testLease)
	return c, locks
}

func TestAcquireHoldStartsLease(t *testing.T) {
	clk := clock.NewStep(time.Now())
	cells := newFakeCellRepo(availableCell(10, 1), availableCell(11, 1))
	c, locks := newTestCoordinator(cells, clk)

	result, err := c.AcquireHold(context.Background(), []int64{10, 11}, 7)
	if err != nil {
		t.Fatalf("AcquireHold: %v", err)
	}
	if len(result.Acquired) != 2 || len(result.Blocked) != 0 {
		t.Fatalf("got acquired=%v blocked=%v", result.Acquired, result.Blocked)
	}
	for _, ch := range result.Cells {
		if ch.Status != HoldStarted {
			t.Errorf("cell %d: status %s, want %s", ch.CellID, ch.Status, HoldStarted)
		}
		if ch.LeaseRemaining != testLease {
			t.Errorf("cell %d: lease %v, want %v", ch.CellID, ch.LeaseRemaining, testLease)
		}
	}

	holder, ok, _ := locks.Get(context.Background(), LockKey(10))
	if !ok || holder != HolderKey(7) {
		t.Fatalf("lock not held by buyer: holder=%q ok=%v", holder, ok)
	}

	cell := cells.get(10)
	if !cell.OnHold || cell.OnHoldBy == nil || *cell.OnHoldBy != 7 {
		t.Fatalf("mirror not updated: %+v", cell)
	}
}

func TestAcquireHoldIsIdempotentForSameBuyer(t *testing.T) {
	clk := clock.NewStep(time.Now())
	cells := newFakeCellRepo(availableCell(10, 1))
	c, _ := newTestCoordinator(cells, clk)

	if _, err := c.AcquireHold(context.Background(), []int64{10}, 7); err != nil {
		t.Fatalf("first acquire: %v", err)
	}

	clk.Advance(100 * time.Second)

	result, err := c.AcquireHold(context.Background(), []int64{10}, 7)
	if err != nil {
		t.Fatalf("second acquire: %v", err)
	}
	if len(result.Acquired) != 1 {
		t.Fatalf("retry not treated as success: %+v", result)
	}
	ch := result.Cells[0]
	if ch.Status != HoldAlreadyHeld {
		t.Fatalf("status %s, want %s", ch.Status, HoldAlreadyHeld)
	}
	if ch.LeaseRemaining != testLease-100*time.Second {
		t.Fatalf("remaining lease %v, want %v", ch.LeaseRemaining, testLease-100*time.Second)
	}
}

func TestAcquireHoldMutualExclusion(t *testing.T) {
	clk := clock.NewStep(time.Now())
	cells := newFakeCellRepo(availableCell(10, 1))
	c, _ := newTestCoordinator(cells, clk)

	const buyers = 20
	var wg sync.WaitGroup
	wins := make(chan int64, buyers)

	for b := int64(1); b <= buyers; b++ {
		wg.Add(1)
		go func(buyerID int64) {
			defer wg.Done()
			result, err := c.AcquireHold(context.Background(), []int64{10}, buyerID)
			if err != nil {
				t.Errorf("buyer %d: %v", buyerID, err)
				return
			}
			if len(result.Acquired) == 1 {
				wins <- buyerID
			}
		}(b)
	}
	wg.Wait()
	close(wins)

	var winners []int64
	for w := range wins {
		winners = append(winners, w)
	}
	if len(winners) != 1 {
		t.Fatalf("want exactly one winner, got %v", winners)
	}
}

func TestAcquireHoldBlockedReleasesOnlyNewKeys(t *testing.T) {
	clk := clock.NewStep(time.Now())
	cells := newFakeCellRepo(availableCell(1, 1), availableCell(2, 1), availableCell(3, 1))
	c, locks := newTestCoordinator(cells, clk)
	ctx := context.Background()

	// Buyer 9 already holds cell 2.
	if _, err := c.AcquireHold(ctx, []int64{2}, 9); err != nil {
		t.Fatalf("setup hold: %v", err)
	}
	// Buyer 7 already holds cell 3 from an earlier call.
	if _, err := c.AcquireHold(ctx, []int64{3}, 7); err != nil {
		t.Fatalf("setup hold: %v", err)
	}

	result, err := c.AcquireHold(ctx, []int64{1, 2, 3}, 7)
	if err != nil {
		t.Fatalf("AcquireHold: %v", err)
	}
	if len(result.Blocked) != 1 || result.Blocked[0] != 2 {
		t.Fatalf("blocked = %v, want [2]", result.Blocked)
	}

	// Cell 1 was newly taken in the failing call and must be free again.
	if _, ok, _ := locks.Get(ctx, LockKey(1)); ok {
		t.Fatal("cell 1 lock not rolled back")
	}
	// Buyer 9's hold on cell 2 is untouched.
	if holder, ok, _ := locks.Get(ctx, LockKey(2)); !ok || holder != HolderKey(9) {
		t.Fatalf("cell 2 holder = %q ok=%v, want buyer 9", holder, ok)
	}
	// Buyer 7's hold from the earlier call survives the rollback.
	if holder, ok, _ := locks.Get(ctx, LockKey(3)); !ok || holder != HolderKey(7) {
		t.Fatalf("cell 3 holder = %q ok=%v, want buyer 7", holder, ok)
	}
}

func TestAcquireHoldAfterLeaseExpiry(t *testing.T) {
	clk := clock.NewStep(time.Now())
	cells := newFakeCellRepo(availableCell(10, 1))
	c, _ := newTestCoordinator(cells, clk)
	ctx := context.Background()

	if _, err := c.AcquireHold(ctx, []int64{10}, 7); err != nil {
		t.Fatalf("first acquire: %v", err)
	}

	clk.Advance(testLease + time.Second)

	result, err := c.AcquireHold(ctx, []int64{10}, 8)
	if err != nil {
		t.Fatalf("acquire after expiry: %v", err)
	}
	if len(result.Acquired) != 1 || result.Cells[0].Status != HoldStarted {
		t.Fatalf("expired lease not re-acquirable: %+v", result)
	}
}

func TestAcquireHoldValidation(t *testing.T) {
	clk := clock.NewStep(time.Now())
	owner := int64(42)

	tests := []struct {
		name    string
		cell    domain.Cell
		area    domain.Area
		refund  bool
		wantErr error
	}{
		{
			name:    "owned cell",
			cell:    domain.Cell{ID: 10, AreaID: 1, OwnerID: &owner},
			area:    openArea(1),
			wantErr: domain.ErrAlreadyOwned,
		},
		{
			name:    "reserved cell",
			cell:    domain.Cell{ID: 10, AreaID: 1, Reserved: true},
			area:    openArea(1),
			wantErr: domain.ErrAlreadyOwned,
		},
		{
			name:    "area not open",
			cell:    availableCell(10, 1),
			area:    domain.Area{ID: 1, Status: domain.AreaStatusPrecontract},
			wantErr: domain.ErrAreaNotPurchasable,
		},
		{
			name:    "prior refund in area",
			cell:    availableCell(10, 1),
			area:    openArea(1),
			refund:  true,
			wantErr: domain.ErrRefundBlocksRepurchase,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cells := newFakeCellRepo(tt.cell)
			refunds := newFakeRefundLookup()
			if tt.refund {
				refunds.refunded[[2]int64{7, 1}] = true
			}
			locks := memory.NewLockStore(clk)
			c := NewCoordinator(testLogger(), cells, newFakeAreaRepo(tt.area), refunds, locks, clk, testLease)

			_, err := c.AcquireHold(context.Background(), []int64{10}, 7)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if _, ok, _ := locks.Get(context.Background(), LockKey(10)); ok {
				t.Fatal("lock taken despite failed validation")
			}
		})
	}
}

func TestAcquireHoldUnknownCell(t *testing.T) {
	clk := clock.NewStep(time.Now())
	cells := newFakeCellRepo(availableCell(10, 1))
	c, _ := newTestCoordinator(cells, clk)

	if _, err := c.AcquireHold(context.Background(), []int64{10, 99}, 7); !errors.Is(err, domain.ErrCellNotFound) {
		t.Fatalf("err = %v, want ErrCellNotFound", err)
	}
	if _, err := c.AcquireHold(context.Background(), nil, 7); !errors.Is(err, domain.ErrCellNotFound) {
		t.Fatalf("empty ids: err = %v, want ErrCellNotFound", err)
	}
}

func TestCancelReleasesHoldImmediately(t *testing.T) {
	clk := clock.NewStep(time.Now())
	cells := newFakeCellRepo(availableCell(10, 1))
	c, locks := newTestCoordinator(cells, clk)
	ctx := context.Background()

	if _, err := c.AcquireHold(ctx, []int64{10}, 7); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if err := c.Cancel(ctx, []int64{10}, 7); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	if _, ok, _ := locks.Get(ctx, LockKey(10)); ok {
		t.Fatal("lock still held after cancel")
	}
	if cell := cells.get(10); cell.OnHold {
		t.Fatalf("mirror still on hold: %+v", cell)
	}

	// Another buyer can take the cell right away, without waiting for TTL.
	result, err := c.AcquireHold(ctx, []int64{10}, 8)
	if err != nil || len(result.Acquired) != 1 {
		t.Fatalf("re-acquire after cancel: result=%+v err=%v", result, err)
	}
}
