package application

import (
	"context"
	"sync"
	"time"

	"github.com/gridseoul/landcell/internal/reservation/domain"
)

// fakeCellRepo keeps cells in a map and emulates transactional rollback by
// snapshotting the map around WithTx.
type fakeCellRepo struct {
	mu    sync.Mutex
	cells map[int64]domain.Cell

	// onListStaleHolds runs after the stale scan, before the caller acts on
	// it, so tests can interleave a renewal with a sweep.
	onListStaleHolds func()
}

func newFakeCellRepo(cells ...domain.Cell) *fakeCellRepo {
	m := make(map[int64]domain.Cell, len(cells))
	for _, c := range cells {
		m[c.ID] = c
	}
	return &fakeCellRepo{cells: m}
}

func (f *fakeCellRepo) snapshot() map[int64]domain.Cell {
	out := make(map[int64]domain.Cell, len(f.cells))
	for k, v := range f.cells {
		out[k] = v
	}
	return out
}

func (f *fakeCellRepo) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	f.mu.Lock()
	before := f.snapshot()
	f.mu.Unlock()

	if err := fn(ctx); err != nil {
		f.mu.Lock()
		f.cells = before
		f.mu.Unlock()
		return err
	}
	return nil
}

func (f *fakeCellRepo) GetCells(_ context.Context, ids []int64) ([]domain.Cell, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []domain.Cell
	for _, id := range ids {
		if c, ok := f.cells[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeCellRepo) MarkOnHold(_ context.Context, ids []int64, buyerID int64, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, id := range ids {
		c := f.cells[id]
		c.OnHold = true
		c.OnHoldBy = &buyerID
		c.UpdatedAt = now
		f.cells[id] = c
	}
	return nil
}

func (f *fakeCellRepo) ClearHold(_ context.Context, ids []int64, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, id := range ids {
		c := f.cells[id]
		c.OnHold = false
		c.OnHoldBy = nil
		c.UpdatedAt = now
		f.cells[id] = c
	}
	return nil
}

func (f *fakeCellRepo) SetOwner(_ context.Context, ids []int64, buyerID int64, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, id := range ids {
		c, ok := f.cells[id]
		if !ok || c.OwnerID != nil || c.Reserved {
			return domain.ErrAlreadyOwned
		}
		owner := buyerID
		c.OwnerID = &owner
		c.OnHold = false
		c.OnHoldBy = nil
		c.UpdatedAt = now
		f.cells[id] = c
	}
	return nil
}

func (f *fakeCellRepo) CountOwnedInArea(_ context.Context, areaID int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var n int64
	for _, c := range f.cells {
		if c.AreaID == areaID && c.OwnerID != nil {
			n++
		}
	}
	return n, nil
}

func (f *fakeCellRepo) ListStaleHolds(_ context.Context, cutoff time.Time, limit int) ([]domain.Cell, error) {
	f.mu.Lock()
	var out []domain.Cell
	for _, c := range f.cells {
		if c.OnHold && c.UpdatedAt.Before(cutoff) && len(out) < limit {
			out = append(out, c)
		}
	}
	f.mu.Unlock()

	if f.onListStaleHolds != nil {
		f.onListStaleHolds()
	}
	return out, nil
}

func (f *fakeCellRepo) ClearHoldIfUnchanged(_ context.Context, cellID int64, seenUpdatedAt, now time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	c, ok := f.cells[cellID]
	if !ok || !c.OnHold || !c.UpdatedAt.Equal(seenUpdatedAt) {
		return false, nil
	}
	c.OnHold = false
	c.OnHoldBy = nil
	c.UpdatedAt = now
	f.cells[cellID] = c
	return true, nil
}

func (f *fakeCellRepo) get(id int64) domain.Cell {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cells[id]
}

type fakeAreaRepo struct {
	mu    sync.Mutex
	areas map[int64]domain.Area
}

func newFakeAreaRepo(areas ...domain.Area) *fakeAreaRepo {
	m := make(map[int64]domain.Area, len(areas))
	for _, a := range areas {
		m[a.ID] = a
	}
	return &fakeAreaRepo{areas: m}
}

func (f *fakeAreaRepo) GetArea(_ context.Context, id int64) (domain.Area, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	a, ok := f.areas[id]
	if !ok {
		return domain.Area{}, domain.ErrAreaNotFound
	}
	return a, nil
}

func (f *fakeAreaRepo) UpdatePurchaseCount(_ context.Context, areaID, count int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	a := f.areas[areaID]
	a.PurchaseCount = count
	f.areas[areaID] = a
	return nil
}

func (f *fakeAreaRepo) ListPurchasable(_ context.Context) ([]domain.PurchasableArea, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []domain.PurchasableArea
	for _, a := range f.areas {
		if a.Status == domain.AreaStatusOpen {
			out = append(out, domain.PurchasableArea{
				AreaID:               a.ID,
				Name:                 a.Name,
				TotalCellCount:       a.CellCount,
				PurchasableCellCount: a.CellCount - a.PurchaseCount - a.ReservedCellCount,
			})
		}
	}
	return out, nil
}

type fakeRefundLookup struct {
	refunded map[[2]int64]bool
}

func newFakeRefundLookup() *fakeRefundLookup {
	return &fakeRefundLookup{refunded: make(map[[2]int64]bool)}
}

func (f *fakeRefundLookup) HasRefunded(_ context.Context, buyerID, areaID int64) (bool, error) {
	return f.refunded[[2]int64{buyerID, areaID}], nil
}
