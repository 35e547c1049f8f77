package application

import (
	"context"
	"sync"
	"time"

	"github.com/gridseoul/landcell/internal/reservation/domain"
)

type fakeCells struct {
	mu    sync.Mutex
	cells map[int64]domain.Cell
}

func newFakeCells(cells ...domain.Cell) *fakeCells {
	m := make(map[int64]domain.Cell, len(cells))
	for _, c := range cells {
		m[c.ID] = c
	}
	return &fakeCells{cells: m}
}

func (f *fakeCells) snapshot() map[int64]domain.Cell {
	out := make(map[int64]domain.Cell, len(f.cells))
	for k, v := range f.cells {
		out[k] = v
	}
	return out
}

// WithTx emulates rollback: an error from fn restores the pre-tx state.
func (f *fakeCells) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
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

func (f *fakeCells) GetCells(_ context.Context, ids []int64) ([]domain.Cell, error) {
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

func (f *fakeCells) SetOwner(_ context.Context, ids []int64, buyerID int64, now time.Time) error {
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

func (f *fakeCells) ClearHold(_ context.Context, ids []int64, now time.Time) error {
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

func (f *fakeCells) CountOwnedInArea(_ context.Context, areaID int64) (int64, error) {
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

func (f *fakeCells) get(id int64) domain.Cell {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cells[id]
}

type fakeAreas struct {
	mu    sync.Mutex
	areas map[int64]domain.Area
}

func newFakeAreas(areas ...domain.Area) *fakeAreas {
	m := make(map[int64]domain.Area, len(areas))
	for _, a := range areas {
		m[a.ID] = a
	}
	return &fakeAreas{areas: m}
}

func (f *fakeAreas) GetArea(_ context.Context, id int64) (domain.Area, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	a, ok := f.areas[id]
	if !ok {
		return domain.Area{}, domain.ErrAreaNotFound
	}
	return a, nil
}

func (f *fakeAreas) UpdatePurchaseCount(_ context.Context, areaID, count int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	a := f.areas[areaID]
	a.PurchaseCount = count
	f.areas[areaID] = a
	return nil
}

func (f *fakeAreas) get(id int64) domain.Area {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.areas[id]
}

type fakeContracts struct {
	mu       sync.Mutex
	created  []domain.Contract
	payloads [][]byte
	refunded map[[2]int64]bool

	createErr error
}

func newFakeContracts() *fakeContracts {
	return &fakeContracts{refunded: make(map[[2]int64]bool)}
}

func (f *fakeContracts) CreateWithOutbox(_ context.Context, c domain.Contract, _ string, payload []byte, _ string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.createErr != nil {
		return 0, f.createErr
	}
	f.created = append(f.created, c)
	f.payloads = append(f.payloads, payload)
	return int64(len(f.created)), nil
}

func (f *fakeContracts) HasRefunded(_ context.Context, buyerID, areaID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refunded[[2]int64{buyerID, areaID}], nil
}

func (f *fakeContracts) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}

type fakeLedger struct {
	mu       sync.Mutex
	balances map[int64]int64
	debits   []int64
	credits  []int64
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{balances: make(map[int64]int64)}
}

func (f *fakeLedger) Balance(_ context.Context, buyerID int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balances[buyerID], nil
}

func (f *fakeLedger) Debit(_ context.Context, buyerID, n int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.balances[buyerID] < n {
		return domain.ErrInsufficientCoupons
	}
	f.balances[buyerID] -= n
	f.debits = append(f.debits, n)
	return nil
}

func (f *fakeLedger) Credit(_ context.Context, buyerID, n int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.balances[buyerID] += n
	f.credits = append(f.credits, n)
	return nil
}

type fakeGateway struct {
	mu     sync.Mutex
	result AuthorizeResult
	err    error
	calls  []AuthorizeRequest
}

func (f *fakeGateway) Authorize(_ context.Context, req AuthorizeRequest) (AuthorizeResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, req)
	if f.err != nil {
		return AuthorizeResult{}, f.err
	}
	return f.result, nil
}

func (f *fakeGateway) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}
