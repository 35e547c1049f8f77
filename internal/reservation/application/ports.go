package application

import (
	"context"
	"time"

	"github.com/gridseoul/landcell/internal/reservation/domain"
)

// LockStore is the external coordination primitive. TryAcquire is the only
// operation that must be atomic; it is the sole source of truth for who may
// currently complete payment on a cell.
type LockStore interface {
	// TryAcquire sets key=holder with the given TTL if the key is absent.
	// Returns false when the key is already held (by anyone).
	TryAcquire(ctx context.Context, key, holder string, ttl time.Duration) (bool, error)
	// Get returns the current holder, with ok=false when the key is absent.
	Get(ctx context.Context, key string) (holder string, ok bool, err error)
	RemainingTTL(ctx context.Context, key string) (time.Duration, error)
	// Release deletes the key only if it is still held by holder, so a
	// racing re-acquire by another buyer is never clobbered.
	Release(ctx context.Context, key, holder string) (bool, error)
}

// CellRepository persists cells and the hold-field mirror.
type CellRepository interface {
	// WithTx runs fn inside a transaction; fn's writes are rolled back
	// when it returns an error.
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	GetCells(ctx context.Context, ids []int64) ([]domain.Cell, error)
	MarkOnHold(ctx context.Context, ids []int64, buyerID int64, now time.Time) error
	ClearHold(ctx context.Context, ids []int64, now time.Time) error
	SetOwner(ctx context.Context, ids []int64, buyerID int64, now time.Time) error
	CountOwnedInArea(ctx context.Context, areaID int64) (int64, error)
	// ListStaleHolds returns cells whose persisted hold predates cutoff.
	ListStaleHolds(ctx context.Context, cutoff time.Time, limit int) ([]domain.Cell, error)
	// ClearHoldIfUnchanged clears hold fields only when the row's
	// updated_at still equals seenUpdatedAt, so a renewed hold survives a
	// sweep that began before the renewal.
	ClearHoldIfUnchanged(ctx context.Context, cellID int64, seenUpdatedAt, now time.Time) (bool, error)
}

type AreaRepository interface {
	GetArea(ctx context.Context, id int64) (domain.Area, error)
	UpdatePurchaseCount(ctx context.Context, areaID, count int64) error
	ListPurchasable(ctx context.Context) ([]domain.PurchasableArea, error)
}

// RefundLookup answers whether the buyer has a refunded settlement in the
// area, which blocks repurchase.
type RefundLookup interface {
	HasRefunded(ctx context.Context, buyerID, areaID int64) (bool, error)
}
