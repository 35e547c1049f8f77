package application

import (
	"context"
	"time"

	"github.com/gridseoul/landcell/internal/reservation/domain"
)

type CellRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	GetCells(ctx context.Context, ids []int64) ([]domain.Cell, error)
	SetOwner(ctx context.Context, ids []int64, buyerID int64, now time.Time) error
	ClearHold(ctx context.Context, ids []int64, now time.Time) error
	CountOwnedInArea(ctx context.Context, areaID int64) (int64, error)
}

type AreaRepository interface {
	GetArea(ctx context.Context, id int64) (domain.Area, error)
	UpdatePurchaseCount(ctx context.Context, areaID, count int64) error
}

type ContractRepository interface {
	// CreateWithOutbox inserts the contract, its per-cell join rows and an
	// outbox row in the surrounding transaction.
	CreateWithOutbox(ctx context.Context, c domain.Contract, eventType string, payload []byte, traceparent string) (int64, error)
	HasRefunded(ctx context.Context, buyerID, areaID int64) (bool, error)
}

// CouponLedger tracks the buyer's discount/loyalty coupon balance.
type CouponLedger interface {
	Balance(ctx context.Context, buyerID int64) (int64, error)
	Debit(ctx context.Context, buyerID, n int64) error
	Credit(ctx context.Context, buyerID, n int64) error
}

// LockStore is the subset of the lock store settlement needs: the holder
// re-check immediately before the gateway call, and release after commit.
type LockStore interface {
	Get(ctx context.Context, key string) (holder string, ok bool, err error)
	Release(ctx context.Context, key, holder string) (bool, error)
}

// AuthorizeRequest carries the payment-UI handoff to the gateway. OrderNo
// doubles as the idempotency key on the gateway side.
type AuthorizeRequest struct {
	OrderNo string
	AuthNo  string
	BuyerID int64
}

// AuthorizeResult is the gateway's answer. A business decline arrives here
// with Success=false, not as an error.
type AuthorizeResult struct {
	Success       bool
	TransactionNo string
	OrderNo       string
	Price         int64
	ResultCode    string
	ErrorCode     string
	Message       string
}

type PaymentGateway interface {
	Authorize(ctx context.Context, req AuthorizeRequest) (AuthorizeResult, error)
}
