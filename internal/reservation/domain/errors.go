package domain

import "errors"

var (
	ErrCellNotFound = errors.New("cell not found")
	ErrAreaNotFound = errors.New("area not found")

	// ErrAreaNotPurchasable: the area's status forbids purchase. Not
	// retryable until an administrator changes the status.
	ErrAreaNotPurchasable = errors.New("area is not open for purchase")

	// ErrAlreadyOwned: the cell is owned or administratively reserved.
	// Terminal for this cell; the caller must pick different cells.
	ErrAlreadyOwned = errors.New("cell is already owned or reserved")

	// ErrLeaseExpired: the caller's hold lapsed (or was never granted)
	// before settlement. The caller must restart from a fresh hold.
	ErrLeaseExpired = errors.New("hold lease expired before settlement")

	// ErrRefundBlocksRepurchase: the buyer already refunded a purchase in
	// this area; repurchase would re-trigger one-time coupon grants.
	ErrRefundBlocksRepurchase = errors.New("prior refund blocks repurchase in this area")

	ErrInsufficientCoupons = errors.New("not enough discount coupons")

	// ErrSettlementFailed wraps any unexpected failure after the lock
	// holder re-check. The holds have already been force-reset by the time
	// this surfaces.
	ErrSettlementFailed = errors.New("settlement failed")
)
