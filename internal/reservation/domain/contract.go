package domain

import "time"

// Contract is the settlement record created once per successful payment.
// Immutable after creation; Refunded is flipped by the out-of-scope refund
// flow and is the only field that ever changes.
type Contract struct {
	ID            int64
	AreaID        int64
	BuyerID       int64
	OrderNo       string
	TransactionNo string
	Price         int64
	Refunded      bool
	CreatedAt     time.Time
	CellIDs       []int64
}
