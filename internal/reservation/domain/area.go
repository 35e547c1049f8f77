package domain

// AreaStatus gates whether cells in an area may be purchased at all.
type AreaStatus string

const (
	AreaStatusNone        AreaStatus = "NONE"
	AreaStatusOpen        AreaStatus = "OPEN"
	AreaStatusPrecontract AreaStatus = "PRECONTRACT"
)

// Area is an administrative batch of cells. Counters are recomputed after
// each settlement rather than incremented, so concurrent partial updates
// cannot make them drift.
type Area struct {
	ID                int64
	Name              string
	District          string
	CellCount         int64
	PurchaseCount     int64
	ReservedCellCount int64
	Status            AreaStatus
	// CouponGrant areas award one loyalty coupon per purchased cell.
	CouponGrant bool
}

// PurchasableArea is the read model for the purchasable-area listing.
type PurchasableArea struct {
	AreaID               int64
	Name                 string
	TotalCellCount       int64
	PurchasableCellCount int64
}
