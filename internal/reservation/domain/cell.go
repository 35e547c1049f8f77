package domain

import "time"

// CellStatus is the purchase-flow view of a cell. RESERVED cells are
// administratively excluded and never transition through this engine.
type CellStatus string

const (
	StatusAvailable CellStatus = "available"
	StatusOnHold    CellStatus = "on_hold"
	StatusOwned     CellStatus = "owned"
	StatusReserved  CellStatus = "reserved"
)

// Cell is one purchasable inventory unit. The on_hold/on_hold_by columns
// mirror the lock store for listing endpoints; they are never consulted for
// the mutual-exclusion decision itself.
type Cell struct {
	ID        int64
	AreaID    int64
	OwnerID   *int64
	Reserved  bool
	OnHold    bool
	OnHoldBy  *int64
	UpdatedAt time.Time
}

func (c Cell) Status() CellStatus {
	switch {
	case c.OwnerID != nil:
		return StatusOwned
	case c.Reserved:
		return StatusReserved
	case c.OnHold:
		return StatusOnHold
	default:
		return StatusAvailable
	}
}

// Purchasable reports whether the cell can still enter the purchase flow.
// A cell on hold is purchasable by the current hold's owner; that check is
// the lock store's job, not this one.
func (c Cell) Purchasable() bool {
	return c.OwnerID == nil && !c.Reserved
}
