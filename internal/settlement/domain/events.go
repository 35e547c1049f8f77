package domain

import "time"

// SettlementRecorded is published through the outbox after a settlement
// commits, for downstream consumers (purchase history, admin reporting).
type SettlementRecorded struct {
	OrderNo       string    `json:"order_no"`
	TransactionNo string    `json:"transaction_no"`
	BuyerID       int64     `json:"buyer_id"`
	AreaID        int64     `json:"area_id"`
	CellIDs       []int64   `json:"cell_ids"`
	Price         int64     `json:"price"`
	RecordedAt    time.Time `json:"recorded_at"`
}
