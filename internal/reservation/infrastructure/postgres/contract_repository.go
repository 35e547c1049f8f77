package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gridseoul/landcell/internal/reservation/domain"
)

type ContractRepository struct {
	log *slog.Logger
	db  *DB
}

func NewContractRepository(log *slog.Logger, db *DB) *ContractRepository {
	return &ContractRepository{log: log, db: db}
}

// CreateWithOutbox writes the settlement record, its per-cell join rows and
// the outbox event in the caller's transaction, so either all of it commits
// or none of it does.
func (r *ContractRepository) CreateWithOutbox(ctx context.Context, c domain.Contract, eventType string, payload []byte, traceparent string) (int64, error) {
	q := r.db.q(ctx)

	var id int64
	err := q.QueryRow(ctx, `
		INSERT INTO contracts (area_id, buyer_id, order_no, tr_no, price, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, c.AreaID, c.BuyerID, c.OrderNo, c.TransactionNo, c.Price, c.CreatedAt).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("order %s already settled: %w", c.OrderNo, err)
		}
		return 0, err
	}

	for _, cellID := range c.CellIDs {
		if _, err := q.Exec(ctx, `
			INSERT INTO contract_cells (contract_id, cell_id) VALUES ($1, $2)
		`, id, cellID); err != nil {
			return 0, err
		}
	}

	if _, err := q.Exec(ctx, `
		INSERT INTO outbox (aggregate_type, aggregate_id, type, payload, traceparent, status)
		VALUES ('contract', $1, $2, $3, $4, 'pending')
	`, c.OrderNo, eventType, payload, traceparent); err != nil {
		return 0, err
	}
	return id, nil
}

func (r *ContractRepository) HasRefunded(ctx context.Context, buyerID, areaID int64) (bool, error) {
	var refunded bool
	err := r.db.q(ctx).QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM contracts WHERE buyer_id = $1 AND area_id = $2 AND refunded
		)
	`, buyerID, areaID).Scan(&refunded)
	return refunded, err
}

// ListByBuyer is the purchase-history read, newest first.
func (r *ContractRepository) ListByBuyer(ctx context.Context, buyerID int64) ([]domain.Contract, error) {
	rows, err := r.db.q(ctx).Query(ctx, `
		SELECT c.id, c.area_id, c.buyer_id, c.order_no, c.tr_no, c.price, c.refunded, c.created_at,
		       array_agg(cc.cell_id ORDER BY cc.cell_id)
		FROM contracts c
		JOIN contract_cells cc ON cc.contract_id = c.id
		WHERE c.buyer_id = $1
		GROUP BY c.id
		ORDER BY c.created_at DESC
	`, buyerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var contracts []domain.Contract
	for rows.Next() {
		var c domain.Contract
		if err := rows.Scan(&c.ID, &c.AreaID, &c.BuyerID, &c.OrderNo, &c.TransactionNo, &c.Price, &c.Refunded, &c.CreatedAt, &c.CellIDs); err != nil {
			return nil, err
		}
		contracts = append(contracts, c)
	}
	return contracts, rows.Err()
}
