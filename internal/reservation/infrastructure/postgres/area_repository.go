package postgres

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"github.com/gridseoul/landcell/internal/reservation/domain"
)

type AreaRepository struct {
	log *slog.Logger
	db  *DB
}

func NewAreaRepository(log *slog.Logger, db *DB) *AreaRepository {
	return &AreaRepository{log: log, db: db}
}

func (r *AreaRepository) GetArea(ctx context.Context, id int64) (domain.Area, error) {
	var a domain.Area
	err := r.db.q(ctx).QueryRow(ctx, `
		SELECT id, name, district, cell_count, purchase_count, reserved_cell_count, status, coupon_grant
		FROM areas WHERE id = $1
	`, id).Scan(&a.ID, &a.Name, &a.District, &a.CellCount, &a.PurchaseCount, &a.ReservedCellCount, &a.Status, &a.CouponGrant)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Area{}, domain.ErrAreaNotFound
	}
	if err != nil {
		return domain.Area{}, err
	}
	return a, nil
}

func (r *AreaRepository) UpdatePurchaseCount(ctx context.Context, areaID, count int64) error {
	_, err := r.db.q(ctx).Exec(ctx, `
		UPDATE areas SET purchase_count = $2 WHERE id = $1
	`, areaID, count)
	return err
}

// ListPurchasable returns open areas with how many cells are still
// sellable (not owned, not administratively reserved).
func (r *AreaRepository) ListPurchasable(ctx context.Context) ([]domain.PurchasableArea, error) {
	rows, err := r.db.q(ctx).Query(ctx, `
		SELECT id, name, cell_count, cell_count - purchase_count - reserved_cell_count
		FROM areas
		WHERE status = $1
		ORDER BY id
	`, domain.AreaStatusOpen)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var areas []domain.PurchasableArea
	for rows.Next() {
		var a domain.PurchasableArea
		if err := rows.Scan(&a.AreaID, &a.Name, &a.TotalCellCount, &a.PurchasableCellCount); err != nil {
			return nil, err
		}
		areas = append(areas, a)
	}
	return areas, rows.Err()
}
