package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gridseoul/landcell/internal/reservation/domain"
)

type CellRepository struct {
	log *slog.Logger
	db  *DB
}

func NewCellRepository(log *slog.Logger, db *DB) *CellRepository {
	return &CellRepository{log: log, db: db}
}

func (r *CellRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.db.WithTx(ctx, fn)
}

func (r *CellRepository) GetCells(ctx context.Context, ids []int64) ([]domain.Cell, error) {
	rows, err := r.db.q(ctx).Query(ctx, `
		SELECT id, area_id, owner_id, reserved, on_hold, on_hold_by, updated_at
		FROM cells
		WHERE id = ANY($1)
		ORDER BY id
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cells []domain.Cell
	for rows.Next() {
		var c domain.Cell
		if err := rows.Scan(&c.ID, &c.AreaID, &c.OwnerID, &c.Reserved, &c.OnHold, &c.OnHoldBy, &c.UpdatedAt); err != nil {
			return nil, err
		}
		cells = append(cells, c)
	}
	return cells, rows.Err()
}

func (r *CellRepository) MarkOnHold(ctx context.Context, ids []int64, buyerID int64, now time.Time) error {
	_, err := r.db.q(ctx).Exec(ctx, `
		UPDATE cells SET on_hold = TRUE, on_hold_by = $2, updated_at = $3
		WHERE id = ANY($1)
	`, ids, buyerID, now)
	return err
}

func (r *CellRepository) ClearHold(ctx context.Context, ids []int64, now time.Time) error {
	_, err := r.db.q(ctx).Exec(ctx, `
		UPDATE cells SET on_hold = FALSE, on_hold_by = NULL, updated_at = $2
		WHERE id = ANY($1)
	`, ids, now)
	return err
}

// SetOwner transfers ownership and clears the hold mirror in one statement.
// The owner_id IS NULL guard means a row that slipped to owned since the
// precondition check fails the whole batch, rolling the transaction back.
func (r *CellRepository) SetOwner(ctx context.Context, ids []int64, buyerID int64, now time.Time) error {
	tag, err := r.db.q(ctx).Exec(ctx, `
		UPDATE cells SET owner_id = $2, on_hold = FALSE, on_hold_by = NULL, updated_at = $3
		WHERE id = ANY($1) AND owner_id IS NULL AND NOT reserved
	`, ids, buyerID, now)
	if err != nil {
		return err
	}
	if int(tag.RowsAffected()) != len(ids) {
		return fmt.Errorf("ownership transfer touched %d of %d cells: %w", tag.RowsAffected(), len(ids), domain.ErrAlreadyOwned)
	}
	return nil
}

func (r *CellRepository) CountOwnedInArea(ctx context.Context, areaID int64) (int64, error) {
	var n int64
	err := r.db.q(ctx).QueryRow(ctx, `
		SELECT count(*) FROM cells WHERE area_id = $1 AND owner_id IS NOT NULL
	`, areaID).Scan(&n)
	return n, err
}

func (r *CellRepository) ListStaleHolds(ctx context.Context, cutoff time.Time, limit int) ([]domain.Cell, error) {
	rows, err := r.db.q(ctx).Query(ctx, `
		SELECT id, area_id, owner_id, reserved, on_hold, on_hold_by, updated_at
		FROM cells
		WHERE on_hold AND updated_at < $1
		ORDER BY updated_at
		LIMIT $2
	`, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cells []domain.Cell
	for rows.Next() {
		var c domain.Cell
		if err := rows.Scan(&c.ID, &c.AreaID, &c.OwnerID, &c.Reserved, &c.OnHold, &c.OnHoldBy, &c.UpdatedAt); err != nil {
			return nil, err
		}
		cells = append(cells, c)
	}
	return cells, rows.Err()
}

// ClearHoldIfUnchanged is the reaper's conditional clear: the row is only
// touched when updated_at still matches what the sweep saw.
func (r *CellRepository) ClearHoldIfUnchanged(ctx context.Context, cellID int64, seenUpdatedAt, now time.Time) (bool, error) {
	tag, err := r.db.q(ctx).Exec(ctx, `
		UPDATE cells SET on_hold = FALSE, on_hold_by = NULL, updated_at = $3
		WHERE id = $1 AND on_hold AND updated_at = $2
	`, cellID, seenUpdatedAt, now)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
