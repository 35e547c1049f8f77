package postgres

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"github.com/gridseoul/landcell/internal/reservation/domain"
)

// CouponLedger keeps the per-buyer coupon balance. Debit is conditional on
// sufficient balance so a concurrent spend can never drive it negative.
type CouponLedger struct {
	log *slog.Logger
	db  *DB
}

func NewCouponLedger(log *slog.Logger, db *DB) *CouponLedger {
	return &CouponLedger{log: log, db: db}
}

func (l *CouponLedger) Balance(ctx context.Context, buyerID int64) (int64, error) {
	var n int64
	err := l.db.q(ctx).QueryRow(ctx, `
		SELECT coupon_count FROM buyers WHERE id = $1
	`, buyerID).Scan(&n)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return n, err
}

func (l *CouponLedger) Debit(ctx context.Context, buyerID, n int64) error {
	tag, err := l.db.q(ctx).Exec(ctx, `
		UPDATE buyers SET coupon_count = coupon_count - $2
		WHERE id = $1 AND coupon_count >= $2
	`, buyerID, n)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrInsufficientCoupons
	}
	return nil
}

func (l *CouponLedger) Credit(ctx context.Context, buyerID, n int64) error {
	_, err := l.db.q(ctx).Exec(ctx, `
		INSERT INTO buyers (id, coupon_count) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET coupon_count = buyers.coupon_count + $2
	`, buyerID, n)
	return err
}
