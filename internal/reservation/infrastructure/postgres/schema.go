package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS areas (
		id BIGINT PRIMARY KEY,
		name TEXT NOT NULL,
		district TEXT NOT NULL DEFAULT '',
		cell_count BIGINT NOT NULL DEFAULT 0,
		purchase_count BIGINT NOT NULL DEFAULT 0,
		reserved_cell_count BIGINT NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'NONE',
		coupon_grant BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`CREATE TABLE IF NOT EXISTS cells (
		id BIGINT PRIMARY KEY,
		area_id BIGINT NOT NULL REFERENCES areas(id),
		owner_id BIGINT,
		reserved BOOLEAN NOT NULL DEFAULT FALSE,
		on_hold BOOLEAN NOT NULL DEFAULT FALSE,
		on_hold_by BIGINT,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS cells_stale_hold_idx ON cells (updated_at) WHERE on_hold`,
	`CREATE TABLE IF NOT EXISTS buyers (
		id BIGINT PRIMARY KEY,
		coupon_count BIGINT NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS contracts (
		id BIGSERIAL PRIMARY KEY,
		area_id BIGINT NOT NULL,
		buyer_id BIGINT NOT NULL,
		order_no TEXT NOT NULL UNIQUE,
		tr_no TEXT NOT NULL,
		price BIGINT NOT NULL DEFAULT 0,
		refunded BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS contract_cells (
		contract_id BIGINT NOT NULL REFERENCES contracts(id),
		cell_id BIGINT NOT NULL REFERENCES cells(id),
		PRIMARY KEY (contract_id, cell_id)
	)`,
	`CREATE TABLE IF NOT EXISTS outbox (
		id BIGSERIAL PRIMARY KEY,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		type TEXT NOT NULL,
		payload JSONB NOT NULL,
		traceparent TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'pending',
		relay_id TEXT,
		lease_until TIMESTAMPTZ,
		retry_count INT NOT NULL DEFAULT 0,
		last_error TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}

// Migrate applies the schema. Statements are idempotent so startup can run
// this unconditionally.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
