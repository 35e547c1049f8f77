package postgres

import (
	"context"
	"time"

	"github.com/gridseoul/landcell/pkg/outbox"
)

// OutboxStore claims pending outbox rows with FOR UPDATE SKIP LOCKED so
// concurrent relays never pick the same batch.
type OutboxStore struct {
	db *DB
}

func NewOutboxStore(db *DB) *OutboxStore {
	return &OutboxStore{db: db}
}

func (s *OutboxStore) LockBatch(ctx context.Context, relayID string, batchSize int, lease time.Duration) ([]outbox.Event, error) {
	rows, err := s.db.pool.Query(ctx, `
		UPDATE outbox SET status = 'in_progress', relay_id = $1, lease_until = now() + $2
		WHERE id IN (
			SELECT id FROM outbox
			WHERE status = 'pending'
			   OR (status = 'in_progress' AND lease_until < now())
			ORDER BY id
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, aggregate_type, aggregate_id, type, payload, traceparent, created_at, retry_count
	`, relayID, lease, batchSize)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []outbox.Event
	for rows.Next() {
		var e outbox.Event
		if err := rows.Scan(&e.ID, &e.AggregateType, &e.AggregateID, &e.Type, &e.Payload, &e.Traceparent, &e.CreatedAt, &e.RetryCount); err != nil {
			return nil, err
		}
		e.Status = outbox.StatusInProgress
		events = append(events, e)
	}
	return events, rows.Err()
}

func (s *OutboxStore) MarkSent(ctx context.Context, ids []int64) error {
	_, err := s.db.pool.Exec(ctx, `
		UPDATE outbox SET status = 'sent', relay_id = NULL, lease_until = NULL
		WHERE id = ANY($1)
	`, ids)
	return err
}

func (s *OutboxStore) MarkFailed(ctx context.Context, id int64, errMsg string) error {
	_, err := s.db.pool.Exec(ctx, `
		UPDATE outbox
		SET status = 'failed', retry_count = retry_count + 1, last_error = $2,
		    relay_id = NULL, lease_until = NULL
		WHERE id = $1
	`, id, errMsg)
	return err
}
