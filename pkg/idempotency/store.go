package idempotency

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store remembers request keys for a window so a retried settlement with the
// same order number is rejected instead of charged twice.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

func NewStore(client *redis.Client, ttl time.Duration) *Store {
	return &Store{client: client, ttl: ttl}
}

// Seen records the key and reports whether it was already present.
func (s *Store) Seen(ctx context.Context, key string) (bool, error) {
	ok, err := s.client.SetNX(ctx, "idem:"+key, "1", s.ttl).Result()
	if err != nil {
		return false, err
	}
	return !ok, nil
}

// Forget drops the key so the caller may retry after a failure that never
// reached the gateway.
func (s *Store) Forget(ctx context.Context, key string) error {
	return s.client.Del(ctx, "idem:"+key).Err()
}
