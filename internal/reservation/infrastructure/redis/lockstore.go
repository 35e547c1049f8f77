package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only when it still belongs to the holder,
// in one round trip, so a concurrent re-acquire cannot be clobbered between
// a GET and a DEL.
var releaseScript = redis.NewScript(`
if redis.call('get', KEYS[1]) == ARGV[1] then
    return redis.call('del', KEYS[1])
end
return 0
`)

// LockStore backs the hold lease with redis. One key per cell, value is the
// holder, TTL is the lease; SET NX is the only atomic primitive the engine
// relies on.
type LockStore struct {
	rdb *redis.Client
}

func NewLockStore(rdb *redis.Client) *LockStore {
	return &LockStore{rdb: rdb}
}

func (s *LockStore) TryAcquire(ctx context.Context, key, holder string, ttl time.Duration) (bool, error) {
	return s.rdb.SetNX(ctx, key, holder, ttl).Result()
}

func (s *LockStore) Get(ctx context.Context, key string) (string, bool, error) {
	holder, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return holder, true, nil
}

func (s *LockStore) RemainingTTL(ctx context.Context, key string) (time.Duration, error) {
	ttl, err := s.rdb.PTTL(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if ttl < 0 {
		// -1 no expiry, -2 no key; either way there is no live lease.
		return 0, nil
	}
	return ttl, nil
}

func (s *LockStore) Release(ctx context.Context, key, holder string) (bool, error) {
	n, err := releaseScript.Run(ctx, s.rdb, []string{key}, holder).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
