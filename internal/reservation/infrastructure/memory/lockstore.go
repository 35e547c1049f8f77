package memory

import (
	"context"
	"sync"
	"time"

	"github.com/gridseoul/landcell/internal/clock"
)

type entry struct {
	holder    string
	expiresAt time.Time
}

// LockStore is an in-process lock store with the same contract as the redis
// implementation. Lease expiry follows the injected clock, so tests can
// advance time without sleeping.
type LockStore struct {
	mu      sync.Mutex
	clock   clock.Clock
	entries map[string]entry
}

func NewLockStore(clk clock.Clock) *LockStore {
	return &LockStore{
		clock:   clk,
		entries: make(map[string]entry),
	}
}

func (s *LockStore) TryAcquire(_ context.Context, key, holder string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	if e, ok := s.entries[key]; ok && e.expiresAt.After(now) {
		return false, nil
	}
	s.entries[key] = entry{holder: holder, expiresAt: now.Add(ttl)}
	return true, nil
}

func (s *LockStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok || !e.expiresAt.After(s.clock.Now()) {
		return "", false, nil
	}
	return e.holder, true, nil
}

func (s *LockStore) RemainingTTL(_ context.Context, key string) (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return 0, nil
	}
	remaining := e.expiresAt.Sub(s.clock.Now())
	if remaining < 0 {
		return 0, nil
	}
	return remaining, nil
}

func (s *LockStore) Release(_ context.Context, key, holder string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok || e.holder != holder || !e.expiresAt.After(s.clock.Now()) {
		return false, nil
	}
	delete(s.entries, key)
	return true, nil
}
