package memory

import (
	"context"
	"sync"
	"time"

	"activityhub/internal/app/middleware"
)

// IdempotencyStore forgets outcomes TTL after they were saved, like the TTL
// index on the Mongo collection. A zero TTL keeps them forever.
type IdempotencyStore struct {
	TTL time.Duration

	mu    sync.Mutex
	items map[string]storedOutcome
}

type storedOutcome struct {
	rec     middleware.IdempotencyRecord
	savedAt time.Time
}

func NewIdempotencyStore() *IdempotencyStore {
	return &IdempotencyStore{TTL: 7 * 24 * time.Hour, items: make(map[string]storedOutcome)}
}

func (s *IdempotencyStore) Get(_ context.Context, key string) (middleware.IdempotencyRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out, ok := s.items[key]
	if !ok {
		return middleware.IdempotencyRecord{}, false, nil
	}
	if s.expired(out, time.Now()) {
		delete(s.items, key)
		return middleware.IdempotencyRecord{}, false, nil
	}
	return out.rec, true, nil
}

func (s *IdempotencyStore) Save(_ context.Context, rec middleware.IdempotencyRecord) error {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, out := range s.items {
		if s.expired(out, now) {
			delete(s.items, key)
		}
	}
	s.items[rec.Key] = storedOutcome{rec: rec, savedAt: now}
	return nil
}

func (s *IdempotencyStore) expired(out storedOutcome, now time.Time) bool {
	return s.TTL > 0 && now.Sub(out.savedAt) > s.TTL
}
