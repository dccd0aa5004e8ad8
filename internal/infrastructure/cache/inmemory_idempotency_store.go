package cache

import (
	"context"
	"time"

	"github.com/utilitybill/backend/internal/domain/shared"
)

const sweepInterval = 5 * time.Minute

// InMemoryIdempotencyStore remembers processed event IDs in process memory.
// It is only correct for a single consumer instance.
type InMemoryIdempotencyStore struct {
	seen    *ttlMap
	sweeper *sweeper
}

// NewInMemoryIdempotencyStore creates a store and starts its expiry sweeper
func NewInMemoryIdempotencyStore() *InMemoryIdempotencyStore {
	seen := newTTLMap()
	return &InMemoryIdempotencyStore{
		seen:    seen,
		sweeper: startSweeper(seen, sweepInterval),
	}
}

// MarkProcessed returns true the first time eventID is seen within ttl
func (s *InMemoryIdempotencyStore) MarkProcessed(_ context.Context, eventID string, ttl time.Duration) (bool, error) {
	return s.seen.setNX(eventID, "1", ttl), nil
}

// IsProcessed reports whether eventID is remembered
func (s *InMemoryIdempotencyStore) IsProcessed(_ context.Context, eventID string) (bool, error) {
	_, ok := s.seen.get(eventID)
	return ok, nil
}

// Close stops the sweeper. Safe to call more than once.
func (s *InMemoryIdempotencyStore) Close() error {
	s.sweeper.close()
	return nil
}

// Size returns the number of stored IDs, including expired ones not yet swept
func (s *InMemoryIdempotencyStore) Size() int {
	return s.seen.len()
}

var _ shared.IdempotencyStore = (*InMemoryIdempotencyStore)(nil)
