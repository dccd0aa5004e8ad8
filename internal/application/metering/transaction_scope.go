package metering

import (
	"context"

	"github.com/utilitybill/backend/internal/domain/metering"
	"github.com/utilitybill/backend/internal/domain/shared"
)

// TransactionScope provides transactional access to reading storage.
// A reading and the outbox entry announcing it commit together, so the
// billing consumer never sees an event for a reading that was rolled back.
type TransactionScope interface {
	Execute(ctx context.Context, fn func(repos TransactionalRepositories) error) error
}

// TransactionalRepositories provides access to repositories within a transaction
type TransactionalRepositories interface {
	ReadingRepo() metering.ReadingRepository
	SaveEvents(ctx context.Context, events ...shared.DomainEvent) error
}

// NoOpTransactionScope runs fn directly against the reading repository and
// hands events to the publisher, if any.
type NoOpTransactionScope struct {
	readingRepo metering.ReadingRepository
	publisher   shared.EventPublisher
}

// NewNoOpTransactionScope creates a NoOpTransactionScope. publisher may be nil.
func NewNoOpTransactionScope(readingRepo metering.ReadingRepository, publisher shared.EventPublisher) *NoOpTransactionScope {
	return &NoOpTransactionScope{readingRepo: readingRepo, publisher: publisher}
}

// Execute runs the function without a real transaction
func (s *NoOpTransactionScope) Execute(_ context.Context, fn func(repos TransactionalRepositories) error) error {
	return fn(s)
}

// ReadingRepo returns the reading repository
func (s *NoOpTransactionScope) ReadingRepo() metering.ReadingRepository {
	return s.readingRepo
}

// SaveEvents publishes the events directly
func (s *NoOpTransactionScope) SaveEvents(ctx context.Context, events ...shared.DomainEvent) error {
	if s.publisher == nil || len(events) == 0 {
		return nil
	}
	return s.publisher.Publish(ctx, events...)
}

var _ TransactionScope = (*NoOpTransactionScope)(nil)
var _ TransactionalRepositories = (*NoOpTransactionScope)(nil)
