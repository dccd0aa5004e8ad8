package billing

import (
	"context"

	"github.com/utilitybill/backend/internal/domain/billing"
	"github.com/utilitybill/backend/internal/domain/shared"
)

// TransactionScope provides transactional access to billing repositories.
// A bill, its detail lines, its tax lines and the outbox entries for its
// events are committed or rolled back together.
type TransactionScope interface {
	// Execute runs fn within a database transaction.
	// If fn returns an error the transaction is rolled back, otherwise it is committed.
	Execute(ctx context.Context, fn func(repos TransactionalRepositories) error) error
}

// TransactionalRepositories provides access to billing repositories within a transaction.
// All repositories returned share the same underlying database transaction.
type TransactionalRepositories interface {
	// BillRepo returns the bill repository scoped to the current transaction
	BillRepo() billing.BillRepository
	// PaymentRepo returns the payment repository scoped to the current transaction
	PaymentRepo() billing.PaymentRepository
	// SaveEvents writes domain events to the outbox within the current transaction
	SaveEvents(ctx context.Context, events ...shared.DomainEvent) error
}

// NoOpTransactionScope runs fn directly against the given repositories.
// Events are handed to the publisher, if any, instead of an outbox.
type NoOpTransactionScope struct {
	billRepo    billing.BillRepository
	paymentRepo billing.PaymentRepository
	publisher   shared.EventPublisher
}

// NewNoOpTransactionScope creates a NoOpTransactionScope. publisher may be nil.
func NewNoOpTransactionScope(
	billRepo billing.BillRepository,
	paymentRepo billing.PaymentRepository,
	publisher shared.EventPublisher,
) *NoOpTransactionScope {
	return &NoOpTransactionScope{
		billRepo:    billRepo,
		paymentRepo: paymentRepo,
		publisher:   publisher,
	}
}

// Execute runs the function without a real transaction
func (s *NoOpTransactionScope) Execute(_ context.Context, fn func(repos TransactionalRepositories) error) error {
	return fn(s)
}

// BillRepo returns the bill repository
func (s *NoOpTransactionScope) BillRepo() billing.BillRepository {
	return s.billRepo
}

// PaymentRepo returns the payment repository
func (s *NoOpTransactionScope) PaymentRepo() billing.PaymentRepository {
	return s.paymentRepo
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
