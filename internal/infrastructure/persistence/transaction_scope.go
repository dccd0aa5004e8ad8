package persistence

import (
	"context"

	appbilling "github.com/utilitybill/backend/internal/application/billing"
	appmetering "github.com/utilitybill/backend/internal/application/metering"
	"github.com/utilitybill/backend/internal/domain/billing"
	"github.com/utilitybill/backend/internal/domain/metering"
	"github.com/utilitybill/backend/internal/domain/shared"
	"gorm.io/gorm"
)

// GormBillingScope implements the billing TransactionScope using GORM transactions.
// Events saved through the scope land in the outbox inside the same transaction.
type GormBillingScope struct {
	db     *gorm.DB
	outbox shared.OutboxEventSaver
}

// NewGormBillingScope creates a new GormBillingScope
func NewGormBillingScope(db *gorm.DB, outbox shared.OutboxEventSaver) *GormBillingScope {
	return &GormBillingScope{db: db, outbox: outbox}
}

// Execute runs fn within a database transaction.
// If fn returns an error, the transaction is rolled back.
func (s *GormBillingScope) Execute(ctx context.Context, fn func(repos appbilling.TransactionalRepositories) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormBillingRepositories{gormTxEvents: gormTxEvents{tx: tx, outbox: s.outbox}})
	})
}

// GormReadingScope implements the metering TransactionScope using GORM transactions
type GormReadingScope struct {
	db     *gorm.DB
	outbox shared.OutboxEventSaver
}

// NewGormReadingScope creates a new GormReadingScope
func NewGormReadingScope(db *gorm.DB, outbox shared.OutboxEventSaver) *GormReadingScope {
	return &GormReadingScope{db: db, outbox: outbox}
}

// Execute runs fn within a database transaction
func (s *GormReadingScope) Execute(ctx context.Context, fn func(repos appmetering.TransactionalRepositories) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormReadingRepositories{gormTxEvents: gormTxEvents{tx: tx, outbox: s.outbox}})
	})
}

// gormTxEvents writes events to the outbox through the current transaction.
// With no outbox configured, events are dropped.
type gormTxEvents struct {
	tx     *gorm.DB
	outbox shared.OutboxEventSaver
}

func (e gormTxEvents) SaveEvents(ctx context.Context, events ...shared.DomainEvent) error {
	if e.outbox == nil || len(events) == 0 {
		return nil
	}
	return e.outbox.SaveEvents(ctx, e.tx, events...)
}

type gormBillingRepositories struct {
	gormTxEvents
}

// BillRepo returns the bill repository scoped to the current transaction
func (r *gormBillingRepositories) BillRepo() billing.BillRepository {
	return NewGormBillRepository(r.tx)
}

// PaymentRepo returns the payment repository scoped to the current transaction
func (r *gormBillingRepositories) PaymentRepo() billing.PaymentRepository {
	return NewGormPaymentRepository(r.tx)
}

type gormReadingRepositories struct {
	gormTxEvents
}

// ReadingRepo returns the reading repository scoped to the current transaction
func (r *gormReadingRepositories) ReadingRepo() metering.ReadingRepository {
	return NewGormReadingRepository(r.tx)
}

var (
	_ appbilling.TransactionScope           = (*GormBillingScope)(nil)
	_ appbilling.TransactionalRepositories  = (*gormBillingRepositories)(nil)
	_ appmetering.TransactionScope          = (*GormReadingScope)(nil)
	_ appmetering.TransactionalRepositories = (*gormReadingRepositories)(nil)
)
