package billing

import (
	"context"

	"github.com/google/uuid"
)

// BillRepository defines persistence operations for the Bill aggregate.
// A bill is always loaded and stored together with its detail and tax lines.
type BillRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Bill, error)
	// FindByIDForUpdate loads the bill and row-locks it until the enclosing
	// transaction ends. Outside a transaction the lock is released at once.
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*Bill, error)
	// FindLatestActiveByMeter returns the non-voided bill with the latest
	// period end, or shared.ErrNotFound
	FindLatestActiveByMeter(ctx context.Context, meterID uuid.UUID) (*Bill, error)
	// FindByCustomer pages through a customer's bills, newest first
	FindByCustomer(ctx context.Context, customerID uuid.UUID, page, pageSize int) ([]Bill, int64, error)
	// Create inserts the bill and its lines
	Create(ctx context.Context, bill *Bill) error
	// Update stores charge columns and replaces the lines. It fails with
	// shared.ErrConcurrencyConflict when the stored version is not bill.Version-1.
	Update(ctx context.Context, bill *Bill) error
}
