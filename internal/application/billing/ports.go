package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/utilitybill/backend/internal/domain/shared"
)

// ErrMeterLocked is returned by a MeterLocker when another worker holds the meter's lease
var ErrMeterLocked = shared.NewDomainError("METER_LOCKED", "Meter is being billed by another worker")

// MeterLocker serializes billing per meter across reading-triggered and bulk
// runs. The lease is taken before the period start is derived and released
// after commit or skip; ttl bounds how long a crashed holder can block the meter.
type MeterLocker interface {
	// Lock acquires the meter's lease or fails with ErrMeterLocked.
	// The returned func releases the lease only if it is still held by this caller.
	Lock(ctx context.Context, meterID uuid.UUID, ttl time.Duration) (unlock func(context.Context) error, err error)
}

// Metrics records billing outcomes. Implementations must be safe for concurrent use.
type Metrics interface {
	BillCreated(ctx context.Context, trigger string, total decimal.Decimal)
	BillRecalculated(ctx context.Context)
	BillVoided(ctx context.Context)
	AutoBillSkipped(ctx context.Context, reason SkipReason)
	BulkCompleted(ctx context.Context, succeeded, failed int, elapsed time.Duration)
}

// Trigger labels for BillCreated
const (
	TriggerManual  = "manual"
	TriggerBulk    = "bulk"
	TriggerReading = "reading"
)

type nopMetrics struct{}

func (nopMetrics) BillCreated(context.Context, string, decimal.Decimal) {}
func (nopMetrics) BillRecalculated(context.Context) {}
func (nopMetrics) BillVoided(context.Context) {}
func (nopMetrics) AutoBillSkipped(context.Context, SkipReason) {}
func (nopMetrics) BulkCompleted(context.Context, int, int, time.Duration) {}

// NopMetrics discards every observation
func NopMetrics() Metrics {
	return nopMetrics{}
}
