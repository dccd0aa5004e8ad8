package telemetry

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	appbilling "github.com/utilitybill/backend/internal/application/billing"
	"go.opentelemetry.io/otel/metric"
)

// BillingMetrics records billing outcomes. It implements the metrics port of
// the billing service.
type BillingMetrics struct {
	billsCreated    *Counter
	billAmount      *Histogram
	billsRecalc     *Counter
	billsVoided     *Counter
	autoBillSkipped *Counter
	bulkMeters      *Counter
	bulkDuration    *Histogram
}

var _ appbilling.Metrics = (*BillingMetrics)(nil)

// NewBillingMetrics creates the billing instruments on meter.
func NewBillingMetrics(meter metric.Meter) (*BillingMetrics, error) {
	m := &BillingMetrics{}

	var err error
	if m.billsCreated, err = NewCounter(meter, "billing_bills_created_total", "Bills created by trigger", "{bill}"); err != nil {
		return nil, err
	}
	m.billAmount, err = NewHistogram(meter, HistogramOpts{
		Name:        "billing_bill_amount",
		Description: "Total amount of created bills",
		Unit:        "{currency}",
		Boundaries:  BillAmountBuckets,
	})
	if err != nil {
		return nil, err
	}
	if m.billsRecalc, err = NewCounter(meter, "billing_bills_recalculated_total", "Bills recalculated", "{bill}"); err != nil {
		return nil, err
	}
	if m.billsVoided, err = NewCounter(meter, "billing_bills_voided_total", "Bills voided", "{bill}"); err != nil {
		return nil, err
	}
	if m.autoBillSkipped, err = NewCounter(meter, "billing_auto_bill_skipped_total", "Readings that did not produce a bill, by reason", "{reading}"); err != nil {
		return nil, err
	}
	if m.bulkMeters, err = NewCounter(meter, "billing_bulk_meters_total", "Meters processed by bulk runs, by outcome", "{meter}"); err != nil {
		return nil, err
	}
	m.bulkDuration, err = NewHistogram(meter, HistogramOpts{
		Name:        "billing_bulk_duration_seconds",
		Description: "Wall time of a bulk billing run",
		Unit:        "s",
		Boundaries:  BulkDurationBuckets,
	})
	if err != nil {
		return nil, err
	}

	return m, nil
}

func (m *BillingMetrics) BillCreated(ctx context.Context, trigger string, total decimal.Decimal) {
	m.billsCreated.Inc(ctx, AttrTrigger.String(trigger))
	m.billAmount.Record(ctx, total.InexactFloat64(), AttrTrigger.String(trigger))
}

func (m *BillingMetrics) BillRecalculated(ctx context.Context) {
	m.billsRecalc.Inc(ctx)
}

func (m *BillingMetrics) BillVoided(ctx context.Context) {
	m.billsVoided.Inc(ctx)
}

func (m *BillingMetrics) AutoBillSkipped(ctx context.Context, reason appbilling.SkipReason) {
	m.autoBillSkipped.Inc(ctx, AttrSkipReason.String(string(reason)))
}

func (m *BillingMetrics) BulkCompleted(ctx context.Context, succeeded, failed int, elapsed time.Duration) {
	m.bulkMeters.Add(ctx, int64(succeeded), AttrOutcome.String("succeeded"))
	m.bulkMeters.Add(ctx, int64(failed), AttrOutcome.String("failed"))
	m.bulkDuration.RecordDuration(ctx, elapsed)
}
