package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	appbilling "github.com/utilitybill/backend/internal/application/billing"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestBillingMetrics_Records(t *testing.T) {
	provider, reader := newManualMeter(t)
	m, err := NewBillingMetrics(provider.Meter("billing"))
	require.NoError(t, err)

	ctx := context.Background()
	m.BillCreated(ctx, appbilling.TriggerReading, decimal.RequireFromString("4600"))
	m.BillCreated(ctx, appbilling.TriggerBulk, decimal.RequireFromString("1725.50"))
	m.BillCreated(ctx, appbilling.TriggerBulk, decimal.RequireFromString("99"))
	m.BillRecalculated(ctx)
	m.BillVoided(ctx)
	m.BillVoided(ctx)
	m.AutoBillSkipped(ctx, appbilling.SkipTooSoon)
	m.AutoBillSkipped(ctx, appbilling.SkipTooSoon)
	m.AutoBillSkipped(ctx, appbilling.SkipMeterLocked)
	m.BulkCompleted(ctx, 40, 2, 90*time.Second)

	rm := collect(t, reader)
	var anyAttr attribute.KeyValue

	assert.Equal(t, int64(3), counterValue(t, rm, "billing_bills_created_total", anyAttr))
	assert.Equal(t, int64(2), counterValue(t, rm, "billing_bills_created_total", AttrTrigger.String(appbilling.TriggerBulk)))
	assert.Equal(t, int64(1), counterValue(t, rm, "billing_bills_created_total", AttrTrigger.String(appbilling.TriggerReading)))
	assert.Equal(t, uint64(3), histogramCount(t, rm, "billing_bill_amount"))

	assert.Equal(t, int64(1), counterValue(t, rm, "billing_bills_recalculated_total", anyAttr))
	assert.Equal(t, int64(2), counterValue(t, rm, "billing_bills_voided_total", anyAttr))

	assert.Equal(t, int64(2), counterValue(t, rm, "billing_auto_bill_skipped_total", AttrSkipReason.String(string(appbilling.SkipTooSoon))))
	assert.Equal(t, int64(1), counterValue(t, rm, "billing_auto_bill_skipped_total", AttrSkipReason.String(string(appbilling.SkipMeterLocked))))

	assert.Equal(t, int64(40), counterValue(t, rm, "billing_bulk_meters_total", AttrOutcome.String("succeeded")))
	assert.Equal(t, int64(2), counterValue(t, rm, "billing_bulk_meters_total", AttrOutcome.String("failed")))
	assert.Equal(t, uint64(1), histogramCount(t, rm, "billing_bulk_duration_seconds"))
}

func TestBillingMetrics_NoopMeter(t *testing.T) {
	m, err := NewBillingMetrics(noop.NewMeterProvider().Meter("billing"))
	require.NoError(t, err)

	ctx := context.Background()
	assert.NotPanics(t, func() {
		m.BillCreated(ctx, appbilling.TriggerManual, decimal.Zero)
		m.AutoBillSkipped(ctx, appbilling.SkipError)
		m.BulkCompleted(ctx, 0, 0, 0)
	})
}
