package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/utilitybill/backend/internal/domain/billing"
	"github.com/utilitybill/backend/internal/domain/metering"
	"github.com/utilitybill/backend/internal/domain/shared"
	"github.com/utilitybill/backend/internal/domain/tariff"
)

func TestBillingService_Create(t *testing.T) {
	t.Run("prices and stores bill with slab and tax lines", func(t *testing.T) {
		f := newFixture(t)
		s := newMeterSetup(t, true)
		f.expectLookup(s)
		f.expectPricing(t, s, periodStart, periodEnd, "1000", "1250")
		f.bills.On("Create", mock.Anything, mock.AnythingOfType("*billing.Bill")).Return(nil)

		bill, err := f.service.Create(context.Background(), s.meter.ID, periodStart, periodEnd)
		require.NoError(t, err)

		assert.Equal(t, s.conn.ID, bill.ConnectionID)
		assert.Equal(t, s.conn.CustomerID, bill.CustomerID)
		assert.True(t, bill.TotalImportUnit.Equal(dec("250")))
		assert.True(t, bill.EnergyChargeAmount.Equal(dec("3500")))
		assert.True(t, bill.FixedChargeAmount.Equal(dec("500")))
		assert.True(t, bill.TotalTax().Equal(dec("600")))
		assert.True(t, bill.GetTotalAmount().Equal(dec("4600")), "total = %s", bill.GetTotalAmount())

		require.Len(t, bill.Details, 3)
		assert.True(t, bill.Details[0].Amount.Equal(dec("1000")))
		assert.True(t, bill.Details[1].Amount.Equal(dec("1500")))
		assert.True(t, bill.Details[2].Amount.Equal(dec("1000")))
		require.Len(t, bill.Taxes, 1)
		assert.Equal(t, vatID, bill.Taxes[0].TaxConfigID)
		assert.True(t, bill.Taxes[0].TaxableBaseAmount.Equal(dec("4000")))

		assert.Equal(t, day(2025, 6, 1), bill.BillDate)
		assert.Equal(t, day(2025, 6, 16), bill.DueDate)
		assert.Equal(t, billing.BillStatusActive, bill.Status)
		assert.Empty(t, bill.GetDomainEvents())
		assert.Equal(t, []string{billing.EventTypeBillCreated}, f.publisher.Types())
		assert.Equal(t, 1, f.metrics.created[TriggerManual])
		f.assertExpectations(t)
	})

	t.Run("unknown meter is not found", func(t *testing.T) {
		f := newFixture(t)
		meterID := uuid.New()
		f.meters.On("FindByID", mock.Anything, meterID).Return(nil, shared.ErrNotFound)

		_, err := f.service.Create(context.Background(), meterID, periodStart, periodEnd)
		require.Error(t, err)
		assert.ErrorIs(t, err, shared.ErrNotFound)
		assert.Equal(t, shared.KindNotFound, shared.KindOf(err))
		f.bills.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("meter without active connection is not found", func(t *testing.T) {
		f := newFixture(t)
		s := newMeterSetup(t, true)
		f.meters.On("FindByID", mock.Anything, s.meter.ID).Return(s.meter, nil)
		f.conns.On("FindActiveByMeter", mock.Anything, s.meter.ID).Return(nil, shared.ErrNotFound)

		_, err := f.service.Create(context.Background(), s.meter.ID, periodStart, periodEnd)
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("connection without tariff category is rejected", func(t *testing.T) {
		f := newFixture(t)
		s := newMeterSetup(t, false)
		f.expectLookup(s)

		_, err := f.service.Create(context.Background(), s.meter.ID, periodStart, periodEnd)
		assert.ErrorIs(t, err, billing.ErrNoTariffCategory)
		assert.Equal(t, shared.KindValidation, shared.KindOf(err))
		f.bills.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("single reading is insufficient", func(t *testing.T) {
		f := newFixture(t)
		s := newMeterSetup(t, true)
		f.expectLookup(s)
		f.expectPricing(t, s, periodStart, periodEnd, "1000")

		_, err := f.service.Create(context.Background(), s.meter.ID, periodStart, periodEnd)
		assert.ErrorIs(t, err, billing.ErrInsufficientReadings)
		f.bills.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("decreasing readings are an invalid sequence", func(t *testing.T) {
		f := newFixture(t)
		s := newMeterSetup(t, true)
		f.expectLookup(s)
		f.expectPricing(t, s, periodStart, periodEnd, "1250", "1000")

		_, err := f.service.Create(context.Background(), s.meter.ID, periodStart, periodEnd)
		assert.ErrorIs(t, err, billing.ErrInvalidReadingSequence)
	})

	t.Run("store failure publishes nothing", func(t *testing.T) {
		f := newFixture(t)
		s := newMeterSetup(t, true)
		f.expectLookup(s)
		f.expectPricing(t, s, periodStart, periodEnd, "1000", "1250")
		f.bills.On("Create", mock.Anything, mock.Anything).Return(errors.New("connection reset"))

		_, err := f.service.Create(context.Background(), s.meter.ID, periodStart, periodEnd)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to save bill")
		assert.Empty(t, f.publisher.Types())
		assert.Zero(t, f.metrics.created[TriggerManual])
	})
}

func TestBillingService_Recalculate(t *testing.T) {
	t.Run("replaces charges and lines keeping dates", func(t *testing.T) {
		f := newFixture(t)
		s := newMeterSetup(t, true)
		stored := storedBill(t, s, periodStart, periodEnd)
		require.True(t, stored.GetTotalAmount().Equal(dec("1725")))
		f.bills.On("FindByID", mock.Anything, stored.ID).Return(stored, nil)
		f.conns.On("FindByID", mock.Anything, s.conn.ID).Return(s.conn, nil)
		f.expectPricing(t, s, periodStart, periodEnd, "1000", "1250")
		f.bills.On("Update", mock.Anything, stored).Return(nil)

		bill, err := f.service.Recalculate(context.Background(), stored.ID)
		require.NoError(t, err)

		assert.Len(t, bill.Details, 3)
		assert.True(t, bill.GetTotalAmount().Equal(dec("4600")))
		assert.Equal(t, 2, bill.Version)
		assert.Equal(t, periodEnd.AddDate(0, 0, 1), bill.BillDate)
		assert.Equal(t, []string{billing.EventTypeBillRecalculated}, f.publisher.Types())
		assert.Equal(t, 1, f.metrics.recalc)
		f.assertExpectations(t)
	})

	t.Run("voided bill is rejected", func(t *testing.T) {
		f := newFixture(t)
		s := newMeterSetup(t, true)
		stored := storedBill(t, s, periodStart, periodEnd)
		require.NoError(t, stored.Void("meter swap", uuid.New(), decimal.Zero, today))
		f.bills.On("FindByID", mock.Anything, stored.ID).Return(stored, nil)

		_, err := f.service.Recalculate(context.Background(), stored.ID)
		assert.ErrorIs(t, err, billing.ErrBillVoided)
		f.bills.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
	})

	t.Run("version conflict surfaces as conflict", func(t *testing.T) {
		f := newFixture(t)
		s := newMeterSetup(t, true)
		stored := storedBill(t, s, periodStart, periodEnd)
		f.bills.On("FindByID", mock.Anything, stored.ID).Return(stored, nil)
		f.conns.On("FindByID", mock.Anything, s.conn.ID).Return(s.conn, nil)
		f.expectPricing(t, s, periodStart, periodEnd, "1000", "1250")
		f.bills.On("Update", mock.Anything, stored).Return(shared.ErrConcurrencyConflict)

		_, err := f.service.Recalculate(context.Background(), stored.ID)
		assert.ErrorIs(t, err, shared.ErrConcurrencyConflict)
		assert.Equal(t, shared.KindConflict, shared.KindOf(err))
		assert.Empty(t, f.publisher.Types())
	})
}

func TestBillingService_Void(t *testing.T) {
	t.Run("unpaid bill is voided with sentinel due date", func(t *testing.T) {
		f := newFixture(t)
		s := newMeterSetup(t, true)
		stored := storedBill(t, s, periodStart, periodEnd)
		employee := uuid.New()
		f.bills.On("FindByIDForUpdate", mock.Anything, stored.ID).Return(stored, nil)
		f.payments.On("SumByBill", mock.Anything, stored.ID).Return(decimal.Zero, nil)
		f.bills.On("Update", mock.Anything, stored).Return(nil)

		bill, err := f.service.Void(context.Background(), stored.ID, "duplicate reading", employee)
		require.NoError(t, err)

		assert.Equal(t, billing.BillStatusVoided, bill.Status)
		assert.Equal(t, billing.VoidedDueDate, bill.DueDate)
		assert.True(t, bill.EnergyChargeAmount.IsZero())
		assert.True(t, bill.FixedChargeAmount.IsZero())
		assert.True(t, bill.GetTotalAmount().IsZero())
		assert.Equal(t, "duplicate reading", bill.VoidReason)
		require.NotNil(t, bill.VoidedBy)
		assert.Equal(t, employee, *bill.VoidedBy)
		assert.Equal(t, []string{billing.EventTypeBillVoided}, f.publisher.Types())
		assert.Equal(t, 1, f.metrics.voided)
		f.assertExpectations(t)
	})

	amounts := []string{"0.01", "1", "1725", "5000"}
	for _, paid := range amounts {
		t.Run("bill with payments of "+paid+" cannot be voided", func(t *testing.T) {
			f := newFixture(t)
			s := newMeterSetup(t, true)
			stored := storedBill(t, s, periodStart, periodEnd)
			f.bills.On("FindByIDForUpdate", mock.Anything, stored.ID).Return(stored, nil)
			f.payments.On("SumByBill", mock.Anything, stored.ID).Return(dec(paid), nil)

			_, err := f.service.Void(context.Background(), stored.ID, "customer request", uuid.New())
			assert.ErrorIs(t, err, billing.ErrCannotVoidPaidBill)
			assert.Equal(t, billing.BillStatusActive, stored.Status)
			f.bills.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
			assert.Empty(t, f.publisher.Types())
		})
	}

	t.Run("reason is required", func(t *testing.T) {
		f := newFixture(t)
		s := newMeterSetup(t, true)
		stored := storedBill(t, s, periodStart, periodEnd)
		f.bills.On("FindByIDForUpdate", mock.Anything, stored.ID).Return(stored, nil)
		f.payments.On("SumByBill", mock.Anything, stored.ID).Return(decimal.Zero, nil)

		_, err := f.service.Void(context.Background(), stored.ID, "  ", uuid.New())
		assert.ErrorIs(t, err, shared.ErrInvalidInput)
	})

	t.Run("missing bill is not found", func(t *testing.T) {
		f := newFixture(t)
		billID := uuid.New()
		f.bills.On("FindByIDForUpdate", mock.Anything, billID).Return(nil, shared.ErrNotFound)

		_, err := f.service.Void(context.Background(), billID, "typo", uuid.New())
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}

func TestBillingService_CreateBulk(t *testing.T) {
	filter := BulkFilter{
		UtilityType: metering.UtilityTypeElectricity,
		PeriodStart: periodStart,
		PeriodEnd:   periodEnd,
	}
	connFilter := metering.ConnectionFilter{UtilityType: metering.UtilityTypeElectricity}

	setupFive := func(t *testing.T, f *fixture) []meterSetup {
		t.Helper()
		setups := make([]meterSetup, 5)
		conns := make([]metering.ServiceConnection, 5)
		for i := range setups {
			setups[i] = newMeterSetup(t, i != 2)
			conns[i] = *setups[i].conn
			f.bills.On("FindLatestActiveByMeter", mock.Anything, setups[i].meter.ID).Return(nil, shared.ErrNotFound)
			if i != 2 {
				f.expectPricing(t, setups[i], periodStart, periodEnd, "1000", "1250")
			}
		}
		f.conns.On("FindActive", mock.Anything, connFilter).Return(conns, nil)
		return setups
	}

	t.Run("one failing meter does not abort the batch", func(t *testing.T) {
		f := newFixture(t)
		setups := setupFive(t, f)
		f.bills.On("Create", mock.Anything, mock.AnythingOfType("*billing.Bill")).Return(nil)

		result, err := f.service.CreateBulk(context.Background(), filter, false)
		require.NoError(t, err)

		require.Len(t, result.Succeeded, 4)
		require.Len(t, result.Failed, 1)
		assert.Equal(t, 5, result.Total())
		assert.Equal(t, setups[2].meter.ID, result.Failed[0].MeterID)
		assert.Equal(t, billing.ErrNoTariffCategory.Code, result.Failed[0].Code)
		assert.Contains(t, result.Failed[0].Error, "no tariff category")

		billed := []uuid.UUID{}
		for _, s := range result.Succeeded {
			require.NotNil(t, s.BillID)
			assert.True(t, s.TotalAmount.Equal(dec("4600")))
			billed = append(billed, s.MeterID)
		}
		assert.Equal(t, []uuid.UUID{setups[0].meter.ID, setups[1].meter.ID, setups[3].meter.ID, setups[4].meter.ID}, billed)
		f.bills.AssertNumberOfCalls(t, "Create", 4)
		assert.Equal(t, 4, f.metrics.created[TriggerBulk])
		assert.Equal(t, 4, f.metrics.bulkOK)
		assert.Equal(t, 1, f.metrics.bulkFail)
	})

	t.Run("dry run prices without storing", func(t *testing.T) {
		f := newFixture(t)
		setupFive(t, f)

		result, err := f.service.CreateBulk(context.Background(), filter, true)
		require.NoError(t, err)

		assert.True(t, result.DryRun)
		require.Len(t, result.Succeeded, 4)
		require.Len(t, result.Failed, 1)
		for _, s := range result.Succeeded {
			assert.Nil(t, s.BillID)
			require.NotNil(t, s.Calculation)
			assert.True(t, s.Calculation.TotalAmount.Equal(dec("4600")))
		}
		f.bills.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
		assert.Empty(t, f.publisher.Types())
	})

	t.Run("store failure is recorded per meter", func(t *testing.T) {
		f := newFixture(t)
		setupFive(t, f)
		f.bills.On("Create", mock.Anything, mock.Anything).Return(shared.ErrConcurrencyConflict).Once()
		f.bills.On("Create", mock.Anything, mock.Anything).Return(nil)

		result, err := f.service.CreateBulk(context.Background(), filter, false)
		require.NoError(t, err)
		assert.Len(t, result.Succeeded, 3)
		require.Len(t, result.Failed, 2)
		assert.Equal(t, shared.ErrConcurrencyConflict.Code, result.Failed[0].Code)
	})

	t.Run("selection failure is returned", func(t *testing.T) {
		f := newFixture(t)
		f.conns.On("FindActive", mock.Anything, connFilter).Return([]metering.ServiceConnection(nil), errors.New("db down"))

		result, err := f.service.CreateBulk(context.Background(), filter, false)
		assert.Error(t, err)
		assert.Nil(t, result)
	})

	t.Run("inverted period is rejected", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.service.CreateBulk(context.Background(), BulkFilter{PeriodStart: periodEnd, PeriodEnd: periodStart}, false)
		assert.ErrorIs(t, err, billing.ErrInvalidBillingPeriod)
		_, err = f.service.CreateBulk(context.Background(), BulkFilter{PeriodStart: periodStart}, false)
		assert.ErrorIs(t, err, billing.ErrInvalidBillingPeriod)
		f.conns.AssertNotCalled(t, "FindActive", mock.Anything, mock.Anything)
	})

	single := func(t *testing.T, f *fixture, s meterSetup) {
		t.Helper()
		f.conns.On("FindActive", mock.Anything, connFilter).Return([]metering.ServiceConnection{*s.conn}, nil)
	}

	t.Run("continues from the latest active bill", func(t *testing.T) {
		f := newFixture(t)
		s := newMeterSetup(t, true)
		single(t, f, s)
		last := storedBill(t, s, day(2025, 4, 30), day(2025, 5, 27))
		f.bills.On("FindLatestActiveByMeter", mock.Anything, s.meter.ID).Return(last, nil)
		f.expectPricing(t, s, day(2025, 5, 27), periodEnd, "1000", "1250")
		var created *billing.Bill
		f.bills.On("Create", mock.Anything, mock.AnythingOfType("*billing.Bill")).
			Run(func(args mock.Arguments) { created = args.Get(1).(*billing.Bill) }).
			Return(nil)

		result, err := f.service.CreateBulk(context.Background(), filter, false)
		require.NoError(t, err)
		require.Len(t, result.Succeeded, 1)
		assert.Empty(t, result.Failed)
		require.NotNil(t, created)
		assert.True(t, created.BillingPeriodStart.Equal(day(2025, 5, 27)), "start = %s", created.BillingPeriodStart)
		assert.True(t, created.BillingPeriodEnd.Equal(periodEnd))
		f.readings.AssertNotCalled(t, "FindByMeterInRange", mock.Anything, s.meter.ID, periodStart, periodEnd)
		f.readings.AssertNotCalled(t, "FindFirstByMeter", mock.Anything, mock.Anything)
	})

	t.Run("meter billed through the period end is not billed again", func(t *testing.T) {
		for _, dryRun := range []bool{false, true} {
			f := newFixture(t)
			s := newMeterSetup(t, true)
			single(t, f, s)
			last := storedBill(t, s, day(2025, 5, 1), day(2025, 5, 31))
			f.bills.On("FindLatestActiveByMeter", mock.Anything, s.meter.ID).Return(last, nil)

			result, err := f.service.CreateBulk(context.Background(), filter, dryRun)
			require.NoError(t, err)
			assert.Empty(t, result.Succeeded)
			require.Len(t, result.Failed, 1)
			assert.Equal(t, billing.ErrPeriodAlreadyBilled.Code, result.Failed[0].Code)
			assert.Contains(t, result.Failed[0].Error, last.ID.String())
			f.readings.AssertNotCalled(t, "FindByMeterInRange", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
			f.bills.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
		}
	})

	t.Run("open start begins a never-billed meter at its first reading", func(t *testing.T) {
		f := newFixture(t)
		s := newMeterSetup(t, true)
		single(t, f, s)
		f.bills.On("FindLatestActiveByMeter", mock.Anything, s.meter.ID).Return(nil, shared.ErrNotFound)
		f.readings.On("FindFirstByMeter", mock.Anything, s.meter.ID).Return(&metering.MeterReading{
			MeterID:     s.meter.ID,
			ReadingDate: day(2025, 5, 3).Add(8 * time.Hour),
		}, nil)
		f.expectPricing(t, s, day(2025, 5, 3), periodEnd, "1000", "1250")

		result, err := f.service.CreateBulk(context.Background(), BulkFilter{UtilityType: metering.UtilityTypeElectricity, PeriodEnd: periodEnd}, true)
		require.NoError(t, err)
		require.Len(t, result.Succeeded, 1)
		calc := result.Succeeded[0].Calculation
		require.NotNil(t, calc)
		assert.True(t, calc.PeriodStart.Equal(day(2025, 5, 3)), "start = %s", calc.PeriodStart)
	})

	t.Run("open start without readings fails the meter", func(t *testing.T) {
		f := newFixture(t)
		s := newMeterSetup(t, true)
		single(t, f, s)
		f.bills.On("FindLatestActiveByMeter", mock.Anything, s.meter.ID).Return(nil, shared.ErrNotFound)
		f.readings.On("FindFirstByMeter", mock.Anything, s.meter.ID).Return(nil, shared.ErrNotFound)

		result, err := f.service.CreateBulk(context.Background(), BulkFilter{UtilityType: metering.UtilityTypeElectricity, PeriodEnd: periodEnd}, false)
		require.NoError(t, err)
		require.Len(t, result.Failed, 1)
		assert.Equal(t, billing.ErrInsufficientReadings.Code, result.Failed[0].Code)
	})

	t.Run("meter held by another worker is skipped", func(t *testing.T) {
		f := newFixture(t)
		s := newMeterSetup(t, true)
		single(t, f, s)
		locker := new(MockMeterLocker)
		f.service.SetMeterLocker(locker)
		locker.On("Lock", mock.Anything, s.meter.ID, DefaultConfig().MeterLockTTL).Return(ErrMeterLocked)

		result, err := f.service.CreateBulk(context.Background(), filter, false)
		require.NoError(t, err)
		require.Len(t, result.Failed, 1)
		assert.Equal(t, ErrMeterLocked.Code, result.Failed[0].Code)
		f.bills.AssertNotCalled(t, "FindLatestActiveByMeter", mock.Anything, mock.Anything)
	})

	t.Run("stored run releases the meter lease", func(t *testing.T) {
		f := newFixture(t)
		s := newMeterSetup(t, true)
		single(t, f, s)
		locker := new(MockMeterLocker)
		f.service.SetMeterLocker(locker)
		locker.On("Lock", mock.Anything, s.meter.ID, DefaultConfig().MeterLockTTL).Return(nil)
		f.bills.On("FindLatestActiveByMeter", mock.Anything, s.meter.ID).Return(nil, shared.ErrNotFound)
		f.expectPricing(t, s, periodStart, periodEnd, "1000", "1250")
		f.bills.On("Create", mock.Anything, mock.Anything).Return(nil)

		result, err := f.service.CreateBulk(context.Background(), filter, false)
		require.NoError(t, err)
		require.Len(t, result.Succeeded, 1)
		assert.Equal(t, 1, locker.Released())
	})

	t.Run("dry run rejects a negative total like a stored run", func(t *testing.T) {
		f := newFixture(t)
		s := newMeterSetup(t, true)
		single(t, f, s)
		f.bills.On("FindLatestActiveByMeter", mock.Anything, s.meter.ID).Return(nil, shared.ErrNotFound)
		f.readings.On("FindByMeterInRange", mock.Anything, s.meter.ID, periodStart, periodEnd).Return([]metering.MeterReading{
			{BaseEntity: shared.NewBaseEntity(), MeterID: s.meter.ID, ReadingDate: periodStart, ImportReading: dec("1000"), ExportReading: decimal.Zero, Source: metering.ReadingSourceSmartMeter},
			{BaseEntity: shared.NewBaseEntity(), MeterID: s.meter.ID, ReadingDate: periodEnd, ImportReading: dec("1250"), ExportReading: decimal.Zero, Source: metering.ReadingSourceSmartMeter},
		}, nil)
		f.slabs.On("FindByCategory", mock.Anything, s.categoryID).Return(threeTierSlabs(t, s.categoryID), nil)
		rebate := vat(t)
		rebate.Name = "Rebate"
		rebate.RatePercent = dec("-150")
		f.taxes.On("FindActive", mock.Anything).Return([]tariff.TaxConfig{*rebate}, nil)

		result, err := f.service.CreateBulk(context.Background(), filter, true)
		require.NoError(t, err)
		assert.Empty(t, result.Succeeded)
		require.Len(t, result.Failed, 1)
		assert.Equal(t, billing.ErrInvalidCalculation.Code, result.Failed[0].Code)
		assert.Equal(t, 1, f.logs.FilterMessage("bill calculation rejected").Len())
	})

	t.Run("cancelled throttle fails the remaining meters", func(t *testing.T) {
		f := newFixture(t)
		setups := setupFive(t, f)
		f.service.SetBulkRateLimit(0.001)
		f.bills.On("Create", mock.Anything, mock.Anything).Return(nil)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		result, err := f.service.CreateBulk(ctx, filter, false)
		require.NoError(t, err)
		assert.Empty(t, result.Succeeded)
		require.Len(t, result.Failed, 5)
		assert.Equal(t, setups[4].meter.ID, result.Failed[4].MeterID)
	})
}
