package billing

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/utilitybill/backend/internal/domain/billing"
	"github.com/utilitybill/backend/internal/domain/metering"
	"github.com/utilitybill/backend/internal/domain/shared"
	"github.com/utilitybill/backend/internal/domain/tariff"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

var (
	tariffStart = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	periodStart = time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	periodEnd   = time.Date(2025, 5, 31, 0, 0, 0, 0, time.UTC)
	today       = time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)
)

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

type fixture struct {
	bills     *MockBillRepository
	payments  *MockPaymentRepository
	meters    *MockMeterRepository
	conns     *MockConnectionRepository
	readings  *MockReadingRepository
	slabs     *MockSlabRepository
	taxes     *MockTaxRepository
	publisher *recordingPublisher
	metrics   *recordingMetrics
	logs      *observer.ObservedLogs
	service   *BillingService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	logger := zap.New(core)

	f := &fixture{
		bills:     new(MockBillRepository),
		payments:  new(MockPaymentRepository),
		meters:    new(MockMeterRepository),
		conns:     new(MockConnectionRepository),
		readings:  new(MockReadingRepository),
		slabs:     new(MockSlabRepository),
		taxes:     new(MockTaxRepository),
		publisher: &recordingPublisher{},
		metrics:   newRecordingMetrics(),
		logs:      logs,
	}

	calculator := billing.NewCalculator(nil, nil, logger)
	engine := NewTariffEngine(f.conns, f.readings, f.slabs, f.taxes, calculator, logger)
	scope := NewNoOpTransactionScope(f.bills, f.payments, f.publisher)
	f.service = NewBillingService(engine, scope, Repositories{
		Bills:       f.bills,
		Payments:    f.payments,
		Meters:      f.meters,
		Connections: f.conns,
		Readings:    f.readings,
	}, DefaultConfig(), logger)
	f.service.SetClock(func() time.Time { return today })
	f.service.SetMetrics(f.metrics)
	return f
}

func (f *fixture) assertExpectations(t *testing.T) {
	t.Helper()
	f.bills.AssertExpectations(t)
	f.payments.AssertExpectations(t)
	f.meters.AssertExpectations(t)
	f.conns.AssertExpectations(t)
	f.readings.AssertExpectations(t)
	f.slabs.AssertExpectations(t)
	f.taxes.AssertExpectations(t)
}

// meterSetup is a billable meter: an active connection with a tariff category
type meterSetup struct {
	meter      *metering.Meter
	conn       *metering.ServiceConnection
	categoryID uuid.UUID
}

func newMeterSetup(t *testing.T, withCategory bool) meterSetup {
	t.Helper()
	meter, err := metering.NewMeter("MTR-"+uuid.NewString()[:8], metering.UtilityTypeElectricity, true, tariffStart)
	require.NoError(t, err)
	conn, err := metering.NewServiceConnection("SC-"+meter.MeterNumber, uuid.New(), meter.ID, metering.UtilityTypeElectricity)
	require.NoError(t, err)
	require.NoError(t, conn.Activate(tariffStart))

	setup := meterSetup{meter: meter, conn: conn}
	if withCategory {
		setup.categoryID = uuid.New()
		conn.AssignTariffCategory(setup.categoryID)
	}
	return setup
}

// expectLookup wires the meter and its active connection
func (f *fixture) expectLookup(s meterSetup) {
	f.meters.On("FindByID", mock.Anything, s.meter.ID).Return(s.meter, nil)
	f.conns.On("FindActiveByMeter", mock.Anything, s.meter.ID).Return(s.conn, nil)
}

// expectPricing wires readings, the three-tier slabs and a 15% tax for a period
func (f *fixture) expectPricing(t *testing.T, s meterSetup, from, to time.Time, imports ...string) {
	t.Helper()
	readings := make([]metering.MeterReading, 0, len(imports))
	for i, imp := range imports {
		date := from.AddDate(0, 0, i)
		if i == len(imports)-1 {
			date = to
		}
		readings = append(readings, metering.MeterReading{
			BaseEntity:    shared.NewBaseEntity(),
			MeterID:       s.meter.ID,
			ReadingDate:   date,
			ImportReading: dec(imp),
			ExportReading: decimal.Zero,
			Source:        metering.ReadingSourceSmartMeter,
		})
	}
	f.readings.On("FindByMeterInRange", mock.Anything, s.meter.ID, from, to).Return(readings, nil)
	f.slabs.On("FindByCategory", mock.Anything, s.categoryID).Return(threeTierSlabs(t, s.categoryID), nil)
	f.taxes.On("FindActive", mock.Anything).Return([]tariff.TaxConfig{*vat(t)}, nil)
}

func threeTierSlabs(t *testing.T, category uuid.UUID) []tariff.Slab {
	t.Helper()
	hundred, twoHundred := dec("100"), dec("200")
	specs := []struct {
		from  string
		to    *decimal.Decimal
		rate  string
		fixed string
	}{
		{"0", &hundred, "10", "500"},
		{"100", &twoHundred, "15", "0"},
		{"200", nil, "20", "0"},
	}
	slabs := make([]tariff.Slab, 0, len(specs))
	for _, s := range specs {
		slab, err := tariff.NewSlab(category, dec(s.from), s.to, dec(s.rate), dec(s.fixed), tariffStart, nil)
		require.NoError(t, err)
		slabs = append(slabs, *slab)
	}
	return slabs
}

var vatID = uuid.MustParse("7f1b0a52-1d7e-4c51-9d5a-6f0c2e1a9b10")

func vat(t *testing.T) *tariff.TaxConfig {
	t.Helper()
	tax, err := tariff.NewTaxConfig("VAT", dec("15"), tariffStart, nil)
	require.NoError(t, err)
	tax.ID = vatID
	return tax
}

// storedBill builds an active bill as the repository would return it
func storedBill(t *testing.T, s meterSetup, start, end time.Time) *billing.Bill {
	t.Helper()
	calc := &billing.BillCalculation{
		MeterID:          s.meter.ID,
		CustomerID:       s.conn.CustomerID,
		TariffCategoryID: s.categoryID,
		PeriodStart:      start,
		PeriodEnd:        end,
		BillDate:         end.AddDate(0, 0, 1),
		Consumption:      dec("100"),
		EnergyCharge:     dec("1000"),
		FixedCharge:      dec("500"),
		BeforeTax:        dec("1500"),
		Taxes: []tariff.TaxLine{{
			TaxConfigID: vatID,
			Name:        "VAT",
			RatePercent: dec("15"),
			TaxableBase: dec("1500"),
			Amount:      dec("225"),
		}},
		TotalTax:    dec("225"),
		TotalAmount: dec("1725"),
	}
	bill, err := billing.NewBill(s.conn.ID, calc, 15)
	require.NoError(t, err)
	bill.ClearDomainEvents()
	return bill
}
