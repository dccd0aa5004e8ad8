package integration

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	appbilling "github.com/utilitybill/backend/internal/application/billing"
	appmetering "github.com/utilitybill/backend/internal/application/metering"
	"github.com/utilitybill/backend/internal/domain/billing"
	"github.com/utilitybill/backend/internal/domain/customer"
	"github.com/utilitybill/backend/internal/domain/metering"
	"github.com/utilitybill/backend/internal/domain/tariff"
	"github.com/utilitybill/backend/internal/infrastructure/event"
	"github.com/utilitybill/backend/internal/infrastructure/persistence"
	"github.com/utilitybill/backend/tests/testutil"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

var (
	tariffFrom = testutil.Day(2020, 1, 1)
	installed  = testutil.Day(2024, 1, 15)
)

// stack is the billing application wired to the test database
type stack struct {
	log        *zap.Logger
	serializer *event.EventSerializer
	outbox     *event.OutboxPublisher
	outboxRepo *event.GormOutboxRepository

	customers   *persistence.GormCustomerRepository
	meters      *persistence.GormMeterRepository
	connections *persistence.GormConnectionRepository
	readings    *persistence.GormReadingRepository
	categories  *persistence.GormTariffCategoryRepository
	slabs       *persistence.GormSlabRepository
	taxes       *persistence.GormTaxRepository
	bills       *persistence.GormBillRepository
	payments    *persistence.GormPaymentRepository

	billing *appbilling.BillingService
	query   *appbilling.BillQueryService
	reading *appmetering.ReadingService
}

func newStack(t *testing.T, tdb *TestDB) *stack {
	t.Helper()
	db := tdb.DB
	log := zaptest.NewLogger(t)

	serializer := event.NewEventSerializer()
	event.RegisterAllEvents(serializer)

	s := &stack{
		log:         log,
		serializer:  serializer,
		outbox:      event.NewOutboxPublisher(serializer),
		outboxRepo:  event.NewGormOutboxRepository(db),
		customers:   persistence.NewGormCustomerRepository(db),
		meters:      persistence.NewGormMeterRepository(db),
		connections: persistence.NewGormConnectionRepository(db),
		readings:    persistence.NewGormReadingRepository(db),
		categories:  persistence.NewGormTariffCategoryRepository(db),
		slabs:       persistence.NewGormSlabRepository(db),
		taxes:       persistence.NewGormTaxRepository(db),
		bills:       persistence.NewGormBillRepository(db),
		payments:    persistence.NewGormPaymentRepository(db),
	}

	calculator := billing.NewCalculator(billing.NoSubsidy{}, billing.FixedRateSolarCredit{Rate: decimal.Zero}, log)
	engine := appbilling.NewTariffEngine(s.connections, s.readings, s.slabs, s.taxes, calculator, log)
	s.billing = appbilling.NewBillingService(
		engine,
		persistence.NewGormBillingScope(db, s.outbox),
		appbilling.Repositories{
			Bills:       s.bills,
			Payments:    s.payments,
			Meters:      s.meters,
			Connections: s.connections,
			Readings:    s.readings,
		},
		appbilling.DefaultConfig(),
		log,
	)
	s.query = appbilling.NewBillQueryService(s.bills, s.payments)
	s.reading = appmetering.NewReadingService(
		s.meters,
		s.readings,
		persistence.NewGormReadingScope(db, s.outbox),
		appmetering.DefaultAutoBillPolicy(),
		log,
	)
	return s
}

// seedTariff stores a domestic category with two slabs and a 15% VAT:
// 0-100 units at 10.00 with a 500.00 fixed charge, then 15.00 per unit.
func (s *stack) seedTariff(t *testing.T, ctx context.Context) (*tariff.Category, *tariff.TaxConfig) {
	t.Helper()

	category, err := tariff.NewCategory("D1", "Domestic", metering.UtilityTypeElectricity)
	require.NoError(t, err)
	require.NoError(t, s.categories.Save(ctx, category))

	upper := testutil.Dec("100")
	first, err := tariff.NewSlab(category.ID, decimal.Zero, &upper, testutil.Dec("10"), testutil.Dec("500"), tariffFrom, nil)
	require.NoError(t, err)
	require.NoError(t, s.slabs.Save(ctx, first))

	second, err := tariff.NewSlab(category.ID, upper, nil, testutil.Dec("15"), decimal.Zero, tariffFrom, nil)
	require.NoError(t, err)
	require.NoError(t, s.slabs.Save(ctx, second))

	vat, err := tariff.NewTaxConfig("VAT", testutil.Dec("15"), tariffFrom, nil)
	require.NoError(t, err)
	require.NoError(t, s.taxes.Save(ctx, vat))

	return category, vat
}

// seedConnection stores a customer, a meter and an active connection.
// A nil category leaves the connection without a tariff.
func (s *stack) seedConnection(t *testing.T, ctx context.Context, suffix string, categoryID *uuid.UUID) (*metering.Meter, *metering.ServiceConnection) {
	t.Helper()

	cust, err := customer.NewCustomer("ACC-"+suffix, "Customer "+suffix, customer.CustomerTypeResidential)
	require.NoError(t, err)
	require.NoError(t, s.customers.Save(ctx, cust))

	meter, err := metering.NewMeter("MTR-"+suffix, metering.UtilityTypeElectricity, false, installed)
	require.NoError(t, err)
	require.NoError(t, s.meters.Save(ctx, meter))

	conn, err := metering.NewServiceConnection("SC-"+suffix, cust.ID, meter.ID, metering.UtilityTypeElectricity)
	require.NoError(t, err)
	require.NoError(t, conn.Activate(installed))
	if categoryID != nil {
		conn.AssignTariffCategory(*categoryID)
	}
	require.NoError(t, s.connections.Save(ctx, conn))

	return meter, conn
}

// record stores a reading through the reading service
func (s *stack) record(t *testing.T, ctx context.Context, meterID uuid.UUID, day time.Time, importReading string, autoBill bool) {
	t.Helper()

	_, err := s.reading.RecordReading(ctx, appmetering.RecordReadingInput{
		MeterID:          meterID,
		ReadingDate:      day,
		ImportReading:    testutil.Dec(importReading),
		ExportReading:    decimal.Zero,
		Source:           "MANUAL",
		AutoGenerateBill: &autoBill,
	})
	require.NoError(t, err)
}
