package billing

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/utilitybill/backend/internal/domain/billing"
	"github.com/utilitybill/backend/internal/domain/metering"
	"github.com/utilitybill/backend/internal/domain/shared"
	"github.com/utilitybill/backend/internal/domain/tariff"
)

// MockBillRepository is a mock implementation of billing.BillRepository
type MockBillRepository struct {
	mock.Mock
}

func (m *MockBillRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.Bill, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Bill), args.Error(1)
}

func (m *MockBillRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*billing.Bill, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Bill), args.Error(1)
}

func (m *MockBillRepository) FindLatestActiveByMeter(ctx context.Context, meterID uuid.UUID) (*billing.Bill, error) {
	args := m.Called(ctx, meterID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Bill), args.Error(1)
}

func (m *MockBillRepository) FindByCustomer(ctx context.Context, customerID uuid.UUID, page, pageSize int) ([]billing.Bill, int64, error) {
	args := m.Called(ctx, customerID, page, pageSize)
	return args.Get(0).([]billing.Bill), args.Get(1).(int64), args.Error(2)
}

func (m *MockBillRepository) Create(ctx context.Context, bill *billing.Bill) error {
	args := m.Called(ctx, bill)
	return args.Error(0)
}

func (m *MockBillRepository) Update(ctx context.Context, bill *billing.Bill) error {
	args := m.Called(ctx, bill)
	return args.Error(0)
}

// MockPaymentRepository is a mock implementation of billing.PaymentRepository
type MockPaymentRepository struct {
	mock.Mock
}

func (m *MockPaymentRepository) SumByBill(ctx context.Context, billID uuid.UUID) (decimal.Decimal, error) {
	args := m.Called(ctx, billID)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *MockPaymentRepository) SumByBills(ctx context.Context, billIDs []uuid.UUID) (map[uuid.UUID]decimal.Decimal, error) {
	args := m.Called(ctx, billIDs)
	return args.Get(0).(map[uuid.UUID]decimal.Decimal), args.Error(1)
}

func (m *MockPaymentRepository) FindByBill(ctx context.Context, billID uuid.UUID) ([]billing.Payment, error) {
	args := m.Called(ctx, billID)
	return args.Get(0).([]billing.Payment), args.Error(1)
}

func (m *MockPaymentRepository) Create(ctx context.Context, p *billing.Payment) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

// MockMeterRepository is a mock implementation of metering.MeterRepository
type MockMeterRepository struct {
	mock.Mock
}

func (m *MockMeterRepository) FindByID(ctx context.Context, id uuid.UUID) (*metering.Meter, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*metering.Meter), args.Error(1)
}

func (m *MockMeterRepository) FindByNumber(ctx context.Context, meterNumber string) (*metering.Meter, error) {
	args := m.Called(ctx, meterNumber)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*metering.Meter), args.Error(1)
}

func (m *MockMeterRepository) Save(ctx context.Context, meter *metering.Meter) error {
	args := m.Called(ctx, meter)
	return args.Error(0)
}

// MockConnectionRepository is a mock implementation of metering.ConnectionRepository
type MockConnectionRepository struct {
	mock.Mock
}

func (m *MockConnectionRepository) FindByID(ctx context.Context, id uuid.UUID) (*metering.ServiceConnection, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*metering.ServiceConnection), args.Error(1)
}

func (m *MockConnectionRepository) FindActiveByMeter(ctx context.Context, meterID uuid.UUID) (*metering.ServiceConnection, error) {
	args := m.Called(ctx, meterID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*metering.ServiceConnection), args.Error(1)
}

func (m *MockConnectionRepository) FindActive(ctx context.Context, filter metering.ConnectionFilter) ([]metering.ServiceConnection, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]metering.ServiceConnection), args.Error(1)
}

func (m *MockConnectionRepository) Save(ctx context.Context, conn *metering.ServiceConnection) error {
	args := m.Called(ctx, conn)
	return args.Error(0)
}

// MockReadingRepository is a mock implementation of metering.ReadingRepository
type MockReadingRepository struct {
	mock.Mock
}

func (m *MockReadingRepository) Create(ctx context.Context, reading *metering.MeterReading) error {
	args := m.Called(ctx, reading)
	return args.Error(0)
}

func (m *MockReadingRepository) FindLatestByMeter(ctx context.Context, meterID uuid.UUID) (*metering.MeterReading, error) {
	args := m.Called(ctx, meterID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*metering.MeterReading), args.Error(1)
}

func (m *MockReadingRepository) FindFirstByMeter(ctx context.Context, meterID uuid.UUID) (*metering.MeterReading, error) {
	args := m.Called(ctx, meterID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*metering.MeterReading), args.Error(1)
}

func (m *MockReadingRepository) FindByMeterInRange(ctx context.Context, meterID uuid.UUID, from, to time.Time) ([]metering.MeterReading, error) {
	args := m.Called(ctx, meterID, from, to)
	return args.Get(0).([]metering.MeterReading), args.Error(1)
}

func (m *MockReadingRepository) CountByMeterInRange(ctx context.Context, meterID uuid.UUID, from, to time.Time) (int64, error) {
	args := m.Called(ctx, meterID, from, to)
	return args.Get(0).(int64), args.Error(1)
}

// MockSlabRepository is a mock implementation of tariff.SlabRepository
type MockSlabRepository struct {
	mock.Mock
}

func (m *MockSlabRepository) FindByCategory(ctx context.Context, categoryID uuid.UUID) ([]tariff.Slab, error) {
	args := m.Called(ctx, categoryID)
	return args.Get(0).([]tariff.Slab), args.Error(1)
}

func (m *MockSlabRepository) Save(ctx context.Context, slab *tariff.Slab) error {
	args := m.Called(ctx, slab)
	return args.Error(0)
}

// MockTaxRepository is a mock implementation of tariff.TaxRepository
type MockTaxRepository struct {
	mock.Mock
}

func (m *MockTaxRepository) FindActive(ctx context.Context) ([]tariff.TaxConfig, error) {
	args := m.Called(ctx)
	return args.Get(0).([]tariff.TaxConfig), args.Error(1)
}

func (m *MockTaxRepository) FindByID(ctx context.Context, id uuid.UUID) (*tariff.TaxConfig, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*tariff.TaxConfig), args.Error(1)
}

func (m *MockTaxRepository) Save(ctx context.Context, tax *tariff.TaxConfig) error {
	args := m.Called(ctx, tax)
	return args.Error(0)
}

// MockMeterLocker is a mock implementation of MeterLocker
type MockMeterLocker struct {
	mock.Mock
	mu       sync.Mutex
	released int
}

func (m *MockMeterLocker) Lock(ctx context.Context, meterID uuid.UUID, ttl time.Duration) (func(context.Context) error, error) {
	args := m.Called(ctx, meterID, ttl)
	if err := args.Error(0); err != nil {
		return nil, err
	}
	return func(context.Context) error {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.released++
		return nil
	}, nil
}

func (m *MockMeterLocker) Released() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.released
}

// recordingPublisher collects events handed to the no-op transaction scope
type recordingPublisher struct {
	mu     sync.Mutex
	events []shared.DomainEvent
}

func (p *recordingPublisher) Publish(_ context.Context, events ...shared.DomainEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, events...)
	return nil
}

func (p *recordingPublisher) Types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]string, 0, len(p.events))
	for _, e := range p.events {
		types = append(types, e.EventType())
	}
	return types
}

// recordingMetrics counts metric observations
type recordingMetrics struct {
	mu       sync.Mutex
	created  map[string]int
	skipped  map[SkipReason]int
	voided   int
	recalc   int
	bulkOK   int
	bulkFail int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{created: map[string]int{}, skipped: map[SkipReason]int{}}
}

func (r *recordingMetrics) BillCreated(_ context.Context, trigger string, _ decimal.Decimal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.created[trigger]++
}

func (r *recordingMetrics) BillRecalculated(context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recalc++
}

func (r *recordingMetrics) BillVoided(context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.voided++
}

func (r *recordingMetrics) AutoBillSkipped(_ context.Context, reason SkipReason) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.skipped[reason]++
}

func (r *recordingMetrics) BulkCompleted(_ context.Context, succeeded, failed int, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bulkOK += succeeded
	r.bulkFail += failed
}
