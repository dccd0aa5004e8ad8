package metering

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/utilitybill/backend/internal/domain/metering"
	"github.com/utilitybill/backend/internal/domain/shared"
)

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

// recordingPublisher keeps published events in order
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

func (p *recordingPublisher) Events() []shared.DomainEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]shared.DomainEvent(nil), p.events...)
}
