package persistence

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/utilitybill/backend/internal/domain/metering"
	"github.com/utilitybill/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormReadingRepository implements metering.ReadingRepository using GORM.
// Readings on the same date are ordered by insertion time.
type GormReadingRepository struct {
	db *gorm.DB
}

// NewGormReadingRepository creates a new GormReadingRepository
func NewGormReadingRepository(db *gorm.DB) *GormReadingRepository {
	return &GormReadingRepository{db: db}
}

// Create appends a reading
func (r *GormReadingRepository) Create(ctx context.Context, reading *metering.MeterReading) error {
	return translateError(r.db.WithContext(ctx).Create(models.MeterReadingModelFromDomain(reading)).Error)
}

// FindLatestByMeter returns the most recent reading of a meter
func (r *GormReadingRepository) FindLatestByMeter(ctx context.Context, meterID uuid.UUID) (*metering.MeterReading, error) {
	return r.findOne(ctx, meterID, "reading_date DESC, created_at DESC")
}

// FindFirstByMeter returns the earliest reading of a meter
func (r *GormReadingRepository) FindFirstByMeter(ctx context.Context, meterID uuid.UUID) (*metering.MeterReading, error) {
	return r.findOne(ctx, meterID, "reading_date ASC, created_at ASC")
}

func (r *GormReadingRepository) findOne(ctx context.Context, meterID uuid.UUID, order string) (*metering.MeterReading, error) {
	var model models.MeterReadingModel
	err := r.db.WithContext(ctx).
		Where("meter_id = ?", meterID).
		Order(order).
		Take(&model).Error
	if err != nil {
		return nil, translateError(err)
	}
	return model.ToDomain(), nil
}

// FindByMeterInRange returns readings with from <= reading_date <= to, oldest first
func (r *GormReadingRepository) FindByMeterInRange(ctx context.Context, meterID uuid.UUID, from, to time.Time) ([]metering.MeterReading, error) {
	var rows []models.MeterReadingModel
	err := r.db.WithContext(ctx).
		Where("meter_id = ? AND reading_date >= ? AND reading_date <= ?", meterID, from, to).
		Order("reading_date ASC, created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, translateError(err)
	}

	readings := make([]metering.MeterReading, len(rows))
	for i := range rows {
		readings[i] = *rows[i].ToDomain()
	}
	return readings, nil
}

// CountByMeterInRange counts readings with from <= reading_date <= to
func (r *GormReadingRepository) CountByMeterInRange(ctx context.Context, meterID uuid.UUID, from, to time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.MeterReadingModel{}).
		Where("meter_id = ? AND reading_date >= ? AND reading_date <= ?", meterID, from, to).
		Count(&count).Error
	return count, translateError(err)
}

var _ metering.ReadingRepository = (*GormReadingRepository)(nil)
