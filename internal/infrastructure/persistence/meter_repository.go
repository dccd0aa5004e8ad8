package persistence

import (
	"context"

	"github.com/google/uuid"
	"github.com/utilitybill/backend/internal/domain/metering"
	"github.com/utilitybill/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormMeterRepository implements metering.MeterRepository using GORM
type GormMeterRepository struct {
	db *gorm.DB
}

// NewGormMeterRepository creates a new GormMeterRepository
func NewGormMeterRepository(db *gorm.DB) *GormMeterRepository {
	return &GormMeterRepository{db: db}
}

// FindByID finds a meter by its ID
func (r *GormMeterRepository) FindByID(ctx context.Context, id uuid.UUID) (*metering.Meter, error) {
	var model models.MeterModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		return nil, translateError(err)
	}
	return model.ToDomain(), nil
}

// FindByNumber finds a meter by its serial number
func (r *GormMeterRepository) FindByNumber(ctx context.Context, meterNumber string) (*metering.Meter, error) {
	var model models.MeterModel
	if err := r.db.WithContext(ctx).First(&model, "meter_number = ?", meterNumber).Error; err != nil {
		return nil, translateError(err)
	}
	return model.ToDomain(), nil
}

// Save creates or updates a meter
func (r *GormMeterRepository) Save(ctx context.Context, meter *metering.Meter) error {
	return translateError(r.db.WithContext(ctx).Save(models.MeterModelFromDomain(meter)).Error)
}

var _ metering.MeterRepository = (*GormMeterRepository)(nil)
