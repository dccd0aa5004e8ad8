package persistence

import (
	"context"

	"github.com/google/uuid"
	"github.com/utilitybill/backend/internal/domain/metering"
	"github.com/utilitybill/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormConnectionRepository implements metering.ConnectionRepository using GORM
type GormConnectionRepository struct {
	db *gorm.DB
}

// NewGormConnectionRepository creates a new GormConnectionRepository
func NewGormConnectionRepository(db *gorm.DB) *GormConnectionRepository {
	return &GormConnectionRepository{db: db}
}

// FindByID finds a connection by its ID
func (r *GormConnectionRepository) FindByID(ctx context.Context, id uuid.UUID) (*metering.ServiceConnection, error) {
	var model models.ServiceConnectionModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		return nil, translateError(err)
	}
	return model.ToDomain(), nil
}

// FindActiveByMeter returns the active connection a meter is installed on
func (r *GormConnectionRepository) FindActiveByMeter(ctx context.Context, meterID uuid.UUID) (*metering.ServiceConnection, error) {
	var model models.ServiceConnectionModel
	err := r.db.WithContext(ctx).
		Where("meter_id = ? AND status = ?", meterID, metering.ConnectionStatusActive).
		Order("connected_at DESC").
		Take(&model).Error
	if err != nil {
		return nil, translateError(err)
	}
	return model.ToDomain(), nil
}

// FindActive returns active connections matching the filter, ordered by meter
func (r *GormConnectionRepository) FindActive(ctx context.Context, filter metering.ConnectionFilter) ([]metering.ServiceConnection, error) {
	query := r.db.WithContext(ctx).
		Model(&models.ServiceConnectionModel{}).
		Where("service_connections.status = ?", metering.ConnectionStatusActive)

	if filter.UtilityType != "" {
		query = query.Where("service_connections.utility_type = ?", filter.UtilityType)
	}
	if filter.CustomerType != "" {
		query = query.
			Joins("JOIN customers ON customers.id = service_connections.customer_id").
			Where("customers.customer_type = ?", filter.CustomerType)
	}
	if len(filter.MeterIDs) > 0 {
		query = query.Where("service_connections.meter_id IN ?", filter.MeterIDs)
	}

	var rows []models.ServiceConnectionModel
	if err := query.Select("service_connections.*").Order("service_connections.meter_id").Find(&rows).Error; err != nil {
		return nil, translateError(err)
	}

	conns := make([]metering.ServiceConnection, len(rows))
	for i := range rows {
		conns[i] = *rows[i].ToDomain()
	}
	return conns, nil
}

// Save creates or updates a connection
func (r *GormConnectionRepository) Save(ctx context.Context, conn *metering.ServiceConnection) error {
	return translateError(r.db.WithContext(ctx).Save(models.ServiceConnectionModelFromDomain(conn)).Error)
}

var _ metering.ConnectionRepository = (*GormConnectionRepository)(nil)
