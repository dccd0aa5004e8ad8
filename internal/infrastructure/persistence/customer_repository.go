package persistence

import (
	"context"

	"github.com/google/uuid"
	"github.com/utilitybill/backend/internal/domain/customer"
	"github.com/utilitybill/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormCustomerRepository implements customer.Repository using GORM
type GormCustomerRepository struct {
	db *gorm.DB
}

// NewGormCustomerRepository creates a new GormCustomerRepository
func NewGormCustomerRepository(db *gorm.DB) *GormCustomerRepository {
	return &GormCustomerRepository{db: db}
}

// FindByID finds a customer by its ID
func (r *GormCustomerRepository) FindByID(ctx context.Context, id uuid.UUID) (*customer.Customer, error) {
	var model models.CustomerModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		return nil, translateError(err)
	}
	return model.ToDomain(), nil
}

// FindByAccountNumber finds a customer by account number
func (r *GormCustomerRepository) FindByAccountNumber(ctx context.Context, accountNumber string) (*customer.Customer, error) {
	var model models.CustomerModel
	if err := r.db.WithContext(ctx).First(&model, "account_number = ?", accountNumber).Error; err != nil {
		return nil, translateError(err)
	}
	return model.ToDomain(), nil
}

// Save creates or updates a customer
func (r *GormCustomerRepository) Save(ctx context.Context, c *customer.Customer) error {
	return translateError(r.db.WithContext(ctx).Save(models.CustomerModelFromDomain(c)).Error)
}

var _ customer.Repository = (*GormCustomerRepository)(nil)
