package persistence

import (
	"context"

	"github.com/google/uuid"
	"github.com/utilitybill/backend/internal/domain/tariff"
	"github.com/utilitybill/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormTariffCategoryRepository implements tariff.CategoryRepository using GORM
type GormTariffCategoryRepository struct {
	db *gorm.DB
}

// NewGormTariffCategoryRepository creates a new GormTariffCategoryRepository
func NewGormTariffCategoryRepository(db *gorm.DB) *GormTariffCategoryRepository {
	return &GormTariffCategoryRepository{db: db}
}

// FindByID finds a tariff category by its ID
func (r *GormTariffCategoryRepository) FindByID(ctx context.Context, id uuid.UUID) (*tariff.Category, error) {
	var model models.TariffCategoryModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		return nil, translateError(err)
	}
	return model.ToDomain(), nil
}

// Save creates or updates a tariff category
func (r *GormTariffCategoryRepository) Save(ctx context.Context, c *tariff.Category) error {
	return translateError(r.db.WithContext(ctx).Save(models.TariffCategoryModelFromDomain(c)).Error)
}

// GormSlabRepository implements tariff.SlabRepository using GORM
type GormSlabRepository struct {
	db *gorm.DB
}

// NewGormSlabRepository creates a new GormSlabRepository
func NewGormSlabRepository(db *gorm.DB) *GormSlabRepository {
	return &GormSlabRepository{db: db}
}

// FindByCategory returns every slab of a category, lowest band first.
// Validity filtering happens in the tariff walk, which needs the full set to
// tell "no slabs configured" apart from "none valid on the date".
func (r *GormSlabRepository) FindByCategory(ctx context.Context, categoryID uuid.UUID) ([]tariff.Slab, error) {
	var rows []models.TariffSlabModel
	err := r.db.WithContext(ctx).
		Where("tariff_category_id = ?", categoryID).
		Order("from_unit ASC, valid_from ASC").
		Find(&rows).Error
	if err != nil {
		return nil, translateError(err)
	}

	slabs := make([]tariff.Slab, len(rows))
	for i := range rows {
		slabs[i] = *rows[i].ToDomain()
	}
	return slabs, nil
}

// Save creates or updates a slab
func (r *GormSlabRepository) Save(ctx context.Context, slab *tariff.Slab) error {
	return translateError(r.db.WithContext(ctx).Save(models.TariffSlabModelFromDomain(slab)).Error)
}

// GormTaxRepository implements tariff.TaxRepository using GORM
type GormTaxRepository struct {
	db *gorm.DB
}

// NewGormTaxRepository creates a new GormTaxRepository
func NewGormTaxRepository(db *gorm.DB) *GormTaxRepository {
	return &GormTaxRepository{db: db}
}

// FindActive returns every ACTIVE tax, ordered by name for stable bill lines
func (r *GormTaxRepository) FindActive(ctx context.Context) ([]tariff.TaxConfig, error) {
	var rows []models.TaxConfigModel
	err := r.db.WithContext(ctx).
		Where("status = ?", tariff.TaxStatusActive).
		Order("name ASC").
		Find(&rows).Error
	if err != nil {
		return nil, translateError(err)
	}

	taxes := make([]tariff.TaxConfig, len(rows))
	for i := range rows {
		taxes[i] = *rows[i].ToDomain()
	}
	return taxes, nil
}

// FindByID finds a tax by its ID
func (r *GormTaxRepository) FindByID(ctx context.Context, id uuid.UUID) (*tariff.TaxConfig, error) {
	var model models.TaxConfigModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		return nil, translateError(err)
	}
	return model.ToDomain(), nil
}

// Save creates or updates a tax
func (r *GormTaxRepository) Save(ctx context.Context, tax *tariff.TaxConfig) error {
	return translateError(r.db.WithContext(ctx).Save(models.TaxConfigModelFromDomain(tax)).Error)
}

var (
	_ tariff.CategoryRepository = (*GormTariffCategoryRepository)(nil)
	_ tariff.SlabRepository     = (*GormSlabRepository)(nil)
	_ tariff.TaxRepository      = (*GormTaxRepository)(nil)
)
