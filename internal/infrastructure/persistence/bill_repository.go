package persistence

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/utilitybill/backend/internal/domain/billing"
	"github.com/utilitybill/backend/internal/domain/shared"
	"github.com/utilitybill/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormBillRepository implements billing.BillRepository using GORM.
// Lines are always loaded and replaced together with their bill; callers that
// need the bill and its lines to change atomically must pass a transaction.
type GormBillRepository struct {
	db *gorm.DB
}

// NewGormBillRepository creates a new GormBillRepository
func NewGormBillRepository(db *gorm.DB) *GormBillRepository {
	return &GormBillRepository{db: db}
}

func (r *GormBillRepository) withLines(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Preload("Details", func(db *gorm.DB) *gorm.DB { return db.Order("from_unit ASC") }).
		Preload("Taxes", func(db *gorm.DB) *gorm.DB { return db.Order("tax_name ASC") })
}

// FindByID loads a bill with its lines
func (r *GormBillRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.Bill, error) {
	var model models.BillModel
	if err := r.withLines(ctx).First(&model, "id = ?", id).Error; err != nil {
		return nil, translateError(err)
	}
	return model.ToDomain(), nil
}

// FindByIDForUpdate takes the bill row with FOR UPDATE before loading it with
// its lines. Payments reference bills, so a concurrent payment insert waits on
// the lock until the caller's transaction ends.
func (r *GormBillRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*billing.Bill, error) {
	var locked models.BillModel
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id").
		Take(&locked, "id = ?", id).Error
	if err != nil {
		return nil, translateError(err)
	}
	return r.FindByID(ctx, id)
}

// FindLatestActiveByMeter returns the non-voided bill with the latest period end.
// Rows voided before the status column existed are excluded by their sentinel due date.
func (r *GormBillRepository) FindLatestActiveByMeter(ctx context.Context, meterID uuid.UUID) (*billing.Bill, error) {
	var model models.BillModel
	err := r.withLines(ctx).
		Where("meter_id = ? AND status = ? AND due_date <> ?", meterID, billing.BillStatusActive, billing.VoidedDueDate).
		Order("billing_period_end DESC, created_at DESC").
		Take(&model).Error
	if err != nil {
		return nil, translateError(err)
	}
	return model.ToDomain(), nil
}

// FindByCustomer pages through a customer's bills, newest first
func (r *GormBillRepository) FindByCustomer(ctx context.Context, customerID uuid.UUID, page, pageSize int) ([]billing.Bill, int64, error) {
	page, pageSize = shared.NormalizePage(page, pageSize)

	var total int64
	if err := r.db.WithContext(ctx).
		Model(&models.BillModel{}).
		Where("customer_id = ?", customerID).
		Count(&total).Error; err != nil {
		return nil, 0, translateError(err)
	}

	var rows []models.BillModel
	err := r.withLines(ctx).
		Where("customer_id = ?", customerID).
		Order("bill_date DESC, billing_period_start DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&rows).Error
	if err != nil {
		return nil, 0, translateError(err)
	}

	bills := make([]billing.Bill, len(rows))
	for i := range rows {
		bills[i] = *rows[i].ToDomain()
	}
	return bills, total, nil
}

// Create inserts a bill together with its lines
func (r *GormBillRepository) Create(ctx context.Context, bill *billing.Bill) error {
	model := models.BillModelFromDomain(bill)
	return translateError(r.db.WithContext(ctx).Create(model).Error)
}

// Update writes the charge columns guarded by the version the caller loaded,
// then replaces the lines.
func (r *GormBillRepository) Update(ctx context.Context, bill *billing.Bill) error {
	model := models.BillModelFromDomain(bill)
	db := r.db.WithContext(ctx)

	result := db.Model(&models.BillModel{}).
		Where("id = ? AND version = ?", bill.ID, bill.Version-1).
		Updates(map[string]any{
			"version":              model.Version,
			"updated_at":           model.UpdatedAt,
			"due_date":             model.DueDate,
			"total_import_unit":    model.TotalImportUnit,
			"total_export_unit":    model.TotalExportUnit,
			"energy_charge_amount": model.EnergyChargeAmount,
			"fixed_charge_amount":  model.FixedChargeAmount,
			"subsidy_amount":       model.SubsidyAmount,
			"solar_export_credit":  model.SolarExportCredit,
			"status":               model.Status,
			"void_reason":          model.VoidReason,
			"voided_by":            model.VoidedBy,
			"voided_at":            model.VoidedAt,
		})
	if result.Error != nil {
		return translateError(result.Error)
	}
	if result.RowsAffected == 0 {
		return shared.NewDomainError(shared.ErrConcurrencyConflict.Code,
			fmt.Sprintf("Bill %s was modified by another process", bill.ID))
	}

	if err := db.Where("bill_id = ?", bill.ID).Delete(&models.BillDetailModel{}).Error; err != nil {
		return translateError(err)
	}
	if err := db.Where("bill_id = ?", bill.ID).Delete(&models.BillTaxModel{}).Error; err != nil {
		return translateError(err)
	}
	if len(model.Details) > 0 {
		if err := db.Omit(clause.Associations).Create(&model.Details).Error; err != nil {
			return translateError(err)
		}
	}
	if len(model.Taxes) > 0 {
		if err := db.Omit(clause.Associations).Create(&model.Taxes).Error; err != nil {
			return translateError(err)
		}
	}
	return nil
}

var _ billing.BillRepository = (*GormBillRepository)(nil)
