package persistence

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/utilitybill/backend/internal/domain/billing"
	"github.com/utilitybill/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormPaymentRepository implements billing.PaymentRepository using GORM
type GormPaymentRepository struct {
	db *gorm.DB
}

// NewGormPaymentRepository creates a new GormPaymentRepository
func NewGormPaymentRepository(db *gorm.DB) *GormPaymentRepository {
	return &GormPaymentRepository{db: db}
}

// SumByBill returns the total paid against a bill
func (r *GormPaymentRepository) SumByBill(ctx context.Context, billID uuid.UUID) (decimal.Decimal, error) {
	var total decimal.NullDecimal
	err := r.db.WithContext(ctx).
		Model(&models.PaymentModel{}).
		Select("SUM(amount)").
		Where("bill_id = ?", billID).
		Row().
		Scan(&total)
	if err != nil {
		return decimal.Zero, translateError(err)
	}
	if !total.Valid {
		return decimal.Zero, nil
	}
	return total.Decimal, nil
}

// SumByBills returns payment totals keyed by bill
func (r *GormPaymentRepository) SumByBills(ctx context.Context, billIDs []uuid.UUID) (map[uuid.UUID]decimal.Decimal, error) {
	totals := make(map[uuid.UUID]decimal.Decimal, len(billIDs))
	if len(billIDs) == 0 {
		return totals, nil
	}

	var rows []struct {
		BillID uuid.UUID
		Total  decimal.Decimal
	}
	err := r.db.WithContext(ctx).
		Model(&models.PaymentModel{}).
		Select("bill_id, SUM(amount) AS total").
		Where("bill_id IN ?", billIDs).
		Group("bill_id").
		Scan(&rows).Error
	if err != nil {
		return nil, translateError(err)
	}

	for _, row := range rows {
		totals[row.BillID] = row.Total
	}
	return totals, nil
}

// FindByBill lists payments against a bill, oldest first
func (r *GormPaymentRepository) FindByBill(ctx context.Context, billID uuid.UUID) ([]billing.Payment, error) {
	var rows []models.PaymentModel
	if err := r.db.WithContext(ctx).Where("bill_id = ?", billID).Order("paid_at ASC").Find(&rows).Error; err != nil {
		return nil, translateError(err)
	}

	payments := make([]billing.Payment, len(rows))
	for i := range rows {
		payments[i] = *rows[i].ToDomain()
	}
	return payments, nil
}

// Create records a payment
func (r *GormPaymentRepository) Create(ctx context.Context, p *billing.Payment) error {
	return translateError(r.db.WithContext(ctx).Create(models.PaymentModelFromDomain(p)).Error)
}

var _ billing.PaymentRepository = (*GormPaymentRepository)(nil)
