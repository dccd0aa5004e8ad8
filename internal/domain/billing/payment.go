package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/utilitybill/backend/internal/domain/shared"
)

// PaymentMethod is how a payment was made
type PaymentMethod string

const (
	PaymentMethodCash   PaymentMethod = "CASH"
	PaymentMethodCard   PaymentMethod = "CARD"
	PaymentMethodBank   PaymentMethod = "BANK_TRANSFER"
	PaymentMethodOnline PaymentMethod = "ONLINE"
)

// Payment is money received against a bill. Payments are recorded by the
// cashiering side; billing only reads them.
type Payment struct {
	shared.BaseEntity
	BillID    uuid.UUID       `json:"bill_id"`
	Amount    decimal.Decimal `json:"amount"`
	PaidAt    time.Time       `json:"paid_at"`
	Method    PaymentMethod   `json:"method"`
	Reference string          `json:"reference,omitempty"`
}

// NewPayment creates a payment against a bill
func NewPayment(billID uuid.UUID, amount decimal.Decimal, method PaymentMethod, paidAt time.Time) (*Payment, error) {
	if !amount.IsPositive() {
		return nil, shared.NewDomainError("INVALID_PAYMENT", "Payment amount must be positive")
	}
	return &Payment{
		BaseEntity: shared.NewBaseEntity(),
		BillID:     billID,
		Amount:     amount,
		PaidAt:     paidAt,
		Method:     method,
	}, nil
}

// PaymentRepository gives read access to payments
type PaymentRepository interface {
	// SumByBill returns the total paid against a bill, zero when none
	SumByBill(ctx context.Context, billID uuid.UUID) (decimal.Decimal, error)
	// SumByBills returns totals per bill; bills without payments are absent
	SumByBills(ctx context.Context, billIDs []uuid.UUID) (map[uuid.UUID]decimal.Decimal, error)
	FindByBill(ctx context.Context, billID uuid.UUID) ([]Payment, error)
	Create(ctx context.Context, p *Payment) error
}
