package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/utilitybill/backend/internal/domain/billing"
	"github.com/utilitybill/backend/internal/domain/shared"
)

// BillQueryService serves stored bills to portal and reporting readers.
// Amounts come from the stored bill; the calculator is never invoked.
type BillQueryService struct {
	billRepo    billing.BillRepository
	paymentRepo billing.PaymentRepository
	now         func() time.Time
}

// NewBillQueryService creates a new BillQueryService
func NewBillQueryService(billRepo billing.BillRepository, paymentRepo billing.PaymentRepository) *BillQueryService {
	return &BillQueryService{
		billRepo:    billRepo,
		paymentRepo: paymentRepo,
		now:         time.Now,
	}
}

// SetClock replaces the date overdue status is judged on
func (s *BillQueryService) SetClock(now func() time.Time) {
	s.now = now
}

// GetBillSummary returns a bill with its payment-derived fields
func (s *BillQueryService) GetBillSummary(ctx context.Context, billID uuid.UUID) (*BillSummary, error) {
	bill, err := s.billRepo.FindByID(ctx, billID)
	if err != nil {
		return nil, err
	}
	paid, err := s.paymentRepo.SumByBill(ctx, billID)
	if err != nil {
		return nil, fmt.Errorf("failed to sum payments: %w", err)
	}
	summary := ToBillSummary(bill, paid, s.now())
	return &summary, nil
}

// ListCustomerBills pages through a customer's bills, newest first
func (s *BillQueryService) ListCustomerBills(ctx context.Context, customerID uuid.UUID, page, pageSize int) (*shared.Paginated[BillSummary], error) {
	bills, total, err := s.billRepo.FindByCustomer(ctx, customerID, page, pageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list bills: %w", err)
	}

	ids := make([]uuid.UUID, 0, len(bills))
	for i := range bills {
		ids = append(ids, bills[i].ID)
	}
	paid := map[uuid.UUID]decimal.Decimal{}
	if len(ids) > 0 {
		paid, err = s.paymentRepo.SumByBills(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("failed to sum payments: %w", err)
		}
	}

	now := s.now()
	items := make([]BillSummary, 0, len(bills))
	for i := range bills {
		items = append(items, ToBillSummary(&bills[i], paid[bills[i].ID], now))
	}
	result := shared.NewPaginated(items, total, page, pageSize)
	return &result, nil
}
