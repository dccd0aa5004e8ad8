package billing

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/utilitybill/backend/internal/domain/shared"
)

const (
	EventTypeBillCreated      = "BillCreated"
	EventTypeBillRecalculated = "BillRecalculated"
	EventTypeBillVoided       = "BillVoided"
)

// BillCreatedEvent is raised when a bill is issued
type BillCreatedEvent struct {
	shared.BaseDomainEvent
	BillID      uuid.UUID       `json:"bill_id"`
	MeterID     uuid.UUID       `json:"meter_id"`
	CustomerID  uuid.UUID       `json:"customer_id"`
	PeriodStart time.Time       `json:"period_start"`
	PeriodEnd   time.Time       `json:"period_end"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	DueDate     time.Time       `json:"due_date"`
}

// NewBillCreatedEvent creates the event for a newly issued bill
func NewBillCreatedEvent(b *Bill) *BillCreatedEvent {
	return &BillCreatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeBillCreated, AggregateTypeBill, b.ID),
		BillID:          b.ID,
		MeterID:         b.MeterID,
		CustomerID:      b.CustomerID,
		PeriodStart:     b.BillingPeriodStart,
		PeriodEnd:       b.BillingPeriodEnd,
		TotalAmount:     b.GetTotalAmount(),
		DueDate:         b.DueDate,
	}
}

// BillRecalculatedEvent is raised when a bill's charges are recomputed
type BillRecalculatedEvent struct {
	shared.BaseDomainEvent
	BillID        uuid.UUID       `json:"bill_id"`
	PreviousTotal decimal.Decimal `json:"previous_total"`
	NewTotal      decimal.Decimal `json:"new_total"`
}

// NewBillRecalculatedEvent creates the event for a recalculated bill
func NewBillRecalculatedEvent(b *Bill, previousTotal decimal.Decimal) *BillRecalculatedEvent {
	return &BillRecalculatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeBillRecalculated, AggregateTypeBill, b.ID),
		BillID:          b.ID,
		PreviousTotal:   previousTotal,
		NewTotal:        b.GetTotalAmount(),
	}
}

// BillVoidedEvent is raised when a bill is voided
type BillVoidedEvent struct {
	shared.BaseDomainEvent
	BillID   uuid.UUID `json:"bill_id"`
	MeterID  uuid.UUID `json:"meter_id"`
	Reason   string    `json:"reason"`
	VoidedBy uuid.UUID `json:"voided_by"`
}

// NewBillVoidedEvent creates the event for a voided bill
func NewBillVoidedEvent(b *Bill) *BillVoidedEvent {
	var by uuid.UUID
	if b.VoidedBy != nil {
		by = *b.VoidedBy
	}
	return &BillVoidedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeBillVoided, AggregateTypeBill, b.ID),
		BillID:          b.ID,
		MeterID:         b.MeterID,
		Reason:          b.VoidReason,
		VoidedBy:        by,
	}
}
