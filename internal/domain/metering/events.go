package metering

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/utilitybill/backend/internal/domain/shared"
)

const (
	EventTypeMeterReadingCreated = "MeterReadingCreated"

	AggregateTypeMeterReading = "MeterReading"
)

// ReadingOptions travel with a reading to tell the billing consumer how to react
type ReadingOptions struct {
	AutoGenerateBill    bool `json:"auto_generate_bill"`
	MinDaysBetweenBills int  `json:"min_days_between_bills"`
	DueDaysFromBillDate int  `json:"due_days_from_bill_date"`
}

// MeterReadingCreatedEvent is raised after a reading is persisted
type MeterReadingCreatedEvent struct {
	shared.BaseDomainEvent
	ReadingID     uuid.UUID       `json:"reading_id"`
	MeterID       uuid.UUID       `json:"meter_id"`
	ReadingDate   time.Time       `json:"reading_date"`
	ImportReading decimal.Decimal `json:"import_reading"`
	ExportReading decimal.Decimal `json:"export_reading"`
	Source        ReadingSource   `json:"source"`
	Options       ReadingOptions  `json:"options"`
}

// NewMeterReadingCreatedEvent creates the event for a stored reading
func NewMeterReadingCreatedEvent(r *MeterReading, opts ReadingOptions) *MeterReadingCreatedEvent {
	return &MeterReadingCreatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeMeterReadingCreated, AggregateTypeMeterReading, r.ID),
		ReadingID:       r.ID,
		MeterID:         r.MeterID,
		ReadingDate:     r.ReadingDate,
		ImportReading:   r.ImportReading,
		ExportReading:   r.ExportReading,
		Source:          r.Source,
		Options:         opts,
	}
}
