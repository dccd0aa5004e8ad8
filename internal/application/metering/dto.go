package metering

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/utilitybill/backend/internal/domain/metering"
)

// RecordReadingInput is a register sample submitted by a meter reader,
// a smart meter gateway, or an estimation job.
type RecordReadingInput struct {
	MeterID       uuid.UUID       `json:"meter_id" validate:"required"`
	ReadingDate   time.Time       `json:"reading_date" validate:"required"`
	ImportReading decimal.Decimal `json:"import_reading"`
	ExportReading decimal.Decimal `json:"export_reading"`
	Source        string          `json:"source" validate:"required,oneof=MANUAL SMART_METER ESTIMATED CORRECTED"`
	RecordedBy    *uuid.UUID      `json:"recorded_by,omitempty"`
	Notes         string          `json:"notes,omitempty" validate:"max=500"`

	// AutoGenerateBill overrides the configured default when set
	AutoGenerateBill    *bool `json:"auto_generate_bill,omitempty"`
	MinDaysBetweenBills int   `json:"min_days_between_bills,omitempty" validate:"gte=0,lte=366"`
	DueDaysFromBillDate int   `json:"due_days_from_bill_date,omitempty" validate:"gte=0,lte=366"`
}

// AutoBillPolicy holds the auto-billing options applied when an input leaves them unset
type AutoBillPolicy struct {
	AutoGenerateBill    bool
	MinDaysBetweenBills int
	DueDaysFromBillDate int
}

// DefaultAutoBillPolicy returns the stock auto-billing options
func DefaultAutoBillPolicy() AutoBillPolicy {
	return AutoBillPolicy{
		AutoGenerateBill:    true,
		MinDaysBetweenBills: 25,
		DueDaysFromBillDate: 15,
	}
}

// ReadingResponse is a stored reading with its deltas
type ReadingResponse struct {
	ID                uuid.UUID       `json:"id"`
	MeterID           uuid.UUID       `json:"meter_id"`
	ReadingDate       time.Time       `json:"reading_date"`
	ImportReading     decimal.Decimal `json:"import_reading"`
	PrevImportReading decimal.Decimal `json:"prev_import_reading"`
	ExportReading     decimal.Decimal `json:"export_reading"`
	PrevExportReading decimal.Decimal `json:"prev_export_reading"`
	Consumption       decimal.Decimal `json:"consumption"`
	ExportUnits       decimal.Decimal `json:"export_units"`
	Source            string          `json:"source"`
	Notes             string          `json:"notes,omitempty"`
}

// ToReadingResponse converts a domain reading to its response form
func ToReadingResponse(r *metering.MeterReading) ReadingResponse {
	return ReadingResponse{
		ID:                r.ID,
		MeterID:           r.MeterID,
		ReadingDate:       r.ReadingDate,
		ImportReading:     r.ImportReading,
		PrevImportReading: r.PrevImportReading,
		ExportReading:     r.ExportReading,
		PrevExportReading: r.PrevExportReading,
		Consumption:       r.Consumption(),
		ExportUnits:       r.ExportDelta(),
		Source:            r.Source.String(),
		Notes:             r.Notes,
	}
}
