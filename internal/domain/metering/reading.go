package metering

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/utilitybill/backend/internal/domain/shared"
	"github.com/utilitybill/backend/internal/domain/shared/valueobject"
)

// ReadingSource says how a reading was obtained
type ReadingSource string

const (
	ReadingSourceManual     ReadingSource = "MANUAL"
	ReadingSourceSmartMeter ReadingSource = "SMART_METER"
	ReadingSourceEstimated  ReadingSource = "ESTIMATED"
	ReadingSourceCorrected  ReadingSource = "CORRECTED"
)

// AllReadingSources lists every reading source
var AllReadingSources = []ReadingSource{
	ReadingSourceManual,
	ReadingSourceSmartMeter,
	ReadingSourceEstimated,
	ReadingSourceCorrected,
}

// IsValid checks if the source is one of the known variants
func (s ReadingSource) IsValid() bool {
	switch s {
	case ReadingSourceManual, ReadingSourceSmartMeter, ReadingSourceEstimated, ReadingSourceCorrected:
		return true
	}
	return false
}

// AllowsDecrease reports whether a reading of this source may be lower than
// the previous one. Only corrections may.
func (s ReadingSource) AllowsDecrease() bool {
	return s == ReadingSourceCorrected
}

// String returns the string representation of ReadingSource
func (s ReadingSource) String() string {
	return string(s)
}

// ParseReadingSource converts a string into a ReadingSource
func ParseReadingSource(s string) (ReadingSource, error) {
	src := ReadingSource(s)
	if !src.IsValid() {
		return "", shared.NewDomainError("INVALID_READING_SOURCE", fmt.Sprintf("Unknown reading source %q", s))
	}
	return src, nil
}

// ErrReadingDecreased is returned when a non-correction reading is below its predecessor
var ErrReadingDecreased = shared.NewDomainError("READING_DECREASED", "Reading cannot be lower than the previous reading")

// MeterReading is a point sample of a meter's cumulative registers.
// Import is energy or water drawn from the network; export is energy fed back.
type MeterReading struct {
	shared.BaseEntity
	MeterID           uuid.UUID       `json:"meter_id"`
	ReadingDate       time.Time       `json:"reading_date"`
	ImportReading     decimal.Decimal `json:"import_reading"`
	PrevImportReading decimal.Decimal `json:"prev_import_reading"`
	ExportReading     decimal.Decimal `json:"export_reading"`
	PrevExportReading decimal.Decimal `json:"prev_export_reading"`
	Source            ReadingSource   `json:"source"`
	RecordedBy        *uuid.UUID      `json:"recorded_by,omitempty"`
	Notes             string          `json:"notes,omitempty"`
}

// ReadingValues are the register values for a new reading
type ReadingValues struct {
	Import     decimal.Decimal
	PrevImport decimal.Decimal
	Export     decimal.Decimal
	PrevExport decimal.Decimal
}

// NewMeterReading creates a reading, enforcing the non-decreasing register rule
// for every source except CORRECTED.
func NewMeterReading(meterID uuid.UUID, readingDate time.Time, values ReadingValues, source ReadingSource) (*MeterReading, error) {
	if meterID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_METER", "Meter ID cannot be empty")
	}
	if !source.IsValid() {
		return nil, shared.NewDomainError("INVALID_READING_SOURCE", fmt.Sprintf("Unknown reading source %q", source))
	}
	if readingDate.IsZero() {
		return nil, shared.NewDomainError("INVALID_READING_DATE", "Reading date is required")
	}
	if values.Import.IsNegative() || values.Export.IsNegative() {
		return nil, shared.NewDomainError("INVALID_READING_VALUE", "Register values cannot be negative")
	}
	if !source.AllowsDecrease() {
		if values.Import.LessThan(values.PrevImport) {
			return nil, shared.NewDomainError(ErrReadingDecreased.Code,
				fmt.Sprintf("Import reading %s is lower than previous reading %s", values.Import, values.PrevImport))
		}
		if values.Export.LessThan(values.PrevExport) {
			return nil, shared.NewDomainError(ErrReadingDecreased.Code,
				fmt.Sprintf("Export reading %s is lower than previous reading %s", values.Export, values.PrevExport))
		}
	}

	return &MeterReading{
		BaseEntity:        shared.NewBaseEntity(),
		MeterID:           meterID,
		ReadingDate:       valueobject.DateOf(readingDate),
		ImportReading:     values.Import,
		PrevImportReading: values.PrevImport,
		ExportReading:     values.Export,
		PrevExportReading: values.PrevExport,
		Source:            source,
	}, nil
}

// Consumption is the import delta against the previous reading
func (r *MeterReading) Consumption() decimal.Decimal {
	return r.ImportReading.Sub(r.PrevImportReading)
}

// ExportDelta is the export delta against the previous reading
func (r *MeterReading) ExportDelta() decimal.Decimal {
	return r.ExportReading.Sub(r.PrevExportReading)
}

// ReadingRepository defines persistence operations for readings.
// There is no delete: readings are an audit trail.
type ReadingRepository interface {
	Create(ctx context.Context, reading *MeterReading) error
	// FindLatestByMeter returns the most recent reading, or shared.ErrNotFound
	FindLatestByMeter(ctx context.Context, meterID uuid.UUID) (*MeterReading, error)
	// FindFirstByMeter returns the earliest reading, or shared.ErrNotFound
	FindFirstByMeter(ctx context.Context, meterID uuid.UUID) (*MeterReading, error)
	// FindByMeterInRange returns readings with from <= date <= to, oldest first
	FindByMeterInRange(ctx context.Context, meterID uuid.UUID, from, to time.Time) ([]MeterReading, error)
	// CountByMeterInRange counts readings with from <= date <= to
	CountByMeterInRange(ctx context.Context, meterID uuid.UUID, from, to time.Time) (int64, error)
}
