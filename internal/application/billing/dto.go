package billing

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/utilitybill/backend/internal/domain/billing"
	"github.com/utilitybill/backend/internal/domain/customer"
	"github.com/utilitybill/backend/internal/domain/metering"
)

// Config holds the billing defaults applied when a caller does not override them
type Config struct {
	MinDaysBetweenBills int
	DueDaysFromBillDate int
	// MeterLockTTL bounds how long an auto-billing lease is held
	MeterLockTTL time.Duration
}

// DefaultConfig returns the stock billing defaults
func DefaultConfig() Config {
	return Config{
		MinDaysBetweenBills: 25,
		DueDaysFromBillDate: billing.DefaultDueDays,
		MeterLockTTL:        2 * time.Minute,
	}
}

// BulkFilter selects the meters billed by CreateBulk. Only meters with an
// ACTIVE service connection are considered; zero-valued fields do not restrict.
// PeriodEnd is required. PeriodStart applies only to meters never billed; a
// zero PeriodStart starts those at their first reading.
type BulkFilter struct {
	UtilityType  metering.UtilityType
	CustomerType customer.CustomerType
	MeterIDs     []uuid.UUID
	PeriodStart  time.Time
	PeriodEnd    time.Time
}

// BulkSuccess is one meter billed (or priced, in a dry run) by CreateBulk
type BulkSuccess struct {
	MeterID     uuid.UUID                `json:"meter_id"`
	BillID      *uuid.UUID               `json:"bill_id,omitempty"`
	TotalAmount decimal.Decimal          `json:"total_amount"`
	Calculation *billing.BillCalculation `json:"calculation,omitempty"`
}

// BulkFailure is one meter CreateBulk could not bill
type BulkFailure struct {
	MeterID uuid.UUID `json:"meter_id"`
	Code    string    `json:"code,omitempty"`
	Error   string    `json:"error"`
}

// BulkResult reports every meter CreateBulk attempted
type BulkResult struct {
	DryRun    bool          `json:"dry_run"`
	Succeeded []BulkSuccess `json:"succeeded"`
	Failed    []BulkFailure `json:"failed"`
}

// Total returns the number of meters attempted
func (r *BulkResult) Total() int {
	return len(r.Succeeded) + len(r.Failed)
}

// AutoBillOptions tune GenerateBillFromReading. Non-positive values use the service defaults.
type AutoBillOptions struct {
	MinDaysBetweenBills int
	DueDaysFromBillDate int
}

// SkipReason says why an auto-bill was not generated
type SkipReason string

const (
	SkipMeterNotFound        SkipReason = "meter_not_found"
	SkipNoActiveConnection   SkipReason = "no_active_connection"
	SkipNoTariffCategory     SkipReason = "no_tariff_category"
	SkipNoReadings           SkipReason = "no_readings"
	SkipTooSoon              SkipReason = "too_soon_since_last_bill"
	SkipInsufficientReadings SkipReason = "insufficient_readings"
	SkipMeterLocked          SkipReason = "meter_locked"
	SkipError                SkipReason = "error"
)

// String returns the string representation of SkipReason
func (r SkipReason) String() string {
	return string(r)
}

// AutoBillResult is the outcome of GenerateBillFromReading. Bill is nil
// whenever Skipped is true.
type AutoBillResult struct {
	Bill    *billing.Bill
	Skipped bool
	Reason  SkipReason
	Detail  string
}

// Eligibility is the read-only evaluation of the auto-billing gates for a meter
type Eligibility struct {
	MeterID              uuid.UUID  `json:"meter_id"`
	Eligible             bool       `json:"eligible"`
	Reason               SkipReason `json:"reason,omitempty"`
	Detail               string     `json:"detail,omitempty"`
	LastBillDate         *time.Time `json:"last_bill_date,omitempty"`
	DaysSinceLastBill    *int       `json:"days_since_last_bill,omitempty"`
	ReadingCount         int64      `json:"reading_count"`
	SuggestedPeriodStart *time.Time `json:"suggested_period_start,omitempty"`
}

// BillSummary is a stored bill with the payment-derived display fields
type BillSummary struct {
	ID                 uuid.UUID            `json:"id"`
	MeterID            uuid.UUID            `json:"meter_id"`
	CustomerID         uuid.UUID            `json:"customer_id"`
	Status             billing.BillStatus   `json:"status"`
	BillingPeriodStart time.Time            `json:"billing_period_start"`
	BillingPeriodEnd   time.Time            `json:"billing_period_end"`
	BillDate           time.Time            `json:"bill_date"`
	DueDate            time.Time            `json:"due_date"`
	TotalImportUnit    decimal.Decimal      `json:"total_import_unit"`
	TotalExportUnit    decimal.Decimal      `json:"total_export_unit"`
	EnergyChargeAmount decimal.Decimal      `json:"energy_charge_amount"`
	FixedChargeAmount  decimal.Decimal      `json:"fixed_charge_amount"`
	SubsidyAmount      decimal.Decimal      `json:"subsidy_amount"`
	SolarExportCredit  decimal.Decimal      `json:"solar_export_credit"`
	TotalTax           decimal.Decimal      `json:"total_tax"`
	TotalAmount        decimal.Decimal      `json:"total_amount"`
	TotalPaid          decimal.Decimal      `json:"total_paid"`
	Outstanding        decimal.Decimal      `json:"outstanding"`
	IsPaid             bool                 `json:"is_paid"`
	IsOverdue          bool                 `json:"is_overdue"`
	Details            []billing.BillDetail `json:"details,omitempty"`
	Taxes              []BillTaxLine        `json:"taxes,omitempty"`
}

// BillTaxLine is a stored tax line with its amount
type BillTaxLine struct {
	TaxConfigID        uuid.UUID       `json:"tax_config_id"`
	TaxName            string          `json:"tax_name"`
	RatePercentApplied decimal.Decimal `json:"rate_percent_applied"`
	TaxableBaseAmount  decimal.Decimal `json:"taxable_base_amount"`
	Amount             decimal.Decimal `json:"amount"`
}

// ToBillSummary derives the display fields of a bill from the total paid against it
func ToBillSummary(b *billing.Bill, totalPaid decimal.Decimal, now time.Time) BillSummary {
	taxes := make([]BillTaxLine, 0, len(b.Taxes))
	for _, t := range b.Taxes {
		taxes = append(taxes, BillTaxLine{
			TaxConfigID:        t.TaxConfigID,
			TaxName:            t.TaxName,
			RatePercentApplied: t.RatePercentApplied,
			TaxableBaseAmount:  t.TaxableBaseAmount,
			Amount:             t.Amount(),
		})
	}
	status := b.Status
	if b.IsVoided() {
		status = billing.BillStatusVoided
	}
	return BillSummary{
		ID:                 b.ID,
		MeterID:            b.MeterID,
		CustomerID:         b.CustomerID,
		Status:             status,
		BillingPeriodStart: b.BillingPeriodStart,
		BillingPeriodEnd:   b.BillingPeriodEnd,
		BillDate:           b.BillDate,
		DueDate:            b.DueDate,
		TotalImportUnit:    b.TotalImportUnit,
		TotalExportUnit:    b.TotalExportUnit,
		EnergyChargeAmount: b.EnergyChargeAmount,
		FixedChargeAmount:  b.FixedChargeAmount,
		SubsidyAmount:      b.SubsidyAmount,
		SolarExportCredit:  b.SolarExportCredit,
		TotalTax:           b.TotalTax(),
		TotalAmount:        b.GetTotalAmount(),
		TotalPaid:          totalPaid,
		Outstanding:        b.GetOutstandingBalance(totalPaid),
		IsPaid:             b.IsPaid(totalPaid),
		IsOverdue:          b.IsOverdue(now, totalPaid),
		Details:            b.Details,
		Taxes:              taxes,
	}
}

