package billing

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/utilitybill/backend/internal/domain/shared"
	"github.com/utilitybill/backend/internal/domain/shared/valueobject"
)

// AggregateTypeBill is the aggregate type name used in events
const AggregateTypeBill = "Bill"

// DefaultDueDays is the number of days between bill date and due date
const DefaultDueDays = 15

// BillDetail is one slab's contribution to a bill.
// TariffSlabID is nil for charges not tied to a slab.
type BillDetail struct {
	ID           uuid.UUID        `json:"id"`
	BillID       uuid.UUID        `json:"bill_id"`
	TariffSlabID *uuid.UUID       `json:"tariff_slab_id,omitempty"`
	FromUnit     decimal.Decimal  `json:"from_unit"`
	ToUnit       *decimal.Decimal `json:"to_unit,omitempty"`
	UnitsInSlab  decimal.Decimal  `json:"units_in_slab"`
	RatePerUnit  decimal.Decimal  `json:"rate_per_unit"`
	Amount       decimal.Decimal  `json:"amount"`
}

// BillTax is one tax's contribution to a bill. The rate is snapshotted at
// billing time and does not follow later changes to the tax configuration.
type BillTax struct {
	ID                 uuid.UUID       `json:"id"`
	BillID             uuid.UUID       `json:"bill_id"`
	TaxConfigID        uuid.UUID       `json:"tax_config_id"`
	TaxName            string          `json:"tax_name"`
	RatePercentApplied decimal.Decimal `json:"rate_percent_applied"`
	TaxableBaseAmount  decimal.Decimal `json:"taxable_base_amount"`
}

// Amount is the tax charged by this line
func (t BillTax) Amount() decimal.Decimal {
	return valueobject.Round2(valueobject.PercentOf(t.TaxableBaseAmount, t.RatePercentApplied))
}

// Bill is the invoice for one meter over one billing period.
// Totals are derived from the stored charges and lines, never stored.
type Bill struct {
	shared.BaseAggregateRoot
	MeterID            uuid.UUID       `json:"meter_id"`
	CustomerID         uuid.UUID       `json:"customer_id"`
	ConnectionID       uuid.UUID       `json:"connection_id"`
	TariffCategoryID   uuid.UUID       `json:"tariff_category_id"`
	BillingPeriodStart time.Time       `json:"billing_period_start"`
	BillingPeriodEnd   time.Time       `json:"billing_period_end"`
	BillDate           time.Time       `json:"bill_date"`
	DueDate            time.Time       `json:"due_date"`
	TotalImportUnit    decimal.Decimal `json:"total_import_unit"`
	TotalExportUnit    decimal.Decimal `json:"total_export_unit"`
	EnergyChargeAmount decimal.Decimal `json:"energy_charge_amount"`
	FixedChargeAmount  decimal.Decimal `json:"fixed_charge_amount"`
	SubsidyAmount      decimal.Decimal `json:"subsidy_amount"`
	SolarExportCredit  decimal.Decimal `json:"solar_export_credit"`
	Status             BillStatus      `json:"status"`
	VoidReason         string          `json:"void_reason,omitempty"`
	VoidedBy           *uuid.UUID      `json:"voided_by,omitempty"`
	VoidedAt           *time.Time      `json:"voided_at,omitempty"`
	Details            []BillDetail    `json:"details"`
	Taxes              []BillTax       `json:"taxes"`
}

// NewBill snapshots a calculation into a new active bill for a connection.
// dueDays <= 0 uses DefaultDueDays.
func NewBill(connectionID uuid.UUID, calc *BillCalculation, dueDays int) (*Bill, error) {
	if err := validateCalculation(calc); err != nil {
		return nil, err
	}
	if dueDays <= 0 {
		dueDays = DefaultDueDays
	}

	billDate := valueobject.DateOf(calc.BillDate)
	bill := &Bill{
		BaseAggregateRoot:  shared.NewBaseAggregateRoot(),
		MeterID:            calc.MeterID,
		CustomerID:         calc.CustomerID,
		ConnectionID:       connectionID,
		TariffCategoryID:   calc.TariffCategoryID,
		BillingPeriodStart: valueobject.DateOf(calc.PeriodStart),
		BillingPeriodEnd:   valueobject.DateOf(calc.PeriodEnd),
		BillDate:           billDate,
		DueDate:            billDate.AddDate(0, 0, dueDays),
		Status:             BillStatusActive,
	}
	bill.applyCharges(calc)

	bill.AddDomainEvent(NewBillCreatedEvent(bill))
	return bill, nil
}

func validateCalculation(calc *BillCalculation) error {
	if calc == nil {
		return shared.NewDomainError(ErrInvalidCalculation.Code, "Bill calculation is missing")
	}
	if calc.TotalAmount.IsNegative() {
		return shared.NewDomainError(ErrInvalidCalculation.Code,
			fmt.Sprintf("Bill calculation for meter %s produced a negative total %s", calc.MeterID, calc.TotalAmount))
	}
	return nil
}

// applyCharges overwrites charge columns and replaces all lines from calc
func (b *Bill) applyCharges(calc *BillCalculation) {
	b.TotalImportUnit = calc.Consumption
	b.TotalExportUnit = calc.ExportUnits
	b.EnergyChargeAmount = calc.EnergyCharge
	b.FixedChargeAmount = calc.FixedCharge
	b.SubsidyAmount = calc.Subsidy
	b.SolarExportCredit = calc.SolarCredit

	b.Details = make([]BillDetail, 0, len(calc.SlabBreakdown))
	for _, line := range calc.SlabBreakdown {
		b.Details = append(b.Details, BillDetail{
			ID:           uuid.New(),
			BillID:       b.ID,
			TariffSlabID: line.SlabID,
			FromUnit:     line.FromUnit,
			ToUnit:       line.ToUnit,
			UnitsInSlab:  line.Units,
			RatePerUnit:  line.RatePerUnit,
			Amount:       line.Amount,
		})
	}

	b.Taxes = make([]BillTax, 0, len(calc.Taxes))
	for _, line := range calc.Taxes {
		b.Taxes = append(b.Taxes, BillTax{
			ID:                 uuid.New(),
			BillID:             b.ID,
			TaxConfigID:        line.TaxConfigID,
			TaxName:            line.Name,
			RatePercentApplied: line.RatePercent,
			TaxableBaseAmount:  line.TaxableBase,
		})
	}
}

// Recalculate replaces the bill's charges and lines with a fresh calculation
// of the same period. Dates are kept.
func (b *Bill) Recalculate(calc *BillCalculation) error {
	if b.IsVoided() {
		return shared.NewDomainError(ErrBillVoided.Code, fmt.Sprintf("Bill %s is voided and cannot be recalculated", b.ID))
	}
	if err := validateCalculation(calc); err != nil {
		return err
	}

	previous := b.GetTotalAmount()
	b.applyCharges(calc)
	b.IncrementVersion()
	b.Touch()

	b.AddDomainEvent(NewBillRecalculatedEvent(b, previous))
	return nil
}

// Void cancels the bill while keeping the row for audit. Charges and tax bases
// are zeroed, the status becomes VOIDED and the due date moves to
// VoidedDueDate. Slab lines are kept as the consumption record.
func (b *Bill) Void(reason string, employeeID uuid.UUID, totalPaid decimal.Decimal, at time.Time) error {
	if b.IsVoided() {
		return shared.NewDomainError(ErrBillVoided.Code, fmt.Sprintf("Bill %s is already voided", b.ID))
	}
	if totalPaid.IsPositive() {
		return shared.NewDomainError(ErrCannotVoidPaidBill.Code,
			fmt.Sprintf("Bill %s has payments totalling %s and cannot be voided", b.ID, totalPaid.StringFixed(2)))
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return shared.NewDomainError(shared.ErrInvalidInput.Code, "Void reason is required")
	}

	b.EnergyChargeAmount = decimal.Zero
	b.FixedChargeAmount = decimal.Zero
	b.SubsidyAmount = decimal.Zero
	b.SolarExportCredit = decimal.Zero
	for i := range b.Taxes {
		b.Taxes[i].TaxableBaseAmount = decimal.Zero
	}
	b.DueDate = VoidedDueDate
	b.Status = BillStatusVoided
	b.VoidReason = reason
	b.VoidedBy = &employeeID
	b.VoidedAt = &at
	b.IncrementVersion()
	b.Touch()

	b.AddDomainEvent(NewBillVoidedEvent(b))
	return nil
}

// IsVoided reports whether the bill is voided, either by status or by the
// legacy sentinel due date.
func (b *Bill) IsVoided() bool {
	return b.Status == BillStatusVoided || isSentinelDueDate(b.DueDate)
}

// BeforeTax is the charge after subsidy and solar credit, floored at zero
func (b *Bill) BeforeTax() decimal.Decimal {
	net := b.EnergyChargeAmount.Add(b.FixedChargeAmount).Sub(b.SubsidyAmount).Sub(b.SolarExportCredit)
	return valueobject.NonNegative(net)
}

// TotalTax sums the tax lines
func (b *Bill) TotalTax() decimal.Decimal {
	total := decimal.Zero
	for _, t := range b.Taxes {
		total = total.Add(t.Amount())
	}
	return total
}

// GetTotalAmount is the amount payable. Voided bills owe nothing.
func (b *Bill) GetTotalAmount() decimal.Decimal {
	if b.IsVoided() {
		return decimal.Zero
	}
	return valueobject.Round2(b.BeforeTax().Add(b.TotalTax()))
}

// IsPaid reports whether payments cover the total
func (b *Bill) IsPaid(totalPaid decimal.Decimal) bool {
	if b.IsVoided() {
		return false
	}
	return totalPaid.GreaterThanOrEqual(b.GetTotalAmount())
}

// GetOutstandingBalance is what remains to be paid, never negative
func (b *Bill) GetOutstandingBalance(totalPaid decimal.Decimal) decimal.Decimal {
	return valueobject.NonNegative(valueobject.Round2(b.GetTotalAmount().Sub(totalPaid)))
}

// IsOverdue reports whether an unpaid, active bill is past its due date on the given day
func (b *Bill) IsOverdue(now time.Time, totalPaid decimal.Decimal) bool {
	if b.IsVoided() || b.IsPaid(totalPaid) {
		return false
	}
	return valueobject.DateOf(now).After(valueobject.DateOf(b.DueDate))
}
