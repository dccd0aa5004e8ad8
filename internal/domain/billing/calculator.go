package billing

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/utilitybill/backend/internal/domain/metering"
	"github.com/utilitybill/backend/internal/domain/shared"
	"github.com/utilitybill/backend/internal/domain/shared/valueobject"
	"github.com/utilitybill/backend/internal/domain/tariff"
	"go.uber.org/zap"
)

// CalculationInput is everything needed to price one billing period
type CalculationInput struct {
	MeterID          uuid.UUID
	CustomerID       uuid.UUID
	UtilityType      metering.UtilityType
	TariffCategoryID uuid.UUID
	PeriodStart      time.Time
	PeriodEnd        time.Time
	BillDate         time.Time
	// Readings taken within [PeriodStart, PeriodEnd], in any order
	Readings []metering.MeterReading
	// Slabs of the tariff category, unfiltered
	Slabs []tariff.Slab
	// Taxes with ACTIVE status, unfiltered by date
	Taxes []tariff.TaxConfig
}

// BillCalculation is a fully itemized, rounded bill computation. It is never
// stored as such; a Bill is a snapshot of it.
type BillCalculation struct {
	MeterID          uuid.UUID         `json:"meter_id"`
	CustomerID       uuid.UUID         `json:"customer_id"`
	TariffCategoryID uuid.UUID         `json:"tariff_category_id"`
	PeriodStart      time.Time         `json:"period_start"`
	PeriodEnd        time.Time         `json:"period_end"`
	BillDate         time.Time         `json:"bill_date"`
	Consumption      decimal.Decimal   `json:"consumption"`
	ExportUnits      decimal.Decimal   `json:"export_units"`
	SlabBreakdown    []tariff.SlabLine `json:"slab_breakdown"`
	EnergyCharge     decimal.Decimal   `json:"energy_charge"`
	FixedCharge      decimal.Decimal   `json:"fixed_charge"`
	Subtotal         decimal.Decimal   `json:"subtotal"`
	Subsidy          decimal.Decimal   `json:"subsidy"`
	SolarCredit      decimal.Decimal   `json:"solar_credit"`
	BeforeTax        decimal.Decimal   `json:"before_tax"`
	Taxes            []tariff.TaxLine  `json:"taxes"`
	TotalTax         decimal.Decimal   `json:"total_tax"`
	TotalAmount      decimal.Decimal   `json:"total_amount"`
}

// Calculator prices billing periods. It is safe for concurrent use.
type Calculator struct {
	subsidy SubsidyPolicy
	solar   SolarCreditPolicy
	logger  *zap.Logger
}

// NewCalculator creates a calculator. Nil policies fall back to NoSubsidy and a
// zero-rate solar credit; a nil logger discards output.
func NewCalculator(subsidy SubsidyPolicy, solar SolarCreditPolicy, logger *zap.Logger) *Calculator {
	if subsidy == nil {
		subsidy = NoSubsidy{}
	}
	if solar == nil {
		solar = FixedRateSolarCredit{Rate: decimal.Zero}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Calculator{subsidy: subsidy, solar: solar, logger: logger}
}

// Subsidy applies the subsidy policy and rounds the result
func (c *Calculator) Subsidy(customerID uuid.UUID, billAmount decimal.Decimal, billDate time.Time) decimal.Decimal {
	return valueobject.Round2(c.subsidy.Subsidy(customerID, billAmount, billDate))
}

// SolarCredit applies the solar credit policy and rounds the result
func (c *Calculator) SolarCredit(exportUnits decimal.Decimal, utilityType metering.UtilityType, billDate time.Time) decimal.Decimal {
	return valueobject.Round2(c.solar.SolarCredit(exportUnits, utilityType, billDate))
}

// Calculate prices the period described by in.
//
// Consumption is the import register delta between the first and last reading
// of the period; fewer than two readings is ErrInsufficientReadings and a
// negative delta is ErrInvalidReadingSequence. Slabs are selected as of the
// period end; subsidy, solar credit and taxes as of the bill date. Subsidy and
// solar credit never take the pre-tax amount below zero, and unused credit is
// not carried forward.
func (c *Calculator) Calculate(in CalculationInput) (*BillCalculation, error) {
	if in.PeriodEnd.Before(in.PeriodStart) {
		return nil, ErrInvalidBillingPeriod
	}
	if len(in.Readings) < 2 {
		return nil, shared.NewDomainError(ErrInsufficientReadings.Code, fmt.Sprintf(
			"Meter %s has %d reading(s) between %s and %s; at least 2 are required",
			in.MeterID, len(in.Readings), in.PeriodStart.Format(time.DateOnly), in.PeriodEnd.Format(time.DateOnly)))
	}

	readings := make([]metering.MeterReading, len(in.Readings))
	copy(readings, in.Readings)
	sort.SliceStable(readings, func(i, j int) bool {
		if readings[i].ReadingDate.Equal(readings[j].ReadingDate) {
			return readings[i].CreatedAt.Before(readings[j].CreatedAt)
		}
		return readings[i].ReadingDate.Before(readings[j].ReadingDate)
	})
	first, last := readings[0], readings[len(readings)-1]

	consumption := last.ImportReading.Sub(first.ImportReading)
	exportUnits := last.ExportReading.Sub(first.ExportReading)
	if consumption.IsNegative() {
		return nil, shared.NewDomainError(ErrInvalidReadingSequence.Code, fmt.Sprintf(
			"Meter %s import register fell from %s on %s to %s on %s",
			in.MeterID, first.ImportReading, first.ReadingDate.Format(time.DateOnly),
			last.ImportReading, last.ReadingDate.Format(time.DateOnly)))
	}

	log := c.logger.With(
		zap.String("meter_id", in.MeterID.String()),
		zap.Time("period_start", in.PeriodStart),
		zap.Time("period_end", in.PeriodEnd),
	)
	log.Debug("consumption derived",
		zap.String("consumption", consumption.String()),
		zap.String("export_units", exportUnits.String()),
		zap.Int("readings", len(readings)),
	)

	charge, err := tariff.ApplySlabs(in.TariffCategoryID, consumption, in.Slabs, in.PeriodEnd)
	if err != nil {
		return nil, err
	}
	subtotal := charge.EnergyCharge.Add(charge.FixedCharge)
	log.Debug("slabs applied",
		zap.Int("slab_lines", len(charge.Lines)),
		zap.String("energy_charge", charge.EnergyCharge.String()),
		zap.String("fixed_charge", charge.FixedCharge.String()),
	)

	subsidy := c.Subsidy(in.CustomerID, subtotal, in.BillDate)
	solarCredit := c.SolarCredit(exportUnits, in.UtilityType, in.BillDate)
	beforeTax := valueobject.NonNegative(subtotal.Sub(subsidy).Sub(solarCredit))

	taxes := tariff.CalculateTaxes(beforeTax, in.Taxes, in.BillDate)
	if len(taxes) == 0 {
		log.Warn("no tax effective on bill date", zap.Time("bill_date", in.BillDate))
	}
	totalTax := tariff.TotalTax(taxes)
	total := valueobject.Round2(beforeTax.Add(totalTax))

	log.Debug("bill calculated",
		zap.String("subsidy", subsidy.String()),
		zap.String("solar_credit", solarCredit.String()),
		zap.String("before_tax", beforeTax.String()),
		zap.String("total_tax", totalTax.String()),
		zap.String("total_amount", total.String()),
	)

	return &BillCalculation{
		MeterID:          in.MeterID,
		CustomerID:       in.CustomerID,
		TariffCategoryID: in.TariffCategoryID,
		PeriodStart:      in.PeriodStart,
		PeriodEnd:        in.PeriodEnd,
		BillDate:         in.BillDate,
		Consumption:      consumption,
		ExportUnits:      valueobject.NonNegative(exportUnits),
		SlabBreakdown:    charge.Lines,
		EnergyCharge:     charge.EnergyCharge,
		FixedCharge:      charge.FixedCharge,
		Subtotal:         subtotal,
		Subsidy:          subsidy,
		SolarCredit:      solarCredit,
		BeforeTax:        beforeTax,
		Taxes:            taxes,
		TotalTax:         totalTax,
		TotalAmount:      total,
	}, nil
}
