package billing

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/utilitybill/backend/internal/domain/metering"
)

// SubsidyPolicy decides the subsidy granted on a bill before tax
type SubsidyPolicy interface {
	Subsidy(customerID uuid.UUID, billAmount decimal.Decimal, billDate time.Time) decimal.Decimal
}

// SolarCreditPolicy prices energy exported back to the grid
type SolarCreditPolicy interface {
	SolarCredit(exportUnits decimal.Decimal, utilityType metering.UtilityType, billDate time.Time) decimal.Decimal
}

// NoSubsidy grants nothing. No subsidy scheme is currently in force.
type NoSubsidy struct{}

// Subsidy always returns zero
func (NoSubsidy) Subsidy(uuid.UUID, decimal.Decimal, time.Time) decimal.Decimal {
	return decimal.Zero
}

// FixedRateSolarCredit credits every exported unit at a single configured rate
type FixedRateSolarCredit struct {
	Rate decimal.Decimal
}

// SolarCredit returns exportUnits * Rate, or zero when nothing was exported
func (p FixedRateSolarCredit) SolarCredit(exportUnits decimal.Decimal, _ metering.UtilityType, _ time.Time) decimal.Decimal {
	if !exportUnits.IsPositive() {
		return decimal.Zero
	}
	return exportUnits.Mul(p.Rate)
}
