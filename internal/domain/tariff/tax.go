package tariff

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/utilitybill/backend/internal/domain/shared"
	"github.com/utilitybill/backend/internal/domain/shared/valueobject"
)

// TaxStatus is the administrative state of a tax
type TaxStatus string

const (
	TaxStatusActive   TaxStatus = "ACTIVE"
	TaxStatusInactive TaxStatus = "INACTIVE"
)

// TaxConfig is a named percentage tax with an effective window.
// Several taxes may stack on the same taxable base.
type TaxConfig struct {
	shared.BaseAggregateRoot
	Name          string          `json:"name"`
	RatePercent   decimal.Decimal `json:"rate_percent"`
	Status        TaxStatus       `json:"status"`
	EffectiveFrom time.Time       `json:"effective_from"`
	EffectiveTo   *time.Time      `json:"effective_to,omitempty"`
}

// NewTaxConfig creates an active tax
func NewTaxConfig(name string, ratePercent decimal.Decimal, effectiveFrom time.Time, effectiveTo *time.Time) (*TaxConfig, error) {
	if name == "" {
		return nil, shared.NewDomainError("INVALID_TAX", "Tax name is required")
	}
	if ratePercent.IsNegative() || ratePercent.GreaterThan(decimal.NewFromInt(100)) {
		return nil, shared.NewDomainError("INVALID_TAX", "Tax rate must be between 0 and 100 percent")
	}
	if effectiveTo != nil && effectiveTo.Before(effectiveFrom) {
		return nil, shared.NewDomainError("INVALID_TAX", "Tax effective window ends before it starts")
	}
	return &TaxConfig{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		Name:              name,
		RatePercent:       ratePercent,
		Status:            TaxStatusActive,
		EffectiveFrom:     effectiveFrom,
		EffectiveTo:       effectiveTo,
	}, nil
}

// Deactivate stops the tax from applying to new bills
func (t *TaxConfig) Deactivate() {
	t.Status = TaxStatusInactive
	t.Touch()
}

// AppliesOn reports whether the tax is ACTIVE and effective on the date (bounds inclusive)
func (t *TaxConfig) AppliesOn(date time.Time) bool {
	if t.Status != TaxStatusActive {
		return false
	}
	from := valueobject.DateOf(t.EffectiveFrom)
	var to *time.Time
	if t.EffectiveTo != nil {
		d := valueobject.DateOf(*t.EffectiveTo)
		to = &d
	}
	return valueobject.WithinInclusive(valueobject.DateOf(date), &from, to)
}

// TaxLine is one tax applied to a taxable base. The rate is a snapshot so a
// stored bill does not move when the configured rate changes later.
type TaxLine struct {
	TaxConfigID uuid.UUID       `json:"tax_config_id"`
	Name        string          `json:"name"`
	RatePercent decimal.Decimal `json:"rate_percent"`
	TaxableBase decimal.Decimal `json:"taxable_base"`
	Amount      decimal.Decimal `json:"amount"`
}

// CalculateTaxes applies every tax that is active and effective on date to the
// taxable amount. Taxes are additive: each is computed on the same base, so
// the result does not depend on their order. An empty result is not an error.
func CalculateTaxes(taxable decimal.Decimal, taxes []TaxConfig, date time.Time) []TaxLine {
	lines := make([]TaxLine, 0, len(taxes))
	for i := range taxes {
		tax := &taxes[i]
		if !tax.AppliesOn(date) {
			continue
		}
		lines = append(lines, TaxLine{
			TaxConfigID: tax.ID,
			Name:        tax.Name,
			RatePercent: tax.RatePercent,
			TaxableBase: taxable,
			Amount:      valueobject.Round2(valueobject.PercentOf(taxable, tax.RatePercent)),
		})
	}
	return lines
}

// TotalTax sums the amounts of the given lines
func TotalTax(lines []TaxLine) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Amount)
	}
	return total
}

// TaxRepository defines read access to tax configuration
type TaxRepository interface {
	// FindActive returns taxes with ACTIVE status; effective-window filtering is left to CalculateTaxes
	FindActive(ctx context.Context) ([]TaxConfig, error)
	FindByID(ctx context.Context, id uuid.UUID) (*TaxConfig, error)
	Save(ctx context.Context, tax *TaxConfig) error
}
