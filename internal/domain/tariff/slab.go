package tariff

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/utilitybill/backend/internal/domain/shared"
	"github.com/utilitybill/backend/internal/domain/shared/valueobject"
)

var (
	// ErrNoTariffSlabs means the category has no slabs configured at all
	ErrNoTariffSlabs = shared.NewDomainError("NO_TARIFF_SLABS", "No tariff slabs configured for category")
	// ErrNoValidSlabs means slabs exist but none is valid on the billing date
	ErrNoValidSlabs = shared.NewDomainError("NO_VALID_SLABS", "No tariff slabs valid on date")
)

// Slab is a priced consumption band. ToUnit nil means open-ended.
// The fixed charge is a category-level fee carried on the first slab.
type Slab struct {
	shared.BaseEntity
	TariffCategoryID uuid.UUID        `json:"tariff_category_id"`
	FromUnit         decimal.Decimal  `json:"from_unit"`
	ToUnit           *decimal.Decimal `json:"to_unit,omitempty"`
	RatePerUnit      decimal.Decimal  `json:"rate_per_unit"`
	FixedCharge      decimal.Decimal  `json:"fixed_charge"`
	ValidFrom        time.Time        `json:"valid_from"`
	ValidTo          *time.Time       `json:"valid_to,omitempty"`
}

// NewSlab creates a slab after checking its band and prices
func NewSlab(categoryID uuid.UUID, from decimal.Decimal, to *decimal.Decimal, rate, fixed decimal.Decimal, validFrom time.Time, validTo *time.Time) (*Slab, error) {
	if from.IsNegative() {
		return nil, shared.NewDomainError("INVALID_SLAB", "Slab lower bound cannot be negative")
	}
	if to != nil && to.LessThanOrEqual(from) {
		return nil, shared.NewDomainError("INVALID_SLAB", "Slab upper bound must be above its lower bound")
	}
	if rate.IsNegative() || fixed.IsNegative() {
		return nil, shared.NewDomainError("INVALID_SLAB", "Slab prices cannot be negative")
	}
	if validTo != nil && validTo.Before(validFrom) {
		return nil, shared.NewDomainError("INVALID_SLAB", "Slab validity ends before it starts")
	}
	return &Slab{
		BaseEntity:       shared.NewBaseEntity(),
		TariffCategoryID: categoryID,
		FromUnit:         from,
		ToUnit:           to,
		RatePerUnit:      rate,
		FixedCharge:      fixed,
		ValidFrom:        validFrom,
		ValidTo:          validTo,
	}, nil
}

// IsValidOn reports whether the slab applies on the given date (bounds inclusive)
func (s *Slab) IsValidOn(date time.Time) bool {
	from := valueobject.DateOf(s.ValidFrom)
	var to *time.Time
	if s.ValidTo != nil {
		d := valueobject.DateOf(*s.ValidTo)
		to = &d
	}
	return valueobject.WithinInclusive(valueobject.DateOf(date), &from, to)
}

// SlabLine is one slab's share of a consumption
type SlabLine struct {
	SlabID      *uuid.UUID       `json:"slab_id,omitempty"`
	FromUnit    decimal.Decimal  `json:"from_unit"`
	ToUnit      *decimal.Decimal `json:"to_unit,omitempty"`
	Units       decimal.Decimal  `json:"units"`
	RatePerUnit decimal.Decimal  `json:"rate_per_unit"`
	Amount      decimal.Decimal  `json:"amount"`
}

// SlabCharge is the result of walking the slabs for a consumption
type SlabCharge struct {
	Lines        []SlabLine      `json:"lines"`
	EnergyCharge decimal.Decimal `json:"energy_charge"`
	FixedCharge  decimal.Decimal `json:"fixed_charge"`
}

// TotalUnits sums the units allocated across lines
func (c *SlabCharge) TotalUnits() decimal.Decimal {
	total := decimal.Zero
	for _, l := range c.Lines {
		total = total.Add(l.Units)
	}
	return total
}

// ApplySlabs prices a consumption against a category's slabs as of a date.
//
// Valid slabs are walked in ascending FromUnit order. Each slab takes
// min(consumption, ToUnit) - FromUnit units (never negative). The walk stops at
// the first slab whose lower bound is at or above the consumption, or once the
// allocated units cover the consumption. The fixed charge comes from the first
// valid slab only.
func ApplySlabs(categoryID uuid.UUID, consumption decimal.Decimal, slabs []Slab, asOf time.Time) (*SlabCharge, error) {
	if consumption.IsNegative() {
		return nil, shared.NewDomainError(shared.ErrInvalidInput.Code, "Consumption cannot be negative")
	}
	if len(slabs) == 0 {
		return nil, shared.NewDomainError(ErrNoTariffSlabs.Code,
			fmt.Sprintf("No tariff slabs configured for category %s", categoryID))
	}

	valid := make([]Slab, 0, len(slabs))
	for i := range slabs {
		if slabs[i].IsValidOn(asOf) {
			valid = append(valid, slabs[i])
		}
	}
	if len(valid) == 0 {
		return nil, shared.NewDomainError(ErrNoValidSlabs.Code,
			fmt.Sprintf("No tariff slabs valid on %s for category %s", asOf.Format(time.DateOnly), categoryID))
	}
	sort.SliceStable(valid, func(i, j int) bool {
		return valid[i].FromUnit.LessThan(valid[j].FromUnit)
	})

	charge := &SlabCharge{
		Lines:       make([]SlabLine, 0, len(valid)),
		FixedCharge: valueobject.Round2(valid[0].FixedCharge),
	}
	energy := decimal.Zero
	allocated := decimal.Zero

	for i := range valid {
		slab := &valid[i]
		if consumption.LessThanOrEqual(slab.FromUnit) {
			break
		}

		upper := consumption
		if slab.ToUnit != nil {
			upper = valueobject.MinDecimal(consumption, *slab.ToUnit)
		}
		units := valueobject.NonNegative(upper.Sub(slab.FromUnit))
		amount := units.Mul(slab.RatePerUnit)

		slabID := slab.ID
		charge.Lines = append(charge.Lines, SlabLine{
			SlabID:      &slabID,
			FromUnit:    slab.FromUnit,
			ToUnit:      slab.ToUnit,
			Units:       valueobject.Round2(units),
			RatePerUnit: slab.RatePerUnit,
			Amount:      valueobject.Round2(amount),
		})
		energy = energy.Add(amount)
		allocated = allocated.Add(units)

		if allocated.GreaterThanOrEqual(consumption) {
			break
		}
	}

	charge.EnergyCharge = valueobject.Round2(energy)
	return charge, nil
}

// SlabRepository defines read access to slabs
type SlabRepository interface {
	// FindByCategory returns every slab of the category regardless of validity
	FindByCategory(ctx context.Context, categoryID uuid.UUID) ([]Slab, error)
	Save(ctx context.Context, slab *Slab) error
}
