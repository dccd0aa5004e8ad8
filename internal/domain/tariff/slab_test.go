package tariff

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	jan1  = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	jun30 = time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC)
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func dp(v string) *decimal.Decimal {
	x := d(v)
	return &x
}

func slab(t *testing.T, category uuid.UUID, from string, to *decimal.Decimal, rate, fixed string) Slab {
	t.Helper()
	s, err := NewSlab(category, d(from), to, d(rate), d(fixed), jan1, nil)
	require.NoError(t, err)
	return *s
}

// residentialSlabs is 0-100 @10, 100-200 @15, 200+ @20 with a 500 fixed charge
func residentialSlabs(t *testing.T, category uuid.UUID) []Slab {
	return []Slab{
		slab(t, category, "0", dp("100"), "10", "500"),
		slab(t, category, "100", dp("200"), "15", "0"),
		slab(t, category, "200", nil, "20", "0"),
	}
}

func TestApplySlabs_ThreeTierExample(t *testing.T) {
	category := uuid.New()

	charge, err := ApplySlabs(category, d("250"), residentialSlabs(t, category), jun30)
	require.NoError(t, err)

	require.Len(t, charge.Lines, 3)
	assert.True(t, charge.Lines[0].Units.Equal(d("100")))
	assert.True(t, charge.Lines[0].Amount.Equal(d("1000")))
	assert.True(t, charge.Lines[1].Units.Equal(d("100")))
	assert.True(t, charge.Lines[1].Amount.Equal(d("1500")))
	assert.True(t, charge.Lines[2].Units.Equal(d("50")))
	assert.True(t, charge.Lines[2].Amount.Equal(d("1000")))
	assert.Nil(t, charge.Lines[2].ToUnit)

	assert.True(t, charge.EnergyCharge.Equal(d("3500")))
	assert.True(t, charge.FixedCharge.Equal(d("500")))
	assert.True(t, charge.EnergyCharge.Add(charge.FixedCharge).Equal(d("4000")))
}

func TestApplySlabs_UnitsSumToConsumption(t *testing.T) {
	category := uuid.New()
	slabs := residentialSlabs(t, category)

	for _, c := range []string{"0", "0.5", "1", "99.99", "100", "100.01", "150", "200", "200.5", "1000", "123456.78"} {
		t.Run(c, func(t *testing.T) {
			charge, err := ApplySlabs(category, d(c), slabs, jun30)
			require.NoError(t, err)
			assert.True(t, charge.TotalUnits().Equal(d(c)), "units %s != consumption %s", charge.TotalUnits(), c)
		})
	}
}

func TestApplySlabs_UnsortedInputIsWalkedInOrder(t *testing.T) {
	category := uuid.New()
	slabs := residentialSlabs(t, category)
	reversed := []Slab{slabs[2], slabs[0], slabs[1]}

	charge, err := ApplySlabs(category, d("250"), reversed, jun30)
	require.NoError(t, err)

	assert.True(t, charge.EnergyCharge.Equal(d("3500")))
	assert.True(t, charge.FixedCharge.Equal(d("500")), "fixed charge comes from the lowest slab")
	assert.True(t, charge.Lines[0].FromUnit.IsZero())
}

func TestApplySlabs_StopsAtFirstBand(t *testing.T) {
	category := uuid.New()

	charge, err := ApplySlabs(category, d("60"), residentialSlabs(t, category), jun30)
	require.NoError(t, err)

	require.Len(t, charge.Lines, 1)
	assert.True(t, charge.EnergyCharge.Equal(d("600")))
}

func TestApplySlabs_ZeroConsumption(t *testing.T) {
	category := uuid.New()

	charge, err := ApplySlabs(category, decimal.Zero, residentialSlabs(t, category), jun30)
	require.NoError(t, err)

	assert.Empty(t, charge.Lines)
	assert.True(t, charge.EnergyCharge.IsZero())
	assert.True(t, charge.FixedCharge.Equal(d("500")))
}

func TestApplySlabs_GapUnitsAreNotBilled(t *testing.T) {
	category := uuid.New()
	slabs := []Slab{
		slab(t, category, "0", dp("100"), "10", "0"),
		slab(t, category, "150", nil, "20", "0"),
	}

	charge, err := ApplySlabs(category, d("120"), slabs, jun30)
	require.NoError(t, err)
	require.Len(t, charge.Lines, 1)
	assert.True(t, charge.EnergyCharge.Equal(d("1000")))

	charge, err = ApplySlabs(category, d("200"), slabs, jun30)
	require.NoError(t, err)
	require.Len(t, charge.Lines, 2)
	assert.True(t, charge.Lines[1].Units.Equal(d("50")))
	assert.True(t, charge.EnergyCharge.Equal(d("2000")))
}

func TestApplySlabs_RoundsFractionalAmounts(t *testing.T) {
	category := uuid.New()
	slabs := []Slab{slab(t, category, "0", nil, "7.333", "12.345")}

	charge, err := ApplySlabs(category, d("10.005"), slabs, jun30)
	require.NoError(t, err)

	// 10.005 * 7.333 = 73.366665
	assert.Equal(t, "73.37", charge.EnergyCharge.StringFixed(2))
	assert.Equal(t, "73.37", charge.Lines[0].Amount.StringFixed(2))
	assert.Equal(t, "10.01", charge.Lines[0].Units.StringFixed(2))
	assert.Equal(t, "12.35", charge.FixedCharge.StringFixed(2))
}

func TestApplySlabs_Errors(t *testing.T) {
	category := uuid.New()

	t.Run("no slabs configured", func(t *testing.T) {
		_, err := ApplySlabs(category, d("10"), nil, jun30)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrNoTariffSlabs))
		assert.False(t, errors.Is(err, ErrNoValidSlabs))
	})

	t.Run("no slab valid on date", func(t *testing.T) {
		end := jan1.AddDate(0, 1, 0)
		s, err := NewSlab(category, decimal.Zero, nil, d("10"), decimal.Zero, jan1, &end)
		require.NoError(t, err)

		_, err = ApplySlabs(category, d("10"), []Slab{*s}, jun30)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrNoValidSlabs))
		assert.False(t, errors.Is(err, ErrNoTariffSlabs))
	})

	t.Run("negative consumption", func(t *testing.T) {
		_, err := ApplySlabs(category, d("-1"), residentialSlabs(t, category), jun30)
		assert.Error(t, err)
	})
}

func TestApplySlabs_ValidityWindowSelectsRevision(t *testing.T) {
	category := uuid.New()
	oldEnd := time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC)
	newStart := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)

	old, err := NewSlab(category, decimal.Zero, nil, d("10"), d("100"), jan1, &oldEnd)
	require.NoError(t, err)
	revised, err := NewSlab(category, decimal.Zero, nil, d("12"), d("150"), newStart, nil)
	require.NoError(t, err)
	slabs := []Slab{*old, *revised}

	charge, err := ApplySlabs(category, d("10"), slabs, oldEnd)
	require.NoError(t, err)
	assert.True(t, charge.EnergyCharge.Equal(d("100")))
	assert.True(t, charge.FixedCharge.Equal(d("100")))

	charge, err = ApplySlabs(category, d("10"), slabs, newStart)
	require.NoError(t, err)
	assert.True(t, charge.EnergyCharge.Equal(d("120")))
	assert.True(t, charge.FixedCharge.Equal(d("150")))
}

func TestNewSlab_Validation(t *testing.T) {
	category := uuid.New()

	_, err := NewSlab(category, d("-1"), nil, d("1"), decimal.Zero, jan1, nil)
	assert.Error(t, err)

	_, err = NewSlab(category, d("100"), dp("100"), d("1"), decimal.Zero, jan1, nil)
	assert.Error(t, err)

	_, err = NewSlab(category, decimal.Zero, nil, d("-1"), decimal.Zero, jan1, nil)
	assert.Error(t, err)

	before := jan1.AddDate(0, 0, -1)
	_, err = NewSlab(category, decimal.Zero, nil, d("1"), decimal.Zero, jan1, &before)
	assert.Error(t, err)
}
