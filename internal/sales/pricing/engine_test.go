package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.Truef(t, dec(want).Equal(got), "want %s, got %s", want, got.String())
}

func sampleInput(cfg DiscountConfig) Input {
	return Input{
		DevelopmentCost: dec("1000"),
		BaseServices: []Service{
			{ID: "hosting", Name: "Hosting", Price: dec("100"), FreeMonths: 0, PaidMonths: 12},
			{ID: "gestion", Name: "Gestión", Price: dec("50"), FreeMonths: 2, PaidMonths: 10},
		},
		OptionalServices: []Service{
			{ID: "seo", Name: "SEO", Price: dec("200"), FreeMonths: 0, PaidMonths: 12},
		},
		Discounts: cfg,
	}
}

func TestComputeWithoutDiscount(t *testing.T) {
	preview := Compute(Input{DevelopmentCost: dec("1000"), Discounts: DiscountConfig{Kind: DiscountNone}})

	assertDecimal(t, "1000", preview.Development.Net)
	assertDecimal(t, "1000", preview.Total)
	assertDecimal(t, "0", preview.TotalSavings)
	assertDecimal(t, "0", preview.SavingsPercent)
}

func TestComputeGeneralDiscountRespectsCategories(t *testing.T) {
	preview := Compute(sampleInput(DiscountConfig{
		Kind: DiscountGeneral,
		General: GeneralDiscount{
			Percent:   10,
			AppliesTo: Categories{Development: true, BaseServices: true},
		},
	}))

	assertDecimal(t, "900", preview.Development.Net)
	assert.Equal(t, 10.0, preview.Development.DiscountPercent)
	assertDecimal(t, "150", preview.BaseServices.Original)
	assertDecimal(t, "135", preview.BaseServices.Net)
	assertDecimal(t, "200", preview.OptionalServices.Net)
	assert.Equal(t, 0.0, preview.OptionalServices.Lines[0].DiscountPercent)
	assertDecimal(t, "1235", preview.Subtotal)
	assertDecimal(t, "1235", preview.Total)
	assertDecimal(t, "1350", preview.GrossTotal)
	assertDecimal(t, "115", preview.TotalSavings)
}

func TestComputeGranularDiscount(t *testing.T) {
	preview := Compute(sampleInput(DiscountConfig{
		Kind: DiscountGranular,
		// General values are ignored while granular is selected.
		General: GeneralDiscount{Percent: 50, AppliesTo: Categories{Development: true, BaseServices: true, OptionalServices: true}},
		Granular: GranularDiscount{
			Development:      20,
			BaseServices:     map[string]float64{"hosting": 50},
			OptionalServices: map[string]float64{"seo": 25},
		},
	}))

	assertDecimal(t, "800", preview.Development.Net)
	require.Len(t, preview.BaseServices.Lines, 2)
	assertDecimal(t, "50", preview.BaseServices.Lines[0].Net)
	assertDecimal(t, "50", preview.BaseServices.Lines[1].Net)
	assert.Equal(t, 0.0, preview.BaseServices.Lines[1].DiscountPercent)
	assertDecimal(t, "150", preview.OptionalServices.Net)
	assertDecimal(t, "1050", preview.Total)
}

func TestComputeSinglePaymentOnlyTouchesDevelopment(t *testing.T) {
	preview := Compute(sampleInput(DiscountConfig{
		Kind:          DiscountGeneral,
		General:       GeneralDiscount{Percent: 10, AppliesTo: Categories{Development: true}},
		SinglePayment: 5,
	}))

	assertDecimal(t, "900", preview.Development.Net)
	assertDecimal(t, "855", preview.DevelopmentLumpSum)
	assertDecimal(t, "150", preview.BaseServices.Net)
	assertDecimal(t, "1250", preview.Subtotal)
}

func TestComputeDirectDiscountAppliesOnceToSubtotal(t *testing.T) {
	preview := Compute(sampleInput(DiscountConfig{Kind: DiscountNone, Direct: 10}))

	assertDecimal(t, "1350", preview.Subtotal)
	assertDecimal(t, "135", preview.DirectDiscountAmount)
	assertDecimal(t, "1215", preview.Total)
	assertDecimal(t, "135", preview.TotalSavings)
	assertDecimal(t, "10", preview.SavingsPercent)
}

func TestComputeClampsPercentagesAndAmounts(t *testing.T) {
	preview := Compute(Input{
		DevelopmentCost: dec("-10"),
		BaseServices:    []Service{{ID: "a", Name: "A", Price: dec("100"), PaidMonths: 12}},
		Discounts: DiscountConfig{
			Kind:     DiscountGranular,
			Granular: GranularDiscount{BaseServices: map[string]float64{"a": 150}},
			Direct:   -20,
		},
	})

	assertDecimal(t, "0", preview.Development.Original)
	assertDecimal(t, "0", preview.BaseServices.Net)
	assert.Equal(t, 100.0, preview.BaseServices.Lines[0].DiscountPercent)
	assert.Equal(t, 0.0, preview.DirectDiscountPercent)
	assertDecimal(t, "100", preview.SavingsPercent)
}

func TestComputeZeroGrossHasZeroSavingsPercent(t *testing.T) {
	preview := Compute(Input{Discounts: DiscountConfig{Kind: DiscountGeneral, General: GeneralDiscount{Percent: 30}}})

	assertDecimal(t, "0", preview.GrossTotal)
	assertDecimal(t, "0", preview.SavingsPercent)
}

func TestComputeIsIdempotent(t *testing.T) {
	in := sampleInput(DiscountConfig{
		Kind:     DiscountGranular,
		Granular: GranularDiscount{Development: 12.5, BaseServices: map[string]float64{"hosting": 33}},
		Direct:   7,
	})

	first := Compute(in)
	second := Compute(in)

	assert.Equal(t, first, second)
}
