package packages

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-quotes/internal/sales/pricing"
	"github.com/odyssey-erp/odyssey-quotes/internal/sales/shared"
)

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.Truef(t, dec(want).Equal(got), "want %s, got %s", want, got.String())
}

func newTestBuilder() *Builder {
	b := NewBuilder(Config{})
	b.now = func() time.Time { return time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC) }
	b.newID = func() string { return "pkg-1" }
	return b
}

func validState() EditableState {
	return EditableState{
		QuotationConfigID: "q-1",
		Name:              "Plan X",
		Active:            true,
		BaseServices: []pricing.Service{
			{ID: "hosting", Name: "Hosting", Price: dec("100"), FreeMonths: 3, PaidMonths: 9},
		},
		Package: pricing.Package{
			DevelopmentCost: dec("1000"),
			Discounts:       pricing.DiscountConfig{Kind: pricing.DiscountNone},
		},
	}
}

func TestBuildStampsSnapshot(t *testing.T) {
	snapshot, err := newTestBuilder().Build(validState())
	require.NoError(t, err)

	assert.Equal(t, "pkg-1", snapshot.ID)
	assert.Equal(t, "q-1", snapshot.QuotationConfigID)
	assert.Equal(t, "Plan X", snapshot.Name)
	assert.True(t, snapshot.Active)
	assert.Equal(t, time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC), snapshot.CreatedAt)
}

func TestBuildCostsFollowPaidMonths(t *testing.T) {
	snapshot, err := newTestBuilder().Build(validState())
	require.NoError(t, err)

	assertDecimal(t, "1100", snapshot.Costs.Initial)
	assertDecimal(t, "1900", snapshot.Costs.FirstYear)
	assertDecimal(t, "900", snapshot.Costs.FirstYear.Sub(dec("1000")))
	assertDecimal(t, "1200", snapshot.Costs.SecondYear)
}

func TestBuildCostsUseDiscountedDevelopment(t *testing.T) {
	state := validState()
	state.OptionalServices = []pricing.Service{{ID: "seo", Name: "SEO", Price: dec("10"), FreeMonths: 0, PaidMonths: 12}}
	state.Package.Discounts = pricing.DiscountConfig{
		Kind:    pricing.DiscountGeneral,
		General: pricing.GeneralDiscount{Percent: 10, AppliesTo: pricing.Categories{Development: true}},
	}

	snapshot, err := newTestBuilder().Build(state)
	require.NoError(t, err)

	assertDecimal(t, "1000", snapshot.Costs.Initial)
	assertDecimal(t, "1920", snapshot.Costs.FirstYear)
	assertDecimal(t, "1320", snapshot.Costs.SecondYear)
}

func TestBuildInitialCostSkipsGestion(t *testing.T) {
	state := validState()
	state.BaseServices = append(state.BaseServices,
		pricing.Service{ID: "gestion", Name: "  GESTIÓN ", Price: dec("40"), FreeMonths: 0, PaidMonths: 12})

	snapshot, err := newTestBuilder().Build(state)
	require.NoError(t, err)

	assertDecimal(t, "1100", snapshot.Costs.Initial)
	assertDecimal(t, "2380", snapshot.Costs.FirstYear)
}

func TestBuildInitialExclusionIsConfigurable(t *testing.T) {
	b := NewBuilder(Config{InitialExcluded: []string{"hosting"}})
	costs := b.Costs(validState().PricingInput())

	assertDecimal(t, "1000", costs.Initial)
}

func TestBuildRejectsInvalidState(t *testing.T) {
	state := EditableState{
		Name: "  ",
		BaseServices: []pricing.Service{
			{ID: "a", Name: "", Price: dec("0"), FreeMonths: 0, PaidMonths: 12},
		},
		OptionalServices: []pricing.Service{
			{ID: "b", Name: "Backup", Price: dec("5"), FreeMonths: 2, PaidMonths: 9},
		},
		Package: pricing.Package{DevelopmentCost: dec("0")},
	}

	_, err := newTestBuilder().Build(state)
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrValidation))

	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.True(t, verr.Has("name"))
	assert.True(t, verr.Has("package.development_cost"))
	assert.True(t, verr.Has("base_services[0].name"))
	assert.True(t, verr.Has("base_services[0].price"))
	assert.True(t, verr.Has("optional_services[0].months"))
	assert.False(t, verr.Has("base_services[0].months"))
}

func TestBuildValidatesPaymentOptions(t *testing.T) {
	cases := []struct {
		name    string
		options []pricing.PaymentOption
		valid   bool
	}{
		{name: "empty plan", options: nil, valid: true},
		{name: "adds up to 100", options: []pricing.PaymentOption{{Percent: 30}, {Percent: 70}}, valid: true},
		{name: "falls short", options: []pricing.PaymentOption{{Percent: 30}, {Percent: 50}}, valid: false},
		{name: "negative share", options: []pricing.PaymentOption{{Percent: 130}, {Percent: -30}}, valid: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			state := validState()
			state.Package.PaymentOptions = tc.options

			_, err := newTestBuilder().Build(state)
			if tc.valid {
				assert.NoError(t, err)
				return
			}
			var verr *shared.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.True(t, verr.Has("package.payment_options"))
		})
	}
}
