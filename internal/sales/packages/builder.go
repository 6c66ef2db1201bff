// Package packages builds, deduplicates and stores priced package snapshots.
package packages

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-quotes/internal/sales/pricing"
	"github.com/odyssey-erp/odyssey-quotes/internal/sales/shared"
)

// DefaultInitialExcluded lists the services left out of the initial payment.
var DefaultInitialExcluded = []string{"gestión"}

// paymentTolerance absorbs float noise when summing installment percentages.
const paymentTolerance = 0.01

// Config controls cost stamping.
type Config struct {
	// InitialExcluded are base service names (case-insensitive) not charged in the initial payment.
	InitialExcluded []string
}

// Builder turns editable package state into snapshots.
type Builder struct {
	excluded map[string]struct{}
	validate *validator.Validate
	now      func() time.Time
	newID    func() string
}

// NewBuilder constructs a Builder.
func NewBuilder(cfg Config) *Builder {
	excludedNames := cfg.InitialExcluded
	if excludedNames == nil {
		excludedNames = DefaultInitialExcluded
	}
	b := &Builder{
		excluded: make(map[string]struct{}, len(excludedNames)),
		validate: shared.NewValidator(),
		now:      time.Now,
		newID:    func() string { return uuid.NewString() },
	}
	for _, name := range excludedNames {
		b.excluded[shared.FoldName(name)] = struct{}{}
	}
	return b
}

// Build validates the state and returns a snapshot stamped with derived costs. Nothing is persisted.
func (b *Builder) Build(state EditableState) (Snapshot, error) {
	if err := b.Validate(state).OrNil(); err != nil {
		return Snapshot{}, err
	}
	return Snapshot{
		ID:                b.newID(),
		QuotationConfigID: state.QuotationConfigID,
		Name:              strings.TrimSpace(state.Name),
		Active:            state.Active,
		BaseServices:      state.BaseServices,
		OptionalServices:  state.OptionalServices,
		Package:           state.Package,
		Costs:             b.Costs(state.PricingInput()),
		CreatedAt:         b.now().UTC(),
	}, nil
}

// Validate returns every failed precondition of Build.
func (b *Builder) Validate(state EditableState) *shared.ValidationError {
	verr := shared.ValidateStruct(b.validate, "", state)

	if strings.TrimSpace(state.Name) == "" {
		verr.Add("name", "is required")
	}
	if !state.Package.DevelopmentCost.IsPositive() {
		verr.Add("package.development_cost", "must be greater than 0")
	}
	for i, svc := range state.BaseServices {
		field := fmt.Sprintf("base_services[%d]", i)
		if strings.TrimSpace(svc.Name) == "" && !verr.Has(field+".name") {
			verr.Add(field+".name", "is required")
		}
		if !svc.Price.IsPositive() {
			verr.Add(field+".price", "must be greater than 0")
		}
		checkMonths(verr, field, svc)
	}
	for i, svc := range state.OptionalServices {
		checkMonths(verr, fmt.Sprintf("optional_services[%d]", i), svc)
	}
	if !PaymentOptionsValid(state.Package.PaymentOptions) {
		verr.Add("package.payment_options", "percentages must add up to 100")
	}
	return verr
}

func checkMonths(verr *shared.ValidationError, field string, svc pricing.Service) {
	if !MonthsValid(svc) {
		verr.Add(field+".months", fmt.Sprintf("free and paid months must add up to %d", pricing.MonthsPerYear))
	}
}

// MonthsValid reports whether a service's free and paid months cover exactly one year.
func MonthsValid(svc pricing.Service) bool {
	return svc.FreeMonths+svc.PaidMonths == pricing.MonthsPerYear
}

// PaymentOptionsValid reports whether installment percentages add up to 100. An empty plan is valid.
func PaymentOptionsValid(options []pricing.PaymentOption) bool {
	if len(options) == 0 {
		return true
	}
	var sum float64
	for _, opt := range options {
		if opt.Percent < 0 {
			return false
		}
		sum += opt.Percent
	}
	return math.Abs(sum-100) <= paymentTolerance
}

// Costs stamps the initial, first-year and second-year costs.
//
//	initial     = discounted development + monthly price of every base service not excluded
//	first year  = discounted development + sum(price * paid months) over base and optional services
//	second year = sum(price * 12) over base and optional services
func (b *Builder) Costs(in pricing.Input) Costs {
	preview := pricing.Compute(in)
	devNet := preview.Development.Net
	twelve := decimal.NewFromInt(pricing.MonthsPerYear)

	initial := devNet
	firstYear := devNet
	secondYear := decimal.Zero
	for _, svc := range in.BaseServices {
		price := shared.NonNegative(svc.Price)
		if !b.isExcluded(svc.Name) {
			initial = initial.Add(price)
		}
		firstYear = firstYear.Add(price.Mul(decimal.NewFromInt(int64(svc.PaidMonths))))
		secondYear = secondYear.Add(price.Mul(twelve))
	}
	for _, svc := range in.OptionalServices {
		price := shared.NonNegative(svc.Price)
		firstYear = firstYear.Add(price.Mul(decimal.NewFromInt(int64(svc.PaidMonths))))
		secondYear = secondYear.Add(price.Mul(twelve))
	}
	return Costs{Initial: initial, FirstYear: firstYear, SecondYear: secondYear}
}

func (b *Builder) isExcluded(name string) bool {
	_, ok := b.excluded[shared.FoldName(name)]
	return ok
}
