package pricing

import "github.com/shopspring/decimal"

// MonthsPerYear is the billing horizon of every service: FreeMonths + PaidMonths must equal it.
const MonthsPerYear = 12

// Service is a recurring service line priced per month.
type Service struct {
	ID         string          `json:"id"`
	Name       string          `json:"name" validate:"required,max=200"`
	Price      decimal.Decimal `json:"price"`
	FreeMonths int             `json:"free_months" validate:"gte=0,lte=12"`
	PaidMonths int             `json:"paid_months" validate:"gte=0,lte=12"`
}

// DiscountKind selects which of the mutually exclusive discount modes is active.
type DiscountKind string

const (
	DiscountNone     DiscountKind = "none"
	DiscountGeneral  DiscountKind = "general"
	DiscountGranular DiscountKind = "granular"
)

// Categories flags which cost categories a general discount applies to.
type Categories struct {
	Development      bool `json:"development"`
	BaseServices     bool `json:"base_services"`
	OptionalServices bool `json:"optional_services"`
}

// GeneralDiscount is a single percentage applied to the selected categories.
type GeneralDiscount struct {
	Percent   float64    `json:"percent"`
	AppliesTo Categories `json:"applies_to"`
}

// GranularDiscount holds per-line percentages keyed by service ID.
type GranularDiscount struct {
	Development      float64            `json:"development"`
	BaseServices     map[string]float64 `json:"base_services,omitempty"`
	OptionalServices map[string]float64 `json:"optional_services,omitempty"`
}

// DiscountConfig is the discount declaration of a package. SinglePayment only ever touches the
// development cost; Direct is applied once to the subtotal.
type DiscountConfig struct {
	Kind          DiscountKind     `json:"kind"`
	General       GeneralDiscount  `json:"general"`
	Granular      GranularDiscount `json:"granular"`
	SinglePayment float64          `json:"single_payment"`
	Direct        float64          `json:"direct"`
}

// PaymentOption is one installment of a payment plan.
type PaymentOption struct {
	Description string  `json:"description"`
	Percent     float64 `json:"percent"`
}

// Package is the commercial block of a package snapshot.
type Package struct {
	DevelopmentCost  decimal.Decimal `json:"development_cost"`
	Discounts        DiscountConfig  `json:"discounts"`
	PaymentOptions   []PaymentOption `json:"payment_options,omitempty"`
	PreferredMethods []string        `json:"preferred_methods,omitempty"`
	Description      string          `json:"description,omitempty"`
	Tagline          string          `json:"tagline,omitempty"`
}

// Input is everything the engine needs to price a package.
type Input struct {
	DevelopmentCost  decimal.Decimal
	BaseServices     []Service
	OptionalServices []Service
	Discounts        DiscountConfig
}

// LineAmount is the priced view of a single line.
type LineAmount struct {
	ID              string          `json:"id,omitempty"`
	Name            string          `json:"name,omitempty"`
	Original        decimal.Decimal `json:"original"`
	Net             decimal.Decimal `json:"net"`
	DiscountPercent float64         `json:"discount_percent"`
}

// CategoryTotal aggregates the lines of one service category.
type CategoryTotal struct {
	Lines    []LineAmount    `json:"lines"`
	Original decimal.Decimal `json:"original"`
	Net      decimal.Decimal `json:"net"`
}

// Preview is the priced result. No amount is rounded.
type Preview struct {
	Development LineAmount `json:"development"`
	// DevelopmentLumpSum is the development net after the single payment discount. The caller
	// decides whether the quote is a lump-sum quote.
	DevelopmentLumpSum    decimal.Decimal `json:"development_lump_sum"`
	SinglePaymentPercent  float64         `json:"single_payment_percent"`
	BaseServices          CategoryTotal   `json:"base_services"`
	OptionalServices      CategoryTotal   `json:"optional_services"`
	Subtotal              decimal.Decimal `json:"subtotal"`
	DirectDiscountPercent float64         `json:"direct_discount_percent"`
	DirectDiscountAmount  decimal.Decimal `json:"direct_discount_amount"`
	Total                 decimal.Decimal `json:"total"`
	GrossTotal            decimal.Decimal `json:"gross_total"`
	TotalSavings          decimal.Decimal `json:"total_savings"`
	SavingsPercent        decimal.Decimal `json:"savings_percent"`
}
