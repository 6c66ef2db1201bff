package packages

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-quotes/internal/sales/pricing"
)

// Costs are derived from the package on every build and never edited by hand.
type Costs struct {
	Initial    decimal.Decimal `json:"initial"`
	FirstYear  decimal.Decimal `json:"first_year"`
	SecondYear decimal.Decimal `json:"second_year"`
}

// Snapshot is an immutable priced package attached to one quotation version.
type Snapshot struct {
	ID                string            `json:"id"`
	QuotationConfigID string            `json:"quotation_config_id"`
	Name              string            `json:"name"`
	Active            bool              `json:"active"`
	BaseServices      []pricing.Service `json:"base_services"`
	OptionalServices  []pricing.Service `json:"optional_services"`
	Package           pricing.Package   `json:"package"`
	Costs             Costs             `json:"costs"`
	CreatedAt         time.Time         `json:"created_at"`
}

// Unlinked reports an active snapshot that lost its quotation reference.
func (s Snapshot) Unlinked() bool {
	return s.Active && s.QuotationConfigID == ""
}

// PricingInput projects the snapshot into the pricing engine input.
func (s Snapshot) PricingInput() pricing.Input {
	return pricing.Input{
		DevelopmentCost:  s.Package.DevelopmentCost,
		BaseServices:     s.BaseServices,
		OptionalServices: s.OptionalServices,
		Discounts:        s.Package.Discounts,
	}
}

// EditableState is the package being edited, before it becomes a snapshot.
type EditableState struct {
	QuotationConfigID string            `json:"quotation_config_id"`
	Name              string            `json:"name" validate:"max=200"`
	Active            bool              `json:"active"`
	BaseServices      []pricing.Service `json:"base_services" validate:"dive"`
	OptionalServices  []pricing.Service `json:"optional_services" validate:"dive"`
	Package           pricing.Package   `json:"package"`
}

// PricingInput projects the editable state into the pricing engine input.
func (e EditableState) PricingInput() pricing.Input {
	return pricing.Input{
		DevelopmentCost:  e.Package.DevelopmentCost,
		BaseServices:     e.BaseServices,
		OptionalServices: e.OptionalServices,
		Discounts:        e.Package.Discounts,
	}
}
