package quotations

import (
	"fmt"
	"time"

	"github.com/odyssey-erp/odyssey-quotes/internal/sales/diff"
	"github.com/odyssey-erp/odyssey-quotes/internal/sales/pricing"
)

// Fields is the client and provider metadata of a quotation.
type Fields struct {
	Title       string    `json:"title" validate:"required,max=200"`
	Company     string    `json:"company" validate:"required,max=200"`
	ContactName string    `json:"contact_name" validate:"required,max=200"`
	Email       string    `json:"email" validate:"required,email"`
	Phone       string    `json:"phone" validate:"required,phone"`
	Provider    string    `json:"provider,omitempty" validate:"max=200"`
	IssuedAt    time.Time `json:"issued_at" validate:"required"`
	ValidFrom   time.Time `json:"valid_from" validate:"required"`
	ValidUntil  time.Time `json:"valid_until" validate:"required,gtfield=ValidFrom"`
	HeroText    string    `json:"hero_text,omitempty"`
	Notes       string    `json:"notes,omitempty"`
}

// EditorState is an opaque pointer to where the operator left off.
type EditorState struct {
	LastPackageID string `json:"last_package_id,omitempty"`
	ActiveTab     string `json:"active_tab,omitempty"`
}

// Templates are carried forward unchanged to every new version.
type Templates struct {
	BaseServices     []pricing.Service       `json:"base_services"`
	OptionalServices []pricing.Service       `json:"optional_services"`
	PaymentOptions   []pricing.PaymentOption `json:"payment_options"`
	Discounts        pricing.DiscountConfig  `json:"discounts"`
}

// Quotation is one immutable version of a quotation document.
type Quotation struct {
	ID            string      `json:"id"`
	BaseNumber    string      `json:"base_number"`
	VersionNumber int         `json:"version_number"`
	IsActive      bool        `json:"is_active"`
	Fields        Fields      `json:"fields"`
	EditorState   EditorState `json:"editor_state"`
	Templates     Templates   `json:"templates"`
	CreatedAt     time.Time   `json:"created_at"`
}

// Number is the display number of the version.
func (q Quotation) Number() string {
	return VersionLabel(q.BaseNumber, q.VersionNumber)
}

// VersionLabel formats a base number and version as a display number.
func VersionLabel(baseNumber string, version int) string {
	return fmt.Sprintf("%s-v%d", baseNumber, version)
}

// NewVersion is the payload of the create-version operation.
type NewVersion struct {
	BaseNumber     string      `json:"base_number"`
	PriorVersionID string      `json:"prior_version_id"`
	VersionNumber  int         `json:"version_number"`
	Fields         Fields      `json:"fields"`
	EditorState    EditorState `json:"editor_state"`
	Templates      Templates   `json:"templates"`
}

// CreatedVersion is the create-version response.
type CreatedVersion struct {
	ID                 string `json:"id"`
	VersionNumber      int    `json:"version_number"`
	Number             string `json:"number"`
	ReassignedPackages int    `json:"reassigned_packages"`
}

// CompareFields is the field set used when comparing two versions before a restore.
var CompareFields = []diff.Field{
	{Path: "fields.title", Label: "Title"},
	{Path: "fields.company", Label: "Company"},
	{Path: "fields.contact_name", Label: "Contact"},
	{Path: "fields.email", Label: "Email"},
	{Path: "fields.phone", Label: "Phone"},
	{Path: "fields.provider", Label: "Provider"},
	{Path: "fields.valid_from", Label: "Valid from"},
	{Path: "fields.valid_until", Label: "Valid until"},
	{Path: "fields.hero_text", Label: "Hero text"},
	{Path: "fields.notes", Label: "Notes"},
	{Path: "templates.base_services", Label: "Base services"},
	{Path: "templates.optional_services", Label: "Optional services"},
	{Path: "templates.payment_options", Label: "Payment options"},
	{Path: "templates.discounts", Label: "Discounts"},
}

// ActiveOf returns the active version of baseNumber among list, or nil.
func ActiveOf(list []Quotation, baseNumber string) *Quotation {
	for i := range list {
		if list[i].BaseNumber == baseNumber && list[i].IsActive {
			return &list[i]
		}
	}
	return nil
}

// Find returns the quotation with id among list, or nil.
func Find(list []Quotation, id string) *Quotation {
	for i := range list {
		if list[i].ID == id {
			return &list[i]
		}
	}
	return nil
}
