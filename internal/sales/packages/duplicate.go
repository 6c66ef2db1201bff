package packages

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-quotes/internal/sales/pricing"
	"github.com/odyssey-erp/odyssey-quotes/internal/sales/shared"
)

// ErrDuplicate is matched by every *DuplicateError through errors.Is.
var ErrDuplicate = errors.New("duplicate package")

// DuplicateError reports an existing snapshot equivalent to the candidate.
type DuplicateError struct {
	Existing Snapshot
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("package %q duplicates existing package %s", e.Existing.Name, e.Existing.ID)
}

func (e *DuplicateError) Is(target error) bool {
	return target == ErrDuplicate
}

// Candidate is the comparable part of a package about to be stored.
type Candidate struct {
	// ID is skipped when scanning, so a snapshot never duplicates itself.
	ID                string
	QuotationConfigID string
	Name              string
	DevelopmentCost   decimal.Decimal
	BaseServices      []pricing.Service
	OptionalServices  []pricing.Service
}

// CandidateFromState builds a candidate from editable state.
func CandidateFromState(state EditableState) Candidate {
	return Candidate{
		QuotationConfigID: state.QuotationConfigID,
		Name:              state.Name,
		DevelopmentCost:   state.Package.DevelopmentCost,
		BaseServices:      state.BaseServices,
		OptionalServices:  state.OptionalServices,
	}
}

// CandidateFromSnapshot builds a candidate from a stored snapshot.
func CandidateFromSnapshot(s Snapshot) Candidate {
	return Candidate{
		ID:                s.ID,
		QuotationConfigID: s.QuotationConfigID,
		Name:              s.Name,
		DevelopmentCost:   s.Package.DevelopmentCost,
		BaseServices:      s.BaseServices,
		OptionalServices:  s.OptionalServices,
	}
}

// FindDuplicate returns the first snapshot of the same quotation whose name, development cost,
// base services and optional services all match the candidate, or nil.
func FindDuplicate(c Candidate, existing []Snapshot) *Snapshot {
	name := shared.FoldName(c.Name)
	for i := range existing {
		s := &existing[i]
		if !sameScope(c, s) || shared.FoldName(s.Name) != name {
			continue
		}
		if !s.Package.DevelopmentCost.Equal(c.DevelopmentCost) {
			continue
		}
		if !servicesMatch(c.BaseServices, s.BaseServices) || !servicesMatch(c.OptionalServices, s.OptionalServices) {
			continue
		}
		return s
	}
	return nil
}

// FindNameMatch returns the first snapshot of the same quotation sharing only the candidate's
// name. Such a match is not a duplicate; callers may warn about it.
func FindNameMatch(c Candidate, existing []Snapshot) *Snapshot {
	if FindDuplicate(c, existing) != nil {
		return nil
	}
	name := shared.FoldName(c.Name)
	for i := range existing {
		s := &existing[i]
		if sameScope(c, s) && shared.FoldName(s.Name) == name {
			return s
		}
	}
	return nil
}

func sameScope(c Candidate, s *Snapshot) bool {
	if c.ID != "" && s.ID == c.ID {
		return false
	}
	return s.QuotationConfigID == c.QuotationConfigID
}

// servicesMatch compares two service sets as multisets: same size and a one-to-one pairing of
// identical name, price, free months and paid months.
func servicesMatch(current, existing []pricing.Service) bool {
	if len(current) != len(existing) {
		return false
	}
	used := make([]bool, len(existing))
	for _, cur := range current {
		found := false
		for j, ex := range existing {
			if used[j] || !sameService(cur, ex) {
				continue
			}
			used[j] = true
			found = true
			break
		}
		if !found {
			return false
		}
	}
	return true
}

func sameService(a, b pricing.Service) bool {
	return a.Name == b.Name &&
		a.Price.Equal(b.Price) &&
		a.FreeMonths == b.FreeMonths &&
		a.PaidMonths == b.PaidMonths
}
