package packages

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/odyssey-erp/odyssey-quotes/internal/sales/pricing"
)

// CreateResult is the stored snapshot plus non-fatal warnings.
type CreateResult struct {
	Snapshot Snapshot `json:"snapshot"`
	Warnings []string `json:"warnings,omitempty"`
}

type Service struct {
	repo    Repository
	builder *Builder
	logger  *slog.Logger
}

func NewService(repo Repository, builder *Builder, logger *slog.Logger) *Service {
	return &Service{repo: repo, builder: builder, logger: logger}
}

// Preview prices an editable package without validating or storing it.
func (s *Service) Preview(state EditableState) pricing.Preview {
	return pricing.Compute(state.PricingInput())
}

// Create builds a snapshot and stores it. An equivalent snapshot of the same quotation yields a
// *DuplicateError unless force is set; a name-only match is reported as a warning.
func (s *Service) Create(ctx context.Context, state EditableState, force bool) (*CreateResult, error) {
	snapshot, err := s.builder.Build(state)
	if err != nil {
		return nil, err
	}

	existing, err := s.repo.ListByQuotation(ctx, state.QuotationConfigID)
	if err != nil {
		return nil, fmt.Errorf("list packages: %w", err)
	}

	result := &CreateResult{}
	candidate := CandidateFromState(state)
	if dup := FindDuplicate(candidate, existing); dup != nil {
		if !force {
			return nil, &DuplicateError{Existing: *dup}
		}
		s.logger.Info("creating package despite duplicate",
			slog.String("quotation_id", state.QuotationConfigID),
			slog.String("duplicate_of", dup.ID))
		result.Warnings = append(result.Warnings, fmt.Sprintf("duplicates package %s", dup.ID))
	} else if match := FindNameMatch(candidate, existing); match != nil {
		result.Warnings = append(result.Warnings, fmt.Sprintf("another package is already named %q", match.Name))
	}

	if err := s.repo.Insert(ctx, snapshot); err != nil {
		return nil, fmt.Errorf("create package: %w", err)
	}
	result.Snapshot = snapshot
	return result, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Snapshot, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) ListByQuotation(ctx context.Context, quotationID string) ([]Snapshot, error) {
	return s.repo.ListByQuotation(ctx, quotationID)
}
