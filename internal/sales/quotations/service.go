package quotations

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-quotes/internal/sales/shared"
)

type Service struct {
	repo     Repository
	validate *validator.Validate
	logger   *slog.Logger
	now      func() time.Time
}

func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{
		repo:     repo,
		validate: shared.NewValidator(),
		logger:   logger,
		now:      time.Now,
	}
}

// ValidateFields checks general-info completeness and the email, phone and date-range formats.
func ValidateFields(validate *validator.Validate, f Fields) *shared.ValidationError {
	return shared.ValidateStruct(validate, "fields", f)
}

// Create starts a new quotation: a fresh base number at version 1, active.
func (s *Service) Create(ctx context.Context, req CreateQuotationRequest) (*Quotation, error) {
	if err := ValidateFields(s.validate, req.Fields).OrNil(); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	baseNumber, err := s.repo.GenerateBaseNumber(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("generate base number: %w", err)
	}

	q := Quotation{
		ID:            uuid.NewString(),
		BaseNumber:    baseNumber,
		VersionNumber: 1,
		IsActive:      true,
		Fields:        req.Fields,
		EditorState:   req.EditorState,
		Templates:     req.Templates,
		CreatedAt:     now,
	}
	if err := s.repo.Create(ctx, q); err != nil {
		return nil, fmt.Errorf("create quotation: %w", err)
	}

	s.logger.Info("quotation created",
		slog.String("id", q.ID),
		slog.String("number", q.Number()))
	return &q, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Quotation, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, req ListQuotationsRequest) ([]Quotation, error) {
	return s.repo.List(ctx, req)
}

// Versions returns every version of the quotation that id belongs to, oldest first.
func (s *Service) Versions(ctx context.Context, id string) ([]Quotation, error) {
	q, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.repo.List(ctx, ListQuotationsRequest{BaseNumber: &q.BaseNumber})
}
