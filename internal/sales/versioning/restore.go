package versioning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/odyssey-erp/odyssey-quotes/internal/sales/diff"
	"github.com/odyssey-erp/odyssey-quotes/internal/sales/quotations"
)

// ErrAlreadyActive rejects restoring the version that is already active.
var ErrAlreadyActive = errors.New("version is already active")

// RestoreResult is the comparison shown to the decider and, when confirmed, the save outcome.
type RestoreResult struct {
	Differences []diff.Difference `json:"differences"`
	Choice      string            `json:"choice"`
	Outcome     *Outcome          `json:"outcome,omitempty"`
}

// Restorer brings back the contents of an older version as a new version. History is never
// rewritten.
type Restorer struct {
	coordinator *Coordinator
	logger      *slog.Logger
}

func NewRestorer(coordinator *Coordinator, logger *slog.Logger) *Restorer {
	return &Restorer{coordinator: coordinator, logger: logger}
}

// Restore compares versionID with the active version of its quotation and, if the decider
// confirms, saves its contents on top of the active version.
func (r *Restorer) Restore(ctx context.Context, versionID string, decider diff.Decider) (*RestoreResult, error) {
	view, err := r.coordinator.Workspace().Refresh(ctx, r.coordinator.saga.store)
	if err != nil {
		return nil, err
	}
	target := quotations.Find(view.Quotations, versionID)
	if target == nil {
		return nil, fmt.Errorf("version %s: %w", versionID, quotations.ErrNotFound)
	}
	active := view.Active(target.BaseNumber)
	if active == nil {
		return nil, fmt.Errorf("active version of %s: %w", target.BaseNumber, quotations.ErrNotFound)
	}
	if active.ID == target.ID {
		return nil, ErrAlreadyActive
	}

	diffs, err := diff.Compare(quotations.CompareFields, active, target)
	if err != nil {
		return nil, err
	}

	choice := decider.Decide(ctx, diff.Decision{Kind: "restore", Differences: diffs})
	result := &RestoreResult{Differences: diffs, Choice: choice.String()}
	if choice != diff.ChoiceConfirm {
		return result, nil
	}

	r.logger.Info("restoring quotation version",
		slog.String("base_number", target.BaseNumber),
		slog.Int("from_version", target.VersionNumber),
		slog.Int("onto_version", active.VersionNumber))

	outcome, err := r.coordinator.Save(ctx, Request{
		Base:        *active,
		Fields:      target.Fields,
		EditorState: target.EditorState,
		Templates:   target.Templates,
	})
	result.Outcome = outcome
	return result, err
}
