package versioning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/odyssey-erp/odyssey-quotes/internal/sales/quotations"
)

// RollbackResult reports how compensation went. VerifiedClean is set when a follow-up read showed
// the prior version active again.
type RollbackResult struct {
	OK            bool   `json:"ok"`
	VerifiedClean bool   `json:"verified_clean"`
	DeletedID     string `json:"deleted_id,omitempty"`
	BaseNumber    string `json:"base_number,omitempty"`
	Err           error  `json:"-"`
}

// Compensator undoes a partially applied save.
type Compensator struct {
	store     Store
	workspace *Workspace
	logger    *slog.Logger
}

func NewCompensator(store Store, workspace *Workspace, logger *slog.Logger) *Compensator {
	return &Compensator{store: store, workspace: workspace, logger: logger}
}

// Rollback deletes createdID and reactivates priorID. When createdID is unknown the active
// version of the quotation is read back: if it differs from priorID it is treated as an orphan of
// this save and rolled back the same way. Errors are returned in the result, never panicked.
func (c *Compensator) Rollback(ctx context.Context, createdID, priorID string) (result RollbackResult) {
	defer func() {
		if r := recover(); r != nil {
			result = RollbackResult{Err: fmt.Errorf("rollback panicked: %v", r)}
		}
	}()

	if priorID == "" {
		return RollbackResult{Err: errors.New("rollback: prior version id is required")}
	}

	target := createdID
	if target == "" {
		orphan, baseNumber, err := c.findOrphan(ctx, priorID)
		result.BaseNumber = baseNumber
		if err != nil {
			result.Err = err
			return result
		}
		if orphan == "" {
			c.logger.Info("no orphan version to roll back",
				slog.String("base_number", baseNumber),
				slog.String("prior_id", priorID))
			result.OK = true
			result.VerifiedClean = true
			return result
		}
		target = orphan
		c.logger.Warn("rolling back orphan version",
			slog.String("base_number", baseNumber),
			slog.String("orphan_id", target),
			slog.String("prior_id", priorID))
	}

	if err := c.store.RollbackVersion(ctx, target, priorID); err != nil {
		result.Err = &NetworkError{Op: "rollback version", Err: err}
		return result
	}
	result.OK = true
	result.DeletedID = target

	view, err := c.workspace.Refresh(ctx, c.store)
	if err != nil {
		c.logger.Warn("refresh after rollback failed",
			slog.String("deleted_id", target),
			slog.Any("error", err))
		return result
	}
	if prior := quotations.Find(view.Quotations, priorID); prior != nil {
		result.BaseNumber = prior.BaseNumber
		active := view.Active(prior.BaseNumber)
		result.VerifiedClean = active != nil && active.ID == priorID &&
			quotations.Find(view.Quotations, target) == nil
	}

	c.logger.Info("version rolled back",
		slog.String("base_number", result.BaseNumber),
		slog.String("deleted_id", target),
		slog.String("prior_id", priorID),
		slog.Bool("verified_clean", result.VerifiedClean))
	return result
}

// findOrphan reads the active version of priorID's quotation. Any active version other than
// priorID is returned as the orphan.
func (c *Compensator) findOrphan(ctx context.Context, priorID string) (orphanID, baseNumber string, err error) {
	view, err := c.workspace.Refresh(ctx, c.store)
	if err != nil {
		return "", "", fmt.Errorf("verify active version: %w", err)
	}
	prior := quotations.Find(view.Quotations, priorID)
	if prior == nil {
		return "", "", fmt.Errorf("prior version %s: %w", priorID, quotations.ErrNotFound)
	}
	active := view.Active(prior.BaseNumber)
	if active == nil || active.ID == priorID {
		return "", prior.BaseNumber, nil
	}
	return active.ID, prior.BaseNumber, nil
}
