package versioning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-quotes/internal/sales/packages"
	"github.com/odyssey-erp/odyssey-quotes/internal/sales/pricing"
	"github.com/odyssey-erp/odyssey-quotes/internal/sales/quotations"
	"github.com/odyssey-erp/odyssey-quotes/internal/sales/shared"
)

// Config tunes the save saga.
type Config struct {
	// AbortInFlight cancels the context of an in-flight store call when the save is cancelled.
	// Rollback never depends on the abort taking effect.
	AbortInFlight bool
}

// Request is one save of the quotation version Base with edited contents.
type Request struct {
	Base        quotations.Quotation
	Fields      quotations.Fields
	EditorState quotations.EditorState
	Templates   quotations.Templates
}

// Outcome summarises a finished saga run.
type Outcome struct {
	State              State               `json:"state"`
	BaseNumber         string              `json:"base_number"`
	PriorID            string              `json:"prior_id"`
	VersionID          string              `json:"version_id,omitempty"`
	VersionNumber      int                 `json:"version_number,omitempty"`
	Number             string              `json:"number,omitempty"`
	ReassignedPackages int                 `json:"reassigned_packages"`
	LinkedPackages     int                 `json:"linked_packages,omitempty"`
	Rollback           *RollbackResult     `json:"rollback,omitempty"`
	Steps              map[Step]StepStatus `json:"steps"`
}

// Saga saves a quotation as a new version: Validating, CreatingVersion, ReassigningPackages,
// Activating and Finalizing. A cancellation or store failure after a version may exist is handed
// to the Compensator.
type Saga struct {
	store       Store
	workspace   *Workspace
	compensator *Compensator
	validate    *validator.Validate
	cfg         Config
	logger      *slog.Logger
	now         func() time.Time
}

func NewSaga(store Store, workspace *Workspace, cfg Config, logger *slog.Logger) *Saga {
	return &Saga{
		store:       store,
		workspace:   workspace,
		compensator: NewCompensator(store, workspace, logger),
		validate:    shared.NewValidator(),
		cfg:         cfg,
		logger:      logger,
		now:         time.Now,
	}
}

// Run executes one save. The returned Outcome is non-nil whenever the saga got past validation.
// Errors are *shared.ValidationError, *CancelledError, *NetworkError or *RollbackFailure.
func (s *Saga) Run(ctx context.Context, req Request, token *CancelToken) (*Outcome, error) {
	if token == nil {
		token = NewCancelToken()
	}
	sc := NewSagaContext(req.Base.ID)
	out := &Outcome{BaseNumber: req.Base.BaseNumber, PriorID: req.Base.ID}
	log := s.logger.With(slog.String("base_number", req.Base.BaseNumber))

	// Validating
	sc.Enter(StepValidating)
	view := s.workspace.View()
	if err := s.validateRequest(req, view).OrNil(); err != nil {
		sc.Finish(StatusError)
		out.State = StateFailed
		out.Steps = sc.Statuses()
		return out, err
	}
	out.LinkedPackages = s.linkOrphanSnapshots(ctx, req.Base.ID, view, log)
	sc.Finish(StatusDone)
	log.Debug("save step done", slog.String("step", string(StepValidating)))

	if token.Cancelled() {
		return s.compensate(ctx, sc, out, &CancelledError{Step: StepValidating}, log)
	}

	// CreatingVersion
	sc.Enter(StepCreatingVersion)
	created, err := s.createVersion(ctx, sc, req, token)
	if err != nil {
		if token.Cancelled() {
			return s.compensate(ctx, sc, out, &CancelledError{Step: StepCreatingVersion}, log)
		}
		netErr := &NetworkError{Op: "create version", Err: err}
		if errors.Is(err, quotations.ErrVersionConflict) {
			sc.Finish(StatusError)
			out.State = StateFailed
			out.Steps = sc.Statuses()
			return out, netErr
		}
		return s.compensate(ctx, sc, out, netErr, log)
	}
	out.VersionID = created.ID
	out.VersionNumber = created.VersionNumber
	out.Number = created.Number
	out.ReassignedPackages = created.ReassignedPackages
	if token.Cancelled() {
		return s.compensate(ctx, sc, out, &CancelledError{Step: StepCreatingVersion}, log)
	}
	sc.Finish(StatusDone)
	log.Debug("save step done", slog.String("step", string(StepCreatingVersion)), slog.String("version_id", created.ID))

	// ReassigningPackages
	sc.Enter(StepReassigningPackages)
	if token.Cancelled() {
		return s.compensate(ctx, sc, out, &CancelledError{Step: StepReassigningPackages}, log)
	}
	callCtx, cancel := s.callContext(ctx, token)
	_, err = s.workspace.Refresh(callCtx, s.store)
	cancel()
	if token.Cancelled() {
		return s.compensate(ctx, sc, out, &CancelledError{Step: StepReassigningPackages}, log)
	}
	if err != nil {
		return s.compensate(ctx, sc, out, err, log)
	}
	sc.Finish(StatusDone)
	log.Debug("save step done", slog.String("step", string(StepReassigningPackages)))

	// Activating
	sc.Enter(StepActivating)
	if token.Cancelled() {
		return s.compensate(ctx, sc, out, &CancelledError{Step: StepActivating}, log)
	}
	callCtx, cancel = s.callContext(ctx, token)
	err = s.store.DeactivateOthers(callCtx, created.ID)
	cancel()
	if token.Cancelled() {
		return s.compensate(ctx, sc, out, &CancelledError{Step: StepActivating}, log)
	}
	if err != nil {
		return s.compensate(ctx, sc, out, &NetworkError{Op: "deactivate other versions", Err: err}, log)
	}
	sc.Finish(StatusDone)
	log.Debug("save step done", slog.String("step", string(StepActivating)))

	// Finalizing
	sc.Enter(StepFinalizing)
	sc.Finish(StatusDone)
	out.State = StateCommitted
	out.Steps = sc.Statuses()
	log.Info("quotation version saved",
		slog.String("version_id", out.VersionID),
		slog.String("number", out.Number),
		slog.Int("reassigned_packages", out.ReassignedPackages))
	return out, nil
}

// createVersion records the new id in sc as soon as the store answers, before anything else
// can observe the saga.
func (s *Saga) createVersion(ctx context.Context, sc *SagaContext, req Request, token *CancelToken) (*quotations.CreatedVersion, error) {
	callCtx, cancel := s.callContext(ctx, token)
	defer cancel()

	created, err := s.store.CreateVersion(callCtx, quotations.NewVersion{
		BaseNumber:     req.Base.BaseNumber,
		PriorVersionID: req.Base.ID,
		VersionNumber:  req.Base.VersionNumber + 1,
		Fields:         req.Fields,
		EditorState:    req.EditorState,
		Templates:      req.Templates,
	})
	if created != nil && created.ID != "" {
		sc.SetCreated(created.ID)
	}
	if err != nil {
		return nil, err
	}
	if created == nil || created.ID == "" {
		return nil, errors.New("store returned no version id")
	}
	return created, nil
}

func (s *Saga) callContext(ctx context.Context, token *CancelToken) (context.Context, context.CancelFunc) {
	if s.cfg.AbortInFlight {
		return token.Context(ctx)
	}
	return context.WithCancel(ctx)
}

// compensate rolls back with the ids known so far. Rollback runs detached from ctx so a
// cancelled request still gets compensated.
func (s *Saga) compensate(ctx context.Context, sc *SagaContext, out *Outcome, cause error, log *slog.Logger) (*Outcome, error) {
	var cancelled *CancelledError
	if errors.As(cause, &cancelled) {
		sc.Finish(StatusCancelled)
	} else {
		sc.Finish(StatusError)
	}

	createdID, priorID := sc.IDs()
	log.Warn("save interrupted, rolling back",
		slog.String("step", string(sc.Current())),
		slog.String("created_id", createdID),
		slog.String("prior_id", priorID),
		slog.Any("cause", cause))

	result := s.compensator.Rollback(context.WithoutCancel(ctx), createdID, priorID)
	out.Rollback = &result
	out.Steps = sc.Statuses()
	if !result.OK {
		out.State = StateFailed
		log.Error("rollback failed, quotation needs manual verification",
			slog.String("created_id", createdID),
			slog.String("prior_id", priorID),
			slog.Any("error", result.Err))
		return out, &RollbackFailure{
			BaseNumber: out.BaseNumber,
			CreatedID:  createdID,
			PriorID:    priorID,
			Cause:      cause,
			Err:        result.Err,
		}
	}
	out.State = StateRolledBack
	return out, cause
}

var monthsMessage = fmt.Sprintf("free and paid months must add up to %d", pricing.MonthsPerYear)

// validateRequest runs the general info, services, packages and business-rule checks.
func (s *Saga) validateRequest(req Request, view View) *shared.ValidationError {
	verr := quotations.ValidateFields(s.validate, req.Fields)

	hasPricedBase := false
	for i, svc := range req.Templates.BaseServices {
		if svc.Price.GreaterThan(decimal.Zero) {
			hasPricedBase = true
		}
		if !packages.MonthsValid(svc) {
			verr.Add(fmt.Sprintf("templates.base_services[%d].months", i), monthsMessage)
		}
	}
	if !hasPricedBase {
		verr.Add("templates.base_services", "at least one base service with a positive price is required")
	}
	for i, svc := range req.Templates.OptionalServices {
		if !packages.MonthsValid(svc) {
			verr.Add(fmt.Sprintf("templates.optional_services[%d].months", i), monthsMessage)
		}
	}
	if !packages.PaymentOptionsValid(req.Templates.PaymentOptions) {
		verr.Add("templates.payment_options", "percentages must add up to 100")
	}

	active := activePackages(view, req.Base.ID)
	if len(active) == 0 {
		verr.Add("packages", "at least one active package is required")
	}

	if !req.Fields.ValidUntil.IsZero() && req.Fields.ValidUntil.Before(s.now()) {
		verr.Add("fields.valid_until", "has expired")
	}
	seen := make(map[string]struct{}, len(active))
	for _, p := range active {
		key := shared.FoldName(p.Name)
		if _, dup := seen[key]; dup {
			verr.Add("packages", fmt.Sprintf("package name %q is used more than once", p.Name))
			continue
		}
		seen[key] = struct{}{}
	}
	return verr
}

// activePackages returns active snapshots attached to quotationID or not attached at all.
func activePackages(view View, quotationID string) []packages.Snapshot {
	var out []packages.Snapshot
	for _, p := range view.Snapshots {
		if p.Active && (p.QuotationConfigID == quotationID || p.Unlinked()) {
			out = append(out, p)
		}
	}
	return out
}

// linkOrphanSnapshots attaches active unlinked snapshots to quotationID. Failures are logged and
// retried on the next save.
func (s *Saga) linkOrphanSnapshots(ctx context.Context, quotationID string, view View, log *slog.Logger) int {
	linked := 0
	for _, p := range view.Snapshots {
		if !p.Active || !p.Unlinked() {
			continue
		}
		p.QuotationConfigID = quotationID
		if err := s.store.UpdateSnapshot(ctx, p); err != nil {
			log.Warn("link package to quotation failed",
				slog.String("package_id", p.ID),
				slog.Any("error", err))
			continue
		}
		linked++
		log.Info("linked package to quotation",
			slog.String("package_id", p.ID),
			slog.String("quotation_id", quotationID))
	}
	return linked
}
