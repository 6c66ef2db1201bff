package saleshttp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-quotes/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-quotes/internal/sales/diff"
	"github.com/odyssey-erp/odyssey-quotes/internal/sales/offline"
	"github.com/odyssey-erp/odyssey-quotes/internal/sales/packages"
	"github.com/odyssey-erp/odyssey-quotes/internal/sales/pricing"
	"github.com/odyssey-erp/odyssey-quotes/internal/sales/quotations"
	"github.com/odyssey-erp/odyssey-quotes/internal/sales/shared"
	"github.com/odyssey-erp/odyssey-quotes/internal/sales/versioning"
	coreshared "github.com/odyssey-erp/odyssey-quotes/internal/shared"
)

// QuotationService reads and starts quotations.
type QuotationService interface {
	Create(ctx context.Context, req quotations.CreateQuotationRequest) (*quotations.Quotation, error)
	Get(ctx context.Context, id string) (*quotations.Quotation, error)
	List(ctx context.Context, req quotations.ListQuotationsRequest) ([]quotations.Quotation, error)
	Versions(ctx context.Context, id string) ([]quotations.Quotation, error)
}

// PackageService prices and stores package snapshots.
type PackageService interface {
	Preview(state packages.EditableState) pricing.Preview
	Create(ctx context.Context, state packages.EditableState, force bool) (*packages.CreateResult, error)
	ListByQuotation(ctx context.Context, quotationID string) ([]packages.Snapshot, error)
}

// SaveCoordinator runs and cancels version saves.
type SaveCoordinator interface {
	Save(ctx context.Context, req versioning.Request) (*versioning.Outcome, error)
	Cancel(baseNumber string) bool
}

// VersionRestorer restores older versions.
type VersionRestorer interface {
	Restore(ctx context.Context, versionID string, decider diff.Decider) (*versioning.RestoreResult, error)
}

// DraftReconciler keeps offline drafts.
type DraftReconciler interface {
	SaveDraft(ctx context.Context, draft quotations.Quotation) error
	Reconcile(ctx context.Context, baseNumber string, decider diff.Decider) (*offline.Result, error)
	Discard(ctx context.Context, baseNumber string) error
}

// IdempotencyGuard deduplicates retried save requests.
type IdempotencyGuard interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// IdempotencyHeader names the client-supplied retry key of a save.
const IdempotencyHeader = "Idempotency-Key"

const saveModule = "quotation.save"

// Handler serves the quotation JSON API.
type Handler struct {
	logger      *slog.Logger
	quotes      QuotationService
	packages    PackageService
	coordinator SaveCoordinator
	restorer    VersionRestorer
	drafts      DraftReconciler
	idempotency IdempotencyGuard
}

func NewHandler(logger *slog.Logger, quotes QuotationService, packages PackageService, coordinator SaveCoordinator, restorer VersionRestorer, drafts DraftReconciler) *Handler {
	return &Handler{
		logger:      logger,
		quotes:      quotes,
		packages:    packages,
		coordinator: coordinator,
		restorer:    restorer,
		drafts:      drafts,
	}
}

// WithIdempotency makes saves carrying an Idempotency-Key header run at most once.
func (h *Handler) WithIdempotency(guard IdempotencyGuard) *Handler {
	h.idempotency = guard
	return h
}

// contentsRequest is the editable body of a save or a draft.
type contentsRequest struct {
	Fields      quotations.Fields      `json:"fields"`
	EditorState quotations.EditorState `json:"editor_state"`
	Templates   quotations.Templates   `json:"templates"`
}

type quotationResponse struct {
	Quotation *quotations.Quotation `json:"quotation"`
	Packages  []packages.Snapshot   `json:"packages"`
}

type saveResponse struct {
	Outcome *versioning.Outcome `json:"outcome"`
	Error   string              `json:"error,omitempty"`
}

type reconcileResponse struct {
	Result  *offline.Result     `json:"result"`
	Outcome *versioning.Outcome `json:"outcome,omitempty"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	req := quotations.ListQuotationsRequest{}
	if base := r.URL.Query().Get("base_number"); base != "" {
		req.BaseNumber = &base
	}
	if active, err := strconv.ParseBool(r.URL.Query().Get("active")); err == nil {
		req.ActiveOnly = active
	}
	list, err := h.quotes.List(r.Context(), req)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if list == nil {
		list = []quotations.Quotation{}
	}
	httpx.JSON(w, http.StatusOK, list)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req quotations.CreateQuotationRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	q, err := h.quotes.Create(r.Context(), req)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, q)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	q, ok := h.loadQuotation(w, r)
	if !ok {
		return
	}
	snaps, err := h.packages.ListByQuotation(r.Context(), q.ID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if snaps == nil {
		snaps = []packages.Snapshot{}
	}
	httpx.JSON(w, http.StatusOK, quotationResponse{Quotation: q, Packages: snaps})
}

func (h *Handler) handleVersions(w http.ResponseWriter, r *http.Request) {
	versions, err := h.quotes.Versions(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, versions)
}

func (h *Handler) handlePreview(w http.ResponseWriter, r *http.Request) {
	var state packages.EditableState
	if err := httpx.DecodeJSON(r, &state); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	httpx.JSON(w, http.StatusOK, h.packages.Preview(state))
}

func (h *Handler) handleCreatePackage(w http.ResponseWriter, r *http.Request) {
	q, ok := h.loadQuotation(w, r)
	if !ok {
		return
	}
	var state packages.EditableState
	if err := httpx.DecodeJSON(r, &state); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	state.QuotationConfigID = q.ID
	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))

	result, err := h.packages.Create(r.Context(), state, force)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, result)
}

func (h *Handler) handleSave(w http.ResponseWriter, r *http.Request) {
	q, ok := h.loadQuotation(w, r)
	if !ok {
		return
	}
	var body contentsRequest
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	key := ""
	if h.idempotency != nil {
		if header := r.Header.Get(IdempotencyHeader); header != "" {
			key = q.BaseNumber + ":" + header
			if err := h.idempotency.CheckAndInsert(r.Context(), key, saveModule); err != nil {
				if errors.Is(err, coreshared.ErrIdempotencyConflict) {
					httpx.Problem(w, http.StatusConflict, "Conflict", "save already submitted with this idempotency key")
					return
				}
				h.respondError(w, err)
				return
			}
		}
	}
	outcome, err := h.coordinator.Save(r.Context(), versioning.Request{
		Base:        *q,
		Fields:      body.Fields,
		EditorState: body.EditorState,
		Templates:   body.Templates,
	})
	if key != "" && (err != nil || outcome == nil || outcome.State != versioning.StateCommitted) {
		// nothing was kept, so the client may retry with the same key
		if derr := h.idempotency.Delete(context.WithoutCancel(r.Context()), key); derr != nil {
			h.logger.Warn("release idempotency key", slog.String("key", key), slog.Any("error", derr))
		}
	}
	h.respondSave(w, outcome, err)
}

func (h *Handler) handleCancelSave(w http.ResponseWriter, r *http.Request) {
	q, ok := h.loadQuotation(w, r)
	if !ok {
		return
	}
	if !h.coordinator.Cancel(q.BaseNumber) {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "no save in progress for "+q.BaseNumber)
		return
	}
	httpx.JSON(w, http.StatusAccepted, map[string]string{"status": "cancelling"})
}

func (h *Handler) handleCompare(w http.ResponseWriter, r *http.Request) {
	left, ok := h.loadQuotation(w, r)
	if !ok {
		return
	}
	right, err := h.quotes.Get(r.Context(), chi.URLParam(r, "otherID"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	diffs, err := diff.Compare(quotations.CompareFields, left, right)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if diffs == nil {
		diffs = []diff.Difference{}
	}
	httpx.JSON(w, http.StatusOK, diffs)
}

func (h *Handler) handleRestore(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Confirm bool `json:"confirm"`
	}
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	choice := diff.ChoiceCancel
	if body.Confirm {
		choice = diff.ChoiceConfirm
	}
	result, err := h.restorer.Restore(r.Context(), chi.URLParam(r, "id"), diff.Fixed(choice))
	if err != nil && (result == nil || result.Outcome == nil) {
		h.respondError(w, err)
		return
	}
	if result.Outcome != nil {
		h.respondSave(w, result.Outcome, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) handleSaveDraft(w http.ResponseWriter, r *http.Request) {
	q, ok := h.loadQuotation(w, r)
	if !ok {
		return
	}
	var body contentsRequest
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	draft := *q
	draft.Fields = body.Fields
	draft.EditorState = body.EditorState
	draft.Templates = body.Templates
	if err := h.drafts.SaveDraft(r.Context(), draft); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleReconcile(w http.ResponseWriter, r *http.Request) {
	q, ok := h.loadQuotation(w, r)
	if !ok {
		return
	}
	choice := diff.ParseChoice(r.URL.Query().Get("prefer"))
	result, err := h.drafts.Reconcile(r.Context(), q.BaseNumber, diff.Fixed(choice))
	if err != nil {
		h.respondError(w, err)
		return
	}
	if result.Status != offline.StatusUseCache || result.Draft == nil {
		httpx.JSON(w, http.StatusOK, reconcileResponse{Result: result})
		return
	}

	outcome, err := h.coordinator.Save(r.Context(), versioning.Request{
		Base:        *result.Server,
		Fields:      result.Draft.Fields,
		EditorState: result.Draft.EditorState,
		Templates:   result.Draft.Templates,
	})
	if err != nil {
		h.respondSave(w, outcome, err)
		return
	}
	if derr := h.drafts.Discard(r.Context(), q.BaseNumber); derr != nil {
		h.logger.Warn("discard reconciled draft failed",
			slog.String("base_number", q.BaseNumber),
			slog.Any("error", derr))
	}
	httpx.JSON(w, http.StatusCreated, reconcileResponse{Result: result, Outcome: outcome})
}

func (h *Handler) loadQuotation(w http.ResponseWriter, r *http.Request) (*quotations.Quotation, bool) {
	q, err := h.quotes.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, err)
		return nil, false
	}
	return q, true
}

// respondSave reports a saga result. Cancelled and interrupted saves still carry their outcome
// so the caller can see whether the rollback was clean.
func (h *Handler) respondSave(w http.ResponseWriter, outcome *versioning.Outcome, err error) {
	if err == nil {
		httpx.JSON(w, http.StatusCreated, saveResponse{Outcome: outcome})
		return
	}

	var (
		cancelled *versioning.CancelledError
		netErr    *versioning.NetworkError
		rf        *versioning.RollbackFailure
	)
	switch {
	case errors.As(err, &rf):
		h.logger.Error("save left quotation in unknown state",
			slog.String("base_number", rf.BaseNumber),
			slog.Any("error", err))
		httpx.ProblemWith(w, http.StatusInternalServerError, "Rollback Failed", err.Error(), saveResponse{Outcome: outcome})
	case errors.As(err, &cancelled) && outcome != nil:
		httpx.JSON(w, http.StatusConflict, saveResponse{Outcome: outcome, Error: err.Error()})
	case errors.As(err, &netErr) && outcome != nil && !errors.Is(err, quotations.ErrVersionConflict):
		httpx.JSON(w, http.StatusBadGateway, saveResponse{Outcome: outcome, Error: err.Error()})
	default:
		h.respondError(w, err)
	}
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	var dup *packages.DuplicateError
	switch {
	case errors.Is(err, shared.ErrValidation):
		var verr *shared.ValidationError
		var fields any
		if errors.As(err, &verr) {
			fields = map[string]any{"errors": verr.Fields}
		}
		httpx.ProblemWith(w, http.StatusBadRequest, "Validation Failed", err.Error(), fields)
	case errors.As(err, &dup):
		httpx.ProblemWith(w, http.StatusConflict, "Duplicate", err.Error(), map[string]any{"existing": dup.Existing})
	case errors.Is(err, quotations.ErrNotFound), errors.Is(err, packages.ErrNotFound):
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrNotFound, err))
	case errors.Is(err, versioning.ErrSaveInProgress),
		errors.Is(err, versioning.ErrAlreadyActive),
		errors.Is(err, quotations.ErrVersionConflict),
		errors.Is(err, offline.ErrNoActiveVersion):
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrConflict, err))
	default:
		h.logger.Error("quotation request failed", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
