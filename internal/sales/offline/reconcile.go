package offline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/odyssey-erp/odyssey-quotes/internal/sales/diff"
	"github.com/odyssey-erp/odyssey-quotes/internal/sales/quotations"
)

// ErrNoActiveVersion means the server has no active version to reconcile against.
var ErrNoActiveVersion = errors.New("no active version on server")

// CacheFields are the paths compared between a local draft and the server.
var CacheFields = []diff.Field{
	{Path: "version_number", Label: "Version"},
	{Path: "fields", Label: "General information"},
	{Path: "editor_state", Label: "Editor position"},
	{Path: "templates.base_services", Label: "Base services"},
	{Path: "templates.optional_services", Label: "Optional services"},
	{Path: "templates.payment_options", Label: "Payment options"},
	{Path: "templates.discounts", Label: "Discounts"},
}

// Status is the result of a reconciliation.
type Status string

const (
	StatusNoDraft   Status = "no_draft"
	StatusInSync    Status = "in_sync"
	StatusUseServer Status = "server"
	StatusUseCache  Status = "cache"
	StatusPending   Status = "pending"
)

// Result of Reconcile. With StatusUseCache, Draft holds the local contents rebased onto the
// current server version, ready to be saved as a new version.
type Result struct {
	Status      Status                `json:"status"`
	Differences []diff.Difference     `json:"differences,omitempty"`
	Server      *quotations.Quotation `json:"server,omitempty"`
	Draft       *quotations.Quotation `json:"draft,omitempty"`
}

// QuotationLister reads quotation versions from the server.
type QuotationLister interface {
	List(ctx context.Context, req quotations.ListQuotationsRequest) ([]quotations.Quotation, error)
}

// Reconciler keeps local drafts and settles them against the server after reconnecting.
type Reconciler struct {
	cache  Cache
	server QuotationLister
	logger *slog.Logger
}

func NewReconciler(cache Cache, server QuotationLister, logger *slog.Logger) *Reconciler {
	return &Reconciler{cache: cache, server: server, logger: logger}
}

// SaveDraft stores the locally edited quotation.
func (r *Reconciler) SaveDraft(ctx context.Context, draft quotations.Quotation) error {
	if draft.BaseNumber == "" {
		return errors.New("offline: draft requires a base number")
	}
	return r.cache.Write(ctx, DraftKey(draft.BaseNumber), draft)
}

// Draft returns the stored draft of baseNumber, or nil.
func (r *Reconciler) Draft(ctx context.Context, baseNumber string) (*quotations.Quotation, error) {
	var draft quotations.Quotation
	found, err := r.cache.Read(ctx, DraftKey(baseNumber), &draft)
	if err != nil || !found {
		return nil, err
	}
	return &draft, nil
}

// Discard drops the draft of baseNumber.
func (r *Reconciler) Discard(ctx context.Context, baseNumber string) error {
	return r.cache.Delete(ctx, DraftKey(baseNumber))
}

// Reconcile compares the draft of baseNumber with the active server version and applies the
// decider's choice. Server wins overwrites the draft; cache wins returns it for saving.
func (r *Reconciler) Reconcile(ctx context.Context, baseNumber string, decider diff.Decider) (*Result, error) {
	draft, err := r.Draft(ctx, baseNumber)
	if err != nil {
		return nil, err
	}
	if draft == nil {
		return &Result{Status: StatusNoDraft}, nil
	}

	list, err := r.server.List(ctx, quotations.ListQuotationsRequest{BaseNumber: &baseNumber, ActiveOnly: true})
	if err != nil {
		return nil, fmt.Errorf("offline: read server: %w", err)
	}
	server := quotations.ActiveOf(list, baseNumber)
	if server == nil {
		return nil, ErrNoActiveVersion
	}

	diffs, err := diff.Compare(CacheFields, server, draft)
	if err != nil {
		return nil, err
	}
	result := &Result{Differences: diffs, Server: server}
	if len(diffs) == 0 {
		result.Status = StatusInSync
		return result, r.Discard(ctx, baseNumber)
	}

	switch decider.Decide(ctx, diff.Decision{Kind: "reconcile", Differences: diffs}) {
	case diff.ChoiceUseServer:
		if err := r.cache.Write(ctx, DraftKey(baseNumber), server); err != nil {
			return nil, err
		}
		result.Status = StatusUseServer
	case diff.ChoiceUseCache:
		rebased := *server
		rebased.Fields = draft.Fields
		rebased.EditorState = draft.EditorState
		rebased.Templates = draft.Templates
		result.Draft = &rebased
		result.Status = StatusUseCache
	default:
		result.Status = StatusPending
	}

	r.logger.Info("draft reconciled",
		slog.String("base_number", baseNumber),
		slog.String("status", string(result.Status)),
		slog.Int("differences", len(diffs)))
	return result, nil
}
