package versioning

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/odyssey-quotes/internal/sales/packages"
	"github.com/odyssey-erp/odyssey-quotes/internal/sales/quotations"
)

// View is one consistent read of quotations and package snapshots.
type View struct {
	Quotations []quotations.Quotation `json:"quotations"`
	Snapshots  []packages.Snapshot    `json:"packages"`
	Revision   uint64                 `json:"revision"`
}

// Active returns the active version of baseNumber, or nil.
func (v View) Active(baseNumber string) *quotations.Quotation {
	return quotations.ActiveOf(v.Quotations, baseNumber)
}

// PackagesOf returns the snapshots attached to quotationID.
func (v View) PackagesOf(quotationID string) []packages.Snapshot {
	var out []packages.Snapshot
	for _, s := range v.Snapshots {
		if s.QuotationConfigID == quotationID {
			out = append(out, s)
		}
	}
	return out
}

// Workspace is the in-process read model of quotations and packages. Both lists are always
// replaced together, so a reader never sees new packages against an old quotation list.
type Workspace struct {
	mu   sync.RWMutex
	view View

	// issued numbers refreshes in the order their reads start. applied is the ticket behind view.
	issued  atomic.Uint64
	applied uint64
}

func NewWorkspace() *Workspace {
	return &Workspace{}
}

func (w *Workspace) View() View {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.view
}

func (w *Workspace) ticket() uint64 {
	return w.issued.Add(1)
}

// apply installs a read taken under ticket. A read that started before the one already applied is
// dropped and the current view is returned instead.
func (w *Workspace) apply(ticket uint64, qs []quotations.Quotation, ss []packages.Snapshot) View {
	w.mu.Lock()
	defer w.mu.Unlock()
	if ticket < w.applied {
		return w.view
	}
	w.applied = ticket
	w.view = View{Quotations: qs, Snapshots: ss, Revision: w.view.Revision + 1}
	return w.view
}

// Refresh reads quotations and snapshots in parallel and applies both in a single update.
// Nothing is applied when either read fails. When refreshes overlap, the one that started last wins.
func (w *Workspace) Refresh(ctx context.Context, store Store) (View, error) {
	ticket := w.ticket()
	var (
		qs []quotations.Quotation
		ss []packages.Snapshot
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		list, err := store.ListQuotations(gctx)
		if err != nil {
			return &NetworkError{Op: "list quotations", Err: err}
		}
		qs = list
		return nil
	})
	g.Go(func() error {
		list, err := store.ListSnapshots(gctx)
		if err != nil {
			return &NetworkError{Op: "list packages", Err: err}
		}
		ss = list
		return nil
	})
	if err := g.Wait(); err != nil {
		return View{}, err
	}

	return w.apply(ticket, qs, ss), nil
}
