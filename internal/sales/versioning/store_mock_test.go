package versioning

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-quotes/internal/sales/packages"
	"github.com/odyssey-erp/odyssey-quotes/internal/sales/pricing"
	"github.com/odyssey-erp/odyssey-quotes/internal/sales/quotations"
)

var errUnavailable = errors.New("store unavailable")

// memStore mirrors the postgres store: CreateVersion deactivates the base number's versions,
// then inserts the new row as active and moves the prior version's active packages onto it.
type memStore struct {
	mu     sync.Mutex
	quotes []quotations.Quotation
	snaps  []packages.Snapshot

	createErr     error
	deactivateErr error
	rollbackErr   error
	listErr       error
	updateErr     error

	// onCreate runs after the version is stored, before CreateVersion returns.
	onCreate func()
	// loseResponse stores the version but waits for ctx and returns its error.
	loseResponse bool
	// createGate blocks CreateVersion until closed.
	createGate chan struct{}
	// quotesGate blocks ListQuotations until closed.
	quotesGate chan struct{}

	createCalls int
	rollbacks   [][2]string
	updates     []packages.Snapshot
}

func (m *memStore) CreateVersion(ctx context.Context, nv quotations.NewVersion) (*quotations.CreatedVersion, error) {
	if m.createGate != nil {
		<-m.createGate
	}
	m.mu.Lock()
	m.createCalls++
	if m.createErr != nil {
		m.mu.Unlock()
		return nil, m.createErr
	}
	for _, q := range m.quotes {
		if q.BaseNumber == nv.BaseNumber && q.VersionNumber >= nv.VersionNumber {
			m.mu.Unlock()
			return nil, quotations.ErrVersionConflict
		}
	}
	id := fmt.Sprintf("v%d", nv.VersionNumber)
	for i := range m.quotes {
		if m.quotes[i].BaseNumber == nv.BaseNumber {
			m.quotes[i].IsActive = false
		}
	}
	m.quotes = append(m.quotes, quotations.Quotation{
		ID:            id,
		BaseNumber:    nv.BaseNumber,
		VersionNumber: nv.VersionNumber,
		IsActive:      true,
		Fields:        nv.Fields,
		EditorState:   nv.EditorState,
		Templates:     nv.Templates,
	})
	moved := 0
	for i := range m.snaps {
		if m.snaps[i].Active && m.snaps[i].QuotationConfigID == nv.PriorVersionID {
			m.snaps[i].QuotationConfigID = id
			moved++
		}
	}
	m.mu.Unlock()

	if m.onCreate != nil {
		m.onCreate()
	}
	if m.loseResponse {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(2 * time.Second):
			return nil, errUnavailable
		}
	}
	return &quotations.CreatedVersion{
		ID:                 id,
		VersionNumber:      nv.VersionNumber,
		Number:             quotations.VersionLabel(nv.BaseNumber, nv.VersionNumber),
		ReassignedPackages: moved,
	}, nil
}

func (m *memStore) DeactivateOthers(_ context.Context, exceptID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deactivateErr != nil {
		return m.deactivateErr
	}
	q := quotations.Find(m.quotes, exceptID)
	if q == nil {
		return quotations.ErrNotFound
	}
	base := q.BaseNumber
	for i := range m.quotes {
		if m.quotes[i].BaseNumber == base {
			m.quotes[i].IsActive = m.quotes[i].ID == exceptID
		}
	}
	return nil
}

func (m *memStore) ListQuotations(context.Context) ([]quotations.Quotation, error) {
	if m.quotesGate != nil {
		<-m.quotesGate
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	return append([]quotations.Quotation(nil), m.quotes...), nil
}

func (m *memStore) ListSnapshots(context.Context) ([]packages.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	return append([]packages.Snapshot(nil), m.snaps...), nil
}

func (m *memStore) RollbackVersion(_ context.Context, versionToDelete, previousVersionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollbacks = append(m.rollbacks, [2]string{versionToDelete, previousVersionID})
	if m.rollbackErr != nil {
		return m.rollbackErr
	}
	deleted := quotations.Find(m.quotes, versionToDelete)
	if deleted == nil {
		return quotations.ErrNotFound
	}
	base := deleted.BaseNumber
	kept := m.quotes[:0]
	for _, q := range m.quotes {
		if q.ID != versionToDelete {
			kept = append(kept, q)
		}
	}
	m.quotes = kept
	for i := range m.snaps {
		if m.snaps[i].QuotationConfigID == versionToDelete {
			m.snaps[i].QuotationConfigID = previousVersionID
		}
	}
	for i := range m.quotes {
		if m.quotes[i].BaseNumber == base {
			m.quotes[i].IsActive = m.quotes[i].ID == previousVersionID
		}
	}
	return nil
}

func (m *memStore) UpdateSnapshot(_ context.Context, s packages.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	for i := range m.snaps {
		if m.snaps[i].ID == s.ID {
			m.snaps[i] = s
			m.updates = append(m.updates, s)
			return nil
		}
	}
	return packages.ErrNotFound
}

func (m *memStore) active(baseNumber string) []quotations.Quotation {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []quotations.Quotation
	for _, q := range m.quotes {
		if q.BaseNumber == baseNumber && q.IsActive {
			out = append(out, q)
		}
	}
	return out
}

func (m *memStore) packagesOf(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.snaps {
		if s.QuotationConfigID == id {
			n++
		}
	}
	return n
}

var testNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func testFields() quotations.Fields {
	return quotations.Fields{
		Title:       "Web platform",
		Company:     "Acme",
		ContactName: "Ana Ruiz",
		Email:       "ana@acme.test",
		Phone:       "+34 600 123 456",
		IssuedAt:    testNow,
		ValidFrom:   testNow,
		ValidUntil:  testNow.AddDate(0, 1, 0),
	}
}

func testTemplates() quotations.Templates {
	return quotations.Templates{
		BaseServices: []pricing.Service{
			{ID: "hosting", Name: "Hosting", Price: decimal.NewFromInt(100), FreeMonths: 3, PaidMonths: 9},
		},
	}
}

// newSeededStore holds COT-1 at version 1 ("v1", active) with one active package.
func newSeededStore() *memStore {
	return &memStore{
		quotes: []quotations.Quotation{{
			ID:            "v1",
			BaseNumber:    "COT-1",
			VersionNumber: 1,
			IsActive:      true,
			Fields:        testFields(),
			Templates:     testTemplates(),
		}},
		snaps: []packages.Snapshot{{
			ID:                "p1",
			QuotationConfigID: "v1",
			Name:              "Plan X",
			Active:            true,
			Package:           pricing.Package{DevelopmentCost: decimal.NewFromInt(1000)},
		}},
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestSaga(store Store, cfg Config) (*Saga, *Workspace) {
	ws := NewWorkspace()
	saga := NewSaga(store, ws, cfg, testLogger())
	saga.now = func() time.Time { return testNow }
	return saga, ws
}

func saveRequest(base quotations.Quotation) Request {
	return Request{
		Base:        base,
		Fields:      base.Fields,
		EditorState: base.EditorState,
		Templates:   base.Templates,
	}
}
