package versioning

import (
	"context"

	"github.com/odyssey-erp/odyssey-quotes/internal/sales/packages"
	"github.com/odyssey-erp/odyssey-quotes/internal/sales/quotations"
)

// Store is the persistence the save saga runs against.
type Store interface {
	CreateVersion(ctx context.Context, nv quotations.NewVersion) (*quotations.CreatedVersion, error)
	DeactivateOthers(ctx context.Context, exceptID string) error
	ListQuotations(ctx context.Context) ([]quotations.Quotation, error)
	ListSnapshots(ctx context.Context) ([]packages.Snapshot, error)
	RollbackVersion(ctx context.Context, versionToDelete, previousVersionID string) error
	UpdateSnapshot(ctx context.Context, snapshot packages.Snapshot) error
}

type postgresStore struct {
	quotes quotations.Repository
	packs  packages.Repository
}

// NewPostgresStore combines the quotation and package repositories into a Store.
func NewPostgresStore(quotes quotations.Repository, packs packages.Repository) Store {
	return &postgresStore{quotes: quotes, packs: packs}
}

func (s *postgresStore) CreateVersion(ctx context.Context, nv quotations.NewVersion) (*quotations.CreatedVersion, error) {
	return s.quotes.CreateVersion(ctx, nv)
}

func (s *postgresStore) DeactivateOthers(ctx context.Context, exceptID string) error {
	return s.quotes.DeactivateOthers(ctx, exceptID)
}

func (s *postgresStore) ListQuotations(ctx context.Context) ([]quotations.Quotation, error) {
	return s.quotes.List(ctx, quotations.ListQuotationsRequest{})
}

func (s *postgresStore) ListSnapshots(ctx context.Context) ([]packages.Snapshot, error) {
	return s.packs.List(ctx)
}

func (s *postgresStore) RollbackVersion(ctx context.Context, versionToDelete, previousVersionID string) error {
	return s.quotes.Rollback(ctx, versionToDelete, previousVersionID)
}

func (s *postgresStore) UpdateSnapshot(ctx context.Context, snapshot packages.Snapshot) error {
	return s.packs.Update(ctx, snapshot)
}
