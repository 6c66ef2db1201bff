package packages

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-quotes/internal/platform/db"
)

var (
	ErrNotFound = errors.New("package snapshot not found")
)

type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	Get(ctx context.Context, id string) (*Snapshot, error)
	List(ctx context.Context) ([]Snapshot, error)
	ListByQuotation(ctx context.Context, quotationID string) ([]Snapshot, error)
	Insert(ctx context.Context, snapshot Snapshot) error
	Update(ctx context.Context, snapshot Snapshot) error
}

type dbtx interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

type repository struct {
	db   dbtx
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool, pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &repository{db: tx, pool: r.pool})
	})
}

const snapshotColumns = `id::text, quotation_config_id::text, name, active, base_services,
	optional_services, package, costs, created_at`

func (r *repository) Get(ctx context.Context, id string) (*Snapshot, error) {
	row := r.db.QueryRow(ctx, `SELECT `+snapshotColumns+` FROM package_snapshots WHERE id = $1`, id)
	s, err := scanSnapshot(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

func (r *repository) List(ctx context.Context) ([]Snapshot, error) {
	return r.query(ctx, `SELECT `+snapshotColumns+` FROM package_snapshots ORDER BY created_at, id`)
}

func (r *repository) ListByQuotation(ctx context.Context, quotationID string) ([]Snapshot, error) {
	return r.query(ctx, `SELECT `+snapshotColumns+` FROM package_snapshots
		WHERE quotation_config_id = $1 ORDER BY created_at, id`, quotationID)
}

func (r *repository) query(ctx context.Context, sql string, args ...interface{}) ([]Snapshot, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snapshots []Snapshot
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, s)
	}
	return snapshots, rows.Err()
}

func (r *repository) Insert(ctx context.Context, s Snapshot) error {
	_, err := r.db.Exec(ctx, `INSERT INTO package_snapshots
		(id, quotation_config_id, name, active, base_services, optional_services, package, costs, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		s.ID, nullableID(s.QuotationConfigID), s.Name, s.Active,
		s.BaseServices, s.OptionalServices, s.Package, s.Costs, s.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert package snapshot: %w", err)
	}
	return nil
}

func (r *repository) Update(ctx context.Context, s Snapshot) error {
	tag, err := r.db.Exec(ctx, `UPDATE package_snapshots
		SET quotation_config_id = $2, name = $3, active = $4, base_services = $5,
		    optional_services = $6, package = $7, costs = $8
		WHERE id = $1`,
		s.ID, nullableID(s.QuotationConfigID), s.Name, s.Active,
		s.BaseServices, s.OptionalServices, s.Package, s.Costs,
	)
	if err != nil {
		return fmt.Errorf("update package snapshot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanSnapshot(row pgx.Row) (Snapshot, error) {
	var s Snapshot
	var quotationID pgtype.Text
	err := row.Scan(
		&s.ID, &quotationID, &s.Name, &s.Active, &s.BaseServices,
		&s.OptionalServices, &s.Package, &s.Costs, &s.CreatedAt,
	)
	if err != nil {
		return Snapshot{}, err
	}
	if quotationID.Valid {
		s.QuotationConfigID = quotationID.String
	}
	return s, nil
}

func nullableID(id string) pgtype.Text {
	return pgtype.Text{String: id, Valid: id != ""}
}
