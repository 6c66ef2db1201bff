package quotations

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-quotes/internal/platform/db"
)

var (
	ErrNotFound        = errors.New("quotation not found")
	ErrVersionConflict = errors.New("quotation version conflict")
)

const (
	pgUniqueViolation      = "23505"
	pgSerializationFailure = "40001"
)

type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	Get(ctx context.Context, id string) (*Quotation, error)
	List(ctx context.Context, req ListQuotationsRequest) ([]Quotation, error)
	Create(ctx context.Context, q Quotation) error
	CreateVersion(ctx context.Context, nv NewVersion) (*CreatedVersion, error)
	DeactivateOthers(ctx context.Context, exceptID string) error
	Rollback(ctx context.Context, versionToDelete, previousVersionID string) error
	GenerateBaseNumber(ctx context.Context, date time.Time) (string, error)
}

type dbtx interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

type repository struct {
	db   dbtx
	pool *pgxpool.Pool
	now  func() time.Time
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool, pool: pool, now: time.Now}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &repository{db: tx, pool: r.pool, now: r.now})
	})
}

const versionColumns = `id::text, base_number, version_number, is_active, fields, editor_state,
	templates, created_at`

func (r *repository) Get(ctx context.Context, id string) (*Quotation, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	row := r.db.QueryRow(ctx, `SELECT `+versionColumns+` FROM quotation_versions WHERE id = $1`, id)
	q, err := scanQuotation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &q, nil
}

func (r *repository) List(ctx context.Context, req ListQuotationsRequest) ([]Quotation, error) {
	var conditions []string
	var args []interface{}
	argPos := 1

	if req.BaseNumber != nil {
		conditions = append(conditions, fmt.Sprintf("base_number = $%d", argPos))
		args = append(args, *req.BaseNumber)
		argPos++
	}
	if req.ActiveOnly {
		conditions = append(conditions, "is_active")
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	rows, err := r.db.Query(ctx, `SELECT `+versionColumns+` FROM quotation_versions`+where+
		` ORDER BY base_number, version_number`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []Quotation
	for rows.Next() {
		q, err := scanQuotation(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, q)
	}
	return list, rows.Err()
}

func (r *repository) Create(ctx context.Context, q Quotation) error {
	_, err := r.db.Exec(ctx, `INSERT INTO quotation_versions
		(id, base_number, version_number, is_active, fields, editor_state, templates, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		q.ID, q.BaseNumber, q.VersionNumber, q.IsActive, q.Fields, q.EditorState, q.Templates, q.CreatedAt,
	)
	if err != nil {
		return mapWriteError("insert quotation", err)
	}
	return nil
}

// CreateVersion inserts the next version of a base number as its only active row and moves the
// prior version's active package snapshots onto it, all in one transaction.
func (r *repository) CreateVersion(ctx context.Context, nv NewVersion) (*CreatedVersion, error) {
	var created *CreatedVersion
	err := r.WithTx(ctx, func(ctx context.Context, txRepo Repository) error {
		tx := txRepo.(*repository)
		out, err := tx.createVersion(ctx, nv)
		if err != nil {
			return err
		}
		created = out
		return nil
	})
	if err != nil {
		return nil, mapWriteError("create quotation version", err)
	}
	return created, nil
}

func (r *repository) createVersion(ctx context.Context, nv NewVersion) (*CreatedVersion, error) {
	if _, err := r.db.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, advisoryKey(nv.BaseNumber)); err != nil {
		return nil, fmt.Errorf("lock base number: %w", err)
	}

	var latest int
	err := r.db.QueryRow(ctx, `SELECT COALESCE(MAX(version_number), 0)
		FROM quotation_versions WHERE base_number = $1`, nv.BaseNumber).Scan(&latest)
	if err != nil {
		return nil, fmt.Errorf("read latest version: %w", err)
	}
	if nv.VersionNumber <= latest {
		return nil, fmt.Errorf("version %d of %s, latest is %d: %w",
			nv.VersionNumber, nv.BaseNumber, latest, ErrVersionConflict)
	}

	q := Quotation{
		ID:            uuid.NewString(),
		BaseNumber:    nv.BaseNumber,
		VersionNumber: nv.VersionNumber,
		IsActive:      true,
		Fields:        nv.Fields,
		EditorState:   nv.EditorState,
		Templates:     nv.Templates,
		CreatedAt:     r.now().UTC(),
	}

	// quotation_versions_one_active is not deferrable: the prior row must be inactive before the
	// new active row is inserted.
	if err := r.deactivateBase(ctx, q.BaseNumber, q.ID); err != nil {
		return nil, fmt.Errorf("deactivate previous versions: %w", err)
	}
	if err := r.Create(ctx, q); err != nil {
		return nil, err
	}

	reassigned := 0
	if nv.PriorVersionID != "" {
		tag, err := r.db.Exec(ctx, `UPDATE package_snapshots SET quotation_config_id = $1
			WHERE quotation_config_id = $2 AND active`, q.ID, nv.PriorVersionID)
		if err != nil {
			return nil, fmt.Errorf("reassign packages: %w", err)
		}
		reassigned = int(tag.RowsAffected())
	}

	return &CreatedVersion{
		ID:                 q.ID,
		VersionNumber:      q.VersionNumber,
		Number:             q.Number(),
		ReassignedPackages: reassigned,
	}, nil
}

// DeactivateOthers leaves exceptID as the only active version of its base number.
func (r *repository) DeactivateOthers(ctx context.Context, exceptID string) error {
	return r.WithTx(ctx, func(ctx context.Context, txRepo Repository) error {
		tx := txRepo.(*repository)
		var baseNumber string
		err := tx.db.QueryRow(ctx, `SELECT base_number FROM quotation_versions WHERE id = $1`,
			exceptID).Scan(&baseNumber)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("read version: %w", err)
		}
		if err := tx.activateOnly(ctx, baseNumber, exceptID); err != nil {
			return fmt.Errorf("deactivate other versions: %w", err)
		}
		return nil
	})
}

// deactivateBase clears is_active on every version of baseNumber except keepID.
func (r *repository) deactivateBase(ctx context.Context, baseNumber, keepID string) error {
	_, err := r.db.Exec(ctx, `UPDATE quotation_versions SET is_active = FALSE
		WHERE base_number = $1 AND id <> $2 AND is_active`, baseNumber, keepID)
	return err
}

// activateOnly leaves id as the single active version of baseNumber. Deactivation runs first so
// the partial unique index never sees two active rows.
func (r *repository) activateOnly(ctx context.Context, baseNumber, id string) error {
	if err := r.deactivateBase(ctx, baseNumber, id); err != nil {
		return err
	}
	tag, err := r.db.Exec(ctx, `UPDATE quotation_versions SET is_active = TRUE
		WHERE id = $1 AND base_number = $2`, id, baseNumber)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Rollback deletes versionToDelete, returns its packages to previousVersionID and makes that
// version active again. An empty previousVersionID only deletes.
func (r *repository) Rollback(ctx context.Context, versionToDelete, previousVersionID string) error {
	return r.WithTx(ctx, func(ctx context.Context, txRepo Repository) error {
		tx := txRepo.(*repository)

		var baseNumber string
		err := tx.db.QueryRow(ctx, `SELECT base_number FROM quotation_versions WHERE id = $1`,
			versionToDelete).Scan(&baseNumber)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("read version to delete: %w", err)
		}

		if previousVersionID != "" {
			if _, err := tx.db.Exec(ctx, `UPDATE package_snapshots SET quotation_config_id = $2
				WHERE quotation_config_id = $1`, versionToDelete, previousVersionID); err != nil {
				return fmt.Errorf("return packages: %w", err)
			}
		}

		if _, err := tx.db.Exec(ctx, `DELETE FROM quotation_versions WHERE id = $1`, versionToDelete); err != nil {
			return fmt.Errorf("delete version: %w", err)
		}

		if previousVersionID == "" {
			return nil
		}
		if err := tx.activateOnly(ctx, baseNumber, previousVersionID); err != nil {
			if errors.Is(err, ErrNotFound) {
				return err
			}
			return fmt.Errorf("reactivate previous version: %w", err)
		}
		return nil
	})
}

func (r *repository) GenerateBaseNumber(ctx context.Context, date time.Time) (string, error) {
	// COT-{YY}{MM}-{SEQ}
	var seq int64
	period := date.Format("200601")
	err := r.db.QueryRow(ctx, `
		INSERT INTO quotation_sequences (period, seq)
		VALUES ($1, 1)
		ON CONFLICT (period)
		DO UPDATE SET seq = quotation_sequences.seq + 1
		RETURNING seq
	`, period).Scan(&seq)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("COT-%s-%04d", date.Format("0601"), seq), nil
}

func advisoryKey(baseNumber string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte("quotation_version:"))
	_, _ = h.Write([]byte(baseNumber))
	return int64(h.Sum64())
}

func scanQuotation(row pgx.Row) (Quotation, error) {
	var q Quotation
	err := row.Scan(
		&q.ID, &q.BaseNumber, &q.VersionNumber, &q.IsActive, &q.Fields,
		&q.EditorState, &q.Templates, &q.CreatedAt,
	)
	return q, err
}

func mapWriteError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation, pgSerializationFailure:
			return fmt.Errorf("%s: %w", op, ErrVersionConflict)
		}
	}
	if errors.Is(err, ErrVersionConflict) {
		return err
	}
	return fmt.Errorf("%s: %w", op, err)
}
