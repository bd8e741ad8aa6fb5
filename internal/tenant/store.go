// internal/tenant/store.go
//
// Societes-table query helpers.
//
// Context
// -------
// The Store is the narrow boundary the lifecycle core has to the tenant
// metadata table: find-by-code, insert, status update, and delete.  The
// surrounding CRUD modules own every other access path.
//
// Workflow
// --------
//  1. Callers supply a *sqlx.DB that is already connected to the control-
//     plane database.
//  2. Each helper executes exactly one parameterised statement.
//  3. Errors are returned verbatim so the caller can wrap or classify them
//     (the orchestrator turns "no rows" into its own conflict logic).
//
// Notes
// -----
//   - Column list matches the fields in `Record`; update both together.
//   - FindByCode excludes soft-deleted rows at SQL level to keep callers
//     simple.
package tenant

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// ErrNotFound is returned when no live row matches the given tenant code.
var ErrNotFound = errors.New("tenant not found")

// Store provides CRUD over the societes table.
type Store struct {
	db *sqlx.DB
}

// NewStore binds a Store to the control-plane pool.
func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// FindByCode fetches a single non-deleted row by its unique code.  Matching
// is case-insensitive so "ACME" and "acme" resolve to the same row, the same
// folding PoolKey applies.  Returns ErrNotFound when the code is unknown.
func (s *Store) FindByCode(ctx context.Context, code string) (*Record, error) {
	const q = `
        SELECT id, code, nom, database_name, status, max_users, max_sites,
               max_storage_gb, suspended_at, deleted_at, created_at, updated_at
        FROM   societes
        WHERE  lower(code) = lower($1)
          AND  deleted_at IS NULL
        LIMIT  1`
	var rec Record
	if err := s.db.GetContext(ctx, &rec, q, code); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}

// Create inserts a new row.  The caller fills Code, Nom, DatabaseName,
// Status, and quotas; ID is assigned here when zero.
func (s *Store) Create(ctx context.Context, rec *Record) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	const q = `
        INSERT INTO societes
               (id, code, nom, database_name, status,
                max_users, max_sites, max_storage_gb, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())`
	_, err := s.db.ExecContext(ctx, q,
		rec.ID, rec.Code, rec.Nom, rec.DatabaseName, rec.Status,
		rec.MaxUsers, rec.MaxSites, rec.MaxStorageGB)
	return err
}

// UpdateStatus flips the lifecycle status of one row.  The suspended_at
// marker follows the status: set when suspending, cleared otherwise.
func (s *Store) UpdateStatus(ctx context.Context, id uuid.UUID, status Status) error {
	var suspendedAt *time.Time
	if status == StatusSuspended {
		now := time.Now().UTC()
		suspendedAt = &now
	}
	const q = `
        UPDATE societes
        SET    status = $2, suspended_at = $3, updated_at = now()
        WHERE  id = $1`
	_, err := s.db.ExecContext(ctx, q, id, status, suspendedAt)
	return err
}

// Delete removes a row outright.  Used by provisioning rollback (the row
// was created moments ago) and as the final step of deprovisioning.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	const q = `DELETE FROM societes WHERE id = $1`
	_, err := s.db.ExecContext(ctx, q, id)
	return err
}
