// internal/tenant/migrate/migrate.go
//
// Schema migrations for tenant databases.
//
// Context
// -------
// Every tenant database carries the same schema, applied from the SQL
// files embedded under migrations/.  Goose tracks execution in a
// goose_db_version table inside each tenant database, creates that table
// when absent ("nothing executed yet"), applies pending migrations in
// version order — the identifiers are timestamp-prefixed, so lexicographic
// and numeric order agree — and runs each migration in its own
// transaction.
//
// Failure semantics: a failed migration stops the run; migrations that
// committed before the failure stay committed (forward-only, no partial
// rollback).  The error is returned as a structured MigrationError — fatal
// to the provisioning workflow that invoked it, never to the process.
package migrate

import (
	"context"
	"embed"
	"errors"
	"io/fs"
	"path"

	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"

	"github.com/topsteel/erp-core/internal/metrics"
	"github.com/topsteel/erp-core/internal/tenant/fault"
)

//go:embed migrations/*.sql
var embedded embed.FS

// Runner states reported by Status.
const (
	StateUpToDate = "up-to-date"
	StatePending  = "pending"
	StateError    = "error"
)

// Status describes where one tenant database stands relative to the
// migrations known to the running binary.
type Status struct {
	Pending  []string `json:"pending"`
	Executed []string `json:"executed"`
	State    string   `json:"state"`
}

// Result reports one Run invocation.
type Result struct {
	Success bool     `json:"success"`
	Applied []string `json:"appliedMigrations"`
}

func provider(db *sqlx.DB) (*goose.Provider, error) {
	sub, err := fs.Sub(embedded, "migrations")
	if err != nil {
		return nil, err
	}
	return goose.NewProvider(goose.DialectPostgres, db.DB, sub)
}

// CheckStatus compares executed migrations in the tenant database against
// the embedded set.  An absent tracking table means nothing has executed
// yet; a broken connection yields State "error" alongside the cause.
func CheckStatus(ctx context.Context, db *sqlx.DB) (*Status, error) {
	p, err := provider(db)
	if err != nil {
		return &Status{State: StateError}, err
	}
	defer func() { _ = p.Close() }()

	rows, err := p.Status(ctx)
	if err != nil {
		return &Status{State: StateError}, err
	}
	return statusOf(rows), nil
}

// statusOf classifies the provider's per-migration rows into the status
// payload.  Any row not yet applied counts as pending.
func statusOf(rows []*goose.MigrationStatus) *Status {
	st := &Status{Pending: []string{}, Executed: []string{}, State: StateUpToDate}
	for _, row := range rows {
		name := path.Base(row.Source.Path)
		if row.State == goose.StateApplied {
			st.Executed = append(st.Executed, name)
		} else {
			st.Pending = append(st.Pending, name)
		}
	}
	if len(st.Pending) > 0 {
		st.State = StatePending
	}
	return st
}

// Run applies all pending migrations in version order, one transaction per
// migration.  On failure it reports which migrations committed before the
// failing one and returns a MigrationError.
func Run(ctx context.Context, db *sqlx.DB) (*Result, error) {
	p, err := provider(db)
	if err != nil {
		return &Result{}, err
	}
	defer func() { _ = p.Close() }()

	results, err := p.Up(ctx)
	if err != nil {
		return runFailure(results, err)
	}

	applied := appliedNames(results)
	metrics.MigrationsApplied.Add(float64(len(applied)))
	return &Result{Success: true, Applied: applied}, nil
}

// runFailure translates a failed Up into the structured MigrationError,
// preferring the PartialError detail when goose provides it.
func runFailure(results []*goose.MigrationResult, err error) (*Result, error) {
	applied := appliedNames(results)
	failed := ""
	var partial *goose.PartialError
	if errors.As(err, &partial) {
		applied = appliedNames(partial.Applied)
		if partial.Failed != nil && partial.Failed.Source != nil {
			failed = path.Base(partial.Failed.Source.Path)
		}
	}
	return &Result{Applied: applied},
		&fault.MigrationError{Failed: failed, Applied: applied, Err: err}
}

func appliedNames(results []*goose.MigrationResult) []string {
	names := make([]string, 0, len(results))
	for _, r := range results {
		if r == nil || r.Source == nil {
			continue
		}
		names = append(names, path.Base(r.Source.Path))
	}
	return names
}
