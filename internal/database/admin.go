// internal/database/admin.go
//
// Administrative access to the database *server*.
//
// Context
// -------
// CREATE DATABASE, DROP DATABASE, and backend termination cannot run over
// a tenant's own pool — the tenant database may not exist yet, or is about
// to be torn down.  They are issued over a short-lived native pgx
// connection to the server's default database.  The connection is opened
// per operation and always closed on exit; database creation and deletion
// are infrequent, so no privileged connection stays open between calls.
//
// Notes
// -----
//   - Database names cannot be bound as statement parameters, so they are
//     quoted with pgx.Identifier.Sanitize before interpolation.
package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/topsteel/erp-core/internal/config"
)

// Admin issues server-level DDL over per-operation connections.
type Admin struct {
	cfg config.Database
}

// NewAdmin returns an Admin bound to the shared database config.
func NewAdmin(cfg config.Database) *Admin {
	return &Admin{cfg: cfg}
}

// connect opens a native pgx connection to the administrative database.
func (a *Admin) connect(ctx context.Context) (*pgx.Conn, error) {
	return pgx.Connect(ctx, BuildDSN(a.cfg, a.cfg.AdminDB))
}

// DatabaseExists reports whether a database with the given name exists on
// the server.
func (a *Admin) DatabaseExists(ctx context.Context, name string) (bool, error) {
	conn, err := a.connect(ctx)
	if err != nil {
		return false, fmt.Errorf("admin connect: %w", err)
	}
	defer func() { _ = conn.Close(ctx) }()

	var one int
	err = conn.QueryRow(ctx, `SELECT 1 FROM pg_database WHERE datname = $1`, name).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check database %q: %w", name, err)
	}
	return true, nil
}

// CreateDatabase issues CREATE DATABASE for name.
func (a *Admin) CreateDatabase(ctx context.Context, name string) error {
	conn, err := a.connect(ctx)
	if err != nil {
		return fmt.Errorf("admin connect: %w", err)
	}
	defer func() { _ = conn.Close(ctx) }()

	if _, err := conn.Exec(ctx, "CREATE DATABASE "+pgx.Identifier{name}.Sanitize()); err != nil {
		return fmt.Errorf("create database %q: %w", name, err)
	}
	return nil
}

// DropDatabase terminates every remaining backend session on name and then
// drops it.  A database with live connections cannot be dropped, so the
// termination pass always runs first.
func (a *Admin) DropDatabase(ctx context.Context, name string) error {
	conn, err := a.connect(ctx)
	if err != nil {
		return fmt.Errorf("admin connect: %w", err)
	}
	defer func() { _ = conn.Close(ctx) }()

	if _, err := conn.Exec(ctx, `
		SELECT pg_terminate_backend(pid)
		FROM   pg_stat_activity
		WHERE  datname = $1 AND pid <> pg_backend_pid()`, name); err != nil {
		return fmt.Errorf("terminate backends on %q: %w", name, err)
	}

	if _, err := conn.Exec(ctx, "DROP DATABASE IF EXISTS "+pgx.Identifier{name}.Sanitize()); err != nil {
		return fmt.Errorf("drop database %q: %w", name, err)
	}
	return nil
}
