// internal/tenant/provision/orchestrator.go
//
// End-to-end tenant provisioning and deprovisioning.
//
// Context
// -------
// Provisioning walks a strict linear sequence — validate, metadata row,
// CREATE DATABASE, connect, migrate, seed, activate — where each step
// depends on the previous one's side effect.  As each mutating step
// completes, a compensating action is pushed onto an undo stack; on any
// later failure the stack unwinds in reverse order, best-effort.  The
// caller always receives the primary error; rollback failures are logged,
// counted, and appended as supplementary detail, never replacing the
// cause.
//
// Provisioning is deliberately NOT idempotent: a retried request with the
// same code fails at the uniqueness check instead of silently succeeding.
//
// Notes
// -----
//   - Collaborators are narrow interfaces so the workflow is testable
//     without a database server.
//   - Rollback runs on a context detached from the caller's: a timed-out
//     migration must not also time out its own compensation.
package provision

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/topsteel/erp-core/internal/metrics"
	"github.com/topsteel/erp-core/internal/tenant"
	"github.com/topsteel/erp-core/internal/tenant/fault"
	"github.com/topsteel/erp-core/internal/tenant/migrate"
	"github.com/topsteel/erp-core/internal/tenant/pool"
	"github.com/topsteel/erp-core/internal/tenant/seed"
)

// Default quotas for new tenants when the request leaves them zero.
const (
	defaultMaxUsers     = 10
	defaultMaxSites     = 5
	defaultMaxStorageGB = 50
)

const rollbackTimeout = 30 * time.Second

//
// Collaborator contracts
//

// MetadataStore is the narrow view of the societes table the workflow
// needs.
type MetadataStore interface {
	FindByCode(ctx context.Context, code string) (*tenant.Record, error)
	Create(ctx context.Context, rec *tenant.Record) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status tenant.Status) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// DatabaseAdmin issues server-level DDL over scoped connections.
type DatabaseAdmin interface {
	DatabaseExists(ctx context.Context, name string) (bool, error)
	CreateDatabase(ctx context.Context, name string) error
	DropDatabase(ctx context.Context, name string) error
}

// HandlePool is the slice of the connection pool the workflow uses.
type HandlePool interface {
	Get(ctx context.Context, code string) (*pool.Handle, error)
	Close(code string)
}

// Migrator applies pending schema migrations to one tenant handle.
type Migrator func(ctx context.Context, db *sqlx.DB) (*migrate.Result, error)

// Seeder populates a freshly migrated tenant database.
type Seeder interface {
	Run(ctx context.Context, db *sqlx.DB, rec *tenant.Record) (*seed.Report, error)
}

//
// Request / result
//

// Request carries the caller-supplied fields for a new tenant.
type Request struct {
	Code         string `json:"code" validate:"required,alphanum,max=50"`
	Nom          string `json:"nom"  validate:"required,max=255"`
	MaxUsers     int    `json:"maxUsers"`
	MaxSites     int    `json:"maxSites"`
	MaxStorageGB int    `json:"maxStorageGb"`
}

// Result is the transient outcome of one provisioning or deprovisioning
// call.  Rollback holds compensation failures from a provisioning unwind;
// StepErrors holds forward-step failures from a deprovision that kept
// going.  The two never mix.
type Result struct {
	Success      bool     `json:"success"`
	DatabaseName string   `json:"databaseName"`
	Message      string   `json:"message"`
	Error        string   `json:"error,omitempty"`
	Rollback     []string `json:"rollbackErrors,omitempty"`
	StepErrors   []string `json:"stepErrors,omitempty"`

	Err error `json:"-"`
}

//
// Orchestrator
//

// Orchestrator drives the tenant lifecycle state machine.
type Orchestrator struct {
	store   MetadataStore
	admin   DatabaseAdmin
	pool    HandlePool
	migrate Migrator
	seeder  Seeder
}

// New wires an Orchestrator from its collaborators.
func New(store MetadataStore, admin DatabaseAdmin, hp HandlePool, m Migrator, s Seeder) *Orchestrator {
	return &Orchestrator{store: store, admin: admin, pool: hp, migrate: m, seeder: s}
}

// undo is one compensating action, pushed as its forward step completes.
type undo struct {
	step string
	fn   func(ctx context.Context) error
}

// Provision creates a fully active tenant or undoes every side effect.
func (o *Orchestrator) Provision(ctx context.Context, req Request) *Result {
	log := zap.S().With("tenant", req.Code)

	// 1. Validate.  No side effects yet.
	if err := validateRequest(req); err != nil {
		return failNoSideEffects(req, err)
	}

	// 2. Uniqueness of the code against existing metadata.
	if _, err := o.store.FindByCode(ctx, req.Code); err == nil {
		return failNoSideEffects(req, &fault.ConflictError{Resource: "tenant code", Value: req.Code})
	} else if !errors.Is(err, tenant.ErrNotFound) {
		return failNoSideEffects(req, fmt.Errorf("lookup tenant code: %w", err))
	}

	// 3. Derived database name must not exist at the server level either.
	dbName := tenant.DatabaseName(req.Code)
	exists, err := o.admin.DatabaseExists(ctx, dbName)
	if err != nil {
		return failNoSideEffects(req, fmt.Errorf("check database: %w", err))
	}
	if exists {
		return failNoSideEffects(req, &fault.ConflictError{Resource: "database", Value: dbName})
	}

	var undos []undo

	// 4. Metadata row, status = inactive (provisioning-in-progress marker).
	rec := &tenant.Record{
		Code:         req.Code,
		Nom:          req.Nom,
		DatabaseName: dbName,
		Status:       tenant.StatusInactive,
		MaxUsers:     orDefault(req.MaxUsers, defaultMaxUsers),
		MaxSites:     orDefault(req.MaxSites, defaultMaxSites),
		MaxStorageGB: orDefault(req.MaxStorageGB, defaultMaxStorageGB),
	}
	if err := o.store.Create(ctx, rec); err != nil {
		return failNoSideEffects(req, fmt.Errorf("insert tenant metadata: %w", err))
	}
	undos = append(undos, undo{"delete metadata", func(ctx context.Context) error {
		return o.store.Delete(ctx, rec.ID)
	}})
	log.Infow("tenant metadata created", "id", rec.ID)

	// 5. Physical database.
	if err := o.admin.CreateDatabase(ctx, dbName); err != nil {
		return o.rollback(req, dbName, undos, fmt.Errorf("create database: %w", err))
	}
	undos = append(undos, undo{"drop database", func(ctx context.Context) error {
		return o.admin.DropDatabase(ctx, dbName)
	}})
	log.Infow("tenant database created", "database", dbName)

	// 6. First connection, then migrations.
	handle, err := o.pool.Get(ctx, req.Code)
	if err != nil {
		return o.rollback(req, dbName, undos, err)
	}
	undos = append(undos, undo{"close connection", func(context.Context) error {
		o.pool.Close(req.Code)
		return nil
	}})

	res, err := o.migrate(ctx, handle.DB)
	if err != nil {
		return o.rollback(req, dbName, undos, err)
	}
	log.Infow("tenant migrated", "applied", len(res.Applied))

	// 7. Seed.  A tenant with zero logins is useless, so an empty user
	// report fails the workflow.
	report, err := o.seeder.Run(ctx, handle.DB, rec)
	if err != nil {
		return o.rollback(req, dbName, undos, err)
	}
	if len(report.Users) == 0 {
		cause := errors.Join(report.Errors...)
		if cause == nil {
			cause = errors.New("no default user created")
		}
		return o.rollback(req, dbName, undos,
			&fault.InitializationError{Step: "default users", Fatal: true, Err: cause})
	}

	// 8. Activate.
	if err := o.store.UpdateStatus(ctx, rec.ID, tenant.StatusActive); err != nil {
		return o.rollback(req, dbName, undos, fmt.Errorf("activate tenant: %w", err))
	}

	metrics.ProvisionTotal.WithLabelValues("success").Inc()
	log.Infow("tenant provisioned", "database", dbName, "users", len(report.Users))
	return &Result{
		Success:      true,
		DatabaseName: dbName,
		Message:      fmt.Sprintf("société %s provisionnée", req.Code),
	}
}

// rollback unwinds the undo stack in reverse order, best-effort, and
// builds the failure result around the primary cause.
func (o *Orchestrator) rollback(req Request, dbName string, undos []undo, cause error) *Result {
	log := zap.S().With("tenant", req.Code)
	log.Errorw("provisioning failed, rolling back", "err", cause, "steps", len(undos))

	ctx, cancel := context.WithTimeout(context.WithoutCancel(context.Background()), rollbackTimeout)
	defer cancel()

	var rbErrs []string
	for i := len(undos) - 1; i >= 0; i-- {
		u := undos[i]
		if err := u.fn(ctx); err != nil {
			rb := &fault.RollbackError{Step: u.step, Err: err}
			// Manual cleanup may be required; surface as an operational
			// alert, keep the primary error intact.
			log.Errorw("rollback step failed", "step", u.step, "err", err)
			rbErrs = append(rbErrs, rb.Error())
		}
	}

	if len(rbErrs) > 0 {
		metrics.ProvisionTotal.WithLabelValues("rollback_failure").Inc()
	} else {
		metrics.ProvisionTotal.WithLabelValues("failure").Inc()
	}

	return &Result{
		Success:      false,
		DatabaseName: dbName,
		Message:      fmt.Sprintf("échec du provisionnement de %s", req.Code),
		Error:        cause.Error(),
		Rollback:     rbErrs,
		Err:          cause,
	}
}

// failNoSideEffects reports validation and conflict failures detected
// before any mutation.
func failNoSideEffects(req Request, cause error) *Result {
	metrics.ProvisionTotal.WithLabelValues("failure").Inc()
	return &Result{
		Success:      false,
		DatabaseName: tenant.DatabaseName(req.Code),
		Message:      fmt.Sprintf("échec du provisionnement de %s", req.Code),
		Error:        cause.Error(),
		Err:          cause,
	}
}

// Deprovision mirrors creation in reverse: suspend, close the pooled
// connection, drop the physical database (terminating remaining backends
// first), delete the metadata row.  Each step's failure is recorded and
// the routine still attempts every later step that remains safe.
func (o *Orchestrator) Deprovision(ctx context.Context, code string) *Result {
	log := zap.S().With("tenant", code)

	rec, err := o.store.FindByCode(ctx, code)
	if err != nil {
		return &Result{
			Success: false,
			Message: fmt.Sprintf("échec de la suppression de %s", code),
			Error:   err.Error(),
			Err:     err,
		}
	}

	var stepErrs []string

	if err := o.store.UpdateStatus(ctx, rec.ID, tenant.StatusSuspended); err != nil {
		log.Errorw("suspend tenant", "err", err)
		stepErrs = append(stepErrs, fmt.Sprintf("suspend: %v", err))
	}

	// Close our own handle before dropping, so the application does not
	// keep a pool pointed at a database being torn down.
	o.pool.Close(code)

	if err := o.admin.DropDatabase(ctx, rec.DatabaseName); err != nil {
		log.Errorw("drop tenant database", "database", rec.DatabaseName, "err", err)
		stepErrs = append(stepErrs, fmt.Sprintf("drop database: %v", err))
	}

	if err := o.store.Delete(ctx, rec.ID); err != nil {
		log.Errorw("delete tenant metadata", "err", err)
		stepErrs = append(stepErrs, fmt.Sprintf("delete metadata: %v", err))
	}

	if len(stepErrs) > 0 {
		return &Result{
			Success:      false,
			DatabaseName: rec.DatabaseName,
			Message:      fmt.Sprintf("suppression partielle de %s", code),
			StepErrors:   stepErrs,
			Err:          errors.New(stepErrs[0]),
			Error:        stepErrs[0],
		}
	}

	log.Infow("tenant deprovisioned", "database", rec.DatabaseName)
	return &Result{
		Success:      true,
		DatabaseName: rec.DatabaseName,
		Message:      fmt.Sprintf("société %s supprimée", code),
	}
}

func orDefault(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}
