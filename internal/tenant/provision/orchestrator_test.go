// internal/tenant/provision/orchestrator_test.go
//
// Workflow tests for the provisioning orchestrator.
//
// Context
// -------
// The orchestrator is exercised through in-memory fakes of its four
// collaborators, so the tests pin the workflow itself:
//
//   • pre-mutation failures (validation, duplicate code) leave no trace
//   • a mid-sequence failure unwinds every earlier side effect, in reverse
//   • a tenant seeded with zero users never activates
//   • deprovisioning keeps going when one step fails
//
// Run: go test ./internal/tenant/provision -v

package provision

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/topsteel/erp-core/internal/tenant"
	"github.com/topsteel/erp-core/internal/tenant/fault"
	"github.com/topsteel/erp-core/internal/tenant/migrate"
	"github.com/topsteel/erp-core/internal/tenant/pool"
	"github.com/topsteel/erp-core/internal/tenant/seed"
)

//
// Fakes
//

type fakeStore struct {
	existing map[string]*tenant.Record

	created  []*tenant.Record
	statuses []tenant.Status
	deleted  []uuid.UUID
}

func (f *fakeStore) FindByCode(_ context.Context, code string) (*tenant.Record, error) {
	if r, ok := f.existing[code]; ok {
		return r, nil
	}
	return nil, tenant.ErrNotFound
}

func (f *fakeStore) Create(_ context.Context, rec *tenant.Record) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	f.created = append(f.created, rec)
	return nil
}

func (f *fakeStore) UpdateStatus(_ context.Context, _ uuid.UUID, st tenant.Status) error {
	f.statuses = append(f.statuses, st)
	return nil
}

func (f *fakeStore) Delete(_ context.Context, id uuid.UUID) error {
	f.deleted = append(f.deleted, id)
	return nil
}

type fakeAdmin struct {
	taken map[string]bool

	created []string
	dropped []string
	dropErr error
}

func (f *fakeAdmin) DatabaseExists(_ context.Context, name string) (bool, error) {
	return f.taken[name], nil
}

func (f *fakeAdmin) CreateDatabase(_ context.Context, name string) error {
	f.created = append(f.created, name)
	return nil
}

func (f *fakeAdmin) DropDatabase(_ context.Context, name string) error {
	f.dropped = append(f.dropped, name)
	return f.dropErr
}

type fakePool struct {
	gets   []string
	closed []string
	getErr error
}

func (f *fakePool) Get(_ context.Context, code string) (*pool.Handle, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	f.gets = append(f.gets, code)
	return &pool.Handle{Key: tenant.PoolKey(code)}, nil
}

func (f *fakePool) Close(code string) { f.closed = append(f.closed, code) }

type fakeSeeder struct {
	report *seed.Report
	err    error
}

func (f *fakeSeeder) Run(context.Context, *sqlx.DB, *tenant.Record) (*seed.Report, error) {
	return f.report, f.err
}

func okMigrator(context.Context, *sqlx.DB) (*migrate.Result, error) {
	return &migrate.Result{Success: true, Applied: []string{"0001_users.sql"}}, nil
}

func newFixture(seeder Seeder, m Migrator) (*Orchestrator, *fakeStore, *fakeAdmin, *fakePool) {
	store := &fakeStore{existing: map[string]*tenant.Record{}}
	admin := &fakeAdmin{taken: map[string]bool{}}
	fp := &fakePool{}
	return New(store, admin, fp, m, seeder), store, admin, fp
}

func seededOK() *fakeSeeder {
	return &fakeSeeder{report: &seed.Report{Users: []seed.CreatedUser{
		{ID: uuid.New(), Email: "admin@acme.topsteel.local", Role: seed.RoleAdmin},
	}}}
}

//
// Provision
//

func TestProvisionHappyPath(t *testing.T) {
	orch, store, admin, fp := newFixture(seededOK(), okMigrator)

	res := orch.Provision(context.Background(), Request{Code: "ACME", Nom: "ACME Métallerie"})
	if !res.Success {
		t.Fatalf("Provision failed: %s", res.Error)
	}
	if res.DatabaseName != "erp_topsteel_acme" {
		t.Fatalf("database name = %q", res.DatabaseName)
	}
	if len(store.created) != 1 || store.created[0].Status != tenant.StatusInactive {
		t.Fatalf("metadata row: %+v", store.created)
	}
	if len(store.statuses) != 1 || store.statuses[0] != tenant.StatusActive {
		t.Fatalf("status transitions: %v", store.statuses)
	}
	if len(admin.created) != 1 || admin.created[0] != "erp_topsteel_acme" {
		t.Fatalf("databases created: %v", admin.created)
	}
	if len(admin.dropped) != 0 || len(store.deleted) != 0 || len(fp.closed) != 0 {
		t.Fatal("success path ran compensating actions")
	}
}

func TestProvisionDuplicateCodeHasNoSideEffects(t *testing.T) {
	orch, store, admin, fp := newFixture(seededOK(), okMigrator)
	store.existing["ACME"] = &tenant.Record{ID: uuid.New(), Code: "ACME"}

	res := orch.Provision(context.Background(), Request{Code: "ACME", Nom: "Duplicate"})
	if res.Success {
		t.Fatal("duplicate code provisioned")
	}
	var ce *fault.ConflictError
	if !errors.As(res.Err, &ce) {
		t.Fatalf("err = %v, want *fault.ConflictError", res.Err)
	}
	if len(store.created) != 0 || len(admin.created) != 0 || len(fp.gets) != 0 {
		t.Fatal("rejected request mutated state")
	}
}

func TestProvisionInvalidCodeRejected(t *testing.T) {
	orch, store, _, _ := newFixture(seededOK(), okMigrator)

	res := orch.Provision(context.Background(), Request{Code: "bad-code!", Nom: "X"})
	if res.Success {
		t.Fatal("invalid code provisioned")
	}
	var ve *fault.ValidationError
	if !errors.As(res.Err, &ve) {
		t.Fatalf("err = %v, want *fault.ValidationError", res.Err)
	}
	if len(store.created) != 0 {
		t.Fatal("validation failure mutated state")
	}
}

func TestProvisionMigrationFailureRollsBack(t *testing.T) {
	cause := &fault.MigrationError{Failed: "0002_broken.sql", Err: errors.New("syntax error")}
	failing := func(context.Context, *sqlx.DB) (*migrate.Result, error) { return nil, cause }

	orch, store, admin, fp := newFixture(seededOK(), failing)

	res := orch.Provision(context.Background(), Request{Code: "ACME", Nom: "ACME"})
	if res.Success {
		t.Fatal("failed migration still provisioned")
	}
	var me *fault.MigrationError
	if !errors.As(res.Err, &me) {
		t.Fatalf("err = %v, want *fault.MigrationError", res.Err)
	}

	// Reverse unwind: connection closed, database dropped, metadata gone.
	if len(fp.closed) != 1 {
		t.Fatalf("pool closes: %v", fp.closed)
	}
	if len(admin.dropped) != 1 || admin.dropped[0] != "erp_topsteel_acme" {
		t.Fatalf("databases dropped: %v", admin.dropped)
	}
	if len(store.deleted) != 1 {
		t.Fatalf("metadata deletions: %v", store.deleted)
	}
	if len(store.statuses) != 0 {
		t.Fatalf("tenant must never activate, transitions: %v", store.statuses)
	}
	if len(res.Rollback) != 0 {
		t.Fatalf("clean rollback reported failures: %v", res.Rollback)
	}
}

func TestProvisionZeroUsersNeverActivates(t *testing.T) {
	empty := &fakeSeeder{report: &seed.Report{
		Errors: []error{errors.New("create admin: duplicate key")},
	}}
	orch, store, admin, _ := newFixture(empty, okMigrator)

	res := orch.Provision(context.Background(), Request{Code: "ACME", Nom: "ACME"})
	if res.Success {
		t.Fatal("tenant with zero users provisioned")
	}
	var ie *fault.InitializationError
	if !errors.As(res.Err, &ie) {
		t.Fatalf("err = %v, want *fault.InitializationError", res.Err)
	}
	if !ie.Fatal {
		t.Fatal("zero-user seeding must be fatal")
	}
	if len(store.statuses) != 0 {
		t.Fatalf("tenant activated anyway: %v", store.statuses)
	}
	if len(admin.dropped) != 1 {
		t.Fatalf("database not torn down: %v", admin.dropped)
	}
}

func TestProvisionRollbackFailureKeepsPrimaryError(t *testing.T) {
	cause := errors.New("seed exploded")
	orch, _, admin, _ := newFixture(&fakeSeeder{err: cause}, okMigrator)
	admin.dropErr = errors.New("database busy")

	res := orch.Provision(context.Background(), Request{Code: "ACME", Nom: "ACME"})
	if res.Success {
		t.Fatal("failed seed still provisioned")
	}
	if !errors.Is(res.Err, cause) {
		t.Fatalf("primary error replaced: %v", res.Err)
	}
	if len(res.Rollback) != 1 {
		t.Fatalf("rollback failures: %v", res.Rollback)
	}
}

//
// Deprovision
//

func TestDeprovisionFullSequence(t *testing.T) {
	orch, store, admin, fp := newFixture(seededOK(), okMigrator)
	id := uuid.New()
	store.existing["ACME"] = &tenant.Record{
		ID: id, Code: "ACME", DatabaseName: "erp_topsteel_acme", Status: tenant.StatusActive,
	}

	res := orch.Deprovision(context.Background(), "ACME")
	if !res.Success {
		t.Fatalf("Deprovision failed: %s", res.Error)
	}
	if len(store.statuses) != 1 || store.statuses[0] != tenant.StatusSuspended {
		t.Fatalf("status transitions: %v", store.statuses)
	}
	if len(fp.closed) != 1 || fp.closed[0] != "ACME" {
		t.Fatalf("pool closes: %v", fp.closed)
	}
	if len(admin.dropped) != 1 || admin.dropped[0] != "erp_topsteel_acme" {
		t.Fatalf("databases dropped: %v", admin.dropped)
	}
	if len(store.deleted) != 1 || store.deleted[0] != id {
		t.Fatalf("metadata deletions: %v", store.deleted)
	}
}

func TestDeprovisionUnknownTenant(t *testing.T) {
	orch, _, admin, _ := newFixture(seededOK(), okMigrator)

	res := orch.Deprovision(context.Background(), "ghost")
	if res.Success {
		t.Fatal("unknown tenant deprovisioned")
	}
	if !errors.Is(res.Err, tenant.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", res.Err)
	}
	if len(admin.dropped) != 0 {
		t.Fatalf("unknown tenant dropped a database: %v", admin.dropped)
	}
}

func TestDeprovisionContinuesPastDropFailure(t *testing.T) {
	orch, store, admin, _ := newFixture(seededOK(), okMigrator)
	admin.dropErr = errors.New("database busy")
	store.existing["ACME"] = &tenant.Record{
		ID: uuid.New(), Code: "ACME", DatabaseName: "erp_topsteel_acme",
	}

	res := orch.Deprovision(context.Background(), "ACME")
	if res.Success {
		t.Fatal("partial teardown reported success")
	}
	// Metadata deletion still ran after the drop failed.
	if len(store.deleted) != 1 {
		t.Fatalf("metadata deletions: %v", store.deleted)
	}
	if len(res.StepErrors) != 1 || !strings.Contains(res.StepErrors[0], "drop database") {
		t.Fatalf("step failures: %v", res.StepErrors)
	}
	// Forward-step failures never masquerade as compensation failures.
	if len(res.Rollback) != 0 {
		t.Fatalf("rollback errors: %v", res.Rollback)
	}
}
