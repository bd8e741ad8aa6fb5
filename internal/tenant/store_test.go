// internal/tenant/store_test.go
//
// Unit-tests for Store query helpers using sqlmock.
//
// Run: go test ./internal/tenant -v

package tenant

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(false))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewStore(sqlx.NewDb(db, "sqlmock")), mock
}

func TestFindByCode(t *testing.T) {
	store, mock := newMockStore(t)

	id := uuid.New()
	now := time.Now().UTC()
	cols := []string{
		"id", "code", "nom", "database_name", "status", "max_users",
		"max_sites", "max_storage_gb", "suspended_at", "deleted_at",
		"created_at", "updated_at",
	}
	mock.ExpectQuery(regexp.QuoteMeta("FROM societes")).
		WithArgs("ACME").
		WillReturnRows(sqlmock.NewRows(cols).AddRow(
			id, "ACME", "ACME Métallerie", "erp_topsteel_acme", "active",
			10, 5, 50, nil, nil, now, now))

	rec, err := store.FindByCode(context.Background(), "ACME")
	if err != nil {
		t.Fatalf("FindByCode error: %v", err)
	}
	if rec.ID != id || rec.DatabaseName != "erp_topsteel_acme" || rec.Status != StatusActive {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}

func TestFindByCodeNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM societes")).
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := store.FindByCode(context.Background(), "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestFindByCodeIsCaseInsensitive(t *testing.T) {
	store, mock := newMockStore(t)

	id := uuid.New()
	now := time.Now().UTC()
	cols := []string{
		"id", "code", "nom", "database_name", "status", "max_users",
		"max_sites", "max_storage_gb", "suspended_at", "deleted_at",
		"created_at", "updated_at",
	}
	// The statement must fold both sides; a lowercase lookup has to reach
	// a row whose stored code is uppercase.
	mock.ExpectQuery(regexp.QuoteMeta("lower(code) = lower($1)")).
		WithArgs("acme").
		WillReturnRows(sqlmock.NewRows(cols).AddRow(
			id, "ACME", "ACME Métallerie", "erp_topsteel_acme", "active",
			10, 5, 50, nil, nil, now, now))

	rec, err := store.FindByCode(context.Background(), "acme")
	if err != nil {
		t.Fatalf("FindByCode error: %v", err)
	}
	if rec.ID != id || rec.Code != "ACME" {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}

func TestCreateAssignsID(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO societes")).
		WithArgs(sqlmock.AnyArg(), "acier", "Acier SA", "erp_topsteel_acier",
			string(StatusInactive), 10, 5, 50).
		WillReturnResult(sqlmock.NewResult(0, 1))

	rec := &Record{
		Code:         "acier",
		Nom:          "Acier SA",
		DatabaseName: "erp_topsteel_acier",
		Status:       StatusInactive,
		MaxUsers:     10,
		MaxSites:     5,
		MaxStorageGB: 50,
	}
	if err := store.Create(context.Background(), rec); err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if rec.ID == uuid.Nil {
		t.Fatal("Create left ID unset")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}

func TestUpdateStatusSuspendSetsMarker(t *testing.T) {
	store, mock := newMockStore(t)

	id := uuid.New()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE societes")).
		WithArgs(id, string(StatusSuspended), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.UpdateStatus(context.Background(), id, StatusSuspended); err != nil {
		t.Fatalf("UpdateStatus error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}

func TestDatabaseNameDerivation(t *testing.T) {
	cases := map[string]string{
		"ACME":    "erp_topsteel_acme",
		" Acme ":  "erp_topsteel_acme",
		"metal42": "erp_topsteel_metal42",
	}
	for code, want := range cases {
		if got := DatabaseName(code); got != want {
			t.Errorf("DatabaseName(%q) = %q, want %q", code, got, want)
		}
	}
}
