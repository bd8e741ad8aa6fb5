// internal/tenant/record.go
//
// `societes` table row model.
//
// Context
// -------
// The `Record` struct mirrors one row in the control-plane **societes**
// table.  It is owned by the provisioning orchestrator: request-serving
// code reads it but never mutates it; status transitions happen only
// during provisioning, suspension, and deletion.
//
// Schema reference (2025-07-02)
//
//	CREATE TABLE societes (
//	    id             UUID PRIMARY KEY,
//	    code           VARCHAR(50)  NOT NULL UNIQUE,
//	    nom            VARCHAR(255) NOT NULL,
//	    database_name  VARCHAR(128) NOT NULL,
//	    status         VARCHAR(16)  NOT NULL DEFAULT 'inactive',
//	    max_users      INT          NOT NULL DEFAULT 10,
//	    max_sites      INT          NOT NULL DEFAULT 5,
//	    max_storage_gb INT          NOT NULL DEFAULT 50,
//	    suspended_at   TIMESTAMPTZ NULL,
//	    deleted_at     TIMESTAMPTZ NULL,
//	    created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
//	    updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
//	);
//
// Notes
// -----
// • Nullable timestamps are `*time.Time`; callers must nil-check before use.
// • A record is ACTIVE if and only if its physical database exists, is
//   migrated, and holds the committed seed data.  No request is routed to
//   a tenant database before that point.
// • This struct contains no behaviour—pure data model for sqlx scans.

package tenant

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state stored on the societes row.
type Status string

const (
	// StatusInactive marks provisioning in progress; no request routing.
	StatusInactive Status = "inactive"
	// StatusActive marks a fully provisioned, routable tenant.
	StatusActive Status = "active"
	// StatusSuspended marks a tenant disabled by an operator (billing,
	// deprovisioning in progress).
	StatusSuspended Status = "suspended"
)

// DatabasePrefix is the fixed prefix of every tenant database name.  The
// derived name is stored verbatim on the record and must never be
// recomputed differently elsewhere; DatabaseName is the single source of
// truth.
const DatabasePrefix = "erp_topsteel_"

// DatabaseName derives the physical database name from a tenant code.
func DatabaseName(code string) string {
	return DatabasePrefix + PoolKey(code)
}

// PoolKey normalizes a tenant code into the key used by the connection
// pool and the database-name derivation.
func PoolKey(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}

// Record mirrors one row in the `societes` table.
type Record struct {
	ID           uuid.UUID  `db:"id"`
	Code         string     `db:"code"`
	Nom          string     `db:"nom"`
	DatabaseName string     `db:"database_name"`
	Status       Status     `db:"status"`
	MaxUsers     int        `db:"max_users"`
	MaxSites     int        `db:"max_sites"`
	MaxStorageGB int        `db:"max_storage_gb"`
	SuspendedAt  *time.Time `db:"suspended_at"`
	DeletedAt    *time.Time `db:"deleted_at"`
	CreatedAt    time.Time  `db:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at"`
}
