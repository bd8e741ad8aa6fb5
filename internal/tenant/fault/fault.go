// internal/tenant/fault/fault.go
//
// Error taxonomy for the tenant-lifecycle core.
//
// Context
// -------
// Every component returns one of the typed errors below so callers (the
// provisioning orchestrator, the HTTP layer) can branch on the *kind* of
// failure without string matching.  All types wrap an underlying cause
// where one exists, so errors.Is and errors.As keep working through the
// whole chain.
//
// Notes
// -----
//   - Validation and Conflict are detected before any mutation; the HTTP
//     layer maps them to 400 and 409.
//   - Rollback errors are never the primary error a caller sees; they are
//     carried as supplementary detail on the provisioning result.
package fault

import "fmt"

// ValidationError reports missing or malformed input.  No side effects
// have occurred when it is returned.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Reason
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

// ConflictError reports a duplicate tenant code or a pre-existing physical
// database.  No side effects have occurred when it is returned.
type ConflictError struct {
	Resource string // "tenant code" or "database"
	Value    string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict: %s %q already exists", e.Resource, e.Value)
}

// ConnectionError reports that a tenant database could not be reached or
// initialized.  Callers decide whether to retry; the pool never does.
type ConnectionError struct {
	Tenant string
	Err    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect tenant %q: %v", e.Tenant, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// MigrationError reports a failed migration, possibly after earlier ones
// in the same run committed.  Applied lists the migrations that succeeded
// before the failure; they are not rolled back.
type MigrationError struct {
	Failed  string
	Applied []string
	Err     error
}

func (e *MigrationError) Error() string {
	return fmt.Sprintf("migration %s failed after %d applied: %v", e.Failed, len(e.Applied), e.Err)
}

func (e *MigrationError) Unwrap() error { return e.Err }

// InitializationError reports a seed failure.  Fatal is true only for
// default-user creation; secondary seed data (system parameters, business
// defaults) is best-effort and never produces a fatal error.
type InitializationError struct {
	Step  string
	Fatal bool
	Err   error
}

func (e *InitializationError) Error() string {
	return fmt.Sprintf("initialize %s: %v", e.Step, e.Err)
}

func (e *InitializationError) Unwrap() error { return e.Err }

// AuthorizationError reports that the caller lacks access to the tenant or
// site named by the request.  The HTTP layer maps it to 403.
type AuthorizationError struct {
	Reason string
}

func (e *AuthorizationError) Error() string { return "forbidden: " + e.Reason }

// RollbackError reports a failed compensation step.  It is logged and
// attached to the provisioning result as supplementary detail; it never
// replaces the primary error.
type RollbackError struct {
	Step string
	Err  error
}

func (e *RollbackError) Error() string {
	return fmt.Sprintf("rollback %s: %v", e.Step, e.Err)
}

func (e *RollbackError) Unwrap() error { return e.Err }
