// internal/auth/context.go
//
// Minimal caller-identity helper so the guard middleware can run without
// pulling in the full authentication system (token issuance is owned by
// the surrounding web layer).
//
// Usage
// -----
//     // Attach the authenticated caller (after token verification).
//     ctx = auth.WithIdentity(ctx, id, perms)
//
//     // Downstream code retrieves it.
//     ident, ok := auth.IdentityFrom(ctx)
//
// Notes
// -----
// • Stores the user ID and global permission list directly in context.

package auth

import (
	"context"

	"github.com/google/uuid"
)

// identityKey is unexported to avoid context-key collisions.
type identityKey struct{}

// Identity is the authenticated caller.
type Identity struct {
	UserID      uuid.UUID
	GlobalPerms []string
}

// WithIdentity returns a new context carrying the given caller.
func WithIdentity(ctx context.Context, userID uuid.UUID, globalPerms []string) context.Context {
	return context.WithValue(ctx, identityKey{}, Identity{UserID: userID, GlobalPerms: globalPerms})
}

// IdentityFrom extracts the caller from ctx.  It returns (zero, false)
// when no identity is set.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	v, ok := ctx.Value(identityKey{}).(Identity)
	return v, ok
}
