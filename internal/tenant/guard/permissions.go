// internal/tenant/guard/permissions.go
//
// Fixed role-to-permission mapping.
//
// Context
// -------
// Tenant-scoped roles form a closed enumeration — operators cannot edit
// this table at runtime.  The effective permission set for a request is
// computed in four passes: the caller's global permissions, union the
// role-derived set below, union per-membership grants, minus per-
// membership restrictions.  The wildcard "*" (OWNER) short-circuits reads
// through Allows but is still subject to explicit restriction.
package guard

import "sort"

// Tenant-scoped roles.
const (
	RoleOwner   = "OWNER"
	RoleAdmin   = "ADMIN"
	RoleManager = "MANAGER"
	RoleUser    = "USER"
	RoleViewer  = "VIEWER"
	RoleGuest   = "GUEST"
)

// Wildcard grants every permission.
const Wildcard = "*"

var rolePermissions = map[string][]string{
	RoleOwner:   {Wildcard},
	RoleAdmin:   {"read", "write", "delete", "users:manage", "settings:manage"},
	RoleManager: {"read", "write", "delete"},
	RoleUser:    {"read", "write"},
	RoleViewer:  {"read"},
	RoleGuest:   {},
}

// RolePermissions returns the fixed permission set for a role.  Unknown
// roles map to nothing.
func RolePermissions(role string) []string {
	return rolePermissions[role]
}

// EffectivePermissions merges global, role-derived, and granted
// permissions, then subtracts explicit restrictions.  The result is
// sorted for stable output.
func EffectivePermissions(global []string, role string, granted, restricted []string) []string {
	set := make(map[string]struct{})
	for _, p := range global {
		set[p] = struct{}{}
	}
	for _, p := range RolePermissions(role) {
		set[p] = struct{}{}
	}
	for _, p := range granted {
		set[p] = struct{}{}
	}
	for _, p := range restricted {
		delete(set, p)
	}

	out := make([]string, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Allows reports whether perms contains the wanted permission, honouring
// the wildcard.
func Allows(perms []string, want string) bool {
	for _, p := range perms {
		if p == Wildcard || p == want {
			return true
		}
	}
	return false
}
