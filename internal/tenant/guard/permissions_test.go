// internal/tenant/guard/permissions_test.go
//
// Unit-tests for the permission algebra.
//
// Run: go test ./internal/tenant/guard -v

package guard

import (
	"reflect"
	"testing"
)

func TestEffectivePermissionsMerge(t *testing.T) {
	got := EffectivePermissions(
		[]string{"reports:view"}, // global
		RoleUser,                 // read, write
		[]string{"export"},       // granted
		[]string{"write"},        // restricted
	)
	want := []string{"export", "read", "reports:view"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("effective = %v, want %v", got, want)
	}
}

func TestEffectivePermissionsRestrictionBeatsGrant(t *testing.T) {
	got := EffectivePermissions(nil, RoleViewer, []string{"write"}, []string{"write"})
	want := []string{"read"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("effective = %v, want %v", got, want)
	}
}

func TestEffectivePermissionsOwnerWildcard(t *testing.T) {
	got := EffectivePermissions(nil, RoleOwner, nil, nil)
	if !reflect.DeepEqual(got, []string{Wildcard}) {
		t.Fatalf("owner set = %v", got)
	}
	if !Allows(got, "anything:at:all") {
		t.Fatal("wildcard did not allow")
	}

	// An explicit restriction removes even the wildcard.
	got = EffectivePermissions(nil, RoleOwner, nil, []string{Wildcard})
	if Allows(got, "read") {
		t.Fatal("restricted wildcard still allowed")
	}
}

func TestRolePermissionsUnknownRole(t *testing.T) {
	if got := RolePermissions("SUPERVISOR"); len(got) != 0 {
		t.Fatalf("unknown role yielded %v", got)
	}
	if got := RolePermissions(RoleGuest); len(got) != 0 {
		t.Fatalf("guest role yielded %v", got)
	}
}

func TestAllows(t *testing.T) {
	perms := []string{"read", "write"}
	if !Allows(perms, "read") {
		t.Fatal("read denied")
	}
	if Allows(perms, "delete") {
		t.Fatal("delete allowed")
	}
	if Allows(nil, "read") {
		t.Fatal("empty set allowed")
	}
}
