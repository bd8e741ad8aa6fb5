// internal/tenant/guard/guard_test.go
//
// Unit-tests for tenant-code extraction and membership rules.
//
// Context
// -------
// Extraction precedence is a wire contract: header beats query beats JSON
// body, and peeking at the body must leave it readable for the real
// handler.  Membership validity and site allow-lists are pure functions,
// tested directly.
//
// Run: go test ./internal/tenant/guard -v

package guard

import (
	"bytes"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestExtractTenantCodePrecedence(t *testing.T) {
	body := `{"societeId":"bodyco","amount":12}`

	// Header wins over query and body.
	req := httptest.NewRequest("POST", "/api/tenant/orders?societe=queryco",
		strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderSociete, "headerco")
	if got := ExtractTenantCode(req); got != "headerco" {
		t.Fatalf("got %q, want header value", got)
	}

	// Query wins over body.
	req = httptest.NewRequest("POST", "/api/tenant/orders?societe=queryco",
		strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if got := ExtractTenantCode(req); got != "queryco" {
		t.Fatalf("got %q, want query value", got)
	}

	// Body is the last resort.
	req = httptest.NewRequest("POST", "/api/tenant/orders", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if got := ExtractTenantCode(req); got != "bodyco" {
		t.Fatalf("got %q, want body value", got)
	}
}

func TestExtractTenantCodeRestoresBody(t *testing.T) {
	body := `{"societeId":"acme","qty":3}`
	req := httptest.NewRequest("POST", "/api/tenant/orders", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	if got := ExtractTenantCode(req); got != "acme" {
		t.Fatalf("got %q", got)
	}

	// The handler downstream still sees the full body.
	raw, err := io.ReadAll(req.Body)
	if err != nil {
		t.Fatalf("re-read body: %v", err)
	}
	if !bytes.Equal(raw, []byte(body)) {
		t.Fatalf("body mangled: %s", raw)
	}
}

func TestExtractTenantCodeIgnoresNonJSONBody(t *testing.T) {
	req := httptest.NewRequest("POST", "/upload", strings.NewReader("societeId=acme"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if got := ExtractTenantCode(req); got != "" {
		t.Fatalf("got %q, want empty", got)
	}
}

func TestWithinValidity(t *testing.T) {
	now := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)
	past := now.Add(-24 * time.Hour)
	future := now.Add(24 * time.Hour)

	cases := []struct {
		name string
		m    Membership
		want bool
	}{
		{"no window", Membership{}, true},
		{"inside window", Membership{ValidFrom: &past, ValidUntil: &future}, true},
		{"not yet valid", Membership{ValidFrom: &future}, false},
		{"expired", Membership{ValidUntil: &past}, false},
	}
	for _, c := range cases {
		if got := c.m.WithinValidity(now); got != c.want {
			t.Errorf("%s: got %v, want %v", c.name, got, c.want)
		}
	}
}

func TestAllowsSite(t *testing.T) {
	open := Membership{}
	if !open.AllowsSite("paris-01") {
		t.Fatal("absent allow-list must admit every site")
	}

	scoped := Membership{AllowedSites: []string{"paris-01", "lyon-02"}}
	if !scoped.AllowsSite("lyon-02") {
		t.Fatal("listed site denied")
	}
	if scoped.AllowsSite("nice-03") {
		t.Fatal("unlisted site admitted")
	}
}
