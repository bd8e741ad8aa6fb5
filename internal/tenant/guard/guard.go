// internal/tenant/guard/guard.go
//
// Tenant resolution and request authorization.
//
// Context
// -------
// Every tenant-scoped request must be mapped to exactly one societe, the
// caller's access verified, and a live connection handle attached before
// any business code runs.  Resolve is that single chokepoint:
//
//  1. Extract the tenant code (header > query > body).
//  2. Confirm the societe exists and is ACTIVE — no request is ever
//     routed to a tenant database before activation.
//  3. Confirm the caller's membership (active, inside its validity
//     window, site allow-list honoured).
//  4. Borrow the pool handle — the one place request handling may block
//     on first-touch connection setup.
//  5. Compute the effective permission set.
//  6. Record last-activity off the critical path.
//
// The returned Context is request-scoped: built fresh per request, never
// shared, discarded at request end.
package guard

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/topsteel/erp-core/internal/cache"
	"github.com/topsteel/erp-core/internal/tenant"
	"github.com/topsteel/erp-core/internal/tenant/fault"
	"github.com/topsteel/erp-core/internal/tenant/pool"
)

// Request surface for tenant and site identification.
const (
	HeaderSociete  = "X-Societe-Id"
	HeaderSite     = "X-Site-Id"
	QuerySociete   = "societe"
	QuerySite      = "site"
	bodySocieteKey = "societeId"
)

// Identity is the caller as established by the surrounding auth layer
// (token issuance is out of scope here).
type Identity struct {
	UserID      uuid.UUID
	GlobalPerms []string
}

// Context is the per-request bundle handed downstream.  DB is borrowed
// from the pool; holders must never close it.
type Context struct {
	TenantID    uuid.UUID
	TenantCode  string
	SiteID      string
	UserID      uuid.UUID
	Role        string
	Permissions []string
	DB          *sqlx.DB
}

// Allows reports whether the request context carries a permission.
func (c *Context) Allows(perm string) bool { return Allows(c.Permissions, perm) }

// Record-cache sizing.  Entries expire so status changes made outside
// this process converge within recordTTL; changes made through this
// process call Invalidate and take effect immediately.
const (
	recordCacheSize = 1024
	recordTTL       = 15 * time.Second
)

// Resolver maps inbound requests to tenant contexts.
type Resolver struct {
	tenants     *tenant.Store
	memberships *MembershipStore
	pool        *pool.Pool
	records     *cache.LRU
}

// NewResolver wires a Resolver.
func NewResolver(tenants *tenant.Store, memberships *MembershipStore, p *pool.Pool) *Resolver {
	return &Resolver{
		tenants:     tenants,
		memberships: memberships,
		pool:        p,
		records:     cache.New(recordCacheSize, recordTTL),
	}
}

// Invalidate drops the cached record for a tenant code, if present.
func (r *Resolver) Invalidate(code string) {
	r.records.Remove(tenant.PoolKey(code))
}

// lookup returns the control-plane record for a code, consulting the
// short-TTL cache first.
func (r *Resolver) lookup(ctx context.Context, code string) (*tenant.Record, error) {
	key := tenant.PoolKey(code)
	if v, ok := r.records.Get(key); ok {
		return v.(*tenant.Record), nil
	}
	rec, err := r.tenants.FindByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	r.records.Add(key, rec)
	return rec, nil
}

// Resolve authorizes one request and returns its tenant context, or a
// typed error the HTTP layer maps to a status code.
func (r *Resolver) Resolve(req *http.Request, ident Identity) (*Context, error) {
	ctx := req.Context()

	code := ExtractTenantCode(req)
	if code == "" {
		return nil, &fault.ValidationError{Field: "societe", Reason: "tenant identifier missing"}
	}

	rec, err := r.lookup(ctx, code)
	if err != nil {
		if errors.Is(err, tenant.ErrNotFound) {
			return nil, &fault.AuthorizationError{Reason: "unknown societe"}
		}
		return nil, err
	}
	if rec.Status != tenant.StatusActive {
		return nil, &fault.AuthorizationError{Reason: "societe is not active"}
	}

	m, err := r.memberships.Find(ctx, rec.ID, ident.UserID)
	if err != nil {
		if errors.Is(err, ErrNoMembership) {
			return nil, &fault.AuthorizationError{Reason: "caller is not a member of this societe"}
		}
		return nil, err
	}
	if !m.WithinValidity(time.Now().UTC()) {
		return nil, &fault.AuthorizationError{Reason: "membership outside its validity window"}
	}

	siteID := extractSite(req)
	if siteID != "" && !m.AllowsSite(siteID) {
		return nil, &fault.AuthorizationError{Reason: "site not permitted for this membership"}
	}

	handle, err := r.pool.Get(ctx, rec.Code)
	if err != nil {
		return nil, err
	}

	perms := EffectivePermissions(ident.GlobalPerms, m.Role, m.Granted, m.Restricted)

	// Fire-and-forget: activity bookkeeping never sits on the request's
	// critical path, and its failure never fails the request.
	go func(id uuid.UUID) {
		tctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := r.memberships.TouchActivity(tctx, id); err != nil {
			zap.S().Debugw("membership activity touch", "membership", id, "err", err)
		}
	}(m.ID)

	return &Context{
		TenantID:    rec.ID,
		TenantCode:  tenant.PoolKey(rec.Code),
		SiteID:      siteID,
		UserID:      ident.UserID,
		Role:        m.Role,
		Permissions: perms,
		DB:          handle.DB,
	}, nil
}

// ExtractTenantCode pulls the tenant identifier off a request with the
// fixed precedence header > query > body.  Reading a JSON body restores
// it for downstream handlers.
func ExtractTenantCode(req *http.Request) string {
	if v := strings.TrimSpace(req.Header.Get(HeaderSociete)); v != "" {
		return v
	}
	if v := strings.TrimSpace(req.URL.Query().Get(QuerySociete)); v != "" {
		return v
	}
	return bodyTenantCode(req)
}

func extractSite(req *http.Request) string {
	if v := strings.TrimSpace(req.Header.Get(HeaderSite)); v != "" {
		return v
	}
	return strings.TrimSpace(req.URL.Query().Get(QuerySite))
}

// bodyTenantCode peeks at a JSON body for a societeId field.  The body is
// replaced so handlers can still read it.
func bodyTenantCode(req *http.Request) string {
	if req.Body == nil {
		return ""
	}
	ct := req.Header.Get("Content-Type")
	if !strings.HasPrefix(ct, "application/json") {
		return ""
	}

	raw, err := io.ReadAll(io.LimitReader(req.Body, 1<<20))
	_ = req.Body.Close()
	req.Body = io.NopCloser(bytes.NewReader(raw))
	if err != nil {
		return ""
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return ""
	}
	var code string
	if v, ok := fields[bodySocieteKey]; ok {
		_ = json.Unmarshal(v, &code)
	}
	return strings.TrimSpace(code)
}
