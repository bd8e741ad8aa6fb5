// internal/web/router.go
//
// Admin HTTP surface for the tenant lifecycle.
//
// Context
// -------
// The core exposes one call per endpoint and returns plain result/error
// values; this layer owns the HTTP mapping.  Routes:
//
//	POST   /api/admin/societes                      – provision a tenant
//	DELETE /api/admin/societes/{code}               – deprovision a tenant
//	GET    /api/admin/societes/{code}/migrations    – migration status
//	POST   /api/admin/societes/{code}/migrations    – run pending migrations
//	GET    /api/admin/connections                   – active pool snapshot
//	DELETE /api/admin/connections/{code}            – close one pooled handle
//	GET    /api/tenant/me                           – resolved tenant context
//	GET    /healthz                                 – liveness
//
// Business CRUD routes live in the surrounding modules, behind
// guard.RequireTenant; /api/tenant/me is the reference wiring.
package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/topsteel/erp-core/internal/middleware"
	"github.com/topsteel/erp-core/internal/requestinfo"
	"github.com/topsteel/erp-core/internal/tenant/guard"
	"github.com/topsteel/erp-core/internal/tenant/pool"
	"github.com/topsteel/erp-core/internal/tenant/provision"
)

// Server bundles the handlers' collaborators.
type Server struct {
	pool     *pool.Pool
	orch     *provision.Orchestrator
	resolver *guard.Resolver
}

// NewServer wires the admin surface.
func NewServer(p *pool.Pool, orch *provision.Orchestrator, res *guard.Resolver) *Server {
	return &Server{pool: p, orch: orch, resolver: res}
}

// Router builds the chi route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Security)
	r.Use(requestinfo.Enrich)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/api/admin", func(r chi.Router) {
		r.Post("/societes", s.handleProvision)
		r.Delete("/societes/{code}", s.handleDeprovision)
		r.Get("/societes/{code}/migrations", s.handleMigrationStatus)
		r.Post("/societes/{code}/migrations", s.handleMigrationRun)
		r.Get("/connections", s.handleListConnections)
		r.Delete("/connections/{code}", s.handleCloseConnection)
	})

	r.Route("/api/tenant", func(r chi.Router) {
		r.Use(guard.RequireTenant(s.resolver))
		r.Get("/me", s.handleTenantMe)
	})

	return r
}
