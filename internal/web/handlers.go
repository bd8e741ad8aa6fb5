// internal/web/handlers.go
//
// Handlers for the admin surface.  Each handler decodes, delegates into
// the core, and maps the typed error back onto an HTTP status; the JSON
// bodies are the core's own result structs.
package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/topsteel/erp-core/internal/tenant/fault"
	"github.com/topsteel/erp-core/internal/tenant/guard"
	"github.com/topsteel/erp-core/internal/tenant/migrate"
	"github.com/topsteel/erp-core/internal/tenant/provision"
)

func (s *Server) handleProvision(w http.ResponseWriter, r *http.Request) {
	var req provision.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	res := s.orch.Provision(r.Context(), req)
	if !res.Success {
		writeJSON(w, statusFor(res.Err), res)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) handleDeprovision(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	res := s.orch.Deprovision(r.Context(), code)
	s.resolver.Invalidate(code)
	if !res.Success {
		writeJSON(w, statusFor(res.Err), res)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleTenantMe echoes the resolved tenant context, the reference
// consumer for guard.RequireTenant.
func (s *Server) handleTenantMe(w http.ResponseWriter, r *http.Request) {
	tc := guard.FromContext(r.Context())
	if tc == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"societeId":   tc.TenantID,
		"societe":     tc.TenantCode,
		"siteId":      tc.SiteID,
		"userId":      tc.UserID,
		"role":        tc.Role,
		"permissions": tc.Permissions,
	})
}

func (s *Server) handleMigrationStatus(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	handle, err := s.pool.Get(r.Context(), code)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}

	st, err := migrate.CheckStatus(r.Context(), handle.DB)
	if err != nil {
		zap.S().Errorw("migration status", "tenant", code, "err", err)
		writeJSON(w, http.StatusInternalServerError, st)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleMigrationRun(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	handle, err := s.pool.Get(r.Context(), code)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}

	res, err := migrate.Run(r.Context(), handle.DB)
	if err != nil {
		zap.S().Errorw("migration run", "tenant", code, "err", err)
		writeJSON(w, http.StatusInternalServerError, res)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleListConnections(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.pool.ListActive())
}

func (s *Server) handleCloseConnection(w http.ResponseWriter, r *http.Request) {
	s.pool.Close(chi.URLParam(r, "code"))
	w.WriteHeader(http.StatusNoContent)
}

// statusFor maps core errors to HTTP statuses.  Unknown errors are 500.
func statusFor(err error) int {
	var (
		ve *fault.ValidationError
		ce *fault.ConflictError
		ne *fault.ConnectionError
		ae *fault.AuthorizationError
	)
	switch {
	case err == nil:
		return http.StatusInternalServerError
	case errors.As(err, &ve):
		return http.StatusBadRequest
	case errors.As(err, &ce):
		return http.StatusConflict
	case errors.As(err, &ne):
		return http.StatusBadGateway
	case errors.As(err, &ae):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.S().Errorw("encode response", "err", err)
	}
}
