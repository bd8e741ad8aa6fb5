// internal/tenant/guard/middleware.go
//
// Chi middleware that enforces tenant scoping.
package guard

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/topsteel/erp-core/internal/auth"
	"github.com/topsteel/erp-core/internal/tenant/fault"
)

// ctxKey is unexported to avoid context-key collisions.
type ctxKey struct{}

// FromContext returns the tenant context attached by RequireTenant, or
// nil when the route is not tenant-scoped.
func FromContext(ctx context.Context) *Context {
	v, _ := ctx.Value(ctxKey{}).(*Context)
	return v
}

// RequireTenant resolves the request's tenant and attaches the resulting
// Context.  Requests without a verified caller are rejected outright; a
// rejected request never creates a connection handle as a side effect,
// because resolution fails before the pool is touched.
func RequireTenant(r *Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ident, ok := auth.IdentityFrom(req.Context())
			if !ok {
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}

			tc, err := r.Resolve(req, Identity(ident))
			if err != nil {
				status := statusFor(err)
				if status >= http.StatusInternalServerError {
					zap.S().Errorw("tenant resolution", "path", req.URL.Path, "err", err)
				}
				http.Error(w, err.Error(), status)
				return
			}

			ctx := context.WithValue(req.Context(), ctxKey{}, tc)
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	}
}

// RequirePermission layers a permission check on top of RequireTenant.
func RequirePermission(perm string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			tc := FromContext(req.Context())
			if tc == nil {
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			if !tc.Allows(perm) {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, req)
		})
	}
}

// statusFor maps the core's typed errors onto HTTP statuses.
func statusFor(err error) int {
	var (
		ve *fault.ValidationError
		ae *fault.AuthorizationError
		ce *fault.ConnectionError
	)
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest
	case errors.As(err, &ae):
		return http.StatusForbidden
	case errors.As(err, &ce):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
