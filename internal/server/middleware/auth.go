package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/yonathanth/Workline-backend/internal/platform/rbac"
	"github.com/yonathanth/Workline-backend/internal/server/httperr"
	"github.com/yonathanth/Workline-backend/internal/session/resolver"
)

// OrganizationIDParam is the path wildcard that names the target organization.
const OrganizationIDParam = "organizationId"

// SessionResolver resolves request credentials.
type SessionResolver interface {
	Resolve(ctx context.Context, headers http.Header) resolver.Result
}

// Evaluator runs the guard chain.
type Evaluator interface {
	Evaluate(ctx context.Context, in rbac.Input, required rbac.Guard) rbac.Decision
}

// WithSession resolves the session once per request and stores the result in the context.
// It never rejects; guards decide what an unauthenticated request may reach.
func WithSession(sessions SessionResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res := sessions.Resolve(r.Context(), r.Header)
			next.ServeHTTP(w, r.WithContext(resolver.WithResult(r.Context(), res)))
		})
	}
}

// Require admits the request only when every guard up to required admits it. On admission
// the resulting rbac.Access is attached to the request context.
func Require(chain Evaluator, required rbac.Guard, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res := resolver.FromContext(r.Context())
			in := rbac.Input{
				Session: res.Session,
				OrgID:   r.PathValue(OrganizationIDParam),
				Mode:    ModeFor(r.Method),
			}
			d := chain.Evaluate(r.Context(), in, required)
			if !d.Admitted {
				httperr.Write(w, r, logger, d.Err())
				return
			}
			next.ServeHTTP(w, r.WithContext(rbac.WithAccess(r.Context(), d.Access)))
		})
	}
}

// ModeFor classifies a request method. Only safe methods may use the cached role.
func ModeFor(method string) rbac.Mode {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return rbac.ModeRead
	default:
		return rbac.ModeMutate
	}
}
