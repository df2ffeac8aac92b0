// Package server assembles the HTTP API and the gRPC health server.
package server

import (
	"log/slog"
	"net/http"

	"github.com/go-michi/michi"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	audithandler "github.com/yonathanth/Workline-backend/internal/audit/handler"
	invitationhandler "github.com/yonathanth/Workline-backend/internal/invitation/handler"
	membershiphandler "github.com/yonathanth/Workline-backend/internal/membership/handler"
	organizationhandler "github.com/yonathanth/Workline-backend/internal/organization/handler"
	"github.com/yonathanth/Workline-backend/internal/platform/rbac"
	"github.com/yonathanth/Workline-backend/internal/server/middleware"
	sessionhandler "github.com/yonathanth/Workline-backend/internal/session/handler"
)

// Deps holds the HTTP handlers and the admission pieces. Nil handlers leave their routes unregistered.
type Deps struct {
	// Sessions resolves request credentials once per request.
	Sessions middleware.SessionResolver
	// Chain evaluates the guard chain for each protected route.
	Chain middleware.Evaluator
	// Logger is used for request logs and 5xx errors. Defaults to slog.Default().
	Logger *slog.Logger

	Organizations *organizationhandler.Handler
	Members       *membershiphandler.Handler
	Invitations   *invitationhandler.Handler
	Session       *sessionhandler.Handler
	Audit         *audithandler.Handler
	// Health serves GET /healthz without admission.
	Health http.Handler

	// TrustedOrigins enables CORS with credentials for the listed origins.
	TrustedOrigins []string
	// RateLimiter limits requests per client. If nil, requests are not limited.
	RateLimiter *middleware.RateLimiter
	// ClientIP resolves the client IP for logs and audit records. If nil, the remote address is used.
	ClientIP *middleware.ClientIPResolver
}

// NewRouter registers every route with its guard tier.
//
// Route → guard mapping:
//   - /organizations                                     → Authenticated
//   - GET /organizations/{organizationId}, members        → OrganizationMember
//   - PATCH /organizations/{organizationId}, invitations  → OrganizationAdmin
//   - DELETE /organizations/{organizationId}, member role
//     changes and removals, transfer-ownership            → OrganizationOwner
//   - audit-logs                                         → OrganizationAdmin
//   - /session, invitation acceptance                    → Authenticated
func NewRouter(deps Deps) *michi.Router {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := michi.NewRouter()
	clientIP := middleware.WithClientIP
	if deps.ClientIP != nil {
		clientIP = deps.ClientIP.Middleware
	}
	r.Use(clientIP, middleware.Recovery(logger), middleware.WithLogger(logger))
	if deps.Sessions != nil {
		r.Use(middleware.WithSession(deps.Sessions))
	}
	if deps.Health != nil {
		r.Handle("GET /healthz", deps.Health)
	}

	authenticated := r.With(middleware.Require(deps.Chain, rbac.GuardAuthenticated, logger))
	member := r.With(middleware.Require(deps.Chain, rbac.GuardOrganizationMember, logger))
	admin := r.With(middleware.Require(deps.Chain, rbac.GuardOrganizationAdmin, logger))
	owner := r.With(middleware.Require(deps.Chain, rbac.GuardOrganizationOwner, logger))

	if h := deps.Organizations; h != nil {
		authenticated.HandleFunc("POST /organizations", h.Create)
		authenticated.HandleFunc("GET /organizations", h.List)
		member.HandleFunc("GET /organizations/{organizationId}", h.Get)
		admin.HandleFunc("PATCH /organizations/{organizationId}", h.Update)
		owner.HandleFunc("DELETE /organizations/{organizationId}", h.Delete)
	}
	if h := deps.Members; h != nil {
		member.HandleFunc("GET /organizations/{organizationId}/members", h.ListMembers)
		owner.HandleFunc("PATCH /organizations/{organizationId}/members/{userId}", h.UpdateRole)
		owner.HandleFunc("DELETE /organizations/{organizationId}/members/{userId}", h.RemoveMember)
		owner.HandleFunc("PATCH /organizations/{organizationId}/transfer-ownership", h.TransferOwnership)
	}
	if h := deps.Invitations; h != nil {
		admin.HandleFunc("POST /organizations/{organizationId}/invitations", h.Invite)
		admin.HandleFunc("GET /organizations/{organizationId}/invitations", h.ListPending)
		authenticated.HandleFunc("POST /invitations/{invitationId}/accept", h.Accept)
		authenticated.HandleFunc("POST /invitations/accept", h.AcceptToken)
	}
	if h := deps.Session; h != nil {
		authenticated.HandleFunc("GET /session", h.Get)
		authenticated.HandleFunc("DELETE /session", h.SignOut)
		authenticated.HandleFunc("POST /session/active-organization", h.SetActiveOrganization)
	}
	if h := deps.Audit; h != nil {
		admin.HandleFunc("GET /organizations/{organizationId}/audit-logs", h.List)
	}
	return r
}

// NewHTTPHandler wraps the router with rate limiting, CORS and OpenTelemetry instrumentation.
func NewHTTPHandler(deps Deps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	var h http.Handler = NewRouter(deps)
	if deps.RateLimiter != nil {
		h = deps.RateLimiter.Limit(h)
	}
	h = middleware.WithCORS(logger, deps.TrustedOrigins)(h)
	return otelhttp.NewHandler(h, "workline-api")
}
