package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	membershipdomain "github.com/yonathanth/Workline-backend/internal/membership/domain"
	"github.com/yonathanth/Workline-backend/internal/server/httperr"
	"github.com/yonathanth/Workline-backend/internal/session/domain"
	"github.com/yonathanth/Workline-backend/internal/session/resolver"
	"github.com/yonathanth/Workline-backend/internal/session/service"
)

// Service manages the caller's session.
type Service interface {
	SetActiveOrganization(ctx context.Context, sess *domain.Session, orgID string) (membershipdomain.Role, error)
	SignOut(ctx context.Context, sess *domain.Session) error
}

var _ Service = (*service.SessionService)(nil)

// Handler serves /session. All routes require an authenticated session.
type Handler struct {
	svc        Service
	cookieName string
	log        *slog.Logger
}

// NewHandler returns a session Handler. cookieName is cleared on sign-out.
func NewHandler(svc Service, cookieName string, logger *slog.Logger) *Handler {
	if cookieName == "" {
		cookieName = resolver.DefaultCookieName
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{svc: svc, cookieName: cookieName, log: logger}
}

type sessionInfo struct {
	ID                   string    `json:"id"`
	ExpiresAt            time.Time `json:"expiresAt"`
	ActiveOrganizationID *string   `json:"activeOrganizationId"`
	ActiveRole           *string   `json:"activeRole"`
}

type sessionResponse struct {
	Session sessionInfo   `json:"session"`
	User    resolver.User `json:"user"`
}

// Get handles GET /session.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	res := resolver.FromContext(r.Context())
	info := sessionInfo{ID: res.Session.ID, ExpiresAt: res.Session.ExpiresAt}
	if res.Session.ActiveOrgID != "" {
		org, role := res.Session.ActiveOrgID, string(res.Session.ActiveRole)
		info.ActiveOrganizationID, info.ActiveRole = &org, &role
	}
	httperr.WriteJSON(w, http.StatusOK, sessionResponse{Session: info, User: res.User})
}

type setActiveRequest struct {
	OrganizationID *string `json:"organizationId"`
}

// SetActiveOrganization handles POST /session/active-organization. A null organizationId
// clears the active organization.
func (h *Handler) SetActiveOrganization(w http.ResponseWriter, r *http.Request) {
	res := resolver.FromContext(r.Context())
	var req setActiveRequest
	if err := httperr.Decode(r, &req); err != nil {
		httperr.Write(w, r, h.log, err)
		return
	}
	orgID := ""
	if req.OrganizationID != nil {
		if *req.OrganizationID == "" {
			httperr.Write(w, r, h.log, httperr.BadRequest("organizationId must not be empty; use null to clear"))
			return
		}
		orgID = *req.OrganizationID
	}
	role, err := h.svc.SetActiveOrganization(r.Context(), res.Session, orgID)
	if err != nil {
		httperr.Write(w, r, h.log, err)
		return
	}
	out := map[string]any{"activeOrganizationId": nil, "activeRole": nil}
	if orgID != "" {
		out["activeOrganizationId"], out["activeRole"] = orgID, string(role)
	}
	httperr.WriteJSON(w, http.StatusOK, out)
}

// SignOut handles DELETE /session: revokes the session and clears the cookie.
func (h *Handler) SignOut(w http.ResponseWriter, r *http.Request) {
	res := resolver.FromContext(r.Context())
	if err := h.svc.SignOut(r.Context(), res.Session); err != nil {
		httperr.Write(w, r, h.log, err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusNoContent)
}
