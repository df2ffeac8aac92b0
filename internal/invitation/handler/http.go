package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/yonathanth/Workline-backend/internal/invitation/domain"
	"github.com/yonathanth/Workline-backend/internal/invitation/service"
	membershipdomain "github.com/yonathanth/Workline-backend/internal/membership/domain"
	"github.com/yonathanth/Workline-backend/internal/platform/rbac"
	"github.com/yonathanth/Workline-backend/internal/server/httperr"
	"github.com/yonathanth/Workline-backend/internal/session/resolver"
)

// Service is the invitation service used by the handlers.
type Service interface {
	Invite(ctx context.Context, orgID, inviterID, email string, role membershipdomain.Role) (*service.Issued, error)
	ListPending(ctx context.Context, orgID string) ([]*domain.Invitation, error)
	Accept(ctx context.Context, invitationID, userID, email string) (*membershipdomain.Membership, error)
	AcceptToken(ctx context.Context, token, userID, email string) (*membershipdomain.Membership, error)
}

var _ Service = (*service.InvitationService)(nil)

// Handler serves invitation routes.
type Handler struct {
	svc Service
	log *slog.Logger
}

// NewHandler returns an invitation Handler. logger may be nil.
func NewHandler(svc Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{svc: svc, log: logger}
}

type invitationResponse struct {
	ID             string    `json:"id"`
	Email          string    `json:"email"`
	OrganizationID string    `json:"organizationId"`
	Role           string    `json:"role"`
	ExpiresAt      time.Time `json:"expiresAt"`
	CreatedBy      string    `json:"createdById"`
	CreatedAt      time.Time `json:"createdAt"`
	// Token is only present in the create response.
	Token string `json:"token,omitempty"`
}

func toResponse(inv *domain.Invitation) invitationResponse {
	return invitationResponse{
		ID:             inv.ID,
		Email:          inv.Email,
		OrganizationID: inv.OrgID,
		Role:           string(inv.Role),
		ExpiresAt:      inv.ExpiresAt,
		CreatedBy:      inv.CreatedBy,
		CreatedAt:      inv.CreatedAt,
	}
}

type inviteRequest struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Invite handles POST /organizations/{organizationId}/invitations.
func (h *Handler) Invite(w http.ResponseWriter, r *http.Request) {
	acc, _ := rbac.AccessFromContext(r.Context())
	var req inviteRequest
	if err := httperr.Decode(r, &req); err != nil {
		httperr.Write(w, r, h.log, err)
		return
	}
	if req.Role == "" {
		req.Role = string(membershipdomain.RoleMember)
	}
	role, err := membershipdomain.ParseRole(req.Role)
	if err != nil {
		httperr.Write(w, r, h.log, err)
		return
	}
	issued, err := h.svc.Invite(r.Context(), acc.OrgID, acc.UserID, req.Email, role)
	if err != nil {
		httperr.Write(w, r, h.log, err)
		return
	}
	out := toResponse(issued.Invitation)
	out.Token = issued.Token
	httperr.WriteJSON(w, http.StatusCreated, out)
}

// ListPending handles GET /organizations/{organizationId}/invitations.
func (h *Handler) ListPending(w http.ResponseWriter, r *http.Request) {
	acc, _ := rbac.AccessFromContext(r.Context())
	invs, err := h.svc.ListPending(r.Context(), acc.OrgID)
	if err != nil {
		httperr.Write(w, r, h.log, err)
		return
	}
	out := make([]invitationResponse, 0, len(invs))
	for _, inv := range invs {
		out = append(out, toResponse(inv))
	}
	httperr.WriteJSON(w, http.StatusOK, out)
}

type acceptResponse struct {
	Message        string `json:"message"`
	OrganizationID string `json:"organizationId"`
	Role           string `json:"role"`
}

// Accept handles POST /invitations/{invitationId}/accept.
func (h *Handler) Accept(w http.ResponseWriter, r *http.Request) {
	res := resolver.FromContext(r.Context())
	m, err := h.svc.Accept(r.Context(), r.PathValue("invitationId"), res.User.ID, res.User.Email)
	h.writeAccepted(w, r, m, err)
}

type acceptTokenRequest struct {
	Token string `json:"token"`
}

// AcceptToken handles POST /invitations/accept with the one-time token in the body.
func (h *Handler) AcceptToken(w http.ResponseWriter, r *http.Request) {
	res := resolver.FromContext(r.Context())
	var req acceptTokenRequest
	if err := httperr.Decode(r, &req); err != nil {
		httperr.Write(w, r, h.log, err)
		return
	}
	m, err := h.svc.AcceptToken(r.Context(), req.Token, res.User.ID, res.User.Email)
	h.writeAccepted(w, r, m, err)
}

func (h *Handler) writeAccepted(w http.ResponseWriter, r *http.Request, m *membershipdomain.Membership, err error) {
	if err != nil {
		httperr.Write(w, r, h.log, err)
		return
	}
	httperr.WriteJSON(w, http.StatusOK, acceptResponse{
		Message:        "Invitation accepted",
		OrganizationID: m.OrgID,
		Role:           string(m.Role),
	})
}
