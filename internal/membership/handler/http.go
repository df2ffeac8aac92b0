// Package handler exposes membership operations over HTTP. Routes are mounted behind the
// organization guards; handlers read the caller from rbac.AccessFromContext.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/yonathanth/Workline-backend/internal/membership/domain"
	"github.com/yonathanth/Workline-backend/internal/membership/service"
	"github.com/yonathanth/Workline-backend/internal/platform/rbac"
	"github.com/yonathanth/Workline-backend/internal/server/httperr"
)

// Service is the membership service used by the handlers.
type Service interface {
	ListMembers(ctx context.Context, orgID string) ([]*domain.Membership, error)
	UpdateRole(ctx context.Context, orgID, targetUserID string, newRole domain.Role) (*domain.Membership, error)
	RemoveMember(ctx context.Context, orgID, targetUserID string) error
	TransferOwnership(ctx context.Context, orgID, newOwnerUserID, currentOwnerUserID string) (*service.TransferResult, error)
}

var _ Service = (*service.MembershipService)(nil)

// Handler serves /organizations/{organizationId}/members and transfer-ownership.
type Handler struct {
	svc Service
	log *slog.Logger
}

// NewHandler returns a membership Handler. logger may be nil.
func NewHandler(svc Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{svc: svc, log: logger}
}

type memberResponse struct {
	ID             string    `json:"id"`
	UserID         string    `json:"userId"`
	OrganizationID string    `json:"organizationId"`
	Role           string    `json:"role"`
	JoinedAt       time.Time `json:"joinedAt"`
}

func toMemberResponse(m *domain.Membership) memberResponse {
	return memberResponse{
		ID:             m.ID,
		UserID:         m.UserID,
		OrganizationID: m.OrgID,
		Role:           string(m.Role),
		JoinedAt:       m.JoinedAt,
	}
}

// ListMembers handles GET /organizations/{organizationId}/members.
func (h *Handler) ListMembers(w http.ResponseWriter, r *http.Request) {
	acc, ok := h.access(w, r)
	if !ok {
		return
	}
	members, err := h.svc.ListMembers(r.Context(), acc.OrgID)
	if err != nil {
		httperr.Write(w, r, h.log, err)
		return
	}
	out := make([]memberResponse, 0, len(members))
	for _, m := range members {
		out = append(out, toMemberResponse(m))
	}
	httperr.WriteJSON(w, http.StatusOK, out)
}

type updateRoleRequest struct {
	Role string `json:"role"`
}

// UpdateRole handles PATCH /organizations/{organizationId}/members/{userId}.
func (h *Handler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	acc, ok := h.access(w, r)
	if !ok {
		return
	}
	var req updateRoleRequest
	if err := httperr.Decode(r, &req); err != nil {
		httperr.Write(w, r, h.log, err)
		return
	}
	role, err := domain.ParseRole(req.Role)
	if err != nil {
		httperr.Write(w, r, h.log, err)
		return
	}
	m, err := h.svc.UpdateRole(r.Context(), acc.OrgID, r.PathValue("userId"), role)
	if err != nil {
		httperr.Write(w, r, h.log, err)
		return
	}
	httperr.WriteJSON(w, http.StatusOK, toMemberResponse(m))
}

// RemoveMember handles DELETE /organizations/{organizationId}/members/{userId}.
func (h *Handler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	acc, ok := h.access(w, r)
	if !ok {
		return
	}
	userID := r.PathValue("userId")
	if err := h.svc.RemoveMember(r.Context(), acc.OrgID, userID); err != nil {
		httperr.Write(w, r, h.log, err)
		return
	}
	httperr.WriteJSON(w, http.StatusOK, map[string]string{"message": "Member removed successfully", "userId": userID})
}

type transferRequest struct {
	NewOwnerID string `json:"newOwnerId"`
}

type transferResponse struct {
	Message         string    `json:"message"`
	OrganizationID  string    `json:"organizationId"`
	PreviousOwnerID string    `json:"previousOwnerId"`
	NewOwnerID      string    `json:"newOwnerId"`
	TransferredAt   time.Time `json:"transferredAt"`
}

// TransferOwnership handles PATCH /organizations/{organizationId}/transfer-ownership. The
// caller, admitted by the owner guard, is the expected current owner.
func (h *Handler) TransferOwnership(w http.ResponseWriter, r *http.Request) {
	acc, ok := h.access(w, r)
	if !ok {
		return
	}
	var req transferRequest
	if err := httperr.Decode(r, &req); err != nil {
		httperr.Write(w, r, h.log, err)
		return
	}
	if req.NewOwnerID == "" {
		httperr.Write(w, r, h.log, httperr.BadRequest("newOwnerId is required"))
		return
	}
	res, err := h.svc.TransferOwnership(r.Context(), acc.OrgID, req.NewOwnerID, acc.UserID)
	if err != nil {
		httperr.Write(w, r, h.log, err)
		return
	}
	httperr.WriteJSON(w, http.StatusOK, transferResponse{
		Message:         "Ownership transferred successfully",
		OrganizationID:  res.OrgID,
		PreviousOwnerID: res.PreviousOwnerID,
		NewOwnerID:      res.NewOwnerID,
		TransferredAt:   res.TransferredAt,
	})
}

// access returns the admitted caller. Its absence means the route was mounted without a guard.
func (h *Handler) access(w http.ResponseWriter, r *http.Request) (rbac.Access, bool) {
	acc, ok := rbac.AccessFromContext(r.Context())
	if !ok || acc.OrgID == "" {
		h.log.ErrorContext(r.Context(), "membership: handler reached without organization access", slog.String("path", r.URL.Path))
		httperr.Write(w, r, h.log, rbac.ErrUnauthenticated)
		return rbac.Access{}, false
	}
	return acc, true
}
