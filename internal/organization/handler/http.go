package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/yonathanth/Workline-backend/internal/organization/domain"
	"github.com/yonathanth/Workline-backend/internal/organization/service"
	"github.com/yonathanth/Workline-backend/internal/platform/rbac"
	"github.com/yonathanth/Workline-backend/internal/server/httperr"
	"github.com/yonathanth/Workline-backend/internal/session/resolver"
)

// Service is the organization service used by the handlers.
type Service interface {
	Create(ctx context.Context, creatorID string, in service.CreateInput) (*domain.Organization, error)
	ListForUser(ctx context.Context, userID string) ([]*domain.Membership, error)
	Get(ctx context.Context, orgID string) (*domain.Organization, error)
	Update(ctx context.Context, orgID string, patch domain.Patch) (*domain.Organization, error)
	Delete(ctx context.Context, orgID string) error
}

var _ Service = (*service.OrganizationService)(nil)

// Handler serves /organizations.
type Handler struct {
	svc Service
	log *slog.Logger
}

// NewHandler returns an organization Handler. logger may be nil.
func NewHandler(svc Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{svc: svc, log: logger}
}

type organizationResponse struct {
	ID          string    `json:"id"`
	Slug        string    `json:"slug"`
	Name        string    `json:"name"`
	Description *string   `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
	Role        string    `json:"role,omitempty"`
}

func toResponse(o *domain.Organization) organizationResponse {
	return organizationResponse{
		ID:          o.ID,
		Slug:        o.Slug,
		Name:        o.Name,
		Description: o.Description,
		CreatedAt:   o.CreatedAt,
		UpdatedAt:   o.UpdatedAt,
	}
}

type createRequest struct {
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	Description string `json:"description"`
}

// Create handles POST /organizations. The caller becomes the owner.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	res := resolver.FromContext(r.Context())
	var req createRequest
	if err := httperr.Decode(r, &req); err != nil {
		httperr.Write(w, r, h.log, err)
		return
	}
	o, err := h.svc.Create(r.Context(), res.User.ID, service.CreateInput{
		Name:        req.Name,
		Slug:        req.Slug,
		Description: req.Description,
	})
	if err != nil {
		httperr.Write(w, r, h.log, err)
		return
	}
	out := toResponse(o)
	out.Role = "owner"
	httperr.WriteJSON(w, http.StatusCreated, out)
}

// List handles GET /organizations: every organization the caller belongs to.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	res := resolver.FromContext(r.Context())
	orgs, err := h.svc.ListForUser(r.Context(), res.User.ID)
	if err != nil {
		httperr.Write(w, r, h.log, err)
		return
	}
	out := make([]organizationResponse, 0, len(orgs))
	for _, m := range orgs {
		o := toResponse(&m.Organization)
		o.Role = string(m.Role)
		out = append(out, o)
	}
	httperr.WriteJSON(w, http.StatusOK, out)
}

// Get handles GET /organizations/{organizationId}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	acc, _ := rbac.AccessFromContext(r.Context())
	o, err := h.svc.Get(r.Context(), acc.OrgID)
	if err != nil {
		httperr.Write(w, r, h.log, err)
		return
	}
	out := toResponse(o)
	out.Role = string(acc.Role)
	httperr.WriteJSON(w, http.StatusOK, out)
}

type updateRequest struct {
	Name        *string `json:"name"`
	Slug        *string `json:"slug"`
	Description *string `json:"description"`
}

// Update handles PATCH /organizations/{organizationId}.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	acc, _ := rbac.AccessFromContext(r.Context())
	var req updateRequest
	if err := httperr.Decode(r, &req); err != nil {
		httperr.Write(w, r, h.log, err)
		return
	}
	o, err := h.svc.Update(r.Context(), acc.OrgID, domain.Patch{Name: req.Name, Slug: req.Slug, Description: req.Description})
	if err != nil {
		httperr.Write(w, r, h.log, err)
		return
	}
	httperr.WriteJSON(w, http.StatusOK, toResponse(o))
}

// Delete handles DELETE /organizations/{organizationId}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	acc, _ := rbac.AccessFromContext(r.Context())
	if err := h.svc.Delete(r.Context(), acc.OrgID); err != nil {
		httperr.Write(w, r, h.log, err)
		return
	}
	httperr.WriteJSON(w, http.StatusOK, map[string]string{"message": "Organization deleted successfully", "id": acc.OrgID})
}
