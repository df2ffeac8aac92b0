package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/yonathanth/Workline-backend/internal/audit/repository"
	"github.com/yonathanth/Workline-backend/internal/platform/rbac"
	"github.com/yonathanth/Workline-backend/internal/server/httperr"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// Handler serves the audit log of an organization.
type Handler struct {
	repo repository.Repository
	log  *slog.Logger
}

// NewHandler returns an audit Handler. logger may be nil.
func NewHandler(repo repository.Repository, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{repo: repo, log: logger}
}

type entryResponse struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId,omitempty"`
	Action    string    `json:"action"`
	Resource  string    `json:"resource"`
	IP        string    `json:"ip"`
	Metadata  string    `json:"metadata,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// List handles GET /organizations/{organizationId}/audit-logs?limit=&offset=.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	acc, _ := rbac.AccessFromContext(r.Context())
	limit, err := queryInt(r, "limit", defaultPageSize)
	if err != nil {
		httperr.Write(w, r, h.log, err)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		httperr.Write(w, r, h.log, err)
		return
	}
	if limit <= 0 || limit > maxPageSize {
		limit = defaultPageSize
	}
	if offset < 0 {
		offset = 0
	}
	entries, err := h.repo.ListByOrg(r.Context(), acc.OrgID, int32(limit), int32(offset))
	if err != nil {
		httperr.Write(w, r, h.log, err)
		return
	}
	out := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, entryResponse{
			ID:        e.ID,
			UserID:    e.UserID,
			Action:    e.Action,
			Resource:  e.Resource,
			IP:        e.IP,
			Metadata:  e.Metadata,
			CreatedAt: e.CreatedAt,
		})
	}
	httperr.WriteJSON(w, http.StatusOK, map[string]any{"entries": out, "limit": limit, "offset": offset})
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, httperr.BadRequest(key + " must be an integer")
	}
	return n, nil
}
