package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-michi/michi"

	membershipdomain "github.com/yonathanth/Workline-backend/internal/membership/domain"
	"github.com/yonathanth/Workline-backend/internal/platform/rbac"
	sessiondomain "github.com/yonathanth/Workline-backend/internal/session/domain"
	"github.com/yonathanth/Workline-backend/internal/session/resolver"
)

type staticResolver struct {
	res resolver.Result
}

func (s staticResolver) Resolve(context.Context, http.Header) resolver.Result { return s.res }

type mockMembers struct {
	rows map[string]membershipdomain.Role // key user:org
	err  error
}

func (m *mockMembers) GetMembershipByUserAndOrg(_ context.Context, userID, orgID string) (*membershipdomain.Membership, error) {
	if m.err != nil {
		return nil, m.err
	}
	role, ok := m.rows[userID+":"+orgID]
	if !ok {
		return nil, nil
	}
	return &membershipdomain.Membership{ID: "m-" + userID, UserID: userID, OrgID: orgID, Role: role}, nil
}

func authenticated(userID, activeOrg string, activeRole membershipdomain.Role) resolver.Result {
	return resolver.Result{
		Authenticated: true,
		Session: &sessiondomain.Session{
			ID:          "sess-" + userID,
			UserID:      userID,
			ExpiresAt:   time.Now().Add(time.Hour),
			ActiveOrgID: activeOrg,
			ActiveRole:  activeRole,
		},
		User: resolver.User{ID: userID},
	}
}

// newGuardedRouter serves GET and PATCH /organizations/{organizationId} behind required and
// echoes the attached access as JSON.
func newGuardedRouter(res resolver.Result, members *mockMembers, required rbac.Guard) http.Handler {
	chain := rbac.NewChain(rbac.NewResolver(members), nil, nil)
	echo := func(w http.ResponseWriter, r *http.Request) {
		acc, ok := rbac.AccessFromContext(r.Context())
		if !ok {
			w.WriteHeader(http.StatusTeapot)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"orgId": acc.OrgID, "userId": acc.UserID, "role": acc.Role, "isOwner": acc.IsOwner})
	}
	r := michi.NewRouter()
	r.Use(WithSession(staticResolver{res: res}))
	guarded := r.With(Require(chain, required, nil))
	guarded.HandleFunc("GET /organizations/{organizationId}", echo)
	guarded.HandleFunc("PATCH /organizations/{organizationId}", echo)
	return r
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body %q: %v", rec.Body.String(), err)
	}
	return body.Error.Code
}

func TestRequire(t *testing.T) {
	members := &mockMembers{rows: map[string]membershipdomain.Role{
		"owner:org-1":  membershipdomain.RoleOwner,
		"admin:org-1":  membershipdomain.RoleAdmin,
		"member:org-1": membershipdomain.RoleMember,
	}}
	tests := []struct {
		name     string
		res      resolver.Result
		required rbac.Guard
		method   string
		status   int
		code     string
	}{
		{"anonymous", resolver.Result{}, rbac.GuardOrganizationMember, http.MethodGet, 401, "unauthenticated"},
		{"stranger", authenticated("stranger", "", ""), rbac.GuardOrganizationMember, http.MethodGet, 403, "not_a_member"},
		{"member on admin route", authenticated("member", "", ""), rbac.GuardOrganizationAdmin, http.MethodGet, 403, "insufficient_role"},
		{"admin on owner route", authenticated("admin", "", ""), rbac.GuardOrganizationOwner, http.MethodPatch, 403, "insufficient_role"},
		{"admin on admin route", authenticated("admin", "", ""), rbac.GuardOrganizationAdmin, http.MethodPatch, 200, ""},
		{"owner on owner route", authenticated("owner", "", ""), rbac.GuardOrganizationOwner, http.MethodPatch, 200, ""},
		// The cached owner role is not trusted for a mutation; the store says member.
		{"stale cache mutate", authenticated("member", "org-1", membershipdomain.RoleOwner), rbac.GuardOrganizationOwner, http.MethodPatch, 403, "insufficient_role"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newGuardedRouter(tt.res, members, tt.required)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(tt.method, "/organizations/org-1", nil))
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.status, rec.Body.String())
			}
			if tt.code != "" {
				if got := errorCode(t, rec); got != tt.code {
					t.Errorf("code = %q, want %q", got, tt.code)
				}
			}
		})
	}
}

func TestRequire_AttachesAccess(t *testing.T) {
	members := &mockMembers{rows: map[string]membershipdomain.Role{"owner:org-1": membershipdomain.RoleOwner}}
	h := newGuardedRouter(authenticated("owner", "", ""), members, rbac.GuardOrganizationOwner)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/organizations/org-1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got struct {
		OrgID   string `json:"orgId"`
		UserID  string `json:"userId"`
		Role    string `json:"role"`
		IsOwner bool   `json:"isOwner"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.OrgID != "org-1" || got.UserID != "owner" || got.Role != "owner" || !got.IsOwner {
		t.Errorf("access = %+v", got)
	}
}

func TestRequire_BackendFailureFailsClosed(t *testing.T) {
	members := &mockMembers{err: errors.New("connection refused")}
	h := newGuardedRouter(authenticated("owner", "", ""), members, rbac.GuardOrganizationMember)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPatch, "/organizations/org-1", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	if got := errorCode(t, rec); got != "backend_unavailable" {
		t.Errorf("code = %q", got)
	}
}

func TestModeFor(t *testing.T) {
	for method, want := range map[string]rbac.Mode{
		http.MethodGet:     rbac.ModeRead,
		http.MethodHead:    rbac.ModeRead,
		http.MethodOptions: rbac.ModeRead,
		http.MethodPost:    rbac.ModeMutate,
		http.MethodPatch:   rbac.ModeMutate,
		http.MethodPut:     rbac.ModeMutate,
		http.MethodDelete:  rbac.ModeMutate,
	} {
		if got := ModeFor(method); got != want {
			t.Errorf("ModeFor(%s) = %v, want %v", method, got, want)
		}
	}
}
