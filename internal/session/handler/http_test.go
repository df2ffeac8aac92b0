package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	membershipdomain "github.com/yonathanth/Workline-backend/internal/membership/domain"
	"github.com/yonathanth/Workline-backend/internal/platform/rbac"
	"github.com/yonathanth/Workline-backend/internal/session/domain"
	"github.com/yonathanth/Workline-backend/internal/session/resolver"
)

type stubService struct {
	orgID     string
	role      membershipdomain.Role
	err       error
	signedOut string
}

func (s *stubService) SetActiveOrganization(_ context.Context, _ *domain.Session, orgID string) (membershipdomain.Role, error) {
	s.orgID = orgID
	if s.err != nil {
		return "", s.err
	}
	return s.role, nil
}

func (s *stubService) SignOut(_ context.Context, sess *domain.Session) error {
	s.signedOut = sess.ID
	return s.err
}

func withSession(r *http.Request, sess *domain.Session) *http.Request {
	return r.WithContext(resolver.WithResult(r.Context(), resolver.Result{
		Authenticated: true,
		Session:       sess,
		User:          resolver.User{ID: sess.UserID, Email: "a@example.com"},
	}))
}

func TestGet(t *testing.T) {
	h := NewHandler(&stubService{}, "", nil)
	sess := &domain.Session{ID: "s1", UserID: "user-a", ExpiresAt: time.Now().Add(time.Hour), ActiveOrgID: "org-1", ActiveRole: membershipdomain.RoleAdmin}
	rec := httptest.NewRecorder()
	h.Get(rec, withSession(httptest.NewRequest(http.MethodGet, "/session", nil), sess))
	var got sessionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.User.ID != "user-a" || got.Session.ActiveOrganizationID == nil || *got.Session.ActiveOrganizationID != "org-1" || *got.Session.ActiveRole != "admin" {
		t.Errorf("response = %+v", got)
	}
	if strings.Contains(rec.Body.String(), "tokenHash") {
		t.Error("token hash exposed")
	}
}

func TestSetActiveOrganization(t *testing.T) {
	svc := &stubService{role: membershipdomain.RoleOwner}
	h := NewHandler(svc, "", nil)
	sess := &domain.Session{ID: "s1", UserID: "user-a"}

	rec := httptest.NewRecorder()
	h.SetActiveOrganization(rec, withSession(httptest.NewRequest(http.MethodPost, "/session/active-organization", strings.NewReader(`{"organizationId":"org-2"}`)), sess))
	if rec.Code != http.StatusOK || svc.orgID != "org-2" {
		t.Fatalf("status = %d, org %q", rec.Code, svc.orgID)
	}
	if !strings.Contains(rec.Body.String(), `"activeRole":"owner"`) {
		t.Errorf("body = %s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	h.SetActiveOrganization(rec, withSession(httptest.NewRequest(http.MethodPost, "/session/active-organization", strings.NewReader(`{"organizationId":null}`)), sess))
	if rec.Code != http.StatusOK || svc.orgID != "" {
		t.Errorf("clear = %d, org %q", rec.Code, svc.orgID)
	}

	rec = httptest.NewRecorder()
	h.SetActiveOrganization(rec, withSession(httptest.NewRequest(http.MethodPost, "/session/active-organization", strings.NewReader(`{"organizationId":""}`)), sess))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty id = %d, want 400", rec.Code)
	}

	svc.err = rbac.ErrNotAMember
	rec = httptest.NewRecorder()
	h.SetActiveOrganization(rec, withSession(httptest.NewRequest(http.MethodPost, "/session/active-organization", strings.NewReader(`{"organizationId":"org-9"}`)), sess))
	if rec.Code != http.StatusForbidden {
		t.Errorf("non-member = %d, want 403", rec.Code)
	}
}

func TestSignOut(t *testing.T) {
	svc := &stubService{}
	h := NewHandler(svc, "", nil)
	rec := httptest.NewRecorder()
	h.SignOut(rec, withSession(httptest.NewRequest(http.MethodDelete, "/session", nil), &domain.Session{ID: "s1", UserID: "user-a"}))
	if rec.Code != http.StatusNoContent || svc.signedOut != "s1" {
		t.Fatalf("status = %d, revoked %q", rec.Code, svc.signedOut)
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != resolver.DefaultCookieName || cookies[0].MaxAge >= 0 {
		t.Errorf("cookies = %+v", cookies)
	}
}
