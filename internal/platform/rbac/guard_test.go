package rbac

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/yonathanth/Workline-backend/internal/membership/domain"
	sessiondomain "github.com/yonathanth/Workline-backend/internal/session/domain"
)

type failingPolicy struct{ err error }

func (p failingPolicy) Allow(context.Context, domain.Role, domain.Role) (bool, error) {
	return false, p.err
}

func chainFor(rows ...*domain.Membership) *Chain {
	return NewChain(NewResolver(getterWith(rows...)), nil, nil)
}

var allGuards = []Guard{GuardAuthenticated, GuardOrganizationMember, GuardOrganizationAdmin, GuardOrganizationOwner}

func TestChain_RoleMatrix(t *testing.T) {
	tests := []struct {
		role  domain.Role
		admit map[Guard]bool
	}{
		{domain.RoleMember, map[Guard]bool{GuardAuthenticated: true, GuardOrganizationMember: true}},
		{domain.RoleAdmin, map[Guard]bool{GuardAuthenticated: true, GuardOrganizationMember: true, GuardOrganizationAdmin: true}},
		{domain.RoleOwner, map[Guard]bool{GuardAuthenticated: true, GuardOrganizationMember: true, GuardOrganizationAdmin: true, GuardOrganizationOwner: true}},
	}
	for _, tt := range tests {
		c := chainFor(&domain.Membership{ID: "m1", UserID: "user-1", OrgID: "org-1", Role: tt.role})
		for _, g := range allGuards {
			t.Run(string(tt.role)+"/"+g.String(), func(t *testing.T) {
				in := Input{Session: activeSession("user-1", "", ""), OrgID: "org-1", Mode: ModeMutate}
				d := c.Evaluate(context.Background(), in, g)
				if d.Admitted != tt.admit[g] {
					t.Fatalf("admitted = %v, want %v (reason %s)", d.Admitted, tt.admit[g], d.Reason)
				}
				if !d.Admitted && d.Reason != ReasonInsufficientRole {
					t.Errorf("reason = %s, want insufficient_role", d.Reason)
				}
			})
		}
	}
}

// Admission by a stricter guard implies admission by every weaker one.
func TestChain_Monotonic(t *testing.T) {
	for _, role := range []domain.Role{domain.RoleMember, domain.RoleAdmin, domain.RoleOwner} {
		c := chainFor(&domain.Membership{ID: "m1", UserID: "user-1", OrgID: "org-1", Role: role})
		in := Input{Session: activeSession("user-1", "", ""), OrgID: "org-1"}
		for i, strict := range allGuards {
			if !c.Evaluate(context.Background(), in, strict).Admitted {
				continue
			}
			for _, weaker := range allGuards[:i] {
				if !c.Evaluate(context.Background(), in, weaker).Admitted {
					t.Errorf("role %s: %s admitted but %s denied", role, strict, weaker)
				}
			}
		}
	}
}

func TestChain_MemberCallingAdminOperation(t *testing.T) {
	c := chainFor(&domain.Membership{ID: "m1", UserID: "user-1", OrgID: "org-1", Role: domain.RoleMember})
	d := c.Evaluate(context.Background(), Input{Session: activeSession("user-1", "", ""), OrgID: "org-1", Mode: ModeMutate}, GuardOrganizationAdmin)
	if d.Admitted || d.Reason != ReasonInsufficientRole || d.Guard != GuardOrganizationAdmin {
		t.Fatalf("decision = %+v, want insufficient_role at organization_admin", d)
	}
	if !errors.Is(d.Err(), ErrInsufficientRole) {
		t.Errorf("Err() = %v, want ErrInsufficientRole", d.Err())
	}
	if len(d.Steps) != 3 || d.Steps[1].Outcome != OutcomeAdmitted || d.Steps[2].Outcome != OutcomeDenied {
		t.Errorf("steps = %+v", d.Steps)
	}
}

func TestChain_StaleCacheForOtherOrg(t *testing.T) {
	c := chainFor(
		&domain.Membership{ID: "m1", UserID: "user-1", OrgID: "org-1", Role: domain.RoleAdmin},
		&domain.Membership{ID: "m2", UserID: "user-1", OrgID: "org-2", Role: domain.RoleOwner},
	)
	sess := activeSession("user-1", "org-1", domain.RoleAdmin)
	d := c.Evaluate(context.Background(), Input{Session: sess, OrgID: "org-2", Mode: ModeRead}, GuardOrganizationOwner)
	if !d.Admitted {
		t.Fatalf("decision = %+v, want admitted as owner", d)
	}
	if d.Access.Role != domain.RoleOwner || d.Access.OrgID != "org-2" || !d.Access.IsOwner {
		t.Errorf("access = %+v", d.Access)
	}
}

func TestChain_Denials(t *testing.T) {
	expired := activeSession("user-1", "", "")
	expired.ExpiresAt = time.Now().Add(-time.Minute)
	revokedAt := time.Now()
	revoked := activeSession("user-1", "", "")
	revoked.RevokedAt = &revokedAt

	member := &domain.Membership{ID: "m1", UserID: "user-1", OrgID: "org-1", Role: domain.RoleOwner}
	tests := []struct {
		name       string
		sess       *sessiondomain.Session
		orgID      string
		required   Guard
		wantReason Reason
		wantGuard  Guard
		wantErr    error
	}{
		{"no session", nil, "org-1", GuardAuthenticated, ReasonUnauthenticated, GuardAuthenticated, ErrUnauthenticated},
		{"expired session", expired, "org-1", GuardOrganizationMember, ReasonUnauthenticated, GuardAuthenticated, ErrUnauthenticated},
		{"revoked session", revoked, "org-1", GuardOrganizationOwner, ReasonUnauthenticated, GuardAuthenticated, ErrUnauthenticated},
		{"missing org id member", activeSession("user-1", "", ""), "", GuardOrganizationMember, ReasonNotAMember, GuardOrganizationMember, ErrNotAMember},
		{"missing org id owner", activeSession("user-1", "", ""), "", GuardOrganizationOwner, ReasonNotAMember, GuardOrganizationMember, ErrNotAMember},
		{"other org", activeSession("user-1", "", ""), "org-9", GuardOrganizationMember, ReasonNotAMember, GuardOrganizationMember, ErrNotAMember},
	}
	c := chainFor(member)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := c.Evaluate(context.Background(), Input{Session: tt.sess, OrgID: tt.orgID}, tt.required)
			if d.Admitted {
				t.Fatal("expected denial")
			}
			if d.Reason != tt.wantReason || d.Guard != tt.wantGuard {
				t.Errorf("denied by %s (%s), want %s (%s)", d.Guard, d.Reason, tt.wantGuard, tt.wantReason)
			}
			if !errors.Is(d.Err(), tt.wantErr) {
				t.Errorf("Err() = %v, want %v", d.Err(), tt.wantErr)
			}
		})
	}
}

func TestChain_AuthenticatedOnly(t *testing.T) {
	c := chainFor()
	d := c.Evaluate(context.Background(), Input{Session: activeSession("user-1", "", "")}, GuardAuthenticated)
	if !d.Admitted {
		t.Fatalf("decision = %+v", d)
	}
	if d.Access.UserID != "user-1" || d.Access.SessionID != "session-1" || d.Access.OrgID != "" {
		t.Errorf("access = %+v", d.Access)
	}
}

func TestChain_BackendFailureFailsClosed(t *testing.T) {
	storeErr := errors.New("db down")
	c := NewChain(NewResolver(&mockMembershipGetter{err: storeErr}), nil, nil)
	d := c.Evaluate(context.Background(), Input{Session: activeSession("user-1", "", ""), OrgID: "org-1"}, GuardOrganizationMember)
	if d.Admitted || d.Reason != ReasonBackendUnavailable {
		t.Fatalf("decision = %+v, want backend_unavailable", d)
	}
	if !errors.Is(d.Err(), ErrBackendUnavailable) || !errors.Is(d.Err(), storeErr) {
		t.Errorf("Err() = %v", d.Err())
	}
}

func TestChain_PolicyErrorFailsClosed(t *testing.T) {
	getter := getterWith(&domain.Membership{ID: "m1", UserID: "user-1", OrgID: "org-1", Role: domain.RoleOwner})
	c := NewChain(NewResolver(getter), failingPolicy{err: errors.New("eval failed")}, nil)
	d := c.Evaluate(context.Background(), Input{Session: activeSession("user-1", "", ""), OrgID: "org-1"}, GuardOrganizationOwner)
	if d.Admitted || d.Reason != ReasonBackendUnavailable {
		t.Fatalf("decision = %+v, want backend_unavailable", d)
	}
}

func TestChain_ResolvesRoleOnce(t *testing.T) {
	getter := getterWith(&domain.Membership{ID: "m1", UserID: "user-1", OrgID: "org-1", Role: domain.RoleOwner})
	c := NewChain(NewResolver(getter), nil, nil)
	c.Evaluate(context.Background(), Input{Session: activeSession("user-1", "", ""), OrgID: "org-1", Mode: ModeMutate}, GuardOrganizationOwner)
	if getter.calls != 1 {
		t.Errorf("store calls = %d, want 1", getter.calls)
	}
}

func TestAccessFromContext(t *testing.T) {
	if _, ok := AccessFromContext(context.Background()); ok {
		t.Fatal("empty context should have no access")
	}
	want := Access{OrgID: "org-1", UserID: "user-1", Role: domain.RoleAdmin, IsAdmin: true}
	got, ok := AccessFromContext(WithAccess(context.Background(), want))
	if !ok || got != want {
		t.Fatalf("AccessFromContext = %+v, %v", got, ok)
	}
}
