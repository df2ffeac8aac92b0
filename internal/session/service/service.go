package service

import (
	"context"
	"errors"
	"time"

	"github.com/yonathanth/Workline-backend/internal/audit"
	auditdomain "github.com/yonathanth/Workline-backend/internal/audit/domain"
	membershipdomain "github.com/yonathanth/Workline-backend/internal/membership/domain"
	"github.com/yonathanth/Workline-backend/internal/platform/rbac"
	"github.com/yonathanth/Workline-backend/internal/session/domain"
)

// SessionRepo is the minimal session repository needed by the session service.
type SessionRepo interface {
	Revoke(ctx context.Context, id string, at time.Time) error
	SetActiveOrganization(ctx context.Context, id, orgID string, role membershipdomain.Role, at time.Time) error
}

// SessionService manages the caller's own session.
type SessionService struct {
	sessions SessionRepo
	members  rbac.OrgMembershipGetter
	audit    audit.AuditLogger
	now      func() time.Time
}

// NewSessionService returns a SessionService. auditLogger may be nil.
func NewSessionService(sessions SessionRepo, members rbac.OrgMembershipGetter, auditLogger audit.AuditLogger) *SessionService {
	return &SessionService{
		sessions: sessions,
		members:  members,
		audit:    auditLogger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SetActiveOrganization switches the session's active organization after an authoritative
// membership lookup and caches the role just read. An empty orgID clears the active
// organization. Returns the cached role.
func (s *SessionService) SetActiveOrganization(ctx context.Context, sess *domain.Session, orgID string) (membershipdomain.Role, error) {
	if sess == nil {
		return "", rbac.ErrUnauthenticated
	}
	var role membershipdomain.Role
	if orgID != "" {
		m, err := s.members.GetMembershipByUserAndOrg(ctx, sess.UserID, orgID)
		if err != nil {
			return "", errors.Join(rbac.ErrBackendUnavailable, err)
		}
		if m == nil {
			return "", rbac.ErrNotAMember
		}
		role = m.Role
	}
	if err := s.sessions.SetActiveOrganization(ctx, sess.ID, orgID, role, s.now()); err != nil {
		return "", err
	}
	if orgID != "" {
		if err := s.confirmCachedRole(ctx, sess, orgID, role); err != nil {
			return "", err
		}
	}
	if s.audit != nil {
		s.audit.LogEvent(ctx, orgID, sess.UserID, auditdomain.ActionActiveOrgSwitched, auditdomain.ResourceSession,
			audit.Meta("sessionId", sess.ID, "role", string(role)))
	}
	return role, nil
}

// confirmCachedRole re-reads the membership after the cache write. A role change or removal
// that committed between the first read and the write is not covered by the mutation's own
// cache invalidation, so the cache is dropped and the switch fails.
func (s *SessionService) confirmCachedRole(ctx context.Context, sess *domain.Session, orgID string, role membershipdomain.Role) error {
	m, err := s.members.GetMembershipByUserAndOrg(ctx, sess.UserID, orgID)
	if err == nil && m != nil && m.Role == role {
		return nil
	}
	if clearErr := s.sessions.SetActiveOrganization(ctx, sess.ID, "", "", s.now()); clearErr != nil {
		return errors.Join(rbac.ErrBackendUnavailable, clearErr)
	}
	switch {
	case err != nil:
		return errors.Join(rbac.ErrBackendUnavailable, err)
	case m == nil:
		return rbac.ErrNotAMember
	default:
		return domain.ErrMembershipChanged
	}
}

// SignOut revokes the session.
func (s *SessionService) SignOut(ctx context.Context, sess *domain.Session) error {
	if sess == nil {
		return rbac.ErrUnauthenticated
	}
	return s.sessions.Revoke(ctx, sess.ID, s.now())
}
