package domain

import (
	"errors"
	"time"

	membershipdomain "github.com/yonathanth/Workline-backend/internal/membership/domain"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	// ErrMembershipChanged is returned when the membership changed while the active
	// organization was being switched.
	ErrMembershipChanged = errors.New("membership changed during active organization switch; retry")
)

// Session is an authenticated browser or API session.
// ActiveOrgID and ActiveRole cache the organization the user last switched to; the role is
// advisory and only trusted for read-only requests against that organization.
type Session struct {
	ID          string
	UserID      string
	TokenHash   string // BLAKE2b-256 of the opaque session token, hex encoded
	ExpiresAt   time.Time
	RevokedAt   *time.Time // nil when not revoked
	ActiveOrgID string
	ActiveRole  membershipdomain.Role
	IPAddress   string
	UserAgent   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Active reports whether the session is unrevoked and unexpired at now.
func (s *Session) Active(now time.Time) bool {
	return s != nil && s.RevokedAt == nil && now.Before(s.ExpiresAt)
}

// CachedRoleFor returns the cached role when orgID is the active organization and the
// cached value is a known role.
func (s *Session) CachedRoleFor(orgID string) (membershipdomain.Role, bool) {
	if s == nil || orgID == "" || s.ActiveOrgID != orgID || !s.ActiveRole.Valid() {
		return "", false
	}
	return s.ActiveRole, true
}
