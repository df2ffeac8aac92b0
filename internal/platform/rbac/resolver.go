package rbac

import (
	"context"
	"errors"
	"fmt"

	"github.com/yonathanth/Workline-backend/internal/membership/domain"
	sessiondomain "github.com/yonathanth/Workline-backend/internal/session/domain"
)

// Authorization errors. Denials are expected outcomes; ErrBackendUnavailable wraps store failures.
var (
	ErrUnauthenticated    = errors.New("authentication required")
	ErrNotAMember         = errors.New("not a member of this organization")
	ErrInsufficientRole   = errors.New("insufficient role in this organization")
	ErrBackendUnavailable = errors.New("authorization backend unavailable")
)

// OrgMembershipGetter returns a user's membership in an org, or (nil, nil) when there is none.
type OrgMembershipGetter interface {
	GetMembershipByUserAndOrg(ctx context.Context, userID, orgID string) (*domain.Membership, error)
}

// Mode tells the resolver whether the request only reads organization data.
type Mode int

const (
	// ModeRead may use the role cached on the session for its active organization.
	ModeRead Mode = iota
	// ModeMutate always reads the membership store.
	ModeMutate
)

// Source records where a resolved role came from.
type Source string

const (
	SourceSessionCache    Source = "session_cache"
	SourceMembershipStore Source = "membership_store"
)

// Resolution is the caller's standing in one organization.
type Resolution struct {
	OrgID    string
	UserID   string
	Role     domain.Role
	IsMember bool
	IsAdmin  bool
	IsOwner  bool
	Source   Source
}

// Resolver determines a session user's role in an organization.
type Resolver struct {
	members OrgMembershipGetter
}

// NewResolver returns a Resolver that falls back to members for authoritative lookups.
func NewResolver(members OrgMembershipGetter) *Resolver {
	return &Resolver{members: members}
}

// Resolve returns the role of the session user in orgID. The session's cached role is used
// only for ModeRead requests that target the session's active organization; every other
// request reads the membership store. A missing membership is ErrNotAMember; store failures
// are wrapped with ErrBackendUnavailable.
func (r *Resolver) Resolve(ctx context.Context, sess *sessiondomain.Session, orgID string, mode Mode) (Resolution, error) {
	if sess == nil || sess.UserID == "" {
		return Resolution{}, ErrUnauthenticated
	}
	if orgID == "" {
		return Resolution{}, ErrNotAMember
	}
	if mode == ModeRead {
		if role, ok := sess.CachedRoleFor(orgID); ok {
			return newResolution(orgID, sess.UserID, role, SourceSessionCache), nil
		}
	}
	m, err := r.members.GetMembershipByUserAndOrg(ctx, sess.UserID, orgID)
	if err != nil {
		return Resolution{}, fmt.Errorf("%w: membership lookup: %w", ErrBackendUnavailable, err)
	}
	if m == nil {
		return Resolution{}, ErrNotAMember
	}
	if !m.Role.Valid() {
		return Resolution{}, fmt.Errorf("%w: membership %s has unknown role %q", ErrBackendUnavailable, m.ID, m.Role)
	}
	return newResolution(orgID, sess.UserID, m.Role, SourceMembershipStore), nil
}

func newResolution(orgID, userID string, role domain.Role, src Source) Resolution {
	return Resolution{
		OrgID:    orgID,
		UserID:   userID,
		Role:     role,
		IsMember: true,
		IsAdmin:  role.IsAdmin(),
		IsOwner:  role.IsOwner(),
		Source:   src,
	}
}
