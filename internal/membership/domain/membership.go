package domain

import (
	"strings"
	"time"
)

// Membership links a user to an organization with a role.
// A user holds at most one membership per organization.
type Membership struct {
	ID       string
	UserID   string
	OrgID    string
	Role     Role
	JoinedAt time.Time
}

type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// rank orders roles; member < admin < owner. Unknown roles rank 0 and satisfy nothing.
func (r Role) rank() int {
	switch r {
	case RoleMember:
		return 1
	case RoleAdmin:
		return 2
	case RoleOwner:
		return 3
	default:
		return 0
	}
}

// Valid reports whether r is one of member, admin, owner.
func (r Role) Valid() bool {
	return r.rank() > 0
}

// AtLeast reports whether r satisfies a guard requiring min.
func (r Role) AtLeast(min Role) bool {
	return r.Valid() && min.Valid() && r.rank() >= min.rank()
}

// IsAdmin is true for admin and owner.
func (r Role) IsAdmin() bool { return r.AtLeast(RoleAdmin) }

// IsOwner is true only for owner.
func (r Role) IsOwner() bool { return r == RoleOwner }

// ParseRole validates a role string from a request boundary.
func ParseRole(s string) (Role, error) {
	r := Role(strings.TrimSpace(s))
	if !r.Valid() {
		return "", ErrInvalidRole
	}
	return r, nil
}
