package repository

import (
	"context"

	"github.com/yonathanth/Workline-backend/internal/membership/domain"
)

// Repository defines persistence for memberships.
// Lookups return (nil, nil) for a missing row; errors are reserved for store failures.
type Repository interface {
	GetMembershipByID(ctx context.Context, id string) (*domain.Membership, error)
	GetMembershipByUserAndOrg(ctx context.Context, userID, orgID string) (*domain.Membership, error)
	ListMembershipsByOrg(ctx context.Context, orgID string) ([]*domain.Membership, error)
	ListOwnersByOrg(ctx context.Context, orgID string) ([]*domain.Membership, error)
	// CreateMembership returns domain.ErrDuplicateMembership when the (user, org) pair exists.
	CreateMembership(ctx context.Context, m *domain.Membership) error
	// UpdateRole returns domain.ErrMemberNotFound when no row has membershipID.
	UpdateRole(ctx context.Context, membershipID string, role domain.Role) (*domain.Membership, error)
	// DeleteMembership returns domain.ErrMemberNotFound when no row has membershipID.
	DeleteMembership(ctx context.Context, membershipID string) error
}

// LockMode selects how WithinOrgTx holds the organization lock.
type LockMode int

const (
	// LockShared allows other shared transactions on the same organization to run concurrently
	// but waits for, and blocks, exclusive ones.
	LockShared LockMode = iota
	// LockExclusive serializes the transaction against every other transaction on the organization.
	LockExclusive
)

// OwnerCount is an organization whose owner count is not exactly one.
type OwnerCount struct {
	OrgID  string
	Owners int
}

// Store is a Repository that groups writes atomically per organization.
type Store interface {
	Repository
	// WithinOrgTx runs fn in a single transaction scoped to orgID. Writes made through the
	// Repository passed to fn are applied together when fn returns nil and discarded otherwise.
	// Rows read through it stay locked until the transaction ends.
	// Returns domain.ErrOrganizationNotFound if the organization does not exist.
	WithinOrgTx(ctx context.Context, orgID string, mode LockMode, fn func(ctx context.Context, r Repository) error) error
	// OwnerCountViolations lists organizations that do not have exactly one owner.
	OwnerCountViolations(ctx context.Context) ([]OwnerCount, error)
}
