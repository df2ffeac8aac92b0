package repository

import (
	"context"

	membershipdomain "github.com/yonathanth/Workline-backend/internal/membership/domain"
	"github.com/yonathanth/Workline-backend/internal/organization/domain"
)

// Repository defines persistence for organizations.
type Repository interface {
	GetOrganizationByID(ctx context.Context, id string) (*domain.Organization, error)
	// ListOrganizationsForUser returns the organizations userID belongs to, oldest membership first.
	ListOrganizationsForUser(ctx context.Context, userID string) ([]*domain.Membership, error)
	// CreateWithOwner persists the organization and its owner membership atomically.
	CreateWithOwner(ctx context.Context, o *domain.Organization, owner *membershipdomain.Membership) error
	UpdateOrganization(ctx context.Context, o *domain.Organization) error
	// DeleteOrganization removes the organization; memberships and invitations cascade.
	DeleteOrganization(ctx context.Context, id string) error
}
