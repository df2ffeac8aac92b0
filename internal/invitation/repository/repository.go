package repository

import (
	"context"
	"time"

	"github.com/yonathanth/Workline-backend/internal/invitation/domain"
	membershipdomain "github.com/yonathanth/Workline-backend/internal/membership/domain"
)

// Repository defines persistence for invitations.
type Repository interface {
	Create(ctx context.Context, inv *domain.Invitation) error
	// GetByID and GetByTokenHash return nil, nil when no invitation matches.
	GetByID(ctx context.Context, id string) (*domain.Invitation, error)
	GetByTokenHash(ctx context.Context, tokenHash string) (*domain.Invitation, error)
	// ListPendingByOrg returns unaccepted invitations that have not expired at now, newest first.
	ListPendingByOrg(ctx context.Context, orgID string, now time.Time) ([]*domain.Invitation, error)
	// Accept marks the invitation accepted and creates m in one transaction.
	Accept(ctx context.Context, invitationID string, at time.Time, m *membershipdomain.Membership) error
}
