package repository

import (
	"context"
	"time"

	membershipdomain "github.com/yonathanth/Workline-backend/internal/membership/domain"
	"github.com/yonathanth/Workline-backend/internal/session/domain"
)

// Repository defines persistence for sessions.
// Lookups return (nil, nil) for a missing session.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.Session, error)
	GetByTokenHash(ctx context.Context, tokenHash string) (*domain.Session, error)
	Create(ctx context.Context, s *domain.Session) error
	// Revoke marks the session revoked; revoking twice keeps the first timestamp.
	Revoke(ctx context.Context, id string, at time.Time) error
	// SetActiveOrganization stores the active organization and its cached role.
	// An empty orgID clears both. Returns domain.ErrSessionNotFound when id is unknown.
	SetActiveOrganization(ctx context.Context, id, orgID string, role membershipdomain.Role, at time.Time) error
	// ClearActiveOrganization clears the active organization and cached role of every session
	// of userID whose active organization is orgID. No matching session is not an error.
	ClearActiveOrganization(ctx context.Context, userID, orgID string, at time.Time) error
}
