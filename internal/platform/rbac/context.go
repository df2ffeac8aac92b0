package rbac

import (
	"context"

	"github.com/yonathanth/Workline-backend/internal/membership/domain"
)

// Access is what the guard chain publishes for an admitted request. It is stored by value
// and never modified after admission. OrgID and Role are empty when only the
// Authenticated guard ran.
type Access struct {
	OrgID     string
	UserID    string
	SessionID string
	Role      domain.Role
	IsOwner   bool
	IsAdmin   bool
}

type accessKey struct{}

// WithAccess returns a context carrying a.
func WithAccess(ctx context.Context, a Access) context.Context {
	return context.WithValue(ctx, accessKey{}, a)
}

// AccessFromContext returns the Access attached by the guard chain.
func AccessFromContext(ctx context.Context) (Access, bool) {
	a, ok := ctx.Value(accessKey{}).(Access)
	return a, ok
}
