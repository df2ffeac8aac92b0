package rbac

import (
	"context"

	"github.com/yonathanth/Workline-backend/internal/membership/domain"
)

// TierPolicy decides whether a member's role satisfies the role a guard requires.
type TierPolicy interface {
	Allow(ctx context.Context, role, required domain.Role) (bool, error)
}

// HierarchyPolicy applies the fixed ranking owner > admin > member.
type HierarchyPolicy struct{}

func (HierarchyPolicy) Allow(_ context.Context, role, required domain.Role) (bool, error) {
	return role.AtLeast(required), nil
}
