package domain

import "time"

// AuditLog represents an audit event.
type AuditLog struct {
	ID        string
	OrgID     string
	UserID    string
	Action    string
	Resource  string
	IP        string
	Metadata  string
	CreatedAt time.Time
}

// Actions written by the organization and membership services.
const (
	ActionOrgCreated             = "organization_created"
	ActionOrgUpdated             = "organization_updated"
	ActionOrgDeleted             = "organization_deleted"
	ActionRoleChanged            = "role_changed"
	ActionMemberRemoved          = "user_removed"
	ActionMemberAdded            = "user_added"
	ActionOwnershipTransferred   = "ownership_transferred"
	ActionInvitationCreated      = "invitation_created"
	ActionActiveOrgSwitched      = "active_organization_switched"
	ActionOwnerInvariantBreached = "owner_invariant_violated"
)

// Resources.
const (
	ResourceOrganization = "organization"
	ResourceUser         = "user"
	ResourceInvitation   = "invitation"
	ResourceSession      = "session"
)
