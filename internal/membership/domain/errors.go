package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for membership mutations; the HTTP layer maps them to status codes.
var (
	ErrInvalidRole                = errors.New("role must be one of member, admin, owner")
	ErrMemberNotFound             = errors.New("member not found")
	ErrDuplicateMembership        = errors.New("user is already a member of the organization")
	ErrOwnerPromotionRejected     = errors.New("ownership can only be granted through an ownership transfer")
	ErrOwnerRemovalRejected       = errors.New("the organization owner cannot be removed or demoted; transfer ownership first")
	ErrInvalidTransfer            = errors.New("new owner must differ from the current owner")
	ErrConcurrentTransferConflict = errors.New("organization ownership changed concurrently; re-read and retry")
	ErrOwnerInvariantViolated     = errors.New("organization owner invariant violated")
)

// OwnerRemovalError reports an attempt to remove or demote the owner.
type OwnerRemovalError struct {
	OrgID   string
	OwnerID string
	Action  string // "remove" or "demote"
}

func (e *OwnerRemovalError) Error() string {
	return fmt.Sprintf("%s owner %s of organization %s: %v", e.Action, e.OwnerID, e.OrgID, ErrOwnerRemovalRejected)
}

func (e *OwnerRemovalError) Unwrap() error { return ErrOwnerRemovalRejected }

// TransferConflictError reports that the expected current owner no longer holds the owner role.
// CurrentOwnerID is empty when no owner row was observed.
type TransferConflictError struct {
	OrgID           string
	ExpectedOwnerID string
	CurrentOwnerID  string
}

func (e *TransferConflictError) Error() string {
	return fmt.Sprintf("transfer ownership of %s: expected owner %s, observed %q: %v",
		e.OrgID, e.ExpectedOwnerID, e.CurrentOwnerID, ErrConcurrentTransferConflict)
}

func (e *TransferConflictError) Unwrap() error { return ErrConcurrentTransferConflict }

// InvariantError describes a post-write owner check failure. The write is rolled back
// when the store supports it; Owners lists the owner user IDs observed.
type InvariantError struct {
	OrgID  string
	Owners []string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("organization %s has %d owners %v: %v", e.OrgID, len(e.Owners), e.Owners, ErrOwnerInvariantViolated)
}

func (e *InvariantError) Unwrap() error { return ErrOwnerInvariantViolated }

// ErrOrganizationNotFound is returned by stores when the organization row does not exist.
var ErrOrganizationNotFound = errors.New("organization not found")
