package domain

import (
	"errors"
	"strings"
	"time"

	membershipdomain "github.com/yonathanth/Workline-backend/internal/membership/domain"
	userdomain "github.com/yonathanth/Workline-backend/internal/user/domain"
)

var (
	ErrNotFound        = errors.New("invitation not found")
	ErrExpired         = errors.New("invitation has expired")
	ErrAlreadyAccepted = errors.New("invitation has already been accepted")
	ErrAlreadyInvited  = errors.New("a pending invitation already exists for this email")
	ErrEmailMismatch   = errors.New("invitation is addressed to a different email")
	ErrInvalidEmail    = errors.New("email is invalid")
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusExpired  Status = "expired"
)

// Invitation offers membership in an organization to an email address. Only the hash of
// the one-time token is stored.
type Invitation struct {
	ID         string
	Email      string
	OrgID      string
	Role       membershipdomain.Role
	TokenHash  string
	ExpiresAt  time.Time
	AcceptedAt *time.Time
	CreatedBy  string
	CreatedAt  time.Time
}

// Status derives the invitation state at now.
func (i *Invitation) Status(now time.Time) Status {
	switch {
	case i.AcceptedAt != nil:
		return StatusAccepted
	case !now.Before(i.ExpiresAt):
		return StatusExpired
	default:
		return StatusPending
	}
}

// Validate normalizes the email and checks the offered role. Invitations never grant ownership.
func (i *Invitation) Validate() error {
	i.Email = userdomain.NormalizeEmail(i.Email)
	at := strings.IndexByte(i.Email, '@')
	if at <= 0 || at == len(i.Email)-1 {
		return ErrInvalidEmail
	}
	if !i.Role.Valid() {
		return membershipdomain.ErrInvalidRole
	}
	if i.Role == membershipdomain.RoleOwner {
		return membershipdomain.ErrOwnerPromotionRejected
	}
	return nil
}

// CheckAcceptable returns nil when email may accept the invitation at now.
func (i *Invitation) CheckAcceptable(email string, now time.Time) error {
	switch i.Status(now) {
	case StatusAccepted:
		return ErrAlreadyAccepted
	case StatusExpired:
		return ErrExpired
	}
	if userdomain.NormalizeEmail(email) != i.Email {
		return ErrEmailMismatch
	}
	return nil
}
