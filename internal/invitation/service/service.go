// Package service issues and redeems organization invitations.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/yonathanth/Workline-backend/internal/audit"
	auditdomain "github.com/yonathanth/Workline-backend/internal/audit/domain"
	"github.com/yonathanth/Workline-backend/internal/invitation/domain"
	"github.com/yonathanth/Workline-backend/internal/invitation/repository"
	membershipdomain "github.com/yonathanth/Workline-backend/internal/membership/domain"
	"github.com/yonathanth/Workline-backend/internal/platform/rbac"
	"github.com/yonathanth/Workline-backend/internal/security"
	userdomain "github.com/yonathanth/Workline-backend/internal/user/domain"
)

// DefaultTTL is how long an invitation stays redeemable.
const DefaultTTL = 48 * time.Hour

// UserLookup finds an existing account by email.
type UserLookup interface {
	GetByEmail(ctx context.Context, email string) (*userdomain.User, error)
}

// Issued is a stored invitation with its one-time token. The token is only available here.
type Issued struct {
	Invitation *domain.Invitation
	Token      string
}

// InvitationService creates, lists and accepts invitations.
type InvitationService struct {
	repo    repository.Repository
	users   UserLookup
	members rbac.OrgMembershipGetter
	audit   audit.AuditLogger
	log     *slog.Logger
	ttl     time.Duration
	now     func() time.Time
}

// NewInvitationService returns an InvitationService. A non-positive ttl uses DefaultTTL.
// auditLogger and logger may be nil.
func NewInvitationService(repo repository.Repository, users UserLookup, members rbac.OrgMembershipGetter, auditLogger audit.AuditLogger, logger *slog.Logger, ttl time.Duration) *InvitationService {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &InvitationService{
		repo:    repo,
		users:   users,
		members: members,
		audit:   auditLogger,
		log:     logger,
		ttl:     ttl,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Invite offers role in orgID to email. Existing members and addresses with an open
// invitation are rejected.
func (s *InvitationService) Invite(ctx context.Context, orgID, inviterID, email string, role membershipdomain.Role) (*Issued, error) {
	now := s.now()
	inv := &domain.Invitation{
		ID:        uuid.New().String(),
		Email:     email,
		OrgID:     orgID,
		Role:      role,
		ExpiresAt: now.Add(s.ttl),
		CreatedBy: inviterID,
		CreatedAt: now,
	}
	if err := inv.Validate(); err != nil {
		return nil, err
	}

	if s.users != nil {
		u, err := s.users.GetByEmail(ctx, inv.Email)
		if err != nil {
			return nil, err
		}
		if u != nil {
			m, err := s.members.GetMembershipByUserAndOrg(ctx, u.ID, orgID)
			if err != nil {
				return nil, err
			}
			if m != nil {
				return nil, membershipdomain.ErrDuplicateMembership
			}
		}
	}
	pending, err := s.repo.ListPendingByOrg(ctx, orgID, now)
	if err != nil {
		return nil, err
	}
	for _, p := range pending {
		if p.Email == inv.Email {
			return nil, domain.ErrAlreadyInvited
		}
	}

	token, err := security.NewOpaqueToken()
	if err != nil {
		return nil, fmt.Errorf("invitation token: %w", err)
	}
	inv.TokenHash = security.HashToken(token)
	if err := s.repo.Create(ctx, inv); err != nil {
		return nil, err
	}
	if s.audit != nil {
		s.audit.LogEvent(ctx, orgID, inviterID, auditdomain.ActionInvitationCreated, auditdomain.ResourceInvitation,
			audit.Meta("invitationId", inv.ID, "email", inv.Email, "role", string(inv.Role)))
	}
	return &Issued{Invitation: inv, Token: token}, nil
}

// ListPending returns the open invitations of orgID.
func (s *InvitationService) ListPending(ctx context.Context, orgID string) ([]*domain.Invitation, error) {
	return s.repo.ListPendingByOrg(ctx, orgID, s.now())
}

// Accept redeems the invitation with id invitationID for the signed-in user.
func (s *InvitationService) Accept(ctx context.Context, invitationID, userID, email string) (*membershipdomain.Membership, error) {
	inv, err := s.repo.GetByID(ctx, invitationID)
	if err != nil {
		return nil, err
	}
	return s.accept(ctx, inv, userID, email)
}

// AcceptToken redeems the invitation identified by its one-time token.
func (s *InvitationService) AcceptToken(ctx context.Context, token, userID, email string) (*membershipdomain.Membership, error) {
	if token == "" {
		return nil, domain.ErrNotFound
	}
	inv, err := s.repo.GetByTokenHash(ctx, security.HashToken(token))
	if err != nil {
		return nil, err
	}
	return s.accept(ctx, inv, userID, email)
}

func (s *InvitationService) accept(ctx context.Context, inv *domain.Invitation, userID, email string) (*membershipdomain.Membership, error) {
	if inv == nil {
		return nil, domain.ErrNotFound
	}
	if userID == "" {
		return nil, rbac.ErrUnauthenticated
	}
	now := s.now()
	if err := inv.CheckAcceptable(email, now); err != nil {
		return nil, err
	}
	m := &membershipdomain.Membership{
		ID:       uuid.New().String(),
		UserID:   userID,
		OrgID:    inv.OrgID,
		Role:     inv.Role,
		JoinedAt: now,
	}
	if err := s.repo.Accept(ctx, inv.ID, now, m); err != nil {
		if errors.Is(err, membershipdomain.ErrDuplicateMembership) {
			s.log.InfoContext(ctx, "invitation accepted by existing member",
				slog.String("invitation_id", inv.ID),
				slog.String("org_id", inv.OrgID),
				slog.String("user_id", userID),
			)
		}
		return nil, err
	}
	if s.audit != nil {
		s.audit.LogEvent(ctx, inv.OrgID, userID, auditdomain.ActionMemberAdded, auditdomain.ResourceUser,
			audit.Meta("invitationId", inv.ID, "role", string(inv.Role)))
	}
	return m, nil
}
