// Package service implements membership mutations: role changes, member removal, and
// ownership transfer. Callers are expected to have passed the organization guards already;
// the service still re-reads every referenced membership inside a transaction.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/yonathanth/Workline-backend/internal/audit"
	auditdomain "github.com/yonathanth/Workline-backend/internal/audit/domain"
	"github.com/yonathanth/Workline-backend/internal/membership/domain"
	"github.com/yonathanth/Workline-backend/internal/membership/repository"
	"github.com/yonathanth/Workline-backend/internal/platform/rbac"
)

const instrumentationName = "github.com/yonathanth/Workline-backend/internal/membership/service"

// mutationTimeout bounds a write once it has been detached from the request.
const mutationTimeout = 15 * time.Second

// Transfer outcomes recorded on workline.ownership.transfers.
const (
	outcomeSuccess   = "success"
	outcomeConflict  = "conflict"
	outcomeNotFound  = "member_not_found"
	outcomeInvalid   = "invalid"
	outcomeInvariant = "invariant_violation"
	outcomeError     = "error"
)

// TransferResult is returned by a committed ownership transfer.
type TransferResult struct {
	OrgID           string
	PreviousOwnerID string
	NewOwnerID      string
	TransferredAt   time.Time
}

// SessionCache is the session-side copy of a user's active organization and role.
// ClearActiveOrganization drops it for every session of userID whose active organization is
// orgID, so the next request in that organization resolves the role from the membership store.
type SessionCache interface {
	ClearActiveOrganization(ctx context.Context, userID, orgID string, at time.Time) error
}

// Option configures a MembershipService.
type Option func(*MembershipService)

// WithSessionCache invalidates cached session roles of every user a mutation touches.
func WithSessionCache(c SessionCache) Option {
	return func(s *MembershipService) { s.sessions = c }
}

// WithSessionsInStore clears cached roles through the mutation transaction when the store's
// transaction repository implements SessionCache. Use it when sessions live in the same
// database as memberships.
func WithSessionsInStore() Option {
	return func(s *MembershipService) { s.sessionsInStore = true }
}

// MembershipService performs membership mutations against a transactional store.
type MembershipService struct {
	store           repository.Store
	sessions        SessionCache
	sessionsInStore bool
	audit           audit.AuditLogger
	log             *slog.Logger
	tracer          trace.Tracer
	transfers       metric.Int64Counter
	now             func() time.Time
}

// NewMembershipService returns a MembershipService. auditLogger and logger may be nil.
func NewMembershipService(store repository.Store, auditLogger audit.AuditLogger, logger *slog.Logger, opts ...Option) *MembershipService {
	if logger == nil {
		logger = slog.Default()
	}
	transfers, err := otel.Meter(instrumentationName).Int64Counter(
		"workline.ownership.transfers",
		metric.WithDescription("Ownership transfer attempts by outcome."),
	)
	if err != nil {
		logger.Warn("membership: transfer counter unavailable", slog.Any("error", err))
	}
	s := &MembershipService{
		store:     store,
		audit:     auditLogger,
		log:       logger,
		tracer:    otel.Tracer(instrumentationName),
		transfers: transfers,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListMembers returns every membership of the organization, oldest first.
func (s *MembershipService) ListMembers(ctx context.Context, orgID string) ([]*domain.Membership, error) {
	return s.store.ListMembershipsByOrg(ctx, orgID)
}

// UpdateRole sets the role of targetUserID in orgID. Promotion to owner and demotion of the
// owner are rejected. Setting the role the member already has is a no-op and returns the row.
func (s *MembershipService) UpdateRole(ctx context.Context, orgID, targetUserID string, newRole domain.Role) (*domain.Membership, error) {
	if !newRole.Valid() {
		return nil, domain.ErrInvalidRole
	}
	if newRole == domain.RoleOwner {
		return nil, domain.ErrOwnerPromotionRejected
	}
	ctx, span := s.tracer.Start(ctx, "membership.UpdateRole", trace.WithAttributes(
		attribute.String("org_id", orgID),
		attribute.String("target_user_id", targetUserID),
		attribute.String("role", string(newRole)),
	))
	defer span.End()

	wctx, cancel := detach(ctx)
	defer cancel()

	var (
		result   *domain.Membership
		previous domain.Role
	)
	err := s.store.WithinOrgTx(wctx, orgID, repository.LockShared, func(ctx context.Context, r repository.Repository) error {
		m, err := lookupTarget(ctx, r, orgID, targetUserID)
		if err != nil {
			return err
		}
		if m.Role == domain.RoleOwner {
			return &domain.OwnerRemovalError{OrgID: orgID, OwnerID: targetUserID, Action: "demote"}
		}
		previous = m.Role
		if m.Role == newRole {
			result = m
			return nil
		}
		if result, err = r.UpdateRole(ctx, m.ID, newRole); err != nil {
			return err
		}
		return s.clearCachedRoles(ctx, r, orgID, targetUserID)
	})
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	if previous != newRole {
		s.recheckCachedRoles(wctx, orgID, targetUserID)
		s.logAudit(ctx, orgID, auditdomain.ActionRoleChanged,
			audit.Meta("targetUserId", targetUserID, "from", string(previous), "to", string(newRole)))
	}
	return result, nil
}

// RemoveMember deletes the membership of targetUserID in orgID. The owner cannot be removed.
func (s *MembershipService) RemoveMember(ctx context.Context, orgID, targetUserID string) error {
	ctx, span := s.tracer.Start(ctx, "membership.RemoveMember", trace.WithAttributes(
		attribute.String("org_id", orgID),
		attribute.String("target_user_id", targetUserID),
	))
	defer span.End()

	wctx, cancel := detach(ctx)
	defer cancel()

	var removed *domain.Membership
	err := s.store.WithinOrgTx(wctx, orgID, repository.LockShared, func(ctx context.Context, r repository.Repository) error {
		m, err := lookupTarget(ctx, r, orgID, targetUserID)
		if err != nil {
			return err
		}
		if m.Role == domain.RoleOwner {
			return &domain.OwnerRemovalError{OrgID: orgID, OwnerID: targetUserID, Action: "remove"}
		}
		removed = m
		if err := r.DeleteMembership(ctx, m.ID); err != nil {
			return err
		}
		return s.clearCachedRoles(ctx, r, orgID, targetUserID)
	})
	if err != nil {
		recordSpanError(span, err)
		return err
	}
	s.recheckCachedRoles(wctx, orgID, targetUserID)
	s.logAudit(ctx, orgID, auditdomain.ActionMemberRemoved,
		audit.Meta("targetUserId", targetUserID, "role", string(removed.Role)))
	return nil
}

// TransferOwnership makes newOwnerUserID the owner of orgID and demotes currentOwnerUserID to
// member. Both writes commit together or not at all. Transfers on the same organization are
// serialized; if currentOwnerUserID no longer owns the organization when the lock is taken,
// a *domain.TransferConflictError is returned.
func (s *MembershipService) TransferOwnership(ctx context.Context, orgID, newOwnerUserID, currentOwnerUserID string) (*TransferResult, error) {
	ctx, span := s.tracer.Start(ctx, "membership.TransferOwnership", trace.WithAttributes(
		attribute.String("org_id", orgID),
		attribute.String("new_owner_id", newOwnerUserID),
		attribute.String("current_owner_id", currentOwnerUserID),
	))
	defer span.End()

	if newOwnerUserID == "" || newOwnerUserID == currentOwnerUserID {
		s.countTransfer(ctx, outcomeInvalid)
		return nil, domain.ErrInvalidTransfer
	}

	wctx, cancel := detach(ctx)
	defer cancel()

	var result *TransferResult
	err := s.store.WithinOrgTx(wctx, orgID, repository.LockExclusive, func(ctx context.Context, r repository.Repository) error {
		next, err := lookupTarget(ctx, r, orgID, newOwnerUserID)
		if err != nil {
			return err
		}
		cur, err := lookupTarget(ctx, r, orgID, currentOwnerUserID)
		if err != nil {
			return err
		}
		owners, err := r.ListOwnersByOrg(ctx, orgID)
		if err != nil {
			return err
		}
		switch {
		case len(owners) > 1:
			return &domain.InvariantError{OrgID: orgID, Owners: ownerIDs(owners)}
		case len(owners) == 0:
			return &domain.TransferConflictError{OrgID: orgID, ExpectedOwnerID: currentOwnerUserID}
		case owners[0].UserID != currentOwnerUserID:
			return &domain.TransferConflictError{
				OrgID:           orgID,
				ExpectedOwnerID: currentOwnerUserID,
				CurrentOwnerID:  owners[0].UserID,
			}
		}

		// Demote before promoting so no statement boundary sees two owners.
		if _, err := r.UpdateRole(ctx, cur.ID, domain.RoleMember); err != nil {
			return fmt.Errorf("demote current owner: %w", err)
		}
		if _, err := r.UpdateRole(ctx, next.ID, domain.RoleOwner); err != nil {
			return fmt.Errorf("promote new owner: %w", err)
		}

		after, err := r.ListOwnersByOrg(ctx, orgID)
		if err != nil {
			return err
		}
		if len(after) != 1 || after[0].UserID != newOwnerUserID {
			return &domain.InvariantError{OrgID: orgID, Owners: ownerIDs(after)}
		}
		if err := s.clearCachedRoles(ctx, r, orgID, currentOwnerUserID, newOwnerUserID); err != nil {
			return err
		}
		result = &TransferResult{
			OrgID:           orgID,
			PreviousOwnerID: currentOwnerUserID,
			NewOwnerID:      newOwnerUserID,
			TransferredAt:   s.now(),
		}
		return nil
	})
	if err != nil {
		recordSpanError(span, err)
		s.countTransfer(ctx, transferOutcome(err))
		if errors.Is(err, domain.ErrOwnerInvariantViolated) {
			s.log.ErrorContext(ctx, "membership: owner invariant violated during transfer; transaction rolled back",
				slog.String("org_id", orgID),
				slog.String("new_owner_id", newOwnerUserID),
				slog.String("current_owner_id", currentOwnerUserID),
				slog.Any("error", err),
			)
			s.logAudit(ctx, orgID, auditdomain.ActionOwnerInvariantBreached, audit.Meta("error", err.Error()))
		}
		return nil, err
	}
	s.recheckCachedRoles(wctx, orgID, currentOwnerUserID, newOwnerUserID)
	s.countTransfer(ctx, outcomeSuccess)
	s.log.InfoContext(ctx, "membership: ownership transferred",
		slog.String("org_id", orgID),
		slog.String("previous_owner_id", currentOwnerUserID),
		slog.String("new_owner_id", newOwnerUserID),
	)
	s.logAudit(ctx, orgID, auditdomain.ActionOwnershipTransferred,
		audit.Meta("previousOwnerId", currentOwnerUserID, "newOwnerId", newOwnerUserID))
	return result, nil
}

// CheckOwnerInvariant reports organizations that do not have exactly one owner.
// Each violation is logged at error; an empty result means every organization is healthy.
func (s *MembershipService) CheckOwnerInvariant(ctx context.Context) ([]repository.OwnerCount, error) {
	violations, err := s.store.OwnerCountViolations(ctx)
	if err != nil {
		return nil, err
	}
	for _, v := range violations {
		s.log.ErrorContext(ctx, "membership: organization owner count is not one",
			slog.String("org_id", v.OrgID),
			slog.Int("owners", v.Owners),
		)
	}
	return violations, nil
}

func lookupTarget(ctx context.Context, r repository.Repository, orgID, userID string) (*domain.Membership, error) {
	m, err := r.GetMembershipByUserAndOrg(ctx, userID, orgID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fmt.Errorf("user %s in organization %s: %w", userID, orgID, domain.ErrMemberNotFound)
	}
	return m, nil
}

// clearCachedRoles runs inside the mutation transaction; a failure rolls the mutation back so
// a committed role change never leaves a cached role behind.
func (s *MembershipService) clearCachedRoles(ctx context.Context, r repository.Repository, orgID string, userIDs ...string) error {
	cache := s.sessions
	if s.sessionsInStore {
		if c, ok := r.(SessionCache); ok {
			cache = c
		}
	}
	if cache == nil {
		return nil
	}
	at := s.now()
	for _, id := range userIDs {
		if err := cache.ClearActiveOrganization(ctx, id, orgID, at); err != nil {
			return fmt.Errorf("clear cached role of %s: %w", id, err)
		}
	}
	return nil
}

// recheckCachedRoles clears again after commit. An active-organization switch that read the
// membership before commit may have cached the old role after the in-transaction clear.
func (s *MembershipService) recheckCachedRoles(ctx context.Context, orgID string, userIDs ...string) {
	if s.sessions == nil {
		return
	}
	at := s.now()
	for _, id := range userIDs {
		if err := s.sessions.ClearActiveOrganization(ctx, id, orgID, at); err != nil {
			s.log.ErrorContext(ctx, "membership: clear cached role after commit failed",
				slog.String("org_id", orgID),
				slog.String("user_id", id),
				slog.Any("error", err),
			)
		}
	}
}

// detach keeps request values (trace, access) but drops cancellation so a write that has
// been issued runs to commit or rollback.
func detach(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), mutationTimeout)
}

func (s *MembershipService) logAudit(ctx context.Context, orgID, action, metadata string) {
	if s.audit == nil {
		return
	}
	actorID := ""
	if acc, ok := rbac.AccessFromContext(ctx); ok {
		actorID = acc.UserID
	}
	s.audit.LogEvent(ctx, orgID, actorID, action, auditdomain.ResourceUser, metadata)
}

func (s *MembershipService) countTransfer(ctx context.Context, outcome string) {
	if s.transfers == nil {
		return
	}
	s.transfers.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func transferOutcome(err error) string {
	switch {
	case errors.Is(err, domain.ErrConcurrentTransferConflict):
		return outcomeConflict
	case errors.Is(err, domain.ErrMemberNotFound), errors.Is(err, domain.ErrOrganizationNotFound):
		return outcomeNotFound
	case errors.Is(err, domain.ErrOwnerInvariantViolated):
		return outcomeInvariant
	default:
		return outcomeError
	}
}

func recordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

func ownerIDs(ms []*domain.Membership) []string {
	ids := make([]string, len(ms))
	for i, m := range ms {
		ids[i] = m.UserID
	}
	return ids
}
