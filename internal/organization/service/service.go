// Package service implements organization lifecycle operations. Authorization is enforced by
// the guard chain in front of the handlers; the creator of an organization becomes its owner.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/yonathanth/Workline-backend/internal/audit"
	auditdomain "github.com/yonathanth/Workline-backend/internal/audit/domain"
	membershipdomain "github.com/yonathanth/Workline-backend/internal/membership/domain"
	"github.com/yonathanth/Workline-backend/internal/organization/domain"
	"github.com/yonathanth/Workline-backend/internal/organization/repository"
	"github.com/yonathanth/Workline-backend/internal/platform/rbac"
)

// CreateInput is the data needed to create an organization.
type CreateInput struct {
	Name        string
	Slug        string
	Description string
}

// OrganizationService creates, reads, updates and deletes organizations.
type OrganizationService struct {
	repo   repository.Repository
	audit  audit.AuditLogger
	log    *slog.Logger
	tracer trace.Tracer
	now    func() time.Time
}

// NewOrganizationService returns an OrganizationService. auditLogger and logger may be nil.
func NewOrganizationService(repo repository.Repository, auditLogger audit.AuditLogger, logger *slog.Logger) *OrganizationService {
	if logger == nil {
		logger = slog.Default()
	}
	return &OrganizationService{
		repo:   repo,
		audit:  auditLogger,
		log:    logger,
		tracer: otel.Tracer("github.com/yonathanth/Workline-backend/internal/organization/service"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Create persists a new organization with creatorID as its owner.
func (s *OrganizationService) Create(ctx context.Context, creatorID string, in CreateInput) (*domain.Organization, error) {
	ctx, span := s.tracer.Start(ctx, "organization.Create", trace.WithAttributes(attribute.String("user_id", creatorID)))
	defer span.End()

	if creatorID == "" {
		return nil, rbac.ErrUnauthenticated
	}
	now := s.now()
	o := &domain.Organization{
		ID:        uuid.New().String(),
		Name:      in.Name,
		Slug:      in.Slug,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if in.Description != "" {
		d := in.Description
		o.Description = &d
	}
	if err := o.Validate(); err != nil {
		return nil, err
	}
	owner := &membershipdomain.Membership{
		ID:       uuid.New().String(),
		UserID:   creatorID,
		OrgID:    o.ID,
		Role:     membershipdomain.RoleOwner,
		JoinedAt: now,
	}
	if err := s.repo.CreateWithOwner(ctx, o, owner); err != nil {
		return nil, fmt.Errorf("create organization %q: %w", o.Slug, err)
	}
	s.log.InfoContext(ctx, "organization created",
		slog.String("org_id", o.ID),
		slog.String("slug", o.Slug),
		slog.String("owner_id", creatorID),
	)
	s.logAudit(ctx, o.ID, creatorID, auditdomain.ActionOrgCreated, audit.Meta("slug", o.Slug, "name", o.Name))
	return o, nil
}

// ListForUser returns the organizations userID belongs to with their role in each.
func (s *OrganizationService) ListForUser(ctx context.Context, userID string) ([]*domain.Membership, error) {
	return s.repo.ListOrganizationsForUser(ctx, userID)
}

// Get returns the organization or domain.ErrNotFound.
func (s *OrganizationService) Get(ctx context.Context, orgID string) (*domain.Organization, error) {
	o, err := s.repo.GetOrganizationByID(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, domain.ErrNotFound
	}
	return o, nil
}

// Update applies patch to the organization.
func (s *OrganizationService) Update(ctx context.Context, orgID string, patch domain.Patch) (*domain.Organization, error) {
	ctx, span := s.tracer.Start(ctx, "organization.Update", trace.WithAttributes(attribute.String("org_id", orgID)))
	defer span.End()

	o, err := s.Get(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if err := o.Apply(patch); err != nil {
		return nil, err
	}
	o.UpdatedAt = s.now()
	if err := s.repo.UpdateOrganization(ctx, o); err != nil {
		return nil, err
	}
	s.logAudit(ctx, o.ID, actorID(ctx), auditdomain.ActionOrgUpdated, audit.Meta("slug", o.Slug, "name", o.Name))
	return o, nil
}

// Delete removes the organization with all of its memberships and invitations.
func (s *OrganizationService) Delete(ctx context.Context, orgID string) error {
	ctx, span := s.tracer.Start(ctx, "organization.Delete", trace.WithAttributes(attribute.String("org_id", orgID)))
	defer span.End()

	if err := s.repo.DeleteOrganization(ctx, orgID); err != nil {
		return err
	}
	s.log.InfoContext(ctx, "organization deleted", slog.String("org_id", orgID))
	// The audit row outlives the organization, so it is filed under the system org.
	s.logAudit(ctx, audit.SentinelOrgID, actorID(ctx), auditdomain.ActionOrgDeleted, audit.Meta("orgId", orgID))
	return nil
}

func (s *OrganizationService) logAudit(ctx context.Context, orgID, userID, action, metadata string) {
	if s.audit == nil {
		return
	}
	s.audit.LogEvent(ctx, orgID, userID, action, auditdomain.ResourceOrganization, metadata)
}

func actorID(ctx context.Context) string {
	if acc, ok := rbac.AccessFromContext(ctx); ok {
		return acc.UserID
	}
	return ""
}
