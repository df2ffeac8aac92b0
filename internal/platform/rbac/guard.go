package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/yonathanth/Workline-backend/internal/membership/domain"
	sessiondomain "github.com/yonathanth/Workline-backend/internal/session/domain"
)

// Guard is one tier of the chain. Guards run in declaration order; requiring a guard runs it
// and every guard before it.
type Guard int

const (
	GuardAuthenticated Guard = iota + 1
	GuardOrganizationMember
	GuardOrganizationAdmin
	GuardOrganizationOwner
)

func (g Guard) String() string {
	switch g {
	case GuardAuthenticated:
		return "authenticated"
	case GuardOrganizationMember:
		return "organization_member"
	case GuardOrganizationAdmin:
		return "organization_admin"
	case GuardOrganizationOwner:
		return "organization_owner"
	default:
		return fmt.Sprintf("guard(%d)", int(g))
	}
}

// requiredRole is the minimum role an organization guard admits.
func (g Guard) requiredRole() domain.Role {
	switch g {
	case GuardOrganizationMember:
		return domain.RoleMember
	case GuardOrganizationAdmin:
		return domain.RoleAdmin
	case GuardOrganizationOwner:
		return domain.RoleOwner
	default:
		return ""
	}
}

// Outcome is the state of a guard step.
type Outcome int

const (
	OutcomeUnchecked Outcome = iota
	OutcomeAdmitted
	OutcomeDenied
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAdmitted:
		return "admitted"
	case OutcomeDenied:
		return "denied"
	default:
		return "unchecked"
	}
}

// Reason explains a denial.
type Reason string

const (
	ReasonUnauthenticated    Reason = "unauthenticated"
	ReasonNotAMember         Reason = "not_a_member"
	ReasonInsufficientRole   Reason = "insufficient_role"
	ReasonBackendUnavailable Reason = "backend_unavailable"
)

// Step is the result of one guard.
type Step struct {
	Guard   Guard
	Outcome Outcome
	Reason  Reason
}

// Decision is the result of evaluating the chain up to a required guard.
type Decision struct {
	Admitted bool
	// Guard is the guard that denied, or the required guard when admitted.
	Guard  Guard
	Reason Reason
	// Cause is the backend error behind a backend_unavailable denial.
	Cause  error
	Access Access
	Steps  []Step
}

// Err returns nil when admitted, otherwise the sentinel matching the denial reason.
func (d Decision) Err() error {
	if d.Admitted {
		return nil
	}
	switch d.Reason {
	case ReasonUnauthenticated:
		return ErrUnauthenticated
	case ReasonNotAMember:
		return ErrNotAMember
	case ReasonInsufficientRole:
		return fmt.Errorf("%w: %s required", ErrInsufficientRole, d.Guard.requiredRole())
	default:
		if d.Cause == nil {
			return ErrBackendUnavailable
		}
		if errors.Is(d.Cause, ErrBackendUnavailable) {
			return d.Cause
		}
		return fmt.Errorf("%w: %w", ErrBackendUnavailable, d.Cause)
	}
}

// Input is what the chain needs from a request.
type Input struct {
	Session *sessiondomain.Session // nil when the request carried no valid credential
	OrgID   string                 // organization targeted by the route; may be empty
	Mode    Mode
}

// RoleResolver resolves a session user's role in an organization.
type RoleResolver interface {
	Resolve(ctx context.Context, sess *sessiondomain.Session, orgID string, mode Mode) (Resolution, error)
}

// Chain evaluates Authenticated, OrganizationMember, OrganizationAdmin and OrganizationOwner
// in that order. The first denial ends evaluation.
type Chain struct {
	resolver  RoleResolver
	policy    TierPolicy
	log       *slog.Logger
	decisions metric.Int64Counter
	now       func() time.Time
}

// NewChain returns a Chain. A nil policy uses HierarchyPolicy; a nil logger uses slog.Default().
func NewChain(resolver RoleResolver, policy TierPolicy, logger *slog.Logger) *Chain {
	if policy == nil {
		policy = HierarchyPolicy{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	counter, err := otel.Meter("github.com/yonathanth/Workline-backend/internal/platform/rbac").Int64Counter(
		"workline.guard.decisions",
		metric.WithDescription("Guard chain decisions by guard, outcome and reason."),
	)
	if err != nil {
		logger.Warn("rbac: decision counter unavailable", slog.Any("error", err))
	}
	return &Chain{resolver: resolver, policy: policy, log: logger, decisions: counter, now: time.Now}
}

// Evaluate runs every guard up to and including required.
func (c *Chain) Evaluate(ctx context.Context, in Input, required Guard) Decision {
	d := c.evaluate(ctx, in, required)
	c.record(ctx, d)
	return d
}

func (c *Chain) evaluate(ctx context.Context, in Input, required Guard) Decision {
	d := Decision{Guard: required}
	steps := make([]Step, 0, 4)
	deny := func(g Guard, reason Reason, cause error) Decision {
		steps = append(steps, Step{Guard: g, Outcome: OutcomeDenied, Reason: reason})
		d.Guard, d.Reason, d.Cause, d.Steps = g, reason, cause, steps
		return d
	}

	if in.Session == nil || !in.Session.Active(c.now()) {
		return deny(GuardAuthenticated, ReasonUnauthenticated, nil)
	}
	steps = append(steps, Step{Guard: GuardAuthenticated, Outcome: OutcomeAdmitted})
	access := Access{UserID: in.Session.UserID, SessionID: in.Session.ID}
	if required <= GuardAuthenticated {
		d.Admitted, d.Access, d.Steps = true, access, steps
		return d
	}

	// Role is resolved once and shared by the organization guards.
	if in.OrgID == "" {
		return deny(GuardOrganizationMember, ReasonNotAMember, nil)
	}
	res, err := c.resolver.Resolve(ctx, in.Session, in.OrgID, in.Mode)
	if err != nil {
		if errors.Is(err, ErrNotAMember) {
			return deny(GuardOrganizationMember, ReasonNotAMember, nil)
		}
		c.log.ErrorContext(ctx, "rbac: role resolution failed",
			slog.String("org_id", in.OrgID),
			slog.String("user_id", in.Session.UserID),
			slog.Any("error", err),
		)
		return deny(GuardOrganizationMember, ReasonBackendUnavailable, err)
	}

	for g := GuardOrganizationMember; g <= required && g <= GuardOrganizationOwner; g++ {
		ok, err := c.policy.Allow(ctx, res.Role, g.requiredRole())
		if err != nil {
			c.log.ErrorContext(ctx, "rbac: tier policy evaluation failed",
				slog.String("guard", g.String()),
				slog.String("org_id", in.OrgID),
				slog.Any("error", err),
			)
			return deny(g, ReasonBackendUnavailable, fmt.Errorf("%w: tier policy: %w", ErrBackendUnavailable, err))
		}
		if !ok {
			if g == GuardOrganizationMember {
				return deny(g, ReasonNotAMember, nil)
			}
			return deny(g, ReasonInsufficientRole, nil)
		}
		steps = append(steps, Step{Guard: g, Outcome: OutcomeAdmitted})
	}

	access.OrgID = res.OrgID
	access.Role = res.Role
	access.IsAdmin = res.IsAdmin
	access.IsOwner = res.IsOwner
	d.Admitted, d.Access, d.Steps = true, access, steps
	return d
}

func (c *Chain) record(ctx context.Context, d Decision) {
	outcome := OutcomeAdmitted
	if !d.Admitted {
		outcome = OutcomeDenied
		c.log.DebugContext(ctx, "rbac: request denied",
			slog.String("guard", d.Guard.String()),
			slog.String("reason", string(d.Reason)),
		)
	}
	if c.decisions == nil {
		return
	}
	c.decisions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("guard", d.Guard.String()),
		attribute.String("outcome", outcome.String()),
		attribute.String("reason", string(d.Reason)),
	))
}
