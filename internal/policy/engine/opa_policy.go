// Package engine evaluates organization tier checks with Open Policy Agent.
package engine

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/open-policy-agent/opa/v1/rego"

	"github.com/yonathanth/Workline-backend/internal/membership/domain"
)

const allowQuery = "data.workline.authz.allow"

// DefaultTierPolicy is the Rego module used when no policy file is configured.
// It encodes owner > admin > member; unknown roles rank nowhere and are denied.
const DefaultTierPolicy = `package workline.authz

default allow := false

rank := {"member": 1, "admin": 2, "owner": 3}

allow if {
	rank[input.role] >= rank[input.required]
}
`

// OPAPolicy implements rbac.TierPolicy by evaluating a prepared Rego query.
// The query is compiled once; Allow is safe for concurrent use.
type OPAPolicy struct {
	query rego.PreparedEvalQuery
}

// NewOPAPolicy compiles module (DefaultTierPolicy when empty). The module must define
// data.workline.authz.allow.
func NewOPAPolicy(ctx context.Context, module string) (*OPAPolicy, error) {
	if strings.TrimSpace(module) == "" {
		module = DefaultTierPolicy
	}
	pq, err := rego.New(
		rego.Query(allowQuery),
		rego.Module("workline_authz.rego", module),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile tier policy: %w", err)
	}
	p := &OPAPolicy{query: pq}
	if err := p.HealthCheck(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

// LoadOPAPolicy reads a Rego module from path, or uses DefaultTierPolicy when path is empty.
func LoadOPAPolicy(ctx context.Context, path string) (*OPAPolicy, error) {
	if strings.TrimSpace(path) == "" {
		return NewOPAPolicy(ctx, "")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tier policy: %w", err)
	}
	return NewOPAPolicy(ctx, string(b))
}

// Allow reports whether role satisfies required. An evaluation error is returned as-is so
// the guard chain can deny with backend_unavailable.
func (p *OPAPolicy) Allow(ctx context.Context, role, required domain.Role) (bool, error) {
	rs, err := p.query.Eval(ctx, rego.EvalInput(map[string]any{
		"role":     string(role),
		"required": string(required),
	}))
	if err != nil {
		return false, fmt.Errorf("evaluate tier policy: %w", err)
	}
	return rs.Allowed(), nil
}

// HealthCheck evaluates a case every sane tier policy admits (owner acting as member).
func (p *OPAPolicy) HealthCheck(ctx context.Context) error {
	ok, err := p.Allow(ctx, domain.RoleOwner, domain.RoleMember)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("tier policy denies owner for member tier")
	}
	return nil
}
