package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/yonathanth/Workline-backend/internal/config"
	"github.com/yonathanth/Workline-backend/internal/db"
	"github.com/yonathanth/Workline-backend/internal/db/migrate"
	membershipdomain "github.com/yonathanth/Workline-backend/internal/membership/domain"
	membershiprepo "github.com/yonathanth/Workline-backend/internal/membership/repository"
	membershipservice "github.com/yonathanth/Workline-backend/internal/membership/service"
	organizationrepo "github.com/yonathanth/Workline-backend/internal/organization/repository"
	organizationservice "github.com/yonathanth/Workline-backend/internal/organization/service"
	"github.com/yonathanth/Workline-backend/internal/security"
	sessiondomain "github.com/yonathanth/Workline-backend/internal/session/domain"
	sessionrepo "github.com/yonathanth/Workline-backend/internal/session/repository"
	userdomain "github.com/yonathanth/Workline-backend/internal/user/domain"
	userrepo "github.com/yonathanth/Workline-backend/internal/user/repository"
)

// ErrOwnerInvariant is returned by owners check when any organization is unhealthy.
var ErrOwnerInvariant = errors.New("organizations without exactly one owner")

type MigrateCmd struct {
	Direction string `arg:"" enum:"up,down,version" default:"up" help:"up, down or version"`
}

func (c *MigrateCmd) Run(ctx *cliCtx) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if c.Direction == "version" {
		v, dirty, ok, err := migrate.Version(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Println("no migrations applied")
			return nil
		}
		fmt.Printf("version %d (dirty: %v)\n", v, dirty)
		return nil
	}
	dir, err := migrate.ParseDirection(c.Direction)
	if err != nil {
		return err
	}
	if err := migrate.Run(cfg.DatabaseURL, dir); err != nil {
		return fmt.Errorf("migrate %s: %w", dir, err)
	}
	ctx.Logger.Info("migrations applied", "direction", string(dir))
	return nil
}

type seedUser struct {
	email string
	name  string
	role  membershipdomain.Role
}

var seedUsers = []seedUser{
	{"owner@workline.dev", "Olive Owner", membershipdomain.RoleOwner},
	{"admin@workline.dev", "Ada Admin", membershipdomain.RoleAdmin},
	{"member@workline.dev", "Max Member", membershipdomain.RoleMember},
}

type SeedCmd struct {
	OrgName string `default:"Acme Dev" help:"Name of the demo organization"`
}

// Run is idempotent: it does nothing when the owner user already exists.
func (c *SeedCmd) Run(ctx *cliCtx) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	pool, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	users := userrepo.NewPostgresRepository(pool)
	members := membershiprepo.NewPostgresRepository(pool)
	sessions := sessionrepo.NewPostgresRepository(pool)
	orgs := organizationservice.NewOrganizationService(organizationrepo.NewPostgresRepository(pool), nil, ctx.Logger)

	existing, err := users.GetByEmail(ctx, seedUsers[0].email)
	if err != nil {
		return fmt.Errorf("seed check: %w", err)
	}
	if existing != nil {
		ctx.Logger.Info("seed already applied; skipping", "email", seedUsers[0].email)
		return nil
	}

	var tokens *security.TokenProvider
	if cfg.JWTPrivateKey != "" && cfg.JWTPublicKey != "" {
		signer, pub, err := security.LoadKeyPair(cfg.JWTPrivateKey, cfg.JWTPublicKey)
		if err != nil {
			return fmt.Errorf("jwt keys: %w", err)
		}
		tokens = security.NewTokenProvider(signer, pub, cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTTL())
	}

	now := time.Now().UTC()
	var orgID string
	for _, su := range seedUsers {
		u := &userdomain.User{
			ID:            uuid.New().String(),
			Email:         su.email,
			Name:          su.name,
			EmailVerified: true,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := u.Validate(); err != nil {
			return err
		}
		if err := users.Create(ctx, u); err != nil {
			return fmt.Errorf("create user %s: %w", su.email, err)
		}

		if su.role == membershipdomain.RoleOwner {
			org, err := orgs.Create(ctx, u.ID, organizationservice.CreateInput{Name: c.OrgName})
			if err != nil {
				return err
			}
			orgID = org.ID
		} else if err := members.CreateMembership(ctx, &membershipdomain.Membership{
			ID:       uuid.New().String(),
			UserID:   u.ID,
			OrgID:    orgID,
			Role:     su.role,
			JoinedAt: now,
		}); err != nil {
			return fmt.Errorf("add %s: %w", su.email, err)
		}

		token, err := security.NewOpaqueToken()
		if err != nil {
			return err
		}
		sess := &sessiondomain.Session{
			ID:          uuid.New().String(),
			UserID:      u.ID,
			TokenHash:   security.HashToken(token),
			ExpiresAt:   now.Add(cfg.SessionLifetime()),
			ActiveOrgID: orgID,
			ActiveRole:  su.role,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := sessions.Create(ctx, sess); err != nil {
			return fmt.Errorf("create session for %s: %w", su.email, err)
		}
		printSeeded(os.Stdout, su, u.ID, token)
		if tokens != nil {
			jwt, _, err := tokens.IssueAccess(sess.ID, u.ID)
			if err != nil {
				return err
			}
			fmt.Printf("  bearer:  %s\n", jwt)
		}
	}
	fmt.Printf("organization: %s (%s)\n", c.OrgName, orgID)
	return nil
}

func printSeeded(w io.Writer, su seedUser, userID, token string) {
	fmt.Fprintf(w, "%-6s %s (%s)\n  cookie:  %s\n", su.role, su.email, userID, token)
}

type OwnersCmd struct {
	Check OwnersCheckCmd `cmd:"" help:"List organizations that do not have exactly one owner"`
}

type OwnersCheckCmd struct{}

func (c *OwnersCheckCmd) Run(ctx *cliCtx) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	pool, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	svc := membershipservice.NewMembershipService(membershiprepo.NewPostgresRepository(pool), nil, ctx.Logger)
	violations, err := svc.CheckOwnerInvariant(ctx)
	if err != nil {
		return err
	}
	return reportOwnerViolations(os.Stdout, violations)
}

func reportOwnerViolations(w io.Writer, violations []membershiprepo.OwnerCount) error {
	if len(violations) == 0 {
		fmt.Fprintln(w, "every organization has exactly one owner")
		return nil
	}
	for _, v := range violations {
		fmt.Fprintf(w, "%s\towners=%d\n", v.OrgID, v.Owners)
	}
	return fmt.Errorf("%w: %d", ErrOwnerInvariant, len(violations))
}
