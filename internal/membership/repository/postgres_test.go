package repository

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yonathanth/Workline-backend/internal/db"
	"github.com/yonathanth/Workline-backend/internal/db/migrate"
	"github.com/yonathanth/Workline-backend/internal/membership/domain"
)

// testPool connects to DATABASE_URL and applies the migrations; it skips when the variable is unset.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}
	if err := migrate.Run(dsn, migrate.Up); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	pool, err := db.Open(context.Background(), dsn)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(pool.Close)
	return pool
}

// pgOrg is an organization seeded for one test; users maps a label to the user id.
type pgOrg struct {
	id    string
	users map[string]string
}

// seedPostgresOrg creates an organization and one user per label with the given role.
// Everything is deleted when the test ends.
func seedPostgresOrg(t *testing.T, pool *pgxpool.Pool, roles map[string]domain.Role) pgOrg {
	t.Helper()
	ctx := context.Background()
	o := pgOrg{id: uuid.NewString(), users: make(map[string]string, len(roles))}
	if _, err := pool.Exec(ctx, `INSERT INTO organizations (id, slug, name) VALUES ($1, $1, 'test org')`, o.id); err != nil {
		t.Fatalf("seed organization: %v", err)
	}
	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), `DELETE FROM organizations WHERE id = $1`, o.id)
	})

	repo := NewPostgresRepository(pool)
	joined := time.Now().UTC().Add(-time.Hour)
	i := 0
	for label, role := range roles {
		userID := uuid.NewString()
		o.users[label] = userID
		if _, err := pool.Exec(ctx, `INSERT INTO users (id, email) VALUES ($1, $2)`, userID, userID+"@test.workline.dev"); err != nil {
			t.Fatalf("seed user %s: %v", label, err)
		}
		t.Cleanup(func() {
			_, _ = pool.Exec(context.Background(), `DELETE FROM users WHERE id = $1`, userID)
		})
		err := repo.CreateMembership(ctx, &domain.Membership{
			ID: uuid.NewString(), UserID: userID, OrgID: o.id, Role: role,
			JoinedAt: joined.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("seed membership %s: %v", label, err)
		}
		i++
	}
	return o
}

func pgRoleOf(t *testing.T, repo *PostgresRepository, o pgOrg, label string) domain.Role {
	t.Helper()
	m, err := repo.GetMembershipByUserAndOrg(context.Background(), o.users[label], o.id)
	if err != nil {
		t.Fatalf("lookup %s: %v", label, err)
	}
	if m == nil {
		return ""
	}
	return m.Role
}

func TestPostgresRepository_SecondOwnerRejected(t *testing.T) {
	pool := testPool(t)
	repo := NewPostgresRepository(pool)
	o := seedPostgresOrg(t, pool, map[string]domain.Role{"A": domain.RoleOwner, "B": domain.RoleAdmin})
	ctx := context.Background()

	b, err := repo.GetMembershipByUserAndOrg(ctx, o.users["B"], o.id)
	if err != nil || b == nil {
		t.Fatalf("lookup B: %v", err)
	}
	if _, err := repo.UpdateRole(ctx, b.ID, domain.RoleOwner); !errors.Is(err, domain.ErrOwnerInvariantViolated) {
		t.Fatalf("promote second owner err = %v, want ErrOwnerInvariantViolated", err)
	}
	if got := pgRoleOf(t, repo, o, "B"); got != domain.RoleAdmin {
		t.Errorf("B role = %q, want admin", got)
	}

	outsider := seedPostgresOrg(t, pool, map[string]domain.Role{"X": domain.RoleOwner})
	err = repo.CreateMembership(ctx, &domain.Membership{
		ID: uuid.NewString(), UserID: outsider.users["X"], OrgID: o.id, Role: domain.RoleOwner, JoinedAt: time.Now().UTC(),
	})
	if !errors.Is(err, domain.ErrOwnerInvariantViolated) {
		t.Fatalf("insert second owner err = %v, want ErrOwnerInvariantViolated", err)
	}
}

func TestPostgresRepository_WriteErrors(t *testing.T) {
	pool := testPool(t)
	repo := NewPostgresRepository(pool)
	o := seedPostgresOrg(t, pool, map[string]domain.Role{"A": domain.RoleOwner})
	ctx := context.Background()

	err := repo.CreateMembership(ctx, &domain.Membership{
		ID: uuid.NewString(), UserID: o.users["A"], OrgID: o.id, Role: domain.RoleMember, JoinedAt: time.Now().UTC(),
	})
	if !errors.Is(err, domain.ErrDuplicateMembership) {
		t.Errorf("duplicate err = %v, want ErrDuplicateMembership", err)
	}
	err = repo.CreateMembership(ctx, &domain.Membership{
		ID: uuid.NewString(), UserID: o.users["A"], OrgID: uuid.NewString(), Role: domain.RoleMember, JoinedAt: time.Now().UTC(),
	})
	if !errors.Is(err, domain.ErrOrganizationNotFound) {
		t.Errorf("unknown org err = %v, want ErrOrganizationNotFound", err)
	}
	if _, err := repo.UpdateRole(ctx, uuid.NewString(), domain.RoleAdmin); !errors.Is(err, domain.ErrMemberNotFound) {
		t.Errorf("update missing err = %v, want ErrMemberNotFound", err)
	}
	if err := repo.DeleteMembership(ctx, uuid.NewString()); !errors.Is(err, domain.ErrMemberNotFound) {
		t.Errorf("delete missing err = %v, want ErrMemberNotFound", err)
	}
}

func TestPostgresRepository_WithinOrgTx(t *testing.T) {
	pool := testPool(t)
	repo := NewPostgresRepository(pool)
	o := seedPostgresOrg(t, pool, map[string]domain.Role{"A": domain.RoleOwner, "B": domain.RoleAdmin})
	ctx := context.Background()

	t.Run("unknown organization", func(t *testing.T) {
		err := repo.WithinOrgTx(ctx, uuid.NewString(), LockShared, func(context.Context, Repository) error {
			t.Fatal("fn must not run")
			return nil
		})
		if !errors.Is(err, domain.ErrOrganizationNotFound) {
			t.Fatalf("err = %v, want ErrOrganizationNotFound", err)
		}
	})

	t.Run("error rolls back every write", func(t *testing.T) {
		boom := errors.New("boom")
		err := repo.WithinOrgTx(ctx, o.id, LockExclusive, func(ctx context.Context, r Repository) error {
			a, err := r.GetMembershipByUserAndOrg(ctx, o.users["A"], o.id)
			if err != nil {
				return err
			}
			if _, err := r.UpdateRole(ctx, a.ID, domain.RoleMember); err != nil {
				return err
			}
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("err = %v, want boom", err)
		}
		if got := pgRoleOf(t, repo, o, "A"); got != domain.RoleOwner {
			t.Errorf("A role = %q, want owner after rollback", got)
		}
	})

	t.Run("promote before demote is rejected", func(t *testing.T) {
		err := repo.WithinOrgTx(ctx, o.id, LockExclusive, func(ctx context.Context, r Repository) error {
			b, err := r.GetMembershipByUserAndOrg(ctx, o.users["B"], o.id)
			if err != nil {
				return err
			}
			_, err = r.UpdateRole(ctx, b.ID, domain.RoleOwner)
			return err
		})
		if !errors.Is(err, domain.ErrOwnerInvariantViolated) {
			t.Fatalf("err = %v, want ErrOwnerInvariantViolated", err)
		}
		if got := pgRoleOf(t, repo, o, "B"); got != domain.RoleAdmin {
			t.Errorf("B role = %q, want admin", got)
		}
	})

	t.Run("demote then promote commits", func(t *testing.T) {
		err := repo.WithinOrgTx(ctx, o.id, LockExclusive, func(ctx context.Context, r Repository) error {
			a, err := r.GetMembershipByUserAndOrg(ctx, o.users["A"], o.id)
			if err != nil {
				return err
			}
			b, err := r.GetMembershipByUserAndOrg(ctx, o.users["B"], o.id)
			if err != nil {
				return err
			}
			if _, err := r.UpdateRole(ctx, a.ID, domain.RoleMember); err != nil {
				return err
			}
			_, err = r.UpdateRole(ctx, b.ID, domain.RoleOwner)
			return err
		})
		if err != nil {
			t.Fatalf("WithinOrgTx: %v", err)
		}
		owners, err := repo.ListOwnersByOrg(ctx, o.id)
		if err != nil {
			t.Fatal(err)
		}
		if len(owners) != 1 || owners[0].UserID != o.users["B"] {
			t.Fatalf("owners = %+v, want only B", owners)
		}
		violations, err := repo.OwnerCountViolations(ctx)
		if err != nil {
			t.Fatal(err)
		}
		for _, v := range violations {
			if v.OrgID == o.id {
				t.Errorf("org reported as violation: %+v", v)
			}
		}
	})
}

func TestPostgresRepository_ExclusiveLockBlocksShared(t *testing.T) {
	pool := testPool(t)
	repo := NewPostgresRepository(pool)
	o := seedPostgresOrg(t, pool, map[string]domain.Role{"A": domain.RoleOwner})
	ctx := context.Background()

	held := make(chan struct{})
	release := make(chan struct{})
	exclusiveDone := make(chan error, 1)
	go func() {
		exclusiveDone <- repo.WithinOrgTx(ctx, o.id, LockExclusive, func(context.Context, Repository) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	entered := make(chan struct{})
	sharedDone := make(chan error, 1)
	go func() {
		sharedDone <- repo.WithinOrgTx(ctx, o.id, LockShared, func(context.Context, Repository) error {
			close(entered)
			return nil
		})
	}()

	select {
	case <-entered:
		t.Fatal("shared transaction ran while the exclusive lock was held")
	case <-time.After(200 * time.Millisecond):
	}
	close(release)
	if err := <-exclusiveDone; err != nil {
		t.Fatalf("exclusive: %v", err)
	}
	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		t.Fatal("shared transaction did not run after the exclusive lock was released")
	}
	if err := <-sharedDone; err != nil {
		t.Fatalf("shared: %v", err)
	}
}

func TestPostgresRepository_ClearActiveOrganizationFollowsTx(t *testing.T) {
	pool := testPool(t)
	repo := NewPostgresRepository(pool)
	o := seedPostgresOrg(t, pool, map[string]domain.Role{"A": domain.RoleOwner, "B": domain.RoleAdmin})
	ctx := context.Background()

	sessionID := uuid.NewString()
	_, err := pool.Exec(ctx, `
		INSERT INTO sessions (id, user_id, token_hash, expires_at, active_org_id, active_role)
		VALUES ($1, $2, $1, now() + interval '1 hour', $3, 'admin')
	`, sessionID, o.users["B"], o.id)
	if err != nil {
		t.Fatalf("seed session: %v", err)
	}
	activeOrg := func() string {
		var org *string
		if err := pool.QueryRow(ctx, `SELECT active_org_id FROM sessions WHERE id = $1`, sessionID).Scan(&org); err != nil {
			t.Fatalf("read session: %v", err)
		}
		if org == nil {
			return ""
		}
		return *org
	}

	boom := errors.New("boom")
	err = repo.WithinOrgTx(ctx, o.id, LockShared, func(ctx context.Context, r Repository) error {
		if err := r.(*PostgresRepository).ClearActiveOrganization(ctx, o.users["B"], o.id, time.Now().UTC()); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if got := activeOrg(); got != o.id {
		t.Fatalf("active org after rollback = %q, want %q", got, o.id)
	}

	err = repo.WithinOrgTx(ctx, o.id, LockShared, func(ctx context.Context, r Repository) error {
		return r.(*PostgresRepository).ClearActiveOrganization(ctx, o.users["B"], o.id, time.Now().UTC())
	})
	if err != nil {
		t.Fatalf("WithinOrgTx: %v", err)
	}
	if got := activeOrg(); got != "" {
		t.Errorf("active org after commit = %q, want cleared", got)
	}
}
