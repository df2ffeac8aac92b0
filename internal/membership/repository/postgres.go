package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yonathanth/Workline-backend/internal/membership/domain"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"

	constraintUserOrg  = "memberships_user_org_key"
	constraintOneOwner = "memberships_one_owner_per_org"

	membershipColumns = `id, user_id, org_id, role, joined_at`
)

// dbtx is satisfied by *pgxpool.Pool and pgx.Tx.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PostgresRepository struct {
	pool *pgxpool.Pool
	q    dbtx
	// inTx makes reads lock the returned rows (FOR UPDATE).
	inTx bool
}

var _ Store = (*PostgresRepository)(nil)

// NewPostgresRepository returns a membership store that uses the given pool for persistence.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool, q: pool}
}

func (r *PostgresRepository) lockSuffix() string {
	if r.inTx {
		return " FOR UPDATE"
	}
	return ""
}

// GetMembershipByID returns the membership for id, or nil if not found.
func (r *PostgresRepository) GetMembershipByID(ctx context.Context, id string) (*domain.Membership, error) {
	row := r.q.QueryRow(ctx, `SELECT `+membershipColumns+` FROM memberships WHERE id = $1`+r.lockSuffix(), id)
	return scanOptional(row)
}

// GetMembershipByUserAndOrg returns the membership for the given user and org, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetMembershipByUserAndOrg(ctx context.Context, userID, orgID string) (*domain.Membership, error) {
	row := r.q.QueryRow(ctx, `SELECT `+membershipColumns+` FROM memberships WHERE user_id = $1 AND org_id = $2`+r.lockSuffix(), userID, orgID)
	return scanOptional(row)
}

// ListMembershipsByOrg returns all memberships for the given org ordered by join time.
func (r *PostgresRepository) ListMembershipsByOrg(ctx context.Context, orgID string) ([]*domain.Membership, error) {
	return r.list(ctx, `SELECT `+membershipColumns+` FROM memberships WHERE org_id = $1 ORDER BY joined_at, id`, orgID)
}

// ListOwnersByOrg returns the owner rows of the org; a healthy org has exactly one.
func (r *PostgresRepository) ListOwnersByOrg(ctx context.Context, orgID string) ([]*domain.Membership, error) {
	return r.list(ctx, `SELECT `+membershipColumns+` FROM memberships WHERE org_id = $1 AND role = 'owner' ORDER BY joined_at, id`+r.lockSuffix(), orgID)
}

func (r *PostgresRepository) list(ctx context.Context, sql string, args ...any) ([]*domain.Membership, error) {
	rows, err := r.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Membership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// CreateMembership persists the membership. The membership must have ID set.
func (r *PostgresRepository) CreateMembership(ctx context.Context, m *domain.Membership) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO memberships (id, user_id, org_id, role, joined_at)
		VALUES ($1, $2, $3, $4, $5)
	`, m.ID, m.UserID, m.OrgID, string(m.Role), m.JoinedAt)
	return mapWriteError(err, m.OrgID)
}

// UpdateRole sets the role of the membership with the given id and returns the updated row.
func (r *PostgresRepository) UpdateRole(ctx context.Context, membershipID string, role domain.Role) (*domain.Membership, error) {
	row := r.q.QueryRow(ctx, `
		UPDATE memberships SET role = $2 WHERE id = $1
		RETURNING `+membershipColumns, membershipID, string(role))
	m, err := scanMembership(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrMemberNotFound
		}
		return nil, mapWriteError(err, "")
	}
	return m, nil
}

// DeleteMembership removes the membership row with the given id.
func (r *PostgresRepository) DeleteMembership(ctx context.Context, membershipID string) error {
	tag, err := r.q.Exec(ctx, `DELETE FROM memberships WHERE id = $1`, membershipID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrMemberNotFound
	}
	return nil
}

// ClearActiveOrganization clears the cached active organization of userID's sessions that point
// at orgID. Inside WithinOrgTx it commits or rolls back with the membership change.
func (r *PostgresRepository) ClearActiveOrganization(ctx context.Context, userID, orgID string, at time.Time) error {
	_, err := r.q.Exec(ctx, `
		UPDATE sessions SET active_org_id = NULL, active_role = NULL, updated_at = $3
		WHERE user_id = $1 AND active_org_id = $2
	`, userID, orgID, at)
	return err
}

// WithinOrgTx begins a read-committed transaction, locks the organization row (FOR SHARE or
// FOR UPDATE per mode), and runs fn with a repository bound to the transaction.
func (r *PostgresRepository) WithinOrgTx(ctx context.Context, orgID string, mode LockMode, fn func(ctx context.Context, r Repository) error) error {
	if r.pool == nil {
		// Already inside a transaction; the outer transaction holds the lock.
		return fn(ctx, r)
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	lock := "FOR SHARE"
	if mode == LockExclusive {
		lock = "FOR UPDATE"
	}
	var id string
	if err := tx.QueryRow(ctx, `SELECT id FROM organizations WHERE id = $1 `+lock, orgID).Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrOrganizationNotFound
		}
		return err
	}
	if err := fn(ctx, &PostgresRepository{q: tx, inTx: true}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// OwnerCountViolations returns every organization whose owner count differs from one.
func (r *PostgresRepository) OwnerCountViolations(ctx context.Context) ([]OwnerCount, error) {
	rows, err := r.q.Query(ctx, `
		SELECT o.id, COUNT(m.id) FILTER (WHERE m.role = 'owner') AS owners
		FROM organizations o
		LEFT JOIN memberships m ON m.org_id = o.id
		GROUP BY o.id
		HAVING COUNT(m.id) FILTER (WHERE m.role = 'owner') <> 1
		ORDER BY o.id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []OwnerCount
	for rows.Next() {
		var oc OwnerCount
		if err := rows.Scan(&oc.OrgID, &oc.Owners); err != nil {
			return nil, err
		}
		out = append(out, oc)
	}
	return out, rows.Err()
}

func scanOptional(row pgx.Row) (*domain.Membership, error) {
	m, err := scanMembership(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return m, nil
}

func scanMembership(row pgx.Row) (*domain.Membership, error) {
	var m domain.Membership
	var role string
	if err := row.Scan(&m.ID, &m.UserID, &m.OrgID, &role, &m.JoinedAt); err != nil {
		return nil, err
	}
	m.Role = domain.Role(role)
	return &m, nil
}

func mapWriteError(err error, orgID string) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch {
	case pgErr.Code == pgUniqueViolation && pgErr.ConstraintName == constraintUserOrg:
		return domain.ErrDuplicateMembership
	case pgErr.Code == pgUniqueViolation && pgErr.ConstraintName == constraintOneOwner:
		return fmt.Errorf("%w: second owner rejected by database", &domain.InvariantError{OrgID: orgID})
	case pgErr.Code == pgForeignKeyViolation:
		return domain.ErrOrganizationNotFound
	}
	return err
}
