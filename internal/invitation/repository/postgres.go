package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yonathanth/Workline-backend/internal/invitation/domain"
	membershipdomain "github.com/yonathanth/Workline-backend/internal/membership/domain"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"

	invitationColumns = `id, email, org_id, role, token_hash, expires_at, accepted_at, created_by, created_at`
)

type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository returns an invitation repository that uses the given pool for persistence.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Create persists the invitation. The invitation must have ID and TokenHash set.
func (r *PostgresRepository) Create(ctx context.Context, inv *domain.Invitation) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO invitations (id, email, org_id, role, token_hash, expires_at, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, inv.ID, inv.Email, inv.OrgID, string(inv.Role), inv.TokenHash, inv.ExpiresAt, inv.CreatedBy, inv.CreatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
		return membershipdomain.ErrOrganizationNotFound
	}
	return err
}

// GetByID returns the invitation for id, or nil if not found.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Invitation, error) {
	return r.getOne(ctx, `SELECT `+invitationColumns+` FROM invitations WHERE id = $1`, id)
}

// GetByTokenHash returns the invitation whose token hashes to tokenHash, or nil if not found.
func (r *PostgresRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*domain.Invitation, error) {
	return r.getOne(ctx, `SELECT `+invitationColumns+` FROM invitations WHERE token_hash = $1`, tokenHash)
}

func (r *PostgresRepository) getOne(ctx context.Context, sql string, arg string) (*domain.Invitation, error) {
	inv, err := scanInvitation(r.pool.QueryRow(ctx, sql, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return inv, nil
}

// ListPendingByOrg returns the org's open invitations, newest first.
func (r *PostgresRepository) ListPendingByOrg(ctx context.Context, orgID string, now time.Time) ([]*domain.Invitation, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+invitationColumns+` FROM invitations
		WHERE org_id = $1 AND accepted_at IS NULL AND expires_at > $2
		ORDER BY created_at DESC, id
	`, orgID, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Invitation
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

// Accept marks the invitation accepted and inserts the membership. The conditional update makes
// a second acceptance fail with domain.ErrAlreadyAccepted.
func (r *PostgresRepository) Accept(ctx context.Context, invitationID string, at time.Time, m *membershipdomain.Membership) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `UPDATE invitations SET accepted_at = $2 WHERE id = $1 AND accepted_at IS NULL`, invitationID, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAlreadyAccepted
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO memberships (id, user_id, org_id, role, joined_at)
		VALUES ($1, $2, $3, $4, $5)
	`, m.ID, m.UserID, m.OrgID, string(m.Role), m.JoinedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case pgUniqueViolation:
				return membershipdomain.ErrDuplicateMembership
			case pgForeignKeyViolation:
				return membershipdomain.ErrOrganizationNotFound
			}
		}
		return err
	}
	return tx.Commit(ctx)
}

func scanInvitation(row pgx.Row) (*domain.Invitation, error) {
	var (
		inv  domain.Invitation
		role string
	)
	if err := row.Scan(&inv.ID, &inv.Email, &inv.OrgID, &role, &inv.TokenHash, &inv.ExpiresAt, &inv.AcceptedAt, &inv.CreatedBy, &inv.CreatedAt); err != nil {
		return nil, err
	}
	inv.Role = membershipdomain.Role(role)
	return &inv, nil
}
