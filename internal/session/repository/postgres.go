package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	membershipdomain "github.com/yonathanth/Workline-backend/internal/membership/domain"
	"github.com/yonathanth/Workline-backend/internal/session/domain"
)

const sessionColumns = `id, user_id, token_hash, expires_at, revoked_at,
	COALESCE(active_org_id, ''), COALESCE(active_role, ''), ip_address, user_agent, created_at, updated_at`

type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository returns a session repository that uses the given pool for persistence.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// GetByID returns the session for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	return r.getOne(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id)
}

// GetByTokenHash returns the session whose token hashes to tokenHash, or nil if not found.
func (r *PostgresRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*domain.Session, error) {
	return r.getOne(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE token_hash = $1`, tokenHash)
}

func (r *PostgresRepository) getOne(ctx context.Context, sql string, arg string) (*domain.Session, error) {
	var s domain.Session
	var role string
	err := r.pool.QueryRow(ctx, sql, arg).Scan(
		&s.ID, &s.UserID, &s.TokenHash, &s.ExpiresAt, &s.RevokedAt,
		&s.ActiveOrgID, &role, &s.IPAddress, &s.UserAgent, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	s.ActiveRole = membershipdomain.Role(role)
	return &s, nil
}

// Create persists the session to the database. The session must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, s *domain.Session) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO sessions (id, user_id, token_hash, expires_at, revoked_at, active_org_id, active_role,
			ip_address, user_agent, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''), $8, $9, $10, $11)
	`, s.ID, s.UserID, s.TokenHash, s.ExpiresAt, s.RevokedAt, s.ActiveOrgID, string(s.ActiveRole),
		s.IPAddress, s.UserAgent, s.CreatedAt, s.UpdatedAt)
	return err
}

// Revoke sets revoked_at on the session if it is not already revoked.
func (r *PostgresRepository) Revoke(ctx context.Context, id string, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE sessions SET revoked_at = COALESCE(revoked_at, $2), updated_at = $2 WHERE id = $1
	`, id, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

// SetActiveOrganization updates the active organization and cached role of the session.
func (r *PostgresRepository) SetActiveOrganization(ctx context.Context, id, orgID string, role membershipdomain.Role, at time.Time) error {
	if orgID == "" {
		role = ""
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE sessions SET active_org_id = NULLIF($2, ''), active_role = NULLIF($3, ''), updated_at = $4
		WHERE id = $1
	`, id, orgID, string(role), at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

// ClearActiveOrganization drops the cached organization of userID's sessions pointing at orgID.
func (r *PostgresRepository) ClearActiveOrganization(ctx context.Context, userID, orgID string, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE sessions SET active_org_id = NULL, active_role = NULL, updated_at = $3
		WHERE user_id = $1 AND active_org_id = $2
	`, userID, orgID, at)
	return err
}
