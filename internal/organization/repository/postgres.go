package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	membershipdomain "github.com/yonathanth/Workline-backend/internal/membership/domain"
	"github.com/yonathanth/Workline-backend/internal/organization/domain"
)

const (
	pgUniqueViolation = "23505"
	constraintSlug    = "organizations_slug_key"

	orgColumns = `o.id, o.slug, o.name, o.description, o.created_at, o.updated_at`
)

type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository returns an organization repository that uses the given pool for persistence.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// GetOrganizationByID returns the organization for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetOrganizationByID(ctx context.Context, id string) (*domain.Organization, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+orgColumns+` FROM organizations o WHERE o.id = $1`, id)
	o, err := scanOrganization(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return o, nil
}

// ListOrganizationsForUser returns every organization userID is a member of with their role.
func (r *PostgresRepository) ListOrganizationsForUser(ctx context.Context, userID string) ([]*domain.Membership, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+orgColumns+`, m.role, m.joined_at
		FROM memberships m
		JOIN organizations o ON o.id = m.org_id
		WHERE m.user_id = $1
		ORDER BY m.joined_at, o.id
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Membership
	for rows.Next() {
		var (
			m    domain.Membership
			role string
		)
		if err := rows.Scan(&m.ID, &m.Slug, &m.Name, &m.Description, &m.CreatedAt, &m.UpdatedAt, &role, &m.JoinedAt); err != nil {
			return nil, err
		}
		m.Role = membershipdomain.Role(role)
		out = append(out, &m)
	}
	return out, rows.Err()
}

// CreateWithOwner inserts the organization and the owner membership in one transaction.
func (r *PostgresRepository) CreateWithOwner(ctx context.Context, o *domain.Organization, owner *membershipdomain.Membership) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
		INSERT INTO organizations (id, slug, name, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, o.ID, o.Slug, o.Name, o.Description, o.CreatedAt, o.UpdatedAt); err != nil {
		return mapWriteError(err)
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO memberships (id, user_id, org_id, role, joined_at)
		VALUES ($1, $2, $3, $4, $5)
	`, owner.ID, owner.UserID, o.ID, string(membershipdomain.RoleOwner), owner.JoinedAt); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// UpdateOrganization updates name, slug and description of an existing organization.
func (r *PostgresRepository) UpdateOrganization(ctx context.Context, o *domain.Organization) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE organizations SET slug = $2, name = $3, description = $4, updated_at = $5
		WHERE id = $1
	`, o.ID, o.Slug, o.Name, o.Description, o.UpdatedAt)
	if err != nil {
		return mapWriteError(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// DeleteOrganization removes the organization row; dependent rows are removed by ON DELETE CASCADE.
func (r *PostgresRepository) DeleteOrganization(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM organizations WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanOrganization(row pgx.Row) (*domain.Organization, error) {
	var o domain.Organization
	if err := row.Scan(&o.ID, &o.Slug, &o.Name, &o.Description, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, err
	}
	return &o, nil
}

func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation && pgErr.ConstraintName == constraintSlug {
		return domain.ErrSlugTaken
	}
	return err
}
