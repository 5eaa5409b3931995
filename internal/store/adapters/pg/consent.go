// consent.go — Consent y User repositories
package pg

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/llavero/internal/domain/repository"
)

// ─── ConsentRepository ───

type consentRepo struct{ pool *pgxpool.Pool }

const consentCols = `id, user_id, client_id, scopes, granted_at, updated_at, expires_at, revoked_at`

func scanConsent(row pgx.Row) (*repository.Consent, error) {
	var c repository.Consent
	err := row.Scan(&c.ID, &c.UserID, &c.ClientID, &c.Scopes, &c.GrantedAt, &c.UpdatedAt, &c.ExpiresAt, &c.RevokedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *consentRepo) Upsert(ctx context.Context, userID, clientID string, scopes []string, expiresAt *time.Time) (*repository.Consent, error) {
	const query = `
		INSERT INTO user_consent (id, user_id, client_id, scopes, granted_at, updated_at, expires_at, revoked_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW(), $5, NULL)
		ON CONFLICT (user_id, client_id) DO UPDATE SET
			scopes = $4, updated_at = NOW(), expires_at = $5, revoked_at = NULL
		RETURNING ` + consentCols
	return scanConsent(r.pool.QueryRow(ctx, query, uuid.NewString(), userID, clientID, scopes, expiresAt))
}

func (r *consentRepo) Get(ctx context.Context, userID, clientID string) (*repository.Consent, error) {
	const query = `SELECT ` + consentCols + ` FROM user_consent WHERE user_id = $1 AND client_id = $2`
	return scanConsent(r.pool.QueryRow(ctx, query, userID, clientID))
}

func (r *consentRepo) Revoke(ctx context.Context, userID, clientID string) error {
	const query = `
		UPDATE user_consent SET revoked_at = NOW(), updated_at = NOW()
		WHERE user_id = $1 AND client_id = $2 AND revoked_at IS NULL
	`
	tag, err := r.pool.Exec(ctx, query, userID, clientID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *consentRepo) ListByUser(ctx context.Context, userID string, activeOnly bool) ([]repository.Consent, error) {
	query := `SELECT ` + consentCols + ` FROM user_consent WHERE user_id = $1`
	if activeOnly {
		query += ` AND revoked_at IS NULL`
	}
	query += ` ORDER BY granted_at`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []repository.Consent
	for rows.Next() {
		c, err := scanConsent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// ─── UserRepository ───

type userRepo struct{ pool *pgxpool.Pool }

func (r *userRepo) GetByID(ctx context.Context, id string) (*repository.User, error) {
	const query = `
		SELECT id, email, email_verified, name, username, active, created_at, updated_at
		FROM app_user WHERE id = $1
	`
	var u repository.User
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&u.ID, &u.Email, &u.EmailVerified, &u.Name, &u.Username, &u.Active, &u.CreatedAt, &u.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}
