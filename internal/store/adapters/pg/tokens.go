// tokens.go — AuthCode, Token y Blacklist repositories
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

// ─── AuthCodeRepository ───

type authCodeRepo struct{ pool *pgxpool.Pool }

func (r *authCodeRepo) Create(ctx context.Context, c *repository.AuthorizationCode) error {
	const query = `
		INSERT INTO authorization_code (code, client_id, user_id, redirect_uri, scope,
			code_challenge, code_challenge_method, nonce, state, expires_at, used, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, FALSE, NOW())
	`
	_, err := r.pool.Exec(ctx, query,
		c.Code, c.ClientID, c.UserID, c.RedirectURI, c.Scope,
		c.CodeChallenge, c.CodeChallengeMethod, c.Nonce, c.State, c.ExpiresAt,
	)
	if isUniqueViolation(err) {
		return repository.ErrConflict
	}
	return err
}

func (r *authCodeRepo) GetByCode(ctx context.Context, code string) (*repository.AuthorizationCode, error) {
	const query = `
		SELECT code, client_id, user_id, redirect_uri, scope, code_challenge,
			code_challenge_method, nonce, state, expires_at, used, created_at
		FROM authorization_code WHERE code = $1
	`
	var c repository.AuthorizationCode
	err := r.pool.QueryRow(ctx, query, code).Scan(
		&c.Code, &c.ClientID, &c.UserID, &c.RedirectURI, &c.Scope, &c.CodeChallenge,
		&c.CodeChallengeMethod, &c.Nonce, &c.State, &c.ExpiresAt, &c.Used, &c.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// MarkUsed es el CAS del canje: bajo canjes concurrentes exactamente un
// UPDATE ve used=FALSE.
func (r *authCodeRepo) MarkUsed(ctx context.Context, code string) (bool, error) {
	const query = `UPDATE authorization_code SET used = TRUE WHERE code = $1 AND used = FALSE`
	tag, err := r.pool.Exec(ctx, query, code)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *authCodeRepo) Delete(ctx context.Context, code string) error {
	const query = `DELETE FROM authorization_code WHERE code = $1`
	_, err := r.pool.Exec(ctx, query, code)
	return err
}

func (r *authCodeRepo) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	const query = `DELETE FROM authorization_code WHERE expires_at < $1`
	tag, err := r.pool.Exec(ctx, query, now)
	return int(tag.RowsAffected()), err
}

// ─── TokenRepository ───

type tokenRepo struct{ pool *pgxpool.Pool }

const tokenCols = `id, jti, token_type, token_hash, client_id, user_id, scope,
	issued_at, expires_at, revoked_at, rotated_from`

func scanToken(row pgx.Row) (*repository.TokenRecord, error) {
	var t repository.TokenRecord
	err := row.Scan(
		&t.ID, &t.JTI, &t.TokenType, &t.TokenHash, &t.ClientID, &t.UserID,
		&t.Scope, &t.IssuedAt, &t.ExpiresAt, &t.RevokedAt, &t.RotatedFrom,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *tokenRepo) Create(ctx context.Context, rec *repository.TokenRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	const query = `
		INSERT INTO oauth_token (id, jti, token_type, token_hash, client_id, user_id,
			scope, issued_at, expires_at, revoked_at, rotated_from)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULL, $10)
	`
	_, err := r.pool.Exec(ctx, query,
		rec.ID, rec.JTI, rec.TokenType, rec.TokenHash, rec.ClientID, rec.UserID,
		rec.Scope, rec.IssuedAt, rec.ExpiresAt, rec.RotatedFrom,
	)
	if isUniqueViolation(err) {
		return repository.ErrConflict
	}
	return err
}

func (r *tokenRepo) GetByHash(ctx context.Context, tokenHash string) (*repository.TokenRecord, error) {
	const query = `SELECT ` + tokenCols + ` FROM oauth_token WHERE token_hash = $1`
	return scanToken(r.pool.QueryRow(ctx, query, tokenHash))
}

func (r *tokenRepo) Revoke(ctx context.Context, tokenID string) error {
	const query = `UPDATE oauth_token SET revoked_at = NOW() WHERE id = $1 AND revoked_at IS NULL`
	_, err := r.pool.Exec(ctx, query, tokenID)
	return err
}

func (r *tokenRepo) RevokeFamily(ctx context.Context, userID, clientID string) (int, error) {
	const query = `
		UPDATE oauth_token SET revoked_at = NOW()
		WHERE user_id = $1 AND client_id = $2 AND revoked_at IS NULL AND expires_at > NOW()
	`
	tag, err := r.pool.Exec(ctx, query, userID, clientID)
	return int(tag.RowsAffected()), err
}

func (r *tokenRepo) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	const query = `DELETE FROM oauth_token WHERE expires_at < $1`
	tag, err := r.pool.Exec(ctx, query, now)
	return int(tag.RowsAffected()), err
}

// ─── BlacklistRepository ───

type blacklistRepo struct{ pool *pgxpool.Pool }

func (r *blacklistRepo) Add(ctx context.Context, e *repository.BlacklistEntry) error {
	const query = `
		INSERT INTO token_blacklist (jti, token_type, expires_at, created_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (jti) DO NOTHING
	`
	_, err := r.pool.Exec(ctx, query, e.JTI, e.TokenType, e.ExpiresAt)
	return err
}

func (r *blacklistRepo) Contains(ctx context.Context, jti string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM token_blacklist WHERE jti = $1 AND expires_at > NOW())`
	var exists bool
	err := r.pool.QueryRow(ctx, query, jti).Scan(&exists)
	return exists, err
}

func (r *blacklistRepo) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	const query = `DELETE FROM token_blacklist WHERE expires_at < $1`
	tag, err := r.pool.Exec(ctx, query, now)
	return int(tag.RowsAffected()), err
}
