// repos.go — Client y Scope repositories
package pg

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/llavero/internal/domain/repository"
)

// isUniqueViolation detecta el código 23505 de Postgres.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// ─── ClientRepository ───

type clientRepo struct{ pool *pgxpool.Pool }

const clientCols = `id, client_id, name, type, secret_hash, redirect_uris, allowed_scopes,
	grant_types, response_types, require_pkce, require_consent, access_token_ttl,
	active, created_at, updated_at`

func scanClient(row pgx.Row) (*repository.Client, error) {
	var c repository.Client
	err := row.Scan(
		&c.ID, &c.ClientID, &c.Name, &c.Type, &c.SecretHash, &c.RedirectURIs,
		&c.AllowedScopes, &c.GrantTypes, &c.ResponseTypes, &c.RequirePKCE,
		&c.RequireConsent, &c.AccessTokenTTL, &c.Active, &c.CreatedAt, &c.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *clientRepo) GetByClientID(ctx context.Context, clientID string) (*repository.Client, error) {
	const query = `SELECT ` + clientCols + ` FROM oauth_client WHERE client_id = $1`
	return scanClient(r.pool.QueryRow(ctx, query, clientID))
}

func (r *clientRepo) List(ctx context.Context) ([]repository.Client, error) {
	const query = `SELECT ` + clientCols + ` FROM oauth_client ORDER BY created_at`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []repository.Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (r *clientRepo) Create(ctx context.Context, in repository.ClientInput) (*repository.Client, error) {
	const query = `
		INSERT INTO oauth_client (id, client_id, name, type, secret_hash, redirect_uris,
			allowed_scopes, grant_types, response_types, require_pkce, require_consent,
			access_token_ttl, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, TRUE, NOW())
		RETURNING ` + clientCols
	row := r.pool.QueryRow(ctx, query,
		uuid.NewString(), in.ClientID, in.Name, in.Type, in.SecretHash, in.RedirectURIs,
		in.AllowedScopes, in.GrantTypes, in.ResponseTypes, in.RequirePKCE,
		in.RequireConsent, in.AccessTokenTTL,
	)
	c, err := scanClient(row)
	if isUniqueViolation(err) {
		return nil, repository.ErrConflict
	}
	return c, err
}

func (r *clientRepo) Update(ctx context.Context, in repository.ClientInput) (*repository.Client, error) {
	const query = `
		UPDATE oauth_client SET
			name = $2, secret_hash = COALESCE($3, secret_hash), redirect_uris = $4,
			allowed_scopes = $5, grant_types = $6, response_types = $7,
			require_pkce = $8, require_consent = $9, access_token_ttl = $10,
			updated_at = NOW()
		WHERE client_id = $1
		RETURNING ` + clientCols
	row := r.pool.QueryRow(ctx, query,
		in.ClientID, in.Name, in.SecretHash, in.RedirectURIs, in.AllowedScopes,
		in.GrantTypes, in.ResponseTypes, in.RequirePKCE, in.RequireConsent,
		in.AccessTokenTTL,
	)
	return scanClient(row)
}

func (r *clientRepo) Deactivate(ctx context.Context, clientID string) error {
	const query = `UPDATE oauth_client SET active = FALSE, updated_at = NOW() WHERE client_id = $1`
	tag, err := r.pool.Exec(ctx, query, clientID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// ─── ScopeRepository ───

type scopeRepo struct{ pool *pgxpool.Pool }

const scopeCols = `id, name, description, public, active, created_at, updated_at`

func scanScope(row pgx.Row) (*repository.Scope, error) {
	var s repository.Scope
	err := row.Scan(&s.ID, &s.Name, &s.Description, &s.Public, &s.Active, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *scopeRepo) GetByName(ctx context.Context, name string) (*repository.Scope, error) {
	const query = `SELECT ` + scopeCols + ` FROM scope WHERE name = $1`
	return scanScope(r.pool.QueryRow(ctx, query, name))
}

func (r *scopeRepo) List(ctx context.Context) ([]repository.Scope, error) {
	const query = `SELECT ` + scopeCols + ` FROM scope ORDER BY name`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []repository.Scope
	for rows.Next() {
		s, err := scanScope(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

func (r *scopeRepo) Upsert(ctx context.Context, in repository.ScopeInput) (*repository.Scope, error) {
	const query = `
		INSERT INTO scope (id, name, description, public, active, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (name) DO UPDATE SET
			description = $3, public = $4, active = $5, updated_at = NOW()
		RETURNING ` + scopeCols
	return scanScope(r.pool.QueryRow(ctx, query, uuid.NewString(), in.Name, in.Description, in.Public, in.Active))
}

func (r *scopeRepo) Delete(ctx context.Context, name string) error {
	const query = `DELETE FROM scope WHERE name = $1`
	tag, err := r.pool.Exec(ctx, query, name)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}
