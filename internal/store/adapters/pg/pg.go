// Package pg implementa los repositorios sobre Postgres (pgx v5).
package pg

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/llavero/internal/store"
)

func init() {
	store.Register("postgres", newDAL)
}

func newDAL(ctx context.Context, cfg store.Config) (*store.DAL, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("pg: dsn inválido: %w", err)
	}
	pcfg.MaxConnLifetime = time.Hour
	pcfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("pg: no se pudo crear el pool: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pg: ping falló: %w", err)
	}

	d := &store.DAL{
		Clients:   &clientRepo{pool: pool},
		Scopes:    &scopeRepo{pool: pool},
		AuthCodes: &authCodeRepo{pool: pool},
		Tokens:    &tokenRepo{pool: pool},
		Blacklist: &blacklistRepo{pool: pool},
		Consents:  &consentRepo{pool: pool},
		Users:     &userRepo{pool: pool},
	}
	d.SetCloser(pool.Close)
	return d, nil
}
