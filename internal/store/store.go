// Package store arma la capa de acceso a datos (DAL) sobre los adapters
// disponibles: Postgres para producción, memoria para dev y tests.
package store

import (
	"context"
	"fmt"

	"github.com/dropDatabas3/llavero/internal/domain/repository"
)

// DAL agrupa los repositorios que consumen los servicios OAuth.
type DAL struct {
	Clients   repository.ClientRepository
	Scopes    repository.ScopeRepository
	AuthCodes repository.AuthCodeRepository
	Tokens    repository.TokenRepository
	Blacklist repository.BlacklistRepository
	Consents  repository.ConsentRepository
	Users     repository.UserRepository

	closer func()
}

// Config selecciona y configura el driver de storage.
type Config struct {
	Driver string // "postgres" | "memory"
	DSN    string // DSN de Postgres; ignorado para memory
}

// Factory construye un DAL para un driver. Los adapters se registran en
// init() al importarse (ver adapters/dal).
type Factory func(ctx context.Context, cfg Config) (*DAL, error)

var factories = map[string]Factory{}

// Register registra una factory de adapter. Lo llaman los adapters en init().
func Register(driver string, f Factory) {
	factories[driver] = f
}

// New construye el DAL según el driver configurado.
func New(ctx context.Context, cfg Config) (*DAL, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = "memory"
	}
	f, ok := factories[driver]
	if !ok {
		return nil, fmt.Errorf("store: driver %q no registrado (falta importar adapters/dal?)", driver)
	}
	return f(ctx, cfg)
}

// SetCloser instala el cleanup del adapter (cerrar pool, etc).
func (d *DAL) SetCloser(fn func()) { d.closer = fn }

// Close libera los recursos del adapter.
func (d *DAL) Close() {
	if d.closer != nil {
		d.closer()
	}
}
