package repository

import (
	"context"
	"time"
)

// Scope representa un scope OAuth del registro global.
// Un scope ausente o con Active=false es indistinguible de uno inexistente
// a efectos de validación.
type Scope struct {
	ID          string
	Name        string
	Description string
	Public      bool // otorgable a clients públicos
	Active      bool
	CreatedAt   time.Time
	UpdatedAt   *time.Time
}

// ScopeInput contiene los datos para crear/actualizar un scope.
type ScopeInput struct {
	Name        string
	Description string
	Public      bool
	Active      bool
}

// ScopeRepository define operaciones sobre el registro de scopes.
type ScopeRepository interface {
	// GetByName busca un scope por nombre.
	// Retorna ErrNotFound si no existe.
	GetByName(ctx context.Context, name string) (*Scope, error)

	// List lista todos los scopes registrados.
	List(ctx context.Context) ([]Scope, error)

	// Upsert crea un scope si no existe, o actualiza si ya existe.
	Upsert(ctx context.Context, input ScopeInput) (*Scope, error)

	// Delete elimina un scope por nombre.
	Delete(ctx context.Context, name string) error
}
