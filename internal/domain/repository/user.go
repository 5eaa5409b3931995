package repository

import (
	"context"
	"time"
)

// User es la proyección mínima del usuario que necesitan los flujos OAuth:
// claims de userinfo e ID tokens. La gestión completa de identidad vive fuera.
type User struct {
	ID            string
	Email         string
	EmailVerified bool
	Name          string
	Username      string
	Active        bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// UserRepository expone lectura de usuarios para userinfo y claims.
type UserRepository interface {
	// GetByID retorna el usuario o ErrNotFound.
	GetByID(ctx context.Context, id string) (*User, error)
}
