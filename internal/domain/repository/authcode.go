package repository

import (
	"context"
	"time"
)

// AuthorizationCode representa un authorization code de un solo uso.
//
// Invariante: Used transiciona false→true exactamente una vez. Un segundo
// intento de canje es un error y el caller debe borrar el registro
// (defensa contra replay probing).
type AuthorizationCode struct {
	Code                string // valor opaco, ≥256 bits de entropía
	ClientID            string // client_id público
	UserID              string
	RedirectURI         string
	Scope               string
	CodeChallenge       *string // nil si el client no usa PKCE
	CodeChallengeMethod *string // solo "S256"
	Nonce               string
	State               string
	ExpiresAt           time.Time
	Used                bool
	CreatedAt           time.Time
}

// AuthCodeRepository define operaciones sobre authorization codes.
type AuthCodeRepository interface {
	// Create persiste un nuevo code.
	Create(ctx context.Context, code *AuthorizationCode) error

	// GetByCode busca un code por su valor.
	// Retorna ErrNotFound si no existe.
	GetByCode(ctx context.Context, code string) (*AuthorizationCode, error)

	// MarkUsed transiciona Used false→true de forma atómica (CAS).
	// Retorna true si esta llamada hizo la transición, false si el code
	// ya estaba usado o no existe. Bajo canjes concurrentes del mismo
	// code, exactamente una llamada retorna true.
	MarkUsed(ctx context.Context, code string) (bool, error)

	// Delete borra un code. Idempotente.
	Delete(ctx context.Context, code string) error

	// DeleteExpired borra codes vencidos antes de now. Retorna cuántos.
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}
