package repository

import (
	"context"
	"time"
)

const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// TokenRecord representa un access o refresh token emitido.
// TokenHash es SHA-256 del JWT crudo; el JWT nunca se persiste.
type TokenRecord struct {
	ID          string
	JTI         string
	TokenType   string // "access" | "refresh"
	TokenHash   string
	ClientID    string
	UserID      string // vacío para client_credentials
	Scope       string
	IssuedAt    time.Time
	ExpiresAt   time.Time
	RevokedAt   *time.Time
	RotatedFrom *string // ID del refresh token que rotó hacia éste
}

// TokenRepository define operaciones sobre tokens emitidos.
type TokenRepository interface {
	// Create persiste un nuevo registro de token.
	Create(ctx context.Context, rec *TokenRecord) error

	// GetByHash busca un token por su hash.
	// Retorna ErrNotFound si no existe.
	GetByHash(ctx context.Context, tokenHash string) (*TokenRecord, error)

	// Revoke marca un token como revocado por su ID. Idempotente.
	Revoke(ctx context.Context, tokenID string) error

	// RevokeFamily revoca todos los tokens vivos de un (user, client).
	// Usado cuando se detecta reuso de un refresh token rotado.
	// Retorna el número de tokens revocados.
	RevokeFamily(ctx context.Context, userID, clientID string) (int, error)

	// DeleteExpired borra registros vencidos antes de now. Retorna cuántos.
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}
