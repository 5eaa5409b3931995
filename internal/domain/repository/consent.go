package repository

import (
	"context"
	"time"
)

// Consent representa el consentimiento de un usuario hacia un client.
// Un consent no revocado y no expirado cuyo set de scopes cubre lo pedido
// permite saltear la pantalla de consentimiento.
type Consent struct {
	ID        string
	UserID    string
	ClientID  string
	Scopes    []string
	GrantedAt time.Time
	UpdatedAt time.Time
	ExpiresAt *time.Time
	RevokedAt *time.Time
}

// ConsentRepository define operaciones sobre user consents.
type ConsentRepository interface {
	// Upsert crea o actualiza un consent, reemplazando los scopes otorgados
	// y limpiando cualquier revocación previa.
	Upsert(ctx context.Context, userID, clientID string, scopes []string, expiresAt *time.Time) (*Consent, error)

	// Get obtiene el consent de un usuario para un client.
	// Retorna ErrNotFound si no existe.
	Get(ctx context.Context, userID, clientID string) (*Consent, error)

	// Revoke revoca un consent (soft delete con timestamp).
	Revoke(ctx context.Context, userID, clientID string) error

	// ListByUser lista los consents de un usuario.
	// Si activeOnly es true, filtra los revocados.
	ListByUser(ctx context.Context, userID string, activeOnly bool) ([]Consent, error)
}
