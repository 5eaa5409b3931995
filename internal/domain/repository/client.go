package repository

import (
	"context"
	"time"
)

const (
	ClientTypePublic       = "public"
	ClientTypeConfidential = "confidential"
)

// Client representa un cliente OAuth2/OIDC registrado.
type Client struct {
	ID             string // UUID interno
	ClientID       string // identificador público
	Name           string
	Type           string  // "public" | "confidential"
	SecretHash     *string // PHC string; nil para clients públicos
	RedirectURIs   []string
	AllowedScopes  []string
	GrantTypes     []string
	ResponseTypes  []string
	RequirePKCE    bool
	RequireConsent bool
	AccessTokenTTL int // segundos; 0 = default del servidor
	Active         bool
	CreatedAt      time.Time
	UpdatedAt      *time.Time
}

// ClientInput contiene los datos para crear/actualizar un client.
type ClientInput struct {
	ClientID       string
	Name           string
	Type           string
	SecretHash     *string // PHC string, ya hasheado por el caller; nil para públicos
	RedirectURIs   []string
	AllowedScopes  []string
	GrantTypes     []string
	ResponseTypes  []string
	RequirePKCE    bool
	RequireConsent bool
	AccessTokenTTL int
}

// ClientRepository define operaciones sobre OAuth clients.
type ClientRepository interface {
	// GetByClientID obtiene un client por su client_id público.
	// Retorna ErrNotFound si no existe. Incluye clients desactivados;
	// el caller decide qué hacer con Active=false.
	GetByClientID(ctx context.Context, clientID string) (*Client, error)

	// List lista todos los clients registrados.
	List(ctx context.Context) ([]Client, error)

	// Create crea un nuevo client.
	// Retorna ErrConflict si el client_id ya existe.
	Create(ctx context.Context, input ClientInput) (*Client, error)

	// Update actualiza la configuración mutable de un client existente.
	Update(ctx context.Context, input ClientInput) (*Client, error)

	// Deactivate marca un client como inactivo (soft delete).
	// Nunca se borra mientras existan tokens que lo referencien.
	Deactivate(ctx context.Context, clientID string) error
}
