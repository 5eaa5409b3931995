package repository

import (
	"context"
	"time"
)

// BlacklistEntry representa un JTI revocado.
//
// La blacklist es independiente de los TokenRecord: la revocación sigue
// siendo efectiva aunque la fila del token nunca se haya persistido o se
// haya purgado. Las entradas pueden recolectarse una vez pasado ExpiresAt.
type BlacklistEntry struct {
	JTI       string
	TokenType string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// BlacklistRepository define operaciones sobre la blacklist de JTIs.
type BlacklistRepository interface {
	// Add inserta un JTI en la blacklist. Idempotente.
	Add(ctx context.Context, entry *BlacklistEntry) error

	// Contains verifica si un JTI está en la blacklist (y no expiró).
	Contains(ctx context.Context, jti string) (bool, error)

	// PurgeExpired borra entradas vencidas antes de now. Retorna cuántas.
	PurgeExpired(ctx context.Context, now time.Time) (int, error)
}
