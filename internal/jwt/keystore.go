package jwt

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrNoActiveKey = errors.New("no_active_signing_key")

// SigningKeyStore abstrae la persistencia de signing keys.
// La implementación en memoria vive acá; el adapter fs en fs_store.go.
type SigningKeyStore interface {
	GetActiveSigningKey(ctx context.Context) (*SigningKey, error)
	ListPublicSigningKeys(ctx context.Context) ([]SigningKey, error)
	InsertSigningKey(ctx context.Context, k *SigningKey) error
	UpdateKeyStatus(ctx context.Context, kid string, status KeyStatus) error
}

// Keystore mantiene cache local de la clave activa y del JWKS sobre un
// SigningKeyStore. Lecturas concurrentes seguras.
type Keystore struct {
	ctx   context.Context
	store SigningKeyStore

	mu         sync.RWMutex
	activeKID  string
	activePriv []byte
	activePub  []byte
	cacheUntil time.Time
	cacheTTL   time.Duration

	lastJWKS  []byte
	jwksUntil time.Time
	jwksTTL   time.Duration
}

func NewKeystore(ctx context.Context, s SigningKeyStore) *Keystore {
	return &Keystore{
		ctx:      ctx,
		store:    s,
		cacheTTL: 30 * time.Second,
		jwksTTL:  15 * time.Second,
	}
}

// EnsureBootstrap genera una clave activa si no existe ninguna.
func (k *Keystore) EnsureBootstrap() error {
	_, err := k.store.GetActiveSigningKey(k.ctx)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrNoActiveKey) {
		return err
	}
	pub, priv, err := GenerateEd25519()
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	return k.store.InsertSigningKey(k.ctx, &SigningKey{
		KID:        "boot-" + now.Format("20060102T150405Z"),
		Alg:        "EdDSA",
		PublicKey:  pub,
		PrivateKey: priv,
		Status:     KeyActive,
		NotBefore:  now,
	})
}

// Rotate genera una clave activa nueva y pasa la actual a retiring.
// La retiring sigue en JWKS hasta que sus tokens expiren.
func (k *Keystore) Rotate() (string, error) {
	cur, err := k.store.GetActiveSigningKey(k.ctx)
	if err != nil && !errors.Is(err, ErrNoActiveKey) {
		return "", err
	}
	pub, priv, err := GenerateEd25519()
	if err != nil {
		return "", err
	}
	now := time.Now().UTC()
	next := &SigningKey{
		KID:        "key-" + now.Format("20060102T150405Z"),
		Alg:        "EdDSA",
		PublicKey:  pub,
		PrivateKey: priv,
		Status:     KeyActive,
		NotBefore:  now,
	}
	if err := k.store.InsertSigningKey(k.ctx, next); err != nil {
		return "", err
	}
	if cur != nil {
		if err := k.store.UpdateKeyStatus(k.ctx, cur.KID, KeyRetiring); err != nil {
			return "", err
		}
	}
	k.invalidate()
	return next.KID, nil
}

func (k *Keystore) invalidate() {
	k.mu.Lock()
	k.cacheUntil = time.Time{}
	k.jwksUntil = time.Time{}
	k.activeKID = ""
	k.mu.Unlock()
}

// Active devuelve la clave activa (cacheada).
func (k *Keystore) Active() (kid string, priv []byte, pub []byte, err error) {
	k.mu.RLock()
	if time.Now().Before(k.cacheUntil) && k.activeKID != "" {
		defer k.mu.RUnlock()
		return k.activeKID, k.activePriv, k.activePub, nil
	}
	k.mu.RUnlock()

	k.mu.Lock()
	defer k.mu.Unlock()
	if time.Now().Before(k.cacheUntil) && k.activeKID != "" {
		return k.activeKID, k.activePriv, k.activePub, nil
	}

	rec, err := k.store.GetActiveSigningKey(k.ctx)
	if err != nil {
		return "", nil, nil, err
	}
	k.activeKID = rec.KID
	k.activePriv = rec.PrivateKey
	k.activePub = rec.PublicKey
	k.cacheUntil = time.Now().Add(k.cacheTTL)
	return k.activeKID, k.activePriv, k.activePub, nil
}

// PublicKeyByKID devuelve la pubkey para un KID (active o retiring).
func (k *Keystore) PublicKeyByKID(kid string) ([]byte, error) {
	k.mu.RLock()
	if kid != "" && kid == k.activeKID && len(k.activePub) > 0 {
		pub := make([]byte, len(k.activePub))
		copy(pub, k.activePub)
		k.mu.RUnlock()
		return pub, nil
	}
	k.mu.RUnlock()

	recs, err := k.store.ListPublicSigningKeys(k.ctx)
	if err != nil {
		return nil, err
	}
	for _, r := range recs {
		if r.KID == kid {
			return r.PublicKey, nil
		}
	}
	return nil, errors.New("kid_not_found")
}

// JWKSJSON construye el JWKS desde el store (cache corto).
func (k *Keystore) JWKSJSON() ([]byte, error) {
	k.mu.RLock()
	if time.Now().Before(k.jwksUntil) && len(k.lastJWKS) > 0 {
		defer k.mu.RUnlock()
		return k.lastJWKS, nil
	}
	k.mu.RUnlock()

	k.mu.Lock()
	defer k.mu.Unlock()
	if time.Now().Before(k.jwksUntil) && len(k.lastJWKS) > 0 {
		return k.lastJWKS, nil
	}

	pubKeys, err := k.store.ListPublicSigningKeys(k.ctx)
	if err != nil {
		return nil, err
	}
	j := buildJWKS(pubKeys)
	k.lastJWKS = j
	k.jwksUntil = time.Now().Add(k.jwksTTL)
	return j, nil
}
