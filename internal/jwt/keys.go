package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"time"
)

// KeyStatus es el estado de una signing key dentro del ciclo de rotación.
type KeyStatus string

const (
	// KeyActive firma tokens nuevos.
	KeyActive KeyStatus = "active"
	// KeyRetiring ya no firma pero sigue publicada en JWKS para verificar
	// tokens emitidos antes de la rotación.
	KeyRetiring KeyStatus = "retiring"
	// KeyRetired salió del JWKS; los tokens firmados con ella ya expiraron.
	KeyRetired KeyStatus = "retired"
)

// SigningKey es una clave Ed25519 con metadatos de rotación.
type SigningKey struct {
	KID        string    `json:"kid"`
	Alg        string    `json:"alg"` // "EdDSA"
	PublicKey  []byte    `json:"public_key"`
	PrivateKey []byte    `json:"private_key,omitempty"`
	Status     KeyStatus `json:"status"`
	NotBefore  time.Time `json:"not_before"`
}

// GenerateEd25519 genera un par de claves nuevo.
func GenerateEd25519() (ed25519.PublicKey, ed25519.PrivateKey, error) {
	return ed25519.GenerateKey(rand.Reader)
}

// ----- JWKS (serialización) -----

type jwk struct {
	Kty string `json:"kty"` // "OKP"
	Crv string `json:"crv"` // "Ed25519"
	Kid string `json:"kid"`
	Alg string `json:"alg"` // "EdDSA"
	Use string `json:"use"` // "sig"
	X   string `json:"x"`   // base64url(pub)
}

type jwksDoc struct {
	Keys []jwk `json:"keys"`
}

// buildJWKS construye el documento JWKS (solo públicas) a partir de keys.
func buildJWKS(keys []SigningKey) []byte {
	doc := jwksDoc{Keys: make([]jwk, 0, len(keys))}
	for _, k := range keys {
		if len(k.PublicKey) == 0 {
			continue
		}
		doc.Keys = append(doc.Keys, jwk{
			Kty: "OKP",
			Crv: "Ed25519",
			Kid: k.KID,
			Alg: k.Alg,
			Use: "sig",
			X:   base64.RawURLEncoding.EncodeToString(k.PublicKey),
		})
	}
	b, _ := json.Marshal(doc)
	return b
}
