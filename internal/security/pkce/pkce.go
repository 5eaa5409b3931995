// Package pkce implementa la verificación Proof Key for Code Exchange (RFC 7636).
//
// Solo se soporta el método S256. "plain" se rechaza siempre: un challenge en
// claro no protege contra intercepción del authorization code.
package pkce

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
)

const (
	// MethodS256 es el único code_challenge_method aceptado.
	MethodS256 = "S256"

	minLength = 43
	maxLength = 128
)

var (
	// ErrUnsupportedMethod indica un code_challenge_method distinto de S256.
	ErrUnsupportedMethod = errors.New("code_challenge_method must be S256")

	// ErrInvalidChallenge indica un code_challenge con formato inválido
	// (largo fuera de [43,128] o caracteres fuera de [A-Za-z0-9-._~]).
	ErrInvalidChallenge = errors.New("invalid code_challenge format")

	// ErrInvalidVerifier indica un code_verifier con formato inválido.
	ErrInvalidVerifier = errors.New("invalid code_verifier format")

	// ErrVerificationFailed indica que el verifier no corresponde al challenge.
	ErrVerificationFailed = errors.New("code_verifier does not match code_challenge")
)

// ValidateChallenge valida method y formato del code_challenge tal como llega
// en /authorize. No verifica nada criptográfico todavía.
func ValidateChallenge(challenge, method string) error {
	if method != MethodS256 {
		return ErrUnsupportedMethod
	}
	if !validFormat(challenge) {
		return ErrInvalidChallenge
	}
	return nil
}

// Verify compara base64url(SHA256(verifier)) contra el challenge almacenado.
// El challenge no es secreto, así que una comparación normal alcanza.
func Verify(verifier, challenge string) error {
	if !validFormat(verifier) {
		return ErrInvalidVerifier
	}
	if Challenge(verifier) != challenge {
		return ErrVerificationFailed
	}
	return nil
}

// Challenge computa el code_challenge S256 para un verifier dado.
func Challenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// validFormat chequea largo 43..128 y charset [A-Za-z0-9-._~] (RFC 7636 §4.1).
func validFormat(s string) bool {
	if len(s) < minLength || len(s) > maxLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'A' && c <= 'Z':
		case c >= 'a' && c <= 'z':
		case c >= '0' && c <= '9':
		case c == '-' || c == '.' || c == '_' || c == '~':
		default:
			return false
		}
	}
	return true
}
