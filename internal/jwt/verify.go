package jwt

import (
	"errors"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
)

// Errores tipados de verificación. Los consumidores mapean cada uno a su
// error OAuth sin inspeccionar strings.
var (
	ErrTokenExpired    = errors.New("token_expired")
	ErrTokenSignature  = errors.New("token_signature_invalid")
	ErrTokenMalformed  = errors.New("token_malformed")
	ErrInvalidIssuer   = errors.New("invalid_issuer")
	ErrInvalidAudience = errors.New("invalid_audience")
)

// VerifiedToken son los claims ya validados de un JWT.
type VerifiedToken struct {
	JTI       string
	Subject   string
	ClientID  string
	Scope     string
	TokenUse  string
	Issuer    string
	Audience  string
	ExpiresAt time.Time
	IssuedAt  time.Time
	Claims    map[string]any
}

// Verify valida firma (EdDSA via keystore), exp/nbf, iss y aud, y devuelve
// claims tipados. El error distingue expirado / firma inválida / malformado.
func (i *Issuer) Verify(raw string) (*VerifiedToken, error) {
	tok, err := jwtv5.Parse(raw, i.Keyfunc(), jwtv5.WithValidMethods([]string{"EdDSA"}))
	if err != nil {
		switch {
		case errors.Is(err, jwtv5.ErrTokenExpired):
			return nil, ErrTokenExpired
		case errors.Is(err, jwtv5.ErrTokenSignatureInvalid):
			return nil, ErrTokenSignature
		case errors.Is(err, jwtv5.ErrTokenMalformed):
			return nil, ErrTokenMalformed
		default:
			return nil, ErrTokenMalformed
		}
	}
	if !tok.Valid {
		return nil, ErrTokenSignature
	}

	mc, ok := tok.Claims.(jwtv5.MapClaims)
	if !ok {
		return nil, ErrTokenMalformed
	}

	if iss, _ := mc["iss"].(string); i.Iss != "" && iss != i.Iss {
		return nil, ErrInvalidIssuer
	}

	aud, _ := mc["aud"].(string)
	if i.Aud != "" && aud != i.Aud {
		// Los ID tokens llevan el client_id como aud; el caller que espera
		// un ID token valida aud por su cuenta via Claims.
		if use, _ := mc["token_use"].(string); use == UseAccess || use == UseRefresh {
			return nil, ErrInvalidAudience
		}
	}

	out := &VerifiedToken{
		Issuer:   i.Iss,
		Audience: aud,
		Claims:   make(map[string]any, len(mc)),
	}
	out.JTI, _ = mc["jti"].(string)
	out.Subject, _ = mc["sub"].(string)
	out.ClientID, _ = mc["client_id"].(string)
	out.Scope, _ = mc["scope"].(string)
	out.TokenUse, _ = mc["token_use"].(string)
	if expf, ok := mc["exp"].(float64); ok {
		out.ExpiresAt = time.Unix(int64(expf), 0).UTC()
	}
	if iatf, ok := mc["iat"].(float64); ok {
		out.IssuedAt = time.Unix(int64(iatf), 0).UTC()
	}
	for k, v := range mc {
		out.Claims[k] = v
	}
	return out, nil
}
