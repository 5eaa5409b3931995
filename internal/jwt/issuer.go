package jwt

import (
	"crypto/ed25519"
	"time"

	"github.com/google/uuid"

	jwtv5 "github.com/golang-jwt/jwt/v5"
)

// Uso declarado de un token dentro del claim "token_use".
const (
	UseAccess  = "access"
	UseRefresh = "refresh"
	UseID      = "id"
)

// IssuedToken es el resultado de firmar un token.
type IssuedToken struct {
	Raw       string
	JTI       string
	KID       string
	ExpiresAt time.Time
	IssuedAt  time.Time
}

// Issuer firma tokens usando la clave activa del keystore.
type Issuer struct {
	Iss        string        // claim "iss"
	Aud        string        // audience por defecto
	Keys       *Keystore     // keystore con rotación
	AccessTTL  time.Duration // TTL por defecto de access tokens
	RefreshTTL time.Duration // TTL por defecto de refresh tokens
	IDTokenTTL time.Duration
}

func NewIssuer(iss, aud string, ks *Keystore) *Issuer {
	return &Issuer{
		Iss:        iss,
		Aud:        aud,
		Keys:       ks,
		AccessTTL:  time.Hour,
		RefreshTTL: 30 * 24 * time.Hour,
		IDTokenTTL: time.Hour,
	}
}

// ActiveKID devuelve el KID activo actual.
func (i *Issuer) ActiveKID() (string, error) {
	kid, _, _, err := i.Keys.Active()
	return kid, err
}

// Keyfunc devuelve un jwt.Keyfunc que elige la pubkey por 'kid' del token
// (active/retiring). Sin kid cae en la activa.
func (i *Issuer) Keyfunc() jwtv5.Keyfunc {
	return func(t *jwtv5.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid != "" {
			pub, err := i.Keys.PublicKeyByKID(kid)
			if err != nil {
				return nil, err
			}
			return ed25519.PublicKey(pub), nil
		}
		_, _, pub, err := i.Keys.Active()
		if err != nil {
			return nil, err
		}
		return ed25519.PublicKey(pub), nil
	}
}

// signRaw firma un MapClaims, setea header kid/typ y devuelve el JWT firmado.
func (i *Issuer) signRaw(claims jwtv5.MapClaims) (string, string, error) {
	kid, priv, _, err := i.Keys.Active()
	if err != nil {
		return "", "", err
	}
	tk := jwtv5.NewWithClaims(jwtv5.SigningMethodEdDSA, claims)
	tk.Header["kid"] = kid
	tk.Header["typ"] = "JWT"
	signed, err := tk.SignedString(ed25519.PrivateKey(priv))
	if err != nil {
		return "", "", err
	}
	return signed, kid, nil
}

func (i *Issuer) issue(use, sub, clientID, scope string, ttl time.Duration, extra map[string]any) (*IssuedToken, error) {
	now := time.Now().UTC()
	exp := now.Add(ttl)
	jti := uuid.NewString()

	claims := jwtv5.MapClaims{
		"iss":       i.Iss,
		"aud":       i.Aud,
		"jti":       jti,
		"iat":       now.Unix(),
		"nbf":       now.Unix(),
		"exp":       exp.Unix(),
		"client_id": clientID,
		"token_use": use,
	}
	// sub ausente para client_credentials
	if sub != "" {
		claims["sub"] = sub
	}
	if scope != "" {
		claims["scope"] = scope
	}
	for k, v := range extra {
		claims[k] = v
	}

	signed, kid, err := i.signRaw(claims)
	if err != nil {
		return nil, err
	}
	return &IssuedToken{Raw: signed, JTI: jti, KID: kid, ExpiresAt: exp, IssuedAt: now}, nil
}

// IssueAccess emite un access token. ttl<=0 usa el default.
func (i *Issuer) IssueAccess(sub, clientID, scope string, ttl time.Duration) (*IssuedToken, error) {
	if ttl <= 0 {
		ttl = i.AccessTTL
	}
	return i.issue(UseAccess, sub, clientID, scope, ttl, nil)
}

// IssueRefresh emite un refresh token.
func (i *Issuer) IssueRefresh(sub, clientID, scope string) (*IssuedToken, error) {
	return i.issue(UseRefresh, sub, clientID, scope, i.RefreshTTL, nil)
}

// IssueIDToken emite un ID Token OIDC. El aud es el client_id y extra lleva
// los claims de perfil (email, name, nonce, auth_time, ...).
func (i *Issuer) IssueIDToken(sub, clientID string, extra map[string]any) (*IssuedToken, error) {
	now := time.Now().UTC()
	exp := now.Add(i.IDTokenTTL)
	jti := uuid.NewString()

	claims := jwtv5.MapClaims{
		"iss": i.Iss,
		"sub": sub,
		"aud": clientID,
		"jti": jti,
		"iat": now.Unix(),
		"nbf": now.Unix(),
		"exp": exp.Unix(),
	}
	for k, v := range extra {
		claims[k] = v
	}

	signed, kid, err := i.signRaw(claims)
	if err != nil {
		return nil, err
	}
	return &IssuedToken{Raw: signed, JTI: jti, KID: kid, ExpiresAt: exp, IssuedAt: now}, nil
}

// JWKSJSON expone el JWKS actual (active+retiring).
func (i *Issuer) JWKSJSON() []byte {
	j, _ := i.Keys.JWKSJSON()
	return j
}
