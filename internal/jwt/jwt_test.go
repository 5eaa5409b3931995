package jwt_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"

	jwtx "github.com/dropDatabas3/llavero/internal/jwt"
)

func newTestIssuer(t *testing.T) *jwtx.Issuer {
	t.Helper()
	ks := jwtx.NewKeystore(context.Background(), jwtx.NewMemorySigningKeyStore())
	if err := ks.EnsureBootstrap(); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	return jwtx.NewIssuer("https://auth.test", "llavero-api", ks)
}

func TestIssueAccess_ClaimsAndVerify(t *testing.T) {
	iss := newTestIssuer(t)

	tok, err := iss.IssueAccess("user-1", "web-app", "openid profile", 0)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if tok.JTI == "" || tok.KID == "" {
		t.Fatalf("missing jti/kid: %+v", tok)
	}

	v, err := iss.Verify(tok.Raw)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if v.Subject != "user-1" || v.ClientID != "web-app" {
		t.Fatalf("claims: %+v", v)
	}
	if v.Scope != "openid profile" {
		t.Fatalf("scope = %q", v.Scope)
	}
	if v.TokenUse != jwtx.UseAccess {
		t.Fatalf("token_use = %q", v.TokenUse)
	}
	if v.JTI != tok.JTI {
		t.Fatalf("jti mismatch: %q vs %q", v.JTI, tok.JTI)
	}
}

func TestIssueAccess_NoSubForClientCredentials(t *testing.T) {
	iss := newTestIssuer(t)

	tok, err := iss.IssueAccess("", "svc-backend", "api:read", 0)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	v, err := iss.Verify(tok.Raw)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if v.Subject != "" {
		t.Fatalf("sub must be absent, got %q", v.Subject)
	}
	if _, present := v.Claims["sub"]; present {
		t.Fatal("sub claim must not be emitted")
	}
}

func TestVerify_Expired(t *testing.T) {
	iss := newTestIssuer(t)

	// ttl=0 cae en el default del issuer; uno negativo emite ya-expirado.
	iss.AccessTTL = -time.Minute
	tok, err := iss.IssueAccess("user-1", "web-app", "", 0)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	if _, err := iss.Verify(tok.Raw); err != jwtx.ErrTokenExpired {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestVerify_Malformed(t *testing.T) {
	iss := newTestIssuer(t)
	if _, err := iss.Verify("not.a.jwt"); err != jwtx.ErrTokenMalformed {
		t.Fatalf("expected ErrTokenMalformed, got %v", err)
	}
}

func TestVerify_WrongIssuer(t *testing.T) {
	other := newTestIssuer(t)
	tok, err := other.IssueAccess("user-1", "web-app", "", 0)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	// Mismo keystore, issuer distinto: la firma no valida contra otro keystore,
	// así que armamos un verificador que comparte claves pero espera otro iss.
	same := *other
	same.Iss = "https://evil.test"
	if _, err := same.Verify(tok.Raw); err != jwtx.ErrInvalidIssuer {
		t.Fatalf("expected ErrInvalidIssuer, got %v", err)
	}
}

func TestVerify_WrongAudienceForAccess(t *testing.T) {
	iss := newTestIssuer(t)
	tok, err := iss.IssueAccess("user-1", "web-app", "", 0)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	check := *iss
	check.Aud = "other-api"
	if _, err := check.Verify(tok.Raw); err != jwtx.ErrInvalidAudience {
		t.Fatalf("expected ErrInvalidAudience, got %v", err)
	}
}

func TestVerify_IDTokenAudienceIsClientID(t *testing.T) {
	iss := newTestIssuer(t)
	tok, err := iss.IssueIDToken("user-1", "web-app", map[string]any{"nonce": "n-123"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	// aud=client_id no coincide con la audience del server, pero un ID token
	// no se rechaza por eso.
	v, err := iss.Verify(tok.Raw)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if v.Audience != "web-app" {
		t.Fatalf("aud = %q", v.Audience)
	}
	if v.Claims["nonce"] != "n-123" {
		t.Fatalf("nonce = %v", v.Claims["nonce"])
	}
}

func TestRotation_OldKIDStillVerifies(t *testing.T) {
	store := jwtx.NewMemorySigningKeyStore()
	ks := jwtx.NewKeystore(context.Background(), store)
	if err := ks.EnsureBootstrap(); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	iss := jwtx.NewIssuer("https://auth.test", "llavero-api", ks)

	oldTok, err := iss.IssueAccess("user-1", "web-app", "", 0)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	newKID, err := ks.Rotate()
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if newKID == oldTok.KID {
		t.Fatal("rotation must produce a new kid")
	}

	// El token firmado con la clave retiring sigue verificando por kid.
	if _, err := iss.Verify(oldTok.Raw); err != nil {
		t.Fatalf("old token must still verify: %v", err)
	}

	newTok, err := iss.IssueAccess("user-1", "web-app", "", 0)
	if err != nil {
		t.Fatalf("issue after rotate: %v", err)
	}
	if newTok.KID != newKID {
		t.Fatalf("new token kid = %q, want %q", newTok.KID, newKID)
	}
}

func TestJWKS_ExposesActiveAndRetiring(t *testing.T) {
	ks := jwtx.NewKeystore(context.Background(), jwtx.NewMemorySigningKeyStore())
	if err := ks.EnsureBootstrap(); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if _, err := ks.Rotate(); err != nil {
		t.Fatalf("rotate: %v", err)
	}

	raw, err := ks.JWKSJSON()
	if err != nil {
		t.Fatalf("jwks: %v", err)
	}
	var doc struct {
		Keys []struct {
			Kty string `json:"kty"`
			Crv string `json:"crv"`
			Kid string `json:"kid"`
			X   string `json:"x"`
		} `json:"keys"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(doc.Keys) != 2 {
		t.Fatalf("expected active+retiring, got %d keys", len(doc.Keys))
	}
	for _, k := range doc.Keys {
		if k.Kty != "OKP" || k.Crv != "Ed25519" || k.Kid == "" || k.X == "" {
			t.Fatalf("bad jwk: %+v", k)
		}
	}
}

func TestKeyfunc_UnknownKID(t *testing.T) {
	a := newTestIssuer(t)
	b := newTestIssuer(t)

	tok, err := a.IssueAccess("user-1", "web-app", "", 0)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	// Un token firmado por otro keystore no tiene kid resoluble acá.
	if _, err := b.Verify(tok.Raw); err == nil {
		t.Fatal("expected verification failure for foreign kid")
	}
}

func TestKeyfunc_RejectsNonEdDSA(t *testing.T) {
	iss := newTestIssuer(t)

	// HS256 con secret arbitrario debe rechazarse por método.
	tk := jwtv5.NewWithClaims(jwtv5.SigningMethodHS256, jwtv5.MapClaims{
		"iss": "https://auth.test", "aud": "llavero-api", "token_use": "access",
	})
	raw, err := tk.SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := iss.Verify(raw); err == nil {
		t.Fatal("expected rejection of HS256 token")
	}
}
