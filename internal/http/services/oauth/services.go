// Package oauth contiene los services del dominio OAuth2/OIDC.
package oauth

import (
	"github.com/dropDatabas3/llavero/internal/audit"
	"github.com/dropDatabas3/llavero/internal/cache"
	jwtx "github.com/dropDatabas3/llavero/internal/jwt"
	"github.com/dropDatabas3/llavero/internal/store"
	"github.com/dropDatabas3/llavero/internal/validation"
)

// Deps contiene las dependencias para crear los services OAuth.
type Deps struct {
	DAL        *store.DAL
	Issuer     *jwtx.Issuer
	Cache      cache.Client
	Audit      audit.Sink
	CookieName string
	UIBaseURL  string

	// MaxSecretVerifies acota las verificaciones argon2id concurrentes.
	MaxSecretVerifies int64
}

// Services agrupa todos los services del dominio OAuth.
type Services struct {
	ClientAut  *ClientAuthenticator
	Authorize  AuthorizeService
	Token      TokenService
	Revoke     RevokeService
	Introspect IntrospectService
	UserInfo   UserInfoService
	Consent    ConsentService
}

// NewServices crea el agregador de services OAuth.
func NewServices(d Deps) Services {
	scopes := validation.NewScopeValidator(d.DAL.Scopes)
	clientAut := NewClientAuthenticator(d.DAL.Clients, d.MaxSecretVerifies)

	return Services{
		ClientAut: clientAut,
		Authorize: NewAuthorizeService(AuthorizeDeps{
			DAL:        d.DAL,
			Cache:      d.Cache,
			Scopes:     scopes,
			Audit:      d.Audit,
			CookieName: d.CookieName,
			UIBaseURL:  d.UIBaseURL,
		}),
		Token: NewTokenService(TokenDeps{
			DAL:       d.DAL,
			Issuer:    d.Issuer,
			ClientAut: clientAut,
			Scopes:    scopes,
			Audit:     d.Audit,
		}),
		Revoke: NewRevokeService(RevokeDeps{
			DAL:       d.DAL,
			Issuer:    d.Issuer,
			ClientAut: clientAut,
			Audit:     d.Audit,
		}),
		Introspect: NewIntrospectService(IntrospectDeps{
			DAL:       d.DAL,
			Issuer:    d.Issuer,
			ClientAut: clientAut,
		}),
		UserInfo: NewUserInfoService(UserInfoDeps{
			DAL:    d.DAL,
			Issuer: d.Issuer,
		}),
		Consent: NewConsentService(ConsentDeps{
			DAL:   d.DAL,
			Audit: d.Audit,
		}),
	}
}
