// Package oidc - controllers for OIDC discovery, JWKS and userinfo.
package oidc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	dto "github.com/dropDatabas3/llavero/internal/http/dto/oauth"
	svc "github.com/dropDatabas3/llavero/internal/http/services/oauth"
	jwtx "github.com/dropDatabas3/llavero/internal/jwt"
	"github.com/dropDatabas3/llavero/internal/observability/logger"
)

// Controller serves the OIDC metadata surface.
type Controller struct {
	issuer   *jwtx.Issuer
	userInfo svc.UserInfoService
	scopes   scopeLister
	baseURL  string
}

// scopeLister exposes the public scope names for discovery.
type scopeLister interface {
	ListPublicScopeNames(ctx context.Context) []string
}

// New creates the OIDC controller. baseURL is the externally visible
// server root, without trailing slash.
func New(issuer *jwtx.Issuer, ui svc.UserInfoService, scopes scopeLister, baseURL string) *Controller {
	return &Controller{
		issuer:   issuer,
		userInfo: ui,
		scopes:   scopes,
		baseURL:  strings.TrimRight(baseURL, "/"),
	}
}

// Discovery handles GET /.well-known/openid-configuration.
func (c *Controller) Discovery(w http.ResponseWriter, r *http.Request) {
	doc := dto.DiscoveryDocument{
		Issuer:                            c.issuer.Iss,
		AuthorizationEndpoint:             c.baseURL + "/oauth/authorize",
		TokenEndpoint:                     c.baseURL + "/oauth/token",
		UserinfoEndpoint:                  c.baseURL + "/oauth/userinfo",
		JWKSURI:                           c.baseURL + "/.well-known/jwks.json",
		RevocationEndpoint:                c.baseURL + "/oauth/revoke",
		IntrospectionEndpoint:             c.baseURL + "/oauth/introspect",
		ResponseTypesSupported:            []string{"code"},
		GrantTypesSupported:               []string{"authorization_code", "refresh_token", "client_credentials"},
		CodeChallengeMethodsSupported:     []string{"S256"},
		TokenEndpointAuthMethodsSupported: []string{"client_secret_basic", "client_secret_post", "none"},
		SubjectTypesSupported:             []string{"public"},
		IDTokenSigningAlgValuesSupported:  []string{"EdDSA"},
	}
	if c.scopes != nil {
		doc.ScopesSupported = c.scopes.ListPublicScopeNames(r.Context())
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "public, max-age=300")
	_ = json.NewEncoder(w).Encode(doc)
}

// JWKS handles GET /.well-known/jwks.json with the active+retiring keys.
func (c *Controller) JWKS(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "public, max-age=300")
	_, _ = w.Write(c.issuer.JWKSJSON())
}

// UserInfo handles GET/POST /oauth/userinfo with a bearer access token.
func (c *Controller) UserInfo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("oidc.userinfo"))

	token := bearerToken(r)
	if token == "" {
		writeBearerError(w, http.StatusUnauthorized, "invalid_token", "Bearer token required")
		return
	}

	resp, err := c.userInfo.UserInfo(ctx, token)
	if err != nil {
		switch {
		case errors.Is(err, svc.ErrUserinfoInvalidToken):
			writeBearerError(w, http.StatusUnauthorized, "invalid_token", "The access token is invalid or expired")
		case errors.Is(err, svc.ErrUserinfoInsufficientScope):
			writeBearerError(w, http.StatusForbidden, "insufficient_scope", "The access token does not grant the required scope")
		case errors.Is(err, svc.ErrUserinfoNoUser):
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"not_found","error_description":"User not found"}`))
		default:
			log.Error("userinfo failed", logger.Err(err))
			writeBearerError(w, http.StatusInternalServerError, "server_error", "An unexpected error occurred")
		}
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_ = json.NewEncoder(w).Encode(resp)
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

func writeBearerError(w http.ResponseWriter, status int, code, description string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="`+code+`"`)
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + code + `","error_description":"` + description + `"}`))
}
