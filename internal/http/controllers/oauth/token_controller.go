// Package oauth - controllers for the OAuth2 endpoints.
package oauth

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	svc "github.com/dropDatabas3/llavero/internal/http/services/oauth"
	"github.com/dropDatabas3/llavero/internal/metrics"
	"github.com/dropDatabas3/llavero/internal/observability/logger"
)

// TokenController handles the OAuth2 token endpoint.
type TokenController struct {
	service svc.TokenService
}

// NewTokenController creates the controller.
func NewTokenController(s svc.TokenService) *TokenController {
	return &TokenController{service: s}
}

// Token handles POST /oauth/token
// Implements: Authorization Code (PKCE), Refresh Token, Client Credentials grants.
func (c *TokenController) Token(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("oauth.token"))

	// Limit body size (64KB for OAuth forms)
	r.Body = http.MaxBytesReader(w, r.Body, 64<<10)

	if err := r.ParseForm(); err != nil {
		log.Warn("failed to parse form", logger.Err(err))
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "Invalid form data")
		return
	}

	grantType := strings.TrimSpace(r.PostForm.Get("grant_type"))
	log = log.With(logger.GrantType(grantType))
	clientID, clientSecret := clientCredentials(r)

	var resp *svc.TokenResponse
	var err error

	switch grantType {
	case "authorization_code":
		resp, err = c.service.ExchangeAuthorizationCode(ctx, svc.AuthCodeRequest{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Code:         strings.TrimSpace(r.PostForm.Get("code")),
			RedirectURI:  strings.TrimSpace(r.PostForm.Get("redirect_uri")),
			CodeVerifier: strings.TrimSpace(r.PostForm.Get("code_verifier")),
		})

	case "refresh_token":
		resp, err = c.service.ExchangeRefreshToken(ctx, svc.RefreshTokenRequest{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RefreshToken: strings.TrimSpace(r.PostForm.Get("refresh_token")),
			Scope:        strings.TrimSpace(r.PostForm.Get("scope")),
		})

	case "client_credentials":
		resp, err = c.service.ExchangeClientCredentials(ctx, svc.ClientCredentialsRequest{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Scope:        strings.TrimSpace(r.PostForm.Get("scope")),
		})

	default:
		metrics.TokenFailuresTotal.WithLabelValues(grantType, "unsupported_grant_type").Inc()
		writeOAuthError(w, http.StatusBadRequest, "unsupported_grant_type", "Grant type not supported")
		return
	}

	if err != nil {
		c.handleServiceError(w, r, grantType, err)
		return
	}

	writeTokenResponse(w, resp)
}

func (c *TokenController) handleServiceError(w http.ResponseWriter, r *http.Request, grantType string, err error) {
	log := logger.From(r.Context())
	desc := svc.DescriptionOf(err)

	var code string
	var status int
	switch {
	case errors.Is(err, svc.ErrTokenInvalidRequest):
		code, status = "invalid_request", http.StatusBadRequest
		if desc == "" {
			desc = "Missing or invalid parameters"
		}
	case errors.Is(err, svc.ErrTokenInvalidClient):
		code, status = "invalid_client", http.StatusUnauthorized
		desc = "Client authentication failed"
	case errors.Is(err, svc.ErrTokenInvalidGrant):
		code, status = "invalid_grant", http.StatusBadRequest
		if desc == "" {
			desc = "Invalid or expired grant"
		}
	case errors.Is(err, svc.ErrTokenUnauthorizedClient):
		code, status = "unauthorized_client", http.StatusUnauthorized
		if desc == "" {
			desc = "Client not authorized for this grant type"
		}
	case errors.Is(err, svc.ErrTokenUnsupportedGrantType):
		code, status = "unsupported_grant_type", http.StatusBadRequest
		desc = "Grant type not supported"
	case errors.Is(err, svc.ErrTokenInvalidScope):
		code, status = "invalid_scope", http.StatusBadRequest
		if desc == "" {
			desc = "Requested scope is invalid or not allowed"
		}
	default:
		code, status = "server_error", http.StatusInternalServerError
		desc = "An unexpected error occurred"
		log.Error("token endpoint error", logger.Err(err))
	}

	if reason := svc.ReasonOf(err); reason != "" {
		log.Debug("token request rejected", logger.String("reason", reason), logger.GrantType(grantType))
	}
	metrics.TokenFailuresTotal.WithLabelValues(grantType, code).Inc()
	writeOAuthError(w, status, code, desc)
}

func writeTokenResponse(w http.ResponseWriter, resp *svc.TokenResponse) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}
