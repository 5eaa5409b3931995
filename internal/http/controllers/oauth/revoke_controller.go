package oauth

import (
	"errors"
	"net/http"
	"strings"

	svc "github.com/dropDatabas3/llavero/internal/http/services/oauth"
	"github.com/dropDatabas3/llavero/internal/observability/logger"
)

// RevokeController handles POST /oauth/revoke (RFC 7009).
type RevokeController struct {
	service svc.RevokeService
}

// NewRevokeController creates the controller.
func NewRevokeController(s svc.RevokeService) *RevokeController {
	return &RevokeController{service: s}
}

// Revoke authenticates the client and always answers 200 for well-formed
// requests, regardless of whether the token existed or was already dead.
func (c *RevokeController) Revoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("oauth.revoke"))

	r.Body = http.MaxBytesReader(w, r.Body, 64<<10)
	if err := r.ParseForm(); err != nil {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "Invalid form data")
		return
	}

	token := strings.TrimSpace(r.PostForm.Get("token"))
	if token == "" {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "token parameter is required")
		return
	}

	clientID, clientSecret := clientCredentials(r)
	err := c.service.Revoke(ctx, svc.RevokeRequest{
		ClientID:      clientID,
		ClientSecret:  clientSecret,
		Token:         token,
		TokenTypeHint: strings.TrimSpace(r.PostForm.Get("token_type_hint")),
	})
	if err != nil {
		// Only authentication failures surface; revocation outcome never does.
		switch {
		case errors.Is(err, svc.ErrTokenInvalidClient):
			writeOAuthError(w, http.StatusUnauthorized, "invalid_client", "Client authentication failed")
		case errors.Is(err, svc.ErrTokenUnauthorizedClient):
			writeOAuthError(w, http.StatusUnauthorized, "unauthorized_client", "Client not authorized")
		default:
			log.Error("revoke endpoint error", logger.Err(err))
			writeOAuthError(w, http.StatusInternalServerError, "server_error", "An unexpected error occurred")
		}
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
}
