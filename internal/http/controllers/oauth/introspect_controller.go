package oauth

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	svc "github.com/dropDatabas3/llavero/internal/http/services/oauth"
	"github.com/dropDatabas3/llavero/internal/observability/logger"
)

// IntrospectController handles POST /oauth/introspect (RFC 7662).
type IntrospectController struct {
	service svc.IntrospectService
}

// NewIntrospectController creates the controller.
func NewIntrospectController(s svc.IntrospectService) *IntrospectController {
	return &IntrospectController{service: s}
}

func (c *IntrospectController) Introspect(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("oauth.introspect"))

	r.Body = http.MaxBytesReader(w, r.Body, 64<<10)
	if err := r.ParseForm(); err != nil {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "Invalid form data")
		return
	}

	clientID, clientSecret := clientCredentials(r)
	resp, err := c.service.Introspect(ctx, svc.IntrospectRequest{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Token:        strings.TrimSpace(r.PostForm.Get("token")),
	})
	if err != nil {
		switch {
		case errors.Is(err, svc.ErrTokenInvalidClient):
			writeOAuthError(w, http.StatusUnauthorized, "invalid_client", "Client authentication failed")
		default:
			log.Error("introspect endpoint error", logger.Err(err))
			writeOAuthError(w, http.StatusInternalServerError, "server_error", "An unexpected error occurred")
		}
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(resp)
}
