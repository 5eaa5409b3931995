package oauth

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dropDatabas3/llavero/internal/cache"
	"github.com/dropDatabas3/llavero/internal/domain/repository"
	svc "github.com/dropDatabas3/llavero/internal/http/services/oauth"
	"github.com/dropDatabas3/llavero/internal/observability/logger"
)

// ConsentController handles the consent UI postback. The endpoint is
// session-delegated: the user, not the client, is the caller.
type ConsentController struct {
	consents   svc.ConsentService
	clients    repository.ClientRepository
	cache      cache.Client
	cookieName string
}

// NewConsentController creates the controller.
func NewConsentController(consents svc.ConsentService, clients repository.ClientRepository, c cache.Client, cookieName string) *ConsentController {
	if cookieName == "" {
		cookieName = "llavero_sid"
	}
	return &ConsentController{consents: consents, clients: clients, cache: c, cookieName: cookieName}
}

// Accept handles POST /oauth/consent
// Form: client_id, scope (space-delimited), expires_in (seconds, optional).
func (c *ConsentController) Accept(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("oauth.consent"))

	sess, ok := svc.SessionFromRequest(ctx, c.cache, c.cookieName, r)
	if !ok {
		writeOAuthError(w, http.StatusUnauthorized, "invalid_session", "Login session required")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 64<<10)
	if err := r.ParseForm(); err != nil {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "Invalid form data")
		return
	}

	clientID := strings.TrimSpace(r.PostForm.Get("client_id"))
	scopes := strings.Fields(r.PostForm.Get("scope"))
	if clientID == "" || len(scopes) == 0 {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "client_id and scope are required")
		return
	}

	client, err := c.clients.GetByClientID(ctx, clientID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeOAuthError(w, http.StatusBadRequest, "invalid_client", "Unknown client")
			return
		}
		log.Error("client lookup failed", logger.Err(err))
		writeOAuthError(w, http.StatusInternalServerError, "server_error", "An unexpected error occurred")
		return
	}
	if !client.Active {
		writeOAuthError(w, http.StatusBadRequest, "invalid_client", "Client is inactive")
		return
	}

	var ttl time.Duration
	if v := strings.TrimSpace(r.PostForm.Get("expires_in")); v != "" {
		secs, err := strconv.ParseInt(v, 10, 64)
		if err != nil || secs < 0 {
			writeOAuthError(w, http.StatusBadRequest, "invalid_request", "expires_in must be a non-negative integer")
			return
		}
		ttl = time.Duration(secs) * time.Second
	}

	if _, err := c.consents.Grant(ctx, sess.UserID, client.ClientID, scopes, ttl); err != nil {
		log.Error("consent grant failed", logger.Err(err))
		writeOAuthError(w, http.StatusInternalServerError, "server_error", "An unexpected error occurred")
		return
	}

	log.Info("consent granted", logger.UserID(sess.UserID), logger.ClientID(client.ClientID))
	w.WriteHeader(http.StatusNoContent)
}
