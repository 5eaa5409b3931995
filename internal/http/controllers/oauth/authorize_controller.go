package oauth

import (
	"net/http"
	"net/url"
	"strings"

	dto "github.com/dropDatabas3/llavero/internal/http/dto/oauth"
	svc "github.com/dropDatabas3/llavero/internal/http/services/oauth"
	"github.com/dropDatabas3/llavero/internal/observability/logger"
)

// AuthorizeController handles GET /oauth/authorize.
type AuthorizeController struct {
	service svc.AuthorizeService
}

// NewAuthorizeController creates the controller.
func NewAuthorizeController(s svc.AuthorizeService) *AuthorizeController {
	return &AuthorizeController{service: s}
}

// Authorize parses the query and renders the service outcome: a code
// redirect, an error redirect, a login/consent bounce, or a JSON error
// when no redirect target is trusted yet.
func (c *AuthorizeController) Authorize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("oauth.authorize"))

	q := r.URL.Query()
	req := dto.AuthorizeRequest{
		ResponseType:        strings.TrimSpace(q.Get("response_type")),
		ClientID:            strings.TrimSpace(q.Get("client_id")),
		RedirectURI:         strings.TrimSpace(q.Get("redirect_uri")),
		Scope:               strings.TrimSpace(q.Get("scope")),
		State:               q.Get("state"),
		Nonce:               q.Get("nonce"),
		CodeChallenge:       strings.TrimSpace(q.Get("code_challenge")),
		CodeChallengeMethod: strings.TrimSpace(q.Get("code_challenge_method")),
		Prompt:              strings.TrimSpace(q.Get("prompt")),
		MaxAge:              strings.TrimSpace(q.Get("max_age")),
	}

	result, err := c.service.Authorize(ctx, r, req)
	if err != nil {
		log.Error("authorize flow failed", logger.Err(err))
		writeOAuthError(w, http.StatusInternalServerError, "server_error", "An unexpected error occurred")
		return
	}

	switch result.Type {
	case dto.AuthResultSuccess:
		redirectWith(w, r, result.RedirectURI, url.Values{
			"code":  {result.Code},
			"state": {result.State},
		})

	case dto.AuthResultNeedLogin:
		http.Redirect(w, r, result.LoginURL, http.StatusFound)

	case dto.AuthResultNeedConsent:
		http.Redirect(w, r, result.ConsentURL, http.StatusFound)

	case dto.AuthResultRedirectError:
		v := url.Values{"error": {result.ErrorCode}}
		if result.ErrorDescription != "" {
			v.Set("error_description", result.ErrorDescription)
		}
		if result.State != "" {
			v.Set("state", result.State)
		}
		redirectWith(w, r, result.RedirectURI, v)

	case dto.AuthResultJSONError:
		writeOAuthError(w, result.HTTPStatus, result.ErrorCode, result.ErrorDescription)

	default:
		writeOAuthError(w, http.StatusInternalServerError, "server_error", "Unknown authorization outcome")
	}
}

// redirectWith agrega params al query existente del redirect_uri.
func redirectWith(w http.ResponseWriter, r *http.Request, target string, params url.Values) {
	u, err := url.Parse(target)
	if err != nil {
		writeOAuthError(w, http.StatusInternalServerError, "server_error", "Invalid redirect target")
		return
	}
	q := u.Query()
	for k, vs := range params {
		for _, v := range vs {
			if v != "" {
				q.Set(k, v)
			}
		}
	}
	u.RawQuery = q.Encode()
	w.Header().Set("Cache-Control", "no-store")
	http.Redirect(w, r, u.String(), http.StatusFound)
}
