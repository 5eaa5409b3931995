// Package oauth contains services for OAuth2/OIDC endpoints.
package oauth

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dropDatabas3/llavero/internal/audit"
	"github.com/dropDatabas3/llavero/internal/cache"
	"github.com/dropDatabas3/llavero/internal/domain/repository"
	dto "github.com/dropDatabas3/llavero/internal/http/dto/oauth"
	"github.com/dropDatabas3/llavero/internal/observability/logger"
	"github.com/dropDatabas3/llavero/internal/security/pkce"
	tokens "github.com/dropDatabas3/llavero/internal/security/token"
	"github.com/dropDatabas3/llavero/internal/store"
	"github.com/dropDatabas3/llavero/internal/validation"
)

// Cache key prefixes
const cacheKeyPrefixSID = "sid:"

// authCodeTTL is fixed at 10 minutes.
const authCodeTTL = 10 * time.Minute

// AuthorizeService handles the OAuth2 authorization flow.
type AuthorizeService interface {
	Authorize(ctx context.Context, r *http.Request, req dto.AuthorizeRequest) (dto.AuthResult, error)
}

// AuthorizeDeps contains dependencies for AuthorizeService.
type AuthorizeDeps struct {
	DAL        *store.DAL
	Cache      cache.Client
	Scopes     *validation.ScopeValidator
	Audit      audit.Sink
	CookieName string
	UIBaseURL  string // login/consent UI base, default "http://localhost:3000"
}

type authorizeService struct {
	dal        *store.DAL
	cache      cache.Client
	scopes     *validation.ScopeValidator
	sink       audit.Sink
	cookieName string
	uiBaseURL  string
}

// NewAuthorizeService creates a new AuthorizeService.
func NewAuthorizeService(d AuthorizeDeps) AuthorizeService {
	uiBase := d.UIBaseURL
	if uiBase == "" {
		uiBase = "http://localhost:3000"
	}
	cookie := d.CookieName
	if cookie == "" {
		cookie = "llavero_sid"
	}
	sink := d.Audit
	if sink == nil {
		sink = audit.NopSink{}
	}
	return &authorizeService{
		dal:        d.DAL,
		cache:      d.Cache,
		scopes:     d.Scopes,
		sink:       sink,
		cookieName: cookie,
		uiBaseURL:  uiBase,
	}
}

// Authorize walks the authorization state machine. Outcomes before the
// redirect_uri is validated are JSON errors; after that point errors are
// delivered by redirect to the now-trusted URI.
func (s *authorizeService) Authorize(ctx context.Context, r *http.Request, req dto.AuthorizeRequest) (dto.AuthResult, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("AuthorizeService.Authorize"))

	// 1. Required params. No redirect possible yet: nothing is trusted.
	if req.ResponseType == "" || req.ClientID == "" || req.RedirectURI == "" {
		return jsonError(http.StatusBadRequest, "invalid_request", "response_type, client_id and redirect_uri are required"), nil
	}

	// 2. Only the code flow is supported. Delivered as JSON: support is
	// unconfirmed before the client is resolved, and one policy beats two.
	if req.ResponseType != "code" {
		return jsonError(http.StatusBadRequest, "unsupported_response_type", "only response_type=code is supported"), nil
	}

	// 3. Resolve client.
	client, err := s.dal.Clients.GetByClientID(ctx, req.ClientID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return jsonError(http.StatusBadRequest, "invalid_client", "unknown client"), nil
		}
		log.Error("client lookup failed", logger.Err(err))
		// redirect_uri is still unvalidated here; never redirect to it.
		return jsonError(http.StatusInternalServerError, "server_error", "an unexpected error occurred"), nil
	}
	if !client.Active {
		return jsonError(http.StatusBadRequest, "invalid_client", "client is inactive"), nil
	}

	// 4. redirect_uri must be an exact member of the registered set.
	// On mismatch we redirect to the client's FIRST registered URI, never
	// to the attacker-supplied one.
	if !containsExact(client.RedirectURIs, req.RedirectURI) {
		if len(client.RedirectURIs) == 0 {
			return jsonError(http.StatusBadRequest, "invalid_request", "client has no registered redirect URIs"), nil
		}
		return dto.AuthResult{
			Type:             dto.AuthResultRedirectError,
			RedirectURI:      client.RedirectURIs[0],
			State:            req.State,
			ErrorCode:        "invalid_request",
			ErrorDescription: "redirect_uri is not registered for this client",
		}, nil
	}

	// From here on req.RedirectURI is trusted.

	// 5. Scope validation.
	scopeRes := s.scopes.ValidateForClient(ctx, client, req.Scope)
	if !scopeRes.OK() {
		log.Debug("scope validation failed", logger.Scope(req.Scope), logger.String("detail", scopeRes.Description))
		return s.deny(ctx, req, client.ClientID, "invalid_scope", scopeRes.Description), nil
	}
	grantedScope := scopeRes.GrantedString()

	// 6. PKCE. Public clients always require it on the code flow.
	requirePKCE := client.RequirePKCE || client.Type == repository.ClientTypePublic
	if req.CodeChallenge == "" {
		if requirePKCE {
			return s.deny(ctx, req, client.ClientID, "invalid_request", "code_challenge is required for this client"), nil
		}
	} else {
		if err := pkce.ValidateChallenge(req.CodeChallenge, req.CodeChallengeMethod); err != nil {
			return s.deny(ctx, req, client.ClientID, "invalid_request", err.Error()), nil
		}
	}

	// 7. End-user authentication.
	sess, authenticated := s.resolveSession(ctx, r, req)
	if !authenticated {
		if strings.Contains(req.Prompt, "none") {
			return s.deny(ctx, req, client.ClientID, "login_required", "login required"), nil
		}
		return dto.AuthResult{
			Type:     dto.AuthResultNeedLogin,
			LoginURL: s.buildUIURL("/login", r),
		}, nil
	}

	// 8. Consent.
	if client.RequireConsent && !s.hasConsent(ctx, sess.UserID, client.ClientID, scopeRes.Granted) {
		if strings.Contains(req.Prompt, "none") {
			return s.deny(ctx, req, client.ClientID, "access_denied", "consent required"), nil
		}
		return dto.AuthResult{
			Type:       dto.AuthResultNeedConsent,
			ConsentURL: s.buildUIURL("/consent", r),
		}, nil
	}

	// 9. Issue the code.
	code, err := tokens.GenerateOpaqueToken(32)
	if err != nil {
		log.Error("code generation failed", logger.Err(err))
		return s.internalError(req), nil
	}

	rec := &repository.AuthorizationCode{
		Code:        code,
		ClientID:    client.ClientID,
		UserID:      sess.UserID,
		RedirectURI: req.RedirectURI,
		Scope:       grantedScope,
		Nonce:       req.Nonce,
		State:       req.State,
		ExpiresAt:   time.Now().Add(authCodeTTL),
	}
	if req.CodeChallenge != "" {
		method := pkce.MethodS256
		rec.CodeChallenge = &req.CodeChallenge
		rec.CodeChallengeMethod = &method
	}
	if err := s.dal.AuthCodes.Create(ctx, rec); err != nil {
		log.Error("code persistence failed", logger.Err(err))
		return s.internalError(req), nil
	}

	s.sink.Emit(ctx, audit.Event{
		Name: audit.EventAuthorizationGranted, ClientID: client.ClientID,
		UserID: sess.UserID, Scope: grantedScope,
	})
	log.Info("auth code issued", logger.UserID(sess.UserID), logger.ClientID(client.ClientID), logger.Scope(grantedScope))

	return dto.AuthResult{
		Type:        dto.AuthResultSuccess,
		Code:        code,
		State:       req.State,
		RedirectURI: req.RedirectURI,
	}, nil
}

// resolveSession looks up the login session from the cookie, honoring
// prompt=login and max_age re-authentication.
func (s *authorizeService) resolveSession(ctx context.Context, r *http.Request, req dto.AuthorizeRequest) (*dto.SessionPayload, bool) {
	if strings.Contains(req.Prompt, "login") {
		return nil, false
	}

	sess, ok := SessionFromRequest(ctx, s.cache, s.cookieName, r)
	if !ok {
		return nil, false
	}
	if req.MaxAge != "" {
		maxAge, err := strconv.ParseInt(req.MaxAge, 10, 64)
		if err != nil || maxAge < 0 {
			return nil, false
		}
		if time.Now().Unix()-sess.AuthTime > maxAge {
			return nil, false
		}
	}
	return sess, true
}

// hasConsent checks a non-expired, non-revoked grant covering the request.
func (s *authorizeService) hasConsent(ctx context.Context, userID, clientID string, requested []string) bool {
	consent, err := s.dal.Consents.Get(ctx, userID, clientID)
	if err != nil {
		return false
	}
	if consent.RevokedAt != nil {
		return false
	}
	if consent.ExpiresAt != nil && time.Now().After(*consent.ExpiresAt) {
		return false
	}
	return validation.IsSubset(requested, consent.Scopes)
}

// buildUIURL points the browser at the login/consent UI carrying the full
// original query so the flow can resume.
func (s *authorizeService) buildUIURL(path string, r *http.Request) string {
	u, err := url.Parse(s.uiBaseURL + path)
	if err != nil {
		return s.uiBaseURL + path
	}
	q := u.Query()
	q.Set("return_to", r.URL.RequestURI())
	u.RawQuery = q.Encode()
	return u.String()
}

// deny records the security-relevant denial in the audit trail and delivers
// the error by redirect to the already-validated redirect_uri.
func (s *authorizeService) deny(ctx context.Context, req dto.AuthorizeRequest, clientID, code, description string) dto.AuthResult {
	s.sink.Emit(ctx, audit.Event{
		Name: audit.EventAuthorizationDenied, ClientID: clientID,
		Detail: map[string]any{"error": code, "description": description},
	})
	return redirectError(req, code, description)
}

// internalError attempts a best-effort server_error redirect if the
// redirect_uri parses, else falls back to JSON 500.
func (s *authorizeService) internalError(req dto.AuthorizeRequest) dto.AuthResult {
	if _, err := url.ParseRequestURI(req.RedirectURI); err == nil {
		return redirectError(req, "server_error", "an unexpected error occurred")
	}
	return jsonError(http.StatusInternalServerError, "server_error", "an unexpected error occurred")
}

func jsonError(status int, code, description string) dto.AuthResult {
	return dto.AuthResult{
		Type:             dto.AuthResultJSONError,
		HTTPStatus:       status,
		ErrorCode:        code,
		ErrorDescription: description,
	}
}

func redirectError(req dto.AuthorizeRequest, code, description string) dto.AuthResult {
	return dto.AuthResult{
		Type:             dto.AuthResultRedirectError,
		RedirectURI:      req.RedirectURI,
		State:            req.State,
		ErrorCode:        code,
		ErrorDescription: description,
	}
}

func containsExact(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
