package oauth_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/llavero/internal/audit"
	"github.com/dropDatabas3/llavero/internal/cache"
	"github.com/dropDatabas3/llavero/internal/domain/repository"
	dto "github.com/dropDatabas3/llavero/internal/http/dto/oauth"
	oauthsvc "github.com/dropDatabas3/llavero/internal/http/services/oauth"
	"github.com/dropDatabas3/llavero/internal/security/pkce"
	tokens "github.com/dropDatabas3/llavero/internal/security/token"
	"github.com/dropDatabas3/llavero/internal/store"
	"github.com/dropDatabas3/llavero/internal/store/adapters/memory"
	"github.com/dropDatabas3/llavero/internal/validation"
)

type authorizeFixture struct {
	dal   *store.DAL
	cache cache.Client
	svc   oauthsvc.AuthorizeService
}

func newAuthorizeFixture(t *testing.T) *authorizeFixture {
	t.Helper()

	dal := memory.NewDAL()
	dal.Clients.(*memory.ClientRepo).Seed(repository.Client{
		ClientID:      "spa",
		Type:          repository.ClientTypePublic,
		RedirectURIs:  []string{"https://spa.test/cb", "https://spa.test/cb2"},
		AllowedScopes: []string{"openid", "profile"},
		GrantTypes:    []string{"authorization_code", "refresh_token"},
		RequirePKCE:   true,
		Active:        true,
	})
	dal.Clients.(*memory.ClientRepo).Seed(repository.Client{
		ClientID:       "legacy",
		Type:           repository.ClientTypeConfidential,
		RedirectURIs:   []string{"https://legacy.test/cb"},
		AllowedScopes:  []string{"openid", "profile"},
		GrantTypes:     []string{"authorization_code"},
		RequireConsent: true,
		Active:         true,
	})
	dal.Users.(*memory.UserRepo).Seed(repository.User{
		ID: "user-1", Email: "ana@example.com", Name: "Ana", Active: true,
	})
	for _, name := range []string{"openid", "profile"} {
		_, err := dal.Scopes.Upsert(context.Background(), repository.ScopeInput{
			Name: name, Public: true, Active: true,
		})
		require.NoError(t, err)
	}

	c := cache.NewMemory("test")
	svc := oauthsvc.NewAuthorizeService(oauthsvc.AuthorizeDeps{
		DAL:    dal,
		Cache:  c,
		Scopes: validation.NewScopeValidator(dal.Scopes),
	})
	return &authorizeFixture{dal: dal, cache: c, svc: svc}
}

// login crea una sesión en cache y devuelve la cookie que la referencia.
func (f *authorizeFixture) login(t *testing.T, userID string) *http.Cookie {
	t.Helper()
	sid, err := tokens.GenerateOpaqueToken(32)
	require.NoError(t, err)
	payload, _ := json.Marshal(dto.SessionPayload{
		UserID:   userID,
		AuthTime: time.Now().Unix(),
		Expires:  time.Now().Add(time.Hour).Unix(),
	})
	err = f.cache.Set(context.Background(), "sid:"+tokens.SHA256Base64URL(sid), string(payload), time.Hour)
	require.NoError(t, err)
	return &http.Cookie{Name: "llavero_sid", Value: sid}
}

func baseRequest() dto.AuthorizeRequest {
	return dto.AuthorizeRequest{
		ResponseType:        "code",
		ClientID:            "spa",
		RedirectURI:         "https://spa.test/cb",
		Scope:               "openid profile",
		State:               "xyz",
		Nonce:               "n-1",
		CodeChallenge:       pkce.Challenge("dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"),
		CodeChallengeMethod: pkce.MethodS256,
	}
}

func httpReq(cookies ...*http.Cookie) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/oauth/authorize?client_id=spa", nil)
	for _, ck := range cookies {
		r.AddCookie(ck)
	}
	return r
}

// recordingSink acumula los eventos emitidos durante el test.
type recordingSink struct{ events []audit.Event }

func (s *recordingSink) Emit(_ context.Context, ev audit.Event) { s.events = append(s.events, ev) }

// failingClientRepo simula el storage caído en el lookup de clients.
type failingClientRepo struct{ repository.ClientRepository }

func (failingClientRepo) GetByClientID(context.Context, string) (*repository.Client, error) {
	return nil, errors.New("storage down")
}

func TestAuthorize_MissingParams(t *testing.T) {
	f := newAuthorizeFixture(t)
	req := baseRequest()
	req.ClientID = ""

	res, err := f.svc.Authorize(context.Background(), httpReq(), req)
	require.NoError(t, err)
	require.Equal(t, dto.AuthResultJSONError, res.Type)
	require.Equal(t, http.StatusBadRequest, res.HTTPStatus)
	require.Equal(t, "invalid_request", res.ErrorCode)
}

func TestAuthorize_UnsupportedResponseType(t *testing.T) {
	f := newAuthorizeFixture(t)
	req := baseRequest()
	req.ResponseType = "token"

	res, err := f.svc.Authorize(context.Background(), httpReq(), req)
	require.NoError(t, err)
	require.Equal(t, dto.AuthResultJSONError, res.Type)
	require.Equal(t, "unsupported_response_type", res.ErrorCode)
}

func TestAuthorize_UnknownClient(t *testing.T) {
	f := newAuthorizeFixture(t)
	req := baseRequest()
	req.ClientID = "ghost"

	res, err := f.svc.Authorize(context.Background(), httpReq(), req)
	require.NoError(t, err)
	require.Equal(t, dto.AuthResultJSONError, res.Type)
	require.Equal(t, "invalid_client", res.ErrorCode)
}

func TestAuthorize_UnregisteredRedirectURI(t *testing.T) {
	f := newAuthorizeFixture(t)
	req := baseRequest()
	req.RedirectURI = "https://evil.test/cb"

	res, err := f.svc.Authorize(context.Background(), httpReq(), req)
	require.NoError(t, err)
	require.Equal(t, dto.AuthResultRedirectError, res.Type)
	// Nunca al URI del atacante: siempre al primero registrado.
	require.Equal(t, "https://spa.test/cb", res.RedirectURI)
	require.Equal(t, "invalid_request", res.ErrorCode)
	require.Equal(t, "xyz", res.State)
}

func TestAuthorize_InvalidScope(t *testing.T) {
	f := newAuthorizeFixture(t)
	req := baseRequest()
	req.Scope = "openid admin:all"

	res, err := f.svc.Authorize(context.Background(), httpReq(), req)
	require.NoError(t, err)
	require.Equal(t, dto.AuthResultRedirectError, res.Type)
	require.Equal(t, "https://spa.test/cb", res.RedirectURI)
	require.Equal(t, "invalid_scope", res.ErrorCode)
}

func TestAuthorize_DenialsEmitAuditEvent(t *testing.T) {
	f := newAuthorizeFixture(t)
	sink := &recordingSink{}
	svc := oauthsvc.NewAuthorizeService(oauthsvc.AuthorizeDeps{
		DAL:    f.dal,
		Cache:  f.cache,
		Scopes: validation.NewScopeValidator(f.dal.Scopes),
		Audit:  sink,
	})

	// Scope inválido: exactamente un evento de denegación.
	req := baseRequest()
	req.Scope = "openid admin:all"
	res, err := svc.Authorize(context.Background(), httpReq(), req)
	require.NoError(t, err)
	require.Equal(t, dto.AuthResultRedirectError, res.Type)
	require.Len(t, sink.events, 1)
	require.Equal(t, audit.EventAuthorizationDenied, sink.events[0].Name)
	require.Equal(t, "spa", sink.events[0].ClientID)
	require.Equal(t, "invalid_scope", sink.events[0].Detail["error"])

	// prompt=none sin sesión: login_required también queda auditado.
	req = baseRequest()
	req.Prompt = "none"
	res, err = svc.Authorize(context.Background(), httpReq(), req)
	require.NoError(t, err)
	require.Equal(t, "login_required", res.ErrorCode)
	require.Len(t, sink.events, 2)
	require.Equal(t, audit.EventAuthorizationDenied, sink.events[1].Name)
	require.Equal(t, "login_required", sink.events[1].Detail["error"])
}

func TestAuthorize_ClientLookupFailureNeverRedirects(t *testing.T) {
	f := newAuthorizeFixture(t)
	f.dal.Clients = failingClientRepo{}

	// El redirect_uri todavía no fue validado contra el registro del
	// client: el error tiene que salir como JSON, nunca por redirect.
	res, err := f.svc.Authorize(context.Background(), httpReq(), baseRequest())
	require.NoError(t, err)
	require.Equal(t, dto.AuthResultJSONError, res.Type)
	require.Equal(t, http.StatusInternalServerError, res.HTTPStatus)
	require.Equal(t, "server_error", res.ErrorCode)
	require.Empty(t, res.RedirectURI)
}

func TestAuthorize_PKCERequiredForPublicClient(t *testing.T) {
	f := newAuthorizeFixture(t)
	req := baseRequest()
	req.CodeChallenge = ""
	req.CodeChallengeMethod = ""

	res, err := f.svc.Authorize(context.Background(), httpReq(), req)
	require.NoError(t, err)
	require.Equal(t, dto.AuthResultRedirectError, res.Type)
	require.Equal(t, "invalid_request", res.ErrorCode)
}

func TestAuthorize_PlainMethodRejected(t *testing.T) {
	f := newAuthorizeFixture(t)
	req := baseRequest()
	req.CodeChallengeMethod = "plain"

	res, err := f.svc.Authorize(context.Background(), httpReq(), req)
	require.NoError(t, err)
	require.Equal(t, dto.AuthResultRedirectError, res.Type)
	require.Equal(t, "invalid_request", res.ErrorCode)
}

func TestAuthorize_NeedLogin(t *testing.T) {
	f := newAuthorizeFixture(t)

	res, err := f.svc.Authorize(context.Background(), httpReq(), baseRequest())
	require.NoError(t, err)
	require.Equal(t, dto.AuthResultNeedLogin, res.Type)
	require.Contains(t, res.LoginURL, "/login")
	require.Contains(t, res.LoginURL, "return_to=")
}

func TestAuthorize_PromptNoneWithoutSession(t *testing.T) {
	f := newAuthorizeFixture(t)
	req := baseRequest()
	req.Prompt = "none"

	res, err := f.svc.Authorize(context.Background(), httpReq(), req)
	require.NoError(t, err)
	require.Equal(t, dto.AuthResultRedirectError, res.Type)
	require.Equal(t, "login_required", res.ErrorCode)
}

func TestAuthorize_PromptLoginForcesReauth(t *testing.T) {
	f := newAuthorizeFixture(t)
	ck := f.login(t, "user-1")
	req := baseRequest()
	req.Prompt = "login"

	res, err := f.svc.Authorize(context.Background(), httpReq(ck), req)
	require.NoError(t, err)
	require.Equal(t, dto.AuthResultNeedLogin, res.Type)
}

func TestAuthorize_MaxAgeExpired(t *testing.T) {
	f := newAuthorizeFixture(t)

	// Sesión autenticada hace una hora con max_age=60.
	sid, err := tokens.GenerateOpaqueToken(32)
	require.NoError(t, err)
	payload, _ := json.Marshal(dto.SessionPayload{
		UserID:   "user-1",
		AuthTime: time.Now().Add(-time.Hour).Unix(),
		Expires:  time.Now().Add(time.Hour).Unix(),
	})
	require.NoError(t, f.cache.Set(context.Background(), "sid:"+tokens.SHA256Base64URL(sid), string(payload), time.Hour))

	req := baseRequest()
	req.MaxAge = "60"
	res, err := f.svc.Authorize(context.Background(), httpReq(&http.Cookie{Name: "llavero_sid", Value: sid}), req)
	require.NoError(t, err)
	require.Equal(t, dto.AuthResultNeedLogin, res.Type)
}

func TestAuthorize_HappyPath(t *testing.T) {
	f := newAuthorizeFixture(t)
	ck := f.login(t, "user-1")
	req := baseRequest()

	res, err := f.svc.Authorize(context.Background(), httpReq(ck), req)
	require.NoError(t, err)
	require.Equal(t, dto.AuthResultSuccess, res.Type)
	require.NotEmpty(t, res.Code)
	require.Equal(t, "xyz", res.State)
	require.Equal(t, "https://spa.test/cb", res.RedirectURI)

	rec, err := f.dal.AuthCodes.GetByCode(context.Background(), res.Code)
	require.NoError(t, err)
	require.Equal(t, "spa", rec.ClientID)
	require.Equal(t, "user-1", rec.UserID)
	require.Equal(t, "openid profile", rec.Scope)
	require.Equal(t, "n-1", rec.Nonce)
	require.False(t, rec.Used)
	require.NotNil(t, rec.CodeChallenge)
	require.Equal(t, req.CodeChallenge, *rec.CodeChallenge)
	require.Equal(t, pkce.MethodS256, *rec.CodeChallengeMethod)
	require.WithinDuration(t, time.Now().Add(10*time.Minute), rec.ExpiresAt, time.Minute)
}

func TestAuthorize_ConsentFlow(t *testing.T) {
	f := newAuthorizeFixture(t)
	ck := f.login(t, "user-1")
	ctx := context.Background()

	req := baseRequest()
	req.ClientID = "legacy"
	req.RedirectURI = "https://legacy.test/cb"
	req.CodeChallenge = ""
	req.CodeChallengeMethod = ""

	// Sin consentimiento previo: a la UI de consent.
	res, err := f.svc.Authorize(ctx, httpReq(ck), req)
	require.NoError(t, err)
	require.Equal(t, dto.AuthResultNeedConsent, res.Type)
	require.Contains(t, res.ConsentURL, "/consent")

	// prompt=none sin consentimiento: access_denied por redirect.
	silent := req
	silent.Prompt = "none"
	res, err = f.svc.Authorize(ctx, httpReq(ck), silent)
	require.NoError(t, err)
	require.Equal(t, dto.AuthResultRedirectError, res.Type)
	require.Equal(t, "access_denied", res.ErrorCode)

	// Con consentimiento otorgado el flujo completa.
	_, err = f.dal.Consents.Upsert(ctx, "user-1", "legacy", []string{"openid", "profile"}, nil)
	require.NoError(t, err)

	res, err = f.svc.Authorize(ctx, httpReq(ck), req)
	require.NoError(t, err)
	require.Equal(t, dto.AuthResultSuccess, res.Type)
}
