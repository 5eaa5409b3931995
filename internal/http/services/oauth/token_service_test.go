package oauth_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/llavero/internal/domain/repository"
	oauthsvc "github.com/dropDatabas3/llavero/internal/http/services/oauth"
	jwtx "github.com/dropDatabas3/llavero/internal/jwt"
	"github.com/dropDatabas3/llavero/internal/security/password"
	"github.com/dropDatabas3/llavero/internal/security/pkce"
	tokens "github.com/dropDatabas3/llavero/internal/security/token"
	"github.com/dropDatabas3/llavero/internal/store"
	"github.com/dropDatabas3/llavero/internal/store/adapters/memory"
)

const (
	testClientSecret = "s3cret-para-tests"
	testVerifier     = "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
)

type tokenFixture struct {
	dal *store.DAL
	iss *jwtx.Issuer
	svc oauthsvc.TokenService
}

func newTokenFixture(t *testing.T) *tokenFixture {
	t.Helper()

	dal := memory.NewDAL()

	hash, err := password.Hash(password.Default, testClientSecret)
	require.NoError(t, err)

	dal.Clients.(*memory.ClientRepo).Seed(repository.Client{
		ClientID:      "web-app",
		Name:          "Web App",
		Type:          repository.ClientTypeConfidential,
		SecretHash:    &hash,
		RedirectURIs:  []string{"https://app.test/callback"},
		AllowedScopes: []string{"openid", "profile", "email", "api:read"},
		GrantTypes:    []string{"authorization_code", "refresh_token", "client_credentials"},
		Active:        true,
	})
	dal.Clients.(*memory.ClientRepo).Seed(repository.Client{
		ClientID:      "spa",
		Type:          repository.ClientTypePublic,
		RedirectURIs:  []string{"https://spa.test/cb"},
		AllowedScopes: []string{"openid", "profile"},
		GrantTypes:    []string{"authorization_code", "refresh_token", "client_credentials"},
		RequirePKCE:   true,
		Active:        true,
	})
	dal.Users.(*memory.UserRepo).Seed(repository.User{
		ID: "user-1", Email: "ana@example.com", EmailVerified: true,
		Name: "Ana", Username: "ana", Active: true,
	})

	for _, name := range []string{"openid", "profile", "email", "api:read"} {
		_, err := dal.Scopes.Upsert(context.Background(), repository.ScopeInput{
			Name: name, Public: true, Active: true,
		})
		require.NoError(t, err)
	}

	ks := jwtx.NewKeystore(context.Background(), jwtx.NewMemorySigningKeyStore())
	require.NoError(t, ks.EnsureBootstrap())
	iss := jwtx.NewIssuer("https://auth.test", "llavero-api", ks)

	services := oauthsvc.NewServices(oauthsvc.Deps{DAL: dal, Issuer: iss})
	return &tokenFixture{dal: dal, iss: iss, svc: services.Token}
}

// seedCode inserta un authorization code listo para canjear.
func (f *tokenFixture) seedCode(t *testing.T, code string, mutate func(*repository.AuthorizationCode)) {
	t.Helper()
	challenge := pkce.Challenge(testVerifier)
	method := pkce.MethodS256
	rec := &repository.AuthorizationCode{
		Code:                code,
		ClientID:            "web-app",
		UserID:              "user-1",
		RedirectURI:         "https://app.test/callback",
		Scope:               "openid profile",
		CodeChallenge:       &challenge,
		CodeChallengeMethod: &method,
		Nonce:               "n-123",
		ExpiresAt:           time.Now().Add(10 * time.Minute),
	}
	if mutate != nil {
		mutate(rec)
	}
	require.NoError(t, f.dal.AuthCodes.Create(context.Background(), rec))
}

func TestExchangeAuthorizationCode_HappyPath(t *testing.T) {
	f := newTokenFixture(t)
	f.seedCode(t, "code-1", nil)

	resp, err := f.svc.ExchangeAuthorizationCode(context.Background(), oauthsvc.AuthCodeRequest{
		ClientID: "web-app", ClientSecret: testClientSecret,
		Code: "code-1", RedirectURI: "https://app.test/callback",
		CodeVerifier: testVerifier,
	})
	require.NoError(t, err)
	require.NotEmpty(t, resp.AccessToken)
	require.NotEmpty(t, resp.RefreshToken)
	require.Equal(t, "Bearer", resp.TokenType)
	require.Equal(t, "openid profile", resp.Scope)
	require.Greater(t, resp.ExpiresIn, int64(0))

	// scope openid en un flujo de usuario => ID token con nonce.
	require.NotEmpty(t, resp.IDToken)
	idClaims, err := f.iss.Verify(resp.IDToken)
	require.NoError(t, err)
	require.Equal(t, "n-123", idClaims.Claims["nonce"])
	require.Equal(t, "user-1", idClaims.Subject)

	// El access token sale verificable y con token_use correcto.
	v, err := f.iss.Verify(resp.AccessToken)
	require.NoError(t, err)
	require.Equal(t, jwtx.UseAccess, v.TokenUse)
	require.Equal(t, "user-1", v.Subject)

	// Persistido por hash, nunca en crudo.
	rec, err := f.dal.Tokens.GetByHash(context.Background(), tokens.SHA256Base64URL(resp.AccessToken))
	require.NoError(t, err)
	require.Equal(t, repository.TokenTypeAccess, rec.TokenType)
}

func TestExchangeAuthorizationCode_Replay(t *testing.T) {
	f := newTokenFixture(t)
	f.seedCode(t, "code-1", nil)
	ctx := context.Background()

	req := oauthsvc.AuthCodeRequest{
		ClientID: "web-app", ClientSecret: testClientSecret,
		Code: "code-1", RedirectURI: "https://app.test/callback",
		CodeVerifier: testVerifier,
	}
	_, err := f.svc.ExchangeAuthorizationCode(ctx, req)
	require.NoError(t, err)

	_, err = f.svc.ExchangeAuthorizationCode(ctx, req)
	require.ErrorIs(t, err, oauthsvc.ErrTokenInvalidGrant)
	require.Equal(t, oauthsvc.ReasonAuthCodeUsed, oauthsvc.ReasonOf(err))

	// El replay borra el registro: la tercera vez ni aparece.
	_, err = f.svc.ExchangeAuthorizationCode(ctx, req)
	require.Equal(t, oauthsvc.ReasonAuthCodeNotFound, oauthsvc.ReasonOf(err))
}

func TestExchangeAuthorizationCode_ConcurrentRedemption(t *testing.T) {
	f := newTokenFixture(t)
	f.seedCode(t, "code-1", nil)

	req := oauthsvc.AuthCodeRequest{
		ClientID: "web-app", ClientSecret: testClientSecret,
		Code: "code-1", RedirectURI: "https://app.test/callback",
		CodeVerifier: testVerifier,
	}

	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.ExchangeAuthorizationCode(context.Background(), req)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var ok, failed int
	for err := range errs {
		if err == nil {
			ok++
		} else {
			failed++
		}
	}
	require.Equal(t, 1, ok, "exactly one redemption must win")
	require.Equal(t, n-1, failed)
}

func TestExchangeAuthorizationCode_PKCEFailure(t *testing.T) {
	f := newTokenFixture(t)
	f.seedCode(t, "code-1", nil)

	_, err := f.svc.ExchangeAuthorizationCode(context.Background(), oauthsvc.AuthCodeRequest{
		ClientID: "web-app", ClientSecret: testClientSecret,
		Code: "code-1", RedirectURI: "https://app.test/callback",
		CodeVerifier: "wrong-verifier-wrong-verifier-wrong-verifier-wrong",
	})
	require.ErrorIs(t, err, oauthsvc.ErrTokenInvalidGrant)
	require.Equal(t, oauthsvc.ReasonPKCEVerificationFailed, oauthsvc.ReasonOf(err))

	// El verifier ausente con challenge guardado es invalid_request.
	f.seedCode(t, "code-2", nil)
	_, err = f.svc.ExchangeAuthorizationCode(context.Background(), oauthsvc.AuthCodeRequest{
		ClientID: "web-app", ClientSecret: testClientSecret,
		Code: "code-2", RedirectURI: "https://app.test/callback",
	})
	require.ErrorIs(t, err, oauthsvc.ErrTokenInvalidRequest)
}

func TestExchangeAuthorizationCode_Expired(t *testing.T) {
	f := newTokenFixture(t)
	f.seedCode(t, "code-1", func(c *repository.AuthorizationCode) {
		c.ExpiresAt = time.Now().Add(-time.Minute)
	})

	_, err := f.svc.ExchangeAuthorizationCode(context.Background(), oauthsvc.AuthCodeRequest{
		ClientID: "web-app", ClientSecret: testClientSecret,
		Code: "code-1", RedirectURI: "https://app.test/callback",
		CodeVerifier: testVerifier,
	})
	require.Equal(t, oauthsvc.ReasonAuthCodeExpired, oauthsvc.ReasonOf(err))
}

func TestExchangeAuthorizationCode_ClientMismatch(t *testing.T) {
	f := newTokenFixture(t)
	f.seedCode(t, "code-1", func(c *repository.AuthorizationCode) {
		c.ClientID = "spa"
		c.RedirectURI = "https://spa.test/cb"
	})

	_, err := f.svc.ExchangeAuthorizationCode(context.Background(), oauthsvc.AuthCodeRequest{
		ClientID: "web-app", ClientSecret: testClientSecret,
		Code: "code-1", RedirectURI: "https://spa.test/cb",
		CodeVerifier: testVerifier,
	})
	require.Equal(t, oauthsvc.ReasonAuthCodeClientMismatch, oauthsvc.ReasonOf(err))
}

func TestExchangeAuthorizationCode_RedirectMismatch(t *testing.T) {
	f := newTokenFixture(t)
	f.seedCode(t, "code-1", nil)

	_, err := f.svc.ExchangeAuthorizationCode(context.Background(), oauthsvc.AuthCodeRequest{
		ClientID: "web-app", ClientSecret: testClientSecret,
		Code: "code-1", RedirectURI: "https://evil.test/callback",
		CodeVerifier: testVerifier,
	})
	require.Equal(t, oauthsvc.ReasonAuthCodeRedirectURI, oauthsvc.ReasonOf(err))
}

func TestExchangeAuthorizationCode_BadClientSecret(t *testing.T) {
	f := newTokenFixture(t)
	f.seedCode(t, "code-1", nil)

	_, err := f.svc.ExchangeAuthorizationCode(context.Background(), oauthsvc.AuthCodeRequest{
		ClientID: "web-app", ClientSecret: "nope",
		Code: "code-1", RedirectURI: "https://app.test/callback",
		CodeVerifier: testVerifier,
	})
	require.ErrorIs(t, err, oauthsvc.ErrTokenInvalidClient)
}

// ─── refresh_token ───

func (f *tokenFixture) redeem(t *testing.T, code string) *oauthsvc.TokenResponse {
	t.Helper()
	f.seedCode(t, code, nil)
	resp, err := f.svc.ExchangeAuthorizationCode(context.Background(), oauthsvc.AuthCodeRequest{
		ClientID: "web-app", ClientSecret: testClientSecret,
		Code: code, RedirectURI: "https://app.test/callback",
		CodeVerifier: testVerifier,
	})
	require.NoError(t, err)
	return resp
}

func TestExchangeRefreshToken_Rotation(t *testing.T) {
	f := newTokenFixture(t)
	first := f.redeem(t, "code-1")
	ctx := context.Background()

	second, err := f.svc.ExchangeRefreshToken(ctx, oauthsvc.RefreshTokenRequest{
		ClientID: "web-app", ClientSecret: testClientSecret,
		RefreshToken: first.RefreshToken,
	})
	require.NoError(t, err)
	require.NotEmpty(t, second.RefreshToken)
	require.NotEqual(t, first.RefreshToken, second.RefreshToken)
	require.Equal(t, "openid profile", second.Scope)

	// El refresh viejo quedó revocado y el nuevo apunta a su registro.
	oldRec, err := f.dal.Tokens.GetByHash(ctx, tokens.SHA256Base64URL(first.RefreshToken))
	require.NoError(t, err)
	require.NotNil(t, oldRec.RevokedAt)

	newRec, err := f.dal.Tokens.GetByHash(ctx, tokens.SHA256Base64URL(second.RefreshToken))
	require.NoError(t, err)
	require.Nil(t, newRec.RevokedAt)
	require.NotNil(t, newRec.RotatedFrom)
	require.Equal(t, oldRec.ID, *newRec.RotatedFrom)
}

func TestExchangeRefreshToken_ReuseRevokesFamily(t *testing.T) {
	f := newTokenFixture(t)
	first := f.redeem(t, "code-1")
	ctx := context.Background()

	second, err := f.svc.ExchangeRefreshToken(ctx, oauthsvc.RefreshTokenRequest{
		ClientID: "web-app", ClientSecret: testClientSecret,
		RefreshToken: first.RefreshToken,
	})
	require.NoError(t, err)

	// Reusar el refresh rotado dispara la revocación de toda la familia.
	_, err = f.svc.ExchangeRefreshToken(ctx, oauthsvc.RefreshTokenRequest{
		ClientID: "web-app", ClientSecret: testClientSecret,
		RefreshToken: first.RefreshToken,
	})
	require.ErrorIs(t, err, oauthsvc.ErrTokenInvalidGrant)
	require.Equal(t, oauthsvc.ReasonRefreshTokenReused, oauthsvc.ReasonOf(err))

	// El par nuevo también cayó.
	rec, err := f.dal.Tokens.GetByHash(ctx, tokens.SHA256Base64URL(second.RefreshToken))
	require.NoError(t, err)
	require.NotNil(t, rec.RevokedAt)

	_, err = f.svc.ExchangeRefreshToken(ctx, oauthsvc.RefreshTokenRequest{
		ClientID: "web-app", ClientSecret: testClientSecret,
		RefreshToken: second.RefreshToken,
	})
	require.ErrorIs(t, err, oauthsvc.ErrTokenInvalidGrant)
}

// failingBlacklist simula la blacklist con el storage caído.
type failingBlacklist struct{ repository.BlacklistRepository }

func (failingBlacklist) Contains(context.Context, string) (bool, error) {
	return false, errors.New("storage down")
}

func TestExchangeRefreshToken_BlacklistErrorFailsClosed(t *testing.T) {
	f := newTokenFixture(t)
	first := f.redeem(t, "code-1")

	f.dal.Blacklist = failingBlacklist{}

	_, err := f.svc.ExchangeRefreshToken(context.Background(), oauthsvc.RefreshTokenRequest{
		ClientID: "web-app", ClientSecret: testClientSecret,
		RefreshToken: first.RefreshToken,
	})
	require.ErrorIs(t, err, oauthsvc.ErrTokenInvalidGrant)
	require.Equal(t, oauthsvc.ReasonRefreshTokenRevoked, oauthsvc.ReasonOf(err))
}

func TestExchangeRefreshToken_ScopeNarrowing(t *testing.T) {
	f := newTokenFixture(t)
	first := f.redeem(t, "code-1")
	ctx := context.Background()

	resp, err := f.svc.ExchangeRefreshToken(ctx, oauthsvc.RefreshTokenRequest{
		ClientID: "web-app", ClientSecret: testClientSecret,
		RefreshToken: first.RefreshToken, Scope: "openid",
	})
	require.NoError(t, err)
	require.Equal(t, "openid", resp.Scope)

	// Ampliar el scope respecto del grant original se rechaza.
	_, err = f.svc.ExchangeRefreshToken(ctx, oauthsvc.RefreshTokenRequest{
		ClientID: "web-app", ClientSecret: testClientSecret,
		RefreshToken: resp.RefreshToken, Scope: "openid email",
	})
	require.ErrorIs(t, err, oauthsvc.ErrTokenInvalidScope)
}

func TestExchangeRefreshToken_NotARefreshToken(t *testing.T) {
	f := newTokenFixture(t)
	first := f.redeem(t, "code-1")

	_, err := f.svc.ExchangeRefreshToken(context.Background(), oauthsvc.RefreshTokenRequest{
		ClientID: "web-app", ClientSecret: testClientSecret,
		RefreshToken: first.AccessToken, // access en lugar de refresh
	})
	require.Equal(t, oauthsvc.ReasonRefreshTokenMalformed, oauthsvc.ReasonOf(err))
}

func TestExchangeRefreshToken_ForeignClient(t *testing.T) {
	f := newTokenFixture(t)
	first := f.redeem(t, "code-1")

	// El refresh de web-app presentado por spa: not found, sin filtrar de quién es.
	_, err := f.svc.ExchangeRefreshToken(context.Background(), oauthsvc.RefreshTokenRequest{
		ClientID:     "spa",
		RefreshToken: first.RefreshToken,
	})
	require.Equal(t, oauthsvc.ReasonRefreshTokenNotFound, oauthsvc.ReasonOf(err))
}

// ─── client_credentials ───

func TestExchangeClientCredentials_HappyPath(t *testing.T) {
	f := newTokenFixture(t)

	resp, err := f.svc.ExchangeClientCredentials(context.Background(), oauthsvc.ClientCredentialsRequest{
		ClientID: "web-app", ClientSecret: testClientSecret, Scope: "api:read",
	})
	require.NoError(t, err)
	require.NotEmpty(t, resp.AccessToken)
	require.Empty(t, resp.RefreshToken, "client_credentials must not issue refresh tokens")

	v, err := f.iss.Verify(resp.AccessToken)
	require.NoError(t, err)
	require.Empty(t, v.Subject)
	require.Equal(t, "web-app", v.ClientID)
}

func TestExchangeClientCredentials_PublicClientDenied(t *testing.T) {
	f := newTokenFixture(t)

	_, err := f.svc.ExchangeClientCredentials(context.Background(), oauthsvc.ClientCredentialsRequest{
		ClientID: "spa",
	})
	require.ErrorIs(t, err, oauthsvc.ErrTokenUnauthorizedClient)
	require.Equal(t, oauthsvc.ReasonPublicClientCredentials, oauthsvc.ReasonOf(err))
}

func TestExchangeClientCredentials_ScopeNotAllowed(t *testing.T) {
	f := newTokenFixture(t)

	_, err := f.svc.ExchangeClientCredentials(context.Background(), oauthsvc.ClientCredentialsRequest{
		ClientID: "web-app", ClientSecret: testClientSecret, Scope: "api:write",
	})
	require.ErrorIs(t, err, oauthsvc.ErrTokenInvalidScope)
}
