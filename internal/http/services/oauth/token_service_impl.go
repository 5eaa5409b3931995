package oauth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dropDatabas3/llavero/internal/audit"
	"github.com/dropDatabas3/llavero/internal/domain/repository"
	jwtx "github.com/dropDatabas3/llavero/internal/jwt"
	"github.com/dropDatabas3/llavero/internal/metrics"
	"github.com/dropDatabas3/llavero/internal/observability/logger"
	"github.com/dropDatabas3/llavero/internal/security/pkce"
	tokens "github.com/dropDatabas3/llavero/internal/security/token"
	"github.com/dropDatabas3/llavero/internal/store"
	"github.com/dropDatabas3/llavero/internal/validation"
)

// TokenDeps contains dependencies for TokenService.
type TokenDeps struct {
	DAL       *store.DAL
	Issuer    *jwtx.Issuer
	ClientAut *ClientAuthenticator
	Scopes    *validation.ScopeValidator
	Audit     audit.Sink
}

type tokenService struct {
	dal    *store.DAL
	issuer *jwtx.Issuer
	auth   *ClientAuthenticator
	scopes *validation.ScopeValidator
	sink   audit.Sink
}

// NewTokenService creates the token service.
func NewTokenService(d TokenDeps) TokenService {
	sink := d.Audit
	if sink == nil {
		sink = audit.NopSink{}
	}
	return &tokenService{
		dal:    d.DAL,
		issuer: d.Issuer,
		auth:   d.ClientAut,
		scopes: d.Scopes,
		sink:   sink,
	}
}

// ─── authorization_code ───

func (s *tokenService) ExchangeAuthorizationCode(ctx context.Context, req AuthCodeRequest) (*TokenResponse, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("TokenService.ExchangeAuthorizationCode"))

	// Client authentication is mandatory before touching the code.
	client, err := s.auth.Authenticate(ctx, req.ClientID, req.ClientSecret)
	if err != nil {
		s.sink.Emit(ctx, audit.Event{Name: audit.EventClientAuthFailed, ClientID: req.ClientID, Grant: "authorization_code"})
		return nil, err
	}
	if !client.AllowsGrant("authorization_code") {
		return nil, failGrant(ErrTokenUnauthorizedClient, ReasonGrantTypeNotAllowed, "client not authorized for this grant type")
	}

	if req.Code == "" || req.RedirectURI == "" {
		return nil, failGrant(ErrTokenInvalidRequest, "", "code and redirect_uri are required")
	}

	code, err := s.dal.AuthCodes.GetByCode(ctx, req.Code)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, failGrant(ErrTokenInvalidGrant, ReasonAuthCodeNotFound, "authorization code not found")
		}
		return nil, failGrant(ErrTokenServerError, "", "code lookup failed")
	}

	// Replay probe: a used code is deleted on the second sighting.
	if code.Used {
		_ = s.dal.AuthCodes.Delete(ctx, req.Code)
		metrics.CodeReplaysTotal.Inc()
		s.sink.Emit(ctx, audit.Event{Name: audit.EventCodeReplayed, ClientID: req.ClientID, UserID: code.UserID})
		log.Warn("authorization code replay detected", logger.ClientID(req.ClientID))
		return nil, failGrant(ErrTokenInvalidGrant, ReasonAuthCodeUsed, "authorization code already used")
	}
	if time.Now().After(code.ExpiresAt) {
		_ = s.dal.AuthCodes.Delete(ctx, req.Code)
		return nil, failGrant(ErrTokenInvalidGrant, ReasonAuthCodeExpired, "authorization code expired")
	}
	if code.ClientID != client.ClientID {
		return nil, failGrant(ErrTokenInvalidGrant, ReasonAuthCodeClientMismatch, "authorization code was issued to another client")
	}
	if code.RedirectURI != req.RedirectURI {
		return nil, failGrant(ErrTokenInvalidGrant, ReasonAuthCodeRedirectURI, "redirect_uri does not match")
	}

	// PKCE: verify against the stored challenge before consuming the code.
	if code.CodeChallenge != nil && *code.CodeChallenge != "" {
		if req.CodeVerifier == "" {
			return nil, failGrant(ErrTokenInvalidRequest, ReasonPKCEVerificationFailed, "code_verifier required")
		}
		if err := pkce.Verify(req.CodeVerifier, *code.CodeChallenge); err != nil {
			return nil, failGrant(ErrTokenInvalidGrant, ReasonPKCEVerificationFailed, "PKCE verification failed")
		}
	} else if client.RequirePKCE {
		// Code without challenge for a PKCE-required client should not exist.
		return nil, failGrant(ErrTokenInvalidGrant, ReasonPKCEVerificationFailed, "PKCE required")
	}

	// Single-use transition. Under concurrent redemption exactly one
	// caller wins the CAS; the rest land here.
	won, err := s.dal.AuthCodes.MarkUsed(ctx, req.Code)
	if err != nil {
		return nil, failGrant(ErrTokenServerError, "", "code redemption failed")
	}
	if !won {
		_ = s.dal.AuthCodes.Delete(ctx, req.Code)
		metrics.CodeReplaysTotal.Inc()
		s.sink.Emit(ctx, audit.Event{Name: audit.EventCodeReplayed, ClientID: req.ClientID, UserID: code.UserID})
		return nil, failGrant(ErrTokenInvalidGrant, ReasonAuthCodeUsed, "authorization code already used")
	}
	s.sink.Emit(ctx, audit.Event{Name: audit.EventCodeRedeemed, ClientID: req.ClientID, UserID: code.UserID, Scope: code.Scope})

	resp, err := s.mintPair(ctx, client, code.UserID, code.Scope, nil, "authorization_code")
	if err != nil {
		return nil, err
	}

	// OIDC: scope openid on a user flow gets an ID token.
	if hasScope(code.Scope, "openid") && code.UserID != "" {
		if idToken, err := s.mintIDToken(ctx, client, code.UserID, code.Scope, code.Nonce); err == nil {
			resp.IDToken = idToken
		} else {
			log.Warn("id token issuance failed", logger.Err(err))
		}
	}
	return resp, nil
}

// ─── refresh_token ───

func (s *tokenService) ExchangeRefreshToken(ctx context.Context, req RefreshTokenRequest) (*TokenResponse, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("TokenService.ExchangeRefreshToken"))

	client, err := s.auth.Authenticate(ctx, req.ClientID, req.ClientSecret)
	if err != nil {
		s.sink.Emit(ctx, audit.Event{Name: audit.EventClientAuthFailed, ClientID: req.ClientID, Grant: "refresh_token"})
		return nil, err
	}
	if !client.AllowsGrant("refresh_token") {
		return nil, failGrant(ErrTokenUnauthorizedClient, ReasonGrantTypeNotAllowed, "client not authorized for this grant type")
	}
	if req.RefreshToken == "" {
		return nil, failGrant(ErrTokenInvalidRequest, "", "refresh_token is required")
	}

	// Structural verification first: signature, exp, iss, aud.
	verified, err := s.issuer.Verify(req.RefreshToken)
	if err != nil {
		switch {
		case errors.Is(err, jwtx.ErrTokenExpired):
			return nil, failGrant(ErrTokenInvalidGrant, ReasonRefreshTokenExpired, "refresh token expired")
		default:
			return nil, failGrant(ErrTokenInvalidGrant, ReasonRefreshTokenMalformed, "refresh token invalid")
		}
	}
	if verified.TokenUse != jwtx.UseRefresh {
		return nil, failGrant(ErrTokenInvalidGrant, ReasonRefreshTokenMalformed, "not a refresh token")
	}

	// Blacklist wins over everything else. Fail closed on storage error.
	if listed, err := s.dal.Blacklist.Contains(ctx, verified.JTI); err != nil || listed {
		return nil, failGrant(ErrTokenInvalidGrant, ReasonRefreshTokenRevoked, "refresh token revoked")
	}

	hash := tokens.SHA256Base64URL(req.RefreshToken)
	rec, err := s.dal.Tokens.GetByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, failGrant(ErrTokenInvalidGrant, ReasonRefreshTokenNotFound, "refresh token not found")
		}
		return nil, failGrant(ErrTokenServerError, "", "token lookup failed")
	}
	if rec.ClientID != client.ClientID {
		return nil, failGrant(ErrTokenInvalidGrant, ReasonRefreshTokenNotFound, "refresh token not found")
	}
	if time.Now().After(rec.ExpiresAt) {
		return nil, failGrant(ErrTokenInvalidGrant, ReasonRefreshTokenExpired, "refresh token expired")
	}

	// A rotated-out token coming back is a stolen-token signal: kill the
	// whole family for this (user, client).
	if rec.RevokedAt != nil {
		n, _ := s.dal.Tokens.RevokeFamily(ctx, rec.UserID, rec.ClientID)
		metrics.RefreshReplaysTotal.Inc()
		s.sink.Emit(ctx, audit.Event{
			Name: audit.EventRefreshReplayed, ClientID: client.ClientID, UserID: rec.UserID,
			JTI: rec.JTI, Detail: map[string]any{"tokens_revoked": n},
		})
		log.Warn("refresh token reuse detected, family revoked",
			logger.ClientID(client.ClientID), logger.UserID(rec.UserID), logger.Count(n))
		return nil, failGrant(ErrTokenInvalidGrant, ReasonRefreshTokenReused, "refresh token reuse detected")
	}

	// Optional narrowing: requested scope must be a non-empty subset.
	grantScope := rec.Scope
	if req.Scope != "" {
		requested := strings.Fields(req.Scope)
		if len(requested) == 0 || !validation.IsSubset(requested, strings.Fields(rec.Scope)) {
			return nil, failGrant(ErrTokenInvalidScope, ReasonScopeNotAllowed, "scope exceeds the original grant")
		}
		grantScope = strings.Join(requested, " ")
	}

	// Rotation: the old record is revoked and blacklisted before the new
	// pair exists, so it can never mint a second family.
	if err := s.dal.Tokens.Revoke(ctx, rec.ID); err != nil {
		return nil, failGrant(ErrTokenServerError, "", "rotation failed")
	}
	_ = s.dal.Blacklist.Add(ctx, &repository.BlacklistEntry{
		JTI: rec.JTI, TokenType: repository.TokenTypeRefresh, ExpiresAt: rec.ExpiresAt,
	})

	resp, err := s.mintPair(ctx, client, rec.UserID, grantScope, &rec.ID, "refresh_token")
	if err != nil {
		return nil, err
	}
	s.sink.Emit(ctx, audit.Event{
		Name: audit.EventTokenRefreshed, ClientID: client.ClientID, UserID: rec.UserID,
		Grant: "refresh_token", Scope: grantScope,
	})
	return resp, nil
}

// ─── client_credentials ───

func (s *tokenService) ExchangeClientCredentials(ctx context.Context, req ClientCredentialsRequest) (*TokenResponse, error) {
	client, err := s.auth.Authenticate(ctx, req.ClientID, req.ClientSecret)
	if err != nil {
		s.sink.Emit(ctx, audit.Event{Name: audit.EventClientAuthFailed, ClientID: req.ClientID, Grant: "client_credentials"})
		return nil, err
	}
	// No user context: public clients cannot use this grant.
	if client.Public() {
		return nil, failGrant(ErrTokenUnauthorizedClient, ReasonPublicClientCredentials, "public clients cannot use client_credentials")
	}
	if !client.AllowsGrant("client_credentials") {
		return nil, failGrant(ErrTokenUnauthorizedClient, ReasonGrantTypeNotAllowed, "client not authorized for this grant type")
	}

	res := s.scopes.ValidateAgainstList(client.AllowedScopes, req.Scope)
	if !res.OK() {
		return nil, failGrant(ErrTokenInvalidScope, ReasonScopeNotAllowed, res.Description)
	}
	scope := res.GrantedString()

	access, err := s.issuer.IssueAccess("", client.ClientID, scope, client.AccessTokenTTL)
	if err != nil {
		return nil, failGrant(ErrTokenServerError, "", "token issuance failed")
	}
	if err := s.persistToken(ctx, access, repository.TokenTypeAccess, client.ClientID, "", scope, nil); err != nil {
		return nil, failGrant(ErrTokenServerError, "", "token persistence failed")
	}

	metrics.TokensIssuedTotal.WithLabelValues("client_credentials", "access").Inc()
	s.sink.Emit(ctx, audit.Event{
		Name: audit.EventTokenIssued, ClientID: client.ClientID,
		Grant: "client_credentials", Scope: scope, JTI: access.JTI,
	})

	return &TokenResponse{
		AccessToken: access.Raw,
		TokenType:   "Bearer",
		ExpiresIn:   int64(time.Until(access.ExpiresAt).Seconds()),
		Scope:       scope,
	}, nil
}

// ─── helpers ───

// mintPair issues and persists an access+refresh pair for a user grant.
func (s *tokenService) mintPair(ctx context.Context, client *AuthenticatedClient, userID, scope string, rotatedFrom *string, grant string) (*TokenResponse, error) {
	access, err := s.issuer.IssueAccess(userID, client.ClientID, scope, client.AccessTokenTTL)
	if err != nil {
		return nil, failGrant(ErrTokenServerError, "", "token issuance failed")
	}
	refresh, err := s.issuer.IssueRefresh(userID, client.ClientID, scope)
	if err != nil {
		return nil, failGrant(ErrTokenServerError, "", "token issuance failed")
	}

	if err := s.persistToken(ctx, access, repository.TokenTypeAccess, client.ClientID, userID, scope, nil); err != nil {
		return nil, failGrant(ErrTokenServerError, "", "token persistence failed")
	}
	if err := s.persistToken(ctx, refresh, repository.TokenTypeRefresh, client.ClientID, userID, scope, rotatedFrom); err != nil {
		return nil, failGrant(ErrTokenServerError, "", "token persistence failed")
	}

	metrics.TokensIssuedTotal.WithLabelValues(grant, "access").Inc()
	metrics.TokensIssuedTotal.WithLabelValues(grant, "refresh").Inc()
	s.sink.Emit(ctx, audit.Event{
		Name: audit.EventTokenIssued, ClientID: client.ClientID, UserID: userID,
		Grant: grant, Scope: scope, JTI: access.JTI,
	})

	return &TokenResponse{
		AccessToken:  access.Raw,
		TokenType:    "Bearer",
		ExpiresIn:    int64(time.Until(access.ExpiresAt).Seconds()),
		RefreshToken: refresh.Raw,
		Scope:        scope,
	}, nil
}

// persistToken stores the hash-keyed record; the raw JWT never hits storage.
func (s *tokenService) persistToken(ctx context.Context, t *jwtx.IssuedToken, tokenType, clientID, userID, scope string, rotatedFrom *string) error {
	return s.dal.Tokens.Create(ctx, &repository.TokenRecord{
		JTI:         t.JTI,
		TokenType:   tokenType,
		TokenHash:   tokens.SHA256Base64URL(t.Raw),
		ClientID:    clientID,
		UserID:      userID,
		Scope:       scope,
		IssuedAt:    t.IssuedAt,
		ExpiresAt:   t.ExpiresAt,
		RotatedFrom: rotatedFrom,
	})
}

func (s *tokenService) mintIDToken(ctx context.Context, client *AuthenticatedClient, userID, scope, nonce string) (string, error) {
	extra := map[string]any{}
	if nonce != "" {
		extra["nonce"] = nonce
	}
	if user, err := s.dal.Users.GetByID(ctx, userID); err == nil {
		if hasScope(scope, "email") {
			extra["email"] = user.Email
			extra["email_verified"] = user.EmailVerified
		}
		if hasScope(scope, "profile") {
			extra["name"] = user.Name
			extra["preferred_username"] = user.Username
		}
	}
	idt, err := s.issuer.IssueIDToken(userID, client.ClientID, extra)
	if err != nil {
		return "", err
	}
	return idt.Raw, nil
}

func hasScope(scope, want string) bool {
	for _, s := range strings.Fields(scope) {
		if s == want {
			return true
		}
	}
	return false
}
