package oauth

import (
	"context"

	"github.com/dropDatabas3/llavero/internal/domain/repository"
	dto "github.com/dropDatabas3/llavero/internal/http/dto/oauth"
	jwtx "github.com/dropDatabas3/llavero/internal/jwt"
	tokens "github.com/dropDatabas3/llavero/internal/security/token"
	"github.com/dropDatabas3/llavero/internal/store"
)

// IntrospectService implements RFC 7662 token introspection.
// Every inactive condition collapses into {"active": false}: never tell a
// caller WHY a token is dead.
type IntrospectService interface {
	Introspect(ctx context.Context, req IntrospectRequest) (*dto.IntrospectResponse, error)
}

// IntrospectRequest contains parameters for POST /oauth/introspect.
type IntrospectRequest struct {
	ClientID     string
	ClientSecret string
	Token        string
}

// IntrospectDeps contains dependencies for IntrospectService.
type IntrospectDeps struct {
	DAL       *store.DAL
	Issuer    *jwtx.Issuer
	ClientAut *ClientAuthenticator
}

type introspectService struct {
	dal    *store.DAL
	issuer *jwtx.Issuer
	auth   *ClientAuthenticator
}

// NewIntrospectService creates the introspect service.
func NewIntrospectService(d IntrospectDeps) IntrospectService {
	return &introspectService{dal: d.DAL, issuer: d.Issuer, auth: d.ClientAut}
}

func (s *introspectService) Introspect(ctx context.Context, req IntrospectRequest) (*dto.IntrospectResponse, error) {
	if _, err := s.auth.Authenticate(ctx, req.ClientID, req.ClientSecret); err != nil {
		return nil, err
	}

	inactive := &dto.IntrospectResponse{Active: false}
	if req.Token == "" {
		return inactive, nil
	}

	verified, err := s.issuer.Verify(req.Token)
	if err != nil {
		return inactive, nil
	}

	// Blacklist by jti beats a structurally valid signature.
	if listed, err := s.dal.Blacklist.Contains(ctx, verified.JTI); err != nil || listed {
		return inactive, nil
	}

	// Revoked or purged record means inactive even if the JWT validates.
	if rec, err := s.dal.Tokens.GetByHash(ctx, tokens.SHA256Base64URL(req.Token)); err == nil {
		if rec.RevokedAt != nil {
			return inactive, nil
		}
	}

	tokenType := repository.TokenTypeAccess
	if verified.TokenUse == jwtx.UseRefresh {
		tokenType = repository.TokenTypeRefresh
	}

	return &dto.IntrospectResponse{
		Active:    true,
		Scope:     verified.Scope,
		ClientID:  verified.ClientID,
		TokenType: tokenType,
		Sub:       verified.Subject,
		Exp:       verified.ExpiresAt.Unix(),
		Iat:       verified.IssuedAt.Unix(),
		JTI:       verified.JTI,
	}, nil
}
