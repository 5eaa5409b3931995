package oauth

import (
	"context"
	"errors"
	"time"

	"github.com/dropDatabas3/llavero/internal/audit"
	"github.com/dropDatabas3/llavero/internal/domain/repository"
	jwtx "github.com/dropDatabas3/llavero/internal/jwt"
	"github.com/dropDatabas3/llavero/internal/metrics"
	"github.com/dropDatabas3/llavero/internal/observability/logger"
	tokens "github.com/dropDatabas3/llavero/internal/security/token"
	"github.com/dropDatabas3/llavero/internal/store"
)

// RevokeService implements RFC 7009 token revocation.
//
// The endpoint never reveals whether the submitted value was a live token:
// any authenticated, well-formed request gets 200. Only a failure to
// authenticate the client surfaces as an error.
type RevokeService interface {
	Revoke(ctx context.Context, req RevokeRequest) error
}

// RevokeRequest contains parameters for POST /oauth/revoke.
type RevokeRequest struct {
	ClientID      string
	ClientSecret  string
	Token         string
	TokenTypeHint string // "access_token" | "refresh_token", advisory only
}

// RevokeDeps contains dependencies for RevokeService.
type RevokeDeps struct {
	DAL       *store.DAL
	Issuer    *jwtx.Issuer
	ClientAut *ClientAuthenticator
	Audit     audit.Sink
}

type revokeService struct {
	dal    *store.DAL
	issuer *jwtx.Issuer
	auth   *ClientAuthenticator
	sink   audit.Sink
}

// NewRevokeService creates the revoke service.
func NewRevokeService(d RevokeDeps) RevokeService {
	sink := d.Audit
	if sink == nil {
		sink = audit.NopSink{}
	}
	return &revokeService{dal: d.DAL, issuer: d.Issuer, auth: d.ClientAut, sink: sink}
}

func (s *revokeService) Revoke(ctx context.Context, req RevokeRequest) error {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("RevokeService.Revoke"))

	// Client authentication is a separate concern from revocation outcome:
	// it is the only path that returns an error.
	client, err := s.auth.Authenticate(ctx, req.ClientID, req.ClientSecret)
	if err != nil {
		return err
	}

	if req.Token == "" {
		// Nothing to revoke; still 200 per RFC 7009.
		return nil
	}

	tokenType := repository.TokenTypeAccess
	if req.TokenTypeHint == "refresh_token" {
		tokenType = repository.TokenTypeRefresh
	}

	// Try to parse the JWT for its jti. A malformed or foreign token still
	// gets a 200; there is just nothing to blacklist.
	var jti string
	expiresAt := time.Now().Add(s.issuer.RefreshTTL)
	if verified, err := s.issuer.Verify(req.Token); err == nil {
		jti = verified.JTI
		expiresAt = verified.ExpiresAt
		if verified.TokenUse == jwtx.UseRefresh {
			tokenType = repository.TokenTypeRefresh
		} else if verified.TokenUse == jwtx.UseAccess {
			tokenType = repository.TokenTypeAccess
		}
	}

	// Mark the stored record revoked if we have it and it belongs to the
	// caller. A mismatched client is not an error: still 200.
	if rec, err := s.dal.Tokens.GetByHash(ctx, tokens.SHA256Base64URL(req.Token)); err == nil {
		if rec.ClientID == client.ClientID {
			if err := s.dal.Tokens.Revoke(ctx, rec.ID); err != nil {
				log.Warn("token record revocation failed", logger.Err(err))
			}
			if jti == "" {
				jti = rec.JTI
			}
			expiresAt = rec.ExpiresAt
			tokenType = rec.TokenType
		} else {
			// Foreign token: do not touch it, do not say so.
			log.Debug("revocation for foreign token ignored", logger.ClientID(client.ClientID))
			return nil
		}
	} else if !errors.Is(err, repository.ErrNotFound) {
		log.Warn("token lookup failed during revocation", logger.Err(err))
	}

	// Blacklist by jti, time-bounded by the token's own expiry. Effective
	// even if the token row was never persisted.
	if jti != "" {
		if err := s.dal.Blacklist.Add(ctx, &repository.BlacklistEntry{
			JTI: jti, TokenType: tokenType, ExpiresAt: expiresAt,
		}); err != nil {
			log.Warn("blacklist insert failed", logger.Err(err))
			return nil
		}
		metrics.RevocationsTotal.WithLabelValues(tokenType).Inc()
		s.sink.Emit(ctx, audit.Event{
			Name: audit.EventTokenRevoked, ClientID: client.ClientID, JTI: jti,
			Detail: map[string]any{"token_type": tokenType},
		})
	}
	return nil
}
