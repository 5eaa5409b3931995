package oauth

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/dropDatabas3/llavero/internal/domain/repository"
	"github.com/dropDatabas3/llavero/internal/metrics"
	"github.com/dropDatabas3/llavero/internal/observability/logger"
	"github.com/dropDatabas3/llavero/internal/security/password"
)

// AuthenticatedClient is the minimal client view the grant handlers need.
type AuthenticatedClient struct {
	ID             string
	ClientID       string
	Name           string
	Type           string
	AllowedScopes  []string
	GrantTypes     []string
	RedirectURIs   []string
	RequirePKCE    bool
	RequireConsent bool
	AccessTokenTTL time.Duration // 0 means server default
}

// Public reports whether the client is a public (no-secret) client.
func (c *AuthenticatedClient) Public() bool {
	return c.Type == repository.ClientTypePublic
}

// AllowsGrant reports whether the client may use the given grant type.
func (c *AuthenticatedClient) AllowsGrant(grant string) bool {
	if len(c.GrantTypes) == 0 {
		return false
	}
	for _, g := range c.GrantTypes {
		if g == grant {
			return true
		}
	}
	return false
}

// ClientAuthenticator authenticates OAuth clients. Confidential clients
// present a shared secret verified against its argon2id hash; public
// clients authenticate by bare client_id.
//
// Secret verification is CPU-bound, so it runs under a weighted semaphore
// to keep a burst of token requests from starving the scheduler.
type ClientAuthenticator struct {
	clients repository.ClientRepository
	sem     *semaphore.Weighted
}

// NewClientAuthenticator creates the authenticator. maxConcurrent bounds
// parallel argon2id verifications; <=0 falls back to 8.
func NewClientAuthenticator(clients repository.ClientRepository, maxConcurrent int64) *ClientAuthenticator {
	if maxConcurrent <= 0 {
		maxConcurrent = 8
	}
	return &ClientAuthenticator{
		clients: clients,
		sem:     semaphore.NewWeighted(maxConcurrent),
	}
}

// Authenticate resolves and authenticates a client.
// Secret handling:
//   - confidential + no stored hash: server misconfiguration
//   - confidential + missing secret: invalid_client (secret required)
//   - confidential + mismatch: invalid_client
//   - public: no secret required or checked
func (a *ClientAuthenticator) Authenticate(ctx context.Context, clientID, clientSecret string) (*AuthenticatedClient, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("ClientAuthenticator.Authenticate"))

	if clientID == "" {
		return nil, failGrant(ErrTokenInvalidClient, ReasonClientNotFound, "client authentication failed")
	}

	client, err := a.clients.GetByClientID(ctx, clientID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, failGrant(ErrTokenInvalidClient, ReasonClientNotFound, "client authentication failed")
		}
		return nil, failGrant(ErrTokenServerError, "", "client lookup failed")
	}
	if !client.Active {
		log.Debug("client inactive", logger.ClientID(clientID))
		return nil, failGrant(ErrTokenInvalidClient, ReasonClientInactive, "client authentication failed")
	}

	if client.Type == repository.ClientTypeConfidential {
		if client.SecretHash == nil || *client.SecretHash == "" {
			log.Error("confidential client without secret hash", logger.ClientID(clientID))
			return nil, failGrant(ErrTokenServerError, ReasonClientMisconfigured, "client misconfigured")
		}
		if clientSecret == "" {
			return nil, failGrant(ErrTokenInvalidClient, ReasonClientSecretRequired, "client secret required")
		}
		ok, err := a.verifySecret(ctx, clientSecret, *client.SecretHash)
		if err != nil {
			return nil, failGrant(ErrTokenServerError, "", "secret verification failed")
		}
		if !ok {
			return nil, failGrant(ErrTokenInvalidClient, ReasonInvalidClientSecret, "client authentication failed")
		}
	}

	ttl := time.Duration(client.AccessTokenTTL) * time.Second
	return &AuthenticatedClient{
		ID:             client.ID,
		ClientID:       client.ClientID,
		Name:           client.Name,
		Type:           client.Type,
		AllowedScopes:  client.AllowedScopes,
		GrantTypes:     client.GrantTypes,
		RedirectURIs:   client.RedirectURIs,
		RequirePKCE:    client.RequirePKCE,
		RequireConsent: client.RequireConsent,
		AccessTokenTTL: ttl,
	}, nil
}

// verifySecret runs the argon2id comparison under the semaphore.
func (a *ClientAuthenticator) verifySecret(ctx context.Context, secret, phc string) (bool, error) {
	if err := a.sem.Acquire(ctx, 1); err != nil {
		return false, err
	}
	defer a.sem.Release(1)

	start := time.Now()
	ok := password.Verify(secret, phc)
	metrics.SecretVerifyDuration.Observe(time.Since(start).Seconds())
	return ok, nil
}
