package oauth

import (
	"context"
	"time"

	"github.com/dropDatabas3/llavero/internal/audit"
	"github.com/dropDatabas3/llavero/internal/domain/repository"
	"github.com/dropDatabas3/llavero/internal/store"
)

// ConsentService manages persisted user consents so repeat prompts can be
// skipped when a prior grant covers the requested scopes.
type ConsentService interface {
	Grant(ctx context.Context, userID, clientID string, scopes []string, ttl time.Duration) (*repository.Consent, error)
	Revoke(ctx context.Context, userID, clientID string) error
	List(ctx context.Context, userID string) ([]repository.Consent, error)
}

// ConsentDeps contains dependencies for ConsentService.
type ConsentDeps struct {
	DAL   *store.DAL
	Audit audit.Sink
}

type consentService struct {
	dal  *store.DAL
	sink audit.Sink
}

// NewConsentService creates the consent service.
func NewConsentService(d ConsentDeps) ConsentService {
	sink := d.Audit
	if sink == nil {
		sink = audit.NopSink{}
	}
	return &consentService{dal: d.DAL, sink: sink}
}

func (s *consentService) Grant(ctx context.Context, userID, clientID string, scopes []string, ttl time.Duration) (*repository.Consent, error) {
	var expiresAt *time.Time
	if ttl > 0 {
		t := time.Now().Add(ttl)
		expiresAt = &t
	}
	consent, err := s.dal.Consents.Upsert(ctx, userID, clientID, scopes, expiresAt)
	if err != nil {
		return nil, err
	}
	s.sink.Emit(ctx, audit.Event{Name: audit.EventConsentGranted, UserID: userID, ClientID: clientID})
	return consent, nil
}

func (s *consentService) Revoke(ctx context.Context, userID, clientID string) error {
	if err := s.dal.Consents.Revoke(ctx, userID, clientID); err != nil {
		return err
	}
	s.sink.Emit(ctx, audit.Event{Name: audit.EventConsentRevoked, UserID: userID, ClientID: clientID})
	return nil
}

func (s *consentService) List(ctx context.Context, userID string) ([]repository.Consent, error) {
	return s.dal.Consents.ListByUser(ctx, userID, true)
}
