// Package audit emits structured audit events for every OAuth state
// transition: code issuance and redemption, token grants, rotations,
// revocations and replay detections.
package audit

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/dropDatabas3/llavero/internal/observability/logger"
)

// Event names emitted by the OAuth services.
const (
	EventAuthorizationGranted = "authorization_granted"
	EventAuthorizationDenied  = "authorization_denied"
	EventCodeRedeemed         = "code_redeemed"
	EventCodeReplayed         = "code_replay_detected"
	EventTokenIssued          = "token_issued"
	EventTokenRefreshed       = "token_refreshed"
	EventRefreshReplayed      = "refresh_replay_detected"
	EventTokenRevoked         = "token_revoked"
	EventClientAuthFailed     = "client_auth_failed"
	EventConsentGranted       = "consent_granted"
	EventConsentRevoked       = "consent_revoked"
)

// Event is a single audit record.
type Event struct {
	Name     string
	ClientID string
	UserID   string
	IP       string
	Grant    string
	Scope    string
	JTI      string
	Detail   map[string]any
	At       time.Time
}

// Sink receives audit events. Implementations must be safe for
// concurrent use and must not block request handling for long.
type Sink interface {
	Emit(ctx context.Context, ev Event)
}

// ZapSink writes events through the process logger as structured JSON.
type ZapSink struct{}

func NewZapSink() *ZapSink { return &ZapSink{} }

func (s *ZapSink) Emit(ctx context.Context, ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	fields := []zap.Field{
		zap.String("audit_event", ev.Name),
		zap.Time("at", ev.At),
	}
	if ev.ClientID != "" {
		fields = append(fields, logger.ClientID(ev.ClientID))
	}
	if ev.UserID != "" {
		fields = append(fields, logger.UserID(ev.UserID))
	}
	if ev.IP != "" {
		fields = append(fields, logger.ClientIP(ev.IP))
	}
	if ev.Grant != "" {
		fields = append(fields, logger.GrantType(ev.Grant))
	}
	if ev.Scope != "" {
		fields = append(fields, logger.Scope(ev.Scope))
	}
	if ev.JTI != "" {
		fields = append(fields, logger.JTI(ev.JTI))
	}
	for k, v := range ev.Detail {
		fields = append(fields, zap.Any(k, v))
	}
	logger.From(ctx).Info("audit", fields...)
}

// NopSink discards events. For tests.
type NopSink struct{}

func (NopSink) Emit(ctx context.Context, ev Event) {}
