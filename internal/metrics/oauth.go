package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// OAuth-related Prometheus metrics. Standalone package to avoid import
// cycles between services and HTTP packages.

var (
	TokensIssuedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "oauth_tokens_issued_total",
		Help: "Tokens emitidos por grant_type y tipo de token",
	}, []string{"grant_type", "token_type"})

	TokenFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "oauth_token_failures_total",
		Help: "Fallas del token endpoint por grant_type y código de error",
	}, []string{"grant_type", "error"})

	CodeReplaysTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "oauth_code_replays_total",
		Help: "Intentos de canje de authorization codes ya usados",
	})

	RefreshReplaysTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "oauth_refresh_replays_total",
		Help: "Reusos detectados de refresh tokens ya rotados",
	})

	RevocationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "oauth_revocations_total",
		Help: "Tokens revocados por tipo",
	}, []string{"token_type"})

	SecretVerifyDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "oauth_secret_verify_duration_seconds",
		Help:    "Duración de la verificación argon2id de client secrets",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	})
)

// RegisterOAuth registers the OAuth metrics on the given registry (or default if nil).
func RegisterOAuth(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	collectors := []prometheus.Collector{
		TokensIssuedTotal,
		TokenFailuresTotal,
		CodeReplaysTotal,
		RefreshReplaysTotal,
		RevocationsTotal,
		SecretVerifyDuration,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	return nil
}
