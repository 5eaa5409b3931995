package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	oauthctl "github.com/dropDatabas3/llavero/internal/http/controllers/oauth"
	oidcctl "github.com/dropDatabas3/llavero/internal/http/controllers/oidc"
	mw "github.com/dropDatabas3/llavero/internal/http/middlewares"
	"github.com/dropDatabas3/llavero/internal/rate"
)

// RouterDeps agrupa los controllers y políticas que el router necesita para
// montar todos los endpoints.
type RouterDeps struct {
	Authorize  *oauthctl.AuthorizeController
	Token      *oauthctl.TokenController
	Revoke     *oauthctl.RevokeController
	Introspect *oauthctl.IntrospectController
	Consent    *oauthctl.ConsentController
	OIDC       *oidcctl.Controller

	// Ready reporta si las dependencias (storage, cache) responden. Si es nil
	// /readyz equivale a /healthz.
	Ready func(ctx context.Context) error

	// Limiter aplica rate limiting a los endpoints de emisión de tokens.
	// Si es nil no se limita.
	Limiter rate.Limiter

	// CORSOrigins para los endpoints públicos de discovery/JWKS/userinfo.
	CORSOrigins []string

	// MetricsRegistry permite inyectar un registry propio (tests). Si es nil
	// se usa el default.
	MetricsRegistry prometheus.Registerer
}

// NewRouter arma el router HTTP completo: endpoints OAuth2, discovery OIDC,
// métricas y health checks, con la cadena de middlewares estándar.
func NewRouter(deps RouterDeps) (http.Handler, error) {
	r := chi.NewRouter()

	metricsHandler, err := RegisterMetrics(deps.MetricsRegistry)
	if err != nil {
		return nil, err
	}

	tokenMWs := []mw.Middleware{mw.WithNoStore()}
	if deps.Limiter != nil {
		tokenMWs = append([]mw.Middleware{mw.WithRateLimit(deps.Limiter, mw.IPClientRateKey)}, tokenMWs...)
	}

	public := mw.WithCORS(deps.CORSOrigins)

	r.Route("/oauth", func(r chi.Router) {
		r.Get("/authorize", deps.Authorize.Authorize)
		r.Method(http.MethodPost, "/token", mw.ChainFunc(deps.Token.Token, tokenMWs...))
		r.Method(http.MethodPost, "/revoke", mw.ChainFunc(deps.Revoke.Revoke, tokenMWs...))
		r.Post("/introspect", deps.Introspect.Introspect)
		r.Method(http.MethodPost, "/consent", mw.ChainFunc(deps.Consent.Accept, mw.WithNoStore()))
		r.Method(http.MethodGet, "/userinfo", mw.ChainFunc(deps.OIDC.UserInfo, public))
		r.Method(http.MethodPost, "/userinfo", mw.ChainFunc(deps.OIDC.UserInfo, public))
		// preflight lo corta el middleware CORS
		r.Method(http.MethodOptions, "/userinfo", mw.ChainFunc(deps.OIDC.UserInfo, public))
		for _, path := range []string{"/authorize", "/token", "/revoke", "/introspect", "/consent"} {
			r.Options(path, handleOptions)
		}
	})

	r.Method(http.MethodGet, "/.well-known/openid-configuration", mw.ChainFunc(deps.OIDC.Discovery, public))
	r.Method(http.MethodOptions, "/.well-known/openid-configuration", mw.ChainFunc(deps.OIDC.Discovery, public))
	r.Method(http.MethodGet, "/.well-known/jwks.json", mw.ChainFunc(deps.OIDC.JWKS, public))
	r.Method(http.MethodOptions, "/.well-known/jwks.json", mw.ChainFunc(deps.OIDC.JWKS, public))

	r.Method(http.MethodGet, "/metrics", metricsHandler)
	r.Get("/healthz", handleHealth)
	r.Get("/readyz", handleReady(deps.Ready))
	for _, path := range []string{"/metrics", "/healthz", "/readyz"} {
		r.Options(path, handleOptions)
	}

	return mw.Chain(r,
		mw.WithRecover(),
		mw.WithRequestID(),
		mw.WithLogging(),
		WithMetrics,
		mw.WithSecurityHeaders(),
	), nil
}

func handleOptions(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func handleReady(check func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if check != nil {
			if err := check(r.Context()); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(w).Encode(map[string]string{"status": "unavailable", "error": err.Error()})
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}
