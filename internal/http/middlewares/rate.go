package middlewares

import (
	"net/http"
	"strconv"

	"github.com/dropDatabas3/llavero/internal/observability/logger"
	"github.com/dropDatabas3/llavero/internal/rate"
)

// RateKeyFunc deriva la key del limiter a partir del request.
type RateKeyFunc func(r *http.Request) string

// IPPathRateKey genera una key IP + path (sin leer body).
// Separa límites por endpoint sin depender del contenido.
func IPPathRateKey(r *http.Request) string {
	return clientIP(r) + "|" + r.URL.Path
}

// IPClientRateKey genera una key IP + client_id del form.
// Para el token endpoint, donde el atacante fija el client_id.
func IPClientRateKey(r *http.Request) string {
	_ = r.ParseForm()
	return clientIP(r) + "|" + r.PostForm.Get("client_id")
}

// WithRateLimit aplica el limiter con la key dada. En caso de error del
// backend deja pasar: disponibilidad gana sobre throttling.
func WithRateLimit(l rate.Limiter, keyFn RateKeyFunc) Middleware {
	if keyFn == nil {
		keyFn = IPPathRateKey
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if l == nil {
				next.ServeHTTP(w, r)
				return
			}
			res, err := l.Allow(r.Context(), keyFn(r))
			if err != nil {
				logger.From(r.Context()).Warn("rate limiter unavailable", logger.Err(err))
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(res.Remaining, 10))
			if !res.Allowed {
				w.Header().Set("Retry-After", strconv.Itoa(int(res.RetryAfter.Seconds())+1))
				w.Header().Set("Content-Type", "application/json; charset=utf-8")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":"slow_down","error_description":"Too many requests"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
