package oauth

import (
	"net/http"
	"strconv"
	"strings"
)

// clientCredentials extrae client_id/client_secret del header Basic
// (client_secret_basic) o del form (client_secret_post). Basic gana.
func clientCredentials(r *http.Request) (string, string) {
	if id, secret, ok := r.BasicAuth(); ok {
		return id, secret
	}
	return strings.TrimSpace(r.PostForm.Get("client_id")),
		strings.TrimSpace(r.PostForm.Get("client_secret"))
}

// writeOAuthError escribe el JSON de error estándar OAuth2 con no-store.
func writeOAuthError(w http.ResponseWriter, status int, errorCode, description string) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Basic realm="oauth"`)
	}
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":` + strconv.Quote(errorCode) + `,"error_description":` + strconv.Quote(description) + `}`))
}
