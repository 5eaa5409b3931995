package oauth

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/dropDatabas3/llavero/internal/cache"
	dto "github.com/dropDatabas3/llavero/internal/http/dto/oauth"
	tokens "github.com/dropDatabas3/llavero/internal/security/token"
)

// SessionFromRequest resuelve la sesión de login desde la cookie. El valor de
// la cookie nunca se usa como clave directa: se busca por su hash.
func SessionFromRequest(ctx context.Context, c cache.Client, cookieName string, r *http.Request) (*dto.SessionPayload, bool) {
	if c == nil {
		return nil, false
	}
	ck, err := r.Cookie(cookieName)
	if err != nil || ck.Value == "" {
		return nil, false
	}

	raw, err := c.Get(ctx, cacheKeyPrefixSID+tokens.SHA256Base64URL(ck.Value))
	if err != nil {
		return nil, false
	}
	var sess dto.SessionPayload
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		return nil, false
	}
	if sess.Expires != 0 && time.Now().Unix() > sess.Expires {
		return nil, false
	}
	return &sess, true
}
