package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"

	"github.com/cortexai/opsinsight/internal/models"
	"github.com/rs/zerolog/log"
)

type ctxKey int

const apiKeyCtxKey ctxKey = iota

var publicPaths = map[string]bool{
	"/":        true,
	"/health":  true,
	"/metrics": true,
}

// Auth rejects requests without a configured API key. The key is read from
// headerName or the api_key cookie and stored in the request context for
// auditing.
func Auth(apiKeys []string, headerName string) func(http.Handler) http.Handler {
	keys := make([][]byte, 0, len(apiKeys))
	for _, k := range apiKeys {
		if k != "" {
			keys = append(keys, []byte(k))
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if publicPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			key := r.Header.Get(headerName)
			if key == "" {
				if c, err := r.Cookie("api_key"); err == nil {
					key = c.Value
				}
			}

			if key == "" {
				models.WriteError(w, http.StatusUnauthorized, "API key required")
				return
			}
			if !validKey(keys, key) {
				log.Warn().Str("path", r.URL.Path).Str("remote_addr", r.RemoteAddr).Msg("invalid API key")
				models.WriteError(w, http.StatusForbidden, "invalid API key")
				return
			}

			ctx := context.WithValue(r.Context(), apiKeyCtxKey, key)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func validKey(keys [][]byte, key string) bool {
	ok := false
	for _, k := range keys {
		if subtle.ConstantTimeCompare(k, []byte(key)) == 1 {
			ok = true
		}
	}
	return ok
}

// APIKey returns the key accepted by Auth, or "" when auth is disabled.
func APIKey(ctx context.Context) string {
	k, _ := ctx.Value(apiKeyCtxKey).(string)
	return k
}
