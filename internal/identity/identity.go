// Package identity authenticates dashboard callers of the agent API.
package identity

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net"
	"net/http"
	"strings"
)

// APIKeyHeader carries the shared key the dashboard backend sends.
const APIKeyHeader = "X-API-Key"

type contextKey int

const (
	authenticatedKey contextKey = iota
)

// Authenticated reports whether the request carried a valid API key.
// In development every request is treated as authenticated.
func Authenticated(ctx context.Context) bool {
	v, _ := ctx.Value(authenticatedKey).(bool)
	return v
}

func keyFromRequest(r *http.Request) string {
	if key := r.Header.Get(APIKeyHeader); key != "" {
		return key
	}
	// Browsers cannot set headers on a WebSocket handshake.
	if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		return r.URL.Query().Get("api_key")
	}
	return ""
}

func validKey(got, want string) bool {
	if want == "" || got == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

// Middleware rejects requests without the configured API key. It is a
// pass-through in development.
func Middleware(apiKey string, isDev bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !isDev && !validKey(keyFromRequest(r), apiKey) {
				slog.Warn("Rejected request with missing or invalid API key",
					"path", r.URL.Path,
					"remote_ip", IPFromRequest(r))
				http.Error(w, `{"error":"invalid api key"}`, http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), authenticatedKey, true)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// IPFromRequest returns a normalized remote IP for request tracing.
func IPFromRequest(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
