package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// OperatorHeader names the person behind a request. It is recorded as the
// initiator of a stop-all.
const OperatorHeader = "X-Operator"

// RequireToken rejects requests without "Authorization: Bearer <token>".
// An empty token disables the check. WebSocket routes (/ws and
// /sessions/{id}/ws) also accept the token as a ?token= query parameter,
// since browsers cannot set headers on a WebSocket handshake.
func RequireToken(token string, next http.Handler) http.Handler {
	if token == "" {
		return next
	}
	want := []byte(token)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := bearerToken(r)
		if got == "" && isWebSocketPath(r.URL.Path) {
			got = r.URL.Query().Get("token")
		}
		if got == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "authorization required"})
			return
		}
		if subtle.ConstantTimeCompare([]byte(got), want) != 1 {
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "invalid token"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func isWebSocketPath(path string) bool {
	return path == "/ws" || (strings.HasPrefix(path, "/sessions/") && strings.HasSuffix(path, "/ws"))
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(auth) <= len(prefix) || !strings.EqualFold(auth[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(auth[len(prefix):])
}

// getOperator extracts the operator from the X-Operator header.
// Returns "api" if not set.
func getOperator(r *http.Request) string {
	if op := r.Header.Get(OperatorHeader); op != "" {
		return op
	}
	return "api"
}
