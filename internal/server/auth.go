package server

import (
	"crypto/sha256"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/54b3r/docqa-go/internal/logging"
)

// tokenGuard checks Bearer tokens against the configured API key. Only the
// key's SHA-256 digest is held and tokens are compared digest to digest in
// constant time.
type tokenGuard struct {
	digest [sha256.Size]byte
}

// newTokenGuard returns nil when apiKey is empty, which disables auth.
func newTokenGuard(apiKey string) *tokenGuard {
	if apiKey == "" {
		return nil
	}
	return &tokenGuard{digest: sha256.Sum256([]byte(apiKey))}
}

// valid reports whether token matches the API key.
func (g *tokenGuard) valid(token string) bool {
	sum := sha256.Sum256([]byte(token))
	return subtle.ConstantTimeCompare(sum[:], g.digest[:]) == 1
}

// protect wraps next so that it only runs for requests carrying
// "Authorization: Bearer <key>". A nil guard passes every request through.
// Failures get a JSON 401 with a WWW-Authenticate challenge; the presented
// token is never logged.
func (g *tokenGuard) protect(next http.Handler) http.Handler {
	if g == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, present := bearerToken(r)
		switch {
		case !present:
			unauthorized(w, r, `Bearer realm="docqa"`, "authorization required")
		case !g.valid(token):
			unauthorized(w, r, `Bearer realm="docqa", error="invalid_token"`, "invalid token")
		default:
			next.ServeHTTP(w, r)
		}
	})
}

func unauthorized(w http.ResponseWriter, r *http.Request, challenge, msg string) {
	logging.FromContext(r.Context()).Warn("auth: request rejected",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("reason", msg),
	)
	w.Header().Set("WWW-Authenticate", challenge)
	writeError(w, r, http.StatusUnauthorized, msg)
}

// bearerToken extracts the token from an Authorization header. present is
// false when the header is absent, uses another scheme, or has no token.
func bearerToken(r *http.Request) (token string, present bool) {
	scheme, rest, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(rest)
	return token, token != ""
}
