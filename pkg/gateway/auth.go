package gateway

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// SecretHeader carries the shared secret on HTTP requests
const SecretHeader = "X-Vesselplan-Secret"

// AuthHandler checks a shared secret. An empty secret disables the check.
type AuthHandler struct {
	sharedSecret string
}

// NewAuthHandler creates a new authentication handler
func NewAuthHandler(sharedSecret string) *AuthHandler {
	return &AuthHandler{
		sharedSecret: sharedSecret,
	}
}

// Enabled reports whether requests must present the secret
func (a *AuthHandler) Enabled() bool {
	return a.sharedSecret != ""
}

// Verify compares a presented secret in constant time
func (a *AuthHandler) Verify(presented string) bool {
	if !a.Enabled() {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(a.sharedSecret), []byte(presented)) == 1
}

// presentedSecret reads the secret from the header, a bearer token, or the
// "secret" query parameter (browsers cannot set headers on WebSocket dials).
func presentedSecret(r *http.Request) string {
	if s := r.Header.Get(SecretHeader); s != "" {
		return s
	}
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return r.URL.Query().Get("secret")
}

// Middleware rejects requests without the shared secret
func (a *AuthHandler) Middleware(next http.Handler) http.Handler {
	if !a.Enabled() {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Verify(presentedSecret(r)) {
			writeError(w, r, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}
