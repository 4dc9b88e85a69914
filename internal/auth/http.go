// ABOUTME: HTTP helpers for shared-secret and JWT bearer authentication
// ABOUTME: Writes {"error":"Unauthorized"} JSON on rejected requests

package auth

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
)

// UnauthorizedMessage is the error body of rejected requests.
const UnauthorizedMessage = "Unauthorized"

// extractBearerToken extracts a bearer token from the Authorization header.
// Returns the token and an error message (empty if successful).
func extractBearerToken(authHeader string) (string, string) {
	if authHeader == "" {
		return "", "missing authorization header"
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", "invalid authorization header format"
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == "" {
		return "", "empty token"
	}
	return token, ""
}

// CheckSecret reports whether r carries "Bearer <secret>". An empty secret
// admits every request.
func CheckSecret(r *http.Request, secret string) bool {
	if secret == "" {
		return true
	}
	token, errMsg := extractBearerToken(r.Header.Get("Authorization"))
	if errMsg != "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(secret)) == 1
}

// WriteUnauthorized writes a 401 JSON error.
func WriteUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": UnauthorizedMessage})
}

// RequireJWT returns middleware that rejects requests without a valid
// bearer token and stores the token subject on the request context.
// A nil verifier disables the check.
func RequireJWT(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if verifier == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, errMsg := extractBearerToken(r.Header.Get("Authorization"))
			if errMsg != "" {
				WriteUnauthorized(w)
				return
			}

			subject, err := verifier.Verify(token)
			if err != nil {
				WriteUnauthorized(w)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithSubject(r.Context(), subject)))
		})
	}
}
