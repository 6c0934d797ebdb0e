package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/example/storefront-cart/internal/auth"
)

// SessionCookie carries the session token for browsers.
const SessionCookie = "session_token"

func respondError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// ExtractToken reads the session token from the cookie or the Authorization
// header.
func ExtractToken(r *http.Request) string {
	if cookie, err := r.Cookie(SessionCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	if authHeader := r.Header.Get("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	return ""
}

type TokenVerifier interface {
	Verify(token string) (*auth.Claims, error)
}

type contextKey string

const sessionContextKey contextKey = "session"

// RequireSession rejects requests without a valid session token.
func RequireSession(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := ExtractToken(r)
			if token == "" {
				respondError(w, "session required", http.StatusUnauthorized)
				return
			}
			claims, err := verifier.Verify(token)
			if err != nil {
				respondError(w, err.Error(), http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), claims)))
		})
	}
}

// OptionalSession attaches session claims when a valid token is present.
func OptionalSession(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token := ExtractToken(r); token != "" {
				if claims, err := verifier.Verify(token); err == nil {
					r = r.WithContext(WithSession(r.Context(), claims))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func WithSession(ctx context.Context, claims *auth.Claims) context.Context {
	return context.WithValue(ctx, sessionContextKey, claims)
}

func SessionFromContext(ctx context.Context) (*auth.Claims, bool) {
	claims, ok := ctx.Value(sessionContextKey).(*auth.Claims)
	return claims, ok
}

// SessionID returns the cart profile of the request, or "".
func SessionID(ctx context.Context) string {
	if claims, ok := SessionFromContext(ctx); ok {
		return claims.SessionID
	}
	return ""
}
