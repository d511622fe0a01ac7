// Package middleware provides net/http integration for authkit.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/vitaforge/authkit"
)

type profileContextKey struct{}

// ProfileFromContext returns the authenticated account placed on the
// request context by RequireSession.
func ProfileFromContext(ctx context.Context) (authkit.Profile, bool) {
	profile, ok := ctx.Value(profileContextKey{}).(authkit.Profile)
	return profile, ok
}

// RequireSession rejects requests without a valid Bearer session token
// and attaches the resolved profile to the request context. Every
// failure mode is a plain 401; token diagnostics never reach clients.
func RequireSession(engine *authkit.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			profile, err := engine.Authenticate(r.Context(), token)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), profileContextKey{}, profile)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}
