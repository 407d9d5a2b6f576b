package api

// This file contains the middleware guarding the admin API with bearer tokens.

import (
	"context"
	"net/http"
	"strings"

	"github.com/vrsandeep/mango-scraper/internal/auth"
)

// contextKey is a private type to prevent collisions with other context keys.
type contextKey string

const claimsContextKey = contextKey("claims")

// AdminAuthMiddleware verifies the bearer token of a request and requires the
// admin role. The verified claims are put in the request context.
func (s *Server) AdminAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := bearerToken(r)
		if !ok {
			RespondWithError(w, http.StatusUnauthorized, "Unauthorized: No bearer token")
			return
		}

		claims, err := auth.ParseToken(s.app.Config().Auth.JWTSecret, raw)
		if err != nil {
			RespondWithError(w, http.StatusUnauthorized, "Unauthorized: Invalid token")
			return
		}
		if claims.Role != auth.RoleAdmin {
			RespondWithError(w, http.StatusForbidden, "Forbidden: Administrator access required")
			return
		}

		ctx := context.WithValue(r.Context(), claimsContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", false
	}
	return strings.TrimSpace(token), true
}

// getClaimsFromContext returns nil outside the admin group.
func getClaimsFromContext(r *http.Request) *auth.Claims {
	claims, ok := r.Context().Value(claimsContextKey).(*auth.Claims)
	if !ok {
		return nil
	}
	return claims
}
