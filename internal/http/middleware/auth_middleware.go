package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/globalix-group/globalix-mobile-app-sub000/internal/http/response"
	"github.com/globalix-group/globalix-mobile-app-sub000/internal/observability"
	"github.com/globalix-group/globalix-mobile-app-sub000/internal/security"
)

type contextKey string

const (
	ClaimsContextKey contextKey = "claims"
)

// InvalidTokenMessage is the only message any token failure produces.
const InvalidTokenMessage = "invalid or expired token"

type TokenVerifier interface {
	VerifyClaims(token string, kind security.TokenKind) (*security.Claims, error)
}

func AuthMiddleware(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := BearerToken(r)
			if raw == "" {
				observability.RecordAccessTokenValidation(r.Context(), "missing", "none")
				response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing access token", nil)
				return
			}
			claims, err := verifier.VerifyClaims(raw, security.KindAccess)
			if err != nil {
				observability.RecordAccessTokenValidation(r.Context(), "invalid", "bearer")
				response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", InvalidTokenMessage, nil)
				return
			}
			observability.RecordAccessTokenValidation(r.Context(), "valid", "bearer")
			ctx := context.WithValue(r.Context(), ClaimsContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func BearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}

func ClaimsFromContext(ctx context.Context) (*security.Claims, bool) {
	c, ok := ctx.Value(ClaimsContextKey).(*security.Claims)
	return c, ok
}

func WithClaims(ctx context.Context, claims *security.Claims) context.Context {
	return context.WithValue(ctx, ClaimsContextKey, claims)
}
