package auth

import (
	"context"
	"net/http"
	"strings"

	apperrors "github.com/openblog/backend/internal/errors"
)

type contextKey string

const claimsContextKey contextKey = "claims"

// TokenValidator checks access tokens.
type TokenValidator interface {
	ValidateAccessToken(tokenString string) (*Claims, error)
}

// Middleware gates a route on a valid access token. A missing or malformed
// bearer header is 401; a token that fails verification or has expired is 403.
func Middleware(validator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := apperrors.GetRequestID(r.Context())

			tokenString, ok := BearerToken(r.Header.Get("Authorization"))
			if !ok {
				apperrors.WriteError(w, requestID, apperrors.TokenMissing())
				return
			}

			claims, err := validator.ValidateAccessToken(tokenString)
			if err != nil {
				apperrors.WriteError(w, requestID, apperrors.InvalidToken())
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" value.
func BearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", false
	}
	return token, true
}

func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsContextKey, claims)
}

// ClaimsFromContext returns the claims Middleware attached, or nil.
func ClaimsFromContext(ctx context.Context) *Claims {
	claims, ok := ctx.Value(claimsContextKey).(*Claims)
	if !ok {
		return nil
	}
	return claims
}
