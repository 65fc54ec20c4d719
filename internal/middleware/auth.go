package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/coordinote/server/internal/auth"
)

type contextKey string

const userIDKey contextKey = "user_id"

// SessionMiddleware validates the session token from the Authorization
// header and attaches the owning user ID to the request context. The header
// may carry the bare token or a "Bearer <token>" value.
func SessionMiddleware(sessions *auth.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := TokenFromHeader(r)

			userID, err := sessions.ValidateToken(r.Context(), token)
			if err != nil {
				switch {
				case errors.Is(err, auth.ErrMissingToken):
					respondWithError(w, http.StatusUnauthorized, "missing token")
				case errors.Is(err, auth.ErrTokenExpired):
					respondWithError(w, http.StatusUnauthorized, "token expired")
				case errors.Is(err, auth.ErrInvalidToken):
					respondWithError(w, http.StatusUnauthorized, "invalid token")
				default:
					respondWithError(w, http.StatusInternalServerError, "session validation failed")
				}
				return
			}

			ctx := context.WithValue(r.Context(), userIDKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// TokenFromHeader extracts the session token from the Authorization header
func TokenFromHeader(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if after, found := strings.CutPrefix(header, "Bearer "); found {
		return strings.TrimSpace(after)
	}
	return header
}

// GetUserID extracts the authenticated user ID from the context
func GetUserID(ctx context.Context) (int64, bool) {
	userID, ok := ctx.Value(userIDKey).(int64)
	return userID, ok
}

// respondWithError sends a JSON error response
func respondWithError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
