package middleware

import (
	"net/http"
	"strings"

	"github.com/onnwee/mingle/internal/auth"
)

// bearerToken extracts the token from an Authorization: Bearer header.
// Returns the empty string when the header is absent or malformed.
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// RequireAuth validates the access token and stores the user ID and username
// in the request context. Requests without a valid access token get 401 with
// the standard error body. Refresh tokens are rejected here; they are only
// accepted by the token refresh endpoint.
func RequireAuth(jwtService *auth.JWTService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				writeAuthError(w, r, "Authentication required")
				return
			}

			claims, err := jwtService.ValidateToken(token)
			if err != nil || claims.Type != auth.TokenTypeAccess {
				writeAuthError(w, r, "Invalid or expired token")
				return
			}
			userID, err := claims.UserID()
			if err != nil {
				writeAuthError(w, r, "Invalid or expired token")
				return
			}

			ctx := SetUserID(r.Context(), userID)
			ctx = SetUsername(ctx, claims.Username)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalAuth populates the user ID and username when a valid access token
// is present, and passes the request through untouched otherwise. Used on
// read endpoints that personalise results for signed-in users.
func OptionalAuth(jwtService *auth.JWTService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}
			claims, err := jwtService.ValidateToken(token)
			if err != nil || claims.Type != auth.TokenTypeAccess {
				next.ServeHTTP(w, r)
				return
			}
			userID, err := claims.UserID()
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}
			ctx := SetUserID(r.Context(), userID)
			ctx = SetUsername(ctx, claims.Username)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// writeAuthError mirrors the api package's error body without importing it,
// keeping middleware free of an import cycle.
func writeAuthError(w http.ResponseWriter, r *http.Request, message string) {
	ctx := SetErrorCode(r.Context(), "auth_failed")
	UpdateResponseContext(w, ctx)
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":{"code":"auth_failed","message":"` + message + `"}}`))
}
