package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/onnwee/mingle/internal/auth"
)

const authTestSecret = "wJ6Qk8Qn1v9Qw1Zb2l8Qk9J3p6Qk8Qn1v9Qw1Zb2l8Qk="

func authedHandler(t *testing.T, gotUserID *int64, gotUsername *string) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*gotUserID = GetUserID(r.Context())
		*gotUsername = GetUsername(r.Context())
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequireAuth_ValidToken(t *testing.T) {
	svc := auth.NewJWTService(authTestSecret)
	token, err := svc.GenerateAccessToken(42, "sam")
	if err != nil {
		t.Fatalf("GenerateAccessToken() error = %v", err)
	}

	var userID int64
	var username string
	handler := RequireAuth(svc)(authedHandler(t, &userID, &username))

	req := httptest.NewRequest(http.MethodGet, "/users/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if userID != 42 {
		t.Errorf("user ID in context = %d, want 42", userID)
	}
	if username != "sam" {
		t.Errorf("username in context = %q, want %q", username, "sam")
	}
}

func TestRequireAuth_Rejections(t *testing.T) {
	svc := auth.NewJWTService(authTestSecret)
	refreshToken, err := svc.GenerateRefreshToken(42)
	if err != nil {
		t.Fatalf("GenerateRefreshToken() error = %v", err)
	}
	foreign := auth.NewJWTService("some-other-secret-entirely-here!")
	foreignToken, err := foreign.GenerateAccessToken(42, "sam")
	if err != nil {
		t.Fatalf("GenerateAccessToken() error = %v", err)
	}

	tests := []struct {
		name       string
		authHeader string
	}{
		{"no header", ""},
		{"not bearer", "Basic dXNlcjpwYXNz"},
		{"garbage token", "Bearer not-a-jwt"},
		{"refresh token rejected", "Bearer " + refreshToken},
		{"wrong secret", "Bearer " + foreignToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var userID int64
			var username string
			handler := RequireAuth(svc)(authedHandler(t, &userID, &username))

			req := httptest.NewRequest(http.MethodGet, "/users/me", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", rr.Code)
			}
			if userID != 0 {
				t.Errorf("handler ran with user ID %d, want not called", userID)
			}
		})
	}
}

func TestOptionalAuth(t *testing.T) {
	svc := auth.NewJWTService(authTestSecret)
	token, err := svc.GenerateAccessToken(7, "alex")
	if err != nil {
		t.Fatalf("GenerateAccessToken() error = %v", err)
	}

	tests := []struct {
		name       string
		authHeader string
		wantUserID int64
	}{
		{"anonymous passes through", "", 0},
		{"bad token passes through anonymously", "Bearer junk", 0},
		{"valid token populates context", "Bearer " + token, 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var userID int64
			var username string
			handler := OptionalAuth(svc)(authedHandler(t, &userID, &username))

			req := httptest.NewRequest(http.MethodGet, "/events/read", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", rr.Code)
			}
			if userID != tt.wantUserID {
				t.Errorf("user ID in context = %d, want %d", userID, tt.wantUserID)
			}
		})
	}
}
