package middleware

import (
	"testing"
)

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		expected string
	}{
		// Static routes - no normalization
		{
			name:     "root path",
			path:     "/",
			expected: "/",
		},
		{
			name:     "events collection",
			path:     "/events",
			expected: "/events",
		},
		{
			name:     "events read",
			path:     "/events/read",
			expected: "/events/read",
		},
		{
			name:     "events search",
			path:     "/events/search",
			expected: "/events/search",
		},
		{
			name:     "health endpoint",
			path:     "/health",
			expected: "/health",
		},
		{
			name:     "ready endpoint",
			path:     "/ready",
			expected: "/ready",
		},
		{
			name:     "metrics endpoint",
			path:     "/metrics",
			expected: "/metrics",
		},

		// Auth routes are static
		{
			name:     "register",
			path:     "/auth/register",
			expected: "/auth/register",
		},
		{
			name:     "login",
			path:     "/auth/login",
			expected: "/auth/login",
		},

		// Events patterns
		{
			name:     "event by id",
			path:     "/events/123",
			expected: "/events/{id}",
		},
		{
			name:     "event cancel",
			path:     "/events/123/cancel",
			expected: "/events/{id}/cancel",
		},
		{
			name:     "event join",
			path:     "/events/456/join",
			expected: "/events/{id}/join",
		},
		{
			name:     "event leave",
			path:     "/events/789/leave",
			expected: "/events/{id}/leave",
		},

		// Users patterns
		{
			name:     "profile routes stay static",
			path:     "/users/me",
			expected: "/users/me",
		},
		{
			name:     "preferences route stays static",
			path:     "/users/me/preferences",
			expected: "/users/me/preferences",
		},
		{
			name:     "public profile by username",
			path:     "/users/warehouse_kid",
			expected: "/users/{username}",
		},

		// Uploads
		{
			name:     "sign upload",
			path:     "/uploads/sign",
			expected: "/uploads/sign",
		},
		{
			name:     "server-side upload",
			path:     "/uploads/image",
			expected: "/uploads/image",
		},

		// Edge cases
		{
			name:     "trailing slash on collection",
			path:     "/events/",
			expected: "/events/",
		},
		{
			name:     "unknown route",
			path:     "/unknown/path",
			expected: "/unknown/path",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := normalizePath(tt.path)
			if result != tt.expected {
				t.Errorf("normalizePath(%q) = %q, want %q", tt.path, result, tt.expected)
			}
		})
	}
}

func TestNormalizePath_CardinalityControl(t *testing.T) {
	// Test that different IDs normalize to the same pattern
	paths := []string{
		"/events/1",
		"/events/2",
		"/events/999",
		"/events/550e8400-e29b-41d4-a716-446655440000",
		"/events/abc-def-ghi",
	}

	expected := "/events/{id}"
	seen := make(map[string]bool)

	for _, path := range paths {
		result := normalizePath(path)
		if result != expected {
			t.Errorf("normalizePath(%q) = %q, want %q", path, result, expected)
		}
		seen[result] = true
	}

	// Should all normalize to the same pattern (low cardinality)
	if len(seen) != 1 {
		t.Errorf("Expected all paths to normalize to single pattern, got %d patterns: %v", len(seen), seen)
	}
}
