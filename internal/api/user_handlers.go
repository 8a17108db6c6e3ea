package api

import (
	"encoding/json"
	"errors"
	"html"
	"log/slog"
	"net/http"
	"strings"

	"github.com/onnwee/mingle/internal/event"
	"github.com/onnwee/mingle/internal/geo"
	"github.com/onnwee/mingle/internal/middleware"
	"github.com/onnwee/mingle/internal/participation"
	"github.com/onnwee/mingle/internal/user"
)

// UpdateProfileRequest represents the request body for profile updates.
// Nil fields are left unchanged.
type UpdateProfileRequest struct {
	FirstName *string `json:"first_name,omitempty"`
	LastName  *string `json:"last_name,omitempty"`
}

// UpdatePreferencesRequest replaces the user's category preferences.
type UpdatePreferencesRequest struct {
	Preferences []string `json:"preferences"`
}

// UpdateCoordinatesRequest sets the user's home coordinates.
type UpdateCoordinatesRequest struct {
	Longitude float64 `json:"longitude"`
	Latitude  float64 `json:"latitude"`
}

// PublicProfile is the subset of a user record visible to other users.
type PublicProfile struct {
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Verified    bool   `json:"verified"`
}

// UserHandlers holds dependencies for user HTTP handlers.
type UserHandlers struct {
	userRepo user.Repository
	partRepo participation.Repository
}

// NewUserHandlers creates a new UserHandlers instance.
func NewUserHandlers(userRepo user.Repository, partRepo participation.Repository) *UserHandlers {
	return &UserHandlers{
		userRepo: userRepo,
		partRepo: partRepo,
	}
}

// currentUser loads the authenticated user's record or writes the
// appropriate error. The second return is false when a response has already
// been written.
func (h *UserHandlers) currentUser(w http.ResponseWriter, r *http.Request) (*user.User, bool) {
	userID := middleware.GetUserID(r.Context())
	if userID == 0 {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeAuthFailed)
		WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "Authentication required")
		return nil, false
	}
	account, err := h.userRepo.GetByID(r.Context(), userID)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeAuthFailed)
			WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "Account no longer exists")
			return nil, false
		}
		slog.ErrorContext(r.Context(), "failed to load user", "error", err, "user_id", userID)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to load account")
		return nil, false
	}
	return account, true
}

// Me handles GET /users/me - returns the authenticated user's record with
// the IDs of events they have joined.
func (h *UserHandlers) Me(w http.ResponseWriter, r *http.Request) {
	account, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	joined, err := h.partRepo.ListForUser(r.Context(), account.ID)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to list joined events", "error", err, "user_id", account.ID)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to load account")
		return
	}
	if joined == nil {
		joined = []int64{}
	}

	response := struct {
		*user.User
		JoinedEvents []int64 `json:"joined_events"`
	}{account, joined}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		slog.ErrorContext(r.Context(), "failed to encode user response", "error", err)
	}
}

// UpdateProfile handles PATCH /users/me - updates name fields.
func (h *UserHandlers) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	account, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	var req UpdateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return
	}

	if req.FirstName != nil {
		account.FirstName = html.EscapeString(strings.TrimSpace(*req.FirstName))
	}
	if req.LastName != nil {
		account.LastName = html.EscapeString(strings.TrimSpace(*req.LastName))
	}

	if err := h.userRepo.UpdateProfile(r.Context(), account); err != nil {
		slog.ErrorContext(r.Context(), "failed to update profile", "error", err, "user_id", account.ID)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to update profile")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(account); err != nil {
		slog.ErrorContext(r.Context(), "failed to encode user response", "error", err)
	}
}

// UpdatePreferences handles PUT /users/me/preferences - replaces the
// category preference set.
func (h *UserHandlers) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	account, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	var req UpdatePreferencesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return
	}
	for _, p := range req.Preferences {
		if !event.ValidCategory(p) {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeInvalidCategory)
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeInvalidCategory, "Unknown preference category: "+p)
			return
		}
	}

	account.Preferences = req.Preferences
	if err := h.userRepo.UpdateProfile(r.Context(), account); err != nil {
		slog.ErrorContext(r.Context(), "failed to update preferences", "error", err, "user_id", account.ID)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to update preferences")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(account); err != nil {
		slog.ErrorContext(r.Context(), "failed to encode user response", "error", err)
	}
}

// UpdateCoordinates handles PUT /users/me/coordinates - stores the user's
// home position for distance ranking.
func (h *UserHandlers) UpdateCoordinates(w http.ResponseWriter, r *http.Request) {
	account, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	var req UpdateCoordinatesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return
	}
	if !geo.ValidCoordinate(req.Longitude, req.Latitude) {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInvalidCoordinate)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeInvalidCoordinate, "Coordinates are out of range")
		return
	}

	if err := h.userRepo.UpdateCoordinates(r.Context(), account.ID, req.Longitude, req.Latitude); err != nil {
		slog.ErrorContext(r.Context(), "failed to update coordinates", "error", err, "user_id", account.ID)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to update coordinates")
		return
	}

	account.Longitude = &req.Longitude
	account.Latitude = &req.Latitude

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(account); err != nil {
		slog.ErrorContext(r.Context(), "failed to encode user response", "error", err)
	}
}

// GetByUsername handles GET /users/{username} - returns a public profile.
func (h *UserHandlers) GetByUsername(w http.ResponseWriter, r *http.Request) {
	username := strings.TrimPrefix(r.URL.Path, "/users/")
	if username == "" || strings.Contains(username, "/") {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Username is required")
		return
	}

	account, err := h.userRepo.GetByUsername(r.Context(), username)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeNotFound)
			WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "User not found")
			return
		}
		slog.ErrorContext(r.Context(), "failed to load user", "error", err, "username", username)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to load user")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(PublicProfile{
		Username:    account.Username,
		DisplayName: account.DisplayName(),
		Verified:    account.Verified,
	}); err != nil {
		slog.ErrorContext(r.Context(), "failed to encode profile response", "error", err)
	}
}
