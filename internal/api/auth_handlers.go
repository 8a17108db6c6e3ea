package api

import (
	"context"
	"encoding/json"
	"errors"
	"html"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/onnwee/mingle/internal/auth"
	"github.com/onnwee/mingle/internal/event"
	"github.com/onnwee/mingle/internal/mail"
	"github.com/onnwee/mingle/internal/middleware"
	"github.com/onnwee/mingle/internal/user"
	"github.com/onnwee/mingle/internal/validate"
)

// Username validation constraints.
const (
	MinUsernameLength = 3
	MaxUsernameLength = 30
)

// RegisterRequest represents the request body for user registration.
type RegisterRequest struct {
	Username    string   `json:"username"`
	Email       string   `json:"email"`
	Password    string   `json:"password"`
	FirstName   string   `json:"first_name"`
	LastName    string   `json:"last_name"`
	BirthDate   string   `json:"birth_date,omitempty"`
	Preferences []string `json:"preferences,omitempty"`
}

// LoginRequest represents the request body for login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// TokenPairResponse carries a fresh access/refresh token pair.
type TokenPairResponse struct {
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token"`
	User         *user.User `json:"user,omitempty"`
}

// RefreshRequest represents the request body for token refresh.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// VerifyRequest represents the request body for email verification.
type VerifyRequest struct {
	Token string `json:"token"`
}

// ForgotPasswordRequest represents the request body for a reset-token
// request.
type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

// ResetPasswordRequest represents the request body for completing a
// password reset.
type ResetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

// TokenIssuer is the subset of auth.TokenStore the handlers use.
type TokenIssuer interface {
	IssueVerify(ctx context.Context, userID int64) (string, error)
	IssuePasswordReset(ctx context.Context, userID int64) (string, error)
	Consume(ctx context.Context, purpose, token string) (int64, error)
}

// AuthHandlers holds dependencies for authentication HTTP handlers.
type AuthHandlers struct {
	userRepo   user.Repository
	jwtService *auth.JWTService
	tokens     TokenIssuer
	mailer     mail.Sender
}

// NewAuthHandlers creates a new AuthHandlers instance. tokens may be nil
// when no Redis is configured; verification and password-reset endpoints
// then report an internal error instead of issuing tokens. Tokens are
// delivered through mailer only, never in a response body.
func NewAuthHandlers(userRepo user.Repository, jwtService *auth.JWTService, tokens TokenIssuer, mailer mail.Sender) *AuthHandlers {
	return &AuthHandlers{
		userRepo:   userRepo,
		jwtService: jwtService,
		tokens:     tokens,
		mailer:     mailer,
	}
}

// validateUsername validates username length and characters.
// Returns error message if validation fails, empty string if valid.
func validateUsername(username string) string {
	if len(username) < MinUsernameLength {
		return "username must be at least 3 characters"
	}
	if len(username) > MaxUsernameLength {
		return "username must not exceed 30 characters"
	}
	for _, c := range username {
		if !((c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_' || c == '-' || c == '.') {
			return "username may only contain letters, digits, '_', '-' and '.'"
		}
	}
	return ""
}

// Register handles POST /auth/register - creates a user account and issues
// an email verification token.
func (h *AuthHandlers) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	if errMsg := validateUsername(req.Username); errMsg != "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, errMsg)
		return
	}
	email, err := validate.Email(req.Email)
	if err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "Invalid email address")
		return
	}
	var birthDate *time.Time
	if req.BirthDate != "" {
		parsed, err := time.Parse("2006-01-02", req.BirthDate)
		if err != nil {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "birth_date must be formatted as YYYY-MM-DD")
			return
		}
		birthDate = &parsed
	}
	for _, p := range req.Preferences {
		if !event.ValidCategory(p) {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeInvalidCategory)
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeInvalidCategory, "Unknown preference category: "+p)
			return
		}
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrPasswordLength) {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, err.Error())
			return
		}
		slog.ErrorContext(r.Context(), "failed to hash password", "error", err)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to register")
		return
	}

	newUser := &user.User{
		Username:     req.Username,
		Email:        email,
		FirstName:    html.EscapeString(strings.TrimSpace(req.FirstName)),
		LastName:     html.EscapeString(strings.TrimSpace(req.LastName)),
		PasswordHash: hash,
		BirthDate:    birthDate,
		Preferences:  req.Preferences,
	}

	id, err := h.userRepo.Create(r.Context(), newUser)
	if err != nil {
		switch {
		case errors.Is(err, user.ErrUsernameTaken):
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeUsernameTaken)
			WriteError(w, ctx, http.StatusConflict, ErrCodeUsernameTaken, "Username is already taken")
		case errors.Is(err, user.ErrEmailTaken):
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeEmailTaken)
			WriteError(w, ctx, http.StatusConflict, ErrCodeEmailTaken, "Email is already registered")
		default:
			slog.ErrorContext(r.Context(), "failed to create user", "error", err)
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
			WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to register")
		}
		return
	}
	newUser.ID = id
	newUser.FirstLogin = true

	// The verification token travels by email only; without a token store
	// the account simply stays unverified.
	if h.tokens != nil && h.mailer != nil {
		token, err := h.tokens.IssueVerify(r.Context(), id)
		if err != nil {
			slog.ErrorContext(r.Context(), "failed to issue verify token", "error", err, "user_id", id)
		} else if err := h.mailer.SendVerification(r.Context(), email, token); err != nil {
			slog.ErrorContext(r.Context(), "failed to send verification email", "error", err, "user_id", id)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(map[string]any{"user": newUser}); err != nil {
		slog.ErrorContext(r.Context(), "failed to encode register response", "error", err)
	}
}

// Login handles POST /auth/login - verifies credentials and issues a token
// pair.
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return
	}

	account, err := h.userRepo.GetByUsername(r.Context(), req.Username)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeAuthFailed)
			WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "Invalid username or password")
			return
		}
		slog.ErrorContext(r.Context(), "failed to load user for login", "error", err)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to log in")
		return
	}

	if err := auth.CheckPassword(req.Password, account.PasswordHash); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeAuthFailed)
		WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "Invalid username or password")
		return
	}

	// The response still reports first_login=true on the first successful
	// login; the flag is cleared for subsequent ones.
	if account.FirstLogin {
		if err := h.userRepo.MarkLoggedIn(r.Context(), account.ID); err != nil {
			slog.ErrorContext(r.Context(), "failed to clear first-login flag", "error", err, "user_id", account.ID)
		}
	}

	h.writeTokenPair(w, r, account, true)
}

// Refresh handles POST /auth/refresh - exchanges a valid refresh token for
// a fresh token pair.
func (h *AuthHandlers) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return
	}

	claims, err := h.jwtService.ValidateToken(req.RefreshToken)
	if err != nil || claims.Type != auth.TokenTypeRefresh {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeAuthFailed)
		WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "Invalid or expired refresh token")
		return
	}
	userID, err := claims.UserID()
	if err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeAuthFailed)
		WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "Invalid or expired refresh token")
		return
	}

	account, err := h.userRepo.GetByID(r.Context(), userID)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeAuthFailed)
			WriteError(w, ctx, http.StatusUnauthorized, ErrCodeAuthFailed, "Invalid or expired refresh token")
			return
		}
		slog.ErrorContext(r.Context(), "failed to load user for refresh", "error", err, "user_id", userID)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to refresh tokens")
		return
	}

	h.writeTokenPair(w, r, account, false)
}

// Verify handles POST /auth/verify - consumes a one-time verify token and
// marks the account verified.
func (h *AuthHandlers) Verify(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return
	}
	if h.tokens == nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Verification is not available")
		return
	}

	userID, err := h.tokens.Consume(r.Context(), auth.PurposeVerifyEmail, req.Token)
	if err != nil {
		if errors.Is(err, auth.ErrTokenNotFound) {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeNotFound)
			WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "Verification token is invalid or expired")
			return
		}
		slog.ErrorContext(r.Context(), "failed to consume verify token", "error", err)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to verify account")
		return
	}

	if err := h.userRepo.MarkVerified(r.Context(), userID); err != nil {
		slog.ErrorContext(r.Context(), "failed to mark user verified", "error", err, "user_id", userID)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to verify account")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(map[string]any{"verified": true}); err != nil {
		slog.ErrorContext(r.Context(), "failed to encode verify response", "error", err)
	}
}

// ForgotPassword handles POST /auth/forgot-password - issues a one-time
// reset token for the account behind the given email. Responds identically
// whether or not the email is registered.
func (h *AuthHandlers) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req ForgotPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return
	}
	if h.tokens == nil || h.mailer == nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Password reset is not available")
		return
	}

	account, err := h.userRepo.GetByEmail(r.Context(), req.Email)
	if err != nil {
		if !errors.Is(err, user.ErrUserNotFound) {
			slog.ErrorContext(r.Context(), "failed to load user for password reset", "error", err)
		}
	} else {
		token, err := h.tokens.IssuePasswordReset(r.Context(), account.ID)
		if err != nil {
			slog.ErrorContext(r.Context(), "failed to issue reset token", "error", err, "user_id", account.ID)
		} else if err := h.mailer.SendPasswordReset(r.Context(), account.Email, token); err != nil {
			slog.ErrorContext(r.Context(), "failed to send reset email", "error", err, "user_id", account.ID)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(map[string]any{
		"message": "If the email is registered, a reset link has been sent",
	}); err != nil {
		slog.ErrorContext(r.Context(), "failed to encode forgot-password response", "error", err)
	}
}

// ResetPassword handles POST /auth/reset-password - consumes a one-time
// reset token and stores the new password hash.
func (h *AuthHandlers) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return
	}
	if h.tokens == nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Password reset is not available")
		return
	}

	hash, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		if errors.Is(err, auth.ErrPasswordLength) {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, err.Error())
			return
		}
		slog.ErrorContext(r.Context(), "failed to hash password", "error", err)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to reset password")
		return
	}

	userID, err := h.tokens.Consume(r.Context(), auth.PurposePasswordReset, req.Token)
	if err != nil {
		if errors.Is(err, auth.ErrTokenNotFound) {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeNotFound)
			WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "Reset token is invalid or expired")
			return
		}
		slog.ErrorContext(r.Context(), "failed to consume reset token", "error", err)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to reset password")
		return
	}

	if err := h.userRepo.UpdatePassword(r.Context(), userID, hash); err != nil {
		slog.ErrorContext(r.Context(), "failed to store new password", "error", err, "user_id", userID)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to reset password")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(map[string]any{"reset": true}); err != nil {
		slog.ErrorContext(r.Context(), "failed to encode reset response", "error", err)
	}
}

// writeTokenPair issues and writes a fresh access/refresh pair for account.
func (h *AuthHandlers) writeTokenPair(w http.ResponseWriter, r *http.Request, account *user.User, includeUser bool) {
	access, err := h.jwtService.GenerateAccessToken(account.ID, account.Username)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to generate access token", "error", err, "user_id", account.ID)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to issue tokens")
		return
	}
	refresh, err := h.jwtService.GenerateRefreshToken(account.ID)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to generate refresh token", "error", err, "user_id", account.ID)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to issue tokens")
		return
	}

	response := TokenPairResponse{AccessToken: access, RefreshToken: refresh}
	if includeUser {
		response.User = account
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		slog.ErrorContext(r.Context(), "failed to encode token response", "error", err)
	}
}
