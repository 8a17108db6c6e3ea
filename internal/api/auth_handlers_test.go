package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/onnwee/mingle/internal/auth"
	"github.com/onnwee/mingle/internal/user"
)

func newAuthFixture(t *testing.T) (*AuthHandlers, *user.InMemoryRepository, *auth.JWTService) {
	t.Helper()
	userRepo := user.NewInMemoryRepository()
	jwtService := auth.NewJWTService("test-secret-key")
	handlers := NewAuthHandlers(userRepo, jwtService, nil, nil)
	return handlers, userRepo, jwtService
}

func registerBody(username, email, password string) string {
	body, _ := json.Marshal(RegisterRequest{
		Username:  username,
		Email:     email,
		Password:  password,
		FirstName: "Test",
		LastName:  "User",
	})
	return string(body)
}

func TestRegister_Success(t *testing.T) {
	handlers, _, _ := newAuthFixture(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/auth/register", strings.NewReader(registerBody("newuser", "new@example.com", "supersecret")))
	handlers.Register(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d. Body: %s", w.Code, w.Body.String())
	}
	body := w.Body.String()
	var resp struct {
		User *user.User `json:"user"`
	}
	if err := json.NewDecoder(strings.NewReader(body)).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.User == nil || resp.User.Username != "newuser" {
		t.Errorf("expected created user in response, got %+v", resp.User)
	}
	if resp.User.ID == 0 {
		t.Error("expected assigned user ID")
	}
	// Verification tokens travel by email, never in the response body.
	if strings.Contains(body, "verify_token") {
		t.Errorf("verify token leaked into register response: %s", body)
	}
}

func TestRegister_Validation(t *testing.T) {
	handlers, _, _ := newAuthFixture(t)

	tests := []struct {
		name     string
		body     string
		wantCode string
	}{
		{
			name:     "username too short",
			body:     registerBody("ab", "a@example.com", "supersecret"),
			wantCode: ErrCodeValidation,
		},
		{
			name:     "username bad characters",
			body:     registerBody("bad user!", "a@example.com", "supersecret"),
			wantCode: ErrCodeValidation,
		},
		{
			name:     "invalid email",
			body:     registerBody("gooduser", "not-an-email", "supersecret"),
			wantCode: ErrCodeValidation,
		},
		{
			name:     "password too short",
			body:     registerBody("gooduser", "a@example.com", "short"),
			wantCode: ErrCodeValidation,
		},
		{
			name:     "unknown preference",
			body:     `{"username": "gooduser", "email": "a@example.com", "password": "supersecret", "preferences": ["XX"]}`,
			wantCode: ErrCodeInvalidCategory,
		},
		{
			name:     "malformed json",
			body:     `{"username": `,
			wantCode: ErrCodeBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest("POST", "/auth/register", strings.NewReader(tt.body))
			handlers.Register(w, req)

			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected status 400, got %d. Body: %s", w.Code, w.Body.String())
			}
			var resp ErrorResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("failed to decode error response: %v", err)
			}
			if resp.Error.Code != tt.wantCode {
				t.Errorf("expected error code %q, got %q", tt.wantCode, resp.Error.Code)
			}
		})
	}
}

func TestRegister_DuplicateUsername(t *testing.T) {
	handlers, _, _ := newAuthFixture(t)

	first := httptest.NewRecorder()
	handlers.Register(first, httptest.NewRequest("POST", "/auth/register", strings.NewReader(registerBody("taken", "first@example.com", "supersecret"))))
	if first.Code != http.StatusCreated {
		t.Fatalf("setup register failed: %d", first.Code)
	}

	w := httptest.NewRecorder()
	handlers.Register(w, httptest.NewRequest("POST", "/auth/register", strings.NewReader(registerBody("taken", "second@example.com", "supersecret"))))

	if w.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d. Body: %s", w.Code, w.Body.String())
	}
	var resp ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	if resp.Error.Code != ErrCodeUsernameTaken {
		t.Errorf("expected error code %q, got %q", ErrCodeUsernameTaken, resp.Error.Code)
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	handlers, _, _ := newAuthFixture(t)

	first := httptest.NewRecorder()
	handlers.Register(first, httptest.NewRequest("POST", "/auth/register", strings.NewReader(registerBody("userone", "same@example.com", "supersecret"))))
	if first.Code != http.StatusCreated {
		t.Fatalf("setup register failed: %d", first.Code)
	}

	w := httptest.NewRecorder()
	handlers.Register(w, httptest.NewRequest("POST", "/auth/register", strings.NewReader(registerBody("usertwo", "same@example.com", "supersecret"))))

	if w.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d. Body: %s", w.Code, w.Body.String())
	}
	var resp ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	if resp.Error.Code != ErrCodeEmailTaken {
		t.Errorf("expected error code %q, got %q", ErrCodeEmailTaken, resp.Error.Code)
	}
}

func TestRegister_BirthDate(t *testing.T) {
	handlers, _, _ := newAuthFixture(t)

	w := httptest.NewRecorder()
	handlers.Register(w, httptest.NewRequest("POST", "/auth/register", strings.NewReader(
		`{"username": "dated", "email": "dated@example.com", "password": "supersecret", "birth_date": "1994-06-15"}`)))

	if w.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d. Body: %s", w.Code, w.Body.String())
	}
	var resp struct {
		User *user.User `json:"user"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.User.BirthDate == nil {
		t.Fatal("expected birth date on created user")
	}
	if got := resp.User.BirthDate.Format("2006-01-02"); got != "1994-06-15" {
		t.Errorf("expected birth date 1994-06-15, got %s", got)
	}
}

func TestRegister_BirthDateMalformed(t *testing.T) {
	handlers, _, _ := newAuthFixture(t)

	w := httptest.NewRecorder()
	handlers.Register(w, httptest.NewRequest("POST", "/auth/register", strings.NewReader(
		`{"username": "dated", "email": "dated@example.com", "password": "supersecret", "birth_date": "15/06/1994"}`)))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d. Body: %s", w.Code, w.Body.String())
	}
	var resp ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	if resp.Error.Code != ErrCodeValidation {
		t.Errorf("expected error code %q, got %q", ErrCodeValidation, resp.Error.Code)
	}
}

// fakeTokenIssuer hands out predictable one-time tokens.
type fakeTokenIssuer struct {
	issued map[string]int64
}

func newFakeTokenIssuer() *fakeTokenIssuer {
	return &fakeTokenIssuer{issued: make(map[string]int64)}
}

func (f *fakeTokenIssuer) IssueVerify(_ context.Context, userID int64) (string, error) {
	token := "verify-" + strconv.FormatInt(userID, 10)
	f.issued[auth.PurposeVerifyEmail+":"+token] = userID
	return token, nil
}

func (f *fakeTokenIssuer) IssuePasswordReset(_ context.Context, userID int64) (string, error) {
	token := "reset-" + strconv.FormatInt(userID, 10)
	f.issued[auth.PurposePasswordReset+":"+token] = userID
	return token, nil
}

func (f *fakeTokenIssuer) Consume(_ context.Context, purpose, token string) (int64, error) {
	userID, ok := f.issued[purpose+":"+token]
	if !ok {
		return 0, auth.ErrTokenNotFound
	}
	delete(f.issued, purpose+":"+token)
	return userID, nil
}

// recordingMailer captures deliveries for assertions.
type recordingMailer struct {
	verifyEmail, verifyToken string
	resetEmail, resetToken   string
}

func (m *recordingMailer) SendVerification(_ context.Context, email, token string) error {
	m.verifyEmail, m.verifyToken = email, token
	return nil
}

func (m *recordingMailer) SendPasswordReset(_ context.Context, email, token string) error {
	m.resetEmail, m.resetToken = email, token
	return nil
}

func TestRegister_VerifyTokenDeliveredByMailOnly(t *testing.T) {
	userRepo := user.NewInMemoryRepository()
	mailer := &recordingMailer{}
	handlers := NewAuthHandlers(userRepo, auth.NewJWTService("test-secret-key"), newFakeTokenIssuer(), mailer)

	w := httptest.NewRecorder()
	handlers.Register(w, httptest.NewRequest("POST", "/auth/register", strings.NewReader(registerBody("mailuser", "mail@example.com", "supersecret"))))

	if w.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d. Body: %s", w.Code, w.Body.String())
	}
	if mailer.verifyEmail != "mail@example.com" || mailer.verifyToken == "" {
		t.Errorf("expected verification mail to mail@example.com, got email=%q token=%q", mailer.verifyEmail, mailer.verifyToken)
	}
	if strings.Contains(w.Body.String(), mailer.verifyToken) {
		t.Errorf("verify token leaked into register response: %s", w.Body.String())
	}
}

func TestForgotPassword_TokenDeliveredByMailOnly(t *testing.T) {
	userRepo := user.NewInMemoryRepository()
	mailer := &recordingMailer{}
	handlers := NewAuthHandlers(userRepo, auth.NewJWTService("test-secret-key"), newFakeTokenIssuer(), mailer)

	reg := httptest.NewRecorder()
	handlers.Register(reg, httptest.NewRequest("POST", "/auth/register", strings.NewReader(registerBody("mailuser", "mail@example.com", "supersecret"))))
	if reg.Code != http.StatusCreated {
		t.Fatalf("setup register failed: %d", reg.Code)
	}

	w := httptest.NewRecorder()
	handlers.ForgotPassword(w, httptest.NewRequest("POST", "/auth/forgot-password", strings.NewReader(`{"email": "mail@example.com"}`)))

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d. Body: %s", w.Code, w.Body.String())
	}
	if mailer.resetEmail != "mail@example.com" || mailer.resetToken == "" {
		t.Errorf("expected reset mail to mail@example.com, got email=%q token=%q", mailer.resetEmail, mailer.resetToken)
	}
	if strings.Contains(w.Body.String(), mailer.resetToken) {
		t.Errorf("reset token leaked into forgot-password response: %s", w.Body.String())
	}
}

func TestVerify_ConsumesMailedToken(t *testing.T) {
	userRepo := user.NewInMemoryRepository()
	mailer := &recordingMailer{}
	handlers := NewAuthHandlers(userRepo, auth.NewJWTService("test-secret-key"), newFakeTokenIssuer(), mailer)

	reg := httptest.NewRecorder()
	handlers.Register(reg, httptest.NewRequest("POST", "/auth/register", strings.NewReader(registerBody("mailuser", "mail@example.com", "supersecret"))))
	if reg.Code != http.StatusCreated {
		t.Fatalf("setup register failed: %d", reg.Code)
	}

	w := httptest.NewRecorder()
	handlers.Verify(w, httptest.NewRequest("POST", "/auth/verify", strings.NewReader(`{"token": "`+mailer.verifyToken+`"}`)))
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d. Body: %s", w.Code, w.Body.String())
	}

	account, err := userRepo.GetByUsername(context.Background(), "mailuser")
	if err != nil {
		t.Fatalf("failed to reload user: %v", err)
	}
	if !account.Verified {
		t.Error("expected account verified after consuming the mailed token")
	}
}

func TestLogin_Success(t *testing.T) {
	handlers, _, jwtService := newAuthFixture(t)

	reg := httptest.NewRecorder()
	handlers.Register(reg, httptest.NewRequest("POST", "/auth/register", strings.NewReader(registerBody("loginuser", "login@example.com", "supersecret"))))
	if reg.Code != http.StatusCreated {
		t.Fatalf("setup register failed: %d", reg.Code)
	}

	w := httptest.NewRecorder()
	handlers.Login(w, httptest.NewRequest("POST", "/auth/login", strings.NewReader(`{"username": "loginuser", "password": "supersecret"}`)))

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d. Body: %s", w.Code, w.Body.String())
	}
	var resp TokenPairResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.AccessToken == "" || resp.RefreshToken == "" {
		t.Fatal("expected both tokens in response")
	}
	if resp.User == nil || resp.User.Username != "loginuser" {
		t.Errorf("expected user echoed on login, got %+v", resp.User)
	}

	claims, err := jwtService.ValidateToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("access token does not validate: %v", err)
	}
	if claims.Type != auth.TokenTypeAccess {
		t.Errorf("expected access token type, got %q", claims.Type)
	}
}

func TestLogin_FirstLoginFlag(t *testing.T) {
	handlers, userRepo, _ := newAuthFixture(t)

	reg := httptest.NewRecorder()
	handlers.Register(reg, httptest.NewRequest("POST", "/auth/register", strings.NewReader(registerBody("firsttimer", "first@example.com", "supersecret"))))
	if reg.Code != http.StatusCreated {
		t.Fatalf("setup register failed: %d", reg.Code)
	}

	login := func() TokenPairResponse {
		t.Helper()
		w := httptest.NewRecorder()
		handlers.Login(w, httptest.NewRequest("POST", "/auth/login", strings.NewReader(`{"username": "firsttimer", "password": "supersecret"}`)))
		if w.Code != http.StatusOK {
			t.Fatalf("login failed: %d. Body: %s", w.Code, w.Body.String())
		}
		var resp TokenPairResponse
		if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		return resp
	}

	if resp := login(); !resp.User.FirstLogin {
		t.Error("expected first_login=true on the first login")
	}
	if resp := login(); resp.User.FirstLogin {
		t.Error("expected first_login=false on the second login")
	}

	account, err := userRepo.GetByUsername(context.Background(), "firsttimer")
	if err != nil {
		t.Fatalf("failed to reload user: %v", err)
	}
	if account.FirstLogin {
		t.Error("expected first-login flag cleared in the repository")
	}
}

func TestLogin_WrongCredentials(t *testing.T) {
	handlers, _, _ := newAuthFixture(t)

	reg := httptest.NewRecorder()
	handlers.Register(reg, httptest.NewRequest("POST", "/auth/register", strings.NewReader(registerBody("loginuser", "login@example.com", "supersecret"))))

	tests := []struct {
		name string
		body string
	}{
		{name: "wrong password", body: `{"username": "loginuser", "password": "wrongpassword"}`},
		{name: "unknown user", body: `{"username": "nobody", "password": "supersecret"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			handlers.Login(w, httptest.NewRequest("POST", "/auth/login", strings.NewReader(tt.body)))

			if w.Code != http.StatusUnauthorized {
				t.Fatalf("expected status 401, got %d", w.Code)
			}
			var resp ErrorResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("failed to decode error response: %v", err)
			}
			// Same message either way so callers cannot probe for usernames.
			if resp.Error.Message != "Invalid username or password" {
				t.Errorf("unexpected error message: %q", resp.Error.Message)
			}
		})
	}
}

func TestRefresh_Success(t *testing.T) {
	handlers, userRepo, jwtService := newAuthFixture(t)
	id, err := userRepo.Create(context.Background(), &user.User{
		Username: "refresher", Email: "r@example.com", PasswordHash: "x",
	})
	if err != nil {
		t.Fatalf("failed to seed user: %v", err)
	}
	refresh, err := jwtService.GenerateRefreshToken(id)
	if err != nil {
		t.Fatalf("failed to generate refresh token: %v", err)
	}

	body, _ := json.Marshal(RefreshRequest{RefreshToken: refresh})
	w := httptest.NewRecorder()
	handlers.Refresh(w, httptest.NewRequest("POST", "/auth/refresh", strings.NewReader(string(body))))

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d. Body: %s", w.Code, w.Body.String())
	}
	var resp TokenPairResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.AccessToken == "" || resp.RefreshToken == "" {
		t.Error("expected a fresh token pair")
	}
	if resp.User != nil {
		t.Error("refresh response should not include the user")
	}
}

func TestRefresh_RejectsAccessToken(t *testing.T) {
	handlers, userRepo, jwtService := newAuthFixture(t)
	id, err := userRepo.Create(context.Background(), &user.User{
		Username: "refresher", Email: "r@example.com", PasswordHash: "x",
	})
	if err != nil {
		t.Fatalf("failed to seed user: %v", err)
	}
	access, err := jwtService.GenerateAccessToken(id, "refresher")
	if err != nil {
		t.Fatalf("failed to generate access token: %v", err)
	}

	body, _ := json.Marshal(RefreshRequest{RefreshToken: access})
	w := httptest.NewRecorder()
	handlers.Refresh(w, httptest.NewRequest("POST", "/auth/refresh", strings.NewReader(string(body))))

	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected status 401 for access token on refresh endpoint, got %d", w.Code)
	}
}

func TestRefresh_RejectsGarbageToken(t *testing.T) {
	handlers, _, _ := newAuthFixture(t)

	w := httptest.NewRecorder()
	handlers.Refresh(w, httptest.NewRequest("POST", "/auth/refresh", strings.NewReader(`{"refresh_token": "not.a.jwt"}`)))

	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected status 401, got %d", w.Code)
	}
}

func TestRefresh_DeletedUser(t *testing.T) {
	handlers, _, jwtService := newAuthFixture(t)
	refresh, err := jwtService.GenerateRefreshToken(999)
	if err != nil {
		t.Fatalf("failed to generate refresh token: %v", err)
	}

	body, _ := json.Marshal(RefreshRequest{RefreshToken: refresh})
	w := httptest.NewRecorder()
	handlers.Refresh(w, httptest.NewRequest("POST", "/auth/refresh", strings.NewReader(string(body))))

	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected status 401 for token of a deleted account, got %d", w.Code)
	}
}

func TestVerify_UnavailableWithoutTokenStore(t *testing.T) {
	handlers, _, _ := newAuthFixture(t)

	w := httptest.NewRecorder()
	handlers.Verify(w, httptest.NewRequest("POST", "/auth/verify", strings.NewReader(`{"token": "abc"}`)))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected status 500 without a token store, got %d", w.Code)
	}
}

func TestForgotPassword_UnavailableWithoutTokenStore(t *testing.T) {
	handlers, _, _ := newAuthFixture(t)

	w := httptest.NewRecorder()
	handlers.ForgotPassword(w, httptest.NewRequest("POST", "/auth/forgot-password", strings.NewReader(`{"email": "a@example.com"}`)))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected status 500 without a token store, got %d", w.Code)
	}
}
