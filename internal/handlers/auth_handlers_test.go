package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	redislib "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/Manan-Coder/site-cohortize/internal/config"
	"github.com/Manan-Coder/site-cohortize/internal/middleware"
	"github.com/Manan-Coder/site-cohortize/internal/models"
	"github.com/Manan-Coder/site-cohortize/internal/repository"
	"github.com/Manan-Coder/site-cohortize/internal/service"
)

type fakeDirectory struct {
	users   map[string]*models.User
	findErr error
}

func (d *fakeDirectory) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if d.findErr != nil {
		return nil, d.findErr
	}
	return d.users[email], nil
}

func (d *fakeDirectory) Create(ctx context.Context, user *models.User) error {
	if _, ok := d.users[user.Email]; ok {
		return repository.ErrUserExists
	}
	d.users[user.Email] = user
	return nil
}

func (d *fakeDirectory) UpdatePassword(ctx context.Context, email, passwordHash string) error {
	user, ok := d.users[email]
	if !ok {
		return fmt.Errorf("user not found")
	}
	user.PasswordHash = passwordHash
	return nil
}

type fakeMailer struct {
	sent int
	err  error
}

func (m *fakeMailer) Send(ctx context.Context, to, subject, html string) error {
	if m.err != nil {
		return m.err
	}
	m.sent++
	return nil
}

type testEnv struct {
	router    *mux.Router
	directory *fakeDirectory
	mailer    *fakeMailer
	redis     *miniredis.Miniredis
}

func newTestEnv(t *testing.T, production bool) *testEnv {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redislib.NewClient(&redislib.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	directory := &fakeDirectory{users: make(map[string]*models.User)}
	mailer := &fakeMailer{}
	tokens := repository.NewTokenRepository(client, logger)
	otpCfg := &config.OTPConfig{TTL: 600 * time.Second}

	jwtService, err := service.NewJWTService(&config.JWTConfig{
		SecretKey:    "0123456789abcdef0123456789abcdef",
		AccessExpiry: time.Hour,
	}, logger)
	if err != nil {
		t.Fatalf("NewJWTService failed: %v", err)
	}

	resetService := service.NewPasswordResetService(directory, tokens, mailer, otpCfg, logger)
	accountService := service.NewAccountService(directory, tokens, mailer, jwtService, otpCfg, logger)
	authHandlers := NewAuthHandlers(resetService, accountService, production, logger)
	authMiddleware := middleware.NewAuthMiddleware(jwtService, logger)

	router := mux.NewRouter()
	router.HandleFunc("/password-reset/request", authHandlers.RequestPasswordReset).Methods("POST")
	router.HandleFunc("/password-reset/confirm", authHandlers.ConfirmPasswordReset).Methods("POST")
	router.HandleFunc("/auth/signup", authHandlers.Signup).Methods("POST")
	router.HandleFunc("/auth/signup/verify", authHandlers.VerifySignup).Methods("POST")
	router.HandleFunc("/auth/login", authHandlers.Login).Methods("POST")

	protected := router.PathPrefix("/").Subrouter()
	protected.Use(authMiddleware.RequireAuth)
	protected.HandleFunc("/me", func(w http.ResponseWriter, r *http.Request) {
		email := r.Context().Value("email").(string)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(fmt.Sprintf(`{"email":"%s"}`, email)))
	}).Methods("GET")

	return &testEnv{
		router:    router,
		directory: directory,
		mailer:    mailer,
		redis:     mr,
	}
}

func (env *testEnv) addUser(t *testing.T, email, password string) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt failed: %v", err)
	}
	env.directory.users[email] = &models.User{Email: email, PasswordHash: string(hash)}
}

func (env *testEnv) post(t *testing.T, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response %q: %v", rec.Body.String(), err)
	}
	return body
}

func TestRequestPasswordResetMissingEmail(t *testing.T) {
	env := newTestEnv(t, false)

	rec := env.post(t, "/password-reset/request", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if got := decodeBody(t, rec)["error"]; got != "Email is required" {
		t.Errorf("error = %q", got)
	}
	if env.mailer.sent != 0 || len(env.redis.Keys()) != 0 {
		t.Error("validation failure must not contact collaborators")
	}
}

func TestRequestPasswordResetInvalidFormat(t *testing.T) {
	env := newTestEnv(t, false)

	for _, email := range []string{"not-an-email", "a@b", "two@@example.com", "spaced user@example.com"} {
		rec := env.post(t, "/password-reset/request", fmt.Sprintf(`{"email":%q}`, email))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("email %q: status = %d, want 400", email, rec.Code)
			continue
		}
		if got := decodeBody(t, rec)["error"]; got != "Invalid email format" {
			t.Errorf("email %q: error = %q", email, got)
		}
	}

	if env.mailer.sent != 0 || len(env.redis.Keys()) != 0 {
		t.Error("validation failure must not contact collaborators")
	}
}

func TestRequestPasswordResetUnknownAccount(t *testing.T) {
	env := newTestEnv(t, false)

	rec := env.post(t, "/password-reset/request", `{"email":"ghost@example.com"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if got := decodeBody(t, rec)["error"]; got != "Account not found. Please sign up first." {
		t.Errorf("error = %q", got)
	}
	if env.mailer.sent != 0 || len(env.redis.Keys()) != 0 {
		t.Error("404 must issue no email, no store write, no token")
	}
}

func TestRequestPasswordResetSuccessDevelopment(t *testing.T) {
	env := newTestEnv(t, false)
	env.addUser(t, "user@example.com", "old-password-1")

	rec := env.post(t, "/password-reset/request", `{"email":"user@example.com"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	body := decodeBody(t, rec)
	if body["message"] != "Password reset OTP sent successfully" {
		t.Errorf("message = %q", body["message"])
	}

	token, _ := body["token"].(string)
	if _, err := uuid.Parse(token); err != nil {
		t.Errorf("token %q is not a UUID: %v", token, err)
	}

	otp, _ := body["developmentOTP"].(string)
	if len(otp) != 6 {
		t.Errorf("developmentOTP %q is not 6 digits", otp)
	}

	if env.mailer.sent != 1 {
		t.Errorf("expected exactly 1 email, got %d", env.mailer.sent)
	}
}

func TestRequestPasswordResetProductionOmitsOTP(t *testing.T) {
	env := newTestEnv(t, true)
	env.addUser(t, "user@example.com", "old-password-1")

	rec := env.post(t, "/password-reset/request", `{"email":"user@example.com"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	if _, ok := decodeBody(t, rec)["developmentOTP"]; ok {
		t.Fatal("developmentOTP must never appear in production responses")
	}
	if bytes.Contains(rec.Body.Bytes(), []byte("developmentOTP")) {
		t.Fatal("raw response leaks developmentOTP in production")
	}
}

func TestRequestPasswordResetMailerFailure(t *testing.T) {
	env := newTestEnv(t, false)
	env.addUser(t, "user@example.com", "old-password-1")
	env.mailer.err = errors.New("provider down")

	rec := env.post(t, "/password-reset/request", `{"email":"user@example.com"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if got := decodeBody(t, rec)["error"]; got != "Internal server error" {
		t.Errorf("error = %q", got)
	}
	if len(env.redis.Keys()) != 0 {
		t.Error("failed dispatch must not leave an orphaned token")
	}
}

func TestRequestPasswordResetDirectoryFailure(t *testing.T) {
	env := newTestEnv(t, false)
	env.directory.findErr = errors.New("rpc failure")

	rec := env.post(t, "/password-reset/request", `{"email":"user@example.com"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if got := decodeBody(t, rec)["error"]; got != "An internal error occurred during user verification." {
		t.Errorf("error = %q", got)
	}
}

func TestPasswordResetRoundTrip(t *testing.T) {
	env := newTestEnv(t, false)
	env.addUser(t, "user@example.com", "old-password-1")

	rec := env.post(t, "/password-reset/request", `{"email":"user@example.com"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("request status = %d", rec.Code)
	}
	body := decodeBody(t, rec)
	token := body["token"].(string)
	otp := body["developmentOTP"].(string)

	rec = env.post(t, "/password-reset/confirm",
		fmt.Sprintf(`{"token":%q,"otp":%q,"new_password":"new-password-1"}`, token, otp))
	if rec.Code != http.StatusOK {
		t.Fatalf("confirm status = %d: %s", rec.Code, rec.Body.String())
	}
	if got := decodeBody(t, rec)["message"]; got != "Password has been reset successfully" {
		t.Errorf("message = %q", got)
	}

	// New credentials work, old ones do not.
	rec = env.post(t, "/auth/login", `{"email":"user@example.com","password":"new-password-1"}`)
	if rec.Code != http.StatusOK {
		t.Errorf("login with new password status = %d", rec.Code)
	}
	rec = env.post(t, "/auth/login", `{"email":"user@example.com","password":"old-password-1"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("login with old password status = %d, want 401", rec.Code)
	}

	// The token was consumed.
	rec = env.post(t, "/password-reset/confirm",
		fmt.Sprintf(`{"token":%q,"otp":%q,"new_password":"other-password-1"}`, token, otp))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("reused token status = %d, want 400", rec.Code)
	}
}

func TestConfirmPasswordResetValidation(t *testing.T) {
	env := newTestEnv(t, false)

	cases := []struct {
		body string
		want string
	}{
		{`{"otp":"123456","new_password":"new-password-1"}`, "Token is required"},
		{`{"token":"t","new_password":"new-password-1"}`, "OTP is required"},
		{`{"token":"t","otp":"123456"}`, "New password is required"},
		{`{"token":"t","otp":"123456","new_password":"short"}`, "Password must be at least 8 characters long"},
	}

	for _, tc := range cases {
		rec := env.post(t, "/password-reset/confirm", tc.body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %s: status = %d, want 400", tc.body, rec.Code)
			continue
		}
		if got := decodeBody(t, rec)["error"]; got != tc.want {
			t.Errorf("body %s: error = %q, want %q", tc.body, got, tc.want)
		}
	}
}

func TestSignupFlowOverHTTP(t *testing.T) {
	env := newTestEnv(t, false)

	rec := env.post(t, "/auth/signup", `{"email":"new@example.com","password":"fresh-password-1"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("signup status = %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	token := body["token"].(string)
	otp := body["developmentOTP"].(string)

	rec = env.post(t, "/auth/signup/verify", fmt.Sprintf(`{"token":%q,"otp":%q}`, token, otp))
	if rec.Code != http.StatusCreated {
		t.Fatalf("verify status = %d: %s", rec.Code, rec.Body.String())
	}

	// Duplicate signup is now rejected.
	rec = env.post(t, "/auth/signup", `{"email":"new@example.com","password":"fresh-password-1"}`)
	if rec.Code != http.StatusConflict {
		t.Errorf("duplicate signup status = %d, want 409", rec.Code)
	}
	if got := decodeBody(t, rec)["error"]; got != "Account already exists. Please log in." {
		t.Errorf("error = %q", got)
	}

	rec = env.post(t, "/auth/login", `{"email":"new@example.com","password":"fresh-password-1"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d", rec.Code)
	}
	if tokenType := decodeBody(t, rec)["token_type"]; tokenType != "Bearer" {
		t.Errorf("token_type = %q", tokenType)
	}
}

func TestSignupRejectsShortPassword(t *testing.T) {
	env := newTestEnv(t, false)

	rec := env.post(t, "/auth/signup", `{"email":"new@example.com","password":"short"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if got := decodeBody(t, rec)["error"]; got != "Password must be at least 8 characters long" {
		t.Errorf("error = %q", got)
	}
}

func TestMeEndpointRequiresAuth(t *testing.T) {
	env := newTestEnv(t, false)
	env.addUser(t, "user@example.com", "old-password-1")

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated /me status = %d, want 401", rec.Code)
	}

	login := env.post(t, "/auth/login", `{"email":"user@example.com","password":"old-password-1"}`)
	if login.Code != http.StatusOK {
		t.Fatalf("login status = %d", login.Code)
	}
	accessToken := decodeBody(t, login)["access_token"].(string)

	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+accessToken)
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("authenticated /me status = %d: %s", rec.Code, rec.Body.String())
	}
	if got := decodeBody(t, rec)["email"]; got != "user@example.com" {
		t.Errorf("email = %q", got)
	}
}
