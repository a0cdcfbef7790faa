package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/Manan-Coder/site-cohortize/internal/service"
)

// Email shape check: non-empty local part, an @, and a domain containing a
// dot, with no whitespace or second @ anywhere.
var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

const minPasswordLength = 8

type AuthHandlers struct {
	resetService   *service.PasswordResetService
	accountService *service.AccountService
	production     bool
	logger         *logrus.Logger
}

func NewAuthHandlers(
	resetService *service.PasswordResetService,
	accountService *service.AccountService,
	production bool,
	logger *logrus.Logger,
) *AuthHandlers {
	return &AuthHandlers{
		resetService:   resetService,
		accountService: accountService,
		production:     production,
		logger:         logger,
	}
}

type PasswordResetRequest struct {
	Email string `json:"email"`
}

type OTPIssuedResponse struct {
	Message string `json:"message"`
	Token   string `json:"token"`
	// DevelopmentOTP is only ever populated outside production deployments.
	DevelopmentOTP string `json:"developmentOTP,omitempty"`
}

type PasswordResetConfirmRequest struct {
	Token       string `json:"token"`
	OTP         string `json:"otp"`
	NewPassword string `json:"new_password"`
}

type SignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type SignupVerifyRequest struct {
	Token string `json:"token"`
	OTP   string `json:"otp"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// RequestPasswordReset handles POST /password-reset/request.
func (h *AuthHandlers) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req PasswordResetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	email := strings.TrimSpace(req.Email)
	if email == "" {
		h.respondWithError(w, http.StatusBadRequest, "Email is required")
		return
	}

	if !emailPattern.MatchString(email) {
		h.respondWithError(w, http.StatusBadRequest, "Invalid email format")
		return
	}

	token, otp, err := h.resetService.IssueResetOTP(r.Context(), email)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrAccountNotFound):
			h.respondWithError(w, http.StatusNotFound, "Account not found. Please sign up first.")
		case errors.Is(err, service.ErrDirectoryUnavailable):
			h.respondWithError(w, http.StatusInternalServerError, "An internal error occurred during user verification.")
		default:
			h.logger.WithError(err).Error("Password reset issuance failed")
			h.respondWithError(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}

	resp := OTPIssuedResponse{
		Message: "Password reset OTP sent successfully",
		Token:   token,
	}
	if !h.production {
		resp.DevelopmentOTP = otp
	}

	h.respondWithJSON(w, http.StatusOK, resp)
}

// ConfirmPasswordReset handles POST /password-reset/confirm.
func (h *AuthHandlers) ConfirmPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req PasswordResetConfirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if strings.TrimSpace(req.Token) == "" {
		h.respondWithError(w, http.StatusBadRequest, "Token is required")
		return
	}
	if strings.TrimSpace(req.OTP) == "" {
		h.respondWithError(w, http.StatusBadRequest, "OTP is required")
		return
	}
	if req.NewPassword == "" {
		h.respondWithError(w, http.StatusBadRequest, "New password is required")
		return
	}
	if len(req.NewPassword) < minPasswordLength {
		h.respondWithError(w, http.StatusBadRequest, "Password must be at least 8 characters long")
		return
	}

	err := h.resetService.ConfirmReset(r.Context(), strings.TrimSpace(req.Token), strings.TrimSpace(req.OTP), req.NewPassword)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrTokenNotFound):
			h.respondWithError(w, http.StatusBadRequest, "Invalid or expired reset token")
		case errors.Is(err, service.ErrOTPMismatch):
			h.respondWithError(w, http.StatusBadRequest, "Invalid OTP")
		default:
			h.logger.WithError(err).Error("Password reset confirmation failed")
			h.respondWithError(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}

	h.respondWithJSON(w, http.StatusOK, MessageResponse{
		Message: "Password has been reset successfully",
	})
}

// Signup handles POST /auth/signup.
func (h *AuthHandlers) Signup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	email := strings.TrimSpace(req.Email)
	if email == "" {
		h.respondWithError(w, http.StatusBadRequest, "Email is required")
		return
	}
	if !emailPattern.MatchString(email) {
		h.respondWithError(w, http.StatusBadRequest, "Invalid email format")
		return
	}
	if req.Password == "" {
		h.respondWithError(w, http.StatusBadRequest, "Password is required")
		return
	}
	if len(req.Password) < minPasswordLength {
		h.respondWithError(w, http.StatusBadRequest, "Password must be at least 8 characters long")
		return
	}

	token, otp, err := h.accountService.RequestSignup(r.Context(), email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrAccountExists):
			h.respondWithError(w, http.StatusConflict, "Account already exists. Please log in.")
		case errors.Is(err, service.ErrDirectoryUnavailable):
			h.respondWithError(w, http.StatusInternalServerError, "An internal error occurred during user verification.")
		default:
			h.logger.WithError(err).Error("Signup request failed")
			h.respondWithError(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}

	resp := OTPIssuedResponse{
		Message: "Verification OTP sent successfully",
		Token:   token,
	}
	if !h.production {
		resp.DevelopmentOTP = otp
	}

	h.respondWithJSON(w, http.StatusOK, resp)
}

// VerifySignup handles POST /auth/signup/verify.
func (h *AuthHandlers) VerifySignup(w http.ResponseWriter, r *http.Request) {
	var req SignupVerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if strings.TrimSpace(req.Token) == "" {
		h.respondWithError(w, http.StatusBadRequest, "Token is required")
		return
	}
	if strings.TrimSpace(req.OTP) == "" {
		h.respondWithError(w, http.StatusBadRequest, "OTP is required")
		return
	}

	_, err := h.accountService.ConfirmSignup(r.Context(), strings.TrimSpace(req.Token), strings.TrimSpace(req.OTP))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrTokenNotFound):
			h.respondWithError(w, http.StatusBadRequest, "Invalid or expired verification token")
		case errors.Is(err, service.ErrOTPMismatch):
			h.respondWithError(w, http.StatusBadRequest, "Invalid OTP")
		case errors.Is(err, service.ErrAccountExists):
			h.respondWithError(w, http.StatusConflict, "Account already exists. Please log in.")
		default:
			h.logger.WithError(err).Error("Signup verification failed")
			h.respondWithError(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}

	h.respondWithJSON(w, http.StatusCreated, MessageResponse{
		Message: "Account created successfully",
	})
}

// Login handles POST /auth/login.
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	email := strings.TrimSpace(req.Email)
	if email == "" || req.Password == "" {
		h.respondWithError(w, http.StatusBadRequest, "Email and password are required")
		return
	}

	accessToken, err := h.accountService.Login(r.Context(), email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			h.respondWithError(w, http.StatusUnauthorized, "Invalid credentials")
			return
		}
		h.logger.WithError(err).Error("Login failed")
		h.respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	h.respondWithJSON(w, http.StatusOK, accessToken)
}

func (h *AuthHandlers) respondWithJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func (h *AuthHandlers) respondWithError(w http.ResponseWriter, status int, message string) {
	h.respondWithJSON(w, status, ErrorResponse{Error: message})
}
