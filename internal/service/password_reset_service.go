package service

import (
	"context"
	"crypto/subtle"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/Manan-Coder/site-cohortize/internal/config"
	"github.com/Manan-Coder/site-cohortize/internal/models"
)

const resetEmailSubject = "OTP for Password Reset"

type PasswordResetService struct {
	directory UserDirectory
	tokens    TokenStore
	mailer    EmailSender
	ttl       time.Duration
	logger    *logrus.Logger
}

func NewPasswordResetService(
	directory UserDirectory,
	tokens TokenStore,
	mailer EmailSender,
	cfg *config.OTPConfig,
	logger *logrus.Logger,
) *PasswordResetService {
	return &PasswordResetService{
		directory: directory,
		tokens:    tokens,
		mailer:    mailer,
		ttl:       cfg.TTL,
		logger:    logger,
	}
}

// IssueResetOTP runs the password-reset issuance flow for email: confirm the
// account exists, generate a code, email it, then store the pending entry
// under a fresh token. The token is only returned once both the send and the
// store write succeed, so a caller never holds a token without a delivered
// code.
func (s *PasswordResetService) IssueResetOTP(ctx context.Context, email string) (string, string, error) {
	user, err := s.directory.FindByEmail(ctx, email)
	if err != nil {
		s.logger.WithError(err).Error("User lookup failed during password reset")
		return "", "", fmt.Errorf("%w: %v", ErrDirectoryUnavailable, err)
	}

	if user == nil {
		s.logger.WithField("email", email).Info("Password reset attempt for non-existent user")
		return "", "", ErrAccountNotFound
	}

	otp, err := GenerateOTP()
	if err != nil {
		return "", "", err
	}

	if err := s.mailer.Send(ctx, email, resetEmailSubject, otpEmailHTML("password reset", otp, s.ttl)); err != nil {
		s.logger.WithError(err).Error("Failed to send password reset OTP")
		return "", "", fmt.Errorf("failed to send OTP: %w", err)
	}

	token := uuid.New().String()
	data := &models.TokenData{
		Category: models.CategoryResetPassword,
		Email:    email,
		OTP:      otp,
	}

	if err := s.tokens.Save(ctx, token, data, s.ttl); err != nil {
		s.logger.WithError(err).Error("Failed to store password reset token")
		return "", "", fmt.Errorf("failed to send OTP: %w", err)
	}

	s.logger.WithField("email", email).Info("Password reset OTP issued")
	return token, otp, nil
}

// ConfirmReset consumes a pending reset entry: the OTP must match the one
// stored under token, after which the account's password is replaced and the
// entry removed.
func (s *PasswordResetService) ConfirmReset(ctx context.Context, token, otp, newPassword string) error {
	data, err := s.tokens.Get(ctx, token)
	if err != nil {
		s.logger.WithError(err).Error("Failed to load reset token")
		return fmt.Errorf("failed to load reset token: %w", err)
	}

	if data == nil || data.Category != models.CategoryResetPassword {
		return ErrTokenNotFound
	}

	if subtle.ConstantTimeCompare([]byte(data.OTP), []byte(otp)) != 1 {
		return ErrOTPMismatch
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	if err := s.directory.UpdatePassword(ctx, data.Email, string(hash)); err != nil {
		s.logger.WithError(err).Error("Failed to update password")
		return fmt.Errorf("%w: %v", ErrDirectoryUnavailable, err)
	}

	// The entry expires by TTL regardless; a failed delete only widens the
	// single-use window, it never blocks the completed reset.
	if err := s.tokens.Delete(ctx, token); err != nil {
		s.logger.WithError(err).Warn("Failed to delete consumed reset token")
	}

	s.logger.WithField("email", data.Email).Info("Password reset completed")
	return nil
}

func otpEmailHTML(purpose, otp string, ttl time.Duration) string {
	return fmt.Sprintf(`
        <div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
          <h2>Cohortize verification code</h2>
          <p>Your OTP for Cohortize %s is:</p>
          <div style="background-color: #f5f5f5; padding: 20px; text-align: center; font-size: 24px; font-weight: bold; letter-spacing: 2px; margin: 20px 0;">
            %s
          </div>
          <p>This OTP will expire in %d minutes.</p>
          <p>If you didn't request this, please ignore this email.</p>
        </div>
      `, purpose, otp, int(ttl.Minutes()))
}
