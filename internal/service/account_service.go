package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/Manan-Coder/site-cohortize/internal/config"
	"github.com/Manan-Coder/site-cohortize/internal/models"
	"github.com/Manan-Coder/site-cohortize/internal/repository"
)

const verifyEmailSubject = "OTP for Email Verification"

// AccountService covers signup with email verification and credential login.
type AccountService struct {
	directory UserDirectory
	tokens    TokenStore
	mailer    EmailSender
	jwt       *JWTService
	ttl       time.Duration
	logger    *logrus.Logger
}

func NewAccountService(
	directory UserDirectory,
	tokens TokenStore,
	mailer EmailSender,
	jwtService *JWTService,
	cfg *config.OTPConfig,
	logger *logrus.Logger,
) *AccountService {
	return &AccountService{
		directory: directory,
		tokens:    tokens,
		mailer:    mailer,
		jwt:       jwtService,
		ttl:       cfg.TTL,
		logger:    logger,
	}
}

// RequestSignup emails a verification code and parks the pending account
// (email plus password hash) in the token store. No directory write happens
// until the code is confirmed.
func (s *AccountService) RequestSignup(ctx context.Context, email, password string) (string, string, error) {
	user, err := s.directory.FindByEmail(ctx, email)
	if err != nil {
		s.logger.WithError(err).Error("User lookup failed during signup")
		return "", "", fmt.Errorf("%w: %v", ErrDirectoryUnavailable, err)
	}

	if user != nil {
		return "", "", ErrAccountExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", "", fmt.Errorf("failed to hash password: %w", err)
	}

	otp, err := GenerateOTP()
	if err != nil {
		return "", "", err
	}

	if err := s.mailer.Send(ctx, email, verifyEmailSubject, otpEmailHTML("email verification", otp, s.ttl)); err != nil {
		s.logger.WithError(err).Error("Failed to send signup verification OTP")
		return "", "", fmt.Errorf("failed to send OTP: %w", err)
	}

	token := uuid.New().String()
	data := &models.TokenData{
		Category:     models.CategoryVerifyEmail,
		Email:        email,
		OTP:          otp,
		PasswordHash: string(hash),
	}

	if err := s.tokens.Save(ctx, token, data, s.ttl); err != nil {
		s.logger.WithError(err).Error("Failed to store signup verification token")
		return "", "", fmt.Errorf("failed to send OTP: %w", err)
	}

	s.logger.WithField("email", email).Info("Signup verification OTP issued")
	return token, otp, nil
}

// ConfirmSignup consumes a pending signup entry and creates the account.
func (s *AccountService) ConfirmSignup(ctx context.Context, token, otp string) (*models.User, error) {
	data, err := s.tokens.Get(ctx, token)
	if err != nil {
		s.logger.WithError(err).Error("Failed to load signup token")
		return nil, fmt.Errorf("failed to load signup token: %w", err)
	}

	if data == nil || data.Category != models.CategoryVerifyEmail {
		return nil, ErrTokenNotFound
	}

	if subtle.ConstantTimeCompare([]byte(data.OTP), []byte(otp)) != 1 {
		return nil, ErrOTPMismatch
	}

	user := &models.User{
		Email:        data.Email,
		PasswordHash: data.PasswordHash,
	}

	if err := s.directory.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			return nil, ErrAccountExists
		}
		s.logger.WithError(err).Error("Failed to create user")
		return nil, fmt.Errorf("%w: %v", ErrDirectoryUnavailable, err)
	}

	if err := s.tokens.Delete(ctx, token); err != nil {
		s.logger.WithError(err).Warn("Failed to delete consumed signup token")
	}

	s.logger.WithField("email", user.Email).Info("Account created")
	return user, nil
}

// Login verifies credentials and issues a bearer access token. Unknown
// accounts and wrong passwords are indistinguishable to the caller.
func (s *AccountService) Login(ctx context.Context, email, password string) (*models.AccessToken, error) {
	user, err := s.directory.FindByEmail(ctx, email)
	if err != nil {
		s.logger.WithError(err).Error("User lookup failed during login")
		return nil, fmt.Errorf("%w: %v", ErrDirectoryUnavailable, err)
	}

	if user == nil {
		return nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	accessToken, err := s.jwt.GenerateAccessToken(email)
	if err != nil {
		return nil, err
	}

	s.logger.WithField("email", email).Info("User logged in")
	return accessToken, nil
}
