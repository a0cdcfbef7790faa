package service

import "errors"

// Error taxonomy surfaced to the HTTP layer. Handlers map these to status
// codes; anything else is an internal failure reported generically.
var (
	ErrAccountNotFound      = errors.New("account not found")
	ErrAccountExists        = errors.New("account already exists")
	ErrDirectoryUnavailable = errors.New("user directory unavailable")
	ErrTokenNotFound        = errors.New("token not found or expired")
	ErrOTPMismatch          = errors.New("invalid otp")
	ErrInvalidCredentials   = errors.New("invalid credentials")
)
