package service

import (
	"context"
	"time"

	"github.com/Manan-Coder/site-cohortize/internal/models"
)

// UserDirectory is the external account registry. FindByEmail returns
// (nil, nil) when no account matches.
type UserDirectory interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	UpdatePassword(ctx context.Context, email, passwordHash string) error
}

// TokenStore is the ephemeral key-value collaborator holding pending OTP
// entries under opaque tokens. Get returns (nil, nil) for unknown or
// expired tokens.
type TokenStore interface {
	Save(ctx context.Context, token string, data *models.TokenData, ttl time.Duration) error
	Get(ctx context.Context, token string) (*models.TokenData, error)
	Delete(ctx context.Context, token string) error
}

// EmailSender dispatches a single transactional email.
type EmailSender interface {
	Send(ctx context.Context, to, subject, html string) error
}
