package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/Manan-Coder/site-cohortize/internal/models"
)

const tokenKeyPrefix = "token:"

// TokenRepository holds pending OTP verifications in redis. Each entry lives
// under an opaque UUID token with a server-enforced TTL; expiry is the only
// deletion path besides explicit consumption.
type TokenRepository struct {
	client *redis.Client
	logger *logrus.Logger
}

func NewTokenRepository(client *redis.Client, logger *logrus.Logger) *TokenRepository {
	return &TokenRepository{
		client: client,
		logger: logger,
	}
}

func tokenKey(token string) string {
	return tokenKeyPrefix + token
}

// Save stores data under token for ttl. Entries are create-only; callers
// never overwrite an existing token.
func (r *TokenRepository) Save(ctx context.Context, token string, data *models.TokenData, ttl time.Duration) error {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal token data: %w", err)
	}

	if err := r.client.Set(ctx, tokenKey(token), dataJSON, ttl).Err(); err != nil {
		r.logger.WithError(err).Error("Failed to store token in Redis")
		return fmt.Errorf("failed to store token: %w", err)
	}

	return nil
}

// Get returns the entry stored under token, or nil when the token is
// unknown or has expired.
func (r *TokenRepository) Get(ctx context.Context, token string) (*models.TokenData, error) {
	dataJSON, err := r.client.Get(ctx, tokenKey(token)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		r.logger.WithError(err).Error("Failed to get token from Redis")
		return nil, fmt.Errorf("failed to get token: %w", err)
	}

	var data models.TokenData
	if err := json.Unmarshal([]byte(dataJSON), &data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal token data: %w", err)
	}

	return &data, nil
}

// Delete removes a consumed token. Deleting an absent token is not an error.
func (r *TokenRepository) Delete(ctx context.Context, token string) error {
	if err := r.client.Del(ctx, tokenKey(token)).Err(); err != nil {
		r.logger.WithError(err).Error("Failed to delete token from Redis")
		return fmt.Errorf("failed to delete token: %w", err)
	}
	return nil
}
