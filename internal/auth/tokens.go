package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// One-time token lifetimes.
const (
	VerifyTokenTTL        = 24 * time.Hour
	PasswordResetTokenTTL = time.Hour
)

// ErrTokenNotFound is returned when a one-time token is missing, expired,
// or already consumed.
var ErrTokenNotFound = errors.New("one-time token not found or already used")

// TokenStore issues and consumes single-use tokens backed by Redis with a
// TTL. Tokens are random UUIDs keyed by purpose; the stored value is the
// user ID. Consuming a token deletes it, so replay fails.
type TokenStore struct {
	client *redis.Client
}

// NewTokenStore creates a Redis-backed one-time token store.
func NewTokenStore(client *redis.Client) *TokenStore {
	return &TokenStore{client: client}
}

func tokenKey(purpose, token string) string {
	return "onetime:" + purpose + ":" + token
}

// Purpose labels for one-time tokens.
const (
	PurposeVerifyEmail   = "verify_email"
	PurposePasswordReset = "password_reset"
)

// Issue creates a fresh token for the user under the given purpose and TTL.
func (s *TokenStore) Issue(ctx context.Context, purpose string, userID int64, ttl time.Duration) (string, error) {
	token := uuid.New().String()
	err := s.client.Set(ctx, tokenKey(purpose, token), strconv.FormatInt(userID, 10), ttl).Err()
	if err != nil {
		return "", fmt.Errorf("store one-time token: %w", err)
	}
	return token, nil
}

// IssueVerify creates an email-verification token valid for 24 hours.
func (s *TokenStore) IssueVerify(ctx context.Context, userID int64) (string, error) {
	return s.Issue(ctx, PurposeVerifyEmail, userID, VerifyTokenTTL)
}

// IssuePasswordReset creates a password-reset token valid for one hour.
func (s *TokenStore) IssuePasswordReset(ctx context.Context, userID int64) (string, error) {
	return s.Issue(ctx, PurposePasswordReset, userID, PasswordResetTokenTTL)
}

// Consume atomically reads and deletes the token, returning the user ID it
// was issued for. A second Consume of the same token returns
// ErrTokenNotFound.
func (s *TokenStore) Consume(ctx context.Context, purpose, token string) (int64, error) {
	value, err := s.client.GetDel(ctx, tokenKey(purpose, token)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, ErrTokenNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("consume one-time token: %w", err)
	}
	userID, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse one-time token value: %w", err)
	}
	return userID, nil
}
