package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	// M2MTokenKey is the key used to store the M2M token in Redis
	M2MTokenKey = "ledger:m2m_token"
	// TokenExpiryBuffer is how long before expiry a token stops being reused
	TokenExpiryBuffer = 60 * time.Second
)

// TokenCache represents a cached token with its expiry time
type TokenCache struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IsValid reports whether the token outlives the refresh buffer.
func (tc *TokenCache) IsValid(now time.Time) bool {
	if tc == nil || tc.Token == "" {
		return false
	}
	return now.Add(TokenExpiryBuffer).Before(tc.ExpiresAt)
}

// RedisTokenCache implements token caching using Redis
type RedisTokenCache struct {
	Client *redis.Client
	Now    func() time.Time
}

func NewRedisTokenCache(client *redis.Client) *RedisTokenCache {
	return &RedisTokenCache{Client: client, Now: time.Now}
}

// GetToken returns the cached token, or nil when none is usable.
func (c *RedisTokenCache) GetToken(ctx context.Context) (*TokenCache, error) {
	if c.Client == nil {
		return nil, fmt.Errorf("redis client not initialized")
	}

	tokenJSON, err := c.Client.Get(ctx, M2MTokenKey).Result()
	if err == redis.Nil {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to get token from Redis: %w", err)
	}

	var tokenCache TokenCache
	if err := json.Unmarshal([]byte(tokenJSON), &tokenCache); err != nil {
		return nil, fmt.Errorf("failed to unmarshal token cache: %w", err)
	}
	if !tokenCache.IsValid(c.Now()) {
		return nil, nil
	}
	return &tokenCache, nil
}

// SetToken stores a token that expires expiresIn seconds from now.
func (c *RedisTokenCache) SetToken(ctx context.Context, token string, expiresIn int) error {
	if c.Client == nil {
		return fmt.Errorf("redis client not initialized")
	}

	lifetime := time.Duration(expiresIn) * time.Second
	tokenJSON, err := json.Marshal(&TokenCache{Token: token, ExpiresAt: c.Now().Add(lifetime)})
	if err != nil {
		return fmt.Errorf("failed to marshal token cache: %w", err)
	}

	// expire in Redis once the token is no longer reusable
	ttl := lifetime - TokenExpiryBuffer
	if ttl <= 0 {
		return nil
	}
	if err := c.Client.Set(ctx, M2MTokenKey, tokenJSON, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store token in Redis: %w", err)
	}
	return nil
}
