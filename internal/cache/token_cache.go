package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// TokenCache holds the current token and display name of each session, and
// the per-address gate on fresh session creation.
type TokenCache interface {
	SetToken(ctx context.Context, sessionID, token string, ttl time.Duration) error
	// GetToken returns "" when the session has no current token.
	GetToken(ctx context.Context, sessionID string) (string, error)
	SetUsername(ctx context.Context, sessionID, username string, ttl time.Duration) error
	GetUsername(ctx context.Context, sessionID string) (string, error)
	Delete(ctx context.Context, sessionID string) error
	// ReserveReissue returns false when addr already created a session
	// within ttl.
	ReserveReissue(ctx context.Context, addr string, ttl time.Duration) (bool, error)
}

type tokenCache struct {
	client redis.UniversalClient
}

// NewTokenCache creates a new token cache
func NewTokenCache(client redis.UniversalClient) TokenCache {
	return &tokenCache{client: client}
}

func (c *tokenCache) SetToken(ctx context.Context, sessionID, token string, ttl time.Duration) error {
	return c.client.Set(ctx, tokenKey(sessionID), token, ttl).Err()
}

func (c *tokenCache) GetToken(ctx context.Context, sessionID string) (string, error) {
	val, err := c.client.Get(ctx, tokenKey(sessionID)).Result()
	if err == redis.Nil {
		return "", nil
	}
	return val, err
}

func (c *tokenCache) SetUsername(ctx context.Context, sessionID, username string, ttl time.Duration) error {
	return c.client.Set(ctx, usernameKey(sessionID), username, ttl).Err()
}

func (c *tokenCache) GetUsername(ctx context.Context, sessionID string) (string, error) {
	val, err := c.client.Get(ctx, usernameKey(sessionID)).Result()
	if err == redis.Nil {
		return "", nil
	}
	return val, err
}

func (c *tokenCache) Delete(ctx context.Context, sessionID string) error {
	return c.client.Del(ctx, tokenKey(sessionID), usernameKey(sessionID)).Err()
}

func (c *tokenCache) ReserveReissue(ctx context.Context, addr string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return true, nil
	}
	return c.client.SetNX(ctx, reissueKey(addr), "1", ttl).Result()
}
