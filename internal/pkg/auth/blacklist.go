package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/closerdesk/closerdesk/internal/pkg/cache"
)

const blacklistKey = "auth:blacklist:%s"

// Blacklist remembers revoked token ids until the token would have expired anyway.
type Blacklist interface {
	Revoke(ctx context.Context, tokenID string, ttl time.Duration) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// RedisBlacklist stores revoked ids in the shared Redis cache.
type RedisBlacklist struct{}

func (RedisBlacklist) Revoke(_ context.Context, tokenID string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return cache.Set(fmt.Sprintf(blacklistKey, tokenID), "1", ttl)
}

func (RedisBlacklist) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	return cache.Exists(fmt.Sprintf(blacklistKey, tokenID))
}
