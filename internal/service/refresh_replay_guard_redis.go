package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisRefreshReplayGuard struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisRefreshReplayGuard(client redis.UniversalClient, prefix string) *RedisRefreshReplayGuard {
	if prefix == "" {
		prefix = "refresh_used"
	}
	return &RedisRefreshReplayGuard{
		client: client,
		prefix: prefix,
	}
}

func (g *RedisRefreshReplayGuard) MarkUsed(ctx context.Context, tokenID string, ttl time.Duration) (bool, error) {
	if g.client == nil {
		return true, nil
	}
	if ttl <= 0 {
		ttl = time.Second
	}
	first, err := g.client.SetNX(ctx, g.key(tokenID), "1", ttl).Result()
	if err != nil {
		return false, err
	}
	return first, nil
}

func (g *RedisRefreshReplayGuard) Release(ctx context.Context, tokenID string) error {
	if g.client == nil {
		return nil
	}
	return g.client.Del(ctx, g.key(tokenID)).Err()
}

func (g *RedisRefreshReplayGuard) key(tokenID string) string {
	sum := sha256.Sum256([]byte(tokenID))
	return fmt.Sprintf("%s:%s", g.prefix, hex.EncodeToString(sum[:16]))
}
