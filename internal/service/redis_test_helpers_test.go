package service

import (
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// newRedisReplayGuardForTest starts a miniredis server and returns it with a
// replay guard bound to a client on that server. Both are closed on cleanup.
func newRedisReplayGuardForTest(t *testing.T, prefix string) (*miniredis.Miniredis, *RedisRefreshReplayGuard) {
	t.Helper()
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return server, NewRedisRefreshReplayGuard(client, prefix)
}
