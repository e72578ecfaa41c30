package service

import (
	"context"
	"sync"
	"time"
)

type RefreshReplayGuard interface {
	// MarkUsed records tokenID for ttl and reports whether this call was the
	// first to do so.
	MarkUsed(ctx context.Context, tokenID string, ttl time.Duration) (bool, error)
	// Release forgets tokenID so it can be marked again.
	Release(ctx context.Context, tokenID string) error
}

type NoopRefreshReplayGuard struct{}

func NewNoopRefreshReplayGuard() *NoopRefreshReplayGuard {
	return &NoopRefreshReplayGuard{}
}

func (g *NoopRefreshReplayGuard) MarkUsed(context.Context, string, time.Duration) (bool, error) {
	return true, nil
}

func (g *NoopRefreshReplayGuard) Release(context.Context, string) error { return nil }

type InMemoryRefreshReplayGuard struct {
	mu      sync.Mutex
	used    map[string]time.Time
	now     func() time.Time
	cleanup time.Time
}

func NewInMemoryRefreshReplayGuard() *InMemoryRefreshReplayGuard {
	return &InMemoryRefreshReplayGuard{
		used: make(map[string]time.Time),
		now:  time.Now,
	}
}

func (g *InMemoryRefreshReplayGuard) MarkUsed(_ context.Context, tokenID string, ttl time.Duration) (bool, error) {
	now := g.now().UTC()
	g.mu.Lock()
	defer g.mu.Unlock()

	if now.After(g.cleanup) {
		for k, expiresAt := range g.used {
			if now.After(expiresAt) {
				delete(g.used, k)
			}
		}
		g.cleanup = now.Add(time.Minute)
	}

	if expiresAt, ok := g.used[tokenID]; ok && !now.After(expiresAt) {
		return false, nil
	}
	g.used[tokenID] = now.Add(ttl)
	return true, nil
}

func (g *InMemoryRefreshReplayGuard) Release(_ context.Context, tokenID string) error {
	g.mu.Lock()
	delete(g.used, tokenID)
	g.mu.Unlock()
	return nil
}

func (g *InMemoryRefreshReplayGuard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.used)
}
