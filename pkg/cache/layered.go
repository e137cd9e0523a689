package cache

import (
	"context"
	"strings"
	"time"
)

// LayeredCache implements two-level cache (L1: Memory, L2: any Service,
// normally Redis). Writes go through to L2 first.
type LayeredCache struct {
	mem    *MemoryCache
	remote Service
	bypass []string
}

// NewLayeredCache wraps remote with an in-process L1.
func NewLayeredCache(remote Service, opts ...LayeredOption) *LayeredCache {
	cfg := &LayeredConfig{MemoryMaxSize: 1000}
	for _, opt := range opts {
		opt(cfg)
	}
	return &LayeredCache{
		mem:    NewMemoryCache(WithMemoryMaxSize(cfg.MemoryMaxSize)),
		remote: remote,
		bypass: cfg.BypassPrefixes,
	}
}

func (lc *LayeredCache) remoteOnly(key string) bool {
	for _, p := range lc.bypass {
		if strings.HasPrefix(key, p) {
			return true
		}
	}
	return false
}

func (lc *LayeredCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if err := lc.remote.Set(ctx, key, value, expiration); err != nil {
		return err
	}
	if !lc.remoteOnly(key) {
		_ = lc.mem.Set(ctx, key, value, expiration)
	}
	return nil
}

func (lc *LayeredCache) Get(ctx context.Context, key string, dest interface{}) error {
	if lc.remoteOnly(key) {
		return lc.remote.Get(ctx, key, dest)
	}
	if err := lc.mem.Get(ctx, key, dest); err == nil {
		return nil
	}

	var raw []byte
	if err := lc.remote.Get(ctx, key, &raw); err != nil {
		return err
	}
	// L1 entries copied from L2 carry no TTL; L2 stays authoritative for expiry.
	_ = lc.mem.Set(ctx, key, raw, 0)
	return decode(raw, dest)
}

func (lc *LayeredCache) Delete(ctx context.Context, keys ...string) error {
	_ = lc.mem.Delete(ctx, keys...)
	return lc.remote.Delete(ctx, keys...)
}

func (lc *LayeredCache) Exists(ctx context.Context, keys ...string) (bool, error) {
	return lc.remote.Exists(ctx, keys...)
}

func (lc *LayeredCache) Increment(ctx context.Context, key string) (int64, error) {
	return lc.remote.Increment(ctx, key)
}

func (lc *LayeredCache) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return lc.remote.TryLock(ctx, key, ttl)
}

func (lc *LayeredCache) Unlock(ctx context.Context, key string) error {
	return lc.remote.Unlock(ctx, key)
}

// Close closes both cache layers.
func (lc *LayeredCache) Close() error {
	_ = lc.mem.Close()
	return lc.remote.Close()
}

var _ Service = (*LayeredCache)(nil)
