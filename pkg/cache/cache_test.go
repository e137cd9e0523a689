package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type doc struct {
	Name string `json:"name"`
	N    int    `json:"n"`
}

func TestMemoryCacheSetGet(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache()
	defer mc.Close()

	require.NoError(t, mc.Set(ctx, "s", "hello", 0))
	require.NoError(t, mc.Set(ctx, "j", doc{Name: "a", N: 2}, 0))

	var s string
	require.NoError(t, mc.Get(ctx, "s", &s))
	assert.Equal(t, "hello", s)

	var d doc
	require.NoError(t, mc.Get(ctx, "j", &d))
	assert.Equal(t, doc{Name: "a", N: 2}, d)

	var raw []byte
	require.NoError(t, mc.Get(ctx, "j", &raw))
	assert.JSONEq(t, `{"name":"a","n":2}`, string(raw))

	assert.ErrorIs(t, mc.Get(ctx, "missing", &s), ErrCacheMiss)
}

func TestMemoryCacheExpiry(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache()
	defer mc.Close()

	require.NoError(t, mc.Set(ctx, "k", "v", 10*time.Millisecond))
	require.NoError(t, mc.Set(ctx, "forever", "v", 0))
	time.Sleep(25 * time.Millisecond)

	var s string
	assert.ErrorIs(t, mc.Get(ctx, "k", &s), ErrCacheMiss)
	assert.NoError(t, mc.Get(ctx, "forever", &s))
}

func TestMemoryCacheIncrement(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache()
	defer mc.Close()

	for want := int64(1); want <= 3; want++ {
		n, err := mc.Increment(ctx, "ctr")
		require.NoError(t, err)
		assert.Equal(t, want, n)
	}

	var s string
	require.NoError(t, mc.Get(ctx, "ctr", &s))
	assert.Equal(t, "3", s)

	require.NoError(t, mc.Set(ctx, "word", "abc", 0))
	_, err := mc.Increment(ctx, "word")
	assert.Error(t, err)
}

func TestMemoryCacheLock(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache()
	defer mc.Close()

	ok, err := mc.TryLock(ctx, "lock", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = mc.TryLock(ctx, "lock", time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, mc.Unlock(ctx, "lock"))
	ok, err = mc.TryLock(ctx, "lock", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryCacheEvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache(WithMemoryMaxSize(2))
	defer mc.Close()

	require.NoError(t, mc.Set(ctx, "a", "1", 0))
	time.Sleep(time.Millisecond)
	require.NoError(t, mc.Set(ctx, "b", "2", 0))
	time.Sleep(time.Millisecond)

	var s string
	require.NoError(t, mc.Get(ctx, "a", &s))
	time.Sleep(time.Millisecond)
	require.NoError(t, mc.Set(ctx, "c", "3", 0))

	ok, _ := mc.Exists(ctx, "b")
	assert.False(t, ok)
	ok, _ = mc.Exists(ctx, "a", "c")
	assert.True(t, ok)
}

func TestMemoryCachePinnedKeysSurviveEviction(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache(WithMemoryMaxSize(2), WithMemoryPinned("keep:"))
	defer mc.Close()

	for i := 0; i < 5; i++ {
		require.NoError(t, mc.Set(ctx, Key("keep", i), i, 0))
	}
	require.NoError(t, mc.Set(ctx, "a", "1", 0))
	time.Sleep(time.Millisecond)
	require.NoError(t, mc.Set(ctx, "b", "2", 0))

	for i := 0; i < 5; i++ {
		var n int
		require.NoError(t, mc.Get(ctx, Key("keep", i), &n))
		assert.Equal(t, i, n)
	}
	ok, _ := mc.Exists(ctx, "a")
	assert.False(t, ok, "unpinned key evicted")
	ok, _ = mc.Exists(ctx, "b")
	assert.True(t, ok)
}

func TestLayeredCacheFillsL1WithValue(t *testing.T) {
	ctx := context.Background()
	remote := NewMemoryCache()
	require.NoError(t, remote.Set(ctx, "doc:1", doc{Name: "x", N: 1}, 0))

	lc := NewLayeredCache(remote)
	defer lc.Close()

	var d doc
	require.NoError(t, lc.Get(ctx, "doc:1", &d))
	assert.Equal(t, "x", d.Name)

	// L1 now answers even after L2 drops the key.
	require.NoError(t, remote.Delete(ctx, "doc:1"))
	var again doc
	require.NoError(t, lc.Get(ctx, "doc:1", &again))
	assert.Equal(t, d, again)
}

func TestLayeredCacheBypassReadsRemote(t *testing.T) {
	ctx := context.Background()
	remote := NewMemoryCache()
	lc := NewLayeredCache(remote, WithLayeredBypass("ptr:"))
	defer lc.Close()

	require.NoError(t, lc.Set(ctx, "ptr:current", "1", 0))
	require.NoError(t, remote.Set(ctx, "ptr:current", "2", 0))

	var s string
	require.NoError(t, lc.Get(ctx, "ptr:current", &s))
	assert.Equal(t, "2", s)
}

func TestKey(t *testing.T) {
	assert.Equal(t, "conditions:doc:7", Key("conditions", "doc", 7))
}
