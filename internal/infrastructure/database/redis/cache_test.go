package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/Regolith-Intelligence/internal/intelligence/llm"
)

var _ llm.ResponseCache = (*ResponseCache)(nil)

func TestResponseCache_GetSet(t *testing.T) {
	client, mr := newTestClient(t)
	cache := NewResponseCache(client, nil, WithPrefix("test:"))
	ctx := context.Background()

	_, ok, err := cache.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, cache.Set(ctx, "llm:abc", `{"institution":"NASA"}`, time.Hour))
	v, ok, err := cache.Get(ctx, "llm:abc")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"institution":"NASA"}`, v)

	assert.True(t, mr.Exists("test:llm:abc"))
	ttl := mr.TTL("test:llm:abc")
	assert.InDelta(t, float64(time.Hour), float64(ttl), float64(6*time.Minute))
}

func TestResponseCache_DefaultTTL(t *testing.T) {
	client, mr := newTestClient(t)
	cache := NewResponseCache(client, nil, WithDefaultTTL(10*time.Minute))
	require.NoError(t, cache.Set(context.Background(), "k", "v", 0))
	assert.InDelta(t, float64(10*time.Minute), float64(mr.TTL("regolith:k")), float64(time.Minute))
}

func TestResponseCache_Expiry(t *testing.T) {
	client, mr := newTestClient(t)
	cache := NewResponseCache(client, nil)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "k", "v", time.Minute))
	mr.FastForward(2 * time.Minute)

	_, ok, err := cache.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestResponseCache_DeleteByPrefix(t *testing.T) {
	client, _ := newTestClient(t)
	cache := NewResponseCache(client, nil)
	ctx := context.Background()

	for _, k := range []string{"llm:a", "llm:b", "llm:c", "other"} {
		require.NoError(t, cache.Set(ctx, k, "v", time.Hour))
	}
	n, err := cache.DeleteByPrefix(ctx, "llm:")
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	_, ok, _ := cache.Get(ctx, "other")
	assert.True(t, ok)

	require.NoError(t, cache.Delete(ctx, "other"))
	_, ok, _ = cache.Get(ctx, "other")
	assert.False(t, ok)
}

func TestResponseCache_BacksCachedCompleter(t *testing.T) {
	client, _ := newTestClient(t)
	cache := NewResponseCache(client, nil)

	calls := 0
	next := llm.CompleterFunc(func(context.Context, llm.Request) (string, error) {
		calls++
		return "answer", nil
	})
	cached := llm.NewCached(next, cache, "openai/gpt-4o-mini", time.Hour, nil, nil)

	req := llm.Request{System: "s", Prompt: "p", JSON: true}
	for i := 0; i < 3; i++ {
		out, err := cached.Complete(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, "answer", out)
	}
	assert.Equal(t, 1, calls)
}
