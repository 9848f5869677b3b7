package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenCacheSetGetExpire(t *testing.T) {
	mr, client := newTestStore(t)
	ctx := context.Background()
	c := NewTokenCache(client)

	got, err := c.GetToken(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, c.SetToken(ctx, "s1", "tok-1", time.Hour))
	require.NoError(t, c.SetUsername(ctx, "s1", "alice", time.Hour))

	got, err = c.GetToken(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", got)

	name, err := c.GetUsername(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "alice", name)

	mr.FastForward(time.Hour + time.Second)

	got, err = c.GetToken(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestTokenCacheOverwriteAndDelete(t *testing.T) {
	_, client := newTestStore(t)
	ctx := context.Background()
	c := NewTokenCache(client)

	require.NoError(t, c.SetToken(ctx, "s1", "old", time.Hour))
	require.NoError(t, c.SetToken(ctx, "s1", "new", time.Hour))

	got, err := c.GetToken(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "new", got)

	require.NoError(t, c.Delete(ctx, "s1"))
	got, err = c.GetToken(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestTokenCacheReserveReissue(t *testing.T) {
	mr, client := newTestStore(t)
	ctx := context.Background()
	c := NewTokenCache(client)

	ok, err := c.ReserveReissue(ctx, "203.0.113.7", 30*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.ReserveReissue(ctx, "203.0.113.7", 30*time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = c.ReserveReissue(ctx, "198.51.100.1", 30*time.Second)
	require.NoError(t, err)
	assert.True(t, ok, "addresses are limited independently")

	mr.FastForward(31 * time.Second)

	ok, err = c.ReserveReissue(ctx, "203.0.113.7", 30*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestTokenCacheReserveReissueDisabled(t *testing.T) {
	_, client := newTestStore(t)
	c := NewTokenCache(client)

	for i := 0; i < 3; i++ {
		ok, err := c.ReserveReissue(context.Background(), "addr", 0)
		require.NoError(t, err)
		assert.True(t, ok)
	}
}
