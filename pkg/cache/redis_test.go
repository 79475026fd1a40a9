package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestRedis creates a test Redis client using miniredis
func setupTestRedis(t *testing.T) (*Client, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)

	client, err := NewClient(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	return client, mr
}

func TestClient_SetGet(t *testing.T) {
	client, _ := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, client.Set(ctx, "test:key1", "value1", time.Hour))

	val, err := client.Get(ctx, "test:key1")
	require.NoError(t, err)
	assert.Equal(t, "value1", val)
}

func TestClient_GetMiss(t *testing.T) {
	client, _ := setupTestRedis(t)

	_, err := client.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestClient_JSON(t *testing.T) {
	client, mr := setupTestRedis(t)
	ctx := context.Background()

	type row struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}
	in := []row{{"A", 2}, {"B", 0}}

	require.NoError(t, client.SetJSON(ctx, "leaderboard:user", in, 30*time.Second))

	var out []row
	require.NoError(t, client.GetJSON(ctx, "leaderboard:user", &out))
	assert.Equal(t, in, out)

	mr.FastForward(31 * time.Second)
	assert.ErrorIs(t, client.GetJSON(ctx, "leaderboard:user", &out), ErrMiss)
}

func TestClient_DeleteAndExists(t *testing.T) {
	client, _ := setupTestRedis(t)
	ctx := context.Background()

	_ = client.Set(ctx, "test:key1", "value1", time.Hour)
	_ = client.Set(ctx, "test:key2", "value2", time.Hour)

	require.NoError(t, client.Delete(ctx, "test:key1"))

	exists, err := client.Exists(ctx, "test:key1")
	require.NoError(t, err)
	assert.False(t, exists)

	exists, err = client.Exists(ctx, "test:key2")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestClient_DeletePattern(t *testing.T) {
	client, _ := setupTestRedis(t)
	ctx := context.Background()

	_ = client.Set(ctx, "leaderboard:user", "[]", time.Hour)
	_ = client.Set(ctx, "leaderboard:college", "[]", time.Hour)
	_ = client.Set(ctx, "jwt:blacklist:abc", "revoked", time.Hour)

	n, err := client.DeletePattern(ctx, "leaderboard:*")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	exists, _ := client.Exists(ctx, "jwt:blacklist:abc")
	assert.True(t, exists)
}

func TestNewClient_BadURL(t *testing.T) {
	_, err := NewClient(context.Background(), "://nope")
	assert.Error(t, err)
}
