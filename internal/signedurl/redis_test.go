package signedurl

import (
	"context"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func unreachableClient() *goredis.Client {
	return goredis.NewClient(&goredis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
}

func TestNewRedisTier_PingFails(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := NewRedisTier(ctx, "127.0.0.1:1", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "signedurl: redis ping")
}

func TestRedisTier_ErrorsAreWrapped(t *testing.T) {
	tier := newRedisTier(unreachableClient(), "test:")
	defer tier.Close()

	_, ok, err := tier.Get(context.Background(), "a.png")
	require.Error(t, err)
	assert.False(t, ok)
	assert.Contains(t, err.Error(), "redis get a.png")

	err = tier.Set(context.Background(), "a.png", "https://x", time.Minute)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis set a.png")
}

func TestCache_SharedTierFailureFallsBackToSigner(t *testing.T) {
	tier := newRedisTier(unreachableClient(), "")
	defer tier.Close()

	signer := &fakeSigner{}
	c := New(signer, Options{Shared: tier})

	u, err := c.Get(context.Background(), "a.png")
	require.NoError(t, err)
	assert.NotEmpty(t, u)
	assert.Equal(t, int32(1), signer.single.Load())
}
