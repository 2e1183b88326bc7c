package signedurl

import (
	"context"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
)

// RedisTier stores signed URLs in redis so several processes share one
// signing result per path.
type RedisTier struct {
	rdb    goredis.UniversalClient
	prefix string
}

// NewRedisTier connects to addr and verifies the connection.
func NewRedisTier(ctx context.Context, addr, prefix string) (*RedisTier, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, eris.Wrap(err, "signedurl: redis ping")
	}
	return newRedisTier(rdb, prefix), nil
}

func newRedisTier(rdb goredis.UniversalClient, prefix string) *RedisTier {
	if prefix == "" {
		prefix = "ux-extract:signed:"
	}
	return &RedisTier{rdb: rdb, prefix: prefix}
}

func (r *RedisTier) Get(ctx context.Context, path string) (string, bool, error) {
	url, err := r.rdb.Get(ctx, r.prefix+path).Result()
	if errors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, eris.Wrapf(err, "signedurl: redis get %s", path)
	}
	return url, true, nil
}

func (r *RedisTier) Set(ctx context.Context, path, url string, ttl time.Duration) error {
	return eris.Wrapf(r.rdb.Set(ctx, r.prefix+path, url, ttl).Err(), "signedurl: redis set %s", path)
}

// Close releases the redis connection pool.
func (r *RedisTier) Close() error {
	return r.rdb.Close()
}
