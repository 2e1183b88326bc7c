// Package signedurl caches time-limited access URLs for blob storage paths.
package signedurl

import (
	"context"
	"sort"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Signer issues signed access URLs for storage object paths.
type Signer interface {
	SignedURL(ctx context.Context, path string, ttl time.Duration) (string, error)
	SignedURLs(ctx context.Context, paths []string, ttl time.Duration) (map[string]string, error)
}

// SharedTier is an optional second cache level shared across processes.
type SharedTier interface {
	Get(ctx context.Context, path string) (url string, ok bool, err error)
	Set(ctx context.Context, path, url string, ttl time.Duration) error
}

// Options configures a Cache.
type Options struct {
	// TTL is the lifetime requested from the signer.
	TTL time.Duration
	// RefreshMargin is subtracted from TTL so entries are re-signed
	// before the URL expires in a consumer's hands.
	RefreshMargin time.Duration
	// Size bounds the number of cached paths.
	Size int
	// Shared is consulted on a local miss. Nil disables it.
	Shared SharedTier
}

const (
	defaultTTL  = time.Hour
	defaultSize = 4096
)

// Cache maps storage paths to signed URLs. It is safe for concurrent use.
// Concurrent misses for the same path share one upstream fetch.
type Cache struct {
	signer   Signer
	entries  *lru.LRU[string, string]
	group    singleflight.Group
	shared   SharedTier
	ttl      time.Duration
	lifetime time.Duration
}

// New creates a Cache in front of signer.
func New(signer Signer, opts Options) *Cache {
	if opts.TTL <= 0 {
		opts.TTL = defaultTTL
	}
	if opts.RefreshMargin < 0 || opts.RefreshMargin >= opts.TTL {
		opts.RefreshMargin = 0
	}
	if opts.Size <= 0 {
		opts.Size = defaultSize
	}
	lifetime := opts.TTL - opts.RefreshMargin
	return &Cache{
		signer:   signer,
		entries:  lru.NewLRU[string, string](opts.Size, nil, lifetime),
		shared:   opts.Shared,
		ttl:      opts.TTL,
		lifetime: lifetime,
	}
}

// Get returns the signed URL for path, fetching it on a miss.
func (c *Cache) Get(ctx context.Context, path string) (string, error) {
	if url, ok := c.entries.Get(path); ok {
		return url, nil
	}

	v, err, _ := c.group.Do(path, func() (any, error) {
		if url, ok := c.entries.Get(path); ok {
			return url, nil
		}
		if url, ok := c.sharedGet(ctx, path); ok {
			c.entries.Add(path, url)
			return url, nil
		}
		url, err := c.signer.SignedURL(ctx, path, c.ttl)
		if err != nil {
			return "", eris.Wrapf(err, "signedurl: sign %s", path)
		}
		c.store(ctx, path, url)
		return url, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// GetMany resolves every path, issuing one batch signer call for all misses.
// A path the signer omits from its response is an error.
func (c *Cache) GetMany(ctx context.Context, paths []string) (map[string]string, error) {
	out := make(map[string]string, len(paths))
	var misses []string
	seen := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		if url, ok := c.entries.Get(p); ok {
			out[p] = url
			continue
		}
		if url, ok := c.sharedGet(ctx, p); ok {
			c.entries.Add(p, url)
			out[p] = url
			continue
		}
		misses = append(misses, p)
	}
	if len(misses) == 0 {
		return out, nil
	}

	sort.Strings(misses)
	signed, err := c.signer.SignedURLs(ctx, misses, c.ttl)
	if err != nil {
		return nil, eris.Wrapf(err, "signedurl: batch sign %d paths", len(misses))
	}
	for _, p := range misses {
		url, ok := signed[p]
		if !ok || url == "" {
			return nil, eris.Errorf("signedurl: signer returned no url for %s", p)
		}
		c.store(ctx, p, url)
		out[p] = url
	}
	return out, nil
}

// Invalidate drops path from the local tier.
func (c *Cache) Invalidate(path string) {
	c.entries.Remove(path)
}

// Len reports the number of locally cached entries.
func (c *Cache) Len() int {
	return c.entries.Len()
}

func (c *Cache) store(ctx context.Context, path, url string) {
	c.entries.Add(path, url)
	if c.shared == nil {
		return
	}
	if err := c.shared.Set(ctx, path, url, c.lifetime); err != nil {
		zap.L().Warn("signedurl: shared tier set failed", zap.String("path", path), zap.Error(err))
	}
}

func (c *Cache) sharedGet(ctx context.Context, path string) (string, bool) {
	if c.shared == nil {
		return "", false
	}
	url, ok, err := c.shared.Get(ctx, path)
	if err != nil {
		zap.L().Warn("signedurl: shared tier get failed", zap.String("path", path), zap.Error(err))
		return "", false
	}
	return url, ok
}
