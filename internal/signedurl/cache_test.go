package signedurl

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSigner struct {
	mu         sync.Mutex
	single     atomic.Int32
	batch      atomic.Int32
	batchPaths [][]string
	gate       chan struct{}
	err        error
	omit       string
}

func (f *fakeSigner) SignedURL(_ context.Context, path string, ttl time.Duration) (string, error) {
	f.single.Add(1)
	if f.gate != nil {
		<-f.gate
	}
	if f.err != nil {
		return "", f.err
	}
	return fmt.Sprintf("https://signed.example/%s?ttl=%d&n=%d", path, int(ttl.Seconds()), f.single.Load()), nil
}

func (f *fakeSigner) SignedURLs(_ context.Context, paths []string, ttl time.Duration) (map[string]string, error) {
	f.batch.Add(1)
	f.mu.Lock()
	f.batchPaths = append(f.batchPaths, append([]string(nil), paths...))
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[string]string, len(paths))
	for _, p := range paths {
		if p == f.omit {
			continue
		}
		out[p] = fmt.Sprintf("https://signed.example/%s?ttl=%d", p, int(ttl.Seconds()))
	}
	return out, nil
}

type memTier struct {
	mu   sync.Mutex
	data map[string]string
	ttls map[string]time.Duration
}

func newMemTier() *memTier {
	return &memTier{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memTier) Get(_ context.Context, path string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.data[path]
	return u, ok, nil
}

func (m *memTier) Set(_ context.Context, path, url string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[path] = url
	m.ttls[path] = ttl
	return nil
}

func TestCache_GetTwiceFetchesOnce(t *testing.T) {
	signer := &fakeSigner{}
	c := New(signer, Options{TTL: time.Hour})

	first, err := c.Get(context.Background(), "batch-1/home.png")
	require.NoError(t, err)
	second, err := c.Get(context.Background(), "batch-1/home.png")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), signer.single.Load())
	assert.Contains(t, first, "ttl=3600")
}

func TestCache_ConcurrentMissesShareOneFetch(t *testing.T) {
	signer := &fakeSigner{gate: make(chan struct{})}
	c := New(signer, Options{})

	const callers = 16
	var wg sync.WaitGroup
	results := make([]string, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			u, err := c.Get(context.Background(), "shared.png")
			assert.NoError(t, err)
			results[i] = u
		}(i)
	}

	// Let every goroutine reach the single-flight group before releasing.
	time.Sleep(50 * time.Millisecond)
	close(signer.gate)
	wg.Wait()

	assert.Equal(t, int32(1), signer.single.Load())
	for _, u := range results {
		assert.Equal(t, results[0], u)
	}
}

func TestCache_GetError(t *testing.T) {
	signer := &fakeSigner{err: fmt.Errorf("permission denied")}
	c := New(signer, Options{})

	_, err := c.Get(context.Background(), "private.png")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "signedurl: sign private.png")
	assert.Equal(t, 0, c.Len())
}

func TestCache_EntryExpiresBeforeURL(t *testing.T) {
	signer := &fakeSigner{}
	c := New(signer, Options{TTL: 120 * time.Millisecond, RefreshMargin: 100 * time.Millisecond})

	_, err := c.Get(context.Background(), "a.png")
	require.NoError(t, err)
	time.Sleep(60 * time.Millisecond)
	_, err = c.Get(context.Background(), "a.png")
	require.NoError(t, err)

	assert.Equal(t, int32(2), signer.single.Load())
}

func TestCache_GetManyBatchesMisses(t *testing.T) {
	signer := &fakeSigner{}
	c := New(signer, Options{})

	_, err := c.Get(context.Background(), "b.png")
	require.NoError(t, err)

	got, err := c.GetMany(context.Background(), []string{"c.png", "b.png", "a.png", "c.png"})
	require.NoError(t, err)
	assert.Len(t, got, 3)
	assert.Equal(t, int32(1), signer.batch.Load())
	require.Len(t, signer.batchPaths, 1)
	assert.Equal(t, []string{"a.png", "c.png"}, signer.batchPaths[0])

	again, err := c.GetMany(context.Background(), []string{"a.png", "b.png", "c.png"})
	require.NoError(t, err)
	assert.Equal(t, got, again)
	assert.Equal(t, int32(1), signer.batch.Load())
}

func TestCache_GetManyMissingPath(t *testing.T) {
	signer := &fakeSigner{omit: "gone.png"}
	c := New(signer, Options{})

	_, err := c.GetMany(context.Background(), []string{"ok.png", "gone.png"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no url for gone.png")
}

func TestCache_GetManyError(t *testing.T) {
	signer := &fakeSigner{err: fmt.Errorf("quota")}
	c := New(signer, Options{})

	_, err := c.GetMany(context.Background(), []string{"x.png"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "batch sign 1 paths")
}

func TestCache_SharedTier(t *testing.T) {
	tier := newMemTier()
	tier.data["warm.png"] = "https://signed.example/warm.png?from=peer"

	signer := &fakeSigner{}
	c := New(signer, Options{TTL: time.Hour, RefreshMargin: time.Minute, Shared: tier})

	u, err := c.Get(context.Background(), "warm.png")
	require.NoError(t, err)
	assert.Equal(t, "https://signed.example/warm.png?from=peer", u)
	assert.Zero(t, signer.single.Load())

	_, err = c.Get(context.Background(), "cold.png")
	require.NoError(t, err)
	assert.Equal(t, int32(1), signer.single.Load())
	assert.Equal(t, 59*time.Minute, tier.ttls["cold.png"])
}

func TestCache_Invalidate(t *testing.T) {
	signer := &fakeSigner{}
	c := New(signer, Options{})

	_, err := c.Get(context.Background(), "a.png")
	require.NoError(t, err)
	c.Invalidate("a.png")
	_, err = c.Get(context.Background(), "a.png")
	require.NoError(t, err)
	assert.Equal(t, int32(2), signer.single.Load())
}
