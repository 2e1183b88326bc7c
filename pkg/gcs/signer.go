// Package gcs issues signed read URLs for objects in a Google Cloud Storage bucket.
package gcs

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/storage"
	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/option"
)

const defaultConcurrency = 8

type signFunc func(object string, opts *storage.SignedURLOptions) (string, error)

// Signer creates V4 signed GET URLs for objects in one bucket.
type Signer struct {
	bucket      string
	sign        signFunc
	concurrency int
	closeFn     func() error
}

// Option configures a Signer.
type Option func(*Signer)

// WithConcurrency bounds the number of parallel signing calls in SignedURLs.
func WithConcurrency(n int) Option {
	return func(s *Signer) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// New creates a Signer backed by a storage client. The client detects its
// signing identity from the credentials (service-account key or IAM
// signBlob on the attached identity).
func New(ctx context.Context, bucket, credentials string, opts ...Option) (*Signer, error) {
	if bucket == "" {
		return nil, eris.New("gcs: bucket is required")
	}
	client, err := storage.NewClient(ctx, clientOptions(credentials)...)
	if err != nil {
		return nil, eris.Wrap(err, "gcs: create storage client")
	}
	s := newSigner(bucket, client.Bucket(bucket).SignedURL, opts...)
	s.closeFn = client.Close
	return s, nil
}

// NewWithKey creates a Signer that signs locally with a service-account
// private key, without a storage client.
func NewWithKey(bucket, accessID string, privateKey []byte, opts ...Option) *Signer {
	return newSigner(bucket, func(object string, o *storage.SignedURLOptions) (string, error) {
		o.GoogleAccessID = accessID
		o.PrivateKey = privateKey
		return storage.SignedURL(bucket, object, o)
	}, opts...)
}

func newSigner(bucket string, sign signFunc, opts ...Option) *Signer {
	s := &Signer{bucket: bucket, sign: sign, concurrency: defaultConcurrency}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func clientOptions(credentials string) []option.ClientOption {
	credentials = strings.TrimSpace(credentials)
	switch {
	case credentials == "":
		return nil
	case strings.HasPrefix(credentials, "{"):
		return []option.ClientOption{option.WithCredentialsJSON([]byte(credentials))}
	default:
		return []option.ClientOption{option.WithCredentialsFile(credentials)}
	}
}

// SignedURL returns a V4 signed GET URL for path valid for ttl.
func (s *Signer) SignedURL(ctx context.Context, path string, ttl time.Duration) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", eris.Wrap(err, "gcs: sign")
	}
	u, err := s.sign(strings.TrimPrefix(path, "/"), &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  "GET",
		Expires: time.Now().Add(ttl),
	})
	if err != nil {
		return "", eris.Wrapf(err, "gcs: sign %s/%s", s.bucket, path)
	}
	return u, nil
}

// SignedURLs signs every path, in parallel up to the configured concurrency.
func (s *Signer) SignedURLs(ctx context.Context, paths []string, ttl time.Duration) (map[string]string, error) {
	out := make(map[string]string, len(paths))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, p := range paths {
		g.Go(func() error {
			u, err := s.SignedURL(gctx, p, ttl)
			if err != nil {
				return err
			}
			mu.Lock()
			out[p] = u
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Close releases the storage client, if any.
func (s *Signer) Close() error {
	if s.closeFn == nil {
		return nil
	}
	return s.closeFn()
}

// PublicSigner builds unsigned URLs from a base URL. It serves public
// buckets and local development servers.
type PublicSigner struct {
	base string
}

// NewPublic creates a PublicSigner rooted at baseURL.
func NewPublic(baseURL string) *PublicSigner {
	return &PublicSigner{base: strings.TrimRight(baseURL, "/")}
}

// SignedURL joins the base URL and the escaped path.
func (p *PublicSigner) SignedURL(_ context.Context, path string, _ time.Duration) (string, error) {
	if p.base == "" {
		return "", eris.New("gcs: public base url is empty")
	}
	segments := strings.Split(strings.TrimPrefix(path, "/"), "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return p.base + "/" + strings.Join(segments, "/"), nil
}

// SignedURLs maps every path through SignedURL.
func (p *PublicSigner) SignedURLs(ctx context.Context, paths []string, ttl time.Duration) (map[string]string, error) {
	out := make(map[string]string, len(paths))
	for _, path := range paths {
		u, err := p.SignedURL(ctx, path, ttl)
		if err != nil {
			return nil, err
		}
		out[path] = u
	}
	return out, nil
}
