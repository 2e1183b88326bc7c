// Package imagemeta reads screenshot dimensions and bytes from access URLs.
package imagemeta

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	_ "golang.org/x/image/webp"

	"github.com/sells-group/ux-extract/internal/resilience"
)

const maxImageBytes = 32 << 20

// Config describes a decoded image header.
type Config struct {
	Width  int
	Height int
	Format string
}

// Prober fetches images over HTTP.
type Prober struct {
	http  *http.Client
	retry resilience.RetryConfig
}

// Option configures a Prober.
type Option func(*Prober)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(p *Prober) {
		p.http = hc
	}
}

// WithRetry overrides the transport retry policy.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(p *Prober) {
		p.retry = cfg
	}
}

// NewProber creates a Prober with a bounded HTTP client.
func NewProber(opts ...Option) *Prober {
	p := &Prober{
		http:  &http.Client{Timeout: 30 * time.Second},
		retry: resilience.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Dimensions decodes only the image header behind url.
func (p *Prober) Dimensions(ctx context.Context, url string) (Config, error) {
	return resilience.DoVal(ctx, p.retry, func(ctx context.Context) (Config, error) {
		body, err := p.open(ctx, url)
		if err != nil {
			return Config{}, err
		}
		defer body.Close()

		cfg, format, err := image.DecodeConfig(io.LimitReader(body, maxImageBytes))
		if err != nil {
			return Config{}, eris.Wrap(err, "imagemeta: decode header")
		}
		return Config{Width: cfg.Width, Height: cfg.Height, Format: format}, nil
	})
}

// DataURI downloads the image and returns it as a base64 data URI.
func (p *Prober) DataURI(ctx context.Context, url string) (string, error) {
	raw, err := resilience.DoVal(ctx, p.retry, func(ctx context.Context) ([]byte, error) {
		body, err := p.open(ctx, url)
		if err != nil {
			return nil, err
		}
		defer body.Close()
		raw, err := io.ReadAll(io.LimitReader(body, maxImageBytes))
		return raw, eris.Wrap(err, "imagemeta: read body")
	})
	if err != nil {
		return "", err
	}

	_, format, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return "", eris.Wrap(err, "imagemeta: decode header")
	}
	return "data:image/" + format + ";base64," + base64.StdEncoding.EncodeToString(raw), nil
}

func (p *Prober) open(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, eris.Wrap(err, "imagemeta: build request")
	}
	resp, err := p.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "imagemeta: fetch")
	}
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, resilience.ClassifyStatus("imagemeta", resp.StatusCode, string(snippet))
	}
	return resp.Body, nil
}
