// Package moondream is a client for the Moondream vision API detect endpoint.
package moondream

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/ux-extract/internal/resilience"
)

const defaultBaseURL = "https://api.moondream.ai/v1"

// Client locates objects in an image.
type Client interface {
	Detect(ctx context.Context, req DetectRequest) (*DetectResponse, error)
}

// DetectRequest asks for every instance of Object in the image. ImageURL
// must be a data URI for the hosted API; self-hosted servers also accept
// https URLs.
type DetectRequest struct {
	ImageURL string `json:"image_url"`
	Object   string `json:"object"`
}

// DetectResponse lists detected boxes as fractions of the image size. Boxes
// are kept as raw maps so callers can reject malformed entries one by one.
type DetectResponse struct {
	RequestID string           `json:"request_id"`
	Objects   []map[string]any `json:"objects"`
	Raw       []byte           `json:"-"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		if url != "" {
			c.baseURL = url
		}
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRetry overrides the transport retry policy.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *httpClient) {
		c.retry = cfg
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	retry   resilience.RetryConfig
}

// NewClient creates a Moondream API client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		retry: resilience.DefaultRetryConfig(),
	}
	for _, o := range opts {
		o(c)
	}
	if c.retry.OnRetry == nil {
		c.retry.OnRetry = resilience.RetryLogger("moondream", "detect")
	}
	return c
}

func (c *httpClient) Detect(ctx context.Context, req DetectRequest) (*DetectResponse, error) {
	if req.ImageURL == "" || req.Object == "" {
		return nil, eris.New("moondream: image_url and object are required")
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, eris.Wrap(err, "moondream: marshal request")
	}

	raw, err := resilience.DoVal(ctx, c.retry, func(ctx context.Context) ([]byte, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/detect", bytes.NewReader(body))
		if err != nil {
			return nil, eris.Wrap(err, "moondream: create request")
		}
		httpReq.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			httpReq.Header.Set("X-Moondream-Auth", c.apiKey)
		}

		resp, err := c.http.Do(httpReq)
		if err != nil {
			return nil, eris.Wrap(err, "moondream: send request")
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, eris.Wrap(err, "moondream: read response")
		}
		if resp.StatusCode != http.StatusOK {
			return nil, resilience.ClassifyStatus("moondream", resp.StatusCode, string(respBody))
		}
		return respBody, nil
	})
	if err != nil {
		return nil, eris.Wrap(err, "moondream: detect")
	}

	var result DetectResponse
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, eris.Wrap(err, "moondream: unmarshal response")
	}
	result.Raw = raw
	return &result, nil
}
