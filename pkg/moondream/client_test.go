package moondream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/ux-extract/internal/resilience"
)

func fastRetry() resilience.RetryConfig {
	return resilience.RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond}
}

func TestDetect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/detect", r.URL.Path)
		assert.Equal(t, "md-key", r.Header.Get("X-Moondream-Auth"))

		var req DetectRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "data:image/png;base64,AAAA", req.ImageURL)
		assert.Equal(t, "blue sign-up button below the hero heading", req.Object)

		_, _ = w.Write([]byte(`{"request_id":"req-1","objects":[
			{"x_min":0.1,"y_min":0.2,"x_max":0.3,"y_max":0.4},
			{"x_min":0.5,"y_min":0.5}
		]}`))
	}))
	defer srv.Close()

	client := NewClient("md-key", WithBaseURL(srv.URL), WithRetry(fastRetry()))
	resp, err := client.Detect(context.Background(), DetectRequest{
		ImageURL: "data:image/png;base64,AAAA",
		Object:   "blue sign-up button below the hero heading",
	})
	require.NoError(t, err)
	assert.Equal(t, "req-1", resp.RequestID)
	require.Len(t, resp.Objects, 2)
	assert.Equal(t, 0.3, resp.Objects[0]["x_max"])
	assert.NotContains(t, resp.Objects[1], "x_max")
	assert.Contains(t, string(resp.Raw), "req-1")
}

func TestDetect_NoObjects(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"request_id":"req-2","objects":[]}`))
	}))
	defer srv.Close()

	resp, err := NewClient("k", WithBaseURL(srv.URL)).Detect(context.Background(), DetectRequest{ImageURL: "u", Object: "o"})
	require.NoError(t, err)
	assert.Empty(t, resp.Objects)
}

func TestDetect_Validation(t *testing.T) {
	_, err := NewClient("k").Detect(context.Background(), DetectRequest{Object: "o"})
	require.Error(t, err)
}

func TestDetect_RetriesTransient(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"objects":[]}`))
	}))
	defer srv.Close()

	_, err := NewClient("k", WithBaseURL(srv.URL), WithRetry(fastRetry())).
		Detect(context.Background(), DetectRequest{ImageURL: "u", Object: "o"})
	require.NoError(t, err)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestDetect_PermanentError(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"bad key"}`))
	}))
	defer srv.Close()

	_, err := NewClient("k", WithBaseURL(srv.URL), WithRetry(fastRetry())).
		Detect(context.Background(), DetectRequest{ImageURL: "u", Object: "o"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "moondream: status 401")
	assert.Equal(t, int32(1), attempts.Load())
}

func TestDetect_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	_, err := NewClient("k", WithBaseURL(srv.URL)).Detect(context.Background(), DetectRequest{ImageURL: "u", Object: "o"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal response")
}
