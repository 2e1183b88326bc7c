package extract

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sells-group/ux-extract/internal/gateway"
	"github.com/sells-group/ux-extract/internal/prompts"
)

// scriptedGateway answers calls from a function and records them.
type scriptedGateway struct {
	mu      sync.Mutex
	calls   []gateway.Call
	respond func(c gateway.Call) (string, error)
	unbound map[gateway.Stage]bool
}

func (s *scriptedGateway) Invoke(_ context.Context, c gateway.Call) (*gateway.Result, error) {
	s.mu.Lock()
	s.calls = append(s.calls, c)
	s.mu.Unlock()

	text, err := s.respond(c)
	if err != nil {
		return nil, err
	}
	return &gateway.Result{
		RawText:  text,
		Parsed:   gateway.Parse(text),
		Duration: 5 * time.Millisecond,
		Model:    "test-model",
		Cost:     0.01,
	}, nil
}

func (s *scriptedGateway) Has(stage gateway.Stage) bool {
	return !s.unbound[stage]
}

func (s *scriptedGateway) callsFor(stage gateway.Stage) []gateway.Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []gateway.Call
	for _, c := range s.calls {
		if c.Stage == stage {
			out = append(out, c)
		}
	}
	return out
}

func testCatalog(t *testing.T) *prompts.Catalog {
	t.Helper()
	c, err := prompts.Load("", map[string]any{"anchor_density": "two"})
	require.NoError(t, err)
	return c
}

func testImage() Image {
	return Image{URL: "https://cdn.test/shots/home.png?sig=abc", Ref: "shots/home.png"}
}
