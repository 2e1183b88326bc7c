package batch

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sells-group/ux-extract/internal/cost"
	"github.com/sells-group/ux-extract/internal/extract"
	"github.com/sells-group/ux-extract/internal/gateway"
	"github.com/sells-group/ux-extract/internal/imagemeta"
	"github.com/sells-group/ux-extract/internal/model"
	"github.com/sells-group/ux-extract/internal/prompts"
	"github.com/sells-group/ux-extract/internal/store"
)

// fakeCapability answers every stage from a function of the request.
type fakeCapability struct {
	provider string
	model    string
	respond  func(req gateway.Request) (string, error)
}

func (f *fakeCapability) Call(_ context.Context, req gateway.Request) (*gateway.Response, error) {
	text, err := f.respond(req)
	if err != nil {
		return nil, err
	}
	return &gateway.Response{Text: text, Usage: model.TokenUsage{InputTokens: 10, OutputTokens: 5}, Model: f.model}, nil
}

func (f *fakeCapability) Provider() string { return f.provider }
func (f *fakeCapability) Model() string    { return f.model }

// recordingStore records batch status writes on top of a real store.
type recordingStore struct {
	store.Store
	mu       sync.Mutex
	statuses []model.BatchStatus
}

func (r *recordingStore) UpdateBatchStatus(ctx context.Context, id int64, status model.BatchStatus) error {
	r.mu.Lock()
	r.statuses = append(r.statuses, status)
	r.mu.Unlock()
	return r.Store.UpdateBatchStatus(ctx, id, status)
}

func (r *recordingStore) history() []model.BatchStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.BatchStatus(nil), r.statuses...)
}

// signedURLs resolves paths without a signer.
type signedURLs struct {
	err error
}

func (s signedURLs) GetMany(_ context.Context, paths []string) (map[string]string, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make(map[string]string, len(paths))
	for _, p := range paths {
		out[p] = "https://signed.test/" + p
	}
	return out, nil
}

type fixedProber struct {
	cfg imagemeta.Config
}

func (f fixedProber) Dimensions(context.Context, string) (imagemeta.Config, error) {
	return f.cfg, nil
}

// headerCardReplies serves the two-screenshot scenario: a.png holds a
// Header, b.png a Card, and every label is detected once.
func headerCardReplies(req gateway.Request) (string, error) {
	isA := strings.HasSuffix(req.ImageURL, "a.png")
	switch {
	case strings.Contains(req.Prompt, "List every distinct UI component"):
		if isA {
			return `[{"name": "Header"}]`, nil
		}
		return `[{"name": "Card"}]`, nil
	case strings.Contains(req.Prompt, "These components were found"):
		if isA {
			return `{"Header > Logo": "Brand logo"}`, nil
		}
		return `{"Card > Title": "Product title", "Promo > Badge": "Sale badge"}`, nil
	case strings.Contains(req.Prompt, "Rewrite each description"):
		return `{}`, nil
	case strings.Contains(req.Prompt, "Score how well"):
		return `{"accuracy_score": 42, "suggested_coordinates": {"x_min": 0.1, "y_min": 0.1, "x_max": 0.3, "y_max": 0.3}}`, nil
	default:
		return `{"objects": [{"x_min": 0.1, "y_min": 0.1, "x_max": 0.2, "y_max": 0.2}]}`, nil
	}
}

type harness struct {
	store   *recordingStore
	gateway *gateway.Gateway
	orch    *extract.Orchestrator
	ctrl    *Controller
	batch   *model.Batch
	shots   []*model.Screenshot
}

func newHarness(t *testing.T, respond func(gateway.Request) (string, error), withAccuracy bool) *harness {
	t.Helper()
	ctx := context.Background()

	sqlite, err := store.NewSQLite(filepath.Join(t.TempDir(), "batch.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })
	require.NoError(t, sqlite.Migrate(ctx))
	st := &recordingStore{Store: sqlite}

	b, err := st.CreateBatch(ctx, "checkout flow", "ux_audit")
	require.NoError(t, err)
	a, err := st.CreateScreenshot(ctx, b.ID, "shots/a.png")
	require.NoError(t, err)
	require.NoError(t, st.UpdateScreenshotDimensions(ctx, a.ID, 1280, 720))
	bb, err := st.CreateScreenshot(ctx, b.ID, "shots/b.png")
	require.NoError(t, err)

	gen := &fakeCapability{provider: "anthropic", model: "claude-test", respond: respond}
	det := &fakeCapability{provider: "moondream", model: "detect-test", respond: respond}
	bindings := map[gateway.Stage]gateway.Binding{
		gateway.StageComponentDiscovery: {Capability: gen},
		gateway.StageElementDiscovery:   {Capability: gen},
		gateway.StageAnchoring:          {Capability: gen},
		gateway.StageDetection:          {Capability: det},
	}
	if withAccuracy {
		bindings[gateway.StageAccuracy] = gateway.Binding{Capability: gen}
	}
	calc := cost.NewCalculator(cost.Rates{
		Models:  map[string]cost.ModelRate{"claude-test": {Input: 1000, Output: 1000}},
		PerCall: map[string]float64{"detect-test": 0.5},
	})
	gw := gateway.New(bindings, st, calc)

	catalog, err := prompts.Load("", map[string]any{"anchor_density": "one"})
	require.NoError(t, err)

	unit := extract.NewUnit(gw, catalog, fixedProber{cfg: imagemeta.Config{Width: 1000, Height: 800}}, extract.UnitConfig{AccuracyThreshold: 70})
	orch := extract.NewOrchestrator(unit, st, 2)
	ctrl := New(context.Background(), st, signedURLs{}, orch, Scoring{Gateway: gw, Prompts: catalog, Threshold: 70})

	return &harness{store: st, gateway: gw, orch: orch, ctrl: ctrl, batch: b, shots: []*model.Screenshot{a, bb}}
}

// elementsFail rejects element writes on top of the harness store.
type elementsFail struct {
	*recordingStore
}

func (elementsFail) CreateElements(context.Context, []model.Element) (int64, error) {
	return 0, errors.New("disk full")
}
