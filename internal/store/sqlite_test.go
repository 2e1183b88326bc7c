package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/ux-extract/internal/geometry"
	"github.com/sells-group/ux-extract/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

// seedScreenshot creates a batch with one screenshot and one component.
func seedScreenshot(t *testing.T, st *SQLiteStore) (*model.Batch, *model.Screenshot, *model.Component) {
	t.Helper()
	ctx := context.Background()

	b, err := st.CreateBatch(ctx, "checkout flow", "ux_audit")
	require.NoError(t, err)
	sc, err := st.CreateScreenshot(ctx, b.ID, "batches/1/cart.png")
	require.NoError(t, err)
	c := &model.Component{
		ScreenshotID: sc.ID,
		Name:         "Header",
		Description:  "site header",
		CTAType:      model.CTANone,
		Status:       model.ComponentStatusExtracted,
	}
	require.NoError(t, st.CreateComponent(ctx, c))
	return b, sc, c
}

// --- Batches ---

func TestSQLite_Batch_CreateAndGet(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	b, err := st.CreateBatch(ctx, "onboarding", "heuristic")
	require.NoError(t, err)
	assert.Positive(t, b.ID)
	assert.Equal(t, model.BatchStatusUploading, b.Status)

	got, err := st.GetBatch(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "onboarding", got.Name)
	assert.Equal(t, "heuristic", got.AnalysisType)
	assert.Equal(t, model.BatchStatusUploading, got.Status)
	assert.WithinDuration(t, time.Now(), got.CreatedAt, time.Minute)
}

func TestSQLite_Batch_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.GetBatch(context.Background(), 999)
	assert.ErrorIs(t, err, ErrNotFound)

	err = st.UpdateBatchStatus(context.Background(), 999, model.BatchStatusExtracting)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_Batch_StatusAndMetrics(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	b, err := st.CreateBatch(ctx, "b", "")
	require.NoError(t, err)

	require.NoError(t, st.UpdateBatchStatus(ctx, b.ID, model.BatchStatusExtracting))
	metrics := model.BatchMetrics{
		MasterPromptRuntimeMs: 1500,
		TotalInferenceMs:      900,
		DetectedElements:      4,
		InputTokens:           1200,
		OutputTokens:          300,
		Cost:                  0.0123,
		ScreenshotsSucceeded:  2,
		ScreenshotsFailed:     1,
	}
	require.NoError(t, st.UpdateBatchMetrics(ctx, b.ID, metrics))

	got, err := st.GetBatch(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusExtracting, got.Status)
	assert.Equal(t, metrics, got.Metrics)
}

func TestSQLite_ListBatches(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	a, err := st.CreateBatch(ctx, "a", "")
	require.NoError(t, err)
	_, err = st.CreateBatch(ctx, "b", "")
	require.NoError(t, err)
	require.NoError(t, st.UpdateBatchStatus(ctx, a.ID, model.BatchStatusExtracting))

	all, err := st.ListBatches(ctx, BatchFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	extracting, err := st.ListBatches(ctx, BatchFilter{Status: model.BatchStatusExtracting})
	require.NoError(t, err)
	require.Len(t, extracting, 1)
	assert.Equal(t, a.ID, extracting[0].ID)

	limited, err := st.ListBatches(ctx, BatchFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

// --- Screenshots ---

func TestSQLite_Screenshots(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	b, err := st.CreateBatch(ctx, "b", "")
	require.NoError(t, err)
	s1, err := st.CreateScreenshot(ctx, b.ID, "a.png")
	require.NoError(t, err)
	_, err = st.CreateScreenshot(ctx, b.ID, "b.png")
	require.NoError(t, err)

	require.NoError(t, st.UpdateScreenshotStatus(ctx, s1.ID, model.ScreenshotStatusError, 250, "detector unavailable"))
	require.NoError(t, st.UpdateScreenshotDimensions(ctx, s1.ID, 1440, 900))

	shots, err := st.ListScreenshots(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, shots, 2)
	assert.Equal(t, model.ScreenshotStatusError, shots[0].Status)
	assert.Equal(t, int64(250), shots[0].ProcessingMs)
	assert.Equal(t, "detector unavailable", shots[0].Error)
	assert.Equal(t, 1440, shots[0].Width)
	assert.True(t, shots[0].HasDimensions())
	assert.Equal(t, model.ScreenshotStatusPending, shots[1].Status)
	assert.False(t, shots[1].HasDimensions())

	err = st.UpdateScreenshotStatus(ctx, 404, model.ScreenshotStatusCompleted, 0, "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_ScreenshotLabelIssues(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	b, err := st.CreateBatch(ctx, "b", "")
	require.NoError(t, err)
	sc, err := st.CreateScreenshot(ctx, b.ID, "a.png")
	require.NoError(t, err)

	issues := []model.LabelIssue{
		{Label: "Nav > Cart", Reason: "error during coordinate scaling"},
		{Label: "Nav > Search", Reason: "not detected"},
	}
	require.NoError(t, st.UpdateScreenshotLabelIssues(ctx, sc.ID, issues))

	shots, err := st.ListScreenshots(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, shots, 1)
	assert.Equal(t, issues, shots[0].LabelIssues)

	require.NoError(t, st.UpdateScreenshotLabelIssues(ctx, sc.ID, nil))
	shots, err = st.ListScreenshots(ctx, b.ID)
	require.NoError(t, err)
	assert.Nil(t, shots[0].LabelIssues)

	err = st.UpdateScreenshotLabelIssues(ctx, 404, issues)
	assert.ErrorIs(t, err, ErrNotFound)
}

// --- Components & Elements ---

func TestSQLite_Components(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	_, sc, header := seedScreenshot(t, st)

	card := &model.Component{
		ScreenshotID: sc.ID,
		Name:         "Card",
		CTAType:      model.CTAPrimary,
		Reusable:     true,
		Region:       &geometry.PixelBox{XMin: 10, YMin: 20, XMax: 300, YMax: 400},
		Provenance:   model.Provenance{Model: "claude", DurationMs: 800, InputTokens: 100, OutputTokens: 20, Cost: 0.01},
		Status:       model.ComponentStatusExtracted,
	}
	require.NoError(t, st.CreateComponent(ctx, card))
	assert.Greater(t, card.ID, header.ID)

	comps, err := st.ListComponents(ctx, sc.ID)
	require.NoError(t, err)
	require.Len(t, comps, 2)
	assert.Nil(t, comps[0].Region)
	assert.Equal(t, "Card", comps[1].Name)
	assert.True(t, comps[1].Reusable)
	assert.Equal(t, model.CTAPrimary, comps[1].CTAType)
	assert.Equal(t, card.Region, comps[1].Region)
	assert.Equal(t, card.Provenance, comps[1].Provenance)
}

func TestSQLite_Elements_CreateListAndScore(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	b, sc, comp := seedScreenshot(t, st)

	score := 91
	n, err := st.CreateElements(ctx, []model.Element{
		{
			ScreenshotID: sc.ID, ComponentID: comp.ID,
			Box:         geometry.PixelBox{XMin: 1, YMin: 2, XMax: 30, YMax: 40},
			Label:       "Header > Logo", Description: "brand mark, top left",
			InferenceMs: 120, Status: model.ElementStatusDetected,
		},
		{
			ScreenshotID: sc.ID, ComponentID: comp.ID, Version: 1,
			Box:           geometry.PixelBox{XMin: 50, YMin: 2, XMax: 90, YMax: 40},
			Label:         "Header > Search", Status: model.ElementStatusDetected,
			AccuracyScore: &score,
		},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	els, err := st.ListElements(ctx, model.ElementFilter{BatchID: b.ID})
	require.NoError(t, err)
	require.Len(t, els, 2)
	assert.Equal(t, 1, els[0].Version)
	assert.Equal(t, geometry.PixelBox{XMin: 1, YMin: 2, XMax: 30, YMax: 40}, els[0].Box)
	assert.Nil(t, els[0].AccuracyScore)
	require.NotNil(t, els[1].AccuracyScore)
	assert.Equal(t, 91, *els[1].AccuracyScore)

	unscored, err := st.ListElements(ctx, model.ElementFilter{ScreenshotID: sc.ID, Unscored: true})
	require.NoError(t, err)
	require.Len(t, unscored, 1)

	suggested := &geometry.PixelBox{XMin: 0, YMin: 0, XMax: 32, YMax: 41}
	require.NoError(t, st.UpdateElementAccuracy(ctx, unscored[0].ID, 40, suggested))

	els, err = st.ListElements(ctx, model.ElementFilter{ComponentID: comp.ID})
	require.NoError(t, err)
	assert.Equal(t, 2, els[0].Version)
	assert.Equal(t, 40, *els[0].AccuracyScore)
	assert.Equal(t, suggested, els[0].SuggestedBox)

	assert.ErrorIs(t, st.UpdateElementAccuracy(ctx, 9999, 10, nil), ErrNotFound)
}

func TestSQLite_CreateElements_Empty(t *testing.T) {
	st := newTestSQLiteStore(t)
	n, err := st.CreateElements(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSQLite_DeleteScreenshotResults(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	_, sc, comp := seedScreenshot(t, st)

	_, err := st.CreateElements(ctx, []model.Element{{
		ScreenshotID: sc.ID, ComponentID: comp.ID,
		Box: geometry.PixelBox{XMin: 0, YMin: 0, XMax: 1, YMax: 1}, Label: "Header > X",
	}})
	require.NoError(t, err)

	require.NoError(t, st.DeleteScreenshotResults(ctx, sc.ID))

	comps, err := st.ListComponents(ctx, sc.ID)
	require.NoError(t, err)
	assert.Empty(t, comps)
	els, err := st.ListElements(ctx, model.ElementFilter{ScreenshotID: sc.ID})
	require.NoError(t, err)
	assert.Empty(t, els)
}

// --- Prompt logs ---

func TestSQLite_PromptLogs(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	b, sc, _ := seedScreenshot(t, st)

	started := time.Now().Add(-time.Second)
	shotID := sc.ID
	logs := []*model.PromptLog{
		{
			RunID: "run-1", BatchID: b.ID, ScreenshotID: &shotID,
			LogType: model.LogTypeComponentExtraction, Provider: "anthropic", Model: "claude",
			Prompt: "list components", ImageRef: "a.png", RawResponse: `[{"name":"Header"}]`,
			InputTokens: 1000, OutputTokens: 50, Cost: 0.004, DurationMs: 900,
			StartedAt: started, CompletedAt: started.Add(900 * time.Millisecond),
		},
		{
			RunID: "run-1", BatchID: b.ID, ScreenshotID: &shotID,
			LogType: model.LogTypeVLMLabeling, Provider: "moondream", Model: "moondream-detect",
			DurationMs: 300, Cost: 0.0002, Error: "status 503",
			StartedAt: started, CompletedAt: started.Add(300 * time.Millisecond),
		},
	}
	for _, l := range logs {
		require.NoError(t, st.AppendPromptLog(ctx, l))
		assert.Positive(t, l.ID)
	}

	got, err := st.ListPromptLogs(ctx, b.ID, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, model.LogTypeComponentExtraction, got[0].LogType)
	require.NotNil(t, got[0].ScreenshotID)
	assert.Equal(t, sc.ID, *got[0].ScreenshotID)
	assert.Nil(t, got[0].ElementID)
	assert.Equal(t, "status 503", got[1].Error)

	totals, err := st.PromptLogTotals(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, totals.Calls)
	assert.Equal(t, 1, totals.Failed)
	assert.Equal(t, int64(1000), totals.InputTokens)
	assert.Equal(t, int64(1200), totals.DurationMs)
	assert.InDelta(t, 0.0042, totals.Cost, 1e-9)

	empty, err := st.PromptLogTotals(ctx, 12345)
	require.NoError(t, err)
	assert.Zero(t, empty.Calls)
}
