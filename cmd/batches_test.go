package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/ux-extract/internal/model"
	"github.com/sells-group/ux-extract/internal/store"
)

func TestRegisterBatch(t *testing.T) {
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "reg.db"))
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck
	ctx := context.Background()
	require.NoError(t, st.Migrate(ctx))

	b, shots, err := registerBatch(ctx, st, "onboarding", "ux_audit", []string{"o/1.png", "o/2.png"})
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusUploading, b.Status)
	require.Len(t, shots, 2)
	assert.Equal(t, "o/2.png", shots[1].FilePath)

	_, _, err = registerBatch(ctx, st, "bad", "", []string{""})
	assert.Error(t, err)
}

func TestFormatBatchesList(t *testing.T) {
	var buf bytes.Buffer
	formatBatchesList(&buf, []model.Batch{{
		ID:     3,
		Name:   "a very long batch name that will be truncated",
		Status: model.BatchStatusAnnotating,
		Metrics: model.BatchMetrics{
			ScreenshotsSucceeded: 4,
			ScreenshotsFailed:    1,
			DetectedElements:     37,
			Cost:                 0.1234,
		},
		UpdatedAt: time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC),
	}})

	out := buf.String()
	assert.Contains(t, out, "STATUS")
	assert.Contains(t, out, "annotating")
	assert.Contains(t, out, "a very long batch name that...")
	assert.Contains(t, out, "$0.1234")
	assert.Contains(t, out, "2026-03-01 09:30")
}

func TestFormatBatchStatus(t *testing.T) {
	var buf bytes.Buffer
	formatBatchStatus(&buf,
		&model.Batch{ID: 9, Name: "pricing", Status: model.BatchStatusDone, Metrics: model.BatchMetrics{DetectedElements: 5}},
		[]model.Screenshot{
			{ID: 1, FilePath: "p/1.png", Status: model.ScreenshotStatusCompleted, Width: 1440, Height: 900, ProcessingMs: 2100,
				LabelIssues: []model.LabelIssue{{Label: "Nav > Cart", Reason: "not detected"}}},
			{ID: 2, FilePath: "p/2.png", Status: model.ScreenshotStatusError, Error: "gateway: component_discovery: timeout"},
		},
		&model.PromptLogTotals{Calls: 12, Failed: 1, InputTokens: 900, OutputTokens: 300, Cost: 0.02},
	)

	out := buf.String()
	assert.Contains(t, out, "Batch 9: pricing")
	assert.Contains(t, out, "12 (1 failed)")
	assert.Contains(t, out, "1440x900")
	assert.Contains(t, out, "gateway: component_discovery: timeout")
	assert.Contains(t, out, "Label issues:")
	assert.Contains(t, out, "p/1.png  Nav > Cart: not detected")
}
