package monitoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/ux-extract/internal/model"
	"github.com/sells-group/ux-extract/internal/store"
)

// fakeLister serves a fixed batch list.
type fakeLister struct {
	batches []model.Batch
	err     error
}

func (f *fakeLister) ListBatches(_ context.Context, filter store.BatchFilter) ([]model.Batch, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []model.Batch
	for _, b := range f.batches {
		if filter.Status != "" && b.Status != filter.Status {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

var fixedNow = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

func newTestCollector(l BatchLister, active func(int64) bool) *Collector {
	c := NewCollector(l, active, 30*time.Minute)
	c.now = func() time.Time { return fixedNow }
	return c
}

func TestCollector_Collect(t *testing.T) {
	l := &fakeLister{batches: []model.Batch{
		{ID: 1, Status: model.BatchStatusDone, UpdatedAt: fixedNow.Add(-2 * time.Hour),
			Metrics: model.BatchMetrics{ScreenshotsSucceeded: 8, ScreenshotsFailed: 2, DetectedElements: 40, Cost: 1.5}},
		{ID: 2, Status: model.BatchStatusAnnotating, UpdatedAt: fixedNow.Add(-time.Hour),
			Metrics: model.BatchMetrics{ScreenshotsSucceeded: 2, DetectedElements: 10, Cost: 0.5}},
		{ID: 3, Status: model.BatchStatusProcessingFailed, UpdatedAt: fixedNow.Add(-10 * time.Minute)},
		{ID: 4, Status: model.BatchStatusExtracting, UpdatedAt: fixedNow.Add(-5 * time.Minute)},
		// Outside the window.
		{ID: 5, Status: model.BatchStatusDone, UpdatedAt: fixedNow.Add(-48 * time.Hour),
			Metrics: model.BatchMetrics{ScreenshotsFailed: 100, Cost: 99}},
	}}

	snap, err := newTestCollector(l, nil).Collect(context.Background(), 24)
	require.NoError(t, err)

	assert.Equal(t, 4, snap.BatchesTotal)
	assert.Equal(t, 2, snap.BatchesExtracted)
	assert.Equal(t, 1, snap.BatchesFailed)
	assert.Equal(t, 1, snap.BatchesRunning)
	assert.Equal(t, 10, snap.ScreenshotsSucceeded)
	assert.Equal(t, 2, snap.ScreenshotsFailed)
	assert.InDelta(t, 2.0/12.0, snap.ScreenshotFailRate, 1e-9)
	assert.InDelta(t, 2.0, snap.CostUSD, 1e-9)
	assert.InDelta(t, 5.0, snap.AvgElementsPerSuccess, 1e-9)
	assert.Empty(t, snap.Stalled)
	assert.Equal(t, 24, snap.LookbackHours)
	assert.Equal(t, fixedNow, snap.CollectedAt)
}

func TestCollector_Stalled(t *testing.T) {
	l := &fakeLister{batches: []model.Batch{
		{ID: 10, Status: model.BatchStatusExtracting, UpdatedAt: fixedNow.Add(-2 * time.Hour)},
		{ID: 11, Status: model.BatchStatusExtracting, UpdatedAt: fixedNow.Add(-2 * time.Hour)},
		{ID: 12, Status: model.BatchStatusValidating, UpdatedAt: fixedNow.Add(-72 * time.Hour)},
		{ID: 13, Status: model.BatchStatusExtracting, UpdatedAt: fixedNow.Add(-time.Minute)},
	}}
	active := func(id int64) bool { return id == 11 }

	snap, err := newTestCollector(l, active).Collect(context.Background(), 24)
	require.NoError(t, err)
	assert.Equal(t, []int64{10}, snap.Stalled)
}

func TestCollector_Empty(t *testing.T) {
	snap, err := newTestCollector(&fakeLister{}, nil).Collect(context.Background(), 24)
	require.NoError(t, err)
	assert.Zero(t, snap.BatchesTotal)
	assert.Zero(t, snap.ScreenshotFailRate)
	assert.Zero(t, snap.AvgElementsPerSuccess)
}

func TestCollector_ListError(t *testing.T) {
	_, err := newTestCollector(&fakeLister{err: errors.New("db gone")}, nil).Collect(context.Background(), 24)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "monitoring: list batches")
}

func TestNewCollector_DefaultStall(t *testing.T) {
	c := NewCollector(&fakeLister{}, nil, 0)
	assert.Equal(t, time.Hour, c.stall)
	assert.False(t, c.active(1))
}
