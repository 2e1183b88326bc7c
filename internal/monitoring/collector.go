package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/ux-extract/internal/model"
	"github.com/sells-group/ux-extract/internal/store"
)

// MetricsSnapshot holds a point-in-time view of batch health.
type MetricsSnapshot struct {
	// Batches updated within the lookback window.
	BatchesTotal     int `json:"batches_total"`
	BatchesExtracted int `json:"batches_extracted"`
	BatchesFailed    int `json:"batches_failed"`
	BatchesRunning   int `json:"batches_running"`

	// Stalled lists batches left in extracting with no live run that have
	// not moved for longer than the stall window.
	Stalled []int64 `json:"stalled,omitempty"`

	ScreenshotsSucceeded  int     `json:"screenshots_succeeded"`
	ScreenshotsFailed     int     `json:"screenshots_failed"`
	ScreenshotFailRate    float64 `json:"screenshot_fail_rate"`
	DetectedElements      int     `json:"detected_elements"`
	CostUSD               float64 `json:"cost_usd"`
	AvgElementsPerSuccess float64 `json:"avg_elements_per_success"`

	// Metadata.
	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// BatchLister is the store read the collector needs.
type BatchLister interface {
	ListBatches(ctx context.Context, filter store.BatchFilter) ([]model.Batch, error)
}

// Collector gathers batch metrics from the store.
type Collector struct {
	store  BatchLister
	active func(id int64) bool
	stall  time.Duration
	now    func() time.Time
}

// NewCollector creates a metrics collector. active reports whether this
// process is driving a batch; nil treats every batch as idle.
func NewCollector(st BatchLister, active func(id int64) bool, stall time.Duration) *Collector {
	if active == nil {
		active = func(int64) bool { return false }
	}
	if stall <= 0 {
		stall = time.Hour
	}
	return &Collector{store: st, active: active, stall: stall, now: time.Now}
}

const collectLimit = 10000

// Collect gathers a snapshot of batch metrics over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	now := c.now().UTC()
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}
	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)

	batches, err := c.store.ListBatches(ctx, store.BatchFilter{Limit: collectLimit})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list batches")
	}

	for _, b := range batches {
		if b.Status == model.BatchStatusExtracting && !c.active(b.ID) && now.Sub(b.UpdatedAt) > c.stall {
			snap.Stalled = append(snap.Stalled, b.ID)
		}
		if b.UpdatedAt.Before(cutoff) {
			continue
		}

		snap.BatchesTotal++
		switch b.Status {
		case model.BatchStatusAnnotating, model.BatchStatusValidating, model.BatchStatusDone:
			snap.BatchesExtracted++
		case model.BatchStatusProcessingFailed:
			snap.BatchesFailed++
		case model.BatchStatusExtracting:
			snap.BatchesRunning++
		}

		snap.ScreenshotsSucceeded += b.Metrics.ScreenshotsSucceeded
		snap.ScreenshotsFailed += b.Metrics.ScreenshotsFailed
		snap.DetectedElements += b.Metrics.DetectedElements
		snap.CostUSD += b.Metrics.Cost
	}

	if finished := snap.ScreenshotsSucceeded + snap.ScreenshotsFailed; finished > 0 {
		snap.ScreenshotFailRate = float64(snap.ScreenshotsFailed) / float64(finished)
	}
	if snap.ScreenshotsSucceeded > 0 {
		snap.AvgElementsPerSuccess = float64(snap.DetectedElements) / float64(snap.ScreenshotsSucceeded)
	}

	return snap, nil
}
