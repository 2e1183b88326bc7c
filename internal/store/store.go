package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/ux-extract/internal/geometry"
	"github.com/sells-group/ux-extract/internal/model"
)

// ErrNotFound is returned when a keyed record does not exist.
var ErrNotFound = eris.New("store: not found")

// BatchFilter specifies criteria for listing batches.
type BatchFilter struct {
	Status model.BatchStatus `json:"status,omitempty"`
	Limit  int               `json:"limit,omitempty"`
	Offset int               `json:"offset,omitempty"`
}

// Store defines the persistence interface for the extraction pipeline.
// Every method is a single-entity read or write; callers get no
// cross-row transaction guarantees.
type Store interface {
	// Batches
	CreateBatch(ctx context.Context, name, analysisType string) (*model.Batch, error)
	GetBatch(ctx context.Context, id int64) (*model.Batch, error)
	ListBatches(ctx context.Context, filter BatchFilter) ([]model.Batch, error)
	UpdateBatchStatus(ctx context.Context, id int64, status model.BatchStatus) error
	UpdateBatchMetrics(ctx context.Context, id int64, metrics model.BatchMetrics) error

	// Screenshots
	CreateScreenshot(ctx context.Context, batchID int64, filePath string) (*model.Screenshot, error)
	ListScreenshots(ctx context.Context, batchID int64) ([]model.Screenshot, error)
	UpdateScreenshotStatus(ctx context.Context, id int64, status model.ScreenshotStatus, processingMs int64, errMsg string) error
	UpdateScreenshotDimensions(ctx context.Context, id int64, width, height int) error
	// UpdateScreenshotLabelIssues replaces the labels recorded as dropped
	// for a screenshot. An empty slice clears them.
	UpdateScreenshotLabelIssues(ctx context.Context, id int64, issues []model.LabelIssue) error

	// Components and elements
	DeleteScreenshotResults(ctx context.Context, screenshotID int64) error
	CreateComponent(ctx context.Context, c *model.Component) error
	ListComponents(ctx context.Context, screenshotID int64) ([]model.Component, error)
	CreateElements(ctx context.Context, elements []model.Element) (int64, error)
	ListElements(ctx context.Context, filter model.ElementFilter) ([]model.Element, error)
	UpdateElementAccuracy(ctx context.Context, id int64, score int, suggested *geometry.PixelBox) error

	// Prompt logs
	AppendPromptLog(ctx context.Context, log *model.PromptLog) error
	ListPromptLogs(ctx context.Context, batchID int64, limit int) ([]model.PromptLog, error)
	PromptLogTotals(ctx context.Context, batchID int64) (*model.PromptLogTotals, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
