package model

import "time"

// ScreenshotStatus tracks per-screenshot pipeline progress.
type ScreenshotStatus string

const (
	ScreenshotStatusPending    ScreenshotStatus = "pending"
	ScreenshotStatusProcessing ScreenshotStatus = "processing"
	ScreenshotStatusCompleted  ScreenshotStatus = "completed"
	ScreenshotStatusError      ScreenshotStatus = "error"
)

// Screenshot is one uploaded UI image in a batch.
type Screenshot struct {
	ID           int64            `json:"id"`
	BatchID      int64            `json:"batch_id"`
	FilePath     string           `json:"file_path"`
	Status       ScreenshotStatus `json:"status"`
	ProcessingMs int64            `json:"processing_ms"`
	Width        int              `json:"width,omitempty"`
	Height       int              `json:"height,omitempty"`
	Error        string           `json:"error,omitempty"`
	LabelIssues  []LabelIssue     `json:"label_issues,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
}

// HasDimensions reports whether the image size has been probed.
func (s Screenshot) HasDimensions() bool {
	return s.Width > 0 && s.Height > 0
}

// LabelIssue is a discovered label that produced no element, with the
// reason it was dropped.
type LabelIssue struct {
	Label  string `json:"label"`
	Reason string `json:"reason"`
}
