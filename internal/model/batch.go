package model

import (
	"time"

	"github.com/rotisserie/eris"
)

// ErrIllegalTransition is returned when a batch status change is not allowed.
var ErrIllegalTransition = eris.New("model: illegal batch status transition")

// BatchStatus represents the lifecycle state of a screenshot batch.
type BatchStatus string

const (
	BatchStatusUploading        BatchStatus = "uploading"
	BatchStatusExtracting       BatchStatus = "extracting"
	BatchStatusAnnotating       BatchStatus = "annotating"
	BatchStatusValidating       BatchStatus = "validating"
	BatchStatusDone             BatchStatus = "done"
	BatchStatusProcessingFailed BatchStatus = "processing_failed"
)

// transitions lists the legal next states for each status. Restarting
// extraction from annotating or processing_failed re-runs the pipeline.
var transitions = map[BatchStatus][]BatchStatus{
	BatchStatusUploading:        {BatchStatusExtracting},
	BatchStatusExtracting:       {BatchStatusExtracting, BatchStatusAnnotating, BatchStatusProcessingFailed},
	BatchStatusAnnotating:       {BatchStatusExtracting, BatchStatusValidating, BatchStatusDone, BatchStatusProcessingFailed},
	BatchStatusValidating:       {BatchStatusDone},
	BatchStatusProcessingFailed: {BatchStatusExtracting},
	BatchStatusDone:             nil,
}

// Valid reports whether s is a known status.
func (s BatchStatus) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// CanTransition reports whether a batch in status s may move to next.
func (s BatchStatus) CanTransition(next BatchStatus) bool {
	for _, t := range transitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// Transition returns next, or ErrIllegalTransition when the move is not allowed.
func (s BatchStatus) Transition(next BatchStatus) (BatchStatus, error) {
	if !s.CanTransition(next) {
		return s, eris.Wrapf(ErrIllegalTransition, "%s -> %s", s, next)
	}
	return next, nil
}

// Terminal reports whether no further automatic transitions happen from s.
func (s BatchStatus) Terminal() bool {
	return s == BatchStatusDone || s == BatchStatusProcessingFailed
}

// BatchMetrics aggregates pipeline performance for a batch.
type BatchMetrics struct {
	MasterPromptRuntimeMs int64   `json:"master_prompt_runtime_ms"`
	TotalInferenceMs      int64   `json:"total_inference_ms"`
	DetectedElements      int     `json:"detected_elements"`
	InputTokens           int64   `json:"input_tokens"`
	OutputTokens          int64   `json:"output_tokens"`
	Cost                  float64 `json:"cost"`
	ScreenshotsSucceeded  int     `json:"screenshots_succeeded"`
	ScreenshotsFailed     int     `json:"screenshots_failed"`
}

// Batch is a group of screenshots annotated together.
type Batch struct {
	ID           int64        `json:"id"`
	Name         string       `json:"name"`
	AnalysisType string       `json:"analysis_type"`
	Status       BatchStatus  `json:"status"`
	Metrics      BatchMetrics `json:"metrics"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}
