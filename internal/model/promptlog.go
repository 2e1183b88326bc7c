package model

import "time"

// LogType tags a prompt log row with the stage that produced it.
type LogType string

const (
	LogTypeComponentExtraction LogType = "component_extraction"
	LogTypeElementExtraction   LogType = "element_extraction"
	LogTypeAnchoring           LogType = "anchoring"
	LogTypeVLMLabeling         LogType = "vlm_labeling"
	LogTypeAccuracyValidation  LogType = "accuracy_validation"
)

// PromptLog is an append-only audit row for one model call.
type PromptLog struct {
	ID           int64     `json:"id"`
	RunID        string    `json:"run_id"`
	BatchID      int64     `json:"batch_id"`
	ScreenshotID *int64    `json:"screenshot_id,omitempty"`
	ComponentID  *int64    `json:"component_id,omitempty"`
	ElementID    *int64    `json:"element_id,omitempty"`
	LogType      LogType   `json:"log_type"`
	Provider     string    `json:"provider"`
	Model        string    `json:"model"`
	Prompt       string    `json:"prompt"`
	ImageRef     string    `json:"image_ref"`
	RawResponse  string    `json:"raw_response"`
	InputTokens  int64     `json:"input_tokens"`
	OutputTokens int64     `json:"output_tokens"`
	Cost         float64   `json:"cost"`
	DurationMs   int64     `json:"duration_ms"`
	StartedAt    time.Time `json:"started_at"`
	CompletedAt  time.Time `json:"completed_at"`
	Error        string    `json:"error,omitempty"`
}

// PromptLogTotals summarizes prompt logs for a batch.
type PromptLogTotals struct {
	Calls        int     `json:"calls"`
	Failed       int     `json:"failed"`
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	Cost         float64 `json:"cost"`
	DurationMs   int64   `json:"duration_ms"`
}

// TokenUsage is provider-reported token accounting. Detectors report zero.
type TokenUsage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// Add accumulates other into u.
func (u *TokenUsage) Add(other TokenUsage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
}
