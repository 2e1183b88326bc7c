package model

import (
	"time"

	"github.com/sells-group/ux-extract/internal/geometry"
)

// CTAType classifies how strongly a component drives user action.
type CTAType string

const (
	CTAPrimary       CTAType = "primary"
	CTASecondary     CTAType = "secondary"
	CTAInformational CTAType = "informational"
	CTANone          CTAType = "none"
)

// ParseCTAType maps free-form model output onto a CTAType, defaulting to none.
func ParseCTAType(s string) CTAType {
	switch CTAType(s) {
	case CTAPrimary, CTASecondary, CTAInformational:
		return CTAType(s)
	default:
		return CTANone
	}
}

// ComponentStatus tracks extraction state of a component.
type ComponentStatus string

const (
	ComponentStatusPending   ComponentStatus = "pending"
	ComponentStatusExtracted ComponentStatus = "extracted"
	ComponentStatusError     ComponentStatus = "error"
)

// Provenance records which model produced a record and what it cost.
type Provenance struct {
	Model        string  `json:"model"`
	DurationMs   int64   `json:"duration_ms"`
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	Cost         float64 `json:"cost"`
}

// Component is a high-level section of a screenshot.
type Component struct {
	ID           int64              `json:"id"`
	ScreenshotID int64              `json:"screenshot_id"`
	Name         string             `json:"name"`
	Description  string             `json:"description"`
	CTAType      CTAType            `json:"cta_type"`
	Reusable     bool               `json:"reusable"`
	Region       *geometry.PixelBox `json:"region,omitempty"`
	Provenance   Provenance         `json:"provenance"`
	Status       ComponentStatus    `json:"status"`
}

// ElementStatusDetected is the labeling status set once a box is detected.
const ElementStatusDetected = "Detected"

// Element is a single detected UI element inside a component.
type Element struct {
	ID            int64              `json:"id"`
	ScreenshotID  int64              `json:"screenshot_id"`
	ComponentID   int64              `json:"component_id"`
	Version       int                `json:"version"`
	Box           geometry.PixelBox  `json:"bounding_box"`
	TaxonomyID    *int64             `json:"taxonomy_id,omitempty"`
	Label         string             `json:"label"`
	Description   string             `json:"description"`
	InferenceMs   int64              `json:"inference_time"`
	Status        string             `json:"status"`
	AccuracyScore *int               `json:"accuracy_score,omitempty"`
	SuggestedBox  *geometry.PixelBox `json:"suggested_coordinates,omitempty"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

// ElementView is the persisted element shape consumed by presentation layers.
type ElementView struct {
	Label                string             `json:"label"`
	Description          string             `json:"description"`
	BoundingBox          geometry.PixelBox  `json:"bounding_box"`
	AccuracyScore        *int               `json:"accuracy_score,omitempty"`
	SuggestedCoordinates *geometry.PixelBox `json:"suggested_coordinates,omitempty"`
	InferenceTime        int64              `json:"inference_time"`
	Status               string             `json:"status"`
}

// View returns the presentation shape of e.
func (e Element) View() ElementView {
	return ElementView{
		Label:                e.Label,
		Description:          e.Description,
		BoundingBox:          e.Box,
		AccuracyScore:        e.AccuracyScore,
		SuggestedCoordinates: e.SuggestedBox,
		InferenceTime:        e.InferenceMs,
		Status:               e.Status,
	}
}

// ElementFilter narrows element listings. Zero fields are ignored.
type ElementFilter struct {
	BatchID      int64
	ScreenshotID int64
	ComponentID  int64
	Unscored     bool
}
