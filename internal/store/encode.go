package store

import (
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/sells-group/ux-extract/internal/geometry"
	"github.com/sells-group/ux-extract/internal/model"
)

const defaultListLimit = 100

func listLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	return limit
}

// encodeBox returns the JSON text of b, or nil for a nil box.
func encodeBox(b *geometry.PixelBox) (*string, error) {
	if b == nil {
		return nil, nil
	}
	raw, err := json.Marshal(b)
	if err != nil {
		return nil, eris.Wrap(err, "store: marshal box")
	}
	s := string(raw)
	return &s, nil
}

func decodeBox(raw *string) (*geometry.PixelBox, error) {
	if raw == nil || *raw == "" {
		return nil, nil
	}
	var b geometry.PixelBox
	if err := json.Unmarshal([]byte(*raw), &b); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal box")
	}
	return &b, nil
}

func encodeMetrics(m model.BatchMetrics) (string, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return "", eris.Wrap(err, "store: marshal metrics")
	}
	return string(raw), nil
}

func decodeMetrics(raw string, m *model.BatchMetrics) error {
	if raw == "" {
		return nil
	}
	return eris.Wrap(json.Unmarshal([]byte(raw), m), "store: unmarshal metrics")
}

func encodeIssues(issues []model.LabelIssue) (string, error) {
	if len(issues) == 0 {
		return "[]", nil
	}
	raw, err := json.Marshal(issues)
	if err != nil {
		return "", eris.Wrap(err, "store: marshal label issues")
	}
	return string(raw), nil
}

func decodeIssues(raw []byte) ([]model.LabelIssue, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var issues []model.LabelIssue
	if err := json.Unmarshal(raw, &issues); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal label issues")
	}
	if len(issues) == 0 {
		return nil, nil
	}
	return issues, nil
}

func intPtr(v *int64) *int {
	if v == nil {
		return nil
	}
	i := int(*v)
	return &i
}

func decodeBoxBytes(raw *[]byte) (*geometry.PixelBox, error) {
	if raw == nil || len(*raw) == 0 {
		return nil, nil
	}
	s := string(*raw)
	return decodeBox(&s)
}
