// Package extract runs the five-stage annotation pipeline over screenshots.
package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/ux-extract/internal/gateway"
	"github.com/sells-group/ux-extract/internal/geometry"
	"github.com/sells-group/ux-extract/internal/model"
	"github.com/sells-group/ux-extract/internal/prompts"
)

// ErrNoScore is returned by ScoreDetection when the reply has no score.
var ErrNoScore = eris.New("extract: reply has no accuracy score")

// CoordinateError is recorded for a label whose box could not be scaled.
const CoordinateError = "error during coordinate scaling"

// NotDetected is recorded for a label the detector found no box for.
const NotDetected = "not detected"

// LabelSeparator joins component and element names in a label.
const LabelSeparator = " > "

// Invoker executes one model call. *gateway.Gateway implements it.
type Invoker interface {
	Invoke(ctx context.Context, c gateway.Call) (*gateway.Result, error)
	Has(stage gateway.Stage) bool
}

// Renderer renders stage prompts. *prompts.Catalog implements it.
type Renderer interface {
	Render(name prompts.Name, data map[string]any) (prompts.Rendered, error)
}

// Image is the screenshot sent to providers. URL is fetchable; Ref is the
// storage path recorded in the prompt log.
type Image struct {
	URL string
	Ref string
}

// Dimensions is an image size in pixels.
type Dimensions struct {
	Width  int
	Height int
}

// CallStats accumulates gateway results.
type CallStats struct {
	Calls      int              `json:"calls"`
	Usage      model.TokenUsage `json:"usage"`
	Cost       float64          `json:"cost"`
	DurationMs int64            `json:"duration_ms"`
	Model      string           `json:"model,omitempty"`
}

func (s *CallStats) add(res *gateway.Result) {
	s.Calls++
	s.Usage.Add(res.Usage)
	s.Cost += res.Cost
	s.DurationMs += res.Duration.Milliseconds()
	s.Model = res.Model
}

// Merge accumulates other into s.
func (s *CallStats) Merge(other CallStats) {
	s.Calls += other.Calls
	s.Usage.Add(other.Usage)
	s.Cost += other.Cost
	s.DurationMs += other.DurationMs
	if other.Model != "" {
		s.Model = other.Model
	}
}

// DiscoveredComponent is one section reported by component discovery.
type DiscoveredComponent struct {
	Name        string
	Description string
	CTAType     model.CTAType
	Reusable    bool
	Region      *geometry.FractionalBox
}

// ComponentList is the component discovery output.
type ComponentList struct {
	Items   []DiscoveredComponent
	Kind    gateway.ParseKind
	RawText string
	Stats   CallStats
}

// Names returns the component names in discovery order.
func (l ComponentList) Names() []string {
	names := make([]string, len(l.Items))
	for i, c := range l.Items {
		names[i] = c.Name
	}
	return names
}

// LabelMap maps hierarchical labels to descriptions.
type LabelMap struct {
	Entries map[string]string
	Kind    gateway.ParseKind
	RawText string
	Stats   CallStats
}

// Len returns the number of labels.
func (m LabelMap) Len() int { return len(m.Entries) }

// Labels returns the labels in sorted order.
func (m LabelMap) Labels() []string {
	labels := make([]string, 0, len(m.Entries))
	for l := range m.Entries {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	return labels
}

// Detection is one box found for a label.
type Detection struct {
	Label       string
	Description string
	Fraction    geometry.FractionalBox
	Box         geometry.PixelBox
	InferenceMs int64
}

// Detections is the geometric detection output.
type Detections struct {
	Items       []Detection
	Undetected  []string
	LabelErrors map[string]string
	Stats       CallStats
}

// Issues lists the labels marked during detection, sorted by label.
func (d Detections) Issues() []model.LabelIssue {
	issues := make([]model.LabelIssue, 0, len(d.LabelErrors)+len(d.Undetected))
	for label, reason := range d.LabelErrors {
		issues = append(issues, model.LabelIssue{Label: label, Reason: reason})
	}
	for _, label := range d.Undetected {
		issues = append(issues, model.LabelIssue{Label: label, Reason: NotDetected})
	}
	sort.Slice(issues, func(i, j int) bool { return issues[i].Label < issues[j].Label })
	return issues
}

// Score is the accuracy scoring output for one detection.
type Score struct {
	Accuracy  int
	Suggested *geometry.PixelBox
	Kind      gateway.ParseKind
	RawText   string
	Stats     CallStats
}

// NormalizeLabel canonicalizes a model-produced label: NFC, collapsed
// whitespace and a single-spaced separator between hierarchy levels.
func NormalizeLabel(label string) string {
	label = norm.NFC.String(label)
	parts := strings.Split(label, ">")
	out := parts[:0]
	for _, p := range parts {
		p = strings.Join(strings.Fields(p), " ")
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, LabelSeparator)
}

// ComponentOf returns the component part of a label. A label without a
// separator names its own component.
func ComponentOf(label string) string {
	if i := strings.Index(label, LabelSeparator); i >= 0 {
		return label[:i]
	}
	return label
}

func collapse(s string) string {
	return strings.Join(strings.Fields(norm.NFC.String(s)), " ")
}

func invoke(ctx context.Context, gw Invoker, p Renderer, stage gateway.Stage, name prompts.Name, data map[string]any, img Image, track gateway.Track) (*gateway.Result, error) {
	rendered, err := p.Render(name, data)
	if err != nil {
		return nil, err
	}
	track.ImageRef = img.Ref
	return gw.Invoke(ctx, gateway.Call{
		Stage:    stage,
		System:   rendered.System,
		Prompt:   rendered.User,
		ImageURL: img.URL,
		Track:    track,
	})
}

// DiscoverComponents finds the high-level sections of a screenshot. The
// reply may be a top-level array or an object with a components array;
// entries may be objects or bare names.
func DiscoverComponents(ctx context.Context, gw Invoker, p Renderer, img Image, track gateway.Track) (ComponentList, error) {
	res, err := invoke(ctx, gw, p, gateway.StageComponentDiscovery, prompts.ComponentDiscovery, nil, img, track)
	if err != nil {
		return ComponentList{}, err
	}
	out := ComponentList{Kind: res.Parsed.Kind, RawText: res.RawText}
	out.Stats.add(res)

	items := res.Parsed.Array
	if items == nil {
		if arr, ok := res.Parsed.Object["components"].([]any); ok {
			items = arr
		}
	}

	seen := make(map[string]int)
	for _, item := range items {
		var c DiscoveredComponent
		switch v := item.(type) {
		case string:
			c.Name = v
		case map[string]any:
			c.Name, _ = v["name"].(string)
			c.Description, _ = v["description"].(string)
			cta, _ := v["cta_type"].(string)
			c.CTAType = model.ParseCTAType(strings.ToLower(strings.TrimSpace(cta)))
			c.Reusable, _ = v["reusable"].(bool)
			if region, ok := v["region"].(map[string]any); ok {
				if fb, err := geometry.FromRaw(region); err == nil && fb.Fractional() {
					c.Region = &fb
				}
			}
		default:
			continue
		}
		// The separator is reserved for labels.
		c.Name = collapse(strings.ReplaceAll(c.Name, ">", " "))
		if c.Name == "" {
			continue
		}
		if c.CTAType == "" {
			c.CTAType = model.CTANone
		}
		c.Description = collapse(c.Description)

		// Repeated instances must stay distinct.
		seen[c.Name]++
		if n := seen[c.Name]; n > 1 {
			c.Name = fmt.Sprintf("%s %d", c.Name, n)
		}
		out.Items = append(out.Items, c)
	}
	return out, nil
}

// DiscoverElements lists the elements of each component as hierarchical
// labels. An empty component list yields an empty map without a call.
func DiscoverElements(ctx context.Context, gw Invoker, p Renderer, img Image, components ComponentList, track gateway.Track) (LabelMap, error) {
	if len(components.Items) == 0 {
		return LabelMap{Entries: map[string]string{}}, nil
	}

	var b strings.Builder
	for _, c := range components.Items {
		b.WriteString("- ")
		b.WriteString(c.Name)
		if c.Description != "" {
			b.WriteString(": ")
			b.WriteString(c.Description)
		}
		b.WriteByte('\n')
	}

	res, err := invoke(ctx, gw, p, gateway.StageElementDiscovery, prompts.ElementDiscovery,
		map[string]any{"components": strings.TrimRight(b.String(), "\n")}, img, track)
	if err != nil {
		return LabelMap{}, err
	}
	out := LabelMap{Entries: labelEntries(res.Parsed), Kind: res.Parsed.Kind, RawText: res.RawText}
	out.Stats.add(res)
	return out, nil
}

// labelEntries reads label descriptions from a label→description object,
// an {"elements": {...}} wrapper, or an array of {label, description}.
func labelEntries(parsed gateway.Parsed) map[string]string {
	entries := make(map[string]string)
	put := func(label, desc string) {
		label = NormalizeLabel(label)
		if label == "" {
			return
		}
		if _, dup := entries[label]; !dup {
			entries[label] = collapse(desc)
		}
	}

	obj := parsed.Object
	if inner, ok := obj["elements"].(map[string]any); ok && len(obj) == 1 {
		obj = inner
	}
	for label, v := range obj {
		switch d := v.(type) {
		case string:
			put(label, d)
		case map[string]any:
			desc, _ := d["description"].(string)
			put(label, desc)
		}
	}
	for _, item := range parsed.Array {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		label, _ := m["label"].(string)
		desc, _ := m["description"].(string)
		put(label, desc)
	}
	return entries
}

// AnchorElements rewrites descriptions so each one locates its element
// relative to nearby landmarks. Labels the model drops keep their input
// description; labels it invents are ignored.
func AnchorElements(ctx context.Context, gw Invoker, p Renderer, img Image, labels LabelMap, track gateway.Track) (LabelMap, error) {
	if labels.Len() == 0 {
		return LabelMap{Entries: map[string]string{}}, nil
	}

	// Labels contain '>', which the default encoder escapes.
	var listing bytes.Buffer
	enc := json.NewEncoder(&listing)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(labels.Entries); err != nil {
		return LabelMap{}, eris.Wrap(err, "extract: marshal labels")
	}
	res, err := invoke(ctx, gw, p, gateway.StageAnchoring, prompts.Anchoring,
		map[string]any{"labels": strings.TrimSpace(listing.String())}, img, track)
	if err != nil {
		return LabelMap{}, err
	}

	anchored := labelEntries(res.Parsed)
	out := LabelMap{Entries: make(map[string]string, labels.Len()), Kind: res.Parsed.Kind, RawText: res.RawText}
	out.Stats.add(res)
	for label, desc := range labels.Entries {
		if a := anchored[label]; a != "" {
			desc = a
		}
		out.Entries[label] = desc
	}
	return out, nil
}

// DetectElements makes one detector call per label. Every returned box is
// kept as its own detection. A detector error fails the stage.
func DetectElements(ctx context.Context, gw Invoker, p Renderer, img Image, dims Dimensions, anchored LabelMap, track gateway.Track) (Detections, error) {
	out := Detections{LabelErrors: map[string]string{}}
	log := zap.L().With(zap.Int64("batch_id", track.BatchID), zap.String("image", img.Ref))

	for _, label := range anchored.Labels() {
		desc := anchored.Entries[label]
		object := desc
		if object == "" {
			object = label
		}
		res, err := invoke(ctx, gw, p, gateway.StageDetection, prompts.Detection,
			map[string]any{"label": label, "description": object}, img, track)
		if err != nil {
			return out, eris.Wrapf(err, "extract: detect %q", label)
		}
		out.Stats.add(res)

		boxes := res.Parsed.Array
		if boxes == nil {
			boxes, _ = res.Parsed.Object["objects"].([]any)
		}

		found := 0
		for _, raw := range boxes {
			obj, _ := raw.(map[string]any)
			fb, err := geometry.FromRaw(obj)
			var box geometry.PixelBox
			if err == nil {
				box = geometry.Normalize(fb, dims.Width, dims.Height)
				err = box.Validate(dims.Width, dims.Height)
			}
			if err != nil {
				log.Warn("extract: skipping detection", zap.String("label", label), zap.Error(err))
				out.LabelErrors[label] = CoordinateError
				continue
			}
			out.Items = append(out.Items, Detection{
				Label:       label,
				Description: desc,
				Fraction:    fb,
				Box:         box,
				InferenceMs: res.Duration.Milliseconds(),
			})
			found++
		}
		if found == 0 && out.LabelErrors[label] == "" {
			out.Undetected = append(out.Undetected, label)
		}
	}
	return out, nil
}

// ScoreDetection grades one detected box from 0 to 100. Below threshold a
// corrected box is returned when the reply has a valid one.
func ScoreDetection(ctx context.Context, gw Invoker, p Renderer, img Image, dims Dimensions, det Detection, threshold int, track gateway.Track) (Score, error) {
	res, err := invoke(ctx, gw, p, gateway.StageAccuracy, prompts.Accuracy, map[string]any{
		"width":       dims.Width,
		"height":      dims.Height,
		"label":       det.Label,
		"description": det.Description,
		"x_min":       det.Box.XMin,
		"y_min":       det.Box.YMin,
		"x_max":       det.Box.XMax,
		"y_max":       det.Box.YMax,
		"threshold":   threshold,
	}, img, track)
	if err != nil {
		return Score{}, err
	}
	out := Score{Kind: res.Parsed.Kind, RawText: res.RawText}
	out.Stats.add(res)

	raw, ok := res.Parsed.Object["accuracy_score"]
	if !ok {
		raw, ok = res.Parsed.Object["score"]
	}
	if !ok {
		return out, ErrNoScore
	}
	v, err := geometry.Number(raw)
	if err != nil || math.IsNaN(v) {
		return out, eris.Wrapf(ErrNoScore, "%v", raw)
	}
	out.Accuracy = clampScore(v)

	if out.Accuracy < threshold {
		if sc, ok := res.Parsed.Object["suggested_coordinates"].(map[string]any); ok {
			if fb, err := geometry.FromRaw(sc); err == nil {
				box := geometry.Normalize(fb, dims.Width, dims.Height)
				if box.Validate(dims.Width, dims.Height) == nil {
					out.Suggested = &box
				}
			}
		}
	}
	return out, nil
}

func clampScore(v float64) int {
	s := int(math.Round(v))
	if s < 0 {
		return 0
	}
	if s > 100 {
		return 100
	}
	return s
}
