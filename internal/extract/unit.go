package extract

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/ux-extract/internal/gateway"
	"github.com/sells-group/ux-extract/internal/imagemeta"
	"github.com/sells-group/ux-extract/internal/model"
)

// Target is one screenshot with a fetchable image URL attached.
type Target struct {
	Screenshot model.Screenshot
	ImageURL   string
}

// DimensionProber reads an image's pixel size. *imagemeta.Prober
// implements it.
type DimensionProber interface {
	Dimensions(ctx context.Context, url string) (imagemeta.Config, error)
}

// UnitConfig controls the optional accuracy stage.
type UnitConfig struct {
	AccuracyScoring   bool
	AccuracyThreshold int
}

// ScreenshotResult is everything a unit produced for one screenshot.
// Scores is keyed by index into Detections.Items.
type ScreenshotResult struct {
	ScreenshotID int64
	Dims         Dimensions
	Probed       bool
	Components   ComponentList
	Labels       LabelMap
	Anchored     LabelMap
	Detections   Detections
	Scores       map[int]Score

	// MasterPromptMs is the model time of stages 1 to 3; InferenceMs is
	// the detector time of stage 4.
	MasterPromptMs int64
	InferenceMs    int64
	Stats          CallStats
}

// Unit runs every stage for one screenshot in order.
type Unit struct {
	gw      Invoker
	prompts Renderer
	probe   DimensionProber
	cfg     UnitConfig
}

// NewUnit creates a unit. probe is only used for screenshots whose
// dimensions are not yet known.
func NewUnit(gw Invoker, p Renderer, probe DimensionProber, cfg UnitConfig) *Unit {
	return &Unit{gw: gw, prompts: p, probe: probe, cfg: cfg}
}

// Run executes stages 1 to 4, then stage 5 when scoring is enabled and
// bound. Any error aborts the unit; scoring errors only leave a detection
// unscored.
func (u *Unit) Run(ctx context.Context, runID string, batchID int64, t Target) (*ScreenshotResult, error) {
	sc := t.Screenshot
	if t.ImageURL == "" {
		return nil, eris.Errorf("extract: screenshot %d has no image url", sc.ID)
	}
	img := Image{URL: t.ImageURL, Ref: sc.FilePath}
	track := gateway.Track{RunID: runID, BatchID: batchID, ScreenshotID: &sc.ID}
	log := zap.L().With(
		zap.String("run_id", runID),
		zap.Int64("batch_id", batchID),
		zap.Int64("screenshot_id", sc.ID),
	)

	res := &ScreenshotResult{ScreenshotID: sc.ID, Scores: map[int]Score{}}

	if sc.HasDimensions() {
		res.Dims = Dimensions{Width: sc.Width, Height: sc.Height}
	} else {
		if u.probe == nil {
			return nil, eris.Errorf("extract: screenshot %d has no dimensions", sc.ID)
		}
		cfg, err := u.probe.Dimensions(ctx, t.ImageURL)
		if err != nil {
			return nil, eris.Wrap(err, "extract: probe dimensions")
		}
		res.Dims = Dimensions{Width: cfg.Width, Height: cfg.Height}
		res.Probed = true
	}

	var err error
	if res.Components, err = DiscoverComponents(ctx, u.gw, u.prompts, img, track); err != nil {
		return nil, eris.Wrap(err, "extract: component discovery")
	}
	if res.Labels, err = DiscoverElements(ctx, u.gw, u.prompts, img, res.Components, track); err != nil {
		return nil, eris.Wrap(err, "extract: element discovery")
	}
	if res.Anchored, err = AnchorElements(ctx, u.gw, u.prompts, img, res.Labels, track); err != nil {
		return nil, eris.Wrap(err, "extract: anchoring")
	}
	if res.Detections, err = DetectElements(ctx, u.gw, u.prompts, img, res.Dims, res.Anchored, track); err != nil {
		return nil, eris.Wrap(err, "extract: detection")
	}

	for _, s := range []CallStats{res.Components.Stats, res.Labels.Stats, res.Anchored.Stats} {
		res.MasterPromptMs += s.DurationMs
		res.Stats.Merge(s)
	}
	res.InferenceMs = res.Detections.Stats.DurationMs
	res.Stats.Merge(res.Detections.Stats)

	if u.cfg.AccuracyScoring && u.gw.Has(gateway.StageAccuracy) {
		for i, det := range res.Detections.Items {
			score, err := ScoreDetection(ctx, u.gw, u.prompts, img, res.Dims, det, u.cfg.AccuracyThreshold, track)
			res.Stats.Merge(score.Stats)
			if err != nil {
				if ctx.Err() != nil {
					return nil, eris.Wrap(ctx.Err(), "extract: accuracy scoring")
				}
				log.Warn("extract: scoring failed, leaving unscored", zap.String("label", det.Label), zap.Error(err))
				continue
			}
			res.Scores[i] = score
		}
	}

	log.Info("extract: screenshot complete",
		zap.Int("components", len(res.Components.Items)),
		zap.Int("labels", res.Anchored.Len()),
		zap.Int("detections", len(res.Detections.Items)),
		zap.Int("undetected", len(res.Detections.Undetected)),
		zap.Int("label_errors", len(res.Detections.LabelErrors)),
		zap.Int("scored", len(res.Scores)),
		zap.Float64("cost", res.Stats.Cost),
	)
	return res, nil
}
