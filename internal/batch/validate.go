package batch

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/ux-extract/internal/extract"
	"github.com/sells-group/ux-extract/internal/gateway"
	"github.com/sells-group/ux-extract/internal/model"
)

// score grades every unscored element of a batch. The batch stays in
// validating until review completes.
func (c *Controller) score(ctx context.Context, id int64, runID string) error {
	log := zap.L().With(zap.Int64("batch_id", id), zap.String("run_id", runID))

	screenshots, err := c.store.ListScreenshots(ctx, id)
	if err != nil {
		return eris.Wrap(err, "batch: list screenshots")
	}
	elements, err := c.store.ListElements(ctx, model.ElementFilter{BatchID: id, Unscored: true})
	if err != nil {
		return eris.Wrap(err, "batch: list unscored elements")
	}
	if len(elements) == 0 {
		log.Info("batch: nothing to validate")
		return nil
	}

	byID := make(map[int64]model.Screenshot, len(screenshots))
	paths := make([]string, 0, len(screenshots))
	for _, sc := range screenshots {
		byID[sc.ID] = sc
		paths = append(paths, sc.FilePath)
	}
	urls, err := c.urls.GetMany(ctx, paths)
	if err != nil {
		return eris.Wrap(err, "batch: resolve image urls")
	}

	var scored, skipped int
	for _, el := range elements {
		sc, ok := byID[el.ScreenshotID]
		if !ok || !sc.HasDimensions() || urls[sc.FilePath] == "" {
			skipped++
			continue
		}
		img := extract.Image{URL: urls[sc.FilePath], Ref: sc.FilePath}
		dims := extract.Dimensions{Width: sc.Width, Height: sc.Height}
		det := extract.Detection{Label: el.Label, Description: el.Description, Box: el.Box}
		track := gateway.Track{
			RunID:        runID,
			BatchID:      id,
			ScreenshotID: &el.ScreenshotID,
			ComponentID:  &el.ComponentID,
			ElementID:    &el.ID,
		}

		s, err := extract.ScoreDetection(ctx, c.scoring.Gateway, c.scoring.Prompts, img, dims, det, c.scoring.Threshold, track)
		if err != nil {
			if ctx.Err() != nil {
				return eris.Wrap(ctx.Err(), "batch: validation cancelled")
			}
			log.Warn("batch: scoring failed", zap.Int64("element_id", el.ID), zap.Error(err))
			skipped++
			continue
		}
		if err := c.store.UpdateElementAccuracy(ctx, el.ID, s.Accuracy, s.Suggested); err != nil {
			return eris.Wrapf(err, "batch: persist score of element %d", el.ID)
		}
		scored++
	}

	log.Info("batch: validation scored", zap.Int("scored", scored), zap.Int("skipped", skipped))
	return nil
}
