package batch

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/ux-extract/internal/extract"
	"github.com/sells-group/ux-extract/internal/geometry"
	"github.com/sells-group/ux-extract/internal/model"
)

// persist replaces a screenshot's components and elements with res.
func (c *Controller) persist(ctx context.Context, sc model.Screenshot, res *extract.ScreenshotResult) error {
	if res.Probed {
		if err := c.store.UpdateScreenshotDimensions(ctx, sc.ID, res.Dims.Width, res.Dims.Height); err != nil {
			return eris.Wrapf(err, "batch: persist dimensions of screenshot %d", sc.ID)
		}
	}
	if err := c.store.DeleteScreenshotResults(ctx, sc.ID); err != nil {
		return eris.Wrapf(err, "batch: clear screenshot %d", sc.ID)
	}

	stats := res.Components.Stats
	provenance := model.Provenance{
		Model:        stats.Model,
		DurationMs:   stats.DurationMs,
		InputTokens:  stats.Usage.InputTokens,
		OutputTokens: stats.Usage.OutputTokens,
		Cost:         stats.Cost,
	}

	componentIDs := make(map[string]int64, len(res.Components.Items))
	create := func(comp *model.Component) error {
		if err := c.store.CreateComponent(ctx, comp); err != nil {
			return eris.Wrapf(err, "batch: persist component %q", comp.Name)
		}
		componentIDs[comp.Name] = comp.ID
		return nil
	}

	for _, dc := range res.Components.Items {
		comp := &model.Component{
			ScreenshotID: sc.ID,
			Name:         dc.Name,
			Description:  dc.Description,
			CTAType:      dc.CTAType,
			Reusable:     dc.Reusable,
			Region:       region(dc.Region, res.Dims),
			Provenance:   provenance,
			Status:       model.ComponentStatusExtracted,
		}
		if err := create(comp); err != nil {
			return err
		}
	}

	elements := make([]model.Element, 0, len(res.Detections.Items))
	for i, det := range res.Detections.Items {
		name := extract.ComponentOf(det.Label)
		compID, ok := componentIDs[name]
		if !ok {
			// Element discovery named a component that stage 1 did not report.
			comp := &model.Component{
				ScreenshotID: sc.ID,
				Name:         name,
				CTAType:      model.CTANone,
				Status:       model.ComponentStatusExtracted,
			}
			if err := create(comp); err != nil {
				return err
			}
			compID = comp.ID
		}

		el := model.Element{
			ScreenshotID: sc.ID,
			ComponentID:  compID,
			Box:          det.Box,
			Label:        det.Label,
			Description:  det.Description,
			InferenceMs:  det.InferenceMs,
			Status:       model.ElementStatusDetected,
		}
		if score, ok := res.Scores[i]; ok {
			accuracy := score.Accuracy
			el.AccuracyScore = &accuracy
			el.SuggestedBox = score.Suggested
		}
		elements = append(elements, el)
	}

	if _, err := c.store.CreateElements(ctx, elements); err != nil {
		return eris.Wrapf(err, "batch: persist elements of screenshot %d", sc.ID)
	}
	if err := c.store.UpdateScreenshotLabelIssues(ctx, sc.ID, res.Detections.Issues()); err != nil {
		return eris.Wrapf(err, "batch: persist label issues of screenshot %d", sc.ID)
	}
	return nil
}

// abandon marks a screenshot whose results could not be stored as failed,
// so it does not read as completed without elements.
func (c *Controller) abandon(ctx context.Context, sc model.Screenshot, ms int64, err error) {
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if serr := c.store.UpdateScreenshotStatus(wctx, sc.ID, model.ScreenshotStatusError, ms, extract.ErrorText(err)); serr != nil {
		zap.L().Error("batch: persist screenshot error status",
			zap.Int64("screenshot_id", sc.ID), zap.Error(serr))
	}
}

// region scales a component region, dropping it when it does not fit.
func region(fb *geometry.FractionalBox, dims extract.Dimensions) *geometry.PixelBox {
	if fb == nil {
		return nil
	}
	box := geometry.Normalize(*fb, dims.Width, dims.Height)
	if box.Validate(dims.Width, dims.Height) != nil {
		return nil
	}
	return &box
}
