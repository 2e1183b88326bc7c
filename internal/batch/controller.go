// Package batch drives a batch through its lifecycle: extraction,
// annotation, validation and review.
package batch

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/ux-extract/internal/extract"
	"github.com/sells-group/ux-extract/internal/gateway"
	"github.com/sells-group/ux-extract/internal/model"
	"github.com/sells-group/ux-extract/internal/store"
)

// ErrBatchActive is returned when a batch is already being driven by this
// controller.
var ErrBatchActive = eris.New("batch: run already active")

// ErrScoringUnavailable is returned by validation when no accuracy
// provider is bound.
var ErrScoringUnavailable = eris.New("batch: accuracy stage not configured")

// URLResolver turns storage paths into fetchable URLs in one call.
// *signedurl.Cache implements it.
type URLResolver interface {
	GetMany(ctx context.Context, paths []string) (map[string]string, error)
}

// Pipeline runs the extraction units of a batch. *extract.Orchestrator
// implements it.
type Pipeline interface {
	Run(ctx context.Context, runID string, batchID int64, targets []extract.Target) extract.Results
}

// Scoring is what validation needs to grade persisted elements.
type Scoring struct {
	Gateway   extract.Invoker
	Prompts   extract.Renderer
	Threshold int
}

// Controller owns batch status transitions. Only one run per batch is
// active at a time within a controller.
type Controller struct {
	store    store.Store
	urls     URLResolver
	pipeline Pipeline
	scoring  Scoring

	base context.Context
	wg   sync.WaitGroup

	mu     sync.Mutex
	active map[int64]struct{}

	newRunID func() string
}

// New creates a controller. Background runs derive from base, so
// cancelling base cancels every run.
func New(base context.Context, st store.Store, urls URLResolver, pipeline Pipeline, scoring Scoring) *Controller {
	return &Controller{
		store:    st,
		urls:     urls,
		pipeline: pipeline,
		scoring:  scoring,
		base:     base,
		active:   make(map[int64]struct{}),
		newRunID: uuid.NewString,
	}
}

func (c *Controller) claim(id int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.active[id]; ok {
		return eris.Wrapf(ErrBatchActive, "batch %d", id)
	}
	c.active[id] = struct{}{}
	return nil
}

func (c *Controller) release(id int64) {
	c.mu.Lock()
	delete(c.active, id)
	c.mu.Unlock()
}

// Active reports whether a run for id is in progress.
func (c *Controller) Active(id int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.active[id]
	return ok
}

// Wait blocks until every background run has finished.
func (c *Controller) Wait() {
	c.wg.Wait()
}

// transition moves a batch to next after checking the current status.
func (c *Controller) transition(ctx context.Context, id int64, next model.BatchStatus) (*model.Batch, error) {
	b, err := c.store.GetBatch(ctx, id)
	if err != nil {
		return nil, eris.Wrapf(err, "batch: load %d", id)
	}
	if _, err := b.Status.Transition(next); err != nil {
		return nil, err
	}
	if err := c.store.UpdateBatchStatus(ctx, id, next); err != nil {
		return nil, eris.Wrapf(err, "batch: persist %s", next)
	}
	zap.L().Info("batch: status changed",
		zap.Int64("batch_id", id),
		zap.String("from", string(b.Status)),
		zap.String("to", string(next)),
	)
	b.Status = next
	return b, nil
}

// StartBatchExtraction persists extracting and runs the pipeline in the
// background. Progress is observable through the batch status.
func (c *Controller) StartBatchExtraction(ctx context.Context, id int64) error {
	if err := c.claim(id); err != nil {
		return err
	}
	if _, err := c.transition(ctx, id, model.BatchStatusExtracting); err != nil {
		c.release(id)
		return err
	}

	runID := c.newRunID()
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.release(id)
		if err := c.runExtraction(c.base, id, runID); err != nil {
			zap.L().Error("batch: extraction failed", zap.Int64("batch_id", id), zap.String("run_id", runID), zap.Error(err))
		}
	}()
	return nil
}

// RunBatchExtraction is the synchronous form of StartBatchExtraction.
func (c *Controller) RunBatchExtraction(ctx context.Context, id int64) error {
	if err := c.claim(id); err != nil {
		return err
	}
	defer c.release(id)

	if _, err := c.transition(ctx, id, model.BatchStatusExtracting); err != nil {
		return err
	}
	return c.runExtraction(ctx, id, c.newRunID())
}

// runExtraction runs a batch already in extracting through to annotating. Any
// infrastructure error marks the batch processing_failed.
func (c *Controller) runExtraction(ctx context.Context, id int64, runID string) error {
	log := zap.L().With(zap.Int64("batch_id", id), zap.String("run_id", runID))
	start := time.Now()

	screenshots, err := c.store.ListScreenshots(ctx, id)
	if err != nil {
		return c.fail(ctx, id, eris.Wrap(err, "batch: list screenshots"))
	}

	paths := make([]string, 0, len(screenshots))
	for _, sc := range screenshots {
		paths = append(paths, sc.FilePath)
	}
	urls, err := c.urls.GetMany(ctx, paths)
	if err != nil {
		return c.fail(ctx, id, eris.Wrap(err, "batch: resolve image urls"))
	}

	targets := make([]extract.Target, len(screenshots))
	for i, sc := range screenshots {
		targets[i] = extract.Target{Screenshot: sc, ImageURL: urls[sc.FilePath]}
	}

	log.Info("batch: extracting", zap.Int("screenshots", len(targets)))
	results := c.pipeline.Run(ctx, runID, id, targets)

	var metrics model.BatchMetrics
	for _, sc := range screenshots {
		outcome, ok := results[sc.ID]
		if !ok || outcome.Err != nil {
			metrics.ScreenshotsFailed++
			continue
		}
		res := outcome.Result
		if err := c.persist(ctx, sc, res); err != nil {
			c.abandon(ctx, sc, outcome.DurationMs, err)
			return c.fail(ctx, id, err)
		}
		metrics.ScreenshotsSucceeded++
		metrics.MasterPromptRuntimeMs += res.MasterPromptMs
		metrics.TotalInferenceMs += res.InferenceMs
		metrics.DetectedElements += len(res.Detections.Items)
		metrics.InputTokens += res.Stats.Usage.InputTokens
		metrics.OutputTokens += res.Stats.Usage.OutputTokens
		metrics.Cost += res.Stats.Cost
	}

	if err := c.store.UpdateBatchMetrics(ctx, id, metrics); err != nil {
		return c.fail(ctx, id, eris.Wrap(err, "batch: persist metrics"))
	}
	if _, err := c.transition(ctx, id, model.BatchStatusAnnotating); err != nil {
		return c.fail(ctx, id, err)
	}

	log.Info("batch: extraction complete",
		zap.Int("succeeded", metrics.ScreenshotsSucceeded),
		zap.Int("failed", metrics.ScreenshotsFailed),
		zap.Int("elements", metrics.DetectedElements),
		zap.Float64("cost", metrics.Cost),
		zap.Duration("elapsed", time.Since(start)),
	)
	return nil
}

// fail marks the batch processing_failed and returns err. The status
// write outlives a cancelled run context.
func (c *Controller) fail(ctx context.Context, id int64, err error) error {
	zap.L().Error("batch: marking processing_failed", zap.Int64("batch_id", id), zap.Error(err))
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if serr := c.store.UpdateBatchStatus(wctx, id, model.BatchStatusProcessingFailed); serr != nil {
		zap.L().Error("batch: persist processing_failed", zap.Int64("batch_id", id), zap.Error(serr))
	}
	return err
}

// CompleteReview marks human review done.
func (c *Controller) CompleteReview(ctx context.Context, id int64) error {
	if err := c.claim(id); err != nil {
		return err
	}
	defer c.release(id)
	_, err := c.transition(ctx, id, model.BatchStatusDone)
	return err
}

// StartValidation persists validating and scores unscored elements in
// the background.
func (c *Controller) StartValidation(ctx context.Context, id int64) error {
	if err := c.beginValidation(ctx, id); err != nil {
		return err
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.release(id)
		if err := c.score(c.base, id, c.newRunID()); err != nil {
			zap.L().Error("batch: validation failed", zap.Int64("batch_id", id), zap.Error(err))
		}
	}()
	return nil
}

// ValidateBatch moves an annotating batch to validating and scores every
// unscored element. Scoring is best-effort per element.
func (c *Controller) ValidateBatch(ctx context.Context, id int64) error {
	if err := c.beginValidation(ctx, id); err != nil {
		return err
	}
	defer c.release(id)
	return c.score(ctx, id, c.newRunID())
}

func (c *Controller) beginValidation(ctx context.Context, id int64) error {
	if c.scoring.Gateway == nil || !c.scoring.Gateway.Has(gateway.StageAccuracy) {
		return ErrScoringUnavailable
	}
	if err := c.claim(id); err != nil {
		return err
	}
	if _, err := c.transition(ctx, id, model.BatchStatusValidating); err != nil {
		c.release(id)
		return err
	}
	return nil
}
