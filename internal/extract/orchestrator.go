package extract

import (
	"context"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/ux-extract/internal/model"
)

// Runner runs the pipeline for one screenshot. *Unit implements it.
type Runner interface {
	Run(ctx context.Context, runID string, batchID int64, t Target) (*ScreenshotResult, error)
}

// StatusSink records per-screenshot progress.
type StatusSink interface {
	UpdateScreenshotStatus(ctx context.Context, id int64, status model.ScreenshotStatus, processingMs int64, errMsg string) error
}

// Outcome is the result of one unit: either Result or Err is set.
type Outcome struct {
	Result     *ScreenshotResult
	Err        error
	DurationMs int64
}

// Results maps screenshot ID to its outcome.
type Results map[int64]Outcome

// Succeeded counts successful units.
func (r Results) Succeeded() int {
	n := 0
	for _, o := range r {
		if o.Err == nil {
			n++
		}
	}
	return n
}

// Failed counts failed units.
func (r Results) Failed() int {
	return len(r) - r.Succeeded()
}

// Orchestrator fans units out over a batch's screenshots.
type Orchestrator struct {
	unit          Runner
	status        StatusSink
	maxConcurrent int
}

// NewOrchestrator creates an orchestrator running at most maxConcurrent
// units at once. status may be nil.
func NewOrchestrator(unit Runner, status StatusSink, maxConcurrent int) *Orchestrator {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Orchestrator{unit: unit, status: status, maxConcurrent: maxConcurrent}
}

// Run executes one unit per target and waits for all of them. A failing
// or panicking unit is recorded in its own outcome and never affects the
// others.
func (o *Orchestrator) Run(ctx context.Context, runID string, batchID int64, targets []Target) Results {
	var (
		mu      sync.Mutex
		results = make(Results, len(targets))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.maxConcurrent)

	for _, t := range targets {
		g.Go(func() error {
			outcome := o.runOne(gctx, runID, batchID, t)
			mu.Lock()
			results[t.Screenshot.ID] = outcome
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	zap.L().Info("extract: batch units finished",
		zap.String("run_id", runID),
		zap.Int64("batch_id", batchID),
		zap.Int("succeeded", results.Succeeded()),
		zap.Int("failed", results.Failed()),
	)
	return results
}

func (o *Orchestrator) runOne(ctx context.Context, runID string, batchID int64, t Target) (out Outcome) {
	id := t.Screenshot.ID
	log := zap.L().With(zap.String("run_id", runID), zap.Int64("batch_id", batchID), zap.Int64("screenshot_id", id))
	start := time.Now()

	o.setStatus(ctx, log, id, model.ScreenshotStatusProcessing, 0, "")

	defer func() {
		if r := recover(); r != nil {
			out = Outcome{Err: eris.Errorf("extract: unit panic: %v", r)}
		}
		out.DurationMs = time.Since(start).Milliseconds()
		if out.Err != nil {
			log.Error("extract: screenshot failed", zap.Error(out.Err))
			o.setStatus(ctx, log, id, model.ScreenshotStatusError, out.DurationMs, ErrorText(out.Err))
			return
		}
		o.setStatus(ctx, log, id, model.ScreenshotStatusCompleted, out.DurationMs, "")
	}()

	res, err := o.unit.Run(ctx, runID, batchID, t)
	if err != nil {
		return Outcome{Err: err}
	}
	return Outcome{Result: res}
}

func (o *Orchestrator) setStatus(ctx context.Context, log *zap.Logger, id int64, status model.ScreenshotStatus, ms int64, errMsg string) {
	if o.status == nil {
		return
	}
	if err := o.status.UpdateScreenshotStatus(context.WithoutCancel(ctx), id, status, ms, errMsg); err != nil {
		log.Warn("extract: screenshot status write failed", zap.String("status", string(status)), zap.Error(err))
	}
}

// ErrorText renders err for a screenshot's error column, cut to at most
// 1000 bytes on a rune boundary.
func ErrorText(err error) string {
	const maxLen = 1000
	s := err.Error()
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
