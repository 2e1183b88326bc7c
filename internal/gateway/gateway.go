// Package gateway executes model calls for the extraction stages. Every
// invocation is rate limited, timed, priced and written to the prompt log.
package gateway

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/ux-extract/internal/cost"
	"github.com/sells-group/ux-extract/internal/model"
	"github.com/sells-group/ux-extract/internal/resilience"
)

// ErrNoBinding is returned when a stage has no capability bound.
var ErrNoBinding = eris.New("gateway: stage not bound")

// Stage tags an invocation with the pipeline step that issued it.
type Stage string

// Pipeline stages in execution order.
const (
	StageComponentDiscovery Stage = "component_discovery"
	StageElementDiscovery   Stage = "element_discovery"
	StageAnchoring          Stage = "anchoring"
	StageDetection          Stage = "detection"
	StageAccuracy           Stage = "accuracy"
)

// Stages lists every stage in execution order.
var Stages = []Stage{StageComponentDiscovery, StageElementDiscovery, StageAnchoring, StageDetection, StageAccuracy}

// LogType returns the prompt log type recorded for s.
func (s Stage) LogType() model.LogType {
	switch s {
	case StageComponentDiscovery:
		return model.LogTypeComponentExtraction
	case StageElementDiscovery:
		return model.LogTypeElementExtraction
	case StageAnchoring:
		return model.LogTypeAnchoring
	case StageDetection:
		return model.LogTypeVLMLabeling
	case StageAccuracy:
		return model.LogTypeAccuracyValidation
	default:
		return model.LogType(s)
	}
}

// Request is what a capability receives. Prompt is the user text for
// generators and the object description for detectors.
type Request struct {
	System   string
	Prompt   string
	ImageURL string
}

// Response is what a capability returns. Detectors leave Usage zero.
type Response struct {
	Text  string
	Usage model.TokenUsage
	Model string
}

// Capability is one external model provider behind a uniform call.
type Capability interface {
	Call(ctx context.Context, req Request) (*Response, error)
	Provider() string
	Model() string
}

// Preparer is implemented by capabilities that rewrite a request before
// sending it, such as inlining the image. Prepare runs before the rate
// limiter and outside the measured call.
type Preparer interface {
	Prepare(ctx context.Context, req Request) (Request, error)
}

// Binding attaches a capability to a stage with optional throttling.
type Binding struct {
	Capability Capability
	Limiter    *rate.Limiter
	Breaker    *resilience.CircuitBreaker
}

// AuditSink receives one prompt log row per invocation.
type AuditSink interface {
	AppendPromptLog(ctx context.Context, log *model.PromptLog) error
}

// Track identifies the records an invocation belongs to. Nil references
// narrow by stage.
type Track struct {
	RunID        string
	BatchID      int64
	ScreenshotID *int64
	ComponentID  *int64
	ElementID    *int64
	ImageRef     string
}

// Call is one invocation request.
type Call struct {
	Stage    Stage
	System   string
	Prompt   string
	ImageURL string
	Track    Track
}

// Result is a successful invocation.
type Result struct {
	RawText  string
	Parsed   Parsed
	Usage    model.TokenUsage
	Cost     float64
	Duration time.Duration
	Model    string
	Provider string
}

// Gateway dispatches stage calls to their bound capabilities.
type Gateway struct {
	bindings map[Stage]Binding
	audit    AuditSink
	calc     *cost.Calculator
	tracer   trace.Tracer
}

// New creates a gateway. audit and calc may be nil.
func New(bindings map[Stage]Binding, audit AuditSink, calc *cost.Calculator) *Gateway {
	if calc == nil {
		calc = cost.NewCalculator(cost.Rates{})
	}
	return &Gateway{
		bindings: bindings,
		audit:    audit,
		calc:     calc,
		tracer:   otel.Tracer("github.com/sells-group/ux-extract/internal/gateway"),
	}
}

// Has reports whether stage has a capability bound.
func (g *Gateway) Has(stage Stage) bool {
	b, ok := g.bindings[stage]
	return ok && b.Capability != nil
}

// Invoke runs one call. It returns an error only for transport or API
// failures; unparseable output yields an empty Parsed.
func (g *Gateway) Invoke(ctx context.Context, c Call) (*Result, error) {
	b, ok := g.bindings[c.Stage]
	if !ok || b.Capability == nil {
		return nil, eris.Wrapf(ErrNoBinding, "%s", c.Stage)
	}
	capability := b.Capability

	req := Request{System: c.System, Prompt: c.Prompt, ImageURL: c.ImageURL}
	if p, ok := capability.(Preparer); ok {
		prepared, err := p.Prepare(ctx, req)
		if err != nil {
			return nil, eris.Wrapf(err, "gateway: %s: prepare request", c.Stage)
		}
		req = prepared
	}

	if b.Limiter != nil {
		if err := b.Limiter.Wait(ctx); err != nil {
			return nil, eris.Wrapf(err, "gateway: %s: rate limit wait", c.Stage)
		}
	}

	ctx, span := g.tracer.Start(ctx, "gateway.invoke", trace.WithAttributes(
		attribute.String("stage", string(c.Stage)),
		attribute.String("provider", capability.Provider()),
		attribute.String("model", capability.Model()),
		attribute.Int64("batch_id", c.Track.BatchID),
	))
	defer span.End()

	call := func(ctx context.Context) (*Response, error) {
		return capability.Call(ctx, req)
	}

	started := time.Now()
	var (
		resp *Response
		err  error
	)
	if b.Breaker != nil {
		resp, err = resilience.ExecuteVal(ctx, b.Breaker, call)
	} else {
		resp, err = call(ctx)
	}
	completed := time.Now()
	duration := completed.Sub(started)

	res := &Result{Duration: duration, Provider: capability.Provider(), Model: capability.Model()}
	if resp != nil {
		res.RawText = resp.Text
		res.Usage = resp.Usage
		if resp.Model != "" {
			res.Model = resp.Model
		}
	}
	if err == nil {
		res.Cost = g.calc.Invocation(res.Model, res.Usage.InputTokens, res.Usage.OutputTokens)
	}

	g.record(ctx, c, res, started, completed, err)

	span.SetAttributes(
		attribute.Int64("input_tokens", res.Usage.InputTokens),
		attribute.Int64("output_tokens", res.Usage.OutputTokens),
		attribute.Float64("cost", res.Cost),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, eris.Wrapf(err, "gateway: %s", c.Stage)
	}

	res.Parsed = Parse(res.RawText)
	span.SetAttributes(attribute.String("parse", res.Parsed.Kind.String()))
	return res, nil
}

// record writes the audit row and the log line for one invocation.
func (g *Gateway) record(ctx context.Context, c Call, res *Result, started, completed time.Time, callErr error) {
	entry := &model.PromptLog{
		RunID:        c.Track.RunID,
		BatchID:      c.Track.BatchID,
		ScreenshotID: c.Track.ScreenshotID,
		ComponentID:  c.Track.ComponentID,
		ElementID:    c.Track.ElementID,
		LogType:      c.Stage.LogType(),
		Provider:     res.Provider,
		Model:        res.Model,
		Prompt:       c.Prompt,
		ImageRef:     c.Track.ImageRef,
		RawResponse:  res.RawText,
		InputTokens:  res.Usage.InputTokens,
		OutputTokens: res.Usage.OutputTokens,
		Cost:         res.Cost,
		DurationMs:   res.Duration.Milliseconds(),
		StartedAt:    started.UTC(),
		CompletedAt:  completed.UTC(),
	}
	if callErr != nil {
		entry.Error = callErr.Error()
	}

	log := zap.L().With(
		zap.String("run_id", c.Track.RunID),
		zap.Int64("batch_id", c.Track.BatchID),
		zap.String("stage", string(c.Stage)),
		zap.String("provider", res.Provider),
		zap.String("model", res.Model),
	)

	if g.audit != nil {
		// The audit row must land even when the run context was cancelled.
		auditCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		if err := g.audit.AppendPromptLog(auditCtx, entry); err != nil {
			log.Warn("gateway: prompt log write failed", zap.Error(err))
		}
		cancel()
	}

	if callErr != nil {
		log.Warn("gateway: call failed",
			zap.Int64("duration_ms", entry.DurationMs),
			zap.Error(callErr),
		)
		return
	}
	log.Info("gateway: call complete",
		zap.Int64("input_tokens", entry.InputTokens),
		zap.Int64("output_tokens", entry.OutputTokens),
		zap.Float64("cost", entry.Cost),
		zap.Int64("duration_ms", entry.DurationMs),
	)
}
