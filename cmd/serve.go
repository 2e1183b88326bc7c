package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/ux-extract/internal/batch"
	"github.com/sells-group/ux-extract/internal/model"
	"github.com/sells-group/ux-extract/internal/monitoring"
	"github.com/sells-group/ux-extract/internal/resilience"
	"github.com/sells-group/ux-extract/internal/store"
)

var servePort int

// batchDriver is the part of the batch controller the API drives.
type batchDriver interface {
	StartBatchExtraction(ctx context.Context, id int64) error
	StartValidation(ctx context.Context, id int64) error
	CompleteReview(ctx context.Context, id int64) error
}

// api serves the batch HTTP endpoints.
type api struct {
	store    store.Store
	batches  batchDriver
	breakers func() map[string]resilience.CircuitState
	metrics  *monitoring.Collector
	lookback int
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the batch API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		collector := monitoring.NewCollector(env.Store, env.Controller.Active, time.Duration(cfg.Monitoring.StallMinutes)*time.Minute)
		a := &api{
			store:    env.Store,
			batches:  env.Controller,
			breakers: env.Providers.Breakers.States,
			metrics:  collector,
			lookback: cfg.Monitoring.LookbackWindowHours,
		}
		if cfg.Monitoring.Enabled {
			checker := monitoring.NewChecker(collector, monitoring.NewAlerter(cfg.Monitoring), cfg.Monitoring)
			go checker.Run(ctx)
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           a.routes(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			sctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			_ = srv.Shutdown(sctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

func (a *api) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/health", a.handleHealth)
	r.Get("/v1/metrics", a.handleMetrics)

	r.Route("/v1/batches", func(r chi.Router) {
		r.Post("/", a.handleCreateBatch)
		r.Get("/", a.handleListBatches)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", a.handleGetBatch)
			r.Post("/extract", a.handleExtract)
			r.Post("/validate", a.handleValidate)
			r.Post("/complete", a.handleComplete)
			r.Get("/elements", a.handleElements)
			r.Get("/prompt-logs", a.handlePromptLogs)
		})
	})
	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func (a *api) handleHealth(w http.ResponseWriter, _ *http.Request) {
	body := map[string]any{"status": "ok"}
	if a.breakers != nil {
		states := make(map[string]string)
		for name, s := range a.breakers() {
			states[name] = s.String()
		}
		body["breakers"] = states
	}
	writeJSON(w, http.StatusOK, body)
}

func (a *api) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if a.metrics == nil {
		writeError(w, http.StatusNotFound, "metrics not available")
		return
	}
	lookback := a.lookback
	if h, err := strconv.Atoi(r.URL.Query().Get("hours")); err == nil && h > 0 {
		lookback = h
	}
	if lookback <= 0 {
		lookback = 24
	}
	snap, err := a.metrics.Collect(r.Context(), lookback)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

type createBatchRequest struct {
	Name         string   `json:"name"`
	AnalysisType string   `json:"analysis_type"`
	Screenshots  []string `json:"screenshots"`
	Start        bool     `json:"start"`
}

type batchDetail struct {
	Batch       *model.Batch           `json:"batch"`
	Screenshots []model.Screenshot     `json:"screenshots"`
	Usage       *model.PromptLogTotals `json:"usage,omitempty"`
}

func (a *api) handleCreateBatch(w http.ResponseWriter, r *http.Request) {
	var req createBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if len(req.Screenshots) == 0 {
		writeError(w, http.StatusBadRequest, "screenshots are required")
		return
	}

	b, shots, err := registerBatch(r.Context(), a.store, req.Name, req.AnalysisType, req.Screenshots)
	if err != nil {
		a.fail(w, err)
		return
	}

	status := http.StatusCreated
	if req.Start {
		if err := a.batches.StartBatchExtraction(r.Context(), b.ID); err != nil {
			a.fail(w, err)
			return
		}
		b.Status = model.BatchStatusExtracting
		status = http.StatusAccepted
	}
	writeJSON(w, status, batchDetail{Batch: b, Screenshots: shots})
}

func (a *api) handleListBatches(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.BatchFilter{Status: model.BatchStatus(q.Get("status"))}
	if filter.Status != "" && !filter.Status.Valid() {
		writeError(w, http.StatusBadRequest, "unknown status")
		return
	}
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))
	filter.Offset, _ = strconv.Atoi(q.Get("offset"))

	batches, err := a.store.ListBatches(r.Context(), filter)
	if err != nil {
		a.fail(w, err)
		return
	}
	if batches == nil {
		batches = []model.Batch{}
	}
	writeJSON(w, http.StatusOK, batches)
}

func (a *api) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	id, ok := batchID(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	b, err := a.store.GetBatch(ctx, id)
	if err != nil {
		a.fail(w, err)
		return
	}
	shots, err := a.store.ListScreenshots(ctx, id)
	if err != nil {
		a.fail(w, err)
		return
	}
	usage, err := a.store.PromptLogTotals(ctx, id)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, batchDetail{Batch: b, Screenshots: shots, Usage: usage})
}

func (a *api) handleExtract(w http.ResponseWriter, r *http.Request) {
	a.drive(w, r, http.StatusAccepted, a.batches.StartBatchExtraction)
}

func (a *api) handleValidate(w http.ResponseWriter, r *http.Request) {
	a.drive(w, r, http.StatusAccepted, a.batches.StartValidation)
}

func (a *api) handleComplete(w http.ResponseWriter, r *http.Request) {
	a.drive(w, r, http.StatusOK, a.batches.CompleteReview)
}

// drive runs a lifecycle operation and answers with the batch's new status.
func (a *api) drive(w http.ResponseWriter, r *http.Request, status int, op func(context.Context, int64) error) {
	id, ok := batchID(w, r)
	if !ok {
		return
	}
	if err := op(r.Context(), id); err != nil {
		a.fail(w, err)
		return
	}
	b, err := a.store.GetBatch(r.Context(), id)
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, status, map[string]any{"id": b.ID, "status": b.Status})
}

func (a *api) handleElements(w http.ResponseWriter, r *http.Request) {
	id, ok := batchID(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	if _, err := a.store.GetBatch(ctx, id); err != nil {
		a.fail(w, err)
		return
	}
	filter := model.ElementFilter{BatchID: id, Unscored: r.URL.Query().Get("unscored") == "true"}
	elements, err := a.store.ListElements(ctx, filter)
	if err != nil {
		a.fail(w, err)
		return
	}
	views := make([]model.ElementView, 0, len(elements))
	for _, el := range elements {
		views = append(views, el.View())
	}
	writeJSON(w, http.StatusOK, views)
}

func (a *api) handlePromptLogs(w http.ResponseWriter, r *http.Request) {
	id, ok := batchID(w, r)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	logs, err := a.store.ListPromptLogs(r.Context(), id, limit)
	if err != nil {
		a.fail(w, err)
		return
	}
	if logs == nil {
		logs = []model.PromptLog{}
	}
	writeJSON(w, http.StatusOK, logs)
}

func batchID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid batch id")
		return 0, false
	}
	return id, true
}

// fail maps domain errors to status codes.
func (a *api) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "batch not found")
	case errors.Is(err, batch.ErrBatchActive):
		writeError(w, http.StatusConflict, "batch run already active")
	case errors.Is(err, model.ErrIllegalTransition):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, batch.ErrScoringUnavailable):
		writeError(w, http.StatusServiceUnavailable, "accuracy scoring is not configured")
	default:
		zap.L().Error("api request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
