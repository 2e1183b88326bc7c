package main

import (
	"context"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/ux-extract/internal/batch"
	"github.com/sells-group/ux-extract/internal/config"
	"github.com/sells-group/ux-extract/internal/cost"
	"github.com/sells-group/ux-extract/internal/extract"
	"github.com/sells-group/ux-extract/internal/gateway"
	"github.com/sells-group/ux-extract/internal/imagemeta"
	"github.com/sells-group/ux-extract/internal/prompts"
	"github.com/sells-group/ux-extract/internal/provider"
	"github.com/sells-group/ux-extract/internal/resilience"
	"github.com/sells-group/ux-extract/internal/signedurl"
	"github.com/sells-group/ux-extract/internal/store"
	"github.com/sells-group/ux-extract/internal/tracing"
	"github.com/sells-group/ux-extract/pkg/gcs"
)

// pipelineEnv holds all initialized clients and the batch controller
// needed by the extract/validate/serve commands.
type pipelineEnv struct {
	Store      store.Store
	URLs       *signedurl.Cache
	Prompts    *prompts.Catalog
	Providers  *provider.Set
	Gateway    *gateway.Gateway
	Controller *batch.Controller

	closers []func() error
}

// Close waits for background runs, then releases resources in reverse
// order of acquisition.
func (pe *pipelineEnv) Close() {
	if pe.Controller != nil {
		pe.Controller.Wait()
	}
	for i := len(pe.closers) - 1; i >= 0; i-- {
		if err := pe.closers[i](); err != nil {
			zap.L().Warn("close pipeline resource", zap.Error(err))
		}
	}
}

func (pe *pipelineEnv) onClose(fn func() error) {
	pe.closers = append(pe.closers, fn)
}

// initPipeline sets up the store, signer, providers and prompt catalog,
// and builds the batch controller. Background runs derive from ctx.
// Callers should defer env.Close().
func initPipeline(ctx context.Context, mode string) (env *pipelineEnv, err error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	env = &pipelineEnv{}
	defer func() {
		if err != nil {
			env.Close()
			env = nil
		}
	}()

	shutdown, err := tracing.Init(ctx, cfg.Tracing, version)
	if err != nil {
		return env, eris.Wrap(err, "init tracing")
	}
	env.onClose(func() error {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return shutdown(sctx)
	})

	st, err := openStore(ctx)
	if err != nil {
		return env, err
	}
	env.Store = st
	env.onClose(st.Close)

	urls, err := initURLCache(ctx, env)
	if err != nil {
		return env, err
	}
	env.URLs = urls

	retry := resilience.FromConfig(cfg.Resilience.MaxAttempts, cfg.Resilience.InitialBackoffMs, cfg.Resilience.MaxBackoffMs)
	prober := imagemeta.NewProber(
		imagemeta.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.Pipeline.ProbeTimeoutSecs) * time.Second}),
		imagemeta.WithRetry(retry),
	)

	catalog, err := prompts.Load(cfg.Prompts.Path, map[string]any{"anchor_density": cfg.Prompts.AnchorDensity})
	if err != nil {
		return env, eris.Wrap(err, "load prompts")
	}
	if cfg.Prompts.Watch {
		if err := catalog.Watch(ctx, cfg.Prompts.Path); err != nil {
			return env, err
		}
	}
	env.Prompts = catalog

	set, err := provider.Build(cfg, prober)
	if err != nil {
		return env, err
	}
	env.Providers = set

	env.Gateway = gateway.New(set.Bindings, st, cost.NewCalculator(pricingRates(cfg.Pricing)))

	unit := extract.NewUnit(env.Gateway, catalog, prober, extract.UnitConfig{
		AccuracyScoring:   cfg.Pipeline.AccuracyScoring,
		AccuracyThreshold: cfg.Pipeline.AccuracyThreshold,
	})
	orch := extract.NewOrchestrator(unit, st, cfg.Pipeline.MaxConcurrentScreenshots)
	env.Controller = batch.New(ctx, st, urls, orch, batch.Scoring{
		Gateway:   env.Gateway,
		Prompts:   catalog,
		Threshold: cfg.Pipeline.AccuracyThreshold,
	})

	zap.L().Info("pipeline initialized",
		zap.String("store", cfg.Store.Driver),
		zap.String("storage", cfg.Storage.Mode),
		zap.Int("max_concurrent_screenshots", cfg.Pipeline.MaxConcurrentScreenshots),
		zap.Bool("accuracy_scoring", cfg.Pipeline.AccuracyScoring),
		zap.Bool("accuracy_bound", env.Gateway.Has(gateway.StageAccuracy)),
	)
	return env, nil
}

// initURLCache builds the signed URL cache over the configured signer,
// with the redis tier when an address is set. A redis tier that cannot be
// reached is skipped.
func initURLCache(ctx context.Context, env *pipelineEnv) (*signedurl.Cache, error) {
	signer, err := initSigner(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}
	if c, ok := signer.(interface{ Close() error }); ok {
		env.onClose(c.Close)
	}

	opts := signedurl.Options{
		TTL:           cfg.Storage.SignedURLTTL(),
		RefreshMargin: cfg.Storage.RefreshMargin(),
		Size:          cfg.Storage.CacheSize,
	}
	if cfg.Storage.RedisAddr != "" {
		tier, err := signedurl.NewRedisTier(ctx, cfg.Storage.RedisAddr, cfg.Storage.RedisKeyPrefix)
		if err != nil {
			zap.L().Warn("redis signed url tier unavailable, using local cache only", zap.Error(err))
		} else {
			opts.Shared = tier
			env.onClose(tier.Close)
		}
	}
	return signedurl.New(signer, opts), nil
}

func initSigner(ctx context.Context, sc config.StorageConfig) (signedurl.Signer, error) {
	switch sc.Mode {
	case "gcs":
		s, err := gcs.New(ctx, sc.Bucket, sc.CredentialsFile, gcs.WithConcurrency(sc.SignConcurrency))
		if err != nil {
			return nil, eris.Wrap(err, "init gcs signer")
		}
		return s, nil
	case "public":
		return gcs.NewPublic(sc.PublicBaseURL), nil
	default:
		return nil, eris.Errorf("unsupported storage mode: %s", sc.Mode)
	}
}

// pricingRates overlays configured pricing on the built-in rates.
func pricingRates(p config.PricingConfig) cost.Rates {
	override := cost.Rates{
		Models:  make(map[string]cost.ModelRate, len(p.Models)),
		PerCall: p.PerCall,
	}
	for name, m := range p.Models {
		override.Models[name] = cost.ModelRate{
			Input:         m.Input,
			Output:        m.Output,
			CacheWriteMul: m.CacheWriteMul,
			CacheReadMul:  m.CacheReadMul,
		}
	}
	return cost.DefaultRates().Merge(override)
}
