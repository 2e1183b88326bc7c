package provider

import (
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/ux-extract/internal/config"
	"github.com/sells-group/ux-extract/internal/gateway"
	"github.com/sells-group/ux-extract/internal/resilience"
	"github.com/sells-group/ux-extract/pkg/anthropic"
	"github.com/sells-group/ux-extract/pkg/moondream"
	"github.com/sells-group/ux-extract/pkg/openai"
)

// Set is the stage bindings built from config plus the breakers guarding
// them.
type Set struct {
	Bindings map[gateway.Stage]gateway.Binding
	Breakers *resilience.Breakers
}

// Build constructs one capability, one token bucket and one breaker per
// configured provider and binds them to stages. Stages sharing a provider
// share its bucket. The accuracy stage is left unbound when its provider
// has no key.
func Build(cfg *config.Config, images ImageSource) (*Set, error) {
	retry := resilience.FromConfig(cfg.Resilience.MaxAttempts, cfg.Resilience.InitialBackoffMs, cfg.Resilience.MaxBackoffMs)
	breakers := resilience.NewBreakers(resilience.FromCircuitConfig(cfg.Resilience.FailureThreshold, cfg.Resilience.ResetTimeoutSecs))

	built := make(map[string]gateway.Binding)
	bind := func(name string) (gateway.Binding, error) {
		if b, ok := built[name]; ok {
			return b, nil
		}
		capability, rc, err := newCapability(cfg, name, retry, images)
		if err != nil {
			return gateway.Binding{}, err
		}
		b := gateway.Binding{
			Capability: capability,
			Limiter:    NewLimiter(rc),
			Breaker:    breakers.Get(name),
		}
		built[name] = b
		return b, nil
	}

	stages := map[gateway.Stage]string{
		gateway.StageComponentDiscovery: cfg.Stages.ComponentDiscovery,
		gateway.StageElementDiscovery:   cfg.Stages.ElementDiscovery,
		gateway.StageAnchoring:          cfg.Stages.Anchoring,
		gateway.StageDetection:          cfg.Stages.Detection,
		gateway.StageAccuracy:           cfg.Stages.Accuracy,
	}
	bindings := make(map[gateway.Stage]gateway.Binding, len(stages))
	for _, stage := range gateway.Stages {
		name := stages[stage]
		if stage == gateway.StageAccuracy && (name == "" || apiKey(cfg, name) == "") {
			continue
		}
		b, err := bind(name)
		if err != nil {
			return nil, eris.Wrapf(err, "provider: bind %s", stage)
		}
		bindings[stage] = b
	}
	return &Set{Bindings: bindings, Breakers: breakers}, nil
}

// NewLimiter returns a token bucket for rc, or nil when rc is unlimited.
func NewLimiter(rc config.RateConfig) *rate.Limiter {
	if rc.RPS <= 0 {
		return nil
	}
	burst := rc.Burst
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rc.RPS), burst)
}

func newCapability(cfg *config.Config, name string, retry resilience.RetryConfig, images ImageSource) (gateway.Capability, config.RateConfig, error) {
	switch name {
	case NameAnthropic, NameOpenAI, NameMoondream:
	default:
		return nil, config.RateConfig{}, eris.Errorf("provider: unknown provider %q", name)
	}
	if apiKey(cfg, name) == "" {
		return nil, config.RateConfig{}, eris.Errorf("provider: %q has no api key", name)
	}
	switch name {
	case NameAnthropic:
		p := cfg.Providers.Anthropic
		retries := retry.MaxAttempts - 1
		if retries < 0 {
			retries = 0
		}
		client := anthropic.NewClient(p.Key, option.WithMaxRetries(retries))
		return NewAnthropic(client, p.Model, p.MaxTokens), p.Rate, nil
	case NameOpenAI:
		p := cfg.Providers.OpenAI
		client := openai.NewClient(p.Key,
			openai.WithBaseURL(p.BaseURL),
			openai.WithModel(p.Model),
			openai.WithRetry(retry),
		)
		return NewOpenAI(client, p.Model, p.MaxTokens), p.Rate, nil
	case NameMoondream:
		p := cfg.Providers.Moondream
		client := moondream.NewClient(p.Key,
			moondream.WithBaseURL(p.BaseURL),
			moondream.WithRetry(retry),
		)
		var src ImageSource
		if p.InlineImages {
			src = images
		}
		return NewMoondream(client, p.Model, src), p.Rate, nil
	}
	return nil, config.RateConfig{}, eris.Errorf("provider: unknown provider %q", name)
}

func apiKey(cfg *config.Config, name string) string {
	switch name {
	case NameAnthropic:
		return cfg.Providers.Anthropic.Key
	case NameOpenAI:
		return cfg.Providers.OpenAI.Key
	case NameMoondream:
		return cfg.Providers.Moondream.Key
	default:
		return ""
	}
}
