package cost

// Rates holds per-model pricing configuration.
type Rates struct {
	Models  map[string]ModelRate `yaml:"models" mapstructure:"models"`
	PerCall map[string]float64   `yaml:"per_call" mapstructure:"per_call"`
}

// ModelRate holds per-model token pricing (per million tokens).
type ModelRate struct {
	Input         float64 `yaml:"input" mapstructure:"input"`
	Output        float64 `yaml:"output" mapstructure:"output"`
	CacheWriteMul float64 `yaml:"cache_write_mul" mapstructure:"cache_write_mul"`
	CacheReadMul  float64 `yaml:"cache_read_mul" mapstructure:"cache_read_mul"`
}

// Calculator computes costs for model usage.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// Tokens computes the cost of a token-metered call. Unknown models cost 0.
func (c *Calculator) Tokens(model string, input, output, cacheWrite, cacheRead int64) float64 {
	rate, ok := c.rates.Models[model]
	if !ok {
		return 0
	}

	inCost := (float64(input) / 1e6) * rate.Input
	outCost := (float64(output) / 1e6) * rate.Output
	cwCost := (float64(cacheWrite) / 1e6) * rate.Input * rate.CacheWriteMul
	crCost := (float64(cacheRead) / 1e6) * rate.Input * rate.CacheReadMul

	return inCost + outCost + cwCost + crCost
}

// Call returns the flat per-call price for a model, 0 when unpriced.
func (c *Calculator) Call(model string) float64 {
	return c.rates.PerCall[model]
}

// Invocation prices one gateway call. Token pricing applies when the
// model has a token rate; otherwise the per-call price is used.
func (c *Calculator) Invocation(model string, input, output int64) float64 {
	if _, ok := c.rates.Models[model]; ok {
		return c.Tokens(model, input, output, 0, 0)
	}
	return c.Call(model)
}

// Merge overlays other onto the receiver's rates and returns the result.
func (r Rates) Merge(other Rates) Rates {
	out := Rates{
		Models:  make(map[string]ModelRate, len(r.Models)+len(other.Models)),
		PerCall: make(map[string]float64, len(r.PerCall)+len(other.PerCall)),
	}
	for k, v := range r.Models {
		out.Models[k] = v
	}
	for k, v := range other.Models {
		out.Models[k] = v
	}
	for k, v := range r.PerCall {
		out.PerCall[k] = v
	}
	for k, v := range other.PerCall {
		out.PerCall[k] = v
	}
	return out
}

// DefaultRates returns the default pricing rates.
func DefaultRates() Rates {
	return Rates{
		Models: map[string]ModelRate{
			"claude-haiku-4-5-20251001": {
				Input: 0.80, Output: 4.00, CacheWriteMul: 1.25, CacheReadMul: 0.1,
			},
			"claude-sonnet-4-5-20250929": {
				Input: 3.00, Output: 15.00, CacheWriteMul: 1.25, CacheReadMul: 0.1,
			},
			"gpt-4.1": {Input: 2.00, Output: 8.00},
			"gpt-4.1-mini": {Input: 0.40, Output: 1.60},
		},
		PerCall: map[string]float64{
			"moondream-detect": 0.0002,
		},
	}
}
