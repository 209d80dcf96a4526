// Package pricing provides per-model cost estimation for token usage.
// Live per-token prices come from the OpenRouter models endpoint; the table
// here is a fallback for offline estimation and tests.
package pricing

// ModelPricing holds per-token costs in USD, as returned by OpenRouter.
type ModelPricing struct {
	PromptPerToken     float64
	CompletionPerToken float64
}

// Cost returns the USD cost for the given token counts.
func (p ModelPricing) Cost(promptTokens, completionTokens int) float64 {
	return float64(promptTokens)*p.PromptPerToken +
		float64(completionTokens)*p.CompletionPerToken
}

// Known fallback pricing per million tokens, as of Aug 2026. Add new models
// as needed.
var knownPer1M = map[string]struct {
	prompt     float64
	completion float64
}{
	"openai/gpt-5-nano":                        {0.05, 0.40},
	"meta-llama/llama-4-scout":                 {0.08, 0.30},
	"qwen/qwen3-8b":                            {0.035, 0.138},
	"google/gemini-2.5-flash-lite":             {0.10, 0.40},
	"google/gemini-3-flash-preview":            {0.15, 0.60},
	"mistralai/mistral-small-3.2-24b-instruct": {0.05, 0.10},
	"deepseek/deepseek-chat":                   {0.25, 0.85},
}

// Known returns the fallback pricing for a model, false for unknown models.
func Known(modelID string) (ModelPricing, bool) {
	p, ok := knownPer1M[modelID]
	if !ok {
		return ModelPricing{}, false
	}
	return ModelPricing{
		PromptPerToken:     p.prompt / 1_000_000,
		CompletionPerToken: p.completion / 1_000_000,
	}, true
}

// EstimateCost returns the estimated USD cost for the given token counts.
// Returns 0.0 for unknown models (safe default).
func EstimateCost(model string, promptTokens, completionTokens int) float64 {
	p, ok := Known(model)
	if !ok {
		return 0.0
	}
	return p.Cost(promptTokens, completionTokens)
}
