package ai

import (
	"slices"
	"strings"
)

// ModelInfo describes a planner model: where it runs, how much profile text
// fits in its context, and list pricing for cost logging.
type ModelInfo struct {
	Name          string  `json:"name"`
	Provider      string  `json:"provider"`
	ContextTokens int     `json:"context_tokens"`
	InputPerM     float64 `json:"input_per_m,omitempty"`  // USD per 1M prompt tokens
	OutputPerM    float64 `json:"output_per_m,omitempty"` // USD per 1M completion tokens
}

// DefaultContextTokens is assumed for models missing from the catalog.
const DefaultContextTokens = 8192

func hosted(name string, ctx int, in, out float64) ModelInfo {
	return ModelInfo{Name: name, Provider: ProviderOpenRouter, ContextTokens: ctx, InputPerM: in, OutputPerM: out}
}

func local(name string, ctx int) ModelInfo {
	return ModelInfo{Name: name, Provider: ProviderOllama, ContextTokens: ctx}
}

var catalog = []ModelInfo{
	hosted("openai/gpt-4o-mini", 128_000, 0.15, 0.60),
	hosted("openai/gpt-4o", 128_000, 2.50, 10),
	hosted("openai/gpt-4.1-mini", 1_047_576, 0.40, 1.60),
	hosted("anthropic/claude-3.5-sonnet", 200_000, 3, 15),
	hosted("anthropic/claude-3-haiku", 200_000, 0.25, 1.25),
	hosted("google/gemini-1.5-flash", 1_000_000, 0.075, 0.30),
	hosted("deepseek/deepseek-r1:free", 128_000, 0, 0),
	hosted("meta-llama/llama-3.1-8b-instruct", 131_072, 0, 0),
	hosted("meta-llama/llama-3.1-70b-instruct", 131_072, 0, 0),

	local("llama3.1:8b", 8192),
	local("qwen2.5:7b-instruct", 32_768),
	local("mistral-nemo:latest", 8192),
	local("phi3:mini-4k-instruct", 4096),
}

// LookupModel finds a catalog entry. Local tags that are not listed fall
// back to another tag of the same family, so "llama3.1:8b-q4_K_M" resolves
// like "llama3.1:8b".
func LookupModel(name string) (ModelInfo, bool) {
	if i := slices.IndexFunc(catalog, func(m ModelInfo) bool { return m.Name == name }); i >= 0 {
		return catalog[i], true
	}
	family, _, ok := strings.Cut(name, ":")
	if !ok || strings.Contains(name, "/") {
		return ModelInfo{}, false
	}
	for _, m := range catalog {
		if m.Provider == ProviderOllama && strings.HasPrefix(m.Name, family+":") {
			m.Name = name
			return m, true
		}
	}
	return ModelInfo{}, false
}

// ContextWindow returns the model's context size, or DefaultContextTokens.
func ContextWindow(model string) int {
	if m, ok := LookupModel(model); ok && m.ContextTokens > 0 {
		return m.ContextTokens
	}
	return DefaultContextTokens
}

// EstimateCostUSD prices a call at list rates. ok is false for unknown models.
func EstimateCostUSD(model string, promptTokens, completionTokens int) (usd float64, ok bool) {
	m, ok := LookupModel(model)
	if !ok {
		return 0, false
	}
	return (float64(promptTokens)*m.InputPerM + float64(completionTokens)*m.OutputPerM) / 1e6, true
}

// Catalog returns the known models sorted by name.
func Catalog() []ModelInfo {
	out := slices.Clone(catalog)
	slices.SortFunc(out, func(a, b ModelInfo) int { return strings.Compare(a.Name, b.Name) })
	return out
}
