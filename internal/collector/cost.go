// Package collector implements the span ingestion pipeline: enrichment,
// cost calculation, batching and storage.
package collector

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/agenttrace/agenttrace/pkg/models"
)

// ModelPricing holds per-model rates in USD per million tokens.
type ModelPricing struct {
	InputPerMillion       float64  `yaml:"input_per_million"`
	OutputPerMillion      float64  `yaml:"output_per_million"`
	CachedInputPerMillion *float64 `yaml:"cached_input_per_million,omitempty"`
}

// CostCalculator prices LLM spans from a model pricing table.
// Model names are matched exact first, then by prefix, then by substring,
// so "claude-sonnet-4-20250514" resolves to the "claude-sonnet-4" entry.
type CostCalculator struct {
	pricing map[string]ModelPricing
}

func ptr(v float64) *float64 { return &v }

// NewCostCalculator creates a calculator with the built-in pricing table
// (rates as of Jan 2025).
func NewCostCalculator() *CostCalculator {
	return &CostCalculator{
		pricing: map[string]ModelPricing{
			// Anthropic
			"claude-3-opus":     {InputPerMillion: 15.0, OutputPerMillion: 75.0, CachedInputPerMillion: ptr(1.5)},
			"claude-3-5-sonnet": {InputPerMillion: 3.0, OutputPerMillion: 15.0, CachedInputPerMillion: ptr(0.3)},
			"claude-3-5-haiku":  {InputPerMillion: 0.80, OutputPerMillion: 4.0, CachedInputPerMillion: ptr(0.08)},
			"claude-sonnet-4":   {InputPerMillion: 3.0, OutputPerMillion: 15.0, CachedInputPerMillion: ptr(0.3)},
			"claude-opus-4":     {InputPerMillion: 15.0, OutputPerMillion: 75.0, CachedInputPerMillion: ptr(1.5)},

			// OpenAI
			"gpt-4":         {InputPerMillion: 30.0, OutputPerMillion: 60.0},
			"gpt-4-turbo":   {InputPerMillion: 10.0, OutputPerMillion: 30.0},
			"gpt-4o":        {InputPerMillion: 2.50, OutputPerMillion: 10.0, CachedInputPerMillion: ptr(1.25)},
			"gpt-4o-mini":   {InputPerMillion: 0.15, OutputPerMillion: 0.60, CachedInputPerMillion: ptr(0.075)},
			"o1":            {InputPerMillion: 15.0, OutputPerMillion: 60.0, CachedInputPerMillion: ptr(7.5)},
			"o1-mini":       {InputPerMillion: 3.0, OutputPerMillion: 12.0, CachedInputPerMillion: ptr(1.5)},
			"o1-pro":        {InputPerMillion: 150.0, OutputPerMillion: 600.0},
			"gpt-3.5-turbo": {InputPerMillion: 0.50, OutputPerMillion: 1.50},

			// Google
			"gemini-1.5-pro":   {InputPerMillion: 1.25, OutputPerMillion: 5.0, CachedInputPerMillion: ptr(0.3125)},
			"gemini-1.5-flash": {InputPerMillion: 0.075, OutputPerMillion: 0.30, CachedInputPerMillion: ptr(0.01875)},
			"gemini-2.0-flash": {InputPerMillion: 0.10, OutputPerMillion: 0.40, CachedInputPerMillion: ptr(0.025)},

			// Mistral
			"mistral-large": {InputPerMillion: 2.0, OutputPerMillion: 6.0},
			"mistral-small": {InputPerMillion: 0.2, OutputPerMillion: 0.6},
		},
	}
}

// Calculate fills span.CostUSD for LLM spans with a known model.
// Reasoning tokens are billed at the output rate. Unknown models are left
// unpriced rather than guessed.
func (c *CostCalculator) Calculate(span *models.Span) {
	if !span.IsLLMCall() {
		return
	}

	pricing, ok := c.FindPricing(*span.ModelName)
	if !ok {
		return
	}

	var tokensIn, tokensOut, tokensReasoning float64
	if span.TokensIn != nil {
		tokensIn = float64(*span.TokensIn)
	}
	if span.TokensOut != nil {
		tokensOut = float64(*span.TokensOut)
	}
	if span.TokensReasoning != nil {
		tokensReasoning = float64(*span.TokensReasoning)
	}

	inputCost := tokensIn / 1_000_000 * pricing.InputPerMillion
	outputCost := (tokensOut + tokensReasoning) / 1_000_000 * pricing.OutputPerMillion

	cost := inputCost + outputCost
	span.CostUSD = &cost
}

// FindPricing resolves a model name to its pricing entry.
func (c *CostCalculator) FindPricing(modelName string) (ModelPricing, bool) {
	if pricing, ok := c.pricing[modelName]; ok {
		return pricing, true
	}

	for key, pricing := range c.pricing {
		if strings.HasPrefix(modelName, key) {
			return pricing, true
		}
	}

	for key, pricing := range c.pricing {
		if strings.Contains(modelName, key) {
			return pricing, true
		}
	}

	return ModelPricing{}, false
}

// SetPricing adds or replaces pricing for a model.
func (c *CostCalculator) SetPricing(model string, pricing ModelPricing) {
	c.pricing[model] = pricing
}

// LoadPricingFile merges per-model overrides from a YAML file keyed by
// model name.
func (c *CostCalculator) LoadPricingFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read pricing file: %w", err)
	}

	overrides := map[string]ModelPricing{}
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return fmt.Errorf("failed to parse pricing file: %w", err)
	}

	for model, pricing := range overrides {
		c.pricing[model] = pricing
	}
	return nil
}
