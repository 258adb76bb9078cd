package collector

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenttrace/agenttrace/pkg/models"
)

func llmSpan(model string, tokensIn, tokensOut int) *models.Span {
	now := time.Now().UTC()
	provider := "test"
	return &models.Span{
		SpanID:        "test-span",
		TraceID:       "test-trace",
		OperationName: "llm_call",
		ServiceName:   "test",
		SpanKind:      models.KindInternal,
		StartedAt:     now,
		EndedAt:       &now,
		Status:        models.StatusOk,
		ModelName:     &model,
		ModelProvider: &provider,
		TokensIn:      &tokensIn,
		TokensOut:     &tokensOut,
	}
}

func TestCostCalculationClaudeSonnet(t *testing.T) {
	calc := NewCostCalculator()
	span := llmSpan("claude-sonnet-4-20250514", 1000, 500)

	calc.Calculate(span)

	// 1000 input at $3/M = $0.003, 500 output at $15/M = $0.0075
	require.NotNil(t, span.CostUSD)
	assert.InDelta(t, 0.0105, *span.CostUSD, 0.0001)
}

func TestCostCalculationGPT4o(t *testing.T) {
	calc := NewCostCalculator()
	span := llmSpan("gpt-4o", 1_000_000, 500_000)

	calc.Calculate(span)

	// 1M input at $2.50/M + 500K output at $10/M = $7.50
	require.NotNil(t, span.CostUSD)
	assert.InDelta(t, 7.50, *span.CostUSD, 0.01)
}

func TestCostCalculationReasoningBilledAsOutput(t *testing.T) {
	calc := NewCostCalculator()
	span := llmSpan("o1", 0, 1000)
	reasoning := 9000
	span.TokensReasoning = &reasoning

	calc.Calculate(span)

	// 10K output-rate tokens at $60/M = $0.60
	require.NotNil(t, span.CostUSD)
	assert.InDelta(t, 0.60, *span.CostUSD, 0.0001)
}

func TestCostCalculationUnknownModel(t *testing.T) {
	calc := NewCostCalculator()
	span := llmSpan("unknown-model-xyz", 1000, 500)

	calc.Calculate(span)

	assert.Nil(t, span.CostUSD)
}

func TestCostCalculationSkipsNonLLMSpans(t *testing.T) {
	calc := NewCostCalculator()
	now := time.Now().UTC()
	span := &models.Span{
		SpanID:        "s1",
		TraceID:       "t1",
		OperationName: "db_query",
		StartedAt:     now,
		Status:        models.StatusOk,
	}

	calc.Calculate(span)

	assert.Nil(t, span.CostUSD)
}

func TestFindPricingMatchOrder(t *testing.T) {
	calc := NewCostCalculator()

	// Exact
	p, ok := calc.FindPricing("gpt-4o")
	require.True(t, ok)
	assert.Equal(t, 2.50, p.InputPerMillion)

	// Prefix: dated snapshot names resolve to the base model
	p, ok = calc.FindPricing("claude-3-5-sonnet-20241022")
	require.True(t, ok)
	assert.Equal(t, 3.0, p.InputPerMillion)

	// Contains: provider-prefixed names still match
	_, ok = calc.FindPricing("vertex/gemini-1.5-flash-002")
	assert.True(t, ok)

	_, ok = calc.FindPricing("totally-unknown")
	assert.False(t, ok)
}

func TestLoadPricingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pricing.yaml")
	content := "my-local-model:\n  input_per_million: 0.5\n  output_per_million: 1.0\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	calc := NewCostCalculator()
	require.NoError(t, calc.LoadPricingFile(path))

	span := llmSpan("my-local-model", 1_000_000, 1_000_000)
	calc.Calculate(span)

	require.NotNil(t, span.CostUSD)
	assert.InDelta(t, 1.5, *span.CostUSD, 0.0001)
}
