package testing

import (
	"time"

	"github.com/agenttrace/agenttrace/pkg/models"
)

// NewSpanFixture returns a finished span with sensible defaults that tests
// can override.
func NewSpanFixture(spanID, traceID string) models.Span {
	started := time.Now().UTC().Add(-time.Second)
	ended := started.Add(120 * time.Millisecond)
	duration := 120.0

	return models.Span{
		SpanID:        spanID,
		TraceID:       traceID,
		OperationName: "agent.step",
		ServiceName:   "test-agent",
		SpanKind:      models.KindInternal,
		StartedAt:     started,
		EndedAt:       &ended,
		DurationMs:    &duration,
		Status:        models.StatusOk,
	}
}

// NewLLMSpanFixture returns a span representing an LLM call.
func NewLLMSpanFixture(spanID, traceID, model string, tokensIn, tokensOut int) models.Span {
	span := NewSpanFixture(spanID, traceID)
	span.OperationName = "llm.chat"
	provider := "test-provider"
	span.ModelName = &model
	span.ModelProvider = &provider
	span.TokensIn = &tokensIn
	span.TokensOut = &tokensOut
	return span
}

// NewToolSpanFixture returns a span representing a tool call.
func NewToolSpanFixture(spanID, traceID, tool string) models.Span {
	span := NewSpanFixture(spanID, traceID)
	span.OperationName = "tool.invoke"
	span.ToolName = &tool
	return span
}

// NewTraceFixture returns a root span plus n-1 children, one second apart,
// forming a complete trace.
func NewTraceFixture(traceID string, n int) []models.Span {
	spans := make([]models.Span, 0, n)
	root := NewSpanFixture(traceID+"-root", traceID)
	root.OperationName = "agent.run"
	spans = append(spans, root)

	for i := 1; i < n; i++ {
		child := NewSpanFixture(traceID+"-child-"+string(rune('a'+i-1)), traceID)
		parent := root.SpanID
		child.ParentSpanID = &parent
		child.StartedAt = root.StartedAt.Add(time.Duration(i) * time.Second)
		ended := child.StartedAt.Add(80 * time.Millisecond)
		child.EndedAt = &ended
		spans = append(spans, child)
	}
	return spans
}
