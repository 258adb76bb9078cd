// Package models defines the span and trace data model shared by the
// collector, storage and API layers.
package models

import (
	"encoding/json"
	"time"
	"unicode/utf8"
)

// SpanStatus is the outcome of a span's operation.
type SpanStatus string

const (
	StatusOk    SpanStatus = "ok"
	StatusError SpanStatus = "error"
	StatusUnset SpanStatus = "unset"
)

// Valid reports whether s is one of the known status values.
func (s SpanStatus) Valid() bool {
	switch s {
	case StatusOk, StatusError, StatusUnset:
		return true
	}
	return false
}

// SpanKind classifies the role of a span within a trace.
type SpanKind string

const (
	KindInternal SpanKind = "internal"
	KindClient   SpanKind = "client"
	KindServer   SpanKind = "server"
	KindProducer SpanKind = "producer"
	KindConsumer SpanKind = "consumer"
)

// PreviewMaxLen caps prompt/completion previews stored with a span.
const PreviewMaxLen = 500

// TimeLayout is how timestamps are stored in SQLite. The fractional seconds
// are fixed-width so stored strings compare in chronological order;
// RFC3339Nano trims trailing zeros, which makes a whole-second value sort
// after any sub-second value in the same second.
const TimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Span is a single operation within a trace. LLM and tool fields are nil for
// plain spans.
type Span struct {
	SpanID        string     `json:"span_id"`
	TraceID       string     `json:"trace_id"`
	ParentSpanID  *string    `json:"parent_span_id,omitempty"`
	OperationName string     `json:"operation_name"`
	ServiceName   string     `json:"service_name"`
	SpanKind      SpanKind   `json:"span_kind"`
	StartedAt     time.Time  `json:"started_at"`
	EndedAt       *time.Time `json:"ended_at,omitempty"`
	DurationMs    *float64   `json:"duration_ms,omitempty"`
	Status        SpanStatus `json:"status"`
	StatusMessage *string    `json:"status_message,omitempty"`

	// LLM call fields
	ModelName       *string  `json:"model_name,omitempty"`
	ModelProvider   *string  `json:"model_provider,omitempty"`
	TokensIn        *int     `json:"tokens_in,omitempty"`
	TokensOut       *int     `json:"tokens_out,omitempty"`
	TokensReasoning *int     `json:"tokens_reasoning,omitempty"`
	CostUSD         *float64 `json:"cost_usd,omitempty"`

	// Tool call fields
	ToolName       *string         `json:"tool_name,omitempty"`
	ToolInput      json.RawMessage `json:"tool_input,omitempty"`
	ToolOutput     json.RawMessage `json:"tool_output,omitempty"`
	ToolDurationMs *float64        `json:"tool_duration_ms,omitempty"`

	// Content previews, capped at PreviewMaxLen
	PromptPreview     *string `json:"prompt_preview,omitempty"`
	CompletionPreview *string `json:"completion_preview,omitempty"`

	Attributes json.RawMessage `json:"attributes,omitempty"`
	Events     []SpanEvent     `json:"events,omitempty"`
}

// SpanEvent is a point-in-time annotation within a span.
type SpanEvent struct {
	Name       string          `json:"name"`
	Timestamp  time.Time       `json:"timestamp"`
	Attributes json.RawMessage `json:"attributes,omitempty"`
}

// CalculateDuration fills DurationMs from the start/end timestamps.
// Spans that have not ended keep a nil duration.
func (s *Span) CalculateDuration() {
	if s.EndedAt == nil {
		return
	}
	ms := float64(s.EndedAt.Sub(s.StartedAt)) / float64(time.Millisecond)
	s.DurationMs = &ms
}

// IsLLMCall reports whether this span represents a model invocation.
func (s *Span) IsLLMCall() bool {
	return s.ModelName != nil && *s.ModelName != ""
}

// IsToolCall reports whether this span represents a tool invocation.
func (s *Span) IsToolCall() bool {
	return s.ToolName != nil && *s.ToolName != ""
}

// TotalTokens returns input + output + reasoning tokens.
func (s *Span) TotalTokens() int {
	total := 0
	if s.TokensIn != nil {
		total += *s.TokensIn
	}
	if s.TokensOut != nil {
		total += *s.TokensOut
	}
	if s.TokensReasoning != nil {
		total += *s.TokensReasoning
	}
	return total
}

// TruncatePreview caps a preview at PreviewMaxLen characters, appending an
// ellipsis when it was cut. The cut falls on a rune boundary so multi-byte
// text is never split mid-character.
func TruncatePreview(s string) string {
	if utf8.RuneCountInString(s) <= PreviewMaxLen {
		return s
	}
	runes := []rune(s)
	return string(runes[:PreviewMaxLen]) + "..."
}
