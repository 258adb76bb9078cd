package events

import (
	"github.com/agenttrace/agenttrace/pkg/models"
)

// EventData is the interface that all event data types must implement
// This allows for type-safe event data while maintaining flexibility
type EventData interface {
	// EventType returns the event type this data is associated with
	EventType() EventType
}

// SpanReceivedData contains data for SpanReceived events.
// The full span rides along so live stream consumers don't need a
// database round trip.
type SpanReceivedData struct {
	Span models.Span `json:"span"`
}

// EventType returns the event type for SpanReceivedData
func (d *SpanReceivedData) EventType() EventType {
	return SpanReceived
}

// IsLLM reports whether the carried span is a model invocation,
// used by stream channel filters.
func (d *SpanReceivedData) IsLLM() bool {
	return d.Span.IsLLMCall()
}

// TraceCompletedData contains data for TraceCompleted events
type TraceCompletedData struct {
	TraceID    string  `json:"trace_id"`
	SpanCount  int64   `json:"span_count"`
	ErrorCount int64   `json:"error_count"`
	DurationMs float64 `json:"duration_ms"`
	CostUSD    float64 `json:"cost_usd"`
}

// EventType returns the event type for TraceCompletedData
func (d *TraceCompletedData) EventType() EventType {
	return TraceCompleted
}

// MetricsSnapshotData contains data for MetricsSnapshot events
type MetricsSnapshotData struct {
	Key          string  `json:"key"`
	TotalSpans   int64   `json:"total_spans"`
	TotalCostUSD float64 `json:"total_cost_usd"`
}

// EventType returns the event type for MetricsSnapshotData
func (d *MetricsSnapshotData) EventType() EventType {
	return MetricsSnapshot
}

// BackupCompletedData contains data for BackupCompleted events
type BackupCompletedData struct {
	RemoteKey string `json:"remote_key"`
	SizeBytes int64  `json:"size_bytes"`
	Pruned    int    `json:"pruned"`
}

// EventType returns the event type for BackupCompletedData
func (d *BackupCompletedData) EventType() EventType {
	return BackupCompleted
}

// ErrorEventData contains data for ErrorOccurred events
type ErrorEventData struct {
	Error   string                 `json:"error"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// EventType returns the event type for ErrorEventData
func (d *ErrorEventData) EventType() EventType {
	return ErrorOccurred
}
