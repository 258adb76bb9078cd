package models

import "time"

// TraceSummary is the aggregated view of one trace, computed from its spans.
type TraceSummary struct {
	TraceID       string    `json:"trace_id"`
	RootOperation string    `json:"root_operation"`
	ServiceName   string    `json:"service_name"`
	StartedAt     time.Time `json:"started_at"`
	DurationMs    *float64  `json:"duration_ms,omitempty"`
	SpanCount     int64     `json:"span_count"`
	ErrorCount    int64     `json:"error_count"`
	TotalTokens   int64     `json:"total_tokens"`
	TotalCostUSD  float64   `json:"total_cost_usd"`
}

// HasErrors reports whether any span in the trace failed.
func (t *TraceSummary) HasErrors() bool {
	return t.ErrorCount > 0
}

// TraceDetail is a trace summary together with all of its spans.
type TraceDetail struct {
	TraceSummary
	Spans []Span `json:"spans"`
}

// BuildTraceSummary computes a summary from a trace's spans. Spans must be
// ordered by start time; the first span without a parent is the root, falling
// back to the earliest span.
func BuildTraceSummary(traceID string, spans []Span) TraceSummary {
	summary := TraceSummary{TraceID: traceID}
	if len(spans) == 0 {
		return summary
	}

	root := &spans[0]
	for i := range spans {
		if spans[i].ParentSpanID == nil {
			root = &spans[i]
			break
		}
	}

	summary.RootOperation = root.OperationName
	summary.ServiceName = root.ServiceName
	summary.StartedAt = root.StartedAt
	summary.SpanCount = int64(len(spans))

	var latestEnd *time.Time
	for i := range spans {
		sp := &spans[i]
		if sp.Status == StatusError {
			summary.ErrorCount++
		}
		summary.TotalTokens += int64(sp.TotalTokens())
		if sp.CostUSD != nil {
			summary.TotalCostUSD += *sp.CostUSD
		}
		if sp.EndedAt != nil && (latestEnd == nil || sp.EndedAt.After(*latestEnd)) {
			latestEnd = sp.EndedAt
		}
	}

	// Trace duration spans from the root start to the latest span end
	if latestEnd != nil {
		ms := float64(latestEnd.Sub(summary.StartedAt)) / float64(time.Millisecond)
		summary.DurationMs = &ms
	}

	return summary
}
