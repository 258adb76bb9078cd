package models

import "time"

// MetricsSummary is the headline aggregate for a time range.
type MetricsSummary struct {
	TotalSpans   int64   `json:"total_spans"`
	TotalTraces  int64   `json:"total_traces"`
	TotalTokens  int64   `json:"total_tokens"`
	TotalCostUSD float64 `json:"total_cost_usd"`
	ErrorCount   int64   `json:"error_count"`
	ErrorRate    float64 `json:"error_rate"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
	P50LatencyMs float64 `json:"p50_latency_ms"`
	P95LatencyMs float64 `json:"p95_latency_ms"`
	P99LatencyMs float64 `json:"p99_latency_ms"`
}

// CostMetric is cost aggregated by one group (model, service, operation or day).
type CostMetric struct {
	Group        string  `json:"group"`
	TotalCostUSD float64 `json:"total_cost_usd"`
	TotalTokens  int64   `json:"total_tokens"`
	CallCount    int64   `json:"call_count"`
}

// LatencyMetric is one time bucket of latency percentiles.
type LatencyMetric struct {
	Timestamp time.Time `json:"timestamp"`
	AvgMs     float64   `json:"avg_ms"`
	P50Ms     float64   `json:"p50_ms"`
	P95Ms     float64   `json:"p95_ms"`
	P99Ms     float64   `json:"p99_ms"`
	Count     int64     `json:"count"`
}

// ErrorMetric is one time bucket of error counts.
type ErrorMetric struct {
	Timestamp  time.Time `json:"timestamp"`
	ErrorCount int64     `json:"error_count"`
	TotalCount int64     `json:"total_count"`
	ErrorRate  float64   `json:"error_rate"`
}

// ChartSeries is a raw time series plus its EMA-smoothed counterpart for
// sparkline rendering on the dashboard.
type ChartSeries struct {
	Name       string      `json:"name"`
	Timestamps []time.Time `json:"timestamps"`
	Values     []float64   `json:"values"`
	Smoothed   []float64   `json:"smoothed"`
}
