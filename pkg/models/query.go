package models

import "time"

// DefaultSearchLimit and MaxSearchLimit bound result set sizes for span
// searches. Requests above the cap are clamped, not rejected.
const (
	DefaultSearchLimit = 50
	MaxSearchLimit     = 1000
)

// SearchQuery holds span search filters. Zero values mean "no filter".
type SearchQuery struct {
	Text          string     // Free text over operation, model and tool names
	Service       string
	Model         string
	Status        SpanStatus
	MinDurationMs *float64
	MaxDurationMs *float64
	MinCostUSD    *float64
	MaxCostUSD    *float64
	Since         *time.Time
	Until         *time.Time
	SortBy        string // Validated against sortColumns
	SortDesc      bool
	Limit         int
	Offset        int
}

// sortColumns whitelists sortable fields; anything else falls back to
// started_at so user input never reaches SQL directly.
var sortColumns = map[string]string{
	"started_at":  "started_at",
	"duration_ms": "duration_ms",
	"cost_usd":    "cost_usd",
	"tokens":      "tokens_in + tokens_out",
	"service":     "service_name",
	"operation":   "operation_name",
}

// SortColumn returns the SQL expression to sort by.
func (q *SearchQuery) SortColumn() string {
	if col, ok := sortColumns[q.SortBy]; ok {
		return col
	}
	return "started_at"
}

// Normalize clamps the limit to [1, MaxSearchLimit] and floors the offset.
func (q *SearchQuery) Normalize() {
	if q.Limit <= 0 {
		q.Limit = DefaultSearchLimit
	}
	if q.Limit > MaxSearchLimit {
		q.Limit = MaxSearchLimit
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
}

// SearchResult pairs a page of spans with the total match count.
type SearchResult struct {
	Spans []Span `json:"spans"`
	Total int64  `json:"total"`
}

// TraceQuery holds trace listing filters.
type TraceQuery struct {
	Service string
	Status  SpanStatus
	Since   *time.Time
	Until   *time.Time
	Limit   int
	Offset  int
}

// Normalize applies the same limit bounds as span searches.
func (q *TraceQuery) Normalize() {
	if q.Limit <= 0 {
		q.Limit = DefaultSearchLimit
	}
	if q.Limit > MaxSearchLimit {
		q.Limit = MaxSearchLimit
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
}
