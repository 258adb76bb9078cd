// Package traces assembles trace-level views from stored spans.
package traces

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/agenttrace/agenttrace/internal/modules/spans"
	"github.com/agenttrace/agenttrace/pkg/models"
)

const timeLayout = models.TimeLayout

// Repository computes trace summaries by aggregating the spans table.
type Repository struct {
	db       *sql.DB
	spanRepo *spans.Repository
}

// NewRepository creates a new trace repository backed by the spans database.
func NewRepository(db *sql.DB, spanRepo *spans.Repository) *Repository {
	return &Repository{db: db, spanRepo: spanRepo}
}

// rootField selects a column from the root span of each trace: the span
// without a parent, falling back to the earliest.
func rootField(column string) string {
	return fmt.Sprintf(`(SELECT %s FROM spans r WHERE r.trace_id = s.trace_id
		ORDER BY CASE WHEN r.parent_span_id IS NULL THEN 0 ELSE 1 END, r.started_at LIMIT 1)`, column)
}

// List returns trace summaries, newest first.
func (r *Repository) List(ctx context.Context, q models.TraceQuery) ([]models.TraceSummary, error) {
	q.Normalize()

	var conditions []string
	var args []interface{}
	if q.Service != "" {
		conditions = append(conditions, "s.service_name = ?")
		args = append(args, q.Service)
	}
	if q.Since != nil {
		conditions = append(conditions, "s.started_at >= ?")
		args = append(args, q.Since.UTC().Format(timeLayout))
	}
	if q.Until != nil {
		conditions = append(conditions, "s.started_at <= ?")
		args = append(args, q.Until.UTC().Format(timeLayout))
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	having := ""
	switch q.Status {
	case models.StatusError:
		having = " HAVING SUM(CASE WHEN s.status = 'error' THEN 1 ELSE 0 END) > 0"
	case models.StatusOk:
		having = " HAVING SUM(CASE WHEN s.status = 'error' THEN 1 ELSE 0 END) = 0"
	}

	query := fmt.Sprintf(`SELECT
			s.trace_id,
			%s AS root_operation,
			%s AS root_service,
			MIN(s.started_at) AS started_at,
			MAX(COALESCE(s.ended_at, s.started_at)) AS latest_end,
			COUNT(*) AS span_count,
			SUM(CASE WHEN s.status = 'error' THEN 1 ELSE 0 END) AS error_count,
			SUM(COALESCE(s.tokens_in, 0) + COALESCE(s.tokens_out, 0) + COALESCE(s.tokens_reasoning, 0)) AS total_tokens,
			SUM(COALESCE(s.cost_usd, 0)) AS total_cost
		FROM spans s%s
		GROUP BY s.trace_id%s
		ORDER BY MIN(s.started_at) DESC
		LIMIT ? OFFSET ?`,
		rootField("r.operation_name"), rootField("r.service_name"), where, having)

	rows, err := r.db.QueryContext(ctx, query, append(args, q.Limit, q.Offset)...)
	if err != nil {
		return nil, fmt.Errorf("failed to list traces: %w", err)
	}
	defer rows.Close()

	var summaries []models.TraceSummary
	for rows.Next() {
		var (
			summary              models.TraceSummary
			startedAt, latestEnd string
		)
		err := rows.Scan(
			&summary.TraceID, &summary.RootOperation, &summary.ServiceName,
			&startedAt, &latestEnd, &summary.SpanCount, &summary.ErrorCount,
			&summary.TotalTokens, &summary.TotalCostUSD,
		)
		if err != nil {
			return nil, err
		}

		summary.StartedAt, err = time.Parse(timeLayout, startedAt)
		if err != nil {
			return nil, fmt.Errorf("invalid started_at for trace %s: %w", summary.TraceID, err)
		}
		if end, err := time.Parse(timeLayout, latestEnd); err == nil && end.After(summary.StartedAt) {
			ms := float64(end.Sub(summary.StartedAt)) / float64(time.Millisecond)
			summary.DurationMs = &ms
		}

		summaries = append(summaries, summary)
	}
	return summaries, rows.Err()
}

// Get returns a trace with all its spans, or nil when no spans exist for the
// trace ID.
func (r *Repository) Get(ctx context.Context, traceID string) (*models.TraceDetail, error) {
	traceSpans, err := r.spanRepo.GetByTraceID(ctx, traceID)
	if err != nil {
		return nil, err
	}
	if len(traceSpans) == 0 {
		return nil, nil
	}

	return &models.TraceDetail{
		TraceSummary: models.BuildTraceSummary(traceID, traceSpans),
		Spans:        traceSpans,
	}, nil
}

// Count returns the number of distinct traces.
func (r *Repository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(DISTINCT trace_id) FROM spans").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count traces: %w", err)
	}
	return count, nil
}
