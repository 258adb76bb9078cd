// Package metrics aggregates stored spans into summary statistics,
// cost breakdowns and time-bucketed latency/error series.
package metrics

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/agenttrace/agenttrace/pkg/models"
)

const timeLayout = models.TimeLayout

// Valid group-by dimensions for cost breakdowns.
const (
	GroupByModel     = "model"
	GroupByService   = "service"
	GroupByOperation = "operation"
	GroupByDay       = "day"
)

// Service computes aggregations over the spans database.
type Service struct {
	db *sql.DB
}

// NewService creates a metrics service.
func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// timeRange normalizes an open-ended query window. A zero since defaults to
// 24 hours back, a zero until to now.
func timeRange(since, until time.Time) (time.Time, time.Time) {
	if until.IsZero() {
		until = time.Now().UTC()
	}
	if since.IsZero() {
		since = until.Add(-24 * time.Hour)
	}
	return since.UTC(), until.UTC()
}

// Summary returns headline metrics for the window.
func (s *Service) Summary(ctx context.Context, since, until time.Time) (*models.MetricsSummary, error) {
	since, until = timeRange(since, until)
	summary := &models.MetricsSummary{}

	err := s.db.QueryRowContext(ctx, `SELECT
			COUNT(*),
			COUNT(DISTINCT trace_id),
			SUM(COALESCE(tokens_in, 0) + COALESCE(tokens_out, 0) + COALESCE(tokens_reasoning, 0)),
			SUM(COALESCE(cost_usd, 0)),
			SUM(CASE WHEN status = 'error' THEN 1 ELSE 0 END)
		FROM spans WHERE started_at >= ? AND started_at <= ?`,
		since.Format(timeLayout), until.Format(timeLayout)).
		Scan(&summary.TotalSpans, &summary.TotalTraces,
			&nullInt64{&summary.TotalTokens}, &nullFloat64{&summary.TotalCostUSD},
			&nullInt64{&summary.ErrorCount})
	if err != nil {
		return nil, fmt.Errorf("failed to compute metrics summary: %w", err)
	}

	if summary.TotalSpans > 0 {
		summary.ErrorRate = float64(summary.ErrorCount) / float64(summary.TotalSpans)
	}

	durations, err := s.durations(ctx, since, until)
	if err != nil {
		return nil, err
	}
	if len(durations) > 0 {
		summary.AvgLatencyMs = stat.Mean(durations, nil)
		summary.P50LatencyMs = stat.Quantile(0.50, stat.Empirical, durations, nil)
		summary.P95LatencyMs = stat.Quantile(0.95, stat.Empirical, durations, nil)
		summary.P99LatencyMs = stat.Quantile(0.99, stat.Empirical, durations, nil)
	}

	return summary, nil
}

// durations returns the sorted duration distribution for the window.
func (s *Service) durations(ctx context.Context, since, until time.Time) ([]float64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT duration_ms FROM spans
		WHERE duration_ms IS NOT NULL AND started_at >= ? AND started_at <= ?`,
		since.Format(timeLayout), until.Format(timeLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to query durations: %w", err)
	}
	defer rows.Close()

	var durations []float64
	for rows.Next() {
		var d float64
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		durations = append(durations, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Float64s(durations)
	return durations, nil
}

// Costs returns cost aggregated by the requested dimension, most expensive
// group first. Only LLM spans contribute.
func (s *Service) Costs(ctx context.Context, groupBy string, since, until time.Time) ([]models.CostMetric, error) {
	since, until = timeRange(since, until)

	var groupExpr string
	switch groupBy {
	case GroupByModel, "":
		groupExpr = "COALESCE(model_name, 'unknown')"
	case GroupByService:
		groupExpr = "service_name"
	case GroupByOperation:
		groupExpr = "operation_name"
	case GroupByDay:
		groupExpr = "date(started_at)"
	default:
		return nil, fmt.Errorf("invalid group dimension: %s", groupBy)
	}

	query := fmt.Sprintf(`SELECT
			%s AS grp,
			SUM(COALESCE(cost_usd, 0)),
			SUM(COALESCE(tokens_in, 0) + COALESCE(tokens_out, 0) + COALESCE(tokens_reasoning, 0)),
			COUNT(*)
		FROM spans
		WHERE model_name IS NOT NULL AND started_at >= ? AND started_at <= ?
		GROUP BY grp
		ORDER BY SUM(COALESCE(cost_usd, 0)) DESC`, groupExpr)

	rows, err := s.db.QueryContext(ctx, query, since.Format(timeLayout), until.Format(timeLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to query cost metrics: %w", err)
	}
	defer rows.Close()

	var metrics []models.CostMetric
	for rows.Next() {
		var m models.CostMetric
		if err := rows.Scan(&m.Group, &m.TotalCostUSD, &m.TotalTokens, &m.CallCount); err != nil {
			return nil, err
		}
		metrics = append(metrics, m)
	}
	return metrics, rows.Err()
}

// Latency returns per-bucket latency percentiles across the window.
func (s *Service) Latency(ctx context.Context, since, until time.Time) ([]models.LatencyMetric, error) {
	since, until = timeRange(since, until)
	bucket := bucketFor(until.Sub(since))

	rows, err := s.db.QueryContext(ctx, `SELECT started_at, duration_ms FROM spans
		WHERE duration_ms IS NOT NULL AND started_at >= ? AND started_at <= ?
		ORDER BY started_at`,
		since.Format(timeLayout), until.Format(timeLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to query latency metrics: %w", err)
	}
	defer rows.Close()

	buckets := map[time.Time][]float64{}
	for rows.Next() {
		var startedAt string
		var duration float64
		if err := rows.Scan(&startedAt, &duration); err != nil {
			return nil, err
		}
		ts, err := time.Parse(timeLayout, startedAt)
		if err != nil {
			continue
		}
		key := ts.Truncate(bucket)
		buckets[key] = append(buckets[key], duration)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	metrics := make([]models.LatencyMetric, 0, len(buckets))
	for ts, durations := range buckets {
		sort.Float64s(durations)
		metrics = append(metrics, models.LatencyMetric{
			Timestamp: ts,
			AvgMs:     stat.Mean(durations, nil),
			P50Ms:     stat.Quantile(0.50, stat.Empirical, durations, nil),
			P95Ms:     stat.Quantile(0.95, stat.Empirical, durations, nil),
			P99Ms:     stat.Quantile(0.99, stat.Empirical, durations, nil),
			Count:     int64(len(durations)),
		})
	}
	sort.Slice(metrics, func(i, j int) bool { return metrics[i].Timestamp.Before(metrics[j].Timestamp) })
	return metrics, nil
}

// Errors returns per-bucket error counts across the window.
func (s *Service) Errors(ctx context.Context, since, until time.Time) ([]models.ErrorMetric, error) {
	since, until = timeRange(since, until)
	bucket := bucketFor(until.Sub(since))

	rows, err := s.db.QueryContext(ctx, `SELECT started_at, status FROM spans
		WHERE started_at >= ? AND started_at <= ? ORDER BY started_at`,
		since.Format(timeLayout), until.Format(timeLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to query error metrics: %w", err)
	}
	defer rows.Close()

	type counts struct{ errors, total int64 }
	buckets := map[time.Time]*counts{}
	for rows.Next() {
		var startedAt, status string
		if err := rows.Scan(&startedAt, &status); err != nil {
			return nil, err
		}
		ts, err := time.Parse(timeLayout, startedAt)
		if err != nil {
			continue
		}
		key := ts.Truncate(bucket)
		c := buckets[key]
		if c == nil {
			c = &counts{}
			buckets[key] = c
		}
		c.total++
		if status == string(models.StatusError) {
			c.errors++
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	metrics := make([]models.ErrorMetric, 0, len(buckets))
	for ts, c := range buckets {
		m := models.ErrorMetric{
			Timestamp:  ts,
			ErrorCount: c.errors,
			TotalCount: c.total,
		}
		if c.total > 0 {
			m.ErrorRate = float64(c.errors) / float64(c.total)
		}
		metrics = append(metrics, m)
	}
	sort.Slice(metrics, func(i, j int) bool { return metrics[i].Timestamp.Before(metrics[j].Timestamp) })
	return metrics, nil
}

// bucketFor picks a bucket width that keeps series around 60 points.
func bucketFor(window time.Duration) time.Duration {
	switch {
	case window <= time.Hour:
		return time.Minute
	case window <= 6*time.Hour:
		return 5 * time.Minute
	case window <= 48*time.Hour:
		return time.Hour
	default:
		return 24 * time.Hour
	}
}

// nullInt64 scans SQL NULL (empty aggregate) as zero.
type nullInt64 struct{ v *int64 }

func (n *nullInt64) Scan(src interface{}) error {
	var ns sql.NullInt64
	if err := ns.Scan(src); err != nil {
		return err
	}
	*n.v = ns.Int64
	return nil
}

// nullFloat64 scans SQL NULL as zero.
type nullFloat64 struct{ v *float64 }

func (n *nullFloat64) Scan(src interface{}) error {
	var ns sql.NullFloat64
	if err := ns.Scan(src); err != nil {
		return err
	}
	*n.v = ns.Float64
	return nil
}
