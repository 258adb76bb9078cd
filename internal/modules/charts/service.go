// Package charts provides services for generating dashboard chart data from
// stored spans.
package charts

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	talib "github.com/markcheno/go-talib"
	"github.com/rs/zerolog"

	"github.com/agenttrace/agenttrace/pkg/models"
)

const timeLayout = models.TimeLayout

// emaPeriod smooths sparkline series; short enough to still track bursts.
const emaPeriod = 5

// Overview bundles the dashboard's headline series.
type Overview struct {
	SpanRate   models.ChartSeries `json:"span_rate"`
	CostPerMin models.ChartSeries `json:"cost_per_min"`
	AvgLatency models.ChartSeries `json:"avg_latency"`
}

// Service provides chart data operations
type Service struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewService creates a new charts service
func NewService(db *sql.DB, log zerolog.Logger) *Service {
	return &Service{
		db:  db,
		log: log.With().Str("service", "charts").Logger(),
	}
}

// Overview returns span-rate, cost and latency series over the window,
// bucketed per minute, each with an EMA-smoothed copy for sparkline
// rendering.
func (s *Service) Overview(ctx context.Context, since, until time.Time) (*Overview, error) {
	if until.IsZero() {
		until = time.Now().UTC()
	}
	if since.IsZero() {
		since = until.Add(-time.Hour)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT started_at, duration_ms, cost_usd FROM spans
		WHERE started_at >= ? AND started_at <= ? ORDER BY started_at`,
		since.UTC().Format(timeLayout), until.UTC().Format(timeLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to query chart data: %w", err)
	}
	defer rows.Close()

	type bucket struct {
		count       float64
		cost        float64
		durationSum float64
		durationN   float64
	}
	buckets := map[time.Time]*bucket{}
	for rows.Next() {
		var startedAt string
		var duration, cost sql.NullFloat64
		if err := rows.Scan(&startedAt, &duration, &cost); err != nil {
			return nil, err
		}
		ts, err := time.Parse(timeLayout, startedAt)
		if err != nil {
			s.log.Debug().Str("started_at", startedAt).Msg("Skipping span with unparseable timestamp")
			continue
		}
		key := ts.Truncate(time.Minute)
		b := buckets[key]
		if b == nil {
			b = &bucket{}
			buckets[key] = b
		}
		b.count++
		if cost.Valid {
			b.cost += cost.Float64
		}
		if duration.Valid {
			b.durationSum += duration.Float64
			b.durationN++
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	keys := make([]time.Time, 0, len(buckets))
	for ts := range buckets {
		keys = append(keys, ts)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Before(keys[j]) })

	rate := make([]float64, len(keys))
	cost := make([]float64, len(keys))
	latency := make([]float64, len(keys))
	for i, ts := range keys {
		b := buckets[ts]
		rate[i] = b.count
		cost[i] = b.cost
		if b.durationN > 0 {
			latency[i] = b.durationSum / b.durationN
		}
	}

	return &Overview{
		SpanRate:   series("span_rate", keys, rate),
		CostPerMin: series("cost_per_min", keys, cost),
		AvgLatency: series("avg_latency", keys, latency),
	}, nil
}

func series(name string, timestamps []time.Time, values []float64) models.ChartSeries {
	return models.ChartSeries{
		Name:       name,
		Timestamps: timestamps,
		Values:     values,
		Smoothed:   Smooth(values),
	}
}

// Smooth applies an exponential moving average. Series shorter than the EMA
// period are returned as-is since there is nothing meaningful to smooth.
func Smooth(values []float64) []float64 {
	if len(values) < emaPeriod {
		out := make([]float64, len(values))
		copy(out, values)
		return out
	}

	smoothed := talib.Ema(values, emaPeriod)

	// Ema leaves the warm-up prefix at zero; backfill with the raw values so
	// charts don't dip to zero at the left edge
	for i := 0; i < emaPeriod-1 && i < len(smoothed); i++ {
		smoothed[i] = values[i]
	}
	return smoothed
}
