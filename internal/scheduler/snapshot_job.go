package scheduler

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/agenttrace/agenttrace/internal/events"
	"github.com/agenttrace/agenttrace/internal/modules/metrics"
	"github.com/agenttrace/agenttrace/pkg/models"
)

// SnapshotKey is the cache key holding the most recent metrics snapshot.
const SnapshotKey = "metrics/latest"

// SnapshotJob periodically captures a metrics summary into the cache
// database so the dashboard has an instant answer on startup and restarts
// don't lose the last known totals.
type SnapshotJob struct {
	metrics *metrics.Service
	cache   *sql.DB
	bus     *events.Bus
	log     zerolog.Logger
}

// NewSnapshotJob creates a metrics snapshot job.
func NewSnapshotJob(metricsService *metrics.Service, cache *sql.DB, bus *events.Bus, log zerolog.Logger) *SnapshotJob {
	return &SnapshotJob{
		metrics: metricsService,
		cache:   cache,
		bus:     bus,
		log:     log.With().Str("job", "metrics_snapshot").Logger(),
	}
}

// Name returns the job name.
func (j *SnapshotJob) Name() string {
	return "metrics_snapshot"
}

// Run captures the current 24h metrics summary.
func (j *SnapshotJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	summary, err := j.metrics.Summary(ctx, time.Time{}, time.Time{})
	if err != nil {
		return fmt.Errorf("failed to compute snapshot summary: %w", err)
	}

	payload, err := msgpack.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	now := time.Now().UTC().Format(models.TimeLayout)
	_, err = j.cache.ExecContext(ctx, `INSERT INTO snapshots (key, payload, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET payload = excluded.payload, created_at = excluded.created_at`,
		SnapshotKey, payload, now)
	if err != nil {
		return fmt.Errorf("failed to store snapshot: %w", err)
	}

	if j.bus != nil {
		j.bus.Publish("scheduler", &events.MetricsSnapshotData{
			Key:          SnapshotKey,
			TotalSpans:   summary.TotalSpans,
			TotalCostUSD: summary.TotalCostUSD,
		})
	}

	j.log.Debug().
		Int64("total_spans", summary.TotalSpans).
		Float64("total_cost_usd", summary.TotalCostUSD).
		Msg("Metrics snapshot stored")

	return nil
}

// LoadSnapshot reads the most recent stored summary from the cache database.
// Returns nil without error when no snapshot has been taken yet.
func LoadSnapshot(ctx context.Context, cache *sql.DB) (*models.MetricsSummary, error) {
	var payload []byte
	err := cache.QueryRowContext(ctx,
		`SELECT payload FROM snapshots WHERE key = ?`, SnapshotKey).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	var summary models.MetricsSummary
	if err := msgpack.Unmarshal(payload, &summary); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return &summary, nil
}
