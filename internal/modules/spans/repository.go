// Package spans provides persistent storage and querying for spans.
package spans

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/agenttrace/agenttrace/internal/database"
	"github.com/agenttrace/agenttrace/pkg/models"
)

const timeLayout = models.TimeLayout

// Repository provides span storage operations.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new span repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const insertColumns = `span_id, trace_id, parent_span_id, operation_name, service_name,
	kind, started_at, ended_at, duration_ms, status, status_message,
	model_name, model_provider, tokens_in, tokens_out, tokens_reasoning, cost_usd,
	tool_name, tool_input, tool_output, tool_duration_ms,
	prompt_preview, completion_preview, attributes, events`

const selectColumns = `span_id, trace_id, parent_span_id, operation_name, service_name,
	kind, started_at, ended_at, duration_ms, status, status_message,
	model_name, model_provider, tokens_in, tokens_out, tokens_reasoning, cost_usd,
	tool_name, tool_input, tool_output, tool_duration_ms,
	prompt_preview, completion_preview, attributes, events`

// upsertSQL updates every mutable column on conflict so re-exported spans
// (e.g. a span sent once open and again once finished) converge.
var upsertSQL = fmt.Sprintf(`INSERT INTO spans (%s)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(span_id) DO UPDATE SET
		ended_at = excluded.ended_at,
		duration_ms = excluded.duration_ms,
		status = excluded.status,
		status_message = excluded.status_message,
		tokens_in = excluded.tokens_in,
		tokens_out = excluded.tokens_out,
		tokens_reasoning = excluded.tokens_reasoning,
		cost_usd = excluded.cost_usd,
		tool_output = excluded.tool_output,
		tool_duration_ms = excluded.tool_duration_ms,
		completion_preview = excluded.completion_preview,
		attributes = excluded.attributes,
		events = excluded.events`, insertColumns)

// Insert stores a single span.
func (r *Repository) Insert(ctx context.Context, span models.Span) error {
	return r.InsertBatch(ctx, []models.Span{span})
}

// InsertBatch stores spans in one transaction, upserting on span_id.
func (r *Repository) InsertBatch(ctx context.Context, batch []models.Span) error {
	if len(batch) == 0 {
		return nil
	}

	return database.WithTransaction(r.db, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, upsertSQL)
		if err != nil {
			return fmt.Errorf("failed to prepare span upsert: %w", err)
		}
		defer stmt.Close()

		for i := range batch {
			args, err := insertArgs(&batch[i])
			if err != nil {
				return err
			}
			if _, err := stmt.ExecContext(ctx, args...); err != nil {
				return fmt.Errorf("failed to upsert span %s: %w", batch[i].SpanID, err)
			}
		}
		return nil
	})
}

func insertArgs(s *models.Span) ([]interface{}, error) {
	attributes, err := nullableJSON(s.Attributes)
	if err != nil {
		return nil, fmt.Errorf("failed to encode attributes for span %s: %w", s.SpanID, err)
	}

	var eventsJSON interface{}
	if len(s.Events) > 0 {
		encoded, err := json.Marshal(s.Events)
		if err != nil {
			return nil, fmt.Errorf("failed to encode events for span %s: %w", s.SpanID, err)
		}
		eventsJSON = string(encoded)
	}

	toolInput, err := nullableJSON(s.ToolInput)
	if err != nil {
		return nil, fmt.Errorf("failed to encode tool input for span %s: %w", s.SpanID, err)
	}
	toolOutput, err := nullableJSON(s.ToolOutput)
	if err != nil {
		return nil, fmt.Errorf("failed to encode tool output for span %s: %w", s.SpanID, err)
	}

	return []interface{}{
		s.SpanID,
		s.TraceID,
		s.ParentSpanID,
		s.OperationName,
		s.ServiceName,
		string(s.SpanKind),
		s.StartedAt.UTC().Format(timeLayout),
		nullableTime(s.EndedAt),
		s.DurationMs,
		string(s.Status),
		s.StatusMessage,
		s.ModelName,
		s.ModelProvider,
		s.TokensIn,
		s.TokensOut,
		s.TokensReasoning,
		s.CostUSD,
		s.ToolName,
		toolInput,
		toolOutput,
		s.ToolDurationMs,
		s.PromptPreview,
		s.CompletionPreview,
		attributes,
		eventsJSON,
	}, nil
}

func nullableJSON(raw json.RawMessage) (interface{}, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	if !json.Valid(raw) {
		return nil, fmt.Errorf("invalid JSON payload")
	}
	return string(raw), nil
}

func nullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC().Format(timeLayout)
}

// GetBySpanID returns a span or nil when it does not exist.
func (r *Repository) GetBySpanID(ctx context.Context, spanID string) (*models.Span, error) {
	query := fmt.Sprintf("SELECT %s FROM spans WHERE span_id = ?", selectColumns)
	row := r.db.QueryRowContext(ctx, query, spanID)

	span, err := scanSpanRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get span %s: %w", spanID, err)
	}
	return span, nil
}

// GetByTraceID returns all spans in a trace ordered by start time.
func (r *Repository) GetByTraceID(ctx context.Context, traceID string) ([]models.Span, error) {
	query := fmt.Sprintf("SELECT %s FROM spans WHERE trace_id = ? ORDER BY started_at ASC", selectColumns)
	rows, err := r.db.QueryContext(ctx, query, traceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query trace %s: %w", traceID, err)
	}
	defer rows.Close()

	return scanSpans(rows)
}

// Recent returns the most recently started spans.
func (r *Repository) Recent(ctx context.Context, limit int) ([]models.Span, error) {
	if limit <= 0 || limit > models.MaxSearchLimit {
		limit = models.DefaultSearchLimit
	}
	query := fmt.Sprintf("SELECT %s FROM spans ORDER BY started_at DESC LIMIT ?", selectColumns)
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent spans: %w", err)
	}
	defer rows.Close()

	return scanSpans(rows)
}

// Search returns spans matching the query plus the total match count.
func (r *Repository) Search(ctx context.Context, q models.SearchQuery) (models.SearchResult, error) {
	q.Normalize()

	where, args := buildSearchWhere(&q)

	var total int64
	countQuery := "SELECT COUNT(*) FROM spans" + where
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return models.SearchResult{}, fmt.Errorf("failed to count search results: %w", err)
	}

	direction := "ASC"
	if q.SortDesc {
		direction = "DESC"
	}
	query := fmt.Sprintf("SELECT %s FROM spans%s ORDER BY %s %s LIMIT ? OFFSET ?",
		selectColumns, where, q.SortColumn(), direction)
	rows, err := r.db.QueryContext(ctx, query, append(args, q.Limit, q.Offset)...)
	if err != nil {
		return models.SearchResult{}, fmt.Errorf("failed to search spans: %w", err)
	}
	defer rows.Close()

	spans, err := scanSpans(rows)
	if err != nil {
		return models.SearchResult{}, err
	}
	return models.SearchResult{Spans: spans, Total: total}, nil
}

func buildSearchWhere(q *models.SearchQuery) (string, []interface{}) {
	var conditions []string
	var args []interface{}

	if q.Text != "" {
		like := "%" + q.Text + "%"
		conditions = append(conditions,
			"(operation_name LIKE ? OR model_name LIKE ? OR tool_name LIKE ? OR service_name LIKE ?)")
		args = append(args, like, like, like, like)
	}
	if q.Service != "" {
		conditions = append(conditions, "service_name = ?")
		args = append(args, q.Service)
	}
	if q.Model != "" {
		conditions = append(conditions, "model_name = ?")
		args = append(args, q.Model)
	}
	if q.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, string(q.Status))
	}
	if q.MinDurationMs != nil {
		conditions = append(conditions, "duration_ms >= ?")
		args = append(args, *q.MinDurationMs)
	}
	if q.MaxDurationMs != nil {
		conditions = append(conditions, "duration_ms <= ?")
		args = append(args, *q.MaxDurationMs)
	}
	if q.MinCostUSD != nil {
		conditions = append(conditions, "cost_usd >= ?")
		args = append(args, *q.MinCostUSD)
	}
	if q.MaxCostUSD != nil {
		conditions = append(conditions, "cost_usd <= ?")
		args = append(args, *q.MaxCostUSD)
	}
	if q.Since != nil {
		conditions = append(conditions, "started_at >= ?")
		args = append(args, q.Since.UTC().Format(timeLayout))
	}
	if q.Until != nil {
		conditions = append(conditions, "started_at <= ?")
		args = append(args, q.Until.UTC().Format(timeLayout))
	}

	if len(conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

// Services returns distinct service names.
func (r *Repository) Services(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT DISTINCT service_name FROM spans ORDER BY service_name")
	if err != nil {
		return nil, fmt.Errorf("failed to query services: %w", err)
	}
	defer rows.Close()

	var services []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		services = append(services, name)
	}
	return services, rows.Err()
}

// Count returns the total number of stored spans.
func (r *Repository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM spans").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count spans: %w", err)
	}
	return count, nil
}

// PurgeBefore deletes spans started before the cutoff and returns how many
// were removed. Used by `db reset --older-than`.
func (r *Repository) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM spans WHERE started_at < ?", cutoff.UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("failed to purge spans: %w", err)
	}
	return result.RowsAffected()
}

// DeleteAll removes every stored span regardless of its start time. Used by
// `db reset`.
func (r *Repository) DeleteAll(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, "DELETE FROM spans")
	if err != nil {
		return 0, fmt.Errorf("failed to delete spans: %w", err)
	}
	return result.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSpans(rows *sql.Rows) ([]models.Span, error) {
	var spans []models.Span
	for rows.Next() {
		span, err := scanSpanRow(rows)
		if err != nil {
			return nil, err
		}
		spans = append(spans, *span)
	}
	return spans, rows.Err()
}

func scanSpanRow(row rowScanner) (*models.Span, error) {
	var (
		s                       models.Span
		kind, status, startedAt string
		endedAt                 sql.NullString
		toolInput, toolOutput   sql.NullString
		attributes, eventsJSON  sql.NullString
	)

	err := row.Scan(
		&s.SpanID, &s.TraceID, &s.ParentSpanID, &s.OperationName, &s.ServiceName,
		&kind, &startedAt, &endedAt, &s.DurationMs, &status, &s.StatusMessage,
		&s.ModelName, &s.ModelProvider, &s.TokensIn, &s.TokensOut, &s.TokensReasoning, &s.CostUSD,
		&s.ToolName, &toolInput, &toolOutput, &s.ToolDurationMs,
		&s.PromptPreview, &s.CompletionPreview, &attributes, &eventsJSON,
	)
	if err != nil {
		return nil, err
	}

	s.SpanKind = models.SpanKind(kind)
	s.Status = models.SpanStatus(status)

	s.StartedAt, err = time.Parse(timeLayout, startedAt)
	if err != nil {
		return nil, fmt.Errorf("invalid started_at for span %s: %w", s.SpanID, err)
	}
	if endedAt.Valid {
		t, err := time.Parse(timeLayout, endedAt.String)
		if err != nil {
			return nil, fmt.Errorf("invalid ended_at for span %s: %w", s.SpanID, err)
		}
		s.EndedAt = &t
	}

	if toolInput.Valid {
		s.ToolInput = json.RawMessage(toolInput.String)
	}
	if toolOutput.Valid {
		s.ToolOutput = json.RawMessage(toolOutput.String)
	}
	if attributes.Valid {
		s.Attributes = json.RawMessage(attributes.String)
	}
	if eventsJSON.Valid && eventsJSON.String != "" {
		if err := json.Unmarshal([]byte(eventsJSON.String), &s.Events); err != nil {
			return nil, fmt.Errorf("invalid events for span %s: %w", s.SpanID, err)
		}
	}

	return &s, nil
}
