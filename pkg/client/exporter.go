package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/agenttrace/agenttrace/pkg/models"
)

// Exporter ships finished spans to a collector.
type Exporter interface {
	Export(ctx context.Context, spans []models.Span) error
	Close() error
}

// HTTPExporter posts span batches to a collector's batch ingest endpoint.
type HTTPExporter struct {
	url    string
	client *http.Client
}

// NewHTTPExporter creates an exporter for the collector at baseURL.
func NewHTTPExporter(baseURL string) *HTTPExporter {
	return &HTTPExporter{
		url:    strings.TrimRight(baseURL, "/") + "/api/v1/spans/batch",
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Export posts one batch.
func (e *HTTPExporter) Export(ctx context.Context, spans []models.Span) error {
	payload, err := json.Marshal(map[string]interface{}{"spans": spans})
	if err != nil {
		return fmt.Errorf("failed to encode spans: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to export spans: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("collector rejected batch: %s: %s", resp.Status, body)
	}
	return nil
}

// Close releases idle connections.
func (e *HTTPExporter) Close() error {
	e.client.CloseIdleConnections()
	return nil
}

// ConsoleExporter writes spans as JSON lines, for local development.
type ConsoleExporter struct {
	out io.Writer
}

// NewConsoleExporter creates an exporter that writes to out.
func NewConsoleExporter(out io.Writer) *ConsoleExporter {
	return &ConsoleExporter{out: out}
}

// Export writes one JSON line per span.
func (e *ConsoleExporter) Export(_ context.Context, spans []models.Span) error {
	encoder := json.NewEncoder(e.out)
	for _, span := range spans {
		if err := encoder.Encode(span); err != nil {
			return err
		}
	}
	return nil
}

// Close is a no-op.
func (e *ConsoleExporter) Close() error {
	return nil
}
