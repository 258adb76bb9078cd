// Package client is the Go SDK for instrumenting agents with AgentTrace.
//
// A Client batches finished spans and ships them to a collector in the
// background:
//
//	tracer, _ := client.New(client.WithServiceName("my-agent"))
//	defer tracer.Close()
//
//	ctx, span := tracer.StartTrace(context.Background(), "agent.run")
//	defer span.End()
//
//	_, step := tracer.StartSpan(ctx, "llm.chat")
//	step.SetLLM("gpt-4o", 1200, 340)
//	step.End()
package client

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agenttrace/agenttrace/pkg/models"
)

type contextKey struct{}

// spanContext carries trace lineage through a context.Context.
type spanContext struct {
	traceID string
	spanID  string
}

// Option configures a Client.
type Option func(*Client)

// WithServiceName sets the service name stamped on every span.
func WithServiceName(name string) Option {
	return func(c *Client) { c.serviceName = name }
}

// WithEndpoint points the default HTTP exporter at a collector base URL.
func WithEndpoint(url string) Option {
	return func(c *Client) { c.endpoint = url }
}

// WithExporter replaces the default HTTP exporter.
func WithExporter(exporter Exporter) Option {
	return func(c *Client) { c.exporter = exporter }
}

// WithBatchSize sets how many spans are sent per export call.
func WithBatchSize(n int) Option {
	return func(c *Client) { c.batchSize = n }
}

// WithFlushInterval sets how long a partial batch may wait.
func WithFlushInterval(d time.Duration) Option {
	return func(c *Client) { c.flushInterval = d }
}

// Client batches spans and exports them in the background.
type Client struct {
	serviceName   string
	endpoint      string
	exporter      Exporter
	batchSize     int
	flushInterval time.Duration

	mu      sync.Mutex
	pending []models.Span
	closed  bool

	flushNow chan struct{}
	quit     chan struct{}
	done     chan struct{}
}

// New creates a client and starts its background flush loop.
func New(opts ...Option) (*Client, error) {
	c := &Client{
		serviceName:   "unknown",
		endpoint:      "http://localhost:8080",
		batchSize:     50,
		flushInterval: 2 * time.Second,
		flushNow:      make(chan struct{}, 1),
		quit:          make(chan struct{}),
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.exporter == nil {
		c.exporter = NewHTTPExporter(c.endpoint)
	}

	go c.run()
	return c, nil
}

// StartTrace begins a new trace and returns its root span. The returned
// context carries the trace so child spans attach automatically.
func (c *Client) StartTrace(ctx context.Context, operation string) (context.Context, *Span) {
	return c.newSpan(ctx, operation, uuid.NewString(), nil)
}

// StartSpan begins a span under the trace in ctx. Without an active trace it
// starts a new one.
func (c *Client) StartSpan(ctx context.Context, operation string) (context.Context, *Span) {
	parent, ok := ctx.Value(contextKey{}).(spanContext)
	if !ok {
		return c.StartTrace(ctx, operation)
	}
	parentID := parent.spanID
	return c.newSpan(ctx, operation, parent.traceID, &parentID)
}

func (c *Client) newSpan(ctx context.Context, operation, traceID string, parentID *string) (context.Context, *Span) {
	span := &Span{
		client: c,
		span: models.Span{
			SpanID:        uuid.NewString(),
			TraceID:       traceID,
			ParentSpanID:  parentID,
			OperationName: operation,
			ServiceName:   c.serviceName,
			SpanKind:      models.KindInternal,
			StartedAt:     time.Now().UTC(),
			Status:        models.StatusUnset,
		},
	}
	ctx = context.WithValue(ctx, contextKey{}, spanContext{
		traceID: traceID,
		spanID:  span.span.SpanID,
	})
	return ctx, span
}

// enqueue hands a finished span to the flush loop.
func (c *Client) enqueue(span models.Span) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.pending = append(c.pending, span)
	if len(c.pending) >= c.batchSize {
		select {
		case c.flushNow <- struct{}{}:
		default:
		}
	}
}

// Flush exports everything currently pending.
func (c *Client) Flush(ctx context.Context) error {
	c.mu.Lock()
	batch := c.pending
	c.pending = nil
	c.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}
	return c.exporter.Export(ctx, batch)
}

// Close drains pending spans and stops the flush loop.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	close(c.quit)
	<-c.done

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c.mu.Lock()
	batch := c.pending
	c.pending = nil
	c.mu.Unlock()

	if len(batch) > 0 {
		if err := c.exporter.Export(ctx, batch); err != nil {
			return err
		}
	}
	return c.exporter.Close()
}

// run flushes on the interval or when a batch fills up.
func (c *Client) run() {
	defer close(c.done)

	ticker := time.NewTicker(c.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.quit:
			return
		case <-ticker.C:
		case <-c.flushNow:
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		_ = c.Flush(ctx)
		cancel()
	}
}

// Span is a live span being recorded.
type Span struct {
	client *Client
	mu     sync.Mutex
	span   models.Span
	ended  bool
}

// SetLLM marks the span as an LLM call with token usage.
func (s *Span) SetLLM(model string, tokensIn, tokensOut int) *Span {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.span.ModelName = &model
	s.span.TokensIn = &tokensIn
	s.span.TokensOut = &tokensOut
	return s
}

// SetReasoningTokens records reasoning token usage for thinking models.
func (s *Span) SetReasoningTokens(tokens int) *Span {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.span.TokensReasoning = &tokens
	return s
}

// SetTool marks the span as a tool invocation.
func (s *Span) SetTool(name string) *Span {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.span.ToolName = &name
	return s
}

// SetPrompt records a prompt preview, truncated server-side.
func (s *Span) SetPrompt(prompt string) *Span {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.span.PromptPreview = &prompt
	return s
}

// SetCompletion records a completion preview, truncated server-side.
func (s *Span) SetCompletion(completion string) *Span {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.span.CompletionPreview = &completion
	return s
}

// SetError marks the span failed.
func (s *Span) SetError(message string) *Span {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.span.Status = models.StatusError
	s.span.StatusMessage = &message
	return s
}

// AddEvent appends a point-in-time event to the span.
func (s *Span) AddEvent(name string) *Span {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.span.Events = append(s.span.Events, models.SpanEvent{
		Name:      name,
		Timestamp: time.Now().UTC(),
	})
	return s
}

// SpanID returns the span's identifier.
func (s *Span) SpanID() string {
	return s.span.SpanID
}

// TraceID returns the identifier of the owning trace.
func (s *Span) TraceID() string {
	return s.span.TraceID
}

// End finishes the span and queues it for export. Ending twice is a no-op.
func (s *Span) End() {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return
	}
	s.ended = true

	now := time.Now().UTC()
	s.span.EndedAt = &now
	s.span.CalculateDuration()
	if s.span.Status == models.StatusUnset {
		s.span.Status = models.StatusOk
	}
	span := s.span
	s.mu.Unlock()

	s.client.enqueue(span)
}
