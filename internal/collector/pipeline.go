package collector

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/agenttrace/agenttrace/internal/config"
	"github.com/agenttrace/agenttrace/internal/events"
	"github.com/agenttrace/agenttrace/pkg/models"
)

// SpanStore is the storage side of the pipeline.
type SpanStore interface {
	InsertBatch(ctx context.Context, spans []models.Span) error
}

// Stats is a point-in-time snapshot of pipeline counters.
type Stats struct {
	Received   uint64 `json:"received"`
	Stored     uint64 `json:"stored"`
	Dropped    uint64 `json:"dropped"`
	Failed     uint64 `json:"failed"`
	QueueDepth int    `json:"queue_depth"`
}

// Pipeline ingests spans through a buffered channel, enriches and prices
// them, and writes them to storage in batches. A batch is flushed when it
// reaches the configured size or when the batch timeout elapses, whichever
// comes first.
type Pipeline struct {
	input chan models.Span
	store SpanStore
	cost  *CostCalculator
	bus   *events.Bus
	cfg   config.CollectorConfig
	log   zerolog.Logger

	received uint64
	stored   uint64
	dropped  uint64
	failed   uint64

	wg      sync.WaitGroup
	quit    chan struct{}
	started bool
	mu      sync.Mutex
}

// NewPipeline creates a pipeline. cost may be nil to skip pricing.
func NewPipeline(cfg config.CollectorConfig, store SpanStore, cost *CostCalculator, bus *events.Bus, log zerolog.Logger) *Pipeline {
	return &Pipeline{
		input: make(chan models.Span, cfg.BufferSize),
		store: store,
		cost:  cost,
		bus:   bus,
		cfg:   cfg,
		log:   log.With().Str("component", "pipeline").Logger(),
		quit:  make(chan struct{}),
	}
}

// Start launches the background batching loop.
func (p *Pipeline) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true

	p.wg.Add(1)
	go p.run()

	p.log.Info().
		Int("batch_size", p.cfg.BatchSize).
		Dur("batch_timeout", p.cfg.BatchTimeout).
		Int("buffer_size", p.cfg.BufferSize).
		Msg("Collector pipeline started")
}

// Stop drains buffered spans, flushes the final batch and waits for the
// loop to exit.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	p.mu.Unlock()

	close(p.quit)
	p.wg.Wait()

	p.log.Info().
		Uint64("stored", atomic.LoadUint64(&p.stored)).
		Uint64("dropped", atomic.LoadUint64(&p.dropped)).
		Msg("Collector pipeline stopped")
}

// Submit queues a span for processing without blocking. When the buffer is
// full the span is dropped and an error returned so callers can surface
// backpressure.
func (p *Pipeline) Submit(span models.Span) error {
	select {
	case p.input <- span:
		atomic.AddUint64(&p.received, 1)
		return nil
	default:
		atomic.AddUint64(&p.dropped, 1)
		return fmt.Errorf("collector buffer full, span %s dropped", span.SpanID)
	}
}

// Stats returns current pipeline counters.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Received:   atomic.LoadUint64(&p.received),
		Stored:     atomic.LoadUint64(&p.stored),
		Dropped:    atomic.LoadUint64(&p.dropped),
		Failed:     atomic.LoadUint64(&p.failed),
		QueueDepth: len(p.input),
	}
}

func (p *Pipeline) run() {
	defer p.wg.Done()

	batch := make([]models.Span, 0, p.cfg.BatchSize)
	timer := time.NewTimer(p.cfg.BatchTimeout)
	defer timer.Stop()

	for {
		select {
		case span := <-p.input:
			batch = append(batch, p.enrich(span))
			if len(batch) >= p.cfg.BatchSize {
				p.flush(batch)
				batch = batch[:0]
				resetTimer(timer, p.cfg.BatchTimeout)
			}

		case <-timer.C:
			if len(batch) > 0 {
				p.flush(batch)
				batch = batch[:0]
			}
			timer.Reset(p.cfg.BatchTimeout)

		case <-p.quit:
			// Drain whatever is still buffered before exiting
			for {
				select {
				case span := <-p.input:
					batch = append(batch, p.enrich(span))
					if len(batch) >= p.cfg.BatchSize {
						p.flush(batch)
						batch = batch[:0]
					}
				default:
					if len(batch) > 0 {
						p.flush(batch)
					}
					return
				}
			}
		}
	}
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}

// enrich normalizes a span before storage: duration from timestamps, default
// service name, preview caps and cost.
func (p *Pipeline) enrich(span models.Span) models.Span {
	if span.DurationMs == nil {
		span.CalculateDuration()
	}
	if span.ServiceName == "" {
		span.ServiceName = "unknown"
	}
	if span.SpanKind == "" {
		span.SpanKind = models.KindInternal
	}
	if span.Status == "" || !span.Status.Valid() {
		span.Status = models.StatusUnset
	}
	if span.PromptPreview != nil {
		capped := models.TruncatePreview(*span.PromptPreview)
		span.PromptPreview = &capped
	}
	if span.CompletionPreview != nil {
		capped := models.TruncatePreview(*span.CompletionPreview)
		span.CompletionPreview = &capped
	}
	if p.cost != nil && span.CostUSD == nil {
		p.cost.Calculate(&span)
	}
	return span
}

func (p *Pipeline) flush(batch []models.Span) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := p.store.InsertBatch(ctx, batch); err != nil {
		atomic.AddUint64(&p.failed, uint64(len(batch)))
		p.log.Error().Err(err).Int("batch_size", len(batch)).Msg("Failed to store span batch")
		p.bus.Publish("collector", &events.ErrorEventData{
			Error:   err.Error(),
			Context: map[string]interface{}{"batch_size": len(batch)},
		})
		return
	}

	atomic.AddUint64(&p.stored, uint64(len(batch)))
	p.log.Debug().Int("batch_size", len(batch)).Msg("Span batch stored")

	for i := range batch {
		p.bus.Publish("collector", &events.SpanReceivedData{Span: batch[i]})

		// A finished root span marks its trace as complete
		sp := &batch[i]
		if sp.ParentSpanID == nil && sp.EndedAt != nil {
			data := &events.TraceCompletedData{TraceID: sp.TraceID, SpanCount: 1}
			if sp.DurationMs != nil {
				data.DurationMs = *sp.DurationMs
			}
			if sp.CostUSD != nil {
				data.CostUSD = *sp.CostUSD
			}
			if sp.Status == models.StatusError {
				data.ErrorCount = 1
			}
			p.bus.Publish("collector", data)
		}
	}
}
