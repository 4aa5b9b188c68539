package usecase

import (
	"context"
	"fmt"
	"time"

	"PerpLens/internal/domain/models"
	drepo "PerpLens/internal/domain/repository"
)

// FlowProcessor routes ingested market events to the configured backend.
type FlowProcessor struct {
	pub     drepo.Publisher
	store   drepo.Storage
	metrics drepo.Metrics
	backend string
}

// NewFlowProcessor creates a new FlowProcessor instance.
func NewFlowProcessor(pub drepo.Publisher, store drepo.Storage, metrics drepo.Metrics, backend string) *FlowProcessor {
	return &FlowProcessor{pub: pub, store: store, metrics: metrics, backend: backend}
}

// Process routes a single event to the configured backend.
func (p *FlowProcessor) Process(ctx context.Context, e *models.MarketEvent) error {
	if e == nil {
		return fmt.Errorf("event is nil")
	}

	start := time.Now()
	var err error

	switch p.backend {
	case "kafka":
		err = p.pub.Publish(ctx, e)
	case "clickhouse":
		err = p.store.Store(ctx, e)
	default:
		err = fmt.Errorf("unknown backend: %s", p.backend)
	}

	if err != nil {
		p.metrics.RecordError("process")
		return fmt.Errorf("process event: %w", err)
	}

	p.metrics.RecordEventIngested(p.backend, e.Symbol)
	if e.Kind == models.EventAssetCtx {
		p.metrics.RecordOpenInterest(e.Symbol, e.OpenInterest)
	}
	p.metrics.RecordLatency("process", time.Since(start).Seconds())

	return nil
}

// ProcessBatch routes multiple events in a batch.
func (p *FlowProcessor) ProcessBatch(ctx context.Context, events []*models.MarketEvent) error {
	if len(events) == 0 {
		return nil
	}

	start := time.Now()
	var err error

	switch p.backend {
	case "kafka":
		err = p.pub.PublishBatch(ctx, events)
	case "clickhouse":
		err = p.store.StoreBatch(ctx, events)
	default:
		err = fmt.Errorf("unknown backend: %s", p.backend)
	}

	if err != nil {
		p.metrics.RecordError("process_batch")
		return fmt.Errorf("process batch: %w", err)
	}

	for _, e := range events {
		p.metrics.RecordEventIngested(p.backend, e.Symbol)
	}
	p.metrics.RecordLatency("process_batch", time.Since(start).Seconds())

	return nil
}

// Close closes underlying resources if available.
func (p *FlowProcessor) Close() {
	if p.pub != nil {
		_ = p.pub.Close()
	}
	if p.store != nil {
		_ = p.store.Close()
	}
}
