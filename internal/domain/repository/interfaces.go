package repository

import (
	"context"
	"time"

	"PerpLens/internal/domain/models"
)

type MarketStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan *models.MarketEvent, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

type Publisher interface {
	Publish(ctx context.Context, e *models.MarketEvent) error
	PublishBatch(ctx context.Context, events []*models.MarketEvent) error
	Close() error
}

type Storage interface {
	Init(ctx context.Context) error // ensure tables, health checks
	Store(ctx context.Context, e *models.MarketEvent) error
	StoreBatch(ctx context.Context, events []*models.MarketEvent) error
	Query(ctx context.Context, symbol string, kind models.EventKind, from, to time.Time, limit int) ([]*models.MarketEvent, error)
	Health(ctx context.Context) error // ping
	Close() error
}

type Metrics interface {
	RecordEventIngested(backend, symbol string)
	RecordError(kind string)
	RecordOpenInterest(symbol string, oi float64)
	RecordLatency(op string, seconds float64)
}
