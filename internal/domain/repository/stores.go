package repository

import (
	"context"
	"errors"
	"time"

	"PerpLens/internal/domain/models"
)

// ErrConfigNotFound is returned by ConfigStore.Update for an unknown id.
var ErrConfigNotFound = errors.New("config not found")

// BarStore provides read-only access to recorded price bars.
// Every lookup is bounded by an explicit as-of time: no bar after it may be
// returned. This keeps classification replayable for backtesting.
type BarStore interface {
	// LatestBars returns up to limit bars for (symbol, tf) with bucket <= asOf,
	// ordered ascending by bucket.
	LatestBars(ctx context.Context, symbol string, tf Timeframe, limit int, asOf time.Time) ([]models.PriceBar, error)
}

// FlowStore provides read-only access to raw microstructure series.
// Callers bucket and derive; the store only filters by symbol and time range.
type FlowStore interface {
	TradeAggregates(ctx context.Context, symbol string, fromMS, toMS int64) ([]models.TradeAgg, error)
	AssetMetrics(ctx context.Context, symbol string, fromMS, toMS int64) ([]models.AssetMetricPoint, error)
	OrderbookDepth(ctx context.Context, symbol string, fromMS, toMS int64) ([]models.DepthPoint, error)
}

// ConfigStore owns threshold profiles. Reads must observe either the pre- or
// post-update state of a config, never a partial write.
type ConfigStore interface {
	Get(ctx context.Context, id int64) (models.ThresholdConfig, bool, error)
	Default(ctx context.Context) (models.ThresholdConfig, bool, error)
	List(ctx context.Context) ([]models.ThresholdConfig, error)
	Update(ctx context.Context, id int64, patch models.ThresholdPatch) (models.ThresholdConfig, error)
}
