package usecase

import (
	"context"
	"fmt"
	"sort"

	"PerpLens/internal/domain/models"
	domrepo "PerpLens/internal/domain/repository"
	"PerpLens/internal/services/stats"
)

// FlowReader derives the classifier's flow snapshot from raw stored series.
type FlowReader struct {
	store domrepo.FlowStore
}

func NewFlowReader(store domrepo.FlowStore) *FlowReader {
	return &FlowReader{store: store}
}

// Snapshot aggregates taker flow over a rolling window of buckets ending at
// asOfMS and the open-interest change between the last two buckets. Data after
// asOfMS is never consulted.
func (r *FlowReader) Snapshot(ctx context.Context, symbol string, tf domrepo.Timeframe, window int, asOfMS int64) (models.FlowSnapshot, error) {
	intervalMS, ok := domrepo.IntervalMS(tf)
	if !ok {
		return models.FlowSnapshot{}, fmt.Errorf("unsupported timeframe: %s", tf)
	}
	if window <= 0 {
		window = 1
	}

	snap := models.FlowSnapshot{}

	fromMS := stats.FloorTimestamp(asOfMS, intervalMS) - int64(window-1)*intervalMS
	trades, err := r.store.TradeAggregates(ctx, symbol, fromMS, asOfMS)
	if err != nil {
		return snap, fmt.Errorf("trade aggregates: %w", err)
	}
	for _, t := range trades {
		snap.TakerBuy += t.Buy
		snap.TakerSell += t.Sell
	}
	snap.HasTrades = len(trades) > 0
	snap.CVD = snap.TakerBuy - snap.TakerSell

	// OI delta needs only the two most recent buckets; widen the lookback a
	// little so sparse sampling still yields a pair.
	oiFromMS := stats.FloorTimestamp(asOfMS, intervalMS) - int64(window)*intervalMS
	metrics, err := r.store.AssetMetrics(ctx, symbol, oiFromMS, asOfMS)
	if err != nil {
		return snap, fmt.Errorf("asset metrics: %w", err)
	}
	snap.OIDeltaPct, snap.HasOI = oiDelta(metrics, intervalMS)

	return snap, nil
}

// oiDelta buckets OI samples (last value wins within a bucket) and returns the
// percentage change between the last two buckets. Zero-valued buckets are not
// comparable and yield no delta.
func oiDelta(points []models.AssetMetricPoint, intervalMS int64) (float64, bool) {
	if len(points) == 0 {
		return 0, false
	}

	buckets := make(map[int64]float64)
	for _, p := range points {
		buckets[stats.FloorTimestamp(p.Timestamp, intervalMS)] = p.OpenInterest
	}

	times := make([]int64, 0, len(buckets))
	for ts := range buckets {
		times = append(times, ts)
	}
	sort.Slice(times, func(i, j int) bool { return times[i] < times[j] })

	if len(times) < 2 {
		return 0, false
	}
	prev := buckets[times[len(times)-2]]
	curr := buckets[times[len(times)-1]]
	if prev == 0 || curr == 0 {
		return 0, false
	}
	return (curr - prev) / prev * 100, true
}
