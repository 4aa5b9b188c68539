package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"PerpLens/internal/domain/models"
	domrepo "PerpLens/internal/domain/repository"
	"PerpLens/internal/services/stats"
	"PerpLens/pkg/logger"
)

const (
	// minSamples is the floor for any statistical summary (15 minutes of 5m data).
	minSamples = 3
	// limitedDataThreshold marks summaries that are technically valid but thin.
	limitedDataThreshold = 10
)

var (
	ErrUnsupportedMetric = errors.New("unsupported metric")
	ErrUnsupportedPeriod = errors.New("unsupported period")
)

// ThresholdAnalyzer mines historical metric series into threshold suggestions.
type ThresholdAnalyzer struct {
	flow domrepo.FlowStore
	log  *logger.Logger
}

func NewThresholdAnalyzer(flow domrepo.FlowStore, log *logger.Logger) *ThresholdAnalyzer {
	return &ThresholdAnalyzer{flow: flow, log: log}
}

type AnalyzeParams struct {
	Symbol    string
	Metric    string
	Timeframe string
	Days      int
	AsOf      time.Time
}

// legacy metric names still accepted on the wire
var metricAliases = map[string]string{
	"oi_delta_percent": "oi_delta",
	"funding_rate":     "funding",
	"taker_buy_ratio":  "taker_ratio",
}

// AnalyzeMetric summarizes one metric's history and suggests trigger levels.
// Thin or empty histories return an insufficient_data result, not an error;
// unknown metrics and unsupported timeframes are validation errors.
func (a *ThresholdAnalyzer) AnalyzeMetric(ctx context.Context, p AnalyzeParams) (*models.AnalysisResult, error) {
	if p.Symbol == "" {
		return nil, fmt.Errorf("symbol required")
	}
	metric := p.Metric
	if canonical, ok := metricAliases[metric]; ok {
		metric = canonical
	}

	tf := domrepo.Timeframe(p.Timeframe)
	intervalMS, ok := domrepo.IntervalMS(tf)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedPeriod, p.Timeframe)
	}
	if p.Days <= 0 {
		p.Days = 7
	}
	if p.AsOf.IsZero() {
		p.AsOf = time.Now().UTC()
	}
	toMS := p.AsOf.UnixMilli()
	fromMS := toMS - int64(p.Days)*24*60*60*1000
	symbol := strings.ToUpper(p.Symbol)

	if metric == "taker_volume" {
		return a.analyzeTakerVolume(ctx, symbol, tf, intervalMS, fromMS, toMS)
	}

	values, rangeHours, err := a.metricHistory(ctx, symbol, metric, intervalMS, fromMS, toMS)
	if err != nil {
		return nil, err
	}

	if len(values) < minSamples {
		return &models.AnalysisResult{
			Status:          models.AnalysisInsufficient,
			Message:         fmt.Sprintf("Need at least %d samples, found %d", minSamples, len(values)),
			SampleCount:     len(values),
			RequiredSamples: minSamples,
		}, nil
	}

	// funding values live around 0.001%; they need the extra digits
	precision := 4
	if metric == "funding" {
		precision = 6
	}

	summary := stats.Summarize(values, precision)
	result := &models.AnalysisResult{
		Status:         models.AnalysisOK,
		Symbol:         symbol,
		Metric:         metric,
		Timeframe:      p.Timeframe,
		SampleCount:    len(values),
		TimeRangeHours: rangeHours,
		Statistics:     &summary,
	}
	sugg := stats.Suggest(summary)
	result.Suggestions = &sugg

	if len(values) < limitedDataThreshold {
		result.Warning = fmt.Sprintf("Limited data (%d samples). Statistics may not be representative.", len(values))
	}

	a.log.Debug("metric analyzed",
		logger.String("symbol", symbol),
		logger.String("metric", metric),
		logger.Int("samples", len(values)),
	)
	return result, nil
}

func (a *ThresholdAnalyzer) metricHistory(ctx context.Context, symbol, metric string, intervalMS, fromMS, toMS int64) ([]float64, float64, error) {
	switch metric {
	case "oi_delta":
		points, err := a.flow.AssetMetrics(ctx, symbol, fromMS, toMS)
		if err != nil {
			return nil, 0, err
		}
		return oiDeltaSeries(points, intervalMS)
	case "cvd":
		trades, err := a.flow.TradeAggregates(ctx, symbol, fromMS, toMS)
		if err != nil {
			return nil, 0, err
		}
		buckets, times := bucketTrades(trades, intervalMS)
		values := make([]float64, 0, len(times))
		for _, ts := range times {
			values = append(values, buckets[ts].buy-buckets[ts].sell)
		}
		return values, rangeHours(times), nil
	case "taker_ratio":
		trades, err := a.flow.TradeAggregates(ctx, symbol, fromMS, toMS)
		if err != nil {
			return nil, 0, err
		}
		buckets, times := bucketTrades(trades, intervalMS)
		values := make([]float64, 0, len(times))
		for _, ts := range times {
			if b := buckets[ts]; b.sell > 0 {
				values = append(values, b.buy/b.sell)
			}
		}
		return values, rangeHours(times), nil
	case "depth_ratio":
		depth, err := a.flow.OrderbookDepth(ctx, symbol, fromMS, toMS)
		if err != nil {
			return nil, 0, err
		}
		buckets, times := bucketDepth(depth, intervalMS)
		values := make([]float64, 0, len(times))
		for _, ts := range times {
			if d := buckets[ts]; d.ask > 0 {
				values = append(values, d.bid/d.ask)
			}
		}
		return values, rangeHours(times), nil
	case "order_imbalance":
		depth, err := a.flow.OrderbookDepth(ctx, symbol, fromMS, toMS)
		if err != nil {
			return nil, 0, err
		}
		buckets, times := bucketDepth(depth, intervalMS)
		values := make([]float64, 0, len(times))
		for _, ts := range times {
			d := buckets[ts]
			if total := d.bid + d.ask; total > 0 {
				values = append(values, (d.bid-d.ask)/total)
			}
		}
		return values, rangeHours(times), nil
	case "funding":
		points, err := a.flow.AssetMetrics(ctx, symbol, fromMS, toMS)
		if err != nil {
			return nil, 0, err
		}
		buckets := make(map[int64]float64)
		for _, p := range points {
			if p.FundingRate == nil {
				continue
			}
			// stored as a fraction, reported as a percentage
			buckets[stats.FloorTimestamp(p.Timestamp, intervalMS)] = *p.FundingRate * 100
		}
		times := sortedKeys(buckets)
		values := make([]float64, 0, len(times))
		for _, ts := range times {
			values = append(values, buckets[ts])
		}
		return values, rangeHours(times), nil
	case "oi":
		points, err := a.flow.AssetMetrics(ctx, symbol, fromMS, toMS)
		if err != nil {
			return nil, 0, err
		}
		buckets := make(map[int64]float64)
		for _, p := range points {
			if p.OpenInterest == 0 {
				continue
			}
			buckets[stats.FloorTimestamp(p.Timestamp, intervalMS)] = p.OpenInterest
		}
		times := sortedKeys(buckets)
		values := make([]float64, 0, len(times))
		for _, ts := range times {
			values = append(values, buckets[ts])
		}
		return values, rangeHours(times), nil
	default:
		return nil, 0, fmt.Errorf("%w: %s", ErrUnsupportedMetric, metric)
	}
}

func (a *ThresholdAnalyzer) analyzeTakerVolume(ctx context.Context, symbol string, tf domrepo.Timeframe, intervalMS, fromMS, toMS int64) (*models.AnalysisResult, error) {
	trades, err := a.flow.TradeAggregates(ctx, symbol, fromMS, toMS)
	if err != nil {
		return nil, err
	}
	if len(trades) == 0 {
		return &models.AnalysisResult{
			Status:  models.AnalysisInsufficient,
			Message: "No data available",
		}, nil
	}

	buckets, times := bucketTrades(trades, intervalMS)
	if len(times) < minSamples {
		return &models.AnalysisResult{
			Status:  models.AnalysisInsufficient,
			Message: fmt.Sprintf("Need at least %d samples, found %d", minSamples, len(times)),
		}, nil
	}

	ratios := make([]float64, 0, len(times))
	volumes := make([]float64, 0, len(times))
	for _, ts := range times {
		b := buckets[ts]
		if total := b.buy + b.sell; total > 0 && b.sell > 0 {
			ratios = append(ratios, b.buy/b.sell)
			volumes = append(volumes, total)
		}
	}
	if len(ratios) < minSamples {
		return &models.AnalysisResult{
			Status:  models.AnalysisInsufficient,
			Message: fmt.Sprintf("Need at least %d valid samples", minSamples),
		}, nil
	}

	ratioStats := stats.SummarizeRatios(ratios)
	volumeStats := stats.SummarizeVolumes(volumes)

	return &models.AnalysisResult{
		Status:           models.AnalysisOK,
		Symbol:           symbol,
		Metric:           "taker_volume",
		Timeframe:        string(tf),
		SampleCount:      len(ratios),
		TimeRangeHours:   stats.Round(rangeHours(times), 1),
		RatioStatistics:  &ratioStats,
		VolumeStatistics: &volumeStats,
		CompositeSuggestions: &models.CompositeSuggestions{
			Ratio: models.RatioTiers{
				Aggressive:   ratioStats.P75,
				Moderate:     ratioStats.P90,
				Conservative: ratioStats.P95,
			},
			Volume: models.VolumeTiers{
				Low:    volumeStats.P25,
				Medium: volumeStats.P50,
				High:   volumeStats.P75,
			},
		},
	}, nil
}

// --- bucketing helpers ---

type tradeBucket struct {
	buy  float64
	sell float64
}

func bucketTrades(trades []models.TradeAgg, intervalMS int64) (map[int64]tradeBucket, []int64) {
	buckets := make(map[int64]tradeBucket)
	for _, t := range trades {
		ts := stats.FloorTimestamp(t.Timestamp, intervalMS)
		b := buckets[ts]
		b.buy += t.Buy
		b.sell += t.Sell
		buckets[ts] = b
	}
	return buckets, sortedTradeKeys(buckets)
}

type depthBucket struct {
	bid float64
	ask float64
}

// bucketDepth keeps the last snapshot per bucket; depth is a level, not a flow.
func bucketDepth(points []models.DepthPoint, intervalMS int64) (map[int64]depthBucket, []int64) {
	buckets := make(map[int64]depthBucket)
	for _, p := range points {
		buckets[stats.FloorTimestamp(p.Timestamp, intervalMS)] = depthBucket{bid: p.Bid, ask: p.Ask}
	}
	times := make([]int64, 0, len(buckets))
	for ts := range buckets {
		times = append(times, ts)
	}
	sort.Slice(times, func(i, j int) bool { return times[i] < times[j] })
	return buckets, times
}

func oiDeltaSeries(points []models.AssetMetricPoint, intervalMS int64) ([]float64, float64, error) {
	buckets := make(map[int64]float64)
	for _, p := range points {
		buckets[stats.FloorTimestamp(p.Timestamp, intervalMS)] = p.OpenInterest
	}
	times := sortedKeys(buckets)

	values := make([]float64, 0, len(times))
	for i := 1; i < len(times); i++ {
		prev := buckets[times[i-1]]
		curr := buckets[times[i]]
		if prev != 0 && curr != 0 {
			values = append(values, (curr-prev)/prev*100)
		}
	}
	return values, rangeHours(times), nil
}

func sortedKeys(m map[int64]float64) []int64 {
	keys := make([]int64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func sortedTradeKeys(m map[int64]tradeBucket) []int64 {
	keys := make([]int64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func rangeHours(times []int64) float64 {
	if len(times) < 2 {
		return 0
	}
	return float64(times[len(times)-1]-times[0]) / (1000 * 60 * 60)
}
