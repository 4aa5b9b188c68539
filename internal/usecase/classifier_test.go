package usecase

import (
	"context"
	"fmt"
	"reflect"
	"testing"
	"time"

	"PerpLens/internal/domain/models"
	domrepo "PerpLens/internal/domain/repository"
	"PerpLens/pkg/logger"
)

type stubBarStore struct {
	bars []models.PriceBar
	err  error
}

// LatestBars mirrors the store contract: only bars with bucket <= asOf,
// at most limit of them, ascending.
func (s *stubBarStore) LatestBars(_ context.Context, _ string, _ domrepo.Timeframe, limit int, asOf time.Time) ([]models.PriceBar, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make([]models.PriceBar, 0, len(s.bars))
	for _, b := range s.bars {
		if b.Bucket.After(asOf) {
			continue
		}
		out = append(out, b)
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

type stubFlowStore struct {
	trades  []models.TradeAgg
	assets  []models.AssetMetricPoint
	depth   []models.DepthPoint
	failFor string
}

func (s *stubFlowStore) TradeAggregates(_ context.Context, symbol string, fromMS, toMS int64) ([]models.TradeAgg, error) {
	if s.failFor != "" && symbol == s.failFor {
		return nil, fmt.Errorf("clickhouse unavailable")
	}
	var out []models.TradeAgg
	for _, t := range s.trades {
		if t.Timestamp >= fromMS && t.Timestamp <= toMS {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *stubFlowStore) AssetMetrics(_ context.Context, _ string, fromMS, toMS int64) ([]models.AssetMetricPoint, error) {
	var out []models.AssetMetricPoint
	for _, a := range s.assets {
		if a.Timestamp >= fromMS && a.Timestamp <= toMS {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *stubFlowStore) OrderbookDepth(_ context.Context, _ string, fromMS, toMS int64) ([]models.DepthPoint, error) {
	var out []models.DepthPoint
	for _, d := range s.depth {
		if d.Timestamp >= fromMS && d.Timestamp <= toMS {
			out = append(out, d)
		}
	}
	return out, nil
}

type stubConfigStore struct {
	configs map[int64]models.ThresholdConfig
}

func defaultConfigStore() *stubConfigStore {
	def := models.DefaultThresholdConfig()
	return &stubConfigStore{configs: map[int64]models.ThresholdConfig{def.ID: def}}
}

func (s *stubConfigStore) Get(_ context.Context, id int64) (models.ThresholdConfig, bool, error) {
	c, ok := s.configs[id]
	return c, ok, nil
}

func (s *stubConfigStore) Default(_ context.Context) (models.ThresholdConfig, bool, error) {
	for _, c := range s.configs {
		if c.IsDefault {
			return c, true, nil
		}
	}
	return models.ThresholdConfig{}, false, nil
}

func (s *stubConfigStore) List(_ context.Context) ([]models.ThresholdConfig, error) {
	out := make([]models.ThresholdConfig, 0, len(s.configs))
	for _, c := range s.configs {
		out = append(out, c)
	}
	return out, nil
}

func (s *stubConfigStore) Update(_ context.Context, id int64, patch models.ThresholdPatch) (models.ThresholdConfig, error) {
	c, ok := s.configs[id]
	if !ok {
		return models.ThresholdConfig{}, fmt.Errorf("%w: %d", domrepo.ErrConfigNotFound, id)
	}
	c = c.Apply(patch)
	s.configs[id] = c
	return c, nil
}

func quietLogger(t *testing.T) *logger.Logger {
	t.Helper()
	l, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stderr"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return l
}

func newService(t *testing.T, bars *stubBarStore, flow *stubFlowStore, cfgs domrepo.ConfigStore) *RegimeService {
	t.Helper()
	return NewRegimeService(cfgs, bars, NewFlowReader(flow), quietLogger(t))
}

// flatBars returns n identical bars ending at asOf, one per 5m bucket.
func flatBars(n int, price float64, asOf time.Time) []models.PriceBar {
	out := make([]models.PriceBar, n)
	for i := 0; i < n; i++ {
		out[i] = models.PriceBar{
			Bucket: asOf.Add(-time.Duration(n-i) * 5 * time.Minute),
			Open:   price, High: price, Low: price, Close: price, Volume: 1,
		}
	}
	return out
}

func TestClassifyNoConfigDegrades(t *testing.T) {
	svc := newService(t, &stubBarStore{}, &stubFlowStore{}, &stubConfigStore{configs: map[int64]models.ThresholdConfig{}})

	res, err := svc.Classify(context.Background(), ClassifyParams{Symbol: "BTC", Timeframe: "5m"})
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if res.Regime != models.RegimeNoise || res.Reason != "No regime config found" {
		t.Fatalf("got %q/%q", res.Regime, res.Reason)
	}
	if res.Direction != models.DirectionNeutral || res.Confidence != 0 {
		t.Fatalf("direction %q confidence %v", res.Direction, res.Confidence)
	}
}

func TestClassifyUnknownConfigIDDegrades(t *testing.T) {
	svc := newService(t, &stubBarStore{}, &stubFlowStore{}, defaultConfigStore())

	id := int64(42)
	res, err := svc.Classify(context.Background(), ClassifyParams{Symbol: "BTC", Timeframe: "5m", ConfigID: &id})
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if res.Reason != "No regime config found" {
		t.Fatalf("reason = %q", res.Reason)
	}
}

func TestClassifyUnsupportedTimeframeDegrades(t *testing.T) {
	svc := newService(t, &stubBarStore{}, &stubFlowStore{}, defaultConfigStore())

	res, err := svc.Classify(context.Background(), ClassifyParams{Symbol: "BTC", Timeframe: "7m"})
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if res.Regime != models.RegimeNoise || res.Reason != "Unsupported timeframe: 7m" {
		t.Fatalf("got %q/%q", res.Regime, res.Reason)
	}
}

func TestClassifyNoTradesDegrades(t *testing.T) {
	svc := newService(t, &stubBarStore{}, &stubFlowStore{}, defaultConfigStore())

	res, err := svc.Classify(context.Background(), ClassifyParams{Symbol: "BTC", Timeframe: "5m"})
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if res.Reason != "Insufficient market flow data" {
		t.Fatalf("reason = %q", res.Reason)
	}
}

// One-sided buy pressure over a flat tape: strong flow with no price response
// reads as absorption, and a single direction vote is not enough to commit.
func TestClassifyAbsorptionEndToEnd(t *testing.T) {
	asOf := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	asOfMS := asOf.UnixMilli()

	flow := &stubFlowStore{}
	for i := 0; i < 3; i++ {
		flow.trades = append(flow.trades, models.TradeAgg{
			Timestamp: asOfMS - int64(i)*5*60*1000,
			Buy:       1000,
			Sell:      0,
		})
	}
	bars := &stubBarStore{bars: flatBars(20, 100, asOf)}
	svc := newService(t, bars, flow, defaultConfigStore())

	res, err := svc.Classify(context.Background(), ClassifyParams{Symbol: "BTC", Timeframe: "5m", AsOf: asOf})
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if res.Regime != models.RegimeAbsorption {
		t.Fatalf("regime = %q, want absorption (reason %q)", res.Regime, res.Reason)
	}
	if res.Reason != "Strong flow absorbed without price movement" {
		t.Fatalf("reason = %q", res.Reason)
	}
	// cvd votes bullish but taker log and price are silent: one vote is neutral
	if res.Direction != models.DirectionNeutral {
		t.Fatalf("direction = %q, want neutral", res.Direction)
	}
	// only the cvd component contributes: 0.3 * min(1.0, 0.3)/0.3
	if res.Confidence != 0.3 {
		t.Fatalf("confidence = %v, want 0.3", res.Confidence)
	}
	if res.Indicators.CVDRatio != 1.0 {
		t.Fatalf("cvd_ratio = %v, want 1.0", res.Indicators.CVDRatio)
	}
	// one-sided flow keeps the log ratio at zero, reported as raw ratio 1
	if res.Indicators.TakerRatio != 1.0 {
		t.Fatalf("taker_ratio = %v, want 1.0", res.Indicators.TakerRatio)
	}
	if res.Indicators.RSI != 50.0 {
		t.Fatalf("rsi = %v, want 50.0", res.Indicators.RSI)
	}
	if res.Timestamp != asOfMS {
		t.Fatalf("timestamp = %d, want %d", res.Timestamp, asOfMS)
	}
}

// An empty request timeframe falls back to the service default, and a config
// without a rolling window falls back to the configured flow window.
func TestClassifyUsesConfiguredDefaults(t *testing.T) {
	def := models.DefaultThresholdConfig()
	def.RollingWindow = 0
	store := &stubConfigStore{configs: map[int64]models.ThresholdConfig{def.ID: def}}

	asOf := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	asOfMS := asOf.UnixMilli()
	hourMS := int64(60 * 60 * 1000)
	flow := &stubFlowStore{trades: []models.TradeAgg{
		// three 1h buckets back; only a window of at least 4 reaches it
		{Timestamp: asOfMS - 3*hourMS, Buy: 1000, Sell: 0},
	}}
	bars := &stubBarStore{bars: flatBars(20, 100, asOf)}

	svc := newService(t, bars, flow, store)
	svc.SetDefaults("1h", 4)

	res, err := svc.Classify(context.Background(), ClassifyParams{Symbol: "BTC", AsOf: asOf})
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if res.Timeframe != "1h" {
		t.Fatalf("timeframe = %q, want 1h", res.Timeframe)
	}
	if res.Reason == "Insufficient market flow data" {
		t.Fatal("flow window fallback was not applied")
	}
	if res.Indicators.CVDRatio != 1.0 {
		t.Fatalf("cvd_ratio = %v, want 1.0", res.Indicators.CVDRatio)
	}
}

// Rows timestamped after the as-of cutoff must never move the result, no
// matter how loud they are.
func TestClassifyIgnoresDataAfterAsOf(t *testing.T) {
	asOf := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	asOfMS := asOf.UnixMilli()

	flow := &stubFlowStore{}
	for i := 0; i < 3; i++ {
		flow.trades = append(flow.trades, models.TradeAgg{
			Timestamp: asOfMS - int64(i)*5*60*1000,
			Buy:       1000,
			Sell:      0,
		})
	}
	bars := &stubBarStore{bars: flatBars(20, 100, asOf)}
	svc := newService(t, bars, flow, defaultConfigStore())
	params := ClassifyParams{Symbol: "BTC", Timeframe: "5m", AsOf: asOf}

	baseline, err := svc.Classify(context.Background(), params)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}

	// Flood the stores with post-as-of data that would flip every signal.
	flow.trades = append(flow.trades, models.TradeAgg{Timestamp: asOfMS + 1000, Buy: 0, Sell: 50000})
	flow.assets = append(flow.assets,
		models.AssetMetricPoint{Timestamp: asOfMS + 1000, OpenInterest: 100},
		models.AssetMetricPoint{Timestamp: asOfMS + 5*60*1000, OpenInterest: 900},
	)
	bars.bars = append(bars.bars, models.PriceBar{
		Bucket: asOf.Add(5 * time.Minute),
		Open:   100, High: 250, Low: 95, Close: 240, Volume: 9999,
	})

	again, err := svc.Classify(context.Background(), params)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if !reflect.DeepEqual(baseline, again) {
		t.Fatalf("post-as-of rows changed the result:\nbefore %+v\nafter  %+v", baseline, again)
	}
}

// Same inputs, same output: classification has no hidden state.
func TestClassifyRepeatCallsIdentical(t *testing.T) {
	asOf := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	asOfMS := asOf.UnixMilli()

	flow := &stubFlowStore{
		trades: []models.TradeAgg{
			{Timestamp: asOfMS, Buy: 800, Sell: 300},
			{Timestamp: asOfMS - 5*60*1000, Buy: 600, Sell: 500},
		},
		assets: []models.AssetMetricPoint{
			{Timestamp: asOfMS - 5*60*1000, OpenInterest: 500},
			{Timestamp: asOfMS, OpenInterest: 520},
		},
	}
	bars := &stubBarStore{bars: flatBars(20, 100, asOf)}
	svc := newService(t, bars, flow, defaultConfigStore())
	params := ClassifyParams{Symbol: "ETH", Timeframe: "5m", AsOf: asOf}

	first, err := svc.Classify(context.Background(), params)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	for i := 0; i < 3; i++ {
		next, err := svc.Classify(context.Background(), params)
		if err != nil {
			t.Fatalf("classify #%d: %v", i+2, err)
		}
		if !reflect.DeepEqual(first, next) {
			t.Fatalf("call %d diverged:\nfirst %+v\nnext  %+v", i+2, first, next)
		}
	}
}

func TestClassifyBatchIsolatesFailures(t *testing.T) {
	asOf := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	flow := &stubFlowStore{failFor: "BAD"}
	svc := newService(t, &stubBarStore{}, flow, defaultConfigStore())

	res, err := svc.ClassifyBatch(context.Background(), []string{"BTC", "BAD", "ETH"}, ClassifyParams{Timeframe: "5m", AsOf: asOf})
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	if len(res.Results) != 2 {
		t.Fatalf("results = %d, want 2", len(res.Results))
	}
	if len(res.Errors) != 1 || res.Errors[0].Symbol != "BAD" {
		t.Fatalf("errors = %+v", res.Errors)
	}
}

func TestClassifyBatchEmptySymbols(t *testing.T) {
	svc := newService(t, &stubBarStore{}, &stubFlowStore{}, defaultConfigStore())
	if _, err := svc.ClassifyBatch(context.Background(), nil, ClassifyParams{}); err == nil {
		t.Fatal("expected error for empty symbols")
	}
}
