package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"PerpLens/internal/domain/models"
	domrepo "PerpLens/internal/domain/repository"
	icache "PerpLens/internal/service/cache"
	"PerpLens/internal/usecase"
	xlogger "PerpLens/pkg/logger"

	"github.com/labstack/echo/v4"
)

type fakeBarStore struct {
	bars []models.PriceBar
}

func (s *fakeBarStore) LatestBars(_ context.Context, symbol string, tf domrepo.Timeframe, limit int, asOf time.Time) ([]models.PriceBar, error) {
	out := make([]models.PriceBar, 0, len(s.bars))
	for _, b := range s.bars {
		if !b.Bucket.After(asOf) {
			out = append(out, b)
		}
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

type fakeFlowStore struct {
	trades []models.TradeAgg
	assets []models.AssetMetricPoint
	depth  []models.DepthPoint
}

func (s *fakeFlowStore) TradeAggregates(_ context.Context, _ string, fromMS, toMS int64) ([]models.TradeAgg, error) {
	var out []models.TradeAgg
	for _, t := range s.trades {
		if t.Timestamp >= fromMS && t.Timestamp <= toMS {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *fakeFlowStore) AssetMetrics(_ context.Context, _ string, fromMS, toMS int64) ([]models.AssetMetricPoint, error) {
	var out []models.AssetMetricPoint
	for _, a := range s.assets {
		if a.Timestamp >= fromMS && a.Timestamp <= toMS {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *fakeFlowStore) OrderbookDepth(_ context.Context, _ string, fromMS, toMS int64) ([]models.DepthPoint, error) {
	var out []models.DepthPoint
	for _, d := range s.depth {
		if d.Timestamp >= fromMS && d.Timestamp <= toMS {
			out = append(out, d)
		}
	}
	return out, nil
}

type fakeConfigStore struct {
	configs map[int64]models.ThresholdConfig
}

func newFakeConfigStore() *fakeConfigStore {
	def := models.DefaultThresholdConfig()
	return &fakeConfigStore{configs: map[int64]models.ThresholdConfig{def.ID: def}}
}

func (s *fakeConfigStore) Get(_ context.Context, id int64) (models.ThresholdConfig, bool, error) {
	c, ok := s.configs[id]
	return c, ok, nil
}

func (s *fakeConfigStore) Default(_ context.Context) (models.ThresholdConfig, bool, error) {
	for _, c := range s.configs {
		if c.IsDefault {
			return c, true, nil
		}
	}
	return models.ThresholdConfig{}, false, nil
}

func (s *fakeConfigStore) List(_ context.Context) ([]models.ThresholdConfig, error) {
	out := make([]models.ThresholdConfig, 0, len(s.configs))
	for _, c := range s.configs {
		out = append(out, c)
	}
	return out, nil
}

func (s *fakeConfigStore) Update(_ context.Context, id int64, patch models.ThresholdPatch) (models.ThresholdConfig, error) {
	c, ok := s.configs[id]
	if !ok {
		return models.ThresholdConfig{}, fmt.Errorf("%w: %d", domrepo.ErrConfigNotFound, id)
	}
	c = c.Apply(patch)
	s.configs[id] = c
	return c, nil
}

func testLogger(t *testing.T) *xlogger.Logger {
	t.Helper()
	log, err := xlogger.New(&xlogger.Config{Level: "error", Format: "json", Output: "stderr"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return log
}

func newTestHandler(t *testing.T, bars *fakeBarStore, flow *fakeFlowStore, cfgs domrepo.ConfigStore) (*Handler, *echo.Echo) {
	t.Helper()
	log := testLogger(t)
	reader := usecase.NewFlowReader(flow)
	regime := usecase.NewRegimeService(cfgs, bars, reader, log)
	analyzer := usecase.NewThresholdAnalyzer(flow, log)
	h := NewHandler(log, regime, analyzer, cfgs)
	e := echo.New()
	h.RegisterRoutes(e)
	return h, e
}

type envelope struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func doJSON(t *testing.T, e *echo.Echo, method, path string, body interface{}) envelope {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("unmarshal envelope: %v (body %q)", err, rec.Body.String())
	}
	return env
}

func TestClassifyDegradesWithoutFlowData(t *testing.T) {
	_, e := newTestHandler(t, &fakeBarStore{}, &fakeFlowStore{}, newFakeConfigStore())

	env := doJSON(t, e, http.MethodGet, "/api/market-regime/btc?timeframe=5m", nil)
	if env.Status != http.StatusOK {
		t.Fatalf("status = %d, want 200", env.Status)
	}
	var cls models.Classification
	if err := json.Unmarshal(env.Data, &cls); err != nil {
		t.Fatalf("unmarshal data: %v", err)
	}
	if cls.Symbol != "BTC" {
		t.Fatalf("symbol = %q, want BTC (uppercased)", cls.Symbol)
	}
	if cls.Regime != models.RegimeNoise {
		t.Fatalf("regime = %q, want noise", cls.Regime)
	}
	if cls.Reason != "Insufficient market flow data" {
		t.Fatalf("reason = %q", cls.Reason)
	}
	if cls.Confidence != 0 {
		t.Fatalf("confidence = %v, want 0", cls.Confidence)
	}
}

func TestClassifyUnsupportedTimeframeDegrades(t *testing.T) {
	_, e := newTestHandler(t, &fakeBarStore{}, &fakeFlowStore{}, newFakeConfigStore())

	env := doJSON(t, e, http.MethodGet, "/api/market-regime/BTC?timeframe=2m", nil)
	if env.Status != http.StatusOK {
		t.Fatalf("status = %d, want 200", env.Status)
	}
	var cls models.Classification
	if err := json.Unmarshal(env.Data, &cls); err != nil {
		t.Fatalf("unmarshal data: %v", err)
	}
	if cls.Regime != models.RegimeNoise || cls.Reason != "Unsupported timeframe: 2m" {
		t.Fatalf("got regime %q reason %q", cls.Regime, cls.Reason)
	}
}

func TestClassifyRejectsBadAsOf(t *testing.T) {
	_, e := newTestHandler(t, &fakeBarStore{}, &fakeFlowStore{}, newFakeConfigStore())

	env := doJSON(t, e, http.MethodGet, "/api/market-regime/BTC?as_of=yesterday", nil)
	if env.Status != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", env.Status)
	}
}

func TestClassifyBatchCoversAllSymbols(t *testing.T) {
	_, e := newTestHandler(t, &fakeBarStore{}, &fakeFlowStore{}, newFakeConfigStore())

	body := map[string]interface{}{"symbols": []string{"btc", "eth"}, "timeframe": "5m"}
	env := doJSON(t, e, http.MethodPost, "/api/market-regime/batch", body)
	if env.Status != http.StatusOK {
		t.Fatalf("status = %d, want 200", env.Status)
	}
	var batch models.BatchClassification
	if err := json.Unmarshal(env.Data, &batch); err != nil {
		t.Fatalf("unmarshal data: %v", err)
	}
	if len(batch.Results) != 2 {
		t.Fatalf("results = %d, want 2", len(batch.Results))
	}
	seen := map[string]bool{}
	for _, r := range batch.Results {
		seen[r.Symbol] = true
	}
	if !seen["BTC"] || !seen["ETH"] {
		t.Fatalf("missing symbols in results: %+v", batch.Results)
	}
	if len(batch.Errors) != 0 {
		t.Fatalf("unexpected errors: %+v", batch.Errors)
	}
}

func TestClassifyBatchRequiresSymbols(t *testing.T) {
	_, e := newTestHandler(t, &fakeBarStore{}, &fakeFlowStore{}, newFakeConfigStore())

	env := doJSON(t, e, http.MethodPost, "/api/market-regime/batch", map[string]interface{}{"symbols": []string{}})
	if env.Status != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", env.Status)
	}
}

func TestListConfigsReturnsDefault(t *testing.T) {
	_, e := newTestHandler(t, &fakeBarStore{}, &fakeFlowStore{}, newFakeConfigStore())

	env := doJSON(t, e, http.MethodGet, "/api/market-regime/configs", nil)
	if env.Status != http.StatusOK {
		t.Fatalf("status = %d, want 200", env.Status)
	}
	var list struct {
		Rows  []models.ThresholdConfig `json:"rows"`
		Total int64                    `json:"total"`
	}
	if err := json.Unmarshal(env.Data, &list); err != nil {
		t.Fatalf("unmarshal data: %v", err)
	}
	if list.Total != 1 || len(list.Rows) != 1 {
		t.Fatalf("total = %d rows = %d, want 1/1", list.Total, len(list.Rows))
	}
	if !list.Rows[0].IsDefault {
		t.Fatalf("expected default config, got %+v", list.Rows[0])
	}
}

func TestUpdateConfigAppliesPatch(t *testing.T) {
	cfgs := newFakeConfigStore()
	_, e := newTestHandler(t, &fakeBarStore{}, &fakeFlowStore{}, cfgs)

	def, _, _ := cfgs.Default(context.Background())
	body := map[string]interface{}{"breakout_cvd_z": 3.5}
	env := doJSON(t, e, http.MethodPut, fmt.Sprintf("/api/market-regime/configs/%d", def.ID), body)
	if env.Status != http.StatusOK {
		t.Fatalf("status = %d, want 200", env.Status)
	}
	var updated models.ThresholdConfig
	if err := json.Unmarshal(env.Data, &updated); err != nil {
		t.Fatalf("unmarshal data: %v", err)
	}
	if updated.BreakoutCVD != 3.5 {
		t.Fatalf("breakout cvd = %v, want 3.5", updated.BreakoutCVD)
	}

	after, _, _ := cfgs.Default(context.Background())
	if after.BreakoutCVD != 3.5 {
		t.Fatalf("store not updated: %v", after.BreakoutCVD)
	}
}

func TestUpdateConfigUnknownID(t *testing.T) {
	_, e := newTestHandler(t, &fakeBarStore{}, &fakeFlowStore{}, newFakeConfigStore())

	env := doJSON(t, e, http.MethodPut, "/api/market-regime/configs/999", map[string]interface{}{"noise_cvd_z": 0.5})
	if env.Status != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", env.Status)
	}
}

func TestAnalyzeUnknownMetric(t *testing.T) {
	_, e := newTestHandler(t, &fakeBarStore{}, &fakeFlowStore{}, newFakeConfigStore())

	env := doJSON(t, e, http.MethodGet, "/api/signal-analysis/BTC?metric=bogus", nil)
	if env.Status != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", env.Status)
	}
}

func TestAnalyzeInsufficientData(t *testing.T) {
	_, e := newTestHandler(t, &fakeBarStore{}, &fakeFlowStore{}, newFakeConfigStore())

	env := doJSON(t, e, http.MethodGet, "/api/signal-analysis/BTC?metric=cvd", nil)
	if env.Status != http.StatusOK {
		t.Fatalf("status = %d, want 200", env.Status)
	}
	var res models.AnalysisResult
	if err := json.Unmarshal(env.Data, &res); err != nil {
		t.Fatalf("unmarshal data: %v", err)
	}
	if res.Status != "insufficient_data" {
		t.Fatalf("status = %q, want insufficient_data", res.Status)
	}
}

func TestAnalyzeCVDWithHistory(t *testing.T) {
	now := time.Now().UTC()
	flow := &fakeFlowStore{}
	for i := 0; i < 20; i++ {
		ts := now.Add(-time.Duration(20-i) * 5 * time.Minute).UnixMilli()
		flow.trades = append(flow.trades, models.TradeAgg{Timestamp: ts, Buy: float64(100 + i*10), Sell: 100})
	}
	_, e := newTestHandler(t, &fakeBarStore{}, flow, newFakeConfigStore())

	env := doJSON(t, e, http.MethodGet, "/api/signal-analysis/BTC?metric=cvd&days=1", nil)
	if env.Status != http.StatusOK {
		t.Fatalf("status = %d, want 200", env.Status)
	}
	var res models.AnalysisResult
	if err := json.Unmarshal(env.Data, &res); err != nil {
		t.Fatalf("unmarshal data: %v", err)
	}
	if res.Status != "ok" {
		t.Fatalf("status = %q, want ok", res.Status)
	}
	if res.Statistics == nil || res.Suggestions == nil {
		t.Fatalf("expected statistics and suggestions, got %+v", res)
	}
	if !res.Suggestions.Moderate.Recommended {
		t.Fatalf("moderate tier should be recommended: %+v", res.Suggestions)
	}
}

func TestClassifyUsesCache(t *testing.T) {
	h, e := newTestHandler(t, &fakeBarStore{}, &fakeFlowStore{}, newFakeConfigStore())
	h.SetCache(icache.NewTTLCache())

	asOf := time.Now().UTC().Add(-time.Hour).Format(time.RFC3339)
	path := "/api/market-regime/BTC?as_of=" + asOf

	first := doJSON(t, e, http.MethodGet, path, nil)
	second := doJSON(t, e, http.MethodGet, path, nil)
	if first.Status != http.StatusOK || second.Status != http.StatusOK {
		t.Fatalf("statuses = %d/%d, want 200/200", first.Status, second.Status)
	}
	if !bytes.Equal(first.Data, second.Data) {
		t.Fatalf("cached response differs: %s vs %s", first.Data, second.Data)
	}
}

func TestHealthEndpoint(t *testing.T) {
	_, e := newTestHandler(t, &fakeBarStore{}, &fakeFlowStore{}, newFakeConfigStore())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d, want 200", rec.Code)
	}
}
