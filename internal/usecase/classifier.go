package usecase

import (
	"context"
	"fmt"
	"math"
	"time"

	"PerpLens/internal/domain/models"
	domrepo "PerpLens/internal/domain/repository"
	"PerpLens/internal/services/indicators"
	"PerpLens/internal/services/regime"
	"PerpLens/internal/services/stats"
	"PerpLens/pkg/logger"
)

// klineFetchLimit bounds the bar history pulled per classification. The
// indicator lookback needs 15 bars; the rest is smoothing runway.
const klineFetchLimit = 50

// Degradation reasons. Data problems classify as noise instead of failing.
const (
	reasonNoConfig         = "No regime config found"
	reasonInsufficientFlow = "Insufficient market flow data"
)

// RegimeService classifies the current market regime of a symbol/timeframe.
type RegimeService struct {
	configs    domrepo.ConfigStore
	bars       domrepo.BarStore
	flow       *FlowReader
	log        *logger.Logger
	defaultTF  domrepo.Timeframe
	flowWindow int
}

func NewRegimeService(configs domrepo.ConfigStore, bars domrepo.BarStore, flow *FlowReader, log *logger.Logger) *RegimeService {
	return &RegimeService{
		configs:   configs,
		bars:      bars,
		flow:      flow,
		log:       log,
		defaultTF: domrepo.DefaultTimeframe(),
	}
}

// SetDefaults overrides the timeframe applied when a request leaves it unset
// and the flow window applied when the active config has none.
func (s *RegimeService) SetDefaults(tf string, flowWindow int) {
	s.defaultTF = domrepo.NormalizeTimeframe(tf)
	if flowWindow > 0 {
		s.flowWindow = flowWindow
	}
}

type ClassifyParams struct {
	Symbol    string
	Timeframe string
	ConfigID  *int64 // nil = default config
	AsOf      time.Time
}

// Classify runs one regime classification. An error is returned only for
// infrastructure failures; missing config, unsupported timeframe, and missing
// flow data all degrade to a zero-confidence noise result.
func (s *RegimeService) Classify(ctx context.Context, p ClassifyParams) (*models.Classification, error) {
	if p.Symbol == "" {
		return nil, fmt.Errorf("symbol required")
	}
	if p.Timeframe == "" {
		p.Timeframe = string(s.defaultTF)
	}
	if p.AsOf.IsZero() {
		p.AsOf = time.Now().UTC()
	}
	asOfMS := p.AsOf.UnixMilli()

	cfg, ok, err := s.resolveConfig(ctx, p.ConfigID)
	if err != nil {
		return nil, fmt.Errorf("resolve config: %w", err)
	}
	if !ok {
		return degraded(p, asOfMS, reasonNoConfig), nil
	}

	tf := domrepo.Timeframe(p.Timeframe)
	if !domrepo.IsValidTimeframe(tf) {
		return degraded(p, asOfMS, fmt.Sprintf("Unsupported timeframe: %s", p.Timeframe)), nil
	}

	window := cfg.RollingWindow
	if window <= 0 {
		window = s.flowWindow
	}
	snap, err := s.flow.Snapshot(ctx, p.Symbol, tf, window, asOfMS)
	if err != nil {
		return nil, fmt.Errorf("flow snapshot: %w", err)
	}
	if !snap.HasTrades {
		return degraded(p, asOfMS, reasonInsufficientFlow), nil
	}

	cvdRatio := 0.0
	if total := snap.TakerBuy + snap.TakerSell; total > 0 {
		cvdRatio = snap.CVD / total
	}
	takerLog := 0.0
	if snap.TakerBuy > 0 && snap.TakerSell > 0 {
		takerLog = math.Log(snap.TakerBuy / snap.TakerSell)
	}
	oiDelta := snap.OIDeltaPct

	bars, err := s.bars.LatestBars(ctx, p.Symbol, tf, klineFetchLimit, p.AsOf)
	if err != nil {
		return nil, fmt.Errorf("latest bars: %w", err)
	}
	price := indicators.Compute(bars)

	in := regime.Inputs{
		CVDRatio:      cvdRatio,
		TakerLogRatio: takerLog,
		OIDelta:       oiDelta,
		PriceATR:      price.PriceATR,
		PriceRangeATR: price.PriceRangeATR,
		RSI:           price.RSI,
	}
	label, reason := regime.Classify(in, cfg)

	result := &models.Classification{
		Symbol:     p.Symbol,
		Timeframe:  p.Timeframe,
		Timestamp:  asOfMS,
		Regime:     label,
		Direction:  regime.Direction(cvdRatio, takerLog, price.PriceATR),
		Confidence: stats.Round(regime.Confidence(cvdRatio, takerLog, oiDelta, price.PriceATR), 3),
		Reason:     reason,
		Indicators: models.RegimeIndicators{
			CVDRatio:   stats.Round(cvdRatio, 4),
			OIDelta:    stats.Round(oiDelta, 3),
			TakerRatio: stats.Round(math.Exp(takerLog), 3),
			PriceATR:   stats.Round(price.PriceATR, 3),
			RSI:        stats.Round(price.RSI, 1),
		},
	}

	s.log.Debug("regime classified",
		logger.String("symbol", p.Symbol),
		logger.String("timeframe", p.Timeframe),
		logger.String("regime", string(result.Regime)),
		logger.Float64("confidence", result.Confidence),
	)
	return result, nil
}

// ClassifyBatch classifies many symbols against one shared config and as-of
// time. A failing symbol lands in Errors without aborting its siblings.
func (s *RegimeService) ClassifyBatch(ctx context.Context, symbols []string, p ClassifyParams) (*models.BatchClassification, error) {
	if len(symbols) == 0 {
		return nil, fmt.Errorf("symbols required")
	}
	if p.AsOf.IsZero() {
		p.AsOf = time.Now().UTC()
	}

	out := &models.BatchClassification{
		Results: make([]models.Classification, 0, len(symbols)),
		Errors:  []models.ClassificationError{},
	}
	for _, sym := range symbols {
		sp := p
		sp.Symbol = sym
		res, err := s.Classify(ctx, sp)
		if err != nil {
			s.log.Warn("batch symbol failed", logger.String("symbol", sym), logger.Error(err))
			out.Errors = append(out.Errors, models.ClassificationError{Symbol: sym, Error: err.Error()})
			continue
		}
		out.Results = append(out.Results, *res)
	}
	return out, nil
}

func (s *RegimeService) resolveConfig(ctx context.Context, id *int64) (models.ThresholdConfig, bool, error) {
	if id != nil {
		return s.configs.Get(ctx, *id)
	}
	return s.configs.Default(ctx)
}

func degraded(p ClassifyParams, asOfMS int64, reason string) *models.Classification {
	return &models.Classification{
		Symbol:     p.Symbol,
		Timeframe:  p.Timeframe,
		Timestamp:  asOfMS,
		Regime:     models.RegimeNoise,
		Direction:  models.DirectionNeutral,
		Confidence: 0,
		Reason:     reason,
	}
}
