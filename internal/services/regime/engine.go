package regime

import (
	"math"

	"PerpLens/internal/domain/models"
)

// Empirically tuned constants carried from the threshold calibration work.
// Review with a domain expert before changing any of them.
const (
	// cvdStrongScale maps the configured breakout_cvd_z level onto the
	// cvd_ratio scale (CVD divided by total notional, not a z-score).
	cvdStrongScale = 0.1
	// weakFlowDivisor derives the continuation flow floor from the strong one.
	weakFlowDivisor = 3.0
	// breakoutATRBoost raises the displacement bar above the configured level
	// so breakouts need a decisively larger candle than plain movement.
	breakoutATRBoost = 0.2
	// solidBodyRatio is the minimum body share of the bar range for a move to
	// count as a real breakout rather than a spike that reversed.
	solidBodyRatio = 0.4
	// takerLogFallback replaces the log taker bound when the configured ratio
	// is non-positive and cannot be log-transformed.
	takerLogFallback = 3.5
)

// Inputs is the indicator vector the engine classifies. TakerLogRatio is
// ln(buy/sell), zero when either side is non-positive. OIDelta is a percentage.
type Inputs struct {
	CVDRatio      float64
	TakerLogRatio float64
	OIDelta       float64
	PriceATR      float64
	PriceRangeATR float64
	RSI           float64
}

// features holds the per-call derived predicates shared across rules.
type features struct {
	in  Inputs
	cfg models.ThresholdConfig

	cvdStrong    bool
	cvdWeak      bool
	priceMove    bool
	aligned      bool
	takerExtreme bool
}

// rule is one guard in the ordered decision list. Evaluation is first-match
// top-down; the order itself is the tie-break policy, never reorder casually.
type rule struct {
	regime models.Regime
	match  func(f features) bool
	reason func(f features) string
}

var rules = []rule{
	{
		regime: models.RegimeStopHunt,
		match: func(f features) bool {
			return f.in.PriceRangeATR > f.cfg.StopHuntRangeATR &&
				math.Abs(f.in.PriceATR) < f.cfg.StopHuntCloseATR
		},
		reason: staticReason("Price spiked but closed near open"),
	},
	{
		regime: models.RegimeBreakout,
		match: func(f features) bool {
			if !f.cvdStrong || !f.aligned {
				return false
			}
			if math.Abs(f.in.PriceATR) <= f.cfg.BreakoutPriceATR+breakoutATRBoost {
				return false
			}
			// Long-shadow candles fail the solid-body check even with
			// strong flow; they belong to the spike family, not breakouts.
			bodyRatio := 1.0
			if f.in.PriceRangeATR > 0 {
				bodyRatio = math.Abs(f.in.PriceATR) / f.in.PriceRangeATR
			}
			if bodyRatio <= solidBodyRatio {
				return false
			}
			return f.takerExtreme || f.in.OIDelta > f.cfg.BreakoutOI
		},
		reason: directionalReason("breakout with aligned signals"),
	},
	{
		regime: models.RegimeExhaustion,
		match: func(f features) bool {
			return f.cvdStrong && f.in.OIDelta < f.cfg.TrapOI &&
				(f.in.RSI > f.cfg.ExhaustionRSIHigh || f.in.RSI < f.cfg.ExhaustionRSILow)
		},
		reason: staticReason("Trend exhaustion at RSI extreme"),
	},
	{
		regime: models.RegimeTrap,
		match: func(f features) bool {
			return f.cvdStrong && f.in.OIDelta < f.cfg.TrapOI
		},
		reason: staticReason("Strong flow but positions closing (trap)"),
	},
	{
		regime: models.RegimeAbsorption,
		match: func(f features) bool {
			return f.cvdStrong && !f.priceMove
		},
		reason: staticReason("Strong flow absorbed without price movement"),
	},
	{
		regime: models.RegimeContinuation,
		match: func(f features) bool {
			return f.cvdWeak && f.priceMove && f.aligned
		},
		reason: directionalReason("trend continuation"),
	},
}

func staticReason(s string) func(features) string {
	return func(features) string { return s }
}

func directionalReason(suffix string) func(features) string {
	return func(f features) string {
		if f.in.CVDRatio > 0 {
			return "Bullish " + suffix
		}
		return "Bearish " + suffix
	}
}

// Classify runs the ordered guard list over the indicator vector and returns
// the first matching regime with its reason. Falls through to noise.
func Classify(in Inputs, cfg models.ThresholdConfig) (models.Regime, string) {
	f := deriveFeatures(in, cfg)
	for _, r := range rules {
		if r.match(f) {
			return r.regime, r.reason(f)
		}
	}
	return models.RegimeNoise, "No clear market regime detected"
}

func deriveFeatures(in Inputs, cfg models.ThresholdConfig) features {
	strongFlow := cfg.BreakoutCVD * cvdStrongScale

	takerHigh := takerLogFallback
	if cfg.BreakoutTakerHigh > 0 {
		takerHigh = math.Log(cfg.BreakoutTakerHigh)
	}
	takerLow := -takerLogFallback
	if cfg.BreakoutTakerLow > 0 {
		takerLow = math.Log(cfg.BreakoutTakerLow)
	}

	return features{
		in:        in,
		cfg:       cfg,
		cvdStrong: math.Abs(in.CVDRatio) > strongFlow,
		cvdWeak:   math.Abs(in.CVDRatio) > strongFlow/weakFlowDivisor,
		priceMove: math.Abs(in.PriceATR) > cfg.AbsorptionPriceATR,
		aligned: (in.CVDRatio > 0 && in.PriceATR > 0) ||
			(in.CVDRatio < 0 && in.PriceATR < 0),
		takerExtreme: in.TakerLogRatio > takerHigh || in.TakerLogRatio < takerLow,
	}
}

// Direction is a majority vote over the three signed signals. A net vote of
// two or more decides; anything weaker stays neutral.
func Direction(cvdRatio, takerLogRatio, priceATR float64) models.Direction {
	votes := sign(cvdRatio) + sign(takerLogRatio) + sign(priceATR)
	switch {
	case votes >= 2:
		return models.DirectionBullish
	case votes <= -2:
		return models.DirectionBearish
	default:
		return models.DirectionNeutral
	}
}

func sign(v float64) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}

// Confidence is a saliency heuristic in [0,1], not a probability. Each
// indicator is capped at its typical magnitude before weighting.
func Confidence(cvdRatio, takerLogRatio, oiDelta, priceATR float64) float64 {
	score := 0.3*math.Min(math.Abs(cvdRatio), 0.3)/0.3 +
		0.2*math.Min(math.Abs(takerLogRatio), 1.0) +
		0.2*math.Min(math.Abs(oiDelta), 5.0)/5.0 +
		0.3*math.Min(math.Abs(priceATR), 2.0)/2.0
	return math.Max(0, math.Min(1, score))
}
