package models

// Regime is a discrete label describing current market microstructure behavior.
type Regime string

const (
	RegimeStopHunt     Regime = "stop_hunt"
	RegimeBreakout     Regime = "breakout"
	RegimeExhaustion   Regime = "exhaustion"
	RegimeTrap         Regime = "trap"
	RegimeAbsorption   Regime = "absorption"
	RegimeContinuation Regime = "continuation"
	RegimeNoise        Regime = "noise"
)

// Direction is the voted trade direction of a classification.
type Direction string

const (
	DirectionBullish Direction = "bullish"
	DirectionBearish Direction = "bearish"
	DirectionNeutral Direction = "neutral"
)

// RegimeIndicators is the indicator snapshot attached to a classification.
// taker_ratio is reported as the raw buy/sell ratio, not its log.
type RegimeIndicators struct {
	CVDRatio   float64 `json:"cvd_ratio"`
	OIDelta    float64 `json:"oi_delta"`
	TakerRatio float64 `json:"taker_ratio"`
	PriceATR   float64 `json:"price_atr"`
	RSI        float64 `json:"rsi"`
}

// Classification is the result of one regime classification call.
// It is a pure function result and is never persisted.
type Classification struct {
	Symbol     string           `json:"symbol"`
	Timeframe  string           `json:"timeframe"`
	Timestamp  int64            `json:"timestamp_ms"`
	Regime     Regime           `json:"regime"`
	Direction  Direction        `json:"direction"`
	Confidence float64          `json:"confidence"`
	Reason     string           `json:"reason"`
	Indicators RegimeIndicators `json:"indicators"`
}

// ClassificationError reports a per-symbol failure inside a batch call.
type ClassificationError struct {
	Symbol string `json:"symbol"`
	Error  string `json:"error"`
}

// BatchClassification is the result of classifying many symbols at once.
// One symbol's failure never aborts its siblings.
type BatchClassification struct {
	Results []Classification      `json:"results"`
	Errors  []ClassificationError `json:"errors"`
}
