package models

// EventKind discriminates ingested market event records.
type EventKind string

const (
	EventTrade    EventKind = "trade"
	EventAssetCtx EventKind = "asset_ctx"
	EventDepth    EventKind = "depth"
	EventKline    EventKind = "kline"
)

// MarketEvent is one raw record from an exchange stream. Only the fields
// relevant to its Kind are populated.
type MarketEvent struct {
	Kind      EventKind `json:"kind"`
	Symbol    string    `json:"symbol"`
	Timestamp int64     `json:"ts"` // ms

	// EventTrade
	TakerBuyNotional  float64 `json:"taker_buy_notional,omitempty"`
	TakerSellNotional float64 `json:"taker_sell_notional,omitempty"`

	// EventAssetCtx
	OpenInterest float64  `json:"open_interest,omitempty"`
	FundingRate  *float64 `json:"funding_rate,omitempty"`

	// EventDepth
	BidDepth float64 `json:"bid_depth,omitempty"`
	AskDepth float64 `json:"ask_depth,omitempty"`

	// EventKline
	Bar *PriceBar `json:"bar,omitempty"`
}

// TradeAgg is an aggregated taker-flow record as stored (ms timestamp).
type TradeAgg struct {
	Timestamp int64
	Buy       float64
	Sell      float64
}

// AssetMetricPoint is a stored open-interest/funding sample (ms timestamp).
// FundingRate is nil when the venue did not report one.
type AssetMetricPoint struct {
	Timestamp    int64
	OpenInterest float64
	FundingRate  *float64
}

// DepthPoint is a stored top-of-book depth snapshot (ms timestamp).
type DepthPoint struct {
	Timestamp int64
	Bid       float64
	Ask       float64
}

// FlowSnapshot aggregates taker flow and open-interest change for the
// classifier over a rolling window ending at the as-of time.
type FlowSnapshot struct {
	CVD        float64 // taker buy minus sell notional over the window
	TakerBuy   float64
	TakerSell  float64
	OIDeltaPct float64 // percentage change between the last two OI buckets
	HasTrades  bool
	HasOI      bool
}
