package models

import "time"

// PriceBar represents one OHLCV record for a (symbol, timeframe) bucket.
// Bars are immutable once recorded and ordered ascending by bucket time.
type PriceBar struct {
	Bucket    time.Time `json:"bucket"`
	Symbol    string    `json:"symbol"`
	Timeframe string    `json:"timeframe"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}
