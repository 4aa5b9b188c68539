package repository

// Timeframe represents a kline/bucket resolution.
type Timeframe string

const (
	TF1m  Timeframe = "1m"
	TF3m  Timeframe = "3m"
	TF5m  Timeframe = "5m"
	TF15m Timeframe = "15m"
	TF30m Timeframe = "30m"
	TF1h  Timeframe = "1h"
	TF4h  Timeframe = "4h"
	TF1d  Timeframe = "1d"
)

// timeframeMS maps supported timeframes to their bucket width in milliseconds.
var timeframeMS = map[Timeframe]int64{
	TF1m:  60_000,
	TF3m:  180_000,
	TF5m:  300_000,
	TF15m: 900_000,
	TF30m: 1_800_000,
	TF1h:  3_600_000,
	TF4h:  14_400_000,
	TF1d:  86_400_000,
}

// IntervalMS returns the bucket width in milliseconds, or false when tf is unsupported.
func IntervalMS(tf Timeframe) (int64, bool) {
	ms, ok := timeframeMS[tf]
	return ms, ok
}

// IsValidTimeframe returns true if tf is a supported timeframe.
func IsValidTimeframe(tf Timeframe) bool {
	_, ok := timeframeMS[tf]
	return ok
}

// DefaultTimeframe returns the default classification timeframe.
func DefaultTimeframe() Timeframe { return TF5m }

// NormalizeTimeframe converts a raw string to a valid timeframe (or default).
func NormalizeTimeframe(s string) Timeframe {
	if s == "" {
		return DefaultTimeframe()
	}
	tf := Timeframe(s)
	if IsValidTimeframe(tf) {
		return tf
	}
	return DefaultTimeframe()
}
