package indicators

import (
	"PerpLens/internal/domain/models"
)

// DefaultPeriod is the lookback used for the volatility and momentum units.
const DefaultPeriod = 14

// PriceMetrics are the volatility-normalized price features consumed by the
// regime classifier.
type PriceMetrics struct {
	PriceATR      float64 // (close - open) / ATR of the latest bar
	PriceRangeATR float64 // (high - low) / ATR of the latest bar
	RSI           float64
}

// NeutralMetrics are the defaults returned when the bar series is too short.
// They route the caller toward a low-confidence noise outcome instead of an error.
func NeutralMetrics() PriceMetrics {
	return PriceMetrics{PriceATR: 0, PriceRangeATR: 0, RSI: 50}
}

// Compute derives PriceMetrics from an ascending bar series. A 14-period
// lookback needs at least 15 bars; shorter series yield NeutralMetrics.
func Compute(bars []models.PriceBar) PriceMetrics {
	if len(bars) < DefaultPeriod+1 {
		return NeutralMetrics()
	}

	atr := ATR(bars, DefaultPeriod)
	rsi := RSI(bars, DefaultPeriod)
	if atr <= 0 {
		m := NeutralMetrics()
		m.RSI = rsi
		return m
	}

	last := bars[len(bars)-1]
	return PriceMetrics{
		PriceATR:      (last.Close - last.Open) / atr,
		PriceRangeATR: (last.High - last.Low) / atr,
		RSI:           rsi,
	}
}

// ATR computes the Wilder-smoothed average true range over the series.
// Returns 0 when fewer than period+1 bars are available.
func ATR(bars []models.PriceBar, period int) float64 {
	if period <= 0 || len(bars) < period+1 {
		return 0
	}

	// True ranges need a previous close, so they start at index 1.
	trs := make([]float64, 0, len(bars)-1)
	for i := 1; i < len(bars); i++ {
		trs = append(trs, trueRange(bars[i], bars[i-1].Close))
	}

	atr := 0.0
	for _, tr := range trs[:period] {
		atr += tr
	}
	atr /= float64(period)

	for _, tr := range trs[period:] {
		atr = (atr*float64(period-1) + tr) / float64(period)
	}
	return atr
}

func trueRange(b models.PriceBar, prevClose float64) float64 {
	tr := b.High - b.Low
	if d := abs(b.High - prevClose); d > tr {
		tr = d
	}
	if d := abs(b.Low - prevClose); d > tr {
		tr = d
	}
	return tr
}

// RSI computes the Wilder-smoothed relative strength index over the series.
// Returns the neutral 50 when fewer than period+1 bars are available or the
// series never moved.
func RSI(bars []models.PriceBar, period int) float64 {
	if period <= 0 || len(bars) < period+1 {
		return 50
	}

	var gains, losses float64
	for i := 1; i <= period; i++ {
		change := bars[i].Close - bars[i-1].Close
		if change > 0 {
			gains += change
		} else {
			losses -= change
		}
	}
	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)

	for i := period + 1; i < len(bars); i++ {
		change := bars[i].Close - bars[i-1].Close
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
	}

	if avgLoss == 0 {
		if avgGain == 0 {
			return 50
		}
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
