package stats

import (
	"math"
	"sort"

	"PerpLens/internal/domain/models"
)

// FloorTimestamp aligns a millisecond timestamp down to its bucket boundary.
func FloorTimestamp(tsMS, intervalMS int64) int64 {
	if intervalMS <= 0 {
		return tsMS
	}
	return tsMS - tsMS%intervalMS
}

// Round rounds to the given number of decimal places, half away from zero.
func Round(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}

// Percentile computes the q-th percentile (0..100) with linear interpolation
// between closest ranks, matching the numpy default. Panics-free: an empty
// input returns 0.
func Percentile(values []float64, q float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	rank := q / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo < 0 {
		lo = 0
	}
	if hi >= len(sorted) {
		hi = len(sorted) - 1
	}
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

func mean(values []float64) float64 {
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// stddev is the population standard deviation (divisor N, not N-1).
func stddev(values []float64, mu float64) float64 {
	if len(values) == 0 {
		return 0
	}
	ss := 0.0
	for _, v := range values {
		d := v - mu
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(values)))
}

// Summarize builds the statistical summary of a metric series rounded to the
// given precision. Percentiles are taken over absolute values so that
// two-sided signals produce one-sided trigger levels.
func Summarize(values []float64, precision int) models.MetricStatistics {
	absVals := make([]float64, len(values))
	for i, v := range values {
		absVals[i] = math.Abs(v)
	}

	mu := mean(values)
	minV, maxV := values[0], values[0]
	for _, v := range values[1:] {
		if v < minV {
			minV = v
		}
		if v > maxV {
			maxV = v
		}
	}

	return models.MetricStatistics{
		Mean: Round(mu, precision),
		Std:  Round(stddev(values, mu), precision),
		Min:  Round(minV, precision),
		Max:  Round(maxV, precision),
		AbsPercentiles: models.AbsPercentiles{
			P75: Round(Percentile(absVals, 75), precision),
			P90: Round(Percentile(absVals, 90), precision),
			P95: Round(Percentile(absVals, 95), precision),
			P99: Round(Percentile(absVals, 99), precision),
		},
	}
}

// Suggest maps the absolute-value percentiles onto the three trigger tiers.
// The moderate tier is the recommended starting point.
func Suggest(s models.MetricStatistics) models.ThresholdSuggestions {
	return models.ThresholdSuggestions{
		Aggressive: models.ThresholdSuggestion{
			Threshold:   s.AbsPercentiles.P75,
			Description: "~25% trigger rate",
		},
		Moderate: models.ThresholdSuggestion{
			Threshold:   s.AbsPercentiles.P90,
			Description: "~10% trigger rate",
			Recommended: true,
		},
		Conservative: models.ThresholdSuggestion{
			Threshold:   s.AbsPercentiles.P95,
			Description: "~5% trigger rate",
		},
	}
}

// SummarizeRatios produces the fixed 2dp summary used by the taker_volume
// composite's ratio dimension.
func SummarizeRatios(ratios []float64) models.RatioStatistics {
	return models.RatioStatistics{
		Mean: Round(mean(ratios), 2),
		Min:  Round(minOf(ratios), 2),
		Max:  Round(maxOf(ratios), 2),
		P75:  Round(Percentile(ratios, 75), 2),
		P90:  Round(Percentile(ratios, 90), 2),
		P95:  Round(Percentile(ratios, 95), 2),
	}
}

// SummarizeVolumes produces the whole-number summary used by the taker_volume
// composite's notional dimension.
func SummarizeVolumes(volumes []float64) models.VolumeStatistics {
	return models.VolumeStatistics{
		Mean: Round(mean(volumes), 0),
		Min:  Round(minOf(volumes), 0),
		Max:  Round(maxOf(volumes), 0),
		P25:  Round(Percentile(volumes, 25), 0),
		P50:  Round(Percentile(volumes, 50), 0),
		P75:  Round(Percentile(volumes, 75), 0),
	}
}

func minOf(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

func maxOf(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		if v > m {
			m = v
		}
	}
	return m
}
