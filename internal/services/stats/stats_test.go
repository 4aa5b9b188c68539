package stats

import (
	"math"
	"testing"
)

func TestFloorTimestamp(t *testing.T) {
	cases := []struct {
		ts, interval, want int64
	}{
		{1_700_000_123_456, 300_000, 1_700_000_100_000},
		{1_700_000_100_000, 300_000, 1_700_000_100_000},
		{59_999, 60_000, 0},
		{60_000, 60_000, 60_000},
		{123, 0, 123},
	}
	for _, c := range cases {
		if got := FloorTimestamp(c.ts, c.interval); got != c.want {
			t.Fatalf("FloorTimestamp(%d, %d) = %d, want %d", c.ts, c.interval, got, c.want)
		}
	}
}

func TestPercentileLinearInterpolation(t *testing.T) {
	vals := []float64{1, 2, 3, 4}
	cases := []struct {
		q, want float64
	}{
		{0, 1},
		{25, 1.75},
		{50, 2.5},
		{75, 3.25},
		{100, 4},
	}
	for _, c := range cases {
		if got := Percentile(vals, c.q); math.Abs(got-c.want) > 1e-9 {
			t.Fatalf("Percentile(%v) = %v, want %v", c.q, got, c.want)
		}
	}
}

func TestPercentileSingleValue(t *testing.T) {
	if got := Percentile([]float64{7}, 90); got != 7 {
		t.Fatalf("single-element percentile should be the element, got %v", got)
	}
	if got := Percentile(nil, 50); got != 0 {
		t.Fatalf("empty input should yield 0, got %v", got)
	}
}

func TestPercentileDoesNotMutateInput(t *testing.T) {
	vals := []float64{3, 1, 2}
	Percentile(vals, 50)
	if vals[0] != 3 || vals[1] != 1 || vals[2] != 2 {
		t.Fatalf("input slice mutated: %v", vals)
	}
}

func TestSummarizePopulationStd(t *testing.T) {
	s := Summarize([]float64{2, 4, 4, 4, 5, 5, 7, 9}, 4)
	if s.Mean != 5 {
		t.Fatalf("mean: got %v want 5", s.Mean)
	}
	// Population std of this classic series is exactly 2.
	if s.Std != 2 {
		t.Fatalf("std: got %v want 2 (population, divisor N)", s.Std)
	}
	if s.Min != 2 || s.Max != 9 {
		t.Fatalf("min/max: got %v/%v", s.Min, s.Max)
	}
}

func TestSummarizeAbsPercentiles(t *testing.T) {
	// Mixed-sign series: percentiles are over absolute values.
	s := Summarize([]float64{-4, -2, 1, 3}, 4)
	if s.Min != -4 || s.Max != 3 {
		t.Fatalf("min/max keep signs: got %v/%v", s.Min, s.Max)
	}
	// abs values sorted: 1, 2, 3, 4
	if math.Abs(s.AbsPercentiles.P75-3.25) > 1e-9 {
		t.Fatalf("p75 over abs values: got %v want 3.25", s.AbsPercentiles.P75)
	}
}

func TestSuggestTiers(t *testing.T) {
	s := Summarize([]float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, 4)
	sg := Suggest(s)
	if sg.Aggressive.Threshold != s.AbsPercentiles.P75 {
		t.Fatalf("aggressive tier must be p75")
	}
	if sg.Moderate.Threshold != s.AbsPercentiles.P90 || !sg.Moderate.Recommended {
		t.Fatalf("moderate tier must be p90 and recommended")
	}
	if sg.Conservative.Threshold != s.AbsPercentiles.P95 {
		t.Fatalf("conservative tier must be p95")
	}
	if sg.Aggressive.Recommended || sg.Conservative.Recommended {
		t.Fatalf("only the moderate tier is recommended")
	}
}

func TestRound(t *testing.T) {
	if got := Round(0.00125456, 6); got != 0.001255 {
		t.Fatalf("6dp rounding: got %v", got)
	}
	if got := Round(1234.56, 0); got != 1235 {
		t.Fatalf("0dp rounding: got %v", got)
	}
	if got := Round(-0.12345, 3); got != -0.123 {
		t.Fatalf("negative rounding: got %v", got)
	}
}

func TestSummarizeVolumesWholeNumbers(t *testing.T) {
	v := SummarizeVolumes([]float64{100.4, 200.6, 300.5})
	if v.Min != 100 || v.Max != 301 {
		t.Fatalf("volume stats round to whole numbers: got %+v", v)
	}
	if v.P50 != 201 {
		t.Fatalf("median volume: got %v want 201", v.P50)
	}
}
