package models

// Analysis result statuses.
const (
	AnalysisOK           = "ok"
	AnalysisInsufficient = "insufficient_data"
	AnalysisError        = "error"
)

// AbsPercentiles are percentiles of the absolute metric value.
type AbsPercentiles struct {
	P75 float64 `json:"p75"`
	P90 float64 `json:"p90"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

// MetricStatistics summarizes one historical metric series.
type MetricStatistics struct {
	Mean           float64        `json:"mean"`
	Std            float64        `json:"std"`
	Min            float64        `json:"min"`
	Max            float64        `json:"max"`
	AbsPercentiles AbsPercentiles `json:"abs_percentiles"`
}

// ThresholdSuggestion is one suggested trigger level.
type ThresholdSuggestion struct {
	Threshold   float64 `json:"threshold"`
	Description string  `json:"description"`
	Recommended bool    `json:"recommended,omitempty"`
}

// ThresholdSuggestions groups the three suggested trigger tiers.
type ThresholdSuggestions struct {
	Aggressive   ThresholdSuggestion `json:"aggressive"`
	Moderate     ThresholdSuggestion `json:"moderate"`
	Conservative ThresholdSuggestion `json:"conservative"`
}

// RatioStatistics summarizes the ratio dimension of the taker_volume composite.
type RatioStatistics struct {
	Mean float64 `json:"mean"`
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	P75  float64 `json:"p75"`
	P90  float64 `json:"p90"`
	P95  float64 `json:"p95"`
}

// VolumeStatistics summarizes the volume dimension of the taker_volume composite.
type VolumeStatistics struct {
	Mean float64 `json:"mean"`
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	P25  float64 `json:"p25"`
	P50  float64 `json:"p50"`
	P75  float64 `json:"p75"`
}

// RatioTiers are the suggested ratio trigger levels for taker_volume.
type RatioTiers struct {
	Aggressive   float64 `json:"aggressive"`
	Moderate     float64 `json:"moderate"`
	Conservative float64 `json:"conservative"`
}

// VolumeTiers are the suggested volume floors for taker_volume.
type VolumeTiers struct {
	Low    float64 `json:"low"`
	Medium float64 `json:"medium"`
	High   float64 `json:"high"`
}

// CompositeSuggestions pairs a ratio trigger with a volume floor; a usable
// taker_volume signal must satisfy both.
type CompositeSuggestions struct {
	Ratio  RatioTiers  `json:"ratio"`
	Volume VolumeTiers `json:"volume"`
}

// AnalysisResult is the outcome of one metric analysis request.
// insufficient_data is a regular result shape, never an error.
type AnalysisResult struct {
	Status          string `json:"status"`
	Message         string `json:"message,omitempty"`
	Symbol          string `json:"symbol,omitempty"`
	Metric          string `json:"metric,omitempty"`
	Timeframe       string `json:"period,omitempty"`
	SampleCount     int    `json:"sample_count,omitempty"`
	RequiredSamples int    `json:"required_samples,omitempty"`

	TimeRangeHours float64               `json:"time_range_hours,omitempty"`
	Statistics     *MetricStatistics     `json:"statistics,omitempty"`
	Suggestions    *ThresholdSuggestions `json:"suggestions,omitempty"`

	// taker_volume composite only
	RatioStatistics      *RatioStatistics      `json:"ratio_statistics,omitempty"`
	VolumeStatistics     *VolumeStatistics     `json:"volume_statistics,omitempty"`
	CompositeSuggestions *CompositeSuggestions `json:"composite_suggestions,omitempty"`

	Warning string `json:"warning,omitempty"`
}
