package models

import "time"

// ThresholdConfig is a named, versioned bundle of regime trigger levels.
// Field names keep the historical `_z` wire suffix; the values are ratio
// thresholds, not z-scores.
type ThresholdConfig struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	IsDefault bool   `json:"is_default"`

	RollingWindow      int     `json:"rolling_window"`
	BreakoutCVD        float64 `json:"breakout_cvd_z"`
	BreakoutOI         float64 `json:"breakout_oi_z"`
	BreakoutPriceATR   float64 `json:"breakout_price_atr"`
	BreakoutTakerHigh  float64 `json:"breakout_taker_high"`
	BreakoutTakerLow   float64 `json:"breakout_taker_low"`
	AbsorptionCVD      float64 `json:"absorption_cvd_z"`
	AbsorptionPriceATR float64 `json:"absorption_price_atr"`
	TrapCVD            float64 `json:"trap_cvd_z"`
	TrapOI             float64 `json:"trap_oi_z"`
	ExhaustionCVD      float64 `json:"exhaustion_cvd_z"`
	ExhaustionRSIHigh  float64 `json:"exhaustion_rsi_high"`
	ExhaustionRSILow   float64 `json:"exhaustion_rsi_low"`
	StopHuntRangeATR   float64 `json:"stop_hunt_range_atr"`
	StopHuntCloseATR   float64 `json:"stop_hunt_close_atr"`
	NoiseCVD           float64 `json:"noise_cvd_z"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DefaultThresholdConfig returns the seeded default profile.
func DefaultThresholdConfig() ThresholdConfig {
	return ThresholdConfig{
		ID:                 1,
		Name:               "Default",
		IsDefault:          true,
		RollingWindow:      48,
		BreakoutCVD:        1.5,
		BreakoutOI:         0.1,
		BreakoutPriceATR:   0.3,
		BreakoutTakerHigh:  33.0,
		BreakoutTakerLow:   0.03,
		AbsorptionCVD:      1.5,
		AbsorptionPriceATR: 0.3,
		TrapCVD:            1.0,
		TrapOI:             -0.5,
		ExhaustionCVD:      1.0,
		ExhaustionRSIHigh:  70.0,
		ExhaustionRSILow:   30.0,
		StopHuntRangeATR:   1.0,
		StopHuntCloseATR:   0.3,
		NoiseCVD:           0.5,
	}
}

// ThresholdPatch is a merge-patch over ThresholdConfig: only non-nil fields
// are applied. Name and the default flag are not patchable in this scope.
type ThresholdPatch struct {
	RollingWindow      *int     `json:"rolling_window,omitempty"`
	BreakoutCVD        *float64 `json:"breakout_cvd_z,omitempty"`
	BreakoutOI         *float64 `json:"breakout_oi_z,omitempty"`
	BreakoutPriceATR   *float64 `json:"breakout_price_atr,omitempty"`
	BreakoutTakerHigh  *float64 `json:"breakout_taker_high,omitempty"`
	BreakoutTakerLow   *float64 `json:"breakout_taker_low,omitempty"`
	AbsorptionCVD      *float64 `json:"absorption_cvd_z,omitempty"`
	AbsorptionPriceATR *float64 `json:"absorption_price_atr,omitempty"`
	TrapCVD            *float64 `json:"trap_cvd_z,omitempty"`
	TrapOI             *float64 `json:"trap_oi_z,omitempty"`
	ExhaustionCVD      *float64 `json:"exhaustion_cvd_z,omitempty"`
	ExhaustionRSIHigh  *float64 `json:"exhaustion_rsi_high,omitempty"`
	ExhaustionRSILow   *float64 `json:"exhaustion_rsi_low,omitempty"`
	StopHuntRangeATR   *float64 `json:"stop_hunt_range_atr,omitempty"`
	StopHuntCloseATR   *float64 `json:"stop_hunt_close_atr,omitempty"`
	NoiseCVD           *float64 `json:"noise_cvd_z,omitempty"`
}

// Apply returns a copy of c with the patch's non-nil fields applied.
func (c ThresholdConfig) Apply(p ThresholdPatch) ThresholdConfig {
	if p.RollingWindow != nil {
		c.RollingWindow = *p.RollingWindow
	}
	if p.BreakoutCVD != nil {
		c.BreakoutCVD = *p.BreakoutCVD
	}
	if p.BreakoutOI != nil {
		c.BreakoutOI = *p.BreakoutOI
	}
	if p.BreakoutPriceATR != nil {
		c.BreakoutPriceATR = *p.BreakoutPriceATR
	}
	if p.BreakoutTakerHigh != nil {
		c.BreakoutTakerHigh = *p.BreakoutTakerHigh
	}
	if p.BreakoutTakerLow != nil {
		c.BreakoutTakerLow = *p.BreakoutTakerLow
	}
	if p.AbsorptionCVD != nil {
		c.AbsorptionCVD = *p.AbsorptionCVD
	}
	if p.AbsorptionPriceATR != nil {
		c.AbsorptionPriceATR = *p.AbsorptionPriceATR
	}
	if p.TrapCVD != nil {
		c.TrapCVD = *p.TrapCVD
	}
	if p.TrapOI != nil {
		c.TrapOI = *p.TrapOI
	}
	if p.ExhaustionCVD != nil {
		c.ExhaustionCVD = *p.ExhaustionCVD
	}
	if p.ExhaustionRSIHigh != nil {
		c.ExhaustionRSIHigh = *p.ExhaustionRSIHigh
	}
	if p.ExhaustionRSILow != nil {
		c.ExhaustionRSILow = *p.ExhaustionRSILow
	}
	if p.StopHuntRangeATR != nil {
		c.StopHuntRangeATR = *p.StopHuntRangeATR
	}
	if p.StopHuntCloseATR != nil {
		c.StopHuntCloseATR = *p.StopHuntCloseATR
	}
	if p.NoiseCVD != nil {
		c.NoiseCVD = *p.NoiseCVD
	}
	return c
}
