package regime

import (
	"math"
	"testing"

	"PerpLens/internal/domain/models"
)

func defCfg() models.ThresholdConfig {
	return models.DefaultThresholdConfig()
}

func TestClassifyStopHuntBeatsBreakout(t *testing.T) {
	// Wide range with small body trips stop_hunt even with breakout-grade flow.
	in := Inputs{
		CVDRatio:      0.25,
		TakerLogRatio: 4.0,
		OIDelta:       1.0,
		PriceATR:      0.2,
		PriceRangeATR: 2.0,
		RSI:           55,
	}
	r, reason := Classify(in, defCfg())
	if r != models.RegimeStopHunt {
		t.Fatalf("expected stop_hunt, got %s (%s)", r, reason)
	}
	if reason != "Price spiked but closed near open" {
		t.Fatalf("unexpected reason %q", reason)
	}
}

func TestClassifyBreakoutBullish(t *testing.T) {
	in := Inputs{
		CVDRatio:      0.22,
		TakerLogRatio: 0.5,
		OIDelta:       0.5,
		PriceATR:      2.0,
		PriceRangeATR: 2.5,
		RSI:           60,
	}
	r, reason := Classify(in, defCfg())
	if r != models.RegimeBreakout {
		t.Fatalf("expected breakout, got %s (%s)", r, reason)
	}
	if reason != "Bullish breakout with aligned signals" {
		t.Fatalf("unexpected reason %q", reason)
	}
}

func TestClassifyBreakoutBearishByTakerExtreme(t *testing.T) {
	in := Inputs{
		CVDRatio:      -0.3,
		TakerLogRatio: -3.6, // below ln(0.03)
		OIDelta:       0.0,  // no OI confirmation, taker must carry it
		PriceATR:      -1.0,
		PriceRangeATR: 1.2,
		RSI:           40,
	}
	r, reason := Classify(in, defCfg())
	if r != models.RegimeBreakout {
		t.Fatalf("expected breakout, got %s (%s)", r, reason)
	}
	if reason != "Bearish breakout with aligned signals" {
		t.Fatalf("unexpected reason %q", reason)
	}
}

func TestClassifyBreakoutRejectsLongShadow(t *testing.T) {
	// Body is only a third of the range; falls through past breakout.
	in := Inputs{
		CVDRatio:      0.22,
		TakerLogRatio: 0.5,
		OIDelta:       0.5,
		PriceATR:      0.6,
		PriceRangeATR: 1.8,
		RSI:           60,
	}
	r, _ := Classify(in, defCfg())
	if r == models.RegimeBreakout {
		t.Fatal("long-shadow candle must not classify as breakout")
	}
}

func TestClassifyExhaustionOverTrap(t *testing.T) {
	in := Inputs{
		CVDRatio:      0.2,
		OIDelta:       -1.0,
		PriceATR:      0.1,
		PriceRangeATR: 0.5,
		RSI:           75,
	}
	r, reason := Classify(in, defCfg())
	if r != models.RegimeExhaustion {
		t.Fatalf("expected exhaustion, got %s (%s)", r, reason)
	}

	in.RSI = 55
	r, reason = Classify(in, defCfg())
	if r != models.RegimeTrap {
		t.Fatalf("expected trap when RSI is not extreme, got %s (%s)", r, reason)
	}
	if reason != "Strong flow but positions closing (trap)" {
		t.Fatalf("unexpected reason %q", reason)
	}
}

func TestClassifyAbsorption(t *testing.T) {
	in := Inputs{
		CVDRatio:      0.2,
		OIDelta:       0.1,
		PriceATR:      0.1,
		PriceRangeATR: 0.4,
		RSI:           50,
	}
	r, reason := Classify(in, defCfg())
	if r != models.RegimeAbsorption {
		t.Fatalf("expected absorption, got %s (%s)", r, reason)
	}
	if reason != "Strong flow absorbed without price movement" {
		t.Fatalf("unexpected reason %q", reason)
	}
}

func TestClassifyContinuation(t *testing.T) {
	// Flow above the weak floor (0.05) but below strong (0.15), aligned with movement.
	in := Inputs{
		CVDRatio:      -0.08,
		TakerLogRatio: -0.3,
		OIDelta:       0.0,
		PriceATR:      -0.6,
		PriceRangeATR: 0.8,
		RSI:           45,
	}
	r, reason := Classify(in, defCfg())
	if r != models.RegimeContinuation {
		t.Fatalf("expected continuation, got %s (%s)", r, reason)
	}
	if reason != "Bearish trend continuation" {
		t.Fatalf("unexpected reason %q", reason)
	}
}

func TestClassifyNoiseDefault(t *testing.T) {
	r, reason := Classify(Inputs{RSI: 50}, defCfg())
	if r != models.RegimeNoise {
		t.Fatalf("expected noise, got %s", r)
	}
	if reason != "No clear market regime detected" {
		t.Fatalf("unexpected reason %q", reason)
	}
}

func TestClassifyTotality(t *testing.T) {
	// Every grid point must land on some regime; the engine never errors.
	vals := []float64{-0.3, -0.05, 0, 0.05, 0.3}
	atrs := []float64{-2.5, -0.4, 0, 0.4, 2.5}
	ois := []float64{-1, 0, 1}
	cfg := defCfg()
	for _, cvd := range vals {
		for _, atr := range atrs {
			for _, oi := range ois {
				in := Inputs{CVDRatio: cvd, OIDelta: oi, PriceATR: atr, PriceRangeATR: math.Abs(atr) + 0.1, RSI: 50}
				r, reason := Classify(in, cfg)
				if r == "" || reason == "" {
					t.Fatalf("empty classification for %+v", in)
				}
			}
		}
	}
}

func TestClassifyTakerFallbackBounds(t *testing.T) {
	cfg := defCfg()
	cfg.BreakoutTakerHigh = 0
	cfg.BreakoutTakerLow = -1

	// 3.4 sits inside the ±3.5 fallback band, so with no OI expansion the
	// breakout confirmation fails and the bar reads as continuation.
	in := Inputs{
		CVDRatio:      0.22,
		TakerLogRatio: 3.4,
		OIDelta:       0.05,
		PriceATR:      1.0,
		PriceRangeATR: 1.2,
		RSI:           50,
	}
	if r, _ := Classify(in, cfg); r != models.RegimeContinuation {
		t.Fatalf("expected continuation inside fallback band, got %s", r)
	}

	in.TakerLogRatio = 3.6
	if r, _ := Classify(in, cfg); r != models.RegimeBreakout {
		t.Fatalf("expected breakout beyond fallback band, got %s", r)
	}
}

func TestDirectionVote(t *testing.T) {
	cases := []struct {
		cvd, taker, atr float64
		want            models.Direction
	}{
		{0.1, 0.5, 1.0, models.DirectionBullish},
		{0.1, 0.5, -1.0, models.DirectionBullish},
		{-0.1, -0.5, 1.0, models.DirectionBearish},
		{-0.1, -0.5, -1.0, models.DirectionBearish},
		{0.1, -0.5, 0, models.DirectionNeutral},
		{0, 0, 0, models.DirectionNeutral},
		{0.1, 0, 0, models.DirectionNeutral},
	}
	for _, c := range cases {
		if got := Direction(c.cvd, c.taker, c.atr); got != c.want {
			t.Fatalf("Direction(%v, %v, %v) = %s, want %s", c.cvd, c.taker, c.atr, got, c.want)
		}
	}
}

func TestConfidenceClamped(t *testing.T) {
	if c := Confidence(0, 0, 0, 0); c != 0 {
		t.Fatalf("zero vector should score 0, got %v", c)
	}
	if c := Confidence(10, 10, 100, 10); math.Abs(c-1.0) > 1e-9 {
		t.Fatalf("saturated vector should score 1, got %v", c)
	}
}

func TestConfidenceWeights(t *testing.T) {
	// Each component at exactly its cap contributes its weight.
	got := Confidence(0.3, 0, 0, 0)
	if math.Abs(got-0.3) > 1e-9 {
		t.Fatalf("cvd component: got %v want 0.3", got)
	}
	got = Confidence(0, 1.0, 0, 0)
	if math.Abs(got-0.2) > 1e-9 {
		t.Fatalf("taker component: got %v want 0.2", got)
	}
	got = Confidence(0, 0, 2.5, 0)
	if math.Abs(got-0.1) > 1e-9 {
		t.Fatalf("oi component at half cap: got %v want 0.1", got)
	}
	got = Confidence(0, 0, 0, 1.0)
	if math.Abs(got-0.15) > 1e-9 {
		t.Fatalf("price component at half cap: got %v want 0.15", got)
	}
}
