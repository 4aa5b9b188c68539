package usecase

import (
	"context"
	"testing"
	"time"

	"PerpLens/internal/domain/models"
)

func TestSnapshotAggregatesWindow(t *testing.T) {
	asOf := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	asOfMS := asOf.UnixMilli()

	flow := &stubFlowStore{
		trades: []models.TradeAgg{
			{Timestamp: asOfMS, Buy: 300, Sell: 100},
			{Timestamp: asOfMS - fiveMinMS, Buy: 200, Sell: 150},
			// outside a 2-bucket window, must be ignored
			{Timestamp: asOfMS - 2*fiveMinMS, Buy: 9999, Sell: 9999},
		},
	}
	r := NewFlowReader(flow)

	snap, err := r.Snapshot(context.Background(), "BTC", "5m", 2, asOfMS)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if !snap.HasTrades {
		t.Fatal("expected HasTrades")
	}
	if snap.TakerBuy != 500 || snap.TakerSell != 250 {
		t.Fatalf("buy/sell = %v/%v, want 500/250", snap.TakerBuy, snap.TakerSell)
	}
	if snap.CVD != 250 {
		t.Fatalf("cvd = %v, want 250", snap.CVD)
	}
}

func TestSnapshotEmpty(t *testing.T) {
	r := NewFlowReader(&stubFlowStore{})
	snap, err := r.Snapshot(context.Background(), "BTC", "5m", 48, time.Now().UnixMilli())
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.HasTrades || snap.HasOI || snap.CVD != 0 {
		t.Fatalf("expected empty snapshot, got %+v", snap)
	}
}

func TestSnapshotUnsupportedTimeframe(t *testing.T) {
	r := NewFlowReader(&stubFlowStore{})
	if _, err := r.Snapshot(context.Background(), "BTC", "2m", 48, time.Now().UnixMilli()); err == nil {
		t.Fatal("expected error for unsupported timeframe")
	}
}

func TestOIDeltaLastTwoBuckets(t *testing.T) {
	base := int64(1700000100000)
	base -= base % fiveMinMS
	points := []models.AssetMetricPoint{
		{Timestamp: base, OpenInterest: 500},
		{Timestamp: base + fiveMinMS, OpenInterest: 550},
	}
	got, ok := oiDelta(points, fiveMinMS)
	if !ok {
		t.Fatal("expected a delta")
	}
	if got != 10 {
		t.Fatalf("delta = %v, want 10", got)
	}
}

func TestOIDeltaLastWriteWinsWithinBucket(t *testing.T) {
	base := int64(1700000100000)
	base -= base % fiveMinMS
	points := []models.AssetMetricPoint{
		{Timestamp: base, OpenInterest: 500},
		{Timestamp: base + fiveMinMS, OpenInterest: 100},
		// later sample in the same bucket replaces the 100
		{Timestamp: base + fiveMinMS + 1000, OpenInterest: 600},
	}
	got, ok := oiDelta(points, fiveMinMS)
	if !ok {
		t.Fatal("expected a delta")
	}
	if got != 20 {
		t.Fatalf("delta = %v, want 20", got)
	}
}

func TestOIDeltaZeroBucketsNotComparable(t *testing.T) {
	base := int64(1700000100000)
	base -= base % fiveMinMS
	points := []models.AssetMetricPoint{
		{Timestamp: base, OpenInterest: 0},
		{Timestamp: base + fiveMinMS, OpenInterest: 550},
	}
	if _, ok := oiDelta(points, fiveMinMS); ok {
		t.Fatal("zero bucket must not produce a delta")
	}
}

func TestOIDeltaSingleBucket(t *testing.T) {
	points := []models.AssetMetricPoint{{Timestamp: 1700000100000, OpenInterest: 500}}
	if _, ok := oiDelta(points, fiveMinMS); ok {
		t.Fatal("one bucket must not produce a delta")
	}
}
