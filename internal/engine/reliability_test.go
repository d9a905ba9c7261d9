package engine

import (
	"math"
	"testing"
	"time"
)

func TestResolveRisingSeries(t *testing.T) {
	h := NewHistory(100, 24*time.Hour)
	base := int64(100 * 3_600_000)
	// price rises monotonically past the horizon mark
	for i := int64(0); i <= 40; i++ {
		h.Append(mkSnap(base+i*minuteMs, 4000+float64(i)))
	}

	tr := NewTracker()
	tr.Record(PendingPrediction{TimestampMs: base, BasePrice: 4000, PUp: 0.7})

	resolved := tr.Resolve(h, 30, base+40*minuteMs)
	if len(resolved) != 1 {
		t.Fatalf("resolved %d predictions, want 1", len(resolved))
	}
	r := resolved[0]
	if !r.ActualUp || !r.PredictedUp || !r.Correct {
		t.Errorf("resolution flags wrong: %+v", r)
	}
	if math.Abs(r.Brier-0.09) > 1e-9 {
		t.Errorf("brier = %v, want (0.7-1)^2 = 0.09", r.Brier)
	}

	m := tr.Metrics()
	if m.Total != 1 || m.Correct != 1 {
		t.Errorf("metrics = %+v, want total=1 correct=1", m)
	}
	if math.Abs(m.BrierSum-0.09) > 1e-9 {
		t.Errorf("brierSum = %v, want 0.09", m.BrierSum)
	}
}

func TestResolveWaitsForHorizon(t *testing.T) {
	h := NewHistory(100, 24*time.Hour)
	base := int64(100 * 3_600_000)
	for i := int64(0); i <= 10; i++ {
		h.Append(mkSnap(base+i*minuteMs, 4000))
	}

	tr := NewTracker()
	tr.Record(PendingPrediction{TimestampMs: base, BasePrice: 4000, PUp: 0.6})

	// horizon 30min, only 10min of data: stays pending indefinitely
	if resolved := tr.Resolve(h, 30, base+10*minuteMs); len(resolved) != 0 {
		t.Fatalf("resolved early: %+v", resolved)
	}
	if tr.PendingCount() != 1 {
		t.Errorf("pending = %d, want 1", tr.PendingCount())
	}
	if _, ok := tr.Metrics().HitRate(); ok {
		t.Error("hit rate must be undefined with zero resolutions")
	}
}

func TestResolveWrongDirection(t *testing.T) {
	h := NewHistory(100, 24*time.Hour)
	base := int64(100 * 3_600_000)
	for i := int64(0); i <= 40; i++ {
		h.Append(mkSnap(base+i*minuteMs, 4000-float64(i)))
	}

	tr := NewTracker()
	tr.Record(PendingPrediction{TimestampMs: base, BasePrice: 4000, PUp: 0.8})

	resolved := tr.Resolve(h, 30, base+40*minuteMs)
	if len(resolved) != 1 {
		t.Fatalf("resolved %d, want 1", len(resolved))
	}
	if resolved[0].Correct {
		t.Error("up call on a falling series must be incorrect")
	}
	m := tr.Metrics()
	if hr, ok := m.HitRate(); !ok || hr != 0 {
		t.Errorf("hitRate = %v/%v, want 0", hr, ok)
	}
	if mb, ok := m.MeanBrier(); !ok || math.Abs(mb-0.64) > 1e-9 {
		t.Errorf("meanBrier = %v, want 0.64", mb)
	}
}

func TestMetricsAccumulateMonotonically(t *testing.T) {
	h := NewHistory(200, 24*time.Hour)
	base := int64(100 * 3_600_000)
	for i := int64(0); i <= 120; i++ {
		h.Append(mkSnap(base+i*minuteMs, 4000+float64(i)))
	}

	tr := NewTracker()
	for i := int64(0); i < 3; i++ {
		tr.Record(PendingPrediction{TimestampMs: base + i*minuteMs, BasePrice: 4000, PUp: 0.55})
	}
	tr.Resolve(h, 30, base+120*minuteMs)

	m := tr.Metrics()
	if m.Total != 3 || m.Correct != 3 {
		t.Errorf("metrics = %+v, want 3/3", m)
	}
	if tr.PendingCount() != 0 {
		t.Errorf("pending = %d, want 0", tr.PendingCount())
	}
}
