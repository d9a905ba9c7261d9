package engine

import (
	"testing"
	"time"
)

// mkSnap builds a minimal snapshot at ts with the given gold price.
func mkSnap(ts int64, price float64) Snapshot {
	return Snapshot{TimestampMs: ts, GoldPrice: price, Fields: map[FeatureKey]Field{}}
}

func mkSnapWith(ts int64, price float64, key FeatureKey, v float64) Snapshot {
	s := mkSnap(ts, price)
	s.Fields[key] = Field{Value: &v, TimestampMs: &ts, Fresh: true}
	return s
}

func TestHistoryAppendOrdering(t *testing.T) {
	h := NewHistory(10, time.Hour)
	if !h.Append(mkSnap(1000, 1)) {
		t.Fatal("first append rejected")
	}
	if !h.Append(mkSnap(1000, 2)) {
		t.Fatal("equal-timestamp append rejected")
	}
	if h.Append(mkSnap(500, 3)) {
		t.Fatal("out-of-order append accepted")
	}
	if h.Len() != 2 {
		t.Fatalf("Len = %d, want 2", h.Len())
	}
}

func TestHistoryTrimBySizeAndRetention(t *testing.T) {
	h := NewHistory(3, time.Hour)
	base := int64(10 * 3_600_000)
	for i := int64(0); i < 6; i++ {
		h.Append(mkSnap(base+i*60000, float64(i)))
	}
	h.Trim(base + 5*60000)
	if h.Len() != 3 {
		t.Fatalf("Len = %d, want 3 after size trim", h.Len())
	}
	if h.Latest().GoldPrice != 5 {
		t.Error("trim must drop from the front, never the tail")
	}

	// everything older than retention goes, regardless of size headroom
	h2 := NewHistory(100, 10*time.Minute)
	h2.Append(mkSnap(base, 1))
	h2.Append(mkSnap(base+30*60000, 2))
	h2.Trim(base + 35*60000)
	if h2.Len() != 1 {
		t.Fatalf("Len = %d, want 1 after retention trim", h2.Len())
	}
	if h2.Latest().GoldPrice != 2 {
		t.Error("retention trim removed the wrong entry")
	}
}

func TestValueAtOrBefore(t *testing.T) {
	h := NewHistory(10, time.Hour)
	h.Append(mkSnapWith(1000, 10, KeyOunceUSD, 100))
	h.Append(mkSnap(2000, 20)) // no ounce value this tick
	h.Append(mkSnapWith(3000, 30, KeyOunceUSD, 300))

	if v := h.ValueAtOrBefore(KeyGold, 2500); v == nil || *v != 20 {
		t.Errorf("gold at 2500 = %v, want 20", v)
	}
	// scans past the gap to the first defined value
	if v := h.ValueAtOrBefore(KeyOunceUSD, 2500); v == nil || *v != 100 {
		t.Errorf("ounce at 2500 = %v, want 100", v)
	}
	if v := h.ValueAtOrBefore(KeyGold, 500); v != nil {
		t.Errorf("value before window = %v, want nil", v)
	}
}

func TestPriceAtOrAfter(t *testing.T) {
	h := NewHistory(10, time.Hour)
	h.Append(mkSnap(1000, 10))
	h.Append(mkSnap(2000, 20))

	if v := h.PriceAtOrAfter(1500); v == nil || *v != 20 {
		t.Errorf("PriceAtOrAfter(1500) = %v, want 20", v)
	}
	if v := h.PriceAtOrAfter(1000); v == nil || *v != 10 {
		t.Errorf("PriceAtOrAfter(1000) = %v, want 10", v)
	}
	if v := h.PriceAtOrAfter(2500); v != nil {
		t.Errorf("PriceAtOrAfter(2500) = %v, want nil", v)
	}
}

func TestPricePointsBounded(t *testing.T) {
	h := NewHistory(100, time.Hour)
	for i := int64(0); i < 20; i++ {
		h.Append(mkSnap(1000+i, float64(i)))
	}
	pts := h.PricePoints(5)
	if len(pts) != 5 {
		t.Fatalf("len = %d, want 5", len(pts))
	}
	if pts[0].Price != 15 || pts[4].Price != 19 {
		t.Error("PricePoints must return the newest samples, oldest first")
	}
}
