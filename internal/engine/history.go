package engine

import "time"

// History is the bounded, time-ordered in-memory snapshot window. It is owned
// by the engine; callers never mutate it directly. Only Append and Trim change
// it, and entries are never reordered or edited in place.
type History struct {
	points    []Snapshot
	maxPoints int
	retention time.Duration
}

func NewHistory(maxPoints int, retention time.Duration) *History {
	return &History{
		points:    make([]Snapshot, 0, maxPoints),
		maxPoints: maxPoints,
		retention: retention,
	}
}

// Configure adjusts the bounds. The next Trim applies them.
func (h *History) Configure(maxPoints int, retention time.Duration) {
	h.maxPoints = maxPoints
	h.retention = retention
}

// Append adds a snapshot at the tail. Out-of-order snapshots (older than the
// current tail) are dropped so timestamps stay non-decreasing.
func (h *History) Append(s Snapshot) bool {
	if n := len(h.points); n > 0 && s.TimestampMs < h.points[n-1].TimestampMs {
		return false
	}
	h.points = append(h.points, s)
	return true
}

// Trim drops expired entries from the front, then truncates from the front if
// the window still exceeds maxPoints.
func (h *History) Trim(nowMs int64) {
	cutoff := nowMs - h.retention.Milliseconds()
	i := 0
	for i < len(h.points) && h.points[i].TimestampMs < cutoff {
		i++
	}
	if over := len(h.points) - i - h.maxPoints; over > 0 {
		i += over
	}
	if i > 0 {
		h.points = append(h.points[:0], h.points[i:]...)
	}
}

func (h *History) Len() int { return len(h.points) }

// Latest returns the newest snapshot, or nil on an empty window.
func (h *History) Latest() *Snapshot {
	if len(h.points) == 0 {
		return nil
	}
	return &h.points[len(h.points)-1]
}

// ValueAtOrBefore scans newest to oldest and returns the first defined value
// of key at or before tsMs, or nil.
func (h *History) ValueAtOrBefore(key FeatureKey, tsMs int64) *float64 {
	for i := len(h.points) - 1; i >= 0; i-- {
		s := &h.points[i]
		if s.TimestampMs > tsMs {
			continue
		}
		if v := snapshotValue(s, key); v != nil {
			return v
		}
	}
	return nil
}

// PriceAtOrAfter scans oldest to newest and returns the first gold price at
// or after tsMs. Used only for horizon resolution.
func (h *History) PriceAtOrAfter(tsMs int64) *float64 {
	for i := range h.points {
		if h.points[i].TimestampMs >= tsMs {
			p := h.points[i].GoldPrice
			return &p
		}
	}
	return nil
}

// PricePoints returns up to limit of the newest (timestamp, price) pairs,
// oldest first, as copies.
func (h *History) PricePoints(limit int) []PricePoint {
	start := 0
	if len(h.points) > limit {
		start = len(h.points) - limit
	}
	out := make([]PricePoint, 0, len(h.points)-start)
	for _, s := range h.points[start:] {
		out = append(out, PricePoint{TimestampMs: s.TimestampMs, Price: s.GoldPrice})
	}
	return out
}

// PricePoint is one chart-ready history sample.
type PricePoint struct {
	TimestampMs int64   `json:"timestampMs"`
	Price       float64 `json:"price"`
}

func snapshotValue(s *Snapshot, key FeatureKey) *float64 {
	if key == KeyGold {
		p := s.GoldPrice
		return &p
	}
	if f, ok := s.Fields[key]; ok && f.Value != nil {
		return f.Value
	}
	return nil
}
