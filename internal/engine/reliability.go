package engine

// PendingPrediction is one forecast awaiting a realized price at its horizon.
type PendingPrediction struct {
	TimestampMs int64   `json:"timestampMs"`
	BasePrice   float64 `json:"basePrice"`
	PUp         float64 `json:"pUp"`
}

// ResolvedPrediction is a pending prediction matched with its realized price.
type ResolvedPrediction struct {
	PendingPrediction
	RealizedPrice float64 `json:"realizedPrice"`
	PredictedUp   bool    `json:"predictedUp"`
	ActualUp      bool    `json:"actualUp"`
	Correct       bool    `json:"correct"`
	Brier         float64 `json:"brier"`
	ResolvedAtMs  int64   `json:"resolvedAtMs"`
}

// Metrics accumulate monotonically for the process lifetime. Only the
// tracker writes them; they are never reset during normal operation.
type Metrics struct {
	Total    int     `json:"total"`
	Correct  int     `json:"correct"`
	BrierSum float64 `json:"brierSum"`
}

// HitRate is correct/total; undefined (ok=false) when nothing has resolved.
func (m Metrics) HitRate() (float64, bool) {
	if m.Total == 0 {
		return 0, false
	}
	return float64(m.Correct) / float64(m.Total), true
}

// MeanBrier is brierSum/total; undefined when nothing has resolved.
func (m Metrics) MeanBrier() (float64, bool) {
	if m.Total == 0 {
		return 0, false
	}
	return m.BrierSum / float64(m.Total), true
}

// Tracker resolves past predictions against realized prices and accumulates
// calibration statistics.
type Tracker struct {
	pending []PendingPrediction
	metrics Metrics
}

func NewTracker() *Tracker { return &Tracker{} }

// Record registers one prediction per tick.
func (t *Tracker) Record(p PendingPrediction) {
	t.pending = append(t.pending, p)
}

// Resolve scans the pending set for predictions whose horizon now has a
// realized price in the window. Unresolved predictions stay pending
// indefinitely. Returns the newly resolved predictions in order.
func (t *Tracker) Resolve(hist *History, horizonMin float64, nowMs int64) []ResolvedPrediction {
	var resolved []ResolvedPrediction
	remaining := t.pending[:0]
	for _, p := range t.pending {
		realized := hist.PriceAtOrAfter(p.TimestampMs + int64(horizonMin*60000))
		if realized == nil {
			remaining = append(remaining, p)
			continue
		}
		actualUp := *realized > p.BasePrice
		predictedUp := p.PUp >= 0.5
		outcome := 0.0
		if actualUp {
			outcome = 1.0
		}
		diff := clamp(p.PUp, 0, 1) - outcome

		t.metrics.Total++
		if predictedUp == actualUp {
			t.metrics.Correct++
		}
		t.metrics.BrierSum += diff * diff

		resolved = append(resolved, ResolvedPrediction{
			PendingPrediction: p,
			RealizedPrice:     *realized,
			PredictedUp:       predictedUp,
			ActualUp:          actualUp,
			Correct:           predictedUp == actualUp,
			Brier:             diff * diff,
			ResolvedAtMs:      nowMs,
		})
	}
	t.pending = remaining
	return resolved
}

func (t *Tracker) Metrics() Metrics { return t.metrics }

func (t *Tracker) PendingCount() int { return len(t.pending) }
