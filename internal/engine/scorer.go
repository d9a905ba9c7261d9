package engine

import "math"

// Signal is the per-tick probabilistic forecast. Derived, recomputed every
// tick from the current window tail.
type Signal struct {
	Score           float64             `json:"score"`
	PUp             float64             `json:"pUp"`
	Confidence      float64             `json:"confidence"`
	Coverage        float64             `json:"coverage"`
	Freshness       float64             `json:"freshness"`
	FreshFieldCount int                 `json:"freshFieldCount"`
	TotalFieldCount int                 `json:"totalFieldCount"`
	Price           float64             `json:"price"`
	TimestampMs     int64               `json:"timestampMs"`
	Inputs          map[string]*float64 `json:"inputs"`
}

// modelInput is one named, squashed, weighted term of the score. Momentum
// weights sum to 1 in magnitude; divergence and volatility carry negative
// weights (reversion on divergence, caution on volatility).
type modelInput struct {
	name   string
	scale  float64
	weight float64
}

var modelInputs = []modelInput{
	{name: "momentum5", scale: 0.15, weight: 0.45},
	{name: "momentum30", scale: 0.40, weight: 0.35},
	{name: "momentum120", scale: 0.90, weight: 0.20},
	{name: "divergence", scale: 0.60, weight: -0.25},
	{name: "volatility", scale: 0.35, weight: -0.15},
}

// Scorer blends squashed features into a probability of upward movement.
type Scorer struct {
	features *Features
}

func NewScorer(f *Features) *Scorer { return &Scorer{features: f} }

// Score computes the current Signal. With no history it emits the neutral
// signal: pUp 0.5, confidence 0.
func (sc *Scorer) Score(horizonMin float64, nowMs int64) Signal {
	latest := sc.features.hist.Latest()
	if latest == nil {
		return Signal{PUp: 0.5, TimestampMs: nowMs, Inputs: map[string]*float64{}}
	}

	raw := map[string]*float64{
		"momentum5":   sc.features.Momentum(KeyGold, 5),
		"momentum30":  sc.features.Momentum(KeyGold, 30),
		"momentum120": sc.features.Momentum(KeyGold, 120),
		"divergence":  sc.features.Divergence(KeyOunceUSD, horizonMin),
		"volatility":  sc.features.Volatility(KeyGold, math.Max(10, horizonMin)),
	}

	score := 0.0
	covered := 0
	for _, in := range modelInputs {
		v := raw[in.name]
		if v == nil {
			continue
		}
		covered++
		score += in.weight * math.Tanh(*v/in.scale)
	}
	coverage := float64(covered) / float64(len(modelInputs))

	fresh, total := 0, 0
	for _, f := range latest.Fields {
		total++
		if f.Fresh {
			fresh++
		}
	}
	freshness := 0.0
	if total > 0 {
		freshness = float64(fresh) / float64(total)
	}

	pUp := sigmoid(2 * score)
	conviction := math.Abs(pUp-0.5) * 2
	confidence := clamp(conviction*(0.45+0.55*coverage)*(0.5+0.5*freshness), 0, 1)

	return Signal{
		Score:           score,
		PUp:             pUp,
		Confidence:      confidence,
		Coverage:        coverage,
		Freshness:       freshness,
		FreshFieldCount: fresh,
		TotalFieldCount: total,
		Price:           latest.GoldPrice,
		TimestampMs:     latest.TimestampMs,
		Inputs:          raw,
	}
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
