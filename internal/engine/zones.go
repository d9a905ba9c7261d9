package engine

import "math"

// Zones is the volatility-scaled projected price range for the configured
// horizon, with an expected-stop midpoint on the favored side.
type Zones struct {
	RangePct     float64 `json:"rangePct"`
	DriftPct     float64 `json:"driftPct"`
	ExpectedStop float64 `json:"expectedStop"`
	UpLow        float64 `json:"upLow"`
	UpHigh       float64 `json:"upHigh"`
	DownLow      float64 `json:"downLow"`
	DownHigh     float64 `json:"downHigh"`
}

// fallbackVolatility stands in when the window cannot produce a volatility
// estimate. Conservative, not zero, so the range never collapses.
const fallbackVolatility = 0.0018

// EstimateZones projects the price band from the signal and recent
// volatility. vol is the gold returns volatility over max(10, horizon)
// minutes, or nil when undefined.
func EstimateZones(sig Signal, vol *float64, pollIntervalMs int64, horizonMin float64) Zones {
	stepMin := math.Max(0.5, float64(pollIntervalMs)/60000)
	steps := math.Max(1, horizonMin/stepMin)

	v := fallbackVolatility
	if vol != nil {
		v = *vol / 100 // volatility arrives in percent units
	}
	rangePct := clamp(v*math.Sqrt(steps)*1.2, 0.001, 0.05)
	driftPct := (sig.PUp - 0.5) * 2 * rangePct * 1.15

	upDrift := math.Max(0, driftPct)
	downDrift := math.Min(0, driftPct)

	price := sig.Price
	z := Zones{
		RangePct: rangePct,
		DriftPct: driftPct,
		UpLow:    math.Max(0, price*(1+upDrift+0.3*rangePct)),
		UpHigh:   math.Max(0, price*(1+upDrift+0.9*rangePct)),
		DownLow:  math.Max(0, price*(1+downDrift-0.9*rangePct)),
		DownHigh: math.Max(0, price*(1+downDrift-0.3*rangePct)),
	}
	if sig.PUp >= 0.5 {
		z.ExpectedStop = (z.UpLow + z.UpHigh) / 2
	} else {
		z.ExpectedStop = (z.DownLow + z.DownHigh) / 2
	}
	return z
}
