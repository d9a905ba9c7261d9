package engine

import "math"

// Features computes momentum, volatility and divergence statistics over the
// history window. All methods return nil when the window cannot support the
// calculation; callers treat nil as a missing model input.
type Features struct {
	hist *History
}

func NewFeatures(h *History) *Features { return &Features{hist: h} }

// Momentum is the percent change between the latest value of key and its
// value lookbackMin minutes earlier. Nil if either endpoint is missing or the
// baseline is zero.
func (f *Features) Momentum(key FeatureKey, lookbackMin float64) *float64 {
	latest := f.hist.Latest()
	if latest == nil {
		return nil
	}
	cur := snapshotValue(latest, key)
	if cur == nil {
		return nil
	}
	baseTs := latest.TimestampMs - int64(lookbackMin*60000)
	base := f.hist.ValueAtOrBefore(key, baseTs)
	if base == nil || *base == 0 {
		return nil
	}
	m := (*cur - *base) / *base * 100
	return &m
}

// ReturnsOver is the ordered step-to-step percent changes of key within the
// lookback window. Empty unless at least two samples exist.
func (f *Features) ReturnsOver(key FeatureKey, lookbackMin float64) []float64 {
	latest := f.hist.Latest()
	if latest == nil {
		return nil
	}
	from := latest.TimestampMs - int64(lookbackMin*60000)
	var samples []float64
	for i := range f.hist.points {
		s := &f.hist.points[i]
		if s.TimestampMs < from {
			continue
		}
		if v := snapshotValue(s, key); v != nil {
			samples = append(samples, *v)
		}
	}
	if len(samples) < 2 {
		return nil
	}
	returns := make([]float64, 0, len(samples)-1)
	for i := 1; i < len(samples); i++ {
		if samples[i-1] == 0 {
			continue
		}
		returns = append(returns, (samples[i]-samples[i-1])/samples[i-1]*100)
	}
	return returns
}

// Volatility is the Bessel-corrected sample standard deviation of the returns
// within the lookback window. Nil with fewer than two returns.
func (f *Features) Volatility(key FeatureKey, lookbackMin float64) *float64 {
	returns := f.ReturnsOver(key, lookbackMin)
	if len(returns) < 2 {
		return nil
	}
	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))
	ss := 0.0
	for _, r := range returns {
		d := r - mean
		ss += d * d
	}
	v := math.Sqrt(ss / float64(len(returns)-1))
	return &v
}

// Divergence compares the current gold/reference ratio against its rolling
// mean over a horizon-scaled window of at least 120 minutes, as a percent
// deviation. Positive means gold runs hot versus the reference; the scorer
// weights it for reversion. Nil when the reference series is unavailable.
func (f *Features) Divergence(ref FeatureKey, horizonMin float64) *float64 {
	latest := f.hist.Latest()
	if latest == nil {
		return nil
	}
	refNow := snapshotValue(latest, ref)
	if refNow == nil || *refNow == 0 {
		return nil
	}
	cur := latest.GoldPrice / *refNow

	windowMin := math.Max(120, horizonMin*4)
	from := latest.TimestampMs - int64(windowMin*60000)
	var sum float64
	var n int
	for i := range f.hist.points {
		s := &f.hist.points[i]
		if s.TimestampMs < from {
			continue
		}
		rv := snapshotValue(s, ref)
		if rv == nil || *rv == 0 {
			continue
		}
		sum += s.GoldPrice / *rv
		n++
	}
	if n == 0 {
		return nil
	}
	mean := sum / float64(n)
	if mean == 0 {
		return nil
	}
	d := (cur - mean) / mean * 100
	return &d
}
