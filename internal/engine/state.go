package engine

// MetricsView is the serializable reliability summary. HitRate and MeanBrier
// are nil until at least one prediction has resolved.
type MetricsView struct {
	Total     int      `json:"total"`
	Correct   int      `json:"correct"`
	BrierSum  float64  `json:"brierSum"`
	HitRate   *float64 `json:"hitRate"`
	MeanBrier *float64 `json:"meanBrier"`
}

func metricsView(m Metrics) MetricsView {
	v := MetricsView{Total: m.Total, Correct: m.Correct, BrierSum: m.BrierSum}
	if hr, ok := m.HitRate(); ok {
		v.HitRate = &hr
	}
	if mb, ok := m.MeanBrier(); ok {
		v.MeanBrier = &mb
	}
	return v
}

// State is the full read-only engine snapshot handed to observers. Every
// slice and map in it is a copy; mutating a State never touches the engine.
type State struct {
	Settings           Settings     `json:"settings"`
	Profile            Profile      `json:"profile"`
	Signal             *Signal      `json:"signal"`
	Zones              *Zones       `json:"zones"`
	Decision           *Decision    `json:"decision"`
	Policy             PolicyState  `json:"policy"`
	Metrics            MetricsView  `json:"metrics"`
	PendingPredictions int          `json:"pendingPredictions"`
	PriceHistory       []PricePoint `json:"priceHistory"`
	LogLines           []string     `json:"logLines"`
	LastError          string       `json:"lastError"`
	UpdatedAtMs        int64        `json:"updatedAtMs"`
}

func copySignal(s *Signal) *Signal {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Inputs = make(map[string]*float64, len(s.Inputs))
	for k, v := range s.Inputs {
		if v != nil {
			val := *v
			cp.Inputs[k] = &val
		} else {
			cp.Inputs[k] = nil
		}
	}
	return &cp
}

func copyZones(z *Zones) *Zones {
	if z == nil {
		return nil
	}
	cp := *z
	return &cp
}

func copyDecision(d *Decision) *Decision {
	if d == nil {
		return nil
	}
	cp := *d
	return &cp
}
