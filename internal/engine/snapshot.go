package engine

import (
	"strconv"
	"strings"
)

// FeatureKey names one tracked series in a snapshot.
type FeatureKey string

const (
	KeyGold     FeatureKey = "gold"      // gram gold in the working currency, primary series
	KeyOunceUSD FeatureKey = "ounce_usd" // global ounce price, divergence reference
	KeyUSDRate  FeatureKey = "usd_rate"
	KeySilver   FeatureKey = "silver"
	KeyYield10Y FeatureKey = "yield_10y"
)

// AuxKeys lists the auxiliary indicator series carried on every snapshot.
var AuxKeys = []FeatureKey{KeyOunceUSD, KeyUSDRate, KeySilver, KeyYield10Y}

// Field is one observed value with its own freshness. Immutable once built.
type Field struct {
	Value       *float64 `json:"value"`
	TimestampMs *int64   `json:"timestampMs"`
	AgeMinutes  *float64 `json:"ageMinutes"`
	Fresh       bool     `json:"fresh"`
}

// Snapshot is one normalized tick of market data.
type Snapshot struct {
	TimestampMs  int64                `json:"timestampMs"`
	GoldPrice    float64              `json:"goldPrice"`
	RawPriceText string               `json:"rawPriceText"`
	Fields       map[FeatureKey]Field `json:"fields"`
}

// RawIndicator is an auxiliary provider value before normalization. A nil
// Value means the provider had nothing for this series this tick.
type RawIndicator struct {
	Value       *float64
	TimestampMs *int64
}

// RawQuote is the primary price as delivered by the provider.
type RawQuote struct {
	PriceText   string
	TimestampMs int64
	// MinorUnit marks a feed quoting in the minor currency unit (kuruş).
	// Cleared by normalization so reloaded history is never converted twice.
	MinorUnit bool
}

// RawTick bundles both provider fetches for one tick.
type RawTick struct {
	Quote      RawQuote
	Indicators map[FeatureKey]RawIndicator
}

// Normalizer turns raw provider payloads into typed snapshots.
type Normalizer struct {
	FreshnessCeilingMin float64
}

// CleanNumeric strips everything except digits, dot and minus so provider
// strings like "4.123,55 TL" or "$2,455.10" survive a float parse. Thousands
// separators in the comma-decimal convention are handled by dropping commas
// and keeping the last dot-group intact.
func CleanNumeric(s string) string {
	s = strings.TrimSpace(s)
	// comma-decimal feeds: "4.123,55" -> "4123.55"
	if i := strings.LastIndexByte(s, ','); i >= 0 && i > strings.LastIndexByte(s, '.') {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	}
	var b strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '.' || r == '-' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ParsePrice parses the primary price text. Failure is a ParseError and
// aborts the tick.
func (n *Normalizer) ParsePrice(raw string) (float64, error) {
	v, err := strconv.ParseFloat(CleanNumeric(raw), 64)
	if err != nil {
		return 0, &ParseError{Raw: raw, Err: err}
	}
	return v, nil
}

// AdjustMinorUnit converts a minor-currency-unit value to the working unit
// exactly once. Passing adjusted=true is a no-op, which keeps reloads of
// persisted history from double-converting.
func AdjustMinorUnit(value float64, adjusted bool) (float64, bool) {
	if adjusted {
		return value, true
	}
	return value / 100, true
}

// Field builds an immutable Field from a raw value and its timestamp,
// relative to the snapshot time. A future-dated timestamp yields a stale
// field, never an error.
func (n *Normalizer) Field(value *float64, tsMs *int64, nowMs int64) Field {
	f := Field{Value: value, TimestampMs: tsMs}
	if value == nil || tsMs == nil {
		return f
	}
	age := float64(nowMs-*tsMs) / 60000.0
	f.AgeMinutes = &age
	f.Fresh = age >= 0 && age <= n.FreshnessCeilingMin
	return f
}

// Snapshot normalizes one raw tick. The primary price must parse; auxiliary
// indicators degrade to empty fields.
func (n *Normalizer) Snapshot(raw RawTick, nowMs int64) (Snapshot, error) {
	price, err := n.ParsePrice(raw.Quote.PriceText)
	if err != nil {
		return Snapshot{}, err
	}
	price, _ = AdjustMinorUnit(price, !raw.Quote.MinorUnit)

	fields := make(map[FeatureKey]Field, len(AuxKeys))
	for _, key := range AuxKeys {
		ind := raw.Indicators[key]
		fields[key] = n.Field(ind.Value, ind.TimestampMs, nowMs)
	}

	qts := raw.Quote.TimestampMs
	fields[KeyGold] = n.Field(&price, &qts, nowMs)

	return Snapshot{
		TimestampMs:  nowMs,
		GoldPrice:    price,
		RawPriceText: raw.Quote.PriceText,
		Fields:       fields,
	}, nil
}
