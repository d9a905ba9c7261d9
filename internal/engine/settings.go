package engine

import (
	"github.com/shopspring/decimal"
)

// Settings are the runtime-tunable engine parameters. Persisted last-write-
// wins through the key-value store and patched via UpdateSettings.
type Settings struct {
	PollIntervalMs        int64   `json:"pollIntervalMs"`
	RequestTimeoutMs      int64   `json:"requestTimeoutMs"`
	FreshnessCeilingMin   float64 `json:"freshnessCeilingMin"`
	HistoryRetentionHours float64 `json:"historyRetentionHours"`
	MaxInMemoryPoints     int     `json:"maxInMemoryPoints"`
	HorizonMinutes        float64 `json:"horizonMinutes"`
	BuyThreshold          float64 `json:"buyThreshold"`
	SellThreshold         float64 `json:"sellThreshold"`
	MinConfidence         float64 `json:"minConfidence"`
	ActionCooldownMin     float64 `json:"actionCooldownMin"`
}

// DefaultSettings mirror the typical self-hosted deployment.
func DefaultSettings() Settings {
	return Settings{
		PollIntervalMs:        60_000,
		RequestTimeoutMs:      10_000,
		FreshnessCeilingMin:   30,
		HistoryRetentionHours: 72,
		MaxInMemoryPoints:     5000,
		HorizonMinutes:        30,
		BuyThreshold:          0.62,
		SellThreshold:         0.38,
		MinConfidence:         0.25,
		ActionCooldownMin:     20,
	}
}

// Validate rejects settings outside allowed ranges. The threshold ordering
// invariant is enforced here, never per-tick.
func (s Settings) Validate() error {
	switch {
	case s.PollIntervalMs < 1000 || s.PollIntervalMs > 3_600_000:
		return &ValidationError{Field: "pollIntervalMs", Msg: "must be between 1s and 1h"}
	case s.RequestTimeoutMs < 100 || s.RequestTimeoutMs > 120_000:
		return &ValidationError{Field: "requestTimeoutMs", Msg: "must be between 100ms and 120s"}
	case s.FreshnessCeilingMin <= 0 || s.FreshnessCeilingMin > 1440:
		return &ValidationError{Field: "freshnessCeilingMin", Msg: "must be in (0, 1440]"}
	case s.HistoryRetentionHours <= 0 || s.HistoryRetentionHours > 720:
		return &ValidationError{Field: "historyRetentionHours", Msg: "must be in (0, 720]"}
	case s.MaxInMemoryPoints < 10 || s.MaxInMemoryPoints > 200_000:
		return &ValidationError{Field: "maxInMemoryPoints", Msg: "must be in [10, 200000]"}
	case s.HorizonMinutes < 1 || s.HorizonMinutes > 1440:
		return &ValidationError{Field: "horizonMinutes", Msg: "must be in [1, 1440]"}
	case s.BuyThreshold <= 0 || s.BuyThreshold >= 1:
		return &ValidationError{Field: "buyThreshold", Msg: "must be in (0, 1)"}
	case s.SellThreshold <= 0 || s.SellThreshold >= 1:
		return &ValidationError{Field: "sellThreshold", Msg: "must be in (0, 1)"}
	case s.BuyThreshold <= s.SellThreshold:
		return &ValidationError{Field: "buyThreshold", Msg: "must be greater than sellThreshold"}
	case s.MinConfidence < 0 || s.MinConfidence > 1:
		return &ValidationError{Field: "minConfidence", Msg: "must be in [0, 1]"}
	case s.ActionCooldownMin < 0 || s.ActionCooldownMin > 1440:
		return &ValidationError{Field: "actionCooldownMin", Msg: "must be in [0, 1440]"}
	}
	return nil
}

// Profile is the user's portfolio state. The engine reads it on every tick
// and never writes it; mutation happens only through UpdateProfile.
type Profile struct {
	CashAmount  decimal.Decimal `json:"cashAmount"`
	GoldGrams   decimal.Decimal `json:"goldGrams"`
	AvgBuyPrice decimal.Decimal `json:"avgBuyPrice"`
	BuyFeePct   float64         `json:"buyFeePct"`
	SellFeePct  float64         `json:"sellFeePct"`
}

func DefaultProfile() Profile {
	return Profile{
		CashAmount:  decimal.Zero,
		GoldGrams:   decimal.Zero,
		AvgBuyPrice: decimal.Zero,
		BuyFeePct:   0.005,
		SellFeePct:  0.005,
	}
}

func (p Profile) Validate() error {
	switch {
	case p.CashAmount.IsNegative():
		return &ValidationError{Field: "cashAmount", Msg: "must not be negative"}
	case p.GoldGrams.IsNegative():
		return &ValidationError{Field: "goldGrams", Msg: "must not be negative"}
	case p.AvgBuyPrice.IsNegative():
		return &ValidationError{Field: "avgBuyPrice", Msg: "must not be negative"}
	case p.BuyFeePct < 0 || p.BuyFeePct > 0.2:
		return &ValidationError{Field: "buyFeePct", Msg: "must be in [0, 0.2]"}
	case p.SellFeePct < 0 || p.SellFeePct > 0.2:
		return &ValidationError{Field: "sellFeePct", Msg: "must be in [0, 0.2]"}
	}
	return nil
}
