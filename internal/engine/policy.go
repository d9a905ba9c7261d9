package engine

import "fmt"

// Action is the per-tick recommendation.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
)

// Gate identifies which rule produced the decision, so downstream consumers
// never have to parse the display string.
type Gate string

const (
	GateLowConfidence Gate = "low_confidence"
	GateNeutralZone   Gate = "neutral_zone"
	GateNoCash        Gate = "insufficient_cash"
	GateNoInventory   Gate = "no_inventory"
	GateNoEdge        Gate = "edge_below_fees"
	GateCooldown      Gate = "cooldown"
	GateThreshold     Gate = "threshold_cross"
)

// Decision is the terminal per-tick output.
type Decision struct {
	Action        Action  `json:"action"`
	Gate          Gate    `json:"gate"`
	Reason        string  `json:"reason"`
	ExpectedPrice float64 `json:"expectedPrice"`
	BuyEdgePct    float64 `json:"buyEdgePct"`
	SellEdgePct   float64 `json:"sellEdgePct"`
	TimestampMs   int64   `json:"timestampMs"`
}

// PolicyState carries the cooldown memory: the last non-HOLD action and when
// it was taken.
type PolicyState struct {
	LastAction     Action `json:"lastAction"`
	LastActionAtMs int64  `json:"lastActionAtMs"`
}

// Decide evaluates the gates in strict precedence order; the first match
// wins, so the reported reason always names the earliest failing rule.
// The threshold ordering invariant is enforced at configuration time.
func Decide(sig Signal, zones Zones, profile Profile, set Settings, prev PolicyState, nowMs int64) Decision {
	price := sig.Price
	stop := zones.ExpectedStop

	d := Decision{
		Action:        ActionHold,
		ExpectedPrice: stop,
		TimestampMs:   nowMs,
	}
	buyCost := price * (1 + profile.BuyFeePct)
	sellProceeds := price * (1 - profile.SellFeePct)
	if buyCost > 0 {
		d.BuyEdgePct = (stop*(1-profile.SellFeePct) - buyCost) / buyCost * 100
	}
	if sellProceeds > 0 {
		d.SellEdgePct = (sellProceeds - stop*(1+profile.BuyFeePct)) / sellProceeds * 100
	}

	// 1. Confidence gate.
	if sig.Confidence < set.MinConfidence {
		d.Gate = GateLowConfidence
		d.Reason = fmt.Sprintf("confidence %.2f below threshold %.2f", sig.Confidence, set.MinConfidence)
		return d
	}

	// 2. Threshold zone.
	var tentative Action
	switch {
	case sig.PUp >= set.BuyThreshold:
		tentative = ActionBuy
	case sig.PUp <= set.SellThreshold:
		tentative = ActionSell
	default:
		d.Gate = GateNeutralZone
		d.Reason = fmt.Sprintf("p(up) %.2f inside neutral zone (%.2f..%.2f)", sig.PUp, set.SellThreshold, set.BuyThreshold)
		return d
	}

	// 3. Inventory gate.
	if tentative == ActionBuy && profile.CashAmount.InexactFloat64() < buyCost {
		d.Gate = GateNoCash
		d.Reason = fmt.Sprintf("insufficient cash for one gram at %.2f incl. fee", buyCost)
		return d
	}
	if tentative == ActionSell && !profile.GoldGrams.IsPositive() {
		d.Gate = GateNoInventory
		d.Reason = "no gold holdings to sell"
		return d
	}

	// 4. Fee-aware edge gate.
	if tentative == ActionBuy && d.BuyEdgePct <= 0 {
		d.Gate = GateNoEdge
		d.Reason = fmt.Sprintf("buy edge %.3f%% does not clear fees", d.BuyEdgePct)
		return d
	}
	if tentative == ActionSell && d.SellEdgePct <= 0 {
		d.Gate = GateNoEdge
		d.Reason = fmt.Sprintf("sell edge %.3f%% does not clear fees", d.SellEdgePct)
		return d
	}

	// 5. Cooldown gate. Only a change of action is gated; repeating the last
	// action is allowed.
	if prev.LastAction != "" && tentative != prev.LastAction {
		elapsedMin := float64(nowMs-prev.LastActionAtMs) / 60000
		if elapsedMin < set.ActionCooldownMin {
			d.Gate = GateCooldown
			d.Reason = fmt.Sprintf("action flip %s->%s in cooldown, %.1f min remaining",
				prev.LastAction, tentative, set.ActionCooldownMin-elapsedMin)
			return d
		}
	}

	d.Action = tentative
	d.Gate = GateThreshold
	if tentative == ActionBuy {
		d.Reason = fmt.Sprintf("p(up) %.2f crossed buy threshold %.2f, edge %.3f%%", sig.PUp, set.BuyThreshold, d.BuyEdgePct)
	} else {
		d.Reason = fmt.Sprintf("p(up) %.2f crossed sell threshold %.2f, edge %.3f%%", sig.PUp, set.SellThreshold, d.SellEdgePct)
	}
	return d
}
