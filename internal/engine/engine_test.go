package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

// scriptedSource replays a price series, one value per tick.
type scriptedSource struct {
	mu     sync.Mutex
	prices []float64
	idx    int
	nowMs  func() int64
	fail   bool
}

func (s *scriptedSource) FetchQuote(ctx context.Context) (RawQuote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return RawQuote{}, errors.New("provider down")
	}
	p := s.prices[s.idx]
	if s.idx < len(s.prices)-1 {
		s.idx++
	}
	return RawQuote{
		PriceText:   fmt.Sprintf("%.2f", p),
		TimestampMs: s.nowMs(),
	}, nil
}

func (s *scriptedSource) FetchIndicators(ctx context.Context) (map[FeatureKey]RawIndicator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return nil, errors.New("provider down")
	}
	ts := s.nowMs()
	out := make(map[FeatureKey]RawIndicator, len(AuxKeys))
	for key, v := range map[FeatureKey]float64{
		KeyOunceUSD: 3000,
		KeyUSDRate:  41.5,
		KeySilver:   48.2,
		KeyYield10Y: 4.1,
	} {
		val := v
		tsMs := ts
		out[key] = RawIndicator{Value: &val, TimestampMs: &tsMs}
	}
	return out, nil
}

// memStore records persistence calls in memory.
type memStore struct {
	mu        sync.Mutex
	snapshots []Snapshot
	outcomes  []ResolvedPrediction
	settings  *Settings
	profile   *Profile
}

func (m *memStore) SaveSnapshot(s Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots = append(m.snapshots, s)
	return nil
}

func (m *memStore) DeleteSnapshotsBefore(tsMs int64) error { return nil }

func (m *memStore) SaveOutcome(r ResolvedPrediction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, r)
	return nil
}

func (m *memStore) SaveSettings(s Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings = &s
	return nil
}

func (m *memStore) SaveProfile(p Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profile = &p
	return nil
}

// testClock is a manually advanced clock.
type testClock struct {
	mu sync.Mutex
	ms int64
}

func (c *testClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.UnixMilli(c.ms)
}

func (c *testClock) advance(d time.Duration) {
	c.mu.Lock()
	c.ms += d.Milliseconds()
	c.mu.Unlock()
}

func scenarioSettings() Settings {
	set := DefaultSettings()
	set.BuyThreshold = 0.6
	set.SellThreshold = 0.4
	set.MinConfidence = 0.2
	return set
}

// flatThenRising is 10 flat ticks followed by 30 rising ones. The rise
// alternates 0.8% and 0.2% steps so both momentum and return volatility come
// out non-degenerate.
func flatThenRising() []float64 {
	prices := make([]float64, 0, 40)
	p := 4000.0
	for i := 0; i < 10; i++ {
		prices = append(prices, p)
	}
	for i := 0; i < 30; i++ {
		if i%2 == 0 {
			p *= 1.008
		} else {
			p *= 1.002
		}
		prices = append(prices, p)
	}
	return prices
}

func newScenarioEngine(t *testing.T, profile Profile) (*Engine, *scriptedSource, *memStore, *testClock) {
	t.Helper()
	clock := &testClock{ms: 1_700_000_000_000}
	source := &scriptedSource{
		prices: flatThenRising(),
		nowMs:  func() int64 { return clock.now().UnixMilli() },
	}
	store := &memStore{}
	eng, err := New(source, store, Options{
		Settings: scenarioSettings(),
		Profile:  profile,
		Now:      clock.now,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return eng, source, store, clock
}

func runTicks(t *testing.T, eng *Engine, clock *testClock, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if err := eng.Tick(context.Background()); err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
		clock.advance(time.Minute)
	}
}

func TestScenarioRisingSeriesEventuallyBuys(t *testing.T) {
	profile := Profile{
		CashAmount: decimal.NewFromInt(100_000),
		GoldGrams:  decimal.NewFromInt(5),
		BuyFeePct:  0.002,
		SellFeePct: 0.002,
	}
	eng, _, store, clock := newScenarioEngine(t, profile)
	runTicks(t, eng, clock, 40)

	st := eng.GetState()
	if st.Decision == nil {
		t.Fatal("no decision after 40 ticks")
	}
	if st.Signal.PUp < 0.6 {
		t.Fatalf("pUp = %v, want >= 0.6 after the rise", st.Signal.PUp)
	}
	if st.Decision.Action != ActionBuy {
		t.Fatalf("action = %s (%s), want BUY", st.Decision.Action, st.Decision.Reason)
	}
	if st.Decision.Gate != GateThreshold {
		t.Errorf("gate = %s, want threshold_cross, reason %q", st.Decision.Gate, st.Decision.Reason)
	}
	if len(store.snapshots) != 40 {
		t.Errorf("persisted %d snapshots, want 40", len(store.snapshots))
	}
}

func TestScenarioZeroCashHolds(t *testing.T) {
	profile := Profile{
		CashAmount: decimal.Zero,
		GoldGrams:  decimal.NewFromInt(5),
		BuyFeePct:  0.002,
		SellFeePct: 0.002,
	}
	eng, _, _, clock := newScenarioEngine(t, profile)
	runTicks(t, eng, clock, 40)

	st := eng.GetState()
	if st.Decision.Action != ActionHold {
		t.Fatalf("action = %s, want HOLD without cash", st.Decision.Action)
	}
	if st.Decision.Gate != GateNoCash {
		t.Errorf("gate = %s (%s), want insufficient_cash", st.Decision.Gate, st.Decision.Reason)
	}
}

func TestOverlapGuardSkips(t *testing.T) {
	eng, _, _, _ := newScenarioEngine(t, DefaultProfile())
	eng.inFlight.Store(true)
	err := eng.Tick(context.Background())
	if !errors.Is(err, ErrTickInFlight) {
		t.Fatalf("err = %v, want ErrTickInFlight", err)
	}
	eng.inFlight.Store(false)
	if err := eng.Tick(context.Background()); err != nil {
		t.Fatalf("tick after release: %v", err)
	}
}

func TestFetchErrorAbortsTickRetainsState(t *testing.T) {
	eng, source, store, clock := newScenarioEngine(t, DefaultProfile())
	runTicks(t, eng, clock, 3)
	before := eng.GetState()

	source.mu.Lock()
	source.fail = true
	source.mu.Unlock()

	err := eng.Tick(context.Background())
	var ferr *FetchError
	if !errors.As(err, &ferr) {
		t.Fatalf("err = %v, want *FetchError", err)
	}

	after := eng.GetState()
	if after.Signal.TimestampMs != before.Signal.TimestampMs {
		t.Error("failed tick must not advance the signal")
	}
	if after.LastError == "" {
		t.Error("failed tick must surface in LastError")
	}
	if len(store.snapshots) != 3 {
		t.Errorf("persisted %d snapshots, want 3 (no partial snapshot)", len(store.snapshots))
	}
}

func TestSubscribeDeliversCurrentStateImmediately(t *testing.T) {
	eng, _, _, clock := newScenarioEngine(t, DefaultProfile())
	runTicks(t, eng, clock, 1)

	states, cancel := eng.Subscribe()
	defer cancel()

	select {
	case st := <-states:
		if st.Signal == nil {
			t.Error("immediate state missing signal")
		}
	case <-time.After(time.Second):
		t.Fatal("no immediate state delivered")
	}

	if err := eng.Tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	select {
	case <-states:
	case <-time.After(time.Second):
		t.Fatal("no state delivered after tick")
	}
}

func TestUpdateSettingsRejectsInvalidPatchAtomically(t *testing.T) {
	eng, _, _, _ := newScenarioEngine(t, DefaultProfile())
	before := eng.GetState().Settings

	bad := 0.1 // below sellThreshold
	_, err := eng.UpdateSettings(SettingsPatch{BuyThreshold: &bad})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want *ValidationError", err)
	}
	if eng.GetState().Settings != before {
		t.Error("rejected patch must not change settings")
	}
}

func TestUpdateSettingsReschedulesTimer(t *testing.T) {
	eng, _, store, _ := newScenarioEngine(t, DefaultProfile())
	newInterval := int64(30_000)
	got, err := eng.UpdateSettings(SettingsPatch{PollIntervalMs: &newInterval})
	if err != nil {
		t.Fatalf("UpdateSettings: %v", err)
	}
	if got.PollIntervalMs != newInterval {
		t.Errorf("PollIntervalMs = %d, want %d", got.PollIntervalMs, newInterval)
	}
	select {
	case <-eng.reschedule:
	default:
		t.Error("interval change must signal a timer reschedule")
	}
	if store.settings == nil || store.settings.PollIntervalMs != newInterval {
		t.Error("settings change must persist")
	}
}

func TestUpdateProfileValidatesAtomically(t *testing.T) {
	eng, _, store, _ := newScenarioEngine(t, DefaultProfile())

	neg := decimal.NewFromInt(-5)
	if _, err := eng.UpdateProfile(ProfilePatch{CashAmount: &neg}); err == nil {
		t.Fatal("negative cash must be rejected")
	}

	cash := decimal.NewFromInt(5000)
	fee := 0.004
	got, err := eng.UpdateProfile(ProfilePatch{CashAmount: &cash, BuyFeePct: &fee})
	if err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}
	if !got.CashAmount.Equal(cash) || got.BuyFeePct != fee {
		t.Errorf("profile = %+v, patch not applied", got)
	}
	if store.profile == nil || !store.profile.CashAmount.Equal(cash) {
		t.Error("profile change must persist")
	}
}

func TestGetStateIsDeepCopy(t *testing.T) {
	eng, _, _, clock := newScenarioEngine(t, DefaultProfile())
	runTicks(t, eng, clock, 2)

	st := eng.GetState()
	if st.Signal == nil {
		t.Fatal("no signal")
	}
	for k := range st.Signal.Inputs {
		delete(st.Signal.Inputs, k)
	}
	st.PriceHistory[0].Price = -1

	st2 := eng.GetState()
	if st2.PriceHistory[0].Price == -1 {
		t.Error("state shares price history with engine")
	}
	if len(st2.Signal.Inputs) == 0 {
		t.Error("state shares signal inputs map with engine")
	}
}

func TestReliabilityResolvesThroughTicks(t *testing.T) {
	eng, _, store, clock := newScenarioEngine(t, DefaultProfile())
	// horizon is 30min and the source holds its last price, so predictions
	// made in the first quarter hour resolve before the run ends
	runTicks(t, eng, clock, 45)

	st := eng.GetState()
	if st.Metrics.Total == 0 {
		t.Fatal("no predictions resolved after 45 ticks")
	}
	if st.Metrics.HitRate == nil {
		t.Fatal("hit rate undefined despite resolutions")
	}
	if len(store.outcomes) != st.Metrics.Total {
		t.Errorf("persisted %d outcomes, metrics total %d", len(store.outcomes), st.Metrics.Total)
	}
}
