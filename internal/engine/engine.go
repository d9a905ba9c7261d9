// Package engine implements the gold signal and decision core: snapshot
// normalization, the in-memory history window, feature extraction,
// probability scoring, zone estimation, the fee-aware decision policy and
// outcome-based reliability tracking, all behind one mutex-guarded state
// object driven by a single tick loop.
package engine

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/aurumlabs/goldwatch/internal/logring"
)

// DataSource is the market data collaborator. Transport and auth are opaque
// to the engine; both fetches are bounded by the request timeout.
type DataSource interface {
	FetchQuote(ctx context.Context) (RawQuote, error)
	FetchIndicators(ctx context.Context) (map[FeatureKey]RawIndicator, error)
}

// Store is the persistence collaborator: an append-only snapshot/outcome log
// with a retention delete, plus last-write-wins settings/profile objects.
type Store interface {
	SaveSnapshot(s Snapshot) error
	DeleteSnapshotsBefore(tsMs int64) error
	SaveOutcome(r ResolvedPrediction) error
	SaveSettings(s Settings) error
	SaveProfile(p Profile) error
}

// stateHistoryLimit bounds the price history carried in State snapshots.
const stateHistoryLimit = 500

// Engine owns all mutable signal/decision state. Mutation funnels through
// tick execution and the explicit update calls, serialized by one mutex.
type Engine struct {
	mu sync.Mutex

	settings Settings
	profile  Profile

	hist     *History
	features *Features
	scorer   *Scorer
	tracker  *Tracker
	policy   PolicyState

	lastSignal   *Signal
	lastZones    *Zones
	lastDecision *Decision
	lastError    string

	source DataSource
	store  Store
	logs   *logring.Ring

	subs    map[int]chan State
	nextSub int

	inFlight   atomic.Bool
	reschedule chan struct{}

	now func() time.Time
}

// Options configure engine construction. Zero values fall back to defaults.
type Options struct {
	Settings Settings
	Profile  Profile
	Logs     *logring.Ring
	Now      func() time.Time
}

func New(source DataSource, store Store, opts Options) (*Engine, error) {
	set := opts.Settings
	if set == (Settings{}) {
		set = DefaultSettings()
	}
	if err := set.Validate(); err != nil {
		return nil, err
	}
	prof := opts.Profile
	if err := prof.Validate(); err != nil {
		return nil, err
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	hist := NewHistory(set.MaxInMemoryPoints, retention(set))
	feats := NewFeatures(hist)
	e := &Engine{
		settings:   set,
		profile:    prof,
		hist:       hist,
		features:   feats,
		scorer:     NewScorer(feats),
		tracker:    NewTracker(),
		source:     source,
		store:      store,
		logs:       opts.Logs,
		subs:       make(map[int]chan State),
		reschedule: make(chan struct{}, 1),
		now:        now,
	}
	return e, nil
}

func retention(s Settings) time.Duration {
	return time.Duration(s.HistoryRetentionHours * float64(time.Hour))
}

// SeedHistory loads previously persisted snapshots into the window at
// startup. Rows arrive already unit-adjusted; normalization is not repeated.
func (e *Engine) SeedHistory(snaps []Snapshot) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, s := range snaps {
		e.hist.Append(s)
	}
	e.hist.Trim(e.now().UnixMilli())
	log.Info().Int("points", e.hist.Len()).Msg("history window seeded from store")
}

// Run drives the tick loop until ctx is cancelled. An interval change
// cancels the armed timer and re-arms with the new interval.
func (e *Engine) Run(ctx context.Context) {
	if err := e.Tick(ctx); err != nil && err != ErrTickInFlight {
		log.Warn().Err(err).Msg("initial tick failed")
	}
	for {
		timer := time.NewTimer(e.pollInterval())
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-e.reschedule:
			timer.Stop()
		case <-timer.C:
			if err := e.Tick(ctx); err != nil && err != ErrTickInFlight {
				log.Warn().Err(err).Msg("tick failed")
			}
		}
	}
}

func (e *Engine) pollInterval() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return time.Duration(e.settings.PollIntervalMs) * time.Millisecond
}

// ForceTick triggers an out-of-band tick through the same re-entrancy guard
// as the scheduled one.
func (e *Engine) ForceTick(ctx context.Context) error {
	return e.Tick(ctx)
}

// Tick runs one full cycle: fetch, normalize, append, resolve, score,
// decide, publish. At most one tick executes at a time; an overlapping
// trigger is skipped and logged, never queued.
func (e *Engine) Tick(ctx context.Context) error {
	if !e.inFlight.CompareAndSwap(false, true) {
		log.Info().Msg("tick skipped: previous tick still in flight")
		return ErrTickInFlight
	}
	defer e.inFlight.Store(false)

	e.mu.Lock()
	timeout := time.Duration(e.settings.RequestTimeoutMs) * time.Millisecond
	e.mu.Unlock()

	raw, err := e.fetch(ctx, timeout)
	if err != nil {
		e.recordError(err)
		return err
	}

	nowMs := e.now().UnixMilli()

	e.mu.Lock()
	norm := Normalizer{FreshnessCeilingMin: e.settings.FreshnessCeilingMin}
	snap, err := norm.Snapshot(raw, nowMs)
	if err != nil {
		e.mu.Unlock()
		e.recordError(err)
		return err
	}

	e.hist.Configure(e.settings.MaxInMemoryPoints, retention(e.settings))
	e.hist.Append(snap)
	e.hist.Trim(nowMs)

	if err := e.store.SaveSnapshot(snap); err != nil {
		log.Error().Err(err).Msg("snapshot persist failed")
	}
	cutoff := nowMs - retention(e.settings).Milliseconds()
	if err := e.store.DeleteSnapshotsBefore(cutoff); err != nil {
		log.Error().Err(err).Msg("retention delete failed")
	}

	for _, r := range e.tracker.Resolve(e.hist, e.settings.HorizonMinutes, nowMs) {
		if err := e.store.SaveOutcome(r); err != nil {
			log.Error().Err(err).Msg("outcome persist failed")
		}
		log.Debug().
			Bool("correct", r.Correct).
			Float64("pUp", r.PUp).
			Float64("brier", r.Brier).
			Msg("prediction resolved")
	}

	sig := e.scorer.Score(e.settings.HorizonMinutes, nowMs)
	vol := e.features.Volatility(KeyGold, math.Max(10, e.settings.HorizonMinutes))
	zones := EstimateZones(sig, vol, e.settings.PollIntervalMs, e.settings.HorizonMinutes)
	dec := Decide(sig, zones, e.profile, e.settings, e.policy, nowMs)
	if dec.Action != ActionHold {
		e.policy = PolicyState{LastAction: dec.Action, LastActionAtMs: nowMs}
	}

	e.tracker.Record(PendingPrediction{
		TimestampMs: snap.TimestampMs,
		BasePrice:   snap.GoldPrice,
		PUp:         sig.PUp,
	})

	e.lastSignal = &sig
	e.lastZones = &zones
	e.lastDecision = &dec
	e.lastError = ""
	st := e.stateLocked()
	e.mu.Unlock()

	log.Debug().
		Float64("price", snap.GoldPrice).
		Float64("pUp", sig.PUp).
		Float64("confidence", sig.Confidence).
		Str("action", string(dec.Action)).
		Str("gate", string(dec.Gate)).
		Msg("tick complete")

	e.publish(st)
	return nil
}

// fetch issues both provider requests concurrently and awaits both. Either
// failure, including timeout, fails the whole tick; no partial snapshot is
// ever committed.
func (e *Engine) fetch(ctx context.Context, timeout time.Duration) (RawTick, error) {
	fctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type quoteResult struct {
		quote RawQuote
		err   error
	}
	type indResult struct {
		inds map[FeatureKey]RawIndicator
		err  error
	}
	quoteCh := make(chan quoteResult, 1)
	indCh := make(chan indResult, 1)

	go func() {
		q, err := e.source.FetchQuote(fctx)
		quoteCh <- quoteResult{quote: q, err: err}
	}()
	go func() {
		i, err := e.source.FetchIndicators(fctx)
		indCh <- indResult{inds: i, err: err}
	}()

	qr := <-quoteCh
	ir := <-indCh
	if qr.err != nil {
		return RawTick{}, &FetchError{Source: "quote", Err: qr.err}
	}
	if ir.err != nil {
		return RawTick{}, &FetchError{Source: "indicators", Err: ir.err}
	}
	return RawTick{Quote: qr.quote, Indicators: ir.inds}, nil
}

func (e *Engine) recordError(err error) {
	log.Error().Err(err).Msg("tick aborted")
	e.mu.Lock()
	e.lastError = err.Error()
	st := e.stateLocked()
	e.mu.Unlock()
	e.publish(st)
}

// SettingsPatch carries the fields a caller wants to change; nil fields keep
// their current values.
type SettingsPatch struct {
	PollIntervalMs        *int64   `json:"pollIntervalMs"`
	RequestTimeoutMs      *int64   `json:"requestTimeoutMs"`
	FreshnessCeilingMin   *float64 `json:"freshnessCeilingMin"`
	HistoryRetentionHours *float64 `json:"historyRetentionHours"`
	MaxInMemoryPoints     *int     `json:"maxInMemoryPoints"`
	HorizonMinutes        *float64 `json:"horizonMinutes"`
	BuyThreshold          *float64 `json:"buyThreshold"`
	SellThreshold         *float64 `json:"sellThreshold"`
	MinConfidence         *float64 `json:"minConfidence"`
	ActionCooldownMin     *float64 `json:"actionCooldownMin"`
}

// UpdateSettings validates the merged result before applying it; a rejected
// patch leaves the engine untouched. A poll-interval change re-arms the
// scheduled timer.
func (e *Engine) UpdateSettings(p SettingsPatch) (Settings, error) {
	e.mu.Lock()
	merged := e.settings
	if p.PollIntervalMs != nil {
		merged.PollIntervalMs = *p.PollIntervalMs
	}
	if p.RequestTimeoutMs != nil {
		merged.RequestTimeoutMs = *p.RequestTimeoutMs
	}
	if p.FreshnessCeilingMin != nil {
		merged.FreshnessCeilingMin = *p.FreshnessCeilingMin
	}
	if p.HistoryRetentionHours != nil {
		merged.HistoryRetentionHours = *p.HistoryRetentionHours
	}
	if p.MaxInMemoryPoints != nil {
		merged.MaxInMemoryPoints = *p.MaxInMemoryPoints
	}
	if p.HorizonMinutes != nil {
		merged.HorizonMinutes = *p.HorizonMinutes
	}
	if p.BuyThreshold != nil {
		merged.BuyThreshold = *p.BuyThreshold
	}
	if p.SellThreshold != nil {
		merged.SellThreshold = *p.SellThreshold
	}
	if p.MinConfidence != nil {
		merged.MinConfidence = *p.MinConfidence
	}
	if p.ActionCooldownMin != nil {
		merged.ActionCooldownMin = *p.ActionCooldownMin
	}
	if err := merged.Validate(); err != nil {
		e.mu.Unlock()
		return Settings{}, err
	}
	intervalChanged := merged.PollIntervalMs != e.settings.PollIntervalMs
	e.settings = merged
	e.hist.Configure(merged.MaxInMemoryPoints, retention(merged))
	e.hist.Trim(e.now().UnixMilli())
	st := e.stateLocked()
	e.mu.Unlock()

	if err := e.store.SaveSettings(merged); err != nil {
		log.Error().Err(err).Msg("settings persist failed")
	}
	if intervalChanged {
		select {
		case e.reschedule <- struct{}{}:
		default:
		}
	}
	log.Info().Int64("pollIntervalMs", merged.PollIntervalMs).Msg("settings updated")
	e.publish(st)
	return merged, nil
}

// ProfilePatch carries partial portfolio updates.
type ProfilePatch struct {
	CashAmount  *decimal.Decimal `json:"cashAmount"`
	GoldGrams   *decimal.Decimal `json:"goldGrams"`
	AvgBuyPrice *decimal.Decimal `json:"avgBuyPrice"`
	BuyFeePct   *float64         `json:"buyFeePct"`
	SellFeePct  *float64         `json:"sellFeePct"`
}

// UpdateProfile validates the merged result before applying it; never
// partially applies.
func (e *Engine) UpdateProfile(p ProfilePatch) (Profile, error) {
	e.mu.Lock()
	merged := e.profile
	if p.CashAmount != nil {
		merged.CashAmount = *p.CashAmount
	}
	if p.GoldGrams != nil {
		merged.GoldGrams = *p.GoldGrams
	}
	if p.AvgBuyPrice != nil {
		merged.AvgBuyPrice = *p.AvgBuyPrice
	}
	if p.BuyFeePct != nil {
		merged.BuyFeePct = *p.BuyFeePct
	}
	if p.SellFeePct != nil {
		merged.SellFeePct = *p.SellFeePct
	}
	if err := merged.Validate(); err != nil {
		e.mu.Unlock()
		return Profile{}, err
	}
	e.profile = merged
	st := e.stateLocked()
	e.mu.Unlock()

	if err := e.store.SaveProfile(merged); err != nil {
		log.Error().Err(err).Msg("profile persist failed")
	}
	log.Info().Msg("profile updated")
	e.publish(st)
	return merged, nil
}

// GetState returns a deep-copied, serializable snapshot of engine state.
func (e *Engine) GetState() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stateLocked()
}

func (e *Engine) stateLocked() State {
	st := State{
		Settings:           e.settings,
		Profile:            e.profile,
		Signal:             copySignal(e.lastSignal),
		Zones:              copyZones(e.lastZones),
		Decision:           copyDecision(e.lastDecision),
		Policy:             e.policy,
		Metrics:            metricsView(e.tracker.Metrics()),
		PendingPredictions: e.tracker.PendingCount(),
		PriceHistory:       e.hist.PricePoints(stateHistoryLimit),
		LastError:          e.lastError,
		UpdatedAtMs:        e.now().UnixMilli(),
	}
	if e.logs != nil {
		st.LogLines = e.logs.Lines()
	}
	return st
}

// Subscribe registers a state listener. The current state is delivered
// immediately, then every subsequent change. The returned cancel func
// unregisters the listener and closes its channel.
func (e *Engine) Subscribe() (<-chan State, func()) {
	ch := make(chan State, 16)
	e.mu.Lock()
	id := e.nextSub
	e.nextSub++
	e.subs[id] = ch
	st := e.stateLocked()
	e.mu.Unlock()

	ch <- st
	return ch, func() {
		e.mu.Lock()
		if c, ok := e.subs[id]; ok {
			delete(e.subs, id)
			close(c)
		}
		e.mu.Unlock()
	}
}

// publish fans the state out to all subscribers. A slow consumer loses its
// oldest buffered state rather than blocking the publisher.
func (e *Engine) publish(st State) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, ch := range e.subs {
		select {
		case ch <- st:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- st:
			default:
			}
		}
	}
}
