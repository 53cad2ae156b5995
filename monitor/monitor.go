// Package monitor implements the market monitor: bar ingestion, indicator
// snapshots, score fusion, the oversold-rebound detector and the signal
// cooldown.
package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/lcerda/tidebot/core"
	"github.com/lcerda/tidebot/indicator"
	"github.com/lcerda/tidebot/store"
)

// Monitor watches one symbol on its own timer and synthesizes a
// SignalCheckResult per tick. It is read-only with respect to positions and
// orders; the orchestrator owns both.
type Monitor struct {
	log      core.Logger
	feeder   core.Feeder
	store    *store.TieredStore
	detector *ReboundDetector
	cooldown *CooldownTracker

	symbol    string
	timeframe string
	scoring   core.ScoringConfig
	cfg       core.MonitorConfig

	mu           sync.Mutex
	snapshots    []core.IndicatorSnapshot
	lastResult   *core.SignalCheckResult
	lastRebound  bool
	observers    []core.SignalObserver

	now func() time.Time
}

// NewMonitor creates a monitor for one symbol.
func NewMonitor(
	log core.Logger,
	feeder core.Feeder,
	tiered *store.TieredStore,
	detector *ReboundDetector,
	cooldown *CooldownTracker,
	symbol, timeframe string,
	scoring core.ScoringConfig,
	cfg core.MonitorConfig,
) *Monitor {
	if cfg.TickIntervalSeconds <= 0 {
		cfg.TickIntervalSeconds = 60
	}
	if cfg.HistoryBars <= 0 {
		cfg.HistoryBars = 2100
	}
	if cfg.SnapshotRetention <= 0 {
		cfg.SnapshotRetention = 5
	}

	return &Monitor{
		log:       log.WithField("component", "monitor"),
		feeder:    feeder,
		store:     tiered,
		detector:  detector,
		cooldown:  cooldown,
		symbol:    symbol,
		timeframe: timeframe,
		scoring:   scoring,
		cfg:       cfg,
		now:       time.Now,
	}
}

// Subscribe registers an observer for every produced signal result.
func (m *Monitor) Subscribe(observer core.SignalObserver) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, observer)
}

// Start runs the tick loop until ctx is cancelled.
func (m *Monitor) Start(ctx context.Context) {
	interval := time.Duration(m.cfg.TickIntervalSeconds) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.log.Infof("market monitor started for %s (%s, every %s)", m.symbol, m.timeframe, interval)

	for {
		select {
		case <-ctx.Done():
			m.log.Info("market monitor stopped")
			return
		case <-ticker.C:
			if _, err := m.Check(ctx); err != nil {
				// A fetch error skips the tick and retries next tick;
				// detector and cooldown state are left untouched.
				m.log.WithError(err).Warn("monitor tick skipped")
			}
		}
	}
}

// Check runs the full pipeline once: fetch, store, score, fuse, cooldown.
func (m *Monitor) Check(ctx context.Context) (core.SignalCheckResult, error) {
	bars, err := m.feeder.BarsByLimit(ctx, m.symbol, m.timeframe, m.cfg.HistoryBars)
	if err != nil {
		return core.SignalCheckResult{}, core.NewTransientError("fetch ohlcv", err)
	}

	if err := m.store.Sync(ctx, m.symbol, m.timeframe, bars); err != nil {
		return core.SignalCheckResult{}, err
	}

	stored, err := m.store.Bars(ctx, m.symbol, m.timeframe, m.cfg.HistoryBars)
	if err != nil {
		return core.SignalCheckResult{}, err
	}

	snap := indicator.BuildSnapshot(m.symbol, m.timeframe, stored)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.retainSnapshot(snap)

	score, vector := ComputeScore(snap)
	rebound := m.detector.Observe(snap)
	result, reboundUsed := Fuse(snap, score, vector, rebound, m.scoring)

	if result.ShouldTrade && m.cooldown.Active(m.symbol, result.SignalType, m.now()) {
		result.Message = "cooldown: " + result.Message
		result.Triggers = append(result.Triggers, "cooldown")
		result.SignalType = core.SignalHold
		result.ShouldTrade = false
		reboundUsed = false
	}

	m.lastResult = &result
	m.lastRebound = reboundUsed

	m.log.WithFields(map[string]any{
		"signal": result.SignalType,
		"score":  result.TradeScore,
		"conf":   result.FusedConfidence,
	}).Debugf("signal check: %s", result.Message)

	return result, nil
}

// SignalFor returns the decision for the symbol, refreshing market data.
// The orchestrator calls this once per cycle.
func (m *Monitor) SignalFor(ctx context.Context, symbol string) (core.SignalCheckResult, error) {
	if symbol != m.symbol {
		return core.SignalCheckResult{}, &core.InvariantViolation{
			Invariant: "single-symbol monitor",
			Detail:    "asked for " + symbol + ", monitoring " + m.symbol,
		}
	}
	return m.Check(ctx)
}

// ArmCooldown stamps the last-fire time after the orchestrator actually
// executed a signal, and consumes the rebound if one shaped the decision.
// Arming on execution (not intent) keeps a rejected order from blocking a
// later retry.
func (m *Monitor) ArmCooldown(symbol string, side core.SignalType) {
	m.cooldown.Arm(symbol, side, m.now())

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lastRebound {
		m.detector.MarkConsumed()
		m.lastRebound = false
	}
}

// Emit fans an emitted signal out to the observers.
func (m *Monitor) Emit(signal core.EmittedSignal) {
	m.mu.Lock()
	observers := make([]core.SignalObserver, len(m.observers))
	copy(observers, m.observers)
	m.mu.Unlock()

	for _, o := range observers {
		o.OnSignal(signal)
	}
}

// Snapshots returns the retained snapshots, newest-last.
func (m *Monitor) Snapshots() []core.IndicatorSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]core.IndicatorSnapshot, len(m.snapshots))
	copy(out, m.snapshots)
	return out
}

// LastResult returns the most recent signal check, if any.
func (m *Monitor) LastResult() (core.SignalCheckResult, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lastResult == nil {
		return core.SignalCheckResult{}, false
	}
	return *m.lastResult, true
}

func (m *Monitor) retainSnapshot(snap core.IndicatorSnapshot) {
	m.snapshots = append(m.snapshots, snap)
	if len(m.snapshots) > m.cfg.SnapshotRetention {
		m.snapshots = m.snapshots[len(m.snapshots)-m.cfg.SnapshotRetention:]
	}
}
