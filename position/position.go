// Package position tracks the single long position the service is allowed
// to hold and owns the trailing stop policy. The exchange is the source of
// truth: local state is rebuilt from it at the start of every trade cycle.
package position

import (
	"math"
	"sync"

	"github.com/lcerda/tidebot/core"
)

// Manager holds the current position and its protective stop reference.
// Safe for concurrent use.
type Manager struct {
	log  core.Logger
	stop core.StopConfig

	mu       sync.RWMutex
	position core.Position
	stopRef  *core.StopOrderRef
}

// NewManager returns an empty position manager.
func NewManager(log core.Logger, stop core.StopConfig) *Manager {
	return &Manager{log: log, stop: stop}
}

// UpdateFromExchange replaces local state with the exchange view. A short
// position is never opened by this service; encountering one is reported
// as an invariant violation and the side is marked for close-only
// handling.
func (m *Manager) UpdateFromExchange(raw core.RawPosition, exists bool) (core.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !exists || raw.Amount == 0 {
		m.position = core.Position{Symbol: raw.Symbol, Side: core.PositionSideNone}
		m.stopRef = nil
		return m.position, nil
	}

	m.position = core.Position{
		Symbol:        raw.Symbol,
		Side:          core.PositionSideLong,
		Amount:        math.Abs(raw.Amount),
		EntryPrice:    raw.EntryPrice,
		UnrealizedPnL: raw.UnrealizedPnL,
	}

	if raw.Side == "short" || raw.Amount < 0 {
		m.position.Side = core.PositionSideShortToClose
		return m.position, &core.InvariantViolation{
			Invariant: "long-only",
			Detail:    "exchange reports a short position for " + raw.Symbol,
		}
	}

	return m.position, nil
}

// Current returns a copy of the tracked position.
func (m *Manager) Current() core.Position {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.position
}

// HasPosition reports whether an open position is tracked.
func (m *Manager) HasPosition() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.position.Exists()
}

// Clear drops the tracked position and its stop reference.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.position = core.Position{Symbol: m.position.Symbol, Side: core.PositionSideNone}
	m.stopRef = nil
}

// CalculateStopPrice applies the trailing policy. While price sits at or
// below entry the stop is the fixed loss floor; once price moves above
// entry the stop trails it, never dropping below the floor.
func (m *Manager) CalculateStopPrice(entry, current float64) float64 {
	floor := entry * (1 - m.stop.LossPct)
	if current <= entry {
		return floor
	}
	return math.Max(current*(1-m.stop.ProfitPct), floor)
}

// ShouldReplaceStop reports whether a freshly calculated stop justifies
// replacing the working order. The stop only ratchets upward, and moves
// smaller than the tolerance are skipped to avoid order churn.
func (m *Manager) ShouldReplaceStop(oldStop, newStop float64) bool {
	if oldStop <= 0 {
		return true
	}
	if newStop <= oldStop {
		return false
	}
	return (newStop-oldStop)/oldStop >= m.stop.TolerancePct
}

// SetStopOrder records the working protective stop.
func (m *Manager) SetStopOrder(ref core.StopOrderRef) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopRef = &ref
}

// StopOrder returns the working stop reference, if any.
func (m *Manager) StopOrder() (core.StopOrderRef, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.stopRef == nil {
		return core.StopOrderRef{}, false
	}
	return *m.stopRef, true
}

// ClearStopOrder forgets the working stop without touching the position.
func (m *Manager) ClearStopOrder() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopRef = nil
}

// Unprotected reports an open position without a working stop order.
func (m *Manager) Unprotected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.position.Exists() && m.stopRef == nil
}

// LogStopLossInfo emits the current stop placement relative to price.
func (m *Manager) LogStopLossInfo(current float64) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.position.Exists() {
		return
	}

	fields := map[string]any{
		"symbol": m.position.Symbol,
		"entry":  m.position.EntryPrice,
		"price":  current,
	}
	if m.stopRef != nil {
		fields["stop_price"] = m.stopRef.StopPrice
		if current > 0 {
			fields["stop_distance_pct"] = (current - m.stopRef.StopPrice) / current * 100
		}
	} else {
		fields["stop_price"] = "none"
	}
	m.log.WithFields(fields).Info("position stop status")
}
