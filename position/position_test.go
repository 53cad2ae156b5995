package position

import (
	"testing"

	"github.com/lcerda/tidebot/core"
	zl "github.com/lcerda/tidebot/logger/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newManager() *Manager {
	log := zl.NewAdapter(zl.NewNop().Logger)
	return NewManager(log, core.StopConfig{
		LossPct:      0.005,
		ProfitPct:    0.01,
		TolerancePct: 0.001,
	})
}

func TestUpdateFromExchange_Long(t *testing.T) {
	m := newManager()

	pos, err := m.UpdateFromExchange(core.RawPosition{
		Symbol:     "BTCUSDT",
		Side:       "long",
		Amount:     0.5,
		EntryPrice: 100,
	}, true)
	require.NoError(t, err)
	assert.Equal(t, core.PositionSideLong, pos.Side)
	assert.True(t, m.HasPosition())
	assert.True(t, m.Unprotected())
}

func TestUpdateFromExchange_NoPosition(t *testing.T) {
	m := newManager()
	m.SetStopOrder(core.StopOrderRef{OrderID: "1", StopPrice: 99.5, Amount: 0.5})

	pos, err := m.UpdateFromExchange(core.RawPosition{Symbol: "BTCUSDT"}, false)
	require.NoError(t, err)
	assert.False(t, pos.Exists())
	assert.False(t, m.HasPosition())

	// The stop reference dies with the position.
	_, ok := m.StopOrder()
	assert.False(t, ok)
}

func TestUpdateFromExchange_ShortIsInvariantViolation(t *testing.T) {
	m := newManager()

	pos, err := m.UpdateFromExchange(core.RawPosition{
		Symbol:     "BTCUSDT",
		Side:       "short",
		Amount:     -0.3,
		EntryPrice: 100,
	}, true)
	require.Error(t, err)
	assert.True(t, core.IsInvariantViolation(err))
	assert.True(t, pos.IsShort())
	assert.Equal(t, 0.3, pos.Amount)
}

func TestCalculateStopPrice_Ratchet(t *testing.T) {
	m := newManager()

	// At or below entry: fixed loss floor.
	assert.InDelta(t, 99.5, m.CalculateStopPrice(100, 100), 1e-9)
	assert.InDelta(t, 99.5, m.CalculateStopPrice(100, 98), 1e-9)

	// Just above entry the floor still wins.
	assert.InDelta(t, 99.5, m.CalculateStopPrice(100, 100.2), 1e-9)

	// Well above entry the stop trails price.
	assert.InDelta(t, 102.96, m.CalculateStopPrice(100, 104), 1e-9)
	assert.InDelta(t, 103.95, m.CalculateStopPrice(100, 105), 1e-9)
}

func TestShouldReplaceStop(t *testing.T) {
	m := newManager()

	// No working stop yet: always place one.
	assert.True(t, m.ShouldReplaceStop(0, 99.5))

	// Never ratchet downward.
	assert.False(t, m.ShouldReplaceStop(102.96, 99.5))
	assert.False(t, m.ShouldReplaceStop(102.96, 102.96))

	// A tiny upward move stays under the tolerance. With the stop at
	// 102.96 (price 104), price 104.05 yields 103.0095: a 0.048% move.
	newStop := m.CalculateStopPrice(100, 104.05)
	assert.InDelta(t, 103.0095, newStop, 1e-9)
	assert.False(t, m.ShouldReplaceStop(102.96, newStop))

	// Price 105 yields 103.95: nearly 1%, well past tolerance.
	newStop = m.CalculateStopPrice(100, 105)
	assert.True(t, m.ShouldReplaceStop(102.96, newStop))
}

func TestStopOrderLifecycle(t *testing.T) {
	m := newManager()
	_, err := m.UpdateFromExchange(core.RawPosition{
		Symbol: "BTCUSDT", Side: "long", Amount: 0.5, EntryPrice: 100,
	}, true)
	require.NoError(t, err)

	m.SetStopOrder(core.StopOrderRef{OrderID: "42", StopPrice: 99.5, Amount: 0.5})
	assert.False(t, m.Unprotected())

	ref, ok := m.StopOrder()
	require.True(t, ok)
	assert.Equal(t, "42", ref.OrderID)

	m.ClearStopOrder()
	assert.True(t, m.Unprotected())

	m.Clear()
	assert.False(t, m.HasPosition())
}
