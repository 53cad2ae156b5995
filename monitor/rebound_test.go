package monitor

import (
	"testing"

	"github.com/lcerda/tidebot/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reboundSnap(rsi, hist, pos24 float64) core.IndicatorSnapshot {
	return core.IndicatorSnapshot{
		Symbol:           "BTCUSDT",
		Price:            100,
		RSI:              rsi,
		MACDHistogram:    hist,
		ATR:              1.5,
		PricePosition24h: pos24,
		Ready:            true,
	}
}

func TestReboundDetector_Fires(t *testing.T) {
	d := NewReboundDetector()

	out := d.Observe(reboundSnap(28, -1.0, 10))
	assert.Equal(t, core.SignalHold, out.SignalType)

	out = d.Observe(reboundSnap(32, 0.2, 10))
	require.Equal(t, core.SignalBuy, out.SignalType)
	assert.Greater(t, out.Confidence, 0.5)
	assert.LessOrEqual(t, out.Confidence, 1.0)
	assert.Len(t, out.Triggers, 3)
}

func TestReboundDetector_RequiresAllConditions(t *testing.T) {
	tt := []struct {
		name string
		prev core.IndicatorSnapshot
		curr core.IndicatorSnapshot
	}{
		{"no rsi cross", reboundSnap(35, -1.0, 10), reboundSnap(36, 0.2, 10)},
		{"histogram still negative", reboundSnap(28, -1.0, 10), reboundSnap(32, -0.5, 10)},
		{"histogram falling", reboundSnap(28, 0.5, 10), reboundSnap(32, 0.2, 10)},
		{"price too high in range", reboundSnap(28, -1.0, 40), reboundSnap(32, 0.2, 40)},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			d := NewReboundDetector()
			d.Observe(tc.prev)
			out := d.Observe(tc.curr)
			assert.Equal(t, core.SignalHold, out.SignalType)
		})
	}
}

func TestReboundDetector_SuppressionAfterConsumption(t *testing.T) {
	d := NewReboundDetector()

	d.Observe(reboundSnap(28, -1.0, 10))
	out := d.Observe(reboundSnap(32, 0.2, 10))
	require.Equal(t, core.SignalBuy, out.SignalType)

	d.MarkConsumed()

	// The same pattern is suppressed until RSI re-enters oversold.
	d.Observe(reboundSnap(29, -0.5, 10)) // below floor: re-arms
	out = d.Observe(reboundSnap(33, 0.3, 10))
	assert.Equal(t, core.SignalBuy, out.SignalType)
}

func TestReboundDetector_SuppressedWithoutReset(t *testing.T) {
	d := NewReboundDetector()
	d.Observe(reboundSnap(28, -1.0, 10))
	require.Equal(t, core.SignalBuy, d.Observe(reboundSnap(32, 0.2, 10)).SignalType)
	d.MarkConsumed()

	// RSI never dips below the floor again; nothing may fire.
	d.Observe(reboundSnap(31, -0.2, 10))
	out := d.Observe(reboundSnap(35, 0.4, 10))
	assert.Equal(t, core.SignalHold, out.SignalType)
}

func TestReboundDetector_UnreadySnapshots(t *testing.T) {
	d := NewReboundDetector()
	prev := reboundSnap(28, -1.0, 10)
	prev.Ready = false
	d.Observe(prev)
	out := d.Observe(reboundSnap(32, 0.2, 10))
	assert.Equal(t, core.SignalHold, out.SignalType)
}

func TestReboundDetector_ConfidenceClipped(t *testing.T) {
	d := NewReboundDetector()
	d.Observe(reboundSnap(5, -10, 0))
	out := d.Observe(reboundSnap(95, 50, 0))
	require.Equal(t, core.SignalBuy, out.SignalType)
	assert.LessOrEqual(t, out.Confidence, 1.0)
}
