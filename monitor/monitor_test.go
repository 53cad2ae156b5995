package monitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lcerda/tidebot/core"
	zl "github.com/lcerda/tidebot/logger/zerolog"
	"github.com/lcerda/tidebot/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFeeder struct {
	bars []core.Bar
	err  error
}

func (f *fakeFeeder) BarsByLimit(_ context.Context, _, _ string, limit int) ([]core.Bar, error) {
	if f.err != nil {
		return nil, f.err
	}
	if len(f.bars) > limit {
		return f.bars[len(f.bars)-limit:], nil
	}
	return f.bars, nil
}

func (f *fakeFeeder) Ticker(_ context.Context, _ string) (core.Ticker, error) {
	if len(f.bars) == 0 {
		return core.Ticker{}, errors.New("no data")
	}
	return core.Ticker{Last: f.bars[len(f.bars)-1].Close}, nil
}

func fallingBars(n int) []core.Bar {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
	bars := make([]core.Bar, n)
	for i := range bars {
		c := 200 - float64(i)*0.5
		bars[i] = core.Bar{
			Timestamp: start + int64(i)*5*60*1000,
			Open:      c + 0.3,
			High:      c + 0.6,
			Low:       c - 0.6,
			Close:     c,
			Volume:    100,
		}
	}
	return bars
}

func newTestMonitor(t *testing.T, feeder core.Feeder) *Monitor {
	t.Helper()
	log := zl.NewAdapter(zl.NewNop().Logger)
	tiered := store.NewTieredStore(log)
	t.Cleanup(func() { tiered.Close() })

	return NewMonitor(
		log, feeder, tiered,
		NewReboundDetector(),
		NewCooldownTracker(15*time.Minute, nil),
		"BTCUSDT", "5m",
		defaultScoring(),
		core.MonitorConfig{TickIntervalSeconds: 60, HistoryBars: 500, SnapshotRetention: 3},
	)
}

func TestMonitor_CheckProducesSignal(t *testing.T) {
	m := newTestMonitor(t, &fakeFeeder{bars: fallingBars(300)})

	result, err := m.Check(context.Background())
	require.NoError(t, err)

	// A deep decline puts price at the bottom of every window: the
	// oversold profile dominates and the low-price gate is open.
	assert.Equal(t, core.SignalBuy, result.SignalType)
	assert.True(t, result.ShouldTrade)
	assert.GreaterOrEqual(t, result.TradeScore, -1.0)
	assert.LessOrEqual(t, result.TradeScore, 1.0)

	last, ok := m.LastResult()
	require.True(t, ok)
	assert.Equal(t, result.SignalType, last.SignalType)
	assert.Len(t, m.Snapshots(), 1)
}

func TestMonitor_CooldownDemotesRepeatSignal(t *testing.T) {
	m := newTestMonitor(t, &fakeFeeder{bars: fallingBars(300)})
	ctx := context.Background()

	first, err := m.Check(ctx)
	require.NoError(t, err)
	require.Equal(t, core.SignalBuy, first.SignalType)

	// Cooldown arms only on execution.
	again, err := m.Check(ctx)
	require.NoError(t, err)
	assert.Equal(t, core.SignalBuy, again.SignalType)

	m.ArmCooldown("BTCUSDT", core.SignalBuy)

	demoted, err := m.Check(ctx)
	require.NoError(t, err)
	assert.Equal(t, core.SignalHold, demoted.SignalType)
	assert.False(t, demoted.ShouldTrade)
	assert.Contains(t, demoted.Triggers, "cooldown")
}

func TestMonitor_FetchErrorSkipsTick(t *testing.T) {
	feeder := &fakeFeeder{err: errors.New("connection reset")}
	m := newTestMonitor(t, feeder)

	_, err := m.Check(context.Background())
	require.Error(t, err)
	assert.True(t, core.IsTransient(err))

	_, ok := m.LastResult()
	assert.False(t, ok)
}

func TestMonitor_UnreadyDataHolds(t *testing.T) {
	m := newTestMonitor(t, &fakeFeeder{bars: fallingBars(10)})

	result, err := m.Check(context.Background())
	require.NoError(t, err)
	assert.Equal(t, core.SignalHold, result.SignalType)
	assert.Equal(t, "indicator unready", result.Message)
}

func TestMonitor_SignalForWrongSymbol(t *testing.T) {
	m := newTestMonitor(t, &fakeFeeder{bars: fallingBars(300)})

	_, err := m.SignalFor(context.Background(), "ETHUSDT")
	require.Error(t, err)
	assert.True(t, core.IsInvariantViolation(err))
}

func TestMonitor_SnapshotRetention(t *testing.T) {
	m := newTestMonitor(t, &fakeFeeder{bars: fallingBars(300)})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := m.Check(ctx)
		require.NoError(t, err)
	}
	assert.Len(t, m.Snapshots(), 3)
}
