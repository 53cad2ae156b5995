package monitor

import (
	"testing"

	"github.com/lcerda/tidebot/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultScoring() core.ScoringConfig {
	return core.ScoringConfig{
		BuyThreshold:    0.20,
		SellThreshold:   -0.20,
		StrongSignal:    0.80,
		CooldownMinutes: 15,
	}
}

func readySnap() core.IndicatorSnapshot {
	return core.IndicatorSnapshot{
		Symbol:           "BTCUSDT",
		Timeframe:        "5m",
		Price:            100,
		RSI:              50,
		ATR:              1,
		ATRPercent:       1,
		BBPosition:       50,
		PricePosition24h: 50,
		PricePosition7d:  50,
		TrendDirection:   core.TrendSideways,
		Ready:            true,
	}
}

func TestComputeScore_Bounds(t *testing.T) {
	snaps := []core.IndicatorSnapshot{
		readySnap(),
		{RSI: 0, BBPosition: 0, PricePosition24h: 0, PricePosition7d: 0,
			MACDHistogram: 100, ATR: 0.001, TrendDirection: core.TrendUp, TrendStrength: 1, Ready: true},
		{RSI: 100, BBPosition: 100, PricePosition24h: 100, PricePosition7d: 100,
			MACDHistogram: -100, ATR: 0.001, TrendDirection: core.TrendStrongDown, TrendStrength: 1, Ready: true},
	}

	for _, snap := range snaps {
		score, vector := ComputeScore(snap)
		assert.GreaterOrEqual(t, score, -1.0)
		assert.LessOrEqual(t, score, 1.0)
		for _, f := range vector.Factors {
			assert.GreaterOrEqual(t, f.Value, -1.0, f.Name)
			assert.LessOrEqual(t, f.Value, 1.0, f.Name)
		}
	}
}

func TestComputeScore_ProfileSwitch(t *testing.T) {
	snap := readySnap()
	_, vector := ComputeScore(snap)
	assert.Equal(t, ProfileNormal, vector.Profile)

	// All three oversold conditions must hold for the switch.
	snap.PricePosition24h = 10
	snap.PricePosition7d = 10
	_, vector = ComputeScore(snap)
	assert.Equal(t, ProfileNormal, vector.Profile)

	snap.RSI = 25
	_, vector = ComputeScore(snap)
	require.Equal(t, ProfileOversold, vector.Profile)

	// The oversold profile attenuates MACD heavily.
	for _, f := range vector.Factors {
		if f.Name == "macd" {
			assert.Equal(t, oversoldWeights.macd, f.Weight)
		}
	}
}

func TestComputeScore_NormalWeightsSumToOne(t *testing.T) {
	sum := normalWeights.rsi + normalWeights.macd + normalWeights.boll +
		normalWeights.pos24h + normalWeights.pos7d + normalWeights.trend
	assert.InDelta(t, 1.0, sum, 1e-9)

	oversoldSum := oversoldWeights.rsi + oversoldWeights.macd + oversoldWeights.boll +
		oversoldWeights.pos24h + oversoldWeights.pos7d + oversoldWeights.trend
	assert.Less(t, oversoldSum, 1.0)
}

func TestFuse_MomentumBuyNeedsGate(t *testing.T) {
	snap := readySnap()
	snap.BBPosition = 15
	snap.PricePosition24h = 20
	snap.PricePosition7d = 18

	result, used := Fuse(snap, 0.45, ScoreVector{Profile: ProfileNormal}, core.ReboundResult{SignalType: core.SignalHold}, defaultScoring())
	assert.False(t, used)
	assert.Equal(t, core.SignalBuy, result.SignalType)
	assert.True(t, result.ShouldTrade)
	assert.InDelta(t, (0.45+1)/2, result.FusedConfidence, 1e-9)
}

func TestFuse_HighMomentumBlockedByGate(t *testing.T) {
	snap := readySnap()
	snap.BBPosition = 72
	snap.PricePosition24h = 68

	result, _ := Fuse(snap, 0.45, ScoreVector{Profile: ProfileNormal}, core.ReboundResult{SignalType: core.SignalHold}, defaultScoring())
	assert.Equal(t, core.SignalHold, result.SignalType)
	assert.False(t, result.ShouldTrade)
	assert.Contains(t, result.Message, "low-price gate failed")
}

func TestFuse_GateConjuncts(t *testing.T) {
	tt := []struct {
		name  string
		mod   func(*core.IndicatorSnapshot)
		wants core.SignalType
	}{
		{"all pass", func(s *core.IndicatorSnapshot) {
			s.BBPosition, s.PricePosition24h, s.PricePosition7d = 40, 40, 30
		}, core.SignalBuy},
		{"bb too high", func(s *core.IndicatorSnapshot) {
			s.BBPosition, s.PricePosition24h, s.PricePosition7d = 55, 40, 30
		}, core.SignalHold},
		{"24h too high", func(s *core.IndicatorSnapshot) {
			s.BBPosition, s.PricePosition24h, s.PricePosition7d = 40, 55, 30
		}, core.SignalHold},
		{"7d too high", func(s *core.IndicatorSnapshot) {
			s.BBPosition, s.PricePosition24h, s.PricePosition7d = 40, 40, 45
		}, core.SignalHold},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			snap := readySnap()
			tc.mod(&snap)
			result, _ := Fuse(snap, 0.30, ScoreVector{}, core.ReboundResult{SignalType: core.SignalHold}, defaultScoring())
			assert.Equal(t, tc.wants, result.SignalType)
		})
	}
}

func TestFuse_SellAndReversal(t *testing.T) {
	snap := readySnap()
	snap.BBPosition = 10
	snap.PricePosition24h = 8
	snap.PricePosition7d = 6

	rebound := core.ReboundResult{SignalType: core.SignalBuy, Confidence: 0.7}

	// Deep negative score with a rebound and an open gate reverses to BUY.
	result, used := Fuse(snap, -0.40, ScoreVector{}, rebound, defaultScoring())
	require.True(t, used)
	assert.Equal(t, core.SignalBuy, result.SignalType)
	alpha := (-0.40 + 1) / 2
	assert.InDelta(t, 0.4*alpha+0.6*0.7, result.FusedConfidence, 1e-9)

	// Without the rebound the same score sells.
	result, used = Fuse(snap, -0.40, ScoreVector{}, core.ReboundResult{SignalType: core.SignalHold}, defaultScoring())
	assert.False(t, used)
	assert.Equal(t, core.SignalSell, result.SignalType)

	// With the gate closed the rebound does not rescue the sell.
	closed := readySnap()
	closed.BBPosition = 80
	result, used = Fuse(closed, -0.40, ScoreVector{}, rebound, defaultScoring())
	assert.False(t, used)
	assert.Equal(t, core.SignalSell, result.SignalType)
}

func TestFuse_NeutralBandReboundBuy(t *testing.T) {
	snap := readySnap()
	snap.BBPosition = 15
	snap.PricePosition24h = 10
	snap.PricePosition7d = 8

	rebound := core.ReboundResult{SignalType: core.SignalBuy, Confidence: 0.8, Triggers: []string{"rsi crossed up"}}
	result, used := Fuse(snap, 0.05, ScoreVector{}, rebound, defaultScoring())
	require.True(t, used)
	assert.Equal(t, core.SignalBuy, result.SignalType)
	assert.Contains(t, result.Triggers, "rsi crossed up")

	// No rebound, neutral score: hold.
	result, _ = Fuse(snap, 0.05, ScoreVector{}, core.ReboundResult{SignalType: core.SignalHold}, defaultScoring())
	assert.Equal(t, core.SignalHold, result.SignalType)
}

func TestFuse_Deterministic(t *testing.T) {
	snap := readySnap()
	snap.BBPosition = 20
	snap.PricePosition24h = 15
	snap.PricePosition7d = 12
	rebound := core.ReboundResult{SignalType: core.SignalBuy, Confidence: 0.65, Triggers: []string{"t"}}

	a, _ := Fuse(snap, 0.1, ScoreVector{Profile: ProfileNormal}, rebound, defaultScoring())
	b, _ := Fuse(snap, 0.1, ScoreVector{Profile: ProfileNormal}, rebound, defaultScoring())
	assert.Equal(t, a, b)
}

func TestFuse_UnreadySnapshotHolds(t *testing.T) {
	snap := readySnap()
	snap.Ready = false

	result, _ := Fuse(snap, 0.9, ScoreVector{}, core.ReboundResult{SignalType: core.SignalBuy}, defaultScoring())
	assert.Equal(t, core.SignalHold, result.SignalType)
	assert.Equal(t, "indicator unready", result.Message)
}
