package indicator

import (
	"math"
	"testing"
	"time"

	"github.com/lcerda/tidebot/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func barsFromCloses(closes []float64) []core.Bar {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
	bars := make([]core.Bar, len(closes))
	for i, c := range closes {
		bars[i] = core.Bar{
			Timestamp: start + int64(i)*5*60*1000,
			Open:      c * 0.999,
			High:      c * 1.002,
			Low:       c * 0.998,
			Close:     c,
			Volume:    1000,
		}
	}
	return bars
}

func TestBuildSnapshot_InsufficientData(t *testing.T) {
	closes := []float64{100, 101, 102}
	snap := BuildSnapshot("BTCUSDT", "5m", barsFromCloses(closes))

	assert.False(t, snap.Ready)
	assert.Equal(t, NeutralRSI, snap.RSI)
	assert.Zero(t, snap.ATR)
	assert.Equal(t, core.TrendUnknown, snap.TrendDirection)
	assert.Equal(t, 102.0, snap.Price)
}

func TestBuildSnapshot_EmptySeries(t *testing.T) {
	snap := BuildSnapshot("BTCUSDT", "5m", nil)
	assert.False(t, snap.Ready)
	assert.Zero(t, snap.Price)
}

func TestBuildSnapshot_RisingSeries(t *testing.T) {
	closes := make([]float64, 120)
	for i := range closes {
		closes[i] = 100 + float64(i)*0.5
	}
	snap := BuildSnapshot("BTCUSDT", "5m", barsFromCloses(closes))

	require.True(t, snap.Ready)
	assert.Greater(t, snap.RSI, 60.0)
	assert.Greater(t, snap.MACDHistogram, 0.0)
	assert.Greater(t, snap.ATR, 0.0)
	assert.Greater(t, snap.ATRPercent, 0.0)

	// Last close sits at the top of both windows.
	assert.Greater(t, snap.PricePosition24h, 95.0)
	assert.Greater(t, snap.PricePosition7d, 95.0)
	assert.LessOrEqual(t, snap.PricePosition24h, 100.0)
}

func TestBuildSnapshot_FallingSeries(t *testing.T) {
	closes := make([]float64, 120)
	for i := range closes {
		closes[i] = 200 - float64(i)*0.5
	}
	snap := BuildSnapshot("BTCUSDT", "5m", barsFromCloses(closes))

	require.True(t, snap.Ready)
	assert.Less(t, snap.RSI, 40.0)
	assert.Less(t, snap.MACDHistogram, 0.0)
	assert.Less(t, snap.PricePosition24h, 5.0)
	assert.Contains(t, []core.TrendDirection{core.TrendDown, core.TrendStrongDown}, snap.TrendDirection)
	assert.GreaterOrEqual(t, snap.TrendStrength, 0.0)
	assert.LessOrEqual(t, snap.TrendStrength, 1.0)
}

func TestBuildSnapshot_BollingerOrdering(t *testing.T) {
	closes := make([]float64, 100)
	for i := range closes {
		closes[i] = 100 + 3*math.Sin(float64(i)/7)
	}
	snap := BuildSnapshot("BTCUSDT", "5m", barsFromCloses(closes))

	require.True(t, snap.Ready)
	assert.Greater(t, snap.BBUpper, snap.BBMiddle)
	assert.Greater(t, snap.BBMiddle, snap.BBLower)
	assert.GreaterOrEqual(t, snap.BBPosition, 0.0)
	assert.LessOrEqual(t, snap.BBPosition, 100.0)
}

func TestPricePosition(t *testing.T) {
	tt := []struct {
		name              string
		price, low, high  float64
		want              float64
	}{
		{"bottom", 10, 10, 20, 0},
		{"top", 20, 10, 20, 100},
		{"middle", 15, 10, 20, 50},
		{"degenerate window", 15, 15, 15, 50},
		{"below window clamps", 5, 10, 20, 0},
		{"above window clamps", 25, 10, 20, 100},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.want, core.PricePosition(tc.price, tc.low, tc.high), 1e-9)
		})
	}
}
