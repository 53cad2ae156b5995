package indicator

import (
	"math"
	"time"

	"github.com/lcerda/tidebot/core"
)

// Default indicator parameters
const (
	ATRPeriod      = 14
	RSIPeriod      = 14
	MACDFast       = 12
	MACDSlow       = 26
	MACDSignal     = 9
	ADXPeriod      = 14
	BBPeriod       = 20
	BBDeviation    = 2.0
	MinBars        = 50
	NeutralRSI     = 50.0
	adxTrending    = 25.0
	adxStrongTrend = 40.0
)

// BuildSnapshot derives an immutable indicator snapshot from a bar series,
// newest-last. With fewer than MinBars bars the snapshot carries neutral
// defaults and Ready is false.
func BuildSnapshot(symbol, timeframe string, bars []core.Bar) core.IndicatorSnapshot {
	snap := core.IndicatorSnapshot{
		Symbol:         symbol,
		Timeframe:      timeframe,
		Time:           time.Now().UTC(),
		RSI:            NeutralRSI,
		TrendDirection: core.TrendUnknown,
	}

	if len(bars) == 0 {
		return snap
	}

	last := bars[len(bars)-1]
	snap.Time = last.Time()
	snap.Price = last.Close

	high24, low24 := extrema(bars, last.Timestamp, 24*time.Hour)
	high7d, low7d := extrema(bars, last.Timestamp, 7*24*time.Hour)
	snap.High24h, snap.Low24h = high24, low24
	snap.High7d, snap.Low7d = high7d, low7d
	snap.PricePosition24h = core.PricePosition(last.Close, low24, high24)
	snap.PricePosition7d = core.PricePosition(last.Close, low7d, high7d)

	if len(bars) < MinBars {
		return snap
	}

	high := make([]float64, len(bars))
	low := make([]float64, len(bars))
	closes := make([]float64, len(bars))
	for i, b := range bars {
		high[i] = b.High
		low[i] = b.Low
		closes[i] = b.Close
	}
	n := len(closes) - 1

	atr := ATR(high, low, closes, ATRPeriod)
	snap.ATR = lastValid(atr, n)
	if last.Close > 0 {
		snap.ATRPercent = snap.ATR / last.Close * 100
	}

	if rsi := lastValid(RSI(closes, RSIPeriod), n); rsi > 0 {
		snap.RSI = rsi
	}

	macd, signal, hist := MACD(closes, MACDFast, MACDSlow, MACDSignal)
	snap.MACD = lastValid(macd, n)
	snap.MACDSignal = lastValid(signal, n)
	snap.MACDHistogram = lastValid(hist, n)

	snap.ADX = lastValid(ADX(high, low, closes, ADXPeriod), n)
	snap.PlusDI = lastValid(PlusDI(high, low, closes, ADXPeriod), n)
	snap.MinusDI = lastValid(MinusDI(high, low, closes, ADXPeriod), n)

	upper, middle, lower := BB(closes, BBPeriod, BBDeviation)
	snap.BBUpper = lastValid(upper, n)
	snap.BBMiddle = lastValid(middle, n)
	snap.BBLower = lastValid(lower, n)
	snap.BBPosition = core.PricePosition(last.Close, snap.BBLower, snap.BBUpper)

	snap.TrendDirection, snap.TrendStrength = classifyTrend(snap.ADX, snap.PlusDI, snap.MinusDI)
	snap.Ready = true

	return snap
}

// extrema returns the high/low over the window ending at the last bar.
func extrema(bars []core.Bar, endMs int64, window time.Duration) (high, low float64) {
	cutoff := endMs - window.Milliseconds()
	high = math.Inf(-1)
	low = math.Inf(1)

	for i := len(bars) - 1; i >= 0; i-- {
		b := bars[i]
		if b.Timestamp < cutoff {
			break
		}
		if b.High > high {
			high = b.High
		}
		if b.Low < low {
			low = b.Low
		}
	}

	if math.IsInf(high, -1) || math.IsInf(low, 1) {
		last := bars[len(bars)-1]
		return last.High, last.Low
	}
	return high, low
}

// classifyTrend maps ADX and the directional indicators to a trend label
// and a strength in [0, 1].
func classifyTrend(adx, plusDI, minusDI float64) (core.TrendDirection, float64) {
	strength := adx / 50.0
	if strength > 1 {
		strength = 1
	}
	if strength < 0 {
		strength = 0
	}

	switch {
	case adx == 0 && plusDI == 0 && minusDI == 0:
		return core.TrendUnknown, 0
	case adx >= adxStrongTrend && minusDI > plusDI:
		return core.TrendStrongDown, strength
	case adx >= adxTrending && plusDI > minusDI:
		return core.TrendUp, strength
	case adx >= adxTrending && minusDI > plusDI:
		return core.TrendDown, strength
	default:
		return core.TrendSideways, strength
	}
}

// lastValid returns series[idx], guarding against short or NaN output.
func lastValid(series []float64, idx int) float64 {
	if idx < 0 || idx >= len(series) {
		return 0
	}
	v := series[idx]
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
