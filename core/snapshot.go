package core

import "time"

// TrendDirection classifies the prevailing trend of a snapshot.
type TrendDirection string

// Trend direction constants
const (
	TrendUp         TrendDirection = "up"
	TrendDown       TrendDirection = "down"
	TrendStrongDown TrendDirection = "strong_down"
	TrendSideways   TrendDirection = "sideways"
	TrendUnknown    TrendDirection = "unknown"
)

// IndicatorSnapshot is an immutable view of the market derived from the
// most recent bars of one timeframe. Produced once per monitor tick.
type IndicatorSnapshot struct {
	Symbol    string
	Timeframe string
	Time      time.Time

	Price float64

	// Rolling extrema and the position of the current price inside the
	// window, as a percentage in [0, 100].
	High24h           float64
	Low24h            float64
	High7d            float64
	Low7d             float64
	PricePosition24h  float64
	PricePosition7d   float64

	ATR        float64
	ATRPercent float64

	RSI float64

	MACD          float64
	MACDSignal    float64
	MACDHistogram float64

	ADX     float64
	PlusDI  float64
	MinusDI float64

	BBUpper    float64
	BBMiddle   float64
	BBLower    float64
	BBPosition float64

	TrendDirection TrendDirection
	TrendStrength  float64 // in [0, 1]

	// Ready is false when fewer bars were available than the indicator
	// windows require; all values then carry neutral defaults.
	Ready bool
}

// PricePosition returns the relative position of price inside [low, high]
// as a percentage. Returns 50 when the window is degenerate.
func PricePosition(price, low, high float64) float64 {
	if high <= low {
		return 50
	}
	pos := (price - low) / (high - low) * 100
	if pos < 0 {
		return 0
	}
	if pos > 100 {
		return 100
	}
	return pos
}
