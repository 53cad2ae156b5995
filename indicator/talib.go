// Package indicator provides the pure technical-indicator kernel used by the
// market monitor. All functions are deterministic and side-effect free; output
// slices are aligned with the input and carry zeros until the window fills.
package indicator

import "github.com/markcheno/go-talib"

// MaType represents moving average type
type MaType = talib.MaType

// Moving average type constants
const (
	TypeSMA = talib.SMA // Simple Moving Average
	TypeEMA = talib.EMA // Exponential Moving Average
)

// SMA calculates Simple Moving Average
func SMA(input []float64, period int) []float64 {
	return talib.Sma(input, period)
}

// EMA calculates Exponential Moving Average
func EMA(input []float64, period int) []float64 {
	return talib.Ema(input, period)
}

// StdDev calculates the rolling standard deviation
func StdDev(input []float64, period int, deviation float64) []float64 {
	return talib.StdDev(input, period, deviation)
}

// BB calculates Bollinger Bands with SMA(period) ± deviation·σ(period)
// Returns upper, middle, and lower bands
func BB(input []float64, period int, deviation float64) ([]float64, []float64, []float64) {
	return talib.BBands(input, period, deviation, deviation, talib.SMA)
}

// ATR calculates Average True Range with Wilder smoothing
func ATR(high, low, close []float64, period int) []float64 {
	return talib.Atr(high, low, close, period)
}

// RSI calculates Relative Strength Index with Wilder averaging
func RSI(input []float64, period int) []float64 {
	return talib.Rsi(input, period)
}

// MACD calculates Moving Average Convergence/Divergence
// Returns MACD, signal, and histogram (macd − signal)
func MACD(input []float64, fastPeriod, slowPeriod, signalPeriod int) ([]float64, []float64, []float64) {
	return talib.Macd(input, fastPeriod, slowPeriod, signalPeriod)
}

// ADX calculates Average Directional Movement Index
func ADX(high, low, close []float64, period int) []float64 {
	return talib.Adx(high, low, close, period)
}

// PlusDI calculates Plus Directional Indicator
func PlusDI(high, low, close []float64, period int) []float64 {
	return talib.PlusDI(high, low, close, period)
}

// MinusDI calculates Minus Directional Indicator
func MinusDI(high, low, close []float64, period int) []float64 {
	return talib.MinusDI(high, low, close, period)
}
