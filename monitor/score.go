package monitor

import (
	"github.com/lcerda/tidebot/core"
)

// Factor is one indicator's normalized contribution to the fused score.
type Factor struct {
	Name   string
	Value  float64 // in [-1, 1]
	Weight float64
}

// ScoreVector is the full set of weighted contributions behind one score.
type ScoreVector struct {
	Profile string
	Factors []Factor
}

// Weight profiles. The normal profile sums to 1.0. The oversold profile
// sums slightly below 1.0: MACD lags badly in deep drawdowns, so its weight
// is cut and price-position amplified instead of letting a stale histogram
// drag the score below the buy threshold.
const (
	ProfileNormal   = "normal"
	ProfileOversold = "oversold_area"
)

type weights struct {
	rsi     float64
	macd    float64
	boll    float64
	pos24h  float64
	pos7d   float64
	trend   float64
}

var (
	normalWeights = weights{
		rsi:    0.25,
		macd:   0.25,
		boll:   0.15,
		pos24h: 0.15,
		pos7d:  0.10,
		trend:  0.10,
	}
	oversoldWeights = weights{
		rsi:    0.30,
		macd:   0.05,
		boll:   0.15,
		pos24h: 0.25,
		pos7d:  0.15,
		trend:  0.05,
	}
)

// Oversold-area predicate bounds
const (
	oversoldPosition = 15.0
	oversoldRSI      = 30.0
)

// inOversoldArea selects the weight profile. Pure predicate on the snapshot
// so identical snapshots always score identically.
func inOversoldArea(snap core.IndicatorSnapshot) bool {
	return snap.PricePosition24h < oversoldPosition &&
		snap.PricePosition7d < oversoldPosition &&
		snap.RSI < oversoldRSI
}

// ComputeScore derives the bounded fusion score from a snapshot. Each factor
// is normalized to [-1, 1]; the weighted sum therefore stays in [-1, 1].
func ComputeScore(snap core.IndicatorSnapshot) (float64, ScoreVector) {
	profile := ProfileNormal
	w := normalWeights
	if inOversoldArea(snap) {
		profile = ProfileOversold
		w = oversoldWeights
	}

	factors := []Factor{
		{Name: "rsi", Value: rsiFactor(snap), Weight: w.rsi},
		{Name: "macd", Value: macdFactor(snap), Weight: w.macd},
		{Name: "bollinger", Value: bollingerFactor(snap), Weight: w.boll},
		{Name: "price_position_24h", Value: positionFactor(snap.PricePosition24h), Weight: w.pos24h},
		{Name: "price_position_7d", Value: positionFactor(snap.PricePosition7d), Weight: w.pos7d},
		{Name: "trend", Value: trendFactor(snap), Weight: w.trend},
	}

	var score float64
	for _, f := range factors {
		score += f.Value * f.Weight
	}
	score = clamp(score, -1, 1)

	return score, ScoreVector{Profile: profile, Factors: factors}
}

// rsiFactor leans contrarian: deeply oversold is a buy contribution,
// overbought a sell contribution.
func rsiFactor(snap core.IndicatorSnapshot) float64 {
	return clamp((50-snap.RSI)/50, -1, 1)
}

// macdFactor is the momentum contribution: histogram sign and magnitude,
// normalized by ATR so it is scale-free across symbols.
func macdFactor(snap core.IndicatorSnapshot) float64 {
	if snap.ATR <= 0 {
		return 0
	}
	return clamp(snap.MACDHistogram/(snap.ATR*0.5), -1, 1)
}

// bollingerFactor rewards price near the lower band.
func bollingerFactor(snap core.IndicatorSnapshot) float64 {
	return clamp((50-snap.BBPosition)/50, -1, 1)
}

// positionFactor rewards price low inside its rolling window.
func positionFactor(positionPercent float64) float64 {
	return clamp((50-positionPercent)/50, -1, 1)
}

// trendFactor contributes the ADX-weighted trend direction.
func trendFactor(snap core.IndicatorSnapshot) float64 {
	switch snap.TrendDirection {
	case core.TrendUp:
		return clamp(snap.TrendStrength, 0, 1)
	case core.TrendDown:
		return clamp(-snap.TrendStrength, -1, 0)
	case core.TrendStrongDown:
		return -1
	default:
		return 0
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
