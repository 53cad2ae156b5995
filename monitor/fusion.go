package monitor

import (
	"fmt"

	"github.com/lcerda/tidebot/core"
)

// Low-price gate bounds: every BUY must leave room below the band middle
// and the rolling windows.
const (
	gateMaxBBPosition  = 50.0
	gateMaxPosition24h = 50.0
	gateMaxPosition7d  = 40.0
)

// lowPriceGate is the conjunction required for any BUY.
func lowPriceGate(snap core.IndicatorSnapshot) bool {
	return snap.BBPosition < gateMaxBBPosition &&
		snap.PricePosition24h < gateMaxPosition24h &&
		snap.PricePosition7d < gateMaxPosition7d
}

// Fuse combines the weighted score with the rebound detector output into
// the final signal. Pure: identical inputs produce identical results.
// reboundUsed reports whether the rebound override shaped the decision.
func Fuse(
	snap core.IndicatorSnapshot,
	score float64,
	vector ScoreVector,
	rebound core.ReboundResult,
	cfg core.ScoringConfig,
) (result core.SignalCheckResult, reboundUsed bool) {

	result = core.SignalCheckResult{
		SignalType: core.SignalHold,
		TradeScore: score,
		Snapshot:   snap,
		Triggers:   []string{fmt.Sprintf("profile:%s", vector.Profile)},
	}

	if !snap.Ready {
		result.FusedConfidence = 0.5
		result.Message = "indicator unready"
		return result, false
	}

	alpha := (score + 1) / 2
	gate := lowPriceGate(snap)
	reboundBuy := rebound.SignalType == core.SignalBuy

	switch {
	case score >= cfg.BuyThreshold && gate:
		result.SignalType = core.SignalBuy
		result.Message = fmt.Sprintf("momentum buy: score %.3f >= %.2f", score, cfg.BuyThreshold)
		result.Triggers = append(result.Triggers, fmt.Sprintf("trade score %.3f above buy threshold", score))

	case score >= cfg.BuyThreshold:
		result.Message = fmt.Sprintf("buy demoted to hold: low-price gate failed (bb %.1f, 24h %.1f, 7d %.1f)",
			snap.BBPosition, snap.PricePosition24h, snap.PricePosition7d)
		result.Triggers = append(result.Triggers, "low-price gate failed")

	case score <= cfg.SellThreshold && gate && reboundBuy:
		result.SignalType = core.SignalBuy
		reboundUsed = true
		result.Message = fmt.Sprintf("reversal buy: rebound overrides score %.3f", score)
		result.Triggers = append(result.Triggers, rebound.Triggers...)

	case score <= cfg.SellThreshold:
		result.SignalType = core.SignalSell
		result.Message = fmt.Sprintf("sell: score %.3f <= %.2f", score, cfg.SellThreshold)
		result.Triggers = append(result.Triggers, fmt.Sprintf("trade score %.3f below sell threshold", score))

	case reboundBuy && gate:
		result.SignalType = core.SignalBuy
		reboundUsed = true
		result.Message = "rebound buy: oversold rebound detected"
		result.Triggers = append(result.Triggers, rebound.Triggers...)

	default:
		result.Message = fmt.Sprintf("hold: score %.3f inside neutral band", score)
	}

	if reboundUsed {
		result.FusedConfidence = clamp(0.4*alpha+0.6*rebound.Confidence, 0, 1)
	} else {
		result.FusedConfidence = clamp(alpha, 0, 1)
	}
	result.ReboundOverride = reboundUsed
	result.ShouldTrade = result.SignalType != core.SignalHold

	return result, reboundUsed
}
