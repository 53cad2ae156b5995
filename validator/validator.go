// Package validator is the second stage of the signal pipeline. It checks
// a tradable signal against confidence and volatility bounds and runs the
// trend-consistency rule before the orchestrator is allowed to act.
package validator

import (
	"fmt"

	"github.com/lcerda/tidebot/core"
)

// SignalValidator applies the second-stage checks to a monitor decision.
type SignalValidator struct {
	log core.Logger
	cfg core.ValidatorConfig
}

// NewSignalValidator returns a validator with the given thresholds.
func NewSignalValidator(log core.Logger, cfg core.ValidatorConfig) *SignalValidator {
	return &SignalValidator{log: log, cfg: cfg}
}

// Validate runs every check and returns the combined outcome. The checks
// are independent; Details records each one so a rejection names the rule
// that tripped it.
func (v *SignalValidator) Validate(result core.SignalCheckResult) core.ValidationResult {
	out := core.ValidationResult{
		Confidence: result.FusedConfidence,
		Details:    map[string]string{},
	}

	if !result.ShouldTrade {
		out.Message = "no tradable signal"
		out.Details["signal"] = string(result.SignalType)
		return out
	}

	failures := 0

	if result.FusedConfidence < v.cfg.MinConfidence {
		failures++
		out.Details["confidence"] = fmt.Sprintf("%.3f below minimum %.2f",
			result.FusedConfidence, v.cfg.MinConfidence)
	} else {
		out.Details["confidence"] = fmt.Sprintf("%.3f ok", result.FusedConfidence)
	}

	snap := result.Snapshot
	switch {
	case snap.ATRPercent < v.cfg.ATRPercentMin:
		failures++
		out.Details["volatility"] = fmt.Sprintf("atr %.3f%% below %.2f%%, market too quiet",
			snap.ATRPercent, v.cfg.ATRPercentMin)
	case snap.ATRPercent > v.cfg.ATRPercentMax:
		failures++
		out.Details["volatility"] = fmt.Sprintf("atr %.3f%% above %.2f%%, market too violent",
			snap.ATRPercent, v.cfg.ATRPercentMax)
	default:
		out.Details["volatility"] = fmt.Sprintf("atr %.3f%% ok", snap.ATRPercent)
	}

	if result.SignalType == core.SignalBuy &&
		snap.TrendDirection == core.TrendStrongDown &&
		!result.ReboundOverride {
		failures++
		out.Details["trend"] = "buy against strong downtrend without rebound"
	} else {
		out.Details["trend"] = string(snap.TrendDirection)
	}

	out.Passed = failures == 0
	if out.Passed {
		out.Message = "validation passed"
	} else {
		out.Message = fmt.Sprintf("validation failed %d check(s)", failures)
		v.log.WithFields(toLogFields(out.Details)).
			Infof("signal rejected: %s %s", result.Snapshot.Symbol, result.SignalType)
	}

	return out
}

// IsStrongSignal reports whether the fused confidence clears the bypass
// threshold, in which case the advisor consult is skipped.
func (v *SignalValidator) IsStrongSignal(result core.SignalCheckResult, threshold float64) bool {
	return result.FusedConfidence >= threshold
}

func toLogFields(details map[string]string) map[string]any {
	fields := make(map[string]any, len(details))
	for k, v := range details {
		fields[k] = v
	}
	return fields
}
