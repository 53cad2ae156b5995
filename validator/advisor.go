package validator

import (
	"context"
	"time"

	"github.com/lcerda/tidebot/core"
)

// RuleAdvisor is a deterministic core.Advisor built from the same
// indicator vocabulary as the monitor. It forms an independent opinion
// from the snapshot so a marginal signal needs two stages to agree.
type RuleAdvisor struct {
	log core.Logger
}

// NewRuleAdvisor returns the default advisor implementation.
func NewRuleAdvisor(log core.Logger) *RuleAdvisor {
	return &RuleAdvisor{log: log}
}

// Advise implements core.Advisor.
func (a *RuleAdvisor) Advise(
	_ context.Context,
	snap core.IndicatorSnapshot,
	validation core.ValidationResult,
) (core.Advice, error) {

	if !validation.Passed {
		return core.Advice{
			Signal:     core.SignalHold,
			Confidence: validation.Confidence,
			Reasoning:  "validation did not pass, holding",
		}, nil
	}

	switch {
	case snap.RSI >= 70:
		return core.Advice{
			Signal:     core.SignalSell,
			Confidence: clip01(0.5 + (snap.RSI-70)/60),
			Reasoning:  "rsi overbought",
		}, nil

	case snap.TrendDirection == core.TrendStrongDown && snap.MACDHistogram < 0:
		return core.Advice{
			Signal:     core.SignalHold,
			Confidence: 0.5,
			Reasoning:  "strong downtrend with falling momentum, waiting",
		}, nil

	case snap.RSI <= 45 && snap.BBPosition < 60:
		return core.Advice{
			Signal:     core.SignalBuy,
			Confidence: clip01(0.5 + (45-snap.RSI)/100 + 0.2*validation.Confidence),
			Reasoning:  "price low in band with room above",
		}, nil
	}

	return core.Advice{
		Signal:     core.SignalHold,
		Confidence: validation.Confidence,
		Reasoning:  "no independent confirmation",
	}, nil
}

// Consult runs the advisor under a deadline. On error or timeout the
// fallback signal carries the validation confidence, so a dead advisor
// never blocks a validated decision.
func Consult(
	ctx context.Context,
	log core.Logger,
	advisor core.Advisor,
	snap core.IndicatorSnapshot,
	validation core.ValidationResult,
	fallback core.SignalType,
	timeout time.Duration,
) core.Advice {

	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		advice core.Advice
		err    error
	}
	ch := make(chan outcome, 1)

	go func() {
		advice, err := advisor.Advise(cctx, snap, validation)
		ch <- outcome{advice, err}
	}()

	select {
	case out := <-ch:
		if out.err != nil {
			log.WithError(out.err).Warn("advisor failed, using validator decision")
			break
		}
		return out.advice
	case <-cctx.Done():
		log.WithError(cctx.Err()).Warn("advisor timed out, using validator decision")
	}

	return core.Advice{
		Signal:     fallback,
		Confidence: validation.Confidence,
		Reasoning:  "advisor unavailable, validator decision stands",
	}
}

func clip01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
