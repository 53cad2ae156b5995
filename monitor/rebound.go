package monitor

import (
	"fmt"

	"github.com/lcerda/tidebot/core"
)

// Rebound detector bounds
const (
	reboundRSIFloor     = 30.0
	reboundMaxPosition  = 20.0
	reboundBaseConf     = 0.5
)

// ReboundDetector is the stateful oversold-rebound detector. It watches
// consecutive snapshots for RSI lifting out of oversold while the MACD
// histogram turns positive near the bottom of the 24h range.
//
// Once a rebound has been consumed by the fusion stage, further rebounds
// are suppressed until RSI dips below the oversold floor again.
type ReboundDetector struct {
	prev       *core.IndicatorSnapshot
	suppressed bool
}

// NewReboundDetector creates an idle detector.
func NewReboundDetector() *ReboundDetector {
	return &ReboundDetector{}
}

// Observe feeds the next snapshot and returns the detector output for it.
func (d *ReboundDetector) Observe(snap core.IndicatorSnapshot) core.ReboundResult {
	prev := d.prev
	d.prev = &snap

	// Re-arm once the market is oversold again.
	if d.suppressed && snap.RSI < reboundRSIFloor {
		d.suppressed = false
	}

	hold := core.ReboundResult{SignalType: core.SignalHold}
	if prev == nil || !snap.Ready || !prev.Ready || d.suppressed {
		return hold
	}

	rsiCrossedUp := prev.RSI < reboundRSIFloor && snap.RSI >= reboundRSIFloor
	histRising := snap.MACDHistogram > prev.MACDHistogram
	histPositive := snap.MACDHistogram >= 0
	nearBottom := snap.PricePosition24h <= reboundMaxPosition

	if !rsiCrossedUp || !histRising || !histPositive || !nearBottom {
		return hold
	}

	deltaRSI := snap.RSI - prev.RSI
	deltaHist := normalizedHistDelta(prev, &snap)
	confidence := clamp(
		reboundBaseConf+
			0.1*deltaRSI/10+
			0.1*deltaHist+
			0.1*(reboundMaxPosition-snap.PricePosition24h)/reboundMaxPosition,
		0, 1,
	)

	triggers := []string{
		fmt.Sprintf("rsi crossed up through %.0f (%.1f -> %.1f)", reboundRSIFloor, prev.RSI, snap.RSI),
		fmt.Sprintf("macd histogram turning positive (%.4f -> %.4f)", prev.MACDHistogram, snap.MACDHistogram),
		fmt.Sprintf("price near 24h low (position %.1f%%)", snap.PricePosition24h),
	}

	return core.ReboundResult{
		SignalType: core.SignalBuy,
		Confidence: confidence,
		Triggers:   triggers,
	}
}

// MarkConsumed records that the fusion stage acted on a rebound. The
// detector stays quiet until RSI re-enters oversold.
func (d *ReboundDetector) MarkConsumed() {
	d.suppressed = true
}

// normalizedHistDelta scales the histogram improvement by ATR so the
// confidence term is comparable across symbols. Clamped to [0, 1].
func normalizedHistDelta(prev, curr *core.IndicatorSnapshot) float64 {
	delta := curr.MACDHistogram - prev.MACDHistogram
	if delta <= 0 {
		return 0
	}
	if curr.ATR <= 0 {
		return 1
	}
	return clamp(delta/curr.ATR, 0, 1)
}
