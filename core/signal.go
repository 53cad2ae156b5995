package core

import "time"

// SignalType classifies a trading decision.
type SignalType string

// Signal type constants
const (
	SignalBuy  SignalType = "buy"
	SignalSell SignalType = "sell"
	SignalHold SignalType = "hold"
)

// ActionType records what the orchestrator did with a signal.
type ActionType string

// Action constants
const (
	ActionOpen            ActionType = "open"
	ActionUpdateStop      ActionType = "update_stop"
	ActionClose           ActionType = "close"
	ActionNoop            ActionType = "noop"
	ActionSkippedCooldown ActionType = "skipped_cooldown"
	ActionSkippedGate     ActionType = "skipped_gate"
)

// SignalCheckResult is the monitor's decision for one symbol on one tick.
type SignalCheckResult struct {
	ShouldTrade     bool
	SignalType      SignalType
	TradeScore      float64 // in [-1, 1]
	FusedConfidence float64 // in [0, 1]
	ReboundOverride bool    // the rebound detector shaped this decision
	Triggers        []string
	Snapshot        IndicatorSnapshot
	Message         string
}

// ReboundResult is the oversold-rebound detector output.
type ReboundResult struct {
	SignalType SignalType // buy or hold
	Confidence float64    // in [0, 1]
	Triggers   []string
}

// ValidationResult is the second-stage confidence check outcome.
type ValidationResult struct {
	Passed     bool
	Confidence float64
	Details    map[string]string
	Message    string
}

// Advice is the advisor's answer to a validated signal.
type Advice struct {
	Signal     SignalType
	Confidence float64
	Reasoning  string
}

// EmittedSignal is the observer-facing record of a decision and the action
// taken on it.
type EmittedSignal struct {
	Timestamp    time.Time  `json:"timestamp"`
	Symbol       string     `json:"symbol"`
	SignalType   SignalType `json:"signal_type"`
	Confidence   float64    `json:"confidence"`
	TradeScore   float64    `json:"trade_score"`
	Triggers     []string   `json:"triggers"`
	Price        float64    `json:"price"`
	PositionSide string     `json:"position_side"`
	ActionTaken  ActionType `json:"action_taken"`
}
