package core

// PositionSide classifies the direction of a held position.
type PositionSide string

// Position side constants. The engine never opens shorts; a short reported
// by the exchange is tagged for close-only reduction.
const (
	PositionSideLong         PositionSide = "long"
	PositionSideNone         PositionSide = "none"
	PositionSideShortToClose PositionSide = "short_to_close"
)

// Position mirrors the exchange's authoritative position view.
type Position struct {
	Symbol        string
	Side          PositionSide
	Amount        float64
	EntryPrice    float64
	UnrealizedPnL float64
}

// Exists reports whether any position is held.
func (p Position) Exists() bool {
	return p.Side != PositionSideNone && p.Side != "" && p.Amount > 0
}

// IsShort reports whether the exchange handed us a short to unwind.
func (p Position) IsShort() bool {
	return p.Side == PositionSideShortToClose
}
