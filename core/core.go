package core

import (
	"context"
)

// Exchange is the full adapter the engine depends on.
type Exchange interface {
	Broker
	Feeder
}

// Feeder provides read-only market data access.
type Feeder interface {
	// BarsByLimit returns up to limit bars for the symbol and timeframe,
	// newest-last, inclusive of the in-progress bar.
	BarsByLimit(ctx context.Context, symbol, timeframe string, limit int) ([]Bar, error)
	// Ticker returns the latest quote for the symbol.
	Ticker(ctx context.Context, symbol string) (Ticker, error)
}

// Broker provides account and order access.
type Broker interface {
	// Balance returns the free quote balance.
	Balance(ctx context.Context) (Balance, error)
	// Position returns the raw exchange position for the symbol.
	// ok is false when the exchange reports no open position.
	Position(ctx context.Context, symbol string) (raw RawPosition, ok bool, err error)
	// CreateOrder submits an order and returns the raw exchange record.
	CreateOrder(ctx context.Context, req OrderRequest) (RawOrder, error)
	// Order fetches the raw order record by id.
	Order(ctx context.Context, symbol, id string) (RawOrder, error)
	// Cancel cancels an order by id.
	Cancel(ctx context.Context, symbol, id string) error
	// SetLeverage configures the leverage for a symbol.
	SetLeverage(ctx context.Context, symbol string, leverage int) error
}

// Advisor is an optional second opinion consulted before acting on a
// validated signal. Implementations may wrap rule-based scoring or an
// external model; the engine only sees this one method.
type Advisor interface {
	Advise(ctx context.Context, snapshot IndicatorSnapshot, validation ValidationResult) (Advice, error)
}

// Notifier receives human-facing events from the engine.
type Notifier interface {
	Notify(message string)
	OnSignal(signal EmittedSignal)
	OnError(err error)
}

// NotifierWithStart is a notifier that runs its own receive loop.
type NotifierWithStart interface {
	Notifier
	Start()
}

// SignalObserver receives every emitted signal, for journaling or metrics.
type SignalObserver interface {
	OnSignal(signal EmittedSignal)
}
