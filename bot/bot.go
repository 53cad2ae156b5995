// Package bot is the trade orchestrator. Once per scheduled cycle it
// reconciles local state with the exchange, asks the monitor for a
// signal, runs validation and the advisor consult, and executes at most
// one action: open, update the stop, or close.
package bot

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/lcerda/tidebot/core"
	"github.com/lcerda/tidebot/monitor"
	"github.com/lcerda/tidebot/order"
	"github.com/lcerda/tidebot/position"
	"github.com/lcerda/tidebot/validator"
	"github.com/samber/lo"
)

// Bot drives the trade cycle for one symbol.
type Bot struct {
	log       core.Logger
	cfg       core.Config
	exchange  core.Exchange
	monitor   *monitor.Monitor
	validator *validator.SignalValidator
	advisor   core.Advisor
	orders    *order.Service
	positions *position.Manager
	summary   *order.TradeSummary
	notifiers []core.Notifier

	mu        sync.Mutex
	defensive bool
}

// Option configures a Bot.
type Option func(*Bot)

// WithNotifier attaches a notifier for trade and error events.
func WithNotifier(n core.Notifier) Option {
	return func(b *Bot) {
		b.notifiers = append(b.notifiers, n)
	}
}

// WithAdvisor replaces the default rule advisor.
func WithAdvisor(a core.Advisor) Option {
	return func(b *Bot) {
		b.advisor = a
	}
}

// New assembles the orchestrator.
func New(
	log core.Logger,
	cfg core.Config,
	exchange core.Exchange,
	mon *monitor.Monitor,
	val *validator.SignalValidator,
	orders *order.Service,
	positions *position.Manager,
	options ...Option,
) *Bot {
	b := &Bot{
		log:       log.WithField("component", "bot"),
		cfg:       cfg,
		exchange:  exchange,
		monitor:   mon,
		validator: val,
		advisor:   validator.NewRuleAdvisor(log),
		orders:    orders,
		positions: positions,
		summary:   order.NewTradeSummary(cfg.Exchange.Symbol),
	}
	for _, option := range options {
		option(b)
	}
	return b
}

// AttachNotifier registers a notifier after construction. Used when the
// notifier itself needs the bot's summary for its commands.
func (b *Bot) AttachNotifier(n core.Notifier) {
	b.notifiers = append(b.notifiers, n)
}

// Summary returns the realized trade statistics.
func (b *Bot) Summary() *order.TradeSummary {
	return b.summary
}

// Defensive reports whether the orchestrator refuses new opens.
func (b *Bot) Defensive() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.defensive
}

// Cycle runs one trade cycle. It is the scheduler's callback; an error
// return means the cycle was skipped and will retry on the next cadence.
func (b *Bot) Cycle(ctx context.Context) error {
	symbol := b.cfg.Exchange.Symbol

	raw, exists, err := b.exchange.Position(ctx, symbol)
	if err != nil {
		return core.NewTransientError("fetch position", err)
	}

	pos, err := b.positions.UpdateFromExchange(raw, exists)
	if err != nil {
		if core.IsInvariantViolation(err) {
			b.enterDefensive(err)
			if pos.IsShort() {
				return b.closeShort(ctx, pos)
			}
		}
		return err
	}

	result, err := b.monitor.SignalFor(ctx, symbol)
	if err != nil {
		return err
	}

	action := core.ActionNoop
	switch {
	case pos.Exists():
		action, err = b.manage(ctx, pos, result)
	case result.SignalType == core.SignalBuy && result.ShouldTrade:
		action, err = b.tryOpen(ctx, result)
	case lo.Contains(result.Triggers, "cooldown"):
		action = core.ActionSkippedCooldown
	}

	b.emit(result, pos, action)
	return err
}

// manage handles a cycle with an open position: exit on a sell signal,
// otherwise maintain the trailing stop.
func (b *Bot) manage(
	ctx context.Context,
	pos core.Position,
	result core.SignalCheckResult,
) (core.ActionType, error) {

	if result.SignalType == core.SignalSell && result.ShouldTrade {
		return b.closePosition(ctx, pos, result)
	}
	return b.updateStopLoss(ctx, pos)
}

// tryOpen runs validation, the advisor consult and sizing before the
// entry order. A strong signal bypasses the advisor.
func (b *Bot) tryOpen(ctx context.Context, result core.SignalCheckResult) (core.ActionType, error) {
	if b.Defensive() {
		b.log.Warn("defensive mode: refusing to open a position")
		return core.ActionSkippedGate, nil
	}

	validation := b.validator.Validate(result)
	if !validation.Passed {
		b.log.WithField("reason", validation.Message).Info("signal did not validate")
		return core.ActionSkippedGate, nil
	}

	if !b.validator.IsStrongSignal(result, b.cfg.Scoring.StrongSignal) {
		advice := validator.Consult(ctx, b.log, b.advisor,
			result.Snapshot, validation, result.SignalType, b.cfg.AdvisorTimeout())
		if advice.Signal != core.SignalBuy {
			b.log.WithFields(map[string]any{
				"advice":    advice.Signal,
				"reasoning": advice.Reasoning,
			}).Info("advisor declined the entry")
			return core.ActionSkippedGate, nil
		}
	}

	return b.openPosition(ctx, result)
}

// openPosition sizes and submits the entry, then places the initial
// protective stop from the filled amount.
func (b *Bot) openPosition(ctx context.Context, result core.SignalCheckResult) (core.ActionType, error) {
	symbol := b.cfg.Exchange.Symbol

	balance, err := b.exchange.Balance(ctx)
	if err != nil {
		return core.ActionNoop, core.NewTransientError("fetch balance", err)
	}

	ticker, err := b.exchange.Ticker(ctx, symbol)
	if err != nil {
		return core.ActionNoop, core.NewTransientError("fetch ticker", err)
	}

	amount := b.sizePosition(balance.FreeUSDT, ticker.Last)
	if amount < b.cfg.Safety.MinContract {
		b.log.WithFields(map[string]any{
			"free":   balance.FreeUSDT,
			"price":  ticker.Last,
			"amount": amount,
		}).Warn("sized amount below minimum contract, skipping entry")
		return core.ActionNoop, nil
	}

	entry, err := b.orders.CreateMarket(ctx, symbol, core.SideTypeBuy, amount)
	if err != nil {
		return core.ActionNoop, err
	}
	if !entry.IsSuccess() {
		// A rejected entry does not arm the cooldown: the signal may
		// retry next cycle.
		b.notifyError(fmt.Errorf("entry rejected: %s", entry.ErrorMessage))
		return core.ActionNoop, nil
	}

	b.log.WithFields(map[string]any{
		"amount": entry.FilledAmount,
		"price":  entry.AveragePrice,
	}).Infof("opened long %s", symbol)

	pos, _ := b.positions.UpdateFromExchange(core.RawPosition{
		Symbol:     symbol,
		Side:       "long",
		Amount:     entry.FilledAmount,
		EntryPrice: entry.AveragePrice,
	}, true)

	stopPrice := entry.AveragePrice * (1 - b.cfg.Stop.LossPct)
	if err := b.placeStop(ctx, pos, stopPrice); err != nil {
		// Position is live without protection: loud, and retried on the
		// next cycle by the unprotected check in updateStopLoss.
		b.log.WithError(err).Error("position is unprotected, stop placement failed")
		b.notifyError(err)
	}

	b.monitor.ArmCooldown(symbol, core.SignalBuy)
	b.notifyf("opened long %s: %.4f @ %.4f (conf %.2f)",
		symbol, entry.FilledAmount, entry.AveragePrice, result.FusedConfidence)

	return core.ActionOpen, nil
}

// updateStopLoss ratchets the protective stop toward the current price.
// A missing stop on an open position is replaced unconditionally.
func (b *Bot) updateStopLoss(ctx context.Context, pos core.Position) (core.ActionType, error) {
	symbol := b.cfg.Exchange.Symbol

	ticker, err := b.exchange.Ticker(ctx, symbol)
	if err != nil {
		return core.ActionNoop, core.NewTransientError("fetch ticker", err)
	}

	newStop := b.positions.CalculateStopPrice(pos.EntryPrice, ticker.Last)

	ref, hasStop := b.positions.StopOrder()
	if hasStop && !b.positions.ShouldReplaceStop(ref.StopPrice, newStop) {
		b.positions.LogStopLossInfo(ticker.Last)
		return core.ActionNoop, nil
	}

	if hasStop {
		// Cancel-then-create. An unknown id means the stop already fired
		// or was purged; placement proceeds either way.
		if _, err := b.orders.Cancel(ctx, symbol, ref.OrderID); err != nil {
			return core.ActionNoop, err
		}
		b.positions.ClearStopOrder()
	}

	if err := b.placeStop(ctx, pos, newStop); err != nil {
		b.log.WithError(err).Error("position is unprotected, stop placement failed")
		b.notifyError(err)
		return core.ActionNoop, err
	}

	b.log.WithFields(map[string]any{
		"old_stop": ref.StopPrice,
		"new_stop": newStop,
		"price":    ticker.Last,
	}).Info("trailing stop moved")

	return core.ActionUpdateStop, nil
}

// closePosition exits the full position on a sell signal.
func (b *Bot) closePosition(
	ctx context.Context,
	pos core.Position,
	result core.SignalCheckResult,
) (core.ActionType, error) {

	symbol := b.cfg.Exchange.Symbol

	if ref, ok := b.positions.StopOrder(); ok {
		if _, err := b.orders.Cancel(ctx, symbol, ref.OrderID); err != nil {
			return core.ActionNoop, err
		}
		b.positions.ClearStopOrder()
	}

	exit, err := b.orders.CreateMarket(ctx, symbol, core.SideTypeSell, pos.Amount)
	if err != nil {
		return core.ActionNoop, err
	}
	if !exit.IsSuccess() {
		b.notifyError(fmt.Errorf("exit rejected: %s", exit.ErrorMessage))
		return core.ActionNoop, nil
	}

	b.summary.RecordRoundTrip(pos.EntryPrice, exit.AveragePrice, exit.FilledAmount)
	b.positions.Clear()
	b.monitor.ArmCooldown(symbol, core.SignalSell)

	b.notifyf("closed long %s: %.4f @ %.4f (score %.3f)\n%s",
		symbol, exit.FilledAmount, exit.AveragePrice, result.TradeScore, b.summary)

	return core.ActionClose, nil
}

// closeShort unwinds a short position the engine never opened. The only
// permitted direction is reduction toward flat.
func (b *Bot) closeShort(ctx context.Context, pos core.Position) error {
	symbol := b.cfg.Exchange.Symbol
	b.log.Errorf("unexpected short position on %s, closing %.4f", symbol, pos.Amount)

	exit, err := b.orders.CreateMarket(ctx, symbol, core.SideTypeBuy, pos.Amount)
	if err != nil {
		return err
	}
	if !exit.IsSuccess() {
		return fmt.Errorf("short close rejected: %s", exit.ErrorMessage)
	}

	b.positions.Clear()
	b.notifyf("closed unexpected short %s: %.4f @ %.4f", symbol, exit.FilledAmount, exit.AveragePrice)
	return nil
}

// placeStop submits the protective stop and records the reference.
func (b *Bot) placeStop(ctx context.Context, pos core.Position, stopPrice float64) error {
	stop, err := b.orders.CreateStopLoss(ctx, pos.Symbol, pos.Amount, stopPrice)
	if err != nil {
		return err
	}
	if stop.IsRejected() {
		return fmt.Errorf("stop rejected: %s", stop.ErrorMessage)
	}

	b.positions.SetStopOrder(core.StopOrderRef{
		OrderID:   stop.OrderID,
		StopPrice: stopPrice,
		Amount:    pos.Amount,
	})
	return nil
}

// sizePosition converts free margin into a contract amount, floored to
// four decimals.
func (b *Bot) sizePosition(freeUSDT, price float64) float64 {
	if price <= 0 {
		return 0
	}
	leverage := float64(b.cfg.Exchange.Leverage)
	if leverage < 1 {
		leverage = 1
	}
	raw := freeUSDT * b.cfg.Safety.SafeBalanceFraction * leverage / price
	return math.Floor(raw*10000) / 10000
}

func (b *Bot) enterDefensive(cause error) {
	b.mu.Lock()
	wasDefensive := b.defensive
	b.defensive = true
	b.mu.Unlock()

	if !wasDefensive {
		b.log.WithError(cause).Error("entering defensive mode: no new positions will be opened")
		b.notifyError(cause)
	}
}

func (b *Bot) emit(result core.SignalCheckResult, pos core.Position, action core.ActionType) {
	b.monitor.Emit(core.EmittedSignal{
		Timestamp:    result.Snapshot.Time,
		Symbol:       b.cfg.Exchange.Symbol,
		SignalType:   result.SignalType,
		Confidence:   result.FusedConfidence,
		TradeScore:   result.TradeScore,
		Triggers:     result.Triggers,
		Price:        result.Snapshot.Price,
		PositionSide: string(pos.Side),
		ActionTaken:  action,
	})
}

func (b *Bot) notifyf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	for _, n := range b.notifiers {
		n.Notify(msg)
	}
}

func (b *Bot) notifyError(err error) {
	for _, n := range b.notifiers {
		n.OnError(err)
	}
}

