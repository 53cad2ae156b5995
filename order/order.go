// Package order wraps the exchange broker with idempotent order
// submission and a normalized result model. Every request carries a
// fresh client id so a retried submission can be reconciled instead of
// duplicated.
package order

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/lcerda/tidebot/core"
)

// Service submits and manages orders through a core.Broker.
type Service struct {
	log    core.Logger
	broker core.Broker
}

// NewService returns an order service over the given broker.
func NewService(log core.Logger, broker core.Broker) *Service {
	return &Service{log: log, broker: broker}
}

// CreateMarket submits a market order. A rejected order comes back as a
// result with rejected status, not as an error; errors are reserved for
// transport failures.
func (s *Service) CreateMarket(
	ctx context.Context,
	symbol string,
	side core.SideType,
	amount float64,
) (core.OrderResult, error) {

	if amount <= 0 {
		return core.OrderResult{}, core.ErrInvalidAmount
	}

	req := core.OrderRequest{
		Symbol:   symbol,
		Side:     side,
		Type:     core.OrderTypeMarket,
		Amount:   amount,
		ClientID: newClientID(),
	}

	s.log.WithFields(map[string]any{
		"symbol":    symbol,
		"side":      side,
		"amount":    amount,
		"client_id": req.ClientID,
	}).Info("submitting market order")

	raw, err := s.broker.CreateOrder(ctx, req)
	if err != nil {
		return core.OrderResult{}, core.NewTransientError("create market order", err)
	}

	result := normalize(raw, req)
	if result.IsRejected() {
		s.log.WithFields(map[string]any{
			"symbol": symbol,
			"reason": result.ErrorMessage,
		}).Warn("market order rejected by exchange")
	}
	return result, nil
}

// CreateStopLoss places a protective stop-market sell for the given
// amount at stopPrice.
func (s *Service) CreateStopLoss(
	ctx context.Context,
	symbol string,
	amount, stopPrice float64,
) (core.OrderResult, error) {

	if amount <= 0 {
		return core.OrderResult{}, core.ErrInvalidAmount
	}

	req := core.OrderRequest{
		Symbol:    symbol,
		Side:      core.SideTypeSell,
		Type:      core.OrderTypeStopMarket,
		Amount:    amount,
		StopPrice: stopPrice,
		ClientID:  newClientID(),
	}

	s.log.WithFields(map[string]any{
		"symbol":     symbol,
		"amount":     amount,
		"stop_price": stopPrice,
		"client_id":  req.ClientID,
	}).Info("submitting stop loss")

	raw, err := s.broker.CreateOrder(ctx, req)
	if err != nil {
		return core.OrderResult{}, core.NewTransientError("create stop loss", err)
	}
	return normalize(raw, req), nil
}

// Cancel removes a working order. Canceling an id the exchange no longer
// knows is not an error; it reports canceled=false so replacement flows
// can proceed.
func (s *Service) Cancel(ctx context.Context, symbol, orderID string) (bool, error) {
	err := s.broker.Cancel(ctx, symbol, orderID)
	if err == nil {
		return true, nil
	}
	if isUnknownOrder(err) {
		s.log.WithField("order_id", orderID).Debug("cancel target already gone")
		return false, nil
	}
	return false, core.NewTransientError("cancel order", err)
}

// Status fetches the current state of an order.
func (s *Service) Status(ctx context.Context, symbol, orderID string) (core.OrderResult, error) {
	raw, err := s.broker.Order(ctx, symbol, orderID)
	if err != nil {
		if isUnknownOrder(err) {
			return core.OrderResult{}, core.ErrOrderNotFound
		}
		return core.OrderResult{}, core.NewTransientError("fetch order", err)
	}
	return normalize(raw, core.OrderRequest{
		Symbol: symbol,
		Side:   core.SideType(raw.Side),
		Type:   core.OrderType(raw.Type),
		Amount: raw.Amount,
	}), nil
}

func newClientID() string {
	return "tidebot-" + uuid.NewString()
}

func isUnknownOrder(err error) bool {
	if err == core.ErrOrderNotFound {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unknown order") || strings.Contains(msg, "order does not exist")
}

// normalize maps the exchange order record onto the result model.
func normalize(raw core.RawOrder, req core.OrderRequest) core.OrderResult {
	result := core.OrderResult{
		OrderID:         raw.ID,
		ClientID:        firstNonEmpty(raw.ClientID, req.ClientID),
		Symbol:          firstNonEmpty(raw.Symbol, req.Symbol),
		Side:            req.Side,
		Type:            req.Type,
		Status:          normalizeStatus(raw.Status),
		RequestedAmount: req.Amount,
		FilledAmount:    raw.Filled,
		RemainingAmount: raw.Remaining,
		AveragePrice:    raw.Average,
		StopPrice:       raw.StopPrice,
	}

	if result.AveragePrice == 0 {
		result.AveragePrice = raw.Price
	}
	if result.RemainingAmount == 0 && raw.Amount > raw.Filled {
		result.RemainingAmount = raw.Amount - raw.Filled
	}
	if result.IsRejected() {
		result.ErrorMessage = raw.Info["reject_reason"]
		if result.ErrorMessage == "" {
			result.ErrorMessage = "order rejected by exchange"
		}
	}
	return result
}

func normalizeStatus(status string) core.OrderStatusType {
	switch strings.ToUpper(status) {
	case "NEW", "PARTIALLY_FILLED", "OPEN":
		return core.OrderStatusTypeOpen
	case "FILLED", "CLOSED":
		return core.OrderStatusTypeClosed
	case "CANCELED", "CANCELLED", "PENDING_CANCEL":
		return core.OrderStatusTypeCanceled
	case "REJECTED":
		return core.OrderStatusTypeRejected
	case "EXPIRED":
		return core.OrderStatusTypeExpired
	default:
		return core.OrderStatusTypeUnknown
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
