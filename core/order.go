package core

import (
	"fmt"
	"time"
)

// SideType represents the direction of an order (BUY or SELL)
type SideType string

// OrderType represents the type of order (MARKET, STOP_MARKET, etc.)
type OrderType string

// OrderStatusType represents the status of an order
type OrderStatusType string

// Order side constants
const (
	SideTypeBuy  SideType = "BUY"
	SideTypeSell SideType = "SELL"
)

// Order type constants
const (
	OrderTypeMarket     OrderType = "MARKET"
	OrderTypeLimit      OrderType = "LIMIT"
	OrderTypeStopMarket OrderType = "STOP_MARKET"
)

// Order status constants
const (
	OrderStatusTypeOpen     OrderStatusType = "OPEN"
	OrderStatusTypeClosed   OrderStatusType = "CLOSED"
	OrderStatusTypeCanceled OrderStatusType = "CANCELED"
	OrderStatusTypeRejected OrderStatusType = "REJECTED"
	OrderStatusTypeExpired  OrderStatusType = "EXPIRED"
	OrderStatusTypeUnknown  OrderStatusType = "UNKNOWN"
)

// OrderRequest describes an order to be submitted to the exchange.
// ClientID is a caller-supplied correlation id making retries idempotent.
type OrderRequest struct {
	Symbol    string
	Side      SideType
	Type      OrderType
	Amount    float64
	Price     float64 // limit price, ignored for market orders
	StopPrice float64 // trigger price for stop orders
	ClientID  string
}

// RawOrder is the exchange's order record before normalization.
type RawOrder struct {
	ID        string
	ClientID  string
	Symbol    string
	Side      string
	Type      string
	Status    string
	Price     float64
	Average   float64
	Amount    float64
	Filled    float64
	Remaining float64
	StopPrice float64
	UpdatedAt time.Time
	Info      map[string]string
}

// RawPosition is the exchange's position record before normalization.
type RawPosition struct {
	Symbol        string
	Side          string // "long" or "short"
	Amount        float64
	EntryPrice    float64
	UnrealizedPnL float64
	Leverage      float64
}

// OrderResult is the normalized outcome of an order operation.
type OrderResult struct {
	OrderID         string
	ClientID        string
	Symbol          string
	Side            SideType
	Type            OrderType
	Status          OrderStatusType
	RequestedAmount float64
	FilledAmount    float64
	RemainingAmount float64
	AveragePrice    float64
	StopPrice       float64
	ErrorMessage    string
	ErrorCode       int64
}

// IsRejected reports whether the exchange refused the order.
func (r OrderResult) IsRejected() bool {
	return r.Status == OrderStatusTypeRejected
}

// IsPartiallyFilled reports whether only part of the requested amount filled.
func (r OrderResult) IsPartiallyFilled() bool {
	return r.FilledAmount > 0 && r.RemainingAmount > 0
}

// IsFullyFilled reports whether the entire requested amount filled.
func (r OrderResult) IsFullyFilled() bool {
	return r.FilledAmount > 0 && r.RemainingAmount == 0
}

// IsSuccess reports whether the order resulted in any fill and was not
// rejected or canceled.
func (r OrderResult) IsSuccess() bool {
	return r.FilledAmount > 0 &&
		r.Status != OrderStatusTypeRejected &&
		r.Status != OrderStatusTypeCanceled
}

// String returns a human-readable representation of the result.
func (r OrderResult) String() string {
	return fmt.Sprintf("[%s] %s %s | ID: %s, Type: %s, %f/%f @ $%f",
		r.Status, r.Side, r.Symbol, r.OrderID, r.Type, r.FilledAmount, r.RequestedAmount, r.AveragePrice)
}

// StopOrderRef identifies the live protective stop for a position.
// At most one exists per position; replacement is always cancel-then-create.
type StopOrderRef struct {
	OrderID   string
	StopPrice float64
	Amount    float64
}
