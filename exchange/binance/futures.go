// Package binance adapts the Binance USD-M futures API to the engine's
// Exchange interface. Read paths retry with exponential backoff; order
// writes are submitted exactly once and reconciled by client id.
package binance

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/jpillora/backoff"
	"github.com/lcerda/tidebot/core"
)

const readAttempts = 3

// symbolInfo carries the precision rules for one symbol.
type symbolInfo struct {
	quantityPrecision int
	pricePrecision    int
	minQuantity       float64
}

// Futures is the USD-M futures exchange client.
type Futures struct {
	log     core.Logger
	client  *futures.Client
	symbols map[string]symbolInfo
}

// Option configures a Futures client.
type Option func(*Futures)

// WithCredentials sets the API credentials.
func WithCredentials(key, secret string) Option {
	return func(f *Futures) {
		f.client = futures.NewClient(key, secret)
	}
}

// WithTestnet routes all calls to the futures testnet.
func WithTestnet() Option {
	return func(f *Futures) {
		futures.UseTestnet = true
	}
}

// NewFutures connects, validates and loads symbol precision rules.
func NewFutures(ctx context.Context, log core.Logger, options ...Option) (*Futures, error) {
	f := &Futures{
		log:     log,
		client:  futures.NewClient("", ""),
		symbols: make(map[string]symbolInfo),
	}
	for _, option := range options {
		option(f)
	}

	if err := f.client.NewPingService().Do(ctx); err != nil {
		return nil, fmt.Errorf("binance futures ping fail: %w", err)
	}

	info, err := f.client.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get futures exchange info: %w", err)
	}
	for _, s := range info.Symbols {
		si := symbolInfo{
			quantityPrecision: s.QuantityPrecision,
			pricePrecision:    s.PricePrecision,
		}
		if lot := s.LotSizeFilter(); lot != nil {
			si.minQuantity, _ = strconv.ParseFloat(lot.MinQuantity, 64)
		}
		f.symbols[s.Symbol] = si
	}

	return f, nil
}

// SetLeverage configures the leverage for a symbol.
func (f *Futures) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	_, err := f.client.NewChangeLeverageService().
		Symbol(symbol).
		Leverage(leverage).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to set leverage for %s: %w", symbol, err)
	}
	return nil
}

// Feeder

// BarsByLimit fetches the most recent bars including the in-progress one.
func (f *Futures) BarsByLimit(ctx context.Context, symbol, timeframe string, limit int) ([]core.Bar, error) {
	var data []*futures.Kline
	err := f.retryRead(ctx, "klines", func() error {
		var err error
		data, err = f.client.NewKlinesService().
			Symbol(symbol).
			Interval(timeframe).
			Limit(limit).
			Do(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}

	bars := make([]core.Bar, 0, len(data))
	for _, k := range data {
		bars = append(bars, klineToBar(k))
	}
	return bars, nil
}

// BarsByPeriod fetches bars inside [start, end), oldest-first. Used by
// the historical download; the live path uses BarsByLimit.
func (f *Futures) BarsByPeriod(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]core.Bar, error) {
	var data []*futures.Kline
	err := f.retryRead(ctx, "klines by period", func() error {
		var err error
		data, err = f.client.NewKlinesService().
			Symbol(symbol).
			Interval(timeframe).
			StartTime(start.UnixMilli()).
			EndTime(end.UnixMilli()).
			Limit(1000).
			Do(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}

	bars := make([]core.Bar, 0, len(data))
	for _, k := range data {
		bars = append(bars, klineToBar(k))
	}
	return bars, nil
}

// Ticker fetches the 24h rolling stats for a symbol.
func (f *Futures) Ticker(ctx context.Context, symbol string) (core.Ticker, error) {
	var stats []*futures.PriceChangeStats
	err := f.retryRead(ctx, "ticker", func() error {
		var err error
		stats, err = f.client.NewListPriceChangeStatsService().
			Symbol(symbol).
			Do(ctx)
		return err
	})
	if err != nil {
		return core.Ticker{}, err
	}
	if len(stats) == 0 {
		return core.Ticker{}, fmt.Errorf("no ticker data for %s", symbol)
	}

	s := stats[0]
	return core.Ticker{
		Last:          parseF(s.LastPrice),
		High:          parseF(s.HighPrice),
		Low:           parseF(s.LowPrice),
		Volume:        parseF(s.Volume),
		ChangePercent: parseF(s.PriceChangePercent),
	}, nil
}

// Broker

// Balance returns the free USDT margin balance.
func (f *Futures) Balance(ctx context.Context) (core.Balance, error) {
	var balances []*futures.Balance
	err := f.retryRead(ctx, "balance", func() error {
		var err error
		balances, err = f.client.NewGetBalanceService().Do(ctx)
		return err
	})
	if err != nil {
		return core.Balance{}, err
	}

	for _, b := range balances {
		if b.Asset == "USDT" {
			return core.Balance{FreeUSDT: parseF(b.AvailableBalance)}, nil
		}
	}
	return core.Balance{}, nil
}

// Position returns the open position for a symbol, if any.
func (f *Futures) Position(ctx context.Context, symbol string) (core.RawPosition, bool, error) {
	var risks []*futures.PositionRisk
	err := f.retryRead(ctx, "position risk", func() error {
		var err error
		risks, err = f.client.NewGetPositionRiskService().
			Symbol(symbol).
			Do(ctx)
		return err
	})
	if err != nil {
		return core.RawPosition{}, false, err
	}

	for _, r := range risks {
		amount := parseF(r.PositionAmt)
		if amount == 0 {
			continue
		}

		side := "long"
		if amount < 0 {
			side = "short"
		}
		return core.RawPosition{
			Symbol:        r.Symbol,
			Side:          side,
			Amount:        amount,
			EntryPrice:    parseF(r.EntryPrice),
			UnrealizedPnL: parseF(r.UnRealizedProfit),
			Leverage:      parseF(r.Leverage),
		}, true, nil
	}
	return core.RawPosition{Symbol: symbol}, false, nil
}

// CreateOrder submits an order. An exchange rejection comes back as a
// RawOrder with REJECTED status; only transport failures return an error.
func (f *Futures) CreateOrder(ctx context.Context, req core.OrderRequest) (core.RawOrder, error) {
	if err := f.validateQuantity(req.Symbol, req.Amount); err != nil {
		return core.RawOrder{}, err
	}

	svc := f.client.NewCreateOrderService().
		Symbol(req.Symbol).
		Side(futures.SideType(req.Side)).
		Quantity(f.formatQuantity(req.Symbol, req.Amount)).
		NewClientOrderID(req.ClientID).
		NewOrderResponseType(futures.NewOrderRespTypeRESULT)

	switch req.Type {
	case core.OrderTypeMarket:
		svc = svc.Type(futures.OrderTypeMarket)
	case core.OrderTypeLimit:
		svc = svc.Type(futures.OrderTypeLimit).
			TimeInForce(futures.TimeInForceTypeGTC).
			Price(f.formatPrice(req.Symbol, req.Price))
	case core.OrderTypeStopMarket:
		svc = svc.Type(futures.OrderTypeStopMarket).
			StopPrice(f.formatPrice(req.Symbol, req.StopPrice)).
			ReduceOnly(true)
	default:
		return core.RawOrder{}, fmt.Errorf("unsupported order type %s", req.Type)
	}

	order, err := svc.Do(ctx)
	if err != nil {
		if rejection, ok := asRejection(err); ok {
			f.log.WithField("reason", rejection).Warn("order rejected by exchange")
			return core.RawOrder{
				ClientID: req.ClientID,
				Symbol:   req.Symbol,
				Side:     string(req.Side),
				Type:     string(req.Type),
				Status:   "REJECTED",
				Info:     map[string]string{"reject_reason": rejection},
			}, nil
		}
		return core.RawOrder{}, err
	}

	return createResponseToRaw(order), nil
}

// Order fetches an order by exchange id.
func (f *Futures) Order(ctx context.Context, symbol, id string) (core.RawOrder, error) {
	orderID, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return core.RawOrder{}, fmt.Errorf("invalid order id %q: %w", id, err)
	}

	var order *futures.Order
	err = f.retryRead(ctx, "get order", func() error {
		var err error
		order, err = f.client.NewGetOrderService().
			Symbol(symbol).
			OrderID(orderID).
			Do(ctx)
		return err
	})
	if err != nil {
		if isUnknownOrderErr(err) {
			return core.RawOrder{}, core.ErrOrderNotFound
		}
		return core.RawOrder{}, err
	}
	return orderToRaw(order), nil
}

// Cancel removes a working order. A cancel targeting an order the
// exchange no longer knows returns core.ErrOrderNotFound.
func (f *Futures) Cancel(ctx context.Context, symbol, id string) error {
	orderID, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid order id %q: %w", id, err)
	}

	_, err = f.client.NewCancelOrderService().
		Symbol(symbol).
		OrderID(orderID).
		Do(ctx)
	if err != nil && isUnknownOrderErr(err) {
		return core.ErrOrderNotFound
	}
	return err
}

// Helpers

func (f *Futures) validateQuantity(symbol string, quantity float64) error {
	info, ok := f.symbols[symbol]
	if !ok {
		return nil
	}
	if info.minQuantity > 0 && quantity < info.minQuantity {
		return fmt.Errorf("%w: %f below minimum %f for %s",
			core.ErrInvalidAmount, quantity, info.minQuantity, symbol)
	}
	return nil
}

func (f *Futures) formatQuantity(symbol string, value float64) string {
	if info, ok := f.symbols[symbol]; ok {
		return strconv.FormatFloat(value, 'f', info.quantityPrecision, 64)
	}
	return strconv.FormatFloat(value, 'f', -1, 64)
}

func (f *Futures) formatPrice(symbol string, value float64) string {
	if info, ok := f.symbols[symbol]; ok {
		return strconv.FormatFloat(value, 'f', info.pricePrecision, 64)
	}
	return strconv.FormatFloat(value, 'f', -1, 64)
}

// retryRead runs a read call with exponential backoff. Writes never go
// through here.
func (f *Futures) retryRead(ctx context.Context, op string, call func() error) error {
	b := &backoff.Backoff{
		Min:    500 * time.Millisecond,
		Max:    5 * time.Second,
		Factor: 2,
		Jitter: true,
	}

	var err error
	for attempt := 0; attempt < readAttempts; attempt++ {
		if err = call(); err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if attempt < readAttempts-1 {
			d := b.Duration()
			f.log.WithError(err).WithFields(map[string]any{
				"op":    op,
				"retry": d.String(),
			}).Warn("exchange read failed, retrying")

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d):
			}
		}
	}
	return err
}

// Rejection codes that describe the order rather than the transport.
var rejectionCodes = map[int64]bool{
	-1013: true, // invalid quantity/price filter
	-1111: true, // precision over the maximum
	-2010: true, // new order rejected
	-2019: true, // margin is insufficient
	-2021: true, // order would immediately trigger
	-2022: true, // reduce-only rejected
	-4003: true, // quantity less than zero
	-4164: true, // notional below minimum
}

func asRejection(err error) (string, bool) {
	apiErr, ok := err.(*common.APIError)
	if !ok {
		return "", false
	}
	if rejectionCodes[apiErr.Code] {
		return apiErr.Message, true
	}
	return "", false
}

func isUnknownOrderErr(err error) bool {
	if apiErr, ok := err.(*common.APIError); ok {
		return apiErr.Code == -2011 || apiErr.Code == -2013
	}
	return strings.Contains(strings.ToLower(err.Error()), "unknown order")
}

func klineToBar(k *futures.Kline) core.Bar {
	return core.Bar{
		Timestamp: k.OpenTime,
		Open:      parseF(k.Open),
		High:      parseF(k.High),
		Low:       parseF(k.Low),
		Close:     parseF(k.Close),
		Volume:    parseF(k.Volume),
	}
}

func orderToRaw(o *futures.Order) core.RawOrder {
	amount := parseF(o.OrigQuantity)
	filled := parseF(o.ExecutedQuantity)
	return core.RawOrder{
		ID:        strconv.FormatInt(o.OrderID, 10),
		ClientID:  o.ClientOrderID,
		Symbol:    o.Symbol,
		Side:      string(o.Side),
		Type:      string(o.Type),
		Status:    string(o.Status),
		Price:     parseF(o.Price),
		Average:   parseF(o.AvgPrice),
		Amount:    amount,
		Filled:    filled,
		Remaining: amount - filled,
		StopPrice: parseF(o.StopPrice),
		UpdatedAt: time.Unix(0, o.UpdateTime*int64(time.Millisecond)),
	}
}

func createResponseToRaw(o *futures.CreateOrderResponse) core.RawOrder {
	amount := parseF(o.OrigQuantity)
	filled := parseF(o.ExecutedQuantity)

	average := parseF(o.AvgPrice)
	if average == 0 && filled > 0 {
		if quote := parseF(o.CumQuote); quote > 0 {
			average = quote / filled
		}
	}

	return core.RawOrder{
		ID:        strconv.FormatInt(o.OrderID, 10),
		ClientID:  o.ClientOrderID,
		Symbol:    o.Symbol,
		Side:      string(o.Side),
		Type:      string(o.Type),
		Status:    string(o.Status),
		Price:     parseF(o.Price),
		Average:   average,
		Amount:    amount,
		Filled:    filled,
		Remaining: amount - filled,
		StopPrice: parseF(o.StopPrice),
		UpdatedAt: time.Unix(0, o.UpdateTime*int64(time.Millisecond)),
	}
}

func parseF(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}
