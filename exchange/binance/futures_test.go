package binance

import (
	"errors"
	"testing"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/lcerda/tidebot/core"
	zl "github.com/lcerda/tidebot/logger/zerolog"
	"github.com/stretchr/testify/assert"
)

func testFutures() *Futures {
	return &Futures{
		log: zl.NewAdapter(zl.NewNop().Logger),
		symbols: map[string]symbolInfo{
			"BTCUSDT": {quantityPrecision: 3, pricePrecision: 2, minQuantity: 0.001},
		},
	}
}

func TestKlineToBar(t *testing.T) {
	bar := klineToBar(&futures.Kline{
		OpenTime: 1709251200000,
		Open:     "100.5",
		High:     "101.0",
		Low:      "99.9",
		Close:    "100.7",
		Volume:   "1234.5",
	})
	assert.Equal(t, int64(1709251200000), bar.Timestamp)
	assert.Equal(t, 100.5, bar.Open)
	assert.Equal(t, 100.7, bar.Close)
	assert.Equal(t, 1234.5, bar.Volume)
}

func TestFormatQuantityAndPrice(t *testing.T) {
	f := testFutures()

	assert.Equal(t, "0.123", f.formatQuantity("BTCUSDT", 0.123456))
	assert.Equal(t, "100.46", f.formatPrice("BTCUSDT", 100.456))

	// Unknown symbols fall back to shortest representation.
	assert.Equal(t, "0.123456", f.formatQuantity("ETHUSDT", 0.123456))
}

func TestValidateQuantity(t *testing.T) {
	f := testFutures()

	assert.NoError(t, f.validateQuantity("BTCUSDT", 0.001))
	err := f.validateQuantity("BTCUSDT", 0.0001)
	assert.ErrorIs(t, err, core.ErrInvalidAmount)
}

func TestAsRejection(t *testing.T) {
	msg, ok := asRejection(&common.APIError{Code: -2019, Message: "Margin is insufficient."})
	assert.True(t, ok)
	assert.Equal(t, "Margin is insufficient.", msg)

	_, ok = asRejection(&common.APIError{Code: -1003, Message: "Too many requests."})
	assert.False(t, ok)

	_, ok = asRejection(errors.New("connection reset"))
	assert.False(t, ok)
}

func TestIsUnknownOrderErr(t *testing.T) {
	assert.True(t, isUnknownOrderErr(&common.APIError{Code: -2011}))
	assert.True(t, isUnknownOrderErr(&common.APIError{Code: -2013}))
	assert.True(t, isUnknownOrderErr(errors.New("Unknown order sent.")))
	assert.False(t, isUnknownOrderErr(errors.New("connection reset")))
}

func TestOrderToRaw(t *testing.T) {
	raw := orderToRaw(&futures.Order{
		OrderID:          42,
		ClientOrderID:    "tidebot-abc",
		Symbol:           "BTCUSDT",
		Side:             futures.SideTypeSell,
		Type:             futures.OrderTypeStopMarket,
		Status:           futures.OrderStatusTypeNew,
		OrigQuantity:     "0.500",
		ExecutedQuantity: "0",
		StopPrice:        "99.50",
		UpdateTime:       1709251200000,
	})
	assert.Equal(t, "42", raw.ID)
	assert.Equal(t, "NEW", raw.Status)
	assert.Equal(t, 0.5, raw.Amount)
	assert.Equal(t, 0.5, raw.Remaining)
	assert.Equal(t, 99.5, raw.StopPrice)
}

func TestCreateResponseToRaw_AverageFromCumQuote(t *testing.T) {
	raw := createResponseToRaw(&futures.CreateOrderResponse{
		OrderID:          43,
		Symbol:           "BTCUSDT",
		Status:           futures.OrderStatusTypeFilled,
		OrigQuantity:     "0.5",
		ExecutedQuantity: "0.5",
		AvgPrice:         "0",
		CumQuote:         "50.6",
	})
	assert.Equal(t, 101.2, raw.Average)
	assert.Equal(t, 0.0, raw.Remaining)
}
