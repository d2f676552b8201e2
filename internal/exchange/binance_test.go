package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lensseoyhshi/crypto-trading/internal/types"
)

func newTestBinance(t *testing.T, handler http.HandlerFunc) *Binance {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	b := NewBinance("test-key", "test-secret", true, 5*time.Second)
	b.http.SetBaseURL(srv.URL)
	return b
}

// verifyBinanceSignature recomputes the HMAC over the sorted query (minus the
// signature itself) the way the venue does.
func verifyBinanceSignature(t *testing.T, r *http.Request, secret string) {
	t.Helper()
	query := r.URL.Query()
	signature := query.Get("signature")
	require.NotEmpty(t, signature, "signature missing")
	query.Del("signature")

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(query.Encode()))
	assert.Equal(t, hex.EncodeToString(mac.Sum(nil)), signature)
}

func TestBinanceCreateLimitOrder(t *testing.T) {
	price := decimal.RequireFromString("50000")
	b := newTestBinance(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/fapi/v1/order", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-MBX-APIKEY"))
		verifyBinanceSignature(t, r, "test-secret")

		q := r.URL.Query()
		assert.Equal(t, "BTCUSDT", q.Get("symbol"))
		assert.Equal(t, "BUY", q.Get("side"))
		assert.Equal(t, "LIMIT", q.Get("type"))
		assert.Equal(t, "0.5", q.Get("quantity"))
		assert.Equal(t, "50000", q.Get("price"))
		assert.Equal(t, "GTC", q.Get("timeInForce"))
		assert.NotEmpty(t, q.Get("newClientOrderId"))

		w.Write([]byte(`{"orderId":12345,"symbol":"BTCUSDT","status":"NEW","side":"BUY","type":"LIMIT","origQty":"0.5","executedQty":"0","price":"50000"}`))
	})

	order, err := b.CreateOrder(context.Background(), CreateOrderParams{
		Symbol: "BTC-USDT",
		Side:   types.SideBuy,
		Type:   types.TypeLimit,
		Amount: decimal.RequireFromString("0.5"),
		Price:  &price,
	})
	require.NoError(t, err)
	assert.Equal(t, "12345", order.ExchangeOrderID)
	assert.Equal(t, types.StatusOpen, order.Status)
	assert.True(t, order.FilledAmount.IsZero())
}

func TestBinanceCreateMarketOrderFilledImmediately(t *testing.T) {
	b := newTestBinance(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "MARKET", q.Get("type"))
		assert.Empty(t, q.Get("price"))
		assert.Empty(t, q.Get("timeInForce"))

		w.Write([]byte(`{"orderId":7,"symbol":"BTCUSDT","status":"FILLED","side":"SELL","type":"MARKET","origQty":"1","executedQty":"1","avgPrice":"64123.5"}`))
	})

	order, err := b.CreateOrder(context.Background(), CreateOrderParams{
		Symbol: "BTCUSDT",
		Side:   types.SideSell,
		Type:   types.TypeMarket,
		Amount: decimal.NewFromInt(1),
	})
	require.NoError(t, err)
	assert.Equal(t, types.StatusFilled, order.Status)
	assert.True(t, order.FilledAmount.Equal(decimal.NewFromInt(1)))
	require.NotNil(t, order.FilledPrice)
	assert.True(t, order.FilledPrice.Equal(decimal.RequireFromString("64123.5")))
}

func TestBinanceCreateOrderMissingPrice(t *testing.T) {
	b := newTestBinance(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request should reach the venue")
	})

	_, err := b.CreateOrder(context.Background(), CreateOrderParams{
		Symbol: "BTCUSDT",
		Side:   types.SideBuy,
		Type:   types.TypeLimit,
		Amount: decimal.NewFromInt(1),
	})
	assert.True(t, IsRejected(err))
}

func TestBinanceStatusMapping(t *testing.T) {
	tests := map[string]types.OrderStatus{
		"NEW":              types.StatusOpen,
		"PARTIALLY_FILLED": types.StatusPartiallyFilled,
		"FILLED":           types.StatusFilled,
		"CANCELED":         types.StatusCancelled,
		"EXPIRED":          types.StatusCancelled,
		"REJECTED":         types.StatusRejected,
		"PENDING_CANCEL":   types.StatusPending, // unmapped: conservative default
	}
	for venue, want := range tests {
		assert.Equal(t, want, binanceStatus(venue), venue)
	}
}

func TestBinanceParseOrderUnknownSide(t *testing.T) {
	b := NewBinance("k", "s", true, time.Second)
	_, err := b.parseOrder(&binanceOrder{OrderID: 1, Side: "SHORT_SELL", OrigQty: "1", ExecutedQty: "0"})
	assert.Error(t, err, "unknown side must never be guessed")
}

func TestBinanceCancelOrder(t *testing.T) {
	b := newTestBinance(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "12345", r.URL.Query().Get("orderId"))
		w.Write([]byte(`{"orderId":12345,"status":"CANCELED"}`))
	})

	cancelled, err := b.CancelOrder(context.Background(), "12345", "BTCUSDT")
	require.NoError(t, err)
	assert.True(t, cancelled)
}

func TestBinanceCancelAlreadyTerminalOrder(t *testing.T) {
	b := newTestBinance(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code":-2011,"msg":"Unknown order sent."}`))
	})

	cancelled, err := b.CancelOrder(context.Background(), "12345", "BTCUSDT")
	require.NoError(t, err, "cancelling a terminal order is a no-op, not a failure")
	assert.False(t, cancelled)
}

func TestBinanceAuthFailure(t *testing.T) {
	b := newTestBinance(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"code":-2015,"msg":"Invalid API-key."}`))
	})

	_, err := b.GetOrder(context.Background(), "1", "BTCUSDT")
	assert.ErrorIs(t, err, ErrAuthFailed)
}

func TestBinanceServerErrorIsUnavailable(t *testing.T) {
	b := newTestBinance(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := b.GetOrder(context.Background(), "1", "BTCUSDT")
	assert.ErrorIs(t, err, ErrExchangeUnavailable)
}

func TestBinanceGetPositionsOneWayMode(t *testing.T) {
	b := newTestBinance(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/fapi/v2/positionRisk", r.URL.Path)
		w.Write([]byte(`[
			{"symbol":"BTCUSDT","positionAmt":"0.25","entryPrice":"60000","markPrice":"61000","unRealizedProfit":"250","leverage":"10","positionSide":"BOTH"},
			{"symbol":"ETHUSDT","positionAmt":"-2","entryPrice":"3000","markPrice":"2950","unRealizedProfit":"100","leverage":"5","positionSide":"BOTH"},
			{"symbol":"SOLUSDT","positionAmt":"0","entryPrice":"0","leverage":"20","positionSide":"BOTH"}
		]`))
	})

	positions, err := b.GetPositions(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, positions, 2, "flat positions are dropped")

	assert.Equal(t, types.PositionLong, positions[0].Side)
	assert.True(t, positions[0].Size.Equal(decimal.RequireFromString("0.25")))
	assert.Equal(t, 10, positions[0].Leverage)

	assert.Equal(t, types.PositionShort, positions[1].Side, "negative amount means short in one-way mode")
	assert.True(t, positions[1].Size.Equal(decimal.NewFromInt(2)), "size is reported unsigned")
}

func TestBinanceClosePositionNoPosition(t *testing.T) {
	b := newTestBinance(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	})

	_, err := b.ClosePosition(context.Background(), "BTCUSDT", types.PositionLong, nil)
	assert.ErrorIs(t, err, ErrNoSuchPosition)
}

func TestBinanceClosePositionReduceOnly(t *testing.T) {
	b := newTestBinance(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/fapi/v2/positionRisk":
			w.Write([]byte(`[{"symbol":"BTCUSDT","positionAmt":"0.25","entryPrice":"60000","leverage":"10","positionSide":"LONG"}]`))
		case "/fapi/v1/order":
			q := r.URL.Query()
			assert.Equal(t, "SELL", q.Get("side"), "closing a long means selling")
			assert.Equal(t, "true", q.Get("reduceOnly"))
			assert.Equal(t, "0.25", q.Get("quantity"), "nil amount closes the full size")
			w.Write([]byte(`{"orderId":99,"symbol":"BTCUSDT","status":"FILLED","side":"SELL","type":"MARKET","origQty":"0.25","executedQty":"0.25","avgPrice":"61000"}`))
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	})

	order, err := b.ClosePosition(context.Background(), "BTCUSDT", types.PositionLong, nil)
	require.NoError(t, err)
	assert.Equal(t, types.StatusFilled, order.Status)
}

func TestBinanceGetKlines(t *testing.T) {
	b := newTestBinance(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/fapi/v1/klines", r.URL.Path)
		assert.Equal(t, "1h", r.URL.Query().Get("interval"))
		w.Write([]byte(`[
			[1700000000000,"60000","60500","59800","60200","120.5",1700003599999,"7260000",4821,"60","3630000","0"],
			[1700003600000,"60200","60800","60100","60700","98.2",1700007199999,"5940000",3987,"49","2970000","0"]
		]`))
	})

	klines, err := b.GetKlines(context.Background(), "BTCUSDT", "1h", 2, nil, nil)
	require.NoError(t, err)
	require.Len(t, klines, 2)
	assert.True(t, klines[0].Open.Equal(decimal.NewFromInt(60000)))
	assert.True(t, klines[0].Close.Equal(decimal.NewFromInt(60200)))
	assert.Equal(t, int64(4821), klines[0].TradeCount)
	assert.True(t, klines[0].OpenTime.Before(klines[1].OpenTime), "rows are oldest first")
}

func TestBinanceGetTicker(t *testing.T) {
	b := newTestBinance(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/fapi/v1/ticker/24hr":
			w.Write([]byte(`{"symbol":"BTCUSDT","lastPrice":"60250.10","volume":"15000","closeTime":1700000000000}`))
		case "/fapi/v1/ticker/bookTicker":
			w.Write([]byte(`{"bidPrice":"60250.00","askPrice":"60250.20"}`))
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	})

	ticker, err := b.GetTicker(context.Background(), "btc/usdt")
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", ticker.Symbol)
	assert.True(t, ticker.Last.Equal(decimal.RequireFromString("60250.10")))
	assert.True(t, ticker.Bid.LessThan(ticker.Ask))
}

func TestNormalizeSymbol(t *testing.T) {
	tests := map[string]string{
		"BTCUSDT":       "BTCUSDT",
		"btc-usdt":      "BTCUSDT",
		"BTC_USDT":      "BTCUSDT",
		"btc/usdt":      "BTCUSDT",
		"BTC-USDT-SWAP": "BTCUSDTSWAP",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeSymbol(in), in)
	}
}

func TestFactoryUnsupportedExchange(t *testing.T) {
	_, err := New("kraken", Credentials{APIKey: "k", SecretKey: "s"}, true, time.Second)
	assert.ErrorIs(t, err, ErrUnsupportedExchange)
}

func TestFactoryBuildsEachVenue(t *testing.T) {
	for _, kind := range Supported() {
		adapter, err := New(kind, Credentials{APIKey: "k", SecretKey: "s", Passphrase: "p"}, true, time.Second)
		require.NoError(t, err, string(kind))
		assert.Equal(t, kind, adapter.Name())
	}
}
