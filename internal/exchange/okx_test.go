package exchange

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lensseoyhshi/crypto-trading/internal/types"
)

func newTestOKX(t *testing.T, handler http.HandlerFunc) *OKX {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	o := NewOKX("test-key", "test-secret", "test-pass", true, 5*time.Second)
	o.http.SetBaseURL(srv.URL)
	return o
}

func TestOKXInstIDConversion(t *testing.T) {
	tests := map[string]string{
		"BTCUSDT":  "BTC-USDT-SWAP",
		"btc-usdt": "BTC-USDT-SWAP",
		"ETHUSDC":  "ETH-USDC-SWAP",
		"SOLUSD":   "SOL-USD-SWAP",
	}
	for in, want := range tests {
		assert.Equal(t, want, okxInstID(in), in)
	}
	assert.Equal(t, "BTCUSDT", okxSymbol("BTC-USDT-SWAP"))
}

func TestOKXRequestHeaders(t *testing.T) {
	o := newTestOKX(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("OK-ACCESS-KEY"))
		assert.Equal(t, "test-pass", r.Header.Get("OK-ACCESS-PASSPHRASE"))
		assert.NotEmpty(t, r.Header.Get("OK-ACCESS-SIGN"))
		assert.NotEmpty(t, r.Header.Get("OK-ACCESS-TIMESTAMP"))
		assert.Equal(t, "1", r.Header.Get("x-simulated-trading"), "sandbox selects simulated trading")

		w.Write([]byte(`{"code":"0","msg":"","data":[{"ordId":"1","instId":"BTC-USDT-SWAP","side":"buy","ordType":"market","sz":"1","state":"filled","accFillSz":"1","avgPx":"60000","fee":"-0.5","feeCcy":"USDT"}]}`))
	})

	order, err := o.GetOrder(context.Background(), "1", "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, types.StatusFilled, order.Status)
	assert.Equal(t, "BTCUSDT", order.Symbol, "instId is converted back to canonical form")
	assert.True(t, order.Fee.Equal(decimal.RequireFromString("0.5")), "fee sign is normalized")
	assert.Equal(t, "USDT", order.FeeCurrency)
}

func TestOKXEnvelopeErrorIsRejected(t *testing.T) {
	o := newTestOKX(t, func(w http.ResponseWriter, r *http.Request) {
		// HTTP 200 with a non-zero envelope code is still an error.
		w.Write([]byte(`{"code":"51000","msg":"Parameter instId error","data":[]}`))
	})

	_, err := o.GetOrder(context.Background(), "1", "BTCUSDT")
	assert.True(t, IsRejected(err))
}

func TestOKXAuthCodeMapsToAuthFailed(t *testing.T) {
	o := newTestOKX(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":"50111","msg":"Invalid OK-ACCESS-KEY","data":[]}`))
	})

	_, err := o.GetOrder(context.Background(), "1", "BTCUSDT")
	assert.ErrorIs(t, err, ErrAuthFailed)
}

func TestOKXCreateOrderFetchesAuthoritativeState(t *testing.T) {
	var placedBody map[string]string
	o := newTestOKX(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v5/trade/order":
			if r.Method == http.MethodPost {
				require.NoError(t, json.NewDecoder(r.Body).Decode(&placedBody))
				w.Write([]byte(`{"code":"0","msg":"","data":[{"ordId":"555","sCode":"0","sMsg":""}]}`))
				return
			}
			assert.Equal(t, "555", r.URL.Query().Get("ordId"))
			w.Write([]byte(`{"code":"0","msg":"","data":[{"ordId":"555","instId":"BTC-USDT-SWAP","side":"buy","ordType":"market","sz":"0.1","state":"live","accFillSz":"0"}]}`))
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	})

	order, err := o.CreateOrder(context.Background(), CreateOrderParams{
		Symbol: "BTCUSDT",
		Side:   types.SideBuy,
		Type:   types.TypeMarket,
		Amount: decimal.RequireFromString("0.1"),
	})
	require.NoError(t, err)
	assert.Equal(t, "555", order.ExchangeOrderID)
	assert.Equal(t, types.StatusOpen, order.Status)

	assert.Equal(t, "BTC-USDT-SWAP", placedBody["instId"])
	assert.Equal(t, "cross", placedBody["tdMode"])
	assert.NotEmpty(t, placedBody["clOrdId"])
}

func TestOKXCreateOrderFollowupFailureFallsBackToPending(t *testing.T) {
	o := newTestOKX(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			w.Write([]byte(`{"code":"0","msg":"","data":[{"ordId":"777","sCode":"0","sMsg":""}]}`))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	// The order IS placed even though the follow-up read failed; the caller
	// must get a record, not an error.
	order, err := o.CreateOrder(context.Background(), CreateOrderParams{
		Symbol: "BTCUSDT",
		Side:   types.SideSell,
		Type:   types.TypeMarket,
		Amount: decimal.NewFromInt(1),
	})
	require.NoError(t, err)
	assert.Equal(t, "777", order.ExchangeOrderID)
	assert.Equal(t, types.StatusPending, order.Status)
}

func TestOKXCreateOrderRejectsStopTypes(t *testing.T) {
	o := newTestOKX(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request should reach the venue")
	})

	for _, typ := range []types.OrderType{types.TypeStop, types.TypeStopLimit} {
		_, err := o.CreateOrder(context.Background(), CreateOrderParams{
			Symbol: "BTCUSDT",
			Side:   types.SideBuy,
			Type:   typ,
			Amount: decimal.NewFromInt(1),
		})
		assert.True(t, IsRejected(err), string(typ))
	}
}

func TestOKXCancelAlreadyTerminalOrder(t *testing.T) {
	o := newTestOKX(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":"0","msg":"","data":[{"sCode":"51401","sMsg":"Cancellation failed as the order is already canceled"}]}`))
	})

	cancelled, err := o.CancelOrder(context.Background(), "555", "BTCUSDT")
	require.NoError(t, err)
	assert.False(t, cancelled)
}

func TestOKXCancelOrder(t *testing.T) {
	o := newTestOKX(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v5/trade/cancel-order", r.URL.Path)
		w.Write([]byte(`{"code":"0","msg":"","data":[{"sCode":"0","sMsg":""}]}`))
	})

	cancelled, err := o.CancelOrder(context.Background(), "555", "BTCUSDT")
	require.NoError(t, err)
	assert.True(t, cancelled)
}

func TestOKXGetPositionsNetMode(t *testing.T) {
	o := newTestOKX(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "SWAP", r.URL.Query().Get("instType"))
		w.Write([]byte(`{"code":"0","msg":"","data":[
			{"instId":"BTC-USDT-SWAP","posSide":"net","pos":"-3","avgPx":"60000","markPx":"59000","upl":"3000","lever":"10"},
			{"instId":"ETH-USDT-SWAP","posSide":"long","pos":"2","avgPx":"3000","lever":"5"}
		]}`))
	})

	positions, err := o.GetPositions(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, positions, 2)
	assert.Equal(t, types.PositionShort, positions[0].Side, "net mode takes direction from the sign")
	assert.True(t, positions[0].Size.Equal(decimal.NewFromInt(3)))
	assert.Equal(t, types.PositionLong, positions[1].Side)
}

func TestOKXGetKlinesReversedToOldestFirst(t *testing.T) {
	o := newTestOKX(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v5/market/candles", r.URL.Path)
		assert.Equal(t, "1H", r.URL.Query().Get("bar"), "hour intervals use OKX bar notation")
		// OKX returns newest first.
		w.Write([]byte(`{"code":"0","msg":"","data":[
			["1700003600000","60200","60800","60100","60700","98"],
			["1700000000000","60000","60500","59800","60200","120"]
		]}`))
	})

	klines, err := o.GetKlines(context.Background(), "BTCUSDT", "1h", 2, nil, nil)
	require.NoError(t, err)
	require.Len(t, klines, 2)
	assert.True(t, klines[0].OpenTime.Before(klines[1].OpenTime), "rows are re-ordered oldest first")
	assert.True(t, klines[0].Open.Equal(decimal.NewFromInt(60000)))
}

func TestOKXGetTicker(t *testing.T) {
	o := newTestOKX(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "BTC-USDT-SWAP", r.URL.Query().Get("instId"))
		w.Write([]byte(`{"code":"0","msg":"","data":[{"last":"60250.1","bidPx":"60250","askPx":"60250.2","vol24h":"15000","ts":"1700000000000"}]}`))
	})

	ticker, err := o.GetTicker(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.True(t, ticker.Last.Equal(decimal.RequireFromString("60250.1")))
	assert.Equal(t, time.UnixMilli(1700000000000), ticker.Timestamp)
}
