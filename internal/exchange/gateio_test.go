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

func newTestGateIO(t *testing.T, handler http.HandlerFunc) *GateIO {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	g := NewGateIO("test-key", "test-secret", true, 5*time.Second)
	g.http.SetBaseURL(srv.URL)
	return g
}

func TestGateContractConversion(t *testing.T) {
	assert.Equal(t, "BTC_USDT", gateContract("BTCUSDT"))
	assert.Equal(t, "ETH_USDC", gateContract("eth-usdc"))
}

func TestGateCreateOrderSignedSize(t *testing.T) {
	var body map[string]any
	g := newTestGateIO(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v4/futures/usdt/orders", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("KEY"))
		assert.NotEmpty(t, r.Header.Get("SIGN"))
		assert.NotEmpty(t, r.Header.Get("Timestamp"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		w.Write([]byte(`{"id":321,"contract":"BTC_USDT","size":-2,"left":0,"price":"0","fill_price":"60100","status":"finished","finish_as":"ioc"}`))
	})

	order, err := g.CreateOrder(context.Background(), CreateOrderParams{
		Symbol: "BTCUSDT",
		Side:   types.SideSell,
		Type:   types.TypeMarket,
		Amount: decimal.NewFromInt(2),
	})
	require.NoError(t, err)

	assert.Equal(t, "BTC_USDT", body["contract"])
	assert.Equal(t, float64(-2), body["size"], "sell is expressed as negative size")
	assert.Equal(t, "0", body["price"], "market orders use price 0")
	assert.Equal(t, "ioc", body["tif"])

	assert.Equal(t, "321", order.ExchangeOrderID)
	assert.Equal(t, types.SideSell, order.Side)
	assert.Equal(t, types.StatusFilled, order.Status, "finished/ioc counts as filled")
	assert.True(t, order.FilledAmount.Equal(decimal.NewFromInt(2)))
}

func TestGateStatusMapping(t *testing.T) {
	tests := []struct {
		name  string
		order gateOrder
		want  types.OrderStatus
	}{
		{"open untouched", gateOrder{Size: decimal.NewFromInt(10), Left: decimal.NewFromInt(10), Status: "open"}, types.StatusOpen},
		{"open partially filled", gateOrder{Size: decimal.NewFromInt(10), Left: decimal.NewFromInt(4), Status: "open"}, types.StatusPartiallyFilled},
		{"short partially filled", gateOrder{Size: decimal.NewFromInt(-10), Left: decimal.NewFromInt(-4), Status: "open"}, types.StatusPartiallyFilled},
		{"finished filled", gateOrder{Size: decimal.NewFromInt(10), Status: "finished", FinishAs: "filled"}, types.StatusFilled},
		{"finished cancelled", gateOrder{Size: decimal.NewFromInt(10), Left: decimal.NewFromInt(10), Status: "finished", FinishAs: "cancelled"}, types.StatusCancelled},
		{"finished liquidated", gateOrder{Size: decimal.NewFromInt(10), Status: "finished", FinishAs: "liquidated"}, types.StatusCancelled},
		{"unknown state", gateOrder{Size: decimal.NewFromInt(10), Status: "mystery"}, types.StatusPending},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, gateStatus(&tt.order))
		})
	}
}

func TestGateParseOrderZeroSize(t *testing.T) {
	g := NewGateIO("k", "s", true, time.Second)
	_, err := g.parseOrder(&gateOrder{ID: 1, Contract: "BTC_USDT"})
	assert.Error(t, err, "zero size carries no direction")
}

func TestGateCancelAlreadyFinishedByError(t *testing.T) {
	g := newTestGateIO(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"label":"ORDER_FINISHED","message":"order is finished"}`))
	})

	cancelled, err := g.CancelOrder(context.Background(), "321", "BTCUSDT")
	require.NoError(t, err)
	assert.False(t, cancelled)
}

func TestGateCancelNotFound(t *testing.T) {
	g := newTestGateIO(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"label":"ORDER_NOT_FOUND","message":"order not found"}`))
	})

	cancelled, err := g.CancelOrder(context.Background(), "999", "BTCUSDT")
	require.NoError(t, err)
	assert.False(t, cancelled)
}

func TestGateCancelEchoedFinishedOrder(t *testing.T) {
	g := newTestGateIO(t, func(w http.ResponseWriter, r *http.Request) {
		// 200 response echoing an order that finished before the cancel landed.
		w.Write([]byte(`{"id":321,"contract":"BTC_USDT","size":2,"left":0,"status":"finished","finish_as":"filled"}`))
	})

	cancelled, err := g.CancelOrder(context.Background(), "321", "BTCUSDT")
	require.NoError(t, err)
	assert.False(t, cancelled)
}

func TestGateCancelOrder(t *testing.T) {
	g := newTestGateIO(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/api/v4/futures/usdt/orders/321", r.URL.Path)
		w.Write([]byte(`{"id":321,"contract":"BTC_USDT","size":2,"left":2,"status":"finished","finish_as":"cancelled"}`))
	})

	cancelled, err := g.CancelOrder(context.Background(), "321", "BTCUSDT")
	require.NoError(t, err)
	assert.True(t, cancelled)
}

func TestGateCreateOrderRejectsStopTypes(t *testing.T) {
	g := newTestGateIO(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request should reach the venue")
	})

	_, err := g.CreateOrder(context.Background(), CreateOrderParams{
		Symbol: "BTCUSDT",
		Side:   types.SideBuy,
		Type:   types.TypeStop,
		Amount: decimal.NewFromInt(1),
	})
	assert.True(t, IsRejected(err))
}

func TestGateGetPositionsDualMode(t *testing.T) {
	g := newTestGateIO(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v4/futures/usdt/positions", r.URL.Path)
		w.Write([]byte(`[
			{"contract":"BTC_USDT","size":5,"entry_price":"60000","mark_price":"60100","unrealised_pnl":"500","leverage":"10","mode":"dual_long"},
			{"contract":"BTC_USDT","size":-3,"entry_price":"61000","leverage":"10","mode":"dual_short"},
			{"contract":"ETH_USDT","size":0,"entry_price":"0","leverage":"5","mode":"single"}
		]`))
	})

	positions, err := g.GetPositions(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	require.Len(t, positions, 2)
	assert.Equal(t, types.PositionLong, positions[0].Side)
	assert.Equal(t, types.PositionShort, positions[1].Side)
	assert.True(t, positions[1].Size.Equal(decimal.NewFromInt(3)))
}

func TestGateAccountSnapshot(t *testing.T) {
	g := newTestGateIO(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v4/futures/usdt/accounts":
			w.Write([]byte(`{"currency":"USDT","total":"10000.5","available":"9000"}`))
		case "/api/v4/futures/usdt/positions":
			w.Write([]byte(`[]`))
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	})

	snapshot, err := g.AccountSnapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, snapshot.Balances, 1)
	assert.Equal(t, "USDT", snapshot.Balances[0].Currency)
	assert.True(t, snapshot.Balances[0].Frozen.Equal(decimal.RequireFromString("1000.5")))
	require.NotNil(t, snapshot.TotalEquity)
}

func TestGateGetKlines(t *testing.T) {
	g := newTestGateIO(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v4/futures/usdt/candlesticks", r.URL.Path)
		assert.Equal(t, "BTC_USDT", r.URL.Query().Get("contract"))
		w.Write([]byte(`[
			{"t":1700000000,"v":120,"c":"60200","h":"60500","l":"59800","o":"60000"},
			{"t":1700003600,"v":98,"c":"60700","h":"60800","l":"60100","o":"60200"}
		]`))
	})

	klines, err := g.GetKlines(context.Background(), "BTCUSDT", "1h", 2, nil, nil)
	require.NoError(t, err)
	require.Len(t, klines, 2)
	assert.True(t, klines[0].Close.Equal(decimal.NewFromInt(60200)))
	assert.True(t, klines[0].OpenTime.Before(klines[1].OpenTime))
}
