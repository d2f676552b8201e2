package exchange

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lensseoyhshi/crypto-trading/internal/types"
)

// CreateOrderParams are the venue-agnostic inputs for one order placement.
type CreateOrderParams struct {
	Symbol     string
	Side       types.OrderSide
	Type       types.OrderType
	Amount     decimal.Decimal
	Price      *decimal.Decimal
	StopPrice  *decimal.Decimal
	ReduceOnly bool
}

// Exchange is the capability contract every venue adapter implements. All
// calls are blocking; the context bounds the venue round-trip. CreateOrder
// issues exactly one placement call and never retries: a blind retry can
// duplicate execution, so retrying is a caller decision made after GetOrder
// has resolved the first attempt's outcome.
type Exchange interface {
	Name() types.ExchangeType

	AccountSnapshot(ctx context.Context) (*types.AccountSnapshot, error)
	CreateOrder(ctx context.Context, p CreateOrderParams) (*types.Order, error)
	// CancelOrder is idempotent from the caller's view: cancelling an order
	// the venue already considers terminal returns false, not an error.
	CancelOrder(ctx context.Context, exchangeOrderID, symbol string) (bool, error)
	GetOrder(ctx context.Context, exchangeOrderID, symbol string) (*types.Order, error)
	GetOrders(ctx context.Context, symbol string, status types.OrderStatus, limit int) ([]types.Order, error)
	GetPositions(ctx context.Context, symbol string) ([]types.Position, error)
	// ClosePosition places a reduce-only market order on the side that
	// offsets the position. A nil amount closes the full tracked size.
	ClosePosition(ctx context.Context, symbol string, side types.PositionSide, amount *decimal.Decimal) (*types.Order, error)
	GetTicker(ctx context.Context, symbol string) (*types.Ticker, error)
	GetKlines(ctx context.Context, symbol, interval string, limit int, start, end *time.Time) ([]types.Kline, error)
}

// NormalizeSymbol canonicalizes a caller-supplied symbol: separators removed,
// upper-cased. Adapters apply venue instrument formatting on top of this, so
// callers never deal with venue-specific symbol shapes.
func NormalizeSymbol(symbol string) string {
	r := strings.NewReplacer("-", "", "_", "", "/", "")
	return strings.ToUpper(r.Replace(strings.TrimSpace(symbol)))
}
