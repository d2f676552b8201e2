package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/lensseoyhshi/crypto-trading/internal/types"
)

const (
	binanceMainnetURL = "https://fapi.binance.com"
	binanceTestnetURL = "https://testnet.binancefuture.com"
)

// Binance implements the Exchange contract against the Binance USDT-M
// futures REST API. Requests are authenticated by signing the query string
// with HMAC-SHA256 and passing the key in X-MBX-APIKEY.
type Binance struct {
	apiKey    string
	secretKey string
	sandbox   bool
	http      *resty.Client
}

// NewBinance builds a Binance adapter. No network I/O happens here.
func NewBinance(apiKey, secretKey string, sandbox bool, timeout time.Duration) *Binance {
	base := binanceMainnetURL
	if sandbox {
		base = binanceTestnetURL
	}
	return &Binance{
		apiKey:    apiKey,
		secretKey: secretKey,
		sandbox:   sandbox,
		http:      newRESTClient(base, timeout),
	}
}

func (b *Binance) Name() types.ExchangeType { return types.ExchangeBinance }

func (b *Binance) sign(query string) string {
	mac := hmac.New(sha256.New, []byte(b.secretKey))
	mac.Write([]byte(query))
	return hex.EncodeToString(mac.Sum(nil))
}

func (b *Binance) signedRequest(ctx context.Context, method, path string, params url.Values, out any) error {
	if params == nil {
		params = url.Values{}
	}
	params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	params.Set("recvWindow", "5000")
	query := params.Encode()
	full := path + "?" + query + "&signature=" + b.sign(query)

	resp, err := b.http.R().
		SetContext(ctx).
		SetHeader("X-MBX-APIKEY", b.apiKey).
		Execute(method, full)
	if err != nil {
		return transportErr(err)
	}
	if resp.IsError() {
		return classifyHTTPError(resp.StatusCode(), resp.Body())
	}
	if out != nil {
		if err := json.Unmarshal(resp.Body(), out); err != nil {
			return fmt.Errorf("decode binance response: %w", err)
		}
	}
	return nil
}

func (b *Binance) publicRequest(ctx context.Context, path string, params url.Values, out any) error {
	resp, err := b.http.R().
		SetContext(ctx).
		SetQueryParamsFromValues(params).
		Get(path)
	if err != nil {
		return transportErr(err)
	}
	if resp.IsError() {
		return classifyHTTPError(resp.StatusCode(), resp.Body())
	}
	return json.Unmarshal(resp.Body(), out)
}

// Venue status/type lookup tables. Unmapped venue statuses fall back to the
// most conservative reading: pending.
var binanceStatusMap = map[string]types.OrderStatus{
	"NEW":              types.StatusOpen,
	"PARTIALLY_FILLED": types.StatusPartiallyFilled,
	"FILLED":           types.StatusFilled,
	"CANCELED":         types.StatusCancelled,
	"EXPIRED":          types.StatusCancelled,
	"EXPIRED_IN_MATCH": types.StatusCancelled,
	"REJECTED":         types.StatusRejected,
}

var binanceTypeMap = map[types.OrderType]string{
	types.TypeMarket:    "MARKET",
	types.TypeLimit:     "LIMIT",
	types.TypeStop:      "STOP_MARKET",
	types.TypeStopLimit: "STOP",
}

func binanceStatus(s string) types.OrderStatus {
	if mapped, ok := binanceStatusMap[s]; ok {
		return mapped
	}
	return types.StatusPending
}

func binanceOrderType(s string) types.OrderType {
	switch s {
	case "LIMIT":
		return types.TypeLimit
	case "STOP_MARKET", "TAKE_PROFIT_MARKET":
		return types.TypeStop
	case "STOP", "TAKE_PROFIT":
		return types.TypeStopLimit
	default:
		return types.TypeMarket
	}
}

type binanceOrder struct {
	OrderID     int64  `json:"orderId"`
	Symbol      string `json:"symbol"`
	Status      string `json:"status"`
	Side        string `json:"side"`
	Type        string `json:"type"`
	OrigQty     string `json:"origQty"`
	ExecutedQty string `json:"executedQty"`
	AvgPrice    string `json:"avgPrice"`
	Price       string `json:"price"`
	StopPrice   string `json:"stopPrice"`
	Time        int64  `json:"time"`
	UpdateTime  int64  `json:"updateTime"`
}

func (b *Binance) parseOrder(bo *binanceOrder) (*types.Order, error) {
	side, err := types.ParseOrderSide(bo.Side)
	if err != nil {
		return nil, fmt.Errorf("binance order %d: %w", bo.OrderID, err)
	}
	amount, err := parseDecimal(bo.OrigQty)
	if err != nil {
		return nil, fmt.Errorf("binance order %d: bad quantity: %w", bo.OrderID, err)
	}
	filled, err := parseDecimal(bo.ExecutedQty)
	if err != nil {
		return nil, fmt.Errorf("binance order %d: bad executed quantity: %w", bo.OrderID, err)
	}
	order := &types.Order{
		ExchangeOrderID: strconv.FormatInt(bo.OrderID, 10),
		Symbol:          bo.Symbol,
		Side:            side,
		Type:            binanceOrderType(bo.Type),
		Amount:          amount,
		Status:          binanceStatus(bo.Status),
		FilledAmount:    filled,
	}
	if p := parseOptionalDecimal(bo.Price); p != nil {
		order.Price = p
	}
	if p := parseOptionalDecimal(bo.StopPrice); p != nil {
		order.StopPrice = p
	}
	if p := parseOptionalDecimal(bo.AvgPrice); p != nil {
		order.FilledPrice = p
	}
	return order, nil
}

func (b *Binance) AccountSnapshot(ctx context.Context) (*types.AccountSnapshot, error) {
	var acct struct {
		TotalMarginBalance string `json:"totalMarginBalance"`
		Assets             []struct {
			Asset            string `json:"asset"`
			WalletBalance    string `json:"walletBalance"`
			AvailableBalance string `json:"availableBalance"`
		} `json:"assets"`
	}
	if err := b.signedRequest(ctx, "GET", "/fapi/v2/account", nil, &acct); err != nil {
		return nil, err
	}

	balances := make([]types.Balance, 0, len(acct.Assets))
	for _, a := range acct.Assets {
		total, err := parseDecimal(a.WalletBalance)
		if err != nil {
			continue
		}
		available, err := parseDecimal(a.AvailableBalance)
		if err != nil {
			continue
		}
		if total.IsZero() && available.IsZero() {
			continue
		}
		balances = append(balances, types.Balance{
			Currency:  a.Asset,
			Total:     total,
			Available: available,
			Frozen:    total.Sub(available),
		})
	}

	positions, err := b.GetPositions(ctx, "")
	if err != nil {
		return nil, err
	}

	snapshot := &types.AccountSnapshot{
		Exchange:  b.Name(),
		Balances:  balances,
		Positions: positions,
	}
	if eq := parseOptionalDecimal(acct.TotalMarginBalance); eq != nil {
		snapshot.TotalEquity = eq
	}
	return snapshot, nil
}

func (b *Binance) CreateOrder(ctx context.Context, p CreateOrderParams) (*types.Order, error) {
	symbol := NormalizeSymbol(p.Symbol)
	venueType, ok := binanceTypeMap[p.Type]
	if !ok {
		return nil, Rejected("unsupported order type %q", p.Type)
	}

	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("side", strings.ToUpper(string(p.Side)))
	params.Set("type", venueType)
	params.Set("quantity", p.Amount.String())
	params.Set("newClientOrderId", uuid.New().String())
	params.Set("newOrderRespType", "RESULT")

	switch p.Type {
	case types.TypeLimit, types.TypeStopLimit:
		if p.Price == nil {
			return nil, Rejected("price required for %s orders", p.Type)
		}
		params.Set("price", p.Price.String())
		params.Set("timeInForce", "GTC")
	}
	switch p.Type {
	case types.TypeStop, types.TypeStopLimit:
		if p.StopPrice == nil {
			return nil, Rejected("stop price required for %s orders", p.Type)
		}
		params.Set("stopPrice", p.StopPrice.String())
	}
	if p.ReduceOnly {
		params.Set("reduceOnly", "true")
	}

	var bo binanceOrder
	if err := b.signedRequest(ctx, "POST", "/fapi/v1/order", params, &bo); err != nil {
		return nil, err
	}
	order, err := b.parseOrder(&bo)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("exchange", string(b.Name())).
		Str("exchange_order_id", order.ExchangeOrderID).
		Str("symbol", symbol).
		Str("side", string(order.Side)).
		Str("status", string(order.Status)).
		Msg("order created")
	return order, nil
}

func (b *Binance) CancelOrder(ctx context.Context, exchangeOrderID, symbol string) (bool, error) {
	params := url.Values{}
	params.Set("symbol", NormalizeSymbol(symbol))
	params.Set("orderId", exchangeOrderID)

	err := b.signedRequest(ctx, "DELETE", "/fapi/v1/order", params, nil)
	if err != nil {
		// -2011 "Unknown order sent": the order is already terminal on the
		// venue. That is a no-op for the caller, not a failure.
		var re *RejectedError
		if asRejected(err, &re) && strings.Contains(re.Reason, "-2011") {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (b *Binance) GetOrder(ctx context.Context, exchangeOrderID, symbol string) (*types.Order, error) {
	params := url.Values{}
	params.Set("symbol", NormalizeSymbol(symbol))
	params.Set("orderId", exchangeOrderID)

	var bo binanceOrder
	if err := b.signedRequest(ctx, "GET", "/fapi/v1/order", params, &bo); err != nil {
		return nil, err
	}
	return b.parseOrder(&bo)
}

func (b *Binance) GetOrders(ctx context.Context, symbol string, status types.OrderStatus, limit int) ([]types.Order, error) {
	if limit <= 0 {
		limit = 100
	}
	params := url.Values{}
	path := "/fapi/v1/openOrders"
	if symbol != "" {
		// allOrders needs a symbol; without one only open orders are listable.
		path = "/fapi/v1/allOrders"
		params.Set("symbol", NormalizeSymbol(symbol))
		params.Set("limit", strconv.Itoa(limit))
	}

	var raw []binanceOrder
	if err := b.signedRequest(ctx, "GET", path, params, &raw); err != nil {
		return nil, err
	}
	return collectOrders(raw, status, limit, func(bo binanceOrder) (*types.Order, error) {
		return b.parseOrder(&bo)
	})
}

func (b *Binance) GetPositions(ctx context.Context, symbol string) ([]types.Position, error) {
	params := url.Values{}
	if symbol != "" {
		params.Set("symbol", NormalizeSymbol(symbol))
	}
	var raw []struct {
		Symbol           string `json:"symbol"`
		PositionAmt      string `json:"positionAmt"`
		EntryPrice       string `json:"entryPrice"`
		MarkPrice        string `json:"markPrice"`
		UnrealizedProfit string `json:"unRealizedProfit"`
		Leverage         string `json:"leverage"`
		IsolatedMargin   string `json:"isolatedMargin"`
		PositionSide     string `json:"positionSide"`
	}
	if err := b.signedRequest(ctx, "GET", "/fapi/v2/positionRisk", params, &raw); err != nil {
		return nil, err
	}

	positions := make([]types.Position, 0, len(raw))
	for _, rp := range raw {
		amt, err := parseDecimal(rp.PositionAmt)
		if err != nil || amt.IsZero() {
			continue
		}
		side := types.PositionLong
		switch rp.PositionSide {
		case "LONG":
			side = types.PositionLong
		case "SHORT":
			side = types.PositionShort
		default: // one-way mode: direction comes from the sign
			if amt.IsNegative() {
				side = types.PositionShort
			}
		}
		entry, err := parseDecimal(rp.EntryPrice)
		if err != nil {
			continue
		}
		leverage, _ := strconv.Atoi(rp.Leverage)
		if leverage == 0 {
			leverage = 1
		}
		pos := types.Position{
			Symbol:     rp.Symbol,
			Side:       side,
			Size:       amt.Abs(),
			EntryPrice: entry,
			Leverage:   leverage,
			IsOpen:     true,
		}
		if p := parseOptionalDecimal(rp.MarkPrice); p != nil {
			pos.MarkPrice = p
		}
		if p := parseOptionalDecimal(rp.UnrealizedProfit); p != nil {
			pos.UnrealizedPnl = *p
		}
		if p := parseOptionalDecimal(rp.IsolatedMargin); p != nil {
			pos.Margin = p
		}
		positions = append(positions, pos)
	}
	return positions, nil
}

func (b *Binance) ClosePosition(ctx context.Context, symbol string, side types.PositionSide, amount *decimal.Decimal) (*types.Order, error) {
	symbol = NormalizeSymbol(symbol)
	positions, err := b.GetPositions(ctx, symbol)
	if err != nil {
		return nil, err
	}
	pos := findPosition(positions, symbol, side)
	if pos == nil {
		return nil, fmt.Errorf("%w: %s %s", ErrNoSuchPosition, symbol, side)
	}

	closeAmount := pos.Size
	if amount != nil {
		closeAmount = *amount
	}
	return b.CreateOrder(ctx, CreateOrderParams{
		Symbol:     symbol,
		Side:       side.CloseOrderSide(),
		Type:       types.TypeMarket,
		Amount:     closeAmount,
		ReduceOnly: true,
	})
}

func (b *Binance) GetTicker(ctx context.Context, symbol string) (*types.Ticker, error) {
	symbol = NormalizeSymbol(symbol)
	params := url.Values{}
	params.Set("symbol", symbol)

	var day struct {
		Symbol    string `json:"symbol"`
		LastPrice string `json:"lastPrice"`
		Volume    string `json:"volume"`
		CloseTime int64  `json:"closeTime"`
	}
	if err := b.publicRequest(ctx, "/fapi/v1/ticker/24hr", params, &day); err != nil {
		return nil, err
	}
	var book struct {
		BidPrice string `json:"bidPrice"`
		AskPrice string `json:"askPrice"`
	}
	if err := b.publicRequest(ctx, "/fapi/v1/ticker/bookTicker", params, &book); err != nil {
		return nil, err
	}

	last, err := parseDecimal(day.LastPrice)
	if err != nil {
		return nil, fmt.Errorf("binance ticker %s: %w", symbol, err)
	}
	ticker := &types.Ticker{
		Symbol:    symbol,
		Last:      last,
		Timestamp: time.UnixMilli(day.CloseTime),
	}
	if p := parseOptionalDecimal(book.BidPrice); p != nil {
		ticker.Bid = *p
	}
	if p := parseOptionalDecimal(book.AskPrice); p != nil {
		ticker.Ask = *p
	}
	if p := parseOptionalDecimal(day.Volume); p != nil {
		ticker.Volume = *p
	}
	return ticker, nil
}

func (b *Binance) GetKlines(ctx context.Context, symbol, interval string, limit int, start, end *time.Time) ([]types.Kline, error) {
	symbol = NormalizeSymbol(symbol)
	if limit <= 0 {
		limit = 100
	}
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", interval)
	params.Set("limit", strconv.Itoa(limit))
	if start != nil {
		params.Set("startTime", strconv.FormatInt(start.UnixMilli(), 10))
	}
	if end != nil {
		params.Set("endTime", strconv.FormatInt(end.UnixMilli(), 10))
	}

	// Rows come back as mixed-type arrays:
	// [openTime, open, high, low, close, volume, closeTime, quoteVol, count, ...]
	var raw [][]any
	if err := b.publicRequest(ctx, "/fapi/v1/klines", params, &raw); err != nil {
		return nil, err
	}

	klines := make([]types.Kline, 0, len(raw))
	for _, row := range raw {
		if len(row) < 9 {
			continue
		}
		openTime, ok1 := row[0].(float64)
		closeTime, ok2 := row[6].(float64)
		if !ok1 || !ok2 {
			continue
		}
		k := types.Kline{
			Symbol:    symbol,
			Interval:  interval,
			OpenTime:  time.UnixMilli(int64(openTime)),
			CloseTime: time.UnixMilli(int64(closeTime)),
		}
		var err error
		if k.Open, err = parseDecimal(asString(row[1])); err != nil {
			continue
		}
		if k.High, err = parseDecimal(asString(row[2])); err != nil {
			continue
		}
		if k.Low, err = parseDecimal(asString(row[3])); err != nil {
			continue
		}
		if k.Close, err = parseDecimal(asString(row[4])); err != nil {
			continue
		}
		if k.Volume, err = parseDecimal(asString(row[5])); err != nil {
			continue
		}
		if count, ok := row[8].(float64); ok {
			k.TradeCount = int64(count)
		}
		klines = append(klines, k)
	}
	return klines, nil
}
