package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
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
	gateMainnetURL = "https://api.gateio.ws"
	gateTestnetURL = "https://fx-api-testnet.gateio.ws"

	gateFuturesPrefix = "/api/v4/futures/usdt"
)

// GateIO implements the Exchange contract against the Gate.io v4 USDT
// futures API. Requests are signed with HMAC-SHA512 over
// method\npath\nquery\nsha512(body)\ntimestamp, carried in KEY/Timestamp/SIGN
// headers. Order size is a signed quantity: negative means sell.
type GateIO struct {
	apiKey    string
	secretKey string
	sandbox   bool
	http      *resty.Client
}

func NewGateIO(apiKey, secretKey string, sandbox bool, timeout time.Duration) *GateIO {
	base := gateMainnetURL
	if sandbox {
		base = gateTestnetURL
	}
	return &GateIO{
		apiKey:    apiKey,
		secretKey: secretKey,
		sandbox:   sandbox,
		http:      newRESTClient(base, timeout),
	}
}

func (g *GateIO) Name() types.ExchangeType { return types.ExchangeGateIO }

// gateContract converts a canonical symbol (BTCUSDT) to the Gate.io contract
// name (BTC_USDT).
func gateContract(symbol string) string {
	symbol = NormalizeSymbol(symbol)
	for _, quote := range []string{"USDT", "USDC", "USD", "BTC", "ETH"} {
		if base, ok := strings.CutSuffix(symbol, quote); ok && base != "" {
			return base + "_" + quote
		}
	}
	return symbol
}

func (g *GateIO) request(ctx context.Context, method, path string, params url.Values, body any, out any) error {
	query := ""
	if len(params) > 0 {
		query = params.Encode()
	}

	var bodyBytes []byte
	if body != nil {
		var err error
		bodyBytes, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode gateio request: %w", err)
		}
	}
	bodyHash := sha512.Sum512(bodyBytes)

	ts := strconv.FormatInt(time.Now().Unix(), 10)
	msg := strings.Join([]string{method, path, query, hex.EncodeToString(bodyHash[:]), ts}, "\n")
	mac := hmac.New(sha512.New, []byte(g.secretKey))
	mac.Write([]byte(msg))

	requestPath := path
	if query != "" {
		requestPath = path + "?" + query
	}
	req := g.http.R().
		SetContext(ctx).
		SetHeader("KEY", g.apiKey).
		SetHeader("Timestamp", ts).
		SetHeader("SIGN", hex.EncodeToString(mac.Sum(nil))).
		SetHeader("Content-Type", "application/json")
	if bodyBytes != nil {
		req.SetBody(bodyBytes)
	}

	resp, err := req.Execute(method, requestPath)
	if err != nil {
		return transportErr(err)
	}
	if resp.IsError() {
		return classifyHTTPError(resp.StatusCode(), resp.Body())
	}
	if out != nil {
		if err := json.Unmarshal(resp.Body(), out); err != nil {
			return fmt.Errorf("decode gateio response: %w", err)
		}
	}
	return nil
}

type gateOrder struct {
	ID        int64           `json:"id"`
	Contract  string          `json:"contract"`
	Size      decimal.Decimal `json:"size"`
	Left      decimal.Decimal `json:"left"`
	Price     string          `json:"price"`
	FillPrice string          `json:"fill_price"`
	Status    string          `json:"status"`
	FinishAs  string          `json:"finish_as"`
	Tif       string          `json:"tif"`
}

// gateStatus maps the two-level Gate.io order state (status + finish_as) onto
// the unified status set.
func gateStatus(o *gateOrder) types.OrderStatus {
	switch o.Status {
	case "open":
		if o.Left.Abs().LessThan(o.Size.Abs()) {
			return types.StatusPartiallyFilled
		}
		return types.StatusOpen
	case "finished":
		switch o.FinishAs {
		case "filled", "ioc":
			return types.StatusFilled
		case "cancelled", "liquidated", "reduce_only", "position_closed":
			return types.StatusCancelled
		}
	}
	return types.StatusPending
}

func (g *GateIO) parseOrder(o *gateOrder) (*types.Order, error) {
	// Size is signed: negative is a sell. Zero size carries no direction and
	// cannot be mapped safely.
	if o.Size.IsZero() {
		return nil, fmt.Errorf("gateio order %d: zero size, side unknown", o.ID)
	}
	side := types.SideBuy
	if o.Size.IsNegative() {
		side = types.SideSell
	}

	amount := o.Size.Abs()
	filled := amount.Sub(o.Left.Abs())
	if filled.IsNegative() {
		filled = decimal.Zero
	}

	orderType := types.TypeMarket
	if p := parseOptionalDecimal(o.Price); p != nil {
		orderType = types.TypeLimit
	}

	order := &types.Order{
		ExchangeOrderID: strconv.FormatInt(o.ID, 10),
		Symbol:          NormalizeSymbol(o.Contract),
		Side:            side,
		Type:            orderType,
		Amount:          amount,
		Status:          gateStatus(o),
		FilledAmount:    filled,
	}
	if p := parseOptionalDecimal(o.Price); p != nil {
		order.Price = p
	}
	if p := parseOptionalDecimal(o.FillPrice); p != nil {
		order.FilledPrice = p
	}
	return order, nil
}

func (g *GateIO) AccountSnapshot(ctx context.Context) (*types.AccountSnapshot, error) {
	var acct struct {
		Currency  string `json:"currency"`
		Total     string `json:"total"`
		Available string `json:"available"`
	}
	if err := g.request(ctx, "GET", gateFuturesPrefix+"/accounts", nil, nil, &acct); err != nil {
		return nil, err
	}

	total, err := parseDecimal(acct.Total)
	if err != nil {
		return nil, fmt.Errorf("gateio account: bad total: %w", err)
	}
	available, _ := parseDecimal(acct.Available)
	currency := acct.Currency
	if currency == "" {
		currency = "USDT"
	}
	balances := []types.Balance{{
		Currency:  currency,
		Total:     total,
		Available: available,
		Frozen:    total.Sub(available),
	}}

	positions, err := g.GetPositions(ctx, "")
	if err != nil {
		return nil, err
	}

	return &types.AccountSnapshot{
		Exchange:    g.Name(),
		Balances:    balances,
		Positions:   positions,
		TotalEquity: &total,
	}, nil
}

func (g *GateIO) CreateOrder(ctx context.Context, p CreateOrderParams) (*types.Order, error) {
	switch p.Type {
	case types.TypeStop, types.TypeStopLimit:
		// Triggered orders live on the price_orders endpoint with a separate
		// lifecycle; this adapter does not place them.
		return nil, Rejected("gateio adapter does not support %s orders", p.Type)
	}

	size := p.Amount
	if p.Side == types.SideSell {
		size = size.Neg()
	}

	body := map[string]any{
		"contract": gateContract(p.Symbol),
		"size":     size,
		"text":     "t-" + strings.ReplaceAll(uuid.New().String(), "-", "")[:24],
	}
	if p.Type == types.TypeLimit {
		if p.Price == nil {
			return nil, Rejected("price required for limit orders")
		}
		body["price"] = p.Price.String()
		body["tif"] = "gtc"
	} else {
		// Market orders are expressed as price "0" with immediate-or-cancel.
		body["price"] = "0"
		body["tif"] = "ioc"
	}
	if p.ReduceOnly {
		body["reduce_only"] = true
	}

	var raw gateOrder
	if err := g.request(ctx, "POST", gateFuturesPrefix+"/orders", nil, body, &raw); err != nil {
		return nil, err
	}
	order, err := g.parseOrder(&raw)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("exchange", string(g.Name())).
		Str("exchange_order_id", order.ExchangeOrderID).
		Str("symbol", order.Symbol).
		Str("side", string(order.Side)).
		Str("status", string(order.Status)).
		Msg("order created")
	return order, nil
}

func (g *GateIO) CancelOrder(ctx context.Context, exchangeOrderID, symbol string) (bool, error) {
	var raw gateOrder
	err := g.request(ctx, "DELETE", gateFuturesPrefix+"/orders/"+exchangeOrderID, nil, nil, &raw)
	if err != nil {
		var re *RejectedError
		if asRejected(err, &re) &&
			(strings.Contains(re.Reason, "ORDER_FINISHED") || strings.Contains(re.Reason, "ORDER_NOT_FOUND")) {
			return false, nil
		}
		return false, err
	}
	// The venue echoes the order back; finished means it was already terminal.
	if raw.Status == "finished" && raw.FinishAs != "cancelled" {
		return false, nil
	}
	return true, nil
}

func (g *GateIO) GetOrder(ctx context.Context, exchangeOrderID, symbol string) (*types.Order, error) {
	var raw gateOrder
	if err := g.request(ctx, "GET", gateFuturesPrefix+"/orders/"+exchangeOrderID, nil, nil, &raw); err != nil {
		return nil, err
	}
	return g.parseOrder(&raw)
}

func (g *GateIO) GetOrders(ctx context.Context, symbol string, status types.OrderStatus, limit int) ([]types.Order, error) {
	if limit <= 0 {
		limit = 100
	}
	params := url.Values{}
	// Gate.io lists open and finished orders separately.
	if status.IsTerminal() {
		params.Set("status", "finished")
	} else {
		params.Set("status", "open")
	}
	if symbol != "" {
		params.Set("contract", gateContract(symbol))
	}
	params.Set("limit", strconv.Itoa(limit))

	var raw []gateOrder
	if err := g.request(ctx, "GET", gateFuturesPrefix+"/orders", params, nil, &raw); err != nil {
		return nil, err
	}
	return collectOrders(raw, status, limit, func(o gateOrder) (*types.Order, error) {
		return g.parseOrder(&o)
	})
}

func (g *GateIO) GetPositions(ctx context.Context, symbol string) ([]types.Position, error) {
	var raw []struct {
		Contract      string          `json:"contract"`
		Size          decimal.Decimal `json:"size"`
		EntryPrice    string          `json:"entry_price"`
		MarkPrice     string          `json:"mark_price"`
		UnrealisedPnl string          `json:"unrealised_pnl"`
		RealisedPnl   string          `json:"realised_pnl"`
		Leverage      string          `json:"leverage"`
		Margin        string          `json:"margin"`
		Mode          string          `json:"mode"`
	}
	if err := g.request(ctx, "GET", gateFuturesPrefix+"/positions", nil, nil, &raw); err != nil {
		return nil, err
	}

	want := ""
	if symbol != "" {
		want = NormalizeSymbol(symbol)
	}
	positions := make([]types.Position, 0, len(raw))
	for _, rp := range raw {
		if rp.Size.IsZero() {
			continue
		}
		sym := NormalizeSymbol(rp.Contract)
		if want != "" && sym != want {
			continue
		}
		side := types.PositionLong
		switch rp.Mode {
		case "dual_long":
			side = types.PositionLong
		case "dual_short":
			side = types.PositionShort
		default: // single mode: direction comes from the sign
			if rp.Size.IsNegative() {
				side = types.PositionShort
			}
		}
		entry, err := parseDecimal(rp.EntryPrice)
		if err != nil {
			continue
		}
		leverage := 1
		if lv, err := strconv.Atoi(rp.Leverage); err == nil && lv > 0 {
			leverage = lv
		}
		pos := types.Position{
			Symbol:     sym,
			Side:       side,
			Size:       rp.Size.Abs(),
			EntryPrice: entry,
			Leverage:   leverage,
			IsOpen:     true,
		}
		if p := parseOptionalDecimal(rp.MarkPrice); p != nil {
			pos.MarkPrice = p
		}
		if p := parseOptionalDecimal(rp.UnrealisedPnl); p != nil {
			pos.UnrealizedPnl = *p
		}
		if p := parseOptionalDecimal(rp.RealisedPnl); p != nil {
			pos.RealizedPnl = *p
		}
		if p := parseOptionalDecimal(rp.Margin); p != nil {
			pos.Margin = p
		}
		positions = append(positions, pos)
	}
	return positions, nil
}

func (g *GateIO) ClosePosition(ctx context.Context, symbol string, side types.PositionSide, amount *decimal.Decimal) (*types.Order, error) {
	symbol = NormalizeSymbol(symbol)
	positions, err := g.GetPositions(ctx, symbol)
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
	return g.CreateOrder(ctx, CreateOrderParams{
		Symbol:     symbol,
		Side:       side.CloseOrderSide(),
		Type:       types.TypeMarket,
		Amount:     closeAmount,
		ReduceOnly: true,
	})
}

func (g *GateIO) GetTicker(ctx context.Context, symbol string) (*types.Ticker, error) {
	symbol = NormalizeSymbol(symbol)
	params := url.Values{}
	params.Set("contract", gateContract(symbol))

	var raw []struct {
		Last       string `json:"last"`
		HighestBid string `json:"highest_bid"`
		LowestAsk  string `json:"lowest_ask"`
		Volume24h  string `json:"volume_24h"`
	}
	if err := g.request(ctx, "GET", gateFuturesPrefix+"/tickers", params, nil, &raw); err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, Rejected("gateio ticker %s not found", symbol)
	}

	last, err := parseDecimal(raw[0].Last)
	if err != nil {
		return nil, fmt.Errorf("gateio ticker %s: %w", symbol, err)
	}
	ticker := &types.Ticker{
		Symbol:    symbol,
		Last:      last,
		Timestamp: time.Now().UTC(),
	}
	if p := parseOptionalDecimal(raw[0].HighestBid); p != nil {
		ticker.Bid = *p
	}
	if p := parseOptionalDecimal(raw[0].LowestAsk); p != nil {
		ticker.Ask = *p
	}
	if p := parseOptionalDecimal(raw[0].Volume24h); p != nil {
		ticker.Volume = *p
	}
	return ticker, nil
}

func (g *GateIO) GetKlines(ctx context.Context, symbol, interval string, limit int, start, end *time.Time) ([]types.Kline, error) {
	symbol = NormalizeSymbol(symbol)
	if limit <= 0 {
		limit = 100
	}
	params := url.Values{}
	params.Set("contract", gateContract(symbol))
	params.Set("interval", interval)
	if start != nil {
		params.Set("from", strconv.FormatInt(start.Unix(), 10))
	}
	if end != nil {
		params.Set("to", strconv.FormatInt(end.Unix(), 10))
	}
	if start == nil && end == nil {
		params.Set("limit", strconv.Itoa(limit))
	}

	var raw []struct {
		T int64           `json:"t"`
		V decimal.Decimal `json:"v"`
		C string          `json:"c"`
		H string          `json:"h"`
		L string          `json:"l"`
		O string          `json:"o"`
	}
	if err := g.request(ctx, "GET", gateFuturesPrefix+"/candlesticks", params, nil, &raw); err != nil {
		return nil, err
	}

	klines := make([]types.Kline, 0, len(raw))
	for _, row := range raw {
		k := types.Kline{
			Symbol:    symbol,
			Interval:  interval,
			OpenTime:  time.Unix(row.T, 0),
			CloseTime: time.Unix(row.T, 0),
			Volume:    row.V,
		}
		var err error
		if k.Open, err = parseDecimal(row.O); err != nil {
			continue
		}
		if k.High, err = parseDecimal(row.H); err != nil {
			continue
		}
		if k.Low, err = parseDecimal(row.L); err != nil {
			continue
		}
		if k.Close, err = parseDecimal(row.C); err != nil {
			continue
		}
		klines = append(klines, k)
		if len(klines) >= limit {
			break
		}
	}
	return klines, nil
}
