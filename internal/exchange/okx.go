package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
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

const okxBaseURL = "https://www.okx.com"

// OKX implements the Exchange contract against the OKX v5 REST API for
// perpetual swaps. Requests carry OK-ACCESS-* headers with a base64
// HMAC-SHA256 signature over timestamp+method+path+body; sandbox trading is
// selected with the x-simulated-trading header, not a separate host.
type OKX struct {
	apiKey     string
	secretKey  string
	passphrase string
	sandbox    bool
	http       *resty.Client
}

func NewOKX(apiKey, secretKey, passphrase string, sandbox bool, timeout time.Duration) *OKX {
	return &OKX{
		apiKey:     apiKey,
		secretKey:  secretKey,
		passphrase: passphrase,
		sandbox:    sandbox,
		http:       newRESTClient(okxBaseURL, timeout),
	}
}

func (o *OKX) Name() types.ExchangeType { return types.ExchangeOKX }

// instID converts a canonical symbol (BTCUSDT) to the OKX swap instrument id
// (BTC-USDT-SWAP).
func okxInstID(symbol string) string {
	symbol = NormalizeSymbol(symbol)
	for _, quote := range []string{"USDT", "USDC", "USD", "BTC", "ETH"} {
		if base, ok := strings.CutSuffix(symbol, quote); ok && base != "" {
			return base + "-" + quote + "-SWAP"
		}
	}
	return symbol
}

// okxSymbol reverses okxInstID back to the canonical form.
func okxSymbol(instID string) string {
	return NormalizeSymbol(strings.TrimSuffix(instID, "-SWAP"))
}

type okxEnvelope struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

var okxAuthCodes = map[string]bool{
	"50105": true, // passphrase incorrect
	"50111": true, // invalid api key
	"50112": true, // invalid timestamp
	"50113": true, // invalid signature
	"50114": true, // invalid authorization
}

func (o *OKX) request(ctx context.Context, method, path string, params url.Values, body any, out any) error {
	requestPath := path
	if len(params) > 0 {
		requestPath = path + "?" + params.Encode()
	}

	var bodyBytes []byte
	if body != nil {
		var err error
		bodyBytes, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode okx request: %w", err)
		}
	}

	ts := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
	mac := hmac.New(sha256.New, []byte(o.secretKey))
	mac.Write([]byte(ts + method + requestPath + string(bodyBytes)))
	sig := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	req := o.http.R().
		SetContext(ctx).
		SetHeader("OK-ACCESS-KEY", o.apiKey).
		SetHeader("OK-ACCESS-SIGN", sig).
		SetHeader("OK-ACCESS-TIMESTAMP", ts).
		SetHeader("OK-ACCESS-PASSPHRASE", o.passphrase).
		SetHeader("Content-Type", "application/json")
	if o.sandbox {
		req.SetHeader("x-simulated-trading", "1")
	}
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

	var env okxEnvelope
	if err := json.Unmarshal(resp.Body(), &env); err != nil {
		return fmt.Errorf("decode okx response: %w", err)
	}
	if env.Code != "0" {
		if okxAuthCodes[env.Code] {
			return fmt.Errorf("%w: okx code %s: %s", ErrAuthFailed, env.Code, env.Msg)
		}
		return Rejected("okx code %s: %s", env.Code, env.Msg)
	}
	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decode okx data: %w", err)
		}
	}
	return nil
}

var okxStateMap = map[string]types.OrderStatus{
	"live":             types.StatusOpen,
	"partially_filled": types.StatusPartiallyFilled,
	"filled":           types.StatusFilled,
	"canceled":         types.StatusCancelled,
	"mmp_canceled":     types.StatusCancelled,
}

func okxStatus(state string) types.OrderStatus {
	if mapped, ok := okxStateMap[state]; ok {
		return mapped
	}
	return types.StatusPending
}

func okxOrderType(ordType string) types.OrderType {
	switch ordType {
	case "limit", "post_only", "fok", "ioc":
		return types.TypeLimit
	case "trigger", "conditional":
		return types.TypeStop
	default:
		return types.TypeMarket
	}
}

type okxOrder struct {
	OrdID     string `json:"ordId"`
	InstID    string `json:"instId"`
	Side      string `json:"side"`
	OrdType   string `json:"ordType"`
	Sz        string `json:"sz"`
	Px        string `json:"px"`
	State     string `json:"state"`
	AccFillSz string `json:"accFillSz"`
	AvgPx     string `json:"avgPx"`
	Fee       string `json:"fee"`
	FeeCcy    string `json:"feeCcy"`
}

func (o *OKX) parseOrder(oo *okxOrder) (*types.Order, error) {
	side, err := types.ParseOrderSide(oo.Side)
	if err != nil {
		return nil, fmt.Errorf("okx order %s: %w", oo.OrdID, err)
	}
	amount, err := parseDecimal(oo.Sz)
	if err != nil {
		return nil, fmt.Errorf("okx order %s: bad size: %w", oo.OrdID, err)
	}
	filled, err := parseDecimal(oo.AccFillSz)
	if err != nil {
		return nil, fmt.Errorf("okx order %s: bad filled size: %w", oo.OrdID, err)
	}
	order := &types.Order{
		ExchangeOrderID: oo.OrdID,
		Symbol:          okxSymbol(oo.InstID),
		Side:            side,
		Type:            okxOrderType(oo.OrdType),
		Amount:          amount,
		Status:          okxStatus(oo.State),
		FilledAmount:    filled,
		FeeCurrency:     oo.FeeCcy,
	}
	if p := parseOptionalDecimal(oo.Px); p != nil {
		order.Price = p
	}
	if p := parseOptionalDecimal(oo.AvgPx); p != nil {
		order.FilledPrice = p
	}
	// OKX reports fees as negative numbers.
	if fee, err := parseDecimal(oo.Fee); err == nil {
		order.Fee = fee.Abs()
	}
	return order, nil
}

func (o *OKX) AccountSnapshot(ctx context.Context) (*types.AccountSnapshot, error) {
	var data []struct {
		TotalEq string `json:"totalEq"`
		Details []struct {
			Ccy       string `json:"ccy"`
			Eq        string `json:"eq"`
			AvailBal  string `json:"availBal"`
			FrozenBal string `json:"frozenBal"`
		} `json:"details"`
	}
	if err := o.request(ctx, "GET", "/api/v5/account/balance", nil, nil, &data); err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty okx balance response", ErrExchangeUnavailable)
	}

	balances := make([]types.Balance, 0, len(data[0].Details))
	for _, d := range data[0].Details {
		total, err := parseDecimal(d.Eq)
		if err != nil || total.IsZero() {
			continue
		}
		available, _ := parseDecimal(d.AvailBal)
		frozen, _ := parseDecimal(d.FrozenBal)
		balances = append(balances, types.Balance{
			Currency:  d.Ccy,
			Total:     total,
			Available: available,
			Frozen:    frozen,
		})
	}

	positions, err := o.GetPositions(ctx, "")
	if err != nil {
		return nil, err
	}

	snapshot := &types.AccountSnapshot{
		Exchange:  o.Name(),
		Balances:  balances,
		Positions: positions,
	}
	if eq := parseOptionalDecimal(data[0].TotalEq); eq != nil {
		snapshot.TotalEquity = eq
	}
	return snapshot, nil
}

func (o *OKX) CreateOrder(ctx context.Context, p CreateOrderParams) (*types.Order, error) {
	switch p.Type {
	case types.TypeStop, types.TypeStopLimit:
		// Trigger orders live on the separate algo endpoint with a different
		// lifecycle; this adapter does not place them.
		return nil, Rejected("okx adapter does not support %s orders", p.Type)
	}

	instID := okxInstID(p.Symbol)
	body := map[string]string{
		"instId":  instID,
		"tdMode":  "cross",
		"clOrdId": strings.ReplaceAll(uuid.New().String(), "-", ""),
		"side":    string(p.Side),
		"ordType": string(p.Type),
		"sz":      p.Amount.String(),
	}
	if p.Type == types.TypeLimit {
		if p.Price == nil {
			return nil, Rejected("price required for limit orders")
		}
		body["px"] = p.Price.String()
	}
	if p.ReduceOnly {
		body["reduceOnly"] = "true"
	}

	var data []struct {
		OrdID string `json:"ordId"`
		SCode string `json:"sCode"`
		SMsg  string `json:"sMsg"`
	}
	if err := o.request(ctx, "POST", "/api/v5/trade/order", nil, body, &data); err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty okx order response", ErrExchangeUnavailable)
	}
	if data[0].SCode != "0" && data[0].SCode != "" {
		return nil, Rejected("okx code %s: %s", data[0].SCode, data[0].SMsg)
	}

	log.Info().
		Str("exchange", string(o.Name())).
		Str("exchange_order_id", data[0].OrdID).
		Str("inst_id", instID).
		Str("side", string(p.Side)).
		Msg("order created")

	// The placement response carries only the order id; fetch the
	// authoritative state. If the follow-up read fails the order is still
	// placed, so fall back to a pending record rather than erroring.
	order, err := o.GetOrder(ctx, data[0].OrdID, p.Symbol)
	if err != nil {
		return &types.Order{
			ExchangeOrderID: data[0].OrdID,
			Symbol:          NormalizeSymbol(p.Symbol),
			Side:            p.Side,
			Type:            p.Type,
			Amount:          p.Amount,
			Price:           p.Price,
			Status:          types.StatusPending,
		}, nil
	}
	return order, nil
}

func (o *OKX) CancelOrder(ctx context.Context, exchangeOrderID, symbol string) (bool, error) {
	body := map[string]string{
		"instId": okxInstID(symbol),
		"ordId":  exchangeOrderID,
	}
	var data []struct {
		SCode string `json:"sCode"`
		SMsg  string `json:"sMsg"`
	}
	err := o.request(ctx, "POST", "/api/v5/trade/cancel-order", nil, body, &data)
	if err != nil {
		// 514xx: cancellation failed because the order is already terminal.
		var re *RejectedError
		if asRejected(err, &re) && strings.Contains(re.Reason, "okx code 514") {
			return false, nil
		}
		return false, err
	}
	if len(data) > 0 && data[0].SCode != "0" && data[0].SCode != "" {
		if strings.HasPrefix(data[0].SCode, "514") {
			return false, nil
		}
		return false, Rejected("okx code %s: %s", data[0].SCode, data[0].SMsg)
	}
	return true, nil
}

func (o *OKX) GetOrder(ctx context.Context, exchangeOrderID, symbol string) (*types.Order, error) {
	params := url.Values{}
	params.Set("instId", okxInstID(symbol))
	params.Set("ordId", exchangeOrderID)

	var data []okxOrder
	if err := o.request(ctx, "GET", "/api/v5/trade/order", params, nil, &data); err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, Rejected("okx order %s not found", exchangeOrderID)
	}
	return o.parseOrder(&data[0])
}

func (o *OKX) GetOrders(ctx context.Context, symbol string, status types.OrderStatus, limit int) ([]types.Order, error) {
	if limit <= 0 {
		limit = 100
	}
	params := url.Values{}
	params.Set("instType", "SWAP")
	if symbol != "" {
		params.Set("instId", okxInstID(symbol))
	}
	params.Set("limit", strconv.Itoa(limit))

	path := "/api/v5/trade/orders-pending"
	if status.IsTerminal() {
		path = "/api/v5/trade/orders-history"
	}

	var raw []okxOrder
	if err := o.request(ctx, "GET", path, params, nil, &raw); err != nil {
		return nil, err
	}
	return collectOrders(raw, status, limit, func(oo okxOrder) (*types.Order, error) {
		return o.parseOrder(&oo)
	})
}

func (o *OKX) GetPositions(ctx context.Context, symbol string) ([]types.Position, error) {
	params := url.Values{}
	params.Set("instType", "SWAP")
	if symbol != "" {
		params.Set("instId", okxInstID(symbol))
	}
	var raw []struct {
		InstID  string `json:"instId"`
		PosSide string `json:"posSide"`
		Pos     string `json:"pos"`
		AvgPx   string `json:"avgPx"`
		MarkPx  string `json:"markPx"`
		Upl     string `json:"upl"`
		Lever   string `json:"lever"`
		Margin  string `json:"margin"`
	}
	if err := o.request(ctx, "GET", "/api/v5/account/positions", params, nil, &raw); err != nil {
		return nil, err
	}

	positions := make([]types.Position, 0, len(raw))
	for _, rp := range raw {
		size, err := parseDecimal(rp.Pos)
		if err != nil || size.IsZero() {
			continue
		}
		var side types.PositionSide
		switch rp.PosSide {
		case "long":
			side = types.PositionLong
		case "short":
			side = types.PositionShort
		default: // net mode: direction comes from the sign
			side = types.PositionLong
			if size.IsNegative() {
				side = types.PositionShort
			}
		}
		entry, err := parseDecimal(rp.AvgPx)
		if err != nil {
			continue
		}
		leverage, _ := strconv.Atoi(rp.Lever)
		if leverage == 0 {
			leverage = 1
		}
		pos := types.Position{
			Symbol:     okxSymbol(rp.InstID),
			Side:       side,
			Size:       size.Abs(),
			EntryPrice: entry,
			Leverage:   leverage,
			IsOpen:     true,
		}
		if p := parseOptionalDecimal(rp.MarkPx); p != nil {
			pos.MarkPrice = p
		}
		if p := parseOptionalDecimal(rp.Upl); p != nil {
			pos.UnrealizedPnl = *p
		}
		if p := parseOptionalDecimal(rp.Margin); p != nil {
			pos.Margin = p
		}
		positions = append(positions, pos)
	}
	return positions, nil
}

func (o *OKX) ClosePosition(ctx context.Context, symbol string, side types.PositionSide, amount *decimal.Decimal) (*types.Order, error) {
	symbol = NormalizeSymbol(symbol)
	positions, err := o.GetPositions(ctx, symbol)
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
	return o.CreateOrder(ctx, CreateOrderParams{
		Symbol:     symbol,
		Side:       side.CloseOrderSide(),
		Type:       types.TypeMarket,
		Amount:     closeAmount,
		ReduceOnly: true,
	})
}

func (o *OKX) GetTicker(ctx context.Context, symbol string) (*types.Ticker, error) {
	symbol = NormalizeSymbol(symbol)
	params := url.Values{}
	params.Set("instId", okxInstID(symbol))

	var data []struct {
		Last   string `json:"last"`
		BidPx  string `json:"bidPx"`
		AskPx  string `json:"askPx"`
		Vol24h string `json:"vol24h"`
		Ts     string `json:"ts"`
	}
	if err := o.request(ctx, "GET", "/api/v5/market/ticker", params, nil, &data); err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, Rejected("okx ticker %s not found", symbol)
	}

	last, err := parseDecimal(data[0].Last)
	if err != nil {
		return nil, fmt.Errorf("okx ticker %s: %w", symbol, err)
	}
	ticker := &types.Ticker{Symbol: symbol, Last: last}
	if p := parseOptionalDecimal(data[0].BidPx); p != nil {
		ticker.Bid = *p
	}
	if p := parseOptionalDecimal(data[0].AskPx); p != nil {
		ticker.Ask = *p
	}
	if p := parseOptionalDecimal(data[0].Vol24h); p != nil {
		ticker.Volume = *p
	}
	if ms, err := strconv.ParseInt(data[0].Ts, 10, 64); err == nil {
		ticker.Timestamp = time.UnixMilli(ms)
	}
	return ticker, nil
}

// okxBar converts an interval like 1h/4h/1d to OKX bar notation (1H/4H/1D);
// minute intervals pass through unchanged.
func okxBar(interval string) string {
	if strings.HasSuffix(interval, "m") {
		return interval
	}
	return strings.ToUpper(interval)
}

func (o *OKX) GetKlines(ctx context.Context, symbol, interval string, limit int, start, end *time.Time) ([]types.Kline, error) {
	symbol = NormalizeSymbol(symbol)
	if limit <= 0 {
		limit = 100
	}
	params := url.Values{}
	params.Set("instId", okxInstID(symbol))
	params.Set("bar", okxBar(interval))
	params.Set("limit", strconv.Itoa(limit))
	if start != nil {
		params.Set("before", strconv.FormatInt(start.UnixMilli(), 10))
	}
	if end != nil {
		params.Set("after", strconv.FormatInt(end.UnixMilli(), 10))
	}

	// Rows are ["ts","o","h","l","c","vol",...] ordered newest first.
	var raw [][]string
	if err := o.request(ctx, "GET", "/api/v5/market/candles", params, nil, &raw); err != nil {
		return nil, err
	}

	klines := make([]types.Kline, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- { // re-order oldest first
		row := raw[i]
		if len(row) < 6 {
			continue
		}
		ms, err := strconv.ParseInt(row[0], 10, 64)
		if err != nil {
			continue
		}
		k := types.Kline{
			Symbol:    symbol,
			Interval:  interval,
			OpenTime:  time.UnixMilli(ms),
			CloseTime: time.UnixMilli(ms),
		}
		if k.Open, err = parseDecimal(row[1]); err != nil {
			continue
		}
		if k.High, err = parseDecimal(row[2]); err != nil {
			continue
		}
		if k.Low, err = parseDecimal(row[3]); err != nil {
			continue
		}
		if k.Close, err = parseDecimal(row[4]); err != nil {
			continue
		}
		if k.Volume, err = parseDecimal(row[5]); err != nil {
			continue
		}
		klines = append(klines, k)
	}
	return klines, nil
}
