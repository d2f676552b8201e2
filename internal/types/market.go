package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Ticker is a read-only snapshot of venue market state. Never persisted.
type Ticker struct {
	Symbol    string          `json:"symbol"`
	Last      decimal.Decimal `json:"last"`
	Bid       decimal.Decimal `json:"bid"`
	Ask       decimal.Decimal `json:"ask"`
	Volume    decimal.Decimal `json:"volume"`
	Timestamp time.Time       `json:"timestamp"`
}

// Kline is one OHLC candle for a symbol and interval.
type Kline struct {
	Symbol     string          `json:"symbol"`
	Interval   string          `json:"interval"`
	OpenTime   time.Time       `json:"open_time"`
	CloseTime  time.Time       `json:"close_time"`
	Open       decimal.Decimal `json:"open"`
	High       decimal.Decimal `json:"high"`
	Low        decimal.Decimal `json:"low"`
	Close      decimal.Decimal `json:"close"`
	Volume     decimal.Decimal `json:"volume"`
	TradeCount int64           `json:"trade_count,omitempty"`
}

// Balance is one currency's balance on a venue account.
type Balance struct {
	Currency  string          `json:"currency"`
	Total     decimal.Decimal `json:"total"`
	Available decimal.Decimal `json:"available"`
	Frozen    decimal.Decimal `json:"frozen"`
}

// AccountSnapshot is the live venue-side view of an account: balances, open
// positions and total equity. Fetched fresh on every request.
type AccountSnapshot struct {
	AccountID   uint             `json:"account_id"`
	Exchange    ExchangeType     `json:"exchange"`
	Balances    []Balance        `json:"balances"`
	Positions   []Position       `json:"positions"`
	TotalEquity *decimal.Decimal `json:"total_equity,omitempty"`
}
