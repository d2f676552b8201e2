package types

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Signal actions accepted over the webhook endpoints.
const (
	ActionOpen  = "open"
	ActionClose = "close"
)

// WebhookPayload is the parsed form of one inbound trade instruction. It is
// transient: it exists only while the signal that carried it is processed.
type WebhookPayload struct {
	Action    string           `json:"action"`
	AccountID uint             `json:"account_id"`
	Symbol    string           `json:"symbol"`
	Side      OrderSide        `json:"side"`
	Amount    decimal.Decimal  `json:"amount"`
	Price     *decimal.Decimal `json:"price,omitempty"`
	OrderType OrderType        `json:"order_type,omitempty"`
	StopPrice *decimal.Decimal `json:"stop_price,omitempty"`
	Metadata  json.RawMessage  `json:"metadata,omitempty"`
}

// CreateAccountRequest carries plaintext credentials exactly once, inbound.
type CreateAccountRequest struct {
	Name       string       `json:"name" binding:"required"`
	Exchange   ExchangeType `json:"exchange" binding:"required"`
	APIKey     string       `json:"api_key" binding:"required"`
	SecretKey  string       `json:"secret_key" binding:"required"`
	Passphrase string       `json:"passphrase"`
	IsSandbox  *bool        `json:"is_sandbox"`
	IsActive   *bool        `json:"is_active"`
}

// UpdateAccountRequest permits only name and active-flag edits.
type UpdateAccountRequest struct {
	Name     *string `json:"name"`
	IsActive *bool   `json:"is_active"`
}

type CreateOrderRequest struct {
	AccountID uint             `json:"account_id" binding:"required"`
	Symbol    string           `json:"symbol" binding:"required"`
	Side      OrderSide        `json:"side" binding:"required"`
	Type      OrderType        `json:"type" binding:"required"`
	Amount    decimal.Decimal  `json:"amount" binding:"required"`
	Price     *decimal.Decimal `json:"price"`
	StopPrice *decimal.Decimal `json:"stop_price"`
}

type ClosePositionRequest struct {
	AccountID uint             `json:"account_id" binding:"required"`
	Symbol    string           `json:"symbol" binding:"required"`
	Side      PositionSide     `json:"side" binding:"required"`
	Amount    *decimal.Decimal `json:"amount"`
}
