package types

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Account holds a venue plus its API credentials. Key material is stored as
// ciphertext; only the accounts service ever sees plaintext, and only for the
// lifetime of a single request.
type Account struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Name       string       `gorm:"size:100;not null" json:"name"`
	Exchange   ExchangeType `gorm:"size:20;not null" json:"exchange"`
	APIKey     string       `gorm:"size:512;not null" json:"-"`
	SecretKey  string       `gorm:"size:512;not null" json:"-"`
	Passphrase string       `gorm:"size:512" json:"-"` // OKX only
	IsSandbox  bool         `gorm:"default:true" json:"is_sandbox"`
	IsActive   bool         `gorm:"default:true" json:"is_active"`

	Orders    []Order    `gorm:"foreignKey:AccountID" json:"-"`
	Positions []Position `gorm:"foreignKey:AccountID" json:"-"`
}

// Order is the venue-agnostic record of one trade instruction and its outcome.
// It is created when an instruction is accepted and mutated only by
// reconciliation after an exchange round-trip. FilledAmount never exceeds
// Amount; when a venue reports otherwise, status governs.
type Order struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	AccountID       uint             `gorm:"index;not null" json:"account_id"`
	ExchangeOrderID string           `gorm:"size:100;index" json:"exchange_order_id"`
	Symbol          string           `gorm:"size:50;not null" json:"symbol"`
	Side            OrderSide        `gorm:"size:10;not null" json:"side"`
	Type            OrderType        `gorm:"size:20;not null" json:"type"`
	Amount          decimal.Decimal  `gorm:"type:numeric(20,8);not null" json:"amount"`
	Price           *decimal.Decimal `gorm:"type:numeric(20,8)" json:"price,omitempty"`
	StopPrice       *decimal.Decimal `gorm:"type:numeric(20,8)" json:"stop_price,omitempty"`
	Status          OrderStatus      `gorm:"size:20;default:pending" json:"status"`
	FilledAmount    decimal.Decimal  `gorm:"type:numeric(20,8);default:0" json:"filled_amount"`
	FilledPrice     *decimal.Decimal `gorm:"type:numeric(20,8)" json:"filled_price,omitempty"`
	Fee             decimal.Decimal  `gorm:"type:numeric(20,8);default:0" json:"fee"`
	FeeCurrency     string           `gorm:"size:10" json:"fee_currency,omitempty"`
	WebhookData     string           `gorm:"type:text" json:"-"` // raw signal payload, if any
}

// Position is a venue-agnostic open exposure. At most one open position exists
// per (account, symbol, side).
type Position struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	AccountID     uint             `gorm:"index;not null" json:"account_id"`
	Symbol        string           `gorm:"size:50;not null" json:"symbol"`
	Side          PositionSide     `gorm:"size:10;not null" json:"side"`
	Size          decimal.Decimal  `gorm:"type:numeric(20,8);not null" json:"size"`
	EntryPrice    decimal.Decimal  `gorm:"type:numeric(20,8);not null" json:"entry_price"`
	MarkPrice     *decimal.Decimal `gorm:"type:numeric(20,8)" json:"mark_price,omitempty"`
	UnrealizedPnl decimal.Decimal  `gorm:"type:numeric(20,8);default:0" json:"unrealized_pnl"`
	RealizedPnl   decimal.Decimal  `gorm:"type:numeric(20,8);default:0" json:"realized_pnl"`
	Leverage      int              `gorm:"default:1" json:"leverage"`
	Margin        *decimal.Decimal `gorm:"type:numeric(20,8)" json:"margin,omitempty"`
	IsOpen        bool             `gorm:"default:true;index" json:"is_open"`
}
