package types

import (
	"fmt"
	"strings"
)

// ExchangeType identifies a supported trading venue.
type ExchangeType string

const (
	ExchangeBinance ExchangeType = "binance"
	ExchangeOKX     ExchangeType = "okx"
	ExchangeGateIO  ExchangeType = "gateio"
)

func (e ExchangeType) Valid() bool {
	switch e {
	case ExchangeBinance, ExchangeOKX, ExchangeGateIO:
		return true
	}
	return false
}

// OrderSide is the direction of an order.
type OrderSide string

const (
	SideBuy  OrderSide = "buy"
	SideSell OrderSide = "sell"
)

func (s OrderSide) Valid() bool {
	return s == SideBuy || s == SideSell
}

// Opposite returns the offsetting side.
func (s OrderSide) Opposite() OrderSide {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// ParseOrderSide converts a venue-reported side string into an OrderSide.
// An unrecognised side is a hard error: silently defaulting would flip the
// direction of a trade.
func ParseOrderSide(s string) (OrderSide, error) {
	switch side := OrderSide(strings.ToLower(s)); side {
	case SideBuy, SideSell:
		return side, nil
	}
	return "", fmt.Errorf("unknown order side %q", s)
}

// OrderType is the execution style of an order.
type OrderType string

const (
	TypeMarket    OrderType = "market"
	TypeLimit     OrderType = "limit"
	TypeStop      OrderType = "stop"
	TypeStopLimit OrderType = "stop_limit"
)

func (t OrderType) Valid() bool {
	switch t {
	case TypeMarket, TypeLimit, TypeStop, TypeStopLimit:
		return true
	}
	return false
}

// OrderStatus is the lifecycle state of an order. Transitions only move toward
// commitment: pending -> open/rejected, open -> partially_filled/filled/cancelled,
// partially_filled -> filled/cancelled. Terminal states never change.
type OrderStatus string

const (
	StatusPending         OrderStatus = "pending"
	StatusOpen            OrderStatus = "open"
	StatusPartiallyFilled OrderStatus = "partially_filled"
	StatusFilled          OrderStatus = "filled"
	StatusCancelled       OrderStatus = "cancelled"
	StatusRejected        OrderStatus = "rejected"
)

func (s OrderStatus) Valid() bool {
	switch s {
	case StatusPending, StatusOpen, StatusPartiallyFilled, StatusFilled, StatusCancelled, StatusRejected:
		return true
	}
	return false
}

// IsTerminal reports whether no further status transition is possible.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case StatusFilled, StatusCancelled, StatusRejected:
		return true
	}
	return false
}

// PositionSide is the direction of an open exposure.
type PositionSide string

const (
	PositionLong  PositionSide = "long"
	PositionShort PositionSide = "short"
)

func (s PositionSide) Valid() bool {
	return s == PositionLong || s == PositionShort
}

// CloseOrderSide returns the order side that reduces a position of this side.
func (s PositionSide) CloseOrderSide() OrderSide {
	if s == PositionLong {
		return SideSell
	}
	return SideBuy
}
