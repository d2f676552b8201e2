package exchange

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/lensseoyhshi/crypto-trading/internal/types"
)

func parseDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

// parseOptionalDecimal returns nil for empty, zero or unparseable venue
// fields. Venues report absent prices as "0".
func parseOptionalDecimal(s string) *decimal.Decimal {
	if s == "" {
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil || d.IsZero() {
		return nil
	}
	return &d
}

func asString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return decimal.NewFromFloat(t).String()
	default:
		return fmt.Sprint(v)
	}
}

func asRejected(err error, target **RejectedError) bool {
	return errors.As(err, target)
}

func findPosition(positions []types.Position, symbol string, side types.PositionSide) *types.Position {
	for i := range positions {
		if NormalizeSymbol(positions[i].Symbol) == symbol && positions[i].Side == side {
			return &positions[i]
		}
	}
	return nil
}

// collectOrders converts raw venue orders, applies the optional status filter
// and caps the result at limit. A row whose side cannot be parsed fails the
// whole call: a flipped trade direction must never pass silently.
func collectOrders[T any](raw []T, status types.OrderStatus, limit int, parse func(T) (*types.Order, error)) ([]types.Order, error) {
	orders := make([]types.Order, 0, len(raw))
	for _, r := range raw {
		order, err := parse(r)
		if err != nil {
			return nil, err
		}
		if status != "" && order.Status != status {
			continue
		}
		orders = append(orders, *order)
		if len(orders) >= limit {
			break
		}
	}
	return orders, nil
}
