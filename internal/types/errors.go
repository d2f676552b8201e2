package types

import (
	"errors"
	"fmt"
)

// ErrInvalidRequest wraps request validation failures so the transport layer
// can distinguish them from internal faults.
var ErrInvalidRequest = errors.New("invalid request")

// ErrOrderTerminal is returned when a mutation is attempted on an order whose
// status permits no further transitions. Deliberately an error, not a silent
// success: the caller asked for a state change that cannot happen.
var ErrOrderTerminal = errors.New("order is in a terminal status")

// OrphanedExecutionError means the venue accepted an order but persisting the
// local record failed afterwards. The exchange-side order exists and is
// unknown to the ledger; it needs manual reconciliation and must never be
// masked as a generic failure.
type OrphanedExecutionError struct {
	ExchangeOrderID string
	Err             error
}

func (e *OrphanedExecutionError) Error() string {
	return fmt.Sprintf("order %s executed on venue but local persistence failed: %v", e.ExchangeOrderID, e.Err)
}

func (e *OrphanedExecutionError) Unwrap() error { return e.Err }
