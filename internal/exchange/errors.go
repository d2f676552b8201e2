package exchange

import (
	"errors"
	"fmt"
)

var (
	// ErrExchangeUnavailable means the venue call failed at the transport
	// level. The outcome is ambiguous: the venue may or may not have acted.
	// Callers must resolve via an order-status refresh before retrying.
	ErrExchangeUnavailable = errors.New("exchange unavailable")

	// ErrAuthFailed means the venue rejected the account's credentials.
	ErrAuthFailed = errors.New("exchange authentication failed")

	// ErrNoSuchPosition means no open position matched a close request.
	ErrNoSuchPosition = errors.New("no matching open position")

	// ErrUnsupportedExchange means the factory was asked for an unknown venue.
	ErrUnsupportedExchange = errors.New("unsupported exchange")
)

// RejectedError means the venue understood the request and refused it (bad
// parameters, below minimum size, ...). Unlike ErrExchangeUnavailable the
// outcome is certain: the order was not placed.
type RejectedError struct {
	Reason string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("exchange rejected order: %s", e.Reason)
}

// Rejected builds a RejectedError from a venue-supplied reason.
func Rejected(format string, args ...any) *RejectedError {
	return &RejectedError{Reason: fmt.Sprintf(format, args...)}
}

// IsRejected reports whether err is a venue-side parameter rejection.
func IsRejected(err error) bool {
	var re *RejectedError
	return errors.As(err, &re)
}
