package exchange

import (
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// newRESTClient builds the resty client shared by all adapters. Retries are
// deliberately left at zero: a transport failure on an order placement is an
// ambiguous outcome and must surface as ErrExchangeUnavailable, never be
// papered over by a client-level retry.
func newRESTClient(baseURL string, timeout time.Duration) *resty.Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "crypto-trading/1.0")
}

// transportErr wraps a client-side failure (DNS, TLS, timeout, connection
// reset). The venue may or may not have received the request.
func transportErr(err error) error {
	return fmt.Errorf("%w: %v", ErrExchangeUnavailable, err)
}

// classifyHTTPError maps a non-2xx venue response onto the error taxonomy.
// 401/403 is a credential rejection; every other client error is a parameter
// rejection carrying the venue's reason; 5xx means the venue itself is in an
// unknown state, so it is treated as unavailable.
func classifyHTTPError(status int, body []byte) error {
	switch {
	case status == 401 || status == 403:
		return fmt.Errorf("%w: http %d: %s", ErrAuthFailed, status, truncate(body, 256))
	case status >= 400 && status < 500:
		return Rejected("http %d: %s", status, truncate(body, 256))
	default:
		return fmt.Errorf("%w: http %d: %s", ErrExchangeUnavailable, status, truncate(body, 256))
	}
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
