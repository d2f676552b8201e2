package exchange

import (
	"fmt"
	"time"

	"github.com/lensseoyhshi/crypto-trading/internal/types"
)

// Credentials are the decrypted venue API credentials for one account.
type Credentials struct {
	APIKey     string
	SecretKey  string
	Passphrase string // OKX only
}

// New builds the adapter for a venue. Pure construction: no network call is
// made here. Connectivity is checked separately via an explicit
// AccountSnapshot probe (see accounts.Service.TestConnection).
func New(kind types.ExchangeType, creds Credentials, sandbox bool, timeout time.Duration) (Exchange, error) {
	switch kind {
	case types.ExchangeBinance:
		return NewBinance(creds.APIKey, creds.SecretKey, sandbox, timeout), nil
	case types.ExchangeOKX:
		return NewOKX(creds.APIKey, creds.SecretKey, creds.Passphrase, sandbox, timeout), nil
	case types.ExchangeGateIO:
		return NewGateIO(creds.APIKey, creds.SecretKey, sandbox, timeout), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedExchange, kind)
	}
}

// Supported lists the venues the factory can build.
func Supported() []types.ExchangeType {
	return []types.ExchangeType{types.ExchangeBinance, types.ExchangeOKX, types.ExchangeGateIO}
}
