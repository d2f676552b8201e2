package trading

import (
	"fmt"
	"sync"

	"github.com/lensseoyhshi/crypto-trading/internal/types"
)

// symbolLocks serializes trade-mutating operations per (account, symbol,
// position side). Two concurrent closes of the same position would otherwise
// race the venue round-trip and could both pass the "position exists" check,
// breaking the one-open-position-per-(account,symbol,side) invariant.
type symbolLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newSymbolLocks() *symbolLocks {
	return &symbolLocks{locks: make(map[string]*sync.Mutex)}
}

// acquire locks the tuple and returns the release function. The lock is held
// for the full venue round-trip plus local persistence.
func (s *symbolLocks) acquire(accountID uint, symbol string, side types.PositionSide) func() {
	key := fmt.Sprintf("%d|%s|%s", accountID, symbol, side)

	s.mu.Lock()
	lock, ok := s.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[key] = lock
	}
	s.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}

// positionSideFor maps an order side to the position side it opens or adds
// to, which is the tuple placements contend on.
func positionSideFor(side types.OrderSide) types.PositionSide {
	if side == types.SideBuy {
		return types.PositionLong
	}
	return types.PositionShort
}
