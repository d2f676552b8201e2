package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOrderSide(t *testing.T) {
	side, err := ParseOrderSide("BUY")
	require.NoError(t, err)
	assert.Equal(t, SideBuy, side)

	side, err = ParseOrderSide("sell")
	require.NoError(t, err)
	assert.Equal(t, SideSell, side)

	// An unrecognized side is a hard error: guessing direction on a trading
	// system is worse than failing.
	_, err = ParseOrderSide("hold")
	assert.Error(t, err)
	_, err = ParseOrderSide("")
	assert.Error(t, err)
}

func TestOrderStatusIsTerminal(t *testing.T) {
	terminal := []OrderStatus{StatusFilled, StatusCancelled, StatusRejected}
	for _, s := range terminal {
		assert.True(t, s.IsTerminal(), string(s))
	}
	active := []OrderStatus{StatusPending, StatusOpen, StatusPartiallyFilled}
	for _, s := range active {
		assert.False(t, s.IsTerminal(), string(s))
	}
}

func TestCloseOrderSide(t *testing.T) {
	assert.Equal(t, SideSell, PositionLong.CloseOrderSide())
	assert.Equal(t, SideBuy, PositionShort.CloseOrderSide())
}

func TestOrderSideOpposite(t *testing.T) {
	assert.Equal(t, SideSell, SideBuy.Opposite())
	assert.Equal(t, SideBuy, SideSell.Opposite())
}

func TestExchangeTypeValid(t *testing.T) {
	for _, e := range []ExchangeType{ExchangeBinance, ExchangeOKX, ExchangeGateIO} {
		assert.True(t, e.Valid(), string(e))
	}
	assert.False(t, ExchangeType("kraken").Valid())
	assert.False(t, ExchangeType("").Valid())
}
