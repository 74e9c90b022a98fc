package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ledgerDate = time.Date(2024, 2, 5, 0, 0, 0, 0, time.UTC)

func TestLedger_OpenAndClose(t *testing.T) {
	l := NewLedger(10_000, 3)

	require.NoError(t, l.Open("ACME", ledgerDate, 50, 100))
	assert.Equal(t, 5_000.0, l.Cash())
	assert.True(t, l.Held("ACME"))
	assert.Equal(t, 1, l.OpenCount())
	assert.Equal(t, 2, l.FreeSlots())

	trade, err := l.Close("ACME", ledgerDate.AddDate(0, 0, 3), 55, ExitStrategy, []string{"target"})
	require.NoError(t, err)
	assert.Equal(t, 10_500.0, l.Cash())
	assert.False(t, l.Held("ACME"))
	assert.InDelta(t, 10.0, trade.PnLPct, 1e-9)
	assert.Equal(t, ExitStrategy, trade.Reason)
	assert.Equal(t, []string{"target"}, trade.Labels)
}

func TestLedger_RejectsDoubleHold(t *testing.T) {
	l := NewLedger(10_000, 3)
	require.NoError(t, l.Open("ACME", ledgerDate, 10, 10))
	assert.Error(t, l.Open("ACME", ledgerDate, 10, 10))
}

func TestLedger_RejectsOverCap(t *testing.T) {
	l := NewLedger(10_000, 1)
	require.NoError(t, l.Open("ACME", ledgerDate, 10, 10))
	assert.Error(t, l.Open("WIDGET", ledgerDate, 10, 10))
}

func TestLedger_RejectsOverdraw(t *testing.T) {
	l := NewLedger(100, 3)
	assert.Error(t, l.Open("ACME", ledgerDate, 50, 3))
	assert.Equal(t, 100.0, l.Cash(), "a rejected order leaves cash untouched")
}

func TestLedger_CloseUnknownSymbol(t *testing.T) {
	l := NewLedger(100, 3)
	_, err := l.Close("GHOST", ledgerDate, 10, ExitStrategy, nil)
	assert.Error(t, err)
}

func TestLedger_EquityUsesLastPrice(t *testing.T) {
	l := NewLedger(10_000, 3)
	require.NoError(t, l.Open("ACME", ledgerDate, 50, 100))

	assert.Equal(t, 10_000.0, l.Equity(), "freshly opened position values at entry")

	pos, ok := l.Position("ACME")
	require.True(t, ok)
	pos.LastPrice = 60
	assert.Equal(t, 11_000.0, l.Equity())
}

func TestLedger_SymbolsSorted(t *testing.T) {
	l := NewLedger(10_000, 5)
	for _, sym := range []string{"ZETA", "ALPHA", "MID"} {
		require.NoError(t, l.Open(sym, ledgerDate, 1, 1))
	}
	assert.Equal(t, []string{"ALPHA", "MID", "ZETA"}, l.Symbols())
}
