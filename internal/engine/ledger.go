package engine

import (
	"fmt"
	"sort"
	"time"
)

// Ledger is the single capital pool: cash plus open positions, at most one
// per instrument and never more than maxPositions in total. Cash can never
// go negative; the admission step sizes orders so that an overdraw is a
// programmer error, not a runtime condition.
type Ledger struct {
	cash         float64
	positions    map[string]*Position
	maxPositions int
}

// NewLedger starts a ledger with the given cash and position cap.
func NewLedger(cash float64, maxPositions int) *Ledger {
	return &Ledger{
		cash:         cash,
		positions:    make(map[string]*Position),
		maxPositions: maxPositions,
	}
}

// Cash returns the free balance.
func (l *Ledger) Cash() float64 { return l.cash }

// OpenCount returns the number of open positions.
func (l *Ledger) OpenCount() int { return len(l.positions) }

// FreeSlots returns how many more positions may be opened.
func (l *Ledger) FreeSlots() int { return l.maxPositions - len(l.positions) }

// Held reports whether the instrument has an open position.
func (l *Ledger) Held(symbol string) bool {
	_, ok := l.positions[symbol]
	return ok
}

// Position returns the open position for an instrument.
func (l *Ledger) Position(symbol string) (*Position, bool) {
	p, ok := l.positions[symbol]
	return p, ok
}

// Symbols returns held instruments in sorted order, so ledger iteration is
// deterministic across runs.
func (l *Ledger) Symbols() []string {
	out := make([]string, 0, len(l.positions))
	for sym := range l.positions {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// Open deducts cash and records a new position.
func (l *Ledger) Open(symbol string, date time.Time, price, shares float64) error {
	if l.Held(symbol) {
		return fmt.Errorf("ledger: %s already held", symbol)
	}
	if len(l.positions) >= l.maxPositions {
		return fmt.Errorf("ledger: position limit %d reached", l.maxPositions)
	}
	cost := price * shares
	if cost > l.cash {
		return fmt.Errorf("ledger: cost %.2f exceeds cash %.2f", cost, l.cash)
	}
	l.cash -= cost
	l.positions[symbol] = &Position{
		Symbol:     symbol,
		EntryDate:  date,
		EntryPrice: price,
		Shares:     shares,
		CostBasis:  cost,
		LastPrice:  price,
	}
	return nil
}

// Close converts a position into a trade at the given price, crediting the
// proceeds back to cash.
func (l *Ledger) Close(symbol string, date time.Time, price float64, reason ExitReason, labels []string) (Trade, error) {
	pos, ok := l.positions[symbol]
	if !ok {
		return Trade{}, fmt.Errorf("ledger: no open position for %s", symbol)
	}
	delete(l.positions, symbol)
	l.cash += price * pos.Shares

	pnlPct := 0.0
	if pos.EntryPrice > 0 {
		pnlPct = (price - pos.EntryPrice) / pos.EntryPrice * 100
	}
	return Trade{
		Symbol:     symbol,
		EntryDate:  pos.EntryDate,
		EntryPrice: pos.EntryPrice,
		ExitDate:   date,
		ExitPrice:  price,
		Shares:     pos.Shares,
		PnLPct:     pnlPct,
		DaysHeld:   pos.DaysHeld,
		Reason:     reason,
		Labels:     labels,
	}, nil
}

// Equity values the pool at each position's last observed price.
func (l *Ledger) Equity() float64 {
	total := l.cash
	for _, pos := range l.positions {
		total += pos.Shares * pos.LastPrice
	}
	return total
}
