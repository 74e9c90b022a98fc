// Package engine runs rule-based strategies day by day against materialized
// price tables, enforcing position limits over a single capital pool. One
// Run owns all of its mutable state; independent runs may execute in
// parallel, but dates within a run are strictly sequential.
package engine

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/quantfold/ruleback/internal/stats"
)

// ExitReason tags why a position was closed.
type ExitReason string

const (
	ExitStrategy      ExitReason = "strategy_exit"
	ExitStopLoss      ExitReason = "stop_loss"
	ExitTakeProfit    ExitReason = "take_profit"
	ExitMaxHold       ExitReason = "max_hold"
	ExitEndOfBacktest ExitReason = "end_of_backtest"
)

// KnownExitReasons feeds the defensive "unknown" bucket in the sell-reason
// histogram.
func KnownExitReasons() map[string]bool {
	return map[string]bool{
		string(ExitStrategy):      true,
		string(ExitStopLoss):      true,
		string(ExitTakeProfit):    true,
		string(ExitMaxHold):       true,
		string(ExitEndOfBacktest): true,
	}
}

// Position is one open holding. Shares are whole units; LastPrice is the most
// recent close observed, used to value the position through data gaps.
type Position struct {
	Symbol     string    `json:"symbol"`
	EntryDate  time.Time `json:"entry_date"`
	EntryPrice float64   `json:"entry_price"`
	Shares     float64   `json:"shares"`
	CostBasis  float64   `json:"cost_basis"`
	DaysHeld   int       `json:"days_held"`
	LastPrice  float64   `json:"last_price"`
}

// Trade is one closed round trip.
type Trade struct {
	Symbol     string     `json:"symbol"`
	Strategy   string     `json:"strategy"`
	EntryDate  time.Time  `json:"entry_date"`
	EntryPrice float64    `json:"entry_price"`
	ExitDate   time.Time  `json:"exit_date"`
	ExitPrice  float64    `json:"exit_price"`
	Shares     float64    `json:"shares"`
	PnLPct     float64    `json:"pnl_pct"`
	DaysHeld   int        `json:"days_held"`
	Reason     ExitReason `json:"reason"`
	// Labels carries the triggered sell-condition labels for strategy exits.
	Labels []string `json:"labels,omitempty"`
	// Regime is an optional market-regime tag applied at entry.
	Regime string `json:"regime,omitempty"`
}

// EquityPoint is one (date, total portfolio value) observation.
type EquityPoint struct {
	Date   time.Time `json:"date"`
	Equity float64   `json:"equity"`
}

// Result is the complete outcome of one run.
type Result struct {
	Strategy    string         `json:"strategy"`
	Trades      []Trade        `json:"trades"`
	Curve       []EquityPoint  `json:"curve"`
	SellReasons map[string]int `json:"sell_reasons"`
	Metrics     stats.Summary  `json:"metrics"`
}

// CancelCheck is the single-method cancellation capability the driver polls
// once per simulated date. It deliberately carries no thread or task
// affinity so it works under any execution model.
type CancelCheck interface {
	Cancelled() bool
}

// CancelFlag is an externally settable CancelCheck.
type CancelFlag struct {
	set atomic.Bool
}

// Cancel requests cancellation; the driver observes it at the next date.
func (f *CancelFlag) Cancel() { f.set.Store(true) }

// Cancelled implements CancelCheck.
func (f *CancelFlag) Cancelled() bool { return f.set.Load() }

// ContextCancel adapts a context onto CancelCheck.
func ContextCancel(ctx context.Context) CancelCheck { return ctxCancel{ctx} }

type ctxCancel struct{ ctx context.Context }

func (c ctxCancel) Cancelled() bool { return c.ctx.Err() != nil }
