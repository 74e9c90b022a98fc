package engine

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/quantfold/ruleback/internal/combo"
	"github.com/quantfold/ruleback/internal/condition"
	"github.com/quantfold/ruleback/internal/rank"
	"github.com/quantfold/ruleback/internal/series"
	"github.com/quantfold/ruleback/internal/stats"
	"github.com/quantfold/ruleback/internal/strategy"
)

// Engine simulates strategies against materialized price tables. It holds no
// per-run state: Run may be called concurrently for independent runs.
type Engine struct {
	cfg  Config
	eval *condition.Evaluator
	log  zerolog.Logger
}

// New builds an engine. A nil evaluator gets the default column resolver.
func New(cfg Config, eval *condition.Evaluator, logger zerolog.Logger) *Engine {
	if eval == nil {
		eval = condition.NewEvaluator(nil)
	}
	return &Engine{cfg: cfg, eval: eval, log: logger}
}

// RunOptions carries the optional collaborators of one run.
type RunOptions struct {
	// Cross holds per-date cross-sectional factor tables keyed by
	// series.DayKey, consumed only by cross-source ranking factors.
	Cross map[int64]map[string]rank.CrossRow
	// Cancel is polled once per simulated date; nil means never cancelled.
	Cancel CancelCheck
	// Regimes optionally tags trades with the market regime at entry,
	// keyed by series.DayKey.
	Regimes map[int64]string
}

// Run simulates one strategy over the sorted union of all trading dates.
// Input insufficiency (no data, fewer than two distinct dates) yields a
// valid empty result; explosion and cancellation yield typed failures with
// no partial result.
func (e *Engine) Run(def *strategy.Definition, data map[string]*series.Table, opts RunOptions) (*Result, error) {
	if err := e.precheck(def); err != nil {
		return nil, err
	}

	dates := series.MergedDates(data)
	if len(dates) < 2 {
		e.log.Warn().Str("strategy", def.Name).Int("dates", len(dates)).
			Msg("insufficient data, returning empty result")
		return e.emptyResult(def), nil
	}

	var voter *combo.Voter
	if def.IsCombo() {
		voter = combo.NewVoter(e.eval, def.VoteConfig(), def.VoteMembers())
	}
	ranker := rank.New(def.Ranking)
	ledger := NewLedger(e.cfg.InitialCapital, e.cfg.MaxPositions)
	guard := newExplosionGuard(e.cfg.Guard)

	symbols := sortedSymbols(data)
	e.log.Info().Str("strategy", def.Name).Int("instruments", len(symbols)).
		Int("dates", len(dates)).Bool("combo", def.IsCombo()).Msg("starting run")

	var trades []Trade
	curve := make([]EquityPoint, 0, len(dates))

	for dayIdx, date := range dates {
		if opts.Cancel != nil && opts.Cancel.Cancelled() {
			e.log.Warn().Str("strategy", def.Name).Int("day", dayIdx).Msg("run cancelled")
			return nil, &CancelledError{Day: dayIdx, Date: date}
		}

		trades = append(trades, e.sellPass(def, voter, ledger, data, date)...)

		candidates := e.buyScan(def, voter, ledger, data, symbols, date)
		if err := guard.observe(dayIdx, date, len(candidates)); err != nil {
			e.log.Error().Str("strategy", def.Name).Err(err).Msg("signal explosion guard tripped")
			return nil, err
		}
		e.admit(ranker, ledger, candidates, date, opts)

		curve = append(curve, EquityPoint{Date: date, Equity: ledger.Equity()})
	}

	trades = append(trades, e.forceClose(ledger, dates[len(dates)-1])...)
	curve[len(curve)-1].Equity = ledger.Cash()

	e.tagRegimes(trades, opts.Regimes)
	for i := range trades {
		trades[i].Strategy = def.Name
	}

	result := e.buildResult(def, trades, curve)
	e.log.Info().Str("strategy", def.Name).Int("trades", len(trades)).
		Float64("final_equity", ledger.Cash()).
		Float64("return_pct", result.Metrics.TotalReturnPct).Msg("run complete")
	return result, nil
}

// precheck rejects statically unsatisfiable buy gates before simulation.
func (e *Engine) precheck(def *strategy.Definition) error {
	if def.IsCombo() {
		for _, m := range def.Members {
			if err := e.eval.CheckReachable(m.Buy); err != nil {
				return fmt.Errorf("member %s: %w", m.Name, err)
			}
		}
		return nil
	}
	return e.eval.CheckReachable(def.Buy)
}

// sellPass evaluates exits for every open position, in sorted symbol order
// for determinism. Exit priority: stop loss, take profit, max hold, then the
// strategy's own sell gate; the first match wins. A missing price row holds
// the position but still ages it, modeling trading halts.
func (e *Engine) sellPass(def *strategy.Definition, voter *combo.Voter, ledger *Ledger, data map[string]*series.Table, date time.Time) []Trade {
	var closed []Trade
	for _, sym := range ledger.Symbols() {
		pos, _ := ledger.Position(sym)
		pos.DaysHeld++

		tbl, ok := data[sym]
		if !ok {
			continue
		}
		idx, ok := tbl.Index(date)
		if !ok {
			continue
		}
		bar := tbl.Bar(idx)
		pos.LastPrice = bar.Close

		price, reason, labels, hit := e.exitDecision(def, voter, pos, tbl, idx, bar)
		if !hit {
			continue
		}
		trade, err := ledger.Close(sym, date, price, reason, labels)
		if err != nil {
			// Position was just looked up; a close failure is a bug.
			panic(err)
		}
		e.log.Debug().Str("symbol", sym).Str("reason", string(reason)).
			Float64("price", price).Float64("pnl_pct", trade.PnLPct).Msg("position closed")
		closed = append(closed, trade)
	}
	return closed
}

func (e *Engine) exitDecision(def *strategy.Definition, voter *combo.Voter, pos *Position, tbl *series.Table, idx int, bar series.Bar) (float64, ExitReason, []string, bool) {
	exit := def.Exit

	if exit.StopLossPct != 0 {
		threshold := pos.EntryPrice * (1 + exit.StopLossPct/100)
		if bar.Low <= threshold {
			return math.Min(threshold, bar.Close), ExitStopLoss, nil, true
		}
	}
	if exit.TakeProfitPct > 0 {
		threshold := pos.EntryPrice * (1 + exit.TakeProfitPct/100)
		if bar.High >= threshold {
			return math.Max(threshold, bar.Close), ExitTakeProfit, nil, true
		}
	}
	if exit.MaxHoldDays > 0 && pos.DaysHeld >= exit.MaxHoldDays {
		return bar.Close, ExitMaxHold, nil, true
	}

	if voter != nil {
		if hit, labels := voter.VoteSell(tbl, idx); hit {
			return bar.Close, ExitStrategy, labels, true
		}
	} else if hit, labels := e.eval.EvalAny(def.Sell, tbl, idx); hit {
		return bar.Close, ExitStrategy, labels, true
	}
	return 0, "", nil, false
}

// buyScan collects un-held instruments whose buy gate triggers at this date.
// An instrument's first row never qualifies: every comparison needs at least
// one prior row of history. The scan is skipped entirely when no slots are
// free, so that day contributes zero to the guard's candidate average.
func (e *Engine) buyScan(def *strategy.Definition, voter *combo.Voter, ledger *Ledger, data map[string]*series.Table, symbols []string, date time.Time) []rank.Candidate {
	if ledger.FreeSlots() <= 0 {
		return nil
	}
	var candidates []rank.Candidate
	for _, sym := range symbols {
		if ledger.Held(sym) {
			continue
		}
		tbl := data[sym]
		idx, ok := tbl.Index(date)
		if !ok || idx < 1 {
			continue
		}
		var triggered bool
		if voter != nil {
			triggered = voter.VoteBuy(tbl, idx)
		} else {
			triggered = e.eval.EvalAll(def.Buy, tbl, idx)
		}
		if triggered {
			candidates = append(candidates, rank.Candidate{Symbol: sym, Table: tbl, Row: idx})
		}
	}
	return candidates
}

// admit sizes and opens positions for the ranked top candidates. Target
// value per entry is the even equity split capped by MaxPositionPct; orders
// shrink to available cash and entries of zero shares are skipped.
func (e *Engine) admit(ranker *rank.Ranker, ledger *Ledger, candidates []rank.Candidate, date time.Time, opts RunOptions) {
	slots := ledger.FreeSlots()
	if slots <= 0 || len(candidates) == 0 {
		return
	}
	chosen := candidates
	if len(candidates) > slots {
		chosen = ranker.TopN(candidates, opts.Cross[series.DayKey(date)], slots)
	}

	equity := ledger.Equity()
	target := math.Min(equity/float64(e.cfg.MaxPositions), equity*e.cfg.MaxPositionPct/100)

	for _, c := range chosen {
		price := c.Table.Bar(c.Row).Close
		if price <= 0 {
			continue
		}
		shares := math.Floor(target / price)
		if shares*price > ledger.Cash() {
			shares = math.Floor(ledger.Cash() / price)
		}
		if shares <= 0 {
			continue
		}
		if err := ledger.Open(c.Symbol, date, price, shares); err != nil {
			panic(err)
		}
		e.log.Debug().Str("symbol", c.Symbol).Float64("price", price).
			Float64("shares", shares).Msg("position opened")
		if ledger.FreeSlots() == 0 {
			break
		}
	}
}

// forceClose converts every still-open position to a trade at its last
// observed price on the final simulated date.
func (e *Engine) forceClose(ledger *Ledger, finalDate time.Time) []Trade {
	var closed []Trade
	for _, sym := range ledger.Symbols() {
		pos, _ := ledger.Position(sym)
		trade, err := ledger.Close(sym, finalDate, pos.LastPrice, ExitEndOfBacktest, nil)
		if err != nil {
			panic(err)
		}
		closed = append(closed, trade)
	}
	return closed
}

func (e *Engine) tagRegimes(trades []Trade, regimes map[int64]string) {
	if len(regimes) == 0 {
		return
	}
	for i := range trades {
		trades[i].Regime = regimes[series.DayKey(trades[i].EntryDate)]
	}
}

func (e *Engine) buildResult(def *strategy.Definition, trades []Trade, curve []EquityPoint) *Result {
	outcomes := make([]stats.TradeOutcome, len(trades))
	for i, t := range trades {
		outcomes[i] = stats.TradeOutcome{PnLPct: t.PnLPct, Reason: string(t.Reason)}
	}
	points := make([]stats.CurvePoint, len(curve))
	for i, p := range curve {
		points[i] = stats.CurvePoint{Date: p.Date, Equity: p.Equity}
	}
	summary := stats.Compute(e.cfg.Stats, outcomes, points, KnownExitReasons())

	return &Result{
		Strategy:    def.Name,
		Trades:      trades,
		Curve:       curve,
		SellReasons: summary.SellReasons,
		Metrics:     summary,
	}
}

func (e *Engine) emptyResult(def *strategy.Definition) *Result {
	return e.buildResult(def, nil, nil)
}

func sortedSymbols(data map[string]*series.Table) []string {
	out := make([]string, 0, len(data))
	for sym := range data {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}
