// Package stats derives performance metrics from a finished run's trade list
// and equity curve. Everything here is post-hoc arithmetic; the simulation
// never consults it.
package stats

import (
	"math"
	"time"
)

const tradingDaysPerYear = 252

// TradeOutcome is the slice of a trade the calculator needs.
type TradeOutcome struct {
	PnLPct float64
	Reason string
}

// CurvePoint is one (date, equity) observation.
type CurvePoint struct {
	Date   time.Time
	Equity float64
}

// Summary holds every derived metric for a run.
type Summary struct {
	TotalTrades     int            `json:"total_trades"`
	WinRate         float64        `json:"win_rate"`
	TotalReturnPct  float64        `json:"total_return_pct"`
	MaxDrawdownPct  float64        `json:"max_drawdown_pct"`
	CAGR            float64        `json:"cagr"`
	Sharpe          float64        `json:"sharpe"`
	Calmar          float64        `json:"calmar"`
	ProfitLossRatio float64        `json:"profit_loss_ratio"`
	SellReasons     map[string]int `json:"sell_reasons"`
}

// Config carries the few knobs metric derivation has.
type Config struct {
	// AnnualRiskFree is the annual risk-free rate used in Sharpe, e.g. 0.03.
	AnnualRiskFree float64 `yaml:"annual_risk_free"`
}

// DefaultConfig assumes a zero risk-free rate.
func DefaultConfig() Config { return Config{} }

// Compute derives the full summary. knownReasons guards the sell-reason
// histogram: anything outside it lands in the "unknown" bucket.
func Compute(cfg Config, trades []TradeOutcome, curve []CurvePoint, knownReasons map[string]bool) Summary {
	s := Summary{
		TotalTrades: len(trades),
		WinRate:     winRate(trades),
		SellReasons: reasonHistogram(trades, knownReasons),
	}
	s.ProfitLossRatio = profitLossRatio(trades)

	if len(curve) == 0 {
		return s
	}
	initial := curve[0].Equity
	final := curve[len(curve)-1].Equity
	if initial > 0 {
		s.TotalReturnPct = (final - initial) / initial * 100
	}
	s.MaxDrawdownPct = maxDrawdownPct(curve)
	s.CAGR = cagr(curve)
	s.Sharpe = sharpe(cfg, curve)
	if s.MaxDrawdownPct != 0 {
		s.Calmar = s.CAGR / math.Abs(s.MaxDrawdownPct/100)
	}
	return s
}

// winRate counts trades with strictly positive pnl as wins; zero and negative
// count against.
func winRate(trades []TradeOutcome) float64 {
	if len(trades) == 0 {
		return 0
	}
	wins := 0
	for _, t := range trades {
		if t.PnLPct > 0 {
			wins++
		}
	}
	return float64(wins) / float64(len(trades))
}

func reasonHistogram(trades []TradeOutcome, known map[string]bool) map[string]int {
	hist := make(map[string]int)
	for _, t := range trades {
		reason := t.Reason
		if !known[reason] {
			reason = "unknown"
		}
		hist[reason]++
	}
	return hist
}

func profitLossRatio(trades []TradeOutcome) float64 {
	var winSum, lossSum float64
	var wins, losses int
	for _, t := range trades {
		if t.PnLPct > 0 {
			winSum += t.PnLPct
			wins++
		} else if t.PnLPct < 0 {
			lossSum += t.PnLPct
			losses++
		}
	}
	if wins == 0 || losses == 0 {
		return 0
	}
	return (winSum / float64(wins)) / math.Abs(lossSum/float64(losses))
}

// maxDrawdownPct is the worst peak-to-trough decline over the curve.
func maxDrawdownPct(curve []CurvePoint) float64 {
	peak := math.Inf(-1)
	maxDD := 0.0
	for _, p := range curve {
		if p.Equity > peak {
			peak = p.Equity
		}
		if peak > 0 {
			dd := (peak - p.Equity) / peak * 100
			if dd > maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}

// cagr annualizes over calendar days between the first and last curve point.
func cagr(curve []CurvePoint) float64 {
	initial := curve[0].Equity
	final := curve[len(curve)-1].Equity
	days := curve[len(curve)-1].Date.Sub(curve[0].Date).Hours() / 24
	if days <= 0 || initial <= 0 {
		return 0
	}
	return math.Pow(final/initial, 365/days) - 1
}

// sharpe is the annualized mean/sample-stdev of daily excess returns. Fewer
// than two curve points or zero variance yield 0.
func sharpe(cfg Config, curve []CurvePoint) float64 {
	if len(curve) < 2 {
		return 0
	}
	dailyRF := cfg.AnnualRiskFree / tradingDaysPerYear
	excess := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		prev := curve[i-1].Equity
		if prev <= 0 {
			continue
		}
		excess = append(excess, (curve[i].Equity-prev)/prev-dailyRF)
	}
	if len(excess) < 2 {
		return 0
	}

	mean := 0.0
	for _, r := range excess {
		mean += r
	}
	mean /= float64(len(excess))

	variance := 0.0
	for _, r := range excess {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(excess) - 1)
	if variance == 0 {
		return 0
	}
	return mean / math.Sqrt(variance) * math.Sqrt(tradingDaysPerYear)
}
