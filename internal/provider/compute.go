package provider

import (
	"context"
	"fmt"
	"math"

	"github.com/quantfold/ruleback/internal/condition"
	"github.com/quantfold/ruleback/internal/series"
)

// Compute is the in-process indicator backend. It derives every indicator
// family from the table's own OHLCV bars, so a plain price CSV is enough to
// run a strategy that references rsi_14 or macd_12_26_9.
type Compute struct{}

// NewCompute returns the local indicator provider.
func NewCompute() *Compute { return &Compute{} }

// Augment returns a copy of tbl carrying every requested column. Columns the
// table already has are kept as-is; warmup rows hold NaN.
func (c *Compute) Augment(_ context.Context, tbl *series.Table, reqs []condition.IndicatorRequest) (*series.Table, error) {
	n := tbl.Len()
	bars := make([]series.Bar, n)
	for i := 0; i < n; i++ {
		bars[i] = tbl.Bar(i)
	}
	out, err := series.New(tbl.Symbol(), bars)
	if err != nil {
		return nil, err
	}
	for _, name := range tbl.Columns() {
		vals := make([]float64, n)
		for i := 0; i < n; i++ {
			v, ok := tbl.Value(name, i)
			if !ok {
				v = math.NaN()
			}
			vals[i] = v
		}
		if err := out.SetColumn(name, vals); err != nil {
			return nil, err
		}
	}

	for _, req := range reqs {
		if out.HasColumn(req.Column) {
			continue
		}
		vals, err := computeFamily(bars, req)
		if err != nil {
			return nil, err
		}
		if err := out.SetColumn(req.Column, vals); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func computeFamily(bars []series.Bar, req condition.IndicatorRequest) ([]float64, error) {
	switch req.Family {
	case "ma":
		return sma(closes(bars), int(req.Params["period"])), nil
	case "ema":
		return ema(closes(bars), int(req.Params["period"])), nil
	case "vol_ma":
		return sma(volumes(bars), int(req.Params["period"])), nil
	case "rsi":
		return rsi(closes(bars), int(req.Params["period"])), nil
	case "atr":
		return atr(bars, int(req.Params["period"])), nil
	case "macd":
		return macdHist(closes(bars), int(req.Params["fast"]), int(req.Params["slow"]), int(req.Params["signal"])), nil
	case "kdj_k":
		k, _ := kdj(bars, int(req.Params["n"]), int(req.Params["k"]), int(req.Params["d"]))
		return k, nil
	case "kdj_d":
		_, d := kdj(bars, int(req.Params["n"]), int(req.Params["k"]), int(req.Params["d"]))
		return d, nil
	case "bias":
		return bias(closes(bars), int(req.Params["period"])), nil
	default:
		return nil, fmt.Errorf("no local computation for indicator family %q", req.Family)
	}
}

func closes(bars []series.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

func volumes(bars []series.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Volume
	}
	return out
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

func sma(vals []float64, period int) []float64 {
	out := nanSlice(len(vals))
	if period <= 0 {
		return out
	}
	var sum float64
	for i, v := range vals {
		sum += v
		if i >= period {
			sum -= vals[i-period]
		}
		if i >= period-1 {
			out[i] = sum / float64(period)
		}
	}
	return out
}

// ema seeds with the simple average of the first period values, then applies
// the usual 2/(period+1) smoothing.
func ema(vals []float64, period int) []float64 {
	out := nanSlice(len(vals))
	if period <= 0 || len(vals) < period {
		return out
	}
	var sum float64
	for i := 0; i < period; i++ {
		sum += vals[i]
	}
	prev := sum / float64(period)
	out[period-1] = prev
	alpha := 2.0 / (float64(period) + 1)
	for i := period; i < len(vals); i++ {
		prev = alpha*vals[i] + (1-alpha)*prev
		out[i] = prev
	}
	return out
}

// rsi uses Wilder smoothing of average gains and losses.
func rsi(vals []float64, period int) []float64 {
	out := nanSlice(len(vals))
	if period <= 0 || len(vals) <= period {
		return out
	}
	var gain, loss float64
	for i := 1; i <= period; i++ {
		d := vals[i] - vals[i-1]
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	avgGain := gain / float64(period)
	avgLoss := loss / float64(period)
	out[period] = rsiValue(avgGain, avgLoss)
	for i := period + 1; i < len(vals); i++ {
		d := vals[i] - vals[i-1]
		g, l := 0.0, 0.0
		if d > 0 {
			g = d
		} else {
			l = -d
		}
		avgGain = (avgGain*float64(period-1) + g) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + l) / float64(period)
		out[i] = rsiValue(avgGain, avgLoss)
	}
	return out
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

func atr(bars []series.Bar, period int) []float64 {
	out := nanSlice(len(bars))
	if period <= 0 || len(bars) <= period {
		return out
	}
	tr := make([]float64, len(bars))
	tr[0] = bars[0].High - bars[0].Low
	for i := 1; i < len(bars); i++ {
		hl := bars[i].High - bars[i].Low
		hc := math.Abs(bars[i].High - bars[i-1].Close)
		lc := math.Abs(bars[i].Low - bars[i-1].Close)
		tr[i] = math.Max(hl, math.Max(hc, lc))
	}
	var sum float64
	for i := 1; i <= period; i++ {
		sum += tr[i]
	}
	prev := sum / float64(period)
	out[period] = prev
	for i := period + 1; i < len(bars); i++ {
		prev = (prev*float64(period-1) + tr[i]) / float64(period)
		out[i] = prev
	}
	return out
}

// macdHist is the MACD histogram: the fast/slow EMA difference minus its
// signal-period EMA.
func macdHist(vals []float64, fast, slow, signal int) []float64 {
	out := nanSlice(len(vals))
	if fast <= 0 || slow <= 0 || signal <= 0 {
		return out
	}
	fastEMA := ema(vals, fast)
	slowEMA := ema(vals, slow)
	dif := nanSlice(len(vals))
	for i := range vals {
		if !math.IsNaN(fastEMA[i]) && !math.IsNaN(slowEMA[i]) {
			dif[i] = fastEMA[i] - slowEMA[i]
		}
	}
	// Signal EMA starts where dif becomes defined.
	start := -1
	for i, v := range dif {
		if !math.IsNaN(v) {
			start = i
			break
		}
	}
	if start < 0 || len(vals)-start < signal {
		return out
	}
	dea := ema(dif[start:], signal)
	for i := start; i < len(vals); i++ {
		if !math.IsNaN(dea[i-start]) {
			out[i] = dif[i] - dea[i-start]
		}
	}
	return out
}

// kdj produces the K and D lines. RSV looks back n bars; K and D carry the
// usual 1/k and 1/d smoothing seeded at 50.
func kdj(bars []series.Bar, n, kp, dp int) (ks, ds []float64) {
	ks = nanSlice(len(bars))
	ds = nanSlice(len(bars))
	if n <= 0 || kp <= 0 || dp <= 0 || len(bars) < n {
		return ks, ds
	}
	prevK, prevD := 50.0, 50.0
	for i := n - 1; i < len(bars); i++ {
		lo, hi := bars[i].Low, bars[i].High
		for j := i - n + 1; j < i; j++ {
			lo = math.Min(lo, bars[j].Low)
			hi = math.Max(hi, bars[j].High)
		}
		rsv := 50.0
		if hi > lo {
			rsv = (bars[i].Close - lo) / (hi - lo) * 100
		}
		prevK = (float64(kp-1)*prevK + rsv) / float64(kp)
		prevD = (float64(dp-1)*prevD + prevK) / float64(dp)
		ks[i] = prevK
		ds[i] = prevD
	}
	return ks, ds
}

// bias is the close's percent deviation from its moving average.
func bias(vals []float64, period int) []float64 {
	out := nanSlice(len(vals))
	if period <= 0 {
		return out
	}
	ma := sma(vals, period)
	for i := range vals {
		if !math.IsNaN(ma[i]) && ma[i] != 0 {
			out[i] = (vals[i] - ma[i]) / ma[i] * 100
		}
	}
	return out
}
