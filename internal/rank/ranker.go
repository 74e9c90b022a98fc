// Package rank orders buy candidates when a day produces more signals than
// open portfolio slots. The default ranks by traded volume; configured
// strategies combine several factors through within-day percentile ranks.
package rank

import (
	"math"
	"sort"

	"github.com/quantfold/ruleback/internal/series"
)

// FactorSource selects where a factor's raw value comes from.
type FactorSource string

const (
	// SourceKline reads a base OHLCV column.
	SourceKline FactorSource = "kline"
	// SourceIndicator reads an attached indicator column.
	SourceIndicator FactorSource = "indicator"
	// SourceCross reads the day's cross-sectional factor table.
	SourceCross FactorSource = "cross"
)

// Factor is one ranking input: a column, a direction, and a weight.
// Desc means a higher raw value earns a higher percentile rank.
type Factor struct {
	Source FactorSource `yaml:"source" json:"source"`
	Field  string       `yaml:"field" json:"field"`
	Desc   bool         `yaml:"desc" json:"desc"`
	Weight float64      `yaml:"weight" json:"weight"`
}

// Candidate is one instrument eligible for admission on a given day.
type Candidate struct {
	Symbol string
	Table  *series.Table
	Row    int
}

// CrossRow maps factor field -> value for one instrument on one day.
type CrossRow map[string]float64

// Ranker scores and orders candidates. A nil or empty factor list falls back
// to volume-descending.
type Ranker struct {
	factors []Factor
}

// New builds a ranker over the given factor list.
func New(factors []Factor) *Ranker {
	return &Ranker{factors: factors}
}

// Scored pairs a candidate with its composite score, for diagnostics.
type Scored struct {
	Candidate Candidate
	Score     float64
}

// Rank orders candidates best-first. cross holds the day's cross-sectional
// table (instrument -> field -> value) and may be nil when no cross factors
// are configured. The sort is stable: candidates with identical scores keep
// their input order, so callers needing strict fairness supply an explicit
// secondary key by pre-ordering the input.
func (r *Ranker) Rank(cands []Candidate, cross map[string]CrossRow) []Scored {
	if len(cands) == 0 {
		return nil
	}

	factors := r.factors
	if len(factors) == 0 {
		factors = []Factor{{Source: SourceKline, Field: series.ColVolume, Desc: true, Weight: 1}}
	}

	scores := make([]float64, len(cands))
	for _, f := range factors {
		ranks := percentileRanks(rawValues(f, cands, cross), f.Desc)
		for i, pr := range ranks {
			scores[i] += f.Weight * pr
		}
	}

	out := make([]Scored, len(cands))
	for i, c := range cands {
		out[i] = Scored{Candidate: c, Score: scores[i]}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// TopN returns the best n candidates.
func (r *Ranker) TopN(cands []Candidate, cross map[string]CrossRow, n int) []Candidate {
	scored := r.Rank(cands, cross)
	if n > len(scored) {
		n = len(scored)
	}
	out := make([]Candidate, 0, n)
	for _, s := range scored[:n] {
		out = append(out, s.Candidate)
	}
	return out
}

func rawValues(f Factor, cands []Candidate, cross map[string]CrossRow) []float64 {
	raw := make([]float64, len(cands))
	for i, c := range cands {
		raw[i] = math.NaN()
		switch f.Source {
		case SourceCross:
			if row, ok := cross[c.Symbol]; ok {
				if v, ok := row[f.Field]; ok {
					raw[i] = v
				}
			}
		default:
			if v, ok := c.Table.Value(f.Field, c.Row); ok {
				raw[i] = v
			}
		}
	}
	return raw
}

// percentileRanks converts raw values to 0..1 positions within the day's
// distribution. With desc=true the highest raw value ranks 1. Missing values
// contribute rank 0 rather than disqualifying the candidate.
func percentileRanks(raw []float64, desc bool) []float64 {
	type entry struct {
		idx int
		v   float64
	}
	valid := make([]entry, 0, len(raw))
	for i, v := range raw {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			valid = append(valid, entry{i, v})
		}
	}

	ranks := make([]float64, len(raw))
	if len(valid) == 0 {
		return ranks
	}
	if len(valid) == 1 {
		ranks[valid[0].idx] = 1
		return ranks
	}

	sort.SliceStable(valid, func(i, j int) bool { return valid[i].v < valid[j].v })
	denom := float64(len(valid) - 1)
	for pos, e := range valid {
		pr := float64(pos) / denom
		if !desc {
			pr = 1 - pr
		}
		ranks[e.idx] = pr
	}
	return ranks
}
