package condition

import (
	"fmt"
	"math"

	"github.com/quantfold/ruleback/internal/series"
)

// Evaluator interprets conditions against table rows. It is stateless apart
// from the resolver and safe for concurrent use across independent runs.
type Evaluator struct {
	resolver *Resolver
}

// NewEvaluator builds an evaluator over the given column resolver.
func NewEvaluator(resolver *Resolver) *Evaluator {
	if resolver == nil {
		resolver = NewDefaultResolver()
	}
	return &Evaluator{resolver: resolver}
}

// Resolver exposes the underlying column resolver.
func (e *Evaluator) Resolver() *Resolver { return e.resolver }

// Evaluate interprets one condition at row i of tbl. Missing columns, NaN
// operands, or insufficient history all evaluate false; only an unknown
// comparison kind escapes, as a programmer error.
func (e *Evaluator) Evaluate(c Condition, tbl *series.Table, i int) bool {
	left, ok := tbl.Value(e.resolver.Resolve(c.Field), i)
	if !ok || math.IsNaN(left) {
		return false
	}

	switch c.Compare.Kind {
	case CompareValue:
		return c.Op.Apply(left, c.Compare.Value)

	case CompareField:
		right, ok := tbl.Value(e.resolver.Resolve(e.compareField(c)), i)
		if !ok || math.IsNaN(right) {
			return false
		}
		return c.Op.Apply(left, right)

	case CompareLookbackMin, CompareLookbackMax:
		ext, ok := e.lookbackExtremum(c, tbl, i)
		if !ok {
			return false
		}
		return c.Op.Apply(left, ext)

	case CompareLookbackValue:
		if c.Compare.N <= 0 || i < c.Compare.N {
			return false
		}
		right, ok := e.valueAt(e.compareField(c), tbl, i-c.Compare.N)
		if !ok {
			return false
		}
		return c.Op.Apply(left, right)

	case CompareConsecutive:
		return e.consecutive(c, tbl, i)

	case ComparePctDiff:
		right, ok := tbl.Value(e.resolver.Resolve(e.compareField(c)), i)
		if !ok || math.IsNaN(right) || right == 0 {
			return false
		}
		return c.Op.Apply((left-right)/right*100, c.Compare.Value)

	case ComparePctChange:
		if c.Compare.N <= 0 || i < c.Compare.N {
			return false
		}
		then, ok := e.valueAt(e.compareField(c), tbl, i-c.Compare.N)
		if !ok || then == 0 {
			return false
		}
		return c.Op.Apply((left-then)/then*100, c.Compare.Value)

	default:
		panic(fmt.Sprintf("condition: unknown compare kind %q", string(c.Compare.Kind)))
	}
}

// compareField returns the right-hand field reference, defaulting to the
// condition's own subject field for the lookback kinds.
func (e *Evaluator) compareField(c Condition) FieldRef {
	if c.Compare.Field != nil {
		return *c.Compare.Field
	}
	return c.Field
}

func (e *Evaluator) valueAt(ref FieldRef, tbl *series.Table, i int) (float64, bool) {
	v, ok := tbl.Value(e.resolver.Resolve(ref), i)
	if !ok || math.IsNaN(v) {
		return math.NaN(), false
	}
	return v, true
}

// lookbackExtremum computes the min/max of the compare field over rows
// [i-N, i-1]. Needs N prior rows; any NaN in the window disqualifies.
func (e *Evaluator) lookbackExtremum(c Condition, tbl *series.Table, i int) (float64, bool) {
	n := c.Compare.N
	if n <= 0 || i < n {
		return math.NaN(), false
	}
	col := e.resolver.Resolve(e.compareField(c))
	ext := math.NaN()
	for j := i - n; j < i; j++ {
		v, ok := tbl.Value(col, j)
		if !ok || math.IsNaN(v) {
			return math.NaN(), false
		}
		switch {
		case math.IsNaN(ext):
			ext = v
		case c.Compare.Kind == CompareLookbackMin && v < ext:
			ext = v
		case c.Compare.Kind == CompareLookbackMax && v > ext:
			ext = v
		}
	}
	return ext, true
}

// consecutive holds when the field moved strictly monotonically across the
// trailing N+1 rows. The operator picks the direction: >/>= rising, </<=
// falling. Ties or any NaN force false.
func (e *Evaluator) consecutive(c Condition, tbl *series.Table, i int) bool {
	n := c.Compare.N
	if n <= 0 || i < n {
		return false
	}
	col := e.resolver.Resolve(c.Field)
	rising := c.Op == OpGT || c.Op == OpGTE

	prev, ok := tbl.Value(col, i-n)
	if !ok || math.IsNaN(prev) {
		return false
	}
	for j := i - n + 1; j <= i; j++ {
		v, ok := tbl.Value(col, j)
		if !ok || math.IsNaN(v) {
			return false
		}
		if rising && v <= prev {
			return false
		}
		if !rising && v >= prev {
			return false
		}
		prev = v
	}
	return true
}

// EvalAll is the buy gate: every condition must hold. It short-circuits on
// the first failure, which keeps full-universe scans cheap. An empty set
// returns false: a strategy with no buy conditions never gates a buy.
func (e *Evaluator) EvalAll(conds []Condition, tbl *series.Table, i int) bool {
	for _, c := range conds {
		if !e.Evaluate(c, tbl, i) {
			return false
		}
	}
	return len(conds) > 0
}

/// EvalAny is the sell gate: any condition may trigger. Every condition is
// evaluated so the returned labels name all applicable sell reasons, not just
// the first.
func (e *Evaluator) EvalAny(conds []Condition, tbl *series.Table, i int) (bool, []string) {
	var labels []string
	for _, c := range conds {
		if e.Evaluate(c, tbl, i) {
			labels = append(labels, c.DisplayLabel())
		}
	}
	return len(labels) > 0, labels
}
