package condition

import (
	"fmt"
	"math"
	"sort"
)

// UnreachableError reports a buy condition set that can never hold, before
// any simulation time is spent on it.
type UnreachableError struct {
	Column string
	Reason string
}

func (e *UnreachableError) Error() string {
	return fmt.Sprintf("condition set unreachable on %s: %s", e.Column, e.Reason)
}

// bound tracks the tightest interval implied by accumulated value comparisons
// on one column.
type bound struct {
	lower, upper             float64
	lowerStrict, upperStrict bool
}

func newBound() *bound {
	return &bound{lower: math.Inf(-1), upper: math.Inf(1)}
}

func (b *bound) tighten(op Op, v float64) {
	switch op {
	case OpGT:
		if v > b.lower || (v == b.lower && !b.lowerStrict) {
			b.lower, b.lowerStrict = v, true
		}
	case OpGTE:
		if v > b.lower {
			b.lower, b.lowerStrict = v, false
		}
	case OpLT:
		if v < b.upper || (v == b.upper && !b.upperStrict) {
			b.upper, b.upperStrict = v, true
		}
	case OpLTE:
		if v < b.upper {
			b.upper, b.upperStrict = v, false
		}
	case OpEQ:
		if v > b.lower {
			b.lower, b.lowerStrict = v, false
		}
		if v < b.upper {
			b.upper, b.upperStrict = v, false
		}
	}
}

func (b *bound) empty() bool {
	if b.lower > b.upper {
		return true
	}
	return b.lower == b.upper && (b.lowerStrict || b.upperStrict)
}

// CheckReachable statically analyzes an AND-combined condition set,
// restricted to its value-mode members, and reports the first column whose
// accumulated bounds are unsatisfiable - either self-contradictory
// (rsi < 30 AND rsi > 70) or entirely outside the field's registered range.
// Non-value kinds are data-dependent and ignored. Returns nil when the set
// may be satisfiable.
func (e *Evaluator) CheckReachable(conds []Condition) error {
	bounds := make(map[string]*bound)
	for _, c := range conds {
		if c.Compare.Kind != CompareValue {
			continue
		}
		col := e.resolver.Resolve(c.Field)
		b, ok := bounds[col]
		if !ok {
			b = newBound()
			bounds[col] = b
		}
		b.tighten(c.Op, c.Compare.Value)
	}

	cols := make([]string, 0, len(bounds))
	for col := range bounds {
		cols = append(cols, col)
	}
	sort.Strings(cols)

	for _, col := range cols {
		b := bounds[col]
		if b.empty() {
			return &UnreachableError{
				Column: col,
				Reason: fmt.Sprintf("requires %s and %s simultaneously", describeLower(b), describeUpper(b)),
			}
		}
		if lo, hi, known := e.resolver.KnownRange(col); known {
			if b.lower > hi || (b.lower == hi && b.lowerStrict) {
				return &UnreachableError{
					Column: col,
					Reason: fmt.Sprintf("%s but the field never exceeds %g", describeLower(b), hi),
				}
			}
			if b.upper < lo || (b.upper == lo && b.upperStrict) {
				return &UnreachableError{
					Column: col,
					Reason: fmt.Sprintf("%s but the field never falls below %g", describeUpper(b), lo),
				}
			}
		}
	}
	return nil
}

func describeLower(b *bound) string {
	op := ">="
	if b.lowerStrict {
		op = ">"
	}
	return fmt.Sprintf("value %s %g", op, b.lower)
}

func describeUpper(b *bound) string {
	op := "<="
	if b.upperStrict {
		op = "<"
	}
	return fmt.Sprintf("value %s %g", op, b.upper)
}
