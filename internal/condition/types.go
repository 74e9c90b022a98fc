// Package condition evaluates parametrized comparison rules against a
// point-in-time row of a price series. Buy sets use all-must-hold semantics
// with cheap short-circuit rejection; sell sets use any-holds semantics and
// collect every triggered label for diagnostics.
package condition

import "fmt"

// Op is a comparison operator.
type Op string

const (
	OpGT  Op = ">"
	OpGTE Op = ">="
	OpLT  Op = "<"
	OpLTE Op = "<="
	OpEQ  Op = "=="
)

// Apply evaluates `left op right`. Unknown operators are programmer errors.
func (op Op) Apply(left, right float64) bool {
	switch op {
	case OpGT:
		return left > right
	case OpGTE:
		return left >= right
	case OpLT:
		return left < right
	case OpLTE:
		return left <= right
	case OpEQ:
		return left == right
	default:
		panic(fmt.Sprintf("condition: unknown operator %q", string(op)))
	}
}

// CompareKind selects what the subject field is compared against. Each kind
// uses only the Compare fields it declares; the evaluator matches kinds
// exhaustively and panics on an unknown tag rather than silently evaluating
// false, since a bad tag means the definition bypassed upstream validation.
type CompareKind string

const (
	// CompareValue compares against the constant Compare.Value.
	CompareValue CompareKind = "value"
	// CompareField compares against another resolved column at the same row.
	CompareField CompareKind = "field"
	// CompareLookbackMin compares against the minimum of a field over the
	// trailing N rows, excluding the current row.
	CompareLookbackMin CompareKind = "lookback_min"
	// CompareLookbackMax is the maximum-flavored counterpart.
	CompareLookbackMax CompareKind = "lookback_max"
	// CompareLookbackValue compares against the field's value exactly N rows
	// earlier.
	CompareLookbackValue CompareKind = "lookback_value"
	// CompareConsecutive holds when the field moved strictly monotonically
	// across the trailing N+1 rows: rising for >/>=, falling for </<=.
	CompareConsecutive CompareKind = "consecutive"
	// ComparePctDiff holds when (left-right)/right*100 satisfies the operator
	// against the Value threshold.
	ComparePctDiff CompareKind = "pct_diff"
	// ComparePctChange holds when the field's percent change over N rows
	// satisfies the operator against the Value threshold.
	ComparePctChange CompareKind = "pct_change"
)

// FieldRef names a column, optionally with indicator parameters that override
// the family defaults.
type FieldRef struct {
	Name   string             `yaml:"name" json:"name"`
	Params map[string]float64 `yaml:"params,omitempty" json:"params,omitempty"`
}

// Compare is the right-hand side of a condition. Kind decides which of the
// remaining fields are meaningful: Value for value/pct thresholds, Field for
// field and pct_diff, N for the lookback kinds.
type Compare struct {
	Kind  CompareKind `yaml:"kind" json:"kind"`
	Value float64     `yaml:"value,omitempty" json:"value,omitempty"`
	Field *FieldRef   `yaml:"field,omitempty" json:"field,omitempty"`
	N     int         `yaml:"n,omitempty" json:"n,omitempty"`
}

// Condition is one comparison rule: subject field, operator, and right-hand
// side. Weight feeds combo scoring; Label names the rule in sell diagnostics.
type Condition struct {
	Field   FieldRef `yaml:"field" json:"field"`
	Op      Op       `yaml:"op" json:"op"`
	Compare Compare  `yaml:"compare" json:"compare"`
	Weight  float64  `yaml:"weight,omitempty" json:"weight,omitempty"`
	Label   string   `yaml:"label,omitempty" json:"label,omitempty"`
}

// DisplayLabel returns the diagnostic name for the condition, falling back to
// a field/op rendering when no label was set.
func (c Condition) DisplayLabel() string {
	if c.Label != "" {
		return c.Label
	}
	return fmt.Sprintf("%s %s %s", c.Field.Name, c.Op, c.Compare.Kind)
}
