package condition

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func valueCond(field string, op Op, v float64) Condition {
	return Condition{
		Field:   FieldRef{Name: field},
		Op:      op,
		Compare: Compare{Kind: CompareValue, Value: v},
	}
}

func TestCheckReachable_ContradictoryBounds(t *testing.T) {
	eval := NewEvaluator(nil)

	err := eval.CheckReachable([]Condition{
		valueCond("rsi", OpLT, 30),
		valueCond("rsi", OpGT, 70),
	})
	require.Error(t, err)
	var unreachable *UnreachableError
	require.ErrorAs(t, err, &unreachable)
	assert.Equal(t, "rsi_14", unreachable.Column)
}

func TestCheckReachable_OutsideKnownRange(t *testing.T) {
	eval := NewEvaluator(nil)

	err := eval.CheckReachable([]Condition{valueCond("rsi", OpGT, 150)})
	require.Error(t, err, "rsi never exceeds 100")

	err = eval.CheckReachable([]Condition{valueCond("kdj_k", OpLT, -10)})
	require.Error(t, err, "kdj never falls below 0")

	err = eval.CheckReachable([]Condition{valueCond("rsi", OpGTE, 100)})
	assert.NoError(t, err, "touching the boundary is still satisfiable")

	err = eval.CheckReachable([]Condition{valueCond("rsi", OpGT, 100)})
	assert.Error(t, err, "strictly above the upper bound is not")
}

func TestCheckReachable_SatisfiableSets(t *testing.T) {
	eval := NewEvaluator(nil)

	assert.NoError(t, eval.CheckReachable(nil))
	assert.NoError(t, eval.CheckReachable([]Condition{
		valueCond("rsi", OpGT, 30),
		valueCond("rsi", OpLT, 70),
	}))
	// Unbounded fields only contradict themselves.
	assert.NoError(t, eval.CheckReachable([]Condition{valueCond("close", OpGT, 1e9)}))
	assert.Error(t, eval.CheckReachable([]Condition{
		valueCond("close", OpGT, 100),
		valueCond("close", OpLT, 50),
	}))
}

func TestCheckReachable_SeparateParamsSeparateColumns(t *testing.T) {
	eval := NewEvaluator(nil)

	// rsi(6) < 30 with rsi(14) > 70 is tight but possible; different
	// parameterizations must not share a bound.
	err := eval.CheckReachable([]Condition{
		{Field: FieldRef{Name: "rsi", Params: map[string]float64{"period": 6}}, Op: OpLT, Compare: Compare{Kind: CompareValue, Value: 30}},
		{Field: FieldRef{Name: "rsi", Params: map[string]float64{"period": 14}}, Op: OpGT, Compare: Compare{Kind: CompareValue, Value: 70}},
	})
	assert.NoError(t, err)
}

func TestCheckReachable_IgnoresDataDependentKinds(t *testing.T) {
	eval := NewEvaluator(nil)

	err := eval.CheckReachable([]Condition{
		{Field: FieldRef{Name: "close"}, Op: OpLTE, Compare: Compare{Kind: CompareLookbackMin, N: 20}},
		valueCond("rsi", OpLT, 30),
	})
	assert.NoError(t, err)
}

func TestCheckReachable_EqualityConflicts(t *testing.T) {
	eval := NewEvaluator(nil)

	err := eval.CheckReachable([]Condition{
		valueCond("close", OpEQ, 10),
		valueCond("close", OpGT, 10),
	})
	assert.Error(t, err, "== 10 cannot coexist with > 10")

	err = eval.CheckReachable([]Condition{
		valueCond("close", OpEQ, 10),
		valueCond("close", OpGTE, 10),
	})
	assert.NoError(t, err)
}
