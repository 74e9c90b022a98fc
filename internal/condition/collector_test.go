package condition

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectIndicators(t *testing.T) {
	eval := NewEvaluator(nil)

	conds := []Condition{
		// Subject and compare side both need materialization.
		{
			Field: FieldRef{Name: "ma", Params: map[string]float64{"period": 5}},
			Op:    OpGT,
			Compare: Compare{
				Kind:  CompareField,
				Field: &FieldRef{Name: "ma", Params: map[string]float64{"period": 20}},
			},
		},
		// Duplicate reference to ma(5), must not produce a second request.
		{
			Field:   FieldRef{Name: "ma", Params: map[string]float64{"period": 5}},
			Op:      OpGT,
			Compare: Compare{Kind: CompareValue, Value: 0},
		},
		// Base columns are never requested.
		{
			Field:   FieldRef{Name: "close"},
			Op:      OpGT,
			Compare: Compare{Kind: CompareLookbackMax, N: 10},
		},
		{
			Field:   FieldRef{Name: "rsi"},
			Op:      OpLT,
			Compare: Compare{Kind: CompareValue, Value: 30},
		},
	}

	reqs := eval.CollectIndicators(conds)
	require.Len(t, reqs, 3)

	cols := make([]string, len(reqs))
	for i, req := range reqs {
		cols[i] = req.Column
	}
	assert.Equal(t, []string{"ma_20", "ma_5", "rsi_14"}, cols, "sorted by column")

	assert.Equal(t, "rsi", reqs[2].Family)
	assert.Equal(t, map[string]float64{"period": 14}, reqs[2].Params,
		"defaults are materialized into the request")
}

func TestCollectIndicators_Deterministic(t *testing.T) {
	eval := NewEvaluator(nil)
	conds := []Condition{
		{Field: FieldRef{Name: "macd"}, Op: OpGT, Compare: Compare{Kind: CompareValue, Value: 0}},
		{Field: FieldRef{Name: "kdj_k"}, Op: OpLT, Compare: Compare{Kind: CompareValue, Value: 20}},
		{Field: FieldRef{Name: "bias"}, Op: OpLT, Compare: Compare{Kind: CompareValue, Value: -5}},
	}
	first := eval.CollectIndicators(conds)
	second := eval.CollectIndicators(conds)
	assert.Equal(t, first, second)
	assert.Equal(t, RequestKey(first), RequestKey(second))
}
