package condition

import (
	"sort"
	"strings"
)

// IndicatorRequest names one (family, effective parameters) pair the external
// indicator provider must compute. Column is the physical column name both
// sides agree on.
type IndicatorRequest struct {
	Family string             `json:"family"`
	Params map[string]float64 `json:"params"`
	Column string             `json:"column"`
}

// CollectIndicators scans a condition list, including nested compare-field
// and lookback references, and returns the minimal de-duplicated request set.
// Results are sorted by column name so repeated collections are identical.
func (e *Evaluator) CollectIndicators(conds []Condition) []IndicatorRequest {
	seen := make(map[string]IndicatorRequest)
	add := func(ref FieldRef) {
		params, ok := e.resolver.EffectiveParams(ref)
		if !ok {
			return
		}
		fam, _ := e.resolver.Family(ref.Name)
		col := e.resolver.Resolve(ref)
		if _, dup := seen[col]; dup {
			return
		}
		seen[col] = IndicatorRequest{Family: fam.Name, Params: params, Column: col}
	}

	for _, c := range conds {
		add(c.Field)
		if c.Compare.Field != nil {
			add(*c.Compare.Field)
		}
	}

	out := make([]IndicatorRequest, 0, len(seen))
	for _, req := range seen {
		out = append(out, req)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Column < out[j].Column })
	return out
}

// RequestKey renders a stable cache key for a request set, used by the
// provider cache. Parameter names are sorted within each request.
func RequestKey(reqs []IndicatorRequest) string {
	parts := make([]string, 0, len(reqs))
	for _, req := range reqs {
		b := strings.Builder{}
		b.WriteString(req.Column)
		for _, name := range sortedParamNames(req.Params) {
			b.WriteString(":")
			b.WriteString(name)
			b.WriteString("=")
			b.WriteString(formatParam(req.Params[name]))
		}
		parts = append(parts, b.String())
	}
	sort.Strings(parts)
	return strings.Join(parts, "|")
}
