package condition

import (
	"sort"
	"strconv"
	"strings"
)

// Family describes one parametrized indicator family: the order its
// parameters appear in the physical column suffix, their default values, and
// (when the indicator is bounded) the closed range its values live in. The
// suffix contract must match the external indicator provider bit for bit.
type Family struct {
	Name       string
	ParamOrder []string
	Defaults   map[string]float64
	// Bounded indicators carry their closed range for the reachability check.
	Min, Max float64
	Bounded  bool
}

// Resolver maps (field, params) pairs to physical column names. Fields that
// name no registered family resolve 1:1 to themselves.
type Resolver struct {
	families map[string]Family
}

// NewResolver builds a resolver over an explicit family table.
func NewResolver(families []Family) *Resolver {
	m := make(map[string]Family, len(families))
	for _, f := range families {
		m[strings.ToLower(f.Name)] = f
	}
	return &Resolver{families: m}
}

// DefaultFamilies covers the indicator families the stock provider computes.
func DefaultFamilies() []Family {
	return []Family{
		{Name: "ma", ParamOrder: []string{"period"}, Defaults: map[string]float64{"period": 20}},
		{Name: "ema", ParamOrder: []string{"period"}, Defaults: map[string]float64{"period": 20}},
		{Name: "vol_ma", ParamOrder: []string{"period"}, Defaults: map[string]float64{"period": 5}},
		{Name: "rsi", ParamOrder: []string{"period"}, Defaults: map[string]float64{"period": 14}, Min: 0, Max: 100, Bounded: true},
		{Name: "atr", ParamOrder: []string{"period"}, Defaults: map[string]float64{"period": 14}},
		{Name: "macd", ParamOrder: []string{"fast", "slow", "signal"}, Defaults: map[string]float64{"fast": 12, "slow": 26, "signal": 9}},
		{Name: "kdj_k", ParamOrder: []string{"n", "k", "d"}, Defaults: map[string]float64{"n": 9, "k": 3, "d": 3}, Min: 0, Max: 100, Bounded: true},
		{Name: "kdj_d", ParamOrder: []string{"n", "k", "d"}, Defaults: map[string]float64{"n": 9, "k": 3, "d": 3}, Min: 0, Max: 100, Bounded: true},
		{Name: "bias", ParamOrder: []string{"period"}, Defaults: map[string]float64{"period": 6}},
	}
}

// NewDefaultResolver is the resolver most callers want.
func NewDefaultResolver() *Resolver {
	return NewResolver(DefaultFamilies())
}

// Family looks up a registered family by name.
func (r *Resolver) Family(name string) (Family, bool) {
	f, ok := r.families[strings.ToLower(name)]
	return f, ok
}

// Resolve maps a field reference to its physical column name. For a
// registered family the name gains an underscore-joined suffix of effective
// parameter values (explicit overrides first, family defaults for the rest)
// in the family's declared order: rsi{period:14} -> "rsi_14".
func (r *Resolver) Resolve(ref FieldRef) string {
	fam, ok := r.Family(ref.Name)
	if !ok {
		return ref.Name
	}
	parts := make([]string, 0, len(fam.ParamOrder)+1)
	parts = append(parts, fam.Name)
	for _, p := range fam.ParamOrder {
		v, ok := ref.Params[p]
		if !ok {
			v = fam.Defaults[p]
		}
		parts = append(parts, formatParam(v))
	}
	return strings.Join(parts, "_")
}

// EffectiveParams returns the full parameter set the provider must use for a
// reference: explicit overrides merged over family defaults.
func (r *Resolver) EffectiveParams(ref FieldRef) (map[string]float64, bool) {
	fam, ok := r.Family(ref.Name)
	if !ok {
		return nil, false
	}
	eff := make(map[string]float64, len(fam.ParamOrder))
	for _, p := range fam.ParamOrder {
		if v, set := ref.Params[p]; set {
			eff[p] = v
		} else {
			eff[p] = fam.Defaults[p]
		}
	}
	return eff, true
}

// KnownRange returns the closed value range for a physical column, looked up
// by the column's base name after stripping trailing parameter suffixes
// ("rsi_14" -> "rsi"). ok is false for unbounded or unknown fields.
func (r *Resolver) KnownRange(column string) (lo, hi float64, ok bool) {
	name := stripParamSuffix(column)
	fam, found := r.Family(name)
	if !found || !fam.Bounded {
		return 0, 0, false
	}
	return fam.Min, fam.Max, true
}

// stripParamSuffix removes trailing _<number> groups: "macd_12_26_9" -> "macd".
func stripParamSuffix(column string) string {
	parts := strings.Split(column, "_")
	for len(parts) > 1 {
		if _, err := strconv.ParseFloat(parts[len(parts)-1], 64); err != nil {
			break
		}
		parts = parts[:len(parts)-1]
	}
	return strings.Join(parts, "_")
}

// formatParam renders a parameter value the way the provider does: integers
// without a decimal point, everything else with minimal digits.
func formatParam(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// sortedParamNames is a helper for deterministic iteration in tests and
// collector output.
func sortedParamNames(params map[string]float64) []string {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
