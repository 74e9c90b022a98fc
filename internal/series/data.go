package series

// TableData is the serializable form of a Table, used by the provider cache
// and by anything that needs to ship a materialized series across a boundary.
type TableData struct {
	Symbol  string               `json:"symbol"`
	Bars    []Bar                `json:"bars"`
	Columns map[string][]float64 `json:"columns,omitempty"`
}

// Data exports the table contents.
func (t *Table) Data() TableData {
	bars := make([]Bar, len(t.bars))
	copy(bars, t.bars)
	cols := make(map[string][]float64, len(t.cols))
	for name, values := range t.cols {
		c := make([]float64, len(values))
		copy(c, values)
		cols[name] = c
	}
	return TableData{Symbol: t.symbol, Bars: bars, Columns: cols}
}

// FromData rebuilds a table from its serialized form.
func FromData(d TableData) (*Table, error) {
	t, err := New(d.Symbol, d.Bars)
	if err != nil {
		return nil, err
	}
	for name, values := range d.Columns {
		if err := t.SetColumn(name, values); err != nil {
			return nil, err
		}
	}
	return t, nil
}
