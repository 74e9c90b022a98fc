// Package series holds per-instrument daily price history plus the indicator
// columns an external provider attaches to it. Tables are read-only once built
// and support O(1) date-indexed lookup, which the simulation loop depends on.
package series

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// Base column names present on every table.
const (
	ColOpen   = "open"
	ColHigh   = "high"
	ColLow    = "low"
	ColClose  = "close"
	ColVolume = "volume"
	ColAmount = "amount"
)

// Bar is one daily OHLCV row. Amount is optional and zero when the feed
// does not carry turnover.
type Bar struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
	Amount float64   `json:"amount,omitempty"`
}

// Table is an ordered, date-indexed price series for a single instrument.
type Table struct {
	symbol string
	bars   []Bar
	cols   map[string][]float64
	byDate map[int64]int
}

// DayKey truncates a timestamp to a UTC calendar day, the granularity all
// table lookups use.
func DayKey(t time.Time) int64 {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix()
}

// New builds a table from bars, sorting them by date. Duplicate dates are an
// input defect and rejected.
func New(symbol string, bars []Bar) (*Table, error) {
	sorted := make([]Bar, len(bars))
	copy(sorted, bars)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })

	byDate := make(map[int64]int, len(sorted))
	for i, b := range sorted {
		key := DayKey(b.Date)
		if _, dup := byDate[key]; dup {
			return nil, fmt.Errorf("series %s: duplicate bar for %s", symbol, b.Date.Format("2006-01-02"))
		}
		byDate[key] = i
	}

	return &Table{
		symbol: symbol,
		bars:   sorted,
		cols:   make(map[string][]float64),
		byDate: byDate,
	}, nil
}

// Symbol returns the instrument id.
func (t *Table) Symbol() string { return t.symbol }

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.bars) }

// Bar returns the row at index i.
func (t *Table) Bar(i int) Bar { return t.bars[i] }

// Dates returns every trading date in order.
func (t *Table) Dates() []time.Time {
	out := make([]time.Time, len(t.bars))
	for i, b := range t.bars {
		out[i] = b.Date
	}
	return out
}

// MergedDates returns the sorted union of trading dates across tables,
// truncated to UTC days.
func MergedDates(tables map[string]*Table) []time.Time {
	seen := make(map[int64]time.Time)
	for _, tbl := range tables {
		for _, b := range tbl.bars {
			y, m, d := b.Date.UTC().Date()
			seen[DayKey(b.Date)] = time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
		}
	}
	out := make([]time.Time, 0, len(seen))
	for _, d := range seen {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// Index resolves a date to a row index.
func (t *Table) Index(date time.Time) (int, bool) {
	i, ok := t.byDate[DayKey(date)]
	return i, ok
}

// SetColumn attaches an indicator column. The column must be aligned with the
// bar rows; providers pad leading warmup rows with NaN.
func (t *Table) SetColumn(name string, values []float64) error {
	if len(values) != len(t.bars) {
		return fmt.Errorf("series %s: column %s has %d values, want %d", t.symbol, name, len(values), len(t.bars))
	}
	t.cols[name] = values
	return nil
}

// HasColumn reports whether an indicator column is attached.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.cols[name]
	return ok
}

// Columns returns the attached indicator column names, sorted.
func (t *Table) Columns() []string {
	names := make([]string, 0, len(t.cols))
	for name := range t.cols {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Value reads column `name` at row i. Base OHLCV columns resolve against the
// bar itself; anything else resolves against attached indicator columns.
// Missing columns and out-of-range rows read as NaN with ok=false so a bad
// rule degrades to "condition false" instead of aborting a run.
func (t *Table) Value(name string, i int) (float64, bool) {
	if i < 0 || i >= len(t.bars) {
		return math.NaN(), false
	}
	switch name {
	case ColOpen:
		return t.bars[i].Open, true
	case ColHigh:
		return t.bars[i].High, true
	case ColLow:
		return t.bars[i].Low, true
	case ColClose:
		return t.bars[i].Close, true
	case ColVolume:
		return t.bars[i].Volume, true
	case ColAmount:
		return t.bars[i].Amount, true
	}
	col, ok := t.cols[name]
	if !ok {
		return math.NaN(), false
	}
	v := col[i]
	if math.IsNaN(v) {
		return v, false
	}
	return v, true
}
