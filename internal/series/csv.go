package series

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// csv.go loads daily kline files for the CLI. The simulation core never reads
// disk; everything is materialized into Tables before a run starts.

// ReadCSV parses a daily kline CSV with a header row of
// date,open,high,low,close,volume[,amount]. Dates are YYYY-MM-DD. Any other
// header column is loaded as an indicator column; empty or unparsable cells
// read as NaN, matching provider warmup padding.
func ReadCSV(symbol string, r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, name := range header {
		idx[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"date", ColOpen, ColHigh, ColLow, ColClose, ColVolume} {
		if _, ok := idx[required]; !ok {
			return nil, fmt.Errorf("csv for %s: missing column %q", symbol, required)
		}
	}

	known := map[string]bool{
		"date": true, ColOpen: true, ColHigh: true, ColLow: true,
		ColClose: true, ColVolume: true, ColAmount: true,
	}
	extras := make(map[string][]float64)
	for name := range idx {
		if !known[name] {
			extras[name] = nil
		}
	}

	var bars []Bar
	line := 1
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv line %d: %w", line, err)
		}
		line++

		date, err := time.Parse("2006-01-02", rec[idx["date"]])
		if err != nil {
			return nil, fmt.Errorf("csv for %s line %d: %w", symbol, line, err)
		}
		bar := Bar{Date: date}
		fields := []struct {
			name string
			dst  *float64
		}{
			{ColOpen, &bar.Open}, {ColHigh, &bar.High}, {ColLow, &bar.Low},
			{ColClose, &bar.Close}, {ColVolume, &bar.Volume},
		}
		for _, f := range fields {
			v, err := strconv.ParseFloat(rec[idx[f.name]], 64)
			if err != nil {
				return nil, fmt.Errorf("csv for %s line %d: bad %s: %w", symbol, line, f.name, err)
			}
			*f.dst = v
		}
		if i, ok := idx[ColAmount]; ok && i < len(rec) && rec[i] != "" {
			if v, err := strconv.ParseFloat(rec[i], 64); err == nil {
				bar.Amount = v
			}
		}
		for name := range extras {
			v := math.NaN()
			if i := idx[name]; i < len(rec) && rec[i] != "" {
				if parsed, err := strconv.ParseFloat(rec[i], 64); err == nil {
					v = parsed
				}
			}
			extras[name] = append(extras[name], v)
		}
		bars = append(bars, bar)
	}

	// New sorts bars by date; indicator columns must be reordered the same
	// way to stay row-aligned.
	order := make([]int, len(bars))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return bars[order[a]].Date.Before(bars[order[b]].Date) })

	tbl, err := New(symbol, bars)
	if err != nil {
		return nil, err
	}
	for name, values := range extras {
		aligned := make([]float64, len(values))
		for pos, src := range order {
			aligned[pos] = values[src]
		}
		if err := tbl.SetColumn(name, aligned); err != nil {
			return nil, err
		}
	}
	return tbl, nil
}

// LoadDir reads every *.csv under dir, keyed by file basename as the symbol.
func LoadDir(dir string) (map[string]*Table, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.csv"))
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("no csv files under %s", dir)
	}

	tables := make(map[string]*Table, len(matches))
	for _, path := range matches {
		symbol := strings.TrimSuffix(filepath.Base(path), ".csv")
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		tbl, err := ReadCSV(symbol, f)
		f.Close()
		if err != nil {
			return nil, err
		}
		tables[symbol] = tbl
	}
	return tables, nil
}
