package features

import (
	"fmt"
	"math"
	"time"
)

// Frame is an ordered set of equally sized float64 columns indexed by date.
// Column order is the insertion order, which keeps feature derivation
// deterministic for identical input.
type Frame struct {
	dates []time.Time
	names []string
	index map[string]int
	cols  [][]float64
}

func NewFrame(dates []time.Time) *Frame {
	return &Frame{
		dates: dates,
		index: make(map[string]int),
	}
}

func (f *Frame) Len() int { return len(f.dates) }

func (f *Frame) Names() []string {
	out := make([]string, len(f.names))
	copy(out, f.names)
	return out
}

func (f *Frame) Dates() []time.Time { return f.dates }

// Add appends a column. Replaces the values if the name already exists.
func (f *Frame) Add(name string, vals []float64) error {
	if len(vals) != len(f.dates) {
		return fmt.Errorf("column %s: %d values for %d rows", name, len(vals), len(f.dates))
	}
	if i, ok := f.index[name]; ok {
		f.cols[i] = vals
		return nil
	}
	f.index[name] = len(f.names)
	f.names = append(f.names, name)
	f.cols = append(f.cols, vals)
	return nil
}

func (f *Frame) Has(name string) bool {
	_, ok := f.index[name]
	return ok
}

// Column returns the backing slice for name. Callers must not mutate it.
func (f *Frame) Column(name string) ([]float64, bool) {
	i, ok := f.index[name]
	if !ok {
		return nil, false
	}
	return f.cols[i], true
}

// Last returns the final value of a column.
func (f *Frame) Last(name string) (float64, bool) {
	col, ok := f.Column(name)
	if !ok || len(col) == 0 {
		return 0, false
	}
	return col[len(col)-1], true
}

// Matrix builds a row-major matrix of the requested columns. Missing columns
// are an error so the model never trains on silently reordered input.
func (f *Frame) Matrix(names []string) ([][]float64, error) {
	cols := make([][]float64, len(names))
	for j, name := range names {
		c, ok := f.Column(name)
		if !ok {
			return nil, fmt.Errorf("column %s not present", name)
		}
		cols[j] = c
	}
	rows := make([][]float64, f.Len())
	for i := range rows {
		row := make([]float64, len(names))
		for j := range names {
			row[j] = cols[j][i]
		}
		rows[i] = row
	}
	return rows, nil
}

// Filter returns a new frame keeping only rows where keep[i] is true.
func (f *Frame) Filter(keep []bool) *Frame {
	n := 0
	for _, k := range keep {
		if k {
			n++
		}
	}
	out := &Frame{
		dates: make([]time.Time, 0, n),
		names: append([]string(nil), f.names...),
		index: make(map[string]int, len(f.names)),
		cols:  make([][]float64, len(f.cols)),
	}
	for name, i := range f.index {
		out.index[name] = i
	}
	for j := range f.cols {
		out.cols[j] = make([]float64, 0, n)
	}
	for i, k := range keep {
		if !k {
			continue
		}
		out.dates = append(out.dates, f.dates[i])
		for j := range f.cols {
			out.cols[j] = append(out.cols[j], f.cols[j][i])
		}
	}
	return out
}

// DropUnstable removes every row where any of the given columns is not
// finite. Columns absent from the frame are ignored.
func (f *Frame) DropUnstable(names []string) *Frame {
	keep := make([]bool, f.Len())
	for i := range keep {
		keep[i] = true
	}
	for _, name := range names {
		col, ok := f.Column(name)
		if !ok {
			continue
		}
		for i, v := range col {
			if !isFinite(v) {
				keep[i] = false
			}
		}
	}
	return f.Filter(keep)
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
