package domain

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// PSDTable is a two-dimensional table of power spectral density estimates:
// rows indexed by window timestamp, columns by frequency bin. Values are
// power in dB; NaN marks a missing cell.
type PSDTable struct {
	Times  []time.Time
	Freqs  []float64
	Values [][]float64 // row-major, len(Times) x len(Freqs)
}

// Empty reports whether the table has no rows or no columns.
func (t *PSDTable) Empty() bool {
	return len(t.Times) == 0 || len(t.Freqs) == 0
}

// Validate checks shape and index invariants: rectangular values, positive
// unique frequencies, non-decreasing timestamps.
func (t *PSDTable) Validate() error {
	if len(t.Values) != len(t.Times) {
		return fmt.Errorf("psd table: %d rows for %d timestamps", len(t.Values), len(t.Times))
	}
	for i, row := range t.Values {
		if len(row) != len(t.Freqs) {
			return fmt.Errorf("psd table: row %d has %d values for %d frequencies", i, len(row), len(t.Freqs))
		}
	}
	seen := make(map[float64]struct{}, len(t.Freqs))
	for _, f := range t.Freqs {
		if math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 {
			return fmt.Errorf("psd table: invalid frequency %v", f)
		}
		if _, dup := seen[f]; dup {
			return fmt.Errorf("psd table: duplicate frequency %v", f)
		}
		seen[f] = struct{}{}
	}
	for i := 1; i < len(t.Times); i++ {
		if t.Times[i].Before(t.Times[i-1]) {
			return fmt.Errorf("psd table: timestamps not monotonic at row %d", i)
		}
	}
	return nil
}

// Clone returns a deep copy, so transforms never mutate their input.
func (t *PSDTable) Clone() PSDTable {
	out := PSDTable{
		Times:  append([]time.Time(nil), t.Times...),
		Freqs:  append([]float64(nil), t.Freqs...),
		Values: make([][]float64, len(t.Values)),
	}
	for i, row := range t.Values {
		out.Values[i] = append([]float64(nil), row...)
	}
	return out
}

// SortColumns reorders columns so frequencies ascend. Input tables may carry
// columns in any order; band selection requires a sorted axis.
func (t *PSDTable) SortColumns() {
	idx := make([]int, len(t.Freqs))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return t.Freqs[idx[a]] < t.Freqs[idx[b]] })

	freqs := make([]float64, len(t.Freqs))
	for i, j := range idx {
		freqs[i] = t.Freqs[j]
	}
	t.Freqs = freqs

	for r, row := range t.Values {
		sorted := make([]float64, len(row))
		for i, j := range idx {
			sorted[i] = row[j]
		}
		t.Values[r] = sorted
	}
}

// DropEmptyColumns removes columns that are NaN in every row.
func (t *PSDTable) DropEmptyColumns() {
	keep := make([]int, 0, len(t.Freqs))
	for c := range t.Freqs {
		for _, row := range t.Values {
			if !math.IsNaN(row[c]) {
				keep = append(keep, c)
				break
			}
		}
	}
	if len(keep) == len(t.Freqs) {
		return
	}

	freqs := make([]float64, len(keep))
	for i, c := range keep {
		freqs[i] = t.Freqs[c]
	}
	t.Freqs = freqs

	for r, row := range t.Values {
		kept := make([]float64, len(keep))
		for i, c := range keep {
			kept[i] = row[c]
		}
		t.Values[r] = kept
	}
}

// MergePSD appends b's rows to a, taking the union of the two column sets.
// Cells absent from one side's columns become NaN. Both inputs are left
// untouched; the result has ascending columns and rows ordered a then b.
func MergePSD(a, b PSDTable) (PSDTable, error) {
	if a.Empty() {
		out := b.Clone()
		out.SortColumns()
		return out, nil
	}
	if b.Empty() {
		out := a.Clone()
		out.SortColumns()
		return out, nil
	}
	if err := a.Validate(); err != nil {
		return PSDTable{}, fmt.Errorf("merge psd: %w", err)
	}
	if err := b.Validate(); err != nil {
		return PSDTable{}, fmt.Errorf("merge psd: %w", err)
	}

	union := make(map[float64]struct{}, len(a.Freqs)+len(b.Freqs))
	for _, f := range a.Freqs {
		union[f] = struct{}{}
	}
	for _, f := range b.Freqs {
		union[f] = struct{}{}
	}
	freqs := make([]float64, 0, len(union))
	for f := range union {
		freqs = append(freqs, f)
	}
	sort.Float64s(freqs)

	col := make(map[float64]int, len(freqs))
	for i, f := range freqs {
		col[f] = i
	}

	out := PSDTable{
		Times:  make([]time.Time, 0, len(a.Times)+len(b.Times)),
		Freqs:  freqs,
		Values: make([][]float64, 0, len(a.Times)+len(b.Times)),
	}
	appendRows := func(src PSDTable) {
		for r, row := range src.Values {
			dst := make([]float64, len(freqs))
			for i := range dst {
				dst[i] = math.NaN()
			}
			for c, f := range src.Freqs {
				dst[col[f]] = row[c]
			}
			out.Times = append(out.Times, src.Times[r])
			out.Values = append(out.Values, dst)
		}
	}
	appendRows(a)
	appendRows(b)
	return out, nil
}
