package domain

import (
	"sort"
	"sync"
)

// Accumulator collects daily PSD increments per stream. Safe for concurrent
// use so callers can process independent streams in parallel.
type Accumulator struct {
	mu     sync.Mutex
	tables map[string]PSDTable
}

// NewAccumulator returns an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{tables: make(map[string]PSDTable)}
}

// Merge appends a daily PSD increment to the stream's accumulated table.
func (a *Accumulator) Merge(id StreamID, day PSDTable) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	merged, err := MergePSD(a.tables[id.String()], day)
	if err != nil {
		return err
	}
	a.tables[id.String()] = merged
	return nil
}

// Table returns a copy of the accumulated table for a stream, so callers
// can never mutate accumulator state through the result.
func (a *Accumulator) Table(id StreamID) (PSDTable, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	t, ok := a.tables[id.String()]
	if !ok {
		return PSDTable{}, false
	}
	return t.Clone(), true
}

// Streams returns the accumulated stream keys in sorted order.
func (a *Accumulator) Streams() []string {
	a.mu.Lock()
	defer a.mu.Unlock()

	keys := make([]string, 0, len(a.tables))
	for k := range a.tables {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
