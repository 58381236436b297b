package domain

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"
)

// Unit selects the physical quantity of the RMS output.
type Unit int

const (
	UnitAcceleration Unit = iota
	UnitVelocity
	UnitDisplacement
)

// ParseUnit maps a configuration string to a Unit.
func ParseUnit(s string) (Unit, error) {
	switch s {
	case "acceleration":
		return UnitAcceleration, nil
	case "velocity":
		return UnitVelocity, nil
	case "displacement":
		return UnitDisplacement, nil
	default:
		return 0, fmt.Errorf("parse unit %q: want acceleration, velocity, or displacement", s)
	}
}

func (u Unit) String() string {
	switch u {
	case UnitAcceleration:
		return "acceleration"
	case UnitVelocity:
		return "velocity"
	case UnitDisplacement:
		return "displacement"
	default:
		return fmt.Sprintf("unit(%d)", int(u))
	}
}

// Errors rejected at call time by ComputeRMS.
var (
	ErrEmptyTable = errors.New("empty psd table")
	ErrNoBands    = errors.New("empty band list")
)

// RMSTable is the ComputeRMS result: one column per band label, sharing the
// input table's row index exactly. NaN marks rows a band could not cover.
type RMSTable struct {
	Times  []time.Time
	Labels []string
	Values [][]float64 // row-major, len(Times) x len(Labels)
}

// ComputeRMS derives per-band RMS amplitude over time from a table of power
// spectral density values in dB.
//
// For each band, columns with frequency in [Min, Max] are selected, each dB
// value is converted to linear power with 10^(dB/10), the power is divided
// by (2πf)² once for velocity or twice for displacement, and each row is
// integrated over frequency with the trapezoidal rule and square-rooted.
//
// The output row index equals the input row index; column order follows the
// band order. A band covering no columns yields an all-NaN column rather
// than an error. Two bands formatting to the same "%.1f-%.1f" label would
// collide silently, so label collisions are rejected. The input table is
// never mutated.
func ComputeRMS(psd PSDTable, bands []Band, unit Unit) (RMSTable, error) {
	if psd.Empty() {
		return RMSTable{}, ErrEmptyTable
	}
	if len(bands) == 0 {
		return RMSTable{}, ErrNoBands
	}
	if err := psd.Validate(); err != nil {
		return RMSTable{}, err
	}
	if unit != UnitAcceleration && unit != UnitVelocity && unit != UnitDisplacement {
		return RMSTable{}, fmt.Errorf("unknown unit %d", int(unit))
	}

	labels := make([]string, len(bands))
	seen := make(map[string]struct{}, len(bands))
	for i, b := range bands {
		if err := b.Validate(); err != nil {
			return RMSTable{}, err
		}
		labels[i] = b.Label()
		if _, dup := seen[labels[i]]; dup {
			return RMSTable{}, fmt.Errorf("duplicate band label %q", labels[i])
		}
		seen[labels[i]] = struct{}{}
	}

	work := psd.Clone()
	work.SortColumns()
	work.DropEmptyColumns()

	out := RMSTable{
		Times:  append([]time.Time(nil), psd.Times...),
		Labels: labels,
		Values: make([][]float64, len(psd.Times)),
	}
	for r := range out.Values {
		out.Values[r] = make([]float64, len(bands))
	}

	for bi, b := range bands {
		lo := sort.SearchFloat64s(work.Freqs, b.Min)
		hi := sort.Search(len(work.Freqs), func(i int) bool { return work.Freqs[i] > b.Max })

		if lo >= hi {
			for r := range out.Values {
				out.Values[r][bi] = math.NaN()
			}
			continue
		}

		freqs := work.Freqs[lo:hi]
		scale := make([]float64, len(freqs))
		for i, f := range freqs {
			scale[i] = unitScale(f, unit)
		}

		for r, row := range work.Values {
			out.Values[r][bi] = bandRMS(row[lo:hi], freqs, scale)
		}
	}

	return out, nil
}

// unitScale is the per-frequency factor applied to acceleration power:
// division by (2πf)² once per integration step toward displacement.
func unitScale(f float64, unit Unit) float64 {
	w2 := (2 * math.Pi * f) * (2 * math.Pi * f)
	switch unit {
	case UnitVelocity:
		return 1 / w2
	case UnitDisplacement:
		return 1 / (w2 * w2)
	default:
		return 1
	}
}

// bandRMS converts one row's dB values to linear power, integrates over
// frequency with the trapezoidal rule, and returns the square root. NaN
// cells propagate into the result.
func bandRMS(db, freqs, scale []float64) float64 {
	powers := make([]float64, len(db))
	for i, v := range db {
		powers[i] = math.Pow(10, v/10) * scale[i]
	}

	var integral float64
	for i := 1; i < len(powers); i++ {
		integral += 0.5 * (powers[i-1] + powers[i]) * (freqs[i] - freqs[i-1])
	}
	return math.Sqrt(integral)
}
