package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Band is a closed frequency interval [Min, Max] in Hz over which RMS is
// integrated. Immutable once constructed.
type Band struct {
	Min float64
	Max float64
}

// Validate rejects non-finite, non-positive, or inverted bounds.
func (b Band) Validate() error {
	if math.IsNaN(b.Min) || math.IsNaN(b.Max) || math.IsInf(b.Min, 0) || math.IsInf(b.Max, 0) {
		return fmt.Errorf("band %s: bounds must be finite", b.Label())
	}
	if b.Min <= 0 || b.Max <= 0 {
		return fmt.Errorf("band %s: bounds must be positive", b.Label())
	}
	if b.Min >= b.Max {
		return fmt.Errorf("band %s: fmin must be less than fmax", b.Label())
	}
	return nil
}

// Label returns the band's column key, "%.1f-%.1f". Two distinct bands can
// format to the same label; ComputeRMS rejects such collisions.
func (b Band) Label() string {
	return fmt.Sprintf("%.1f-%.1f", b.Min, b.Max)
}

// ParseBands parses a comma-separated list of "fmin-fmax" pairs,
// e.g. "4.0-14.0,4.0-20.0". Each band is validated.
func ParseBands(s string) ([]Band, error) {
	var bands []Band
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		b, err := parseBand(part)
		if err != nil {
			return nil, err
		}
		bands = append(bands, b)
	}
	if len(bands) == 0 {
		return nil, fmt.Errorf("parse bands %q: no bands given", s)
	}
	return bands, nil
}

func parseBand(s string) (Band, error) {
	lo, hi, ok := strings.Cut(s, "-")
	if !ok {
		return Band{}, fmt.Errorf("parse band %q: want fmin-fmax", s)
	}
	fmin, err := strconv.ParseFloat(strings.TrimSpace(lo), 64)
	if err != nil {
		return Band{}, fmt.Errorf("parse band %q: %w", s, err)
	}
	fmax, err := strconv.ParseFloat(strings.TrimSpace(hi), 64)
	if err != nil {
		return Band{}, fmt.Errorf("parse band %q: %w", s, err)
	}
	b := Band{Min: fmin, Max: fmax}
	if err := b.Validate(); err != nil {
		return Band{}, err
	}
	return b, nil
}
