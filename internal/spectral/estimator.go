// Package spectral estimates power spectral density tables from raw
// day-long waveforms: Welch segment averaging inside fixed processing
// windows, followed by fractional-octave smoothing onto a stable set of
// log-spaced frequency bins so tables from different days share columns.
package spectral

import (
	"fmt"
	"math"
	"time"

	algofft "github.com/MeKo-Christian/algo-fft"
	"github.com/cwbudde/algo-dsp/dsp/spectrum"
	"github.com/cwbudde/algo-dsp/dsp/window"

	"github.com/couchcryptid/seismic-noise-etl/internal/domain"
)

// dbFloor replaces non-positive power before the log conversion.
const dbFloor = -200.0

// Config controls PSD estimation. Zero values fall back to defaults.
type Config struct {
	// WindowLength is the cadence of output rows: one PSD estimate per
	// window. Default 30 minutes.
	WindowLength time.Duration

	// SegmentLength is the Welch segment duration inside a window. The
	// segment sample count is rounded down to a power of two. Default 60s.
	SegmentLength time.Duration

	// Overlap is the fractional overlap between consecutive segments,
	// in [0, 1). Default 0.5.
	Overlap float64

	// SmoothingFraction applies 1/N-octave smoothing to each periodogram
	// before binning. Default 1 (full-octave).
	SmoothingFraction int

	// BinsPerOctave sets the density of output frequency columns.
	// Default 8.
	BinsPerOctave int

	// MinFreq and MaxFreq bound the output columns in Hz. MinFreq defaults
	// to 0.1; MaxFreq defaults to 90% of Nyquist at estimate time.
	MinFreq float64
	MaxFreq float64
}

func (c Config) withDefaults() Config {
	if c.WindowLength <= 0 {
		c.WindowLength = 30 * time.Minute
	}
	if c.SegmentLength <= 0 {
		c.SegmentLength = time.Minute
	}
	if c.Overlap == 0 {
		c.Overlap = 0.5
	}
	if c.SmoothingFraction <= 0 {
		c.SmoothingFraction = 1
	}
	if c.BinsPerOctave <= 0 {
		c.BinsPerOctave = 8
	}
	if c.MinFreq <= 0 {
		c.MinFreq = 0.1
	}
	return c
}

func (c Config) validate() error {
	if c.Overlap < 0 || c.Overlap >= 1 {
		return fmt.Errorf("spectral config: overlap must be in [0, 1), got %v", c.Overlap)
	}
	if c.SegmentLength > c.WindowLength {
		return fmt.Errorf("spectral config: segment length %v exceeds window length %v", c.SegmentLength, c.WindowLength)
	}
	if c.MaxFreq != 0 && c.MaxFreq <= c.MinFreq {
		return fmt.Errorf("spectral config: max freq %v must exceed min freq %v", c.MaxFreq, c.MinFreq)
	}
	return nil
}

// Estimator computes PSD tables. Safe for concurrent use: Estimate builds
// all per-call state (FFT plan included) locally.
type Estimator struct {
	cfg Config
}

// New validates the configuration and returns an Estimator.
func New(cfg Config) (*Estimator, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Estimator{cfg: cfg}, nil
}

// Estimate produces one PSD row per complete processing window of the
// waveform. Values are power in dB relative to 1 (m/s²)²/Hz: raw counts
// are converted to physical units through the waveform's sensitivity.
func (e *Estimator) Estimate(wf domain.Waveform) (domain.PSDTable, error) {
	if err := wf.Validate(); err != nil {
		return domain.PSDTable{}, err
	}

	fs := wf.SampleRate
	winSamples := int(e.cfg.WindowLength.Seconds() * fs)
	segSamples := prevPow2(int(e.cfg.SegmentLength.Seconds() * fs))
	if segSamples < 16 {
		return domain.PSDTable{}, fmt.Errorf("estimate %s: segment of %d samples too short", wf.Stream, segSamples)
	}
	windows := len(wf.Samples) / winSamples
	if windows == 0 {
		return domain.PSDTable{}, fmt.Errorf("estimate %s: %d samples shorter than one %v window",
			wf.Stream, len(wf.Samples), e.cfg.WindowLength)
	}

	hop := int(float64(segSamples) * (1 - e.cfg.Overlap))
	if hop < 1 {
		hop = 1
	}

	win := window.Generate(window.TypeHann, segSamples, window.WithPeriodic())
	wss := 0.0
	for _, w := range win {
		wss += w * w
	}

	plan, err := algofft.NewPlan64(segSamples)
	if err != nil {
		return domain.PSDTable{}, fmt.Errorf("estimate %s: fft plan: %w", wf.Stream, err)
	}

	// Raw one-sided bin frequencies, DC excluded.
	bins := segSamples / 2
	rawFreqs := make([]float64, bins)
	for k := 0; k < bins; k++ {
		rawFreqs[k] = float64(k+1) * fs / float64(segSamples)
	}

	centers := e.centerFreqs(fs)
	if len(centers) < 2 {
		return domain.PSDTable{}, fmt.Errorf("estimate %s: frequency limits [%v, %v] leave no output bins",
			wf.Stream, e.cfg.MinFreq, e.cfg.MaxFreq)
	}

	// One-sided density scaling; sensitivity converts counts² to (m/s²)².
	scale := 2 / (fs * wss * wf.Sensitivity * wf.Sensitivity)

	table := domain.PSDTable{
		Times:  make([]time.Time, 0, windows),
		Freqs:  centers,
		Values: make([][]float64, 0, windows),
	}

	in := make([]complex128, segSamples)
	out := make([]complex128, segSamples)
	power := make([]float64, bins)

	for w := 0; w < windows; w++ {
		chunk := wf.Samples[w*winSamples : (w+1)*winSamples]

		for k := range power {
			power[k] = 0
		}
		segments := 0
		for off := 0; off+segSamples <= len(chunk); off += hop {
			seg := chunk[off : off+segSamples]
			mean := 0.0
			for _, s := range seg {
				mean += s
			}
			mean /= float64(segSamples)

			for i, s := range seg {
				in[i] = complex((s-mean)*win[i], 0)
			}
			if err := plan.Forward(out, in); err != nil {
				return domain.PSDTable{}, fmt.Errorf("estimate %s: fft: %w", wf.Stream, err)
			}
			for k := 0; k < bins; k++ {
				c := out[k+1]
				power[k] += (real(c)*real(c) + imag(c)*imag(c)) * scale
			}
			segments++
		}

		avg := make([]float64, bins)
		for k := range avg {
			avg[k] = power[k] / float64(segments)
		}

		row, err := e.smoothToBins(rawFreqs, avg, centers)
		if err != nil {
			return domain.PSDTable{}, fmt.Errorf("estimate %s: %w", wf.Stream, err)
		}

		windowDur := time.Duration(float64(winSamples) / fs * float64(time.Second))
		table.Times = append(table.Times, wf.Start.Add(time.Duration(w)*windowDur))
		table.Values = append(table.Values, row)
	}

	return table, nil
}

// centerFreqs returns the log-spaced output columns between the configured
// limits, BinsPerOctave per octave.
func (e *Estimator) centerFreqs(fs float64) []float64 {
	maxFreq := e.cfg.MaxFreq
	if maxFreq == 0 {
		maxFreq = 0.9 * fs / 2
	}
	step := math.Pow(2, 1/float64(e.cfg.BinsPerOctave))

	var centers []float64
	for f := e.cfg.MinFreq; f <= maxFreq*(1+1e-12); f *= step {
		centers = append(centers, f)
	}
	return centers
}

// smoothToBins applies fractional-octave smoothing to the linear-power
// periodogram and samples it at the output centers, converting to dB.
func (e *Estimator) smoothToBins(rawFreqs, power, centers []float64) ([]float64, error) {
	smoothed, err := spectrum.SmoothFractionalOctave(rawFreqs, power, e.cfg.SmoothingFraction)
	if err != nil {
		return nil, fmt.Errorf("octave smoothing: %w", err)
	}
	sampled, err := spectrum.InterpolateLinear(rawFreqs, smoothed, centers)
	if err != nil {
		return nil, fmt.Errorf("bin interpolation: %w", err)
	}

	row := make([]float64, len(sampled))
	for i, p := range sampled {
		if p <= 0 || math.IsNaN(p) {
			row[i] = dbFloor
			continue
		}
		row[i] = 10 * math.Log10(p)
	}
	return row, nil
}

// prevPow2 rounds n down to the nearest power of two.
func prevPow2(n int) int {
	p := 1
	for p*2 <= n {
		p *= 2
	}
	return p
}
