package spectral

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/seismic-noise-etl/internal/domain"
)

var testStart = time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)

func sineWaveform(t *testing.T, freq float64, seconds int) domain.Waveform {
	t.Helper()
	const fs = 64.0
	n := int(fs) * seconds
	samples := make([]float64, n)
	for i := range samples {
		samples[i] = 1000 * math.Sin(2*math.Pi*freq*float64(i)/fs)
	}
	return domain.Waveform{
		Stream:      domain.StreamID{Network: "XX", Station: "TEST", Channel: "HHZ"},
		Start:       testStart,
		SampleRate:  fs,
		Sensitivity: 1.0,
		Samples:     samples,
	}
}

func testConfig() Config {
	return Config{
		WindowLength:      64 * time.Second,
		SegmentLength:     16 * time.Second,
		Overlap:           0.5,
		SmoothingFraction: 12,
		BinsPerOctave:     8,
		MinFreq:           0.5,
		MaxFreq:           20,
	}
}

func TestEstimate_PeakAtSignalFrequency(t *testing.T) {
	est, err := New(testConfig())
	require.NoError(t, err)

	table, err := est.Estimate(sineWaveform(t, 5.0, 128))
	require.NoError(t, err)
	require.NoError(t, table.Validate())

	require.Len(t, table.Times, 2)
	assert.Equal(t, testStart, table.Times[0])
	assert.Equal(t, testStart.Add(64*time.Second), table.Times[1])

	// The loudest column should sit at the bin closest to 5 Hz.
	peak := 0
	for c := range table.Freqs {
		if table.Values[0][c] > table.Values[0][peak] {
			peak = c
		}
	}
	assert.InDelta(t, 5.0, table.Freqs[peak], 0.5)

	// A quiet corner of the spectrum must be well below the peak.
	far := 0 // 0.5 Hz column, an octave-decade away from the tone
	assert.Greater(t, table.Values[0][peak], table.Values[0][far]+30)
}

func TestEstimate_Deterministic(t *testing.T) {
	est, err := New(testConfig())
	require.NoError(t, err)
	wf := sineWaveform(t, 3.0, 64)

	first, err := est.Estimate(wf)
	require.NoError(t, err)
	second, err := est.Estimate(wf)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestEstimate_SensitivityScaling(t *testing.T) {
	est, err := New(testConfig())
	require.NoError(t, err)

	wf := sineWaveform(t, 5.0, 64)
	loud, err := est.Estimate(wf)
	require.NoError(t, err)

	// Raising the gain tenfold drops physical power by 100x, i.e. -20 dB.
	wf.Sensitivity = 10.0
	quiet, err := est.Estimate(wf)
	require.NoError(t, err)

	for c := range loud.Freqs {
		if loud.Values[0][c] <= dbFloor || quiet.Values[0][c] <= dbFloor {
			continue
		}
		assert.InDelta(t, loud.Values[0][c]-20, quiet.Values[0][c], 1e-6)
	}
}

func TestEstimate_ColumnsAscendWithinLimits(t *testing.T) {
	est, err := New(testConfig())
	require.NoError(t, err)

	table, err := est.Estimate(sineWaveform(t, 2.0, 64))
	require.NoError(t, err)

	require.NotEmpty(t, table.Freqs)
	assert.GreaterOrEqual(t, table.Freqs[0], 0.5)
	assert.LessOrEqual(t, table.Freqs[len(table.Freqs)-1], 20.0)
	for i := 1; i < len(table.Freqs); i++ {
		assert.Greater(t, table.Freqs[i], table.Freqs[i-1])
	}
}

func TestEstimate_Errors(t *testing.T) {
	est, err := New(testConfig())
	require.NoError(t, err)

	t.Run("waveform shorter than a window", func(t *testing.T) {
		_, err := est.Estimate(sineWaveform(t, 5.0, 30))
		assert.ErrorContains(t, err, "shorter than one")
	})

	t.Run("invalid waveform", func(t *testing.T) {
		wf := sineWaveform(t, 5.0, 64)
		wf.Sensitivity = 0
		_, err := est.Estimate(wf)
		assert.ErrorContains(t, err, "sensitivity")
	})
}

func TestNew_ConfigErrors(t *testing.T) {
	t.Run("overlap out of range", func(t *testing.T) {
		cfg := testConfig()
		cfg.Overlap = 1.0
		_, err := New(cfg)
		assert.ErrorContains(t, err, "overlap")
	})

	t.Run("segment longer than window", func(t *testing.T) {
		cfg := testConfig()
		cfg.SegmentLength = 2 * cfg.WindowLength
		_, err := New(cfg)
		assert.ErrorContains(t, err, "exceeds window length")
	})

	t.Run("inverted frequency limits", func(t *testing.T) {
		cfg := testConfig()
		cfg.MinFreq, cfg.MaxFreq = 10, 1
		_, err := New(cfg)
		assert.ErrorContains(t, err, "must exceed min freq")
	})
}

func TestPrevPow2(t *testing.T) {
	assert.Equal(t, 1024, prevPow2(1024))
	assert.Equal(t, 1024, prevPow2(1500))
	assert.Equal(t, 1, prevPow2(1))
}
