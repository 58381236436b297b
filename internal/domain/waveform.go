package domain

import (
	"fmt"
	"time"
)

// Waveform is one contiguous day-long segment of raw samples for a stream,
// with the calibration metadata needed to convert counts to physical units.
type Waveform struct {
	Stream      StreamID
	Start       time.Time
	SampleRate  float64 // samples per second
	Sensitivity float64 // counts per m/s², total instrument gain
	Samples     []float64
}

// Validate checks the fields the PSD estimator depends on.
func (w *Waveform) Validate() error {
	if w.SampleRate <= 0 {
		return fmt.Errorf("waveform %s: sample rate must be positive, got %v", w.Stream, w.SampleRate)
	}
	if w.Sensitivity <= 0 {
		return fmt.Errorf("waveform %s: sensitivity must be positive, got %v", w.Stream, w.Sensitivity)
	}
	if len(w.Samples) == 0 {
		return fmt.Errorf("waveform %s: no samples", w.Stream)
	}
	return nil
}

// Duration is the span covered by the samples.
func (w *Waveform) Duration() time.Duration {
	if w.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(len(w.Samples)) / w.SampleRate * float64(time.Second))
}
