// Command genmock generates a synthetic day of seismometer data and the RMS
// fixture that the pipeline would produce from it. It runs the actual
// estimator and reducer so the fixtures always match real pipeline behavior.
//
// Usage:
//
//	go run ./cmd/genmock \
//	  -slist-out data/mock/CH.DAVOX..HHZ.2026-03-15.slist \
//	  -csv-out data/mock/CH.DAVOX..HHZ.expected.csv
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/seismic-noise-etl/internal/adapter/csvout"
	"github.com/couchcryptid/seismic-noise-etl/internal/domain"
	"github.com/couchcryptid/seismic-noise-etl/internal/spectral"
)

var mockDay = time.Date(2026, time.March, 15, 0, 0, 0, 0, time.UTC)

const (
	sampleRate  = 100.0
	sensitivity = 6.27615e8
	hours       = 4
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	slistOut := flag.String("slist-out", "", "output path for the SLIST waveform fixture")
	csvOut := flag.String("csv-out", "", "output path for the expected RMS CSV")
	seed := flag.Int64("seed", 1, "random seed for the noise component")
	flag.Parse()

	if *slistOut == "" || *csvOut == "" {
		flag.Usage()
		return fmt.Errorf("missing required flags: -slist-out, -csv-out")
	}

	// Fix the clock so processed_at style timestamps are reproducible.
	domain.SetClock(clockwork.NewFakeClockAt(mockDay.Add(hours * time.Hour)))
	defer domain.SetClock(nil)

	id := domain.StreamID{Network: "CH", Station: "DAVOX", Channel: "HHZ"}
	wf := synthWaveform(id, *seed)
	log.Printf("synthesized %d samples at %g sps", len(wf.Samples), wf.SampleRate)

	if err := writeSLIST(*slistOut, wf); err != nil {
		return fmt.Errorf("writing SLIST fixture: %w", err)
	}
	log.Printf("wrote SLIST fixture: %s", *slistOut)

	estimator, err := spectral.New(spectral.Config{MinFreq: 0.2, MaxFreq: 20})
	if err != nil {
		return err
	}
	psd, err := estimator.Estimate(wf)
	if err != nil {
		return fmt.Errorf("estimating psd: %w", err)
	}
	log.Printf("psd: %d windows x %d bins", len(psd.Times), len(psd.Freqs))

	bands := []domain.Band{{Min: 0.5, Max: 2.0}, {Min: 4.0, Max: 14.0}}
	rms, err := domain.ComputeRMS(psd, bands, domain.UnitDisplacement)
	if err != nil {
		return fmt.Errorf("computing rms: %w", err)
	}

	writer := csvout.NewWriter(filepath.Dir(*csvOut), slog.Default())
	if err := writer.Publish(context.Background(), id, rms); err != nil {
		return fmt.Errorf("writing RMS fixture: %w", err)
	}
	if err := os.Rename(filepath.Join(filepath.Dir(*csvOut), id.String()+".csv"), *csvOut); err != nil {
		return err
	}
	log.Printf("wrote RMS fixture: %s", *csvOut)

	printStats(rms)
	return nil
}

// synthWaveform builds a few hours of signal: a 6 Hz microseism-like tone
// over white noise, in raw counts.
func synthWaveform(id domain.StreamID, seed int64) domain.Waveform {
	rng := rand.New(rand.NewSource(seed))
	n := int(hours * 3600 * sampleRate)
	samples := make([]float64, n)
	for i := range samples {
		t := float64(i) / sampleRate
		samples[i] = 2000*math.Sin(2*math.Pi*6*t) + 500*rng.NormFloat64()
	}
	return domain.Waveform{
		Stream:      id,
		Start:       mockDay,
		SampleRate:  sampleRate,
		Sensitivity: sensitivity,
		Samples:     samples,
	}
}

// writeSLIST emits the waveform in the ASCII SLIST layout used by FDSN
// timeseries services, six samples per line.
func writeSLIST(path string, wf domain.Waveform) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	id := wf.Stream
	fmt.Fprintf(f, "TIMESERIES %s_%s_%s_%s_R, %d samples, %g sps, %s.000000, SLIST, FLOAT, COUNTS\n",
		id.Network, id.Station, id.Location, id.Channel,
		len(wf.Samples), wf.SampleRate, wf.Start.Format("2006-01-02T15:04:05"))

	for i := 0; i < len(wf.Samples); i += 6 {
		end := min(i+6, len(wf.Samples))
		for j := i; j < end; j++ {
			if j > i {
				fmt.Fprint(f, "  ")
			}
			fmt.Fprintf(f, "%.6f", wf.Samples[j])
		}
		fmt.Fprintln(f)
	}
	return nil
}

func printStats(rms domain.RMSTable) {
	fmt.Println("\n=== Stats for updating test assertions ===")
	fmt.Printf("Rows: %d\n", len(rms.Times))
	for j, label := range rms.Labels {
		var sum float64
		var count int
		for i := range rms.Times {
			if v := rms.Values[i][j]; !math.IsNaN(v) {
				sum += v
				count++
			}
		}
		if count == 0 {
			fmt.Printf("Band %s: no data\n", label)
			continue
		}
		fmt.Printf("Band %s: mean rms %.4e over %d rows\n", label, sum/float64(count), count)
	}
}
