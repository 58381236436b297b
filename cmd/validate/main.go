// Command validate performs end-to-end integrity checks over the pipeline's
// on-disk output: it reloads every archived PSD day, recomputes band RMS
// from the merged tables, and compares the result against the published CSV
// files row by row.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -archive-dir data/psd \
//	  -csv-dir data/rms \
//	  -streams CH.DAVOX..HHZ \
//	  -bands 4.0-14.0 \
//	  -unit displacement
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/seismic-noise-etl/internal/adapter/archive"
	"github.com/couchcryptid/seismic-noise-etl/internal/config"
	"github.com/couchcryptid/seismic-noise-etl/internal/domain"
	"github.com/couchcryptid/seismic-noise-etl/internal/observability"
)

const rmsTolerance = 1e-9 // relative, CSV round-trips through %g

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	archiveDir := flag.String("archive-dir", "", "directory containing archived PSD day files")
	csvDir := flag.String("csv-dir", "", "directory containing published RMS CSV files")
	streams := flag.String("streams", "", "comma-separated stream identifiers")
	bandsFlag := flag.String("bands", "4.0-14.0", "comma-separated frequency bands")
	unitFlag := flag.String("unit", "displacement", "output unit")
	flag.Parse()

	if *archiveDir == "" || *csvDir == "" || *streams == "" {
		flag.Usage()
		os.Exit(1)
	}

	ids, err := domain.ParseStreamIDs(*streams)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		os.Exit(1)
	}
	bands, err := domain.ParseBands(*bandsFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		os.Exit(1)
	}
	unit, err := domain.ParseUnit(*unitFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		os.Exit(1)
	}

	os.Exit(run(*archiveDir, *csvDir, ids, bands, unit))
}

func run(archiveDir, csvDir string, ids []domain.StreamID, bands []domain.Band, unit domain.Unit) int {
	fmt.Println("=== Seismic Noise Output Validation ===")
	fmt.Println()

	logger := observability.NewLogger(&config.Config{LogLevel: "warn", LogFormat: "text"})
	store := archive.New(archiveDir, clockwork.NewRealClock(), logger)

	allPassed := true
	for _, id := range ids {
		phases := validateStream(store, archiveDir, csvDir, id, bands, unit)
		for _, p := range phases {
			if p.passed() {
				fmt.Printf("PASS  %s: %s\n", id, p.name)
				continue
			}
			allPassed = false
			fmt.Printf("FAIL  %s: %s\n", id, p.name)
			for _, e := range p.errors {
				fmt.Printf("      %s\n", e)
			}
		}
	}

	fmt.Println()
	if !allPassed {
		fmt.Println("validation FAILED")
		return 1
	}
	fmt.Println("validation passed")
	return 0
}

func validateStream(store *archive.Store, archiveDir, csvDir string, id domain.StreamID, bands []domain.Band, unit domain.Unit) []*phase {
	merged, archivePhase := validateArchive(store, archiveDir, id)
	csvTimes, csvValues, labels, csvPhase := loadCSV(csvDir, id)
	parity := &phase{name: "rms parity"}

	if !archivePhase.passed() || !csvPhase.passed() {
		parity.errorf("skipped, earlier phase failed")
		return []*phase{archivePhase, csvPhase, parity}
	}

	rms, err := domain.ComputeRMS(merged, bands, unit)
	if err != nil {
		parity.errorf("recompute rms: %v", err)
		return []*phase{archivePhase, csvPhase, parity}
	}

	if len(labels) != len(rms.Labels) {
		parity.errorf("csv has %d bands, expected %d", len(labels), len(rms.Labels))
	}
	for j := range rms.Labels {
		if j < len(labels) && labels[j] != rms.Labels[j] {
			parity.errorf("band %d label %q, expected %q", j, labels[j], rms.Labels[j])
		}
	}

	// The CSV may trail the archive when the last cycle failed mid-write, so
	// compare the rows the CSV actually has.
	if len(csvTimes) > len(rms.Times) {
		parity.errorf("csv has %d rows, archive only yields %d", len(csvTimes), len(rms.Times))
		return []*phase{archivePhase, csvPhase, parity}
	}

	recomputed := indexRows(rms)
	for i, ts := range csvTimes {
		row, ok := recomputed[ts.Unix()]
		if !ok {
			parity.errorf("csv row %s not present in recomputed table", ts.Format(time.RFC3339))
			continue
		}
		for j := range labels {
			if j >= len(row) {
				break
			}
			compareCell(parity, ts, labels[j], csvValues[i][j], row[j])
		}
	}

	return []*phase{archivePhase, csvPhase, parity}
}

// validateArchive loads every day file for the stream and merges them the
// way the pipeline does.
func validateArchive(store *archive.Store, archiveDir string, id domain.StreamID) (domain.PSDTable, *phase) {
	p := &phase{name: "archive integrity"}

	entries, err := os.ReadDir(filepath.Join(archiveDir, id.String()))
	if err != nil {
		p.errorf("read archive dir: %v", err)
		return domain.PSDTable{}, p
	}

	var merged domain.PSDTable
	days := 0
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasSuffix(name, ".psd.json.gz") {
			continue
		}
		day, err := time.Parse("2006-01-02", strings.TrimSuffix(name, ".psd.json.gz"))
		if err != nil {
			p.errorf("unparseable archive file name %q", name)
			continue
		}
		table, err := store.Load(id, day)
		if err != nil {
			p.errorf("load %s: %v", name, err)
			continue
		}
		merged, err = domain.MergePSD(merged, table)
		if err != nil {
			p.errorf("merge %s: %v", name, err)
			continue
		}
		days++
	}
	if days == 0 {
		p.errorf("no archived days found")
	}
	return merged, p
}

// loadCSV reads the published per-stream CSV back into times and values.
// NaN comes back for empty cells.
func loadCSV(csvDir string, id domain.StreamID) ([]time.Time, [][]float64, []string, *phase) {
	p := &phase{name: "csv integrity"}

	f, err := os.Open(filepath.Join(csvDir, id.String()+".csv"))
	if err != nil {
		p.errorf("open csv: %v", err)
		return nil, nil, nil, p
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		p.errorf("read csv: %v", err)
		return nil, nil, nil, p
	}
	if len(rows) == 0 || len(rows[0]) < 2 || rows[0][0] != "time" {
		p.errorf("malformed header")
		return nil, nil, nil, p
	}
	labels := rows[0][1:]

	var times []time.Time
	var values [][]float64
	for i, row := range rows[1:] {
		ts, err := time.Parse(time.RFC3339, row[0])
		if err != nil {
			p.errorf("row %d: bad timestamp %q", i+1, row[0])
			continue
		}
		cells := make([]float64, len(labels))
		for j := range labels {
			cells[j] = math.NaN()
			if j+1 < len(row) && row[j+1] != "" {
				v, err := strconv.ParseFloat(row[j+1], 64)
				if err != nil {
					p.errorf("row %d band %s: bad value %q", i+1, labels[j], row[j+1])
					continue
				}
				cells[j] = v
			}
		}
		times = append(times, ts)
		values = append(values, cells)
	}
	return times, values, labels, p
}

func indexRows(rms domain.RMSTable) map[int64][]float64 {
	out := make(map[int64][]float64, len(rms.Times))
	for i, ts := range rms.Times {
		out[ts.Unix()] = rms.Values[i]
	}
	return out
}

func compareCell(p *phase, ts time.Time, label string, got, want float64) {
	if math.IsNaN(got) && math.IsNaN(want) {
		return
	}
	if math.IsNaN(got) != math.IsNaN(want) {
		p.errorf("%s band %s: csv %v, recomputed %v", ts.Format(time.RFC3339), label, got, want)
		return
	}
	if want == 0 {
		if got != 0 {
			p.errorf("%s band %s: csv %v, recomputed 0", ts.Format(time.RFC3339), label, got)
		}
		return
	}
	if math.Abs(got-want)/math.Abs(want) > rmsTolerance {
		p.errorf("%s band %s: csv %v, recomputed %v", ts.Format(time.RFC3339), label, got, want)
	}
}
