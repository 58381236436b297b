// Package archive caches daily PSD tables on disk so repeated runs only
// fetch and estimate days they have not seen. There is no general
// invalidation: a day is fresh iff its file exists, except the current day,
// which is always recomputed because its data is still accumulating.
package archive

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/klauspost/compress/gzip"

	"github.com/couchcryptid/seismic-noise-etl/internal/domain"
)

const dayLayout = "2006-01-02"

// dayFile is the on-disk form of a PSD table. Missing cells are JSON null
// because NaN is not representable in JSON.
type dayFile struct {
	Times  []time.Time  `json:"times"`
	Freqs  []float64    `json:"freqs_hz"`
	Values [][]*float64 `json:"values_db"`
}

func toDayFile(table domain.PSDTable) dayFile {
	out := dayFile{Times: table.Times, Freqs: table.Freqs, Values: make([][]*float64, len(table.Values))}
	for i, row := range table.Values {
		cells := make([]*float64, len(row))
		for j := range row {
			if !math.IsNaN(row[j]) {
				v := row[j]
				cells[j] = &v
			}
		}
		out.Values[i] = cells
	}
	return out
}

func (d dayFile) table() domain.PSDTable {
	table := domain.PSDTable{Times: d.Times, Freqs: d.Freqs, Values: make([][]float64, len(d.Values))}
	for i, cells := range d.Values {
		row := make([]float64, len(cells))
		for j, cell := range cells {
			if cell == nil {
				row[j] = math.NaN()
			} else {
				row[j] = *cell
			}
		}
		table.Values[i] = row
	}
	return table
}

// Store reads and writes per-stream, per-day PSD archives under a root
// directory: <root>/<NET.STA.LOC.CHN>/<YYYY-MM-DD>.psd.json.gz.
type Store struct {
	root   string
	clock  clockwork.Clock
	logger *slog.Logger
}

// New creates a Store rooted at dir.
func New(dir string, clock clockwork.Clock, logger *slog.Logger) *Store {
	return &Store{root: dir, clock: clock, logger: logger}
}

// Fresh reports whether the archived table for the stream-day can be reused.
// Today is never fresh.
func (s *Store) Fresh(id domain.StreamID, day time.Time) bool {
	if sameDay(day, s.clock.Now()) {
		return false
	}
	_, err := os.Stat(s.path(id, day))
	return err == nil
}

// Load reads an archived PSD table.
func (s *Store) Load(id domain.StreamID, day time.Time) (domain.PSDTable, error) {
	f, err := os.Open(s.path(id, day))
	if err != nil {
		return domain.PSDTable{}, fmt.Errorf("archive load %s %s: %w", id, day.Format(dayLayout), err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return domain.PSDTable{}, fmt.Errorf("archive load %s %s: %w", id, day.Format(dayLayout), err)
	}
	defer gz.Close()

	var file dayFile
	if err := json.NewDecoder(gz).Decode(&file); err != nil {
		return domain.PSDTable{}, fmt.Errorf("archive load %s %s: %w", id, day.Format(dayLayout), err)
	}
	table := file.table()
	if err := table.Validate(); err != nil {
		return domain.PSDTable{}, fmt.Errorf("archive load %s %s: %w", id, day.Format(dayLayout), err)
	}
	return table, nil
}

// Store writes a PSD table for a stream-day, replacing any existing file.
// The write goes through a temp file and rename so a crash never leaves a
// truncated archive that a later run would trust.
func (s *Store) Store(id domain.StreamID, day time.Time, table domain.PSDTable) error {
	dir := filepath.Dir(s.path(id, day))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("archive store %s: %w", id, err)
	}

	tmp, err := os.CreateTemp(dir, "."+day.Format(dayLayout)+"-*")
	if err != nil {
		return fmt.Errorf("archive store %s: %w", id, err)
	}
	defer os.Remove(tmp.Name())

	gz := gzip.NewWriter(tmp)
	if err := json.NewEncoder(gz).Encode(toDayFile(table)); err != nil {
		tmp.Close()
		return fmt.Errorf("archive store %s %s: %w", id, day.Format(dayLayout), err)
	}
	if err := gz.Close(); err != nil {
		tmp.Close()
		return fmt.Errorf("archive store %s %s: %w", id, day.Format(dayLayout), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("archive store %s %s: %w", id, day.Format(dayLayout), err)
	}

	if err := os.Rename(tmp.Name(), s.path(id, day)); err != nil {
		return fmt.Errorf("archive store %s %s: %w", id, day.Format(dayLayout), err)
	}
	s.logger.Debug("psd archive written", "stream", id.String(), "day", day.Format(dayLayout))
	return nil
}

func (s *Store) path(id domain.StreamID, day time.Time) string {
	return filepath.Join(s.root, id.String(), day.Format(dayLayout)+".psd.json.gz")
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}
