// Package csvout writes RMS tables to per-stream CSV files.
package csvout

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/couchcryptid/seismic-noise-etl/internal/domain"
)

// Writer persists RMS results as one CSV per stream under a root directory.
// Each write replaces the stream's file with the full table, so the file is
// always a consistent snapshot of everything computed so far.
// It implements pipeline.ResultSink.
type Writer struct {
	root   string
	logger *slog.Logger
}

func NewWriter(root string, logger *slog.Logger) *Writer {
	return &Writer{root: root, logger: logger}
}

// Publish stores the table as <root>/<NET.STA.LOC.CHN>.csv. The header is
// "time" followed by the band labels; NaN cells are left empty.
func (w *Writer) Publish(_ context.Context, id domain.StreamID, table domain.RMSTable) error {
	if err := os.MkdirAll(w.root, 0o755); err != nil {
		return fmt.Errorf("csv write %s: %w", id, err)
	}

	path := filepath.Join(w.root, id.String()+".csv")
	tmp, err := os.CreateTemp(w.root, "."+id.String()+"-*")
	if err != nil {
		return fmt.Errorf("csv write %s: %w", id, err)
	}
	defer os.Remove(tmp.Name())

	cw := csv.NewWriter(tmp)
	if err := cw.Write(append([]string{"time"}, table.Labels...)); err != nil {
		tmp.Close()
		return fmt.Errorf("csv write %s: %w", id, err)
	}
	for i, ts := range table.Times {
		record := make([]string, 0, len(table.Labels)+1)
		record = append(record, ts.UTC().Format(time.RFC3339))
		for _, v := range table.Values[i] {
			record = append(record, formatCell(v))
		}
		if err := cw.Write(record); err != nil {
			tmp.Close()
			return fmt.Errorf("csv write %s: %w", id, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		tmp.Close()
		return fmt.Errorf("csv write %s: %w", id, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("csv write %s: %w", id, err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("csv write %s: %w", id, err)
	}
	w.logger.Debug("rms csv written", "stream", id.String(), "rows", len(table.Times))
	return nil
}

func formatCell(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
