package csvout

import (
	"context"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/seismic-noise-etl/internal/domain"
)

func testWriter(t *testing.T) *Writer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	return NewWriter(t.TempDir(), logger)
}

func TestWrite(t *testing.T) {
	w := testWriter(t)
	id := domain.StreamID{Network: "CH", Station: "DAVOX", Channel: "HHZ"}
	table := domain.RMSTable{
		Times: []time.Time{
			time.Date(2026, 3, 15, 0, 30, 0, 0, time.UTC),
			time.Date(2026, 3, 15, 1, 0, 0, 0, time.UTC),
		},
		Labels: []string{"4.0-14.0", "0.1-1.0"},
		Values: [][]float64{
			{7.4162e-06, 1.25e-07},
			{math.NaN(), 2.5e-07},
		},
	}

	require.NoError(t, w.Publish(context.Background(), id, table))

	raw, err := os.ReadFile(filepath.Join(w.root, "CH.DAVOX..HHZ.csv"))
	require.NoError(t, err)

	want := "time,4.0-14.0,0.1-1.0\n" +
		"2026-03-15T00:30:00Z,7.4162e-06,1.25e-07\n" +
		"2026-03-15T01:00:00Z,,2.5e-07\n"
	assert.Equal(t, want, string(raw))
}

func TestWriteReplaces(t *testing.T) {
	w := testWriter(t)
	id := domain.StreamID{Network: "CH", Station: "DAVOX", Channel: "HHZ"}
	table := domain.RMSTable{
		Times:  []time.Time{time.Date(2026, 3, 15, 0, 30, 0, 0, time.UTC)},
		Labels: []string{"4.0-14.0"},
		Values: [][]float64{{1.0e-06}},
	}
	require.NoError(t, w.Publish(context.Background(), id, table))

	table.Values[0][0] = 2.0e-06
	require.NoError(t, w.Publish(context.Background(), id, table))

	raw, err := os.ReadFile(filepath.Join(w.root, "CH.DAVOX..HHZ.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), "2e-06")
	assert.NotContains(t, string(raw), "1e-06")
}

func TestWriteEmptyTable(t *testing.T) {
	w := testWriter(t)
	id := domain.StreamID{Network: "CH", Station: "DAVOX", Channel: "HHZ"}
	table := domain.RMSTable{Labels: []string{"4.0-14.0"}}

	require.NoError(t, w.Publish(context.Background(), id, table))

	raw, err := os.ReadFile(filepath.Join(w.root, "CH.DAVOX..HHZ.csv"))
	require.NoError(t, err)
	assert.Equal(t, "time,4.0-14.0\n", string(raw))
}
