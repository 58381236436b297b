package archive

import (
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/seismic-noise-etl/internal/domain"
)

var testNow = time.Date(2026, 3, 16, 12, 0, 0, 0, time.UTC)

func testStore(t *testing.T) (*Store, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(testNow)
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	return New(t.TempDir(), clock, logger), clock
}

func testTable() domain.PSDTable {
	return domain.PSDTable{
		Times:  []time.Time{time.Date(2026, 3, 15, 0, 30, 0, 0, time.UTC)},
		Freqs:  []float64{1.0, 2.0},
		Values: [][]float64{{-120.5, math.NaN()}},
	}
}

func TestStoreAndLoad(t *testing.T) {
	store, _ := testStore(t)
	id := domain.StreamID{Network: "CH", Station: "DAVOX", Channel: "HHZ"}
	day := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.Store(id, day, testTable()))

	got, err := store.Load(id, day)
	require.NoError(t, err)
	assert.Equal(t, testTable().Times, got.Times)
	assert.Equal(t, testTable().Freqs, got.Freqs)
	assert.Equal(t, -120.5, got.Values[0][0])
	assert.True(t, math.IsNaN(got.Values[0][1]))
}

func TestFresh(t *testing.T) {
	store, clock := testStore(t)
	id := domain.StreamID{Network: "CH", Station: "DAVOX", Channel: "HHZ"}
	yesterday := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	today := time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC)

	assert.False(t, store.Fresh(id, yesterday), "missing file is not fresh")

	require.NoError(t, store.Store(id, yesterday, testTable()))
	assert.True(t, store.Fresh(id, yesterday))

	require.NoError(t, store.Store(id, today, testTable()))
	assert.False(t, store.Fresh(id, today), "the current day is never fresh")

	// Once the clock rolls past midnight the same file becomes reusable.
	clock.Advance(24 * time.Hour)
	assert.True(t, store.Fresh(id, today))
}

func TestStoreOverwrites(t *testing.T) {
	store, _ := testStore(t)
	id := domain.StreamID{Network: "CH", Station: "DAVOX", Channel: "HHZ"}
	day := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.Store(id, day, testTable()))

	updated := testTable()
	updated.Values[0][0] = -99.0
	require.NoError(t, store.Store(id, day, updated))

	got, err := store.Load(id, day)
	require.NoError(t, err)
	assert.Equal(t, -99.0, got.Values[0][0])
}

func TestLoadRejectsCorruptFile(t *testing.T) {
	store, _ := testStore(t)
	id := domain.StreamID{Network: "CH", Station: "DAVOX", Channel: "HHZ"}
	day := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)

	path := filepath.Join(store.root, id.String(), day.Format(dayLayout)+".psd.json.gz")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("not gzip"), 0o644))

	_, err := store.Load(id, day)
	require.Error(t, err)
}

func TestLoadMissing(t *testing.T) {
	store, _ := testStore(t)
	id := domain.StreamID{Network: "CH", Station: "DAVOX", Channel: "HHZ"}

	_, err := store.Load(id, time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC))
	require.Error(t, err)
}
