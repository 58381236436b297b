package fdsn

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/seismic-noise-etl/internal/domain"
	"github.com/couchcryptid/seismic-noise-etl/internal/observability"
)

const slistFixture = `TIMESERIES CH_DAVOX__HHZ_R, 12 samples, 4 sps, 2026-03-15T00:00:00.000000, SLIST, FLOAT, COUNTS
      101.5  -102.25  103.0  -104.5  105.0  -106.75
      107.0  -108.0  109.25  -110.0  111.5  -112.0
`

const stationFixture = `#Network|Station|Location|Channel|Latitude|Longitude|Elevation|Depth|Azimuth|Dip|SensorDescription|Scale|ScaleFreq|ScaleUnits|SampleRate|StartTime|EndTime
CH|DAVOX||HHZ|46.78|8.12|1830.0|0.0|0.0|-90.0|Streckeisen STS-2|627615000.0|1.0|M/S|100.0|2002-06-20T00:00:00|
`

var (
	testStream = domain.StreamID{Network: "CH", Station: "DAVOX", Channel: "HHZ"}
	testDay    = time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
)

func testMetrics() *observability.Metrics {
	return observability.NewMetricsForTesting()
}

func testClient(timeseriesURL, stationURL string) *Client {
	return &Client{
		httpClient:    &http.Client{Timeout: 5 * time.Second},
		timeseriesURL: timeseriesURL,
		stationURL:    stationURL,
		metrics:       testMetrics(),
		logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestClient_FetchWaveform_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "CH", r.URL.Query().Get("net"))
		assert.Equal(t, "DAVOX", r.URL.Query().Get("sta"))
		assert.Equal(t, "--", r.URL.Query().Get("loc"))
		assert.Equal(t, "HHZ", r.URL.Query().Get("cha"))
		assert.Equal(t, "2026-03-15T00:00:00", r.URL.Query().Get("starttime"))
		assert.Equal(t, "2026-03-16T00:00:00", r.URL.Query().Get("endtime"))
		assert.Equal(t, "ascii", r.URL.Query().Get("format"))
		_, err := io.WriteString(w, slistFixture)
		require.NoError(t, err)
	}))
	defer srv.Close()

	c := testClient(srv.URL, "")
	wf, err := c.FetchWaveform(context.Background(), testStream, testDay)
	require.NoError(t, err)

	assert.Equal(t, testStream, wf.Stream)
	assert.Equal(t, 4.0, wf.SampleRate)
	assert.Equal(t, testDay, wf.Start)
	require.Len(t, wf.Samples, 12)
	assert.Equal(t, 101.5, wf.Samples[0])
	assert.Equal(t, -112.0, wf.Samples[11])
}

func TestClient_FetchWaveform_NoContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := testClient(srv.URL, "")
	_, err := c.FetchWaveform(context.Background(), testStream, testDay)
	assert.ErrorContains(t, err, "no data available")
}

func TestClient_FetchWaveform_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "something broke", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := testClient(srv.URL, "")
	_, err := c.FetchWaveform(context.Background(), testStream, testDay)
	assert.ErrorContains(t, err, "status 500")
}

func TestClient_FetchSensitivity_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "channel", r.URL.Query().Get("level"))
		assert.Equal(t, "text", r.URL.Query().Get("format"))
		_, err := io.WriteString(w, stationFixture)
		require.NoError(t, err)
	}))
	defer srv.Close()

	c := testClient("", srv.URL)
	scale, err := c.FetchSensitivity(context.Background(), testStream, testDay)
	require.NoError(t, err)
	assert.Equal(t, 627615000.0, scale)
}

func TestParseSLIST(t *testing.T) {
	t.Run("multiple blocks rejected", func(t *testing.T) {
		gappy := slistFixture + slistFixture
		_, err := parseSLIST(strings.NewReader(gappy))
		assert.ErrorContains(t, err, "multiple TIMESERIES")
	})

	t.Run("missing header", func(t *testing.T) {
		_, err := parseSLIST(strings.NewReader("1.0 2.0 3.0\n"))
		assert.ErrorContains(t, err, "before TIMESERIES header")
	})

	t.Run("empty body", func(t *testing.T) {
		_, err := parseSLIST(strings.NewReader(""))
		assert.ErrorContains(t, err, "missing TIMESERIES header")
	})

	t.Run("bad sample", func(t *testing.T) {
		body := "TIMESERIES X_Y__Z_R, 2 samples, 4 sps, 2026-03-15T00:00:00.000000, SLIST, FLOAT, COUNTS\n1.0 oops\n"
		_, err := parseSLIST(strings.NewReader(body))
		assert.ErrorContains(t, err, `bad sample "oops"`)
	})

	t.Run("header without fractional seconds", func(t *testing.T) {
		body := "TIMESERIES X_Y__Z_R, 2 samples, 4 sps, 2026-03-15T06:30:00, SLIST, FLOAT, COUNTS\n1.0 2.0\n"
		wf, err := parseSLIST(strings.NewReader(body))
		require.NoError(t, err)
		assert.Equal(t, time.Date(2026, 3, 15, 6, 30, 0, 0, time.UTC), wf.Start)
	})
}

func TestParseStationText(t *testing.T) {
	t.Run("no rows", func(t *testing.T) {
		_, err := parseStationText(strings.NewReader("#Network|Station\n"))
		assert.ErrorContains(t, err, "no channel rows")
	})

	t.Run("short row", func(t *testing.T) {
		_, err := parseStationText(strings.NewReader("CH|DAVOX||HHZ\n"))
		assert.ErrorContains(t, err, "fields")
	})

	t.Run("non-numeric scale", func(t *testing.T) {
		row := "CH|DAVOX||HHZ|46.78|8.12|1830.0|0.0|0.0|-90.0|STS-2|n/a|1.0|M/S|100.0|2002-06-20T00:00:00|\n"
		_, err := parseStationText(strings.NewReader(row))
		assert.ErrorContains(t, err, "scale")
	})
}

func TestCachedSensitivity(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		_, err := io.WriteString(w, stationFixture)
		require.NoError(t, err)
	}))
	defer srv.Close()

	cached := NewCachedSensitivity(testClient("", srv.URL), 8, testMetrics())

	for i := 0; i < 3; i++ {
		scale, err := cached.FetchSensitivity(context.Background(), testStream, testDay.AddDate(0, 0, i))
		require.NoError(t, err)
		assert.Equal(t, 627615000.0, scale)
	}
	// Same stream and year: one upstream call regardless of day.
	assert.Equal(t, 1, calls)

	_, err := cached.FetchSensitivity(context.Background(), testStream, testDay.AddDate(1, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestCachedSensitivity_Eviction(t *testing.T) {
	calls := map[string]int{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls[r.URL.Query().Get("sta")]++
		_, err := io.WriteString(w, stationFixture)
		require.NoError(t, err)
	}))
	defer srv.Close()

	cached := NewCachedSensitivity(testClient("", srv.URL), 1, testMetrics())
	other := domain.StreamID{Network: "CH", Station: "SULZ", Channel: "HHZ"}

	_, err := cached.FetchSensitivity(context.Background(), testStream, testDay)
	require.NoError(t, err)
	_, err = cached.FetchSensitivity(context.Background(), other, testDay)
	require.NoError(t, err)
	// testStream was evicted by the one-entry cap, so it refetches.
	_, err = cached.FetchSensitivity(context.Background(), testStream, testDay)
	require.NoError(t, err)

	assert.Equal(t, 2, calls["DAVOX"])
	assert.Equal(t, 1, calls["SULZ"])
}
