// Package fdsn fetches day-long waveform segments and instrument metadata
// from FDSN-style web services (IRIS timeseries ASCII, fdsnws-station text).
package fdsn

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/seismic-noise-etl/internal/domain"
	"github.com/couchcryptid/seismic-noise-etl/internal/observability"
)

const (
	endpointTimeseries = "timeseries"
	endpointStation    = "station"

	queryTimeLayout = "2006-01-02T15:04:05"
)

// Client talks to the waveform and station web services.
type Client struct {
	httpClient    *http.Client
	timeseriesURL string
	stationURL    string
	metrics       *observability.Metrics
	logger        *slog.Logger
}

// NewClient creates an FDSN web service client.
func NewClient(timeseriesURL, stationURL string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		timeseriesURL: timeseriesURL,
		stationURL:    stationURL,
		metrics:       metrics,
		logger:        logger,
	}
}

// FetchWaveform downloads one UTC day of samples for a stream. The returned
// waveform has no sensitivity attached; see FetchSensitivity.
func (c *Client) FetchWaveform(ctx context.Context, id domain.StreamID, day time.Time) (domain.Waveform, error) {
	params := url.Values{
		"net":       {id.Network},
		"sta":       {id.Station},
		"loc":       {locOrPlaceholder(id.Location)},
		"cha":       {id.Channel},
		"starttime": {dayStart(day).Format(queryTimeLayout)},
		"endtime":   {dayStart(day).Add(24 * time.Hour).Format(queryTimeLayout)},
		"format":    {"ascii"},
	}

	body, err := c.doRequest(ctx, endpointTimeseries, c.timeseriesURL+"?"+params.Encode())
	if err != nil {
		return domain.Waveform{}, err
	}
	defer body.Close()

	wf, err := parseSLIST(body)
	if err != nil {
		return domain.Waveform{}, fmt.Errorf("fetch waveform %s %s: %w", id, day.Format("2006-01-02"), err)
	}
	wf.Stream = id
	c.logger.Debug("waveform fetched",
		"stream", id.String(),
		"day", day.Format("2006-01-02"),
		"samples", len(wf.Samples),
		"rate", wf.SampleRate,
	)
	return wf, nil
}

// FetchSensitivity looks up the total instrument gain (counts per m/s²)
// valid for the given stream on the given day.
func (c *Client) FetchSensitivity(ctx context.Context, id domain.StreamID, day time.Time) (float64, error) {
	params := url.Values{
		"net":       {id.Network},
		"sta":       {id.Station},
		"loc":       {locOrPlaceholder(id.Location)},
		"cha":       {id.Channel},
		"starttime": {dayStart(day).Format(queryTimeLayout)},
		"endtime":   {dayStart(day).Add(24 * time.Hour).Format(queryTimeLayout)},
		"level":     {"channel"},
		"format":    {"text"},
	}

	body, err := c.doRequest(ctx, endpointStation, c.stationURL+"?"+params.Encode())
	if err != nil {
		return 0, err
	}
	defer body.Close()

	scale, err := parseStationText(body)
	if err != nil {
		return 0, fmt.Errorf("fetch sensitivity %s %s: %w", id, day.Format("2006-01-02"), err)
	}
	return scale, nil
}

func (c *Client) doRequest(ctx context.Context, endpoint, fullURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.FetchDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		c.metrics.FetchRequests.WithLabelValues(endpoint, "error").Inc()
		return nil, fmt.Errorf("%s request: %w", endpoint, err)
	}

	if resp.StatusCode == http.StatusNoContent {
		resp.Body.Close()
		c.metrics.FetchRequests.WithLabelValues(endpoint, "empty").Inc()
		return nil, fmt.Errorf("%s request: no data available", endpoint)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		c.metrics.FetchRequests.WithLabelValues(endpoint, "error").Inc()
		return nil, fmt.Errorf("%s request: status %d: %s", endpoint, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	c.metrics.FetchRequests.WithLabelValues(endpoint, "success").Inc()
	return resp.Body, nil
}

// parseSLIST reads the IRIS timeseries ASCII sample-list format: a
// TIMESERIES header line followed by whitespace-separated sample values.
//
//	TIMESERIES CH_DAVOX__HHZ_R, 8640000 samples, 100 sps, 2026-03-15T00:00:00.000000, SLIST, FLOAT, COUNTS
func parseSLIST(r io.Reader) (domain.Waveform, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var wf domain.Waveform
	headerSeen := false
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "TIMESERIES") {
			if headerSeen {
				return domain.Waveform{}, fmt.Errorf("parse slist: multiple TIMESERIES blocks (gap in data)")
			}
			headerSeen = true
			rate, start, count, err := parseSLISTHeader(line)
			if err != nil {
				return domain.Waveform{}, err
			}
			wf.SampleRate = rate
			wf.Start = start
			wf.Samples = make([]float64, 0, count)
			continue
		}
		if !headerSeen {
			return domain.Waveform{}, fmt.Errorf("parse slist: data before TIMESERIES header")
		}
		for _, tok := range strings.Fields(line) {
			v, err := strconv.ParseFloat(tok, 64)
			if err != nil {
				return domain.Waveform{}, fmt.Errorf("parse slist: bad sample %q: %w", tok, err)
			}
			wf.Samples = append(wf.Samples, v)
		}
	}
	if err := scanner.Err(); err != nil {
		return domain.Waveform{}, fmt.Errorf("parse slist: %w", err)
	}
	if !headerSeen {
		return domain.Waveform{}, fmt.Errorf("parse slist: missing TIMESERIES header")
	}
	if len(wf.Samples) == 0 {
		return domain.Waveform{}, fmt.Errorf("parse slist: no samples")
	}
	return wf, nil
}

func parseSLISTHeader(line string) (rate float64, start time.Time, count int, err error) {
	fields := strings.Split(line, ",")
	if len(fields) < 4 {
		return 0, time.Time{}, 0, fmt.Errorf("parse slist header: %d fields in %q", len(fields), line)
	}

	countStr := strings.TrimSuffix(strings.TrimSpace(fields[1]), " samples")
	count, err = strconv.Atoi(countStr)
	if err != nil {
		return 0, time.Time{}, 0, fmt.Errorf("parse slist header: sample count %q: %w", fields[1], err)
	}

	rateStr := strings.TrimSuffix(strings.TrimSpace(fields[2]), " sps")
	rate, err = strconv.ParseFloat(rateStr, 64)
	if err != nil || rate <= 0 {
		return 0, time.Time{}, 0, fmt.Errorf("parse slist header: sample rate %q", fields[2])
	}

	startStr := strings.TrimSpace(fields[3])
	start, err = time.ParseInLocation("2006-01-02T15:04:05.000000", startStr, time.UTC)
	if err != nil {
		start, err = time.ParseInLocation(queryTimeLayout, startStr, time.UTC)
	}
	if err != nil {
		return 0, time.Time{}, 0, fmt.Errorf("parse slist header: start time %q: %w", fields[3], err)
	}

	return rate, start, count, nil
}

// parseStationText extracts the Scale column from fdsnws-station
// pipe-separated channel-level output, e.g.
//
//	#Network|Station|Location|Channel|...|SensorDescription|Scale|ScaleFreq|ScaleUnits|SampleRate|StartTime|EndTime
//	CH|DAVOX||HHZ|...|STS-2|627615000.0|1.0|M/S|100.0|2002-06-20T00:00:00|
func parseStationText(r io.Reader) (float64, error) {
	const scaleField = 11

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, "|")
		if len(fields) <= scaleField {
			return 0, fmt.Errorf("parse station text: %d fields in %q", len(fields), line)
		}
		scale, err := strconv.ParseFloat(strings.TrimSpace(fields[scaleField]), 64)
		if err != nil || scale <= 0 {
			return 0, fmt.Errorf("parse station text: scale %q", fields[scaleField])
		}
		return scale, nil
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("parse station text: %w", err)
	}
	return 0, fmt.Errorf("parse station text: no channel rows")
}

// locOrPlaceholder renders an empty location code as the "--" placeholder
// FDSN query parameters require.
func locOrPlaceholder(loc string) string {
	if loc == "" {
		return "--"
	}
	return loc
}

func dayStart(day time.Time) time.Time {
	y, m, d := day.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
