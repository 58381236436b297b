// Package pipeline orchestrates the daily fetch-estimate-reduce loop: pull
// raw waveforms per stream-day, estimate PSDs (reusing archived days), merge
// them into a per-stream table, reduce to band RMS, and publish the result.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/seismic-noise-etl/internal/domain"
	"github.com/couchcryptid/seismic-noise-etl/internal/observability"
)

// WaveformSource fetches one stream-day of raw samples.
type WaveformSource interface {
	FetchWaveform(ctx context.Context, id domain.StreamID, day time.Time) (domain.Waveform, error)
}

// SensitivitySource resolves the instrument sensitivity for a stream-day.
type SensitivitySource interface {
	FetchSensitivity(ctx context.Context, id domain.StreamID, day time.Time) (float64, error)
}

// PSDArchive caches per-day PSD tables between runs.
type PSDArchive interface {
	Fresh(id domain.StreamID, day time.Time) bool
	Load(id domain.StreamID, day time.Time) (domain.PSDTable, error)
	Store(id domain.StreamID, day time.Time, table domain.PSDTable) error
}

// Estimator turns a day of samples into a PSD table.
type Estimator interface {
	Estimate(wf domain.Waveform) (domain.PSDTable, error)
}

// ResultSink receives a stream's full RMS table after each cycle.
type ResultSink interface {
	Publish(ctx context.Context, id domain.StreamID, table domain.RMSTable) error
}

// StreamStatus summarizes what the last cycle produced for one stream.
type StreamStatus struct {
	PSDWindows int
	RMSRows    int
	LastUpdate time.Time
}

// Pipeline runs the fetch-estimate-reduce-publish cycle for a set of streams.
type Pipeline struct {
	streams      []domain.StreamID
	bands        []domain.Band
	unit         domain.Unit
	startDate    time.Time
	lookbackDays int
	pollInterval time.Duration

	source    WaveformSource
	sens      SensitivitySource
	archive   PSDArchive
	estimator Estimator
	sinks     []ResultSink

	logger  *slog.Logger
	metrics *observability.Metrics
	ready   atomic.Bool

	mu     sync.Mutex
	status map[string]StreamStatus
}

// Options carries the stream set and date window for New.
type Options struct {
	Streams      []domain.StreamID
	Bands        []domain.Band
	Unit         domain.Unit
	StartDate    time.Time // zero means trailing LookbackDays
	LookbackDays int
	PollInterval time.Duration
}

// New creates a Pipeline with the given stages and observability.
func New(opts Options, source WaveformSource, sens SensitivitySource, archive PSDArchive, est Estimator, sinks []ResultSink, logger *slog.Logger, metrics *observability.Metrics) *Pipeline {
	return &Pipeline{
		streams:      opts.Streams,
		bands:        opts.Bands,
		unit:         opts.Unit,
		startDate:    opts.StartDate,
		lookbackDays: opts.LookbackDays,
		pollInterval: opts.PollInterval,
		source:       source,
		sens:         sens,
		archive:      archive,
		estimator:    est,
		sinks:        sinks,
		logger:       logger,
		metrics:      metrics,
		status:       make(map[string]StreamStatus),
	}
}

// CheckReadiness returns nil once the pipeline has published at least one
// RMS table, or an error describing why the service is not yet ready.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("pipeline has not published any results yet")
	}
	return nil
}

// Status returns a copy of the per-stream progress map.
func (p *Pipeline) Status() map[string]StreamStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]StreamStatus, len(p.status))
	for k, v := range p.status {
		out[k] = v
	}
	return out
}

// Run executes cycles until the context is cancelled.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("pipeline started",
		"streams", len(p.streams),
		"bands", len(p.bands),
		"unit", p.unit.String(),
	)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	// Exponential backoff: start at 200ms, double each retry, cap at 30s.
	// Only used when a cycle produces nothing at all, which means the data
	// provider is unreachable rather than a single day being gappy.
	backoff := 200 * time.Millisecond
	maxBackoff := 30 * time.Second

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("pipeline stopping", "reason", ctx.Err())
			return nil
		default:
		}

		processed, failed := p.runCycle(ctx)
		if ctx.Err() != nil {
			return nil
		}

		if processed == 0 && failed > 0 {
			p.logger.Warn("cycle produced no data", "failed_days", failed, "backoff", backoff)
			if !sleepWithContext(ctx, backoff) {
				return nil
			}
			backoff = nextBackoff(backoff, maxBackoff)
			continue
		}

		backoff = 200 * time.Millisecond
		if !sleepWithContext(ctx, p.pollInterval) {
			return nil
		}
	}
}

// runCycle processes every stream once. Returns the number of stream-days
// that yielded a PSD table and the number that failed.
func (p *Pipeline) runCycle(ctx context.Context) (processed, failed int) {
	start := time.Now()
	acc := domain.NewAccumulator()

	for _, id := range p.streams {
		ok, bad := p.processStream(ctx, acc, id)
		processed += ok
		failed += bad
		if ctx.Err() != nil {
			return processed, failed
		}
	}

	p.metrics.CycleDuration.Observe(time.Since(start).Seconds())
	return processed, failed
}

// processStream collects the stream's window of days into the accumulator,
// reduces the merged table to band RMS, and publishes it. A day that fails
// is logged and skipped so one gap never stalls the rest of the window.
func (p *Pipeline) processStream(ctx context.Context, acc *domain.Accumulator, id domain.StreamID) (processed, failed int) {
	for _, day := range p.window() {
		if ctx.Err() != nil {
			return processed, failed
		}
		table, ok := p.dayTable(ctx, id, day)
		if !ok {
			failed++
			continue
		}
		if err := acc.Merge(id, table); err != nil {
			p.logger.Warn("merge failed, skipping day",
				"stream", id.String(), "day", day.Format("2006-01-02"), "error", err)
			failed++
			continue
		}
		processed++
	}

	merged, ok := acc.Table(id)
	if !ok || merged.Empty() {
		p.logger.Warn("no psd data for stream", "stream", id.String())
		return processed, failed
	}

	rms, err := domain.ComputeRMS(merged, p.bands, p.unit)
	if err != nil {
		p.logger.Error("rms computation failed", "stream", id.String(), "error", err)
		return processed, failed
	}
	p.metrics.RMSRows.Add(float64(len(rms.Times)))

	published := false
	for _, sink := range p.sinks {
		if err := sink.Publish(ctx, id, rms); err != nil {
			p.logger.Error("publish failed", "stream", id.String(), "error", err)
			continue
		}
		published = true
	}
	if published {
		p.ready.Store(true)
		p.recordStatus(id, merged, rms)
	}
	return processed, failed
}

// dayTable returns the PSD table for a stream-day, from the archive when the
// day is fresh and via fetch-and-estimate otherwise.
func (p *Pipeline) dayTable(ctx context.Context, id domain.StreamID, day time.Time) (domain.PSDTable, bool) {
	dayStr := day.Format("2006-01-02")

	if p.archive.Fresh(id, day) {
		table, err := p.archive.Load(id, day)
		if err == nil {
			p.metrics.DaysSkipped.Inc()
			return table, true
		}
		p.logger.Warn("archive read failed, recomputing",
			"stream", id.String(), "day", dayStr, "error", err)
	}

	sens, err := p.sens.FetchSensitivity(ctx, id, day)
	if err != nil {
		p.logger.Warn("sensitivity fetch failed, skipping day",
			"stream", id.String(), "day", dayStr, "error", err)
		p.metrics.DaysFailed.Inc()
		return domain.PSDTable{}, false
	}

	wf, err := p.source.FetchWaveform(ctx, id, day)
	if err != nil {
		p.logger.Warn("waveform fetch failed, skipping day",
			"stream", id.String(), "day", dayStr, "error", err)
		p.metrics.DaysFailed.Inc()
		return domain.PSDTable{}, false
	}
	wf.Sensitivity = sens

	table, err := p.estimator.Estimate(wf)
	if err != nil {
		p.logger.Warn("psd estimation failed, skipping day",
			"stream", id.String(), "day", dayStr, "error", err)
		p.metrics.DaysFailed.Inc()
		return domain.PSDTable{}, false
	}
	p.metrics.PSDWindows.Add(float64(len(table.Times)))

	if err := p.archive.Store(id, day, table); err != nil {
		// The table is still good for this cycle, only the cache write failed.
		p.logger.Warn("archive write failed",
			"stream", id.String(), "day", dayStr, "error", err)
	}

	p.metrics.DaysProcessed.Inc()
	return table, true
}

// window returns the UTC midnights from the start of the date range through
// today, inclusive.
func (p *Pipeline) window() []time.Time {
	today := midnight(domain.Clock().Now())
	start := p.startDate
	if start.IsZero() {
		start = today.AddDate(0, 0, -p.lookbackDays)
	} else {
		start = midnight(start)
	}

	var days []time.Time
	for d := start; !d.After(today); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

func (p *Pipeline) recordStatus(id domain.StreamID, psd domain.PSDTable, rms domain.RMSTable) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status[id.String()] = StreamStatus{
		PSDWindows: len(psd.Times),
		RMSRows:    len(rms.Times),
		LastUpdate: domain.Clock().Now().UTC(),
	}
}

func midnight(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
