package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/seismic-noise-etl/internal/adapter/archive"
	"github.com/couchcryptid/seismic-noise-etl/internal/adapter/csvout"
	"github.com/couchcryptid/seismic-noise-etl/internal/adapter/fdsn"
	httpadapter "github.com/couchcryptid/seismic-noise-etl/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/seismic-noise-etl/internal/adapter/kafka"
	"github.com/couchcryptid/seismic-noise-etl/internal/config"
	"github.com/couchcryptid/seismic-noise-etl/internal/observability"
	"github.com/couchcryptid/seismic-noise-etl/internal/pipeline"
	"github.com/couchcryptid/seismic-noise-etl/internal/spectral"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	client := fdsn.NewClient(cfg.TimeseriesURL, cfg.StationURL, cfg.FDSNTimeout, metrics, logger)
	sens := fdsn.NewCachedSensitivity(client, cfg.SensitivityCacheSize, metrics)

	estimator, err := spectral.New(spectral.Config{
		WindowLength:      cfg.PSDWindow,
		SegmentLength:     cfg.PSDSegment,
		Overlap:           cfg.PSDOverlap,
		SmoothingFraction: cfg.PSDSmoothingFraction,
		BinsPerOctave:     cfg.PSDBinsPerOctave,
		MinFreq:           cfg.PSDMinFreq,
		MaxFreq:           cfg.PSDMaxFreq,
	})
	if err != nil {
		logger.Error("invalid psd configuration", "error", err)
		os.Exit(1)
	}

	store := archive.New(cfg.ArchiveDir, clockwork.NewRealClock(), logger)

	sinks := []pipeline.ResultSink{csvout.NewWriter(cfg.CSVDir, logger)}
	var kafkaWriter *kafkaadapter.Writer
	if cfg.KafkaEnabled {
		kafkaWriter = kafkaadapter.NewWriter(cfg, logger)
		sinks = append(sinks, kafkaWriter)
		logger.Info("kafka sink enabled", "topic", cfg.KafkaSinkTopic, "brokers", cfg.KafkaBrokers)
	} else {
		logger.Info("kafka sink disabled")
	}

	p := pipeline.New(pipeline.Options{
		Streams:      cfg.Streams,
		Bands:        cfg.Bands,
		Unit:         cfg.Unit,
		StartDate:    cfg.StartDate,
		LookbackDays: cfg.LookbackDays,
		PollInterval: cfg.PollInterval,
	}, client, sens, store, estimator, sinks, logger, metrics)

	srv := httpadapter.NewServer(cfg.HTTPAddr, p, statusAdapter{p}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	go func() {
		if err := p.Run(ctx); err != nil {
			logger.Error("pipeline error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if kafkaWriter != nil {
		if err := kafkaWriter.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}

// statusAdapter bridges the pipeline's status map to the HTTP status type.
type statusAdapter struct {
	p *pipeline.Pipeline
}

func (a statusAdapter) Status() map[string]httpadapter.StreamStatus {
	out := make(map[string]httpadapter.StreamStatus)
	for stream, s := range a.p.Status() {
		out[stream] = httpadapter.StreamStatus{
			PSDWindows: s.PSDWindows,
			RMSRows:    s.RMSRows,
			LastUpdate: s.LastUpdate,
		}
	}
	return out
}
