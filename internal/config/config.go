package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/seismic-noise-etl/internal/domain"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	Streams []domain.StreamID
	Bands   []domain.Band
	Unit    domain.Unit

	// Date range: days from StartDate (inclusive) through today. When
	// START_DATE is unset, the range is the trailing LOOKBACK_DAYS days.
	StartDate    time.Time
	LookbackDays int

	// FDSN data provider endpoints.
	TimeseriesURL        string
	StationURL           string
	FDSNTimeout          time.Duration
	SensitivityCacheSize int

	// PSD estimation.
	PSDWindow            time.Duration
	PSDSegment           time.Duration
	PSDOverlap           float64
	PSDSmoothingFraction int
	PSDBinsPerOctave     int
	PSDMinFreq           float64
	PSDMaxFreq           float64

	// Output.
	ArchiveDir string
	CSVDir     string

	// Kafka sink configuration (feature-flagged via KAFKA_ENABLED /
	// KAFKA_SINK_TOPIC).
	KafkaBrokers   []string
	KafkaSinkTopic string
	KafkaEnabled   bool

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
	PollInterval    time.Duration
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	streams, err := domain.ParseStreamIDs(envOrDefault("STREAMS", "CH.DAVOX..HHZ"))
	if err != nil {
		return nil, fmt.Errorf("invalid STREAMS: %w", err)
	}
	bands, err := domain.ParseBands(envOrDefault("BANDS", "4.0-14.0"))
	if err != nil {
		return nil, fmt.Errorf("invalid BANDS: %w", err)
	}
	unit, err := domain.ParseUnit(envOrDefault("UNIT", "displacement"))
	if err != nil {
		return nil, fmt.Errorf("invalid UNIT: %w", err)
	}

	startDate, err := parseOptionalDate("START_DATE")
	if err != nil {
		return nil, err
	}
	lookbackDays, err := parsePositiveInt("LOOKBACK_DAYS", 7)
	if err != nil {
		return nil, err
	}

	fdsnTimeout, err := parsePositiveDuration("FDSN_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}
	cacheSize, err := parsePositiveInt("SENSITIVITY_CACHE_SIZE", 128)
	if err != nil {
		return nil, err
	}

	psdWindow, err := parsePositiveDuration("PSD_WINDOW", 30*time.Minute)
	if err != nil {
		return nil, err
	}
	psdSegment, err := parsePositiveDuration("PSD_SEGMENT", time.Minute)
	if err != nil {
		return nil, err
	}
	psdOverlap, err := parseFloat("PSD_OVERLAP", 0.5)
	if err != nil {
		return nil, err
	}
	psdSmoothing, err := parsePositiveInt("PSD_SMOOTHING_FRACTION", 1)
	if err != nil {
		return nil, err
	}
	psdBins, err := parsePositiveInt("PSD_BINS_PER_OCTAVE", 8)
	if err != nil {
		return nil, err
	}
	psdMinFreq, err := parseFloat("PSD_MIN_FREQ", 0.1)
	if err != nil {
		return nil, err
	}
	psdMaxFreq, err := parseFloat("PSD_MAX_FREQ", 20)
	if err != nil {
		return nil, err
	}

	shutdownTimeout, err := parsePositiveDuration("SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}
	pollInterval, err := parsePositiveDuration("POLL_INTERVAL", time.Hour)
	if err != nil {
		return nil, err
	}

	kafkaTopic := os.Getenv("KAFKA_SINK_TOPIC")
	kafkaEnabled := kafkaTopic != ""
	if v := os.Getenv("KAFKA_ENABLED"); v != "" {
		kafkaEnabled = v == "true"
	}

	cfg := &Config{
		Streams:      streams,
		Bands:        bands,
		Unit:         unit,
		StartDate:    startDate,
		LookbackDays: lookbackDays,

		TimeseriesURL:        envOrDefault("FDSN_TIMESERIES_URL", "https://service.iris.edu/irisws/timeseries/1/query"),
		StationURL:           envOrDefault("FDSN_STATION_URL", "https://service.iris.edu/fdsnws/station/1/query"),
		FDSNTimeout:          fdsnTimeout,
		SensitivityCacheSize: cacheSize,

		PSDWindow:            psdWindow,
		PSDSegment:           psdSegment,
		PSDOverlap:           psdOverlap,
		PSDSmoothingFraction: psdSmoothing,
		PSDBinsPerOctave:     psdBins,
		PSDMinFreq:           psdMinFreq,
		PSDMaxFreq:           psdMaxFreq,

		ArchiveDir: envOrDefault("ARCHIVE_DIR", "data/psd"),
		CSVDir:     envOrDefault("CSV_DIR", "data/rms"),

		KafkaBrokers:   parseBrokers(envOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSinkTopic: kafkaTopic,
		KafkaEnabled:   kafkaEnabled,

		HTTPAddr:        envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,
		PollInterval:    pollInterval,
	}

	if cfg.PSDOverlap < 0 || cfg.PSDOverlap >= 1 {
		return nil, errors.New("PSD_OVERLAP must be in [0, 1)")
	}
	if cfg.PSDMaxFreq <= cfg.PSDMinFreq {
		return nil, errors.New("PSD_MAX_FREQ must exceed PSD_MIN_FREQ")
	}
	if psdSegment > psdWindow {
		return nil, errors.New("PSD_SEGMENT must not exceed PSD_WINDOW")
	}
	if cfg.KafkaEnabled && cfg.KafkaSinkTopic == "" {
		return nil, errors.New("KAFKA_ENABLED is true but KAFKA_SINK_TOPIC is not set")
	}
	if cfg.KafkaEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required when the Kafka sink is enabled")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseBrokers(s string) []string {
	var brokers []string
	for _, b := range strings.Split(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

func parseOptionalDate(key string) (time.Time, error) {
	s := os.Getenv(key)
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s: %w", key, err)
	}
	return t, nil
}

func parsePositiveInt(key string, fallback int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s: want a positive integer, got %q", key, s)
	}
	return n, nil
}

func parsePositiveDuration(key string, fallback time.Duration) (time.Duration, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: want a positive duration, got %q", key, s)
	}
	return d, nil
}

func parseFloat(key string, fallback float64) (float64, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}
