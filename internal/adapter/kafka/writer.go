package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/seismic-noise-etl/internal/config"
	"github.com/couchcryptid/seismic-noise-etl/internal/domain"
)

// Writer produces RMS rows to a Kafka topic.
// It implements pipeline.ResultSink.
type Writer struct {
	writer *kafkago.Writer
	unit   domain.Unit
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured sink topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaSinkTopic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, unit: cfg.Unit, logger: logger}
}

// Publish serializes every row of an RMS table and publishes them in a
// single WriteMessages call, keyed by stream so consumers see each
// stream's rows in order.
func (w *Writer) Publish(ctx context.Context, id domain.StreamID, table domain.RMSTable) error {
	if len(table.Times) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(table.Times))
	for i := range table.Times {
		msg, err := serializeRow(id, w.unit, table, i)
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	return w.writer.WriteMessages(ctx, msgs...)
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// rmsRow is the wire form of one RMS table row. Bands with no data are
// omitted from the map since JSON cannot carry NaN.
type rmsRow struct {
	Stream string             `json:"stream"`
	Time   time.Time          `json:"time"`
	Unit   string             `json:"unit"`
	Bands  map[string]float64 `json:"bands"`
}

func serializeRow(id domain.StreamID, unit domain.Unit, table domain.RMSTable, i int) (kafkago.Message, error) {
	row := rmsRow{
		Stream: id.String(),
		Time:   table.Times[i].UTC(),
		Unit:   unit.String(),
		Bands:  make(map[string]float64, len(table.Labels)),
	}
	for j, label := range table.Labels {
		if v := table.Values[i][j]; !math.IsNaN(v) {
			row.Bands[label] = v
		}
	}
	data, err := json.Marshal(row)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize rms row: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(id.String()),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "stream", Value: []byte(id.String())},
			{Key: "unit", Value: []byte(unit.String())},
			{Key: "processed_at", Value: []byte(domain.Clock().Now().UTC().Format(time.RFC3339))},
		},
	}, nil
}
