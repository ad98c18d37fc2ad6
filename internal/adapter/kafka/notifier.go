package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/andrewnakas/nbm-to-zarr-data/internal/config"
	"github.com/andrewnakas/nbm-to-zarr-data/internal/pipeline"
)

// Notifier publishes run reports to a Kafka topic so downstream consumers
// (catalog builders, summary generators) learn about new init times without
// polling the store. It implements pipeline.Publisher.
type Notifier struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewNotifier creates a Kafka producer for the configured run-report topic.
func NewNotifier(cfg *config.Config, logger *slog.Logger) *Notifier {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaRunTopic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Notifier{writer: w, logger: logger}
}

// Publish serializes and produces one run report.
func (n *Notifier) Publish(ctx context.Context, report pipeline.RunReport) error {
	msg, err := serializeToMessage(report)
	if err != nil {
		return err
	}
	if err := n.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish run report: %w", err)
	}
	n.logger.Debug("published run report",
		"dataset_id", report.DatasetID,
		"init_time_start", report.InitTimeStart)
	return nil
}

func (n *Notifier) Close() error {
	return n.writer.Close()
}

// serializeToMessage marshals a run report into a Kafka message keyed by
// dataset and init time, so reports for the same run compact together.
func serializeToMessage(report pipeline.RunReport) (kafkago.Message, error) {
	data, err := json.Marshal(report)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize run report: %w", err)
	}
	key := fmt.Sprintf("%s/%s", report.DatasetID, report.InitTimeStart.UTC().Format("2006-01-02T15Z"))
	return kafkago.Message{
		Key:   []byte(key),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "dataset_id", Value: []byte(report.DatasetID)},
			{Key: "completed_at", Value: []byte(report.CompletedAt.Format(time.RFC3339))},
		},
	}, nil
}
