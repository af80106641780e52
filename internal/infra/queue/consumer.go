package queue

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/OptimadeHarvester/internal/domain"
	"github.com/OptimadeHarvester/internal/infra/metrics"
	"github.com/segmentio/kafka-go"
)

// messageReader is the part of *kafka.Reader the consumer uses.
type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

type KafkaConsumer struct {
	reader      messageReader
	dlqProducer domain.EventProducer
}

func NewKafkaConsumer(brokers []string, topic string, groupID string, dlqProducer domain.EventProducer) *KafkaConsumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})
	slog.Info("Kafka Consumer initialized", "brokers", brokers, "topic", topic, "group", groupID)
	return &KafkaConsumer{
		reader:      r,
		dlqProducer: dlqProducer,
	}
}

type MessageHandler func(ctx context.Context, structure *domain.Structure) error

// Start reads until the reader fails or ctx is cancelled. Structures the
// handler rejects go to the DLQ.
func (c *KafkaConsumer) Start(ctx context.Context, handler MessageHandler) {
	for {
		m, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() == nil {
				slog.Error("Error reading kafka message", "error", err)
			}
			return
		}

		var structure domain.Structure
		if err := json.Unmarshal(m.Value, &structure); err != nil {
			slog.Error("Error unmarshaling structure", "key", string(m.Key), "error", err)
			continue
		}

		slog.Debug("Received structure from Kafka", "id", structure.ID, "partition", m.Partition)

		if err := handler(ctx, &structure); err != nil {
			slog.Error("Error handling structure event", "id", structure.ID, "error", err)

			if c.dlqProducer != nil {
				slog.Info("Publishing failed event to DLQ", "structure_id", structure.ID)
				if dlqErr := c.dlqProducer.Publish(ctx, &structure); dlqErr != nil {
					slog.Error("Failed to publish to DLQ", "structure_id", structure.ID, "error", dlqErr)
				} else {
					metrics.DLQMessagesPublished.WithLabelValues(structure.Provider).Inc()
				}
			}
		}
	}
}

func (c *KafkaConsumer) Close() error {
	return c.reader.Close()
}
