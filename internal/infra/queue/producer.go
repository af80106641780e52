package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/OptimadeHarvester/internal/domain"
	"github.com/segmentio/kafka-go"
)

// messageWriter is the part of *kafka.Writer the producer uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaProducer struct {
	writer messageWriter
}

var _ domain.EventProducer = (*KafkaProducer)(nil)

func NewKafkaProducer(brokers []string, topic string) *KafkaProducer {
	w := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    topic,
		Balancer: &kafka.Hash{},
	}
	slog.Info("Kafka Producer initialized", "brokers", brokers, "topic", topic)
	return &KafkaProducer{writer: w}
}

func (p *KafkaProducer) Publish(ctx context.Context, structure *domain.Structure) error {
	msg, err := structureMessage(structure)
	if err != nil {
		return err
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		slog.Error("Failed to write to kafka", "error", err)
		return err
	}

	slog.Debug("Published structure to Kafka", "id", structure.ID, "provider", structure.Provider)
	return nil
}

// PublishBatch writes all structures in one call.
func (p *KafkaProducer) PublishBatch(ctx context.Context, structures []domain.Structure) error {
	if len(structures) == 0 {
		return nil
	}

	msgs := make([]kafka.Message, 0, len(structures))
	for i := range structures {
		msg, err := structureMessage(&structures[i])
		if err != nil {
			return err
		}
		msgs = append(msgs, msg)
	}

	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		slog.Error("Failed to write batch to kafka", "count", len(msgs), "error", err)
		return err
	}
	return nil
}

func (p *KafkaProducer) Close() error {
	return p.writer.Close()
}

// structureMessage keys by structure id so updates of one structure stay ordered.
func structureMessage(s *domain.Structure) (kafka.Message, error) {
	payload, err := json.Marshal(s)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to encode structure %s: %w", s.ID, err)
	}
	return kafka.Message{
		Key:   []byte(s.ID),
		Value: payload,
	}, nil
}
