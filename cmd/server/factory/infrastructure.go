// Package factory holds the constructors cmd/server hands to fx. Each one
// validates the configuration it consumes before building anything.
package factory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/OptimadeHarvester/internal/infra/queue"
	"github.com/OptimadeHarvester/pkg/config"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/fx"
)

const syncConsumerGroup = "engine-sync-group"

// NewMongoClient connects to MongoDB and disconnects on shutdown. Connect does
// not wait for the server; WaitForReady does.
func NewMongoClient(lc fx.Lifecycle, cfg *config.Config) (*mongo.Client, error) {
	if cfg.MongoURI == "" {
		return nil, errors.New("mongo URI not configured")
	}

	opts := options.Client().
		ApplyURI(cfg.MongoURI).
		SetAppName(cfg.ServiceName).
		SetConnectTimeout(cfg.QueryTimeout)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.QueryTimeout)
	defer cancel()
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			slog.Info("Disconnecting from MongoDB")
			return client.Disconnect(ctx)
		},
	})
	return client, nil
}

func requireKafka(cfg *config.Config, topic, name string) error {
	if len(cfg.KafkaBrokers) == 0 {
		return errors.New("kafka brokers not configured")
	}
	if topic == "" {
		return fmt.Errorf("kafka %s topic not configured", name)
	}
	return nil
}

func newProducer(lc fx.Lifecycle, cfg *config.Config, topic, name string) (*queue.KafkaProducer, error) {
	if err := requireKafka(cfg, topic, name); err != nil {
		return nil, err
	}
	producer := queue.NewKafkaProducer(cfg.KafkaBrokers, topic)
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return producer.Close()
		},
	})
	return producer, nil
}

// NewMainKafkaProducer publishes changed structures.
func NewMainKafkaProducer(cfg *config.Config, lc fx.Lifecycle) (*queue.KafkaProducer, error) {
	return newProducer(lc, cfg, cfg.KafkaTopic, "structures")
}

// NewDLQProducer receives structures the engine sync could not store.
func NewDLQProducer(cfg *config.Config, lc fx.Lifecycle) (*queue.KafkaProducer, error) {
	return newProducer(lc, cfg, cfg.KafkaDLQTopic, "DLQ")
}

// NewKafkaConsumer reads structure events for the engine sync.
func NewKafkaConsumer(
	cfg *config.Config,
	dlqProducer *queue.KafkaProducer,
	lc fx.Lifecycle,
) (*queue.KafkaConsumer, error) {
	if err := requireKafka(cfg, cfg.KafkaTopic, "structures"); err != nil {
		return nil, err
	}
	if dlqProducer == nil {
		return nil, errors.New("DLQ producer is nil")
	}

	consumer := queue.NewKafkaConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, syncConsumerGroup, dlqProducer)
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return consumer.Close()
		},
	})
	return consumer, nil
}
