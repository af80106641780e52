package app

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/segmentio/kafka-go"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// ReadinessCheck reports whether one dependency is usable.
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// ReadinessWaiter polls each check in turn until it passes. There is no
// overall timeout: dependencies that start slowly delay startup instead of
// crashing it; cancel ctx to give up.
type ReadinessWaiter struct {
	checks   []ReadinessCheck
	interval time.Duration
}

func NewReadinessWaiter(interval time.Duration, checks ...ReadinessCheck) *ReadinessWaiter {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &ReadinessWaiter{checks: checks, interval: interval}
}

func (w *ReadinessWaiter) WaitForDependencies(ctx context.Context) error {
	for _, c := range w.checks {
		if err := w.waitFor(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

func (w *ReadinessWaiter) waitFor(ctx context.Context, c ReadinessCheck) error {
	slog.Info("Waiting for " + c.Name + "...")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s not ready: %w", c.Name, ctx.Err())
		case <-ticker.C:
			if err := c.Check(ctx); err != nil {
				slog.Warn(c.Name+" not ready yet", "error", err)
				continue
			}
			slog.Info(c.Name + " is ready")
			return nil
		}
	}
}

// MongoCheck pings the primary.
func MongoCheck(client *mongo.Client) ReadinessCheck {
	return ReadinessCheck{
		Name: "MongoDB",
		Check: func(ctx context.Context) error {
			return client.Ping(ctx, readpref.Primary())
		},
	}
}

// KafkaCheck dials every broker and requires topic to have partitions.
func KafkaCheck(brokers []string, topic string) ReadinessCheck {
	return ReadinessCheck{
		Name: "Kafka",
		Check: func(ctx context.Context) error {
			if len(brokers) == 0 {
				return fmt.Errorf("no brokers configured")
			}
			for _, broker := range brokers {
				conn, err := net.DialTimeout("tcp", broker, 2*time.Second)
				if err != nil {
					return fmt.Errorf("failed to connect to broker %s: %w", broker, err)
				}
				_ = conn.Close()
			}

			conn, err := kafka.DialContext(ctx, "tcp", brokers[0])
			if err != nil {
				return fmt.Errorf("failed to dial kafka: %w", err)
			}
			defer func() {
				_ = conn.Close()
			}()

			partitions, err := conn.ReadPartitions(topic)
			if err != nil {
				return fmt.Errorf("failed to read partitions for topic %s: %w", topic, err)
			}
			if len(partitions) == 0 {
				return fmt.Errorf("topic %s has no partitions", topic)
			}
			return nil
		},
	}
}
