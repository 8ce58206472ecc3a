// Package kafka publishes best-effort broker events to a Kafka/Redpanda
// topic via franz-go. Publishing happens after the Broker lock has
// already been released (spec §5: "no network I/O is performed inside
// the lock") and never affects scheduling outcomes: a publish failure
// is logged and dropped.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/hordebroker/broker/internal/domain"
)

// Producer wraps a franz-go client and implements domain.EventPublisher.
type Producer struct {
	client *kgo.Client
	topic  string
}

// NewProducer constructs a Producer seeded with brokers, publishing to
// topic (internal/config.Config.KafkaTopic). Returns an error when
// brokers or topic is empty, or on client construction failure (e.g.
// malformed broker addresses); it does not dial synchronously.
func NewProducer(brokers []string, topic string) (*Producer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka: no seed brokers provided")
	}
	if topic == "" {
		return nil, fmt.Errorf("kafka: no topic provided")
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.RequestRetries(5),
		kgo.ProducerBatchMaxBytes(262144),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka: new client: %w", err)
	}
	return &Producer{client: client, topic: topic}, nil
}

// Close releases the underlying client.
func (p *Producer) Close() {
	if p != nil && p.client != nil {
		p.client.Close()
	}
}

// PublishGenerationCompleted implements domain.EventPublisher.
func (p *Producer) PublishGenerationCompleted(ctx domain.Context, event domain.GenerationCompletedEvent) {
	if p == nil || p.client == nil {
		return
	}
	body, err := json.Marshal(event)
	if err != nil {
		slog.Error("kafka: marshal generation completed event failed", slog.Any("error", err))
		return
	}
	pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	record := &kgo.Record{Topic: p.topic, Key: []byte(event.PromptID), Value: body}
	p.client.Produce(pctx, record, func(_ *kgo.Record, err error) {
		if err != nil {
			slog.Warn("kafka: publish generation completed failed",
				slog.String("prompt_id", event.PromptID),
				slog.String("procgen_id", event.ProcGenID),
				slog.Any("error", err))
		}
	})
}
