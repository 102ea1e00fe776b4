// Package producer publishes gameplay event payloads to Kafka. It is used
// by the load generator; the tracker itself only consumes.
package producer

import (
	"context"

	"github.com/segmentio/kafka-go"
)

// ProduceResult holds the outcome of an asynchronous publish.
type ProduceResult struct {
	Error error
}

// Producer is the publishing contract.
type Producer interface {
	// PublishAsync sends a payload without blocking. The returned channel
	// receives the result when the write completes.
	PublishAsync(ctx context.Context, key, value []byte) <-chan ProduceResult

	Close() error
}

// KafkaProducer implements Producer over a kafka-go writer.
type KafkaProducer struct {
	writer *kafka.Writer
}

// Config holds Kafka producer configuration.
type Config struct {
	Brokers []string
	Topic   string
}

func NewKafkaProducer(cfg Config) *KafkaProducer {
	writer := &kafka.Writer{
		Addr:     kafka.TCP(cfg.Brokers...),
		Topic:    cfg.Topic,
		Balancer: &kafka.LeastBytes{},
	}

	return &KafkaProducer{writer: writer}
}

// PublishAsync sends a message in a background goroutine. Keying by player
// id keeps one player's events ordered within a partition.
func (p *KafkaProducer) PublishAsync(ctx context.Context, key, value []byte) <-chan ProduceResult {
	resultChan := make(chan ProduceResult, 1)

	msg := kafka.Message{
		Key:   key,
		Value: value,
	}

	go func() {
		err := p.writer.WriteMessages(ctx, msg)
		resultChan <- ProduceResult{Error: err}
		close(resultChan)
	}()

	return resultChan
}

func (p *KafkaProducer) Close() error {
	return p.writer.Close()
}
