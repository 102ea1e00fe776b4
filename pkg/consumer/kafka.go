// Package consumer reads gameplay event payloads from Kafka.
package consumer

import (
	"context"
	"fmt"

	"github.com/segmentio/kafka-go"
)

// Message is one raw event payload fetched from the bus. Raw is kept so the
// offset can be committed after the event has been applied.
type Message struct {
	Key    []byte
	Value  []byte
	Offset int64
	Topic  string
	Raw    kafka.Message
}

// Consumer is the event intake contract the tracker loop runs against.
type Consumer interface {
	// Consume returns a channel of messages and a channel of fatal errors.
	Consume(ctx context.Context) (<-chan Message, <-chan error)

	// Commit marks the message's offset as processed.
	Commit(ctx context.Context, msg Message) error

	Close() error
}

// KafkaConsumer implements Consumer over a kafka-go reader group.
type KafkaConsumer struct {
	reader *kafka.Reader
}

// Config holds Kafka consumer configuration.
type Config struct {
	Brokers []string
	Topic   string
	GroupID string
}

func NewKafkaConsumer(cfg Config) *KafkaConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 10e3,
		MaxBytes: 10e6,
	})

	return &KafkaConsumer{reader: reader}
}

// Consume starts the fetch loop. Both channels close when the context is
// canceled or a fatal fetch error occurs.
func (c *KafkaConsumer) Consume(ctx context.Context) (<-chan Message, <-chan error) {
	msgChan := make(chan Message)
	errChan := make(chan error, 1)

	go func() {
		defer close(msgChan)
		defer close(errChan)

		for {
			m, err := c.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				errChan <- fmt.Errorf("failed to fetch message: %w", err)
				return
			}

			select {
			case msgChan <- Message{
				Key:    m.Key,
				Value:  m.Value,
				Offset: m.Offset,
				Topic:  m.Topic,
				Raw:    m,
			}:
			case <-ctx.Done():
				return
			}
		}
	}()

	return msgChan, errChan
}

// Commit commits the offset for a message.
func (c *KafkaConsumer) Commit(ctx context.Context, msg Message) error {
	return c.reader.CommitMessages(ctx, msg.Raw)
}

func (c *KafkaConsumer) Close() error {
	return c.reader.Close()
}
