package producer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishAsyncReturnsImmediately(t *testing.T) {
	p := NewKafkaProducer(Config{
		Brokers: []string{"localhost:9999"},
		Topic:   "gameplay-events",
	})
	defer p.Close()

	start := time.Now()
	_ = p.PublishAsync(context.Background(), []byte("key"), []byte("value"))
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestPublishAsyncReportsFailure(t *testing.T) {
	p := NewKafkaProducer(Config{
		Brokers: []string{"localhost:9999"},
		Topic:   "gameplay-events",
	})
	defer p.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	result := p.PublishAsync(ctx, []byte("key"), []byte("value"))

	select {
	case r := <-result:
		require.Error(t, r.Error, "write to unreachable broker must fail")
	case <-time.After(2 * time.Second):
		t.Fatal("publish result never arrived")
	}
}
