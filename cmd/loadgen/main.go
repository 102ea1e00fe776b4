// loadgen publishes synthetic gameplay events to the tracker's Kafka topic.
// It simulates a small roster of players joining, playing and quitting.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/annel0/StatsPlugin/pkg/events"
	"github.com/annel0/StatsPlugin/pkg/producer"
)

var actionKinds = []events.Kind{
	events.KindMobKilled,
	events.KindItemEaten,
	events.KindBlockBroken,
	events.KindDeath,
	events.KindItemCrafted,
	events.KindItemUsed,
	events.KindChestOpened,
	events.KindMessageSent,
	events.KindMoved,
}

func main() {
	brokers := flag.String("brokers", "localhost:9092", "comma-separated Kafka brokers")
	topic := flag.String("topic", "gameplay-events", "Kafka topic")
	players := flag.Int("players", 25, "number of simulated players")
	interval := flag.Duration("interval", 100*time.Millisecond, "delay between events")
	flag.Parse()

	p := producer.NewKafkaProducer(producer.Config{
		Brokers: strings.Split(*brokers, ","),
		Topic:   *topic,
	})
	defer p.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	roster := make([]uuid.UUID, *players)
	for i := range roster {
		roster[i] = uuid.New()
	}

	fmt.Printf("loadgen publishing to %s (topic %s, %d players)\n", *brokers, *topic, *players)

	// Every player joins first so the tracker opens their sessions.
	for i, id := range roster {
		publish(ctx, p, events.Event{
			ID:         uuid.New(),
			Kind:       events.KindJoin,
			PlayerID:   id,
			PlayerName: fmt.Sprintf("player_%d", i),
			OccurredAt: time.Now(),
		})
	}

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	sent := 0
	for {
		select {
		case <-ctx.Done():
			fmt.Printf("\nloadgen stopping after %d events\n", sent)
			for _, id := range roster {
				publish(context.Background(), p, events.Event{
					ID:         uuid.New(),
					Kind:       events.KindQuit,
					PlayerID:   id,
					OccurredAt: time.Now(),
				})
			}
			return

		case <-ticker.C:
			e := events.Event{
				ID:         uuid.New(),
				Kind:       actionKinds[rand.Intn(len(actionKinds))],
				PlayerID:   roster[rand.Intn(len(roster))],
				OccurredAt: time.Now(),
			}
			if e.Kind == events.KindMoved {
				e.Amount = rand.Float64() * 10
			}
			publish(ctx, p, e)
			sent++
		}
	}
}

func publish(ctx context.Context, p producer.Producer, e events.Event) {
	data, err := events.Marshal(e)
	if err != nil {
		log.Printf("failed to encode event: %v", err)
		return
	}

	result := p.PublishAsync(ctx, []byte(e.PlayerID.String()), data)
	go func() {
		if r := <-result; r.Error != nil {
			log.Printf("failed to publish %s event: %v", e.Kind, r.Error)
		}
	}()
}
