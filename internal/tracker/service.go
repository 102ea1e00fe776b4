// Package tracker runs the event intake loop: it consumes gameplay events,
// applies them to the aggregation cache and drives the autosave cycle.
package tracker

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/annel0/StatsPlugin/pkg/cache"
	"github.com/annel0/StatsPlugin/pkg/config"
	"github.com/annel0/StatsPlugin/pkg/consumer"
	"github.com/annel0/StatsPlugin/pkg/events"
	"github.com/annel0/StatsPlugin/pkg/logger"
	"github.com/annel0/StatsPlugin/pkg/metrics"
	"github.com/annel0/StatsPlugin/pkg/retry"
)

// Service coordinates event consumption with the aggregation cache.
type Service struct {
	logger   *logger.Logger
	consumer consumer.Consumer
	cache    *cache.Cache
	features config.FeaturesConfig
	autosave config.AutosaveConfig

	commitOpts retry.Options
}

// NewService creates the tracker service.
func NewService(
	l *logger.Logger,
	c consumer.Consumer,
	agg *cache.Cache,
	features config.FeaturesConfig,
	autosave config.AutosaveConfig,
) *Service {
	opts := retry.DefaultOptions()
	opts.MaxAttempts = 3
	opts.InitialInterval = 100 * time.Millisecond

	return &Service{
		logger:     l,
		consumer:   c,
		cache:      agg,
		features:   features,
		autosave:   autosave,
		commitOpts: opts,
	}
}

// Start runs the consume loop until the context is canceled or the consumer
// fails. The autosave ticker runs alongside it in the same loop.
func (s *Service) Start(ctx context.Context) error {
	s.logger.Info("starting tracker service")

	var autosave <-chan time.Time
	if s.autosave.Enabled {
		ticker := time.NewTicker(s.autosave.Interval)
		defer ticker.Stop()
		autosave = ticker.C
	}

	msgChan, errChan := s.consumer.Consume(ctx)

	for {
		select {
		case msg, ok := <-msgChan:
			if !ok {
				return nil
			}
			s.handleMessage(ctx, msg)

		case err := <-errChan:
			if err != nil {
				return fmt.Errorf("consumer error: %w", err)
			}

		case <-autosave:
			s.cache.CreditSessions()
			s.cache.FlushAllAsync()
			s.logger.Debug("autosave cycle completed")

		case <-ctx.Done():
			return nil
		}
	}
}

func (s *Service) handleMessage(ctx context.Context, msg consumer.Message) {
	event, err := events.Parse(msg.Value)
	if err != nil {
		// A payload that does not parse will never parse; commit and move on.
		s.logger.Warn("skipping malformed event",
			zap.Error(err),
			zap.Int64("offset", msg.Offset),
			zap.ByteString("payload", msg.Value))
		metrics.MalformedEventsTotal.Inc()
		s.commit(ctx, msg)
		return
	}

	s.apply(event)
	metrics.EventsAppliedTotal.Inc()
	s.commit(ctx, msg)
}

func (s *Service) commit(ctx context.Context, msg consumer.Message) {
	err := retry.Do(ctx, func() error {
		return s.consumer.Commit(ctx, msg)
	}, s.commitOpts)
	if err != nil {
		s.logger.Error("failed to commit offset", err, zap.Int64("offset", msg.Offset))
	}
}

// apply routes one event into the cache. Events for counters whose feature
// toggle is off are consumed but not counted.
func (s *Service) apply(e events.Event) {
	switch e.Kind {
	case events.KindJoin:
		s.cache.Track(e.PlayerID, e.PlayerName)
		if s.features.PlayTime {
			s.cache.StartSession(e.PlayerID)
		}
	case events.KindQuit:
		s.cache.Untrack(e.PlayerID)
	case events.KindMobKilled:
		if s.features.MobKilling {
			s.cache.IncrementMobsKilled(e.PlayerID)
		}
	case events.KindItemEaten:
		if s.features.FoodConsumption {
			s.cache.IncrementItemsEaten(e.PlayerID)
		}
	case events.KindBlockBroken:
		if s.features.BlockBreaking {
			s.cache.IncrementBlocksBroken(e.PlayerID)
		}
	case events.KindDeath:
		s.cache.IncrementDeaths(e.PlayerID)
	case events.KindItemCrafted:
		s.cache.IncrementItemsCrafted(e.PlayerID)
	case events.KindItemUsed:
		s.cache.IncrementItemsUsed(e.PlayerID)
	case events.KindChestOpened:
		if s.features.ChestOpening {
			s.cache.IncrementChestsOpened(e.PlayerID)
		}
	case events.KindMessageSent:
		s.cache.IncrementMessagesSent(e.PlayerID)
	case events.KindMoved:
		if s.features.MovementTracking {
			s.cache.AddDistance(e.PlayerID, e.Amount)
		}
	case events.KindRenamed:
		s.cache.SetName(e.PlayerID, e.PlayerName)
	}
}

// Shutdown stops the consumer.
func (s *Service) Shutdown() error {
	s.logger.Info("shutting down tracker service")
	return s.consumer.Close()
}
