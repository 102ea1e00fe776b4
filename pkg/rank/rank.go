// Package rank serves leaderboard queries over the active storage backend,
// with an optional Redis result cache in front.
package rank

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/annel0/StatsPlugin/pkg/logger"
	"github.com/annel0/StatsPlugin/pkg/metrics"
	"github.com/annel0/StatsPlugin/pkg/stats"
	"github.com/annel0/StatsPlugin/pkg/storage"
)

// ErrInvalidMetric reports a leaderboard request for an unknown metric.
var ErrInvalidMetric = errors.New("rank: invalid metric")

// Provider yields the backend to query. The cache satisfies this, so the
// service always ranks against the currently active backend.
type Provider interface {
	Backend() storage.Backend
}

// Service answers top-N queries. Each query ranks by exactly one metric;
// players whose value for that metric is zero never appear.
type Service struct {
	log      *logger.Logger
	provider Provider
	rdb      *redis.Client
	ttl      time.Duration
}

// New creates a ranking service. rdb may be nil, which disables caching.
func New(l *logger.Logger, provider Provider, rdb *redis.Client, ttl time.Duration) *Service {
	return &Service{log: l, provider: provider, rdb: rdb, ttl: ttl}
}

// TopN returns up to limit players ordered by the metric descending. A
// non-positive limit returns the full ranking.
func (s *Service) TopN(ctx context.Context, metric stats.Metric, limit int) ([]stats.PlayerStats, error) {
	if !metric.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMetric, metric)
	}

	key := cacheKey(metric, limit)
	if cached, ok := s.fromCache(ctx, key); ok {
		return cached, nil
	}

	ranked, err := s.provider.Backend().TopN(ctx, metric, limit)
	if err != nil {
		return nil, fmt.Errorf("rank %s: %w", metric, err)
	}

	s.toCache(ctx, key, ranked)
	return ranked, nil
}

func cacheKey(metric stats.Metric, limit int) string {
	return fmt.Sprintf("stats:top:%s:%d", metric, limit)
}

func (s *Service) fromCache(ctx context.Context, key string) ([]stats.PlayerStats, bool) {
	if s.rdb == nil {
		return nil, false
	}

	data, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.log.Warn("rank cache read failed", zap.String("key", key), zap.Error(err))
		}
		metrics.RankCacheMissesTotal.Inc()
		return nil, false
	}

	var ranked []stats.PlayerStats
	if err := json.Unmarshal(data, &ranked); err != nil {
		s.log.Warn("rank cache entry corrupt", zap.String("key", key), zap.Error(err))
		metrics.RankCacheMissesTotal.Inc()
		return nil, false
	}

	metrics.RankCacheHitsTotal.Inc()
	return ranked, true
}

func (s *Service) toCache(ctx context.Context, key string, ranked []stats.PlayerStats) {
	if s.rdb == nil {
		return
	}

	data, err := json.Marshal(ranked)
	if err != nil {
		s.log.Warn("rank cache encode failed", zap.String("key", key), zap.Error(err))
		return
	}
	if err := s.rdb.Set(ctx, key, data, s.ttl).Err(); err != nil {
		s.log.Warn("rank cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// Invalidate drops every cached ranking. Called after a backend migration
// so stale results from the old backend are not served.
func (s *Service) Invalidate(ctx context.Context) {
	if s.rdb == nil {
		return
	}

	iter := s.rdb.Scan(ctx, 0, "stats:top:*", 0).Iterator()
	for iter.Next(ctx) {
		if err := s.rdb.Del(ctx, iter.Val()).Err(); err != nil {
			s.log.Warn("rank cache invalidation failed", zap.String("key", iter.Val()), zap.Error(err))
		}
	}
	if err := iter.Err(); err != nil {
		s.log.Warn("rank cache scan failed", zap.Error(err))
	}
}
