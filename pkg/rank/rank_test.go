package rank

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/StatsPlugin/pkg/logger"
	"github.com/annel0/StatsPlugin/pkg/stats"
	"github.com/annel0/StatsPlugin/pkg/storage"
)

type countingProvider struct {
	backend *countingBackend
}

func (p *countingProvider) Backend() storage.Backend { return p.backend }

// countingBackend ranks a fixed record set in memory and counts queries.
type countingBackend struct {
	records []stats.PlayerStats
	queries int
}

func (b *countingBackend) Save(context.Context, stats.PlayerStats) error { return nil }

func (b *countingBackend) Load(_ context.Context, id uuid.UUID) (stats.PlayerStats, error) {
	return stats.New(id, ""), nil
}

func (b *countingBackend) LoadAll(context.Context) ([]stats.PlayerStats, error) {
	return b.records, nil
}

func (b *countingBackend) TopN(_ context.Context, metric stats.Metric, limit int) ([]stats.PlayerStats, error) {
	b.queries++
	ranked := make([]stats.PlayerStats, 0, len(b.records))
	for _, r := range b.records {
		if r.Value(metric) > 0 {
			ranked = append(ranked, r)
		}
	}
	for i := 0; i < len(ranked); i++ {
		for j := i + 1; j < len(ranked); j++ {
			if ranked[j].Value(metric) > ranked[i].Value(metric) {
				ranked[i], ranked[j] = ranked[j], ranked[i]
			}
		}
	}
	if limit > 0 && limit < len(ranked) {
		ranked = ranked[:limit]
	}
	return ranked, nil
}

func (b *countingBackend) Close() error { return nil }

var _ storage.Backend = (*countingBackend)(nil)

func fixtureRecords() []stats.PlayerStats {
	kills := []int{10, 0, 7, 3}
	records := make([]stats.PlayerStats, 0, len(kills))
	for _, k := range kills {
		s := stats.New(uuid.New(), "player")
		s.MobsKilled = k
		s.Deaths = 1
		records = append(records, s)
	}
	return records
}

func TestTopNRejectsInvalidMetric(t *testing.T) {
	provider := &countingProvider{backend: &countingBackend{}}
	svc := New(logger.Nop(), provider, nil, 0)

	_, err := svc.TopN(context.Background(), stats.Metric("mobs_killed; DROP TABLE player_stats"), 3)
	require.ErrorIs(t, err, ErrInvalidMetric)
	assert.Zero(t, provider.backend.queries, "invalid metric never reaches the backend")
}

func TestTopNWithoutCache(t *testing.T) {
	provider := &countingProvider{backend: &countingBackend{records: fixtureRecords()}}
	svc := New(logger.Nop(), provider, nil, 0)

	ranked, err := svc.TopN(context.Background(), stats.MetricMobsKilled, 2)
	require.NoError(t, err)
	require.Len(t, ranked, 2)
	assert.Equal(t, 10, ranked[0].MobsKilled)
	assert.Equal(t, 7, ranked[1].MobsKilled)
}

func TestTopNCachesResults(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	provider := &countingProvider{backend: &countingBackend{records: fixtureRecords()}}
	svc := New(logger.Nop(), provider, rdb, time.Minute)

	first, err := svc.TopN(context.Background(), stats.MetricMobsKilled, 3)
	require.NoError(t, err)
	second, err := svc.TopN(context.Background(), stats.MetricMobsKilled, 3)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, provider.backend.queries, "second query is served from the cache")

	// A different limit is a different cache entry.
	_, err = svc.TopN(context.Background(), stats.MetricMobsKilled, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, provider.backend.queries)
}

func TestTopNCacheExpires(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	provider := &countingProvider{backend: &countingBackend{records: fixtureRecords()}}
	svc := New(logger.Nop(), provider, rdb, time.Minute)

	_, err := svc.TopN(context.Background(), stats.MetricDeaths, 0)
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)

	_, err = svc.TopN(context.Background(), stats.MetricDeaths, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, provider.backend.queries, "expired entry is refetched")
}

func TestInvalidateDropsCachedRankings(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	provider := &countingProvider{backend: &countingBackend{records: fixtureRecords()}}
	svc := New(logger.Nop(), provider, rdb, time.Minute)

	_, err := svc.TopN(context.Background(), stats.MetricMobsKilled, 3)
	require.NoError(t, err)

	svc.Invalidate(context.Background())

	_, err = svc.TopN(context.Background(), stats.MetricMobsKilled, 3)
	require.NoError(t, err)
	assert.Equal(t, 2, provider.backend.queries)
}
