package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/StatsPlugin/pkg/logger"
	"github.com/annel0/StatsPlugin/pkg/stats"
	"github.com/annel0/StatsPlugin/pkg/storage"
)

// fakeBackend is an in-memory Backend whose Load can be gated, so a test
// can hold the asynchronous load open while live increments happen.
type fakeBackend struct {
	mu      sync.Mutex
	records map[uuid.UUID]stats.PlayerStats
	loads   int
	gate    chan struct{}
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{records: make(map[uuid.UUID]stats.PlayerStats)}
}

func (b *fakeBackend) Save(_ context.Context, s stats.PlayerStats) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.records[s.ID] = s
	return nil
}

func (b *fakeBackend) Load(_ context.Context, id uuid.UUID) (stats.PlayerStats, error) {
	b.mu.Lock()
	b.loads++
	gate := b.gate
	b.mu.Unlock()

	if gate != nil {
		<-gate
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if s, ok := b.records[id]; ok {
		return s, nil
	}
	s := stats.New(id, "")
	b.records[id] = s
	return s, nil
}

func (b *fakeBackend) LoadAll(_ context.Context) ([]stats.PlayerStats, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]stats.PlayerStats, 0, len(b.records))
	for _, s := range b.records {
		out = append(out, s)
	}
	return out, nil
}

func (b *fakeBackend) TopN(context.Context, stats.Metric, int) ([]stats.PlayerStats, error) {
	return nil, nil
}

func (b *fakeBackend) Close() error { return nil }

func (b *fakeBackend) loadCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.loads
}

func (b *fakeBackend) record(id uuid.UUID) (stats.PlayerStats, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.records[id]
	return s, ok
}

var _ storage.Backend = (*fakeBackend)(nil)

func TestCacheIncrementsTrackedPlayer(t *testing.T) {
	backend := newFakeBackend()
	c := New(logger.Nop(), backend)

	id := uuid.New()
	c.Track(id, "steve")

	c.IncrementMobsKilled(id)
	c.IncrementMobsKilled(id)
	c.IncrementDeaths(id)
	c.AddDistance(id, 12.5)
	c.AddDistance(id, -3) // negative deltas are discarded

	require.Eventually(t, func() bool {
		s, ok := c.Stats(id)
		return ok && s.MobsKilled == 2
	}, time.Second, 5*time.Millisecond)

	s, ok := c.Stats(id)
	require.True(t, ok)
	assert.Equal(t, "steve", s.Name)
	assert.Equal(t, 2, s.MobsKilled)
	assert.Equal(t, 1, s.Deaths)
	assert.InDelta(t, 12.5, s.DistanceTraveled, 1e-9)
}

func TestCacheUntrackedPlayerIsNoOp(t *testing.T) {
	c := New(logger.Nop(), newFakeBackend())

	id := uuid.New()
	c.IncrementMobsKilled(id)
	c.AddPlayTime(id, 10)

	assert.False(t, c.Tracked(id))
	_, ok := c.Stats(id)
	assert.False(t, ok)
}

func TestCacheMergesPersistedIntoLiveRecord(t *testing.T) {
	backend := newFakeBackend()
	id := uuid.New()

	persisted := stats.New(id, "steve")
	persisted.MobsKilled = 3
	persisted.PlayTime = 40
	require.NoError(t, backend.Save(context.Background(), persisted))

	gate := make(chan struct{})
	backend.gate = gate

	c := New(logger.Nop(), backend)
	c.Track(id, "steve")

	// Increments land while the load is still in flight.
	for i := 0; i < 5; i++ {
		c.IncrementMobsKilled(id)
	}
	close(gate)

	require.Eventually(t, func() bool {
		s, _ := c.Stats(id)
		return s.MobsKilled == 8
	}, time.Second, 5*time.Millisecond)

	s, _ := c.Stats(id)
	assert.Equal(t, 40, s.PlayTime)
}

func TestCacheRetrackRefreshesNameOnly(t *testing.T) {
	backend := newFakeBackend()
	c := New(logger.Nop(), backend)

	id := uuid.New()
	c.Track(id, "steve")
	require.Eventually(t, func() bool {
		return backend.loadCount() == 1
	}, time.Second, 5*time.Millisecond)

	c.IncrementMobsKilled(id)
	c.Track(id, "alex")

	s, ok := c.Stats(id)
	require.True(t, ok)
	assert.Equal(t, "alex", s.Name)
	assert.Equal(t, 1, s.MobsKilled)
	assert.Equal(t, 1, backend.loadCount(), "re-track must not load again")
}

func TestCacheSessionTruncatesToWholeMinutes(t *testing.T) {
	cases := []struct {
		name    string
		elapsed time.Duration
		want    int
	}{
		{"90 seconds", 90 * time.Second, 1},
		{"119 seconds", 119 * time.Second, 1},
		{"120 seconds", 120 * time.Second, 2},
		{"under a minute", 45 * time.Second, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := New(logger.Nop(), newFakeBackend())
			now := time.Now()
			c.now = func() time.Time { return now }

			id := uuid.New()
			c.Track(id, "steve")
			c.StartSession(id)

			now = now.Add(tc.elapsed)
			c.EndSession(id)

			s, ok := c.Stats(id)
			require.True(t, ok)
			assert.Equal(t, tc.want, s.PlayTime)

			// Session is closed; a second end credits nothing.
			now = now.Add(time.Hour)
			c.EndSession(id)
			s, _ = c.Stats(id)
			assert.Equal(t, tc.want, s.PlayTime)
		})
	}
}

func TestCacheCreditSessionsKeepsRemainder(t *testing.T) {
	c := New(logger.Nop(), newFakeBackend())
	now := time.Now()
	c.now = func() time.Time { return now }

	id := uuid.New()
	c.Track(id, "steve")
	c.StartSession(id)

	now = now.Add(90 * time.Second)
	c.CreditSessions()

	s, _ := c.Stats(id)
	assert.Equal(t, 1, s.PlayTime)

	// The leftover 30 seconds stay in the open session and complete a
	// minute together with the next 30.
	now = now.Add(30 * time.Second)
	c.CreditSessions()
	s, _ = c.Stats(id)
	assert.Equal(t, 2, s.PlayTime)
}

func TestCacheUntrackPersistsSnapshot(t *testing.T) {
	backend := newFakeBackend()
	c := New(logger.Nop(), backend)
	now := time.Now()
	c.now = func() time.Time { return now }

	id := uuid.New()
	c.Track(id, "steve")
	require.Eventually(t, func() bool {
		return backend.loadCount() == 1
	}, time.Second, 5*time.Millisecond)

	c.StartSession(id)
	c.IncrementMobsKilled(id)
	now = now.Add(3 * time.Minute)

	c.Untrack(id)

	assert.False(t, c.Tracked(id))
	require.Eventually(t, func() bool {
		s, ok := backend.record(id)
		return ok && s.MobsKilled == 1 && s.PlayTime == 3
	}, time.Second, 5*time.Millisecond)
}

func TestCacheFlushAllPersistsEveryPlayer(t *testing.T) {
	backend := newFakeBackend()
	c := New(logger.Nop(), backend)
	now := time.Now()
	c.now = func() time.Time { return now }

	ids := make([]uuid.UUID, 5)
	for i := range ids {
		ids[i] = uuid.New()
		c.Track(ids[i], "player")
		c.IncrementBlocksBroken(ids[i])
	}
	c.StartSession(ids[0])
	now = now.Add(2 * time.Minute)

	require.NoError(t, c.FlushAll(context.Background()))

	for _, id := range ids {
		s, ok := backend.record(id)
		require.True(t, ok)
		assert.Equal(t, 1, s.BlocksBroken)
	}
	s, _ := backend.record(ids[0])
	assert.Equal(t, 2, s.PlayTime, "open session is credited before the flush")
}

func TestCacheSwapBackendRoutesSaves(t *testing.T) {
	oldBackend := newFakeBackend()
	newBackend := newFakeBackend()
	c := New(logger.Nop(), oldBackend)

	id := uuid.New()
	c.Track(id, "steve")
	c.IncrementMobsKilled(id)

	returned := c.SwapBackend(newBackend)
	assert.Same(t, oldBackend, returned)

	require.NoError(t, c.FlushAll(context.Background()))

	_, ok := newBackend.record(id)
	assert.True(t, ok)
}

func TestCacheConcurrentIncrements(t *testing.T) {
	c := New(logger.Nop(), newFakeBackend())
	id := uuid.New()
	c.Track(id, "steve")

	const goroutines = 16
	const perGoroutine = 100

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				c.IncrementMessagesSent(id)
			}
		}()
	}
	wg.Wait()

	require.Eventually(t, func() bool {
		s, _ := c.Stats(id)
		return s.MessagesSent == goroutines*perGoroutine
	}, time.Second, 5*time.Millisecond)
}
