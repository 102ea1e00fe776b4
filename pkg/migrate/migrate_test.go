package migrate

import (
	"context"
	"errors"
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

type memBackend struct {
	mu       sync.Mutex
	records  map[uuid.UUID]stats.PlayerStats
	failSave int // fail the nth Save call, 0 disables
	saves    int
	closed   bool
	loadGate chan struct{}
}

func newMemBackend() *memBackend {
	return &memBackend{records: make(map[uuid.UUID]stats.PlayerStats)}
}

func (b *memBackend) Save(_ context.Context, s stats.PlayerStats) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.saves++
	if b.failSave > 0 && b.saves == b.failSave {
		return errors.New("disk full")
	}
	b.records[s.ID] = s
	return nil
}

func (b *memBackend) Load(_ context.Context, id uuid.UUID) (stats.PlayerStats, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.records[id], nil
}

func (b *memBackend) LoadAll(_ context.Context) ([]stats.PlayerStats, error) {
	b.mu.Lock()
	gate := b.loadGate
	b.mu.Unlock()
	if gate != nil {
		<-gate
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]stats.PlayerStats, 0, len(b.records))
	for _, s := range b.records {
		out = append(out, s)
	}
	return out, nil
}

func (b *memBackend) TopN(context.Context, stats.Metric, int) ([]stats.PlayerStats, error) {
	return nil, nil
}

func (b *memBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

func (b *memBackend) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

func (b *memBackend) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.records)
}

var _ storage.Backend = (*memBackend)(nil)

// fakeSource is a minimal cache stand-in holding a swappable backend.
type fakeSource struct {
	mu      sync.Mutex
	backend storage.Backend
	flushes int
}

func (s *fakeSource) FlushAll(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushes++
	return nil
}

func (s *fakeSource) Backend() storage.Backend {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backend
}

func (s *fakeSource) SwapBackend(b storage.Backend) storage.Backend {
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.backend
	s.backend = b
	return old
}

func seedBackend(t *testing.T, b *memBackend, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		s := stats.New(uuid.New(), "player")
		s.MobsKilled = i + 1
		require.NoError(t, b.Save(context.Background(), s))
	}
	b.saves = 0
}

func TestMigrationCopiesAllRecordsAndSwaps(t *testing.T) {
	old := newMemBackend()
	seedBackend(t, old, 5)
	target := newMemBackend()
	source := &fakeSource{backend: old}

	c := New(logger.Nop(), source)
	require.NoError(t, c.Run(context.Background(), target))

	assert.Equal(t, 5, target.count())
	assert.Same(t, target, source.Backend(), "target becomes the active backend")
	assert.True(t, old.isClosed())
	assert.False(t, target.isClosed())
	assert.Equal(t, 1, source.flushes, "pending state is flushed before the copy")
}

func TestMigrationAbortKeepsOldBackend(t *testing.T) {
	old := newMemBackend()
	seedBackend(t, old, 5)
	target := newMemBackend()
	target.failSave = 3
	source := &fakeSource{backend: old}

	c := New(logger.Nop(), source)
	err := c.Run(context.Background(), target)
	require.ErrorIs(t, err, ErrMigrationAborted)

	assert.Same(t, old, source.Backend(), "old backend stays active")
	assert.False(t, old.isClosed())
	assert.True(t, target.isClosed(), "failed target is released")
	assert.Equal(t, 5, old.count(), "old data set is intact")
	assert.False(t, c.Running())
}

func TestMigrationRejectsConcurrentRun(t *testing.T) {
	old := newMemBackend()
	seedBackend(t, old, 1)
	old.loadGate = make(chan struct{})
	source := &fakeSource{backend: old}

	c := New(logger.Nop(), source)

	first := make(chan error, 1)
	go func() {
		first <- c.Run(context.Background(), newMemBackend())
	}()

	require.Eventually(t, c.Running, time.Second, 5*time.Millisecond)

	err := c.Run(context.Background(), newMemBackend())
	assert.ErrorIs(t, err, ErrConcurrentMigration)

	close(old.loadGate)
	require.NoError(t, <-first)
	assert.False(t, c.Running())
}
