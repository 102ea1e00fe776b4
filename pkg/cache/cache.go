// Package cache owns the authoritative in-memory record for every tracked
// player. All concurrent mutation goes through its API; records crossing the
// storage boundary are always value snapshots, never shared references.
package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/annel0/StatsPlugin/pkg/logger"
	"github.com/annel0/StatsPlugin/pkg/metrics"
	"github.com/annel0/StatsPlugin/pkg/stats"
	"github.com/annel0/StatsPlugin/pkg/storage"
)

// Saver receives snapshots for fire-and-forget persistence. When no Saver is
// configured the cache persists in a spawned goroutine itself, preserving the
// same best-effort semantics.
type Saver interface {
	Submit(s stats.PlayerStats)
}

// entry serializes all mutation of one player's record. Snapshots taken
// under the mutex can never observe a torn update.
type entry struct {
	mu    sync.Mutex
	stats stats.PlayerStats
}

// backendRef wraps the Backend interface so the active backend can live
// behind an atomic pointer and swap in one store.
type backendRef struct {
	backend storage.Backend
}

// Cache is the aggregation cache: id → record for tracked players, id →
// session start for open playtime sessions, and the active storage backend.
type Cache struct {
	log     *logger.Logger
	backend atomic.Pointer[backendRef]
	saver   Saver

	mu       sync.RWMutex // guards entries and sessions
	entries  map[uuid.UUID]*entry
	sessions map[uuid.UUID]time.Time

	now         func() time.Time
	loadTimeout time.Duration
}

// New creates a Cache over the given backend.
func New(l *logger.Logger, backend storage.Backend) *Cache {
	c := &Cache{
		log:         l,
		entries:     make(map[uuid.UUID]*entry),
		sessions:    make(map[uuid.UUID]time.Time),
		now:         time.Now,
		loadTimeout: 30 * time.Second,
	}
	c.backend.Store(&backendRef{backend: backend})
	return c
}

// SetSaver routes asynchronous persistence through the given saver.
func (c *Cache) SetSaver(s Saver) {
	c.saver = s
}

// Backend returns the currently active storage backend.
func (c *Cache) Backend() storage.Backend {
	return c.backend.Load().backend
}

// SwapBackend atomically replaces the active backend and returns the
// previous one. Every save submitted after the swap resolves to the new
// backend; the caller is responsible for draining and closing the old one.
func (c *Cache) SwapBackend(b storage.Backend) storage.Backend {
	old := c.backend.Swap(&backendRef{backend: b})
	return old.backend
}

// Track registers a player. The first track inserts an empty record and
// fires one asynchronous backend load whose result merges additively into
// whatever has accumulated in the meantime. Tracking an already-tracked
// player only refreshes the display name: the accrued record survives and no
// second load runs, so nothing is ever double counted.
func (c *Cache) Track(id uuid.UUID, name string) {
	c.mu.Lock()
	if e, ok := c.entries[id]; ok {
		c.mu.Unlock()
		e.mu.Lock()
		e.stats.Name = name
		e.mu.Unlock()
		return
	}
	c.entries[id] = &entry{stats: stats.New(id, name)}
	c.mu.Unlock()

	go c.loadAndMerge(id)
}

func (c *Cache) loadAndMerge(id uuid.UUID) {
	ctx, cancel := context.WithTimeout(context.Background(), c.loadTimeout)
	defer cancel()

	persisted, err := c.Backend().Load(ctx, id)
	if err != nil {
		c.log.Error("failed to load persisted stats", err, zap.String("player_id", id.String()))
		metrics.LoadErrorsTotal.Inc()
		return
	}

	c.mu.RLock()
	e := c.entries[id]
	c.mu.RUnlock()
	if e == nil {
		// Untracked while the load was in flight; the persisted record is
		// still authoritative on the backend.
		return
	}

	e.mu.Lock()
	e.stats.Merge(persisted)
	e.mu.Unlock()
}

// Untrack folds any open session, snapshots the record, removes the player
// and persists the snapshot asynchronously.
func (c *Cache) Untrack(id uuid.UUID) {
	c.EndSession(id)

	c.mu.Lock()
	e := c.entries[id]
	delete(c.entries, id)
	c.mu.Unlock()
	if e == nil {
		return
	}

	e.mu.Lock()
	snapshot := e.stats
	e.mu.Unlock()

	c.persist(snapshot)
}

// Tracked reports whether the player currently has a cached record.
func (c *Cache) Tracked(id uuid.UUID) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.entries[id]
	return ok
}

// Stats returns a snapshot of a tracked player's record.
func (c *Cache) Stats(id uuid.UUID) (stats.PlayerStats, bool) {
	c.mu.RLock()
	e := c.entries[id]
	c.mu.RUnlock()
	if e == nil {
		return stats.PlayerStats{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats, true
}

// StartSession opens (or restarts) the playtime session for a player.
func (c *Cache) StartSession(id uuid.UUID) {
	c.mu.Lock()
	c.sessions[id] = c.now()
	c.mu.Unlock()
}

// EndSession closes the player's session, crediting elapsed whole minutes.
// Fractional minutes are truncated, not rounded. Ending without an open
// session is a no-op.
func (c *Cache) EndSession(id uuid.UUID) {
	c.mu.Lock()
	start, ok := c.sessions[id]
	delete(c.sessions, id)
	c.mu.Unlock()
	if !ok {
		return
	}

	if minutes := int(c.now().Sub(start) / time.Minute); minutes > 0 {
		c.AddPlayTime(id, minutes)
	}
}

// CreditSessions folds the elapsed whole minutes of every open session into
// its player's playtime counter and advances the session start by the
// credited amount, so the sub-minute remainder keeps accruing.
func (c *Cache) CreditSessions() {
	now := c.now()

	c.mu.Lock()
	credits := make(map[uuid.UUID]int)
	for id, start := range c.sessions {
		if minutes := int(now.Sub(start) / time.Minute); minutes > 0 {
			credits[id] = minutes
			c.sessions[id] = start.Add(time.Duration(minutes) * time.Minute)
		}
	}
	c.mu.Unlock()

	for id, minutes := range credits {
		c.AddPlayTime(id, minutes)
	}
}

// mutate applies fn under the player's entry lock; untracked ids are a
// strict no-op and never create a record.
func (c *Cache) mutate(id uuid.UUID, fn func(*stats.PlayerStats)) {
	c.mu.RLock()
	e := c.entries[id]
	c.mu.RUnlock()
	if e == nil {
		return
	}
	e.mu.Lock()
	fn(&e.stats)
	e.mu.Unlock()
}

func (c *Cache) AddPlayTime(id uuid.UUID, minutes int) {
	c.mutate(id, func(s *stats.PlayerStats) { s.PlayTime += minutes })
}

func (c *Cache) IncrementMobsKilled(id uuid.UUID) {
	c.mutate(id, func(s *stats.PlayerStats) { s.MobsKilled++ })
}

func (c *Cache) IncrementItemsEaten(id uuid.UUID) {
	c.mutate(id, func(s *stats.PlayerStats) { s.ItemsEaten++ })
}

func (c *Cache) IncrementBlocksBroken(id uuid.UUID) {
	c.mutate(id, func(s *stats.PlayerStats) { s.BlocksBroken++ })
}

func (c *Cache) IncrementDeaths(id uuid.UUID) {
	c.mutate(id, func(s *stats.PlayerStats) { s.Deaths++ })
}

func (c *Cache) IncrementItemsCrafted(id uuid.UUID) {
	c.mutate(id, func(s *stats.PlayerStats) { s.ItemsCrafted++ })
}

func (c *Cache) IncrementItemsUsed(id uuid.UUID) {
	c.mutate(id, func(s *stats.PlayerStats) { s.ItemsUsed++ })
}

func (c *Cache) IncrementChestsOpened(id uuid.UUID) {
	c.mutate(id, func(s *stats.PlayerStats) { s.ChestsOpened++ })
}

func (c *Cache) IncrementMessagesSent(id uuid.UUID) {
	c.mutate(id, func(s *stats.PlayerStats) { s.MessagesSent++ })
}

func (c *Cache) AddDistance(id uuid.UUID, delta float64) {
	if delta < 0 {
		return
	}
	c.mutate(id, func(s *stats.PlayerStats) { s.DistanceTraveled += delta })
}

func (c *Cache) SetName(id uuid.UUID, name string) {
	c.mutate(id, func(s *stats.PlayerStats) { s.Name = name })
}

func (c *Cache) snapshotAll() []stats.PlayerStats {
	c.mu.RLock()
	entries := make([]*entry, 0, len(c.entries))
	for _, e := range c.entries {
		entries = append(entries, e)
	}
	c.mu.RUnlock()

	// Each record is snapshotted point-in-time under its own lock; there is
	// no single globally consistent cut across players.
	snapshots := make([]stats.PlayerStats, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		snapshots = append(snapshots, e.stats)
		e.mu.Unlock()
	}
	return snapshots
}

// FlushAllAsync snapshots every tracked record and hands each to the saver.
func (c *Cache) FlushAllAsync() {
	for _, snapshot := range c.snapshotAll() {
		c.persist(snapshot)
	}
}

// FlushAll synchronously persists every tracked record, crediting open
// sessions first. This is the shutdown path, where asynchronous work could
// be abandoned.
func (c *Cache) FlushAll(ctx context.Context) error {
	c.CreditSessions()

	var errs []error
	backend := c.Backend()
	for _, snapshot := range c.snapshotAll() {
		if err := backend.Save(ctx, snapshot); err != nil {
			c.log.Error("failed to flush player stats", err,
				zap.String("player_id", snapshot.ID.String()))
			metrics.SaveErrorsTotal.Inc()
			errs = append(errs, err)
			continue
		}
		metrics.SavesTotal.Inc()
	}
	return errors.Join(errs...)
}

func (c *Cache) persist(snapshot stats.PlayerStats) {
	if c.saver != nil {
		c.saver.Submit(snapshot)
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.loadTimeout)
		defer cancel()
		if err := c.Backend().Save(ctx, snapshot); err != nil {
			c.log.Error("failed to persist player stats", err,
				zap.String("player_id", snapshot.ID.String()))
			metrics.SaveErrorsTotal.Inc()
			return
		}
		metrics.SavesTotal.Inc()
	}()
}
