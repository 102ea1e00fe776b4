// Package migrate moves the full data set between storage backends while the
// service keeps running. A migration either completes and swaps the active
// backend, or aborts and leaves the old backend untouched.
package migrate

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/annel0/StatsPlugin/pkg/logger"
	"github.com/annel0/StatsPlugin/pkg/metrics"
	"github.com/annel0/StatsPlugin/pkg/storage"
)

var (
	// ErrMigrationAborted reports that copying failed partway and the
	// previously active backend remains authoritative.
	ErrMigrationAborted = errors.New("migrate: migration aborted, previous backend kept")

	// ErrConcurrentMigration reports that another migration is in progress.
	ErrConcurrentMigration = errors.New("migrate: another migration is in progress")
)

// Source is the cache-side contract the coordinator needs: flush pending
// state into the active backend, then swap it.
type Source interface {
	FlushAll(ctx context.Context) error
	Backend() storage.Backend
	SwapBackend(b storage.Backend) storage.Backend
}

// Coordinator runs at most one migration at a time.
type Coordinator struct {
	log     *logger.Logger
	source  Source
	running atomic.Bool
}

func New(l *logger.Logger, source Source) *Coordinator {
	return &Coordinator{log: l, source: source}
}

// Running reports whether a migration is currently in progress.
func (c *Coordinator) Running() bool {
	return c.running.Load()
}

// Run copies every record from the active backend into target, then makes
// target the active backend and closes the old one. On any copy failure the
// target is closed, the old backend stays active and ErrMigrationAborted is
// returned. The caller owns target until the swap succeeds.
func (c *Coordinator) Run(ctx context.Context, target storage.Backend) error {
	if !c.running.CompareAndSwap(false, true) {
		return ErrConcurrentMigration
	}
	defer c.running.Store(false)

	if err := c.copy(ctx, target); err != nil {
		metrics.BackendMigrationFailuresTotal.Inc()
		if cerr := target.Close(); cerr != nil {
			c.log.Error("failed to close migration target", cerr)
		}
		return fmt.Errorf("%w: %v", ErrMigrationAborted, err)
	}

	old := c.source.SwapBackend(target)
	if err := old.Close(); err != nil {
		c.log.Error("failed to close previous backend", err)
	}

	metrics.BackendMigrationsTotal.Inc()
	c.log.Info("backend migration completed")
	return nil
}

func (c *Coordinator) copy(ctx context.Context, target storage.Backend) error {
	// Fold in-memory state into the old backend first so the copied set is
	// complete up to this point.
	if err := c.source.FlushAll(ctx); err != nil {
		return fmt.Errorf("flush before migration: %w", err)
	}

	records, err := c.source.Backend().LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("load records from active backend: %w", err)
	}

	c.log.Info("copying records to new backend", zap.Int("count", len(records)))

	for _, record := range records {
		if err := target.Save(ctx, record); err != nil {
			return fmt.Errorf("copy record %s: %w", record.ID, err)
		}
	}
	return nil
}
