// Package worker runs fire-and-forget persistence in the background. Callers
// submit a snapshot and move on; write failures are logged and counted, never
// surfaced back, matching the subsystem's eventual-durability contract.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/annel0/StatsPlugin/pkg/logger"
	"github.com/annel0/StatsPlugin/pkg/metrics"
	"github.com/annel0/StatsPlugin/pkg/stats"
)

// SaveFunc persists one snapshot. The pool resolves it at execution time, so
// a backend swapped mid-flight receives all work submitted after the swap.
type SaveFunc func(ctx context.Context, s stats.PlayerStats) error

// Pool is a fixed set of workers draining snapshot jobs. Multiple snapshots
// of the same player queued back to back coalesce: only the latest is
// written, which keeps a chatty mutator from turning into a write storm.
type Pool struct {
	log     *logger.Logger
	save    SaveFunc
	workers int

	mu      sync.Mutex // guards pending
	pending map[uuid.UUID]stats.PlayerStats

	// closeMu is held for reading across the closed check and the channel
	// send in Submit, and for writing around close(ids). This keeps a Submit
	// racing Shutdown from sending on the closed channel. Workers never take
	// closeMu, so a Submit blocked on a full channel still drains.
	closeMu sync.RWMutex
	closed  bool

	ids chan uuid.UUID
	wg  sync.WaitGroup
}

// NewPool creates a Pool with the given worker count.
func NewPool(l *logger.Logger, save SaveFunc, workers int) *Pool {
	if workers < 1 {
		workers = 1
	}
	return &Pool{
		log:     l,
		save:    save,
		workers: workers,
		pending: make(map[uuid.UUID]stats.PlayerStats),
		ids:     make(chan uuid.UUID, 1024),
	}
}

// Start launches the worker goroutines. Workers are not tied to a caller
// context: pending writes drain to completion on shutdown rather than being
// abandoned mid-flight.
func (p *Pool) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.run(i)
	}
}

// Submit queues a snapshot for persistence. If a snapshot for the same
// player is already pending it is replaced, not queued again.
func (p *Pool) Submit(s stats.PlayerStats) {
	p.closeMu.RLock()
	defer p.closeMu.RUnlock()

	if p.closed {
		p.log.Warn("dropping snapshot submitted after pool shutdown",
			zap.String("player_id", s.ID.String()))
		return
	}

	p.mu.Lock()
	_, queued := p.pending[s.ID]
	p.pending[s.ID] = s
	p.mu.Unlock()

	if !queued {
		p.ids <- s.ID
	}
}

const saveTimeout = 30 * time.Second

func (p *Pool) run(id int) {
	defer p.wg.Done()

	p.log.Debug("save worker started", zap.Int("worker_id", id))

	for playerID := range p.ids {
		p.mu.Lock()
		snapshot, ok := p.pending[playerID]
		delete(p.pending, playerID)
		p.mu.Unlock()
		if !ok {
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
		start := time.Now()
		err := p.save(ctx, snapshot)
		cancel()
		if err != nil {
			p.log.Error("failed to persist player stats", err,
				zap.String("player_id", playerID.String()))
			metrics.SaveErrorsTotal.Inc()
			continue
		}
		metrics.SaveLatency.Observe(time.Since(start).Seconds())
		metrics.SavesTotal.Inc()
	}
}

// Shutdown stops accepting work, drains what is pending, and waits for the
// workers up to the context deadline.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.closeMu.Lock()
	if p.closed {
		p.closeMu.Unlock()
		return nil
	}
	p.closed = true
	close(p.ids)
	p.closeMu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
