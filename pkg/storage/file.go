package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/annel0/StatsPlugin/pkg/codec"
	"github.com/annel0/StatsPlugin/pkg/logger"
	"github.com/annel0/StatsPlugin/pkg/metrics"
	"github.com/annel0/StatsPlugin/pkg/stats"
)

// FileBackend stores one JSON file per player under a single directory,
// named "<uuid>.json". Saves for different players run concurrently; saves
// for the same player serialize on a per-player mutex, and each write lands
// as one complete encoded buffer.
//
// TopN loads every record and sorts in memory. That is O(n) over the whole
// player set and acceptable at single-server scale; it is not suitable for
// very large directories.
type FileBackend struct {
	log *logger.Logger
	dir string

	mu    sync.Mutex // guards locks
	locks map[uuid.UUID]*sync.Mutex

	migrateOnce sync.Once
}

// NewFileBackend opens (creating if needed) the stats directory.
func NewFileBackend(dir string, log *logger.Logger) (*FileBackend, error) {
	if dir == "" {
		return nil, fmt.Errorf("%w: stats directory is required", ErrBackendUnavailable)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create stats directory: %v", ErrBackendUnavailable, err)
	}
	return &FileBackend{
		log:   log,
		dir:   dir,
		locks: make(map[uuid.UUID]*sync.Mutex),
	}, nil
}

func (b *FileBackend) path(id uuid.UUID) string {
	return filepath.Join(b.dir, id.String()+".json")
}

func (b *FileBackend) lockFor(id uuid.UUID) *sync.Mutex {
	b.mu.Lock()
	defer b.mu.Unlock()
	l, ok := b.locks[id]
	if !ok {
		l = &sync.Mutex{}
		b.locks[id] = l
	}
	return l
}

// Save encodes the record fully in memory and writes it in one pass.
func (b *FileBackend) Save(ctx context.Context, s stats.PlayerStats) error {
	data, err := codec.Encode(s)
	if err != nil {
		return err
	}

	l := b.lockFor(s.ID)
	l.Lock()
	defer l.Unlock()

	if err := os.WriteFile(b.path(s.ID), data, 0o644); err != nil {
		return fmt.Errorf("%w: write stats for %s: %v", ErrBackendUnavailable, s.ID, err)
	}
	return nil
}

func (b *FileBackend) Load(ctx context.Context, id uuid.UUID) (stats.PlayerStats, error) {
	b.migrateLegacy(ctx)

	data, err := os.ReadFile(b.path(id))
	if os.IsNotExist(err) {
		if s, ok := b.loadLegacyYAML(ctx, filepath.Join(b.dir, id.String()+".yml"), id); ok {
			return s, nil
		}
		empty := stats.PlayerStats{ID: id}
		if err := b.Save(ctx, empty); err != nil {
			return stats.PlayerStats{}, err
		}
		return empty, nil
	}
	if err != nil {
		return stats.PlayerStats{}, fmt.Errorf("%w: read stats for %s: %v", ErrBackendUnavailable, id, err)
	}

	s, err := codec.Decode(data, id)
	if err != nil {
		// The broken file stays on disk for inspection; the player continues
		// from an empty record.
		b.log.Warn("substituting empty record for malformed stats file",
			zap.String("player_id", id.String()), zap.Error(err))
		metrics.LoadErrorsTotal.Inc()
		return stats.PlayerStats{ID: id}, nil
	}
	return s, nil
}

func (b *FileBackend) LoadAll(ctx context.Context) ([]stats.PlayerStats, error) {
	b.migrateLegacy(ctx)

	entries, err := os.ReadDir(b.dir)
	if err != nil {
		return nil, fmt.Errorf("%w: list stats directory: %v", ErrBackendUnavailable, err)
	}

	// os.ReadDir sorts by file name, so the load order (and therefore top-N
	// tie order) is the players' id order on both backends.
	var all []stats.PlayerStats
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		switch {
		case strings.HasSuffix(name, ".json") && name != legacyAggregateFile:
			id, err := uuid.Parse(strings.TrimSuffix(name, ".json"))
			if err != nil {
				b.log.Warn("skipping stats file with non-uuid name", zap.String("file", name))
				continue
			}
			data, err := os.ReadFile(filepath.Join(b.dir, name))
			if err != nil {
				b.log.Warn("skipping unreadable stats file", zap.String("file", name), zap.Error(err))
				metrics.LoadErrorsTotal.Inc()
				continue
			}
			s, err := codec.Decode(data, id)
			if err != nil {
				b.log.Warn("skipping malformed stats file", zap.String("file", name), zap.Error(err))
				metrics.LoadErrorsTotal.Inc()
				continue
			}
			all = append(all, s)

		case strings.HasSuffix(name, ".yml"):
			id, err := uuid.Parse(strings.TrimSuffix(name, ".yml"))
			if err != nil {
				continue
			}
			if s, ok := b.loadLegacyYAML(ctx, filepath.Join(b.dir, name), id); ok {
				all = append(all, s)
			}
		}
	}
	return all, nil
}

func (b *FileBackend) TopN(ctx context.Context, metric stats.Metric, limit int) ([]stats.PlayerStats, error) {
	if !metric.Valid() {
		return nil, fmt.Errorf("unknown metric %q", metric)
	}

	all, err := b.LoadAll(ctx)
	if err != nil {
		return nil, err
	}

	filtered := all[:0]
	for _, s := range all {
		if s.Value(metric) > 0 {
			filtered = append(filtered, s)
		}
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].Value(metric) > filtered[j].Value(metric)
	})

	if limit > 0 && limit < len(filtered) {
		filtered = filtered[:limit]
	}
	return filtered, nil
}

func (b *FileBackend) Close() error {
	return nil
}

var _ Backend = (*FileBackend)(nil)
