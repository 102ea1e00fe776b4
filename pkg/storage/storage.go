// Package storage persists player statistics through one of two
// interchangeable backends: a per-player flat-file store or a PostgreSQL
// table. Both expose identical result semantics; only their performance
// characteristics differ.
package storage

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/annel0/StatsPlugin/pkg/stats"
)

// ErrBackendUnavailable marks a connection or disk failure. Initialization
// failures carrying it are fatal to the backend's construction; per-operation
// failures are surfaced to the caller and logged.
var ErrBackendUnavailable = errors.New("storage backend unavailable")

// Backend is the contract every storage variant implements.
//
// Load never reports "not found": a missing record is synthesized as an empty
// record tagged with the requested id, persisted, and returned, so callers
// always receive a usable record. A hard I/O failure is returned as an error
// instead, which is how "never existed" and "could not be read" stay
// distinguishable.
type Backend interface {
	// Save persists a snapshot of one player's stats.
	Save(ctx context.Context, s stats.PlayerStats) error

	// Load returns the persisted stats for a player, synthesizing and
	// persisting an empty record when none exists.
	Load(ctx context.Context, id uuid.UUID) (stats.PlayerStats, error)

	// LoadAll returns every persisted record. Individual unreadable records
	// are logged and skipped, never aborting the scan.
	LoadAll(ctx context.Context) ([]stats.PlayerStats, error)

	// TopN returns up to limit records ordered descending by the given
	// metric. Records with a zero value for the metric are excluded, ties
	// break deterministically by player id, and limit <= 0 means no limit.
	TopN(ctx context.Context, metric stats.Metric, limit int) ([]stats.PlayerStats, error)

	// Close releases the backend's resources.
	Close() error
}
