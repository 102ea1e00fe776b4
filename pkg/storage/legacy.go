package storage

import (
	"context"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/annel0/StatsPlugin/pkg/codec"
	"github.com/annel0/StatsPlugin/pkg/metrics"
	"github.com/annel0/StatsPlugin/pkg/stats"
)

// legacyAggregateFile is the pre-split format: every player's record in one
// JSON document, either an object keyed by uuid or an array of records.
const legacyAggregateFile = "stats.json"

const backupSuffix = ".bak"

// yamlRecord mirrors the key names of the oldest per-player format.
type yamlRecord struct {
	UUID             string  `yaml:"uuid"`
	PlayerName       string  `yaml:"player_name"`
	PlayTime         int     `yaml:"playTime"`
	MobsKilled       int     `yaml:"mobsKilled"`
	ItemsEaten       int     `yaml:"itemsEaten"`
	DistanceTraveled float64 `yaml:"distanceTraveled"`
	BlocksBroken     int     `yaml:"blocksBroken"`
	Deaths           int     `yaml:"deaths"`
	ItemsCrafted     int     `yaml:"itemsCrafted"`
	ItemsUsed        int     `yaml:"itemsUsed"`
	ChestsOpened     int     `yaml:"chestsOpened"`
	MessagesSent     int     `yaml:"messagesSent"`
}

// migrateLegacy explodes a legacy aggregate stats.json into per-player files.
// It runs at most once per backend lifetime, and when no legacy file is
// present the check is a single stat call. The original is renamed with a
// backup suffix, never deleted, which also makes a second run a no-op.
func (b *FileBackend) migrateLegacy(ctx context.Context) {
	b.migrateOnce.Do(func() {
		legacyPath := filepath.Join(b.dir, legacyAggregateFile)
		data, err := os.ReadFile(legacyPath)
		if os.IsNotExist(err) {
			return
		}
		if err != nil {
			b.log.Error("failed to read legacy aggregate stats file", err)
			return
		}

		b.log.Info("migrating legacy aggregate stats file", zap.String("path", legacyPath))

		migrated := 0
		var byID map[string]json.RawMessage
		if err := json.Unmarshal(data, &byID); err == nil {
			for key, raw := range byID {
				id, err := uuid.Parse(key)
				if err != nil {
					b.log.Warn("skipping legacy record with invalid uuid key", zap.String("key", key))
					continue
				}
				migrated += b.migrateLegacyRecord(ctx, raw, id)
			}
		} else {
			var records []json.RawMessage
			if err := json.Unmarshal(data, &records); err != nil {
				b.log.Error("legacy aggregate stats file is neither object nor array", err)
				return
			}
			for _, raw := range records {
				// Array entries must carry their own uuid.
				migrated += b.migrateLegacyRecord(ctx, raw, uuid.Nil)
			}
		}

		if err := os.Rename(legacyPath, legacyPath+backupSuffix); err != nil {
			b.log.Error("failed to move legacy aggregate stats file to backup", err)
			return
		}
		b.log.Info("legacy aggregate migration complete", zap.Int("records", migrated))
	})
}

func (b *FileBackend) migrateLegacyRecord(ctx context.Context, raw json.RawMessage, fallback uuid.UUID) int {
	s, err := codec.Decode(raw, fallback)
	if err != nil || s.ID == uuid.Nil {
		b.log.Warn("skipping malformed legacy record", zap.Error(err))
		return 0
	}
	if err := b.Save(ctx, s); err != nil {
		b.log.Error("failed to rewrite legacy record", err, zap.String("player_id", s.ID.String()))
		return 0
	}
	metrics.LegacyRecordsMigratedTotal.Inc()
	return 1
}

// loadLegacyYAML upgrades one legacy per-player YAML file in place: decode,
// rewrite as JSON, rename the original to its backup name. A YAML file whose
// JSON counterpart already exists is left alone: it is a leftover from a
// failed backup rename, and rewriting it would clobber newer saves with the
// stale legacy values.
func (b *FileBackend) loadLegacyYAML(ctx context.Context, path string, id uuid.UUID) (stats.PlayerStats, bool) {
	if _, err := os.Stat(b.path(id)); err == nil {
		return stats.PlayerStats{}, false
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return stats.PlayerStats{}, false
	}

	var rec yamlRecord
	if err := yaml.Unmarshal(data, &rec); err != nil {
		b.log.Warn("skipping malformed legacy yaml stats", zap.String("file", path), zap.Error(err))
		return stats.PlayerStats{}, false
	}

	if rec.UUID != "" {
		parsed, err := uuid.Parse(rec.UUID)
		if err != nil {
			b.log.Warn("skipping legacy yaml stats with invalid uuid", zap.String("file", path))
			return stats.PlayerStats{}, false
		}
		id = parsed
	}

	s := stats.PlayerStats{
		ID:               id,
		Name:             rec.PlayerName,
		PlayTime:         rec.PlayTime,
		MobsKilled:       rec.MobsKilled,
		ItemsEaten:       rec.ItemsEaten,
		DistanceTraveled: rec.DistanceTraveled,
		BlocksBroken:     rec.BlocksBroken,
		Deaths:           rec.Deaths,
		ItemsCrafted:     rec.ItemsCrafted,
		ItemsUsed:        rec.ItemsUsed,
		ChestsOpened:     rec.ChestsOpened,
		MessagesSent:     rec.MessagesSent,
	}

	if err := b.Save(ctx, s); err != nil {
		b.log.Error("failed to rewrite legacy yaml stats", err, zap.String("file", path))
		return stats.PlayerStats{}, false
	}
	if err := os.Rename(path, path+backupSuffix); err != nil {
		b.log.Warn("failed to move legacy yaml stats to backup", zap.String("file", path), zap.Error(err))
	}
	metrics.LegacyRecordsMigratedTotal.Inc()
	return s, true
}
