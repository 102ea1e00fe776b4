package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/annel0/StatsPlugin/pkg/logger"
	"github.com/annel0/StatsPlugin/pkg/metrics"
	"github.com/annel0/StatsPlugin/pkg/stats"
)

// PostgresConfig holds database connection settings
type PostgresConfig struct {
	Host           string
	Port           int
	Database       string
	User           string
	Password       string
	MinConns       int32
	MaxConns       int32
	ConnectTimeout time.Duration
}

// DSN renders the pool connection string.
func (c PostgresConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password),
		Host:   fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:   c.Database,
	}
	return u.String()
}

// PostgresBackend persists player stats as one row per player in a single
// table, keyed by the uuid string. Saves are single-statement upserts, and
// top-N ordering and limiting are pushed down to the database.
type PostgresBackend struct {
	pool *pgxpool.Pool
	log  *logger.Logger
}

const createTableStmt = `
CREATE TABLE IF NOT EXISTS player_stats (
	uuid              TEXT PRIMARY KEY,
	player_name       TEXT NOT NULL DEFAULT '',
	play_time         BIGINT NOT NULL DEFAULT 0,
	mobs_killed       BIGINT NOT NULL DEFAULT 0,
	items_eaten       BIGINT NOT NULL DEFAULT 0,
	distance_traveled DOUBLE PRECISION NOT NULL DEFAULT 0,
	blocks_broken     BIGINT NOT NULL DEFAULT 0,
	deaths            BIGINT NOT NULL DEFAULT 0,
	items_crafted     BIGINT NOT NULL DEFAULT 0,
	items_used        BIGINT NOT NULL DEFAULT 0,
	chests_opened     BIGINT NOT NULL DEFAULT 0,
	messages_sent     BIGINT NOT NULL DEFAULT 0
)`

const statsColumns = `uuid, player_name, play_time, mobs_killed, items_eaten, distance_traveled,
	blocks_broken, deaths, items_crafted, items_used, chests_opened, messages_sent`

// NewPostgresBackend creates the connection pool, verifies connectivity, and
// applies the schema idempotently. Any failure here is fatal to construction.
func NewPostgresBackend(ctx context.Context, cfg PostgresConfig, l *logger.Logger) (*PostgresBackend, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}

	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	if cfg.ConnectTimeout > 0 {
		poolCfg.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("%w: create connection pool: %v", ErrBackendUnavailable, err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: ping database: %v", ErrBackendUnavailable, err)
	}

	if _, err := pool.Exec(ctx, createTableStmt); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: create player_stats table: %v", ErrBackendUnavailable, err)
	}

	return &PostgresBackend{pool: pool, log: l}, nil
}

// Save upserts all fields atomically in one statement.
func (b *PostgresBackend) Save(ctx context.Context, s stats.PlayerStats) error {
	const query = `
		INSERT INTO player_stats (` + statsColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (uuid) DO UPDATE SET
			player_name = EXCLUDED.player_name,
			play_time = EXCLUDED.play_time,
			mobs_killed = EXCLUDED.mobs_killed,
			items_eaten = EXCLUDED.items_eaten,
			distance_traveled = EXCLUDED.distance_traveled,
			blocks_broken = EXCLUDED.blocks_broken,
			deaths = EXCLUDED.deaths,
			items_crafted = EXCLUDED.items_crafted,
			items_used = EXCLUDED.items_used,
			chests_opened = EXCLUDED.chests_opened,
			messages_sent = EXCLUDED.messages_sent
	`
	_, err := b.pool.Exec(ctx, query,
		s.ID.String(), s.Name, s.PlayTime, s.MobsKilled, s.ItemsEaten, s.DistanceTraveled,
		s.BlocksBroken, s.Deaths, s.ItemsCrafted, s.ItemsUsed, s.ChestsOpened, s.MessagesSent)
	if err != nil {
		return fmt.Errorf("%w: save stats for %s: %v", ErrBackendUnavailable, s.ID, err)
	}
	return nil
}

func (b *PostgresBackend) Load(ctx context.Context, id uuid.UUID) (stats.PlayerStats, error) {
	row := b.pool.QueryRow(ctx,
		`SELECT `+statsColumns+` FROM player_stats WHERE uuid = $1`, id.String())

	s, err := scanStats(row)
	if errors.Is(err, pgx.ErrNoRows) {
		empty := stats.PlayerStats{ID: id}
		if err := b.Save(ctx, empty); err != nil {
			return stats.PlayerStats{}, err
		}
		return empty, nil
	}
	if err != nil {
		var scanErr malformedRowError
		if errors.As(err, &scanErr) {
			b.log.Warn("substituting empty record for malformed stats row",
				zap.String("player_id", id.String()), zap.Error(err))
			metrics.LoadErrorsTotal.Inc()
			return stats.PlayerStats{ID: id}, nil
		}
		return stats.PlayerStats{}, fmt.Errorf("%w: load stats for %s: %v", ErrBackendUnavailable, id, err)
	}
	return s, nil
}

func (b *PostgresBackend) LoadAll(ctx context.Context) ([]stats.PlayerStats, error) {
	rows, err := b.pool.Query(ctx, `SELECT `+statsColumns+` FROM player_stats ORDER BY uuid`)
	if err != nil {
		return nil, fmt.Errorf("%w: load all stats: %v", ErrBackendUnavailable, err)
	}
	defer rows.Close()

	var all []stats.PlayerStats
	for rows.Next() {
		s, err := scanStats(rows)
		if err != nil {
			b.log.Warn("skipping malformed stats row", zap.Error(err))
			metrics.LoadErrorsTotal.Inc()
			continue
		}
		all = append(all, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: load all stats: %v", ErrBackendUnavailable, err)
	}
	return all, nil
}

// TopN pushes filtering, ordering and limiting to the database. The column
// name comes from the fixed metric table, never from caller input.
func (b *PostgresBackend) TopN(ctx context.Context, metric stats.Metric, limit int) ([]stats.PlayerStats, error) {
	if !metric.Valid() {
		return nil, fmt.Errorf("unknown metric %q", metric)
	}
	col := metric.Column()

	query := fmt.Sprintf(
		`SELECT `+statsColumns+` FROM player_stats WHERE %s > 0 ORDER BY %s DESC, uuid`, col, col)
	var (
		rows pgx.Rows
		err  error
	)
	if limit > 0 {
		rows, err = b.pool.Query(ctx, query+` LIMIT $1`, limit)
	} else {
		rows, err = b.pool.Query(ctx, query)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: top %s: %v", ErrBackendUnavailable, metric, err)
	}
	defer rows.Close()

	var top []stats.PlayerStats
	for rows.Next() {
		s, err := scanStats(rows)
		if err != nil {
			b.log.Warn("skipping malformed stats row", zap.Error(err))
			continue
		}
		top = append(top, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: top %s: %v", ErrBackendUnavailable, metric, err)
	}
	return top, nil
}

func (b *PostgresBackend) Close() error {
	b.pool.Close()
	return nil
}

// malformedRowError distinguishes a structurally bad row from a transport
// failure so Load can substitute an empty record instead of erroring.
type malformedRowError struct {
	err error
}

func (e malformedRowError) Error() string { return "malformed stats row: " + e.err.Error() }
func (e malformedRowError) Unwrap() error { return e.err }

func scanStats(row pgx.Row) (stats.PlayerStats, error) {
	var (
		rawID string
		s     stats.PlayerStats
	)
	if err := row.Scan(&rawID, &s.Name, &s.PlayTime, &s.MobsKilled, &s.ItemsEaten,
		&s.DistanceTraveled, &s.BlocksBroken, &s.Deaths, &s.ItemsCrafted,
		&s.ItemsUsed, &s.ChestsOpened, &s.MessagesSent); err != nil {
		return stats.PlayerStats{}, err
	}
	id, err := uuid.Parse(rawID)
	if err != nil {
		return stats.PlayerStats{}, malformedRowError{err: err}
	}
	s.ID = id
	return s, nil
}

var _ Backend = (*PostgresBackend)(nil)
