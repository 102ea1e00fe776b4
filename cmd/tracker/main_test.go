package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/StatsPlugin/pkg/cache"
	"github.com/annel0/StatsPlugin/pkg/config"
	"github.com/annel0/StatsPlugin/pkg/logger"
	"github.com/annel0/StatsPlugin/pkg/migrate"
	"github.com/annel0/StatsPlugin/pkg/rank"
	"github.com/annel0/StatsPlugin/pkg/storage"
)

func TestBackendKind(t *testing.T) {
	fb, err := storage.NewFileBackend(t.TempDir(), logger.Nop())
	require.NoError(t, err)
	assert.Equal(t, config.StorageFile, backendKind(fb))
	assert.Equal(t, "", backendKind(nil))
}

func TestMigrateFuncRejectsActiveType(t *testing.T) {
	l := logger.Nop()
	fb, err := storage.NewFileBackend(t.TempDir(), l)
	require.NoError(t, err)

	agg := cache.New(l, fb)
	coordinator := migrate.New(l, agg)
	ranker := rank.New(l, agg, nil, 0)
	cfg := &config.AppConfig{Storage: config.StorageConfig{Type: config.StorageFile, Dir: t.TempDir()}}

	migrateFn := newMigrateFunc(cfg, l, agg, coordinator, ranker)

	err = migrateFn(context.Background(), config.StorageFile)
	require.Error(t, err, "switching to the already-active type is refused")
	assert.Contains(t, err.Error(), "already active")
	assert.Same(t, fb, agg.Backend(), "active backend is untouched")
	assert.False(t, coordinator.Running())
}

func TestMigrateFuncRejectsUnknownType(t *testing.T) {
	l := logger.Nop()
	fb, err := storage.NewFileBackend(t.TempDir(), l)
	require.NoError(t, err)

	agg := cache.New(l, fb)
	migrateFn := newMigrateFunc(&config.AppConfig{}, l, agg, migrate.New(l, agg), rank.New(l, agg, nil, 0))

	err = migrateFn(context.Background(), "tape")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown backend type")
	assert.Same(t, fb, agg.Backend())
}
