package database_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guidestats/internal/config"
	"guidestats/internal/database"
	"guidestats/internal/testsupport"
)

func TestMigrateDatabase(t *testing.T) {
	cfg := &config.Config{
		AppName:      "guidestats",
		Environment:  config.Test,
		DatabasePath: t.TempDir(),
	}
	dm := database.NewDBManager(cfg, testsupport.GetLogger())
	require.NoError(t, dm.Init())
	db := dm.GetConnection()
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, dm.MigrateDatabase())
	assert.FileExists(t, filepath.Join(cfg.DatabasePath, "guidestats-test.db"))

	for _, table := range []string{"visit_events", "custom_events", "sessions"} {
		assert.True(t, db.Migrator().HasTable(table), table)
	}

	var indexes []string
	require.NoError(t, db.Raw(`SELECT name FROM sqlite_master WHERE type = 'index' AND name LIKE 'idx_%'`).Scan(&indexes).Error)
	assert.Contains(t, indexes, "idx_visit_ts_page_type")
	assert.Contains(t, indexes, "idx_visit_ts_session")
	assert.Contains(t, indexes, "idx_visit_session")

	// Migrations are repeatable.
	require.NoError(t, dm.MigrateDatabase())
}
