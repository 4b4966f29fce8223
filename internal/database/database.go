package database

import (
	"fmt"
	"log/slog"

	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"

	"guidestats/internal/config"
	"guidestats/internal/sessions"
	"guidestats/internal/visits"
)

// DBManager wraps cartridge's sqlite.Manager with the guidestats schema.
type DBManager struct {
	*sqlite.Manager
	logger *slog.Logger
}

// Models lists every table owned by guidestats, in migration order.
func Models() []any {
	return []any{
		&visits.VisitEvent{},
		&visits.CustomEvent{},
		&sessions.Session{},
	}
}

// compositeIndexes back the dashboard queries, which filter on the time
// window first and then group by a dimension. GORM tags only cover the
// single-column indexes.
var compositeIndexes = []string{
	`CREATE INDEX IF NOT EXISTS idx_visit_ts_page_type ON visit_events (timestamp, page_type)`,
	`CREATE INDEX IF NOT EXISTS idx_visit_ts_session ON visit_events (timestamp, session_id)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_first_visit ON sessions (first_visit)`,
}

// Migrate creates or updates the schema on db.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	for _, stmt := range compositeIndexes {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	return nil
}

// NewDBManager creates a new database manager using cartridge's sqlite.Manager.
func NewDBManager(cfg *config.Config, logger *slog.Logger) *DBManager {
	sqliteCfg := sqlite.Config{
		Path:         cfg.GetDatabasePath(),
		MaxOpenConns: cfg.GetMaxOpenConns(),
		MaxIdleConns: cfg.GetMaxIdleConns(),
		Logger:       logger,
		EnableWAL:    true,
		TxImmediate:  true,
		BusyTimeout:  5000,
	}

	return &DBManager{
		Manager: sqlite.NewManager(sqliteCfg),
		logger:  logger,
	}
}

// Init opens the connection pool.
func (dm *DBManager) Init() error {
	_, err := dm.Manager.Connect()
	return err
}

// MigrateDatabase creates or updates the event and session tables.
func (dm *DBManager) MigrateDatabase() error {
	db := dm.GetConnection()
	if db == nil {
		return gorm.ErrInvalidDB
	}

	if err := db.Transaction(Migrate); err != nil {
		dm.logger.Error("Failed to auto-migrate database", slog.Any("error", err))
		return err
	}

	if err := dm.CheckpointWAL("FULL"); err != nil {
		dm.logger.Warn("Failed to checkpoint WAL after migration", slog.Any("error", err))
	}

	dm.logger.Info("Database migration completed successfully")
	return nil
}
