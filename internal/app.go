// Package internal contains core application functionality
package internal

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/karloscodes/cartridge"

	v1 "guidestats/api/v1"
	"guidestats/internal/archive"
	"guidestats/internal/config"
	"guidestats/internal/database"
	"guidestats/internal/jobs"
	"guidestats/internal/metrics"
	"guidestats/internal/pkg/geoip"
	"guidestats/internal/sessions"
	"guidestats/internal/stats"
	"guidestats/internal/visits"
)

// archiveDrainTimeout bounds how long shutdown waits for the archive queue.
const archiveDrainTimeout = 10 * time.Second

// Application wraps cartridge.Application with the guidestats components
// that outlive a single request.
type Application struct {
	*cartridge.Application
	DBManager *database.DBManager
	Metrics   *metrics.Metrics
	Archiver  *archive.Archiver
	Locator   *geoip.Locator
}

// NewApp creates a new application instance with default settings
func NewApp() (*Application, error) {
	cfg := config.GetConfig()
	return NewAppWithConfig(cfg)
}

// NewAppWithConfig creates a new application with the provided config
func NewAppWithConfig(cfg *config.Config) (*Application, error) {
	// Create logger
	logger := cartridge.NewLogger(cfg, nil)

	dbManager := database.NewDBManager(cfg, logger)
	if err := dbManager.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	db := dbManager.GetConnection()

	m := metrics.New()
	locator := geoip.NewLocator(cfg.GeoDBPath, logger)
	archiver := newArchiver(cfg, logger, m)

	handler := v1.NewHandler(v1.Deps{
		Store:      visits.NewStore(db, logger),
		Sessions:   sessions.NewAggregator(db, logger, sessions.WithTimeout(cfg.SessionTimeout())),
		Stats:      stats.NewAggregator(db, logger, cfg.StatsWorkers),
		Metrics:    m,
		Locator:    locator,
		Archiver:   archiver,
		Logger:     logger,
		Secret:     cfg.PrivateKey,
		SiteHost:   cfg.SiteDomain,
		ExcludeIPs: cfg.ExcludedIPList(),
		StatsLimit: cfg.StatsDefaultLimit,
	})

	scheduler := jobs.NewScheduler(logger)
	scheduler.Schedule(jobs.NewCheckpointJob(dbManager, logger), cfg.CheckpointInterval())
	if locator.Enabled() {
		scheduler.Schedule(jobs.NewGeoLiteReloadJob(cfg.GeoDBPath, locator, logger), cfg.JobInterval())
	}

	// Workers stop in order, so the archive drains after the jobs halt.
	app, err := cartridge.NewApplication(cartridge.ApplicationOptions{
		Config:       cfg,
		Logger:       logger,
		DBManager:    dbManager,
		ServerConfig: NewServerConfig(),
		RouteMountFunc: NewRouteMount(RouteDeps{
			Env:     cfg,
			Handler: handler,
			Metrics: m,
		}),
		BackgroundWorkers: []cartridge.BackgroundWorker{
			scheduler,
			archive.NewWorker(archiver, archiveDrainTimeout),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create application: %w", err)
	}

	return &Application{
		Application: app,
		DBManager:   dbManager,
		Metrics:     m,
		Archiver:    archiver,
		Locator:     locator,
	}, nil
}

// newArchiver connects the ClickHouse mirror. An unreachable ClickHouse only
// disables archiving; ingestion never depends on it.
func newArchiver(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *archive.Archiver {
	if !cfg.ArchiveEnabled() {
		logger.Info("ClickHouse archive not configured - archiving disabled")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sink, err := archive.NewClickHouseSink(ctx, archive.ClickHouseOptions{
		Addr:     cfg.ClickHouseAddr,
		Database: cfg.ClickHouseDatabase,
		Username: cfg.ClickHouseUsername,
		Password: cfg.ClickHousePassword,
	})
	if err != nil {
		logger.Warn("ClickHouse archive unavailable - archiving disabled",
			slog.String("addr", cfg.ClickHouseAddr),
			slog.Any("error", err))
		return nil
	}

	return archive.New(sink, logger, m, archive.Options{
		BatchSize:     cfg.ArchiveBatchSize,
		BufferSize:    cfg.ArchiveBufferSize,
		FlushInterval: cfg.ArchiveFlushInterval(),
	})
}

// Shutdown stops the workers and the HTTP server, then releases the GeoIP
// reader and checkpoints the WAL.
func (a *Application) Shutdown(ctx context.Context) error {
	err := a.Application.Shutdown(ctx)

	if cerr := a.Locator.Close(); cerr != nil {
		a.Logger.Warn("Failed to close GeoIP database", slog.Any("error", cerr))
	}
	if cerr := a.DBManager.CheckpointWAL("FULL"); cerr != nil {
		a.Logger.Warn("Failed to checkpoint WAL on shutdown", slog.Any("error", cerr))
	}

	return err
}
