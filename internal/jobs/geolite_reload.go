package jobs

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// Reloader is satisfied by the GeoIP locator.
type Reloader interface {
	Reload()
}

// GeoLiteReloadJob watches the GeoLite2 file and reloads the locator when an
// external updater (geoipupdate, a cron job) replaces it.
type GeoLiteReloadJob struct {
	path    string
	locator Reloader
	logger  *slog.Logger
	lastMod time.Time
}

// NewGeoLiteReloadJob records the current modification time so the first run
// does not reload a database that was just opened.
func NewGeoLiteReloadJob(path string, locator Reloader, logger *slog.Logger) *GeoLiteReloadJob {
	j := &GeoLiteReloadJob{path: path, locator: locator, logger: logger}
	if info, err := os.Stat(path); err == nil {
		j.lastMod = info.ModTime()
	}
	return j
}

func (j *GeoLiteReloadJob) Name() string { return "geolite_reload" }

func (j *GeoLiteReloadJob) Run(_ context.Context) error {
	if j.path == "" {
		return nil
	}

	info, err := os.Stat(j.path)
	if os.IsNotExist(err) {
		j.logger.Debug("GeoLite2 database not present, skipping reload", slog.String("path", j.path))
		return nil
	}
	if err != nil {
		return err
	}

	if !info.ModTime().After(j.lastMod) {
		return nil
	}

	j.logger.Info("GeoLite2 database changed on disk, reloading",
		slog.String("path", j.path),
		slog.Time("modified", info.ModTime()))
	j.lastMod = info.ModTime()
	j.locator.Reload()
	return nil
}
