package geoip

import (
	"log/slog"
	"net"
	"os"
	"sync"

	"github.com/oschwald/geoip2-golang"
)

// Location is the result of an IP lookup. Country is an ISO alpha-2 code.
type Location struct {
	Country string
	City    string
}

// Locator resolves client IPs against a GeoLite2 database. A Locator with no
// database answers every lookup with an empty Location, so GeoIP stays
// optional.
type Locator struct {
	path   string
	logger *slog.Logger

	mu sync.RWMutex
	db *geoip2.Reader
}

// NewLocator opens the database at path. Missing or unreadable files are
// logged and leave the locator disabled.
func NewLocator(path string, logger *slog.Logger) *Locator {
	l := &Locator{path: path, logger: logger}
	l.db = l.open()
	return l
}

func (l *Locator) open() *geoip2.Reader {
	if l.path == "" {
		l.logger.Debug("GeoIP database path not configured - GeoIP features disabled")
		return nil
	}

	fileInfo, err := os.Stat(l.path)
	if os.IsNotExist(err) {
		l.logger.Info("GeoLite2 database not found - GeoIP features disabled",
			slog.String("path", l.path),
			slog.String("hint", "Download from https://www.maxmind.com/en/geolite2/signup"))
		return nil
	} else if err != nil {
		l.logger.Warn("Error checking GeoLite2 database file",
			slog.String("path", l.path),
			slog.Any("error", err))
		return nil
	}

	db, err := geoip2.Open(l.path)
	if err != nil {
		l.logger.Error("Failed to open GeoLite2 database",
			slog.String("path", l.path),
			slog.Any("error", err))
		return nil
	}

	l.logger.Info("GeoLite2 database initialized successfully",
		slog.String("path", l.path),
		slog.String("db_type", db.Metadata().DatabaseType),
		slog.Int64("size_bytes", fileInfo.Size()))
	return db
}

// Enabled reports whether a database is loaded.
func (l *Locator) Enabled() bool {
	if l == nil {
		return false
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.db != nil
}

// Lookup resolves ip. City databases yield a city name; country databases
// only the country.
func (l *Locator) Lookup(ip string) Location {
	if l == nil {
		return Location{}
	}
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return Location{}
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.db == nil {
		return Location{}
	}

	if city, err := l.db.City(parsed); err == nil {
		return Location{Country: city.Country.IsoCode, City: city.City.Names["en"]}
	}

	country, err := l.db.Country(parsed)
	if err != nil {
		l.logger.Debug("GeoIP lookup failed", slog.String("ip", ip), slog.Any("error", err))
		return Location{}
	}
	return Location{Country: country.Country.IsoCode}
}

// Reload reopens the database from disk, e.g. after a GeoLite update.
func (l *Locator) Reload() {
	db := l.open()

	l.mu.Lock()
	old := l.db
	l.db = db
	l.mu.Unlock()

	if old != nil {
		old.Close()
	}
	if db != nil {
		l.logger.Info("GeoLite2 database reloaded successfully")
	}
}

// Close releases the database.
func (l *Locator) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.db == nil {
		return nil
	}
	err := l.db.Close()
	l.db = nil
	return err
}
