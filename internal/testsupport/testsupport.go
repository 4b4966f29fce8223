package testsupport

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"guidestats/internal/database"
	"guidestats/internal/timeframe"
	"guidestats/internal/visits"
)

// testDBCache caches test databases by root test name so setup helpers
// called from subtests share one database.
var testDBCache = make(map[string]*gorm.DB)
var testDBCacheMu sync.Mutex

// SetupTestDB creates a migrated in-memory database for the running test.
// The pool is capped at one connection so concurrent writers are serialized
// the same way the WAL-mode file database serializes them.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	rootName := t.Name()
	if idx := strings.Index(rootName, "/"); idx > 0 {
		rootName = rootName[:idx]
	}

	testDBCacheMu.Lock()
	if db, exists := testDBCache[rootName]; exists {
		testDBCacheMu.Unlock()
		return db
	}
	testDBCacheMu.Unlock()

	dsn := fmt.Sprintf("file:test_%s_%d?mode=memory&cache=shared", rootName, time.Now().UnixNano())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("testsupport: failed to open test database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("testsupport: failed to access sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := database.Migrate(db); err != nil {
		t.Fatalf("testsupport: failed to migrate models: %v", err)
	}

	testDBCacheMu.Lock()
	testDBCache[rootName] = db
	testDBCacheMu.Unlock()

	t.Cleanup(func() {
		testDBCacheMu.Lock()
		delete(testDBCache, rootName)
		testDBCacheMu.Unlock()
		sqlDB.Close()
	})

	return db
}

// CleanAllTables clears every application table.
func CleanAllTables(db *gorm.DB) {
	db.Transaction(func(tx *gorm.DB) error {
		for _, table := range []string{"visit_events", "custom_events", "sessions"} {
			tx.Exec("DELETE FROM " + table)
			tx.Exec("DELETE FROM sqlite_sequence WHERE name=?", table)
		}
		return nil
	})
}

// GetLogger returns a test logger
func GetLogger() *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError})
	return slog.New(handler)
}

// Clock is a manually advanced time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock starts a clock at the given instant.
func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Set jumps the clock to t.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// Provider exposes the clock as a timeframe.TimeProvider.
func (c *Clock) Provider() timeframe.TimeProvider {
	return clockProvider{c}
}

type clockProvider struct{ c *Clock }

func (p clockProvider) Now(loc *time.Location) time.Time {
	return p.c.Now().In(loc)
}

// NewTrackPayload returns a valid desktop character-page visit.
func NewTrackPayload(sessionID string) visits.TrackPayload {
	return visits.TrackPayload{
		SessionID:        sessionID,
		Page:             "/character/hu-tao",
		PageType:         "character",
		PageID:           "hu-tao",
		Browser:          "Chrome",
		BrowserVersion:   "120.0.0.0",
		OS:               "Windows",
		OSVersion:        "10",
		Device:           "desktop",
		ScreenResolution: "1920x1080",
		Country:          "US",
		Timezone:         "America/New_York",
		Language:         "en-US",
		TimeOnPage:       45,
		ScrollDepth:      80,
		Clicks:           3,
		LoadTime:         850,
		IsFirstVisit:     true,
	}
}

// InsertVisit stores a visit with an explicit timestamp, bypassing ingestion.
func InsertVisit(t *testing.T, db *gorm.DB, sessionKey string, ts time.Time, mutate func(*visits.VisitEvent)) *visits.VisitEvent {
	t.Helper()
	p := NewTrackPayload(sessionKey)
	event := p.ToEvent(sessionKey, "", ts)
	if mutate != nil {
		mutate(event)
	}
	if err := db.Create(event).Error; err != nil {
		t.Fatalf("testsupport: failed to insert visit: %v", err)
	}
	return event
}
