package sessions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"

	"guidestats/internal/classifier"
	"guidestats/internal/visits"
)

// DefaultTimeout is the inactivity gap after which a returning visitor starts
// a new visit within the same session.
const DefaultTimeout = 30 * time.Minute

// ErrNotFound is returned by Get for unknown session keys.
var ErrNotFound = errors.New("session not found")

// Engagement thresholds.
const (
	EngagedMinSeconds   = 30
	EngagedMinPageViews = 2
)

// Aggregator maintains the sessions table. Every update is a single
// INSERT ... ON CONFLICT statement so concurrent events for one key never
// lose increments.
type Aggregator struct {
	db      *gorm.DB
	logger  *slog.Logger
	timeout time.Duration
	now     func() time.Time
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(a *Aggregator) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// WithClock injects the time source used for lastVisit and gap detection.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) {
		if now != nil {
			a.now = now
		}
	}
}

func NewAggregator(db *gorm.DB, logger *slog.Logger, opts ...Option) *Aggregator {
	a := &Aggregator{
		db:      db,
		logger:  logger,
		timeout: DefaultTimeout,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// EngagementScore is the 0-100 score stored on every session:
// up to 40 points for time on site (one per 6s), 30 for page views (5 each),
// 15 for scroll depth and 15 for clicks (1.5 each). Inputs are capped at the
// point where their component saturates, so no product can overflow.
func EngagementScore(totalTime, pageViews, maxScroll, clicks int) int {
	score := min(totalTime, scoreTimeCap)/6 +
		min(pageViews, scoreViewsCap)*5 +
		min(maxScroll, 100)*15/100 +
		min(clicks, scoreClicksCap)*3/2
	return max(0, min(100, score))
}

// Saturation points of the engagement score components.
const (
	scoreTimeCap   = 240
	scoreViewsCap  = 6
	scoreClicksCap = 10
)

// IsEngaged reports whether the totals qualify the session as engaged.
func IsEngaged(totalTime, pageViews int) bool {
	return totalTime > EngagedMinSeconds || pageViews > EngagedMinPageViews
}

// engagementScoreSQL renders EngagementScore over SQL expressions. SQLite
// integer division matches Go's for the non-negative operands stored here.
func engagementScoreSQL(totalTime, pageViews, maxScroll, clicks string) string {
	return fmt.Sprintf(
		"MAX(0, MIN(100, MIN(%[1]s, %[5]d) / 6 + MIN(%[2]s, %[6]d) * 5 + MIN(%[3]s, 100) * 15 / 100 + MIN(%[4]s, %[7]d) * 3 / 2))",
		totalTime, pageViews, maxScroll, clicks, scoreTimeCap, scoreViewsCap, scoreClicksCap,
	)
}

// In DO UPDATE SET every right-hand side sees the pre-update row, so the
// derived columns are spelled out over old + excluded values.
var upsertSQL = func() string {
	newTime := "sessions.total_time_on_site + excluded.total_time_on_site"
	newViews := "sessions.page_views + 1"
	newScroll := "MAX(sessions.max_scroll_depth, excluded.max_scroll_depth)"
	newClicks := "sessions.total_clicks + excluded.total_clicks"
	gap := "excluded.last_visit_unix - sessions.last_visit_unix > @timeout"

	var b strings.Builder
	b.WriteString(`INSERT INTO sessions (
	session_id, first_visit, last_visit, last_visit_unix, visit_count, page_views,
	total_time_on_site, total_clicks, max_scroll_depth, device_category, screen_size,
	region, is_returning, is_engaged, engagement_score, last_page, last_page_type
) VALUES (
	@key, @now, @now, @unix, 1, 1,
	@time, @clicks, @scroll, @device, @screen,
	@region, false, @engaged, @score, @page, @page_type
)
ON CONFLICT (session_id) DO UPDATE SET
	page_views = `)
	b.WriteString(newViews)
	b.WriteString(",\n\ttotal_time_on_site = " + newTime)
	b.WriteString(",\n\ttotal_clicks = " + newClicks)
	b.WriteString(",\n\tmax_scroll_depth = " + newScroll)
	b.WriteString(",\n\tvisit_count = sessions.visit_count + CASE WHEN " + gap + " THEN 1 ELSE 0 END")
	b.WriteString(",\n\tis_returning = CASE WHEN " + gap + " THEN true ELSE sessions.is_returning END")
	b.WriteString(",\n\tlast_visit = CASE WHEN excluded.last_visit_unix >= sessions.last_visit_unix THEN excluded.last_visit ELSE sessions.last_visit END")
	b.WriteString(",\n\tlast_visit_unix = MAX(sessions.last_visit_unix, excluded.last_visit_unix)")
	b.WriteString(",\n\tis_engaged = (" + newTime + ") > " + fmt.Sprint(EngagedMinSeconds) + " OR (" + newViews + ") > " + fmt.Sprint(EngagedMinPageViews))
	b.WriteString(",\n\tengagement_score = " + engagementScoreSQL(newTime, newViews, newScroll, newClicks))
	b.WriteString(`,
	device_category = excluded.device_category,
	screen_size = excluded.screen_size,
	region = excluded.region,
	last_page = excluded.last_page,
	last_page_type = excluded.last_page_type
RETURNING page_views, visit_count`)
	return b.String()
}()

// Upsert folds one visit into the session keyed by sessionID and reports
// whether this call created the session.
func (a *Aggregator) Upsert(ctx context.Context, sessionID string, in Input) (bool, error) {
	if strings.TrimSpace(sessionID) == "" {
		return false, errors.New("session id is required")
	}

	now := a.now().UTC()
	timeOnPage := max(0, min(visits.MaxTimeOnPage, in.TimeOnPage))
	clicks := max(0, min(visits.MaxClicks, in.Clicks))
	scroll := max(0, min(100, in.ScrollDepth))

	args := map[string]any{
		"key":       sessionID,
		"now":       now,
		"unix":      now.Unix(),
		"time":      timeOnPage,
		"clicks":    clicks,
		"scroll":    scroll,
		"device":    in.Device,
		"screen":    classifier.ScreenSizeForResolution(in.ScreenResolution),
		"region":    in.Region,
		"engaged":   IsEngaged(timeOnPage, 1),
		"score":     EngagementScore(timeOnPage, 1, scroll, clicks),
		"page":      in.Page,
		"page_type": in.PageType,
		"timeout":   int64(a.timeout / time.Second),
	}

	var row struct {
		PageViews  int
		VisitCount int
	}
	err := sqlite.PerformWrite(a.logger, a.db.WithContext(ctx), func(tx *gorm.DB) error {
		return tx.Raw(upsertSQL, args).Scan(&row).Error
	})
	if err != nil {
		return false, fmt.Errorf("failed to upsert session: %w", err)
	}

	created := row.PageViews == 1
	if created {
		a.logger.Debug("session created", slog.String("device", in.Device), slog.String("region", in.Region))
	} else if row.VisitCount > 1 {
		a.logger.Debug("session updated", slog.Int("page_views", row.PageViews), slog.Int("visit_count", row.VisitCount))
	}
	return created, nil
}

// Get loads one session by key.
func (a *Aggregator) Get(ctx context.Context, sessionID string) (*Session, error) {
	var s Session
	err := a.db.WithContext(ctx).Where("session_id = ?", sessionID).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error fetching session: %w", err)
	}
	return &s, nil
}
