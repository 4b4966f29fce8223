// Package stats answers read-only dashboard queries over the visit events
// and session records.
package stats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"guidestats/internal/pkg/async"
	"guidestats/internal/timeframe"
	"guidestats/internal/visits"
)

// ErrMissingTimeFrame is returned for queries without a window.
var ErrMissingTimeFrame = errors.New("time frame is required")

// Aggregator runs the dashboard queries concurrently on a bounded pool.
type Aggregator struct {
	db     *gorm.DB
	logger *slog.Logger
	pool   *async.Pool
}

func NewAggregator(db *gorm.DB, logger *slog.Logger, workers int) *Aggregator {
	return &Aggregator{
		db:     db,
		logger: logger,
		pool:   async.NewPool(workers),
	}
}

func task[T any](a *Aggregator, name string, q Query, fn func(context.Context, *gorm.DB, Query) (T, error)) async.Task {
	return async.Task{
		Name: name,
		Execute: func(ctx context.Context) (interface{}, error) {
			return fn(ctx, a.db, q)
		},
	}
}

// Dashboard computes every breakdown for q. On an empty window all lists
// are empty and the histograms are zero-filled.
func (a *Aggregator) Dashboard(ctx context.Context, q Query) (*Dashboard, error) {
	if q.TimeFrame == nil {
		return nil, ErrMissingTimeFrame
	}

	start := time.Now()
	results := a.pool.Execute(ctx, []async.Task{
		task(a, "overview", q, GetVisitOverview),
		task(a, "session_overview", q, getSessionOverview),
		task(a, "top_pages", q, GetTopPages),
		task(a, "top_regions", q, GetTopRegions),
		task(a, "top_countries", q, GetTopCountries),
		task(a, "top_devices", q, GetTopDevices),
		task(a, "top_browsers", q, GetTopBrowsers),
		task(a, "top_operating_systems", q, GetTopOperatingSystems),
		task(a, "top_referrers", q, GetTopReferrers),
		task(a, "top_page_types", q, GetTopPageTypes),
		task(a, "top_utm_sources", q, GetTopUTMSources),
		task(a, "top_custom_events", q, GetTopCustomEvents),
		task(a, "hourly", q, GetHourlyStats),
		task(a, "weekly", q, GetWeeklyStats),
		task(a, "timeline", q, GetTimeline),
		task(a, "session_breakdown", q, GetSessionBreakdown),
		task(a, "top_sessions", q, GetTopSessions),
	})

	for name, result := range results {
		if result.Err != nil {
			return nil, fmt.Errorf("dashboard query %s failed: %w", name, result.Err)
		}
	}

	overview := results["overview"].Data.(Overview)
	overview.applySessions(results["session_overview"].Data.(sessionOverview))
	total := overview.TotalPageViews

	d := &Dashboard{
		Range: Range{
			From:       q.TimeFrame.From,
			To:         q.TimeFrame.To,
			Timezone:   q.TimeFrame.Tz.String(),
			BucketSize: string(q.TimeFrame.BucketSize),
		},
		Overview:            overview,
		TopPages:            results["top_pages"].Data.([]PageStat),
		TopRegions:          withPercentages(results["top_regions"].Data.([]MetricCountResult), total),
		TopCountries:        withPercentages(results["top_countries"].Data.([]MetricCountResult), total),
		TopDevices:          withPercentages(results["top_devices"].Data.([]MetricCountResult), total),
		TopBrowsers:         withPercentages(results["top_browsers"].Data.([]MetricCountResult), total),
		TopOperatingSystems: withPercentages(results["top_operating_systems"].Data.([]MetricCountResult), total),
		TopReferrers:        withPercentages(results["top_referrers"].Data.([]MetricCountResult), total),
		TopPageTypes:        withPercentages(results["top_page_types"].Data.([]MetricCountResult), total),
		TopUTMSources:       withPercentages(results["top_utm_sources"].Data.([]MetricCountResult), total),
		TopCustomEvents:     results["top_custom_events"].Data.([]MetricCountResult),
		HourlyStats:         results["hourly"].Data.([]HourStat),
		WeeklyStats:         results["weekly"].Data.([]WeekdayStat),
		Timeline:            results["timeline"].Data.([]timeframe.DateStat),
		SessionBreakdown:    results["session_breakdown"].Data.(SessionBreakdown),
		TopSessions:         results["top_sessions"].Data.([]SessionSummary),
	}

	a.logger.Debug("dashboard computed",
		slog.Int64("page_views", total),
		slog.Duration("duration", time.Since(start)))
	return d, nil
}

// FirstEventAt returns the timestamp of the oldest visit, or the zero time
// when no visit has been stored.
func (a *Aggregator) FirstEventAt(ctx context.Context) (time.Time, error) {
	var first visits.VisitEvent
	err := a.db.WithContext(ctx).Select("timestamp").Order("timestamp ASC").Take(&first).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("error fetching first event: %w", err)
	}
	return first.Timestamp, nil
}
