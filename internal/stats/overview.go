package stats

import (
	"context"
	"fmt"
	"math"

	"gorm.io/gorm"
)

// GetVisitOverview computes the page-view side of the overview.
func GetVisitOverview(ctx context.Context, db *gorm.DB, q Query) (Overview, error) {
	var raw struct {
		TotalPageViews int64
		UniqueSessions int64
		AvgTimeOnPage  float64
		Bounces        int64
		AvgScrollDepth float64
		AvgLoadTime    float64
	}

	where, args := q.visitScope()
	query := `
    SELECT
        COUNT(*) as total_page_views,
        COUNT(DISTINCT session_id) as unique_sessions,
        COALESCE(AVG(time_on_page), 0) as avg_time_on_page,
        COALESCE(SUM(CASE WHEN is_bounce THEN 1 ELSE 0 END), 0) as bounces,
        COALESCE(AVG(scroll_depth), 0) as avg_scroll_depth,
        COALESCE(AVG(load_time), 0) as avg_load_time
    FROM visit_events
    WHERE ` + where

	if err := db.WithContext(ctx).Raw(query, args...).Scan(&raw).Error; err != nil {
		return Overview{}, fmt.Errorf("error fetching visit overview: %w", err)
	}

	return Overview{
		TotalPageViews:     raw.TotalPageViews,
		UniqueSessions:     raw.UniqueSessions,
		AvgPagesPerSession: ratio(raw.TotalPageViews, raw.UniqueSessions),
		AvgTimeOnPage:      round2(raw.AvgTimeOnPage),
		BounceRate:         percent(raw.Bounces, raw.TotalPageViews),
		AvgScrollDepth:     round2(raw.AvgScrollDepth),
		AvgLoadTime:        round2(raw.AvgLoadTime),
	}, nil
}

// sessionOverview is the session-record side of the overview.
type sessionOverview struct {
	Sessions           int64
	EngagedSessions    int64
	ReturningSessions  int64
	AvgEngagementScore float64
	AvgSessionDuration float64
}

// getSessionOverview aggregates the sessions active in the window.
func getSessionOverview(ctx context.Context, db *gorm.DB, q Query) (sessionOverview, error) {
	var raw sessionOverview

	where, args := q.sessionScope()
	query := `
    SELECT
        COUNT(*) as sessions,
        COALESCE(SUM(CASE WHEN is_engaged THEN 1 ELSE 0 END), 0) as engaged_sessions,
        COALESCE(SUM(CASE WHEN is_returning THEN 1 ELSE 0 END), 0) as returning_sessions,
        COALESCE(AVG(engagement_score), 0) as avg_engagement_score,
        COALESCE(AVG(total_time_on_site), 0) as avg_session_duration
    FROM sessions
    WHERE ` + where

	if err := db.WithContext(ctx).Raw(query, args...).Scan(&raw).Error; err != nil {
		return sessionOverview{}, fmt.Errorf("error fetching session overview: %w", err)
	}
	return raw, nil
}

func (o *Overview) applySessions(s sessionOverview) {
	o.EngagedSessions = s.EngagedSessions
	o.EngagementRate = percent(s.EngagedSessions, s.Sessions)
	o.ReturningSessions = s.ReturningSessions
	o.ReturningRate = percent(s.ReturningSessions, s.Sessions)
	o.AvgEngagementScore = round2(s.AvgEngagementScore)
	o.AvgSessionDuration = round2(s.AvgSessionDuration)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func ratio(a, b int64) float64 {
	if b == 0 {
		return 0
	}
	return round2(float64(a) / float64(b))
}

func percent(part, total int64) float64 {
	if total == 0 {
		return 0
	}
	return round2(float64(part) * 100 / float64(total))
}
