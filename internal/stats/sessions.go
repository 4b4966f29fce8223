package stats

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"guidestats/internal/visitors"
)

// sessionsBy ranks the active sessions by a fixed column.
func sessionsBy(ctx context.Context, db *gorm.DB, q Query, column string) ([]groupedCount, error) {
	var raw []groupedCount

	where, args := q.sessionScope()
	query := `
    SELECT
        ` + column + ` as name,
        COUNT(*) as count,
        COUNT(*) as sessions
    FROM sessions
    WHERE ` + where + `
    GROUP BY ` + column + `
    ORDER BY count DESC, name ASC
    `

	if err := db.WithContext(ctx).Raw(query, args...).Scan(&raw).Error; err != nil {
		return nil, err
	}
	return raw, nil
}

// GetSessionBreakdown groups active sessions by device, screen and region.
func GetSessionBreakdown(ctx context.Context, db *gorm.DB, q Query) (SessionBreakdown, error) {
	devices, err := sessionsBy(ctx, db, q, "device_category")
	if err != nil {
		return SessionBreakdown{}, fmt.Errorf("error fetching session devices: %w", err)
	}
	screens, err := sessionsBy(ctx, db, q, "screen_size")
	if err != nil {
		return SessionBreakdown{}, fmt.Errorf("error fetching session screen sizes: %w", err)
	}
	regionRows, err := sessionsBy(ctx, db, q, "region")
	if err != nil {
		return SessionBreakdown{}, fmt.Errorf("error fetching session regions: %w", err)
	}

	return SessionBreakdown{
		Devices:     withSessionShare(toResults(devices, titleCase)),
		ScreenSizes: withSessionShare(toResults(screens, titleCase)),
		Regions:     withSessionShare(toResults(regionRows, identity)),
	}, nil
}

func withSessionShare(results []MetricCountResult) []MetricCountResult {
	var total int64
	for _, r := range results {
		total += r.Count
	}
	return withPercentages(results, total)
}

// GetTopSessions lists the most engaged active sessions under their aliases.
func GetTopSessions(ctx context.Context, db *gorm.DB, q Query) ([]SessionSummary, error) {
	var raw []struct {
		SessionID       string
		PageViews       int
		VisitCount      int
		TotalTimeOnSite int
		EngagementScore int
		IsReturning     bool
		LastPage        string
		LastVisit       time.Time
	}

	where, args := q.sessionScope()
	query := `
    SELECT session_id, page_views, visit_count, total_time_on_site,
        engagement_score, is_returning, last_page, last_visit
    FROM sessions
    WHERE ` + where + `
    ORDER BY engagement_score DESC, page_views DESC, session_id ASC
    LIMIT ?
    `

	args = append(args, q.limit())
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&raw).Error; err != nil {
		return nil, fmt.Errorf("error fetching top sessions: %w", err)
	}

	results := make([]SessionSummary, 0, len(raw))
	for _, r := range raw {
		results = append(results, SessionSummary{
			Alias:           visitors.Alias(r.SessionID),
			PageViews:       r.PageViews,
			VisitCount:      r.VisitCount,
			TotalTimeOnSite: r.TotalTimeOnSite,
			EngagementScore: r.EngagementScore,
			IsReturning:     r.IsReturning,
			LastPage:        r.LastPage,
			LastVisit:       r.LastVisit.UTC(),
		})
	}
	return results, nil
}
