package stats

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gorm.io/gorm"

	"guidestats/internal/pkg/referrers"
	"guidestats/internal/regions"
	"guidestats/internal/visits"
)

type groupedCount struct {
	Name     string
	Count    int64
	Sessions int64
}

// topVisitsBy ranks visit_events by a fixed column expression. column is
// never caller input.
func topVisitsBy(ctx context.Context, db *gorm.DB, q Query, column, extra string) ([]groupedCount, error) {
	var raw []groupedCount

	where, args := q.visitScope()
	if extra != "" {
		where += " AND " + extra
	}
	query := `
    SELECT
        ` + column + ` as name,
        COUNT(*) as count,
        COUNT(DISTINCT session_id) as sessions
    FROM visit_events
    WHERE ` + where + `
    GROUP BY ` + column + `
    HAVING count > 0
    ORDER BY count DESC, name ASC
    LIMIT ?
    `

	args = append(args, q.limit())
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&raw).Error; err != nil {
		return nil, err
	}
	return raw, nil
}

func toResults(raw []groupedCount, name func(string) string) []MetricCountResult {
	results := make([]MetricCountResult, 0, len(raw))
	for _, r := range raw {
		results = append(results, MetricCountResult{
			Name:     name(r.Name),
			Key:      r.Name,
			Count:    r.Count,
			Sessions: r.Sessions,
		})
	}
	return results
}

func identity(s string) string { return s }

// GetTopPages ranks pages by views.
func GetTopPages(ctx context.Context, db *gorm.DB, q Query) ([]PageStat, error) {
	var raw []struct {
		Page          string
		PageType      string
		Views         int64
		Sessions      int64
		AvgTimeOnPage float64
		AvgScroll     float64
	}

	where, args := q.visitScope()
	query := `
    SELECT
        page,
        page_type,
        COUNT(*) as views,
        COUNT(DISTINCT session_id) as sessions,
        COALESCE(AVG(time_on_page), 0) as avg_time_on_page,
        COALESCE(AVG(scroll_depth), 0) as avg_scroll
    FROM visit_events
    WHERE ` + where + `
    GROUP BY page, page_type
    ORDER BY views DESC, page ASC
    LIMIT ?
    `

	args = append(args, q.limit())
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&raw).Error; err != nil {
		return nil, fmt.Errorf("error fetching top pages: %w", err)
	}

	results := make([]PageStat, 0, len(raw))
	for _, r := range raw {
		results = append(results, PageStat{
			Page:          r.Page,
			PageType:      r.PageType,
			Views:         r.Views,
			Sessions:      r.Sessions,
			AvgTimeOnPage: round2(r.AvgTimeOnPage),
			AvgScroll:     round2(r.AvgScroll),
		})
	}
	return results, nil
}

// GetTopRegions ranks continental regions.
func GetTopRegions(ctx context.Context, db *gorm.DB, q Query) ([]MetricCountResult, error) {
	raw, err := topVisitsBy(ctx, db, q, "region", "")
	if err != nil {
		return nil, fmt.Errorf("error fetching top regions: %w", err)
	}
	return toResults(raw, identity), nil
}

// GetTopCountries ranks countries, resolving codes to common names.
func GetTopCountries(ctx context.Context, db *gorm.DB, q Query) ([]MetricCountResult, error) {
	raw, err := topVisitsBy(ctx, db, q, "UPPER(country)", "")
	if err != nil {
		return nil, fmt.Errorf("error fetching top countries: %w", err)
	}
	return toResults(raw, regions.DisplayName), nil
}

// GetTopDevices ranks device categories.
func GetTopDevices(ctx context.Context, db *gorm.DB, q Query) ([]MetricCountResult, error) {
	raw, err := topVisitsBy(ctx, db, q, "device", "")
	if err != nil {
		return nil, fmt.Errorf("error fetching top devices: %w", err)
	}
	return toResults(raw, titleCase), nil
}

// GetTopBrowsers ranks browser families.
func GetTopBrowsers(ctx context.Context, db *gorm.DB, q Query) ([]MetricCountResult, error) {
	raw, err := topVisitsBy(ctx, db, q, "browser", "")
	if err != nil {
		return nil, fmt.Errorf("error fetching top browsers: %w", err)
	}
	return toResults(raw, identity), nil
}

// GetTopOperatingSystems ranks operating system families.
func GetTopOperatingSystems(ctx context.Context, db *gorm.DB, q Query) ([]MetricCountResult, error) {
	raw, err := topVisitsBy(ctx, db, q, "os", "")
	if err != nil {
		return nil, fmt.Errorf("error fetching top operating systems: %w", err)
	}
	return toResults(raw, identity), nil
}

// GetTopPageTypes ranks guide sections.
func GetTopPageTypes(ctx context.Context, db *gorm.DB, q Query) ([]MetricCountResult, error) {
	raw, err := topVisitsBy(ctx, db, q, "page_type", "")
	if err != nil {
		return nil, fmt.Errorf("error fetching top page types: %w", err)
	}
	return toResults(raw, titleCase), nil
}

// GetTopUTMSources ranks campaign sources, ignoring untagged visits.
func GetTopUTMSources(ctx context.Context, db *gorm.DB, q Query) ([]MetricCountResult, error) {
	raw, err := topVisitsBy(ctx, db, q, "LOWER(utm_source)", "utm_source IS NOT NULL AND utm_source != ''")
	if err != nil {
		return nil, fmt.Errorf("error fetching top UTM sources: %w", err)
	}
	return toResults(raw, identity), nil
}

// GetTopReferrers ranks referrer hosts, direct traffic included.
func GetTopReferrers(ctx context.Context, db *gorm.DB, q Query) ([]MetricCountResult, error) {
	raw, err := topVisitsBy(ctx, db, q, "referrer_host", "")
	if err != nil {
		return nil, fmt.Errorf("error fetching top referrers: %w", err)
	}

	results := make([]MetricCountResult, 0, len(raw))
	for _, r := range raw {
		host := r.Name
		if host == visits.DirectReferrer {
			host = ""
		}
		results = append(results, MetricCountResult{
			Name:     referrers.FriendlyName(host),
			Key:      r.Name,
			Category: referrers.Category(host),
			Count:    r.Count,
			Sessions: r.Sessions,
		})
	}
	return results, nil
}

// GetTopCustomEvents ranks auxiliary events by type and name.
func GetTopCustomEvents(ctx context.Context, db *gorm.DB, q Query) ([]MetricCountResult, error) {
	var raw []struct {
		Type     string
		Name     string
		Count    int64
		Sessions int64
	}

	where, args := q.customScope()
	query := `
    SELECT
        type,
        name,
        COUNT(*) as count,
        COUNT(DISTINCT session_id) as sessions
    FROM custom_events
    WHERE ` + where + `
    GROUP BY type, name
    ORDER BY count DESC, type ASC, name ASC
    LIMIT ?
    `

	args = append(args, q.limit())
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&raw).Error; err != nil {
		return nil, fmt.Errorf("error fetching top custom events: %w", err)
	}

	results := make([]MetricCountResult, 0, len(raw))
	for _, r := range raw {
		results = append(results, MetricCountResult{
			Name:     r.Name,
			Key:      r.Type + ":" + r.Name,
			Category: r.Type,
			Count:    r.Count,
			Sessions: r.Sessions,
		})
	}
	return results, nil
}

// titleCase renders enum values such as "desktop" as "Desktop".
func titleCase(s string) string {
	return cases.Title(language.AmericanEnglish).String(strings.ReplaceAll(s, "_", " "))
}

// withPercentages fills Percentage against total.
func withPercentages(results []MetricCountResult, total int64) []MetricCountResult {
	for i := range results {
		results[i].Percentage = percent(results[i].Count, total)
	}
	return results
}
