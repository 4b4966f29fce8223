package stats

import (
	"time"

	"guidestats/internal/timeframe"
)

// Overview holds the headline numbers of a dashboard.
type Overview struct {
	TotalPageViews     int64   `json:"totalPageViews"`
	UniqueSessions     int64   `json:"uniqueSessions"`
	AvgPagesPerSession float64 `json:"avgPagesPerSession"`
	AvgTimeOnPage      float64 `json:"avgTimeOnPage"`
	BounceRate         float64 `json:"bounceRate"`
	AvgScrollDepth     float64 `json:"avgScrollDepth"`
	AvgLoadTime        float64 `json:"avgLoadTime"`

	EngagedSessions    int64   `json:"engagedSessions"`
	EngagementRate     float64 `json:"engagementRate"`
	ReturningSessions  int64   `json:"returningSessions"`
	ReturningRate      float64 `json:"returningRate"`
	AvgEngagementScore float64 `json:"avgEngagementScore"`
	AvgSessionDuration float64 `json:"avgSessionDuration"`
}

// MetricCountResult is one row of a ranked breakdown.
type MetricCountResult struct {
	Name       string  `json:"name"`
	Key        string  `json:"key,omitempty"`
	Category   string  `json:"category,omitempty"`
	Count      int64   `json:"count"`
	Sessions   int64   `json:"sessions"`
	Percentage float64 `json:"percentage"`
}

// PageStat ranks a single page.
type PageStat struct {
	Page          string  `json:"page"`
	PageType      string  `json:"pageType"`
	Views         int64   `json:"views"`
	Sessions      int64   `json:"sessions"`
	AvgTimeOnPage float64 `json:"avgTimeOnPage"`
	AvgScroll     float64 `json:"avgScrollDepth"`
}

// HourStat is one of 24 hour-of-day buckets.
type HourStat struct {
	Hour  int   `json:"hour"`
	Count int64 `json:"count"`
}

// WeekdayStat is one of 7 day-of-week buckets; Day 0 is Sunday.
type WeekdayStat struct {
	Day   int    `json:"day"`
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

// SessionBreakdown groups the sessions active in the window.
type SessionBreakdown struct {
	Devices     []MetricCountResult `json:"devices"`
	ScreenSizes []MetricCountResult `json:"screenSizes"`
	Regions     []MetricCountResult `json:"regions"`
}

// SessionSummary describes one of the most engaged sessions under its alias.
type SessionSummary struct {
	Alias           string    `json:"alias"`
	PageViews       int       `json:"pageViews"`
	VisitCount      int       `json:"visitCount"`
	TotalTimeOnSite int       `json:"totalTimeOnSite"`
	EngagementScore int       `json:"engagementScore"`
	IsReturning     bool      `json:"isReturning"`
	LastPage        string    `json:"lastPage"`
	LastVisit       time.Time `json:"lastVisit"`
}

// Range echoes the resolved window.
type Range struct {
	From       time.Time `json:"from"`
	To         time.Time `json:"to"`
	Timezone   string    `json:"timezone"`
	BucketSize string    `json:"bucketSize"`
}

// Dashboard is the full stats response.
type Dashboard struct {
	Range               Range                `json:"range"`
	Overview            Overview             `json:"overview"`
	TopPages            []PageStat           `json:"topPages"`
	TopRegions          []MetricCountResult  `json:"topRegions"`
	TopCountries        []MetricCountResult  `json:"topCountries"`
	TopDevices          []MetricCountResult  `json:"topDevices"`
	TopBrowsers         []MetricCountResult  `json:"topBrowsers"`
	TopOperatingSystems []MetricCountResult  `json:"topOperatingSystems"`
	TopReferrers        []MetricCountResult  `json:"topReferrers"`
	TopPageTypes        []MetricCountResult  `json:"topPageTypes"`
	TopUTMSources       []MetricCountResult  `json:"topUtmSources"`
	TopCustomEvents     []MetricCountResult  `json:"topCustomEvents"`
	HourlyStats         []HourStat           `json:"hourlyStats"`
	WeeklyStats         []WeekdayStat        `json:"weeklyStats"`
	Timeline            []timeframe.DateStat `json:"timeline"`
	SessionBreakdown    SessionBreakdown     `json:"sessionBreakdown"`
	TopSessions         []SessionSummary     `json:"topSessions"`
}
