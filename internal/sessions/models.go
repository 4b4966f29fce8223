// Package sessions folds visit events into one durable record per anonymized
// session key.
package sessions

import "time"

// Session is the aggregate for one session key. Exactly one row exists per
// key; it is created by the first visit and updated in place afterwards.
type Session struct {
	ID              uint      `gorm:"primaryKey;autoIncrement" json:"-"`
	SessionID       string    `gorm:"uniqueIndex:idx_sessions_session_id;not null" json:"sessionId"`
	FirstVisit      time.Time `gorm:"type:datetime;not null" json:"firstVisit"`
	LastVisit       time.Time `gorm:"index:idx_sessions_last_visit;type:datetime;not null" json:"lastVisit"`
	LastVisitUnix   int64     `gorm:"not null" json:"-"`
	VisitCount      int       `gorm:"not null;default:1" json:"visitCount"`
	PageViews       int       `gorm:"not null;default:1" json:"pageViews"`
	TotalTimeOnSite int       `gorm:"not null;default:0" json:"totalTimeOnSite"`
	TotalClicks     int       `gorm:"not null;default:0" json:"totalClicks"`
	MaxScrollDepth  int       `gorm:"not null;default:0" json:"maxScrollDepth"`
	DeviceCategory  string    `gorm:"not null" json:"deviceCategory"`
	ScreenSize      string    `gorm:"not null" json:"screenSize"`
	Region          string    `gorm:"not null" json:"region"`
	IsReturning     bool      `gorm:"not null;default:false" json:"isReturning"`
	IsEngaged       bool      `gorm:"not null;default:false" json:"isEngaged"`
	EngagementScore int       `gorm:"not null;default:0" json:"engagementScore"`
	LastPage        string    `json:"lastPage"`
	LastPageType    string    `json:"lastPageType"`
}

// TableName pins the table name used by the upsert and stats queries.
func (Session) TableName() string {
	return "sessions"
}

// Input is the slice of a visit event the aggregator needs.
type Input struct {
	Page             string
	PageType         string
	TimeOnPage       int
	ScrollDepth      int
	Clicks           int
	Device           string
	ScreenResolution string
	Region           string
}
