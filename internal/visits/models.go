// Package visits is the append-only event store: one immutable row per
// finalized page visit plus the auxiliary custom events emitted by the
// client tracker.
package visits

import (
	"time"

	"gorm.io/datatypes"
)

// DirectReferrer marks visits without an external referrer.
const DirectReferrer = "__direct__"

// UnknownCountry is stored when neither the client nor GeoIP resolved a country.
const UnknownCountry = "Unknown"

// VisitEvent is one finalized page visit. Rows are never updated.
type VisitEvent struct {
	ID               uint      `gorm:"primaryKey;autoIncrement" json:"-"`
	SessionID        string    `gorm:"index:idx_visit_session;not null" json:"sessionId"`
	Page             string    `gorm:"not null" json:"page"`
	PageType         string    `gorm:"index:idx_visit_page_type;not null" json:"pageType"`
	PageID           string    `json:"pageId,omitempty"`
	Browser          string    `gorm:"not null" json:"browser"`
	BrowserVersion   string    `json:"browserVersion"`
	OS               string    `gorm:"column:os;not null" json:"os"`
	OSVersion        string    `gorm:"column:os_version" json:"osVersion"`
	Device           string    `gorm:"not null" json:"device"`
	ScreenResolution string    `json:"screenResolution"`
	Country          string    `gorm:"not null" json:"country"`
	City             string    `json:"city,omitempty"`
	Region           string    `gorm:"not null" json:"region"`
	Timezone         string    `json:"timezone"`
	Language         string    `json:"language"`
	Referrer         string    `json:"referrer"`
	ReferrerHost     string    `gorm:"not null" json:"referrerHost"`
	UTMSource        string    `gorm:"column:utm_source" json:"utmSource,omitempty"`
	UTMMedium        string    `gorm:"column:utm_medium" json:"utmMedium,omitempty"`
	UTMCampaign      string    `gorm:"column:utm_campaign" json:"utmCampaign,omitempty"`
	TimeOnPage       int       `gorm:"not null;default:0" json:"timeOnPage"`
	ScrollDepth      int       `gorm:"not null;default:0" json:"scrollDepth"`
	Clicks           int       `gorm:"not null;default:0" json:"clicks"`
	LoadTime         int       `gorm:"not null;default:0" json:"loadTime"`
	IsBounce         bool      `gorm:"not null;default:false" json:"isBounce"`
	IsFirstVisit     bool      `gorm:"not null;default:false" json:"isFirstVisit"`
	Timestamp        time.Time `gorm:"index:idx_visit_timestamp;type:datetime;not null" json:"timestamp"`
}

// TableName pins the table name used by the raw stats queries.
func (VisitEvent) TableName() string {
	return "visit_events"
}

// CustomEvent is an auxiliary trackEvent call, independent of page visits.
// Metadata numbers read back from the database as json.Number.
type CustomEvent struct {
	ID        uint              `gorm:"primaryKey;autoIncrement" json:"-"`
	SessionID string            `gorm:"index:idx_custom_session;not null" json:"sessionId"`
	Type      string            `gorm:"index:idx_custom_type_name;not null" json:"type"`
	Name      string            `gorm:"index:idx_custom_type_name;not null" json:"name"`
	Page      string            `json:"page"`
	Metadata  datatypes.JSONMap `gorm:"type:text" json:"metadata,omitempty"`
	Timestamp time.Time         `gorm:"index:idx_custom_timestamp;type:datetime;not null" json:"timestamp"`
}

// TableName pins the table name used by the raw stats queries.
func (CustomEvent) TableName() string {
	return "custom_events"
}
