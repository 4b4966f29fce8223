package visits

import (
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gorm.io/datatypes"

	"guidestats/internal/classifier"
	"guidestats/internal/regions"
)

// Upper bounds on the per-visit counters. They keep every SUM over the event
// and session tables far inside SQLite's integer range; the validate tags on
// TrackPayload repeat them.
const (
	MaxTimeOnPage = 86400  // seconds
	MaxClicks     = 100000 // per visit
	MaxLoadTime   = 600000 // milliseconds
)

// BounceThreshold is the time on page, in seconds, below which a first visit
// counts as a bounce.
const BounceThreshold = 30

// IsBounce is true only for a first-time visitor leaving within the threshold.
func IsBounce(isFirstVisit bool, timeOnPage int) bool {
	return isFirstVisit && timeOnPage < BounceThreshold
}

// TrackPayload is the JSON body a client tracker posts for a finished visit.
type TrackPayload struct {
	SessionID        string `json:"sessionId" validate:"required,max=128"`
	Page             string `json:"page" validate:"required,max=2048"`
	PageType         string `json:"pageType" validate:"required,pagetype"`
	PageID           string `json:"pageId" validate:"max=256"`
	Browser          string `json:"browser" validate:"required,max=64"`
	BrowserVersion   string `json:"browserVersion" validate:"max=64"`
	OS               string `json:"os" validate:"required,max=64"`
	OSVersion        string `json:"osVersion" validate:"max=64"`
	Device           string `json:"device" validate:"required,devicetype"`
	ScreenResolution string `json:"screenResolution" validate:"max=32"`
	Country          string `json:"country" validate:"max=64"`
	City             string `json:"city" validate:"max=128"`
	Timezone         string `json:"timezone" validate:"max=64"`
	Language         string `json:"language" validate:"max=35"`
	Referrer         string `json:"referrer" validate:"max=2048"`
	UTMSource        string `json:"utmSource" validate:"max=256"`
	UTMMedium        string `json:"utmMedium" validate:"max=256"`
	UTMCampaign      string `json:"utmCampaign" validate:"max=256"`
	TimeOnPage       int    `json:"timeOnPage" validate:"min=0,max=86400"`
	ScrollDepth      int    `json:"scrollDepth" validate:"min=0,max=100"`
	Clicks           int    `json:"clicks" validate:"min=0,max=100000"`
	LoadTime         int    `json:"loadTime" validate:"min=0,max=600000"`
	// IsBounce is informational; ToEvent recomputes it from IsFirstVisit
	// and TimeOnPage.
	IsBounce bool `json:"isBounce"`
	IsFirstVisit     bool   `json:"isFirstVisit"`
}

// EventPayload is the JSON body for an auxiliary trackEvent call.
type EventPayload struct {
	SessionID string         `json:"sessionId" validate:"required,max=128"`
	Type      string         `json:"type" validate:"required,max=64"`
	Name      string         `json:"name" validate:"required,max=128"`
	Page      string         `json:"page" validate:"max=2048"`
	Metadata  map[string]any `json:"metadata"`
}

// ValidationError carries the field-level reasons a payload was rejected.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, reason := range e.Fields {
		parts = append(parts, field+" "+reason)
	}
	return "invalid payload: " + strings.Join(parts, ", ")
}

// Validator checks payloads against the visit event shape.
type Validator struct {
	validate *validator.Validate
}

// NewValidator registers the enum rules on a fresh go-playground validator.
func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterValidation("pagetype", func(fl validator.FieldLevel) bool {
		return classifier.IsPageType(fl.Field().String())
	})
	v.RegisterValidation("devicetype", func(fl validator.FieldLevel) bool {
		return classifier.IsDeviceType(fl.Field().String())
	})

	return &Validator{validate: v}
}

// Validate returns a *ValidationError when the payload breaks any rule.
func (v *Validator) Validate(payload any) error {
	err := v.validate.Struct(payload)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("validating payload: %w", err)
	}

	verr := &ValidationError{Fields: make(map[string]string, len(fieldErrs))}
	for _, fe := range fieldErrs {
		verr.Fields[fe.Field()] = describe(fe)
	}
	return verr
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "pagetype":
		return "must be one of " + strings.Join(classifier.PageTypes, "|")
	case "devicetype":
		return "must be one of " + strings.Join(classifier.DeviceTypes, "|")
	default:
		return "is invalid"
	}
}

// ToEvent builds the row to persist. sessionKey is the anonymized key, now
// is the server-assigned ingest time and siteHost is the guide's own host,
// used to fold internal navigation into direct traffic.
func (p *TrackPayload) ToEvent(sessionKey, siteHost string, now time.Time) *VisitEvent {
	country := strings.TrimSpace(p.Country)
	if country == "" {
		country = UnknownCountry
	}

	return &VisitEvent{
		SessionID:        sessionKey,
		Page:             PagePath(p.Page),
		PageType:         p.PageType,
		PageID:           p.PageID,
		Browser:          p.Browser,
		BrowserVersion:   p.BrowserVersion,
		OS:               p.OS,
		OSVersion:        p.OSVersion,
		Device:           p.Device,
		ScreenResolution: p.ScreenResolution,
		Country:          country,
		City:             p.City,
		Region:           regions.ForCountry(country),
		Timezone:         p.Timezone,
		Language:         p.Language,
		Referrer:         p.Referrer,
		ReferrerHost:     ReferrerHost(p.Referrer, siteHost),
		UTMSource:        p.UTMSource,
		UTMMedium:        p.UTMMedium,
		UTMCampaign:      p.UTMCampaign,
		TimeOnPage:       p.TimeOnPage,
		ScrollDepth:      p.ScrollDepth,
		Clicks:           p.Clicks,
		LoadTime:         p.LoadTime,
		IsBounce:         IsBounce(p.IsFirstVisit, p.TimeOnPage),
		IsFirstVisit:     p.IsFirstVisit,
		Timestamp:        now.UTC(),
	}
}

// ToCustomEvent builds the auxiliary event row.
func (p *EventPayload) ToCustomEvent(sessionKey string, now time.Time) *CustomEvent {
	var metadata datatypes.JSONMap
	if len(p.Metadata) > 0 {
		metadata = datatypes.JSONMap(p.Metadata)
	}
	return &CustomEvent{
		SessionID: sessionKey,
		Type:      p.Type,
		Name:      p.Name,
		Page:      p.Page,
		Metadata:  metadata,
		Timestamp: now.UTC(),
	}
}

// ReferrerHost reduces a referrer URL to its hostname. Empty referrers and
// links from siteHost count as direct traffic.
func ReferrerHost(referrer, siteHost string) string {
	referrer = strings.TrimSpace(referrer)
	if referrer == "" {
		return DirectReferrer
	}

	ref, err := url.Parse(referrer)
	if err != nil || ref.Hostname() == "" {
		return DirectReferrer
	}
	host := strings.TrimPrefix(strings.ToLower(ref.Hostname()), "www.")

	if siteHost != "" && host == normalizeHost(siteHost) {
		return DirectReferrer
	}
	return host
}

// normalizeHost accepts either a bare host or a URL.
func normalizeHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if strings.Contains(host, "://") {
		if u, err := url.Parse(host); err == nil {
			host = u.Hostname()
		}
	} else if h, _, ok := strings.Cut(host, ":"); ok {
		host = h
	}
	return strings.TrimPrefix(host, "www.")
}

// PagePath strips scheme, host and query from a page URL, keeping "/" for
// an empty path.
func PagePath(page string) string {
	u, err := url.Parse(strings.TrimSpace(page))
	if err != nil {
		return page
	}
	if u.Path == "" {
		return "/"
	}
	return u.Path
}
