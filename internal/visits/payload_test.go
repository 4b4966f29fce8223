package visits_test

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guidestats/internal/testsupport"
	"guidestats/internal/visits"
)

func TestValidateAcceptsCompletePayload(t *testing.T) {
	v := visits.NewValidator()
	p := testsupport.NewTrackPayload("abc")
	assert.NoError(t, v.Validate(&p))
}

func TestValidateRejectsBadPayloads(t *testing.T) {
	v := visits.NewValidator()

	tests := []struct {
		name   string
		mutate func(*visits.TrackPayload)
		field  string
	}{
		{"missing session", func(p *visits.TrackPayload) { p.SessionID = "" }, "sessionId"},
		{"missing page", func(p *visits.TrackPayload) { p.Page = "" }, "page"},
		{"unknown page type", func(p *visits.TrackPayload) { p.PageType = "boss" }, "pageType"},
		{"unknown device", func(p *visits.TrackPayload) { p.Device = "watch" }, "device"},
		{"missing browser", func(p *visits.TrackPayload) { p.Browser = "" }, "browser"},
		{"negative time", func(p *visits.TrackPayload) { p.TimeOnPage = -1 }, "timeOnPage"},
		{"scroll above 100", func(p *visits.TrackPayload) { p.ScrollDepth = 101 }, "scrollDepth"},
		{"negative clicks", func(p *visits.TrackPayload) { p.Clicks = -3 }, "clicks"},
		{"time beyond a day", func(p *visits.TrackPayload) { p.TimeOnPage = visits.MaxTimeOnPage + 1 }, "timeOnPage"},
		{"huge time", func(p *visits.TrackPayload) { p.TimeOnPage = math.MaxInt64 }, "timeOnPage"},
		{"huge clicks", func(p *visits.TrackPayload) { p.Clicks = visits.MaxClicks + 1 }, "clicks"},
		{"huge load time", func(p *visits.TrackPayload) { p.LoadTime = visits.MaxLoadTime + 1 }, "loadTime"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := testsupport.NewTrackPayload("abc")
			tt.mutate(&p)

			err := v.Validate(&p)
			require.Error(t, err)

			var verr *visits.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Contains(t, verr.Fields, tt.field)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestValidateAcceptsUpperBounds(t *testing.T) {
	v := visits.NewValidator()
	p := testsupport.NewTrackPayload("abc")
	p.TimeOnPage = visits.MaxTimeOnPage
	p.Clicks = visits.MaxClicks
	p.LoadTime = visits.MaxLoadTime
	assert.NoError(t, v.Validate(&p))
}

func TestIsBounce(t *testing.T) {
	assert.True(t, visits.IsBounce(true, 0))
	assert.True(t, visits.IsBounce(true, visits.BounceThreshold-1))
	assert.False(t, visits.IsBounce(true, visits.BounceThreshold))
	assert.False(t, visits.IsBounce(false, 3))
}

func TestToEventDerivesBounce(t *testing.T) {
	tests := []struct {
		name       string
		firstVisit bool
		timeOnPage int
		claimed    bool
		want       bool
	}{
		{"returning reader claiming bounce", false, 600, true, false},
		{"long first visit claiming bounce", true, 600, true, false},
		{"short first visit claiming none", true, 5, false, true},
		{"short returning visit", false, 5, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := testsupport.NewTrackPayload("abc")
			p.IsFirstVisit = tt.firstVisit
			p.TimeOnPage = tt.timeOnPage
			p.IsBounce = tt.claimed

			assert.Equal(t, tt.want, p.ToEvent("k", "", time.Now()).IsBounce)
		})
	}
}

func TestValidateEventPayload(t *testing.T) {
	v := visits.NewValidator()

	ok := visits.EventPayload{SessionID: "abc", Type: "tier_list", Name: "open"}
	assert.NoError(t, v.Validate(&ok))

	bad := visits.EventPayload{SessionID: "abc"}
	var verr *visits.ValidationError
	require.ErrorAs(t, v.Validate(&bad), &verr)
	assert.Contains(t, verr.Fields, "type")
	assert.Contains(t, verr.Fields, "name")
}

func TestToEvent(t *testing.T) {
	now := time.Date(2024, 3, 10, 15, 4, 5, 0, time.FixedZone("CET", 3600))
	p := testsupport.NewTrackPayload("client-session")
	p.Page = "https://guide.example.com/character/hu-tao?ref=home"
	p.Referrer = "https://www.Reddit.com/r/Genshin_Impact/"
	p.Country = "DE"

	event := p.ToEvent("hashed-key", "guide.example.com", now)

	assert.Equal(t, "hashed-key", event.SessionID)
	assert.Equal(t, "/character/hu-tao", event.Page)
	assert.Equal(t, "reddit.com", event.ReferrerHost)
	assert.Equal(t, "DE", event.Country)
	assert.Equal(t, "europe", event.Region)
	assert.Equal(t, time.UTC, event.Timestamp.Location())
	assert.True(t, event.Timestamp.Equal(now))
	assert.Equal(t, 45, event.TimeOnPage)
}

func TestToEventDefaultsUnknownCountry(t *testing.T) {
	p := testsupport.NewTrackPayload("client-session")
	p.Country = "  "

	event := p.ToEvent("k", "", time.Now())
	assert.Equal(t, visits.UnknownCountry, event.Country)
	assert.Equal(t, "unknown", event.Region)
	assert.Equal(t, visits.DirectReferrer, event.ReferrerHost)
}

func TestToCustomEvent(t *testing.T) {
	p := visits.EventPayload{
		SessionID: "abc",
		Type:      "build_copy",
		Name:      "hu-tao",
		Page:      "/character/hu-tao",
		Metadata:  map[string]any{"slot": "artifact"},
	}
	event := p.ToCustomEvent("k", time.Now())
	assert.Equal(t, "k", event.SessionID)
	assert.Equal(t, "artifact", event.Metadata["slot"])

	p.Metadata = nil
	assert.Nil(t, p.ToCustomEvent("k", time.Now()).Metadata)
}

func TestReferrerHost(t *testing.T) {
	tests := []struct {
		referrer string
		site     string
		want     string
	}{
		{"", "guide.example.com", visits.DirectReferrer},
		{"not a url", "guide.example.com", visits.DirectReferrer},
		{"https://www.google.com/search?q=hu+tao", "guide.example.com", "google.com"},
		{"https://guide.example.com/weapon/homa", "guide.example.com", visits.DirectReferrer},
		{"https://www.guide.example.com/", "https://guide.example.com:8080", visits.DirectReferrer},
		{"https://hoyolab.com/article/1", "", "hoyolab.com"},
	}

	for _, tt := range tests {
		t.Run(tt.referrer, func(t *testing.T) {
			assert.Equal(t, tt.want, visits.ReferrerHost(tt.referrer, tt.site))
		})
	}
}

func TestPagePath(t *testing.T) {
	assert.Equal(t, "/character/hu-tao", visits.PagePath("https://guide.example.com/character/hu-tao?x=1#top"))
	assert.Equal(t, "/", visits.PagePath("https://guide.example.com"))
	assert.Equal(t, "/news/patch-4-5", visits.PagePath("/news/patch-4-5"))
}
