package classifier

import (
	"net/url"
	"slices"
	"strconv"
	"strings"
)

// Page types
const (
	PageCharacter = "character"
	PageWeapon    = "weapon"
	PageArtifact  = "artifact"
	PageNews      = "news"
	PageAbout     = "about"
	PageHome      = "home"
	PageSearch    = "search"
	PageOther     = "other"
)

// PageTypes lists every accepted page type.
var PageTypes = []string{
	PageCharacter, PageWeapon, PageArtifact, PageNews,
	PageAbout, PageHome, PageSearch, PageOther,
}

// DeviceTypes lists every accepted device category.
var DeviceTypes = []string{DeviceDesktop, DeviceMobile, DeviceTablet}

// sectionPageTypes maps the first path segment to its page type. Content
// sections take the second segment as the content id.
var sectionPageTypes = map[string]string{
	"characters": PageCharacter,
	"character":  PageCharacter,
	"weapons":    PageWeapon,
	"weapon":     PageWeapon,
	"artifacts":  PageArtifact,
	"artifact":   PageArtifact,
	"news":       PageNews,
	"about":      PageAbout,
	"search":     PageSearch,
}

// ClassifyPage maps a URL or path to its page type and optional content id.
func ClassifyPage(rawURL string) (string, string) {
	path := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		path = u.Path
	}

	segments := strings.FieldsFunc(strings.ToLower(path), func(r rune) bool { return r == '/' })
	if len(segments) == 0 {
		return PageHome, ""
	}

	pageType, ok := sectionPageTypes[segments[0]]
	if !ok {
		return PageOther, ""
	}

	switch pageType {
	case PageAbout, PageSearch:
		return pageType, ""
	}
	if len(segments) > 1 {
		return pageType, segments[1]
	}
	return pageType, ""
}

// IsPageType reports whether s is one of the accepted page types.
func IsPageType(s string) bool {
	return slices.Contains(PageTypes, s)
}

// IsDeviceType reports whether s is one of the accepted device categories.
func IsDeviceType(s string) bool {
	return slices.Contains(DeviceTypes, s)
}

// ClassifyScreen buckets a screen width into small, medium or large. An
// unknown width is large, matching the desktop fallback in Device.
func ClassifyScreen(width int) string {
	switch {
	case width <= 0:
		return ScreenLarge
	case width <= MobileMaxWidth:
		return ScreenSmall
	case width <= MediumMaxWidth:
		return ScreenMedium
	default:
		return ScreenLarge
	}
}

// ParseResolution splits a "WIDTHxHEIGHT" string. Unparseable input yields zeros.
func ParseResolution(resolution string) (int, int) {
	w, h, ok := strings.Cut(strings.ToLower(strings.TrimSpace(resolution)), "x")
	if !ok {
		return 0, 0
	}
	width, err := strconv.Atoi(strings.TrimSpace(w))
	if err != nil || width < 0 {
		return 0, 0
	}
	height, err := strconv.Atoi(strings.TrimSpace(h))
	if err != nil || height < 0 {
		return 0, 0
	}
	return width, height
}

// ScreenSizeForResolution is ClassifyScreen applied to a resolution string.
func ScreenSizeForResolution(resolution string) string {
	width, _ := ParseResolution(resolution)
	return ClassifyScreen(width)
}

// Environment is the classified snapshot attached to a visit.
type Environment struct {
	Browser        string
	BrowserVersion string
	OS             string
	OSVersion      string
	Device         string
}

// Classify runs the browser, OS and device lookups in one call.
func (c *Classifier) Classify(userAgent string, screenWidth int) Environment {
	browser, browserVersion := c.Browser(userAgent)
	os, osVersion := c.OS(userAgent)
	return Environment{
		Browser:        browser,
		BrowserVersion: browserVersion,
		OS:             os,
		OSVersion:      osVersion,
		Device:         c.Device(userAgent, screenWidth),
	}
}

