package classifier_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"guidestats/internal/classifier"
)

func TestClassifyPage(t *testing.T) {
	tests := []struct {
		url      string
		wantType string
		wantID   string
	}{
		{"/characters/hu-tao", classifier.PageCharacter, "hu-tao"},
		{"https://guide.example/weapons/staff-of-homa?utm_source=reddit", classifier.PageWeapon, "staff-of-homa"},
		{"/artifacts/crimson-witch/", classifier.PageArtifact, "crimson-witch"},
		{"/news/4-3-banner", classifier.PageNews, "4-3-banner"},
		{"/characters", classifier.PageCharacter, ""},
		{"/about", classifier.PageAbout, ""},
		{"/search?q=zhongli", classifier.PageSearch, ""},
		{"/", classifier.PageHome, ""},
		{"", classifier.PageHome, ""},
		{"/Characters/Hu-Tao", classifier.PageCharacter, "hu-tao"},
		{"/friends", classifier.PageOther, ""},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			pageType, pageID := classifier.ClassifyPage(tt.url)
			assert.Equal(t, tt.wantType, pageType)
			assert.Equal(t, tt.wantID, pageID)
		})
	}
}

func TestEnumMembership(t *testing.T) {
	for _, pt := range classifier.PageTypes {
		assert.True(t, classifier.IsPageType(pt), pt)
	}
	assert.False(t, classifier.IsPageType("boss"))
	assert.False(t, classifier.IsPageType(""))

	assert.True(t, classifier.IsDeviceType("tablet"))
	assert.False(t, classifier.IsDeviceType("console"))
}

func TestClassifyScreen(t *testing.T) {
	assert.Equal(t, classifier.ScreenSmall, classifier.ClassifyScreen(375))
	assert.Equal(t, classifier.ScreenSmall, classifier.ClassifyScreen(768))
	assert.Equal(t, classifier.ScreenMedium, classifier.ClassifyScreen(769))
	assert.Equal(t, classifier.ScreenMedium, classifier.ClassifyScreen(1440))
	assert.Equal(t, classifier.ScreenLarge, classifier.ClassifyScreen(2560))
	assert.Equal(t, classifier.ScreenLarge, classifier.ClassifyScreen(0))
	assert.Equal(t, classifier.ScreenLarge, classifier.ClassifyScreen(1441))
}

func TestClassifyScreenAgreesWithDeviceThreshold(t *testing.T) {
	c := classifier.Default()
	for _, width := range []int{classifier.MobileMaxWidth - 1, classifier.MobileMaxWidth, classifier.MobileMaxWidth + 1} {
		small := classifier.ClassifyScreen(width) == classifier.ScreenSmall
		mobile := c.Device("", width) == classifier.DeviceMobile
		assert.Equal(t, mobile, small, "width %d", width)
	}
}

func TestParseResolution(t *testing.T) {
	w, h := classifier.ParseResolution("1920x1080")
	assert.Equal(t, 1920, w)
	assert.Equal(t, 1080, h)

	w, h = classifier.ParseResolution(" 390 X 844 ")
	assert.Equal(t, 390, w)
	assert.Equal(t, 844, h)

	for _, bad := range []string{"", "wide", "x", "-1x20", "1920x"} {
		w, h = classifier.ParseResolution(bad)
		assert.Zero(t, w, bad)
		assert.Zero(t, h, bad)
	}

	assert.Equal(t, classifier.ScreenSmall, classifier.ScreenSizeForResolution("390x844"))
}
