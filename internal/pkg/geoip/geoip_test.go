package geoip

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guidestats/internal/testsupport"
)

func TestLocatorWithoutDatabase(t *testing.T) {
	l := NewLocator("", testsupport.GetLogger())
	assert.False(t, l.Enabled())
	assert.Equal(t, Location{}, l.Lookup("8.8.8.8"))
	assert.NoError(t, l.Close())
}

func TestLocatorMissingFile(t *testing.T) {
	l := NewLocator(filepath.Join(t.TempDir(), "GeoLite2-City.mmdb"), testsupport.GetLogger())
	assert.False(t, l.Enabled())
	l.Reload()
	assert.False(t, l.Enabled())
}

func TestLocatorCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "GeoLite2-Country.mmdb")
	require.NoError(t, os.WriteFile(path, []byte("not a maxmind database"), 0o644))

	l := NewLocator(path, testsupport.GetLogger())
	assert.False(t, l.Enabled())
	assert.Equal(t, Location{}, l.Lookup("1.1.1.1"))
}

func TestNilLocator(t *testing.T) {
	var l *Locator
	assert.False(t, l.Enabled())
	assert.Equal(t, Location{}, l.Lookup("1.1.1.1"))
}
