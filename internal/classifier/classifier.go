// Package classifier maps raw browser environment signals (user agent,
// screen width, URL path) to the coarse categories stored with every visit.
//
// All lookups are table driven. The signature tables are embedded YAML files
// compiled once into a shared regex cache; nothing here performs I/O beyond
// reading the embedded filesystem.
package classifier

import (
	"embed"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"go.elara.ws/pcre"
	"gopkg.in/yaml.v3"
)

// Unknown is returned for every signal that matches no table entry.
const Unknown = "Unknown"

// Device categories
const (
	DeviceDesktop = "desktop"
	DeviceMobile  = "mobile"
	DeviceTablet  = "tablet"
)

// Screen size buckets
const (
	ScreenSmall  = "small"
	ScreenMedium = "medium"
	ScreenLarge  = "large"
)

// Width thresholds shared by device and screen classification.
const (
	MobileMaxWidth = 768
	TabletMaxWidth = 1024
	MediumMaxWidth = 1440
)

//go:embed tables/browsers.yml
//go:embed tables/oss.yml
//go:embed tables/devices.yml
//go:embed tables/bots.yml
var tableFiles embed.FS

type browserEntry struct {
	Regex   string `yaml:"regex"`
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type osEntry struct {
	Regex    string            `yaml:"regex"`
	Name     string            `yaml:"name"`
	Version  string            `yaml:"version"`
	Versions map[string]string `yaml:"versions"`
}

type deviceTable struct {
	Tablet []string `yaml:"tablet"`
	Mobile []string `yaml:"mobile"`
}

type botEntry struct {
	Regex    string `yaml:"regex"`
	Name     string `yaml:"name"`
	Category string `yaml:"category"`
}

type regexCache struct {
	compiled map[string]*pcre.Regexp
	mutex    sync.RWMutex
}

func newRegexCache() *regexCache {
	return &regexCache{compiled: make(map[string]*pcre.Regexp)}
}

// get compiles patterns case-insensitively on first use.
func (rc *regexCache) get(pattern string) (*pcre.Regexp, error) {
	rc.mutex.RLock()
	if regex, ok := rc.compiled[pattern]; ok {
		rc.mutex.RUnlock()
		return regex, nil
	}
	rc.mutex.RUnlock()

	rc.mutex.Lock()
	defer rc.mutex.Unlock()

	if regex, ok := rc.compiled[pattern]; ok {
		return regex, nil
	}

	regex, err := pcre.Compile("(?i)" + pattern)
	if err != nil {
		return nil, err
	}
	rc.compiled[pattern] = regex
	return regex, nil
}

// Classifier holds the parsed signature tables.
type Classifier struct {
	browsers []browserEntry
	oss      []osEntry
	devices  deviceTable
	bots     []botEntry
	cache    *regexCache
}

// New parses the embedded tables and eagerly compiles every pattern so a
// broken signature fails here rather than silently never matching.
func New() (*Classifier, error) {
	c := &Classifier{cache: newRegexCache()}

	tables := []struct {
		file string
		out  any
	}{
		{"tables/browsers.yml", &c.browsers},
		{"tables/oss.yml", &c.oss},
		{"tables/devices.yml", &c.devices},
		{"tables/bots.yml", &c.bots},
	}
	for _, t := range tables {
		data, err := tableFiles.ReadFile(t.file)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", t.file, err)
		}
		if err := yaml.Unmarshal(data, t.out); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", t.file, err)
		}
	}

	for _, pattern := range c.patterns() {
		if _, err := c.cache.get(pattern); err != nil {
			return nil, fmt.Errorf("compiling %q: %w", pattern, err)
		}
	}
	return c, nil
}

func (c *Classifier) patterns() []string {
	var patterns []string
	for _, b := range c.browsers {
		patterns = append(patterns, b.Regex)
	}
	for _, o := range c.oss {
		patterns = append(patterns, o.Regex)
	}
	patterns = append(patterns, c.devices.Tablet...)
	patterns = append(patterns, c.devices.Mobile...)
	for _, b := range c.bots {
		patterns = append(patterns, b.Regex)
	}
	return patterns
}

var (
	defaultClassifier *Classifier
	defaultOnce       sync.Once
)

// Default returns the process-wide classifier built from the embedded tables.
func Default() *Classifier {
	defaultOnce.Do(func() {
		c, err := New()
		if err != nil {
			slog.Default().Error("Failed to load classifier tables", slog.Any("error", err))
			c = &Classifier{cache: newRegexCache()}
		}
		defaultClassifier = c
	})
	return defaultClassifier
}

// Browser returns the browser family and version for a user agent.
func (c *Classifier) Browser(userAgent string) (string, string) {
	for _, entry := range c.browsers {
		if name, version, ok := c.match(entry.Regex, entry.Name, entry.Version, userAgent); ok {
			return name, version
		}
	}
	return Unknown, Unknown
}

// OS returns the operating system and version for a user agent.
func (c *Classifier) OS(userAgent string) (string, string) {
	for _, entry := range c.oss {
		name, version, ok := c.match(entry.Regex, entry.Name, entry.Version, userAgent)
		if !ok {
			continue
		}
		version = strings.ReplaceAll(version, "_", ".")
		if mapped, found := entry.Versions[version]; found {
			version = mapped
		}
		return name, version
	}
	return Unknown, Unknown
}

// Device returns desktop, mobile or tablet. Keyword signatures win over the
// reported screen width; a non-positive width with no keyword is a desktop.
func (c *Classifier) Device(userAgent string, screenWidth int) string {
	if c.matchesAny(c.devices.Tablet, userAgent) {
		return DeviceTablet
	}
	if c.matchesAny(c.devices.Mobile, userAgent) {
		return DeviceMobile
	}

	switch {
	case screenWidth <= 0:
		return DeviceDesktop
	case screenWidth <= MobileMaxWidth:
		return DeviceMobile
	case screenWidth <= TabletMaxWidth:
		return DeviceTablet
	default:
		return DeviceDesktop
	}
}

// Bot reports whether the user agent belongs to a known crawler and, if so,
// which signature matched.
func (c *Classifier) Bot(userAgent string) (string, bool) {
	if strings.TrimSpace(userAgent) == "" {
		return "", false
	}
	for _, bot := range c.bots {
		if regex, err := c.cache.get(bot.Regex); err == nil && regex.MatchString(userAgent) {
			return bot.Name, true
		}
	}
	return "", false
}

func (c *Classifier) matchesAny(patterns []string, userAgent string) bool {
	for _, pattern := range patterns {
		if regex, err := c.cache.get(pattern); err == nil && regex.MatchString(userAgent) {
			return true
		}
	}
	return false
}

// match applies one table row, substituting $N placeholders in the version
// template with capture groups.
func (c *Classifier) match(pattern, name, versionTemplate, userAgent string) (string, string, bool) {
	regex, err := c.cache.get(pattern)
	if err != nil {
		return "", "", false
	}
	matches := regex.FindStringSubmatch(userAgent)
	if len(matches) == 0 {
		return "", "", false
	}

	version := versionTemplate
	for i, group := range matches[1:] {
		version = strings.ReplaceAll(version, fmt.Sprintf("$%d", i+1), group)
	}
	if version == "" || strings.Contains(version, "$") {
		version = Unknown
	}
	return name, version, true
}

// The package-level helpers use the Default classifier.

// ClassifyBrowser returns (name, version), ("Unknown", "Unknown") when unmatched.
func ClassifyBrowser(userAgent string) (string, string) {
	return Default().Browser(userAgent)
}

// ClassifyOS returns (name, version), ("Unknown", "Unknown") when unmatched.
func ClassifyOS(userAgent string) (string, string) {
	return Default().OS(userAgent)
}

// ClassifyDevice returns desktop, mobile or tablet.
func ClassifyDevice(userAgent string, screenWidth int) string {
	return Default().Device(userAgent, screenWidth)
}

// IsBot reports whether the user agent is a known crawler.
func IsBot(userAgent string) bool {
	_, ok := Default().Bot(userAgent)
	return ok
}
