// Package regions maps countries onto the continental regions used by
// session records and the stats breakdowns.
package regions

import (
	"strings"
	"sync"

	"github.com/pariz/gountries"
)

// Region values
const (
	Europe   = "europe"
	Asia     = "asia"
	Americas = "americas"
	Africa   = "africa"
	Oceania  = "oceania"
	Unknown  = "unknown"
)

// All lists the regions in display order.
var All = []string{Europe, Asia, Americas, Africa, Oceania, Unknown}

var (
	query     *gountries.Query
	queryOnce sync.Once
)

func countries() *gountries.Query {
	queryOnce.Do(func() {
		query = gountries.New()
	})
	return query
}

// ForCountry resolves an ISO alpha-2/alpha-3 code or a common English name.
// Anything unresolvable, including "Unknown", maps to the unknown region.
func ForCountry(country string) string {
	country = strings.TrimSpace(country)
	if country == "" || strings.EqualFold(country, "unknown") {
		return Unknown
	}

	c, err := lookup(country)
	if err != nil {
		return Unknown
	}
	return normalize(c.Geo.Region)
}

// DisplayName returns the common English country name for a code, or the
// input unchanged when it cannot be resolved.
func DisplayName(country string) string {
	if country == "" || strings.EqualFold(country, "unknown") {
		return "Unknown"
	}
	c, err := lookup(country)
	if err != nil {
		return country
	}
	return c.Name.Common
}

func lookup(country string) (gountries.Country, error) {
	q := countries()
	if len(country) == 2 || len(country) == 3 {
		if c, err := q.FindCountryByAlpha(strings.ToUpper(country)); err == nil {
			return c, nil
		}
	}
	return q.FindCountryByName(country)
}

func normalize(region string) string {
	switch strings.ToLower(region) {
	case "europe":
		return Europe
	case "asia":
		return Asia
	case "americas":
		return Americas
	case "africa":
		return Africa
	case "oceania":
		return Oceania
	default:
		return Unknown
	}
}
