package regions

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestForCountry(t *testing.T) {
	tests := []struct {
		country string
		want    string
	}{
		{"DE", Europe},
		{"de", Europe},
		{"FRA", Europe},
		{"JP", Asia},
		{"CN", Asia},
		{"US", Americas},
		{"BR", Americas},
		{"NG", Africa},
		{"AU", Oceania},
		{"Germany", Europe},
		{"Unknown", Unknown},
		{"", Unknown},
		{"ZZ", Unknown},
		{"Atlantis", Unknown},
	}

	for _, tt := range tests {
		t.Run(tt.country, func(t *testing.T) {
			assert.Equal(t, tt.want, ForCountry(tt.country))
		})
	}
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "Germany", DisplayName("de"))
	assert.Equal(t, "Japan", DisplayName("JP"))
	assert.Equal(t, "Unknown", DisplayName(""))
	assert.Equal(t, "Unknown", DisplayName("unknown"))
	assert.Equal(t, "ZZ", DisplayName("ZZ"))
}
