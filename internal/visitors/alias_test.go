package visitors_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"guidestats/internal/visitors"
)

func TestAlias(t *testing.T) {
	key := visitors.SessionKey("token-1", "secret")

	alias := visitors.Alias(key)
	assert.Equal(t, alias, visitors.Alias(key), "alias must be deterministic")
	assert.Len(t, strings.Fields(alias), 2)

	seen := make(map[string]bool)
	for _, token := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		seen[visitors.Alias(visitors.SessionKey(token, "secret"))] = true
	}
	assert.Greater(t, len(seen), 1, "different sessions should not all share one alias")
}
