package v1_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guidestats/internal/testsupport"
)

func TestStatsHandler(t *testing.T) {
	env := newTestEnv(t)

	seed := func(t *testing.T) {
		for _, id := range []string{"a", "a", "b"} {
			resp, _ := env.postJSON(t, "/api/analytics/track", testsupport.NewTrackPayload(id))
			require.Equal(t, http.StatusOK, resp.StatusCode)
			env.clock.Advance(time.Minute)
		}
		env.clock.Set(now)
	}

	t.Run("returns the dashboard for a period", func(t *testing.T) {
		testsupport.CleanAllTables(env.db)
		seed(t)

		resp, body := env.do(t, http.MethodGet, "/api/analytics/stats?period=today", "", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, true, body["success"])

		data := body["data"].(map[string]any)
		overview := data["overview"].(map[string]any)
		assert.Equal(t, 3.0, overview["totalPageViews"])
		assert.Equal(t, 2.0, overview["uniqueSessions"])
		assert.Len(t, data["hourlyStats"], 24)
		assert.Len(t, data["weeklyStats"], 7)
		assert.NotNil(t, data["topPages"])

		rng := data["range"].(map[string]any)
		assert.Equal(t, "UTC", rng["timezone"])
		assert.Equal(t, "hour", rng["bucketSize"])
	})

	t.Run("uses a custom range and filters", func(t *testing.T) {
		testsupport.CleanAllTables(env.db)
		seed(t)

		resp, body := env.do(t, http.MethodGet,
			"/api/analytics/stats?from=2024-07-01&to=2024-07-15&tz=Europe/Berlin&device=mobile&limit=5", "", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		data := body["data"].(map[string]any)
		overview := data["overview"].(map[string]any)
		assert.Zero(t, overview["totalPageViews"])
		assert.Empty(t, data["topPages"])
		assert.NotNil(t, data["topPages"], "empty lists are arrays, not null")
	})

	t.Run("all time starts at the first event", func(t *testing.T) {
		testsupport.CleanAllTables(env.db)
		seed(t)

		resp, body := env.do(t, http.MethodGet, "/api/analytics/stats?period=all", "", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		rng := body["data"].(map[string]any)["range"].(map[string]any)
		assert.Equal(t, "2024-07-15T00:00:00Z", rng["from"])
	})

	t.Run("rejects invalid windows", func(t *testing.T) {
		for _, query := range []string{
			"period=fortnight",
			"from=15-07-2024",
			"from=2024-07-10&to=2024-07-01",
			"period=7d&from=2024-07-01",
			"tz=Mars/Olympus_Mons",
			"limit=abc",
			"limit=-3",
		} {
			resp, body := env.do(t, http.MethodGet, "/api/analytics/stats?"+query, "", nil)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode, query)
			assert.Equal(t, false, body["success"], query)
			assert.NotEmpty(t, body["message"], query)
		}
	})
}
