package v1

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"guidestats/internal/stats"
	"guidestats/internal/timeframe"
)

// Stats answers GET /stats with the full dashboard for the requested window.
func (h *Handler) Stats(rc *cartridge.Context) error {
	c := rc.Ctx
	start := time.Now()
	defer func() {
		h.Metrics.StatsDuration.Observe(time.Since(start).Seconds())
	}()

	ctx := c.UserContext()
	params := timeframe.TimeFrameParserParams{
		FromDate: strings.TrimSpace(c.Query("from")),
		ToDate:   strings.TrimSpace(c.Query("to")),
		Period:   strings.TrimSpace(c.Query("period")),
		Tz:       strings.TrimSpace(c.Query("tz")),
	}

	if params.Period == timeframe.PeriodAll {
		first, err := h.Deps.Stats.FirstEventAt(ctx)
		if err != nil {
			h.Logger.Error("Failed to resolve first event", slog.Any("error", err))
			return jsonResult(c, http.StatusInternalServerError, false, errStatsFailure)
		}
		params.AllTimeFirstEventAt = first
	}

	tf, err := h.parser.ParseTimeFrame(params)
	if err != nil {
		// Every parse failure wraps timeframe.ErrInvalidTimeFrame.
		return jsonResult(c, http.StatusBadRequest, false, err.Error())
	}

	limit, err := h.parseLimit(c.Query("limit"))
	if err != nil {
		return jsonResult(c, http.StatusBadRequest, false, "limit must be a positive integer")
	}

	dashboard, err := h.Deps.Stats.Dashboard(ctx, stats.Query{
		TimeFrame: tf,
		Limit:     limit,
		Filters: stats.Filters{
			PageType: strings.TrimSpace(c.Query("pageType")),
			Device:   strings.TrimSpace(c.Query("device")),
			Country:  strings.TrimSpace(c.Query("country")),
			Region:   strings.TrimSpace(c.Query("region")),
		},
	})
	if err != nil {
		h.Logger.Error("Failed to compute dashboard",
			slog.Time("from", tf.From),
			slog.Time("to", tf.To),
			slog.Any("error", err))
		return jsonResult(c, http.StatusInternalServerError, false, errStatsFailure)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    dashboard,
	})
}

// parseLimit falls back to the configured default and clamps to stats.MaxLimit.
func (h *Handler) parseLimit(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		if h.StatsLimit > 0 {
			return min(h.StatsLimit, stats.MaxLimit), nil
		}
		return stats.DefaultLimit, nil
	}

	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, errors.New("invalid limit")
	}
	return min(n, stats.MaxLimit), nil
}
