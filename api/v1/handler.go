// Package v1 serves the public analytics endpoints: visit ingestion, the
// sendBeacon variant, auxiliary events, dashboard stats and the geo helper
// used by the client tracker.
package v1

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"guidestats/internal/archive"
	"guidestats/internal/classifier"
	"guidestats/internal/metrics"
	"guidestats/internal/pkg/geoip"
	"guidestats/internal/sessions"
	"guidestats/internal/stats"
	"guidestats/internal/timeframe"
	"guidestats/internal/visitors"
	"guidestats/internal/visits"
)

const (
	msgEventRecorded   = "Event recorded"
	errInvalidRequest  = "Invalid request"
	errStoreFailure    = "Failed to record event"
	errStatsFailure    = "Failed to compute stats"
	endpointTrack      = "track"
	endpointBeacon     = "beacon"
	endpointEvent      = "event"
	userAgentForwarded = "X-Forwarded-User-Agent"
)

// Deps are the collaborators shared by every handler.
type Deps struct {
	Store      *visits.Store
	Sessions   *sessions.Aggregator
	Stats      *stats.Aggregator
	Validator  *visits.Validator
	Metrics    *metrics.Metrics
	Locator    *geoip.Locator
	Archiver   *archive.Archiver
	Logger     *slog.Logger
	Secret     string
	SiteHost   string
	ExcludeIPs []string
	// StatsLimit overrides stats.DefaultLimit when positive.
	StatsLimit int
	// TimeProvider drives both ingest timestamps and period parsing.
	TimeProvider timeframe.TimeProvider
}

// Handler implements the /api/analytics routes.
type Handler struct {
	Deps
	excluded map[string]bool
	parser   *timeframe.TimeFrameParser
}

func NewHandler(deps Deps) *Handler {
	if deps.Validator == nil {
		deps.Validator = visits.NewValidator()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}
	if deps.TimeProvider == nil {
		deps.TimeProvider = &timeframe.DefaultTimeProvider{}
	}

	excluded := make(map[string]bool, len(deps.ExcludeIPs))
	for _, ip := range deps.ExcludeIPs {
		if addr, ok := parseAddr(ip); ok {
			excluded[addr.String()] = true
		}
	}

	return &Handler{
		Deps:     deps,
		excluded: excluded,
		parser:   timeframe.NewTimeFrameParser(deps.TimeProvider),
	}
}

// Mount registers the routes under prefix. ingest guards the write
// endpoints and read the dashboard and geo lookups; both also answer the
// CORS preflight.
func (h *Handler) Mount(srv *cartridge.Server, prefix string, ingest, read *cartridge.RouteConfig) {
	srv.Post(prefix+"/track", h.Track, ingest)
	srv.Options(prefix+"/track", preflight, ingest)
	srv.Post(prefix+"/beacon", h.Beacon, ingest)
	srv.Options(prefix+"/beacon", preflight, ingest)
	srv.Post(prefix+"/event", h.Event, ingest)
	srv.Options(prefix+"/event", preflight, ingest)

	srv.Get(prefix+"/stats", h.Stats, read)
	srv.Options(prefix+"/stats", preflight, read)
	srv.Get(prefix+"/geo", h.Geo, read)
	srv.Options(prefix+"/geo", preflight, read)
}

func preflight(ctx *cartridge.Context) error {
	return ctx.SendStatus(fiber.StatusNoContent)
}

func jsonResult(c *fiber.Ctx, status int, success bool, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"success": success,
		"message": message,
	})
}

// Track accepts one finalized visit. The event is stored before the session
// is touched; a failed aggregation is logged and counted but the event stays
// accepted.
func (h *Handler) Track(ctx *cartridge.Context) error {
	c := ctx.Ctx
	start := time.Now()
	defer func() {
		h.Metrics.IngestDuration.WithLabelValues(endpointTrack).Observe(time.Since(start).Seconds())
	}()

	var payload visits.TrackPayload
	if err := c.BodyParser(&payload); err != nil {
		h.Logger.Debug("Failed to parse track request", slog.Any("error", err))
		h.Metrics.EventsIngested.WithLabelValues(endpointTrack, metrics.ResultInvalid).Inc()
		return jsonResult(c, http.StatusBadRequest, false, errInvalidRequest)
	}

	if err := h.Validator.Validate(&payload); err != nil {
		h.Logger.Debug("Rejected track request", slog.Any("error", err))
		h.Metrics.EventsIngested.WithLabelValues(endpointTrack, metrics.ResultInvalid).Inc()
		return jsonResult(c, http.StatusBadRequest, false, validationMessage(err))
	}

	if err := h.ingest(c.UserContext(), &payload, clientIP(c)); err != nil {
		h.Metrics.EventsIngested.WithLabelValues(endpointTrack, metrics.ResultError).Inc()
		return jsonResult(c, http.StatusInternalServerError, false, errStoreFailure)
	}

	h.Metrics.EventsIngested.WithLabelValues(endpointTrack, metrics.ResultAccepted).Inc()
	return jsonResult(c, http.StatusOK, true, msgEventRecorded)
}

// Beacon handles visits sent via navigator.sendBeacon. Beacons cannot read
// the response, so every outcome is a bare 202.
func (h *Handler) Beacon(ctx *cartridge.Context) error {
	c := ctx.Ctx
	start := time.Now()
	defer func() {
		h.Metrics.IngestDuration.WithLabelValues(endpointBeacon).Observe(time.Since(start).Seconds())
	}()

	var payload visits.TrackPayload
	if err := c.App().Config().JSONDecoder(c.Body(), &payload); err != nil {
		h.Logger.Debug("Failed to parse beacon request", slog.Any("error", err))
		h.Metrics.EventsIngested.WithLabelValues(endpointBeacon, metrics.ResultInvalid).Inc()
		return c.SendStatus(http.StatusAccepted)
	}

	userAgent := c.Get(fiber.HeaderUserAgent)
	if forwarded := c.Get(userAgentForwarded); forwarded != "" {
		userAgent = forwarded
	}
	if isBot(userAgent) {
		h.Logger.Debug("Dropping beacon from bot", slog.String("userAgent", userAgent))
		h.Metrics.EventsIngested.WithLabelValues(endpointBeacon, metrics.ResultBot).Inc()
		return c.SendStatus(http.StatusAccepted)
	}

	ip := clientIP(c)
	if h.excluded[ip] {
		h.Metrics.EventsIngested.WithLabelValues(endpointBeacon, metrics.ResultExcluded).Inc()
		return c.SendStatus(http.StatusAccepted)
	}

	if err := h.Validator.Validate(&payload); err != nil {
		h.Logger.Debug("Rejected beacon request", slog.Any("error", err))
		h.Metrics.EventsIngested.WithLabelValues(endpointBeacon, metrics.ResultInvalid).Inc()
		return c.SendStatus(http.StatusAccepted)
	}

	if err := h.ingest(c.UserContext(), &payload, ip); err != nil {
		h.Metrics.EventsIngested.WithLabelValues(endpointBeacon, metrics.ResultError).Inc()
		return c.SendStatus(http.StatusAccepted)
	}

	h.Metrics.EventsIngested.WithLabelValues(endpointBeacon, metrics.ResultAccepted).Inc()
	return c.SendStatus(http.StatusAccepted)
}

// ingest stores the event, mirrors it to the archive and folds it into the
// session record.
func (h *Handler) ingest(ctx context.Context, payload *visits.TrackPayload, ip string) error {
	if payload.Country == "" || payload.Country == visits.UnknownCountry {
		if loc := h.Locator.Lookup(ip); loc.Country != "" {
			payload.Country = loc.Country
			if payload.City == "" {
				payload.City = loc.City
			}
		}
	}

	key := h.sessionKey(payload.SessionID)
	event := payload.ToEvent(key, h.SiteHost, h.TimeProvider.Now(time.UTC))

	if err := h.Store.Append(ctx, event); err != nil {
		h.Logger.Error("Failed to store visit event",
			slog.String("page", event.Page),
			slog.Any("error", err))
		return err
	}

	h.Archiver.Enqueue(*event)

	created, err := h.Sessions.Upsert(ctx, key, sessions.Input{
		Page:             event.Page,
		PageType:         event.PageType,
		TimeOnPage:       event.TimeOnPage,
		ScrollDepth:      event.ScrollDepth,
		Clicks:           event.Clicks,
		Device:           event.Device,
		ScreenResolution: event.ScreenResolution,
		Region:           event.Region,
	})
	switch {
	case err != nil:
		h.Metrics.SessionUpserts.WithLabelValues(metrics.ResultError).Inc()
		h.Logger.Error("Failed to aggregate session",
			slog.String("page", event.Page),
			slog.Any("error", err))
	case created:
		h.Metrics.SessionUpserts.WithLabelValues(metrics.ResultCreated).Inc()
	default:
		h.Metrics.SessionUpserts.WithLabelValues(metrics.ResultUpdated).Inc()
	}
	return nil
}

// Event stores an auxiliary trackEvent call.
func (h *Handler) Event(ctx *cartridge.Context) error {
	c := ctx.Ctx
	var payload visits.EventPayload
	if err := c.BodyParser(&payload); err != nil {
		h.Metrics.EventsIngested.WithLabelValues(endpointEvent, metrics.ResultInvalid).Inc()
		return jsonResult(c, http.StatusBadRequest, false, errInvalidRequest)
	}
	if err := h.Validator.Validate(&payload); err != nil {
		h.Metrics.EventsIngested.WithLabelValues(endpointEvent, metrics.ResultInvalid).Inc()
		return jsonResult(c, http.StatusBadRequest, false, validationMessage(err))
	}

	event := payload.ToCustomEvent(h.sessionKey(payload.SessionID), h.TimeProvider.Now(time.UTC))
	if err := h.Store.AppendCustom(c.UserContext(), event); err != nil {
		h.Logger.Error("Failed to store custom event",
			slog.String("type", event.Type),
			slog.String("name", event.Name),
			slog.Any("error", err))
		h.Metrics.EventsIngested.WithLabelValues(endpointEvent, metrics.ResultError).Inc()
		return jsonResult(c, http.StatusInternalServerError, false, errStoreFailure)
	}

	h.Metrics.EventsIngested.WithLabelValues(endpointEvent, metrics.ResultAccepted).Inc()
	return jsonResult(c, http.StatusOK, true, msgEventRecorded)
}

// Geo resolves the caller's IP, or a valid ip query parameter, for the
// client tracker.
func (h *Handler) Geo(ctx *cartridge.Context) error {
	c := ctx.Ctx
	ip := clientIP(c)
	if addr, ok := parseAddr(c.Query("ip")); ok {
		ip = addr.String()
	}
	loc := h.Locator.Lookup(ip)
	if loc.Country == "" {
		return c.JSON(fiber.Map{"country": visits.UnknownCountry})
	}
	body := fiber.Map{"country": loc.Country}
	if loc.City != "" {
		body["city"] = loc.City
	}
	return c.JSON(body)
}

func validationMessage(err error) string {
	var verr *visits.ValidationError
	if errors.As(err, &verr) {
		return verr.Error()
	}
	return errInvalidRequest
}

// sessionKey anonymizes the client token before it reaches either store.
func (h *Handler) sessionKey(clientSessionID string) string {
	return visitors.SessionKey(clientSessionID, h.Secret)
}

func isBot(userAgent string) bool {
	return userAgent != "" && classifier.IsBot(userAgent)
}
