package tracker

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"guidestats/internal/visits"
)

const (
	trackPath = "/api/analytics/track"
	eventPath = "/api/analytics/event"
	geoPath   = "/api/analytics/geo"

	defaultHTTPTimeout = 5 * time.Second
	clientUserAgent    = "guidestats-tracker/1.0"
)

// HTTPClient posts payloads to, and looks up locations from, an ingestion
// server at BaseURL. It implements both Sender and GeoLocator.
type HTTPClient struct {
	BaseURL string
	Timeout time.Duration
}

// NewHTTPClient returns a client for the server at baseURL.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	return &HTTPClient{BaseURL: strings.TrimRight(baseURL, "/"), Timeout: timeout}
}

// SendVisit posts a finalized visit.
func (c *HTTPClient) SendVisit(ctx context.Context, payload visits.TrackPayload) error {
	return c.post(ctx, trackPath, payload)
}

// SendEvent posts an auxiliary event.
func (c *HTTPClient) SendEvent(ctx context.Context, payload visits.EventPayload) error {
	return c.post(ctx, eventPath, payload)
}

func (c *HTTPClient) post(ctx context.Context, path string, body any) error {
	timeout, err := c.timeout(ctx)
	if err != nil {
		return err
	}

	agent := fiber.Post(c.BaseURL + path).
		JSON(body).
		Timeout(timeout).
		UserAgent(clientUserAgent)

	code, resp, errs := agent.Bytes()
	if len(errs) > 0 {
		return fmt.Errorf("post %s: %w", path, errors.Join(errs...))
	}
	if code < 200 || code >= 300 {
		return fmt.Errorf("post %s: status %d: %s", path, code, strings.TrimSpace(string(resp)))
	}
	return nil
}

// Lookup asks the server's geo endpoint. An empty ip resolves the caller.
func (c *HTTPClient) Lookup(ctx context.Context, ip string) (Location, error) {
	timeout, err := c.timeout(ctx)
	if err != nil {
		return Location{}, err
	}

	target := c.BaseURL + geoPath
	if ip != "" {
		target += "?ip=" + url.QueryEscape(ip)
	}

	var loc Location
	code, _, errs := fiber.Get(target).
		Timeout(timeout).
		UserAgent(clientUserAgent).
		Struct(&loc)
	if len(errs) > 0 {
		return Location{}, fmt.Errorf("geo lookup: %w", errors.Join(errs...))
	}
	if code != fiber.StatusOK {
		return Location{}, fmt.Errorf("geo lookup: status %d", code)
	}
	return loc, nil
}

// timeout is the client timeout capped by the context deadline.
func (c *HTTPClient) timeout(ctx context.Context) (time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	timeout := c.Timeout
	if deadline, ok := ctx.Deadline(); ok {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return 0, context.DeadlineExceeded
		}
		timeout = min(timeout, remaining)
	}
	return timeout, nil
}
