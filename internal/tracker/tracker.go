// Package tracker is the client-side instrumentation that turns one page
// visit into one finalized visit event. A Tracker is constructed explicitly
// by its host and driven through navigation, interaction and lifecycle
// signals; it never blocks the host on network or geolocation work.
package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"

	"guidestats/internal/classifier"
	"guidestats/internal/visits"
)

// Defaults
const (
	DefaultScrollDebounce = 100 * time.Millisecond
	DefaultGeoTimeout     = 3 * time.Second
	BounceThreshold       = visits.BounceThreshold
)

// Sender transmits finalized payloads to the ingestion endpoint.
type Sender interface {
	SendVisit(ctx context.Context, payload visits.TrackPayload) error
	SendEvent(ctx context.Context, payload visits.EventPayload) error
}

// Storage keeps the durable "has visited before" flag.
type Storage interface {
	HasVisited() (bool, error)
	MarkVisited() error
}

// Location is the best-effort geography of the visitor.
type Location struct {
	Country string `json:"country"`
	City    string `json:"city,omitempty"`
}

// GeoLocator resolves an IP to a location. An empty ip means the caller's
// own address as seen by the service.
type GeoLocator interface {
	Lookup(ctx context.Context, ip string) (Location, error)
}

// Environment is the host snapshot the tracker reads once at Init.
type Environment struct {
	UserAgent    string
	ScreenWidth  int
	ScreenHeight int
	Timezone     string
	Language     string
	Referrer     string
	// LoadTime is the navigation-timing load duration in ms, 0 if unknown.
	LoadTime int
}

// Options configures a Tracker. Sender is required.
type Options struct {
	Sender         Sender
	Storage        Storage
	Locator        GeoLocator
	Clock          func() time.Time
	Environment    Environment
	Logger         *slog.Logger
	SessionID      string
	ScrollDebounce time.Duration
	GeoTimeout     time.Duration
}

type page struct {
	url       string
	path      string
	pageType  string
	pageID    string
	utm       [3]string
	referrer  string
	loadTime  int
	start     time.Time
	clicks    int
	maxScroll int
	finalized bool
}

type scrollSample struct {
	top, height, viewport float64
}

// Tracker holds the per-visitor state of one browsing context.
type Tracker struct {
	opts      Options
	sessionID string
	env       classifier.Environment

	ctx    context.Context
	cancel context.CancelFunc
	sends  sync.WaitGroup

	mu            sync.Mutex
	initialized   bool
	disposed      bool
	firstVisit    bool
	geo           *Location
	current       *page
	pendingScroll *scrollSample
	scrollTimer   *time.Timer
}

// New builds a tracker. Nothing is observed until Init.
func New(opts Options) (*Tracker, error) {
	if opts.Sender == nil {
		return nil, fmt.Errorf("tracker: sender is required")
	}
	if opts.Storage == nil {
		opts.Storage = NewMemoryStorage()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.ScrollDebounce <= 0 {
		opts.ScrollDebounce = DefaultScrollDebounce
	}
	if opts.GeoTimeout <= 0 {
		opts.GeoTimeout = DefaultGeoTimeout
	}

	sessionID := opts.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	return &Tracker{opts: opts, sessionID: sessionID}, nil
}

// SessionID returns the stable token sent with every event.
func (t *Tracker) SessionID() string {
	return t.sessionID
}

// Init reads the first-visit flag, classifies the environment, starts the
// geolocation lookup and opens the initial page.
func (t *Tracker) Init(ctx context.Context, pageURL string) error {
	t.mu.Lock()
	if t.initialized {
		t.mu.Unlock()
		return nil
	}
	t.initialized = true
	t.ctx, t.cancel = context.WithCancel(ctx)

	visited, err := t.opts.Storage.HasVisited()
	if err != nil {
		t.opts.Logger.Debug("tracker: reading visit flag failed", slog.Any("error", err))
	}
	t.firstVisit = !visited
	if !visited {
		if err := t.opts.Storage.MarkVisited(); err != nil {
			t.opts.Logger.Debug("tracker: storing visit flag failed", slog.Any("error", err))
		}
	}

	env := t.opts.Environment
	t.env = classifier.Default().Classify(env.UserAgent, env.ScreenWidth)
	t.current = t.newPage(pageURL, env.Referrer, env.LoadTime)
	t.mu.Unlock()

	if t.opts.Locator != nil {
		go t.locate()
	}
	return nil
}

func (t *Tracker) locate() {
	ctx, cancel := context.WithTimeout(t.ctx, t.opts.GeoTimeout)
	defer cancel()

	loc, err := t.opts.Locator.Lookup(ctx, "")
	if err != nil || loc.Country == "" {
		t.opts.Logger.Debug("tracker: geolocation unavailable", slog.Any("error", err))
		return
	}

	t.mu.Lock()
	t.geo = &loc
	t.mu.Unlock()
}

func (t *Tracker) newPage(rawURL, referrer string, loadTime int) *page {
	pageType, pageID := classifier.ClassifyPage(rawURL)
	p := &page{
		url:      rawURL,
		path:     visits.PagePath(rawURL),
		pageType: pageType,
		pageID:   pageID,
		referrer: referrer,
		loadTime: loadTime,
		start:    t.opts.Clock(),
	}
	if u, err := url.Parse(rawURL); err == nil {
		q := u.Query()
		p.utm = [3]string{q.Get("utm_source"), q.Get("utm_medium"), q.Get("utm_campaign")}
	}
	return p
}

// StartNewPage finalizes the previous page and opens pageURL. Call it on
// every client-side navigation.
func (t *Tracker) StartNewPage(pageURL string) {
	t.mu.Lock()
	if !t.active() {
		t.mu.Unlock()
		return
	}
	if payload, ok := t.finalizeLocked(); ok {
		t.sendVisitLocked(payload)
	}
	previous := t.current.url
	t.current = t.newPage(pageURL, previous, 0)
	t.mu.Unlock()
}

// CheckPage treats a URL different from the current page as a navigation.
func (t *Tracker) CheckPage(pageURL string) {
	t.mu.Lock()
	changed := t.active() && t.current.url != pageURL
	t.mu.Unlock()

	if changed {
		t.StartNewPage(pageURL)
	}
}

// Watch polls locate every interval until ctx ends or the tracker is
// disposed, for hosts that cannot signal navigation directly.
func (t *Tracker) Watch(ctx context.Context, interval time.Duration, locate func() string) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.CheckPage(locate())
		case <-ctx.Done():
			return
		case <-t.done():
			return
		}
	}
}

func (t *Tracker) done() <-chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ctx == nil {
		return nil
	}
	return t.ctx.Done()
}

// RecordClick counts one click on the current page.
func (t *Tracker) RecordClick() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.active() {
		t.current.clicks++
	}
}

// RecordScroll records a scroll position. Samples are debounced; only the
// last one in a burst is applied.
func (t *Tracker) RecordScroll(scrollTop, scrollHeight, viewportHeight float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.active() {
		return
	}

	t.pendingScroll = &scrollSample{top: scrollTop, height: scrollHeight, viewport: viewportHeight}
	if t.scrollTimer == nil {
		t.scrollTimer = time.AfterFunc(t.opts.ScrollDebounce, t.applyScroll)
		return
	}
	t.scrollTimer.Reset(t.opts.ScrollDebounce)
}

func (t *Tracker) applyScroll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.applyScrollLocked()
}

func (t *Tracker) applyScrollLocked() {
	if t.pendingScroll == nil || t.current == nil {
		return
	}
	depth := ScrollDepth(t.pendingScroll.top, t.pendingScroll.height, t.pendingScroll.viewport)
	t.pendingScroll = nil
	if depth > t.current.maxScroll {
		t.current.maxScroll = depth
	}
}

// ScrollDepth is the scrolled share of the scrollable height in [0,100].
// A page shorter than its viewport is fully seen.
func ScrollDepth(scrollTop, scrollHeight, viewportHeight float64) int {
	scrollable := scrollHeight - viewportHeight
	if scrollable <= 0 {
		return 100
	}
	pct := math.Round(scrollTop / scrollable * 100)
	return int(max(0, min(100, pct)))
}

// VisibilityChanged finalizes the page when it is hidden. Becoming visible
// again only restarts the page timer.
func (t *Tracker) VisibilityChanged(hidden bool) {
	t.mu.Lock()
	if !t.active() {
		t.mu.Unlock()
		return
	}
	if !hidden {
		t.current.start = t.opts.Clock()
		t.mu.Unlock()
		return
	}
	if payload, ok := t.finalizeLocked(); ok {
		t.sendVisitLocked(payload)
	}
	t.mu.Unlock()
}

// Unload finalizes the current page without opening another.
func (t *Tracker) Unload() {
	t.mu.Lock()
	if !t.active() {
		t.mu.Unlock()
		return
	}
	if payload, ok := t.finalizeLocked(); ok {
		t.sendVisitLocked(payload)
	}
	t.mu.Unlock()
}

// TrackEvent sends an auxiliary event, independent of the page lifecycle.
func (t *Tracker) TrackEvent(eventType, name string, metadata map[string]any) {
	t.mu.Lock()
	if !t.active() {
		t.mu.Unlock()
		return
	}
	payload := visits.EventPayload{
		SessionID: t.sessionID,
		Type:      eventType,
		Name:      name,
		Page:      t.current.path,
		Metadata:  metadata,
	}
	t.dispatchLocked("event", func(ctx context.Context) error {
		return t.opts.Sender.SendEvent(ctx, payload)
	})
	t.mu.Unlock()
}

// Dispose stops timers and background work and waits for in-flight sends.
// The tracker ignores every call afterwards.
func (t *Tracker) Dispose() {
	t.mu.Lock()
	if t.disposed {
		t.mu.Unlock()
		return
	}
	t.disposed = true
	if t.scrollTimer != nil {
		t.scrollTimer.Stop()
	}
	if t.cancel != nil {
		t.cancel()
	}
	t.mu.Unlock()

	t.sends.Wait()
}

func (t *Tracker) active() bool {
	return t.initialized && !t.disposed && t.current != nil
}

// finalizeLocked builds the payload for the current page and marks it
// finalized, so later triggers for the same page emit nothing.
func (t *Tracker) finalizeLocked() (visits.TrackPayload, bool) {
	p := t.current
	if p.finalized {
		return visits.TrackPayload{}, false
	}

	if t.scrollTimer != nil {
		t.scrollTimer.Stop()
	}
	t.applyScrollLocked()

	now := t.opts.Clock()
	timeOnPage := int(now.Sub(p.start) / time.Second)
	if timeOnPage < 0 {
		timeOnPage = 0
	}
	p.finalized = true
	p.start = now

	country, city := visits.UnknownCountry, ""
	if t.geo != nil {
		country, city = t.geo.Country, t.geo.City
	}

	env := t.opts.Environment
	resolution := ""
	if env.ScreenWidth > 0 && env.ScreenHeight > 0 {
		resolution = fmt.Sprintf("%dx%d", env.ScreenWidth, env.ScreenHeight)
	}

	return visits.TrackPayload{
		SessionID:        t.sessionID,
		Page:             p.path,
		PageType:         p.pageType,
		PageID:           p.pageID,
		Browser:          t.env.Browser,
		BrowserVersion:   t.env.BrowserVersion,
		OS:               t.env.OS,
		OSVersion:        t.env.OSVersion,
		Device:           t.env.Device,
		ScreenResolution: resolution,
		Country:          country,
		City:             city,
		Timezone:         env.Timezone,
		Language:         env.Language,
		Referrer:         p.referrer,
		UTMSource:        p.utm[0],
		UTMMedium:        p.utm[1],
		UTMCampaign:      p.utm[2],
		TimeOnPage:       min(timeOnPage, visits.MaxTimeOnPage),
		ScrollDepth:      p.maxScroll,
		Clicks:           min(p.clicks, visits.MaxClicks),
		LoadTime:         min(max(0, p.loadTime), visits.MaxLoadTime),
		IsBounce:         visits.IsBounce(t.firstVisit, timeOnPage),
		IsFirstVisit:     t.firstVisit,
	}, true
}

func (t *Tracker) sendVisitLocked(payload visits.TrackPayload) {
	t.dispatchLocked("visit", func(ctx context.Context) error {
		return t.opts.Sender.SendVisit(ctx, payload)
	})
}

// dispatchLocked runs send on its own goroutine. Failures are dropped.
// Holding t.mu orders the Add before Dispose's Wait; a disposed tracker
// sends nothing.
func (t *Tracker) dispatchLocked(kind string, send func(ctx context.Context) error) {
	if t.disposed {
		return
	}
	t.sends.Add(1)
	go func() {
		defer t.sends.Done()
		// Sends outlive Dispose's cancellation; the sender bounds them.
		if err := send(context.Background()); err != nil {
			t.opts.Logger.Debug("tracker: send failed",
				slog.String("kind", kind),
				slog.Any("error", err))
		}
	}()
}
