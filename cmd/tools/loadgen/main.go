// main.go - Load generator for the ingestion endpoint
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"text/tabwriter"
	"time"

	"golang.org/x/term"

	"guidestats/internal/classifier"
	"guidestats/internal/tracker"
	"guidestats/internal/visits"
)

// LoadConfig holds the configuration for a load run
type LoadConfig struct {
	BaseURL      string
	Concurrency  int
	Duration     time.Duration
	EventsPerSec int
	Sessions     int
	Timeout      time.Duration
}

// LoadStats accumulates results across workers
type LoadStats struct {
	Total     atomic.Int64
	Succeeded atomic.Int64
	Failed    atomic.Int64

	mu        sync.Mutex
	latencies []time.Duration
	errors    map[string]int64
}

func (s *LoadStats) record(d time.Duration, err error) {
	s.Total.Add(1)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.Failed.Add(1)
		s.errors[summarizeError(err)]++
		return
	}
	s.Succeeded.Add(1)
	s.latencies = append(s.latencies, d)
}

func summarizeError(err error) string {
	msg := err.Error()
	if i := strings.Index(msg, ": {"); i > 0 {
		msg = msg[:i]
	}
	return msg
}

var guidePages = []string{
	"/",
	"/characters/hu-tao",
	"/characters/furina",
	"/characters/neuvillette",
	"/weapons/staff-of-homa",
	"/weapons/mistsplitter-reforged",
	"/artifacts/crimson-witch",
	"/news/patch-4-8",
	"/search?q=tier+list",
	"/about",
}

var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0",
	"Mozilla/5.0 (iPhone; CPU iPhone OS 17_1_2 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Mobile/15E148 Safari/604.1",
	"Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Mobile Safari/537.36",
}

var countries = []string{"Japan", "United States", "Germany", "Brazil", "Indonesia", "Unknown"}

func main() {
	baseURL := flag.String("url", "http://localhost:3000", "Base URL of the ingestion server")
	concurrency := flag.Int("c", 10, "Number of concurrent clients")
	duration := flag.Duration("d", 30*time.Second, "Duration of the run")
	eventsPerSec := flag.Int("rate", 0, "Target events per second (0 = unlimited)")
	sessions := flag.Int("sessions", 200, "Number of distinct simulated sessions")
	timeout := flag.Duration("timeout", 5*time.Second, "Request timeout")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg := &LoadConfig{
		BaseURL:      *baseURL,
		Concurrency:  max(1, *concurrency),
		Duration:     *duration,
		EventsPerSec: *eventsPerSec,
		Sessions:     max(1, *sessions),
		Timeout:      *timeout,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	runCtx, runCancel := context.WithTimeout(ctx, cfg.Duration)
	defer runCancel()

	logger.Info("Starting load run",
		slog.String("target", cfg.BaseURL+"/api/analytics/track"),
		slog.Int("concurrency", cfg.Concurrency),
		slog.Duration("duration", cfg.Duration),
		slog.Int("rate", cfg.EventsPerSec))

	stats := &LoadStats{errors: make(map[string]int64)}
	interactive := term.IsTerminal(int(os.Stdout.Fd()))

	start := time.Now()
	done := make(chan struct{})
	if interactive {
		go showProgress(runCtx, stats, done)
	}

	run(runCtx, cfg, stats)
	close(done)

	printResults(stats, time.Since(start))
}

func run(ctx context.Context, cfg *LoadConfig, stats *LoadStats) {
	client := tracker.NewHTTPClient(cfg.BaseURL, cfg.Timeout)

	var interval time.Duration
	if cfg.EventsPerSec > 0 {
		perWorker := float64(cfg.EventsPerSec) / float64(cfg.Concurrency)
		interval = time.Duration(float64(time.Second) / perWorker)
	}

	var wg sync.WaitGroup
	for i := 0; i < cfg.Concurrency; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

			var ticker *time.Ticker
			if interval > 0 {
				ticker = time.NewTicker(interval)
				defer ticker.Stop()
			}

			for {
				if ticker != nil {
					select {
					case <-ticker.C:
					case <-ctx.Done():
						return
					}
				} else if ctx.Err() != nil {
					return
				}

				payload := randomVisit(rng, cfg.Sessions)
				began := time.Now()
				err := client.SendVisit(ctx, payload)
				if ctx.Err() != nil {
					return
				}
				stats.record(time.Since(began), err)
			}
		}(i)
	}
	wg.Wait()
}

// randomVisit builds a plausible finalized visit the way the client tracker
// would.
func randomVisit(rng *rand.Rand, sessions int) visits.TrackPayload {
	page := guidePages[rng.Intn(len(guidePages))]
	pageType, pageID := classifier.ClassifyPage(page)
	ua := userAgents[rng.Intn(len(userAgents))]
	width := []int{390, 820, 1366, 1920}[rng.Intn(4)]
	env := classifier.Default().Classify(ua, width)

	firstVisit := rng.Float64() < 0.4
	timeOnPage := rng.Intn(240)

	return visits.TrackPayload{
		SessionID:        fmt.Sprintf("loadgen-%d", rng.Intn(sessions)),
		Page:             visits.PagePath(page),
		PageType:         pageType,
		PageID:           pageID,
		Browser:          env.Browser,
		BrowserVersion:   env.BrowserVersion,
		OS:               env.OS,
		OSVersion:        env.OSVersion,
		Device:           env.Device,
		ScreenResolution: fmt.Sprintf("%dx%d", width, width*9/16),
		Country:          countries[rng.Intn(len(countries))],
		Timezone:         "UTC",
		Language:         "en-US",
		TimeOnPage:       timeOnPage,
		ScrollDepth:      rng.Intn(101),
		Clicks:           rng.Intn(8),
		LoadTime:         200 + rng.Intn(2500),
		IsBounce:         visits.IsBounce(firstVisit, timeOnPage),
		IsFirstVisit:     firstVisit,
	}
}

func showProgress(ctx context.Context, stats *LoadStats, done <-chan struct{}) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			fmt.Printf("\r%d sent, %d ok, %d failed", stats.Total.Load(), stats.Succeeded.Load(), stats.Failed.Load())
		case <-ctx.Done():
			fmt.Println()
			return
		case <-done:
			fmt.Println()
			return
		}
	}
}

func printResults(stats *LoadStats, elapsed time.Duration) {
	stats.mu.Lock()
	defer stats.mu.Unlock()

	total := stats.Total.Load()
	sort.Slice(stats.latencies, func(i, j int) bool { return stats.latencies[i] < stats.latencies[j] })

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "\n%s\t%s\n", "METRIC", "VALUE")
	fmt.Fprintf(w, "%s\t%s\n", "------", "-----")
	fmt.Fprintf(w, "Duration\t%v\n", elapsed.Round(time.Millisecond))
	fmt.Fprintf(w, "Total Requests\t%d\n", total)
	fmt.Fprintf(w, "Successful\t%d\n", stats.Succeeded.Load())
	fmt.Fprintf(w, "Failed\t%d\n", stats.Failed.Load())
	if elapsed > 0 {
		fmt.Fprintf(w, "Requests/sec\t%.2f\n", float64(total)/elapsed.Seconds())
	}
	if n := len(stats.latencies); n > 0 {
		fmt.Fprintf(w, "p50 Latency\t%v\n", percentile(stats.latencies, 0.50))
		fmt.Fprintf(w, "p95 Latency\t%v\n", percentile(stats.latencies, 0.95))
		fmt.Fprintf(w, "p99 Latency\t%v\n", percentile(stats.latencies, 0.99))
		fmt.Fprintf(w, "Max Latency\t%v\n", stats.latencies[n-1])
	}
	w.Flush()

	if len(stats.errors) > 0 {
		fmt.Println("\nErrors:")
		for msg, count := range stats.errors {
			fmt.Printf("  %6d  %s\n", count, msg)
		}
	}
}

// percentile expects sorted input.
func percentile(sorted []time.Duration, p float64) time.Duration {
	idx := int(float64(len(sorted)-1) * p)
	return sorted[idx]
}
