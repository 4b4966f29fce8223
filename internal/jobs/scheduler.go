package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Job is a unit of periodic background work.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

type entry struct {
	job      Job
	interval time.Duration
}

// Scheduler is responsible for running background jobs
type Scheduler struct {
	logger    *slog.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	isRunning bool
	entries   []entry
	wg        sync.WaitGroup

	// Mutex to prevent concurrent executions of the same job
	processingMutex sync.Mutex
	processing      map[string]bool
}

func NewScheduler(logger *slog.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
		processing: make(map[string]bool),
	}
}

// Schedule registers job to run at start and then every interval. Jobs with a
// non-positive interval are ignored. Must be called before Start.
func (s *Scheduler) Schedule(job Job, interval time.Duration) {
	if interval <= 0 {
		s.logger.Info("Background job disabled", slog.String("job", job.Name()))
		return
	}
	s.entries = append(s.entries, entry{job: job, interval: interval})
}

// executeJobSafely runs a job only if its previous run has finished
func (s *Scheduler) executeJobSafely(job Job) {
	name := job.Name()

	s.processingMutex.Lock()
	if s.processing[name] {
		s.logger.Debug("Skipping job execution - previous run still in progress", slog.String("job", name))
		s.processingMutex.Unlock()
		return
	}
	s.processing[name] = true
	s.processingMutex.Unlock()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Panic recovered in background job",
				slog.String("job", name),
				slog.Any("panic", r))
		}

		s.processingMutex.Lock()
		s.processing[name] = false
		s.processingMutex.Unlock()
	}()

	if err := job.Run(s.ctx); err != nil {
		s.logger.Error("Error executing job", slog.String("job", name), slog.Any("error", err))
	}
}

// Start begins all background jobs
func (s *Scheduler) Start() error {
	if s.isRunning {
		s.logger.Info("Background jobs already running.")
		return nil
	}

	s.logger.Info("Starting background jobs...", slog.Int("jobs", len(s.entries)))
	s.isRunning = true

	for _, e := range s.entries {
		s.wg.Add(1)
		go s.loop(e)
	}
	return nil
}

func (s *Scheduler) loop(e entry) {
	defer s.wg.Done()

	s.logger.Info("Starting job", slog.String("job", e.job.Name()), slog.Duration("interval", e.interval))
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	s.executeJobSafely(e.job)
	for {
		select {
		case <-ticker.C:
			s.executeJobSafely(e.job)
		case <-s.ctx.Done():
			s.logger.Info("Job stopped", slog.String("job", e.job.Name()))
			return
		}
	}
}

// Stop halts all background jobs and waits for running ones to return.
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping background jobs...")
	s.cancel()
	s.wg.Wait()
	s.isRunning = false
	s.logger.Info("Background jobs stopped")
}

// IsRunning returns whether jobs are currently running
func (s *Scheduler) IsRunning() bool {
	return s.isRunning
}
