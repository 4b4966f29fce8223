// Package archive ships finalized visit events to a secondary columnar store.
// The SQLite event store stays authoritative; archiving is best-effort and
// never blocks ingestion.
package archive

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"guidestats/internal/metrics"
	"guidestats/internal/visits"
)

// Sink receives batches of visit events.
type Sink interface {
	Write(ctx context.Context, events []visits.VisitEvent) error
	Close() error
}

// Options tunes the batching.
type Options struct {
	BatchSize     int
	BufferSize    int
	FlushInterval time.Duration
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = 500
	}
	if o.BufferSize <= 0 {
		o.BufferSize = 10000
	}
	if o.FlushInterval <= 0 {
		o.FlushInterval = 10 * time.Second
	}
	return o
}

// Archiver buffers events in a bounded queue and writes them to the sink in
// batches, flushing when a batch fills up or the interval elapses.
type Archiver struct {
	sink    Sink
	logger  *slog.Logger
	metrics *metrics.Metrics
	opts    Options

	queue chan visits.VisitEvent
	flush chan chan struct{}
	done  chan struct{}

	startOnce sync.Once
	stopOnce  sync.Once
	cancel    context.CancelFunc
}

func New(sink Sink, logger *slog.Logger, m *metrics.Metrics, opts Options) *Archiver {
	opts = opts.withDefaults()
	return &Archiver{
		sink:    sink,
		logger:  logger,
		metrics: m,
		opts:    opts,
		queue:   make(chan visits.VisitEvent, opts.BufferSize),
		flush:   make(chan chan struct{}),
		done:    make(chan struct{}),
	}
}

// Enqueue hands an event to the archiver. It never blocks: when the queue is
// full the event is dropped and counted. A nil archiver accepts nothing.
func (a *Archiver) Enqueue(e visits.VisitEvent) bool {
	if a == nil {
		return false
	}
	select {
	case a.queue <- e:
		a.metrics.ArchiveQueueSize.Set(float64(len(a.queue)))
		return true
	default:
		a.metrics.ArchiveDropped.Inc()
		return false
	}
}

// Start launches the background loop.
func (a *Archiver) Start(ctx context.Context) {
	a.startOnce.Do(func() {
		ctx, a.cancel = context.WithCancel(ctx)
		go a.run(ctx)
		a.logger.Info("Event archiver started",
			slog.Int("batch_size", a.opts.BatchSize),
			slog.Duration("flush_interval", a.opts.FlushInterval))
	})
}

// Flush writes whatever is buffered and waits until it has been sent.
func (a *Archiver) Flush(ctx context.Context) error {
	ack := make(chan struct{})
	select {
	case a.flush <- ack:
	case <-a.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-ack:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop drains the queue, sends the final batch and closes the sink.
func (a *Archiver) Stop(ctx context.Context) error {
	var err error
	a.stopOnce.Do(func() {
		if a.cancel == nil {
			err = a.sink.Close()
			return
		}
		a.cancel()
		select {
		case <-a.done:
		case <-ctx.Done():
			err = ctx.Err()
			return
		}
		err = a.sink.Close()
		a.logger.Info("Event archiver stopped")
	})
	return err
}

func (a *Archiver) run(ctx context.Context) {
	defer close(a.done)

	ticker := time.NewTicker(a.opts.FlushInterval)
	defer ticker.Stop()

	batch := make([]visits.VisitEvent, 0, a.opts.BatchSize)
	for {
		select {
		case e := <-a.queue:
			batch = append(batch, e)
			if len(batch) >= a.opts.BatchSize {
				batch = a.write(batch)
			}
		case <-ticker.C:
			batch = a.write(batch)
		case ack := <-a.flush:
			batch = a.write(a.drain(batch))
			close(ack)
		case <-ctx.Done():
			// The parent context is gone, so the last write gets its own deadline.
			final := a.drain(batch)
			for len(final) > 0 {
				n := min(len(final), a.opts.BatchSize)
				a.write(final[:n])
				final = final[n:]
			}
			return
		}
	}
}

func (a *Archiver) drain(batch []visits.VisitEvent) []visits.VisitEvent {
	for {
		select {
		case e := <-a.queue:
			batch = append(batch, e)
		default:
			return batch
		}
	}
}

// write sends batch and returns an empty slice ready for reuse. A failed
// batch is logged, counted and discarded.
func (a *Archiver) write(batch []visits.VisitEvent) []visits.VisitEvent {
	a.metrics.ArchiveQueueSize.Set(float64(len(a.queue)))
	if len(batch) == 0 {
		return batch
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := a.sink.Write(ctx, batch); err != nil {
		a.metrics.ArchiveFailures.Inc()
		a.logger.Error("Failed to archive visit events",
			slog.Int("count", len(batch)),
			slog.Any("error", err))
	} else {
		a.metrics.ArchiveFlushed.Add(float64(len(batch)))
		a.logger.Debug("Archived visit events", slog.Int("count", len(batch)))
	}
	return batch[:0]
}

// Worker runs an Archiver under the Start/Stop lifecycle of
// cartridge.BackgroundWorker. Stop drains the queue for at most drainTimeout.
type Worker struct {
	archiver     *Archiver
	drainTimeout time.Duration
}

// NewWorker wraps a. A nil archiver yields a worker that does nothing.
func NewWorker(a *Archiver, drainTimeout time.Duration) *Worker {
	if drainTimeout <= 0 {
		drainTimeout = 10 * time.Second
	}
	return &Worker{archiver: a, drainTimeout: drainTimeout}
}

func (w *Worker) Start() error {
	if w.archiver != nil {
		w.archiver.Start(context.Background())
	}
	return nil
}

func (w *Worker) Stop() {
	if w.archiver == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), w.drainTimeout)
	defer cancel()
	if err := w.archiver.Stop(ctx); err != nil {
		w.archiver.logger.Warn("Event archiver did not drain before shutdown", slog.Any("error", err))
	}
}
