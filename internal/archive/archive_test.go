package archive

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guidestats/internal/metrics"
	"guidestats/internal/testsupport"
	"guidestats/internal/visits"
)

type fakeSink struct {
	mu      sync.Mutex
	batches [][]visits.VisitEvent
	fail    bool
	closed  bool
	block   chan struct{}
}

func (s *fakeSink) Write(_ context.Context, events []visits.VisitEvent) error {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("clickhouse unavailable")
	}
	s.batches = append(s.batches, append([]visits.VisitEvent(nil), events...))
	return nil
}

func (s *fakeSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSink) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, b := range s.batches {
		n += len(b)
	}
	return n
}

func (s *fakeSink) batchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.batches)
}

func event(i int) visits.VisitEvent {
	return visits.VisitEvent{
		SessionID: fmt.Sprintf("session-%d", i),
		Page:      "/character/hu-tao",
		PageType:  "character",
		Timestamp: time.Date(2024, 3, 10, 14, 0, i, 0, time.UTC),
	}
}

func TestArchiverFlushesFullBatches(t *testing.T) {
	sink := &fakeSink{}
	m := metrics.New()
	a := New(sink, testsupport.GetLogger(), m, Options{BatchSize: 3, FlushInterval: time.Hour})
	a.Start(context.Background())

	for i := 0; i < 7; i++ {
		require.True(t, a.Enqueue(event(i)))
	}

	require.Eventually(t, func() bool { return sink.batchCount() == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 6, sink.total())

	require.NoError(t, a.Stop(context.Background()))
	assert.Equal(t, 7, sink.total(), "stop drains the remainder")
	assert.True(t, sink.closed)
	assert.Equal(t, 7.0, testutil.ToFloat64(m.ArchiveFlushed))
}

func TestArchiverFlushesOnInterval(t *testing.T) {
	sink := &fakeSink{}
	a := New(sink, testsupport.GetLogger(), metrics.New(), Options{BatchSize: 100, FlushInterval: 20 * time.Millisecond})
	a.Start(context.Background())
	defer a.Stop(context.Background())

	a.Enqueue(event(1))
	require.Eventually(t, func() bool { return sink.total() == 1 }, time.Second, 5*time.Millisecond)
}

func TestArchiverExplicitFlush(t *testing.T) {
	sink := &fakeSink{}
	a := New(sink, testsupport.GetLogger(), metrics.New(), Options{BatchSize: 100, FlushInterval: time.Hour})
	a.Start(context.Background())
	defer a.Stop(context.Background())

	for i := 0; i < 5; i++ {
		a.Enqueue(event(i))
	}
	require.NoError(t, a.Flush(context.Background()))
	assert.Equal(t, 5, sink.total())
	assert.Equal(t, 1, sink.batchCount())
}

func TestArchiverDropsWhenFull(t *testing.T) {
	sink := &fakeSink{}
	m := metrics.New()
	// Not started, so nothing consumes the queue.
	a := New(sink, testsupport.GetLogger(), m, Options{BufferSize: 2})

	assert.True(t, a.Enqueue(event(1)))
	assert.True(t, a.Enqueue(event(2)))
	assert.False(t, a.Enqueue(event(3)))
	assert.False(t, a.Enqueue(event(4)))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ArchiveDropped))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ArchiveQueueSize))
}

func TestArchiverCountsFailures(t *testing.T) {
	sink := &fakeSink{fail: true}
	m := metrics.New()
	a := New(sink, testsupport.GetLogger(), m, Options{BatchSize: 2, FlushInterval: time.Hour})
	a.Start(context.Background())

	a.Enqueue(event(1))
	a.Enqueue(event(2))
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(m.ArchiveFailures) == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, a.Stop(context.Background()))
	assert.Zero(t, testutil.ToFloat64(m.ArchiveFlushed))
}

func TestArchiverStopHonoursDeadline(t *testing.T) {
	sink := &fakeSink{block: make(chan struct{})}
	a := New(sink, testsupport.GetLogger(), metrics.New(), Options{BatchSize: 1, FlushInterval: time.Hour})
	a.Start(context.Background())
	a.Enqueue(event(1))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, a.Stop(ctx), context.DeadlineExceeded)

	close(sink.block)
}

func TestNilArchiverEnqueue(t *testing.T) {
	var a *Archiver
	assert.False(t, a.Enqueue(event(1)))
}

func TestWorkerLifecycle(t *testing.T) {
	t.Run("stop ships buffered events and closes the sink", func(t *testing.T) {
		sink := &fakeSink{}
		a := New(sink, testsupport.GetLogger(), metrics.New(), Options{BatchSize: 100, FlushInterval: time.Hour})
		w := NewWorker(a, time.Second)

		require.NoError(t, w.Start())
		a.Enqueue(visits.VisitEvent{SessionID: "s1"})
		a.Enqueue(visits.VisitEvent{SessionID: "s2"})
		w.Stop()

		assert.Equal(t, 2, sink.total())
		assert.True(t, sink.closed)
	})

	t.Run("nil archiver is a no-op", func(t *testing.T) {
		w := NewWorker(nil, 0)
		require.NoError(t, w.Start())
		w.Stop()
	})
}
