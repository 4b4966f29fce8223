package jobs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guidestats/internal/testsupport"
)

type countingJob struct {
	name  string
	runs  atomic.Int32
	err   error
	panic bool
	block chan struct{}
}

func (j *countingJob) Name() string { return j.name }

func (j *countingJob) Run(ctx context.Context) error {
	j.runs.Add(1)
	if j.block != nil {
		select {
		case <-j.block:
		case <-ctx.Done():
		}
	}
	if j.panic {
		panic("boom")
	}
	return j.err
}

func TestSchedulerRunsJobsPeriodically(t *testing.T) {
	s := NewScheduler(testsupport.GetLogger())
	job := &countingJob{name: "tick"}
	s.Schedule(job, 10*time.Millisecond)

	require.NoError(t, s.Start())
	assert.True(t, s.IsRunning())

	require.Eventually(t, func() bool { return job.runs.Load() >= 3 }, time.Second, 5*time.Millisecond)

	s.Stop()
	assert.False(t, s.IsRunning())
	stopped := job.runs.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, stopped, job.runs.Load())
}

func TestSchedulerSurvivesErrorsAndPanics(t *testing.T) {
	s := NewScheduler(testsupport.GetLogger())
	failing := &countingJob{name: "failing", err: errors.New("disk full")}
	panicking := &countingJob{name: "panicking", panic: true}
	s.Schedule(failing, 10*time.Millisecond)
	s.Schedule(panicking, 10*time.Millisecond)

	require.NoError(t, s.Start())
	require.Eventually(t, func() bool {
		return failing.runs.Load() >= 2 && panicking.runs.Load() >= 2
	}, time.Second, 5*time.Millisecond)
	s.Stop()
}

func TestSchedulerSkipsOverlappingRuns(t *testing.T) {
	s := NewScheduler(testsupport.GetLogger())
	job := &countingJob{name: "slow", block: make(chan struct{})}
	s.Schedule(job, 5*time.Millisecond)

	require.NoError(t, s.Start())
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, int32(1), job.runs.Load())

	close(job.block)
	s.Stop()
}

func TestSchedulerIgnoresDisabledJobs(t *testing.T) {
	s := NewScheduler(testsupport.GetLogger())
	job := &countingJob{name: "off"}
	s.Schedule(job, 0)

	require.NoError(t, s.Start())
	time.Sleep(20 * time.Millisecond)
	s.Stop()
	assert.Zero(t, job.runs.Load())
}

type fakeCheckpointer struct {
	modes []string
	err   error
}

func (f *fakeCheckpointer) CheckpointWAL(mode string) error {
	f.modes = append(f.modes, mode)
	return f.err
}

func TestCheckpointJob(t *testing.T) {
	db := &fakeCheckpointer{}
	job := NewCheckpointJob(db, testsupport.GetLogger())

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, []string{"PASSIVE"}, db.modes)

	db.err = errors.New("database is locked")
	assert.ErrorContains(t, job.Run(context.Background()), "database is locked")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, job.Run(ctx))
	assert.Len(t, db.modes, 2, "cancelled runs do not checkpoint")
}

type fakeReloader struct{ reloads int }

func (f *fakeReloader) Reload() { f.reloads++ }

func TestGeoLiteReloadJob(t *testing.T) {
	path := filepath.Join(t.TempDir(), "GeoLite2-City.mmdb")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0o644))
	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(path, old, old))

	locator := &fakeReloader{}
	job := NewGeoLiteReloadJob(path, locator, testsupport.GetLogger())

	require.NoError(t, job.Run(context.Background()))
	assert.Zero(t, locator.reloads, "unchanged file")

	require.NoError(t, os.WriteFile(path, []byte("v2"), 0o644))
	now := time.Now()
	require.NoError(t, os.Chtimes(path, now, now))

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 1, locator.reloads)

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 1, locator.reloads)
}

func TestGeoLiteReloadJobMissingFile(t *testing.T) {
	locator := &fakeReloader{}
	job := NewGeoLiteReloadJob(filepath.Join(t.TempDir(), "missing.mmdb"), locator, testsupport.GetLogger())
	require.NoError(t, job.Run(context.Background()))
	assert.Zero(t, locator.reloads)

	require.NoError(t, NewGeoLiteReloadJob("", locator, testsupport.GetLogger()).Run(context.Background()))
}
