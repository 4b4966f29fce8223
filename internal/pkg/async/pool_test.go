package async

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecuteCollectsAllResults(t *testing.T) {
	pool := NewPool(3)

	var tasks []Task
	for i := 0; i < 10; i++ {
		i := i
		tasks = append(tasks, Task{
			Name:    fmt.Sprintf("task-%d", i),
			Execute: func(ctx context.Context) (interface{}, error) { return i * i, nil },
		})
	}

	results := pool.Execute(context.Background(), tasks)
	require.Len(t, results, 10)
	assert.Equal(t, 49, results["task-7"].Data)
	assert.NoError(t, results["task-7"].Err)
}

func TestExecuteBoundsConcurrency(t *testing.T) {
	pool := NewPool(2)
	var running, peak int32

	var tasks []Task
	for i := 0; i < 8; i++ {
		tasks = append(tasks, Task{
			Name: fmt.Sprint(i),
			Execute: func(ctx context.Context) (interface{}, error) {
				n := atomic.AddInt32(&running, 1)
				for {
					p := atomic.LoadInt32(&peak)
					if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				atomic.AddInt32(&running, -1)
				return nil, nil
			},
		})
	}

	pool.Execute(context.Background(), tasks)
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

func TestExecuteIsReusable(t *testing.T) {
	pool := NewPool(2)
	task := []Task{{Name: "a", Execute: func(ctx context.Context) (interface{}, error) { return "ok", nil }}}

	for i := 0; i < 3; i++ {
		results := pool.Execute(context.Background(), task)
		assert.Equal(t, "ok", results["a"].Data)
	}
}

func TestExecuteReportsErrorsAndPanics(t *testing.T) {
	pool := NewPool(2)
	boom := errors.New("boom")

	results := pool.Execute(context.Background(), []Task{
		{Name: "fails", Execute: func(ctx context.Context) (interface{}, error) { return nil, boom }},
		{Name: "panics", Execute: func(ctx context.Context) (interface{}, error) { panic("bad query") }},
	})

	assert.ErrorIs(t, results["fails"].Err, boom)
	require.Error(t, results["panics"].Err)
	assert.Contains(t, results["panics"].Err.Error(), "bad query")
}

func TestExecuteCancelledContext(t *testing.T) {
	pool := NewPool(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var ran int32
	results := pool.Execute(ctx, []Task{{Name: "a", Execute: func(ctx context.Context) (interface{}, error) {
		atomic.AddInt32(&ran, 1)
		return nil, nil
	}}})

	assert.ErrorIs(t, results["a"].Err, context.Canceled)
	assert.Zero(t, atomic.LoadInt32(&ran))
}
