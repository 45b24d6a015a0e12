package systems

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/anima-content/engine/core"
)

func TestMain(m *testing.M) {
	core.SetLogOutput(io.Discard)
	os.Exit(m.Run())
}

func newJobSystem(t *testing.T, workers int) *JobSystem {
	t.Helper()
	js, err := NewJobSystem(workers, 16)
	require.NoError(t, err)
	t.Cleanup(func() { js.Shutdown() })
	return js
}

func TestNewJobSystemValidates(t *testing.T) {
	_, err := NewJobSystem(0, 1)
	assert.ErrorIs(t, err, ErrNoWorkers)
	_, err = NewJobSystem(1, -1)
	assert.ErrorIs(t, err, ErrNegativeChannelSize)
}

func TestSubmitRunsJob(t *testing.T) {
	js := newJobSystem(t, 2)

	var completed interface{}
	var mu sync.Mutex
	task := js.Submit(JobTask{
		Name: "answer",
		OnStart: func(ctx context.Context, task *Task) (interface{}, error) {
			task.SetProgress(0.5)
			return 42, nil
		},
		OnComplete: func(result interface{}) {
			mu.Lock()
			completed = result
			mu.Unlock()
		},
	})

	require.NoError(t, task.Wait(context.Background()))
	assert.True(t, task.IsDone())
	assert.Equal(t, 42, task.Result())
	assert.Equal(t, 1.0, task.Progress())
	assert.Equal(t, "answer", task.Name())
	mu.Lock()
	assert.Equal(t, 42, completed)
	mu.Unlock()
}

func TestSubmitReportsFailureAndPanics(t *testing.T) {
	js := newJobSystem(t, 1)
	boom := errors.New("boom")

	failures := make(chan error, 1)
	task := js.Submit(JobTask{
		OnStart: func(ctx context.Context, task *Task) (interface{}, error) {
			return nil, boom
		},
		OnFailure: func(err error) { failures <- err },
	})
	assert.ErrorIs(t, task.Wait(context.Background()), boom)
	assert.ErrorIs(t, <-failures, boom)
	assert.Less(t, task.Progress(), 1.0)

	task = js.Submit(JobTask{
		Name: "panics",
		OnStart: func(ctx context.Context, task *Task) (interface{}, error) {
			panic("bad")
		},
	})
	err := task.Wait(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panicked")

	task = js.Submit(JobTask{Name: "empty"})
	assert.True(t, task.IsDone())
	assert.Error(t, task.Err())
}

func TestTaskBeforeDone(t *testing.T) {
	js := newJobSystem(t, 1)
	release := make(chan struct{})
	task := js.Submit(JobTask{
		OnStart: func(ctx context.Context, task *Task) (interface{}, error) {
			<-release
			return "late", nil
		},
	})
	assert.False(t, task.IsDone())
	assert.Nil(t, task.Err())
	assert.Nil(t, task.Result())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, task.Wait(ctx), context.DeadlineExceeded)

	close(release)
	<-task.Done()
	assert.Equal(t, "late", task.Result())
}

func TestSetProgressClamps(t *testing.T) {
	task := newTask("t")
	task.SetProgress(2)
	assert.Equal(t, 1.0, task.Progress())
	task.SetProgress(-1)
	assert.Equal(t, 0.0, task.Progress())

	scaled := scaledTask(task, 0.9)
	scaled.SetProgress(0.5)
	assert.InDelta(t, 0.45, task.Progress(), 1e-9)
}

func TestHighPriorityRunsFirst(t *testing.T) {
	js := newJobSystem(t, 1)

	gate := make(chan struct{})
	running := make(chan struct{})
	js.Submit(JobTask{
		OnStart: func(ctx context.Context, task *Task) (interface{}, error) {
			close(running)
			<-gate
			return nil, nil
		},
	})
	<-running

	var mu sync.Mutex
	var order []string
	record := func(name string) JobStart {
		return func(ctx context.Context, task *Task) (interface{}, error) {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil, nil
		}
	}
	low := js.Submit(JobTask{Priority: JOB_PRIORITY_LOW, OnStart: record("low")})
	normal := js.Submit(JobTask{Priority: JOB_PRIORITY_NORMAL, OnStart: record("normal")})
	high := js.Submit(JobTask{Priority: JOB_PRIORITY_HIGH, OnStart: record("high")})
	close(gate)

	for _, task := range []*Task{low, normal, high} {
		require.NoError(t, task.Wait(context.Background()))
	}
	assert.Equal(t, []string{"high", "normal", "low"}, order)
}

func TestShutdownFinishesQueuedJobs(t *testing.T) {
	js, err := NewJobSystem(1, 4)
	require.NoError(t, err)

	started := make(chan struct{})
	js.Submit(JobTask{
		OnStart: func(ctx context.Context, task *Task) (interface{}, error) {
			close(started)
			<-ctx.Done()
			return nil, ctx.Err()
		},
	})
	<-started
	queued := js.Submit(JobTask{
		OnStart: func(ctx context.Context, task *Task) (interface{}, error) {
			return nil, nil
		},
	})

	require.NoError(t, js.Shutdown())
	assert.ErrorIs(t, queued.Err(), ErrJobSystemClosed)
	assert.ErrorIs(t, js.Submit(JobTask{OnStart: func(context.Context, *Task) (interface{}, error) { return nil, nil }}).Err(), ErrJobSystemClosed)
	require.NoError(t, js.Shutdown())
}

func TestNewCompletedTask(t *testing.T) {
	task := NewCompletedTask("done", "value", nil)
	assert.True(t, task.IsDone())
	assert.Equal(t, "value", task.Result())
	assert.Equal(t, 1.0, task.Progress())
}
