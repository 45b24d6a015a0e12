package systems

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/spaghettifunk/anima-content/engine/core"
)

/** @brief Describes a type of job */
type JobType int

const (
	/**
	 * @brief A general job that does not have any specific thread requirements.
	 * This means it matters little which job thread this job runs on.
	 */
	JOB_TYPE_GENERAL JobType = 0x02
	/**
	 * @brief A resource loading job, such as opening a bundle archive or decoding
	 * a payload out of one.
	 */
	JOB_TYPE_RESOURCE_LOAD JobType = 0x04
	/** @brief A scene activation or deactivation job. */
	JOB_TYPE_SCENE JobType = 0x08
)

/**
 * @brief Determines which job queue a job uses. The high-priority queue is always
 * drained first before processing the normal-priority queue, which must also
 * be drained before processing the low-priority queue.
 */
type JobPriority int

const (
	/** @brief The lowest-priority job, used for things that can wait to be done if need be. */
	JOB_PRIORITY_LOW JobPriority = iota
	/** @brief A normal-priority job. Should be used for medium-priority tasks such as loading assets. */
	JOB_PRIORITY_NORMAL
	/** @brief The highest-priority job. Should be used sparingly, and only for time-critical operations.*/
	JOB_PRIORITY_HIGH
)

/** @brief The work function of a job. The returned value is handed to OnComplete and kept on the Task. */
type JobStart func(ctx context.Context, task *Task) (interface{}, error)

/** @brief Definition for completion of a job. */
type JobOnComplete func(result interface{})

/** @brief Definition for failure of a job. */
type JobOnFailure func(err error)

/**
 * @brief Describes a job to be run.
 */
type JobTask struct {
	/** @brief A name used in log lines. */
	Name string
	/** @brief The type of job. */
	JobType JobType
	/** @brief The priority of this job. Higher priority jobs run sooner. */
	Priority JobPriority
	/** @brief Invoked on a worker when the job starts. Required. */
	OnStart JobStart
	/** @brief Invoked on the worker when the job successfully completes. Optional. */
	OnComplete JobOnComplete
	/** @brief Invoked on the worker when the job fails. Optional. */
	OnFailure JobOnFailure
}

var ErrNoWorkers = fmt.Errorf("attempting to create worker pool with less than 1 worker")
var ErrNegativeChannelSize = fmt.Errorf("attempting to create worker pool with a negative channel size")
var ErrJobSystemClosed = errors.New("job system is shut down")

// Task is the pollable handle of a submitted job. All methods are safe to call
// from any goroutine.
type Task struct {
	name     string
	progress atomic.Uint64
	done     chan struct{}
	once     sync.Once
	result   interface{}
	err      error
	forward  func(p float64)
}

func newTask(name string) *Task {
	return &Task{
		name: name,
		done: make(chan struct{}),
	}
}

// NewCompletedTask returns a task that is already done with the given result.
func NewCompletedTask(name string, result interface{}, err error) *Task {
	t := newTask(name)
	t.finish(result, err)
	return t
}

func (t *Task) Name() string {
	return t.name
}

// SetProgress is called by the job body to report partial progress in [0,1].
func (t *Task) SetProgress(p float64) {
	if p < 0 {
		p = 0
	} else if p > 1 {
		p = 1
	}
	t.progress.Store(math.Float64bits(p))
	if t.forward != nil {
		t.forward(p)
	}
}

func (t *Task) Progress() float64 {
	return math.Float64frombits(t.progress.Load())
}

func (t *Task) IsDone() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Done returns a channel closed when the task finishes.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Err returns the job error once the task is done and nil before that.
func (t *Task) Err() error {
	if !t.IsDone() {
		return nil
	}
	return t.err
}

// Result returns the value produced by the job once the task is done.
func (t *Task) Result() interface{} {
	if !t.IsDone() {
		return nil
	}
	return t.result
}

// Wait blocks until the task is done or ctx ends.
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Task) finish(result interface{}, err error) {
	t.once.Do(func() {
		t.result = result
		t.err = err
		if err == nil {
			t.SetProgress(1)
		}
		close(t.done)
	})
}

type queuedJob struct {
	info JobTask
	task *Task
}

type JobSystem struct {
	numWorkers int
	queues     [3]chan queuedJob
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	closed     atomic.Bool
}

func NewJobSystem(numWorkers int, channelSize int) (*JobSystem, error) {
	if numWorkers <= 0 {
		return nil, ErrNoWorkers
	}
	if channelSize < 0 {
		return nil, ErrNegativeChannelSize
	}

	ctx, cancel := context.WithCancel(context.Background())
	js := &JobSystem{
		numWorkers: numWorkers,
		ctx:        ctx,
		cancel:     cancel,
	}
	for i := range js.queues {
		js.queues[i] = make(chan queuedJob, channelSize)
	}

	js.start()

	core.LogDebug("job system started with %d workers", numWorkers)

	return js, nil
}

func (js *JobSystem) start() {
	for i := 0; i < js.numWorkers; i++ {
		js.wg.Add(1)
		go func() {
			defer js.wg.Done()
			for {
				if js.ctx.Err() != nil {
					return
				}
				job, ok := js.next()
				if !ok {
					return
				}
				js.run(job)
			}
		}()
	}
}

// next picks the highest priority job available, blocking until one arrives
// or the system shuts down.
func (js *JobSystem) next() (queuedJob, bool) {
	high, normal, low := js.queues[JOB_PRIORITY_HIGH], js.queues[JOB_PRIORITY_NORMAL], js.queues[JOB_PRIORITY_LOW]
	select {
	case j := <-high:
		return j, true
	default:
	}
	select {
	case j := <-high:
		return j, true
	case j := <-normal:
		return j, true
	default:
	}
	select {
	case j := <-high:
		return j, true
	case j := <-normal:
		return j, true
	case j := <-low:
		return j, true
	case <-js.ctx.Done():
		return queuedJob{}, false
	}
}

func (js *JobSystem) run(job queuedJob) {
	var (
		result interface{}
		err    error
	)
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("job '%s' panicked: %v", job.info.Name, r)
			}
		}()
		result, err = job.info.OnStart(js.ctx, job.task)
	}()

	if err != nil {
		core.LogError("%s", err.Error())
		if job.info.OnFailure != nil {
			job.info.OnFailure(err)
		}
	} else if job.info.OnComplete != nil {
		job.info.OnComplete(result)
	}
	job.task.finish(result, err)
}

/**
 * @brief Shuts the job system down. Queued jobs that did not start are
 * finished with ErrJobSystemClosed.
 */
func (js *JobSystem) Shutdown() error {
	if !js.closed.CompareAndSwap(false, true) {
		return nil
	}
	js.cancel()
	js.wg.Wait()
	for _, q := range js.queues {
		for {
			select {
			case j := <-q:
				j.task.finish(nil, ErrJobSystemClosed)
				continue
			default:
			}
			break
		}
	}
	return nil
}

/**
 * @brief Submits the provided job to be queued for execution. Never blocks
 * the caller: when the queue is full the job is handed over from a separate
 * goroutine.
 * @param jt The description of the job to be executed.
 */
func (js *JobSystem) Submit(jt JobTask) *Task {
	task := newTask(jt.Name)
	if jt.OnStart == nil {
		task.finish(nil, fmt.Errorf("job '%s' has no OnStart", jt.Name))
		return task
	}
	if js.closed.Load() {
		task.finish(nil, ErrJobSystemClosed)
		return task
	}

	prio := jt.Priority
	if prio < JOB_PRIORITY_LOW || prio > JOB_PRIORITY_HIGH {
		prio = JOB_PRIORITY_NORMAL
	}
	q := js.queues[prio]
	job := queuedJob{info: jt, task: task}

	select {
	case q <- job:
	default:
		go func() {
			select {
			case q <- job:
			case <-js.ctx.Done():
				task.finish(nil, ErrJobSystemClosed)
			}
		}()
	}
	return task
}
