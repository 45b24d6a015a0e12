package systems

import (
	"context"
	"fmt"
	"sync"

	"github.com/spaghettifunk/anima-content/engine/core"
)

// SceneHandler holds the optional hooks run when a build scene is brought up
// or torn down. Both run on a job worker.
type SceneHandler struct {
	// OnActivate loads the scene. It may report progress through task.
	OnActivate func(ctx context.Context, task *Task) error
	// OnDeactivate unloads the scene.
	OnDeactivate func(ctx context.Context, task *Task) error
}

/** @brief The configuration for the scene system */
type SceneSystemConfig struct {
	/** @brief The maximum number of scenes that can be registered. */
	MaxSceneCount uint32
	/**
	 * @brief When set, async loads stop at 0.9 progress until Activate is called
	 * on the returned operation.
	 */
	DeferActivation bool
}

// SceneOperation is the handle of an async scene load or unload.
type SceneOperation struct {
	*Task
	allowActivation bool
	activate        chan struct{}
	activateOnce    sync.Once
}

// AllowSceneActivation reports whether the operation finishes on its own.
func (op *SceneOperation) AllowSceneActivation() bool {
	return op.allowActivation
}

// Activate lets a deferred load run to completion.
func (op *SceneOperation) Activate() {
	op.activateOnce.Do(func() { close(op.activate) })
}

// SceneSystem is the default scene director. Scenes are registered by name and
// activated through the job system; a single load marks every other scene
// as unloaded.
type SceneSystem struct {
	config    SceneSystemConfig
	jobSystem *JobSystem

	mu       sync.Mutex
	handlers map[string]SceneHandler
	loaded   map[string]bool
}

func NewSceneSystem(config SceneSystemConfig, js *JobSystem) (*SceneSystem, error) {
	if config.MaxSceneCount == 0 {
		err := fmt.Errorf("failed to run NewSceneSystem because config.MaxSceneCount==0")
		core.LogError("%s", err.Error())
		return nil, err
	}
	if js == nil {
		err := fmt.Errorf("NewSceneSystem - job system is required: %w", core.ErrNotInitialized)
		core.LogError("%s", err.Error())
		return nil, err
	}
	return &SceneSystem{
		config:    config,
		jobSystem: js,
		handlers:  make(map[string]SceneHandler),
		loaded:    make(map[string]bool),
	}, nil
}

func (ss *SceneSystem) Shutdown() error {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	ss.handlers = make(map[string]SceneHandler)
	ss.loaded = make(map[string]bool)
	return nil
}

// RegisterScene makes name a build scene.
func (ss *SceneSystem) RegisterScene(name string, handler SceneHandler) error {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	if _, ok := ss.handlers[name]; ok {
		return fmt.Errorf("scene '%s': %w", name, core.ErrAlreadyRegistered)
	}
	if uint32(len(ss.handlers)) >= ss.config.MaxSceneCount {
		return fmt.Errorf("RegisterScene - maximum of %d scenes reached", ss.config.MaxSceneCount)
	}
	ss.handlers[name] = handler
	return nil
}

func (ss *SceneSystem) HasScene(name string) bool {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	_, ok := ss.handlers[name]
	return ok
}

func (ss *SceneSystem) IsSceneLoaded(name string) bool {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	return ss.loaded[name]
}

// LoadScene activates the scene on the calling goroutine.
func (ss *SceneSystem) LoadScene(name string, additive bool) error {
	task := newTask("scene:" + name)
	err := ss.activate(context.Background(), name, additive, task)
	task.finish(nil, err)
	return err
}

func (ss *SceneSystem) LoadSceneAsync(name string, additive bool) *SceneOperation {
	op := &SceneOperation{
		allowActivation: !ss.config.DeferActivation,
		activate:        make(chan struct{}),
	}
	if op.allowActivation {
		op.Activate()
	}
	op.Task = ss.jobSystem.Submit(JobTask{
		Name:     "load scene " + name,
		JobType:  JOB_TYPE_SCENE,
		Priority: JOB_PRIORITY_HIGH,
		OnStart: func(ctx context.Context, task *Task) (interface{}, error) {
			if !op.allowActivation {
				// Hold at the activation threshold.
				scaled := scaledTask(task, 0.9)
				if err := ss.runActivate(ctx, name, scaled); err != nil {
					return nil, err
				}
				task.SetProgress(0.9)
				select {
				case <-op.activate:
				case <-ctx.Done():
					return nil, ctx.Err()
				}
				ss.markLoaded(name, additive)
				return nil, nil
			}
			return nil, ss.activate(ctx, name, additive, task)
		},
	})
	return op
}

func (ss *SceneSystem) UnloadSceneAsync(name string) *SceneOperation {
	op := &SceneOperation{allowActivation: true, activate: make(chan struct{})}
	op.Activate()
	op.Task = ss.jobSystem.Submit(JobTask{
		Name:     "unload scene " + name,
		JobType:  JOB_TYPE_SCENE,
		Priority: JOB_PRIORITY_HIGH,
		OnStart: func(ctx context.Context, task *Task) (interface{}, error) {
			return nil, ss.deactivate(ctx, name, task)
		},
	})
	return op
}

func (ss *SceneSystem) activate(ctx context.Context, name string, additive bool, task *Task) error {
	if err := ss.runActivate(ctx, name, task); err != nil {
		return err
	}
	ss.markLoaded(name, additive)
	return nil
}

func (ss *SceneSystem) runActivate(ctx context.Context, name string, task *Task) error {
	ss.mu.Lock()
	h := ss.handlers[name]
	ss.mu.Unlock()
	// Scenes shipped in bundles have no hooks registered.
	if h.OnActivate != nil {
		return h.OnActivate(ctx, task)
	}
	return nil
}

func (ss *SceneSystem) markLoaded(name string, additive bool) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	if !additive {
		for other := range ss.loaded {
			if other != name {
				delete(ss.loaded, other)
			}
		}
	}
	ss.loaded[name] = true
	core.LogDebug("scene '%s' activated (additive=%t)", name, additive)
}

func (ss *SceneSystem) deactivate(ctx context.Context, name string, task *Task) error {
	ss.mu.Lock()
	h := ss.handlers[name]
	loaded := ss.loaded[name]
	ss.mu.Unlock()
	if !loaded {
		return nil
	}
	if h.OnDeactivate != nil {
		if err := h.OnDeactivate(ctx, task); err != nil {
			return err
		}
	}
	ss.mu.Lock()
	delete(ss.loaded, name)
	ss.mu.Unlock()
	return nil
}

// scaledTask returns a task whose progress is mirrored into target scaled
// into [0, limit].
func scaledTask(target *Task, limit float64) *Task {
	t := newTask(target.name)
	t.forward = func(p float64) { target.SetProgress(p * limit) }
	return t
}
