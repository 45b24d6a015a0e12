package assets

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/spaghettifunk/anima-content/engine/core"
	"github.com/spaghettifunk/anima-content/engine/math"
)

type LoadSceneMode int

const (
	LoadSceneSingle LoadSceneMode = iota
	LoadSceneAdditive
)

// Scene is an engine scene. Scenes are not cached: every load creates one.
// Unloading is asynchronous, so a released scene goes through Unloading
// before it reaches Unloaded.
type Scene struct {
	loadable
	sceneName string
	mode      LoadSceneMode
	bundled   bool

	mustCompleteOnNextFrame bool

	additives []*Scene
	parent    *Scene

	deps     *Dependencies
	loadOp   SceneOperation
	unloadOp SceneOperation

	completed callbackSlot[*Scene]
	onUpdateFn func(progress float64)
	unloaded   func()
}

// LoadSceneAsync starts loading the scene at path. Scenes listed in the
// manifest load their bundles first; any other path must be a build scene.
func (am *AssetManager) LoadSceneAsync(path string, onDone func(*Scene), additive bool) (*Scene, error) {
	s, err := am.newScene(path, additive)
	if err != nil {
		return nil, err
	}
	s.load()
	s.completed.add(onDone)
	return s, nil
}

// LoadScene loads the scene synchronously. Its bundles are driven to
// completion first, bounded by the immediate timeout.
func (am *AssetManager) LoadScene(ctx context.Context, path string, additive bool) (*Scene, error) {
	s, err := am.newScene(path, additive)
	if err != nil {
		return nil, err
	}
	s.mustCompleteOnNextFrame = true
	s.load()
	if s.status == StatusDependentLoading {
		ctx, cancel := am.immediateContext(ctx)
		defer cancel()
		if err := s.deps.loadImmediate(ctx); err != nil {
			s.finish(immediateError(err))
			return s, nil
		}
		s.updateDependencies()
	}
	return s, nil
}

// MainScene is the last scene loaded in single mode.
func (am *AssetManager) MainScene() *Scene {
	return am.mainScene
}

func (am *AssetManager) newScene(p string, additive bool) (*Scene, error) {
	key, err := NormalizePath(p)
	if err != nil {
		core.LogError("%s", err.Error())
		return nil, err
	}
	base := filepath.Base(key)
	s := &Scene{
		sceneName: strings.TrimSuffix(base, filepath.Ext(base)),
		mode:      LoadSceneSingle,
		bundled:   am.versions.Contains(key),
	}
	if additive {
		s.mode = LoadSceneAdditive
	}
	s.init(am, s, kindScene, key)
	return s, nil
}

func (s *Scene) Name() string {
	return s.sceneName
}

func (s *Scene) Mode() LoadSceneMode {
	return s.mode
}

// Additives lists the additive scenes loaded on top of this main scene.
func (s *Scene) Additives() []*Scene {
	return s.additives
}

// LoadOperation is the engine operation of an async load, nil otherwise.
func (s *Scene) LoadOperation() SceneOperation {
	return s.loadOp
}

// SetOnUpdate registers a callback receiving the progress while loading.
func (s *Scene) SetOnUpdate(fn func(progress float64)) {
	s.onUpdateFn = fn
}

// SetUnloaded registers a callback run once when the scene is unloaded.
func (s *Scene) SetUnloaded(fn func()) {
	s.unloaded = fn
}

// Activate releases a load held at the activation threshold.
func (s *Scene) Activate() {
	if a, ok := s.loadOp.(interface{ Activate() }); ok {
		a.Activate()
	}
}

func (s *Scene) onLoad() {
	s.attach()
	if s.bundled {
		s.deps = s.am.loadDependencies(s.path)
		s.status = StatusDependentLoading
		return
	}
	if s.am.scenes == nil || !s.am.scenes.HasScene(s.sceneName) {
		s.finish("scene not found")
		return
	}
	s.startLoad()
}

func (s *Scene) attach() {
	if s.mode == LoadSceneSingle {
		s.am.mainScene = s
		return
	}
	if main := s.am.mainScene; main != nil {
		main.additives = append(main.additives, s)
		s.parent = main
	}
}

func (s *Scene) detach() {
	if s.parent != nil {
		for i, child := range s.parent.additives {
			if child == s {
				s.parent.additives = append(s.parent.additives[:i], s.parent.additives[i+1:]...)
				break
			}
		}
		s.parent = nil
	}
	for _, child := range s.additives {
		child.parent = nil
	}
	s.additives = nil
	if s.am.mainScene == s {
		s.am.mainScene = nil
	}
}

func (s *Scene) startLoad() {
	if s.am.scenes == nil {
		s.finish("scene not found")
		return
	}
	additive := s.mode == LoadSceneAdditive
	if s.mustCompleteOnNextFrame {
		s.finishErr(s.am.scenes.LoadScene(s.sceneName, additive))
		return
	}
	op := s.am.scenes.LoadSceneAsync(s.sceneName, additive)
	if op == nil {
		s.finish("operation == nil")
		return
	}
	s.loadOp = op
	s.am.progressing = append(s.am.progressing, op)
	s.status = StatusLoading
	s.progress = 0.5
}

func (s *Scene) onUpdate() {
	switch s.status {
	case StatusDependentLoading:
		s.updateDependencies()
	case StatusLoading:
		s.updateLoading()
		if s.onUpdateFn != nil {
			s.onUpdateFn(s.progress)
		}
	}
}

func (s *Scene) updateDependencies() {
	s.progress = s.deps.Progress()
	if s.deps.Error() != "" {
		s.finish(s.deps.Error())
		return
	}
	if !s.deps.IsDone() {
		return
	}
	s.startLoad()
}

func (s *Scene) updateLoading() {
	if s.loadOp == nil {
		s.finish("operation == nil")
		return
	}
	s.progress = math.Lerp(0.5, 1, math.Saturate(s.loadOp.Progress()))
	if err := s.loadOp.Err(); err != nil {
		s.finishErr(err)
		return
	}
	if s.loadOp.AllowSceneActivation() {
		if !s.loadOp.IsDone() {
			return
		}
	} else if s.loadOp.Progress() < 0.9 {
		return
	}
	s.finish("")
}

func (s *Scene) onComplete() {
	if s.status == StatusSuccessToLoad && s.am.events != nil {
		s.am.events.Fire(core.EVENT_CODE_SCENE_LOADED, s.am, s)
	}
	s.completed.invoke(s)
	s.onUpdateFn = nil
}

func (s *Scene) onUnused() {
	s.completed.clear()
}

// updateUnload runs on every reclamation tick until the scene is unloaded.
// The first call issues the engine unload; later calls poll it.
func (s *Scene) updateUnload() {
	if s.status == StatusUnloaded {
		return
	}
	if s.unloadOp == nil {
		s.status = StatusUnloading
		s.am.countUnload(&s.loadable)
		s.detach()
		if s.err == "" && s.am.scenes != nil && s.am.scenes.IsSceneLoaded(s.sceneName) {
			if op := s.am.scenes.UnloadSceneAsync(s.sceneName); op != nil {
				s.unloadOp = op
				s.am.progressing = append(s.am.progressing, op)
				return
			}
		}
		s.finishUnload()
		return
	}
	if s.unloadOp.IsDone() {
		if err := s.unloadOp.Err(); err != nil {
			core.LogWarn("Unload scene %s: %s", s.sceneName, err.Error())
		}
		s.finishUnload()
	}
}

func (s *Scene) finishUnload() {
	s.status = StatusUnloaded
	s.unloadOp = nil
	core.LogDebug("Unload %s %s.", s.kind, s.path)
	if s.deps != nil {
		if s.deps.Error() == "" {
			s.deps.Release()
		}
		s.deps = nil
	}
	if fn := s.unloaded; fn != nil {
		s.unloaded = nil
		fn()
	}
	if s.am.events != nil {
		s.am.events.Fire(core.EVENT_CODE_SCENE_UNLOADED, s.am, s)
	}
}
