package assets

import (
	"path/filepath"

	"github.com/spaghettifunk/anima-content/engine/core"
)

// Status is the lifecycle state of a loadable.
type Status int

const (
	StatusWait Status = iota
	StatusLoading
	StatusDependentLoading
	StatusSuccessToLoad
	StatusFailedToLoad
	StatusUnloading
	StatusUnloaded
)

func (s Status) String() string {
	switch s {
	case StatusWait:
		return "Wait"
	case StatusLoading:
		return "Loading"
	case StatusDependentLoading:
		return "DependentLoading"
	case StatusSuccessToLoad:
		return "SuccessToLoad"
	case StatusFailedToLoad:
		return "FailedToLoad"
	case StatusUnloading:
		return "Unloading"
	case StatusUnloaded:
		return "Unloaded"
	default:
		return "Unknown"
	}
}

// Loadable is the state shared by every cached resource kind.
type Loadable interface {
	Path() string
	Status() Status
	Progress() float64
	// Error is empty unless the load failed.
	Error() string
	IsDone() bool
	ReferenceCount() int
	LoadTimes() int
	UnloadTimes() int
	Release()
}

// hooks is implemented by every concrete kind. The driver only talks to
// loadables through it.
type hooks interface {
	Loadable
	base() *loadable
	onLoad()
	onUpdate()
	onComplete()
	onUnused()
	onUnload()
}

// sceneUnloader is implemented by kinds whose unload spans several ticks.
type sceneUnloader interface {
	updateUnload()
}

type kind string

const (
	kindAsset        kind = "asset"
	kindBundle       kind = "bundle"
	kindDependencies kind = "dependencies"
	kindRawAsset     kind = "raw_asset"
	kindScene        kind = "scene"
)

type loadable struct {
	am   *AssetManager
	self hooks
	kind kind
	path string

	status    Status
	progress  float64
	err       string
	reference Reference
}

func (l *loadable) init(am *AssetManager, self hooks, k kind, path string) {
	l.am = am
	l.self = self
	l.kind = k
	l.path = path
	l.status = StatusWait
}

func (l *loadable) base() *loadable {
	return l
}

func (l *loadable) Path() string {
	return l.path
}

func (l *loadable) Status() Status {
	return l.status
}

func (l *loadable) Progress() float64 {
	return l.progress
}

func (l *loadable) Error() string {
	return l.err
}

func (l *loadable) IsDone() bool {
	return l.status == StatusSuccessToLoad || l.status == StatusUnloaded || l.status == StatusFailedToLoad
}

func (l *loadable) ReferenceCount() int {
	return l.reference.Count()
}

func (l *loadable) LoadTimes() int {
	return l.am.loadTimes[l.timesKey()]
}

func (l *loadable) UnloadTimes() int {
	return l.am.unloadTimes[l.timesKey()]
}

func (l *loadable) timesKey() string {
	return string(l.kind) + ":" + l.path
}

// finish moves the loadable to its terminal load state. An empty message means success.
func (l *loadable) finish(errMsg string) {
	l.err = errMsg
	if errMsg == "" {
		l.status = StatusSuccessToLoad
	} else {
		l.status = StatusFailedToLoad
	}
	l.progress = 1
}

func (l *loadable) finishErr(err error) {
	if err == nil {
		l.finish("")
		return
	}
	l.finish(err.Error())
}

// load retains the loadable and queues it on the loading list. Every call
// queues it again so the caller gets a completion on the next tick even when
// the work already finished.
func (l *loadable) load() {
	if l.status != StatusWait && l.reference.Unused() {
		l.am.unused.Remove(l.self)
	}

	l.reference.Retain()
	l.am.loading.Add(l.self)

	if l.status != StatusWait {
		return
	}
	l.am.countLoad(l)
	core.LogDebug("Load %s %s.", l.kind, l.path)
	l.status = StatusLoading
	l.progress = 0
	l.self.onLoad()
}

func (l *loadable) Release() {
	if l.reference.Count() <= 0 {
		core.LogWarn("Release %s %s.", l.kind, filepath.Base(l.path))
		return
	}

	l.reference.Release()
	if !l.reference.Unused() {
		return
	}

	l.am.unused.Add(l.self)
	l.self.onUnused()
}

func (l *loadable) complete() {
	l.self.onComplete()

	if l.status == StatusFailedToLoad {
		core.LogError("Unable to load %s %s with error: %s", l.kind, l.path, l.err)
		l.am.reportFailure(l)
		l.Release()
	}
}

func (l *loadable) unload() {
	if l.status == StatusUnloaded {
		return
	}
	l.am.countUnload(l)
	core.LogDebug("Unload %s %s.", l.kind, l.path)
	l.self.onUnload()
	l.status = StatusUnloaded
}

func (l *loadable) onLoad()     {}
func (l *loadable) onUpdate()   {}
func (l *loadable) onComplete() {}
func (l *loadable) onUnused()   {}
func (l *loadable) onUnload()   {}
