package assets

import (
	"github.com/spaghettifunk/anima-content/engine/systems"
)

// SceneOperation is a pollable engine scene load or unload.
type SceneOperation interface {
	Progress() float64
	IsDone() bool
	Err() error
	// AllowSceneActivation is false when the engine holds the load at 0.9
	// until it is activated.
	AllowSceneActivation() bool
}

// SceneDirector is the engine side of scene management.
type SceneDirector interface {
	// HasScene reports whether name is a scene built into the player.
	HasScene(name string) bool
	IsSceneLoaded(name string) bool
	LoadScene(name string, additive bool) error
	LoadSceneAsync(name string, additive bool) SceneOperation
	UnloadSceneAsync(name string) SceneOperation
}

type sceneSystemDirector struct {
	*systems.SceneSystem
}

// NewSceneDirector exposes the engine scene system as a SceneDirector.
func NewSceneDirector(ss *systems.SceneSystem) SceneDirector {
	return &sceneSystemDirector{SceneSystem: ss}
}

func (d *sceneSystemDirector) LoadSceneAsync(name string, additive bool) SceneOperation {
	return d.SceneSystem.LoadSceneAsync(name, additive)
}

func (d *sceneSystemDirector) UnloadSceneAsync(name string) SceneOperation {
	return d.SceneSystem.UnloadSceneAsync(name)
}
