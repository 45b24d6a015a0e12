package engine

import (
	"github.com/spaghettifunk/anima-content/engine/assets"
	"github.com/spaghettifunk/anima-content/engine/core"
	"github.com/spaghettifunk/anima-content/engine/systems"
)

// Game is the application driven by the engine. SystemManager, AssetManager
// and Events are set by the engine before FnInitialize runs.
type Game struct {
	ApplicationConfig *ApplicationConfig
	SystemManager     *systems.SystemManager
	AssetManager      *assets.AssetManager
	Events            *core.EventSystem
	State             interface{}
	FnBoot            Boot
	FnInitialize      Initialize
	FnUpdate          Update
	FnShutdown        Shutdown
}

// Boot runs before any engine system exists.
type Boot func() error
type Initialize func() error
type Update func(deltaTime float64) error
type Shutdown func() error
