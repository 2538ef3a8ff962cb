package engine

import (
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/systems"
)

// Game is the application plugged into the engine. SystemManager and Input
// are filled in by the engine before FnInitialize runs.
type Game struct {
	ApplicationConfig *ApplicationConfig
	SystemManager     *systems.SystemManager
	Input             *core.Input
	State             interface{}
	FnInitialize      Initialize
	FnUpdate          Update
	FnRender          Render
	FnOnResize        OnResize
	FnShutdown        Shutdown
}

type Initialize func() error
type Update func(deltaTime float64) error
type Render func(deltaTime float64) error
type OnResize func(width uint32, height uint32) error
type Shutdown func() error
