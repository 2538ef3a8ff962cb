package engine

import (
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/prism/engine/assets"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/platform"
	"github.com/spaghettifunk/prism/engine/renderer/vulkan"
	"github.com/spaghettifunk/prism/engine/systems"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
	// Engine released every resource
	EngineStageStopped
)

type Engine struct {
	currentStage  Stage
	gameInstance  *Game
	isRunning     atomic.Bool
	isSuspended   atomic.Bool
	input         *core.Input
	window        *platform.Window
	renderer      *vulkan.VulkanRenderer
	assetManager  *assets.AssetManager
	systemManager *systems.SystemManager
	clock         *core.Clock
	metrics       *core.Metrics
	lastTime      float64
	listenerIDs   []core.ListenerID
}

func New(g *Game) (*Engine, error) {
	if g.ApplicationConfig == nil {
		cfg := DefaultApplicationConfig()
		g.ApplicationConfig = &cfg
	}
	if err := g.ApplicationConfig.Validate(); err != nil {
		return nil, err
	}

	am, err := assets.NewAssetManager()
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}

	return &Engine{
		currentStage: EngineStageUninitialized,
		gameInstance: g,
		input:        core.NewInput(),
		assetManager: am,
		clock:        core.NewClock(),
		metrics:      core.NewMetrics(),
	}, nil
}

func (e *Engine) Initialize() error {
	e.currentStage = EngineStageInitializing
	cfg := e.gameInstance.ApplicationConfig

	level, _ := core.ParseLogLevel(cfg.LogLevel)
	core.SetLogLevel(level)

	window, err := platform.NewWindow(platform.WindowConfig{
		Name:   cfg.Name,
		X:      cfg.StartPosX,
		Y:      cfg.StartPosY,
		Width:  cfg.StartWidth,
		Height: cfg.StartHeight,
	}, e.input)
	if err != nil {
		return err
	}
	e.window = window

	vcfg, err := cfg.Renderer.VulkanConfig(cfg.Name)
	if err != nil {
		return err
	}
	if e.renderer, err = vulkan.New(window, vcfg); err != nil {
		return err
	}

	// initialize subsystems
	if err := e.assetManager.Initialize(cfg.AssetsDir); err != nil {
		return err
	}
	if e.systemManager, err = systems.NewSystemManager(e.renderer, e.assetManager); err != nil {
		return err
	}
	if err := e.systemManager.Initialize(); err != nil {
		return err
	}

	camera := e.systemManager.CameraSystem.GetDefault()
	camera.OnResize(window.FramebufferSize())
	e.listenerIDs = append(e.listenerIDs,
		window.AddResizeListener(camera),
		window.AddResizeListener(core.ResizeListenerFunc(e.onResized)),
	)

	e.gameInstance.SystemManager = e.systemManager
	e.gameInstance.Input = e.input
	if err := e.gameInstance.FnInitialize(); err != nil {
		return err
	}
	if e.gameInstance.FnOnResize != nil {
		if err := e.gameInstance.FnOnResize(window.FramebufferSize()); err != nil {
			return err
		}
	}

	e.currentStage = EngineStageInitialized
	return nil
}

// Run drives the frame loop until the window closes, Stop is called or a
// fatal renderer error occurs.
func (e *Engine) Run() error {
	e.currentStage = EngineStageRunning
	e.isRunning.Store(true)
	e.clock.Start()
	e.clock.Update()
	e.lastTime = e.clock.Elapsed()

	var lastReport float64
	for e.isRunning.Load() {
		e.window.PumpMessages()
		if e.window.ShouldClose() {
			e.isRunning.Store(false)
			break
		}

		if e.isSuspended.Load() {
			// nothing to present to while minimized
			time.Sleep(10 * time.Millisecond)
			continue
		}

		// Update clock and get delta time.
		e.clock.Update()
		currentTime := e.clock.Elapsed()
		delta := currentTime - e.lastTime
		frameStartTime := e.window.Time()

		if e.input.KeyPressed(core.KEY_ESCAPE) {
			e.window.SetShouldClose(true)
		}

		if err := e.gameInstance.FnUpdate(delta); err != nil {
			core.LogError("Game update failed, shutting down: %s", err)
			return err
		}
		if err := e.systemManager.Update(delta); err != nil {
			core.LogError("System update failed, shutting down: %s", err)
			return err
		}
		if e.gameInstance.FnRender != nil {
			if err := e.gameInstance.FnRender(delta); err != nil {
				core.LogError("Game render failed, shutting down: %s", err)
				return err
			}
		}

		result, err := e.systemManager.DrawFrame()
		if err != nil {
			core.LogError("Frame failed (%s), shutting down: %s", result, err)
			return errors.Wrap(err, "draw frame")
		}

		e.metrics.Update(e.window.Time() - frameStartTime)
		if currentTime-lastReport > 5 {
			fps, ms := e.metrics.Frame()
			core.LogDebug("FPS: %.0f, frame time: %.3fms, frames presented: %d", fps, ms, e.renderer.Presenter().FramesPresented())
			lastReport = currentTime
		}

		// NOTE: Input update/state copying should always be handled
		// after any input should be recorded; I.E. before this line.
		// As a safety, input is the last thing to be updated before
		// this frame ends.
		e.input.Update()

		// Update last time
		e.lastTime = currentTime
	}
	return nil
}

// Stop asks Run to return after the current frame. Safe to call from any
// goroutine.
func (e *Engine) Stop() {
	core.LogInfo("Stop requested, shutting down.")
	e.isRunning.Store(false)
}

// Shutdown releases everything Initialize created, in reverse order. Call
// after Run returned, on the same thread.
func (e *Engine) Shutdown() error {
	if e.currentStage == EngineStageStopped {
		return nil
	}
	e.currentStage = EngineStageShuttingDown

	var errs error
	if e.gameInstance.FnShutdown != nil {
		errs = errors.CombineErrors(errs, e.gameInstance.FnShutdown())
	}
	if e.window != nil {
		for _, id := range e.listenerIDs {
			e.window.RemoveResizeListener(id)
		}
	}
	if e.systemManager != nil {
		errs = errors.CombineErrors(errs, e.systemManager.Shutdown())
	}
	if e.renderer != nil {
		errs = errors.CombineErrors(errs, e.renderer.Shutdown())
	}
	errs = errors.CombineErrors(errs, e.assetManager.Shutdown())
	if e.window != nil {
		e.window.Destroy()
	}
	e.currentStage = EngineStageStopped
	return errs
}

// GetFramebufferSize returns the width and height (in this order) of the
// window framebuffer.
func (e *Engine) GetFramebufferSize() (uint32, uint32) {
	return e.window.FramebufferSize()
}

func (e *Engine) onResized(width, height uint32) {
	// Handle minimization
	if width == 0 || height == 0 {
		if !e.isSuspended.Swap(true) {
			core.LogInfo("Window minimized, suspending application.")
		}
		return
	}
	if e.isSuspended.Swap(false) {
		core.LogInfo("Window restored, resuming application.")
	}
	if e.gameInstance.FnOnResize != nil {
		if err := e.gameInstance.FnOnResize(width, height); err != nil {
			core.LogError(err.Error())
		}
	}
}
