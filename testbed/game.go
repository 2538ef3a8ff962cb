package testbed

import (
	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/prism/engine"
	"github.com/spaghettifunk/prism/engine/core"
	"github.com/spaghettifunk/prism/engine/renderer/vulkan"
	"github.com/spaghettifunk/prism/engine/systems"
)

// texture shown on the test quad; the default checkerboard is used while it
// loads or when it is missing.
const quadTexture = "checker.png"

type TestGame struct {
	*engine.Game
}

type gameState struct {
	WorldCamera *systems.Camera
	quad        *systems.Mesh

	width  uint32
	height uint32
}

func NewTestGame(config *engine.ApplicationConfig) *TestGame {
	tg := &TestGame{
		Game: &engine.Game{
			ApplicationConfig: config,
			State:             &gameState{},
		},
	}

	tg.FnInitialize = tg.Initialize
	tg.FnUpdate = tg.Update
	tg.FnRender = tg.Render
	tg.FnOnResize = tg.OnResize
	tg.FnShutdown = tg.Shutdown

	return tg
}

func (g *TestGame) Initialize() error {
	core.LogDebug("TestGame Initialize fn....")

	if g.SystemManager == nil {
		return errors.New("the engine is not yet initialized with all the system managers")
	}

	state := g.State.(*gameState)
	state.WorldCamera = g.SystemManager.CameraSystem.GetDefault()

	quad, err := g.SystemManager.CreateMesh(systems.DefaultMaterialName, systems.Quad("test_quad", systems.DefaultTextureName))
	if err != nil {
		return err
	}
	state.quad = quad
	quad.Transform.SetScale(mgl32.Vec3{1.5, 1.5, 1})

	return g.SystemManager.TextureSystem.AcquireAsync(quadTexture, func(tex *vulkan.Texture) {
		if err := quad.SetTexture(quadTexture, tex); err != nil {
			core.LogError("failed to swap quad texture: %s", err)
			return
		}
		core.LogInfo("Texture '%s' ready.", quadTexture)
	})
}

var (
	tempMoveSpeed float32 = 2.0
	tempTurnSpeed float32 = 60.0
)

func (g *TestGame) Update(deltaTime float64) error {
	state := g.State.(*gameState)
	dt := float32(deltaTime)
	camera := state.WorldCamera

	if g.Input.IsKeyDown(core.KEY_A) || g.Input.IsKeyDown(core.KEY_LEFT) {
		camera.AddYaw(-tempTurnSpeed * dt)
	}
	if g.Input.IsKeyDown(core.KEY_D) || g.Input.IsKeyDown(core.KEY_RIGHT) {
		camera.AddYaw(tempTurnSpeed * dt)
	}
	if g.Input.IsKeyDown(core.KEY_UP) {
		camera.AddPitch(tempTurnSpeed * dt)
	}
	if g.Input.IsKeyDown(core.KEY_DOWN) {
		camera.AddPitch(-tempTurnSpeed * dt)
	}
	if g.Input.IsKeyDown(core.KEY_W) {
		camera.MoveForward(tempMoveSpeed * dt)
	}
	if g.Input.IsKeyDown(core.KEY_S) {
		camera.MoveBackward(tempMoveSpeed * dt)
	}
	if g.Input.IsKeyDown(core.KEY_Q) {
		camera.MoveLeft(tempMoveSpeed * dt)
	}
	if g.Input.IsKeyDown(core.KEY_E) {
		camera.MoveRight(tempMoveSpeed * dt)
	}
	if g.Input.IsKeyDown(core.KEY_SPACE) {
		camera.MoveUp(tempMoveSpeed * dt)
	}
	if g.Input.KeyPressed(core.KEY_R) {
		core.LogDebug("Resetting camera.")
		camera.Reset()
		camera.OnResize(state.width, state.height)
	}

	if wheel := g.Input.MouseWheel(); wheel != 0 {
		camera.Zoom(float32(wheel))
	}

	state.quad.Transform.Rotate(mgl32.QuatRotate(mgl32.DegToRad(90*dt), mgl32.Vec3{0, 0, 1}))
	return nil
}

func (g *TestGame) Render(deltaTime float64) error {
	return nil
}

func (g *TestGame) OnResize(width uint32, height uint32) error {
	state := g.State.(*gameState)
	state.width = width
	state.height = height
	return nil
}

func (g *TestGame) Shutdown() error {
	core.LogDebug("TestGame Shutdown fn....")
	return nil
}
