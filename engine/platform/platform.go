package platform

import (
	"runtime"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/prism/engine/core"
)

func init() {
	// GLFW event handling must run on the main OS thread
	runtime.LockOSThread()
}

type WindowConfig struct {
	Name   string
	X, Y   uint32
	Width  uint32
	Height uint32
}

// Window is a GLFW window without a client API, ready for a Vulkan surface.
type Window struct {
	handle    *glfw.Window
	input     *core.Input
	listeners core.ResizeListeners
	startTime float64
}

var keyMap = map[glfw.Key]core.KeyCode{
	glfw.KeyEscape:    core.KEY_ESCAPE,
	glfw.KeySpace:     core.KEY_SPACE,
	glfw.KeyEnter:     core.KEY_ENTER,
	glfw.KeyW:         core.KEY_W,
	glfw.KeyA:         core.KEY_A,
	glfw.KeyS:         core.KEY_S,
	glfw.KeyD:         core.KEY_D,
	glfw.KeyQ:         core.KEY_Q,
	glfw.KeyE:         core.KEY_E,
	glfw.KeyR:         core.KEY_R,
	glfw.KeyUp:        core.KEY_UP,
	glfw.KeyDown:      core.KEY_DOWN,
	glfw.KeyLeft:      core.KEY_LEFT,
	glfw.KeyRight:     core.KEY_RIGHT,
	glfw.KeyLeftShift: core.KEY_LSHIFT,
}

var buttonMap = map[glfw.MouseButton]core.Button{
	glfw.MouseButtonLeft:   core.BUTTON_LEFT,
	glfw.MouseButtonRight:  core.BUTTON_RIGHT,
	glfw.MouseButtonMiddle: core.BUTTON_MIDDLE,
}

// NewWindow initializes GLFW and opens a resizable window. Input events are
// written to input.
func NewWindow(cfg WindowConfig, input *core.Input) (*Window, error) {
	if err := glfw.Init(); err != nil {
		core.LogError("failed to initialize glfw: %s", err)
		return nil, errors.Wrap(err, "glfw init")
	}
	if !glfw.VulkanSupported() {
		glfw.Terminate()
		return nil, core.NewConfigurationError("glfw reports no Vulkan loader")
	}

	glfw.WindowHint(glfw.Visible, glfw.False)
	glfw.WindowHint(glfw.Resizable, glfw.True)
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI) // Required for Vulkan.

	handle, err := glfw.CreateWindow(int(cfg.Width), int(cfg.Height), cfg.Name, nil, nil)
	if err != nil {
		core.LogError("failed to create window: %s", err)
		glfw.Terminate()
		return nil, errors.Wrap(err, "create window")
	}

	w := &Window{
		handle:    handle,
		input:     input,
		startTime: glfw.GetTime(),
	}
	handle.SetKeyCallback(w.keyCallback)
	handle.SetMouseButtonCallback(w.mouseButtonCallback)
	handle.SetCursorPosCallback(w.cursorPosCallback)
	handle.SetScrollCallback(w.scrollCallback)
	handle.SetFramebufferSizeCallback(w.framebufferSizeCallback)
	handle.SetPos(int(cfg.X), int(cfg.Y))
	handle.Show()

	core.LogInfo("Window %q created (%dx%d).", cfg.Name, cfg.Width, cfg.Height)
	return w, nil
}

func (w *Window) Destroy() {
	if w.handle != nil {
		w.handle.Destroy()
		w.handle = nil
	}
	glfw.Terminate()
}

// PumpMessages processes pending window events, firing callbacks.
func (w *Window) PumpMessages() {
	glfw.PollEvents()
}

func (w *Window) ShouldClose() bool {
	return w.handle.ShouldClose()
}

func (w *Window) SetShouldClose(v bool) {
	w.handle.SetShouldClose(v)
}

// Time is the number of seconds since the window was created.
func (w *Window) Time() float64 {
	return glfw.GetTime() - w.startTime
}

func (w *Window) FramebufferSize() (uint32, uint32) {
	width, height := w.handle.GetFramebufferSize()
	if width < 0 || height < 0 {
		return 0, 0
	}
	return uint32(width), uint32(height)
}

func (w *Window) AddResizeListener(l core.ResizeListener) core.ListenerID {
	return w.listeners.Register(l)
}

func (w *Window) RemoveResizeListener(id core.ListenerID) {
	w.listeners.Unregister(id)
}

func (w *Window) RequiredInstanceExtensions() []string {
	return w.handle.GetRequiredInstanceExtensions()
}

func (w *Window) InstanceProcAddr() unsafe.Pointer {
	return glfw.GetVulkanGetInstanceProcAddress()
}

func (w *Window) CreateSurface(instance vk.Instance) (vk.Surface, error) {
	surface, err := w.handle.CreateWindowSurface(instance, nil)
	if err != nil {
		return vk.NullSurface, core.NewConfigurationError("create window surface: %v", err)
	}
	return vk.SurfaceFromPointer(surface), nil
}

func (w *Window) keyCallback(_ *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
	code, ok := keyMap[key]
	if !ok || action == glfw.Repeat {
		return
	}
	w.input.ProcessKey(code, action == glfw.Press)
}

func (w *Window) mouseButtonCallback(_ *glfw.Window, button glfw.MouseButton, action glfw.Action, mods glfw.ModifierKey) {
	if b, ok := buttonMap[button]; ok {
		w.input.ProcessButton(b, action == glfw.Press)
	}
}

func (w *Window) cursorPosCallback(_ *glfw.Window, xpos, ypos float64) {
	w.input.ProcessMouseMove(xpos, ypos)
}

func (w *Window) scrollCallback(_ *glfw.Window, xoff, yoff float64) {
	w.input.ProcessMouseWheel(yoff)
}

func (w *Window) framebufferSizeCallback(_ *glfw.Window, width, height int) {
	core.LogDebug("Framebuffer resized to %dx%d.", width, height)
	w.listeners.Fire(uint32(width), uint32(height))
}
