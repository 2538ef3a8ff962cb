package core

import "sync"

type Button uint8

const (
	BUTTON_LEFT Button = iota
	BUTTON_RIGHT
	BUTTON_MIDDLE
	BUTTON_MAX_BUTTONS
)

// Key codes the engine reacts to. The platform layer maps its own key
// identifiers onto these.
type KeyCode uint16

const (
	KEY_UNKNOWN KeyCode = iota
	KEY_ESCAPE
	KEY_SPACE
	KEY_ENTER
	KEY_W
	KEY_A
	KEY_S
	KEY_D
	KEY_Q
	KEY_E
	KEY_R
	KEY_UP
	KEY_DOWN
	KEY_LEFT
	KEY_RIGHT
	KEY_LSHIFT
	KEYS_MAX_KEYS
)

// Mouse state structure
type MouseState struct {
	X       float64
	Y       float64
	Wheel   float64
	Buttons [BUTTON_MAX_BUTTONS]bool
}

// Keyboard state structure
type KeyboardState struct {
	Keys [KEYS_MAX_KEYS]bool
}

// Input holds the current and previous keyboard and mouse states. The window
// callbacks write into it and the game loop reads from it.
type Input struct {
	mu               sync.Mutex
	keyboardCurrent  KeyboardState
	keyboardPrevious KeyboardState
	mouseCurrent     MouseState
	mousePrevious    MouseState
}

func NewInput() *Input {
	return &Input{}
}

// Update copies the current states to the previous ones. Call once per frame
// after the game has read the input.
func (in *Input) Update() {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.keyboardPrevious = in.keyboardCurrent
	in.mousePrevious = in.mouseCurrent
	in.mouseCurrent.Wheel = 0
}

func (in *Input) ProcessKey(key KeyCode, pressed bool) {
	if key >= KEYS_MAX_KEYS {
		return
	}
	in.mu.Lock()
	defer in.mu.Unlock()
	in.keyboardCurrent.Keys[key] = pressed
}

func (in *Input) ProcessButton(button Button, pressed bool) {
	if button >= BUTTON_MAX_BUTTONS {
		return
	}
	in.mu.Lock()
	defer in.mu.Unlock()
	in.mouseCurrent.Buttons[button] = pressed
}

func (in *Input) ProcessMouseMove(x, y float64) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.mouseCurrent.X = x
	in.mouseCurrent.Y = y
}

// ProcessMouseWheel accumulates vertical scroll until the next Update.
func (in *Input) ProcessMouseWheel(delta float64) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.mouseCurrent.Wheel += delta
}

// keyboard input
func (in *Input) IsKeyDown(key KeyCode) bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return key < KEYS_MAX_KEYS && in.keyboardCurrent.Keys[key]
}

func (in *Input) WasKeyDown(key KeyCode) bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return key < KEYS_MAX_KEYS && in.keyboardPrevious.Keys[key]
}

// KeyPressed reports a key that went down since the last Update.
func (in *Input) KeyPressed(key KeyCode) bool {
	return in.IsKeyDown(key) && !in.WasKeyDown(key)
}

// mouse input
func (in *Input) IsButtonDown(button Button) bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return button < BUTTON_MAX_BUTTONS && in.mouseCurrent.Buttons[button]
}

func (in *Input) MousePosition() (float64, float64) {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.mouseCurrent.X, in.mouseCurrent.Y
}

func (in *Input) MouseWheel() float64 {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.mouseCurrent.Wheel
}

// MouseDelta is the cursor movement since the last Update.
func (in *Input) MouseDelta() (float64, float64) {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.mouseCurrent.X - in.mousePrevious.X, in.mouseCurrent.Y - in.mousePrevious.Y
}
