package core

import "testing"

func TestInputKeys(t *testing.T) {
	in := NewInput()

	in.ProcessKey(KEY_W, true)
	if !in.IsKeyDown(KEY_W) || !in.KeyPressed(KEY_W) {
		t.Fatal("W not reported as freshly pressed")
	}

	in.Update()
	if !in.IsKeyDown(KEY_W) || in.KeyPressed(KEY_W) {
		t.Fatal("held W reported as freshly pressed after Update")
	}

	in.ProcessKey(KEY_W, false)
	if in.IsKeyDown(KEY_W) || !in.WasKeyDown(KEY_W) {
		t.Fatal("released W state wrong")
	}

	in.ProcessKey(KEYS_MAX_KEYS+3, true)
	if in.IsKeyDown(KEYS_MAX_KEYS + 3) {
		t.Fatal("out of range key reported down")
	}
}

func TestInputMouse(t *testing.T) {
	in := NewInput()
	in.ProcessMouseMove(10, 20)
	in.Update()
	in.ProcessMouseMove(15, 18)

	if x, y := in.MousePosition(); x != 15 || y != 18 {
		t.Fatalf("MousePosition() = %v, %v", x, y)
	}
	if dx, dy := in.MouseDelta(); dx != 5 || dy != -2 {
		t.Fatalf("MouseDelta() = %v, %v, want 5, -2", dx, dy)
	}

	in.ProcessMouseWheel(1)
	in.ProcessMouseWheel(0.5)
	if got := in.MouseWheel(); got != 1.5 {
		t.Fatalf("MouseWheel() = %v, want 1.5", got)
	}
	in.Update()
	if got := in.MouseWheel(); got != 0 {
		t.Fatalf("MouseWheel() after Update = %v, want 0", got)
	}

	in.ProcessButton(BUTTON_RIGHT, true)
	if !in.IsButtonDown(BUTTON_RIGHT) || in.IsButtonDown(BUTTON_LEFT) {
		t.Fatal("button state wrong")
	}
}
