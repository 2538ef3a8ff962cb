package core

import (
	"reflect"
	"testing"
)

func TestResizeListenersFireInOrder(t *testing.T) {
	var r ResizeListeners
	var calls []string

	r.Register(ResizeListenerFunc(func(w, h uint32) { calls = append(calls, "first") }))
	r.Register(ResizeListenerFunc(func(w, h uint32) { calls = append(calls, "second") }))

	r.Fire(800, 600)

	if want := []string{"first", "second"}; !reflect.DeepEqual(calls, want) {
		t.Fatalf("calls = %v, want %v", calls, want)
	}
}

func TestResizeListenersUnregister(t *testing.T) {
	var r ResizeListeners
	var got [2]uint32
	count := 0

	id := r.Register(ResizeListenerFunc(func(w, h uint32) {
		got = [2]uint32{w, h}
		count++
	}))
	r.Fire(1280, 720)
	if got != [2]uint32{1280, 720} {
		t.Fatalf("listener saw %v, want [1280 720]", got)
	}

	if !r.Unregister(id) {
		t.Fatal("Unregister returned false for a registered id")
	}
	if r.Unregister(id) {
		t.Fatal("Unregister returned true twice for the same id")
	}
	r.Fire(1, 1)
	if count != 1 {
		t.Fatalf("listener called %d times, want 1", count)
	}
	if r.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", r.Len())
	}
}

func TestResizeListenersSelfUnregister(t *testing.T) {
	var r ResizeListeners
	var id ListenerID
	id = r.Register(ResizeListenerFunc(func(w, h uint32) {
		r.Unregister(id)
	}))
	r.Fire(10, 10)
	if r.Len() != 0 {
		t.Fatalf("Len() = %d after self unregister, want 0", r.Len())
	}
}

func TestResizeListenersNil(t *testing.T) {
	var r ResizeListeners
	if id := r.Register(nil); id != 0 {
		t.Fatalf("Register(nil) = %d, want 0", id)
	}
	if r.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", r.Len())
	}
}
