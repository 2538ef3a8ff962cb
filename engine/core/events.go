package core

import "sync"

// ResizeListener is notified when the window framebuffer changes size.
type ResizeListener interface {
	OnResize(width, height uint32)
}

// ResizeListenerFunc adapts a plain function to a ResizeListener.
type ResizeListenerFunc func(width, height uint32)

func (f ResizeListenerFunc) OnResize(width, height uint32) {
	f(width, height)
}

// ListenerID identifies a registration so it can be removed later.
type ListenerID uint32

type registeredListener struct {
	id       ListenerID
	listener ResizeListener
}

// ResizeListeners is a registry of resize observers. Components register once
// at construction and unregister when destroyed.
type ResizeListeners struct {
	mu         sync.Mutex
	nextID     ListenerID
	registered []registeredListener
}

// Register adds l and returns the id to unregister it with. A nil listener is
// ignored and yields id 0.
func (r *ResizeListeners) Register(l ResizeListener) ListenerID {
	if l == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	r.registered = append(r.registered, registeredListener{id: r.nextID, listener: l})
	return r.nextID
}

// Unregister removes the listener with the given id. It returns false when no
// such registration exists.
func (r *ResizeListeners) Unregister(id ListenerID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, e := range r.registered {
		if e.id == id {
			r.registered = append(r.registered[:i], r.registered[i+1:]...)
			return true
		}
	}
	return false
}

// Fire notifies listeners in registration order. The list is copied first so
// listeners may unregister themselves from inside OnResize.
func (r *ResizeListeners) Fire(width, height uint32) {
	r.mu.Lock()
	listeners := make([]ResizeListener, len(r.registered))
	for i, e := range r.registered {
		listeners[i] = e.listener
	}
	r.mu.Unlock()

	for _, l := range listeners {
		l.OnResize(width, height)
	}
}

func (r *ResizeListeners) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.registered)
}
