package events

import "sync"

// Emitter is a typed fan-out dispatcher. Unlike a single callback field,
// it supports multiple listeners and explicit unsubscription; emitting with
// no listeners is a no-op.
type Emitter[T any] struct {
	mu   sync.RWMutex
	subs map[int]func(T)
	next int
}

func NewEmitter[T any]() *Emitter[T] {
	return &Emitter[T]{
		subs: make(map[int]func(T)),
	}
}

// Subscribe registers a listener and returns its unsubscribe function.
// The unsubscribe function is idempotent.
func (e *Emitter[T]) Subscribe(fn func(T)) func() {
	e.mu.Lock()
	id := e.next
	e.next++
	e.subs[id] = fn
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		delete(e.subs, id)
		e.mu.Unlock()
	}
}

// Emit delivers the event to every current listener, synchronously and in
// unspecified order. Listeners must not block.
func (e *Emitter[T]) Emit(ev T) {
	e.mu.RLock()
	listeners := make([]func(T), 0, len(e.subs))
	for _, fn := range e.subs {
		listeners = append(listeners, fn)
	}
	e.mu.RUnlock()

	for _, fn := range listeners {
		fn(ev)
	}
}

// Len returns the number of active listeners.
func (e *Emitter[T]) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.subs)
}
