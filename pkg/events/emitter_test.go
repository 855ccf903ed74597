package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEmitter_MultipleListeners(t *testing.T) {
	e := NewEmitter[int]()

	var a, b []int
	e.Subscribe(func(v int) { a = append(a, v) })
	e.Subscribe(func(v int) { b = append(b, v) })

	e.Emit(1)
	e.Emit(2)

	assert.Equal(t, []int{1, 2}, a)
	assert.Equal(t, []int{1, 2}, b)
}

func TestEmitter_Unsubscribe(t *testing.T) {
	e := NewEmitter[string]()

	var got []string
	unsub := e.Subscribe(func(v string) { got = append(got, v) })

	e.Emit("first")
	unsub()
	e.Emit("second")

	assert.Equal(t, []string{"first"}, got)
	assert.Equal(t, 0, e.Len())

	// Unsubscribing twice must not panic or affect other listeners.
	e.Subscribe(func(v string) { got = append(got, v) })
	unsub()
	e.Emit("third")
	assert.Equal(t, []string{"first", "third"}, got)
}

func TestEmitter_EmitWithoutListeners(t *testing.T) {
	e := NewEmitter[struct{}]()
	assert.NotPanics(t, func() { e.Emit(struct{}{}) })
}
