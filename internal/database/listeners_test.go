package database

import (
	"testing"

	"github.com/npezzotti/wave/internal/types"
	"github.com/stretchr/testify/assert"
)

func TestListenerRegistry(t *testing.T) {
	lr := newListenerRegistry()

	var calls []string
	first, removeA := lr.add("room", func(types.RoomEvent) { calls = append(calls, "a") })
	assert.True(t, first, "expected first listener to be reported")

	first, removeB := lr.add("room", func(types.RoomEvent) { calls = append(calls, "b") })
	assert.False(t, first)
	assert.Equal(t, 2, lr.count("room"))

	lr.emit("room", types.NewRoomEvent(types.EventTyping, nil))
	lr.emit("other", types.NewRoomEvent(types.EventTyping, nil))
	assert.Equal(t, []string{"a", "b"}, calls, "expected listeners called in registration order")

	assert.False(t, removeA(), "expected listener b to remain")
	assert.False(t, removeA(), "expected second remove to be a no-op")
	assert.True(t, removeB(), "expected last listener removed")
	assert.Equal(t, 0, lr.count("room"))

	lr.emit("room", types.NewRoomEvent(types.EventTyping, nil))
	assert.Len(t, calls, 2, "expected no calls after unsubscribe")
}

func TestListenerRegistry_UnsubscribeDuringEmit(t *testing.T) {
	lr := newListenerRegistry()

	var remove func() bool
	calls := 0
	_, remove = lr.add("room", func(types.RoomEvent) {
		calls++
		remove()
	})

	lr.emit("room", types.NewRoomEvent(types.EventMessage, nil))
	lr.emit("room", types.NewRoomEvent(types.EventMessage, nil))

	assert.Equal(t, 1, calls)
}
