package database

import (
	"sync"

	"github.com/npezzotti/wave/internal/types"
)

type listenerEntry struct {
	fn Listener
}

// listenerRegistry keeps the per-room listeners in registration order.
type listenerRegistry struct {
	mu    sync.Mutex
	rooms map[string][]*listenerEntry
}

func newListenerRegistry() *listenerRegistry {
	return &listenerRegistry{rooms: make(map[string][]*listenerEntry)}
}

// add registers l for roomId. first reports whether l is the only listener
// of the room; remove reports whether it removed the last one.
func (lr *listenerRegistry) add(roomId string, l Listener) (first bool, remove func() (last bool)) {
	e := &listenerEntry{fn: l}

	lr.mu.Lock()
	lr.rooms[roomId] = append(lr.rooms[roomId], e)
	first = len(lr.rooms[roomId]) == 1
	lr.mu.Unlock()

	var once sync.Once
	remove = func() bool {
		var last bool
		once.Do(func() {
			lr.mu.Lock()
			defer lr.mu.Unlock()

			entries := lr.rooms[roomId]
			for i, cur := range entries {
				if cur == e {
					entries = append(entries[:i:i], entries[i+1:]...)
					break
				}
			}

			if len(entries) == 0 {
				delete(lr.rooms, roomId)
				last = true
			} else {
				lr.rooms[roomId] = entries
			}
		})
		return last
	}

	return first, remove
}

func (lr *listenerRegistry) count(roomId string) int {
	lr.mu.Lock()
	defer lr.mu.Unlock()
	return len(lr.rooms[roomId])
}

// emit calls every listener of the room in registration order. The lock is
// not held while listeners run, so a listener may unsubscribe itself.
func (lr *listenerRegistry) emit(roomId string, event types.RoomEvent) {
	lr.mu.Lock()
	entries := append([]*listenerEntry(nil), lr.rooms[roomId]...)
	lr.mu.Unlock()

	for _, e := range entries {
		e.fn(event)
	}
}
