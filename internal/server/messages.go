package server

import (
	"time"

	"github.com/npezzotti/wave/internal/database"
)

const (
	FrameConnected = "connected"
	FrameHeartbeat = "heartbeat"
)

// ControlFrame is written by the stream itself rather than by the room.
// It shares the type/timestamp shape of types.RoomEvent.
type ControlFrame struct {
	Type      string `json:"type"`
	RoomId    string `json:"roomId,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

func Connected(roomId string) ControlFrame {
	return ControlFrame{Type: FrameConnected, RoomId: roomId}
}

func Heartbeat() ControlFrame {
	return ControlFrame{Type: FrameHeartbeat, Timestamp: Now()}
}

// Now returns the current Unix time in milliseconds.
func Now() int64 {
	return time.Now().UnixMilli()
}

// EventSource delivers room events to listeners.
type EventSource interface {
	Subscribe(roomId string, l database.Listener) (unsubscribe func())
}
