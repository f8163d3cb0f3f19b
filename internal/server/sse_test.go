package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/npezzotti/wave/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSSESink(t *testing.T) {
	rr := httptest.NewRecorder()

	sink, err := NewSSESink(rr)
	require.NoError(t, err)

	require.NoError(t, sink.Send(Connected("r1")))
	require.NoError(t, sink.Send(types.RoomEvent{
		Type:      types.EventTyping,
		Data:      types.TypingData{ParticipantId: "wave-agent"},
		Timestamp: 42,
	}))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "text/event-stream", rr.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rr.Header().Get("Cache-Control"))
	assert.Equal(t, "keep-alive", rr.Header().Get("Connection"))
	assert.True(t, rr.Flushed)

	assert.Equal(t,
		"data: {\"type\":\"connected\",\"roomId\":\"r1\"}\n\n"+
			"data: {\"type\":\"typing\",\"data\":{\"participantId\":\"wave-agent\"},\"timestamp\":42}\n\n",
		rr.Body.String())
}

// plainWriter hides the recorder's Flush method.
type plainWriter struct {
	rr *httptest.ResponseRecorder
}

func (w plainWriter) Header() http.Header         { return w.rr.Header() }
func (w plainWriter) Write(b []byte) (int, error) { return w.rr.Write(b) }
func (w plainWriter) WriteHeader(code int)        { w.rr.WriteHeader(code) }

func TestSSESink_FlushUnsupported(t *testing.T) {
	rr := httptest.NewRecorder()

	_, err := NewSSESink(plainWriter{rr})
	assert.ErrorIs(t, err, ErrStreamStarted)
	assert.ErrorIs(t, err, http.ErrNotSupported)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestHeartbeatFrame(t *testing.T) {
	f := Heartbeat()
	assert.Equal(t, FrameHeartbeat, f.Type)
	assert.Empty(t, f.RoomId)
	assert.NotZero(t, f.Timestamp)
}
