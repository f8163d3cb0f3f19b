package server

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/npezzotti/wave/internal/database"
	"github.com/npezzotti/wave/internal/pseudonym"
	"github.com/npezzotti/wave/internal/stats"
	"github.com/npezzotti/wave/internal/testutil"
	"github.com/npezzotti/wave/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingSource tracks how many broker listeners the hub holds per room.
type countingSource struct {
	store  database.Store
	mu     sync.Mutex
	active map[string]int
}

func newCountingSource(t *testing.T) *countingSource {
	p, err := pseudonym.New([]byte("test-secret"))
	require.NoError(t, err)
	return &countingSource{store: database.NewMemoryStore(p), active: make(map[string]int)}
}

func (s *countingSource) Subscribe(roomId string, l database.Listener) func() {
	s.mu.Lock()
	s.active[roomId]++
	s.mu.Unlock()

	unsubscribe := s.store.Subscribe(roomId, l)
	return func() {
		unsubscribe()
		s.mu.Lock()
		s.active[roomId]--
		s.mu.Unlock()
	}
}

func (s *countingSource) listeners(roomId string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active[roomId]
}

type chanSink struct {
	frames chan any
}

func newChanSink() *chanSink {
	return &chanSink{frames: make(chan any, 64)}
}

func (s *chanSink) Send(v any) error {
	s.frames <- v
	return nil
}

func (s *chanSink) next(t *testing.T) any {
	t.Helper()
	select {
	case f := <-s.frames:
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
		return nil
	}
}

func newTestHub(t *testing.T, src EventSource, heartbeat time.Duration) *Hub {
	h := NewHub(testutil.TestLogger(t), src, stats.NewStatsUpdater(nil), heartbeat)
	go h.Run()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		h.Shutdown(ctx)
	})
	return h
}

type stream struct {
	client *Client
	sink   *chanSink
	cancel context.CancelFunc
	done   chan struct{}
}

func openStream(t *testing.T, h *Hub, roomId string) *stream {
	t.Helper()
	c := h.NewClient(roomId)
	require.NoError(t, h.Register(c))

	ctx, cancel := context.WithCancel(context.Background())
	s := &stream{client: c, sink: newChanSink(), cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(s.done)
		c.Write(ctx, s.sink)
	}()

	assert.Equal(t, Connected(roomId), s.sink.next(t))
	return s
}

func (s *stream) close(t *testing.T) {
	s.cancel()
	select {
	case <-s.done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not close")
	}
}

func TestHub_FanOut(t *testing.T) {
	src := newCountingSource(t)
	h := newTestHub(t, src, time.Hour)

	a := openStream(t, h, "r1")
	b := openStream(t, h, "r1")
	other := openStream(t, h, "r2")

	assert.Equal(t, 1, src.listeners("r1"), "one broker listener per room")
	assert.Equal(t, 2, h.RoomCount())

	ev := types.NewRoomEvent(types.EventTyping, types.TypingData{ParticipantId: "wave-agent"})
	src.store.EmitEvent("r1", ev)

	assert.Equal(t, ev, a.sink.next(t))
	assert.Equal(t, ev, b.sink.next(t))

	select {
	case f := <-other.sink.frames:
		t.Fatalf("unexpected frame on other room: %v", f)
	case <-time.After(50 * time.Millisecond):
	}

	a.close(t)
	assert.Equal(t, 1, src.listeners("r1"), "listener kept while a client remains")

	b.close(t)
	require.Eventually(t, func() bool { return h.RoomCount() == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, src.listeners("r1"), "last client releases the listener")

	other.close(t)
}

func TestHub_EventOrder(t *testing.T) {
	src := newCountingSource(t)
	h := newTestHub(t, src, time.Hour)
	s := openStream(t, h, "r1")
	defer s.close(t)

	sequence := []types.EventType{types.EventTyping, types.EventAIStreaming, types.EventAIStreaming, types.EventMessage}
	for _, et := range sequence {
		src.store.EmitEvent("r1", types.NewRoomEvent(et, nil))
	}

	for _, want := range sequence {
		got, ok := s.sink.next(t).(types.RoomEvent)
		require.True(t, ok)
		assert.Equal(t, want, got.Type)
	}
}

func TestClient_Heartbeat(t *testing.T) {
	h := newTestHub(t, newCountingSource(t), 20*time.Millisecond)
	s := openStream(t, h, "r1")
	defer s.close(t)

	frame, ok := s.sink.next(t).(ControlFrame)
	require.True(t, ok)
	assert.Equal(t, FrameHeartbeat, frame.Type)
	assert.NotZero(t, frame.Timestamp)
}

func TestClient_QueueEventDropsWhenFull(t *testing.T) {
	h := NewHub(testutil.TestLogger(t), newCountingSource(t), stats.NewStatsUpdater(nil), time.Hour)
	c := h.NewClient("r1")

	ev := types.NewRoomEvent(types.EventTyping, nil)
	for i := 0; i < clientSendBuffer; i++ {
		require.True(t, c.queueEvent(ev))
	}
	assert.False(t, c.queueEvent(ev))
}

func TestHub_Shutdown(t *testing.T) {
	src := newCountingSource(t)
	h := NewHub(testutil.TestLogger(t), src, stats.NewStatsUpdater(nil), time.Hour)
	go h.Run()

	s := openStream(t, h, "r1")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, h.Shutdown(ctx))

	select {
	case <-s.done:
	case <-time.After(2 * time.Second):
		t.Fatal("client not stopped by shutdown")
	}
	assert.Equal(t, 0, src.listeners("r1"))
	assert.ErrorIs(t, h.Register(h.NewClient("r1")), ErrShuttingDown)
	assert.NoError(t, h.Shutdown(ctx), "shutdown is idempotent")
}
