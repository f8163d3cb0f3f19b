package database

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/npezzotti/wave/internal/pseudonym"
	"github.com/npezzotti/wave/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMemoryStore(t *testing.T) *MemoryStore {
	p, err := pseudonym.New([]byte("test-secret"))
	require.NoError(t, err)
	return NewMemoryStore(p)
}

func TestMemoryStore_CreateRoom(t *testing.T) {
	tcases := []struct {
		name       string
		externalId string
		pseudonym  bool
	}{
		{
			name: "anonymous creator gets a random id",
		},
		{
			name:       "identified creator gets a pseudonym",
			externalId: "idp|sarah",
			pseudonym:  true,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			s := newTestMemoryStore(t)
			room, creator, err := s.CreateRoom(context.Background(), "Planning", "Sarah", tc.externalId)
			require.NoError(t, err)

			assert.NotEmpty(t, room.Id)
			assert.Equal(t, "Planning", room.Name)
			assert.Equal(t, creator.Id, room.CreatedBy)
			require.Len(t, room.Participants, 2, "expected creator and assistant")
			assert.Equal(t, creator, room.Participants[0])
			assert.Equal(t, types.ParticipantHuman, room.Participants[0].Type)
			assert.Equal(t, "Sarah", room.Participants[0].Name)
			assert.Equal(t, WaveAgentId, room.Participants[1].Id)
			assert.Equal(t, types.ParticipantAgent, room.Participants[1].Type)
			assert.Empty(t, room.Messages)

			if tc.pseudonym {
				assert.Equal(t, s.pseudo.Pseudonym(tc.externalId), creator.Id)
			} else {
				assert.NotContains(t, creator.Id, pseudonym.Prefix)
			}
		})
	}
}

func TestMemoryStore_GetRoom(t *testing.T) {
	s := newTestMemoryStore(t)

	_, err := s.GetRoom(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrRoomNotFound)

	created, _, err := s.CreateRoom(context.Background(), "Planning", "Sarah", "")
	require.NoError(t, err)

	room, err := s.GetRoom(context.Background(), created.Id)
	require.NoError(t, err)
	assert.Equal(t, created, room)

	// mutating the returned copy must not change the store
	room.Participants[0].Name = "Mallory"
	again, err := s.GetRoom(context.Background(), created.Id)
	require.NoError(t, err)
	assert.Equal(t, "Sarah", again.Participants[0].Name)
}

func TestMemoryStore_JoinRoom(t *testing.T) {
	s := newTestMemoryStore(t)
	ctx := context.Background()

	_, _, err := s.JoinRoom(ctx, "missing", "Bob", "")
	assert.ErrorIs(t, err, ErrRoomNotFound)

	room, _, err := s.CreateRoom(ctx, "Planning", "Sarah", "")
	require.NoError(t, err)

	var events []types.RoomEvent
	unsubscribe := s.Subscribe(room.Id, func(e types.RoomEvent) { events = append(events, e) })
	defer unsubscribe()

	names := []string{"Bob", "Alice", "Bob"}
	var joined []types.Participant
	for _, name := range names {
		_, p, err := s.JoinRoom(ctx, room.Id, name, "")
		require.NoError(t, err)
		joined = append(joined, p)
	}

	got, err := s.GetRoom(ctx, room.Id)
	require.NoError(t, err)
	assert.Len(t, got.Participants, 2+len(names), "expected a new participant per join")

	require.Len(t, events, len(names))
	for i, e := range events {
		assert.Equal(t, types.EventParticipantJoined, e.Type)
		assert.Equal(t, joined[i], e.Data, "expected join events in call order")
	}
	assert.NotEqual(t, joined[0].Id, joined[2].Id, "expected same-name joins to create distinct participants")
}

func TestMemoryStore_JoinRoom_SameIdentity(t *testing.T) {
	s := newTestMemoryStore(t)
	ctx := context.Background()

	room, _, err := s.CreateRoom(ctx, "Planning", "Sarah", "")
	require.NoError(t, err)

	_, first, err := s.JoinRoom(ctx, room.Id, "Bob", "idp|bob")
	require.NoError(t, err)

	events := 0
	unsubscribe := s.Subscribe(room.Id, func(types.RoomEvent) { events++ })
	defer unsubscribe()

	got, second, err := s.JoinRoom(ctx, room.Id, "Bobby", "idp|bob")
	require.NoError(t, err)

	assert.Equal(t, first, second, "expected existing participant for the same identity")
	assert.Len(t, got.Participants, 3)
	assert.Equal(t, 0, events, "expected no join event for an existing member")
}

func TestMemoryStore_AddMessage(t *testing.T) {
	s := newTestMemoryStore(t)
	ctx := context.Background()

	room, creator, err := s.CreateRoom(ctx, "Planning", "Sarah", "")
	require.NoError(t, err)

	tcases := []struct {
		name          string
		roomId        string
		participantId string
		content       types.ContentList
		expectedErr   error
	}{
		{
			name:          "room not found",
			roomId:        "missing",
			participantId: creator.Id,
			content:       types.ContentList{types.TextContent("hello")},
			expectedErr:   ErrRoomNotFound,
		},
		{
			name:          "participant not in room",
			roomId:        room.Id,
			participantId: "stranger",
			content:       types.ContentList{types.TextContent("hello")},
			expectedErr:   ErrParticipantNotFound,
		},
		{
			name:          "empty content",
			roomId:        room.Id,
			participantId: creator.Id,
			expectedErr:   ErrEmptyContent,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := s.AddMessage(ctx, tc.roomId, tc.participantId, tc.content)
			assert.ErrorIs(t, err, tc.expectedErr)
		})
	}

	t.Run("appends and emits", func(t *testing.T) {
		var events []types.RoomEvent
		unsubscribe := s.Subscribe(room.Id, func(e types.RoomEvent) { events = append(events, e) })
		defer unsubscribe()

		msg, err := s.AddMessage(ctx, room.Id, creator.Id, types.ContentList{types.TextContent("hello")})
		require.NoError(t, err)

		assert.NotEmpty(t, msg.Id)
		assert.Equal(t, room.Id, msg.RoomId)
		assert.Equal(t, creator.Id, msg.ParticipantId)
		assert.False(t, msg.CreatedAt.IsZero())

		require.Len(t, events, 1)
		assert.Equal(t, types.EventMessage, events[0].Type)
		assert.Equal(t, msg, events[0].Data)
	})
}

func TestMemoryStore_GetMessages_Ordering(t *testing.T) {
	s := newTestMemoryStore(t)
	ctx := context.Background()

	msgs, err := s.GetMessages(ctx, "missing")
	require.NoError(t, err)
	assert.NotNil(t, msgs, "expected empty slice rather than nil")
	assert.Empty(t, msgs)

	room, creator, err := s.CreateRoom(ctx, "Planning", "Sarah", "")
	require.NoError(t, err)

	const n = 25
	for i := 0; i < n; i++ {
		_, err := s.AddMessage(ctx, room.Id, creator.Id, types.ContentList{types.TextContent(fmt.Sprint(i))})
		require.NoError(t, err)
	}

	msgs, err = s.GetMessages(ctx, room.Id)
	require.NoError(t, err)
	require.Len(t, msgs, n)

	ids := make(map[string]struct{}, n)
	for i, m := range msgs {
		assert.Equal(t, fmt.Sprint(i), m.Text(), "expected messages in call order")
		if i > 0 {
			assert.False(t, m.CreatedAt.Before(msgs[i-1].CreatedAt), "expected monotonic creation times")
		}
		ids[m.Id] = struct{}{}
	}
	assert.Len(t, ids, n, "expected unique message ids")
}

func TestMemoryStore_ConcurrentWriters(t *testing.T) {
	s := newTestMemoryStore(t)
	ctx := context.Background()

	room, creator, err := s.CreateRoom(ctx, "Planning", "Sarah", "")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _, err := s.JoinRoom(ctx, room.Id, "Bob", "")
			assert.NoError(t, err)
		}()
		go func(i int) {
			defer wg.Done()
			_, err := s.AddMessage(ctx, room.Id, creator.Id, types.ContentList{types.TextContent(fmt.Sprint(i))})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	got, err := s.GetRoom(ctx, room.Id)
	require.NoError(t, err)
	assert.Len(t, got.Participants, 12)
	assert.Len(t, got.Messages, 10)
}

func TestMemoryStore_EmitEvent(t *testing.T) {
	s := newTestMemoryStore(t)

	var got []types.RoomEvent
	unsubscribe := s.Subscribe("room", func(e types.RoomEvent) { got = append(got, e) })

	s.EmitEvent("room", types.RoomEvent{Type: types.EventTyping, Data: types.TypingData{ParticipantId: WaveAgentId}})
	require.Len(t, got, 1)
	assert.NotZero(t, got[0].Timestamp, "expected timestamp to be set")

	unsubscribe()
	s.EmitEvent("room", types.NewRoomEvent(types.EventTyping, nil))
	assert.Len(t, got, 1, "expected no delivery after unsubscribe")
}

func TestMemoryStore_WaveAgent(t *testing.T) {
	s := newTestMemoryStore(t)
	agent := s.WaveAgent()

	assert.Equal(t, WaveAgentId, agent.Id)
	assert.Equal(t, WaveAgentName, agent.Name)
	assert.Equal(t, types.ParticipantAgent, agent.Type)
}
