package database

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/npezzotti/wave/internal/types"
)

// MemoryStore keeps rooms in process memory. All state is lost on restart.
type MemoryStore struct {
	mu        sync.RWMutex
	rooms     map[string]*types.Room
	listeners *listenerRegistry
	pseudo    Pseudonymizer
	agent     types.Participant
}

func NewMemoryStore(pseudo Pseudonymizer) *MemoryStore {
	return &MemoryStore{
		rooms:     make(map[string]*types.Room),
		listeners: newListenerRegistry(),
		pseudo:    pseudo,
		agent:     newWaveAgent(now()),
	}
}

func (s *MemoryStore) CreateRoom(_ context.Context, name, creatorName, creatorExternalId string) (types.Room, types.Participant, error) {
	roomId, err := newRoomId()
	if err != nil {
		return types.Room{}, types.Participant{}, fmt.Errorf("generate room id: %w", err)
	}

	createdAt := now()
	creator := types.Participant{
		Id:       newParticipantId(s.pseudo, creatorExternalId),
		Type:     types.ParticipantHuman,
		Name:     creatorName,
		JoinedAt: createdAt,
	}

	room := &types.Room{
		Id:           roomId,
		Name:         name,
		CreatedBy:    creator.Id,
		Participants: []types.Participant{creator, newWaveAgent(createdAt)},
		Messages:     []types.Message{},
		CreatedAt:    createdAt,
	}

	s.mu.Lock()
	s.rooms[roomId] = room
	snapshot := room.Clone()
	s.mu.Unlock()

	return snapshot, creator, nil
}

func (s *MemoryStore) GetRoom(_ context.Context, roomId string) (types.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	room, ok := s.rooms[roomId]
	if !ok {
		return types.Room{}, ErrRoomNotFound
	}

	return room.Clone(), nil
}

// JoinRoom appends a new participant on every call. A participant whose
// pseudonym is already a member is returned as is, since ids must stay
// unique within a room.
func (s *MemoryStore) JoinRoom(_ context.Context, roomId, name, externalId string) (types.Room, types.Participant, error) {
	s.mu.Lock()
	room, ok := s.rooms[roomId]
	if !ok {
		s.mu.Unlock()
		return types.Room{}, types.Participant{}, ErrRoomNotFound
	}

	participantId := newParticipantId(s.pseudo, externalId)
	if existing, ok := room.Participant(participantId); ok {
		snapshot := room.Clone()
		s.mu.Unlock()
		return snapshot, existing, nil
	}

	participant := types.Participant{
		Id:       participantId,
		Type:     types.ParticipantHuman,
		Name:     name,
		JoinedAt: now(),
	}
	room.Participants = append(room.Participants, participant)
	snapshot := room.Clone()
	s.mu.Unlock()

	s.listeners.emit(roomId, types.NewRoomEvent(types.EventParticipantJoined, participant))

	return snapshot, participant, nil
}

func (s *MemoryStore) AddMessage(_ context.Context, roomId, participantId string, content types.ContentList) (types.Message, error) {
	if len(content) == 0 {
		return types.Message{}, ErrEmptyContent
	}

	s.mu.Lock()
	room, ok := s.rooms[roomId]
	if !ok {
		s.mu.Unlock()
		return types.Message{}, ErrRoomNotFound
	}

	if _, ok := room.Participant(participantId); !ok {
		s.mu.Unlock()
		return types.Message{}, ErrParticipantNotFound
	}

	createdAt := now()
	// creation times never go backwards within a room
	if n := len(room.Messages); n > 0 && createdAt.Before(room.Messages[n-1].CreatedAt) {
		createdAt = room.Messages[n-1].CreatedAt
	}

	msg := types.Message{
		Id:            newMessageId(),
		RoomId:        roomId,
		ParticipantId: participantId,
		Content:       append(types.ContentList(nil), content...),
		CreatedAt:     createdAt,
	}
	room.Messages = append(room.Messages, msg)
	s.mu.Unlock()

	s.listeners.emit(roomId, types.NewRoomEvent(types.EventMessage, msg.Clone()))

	return msg.Clone(), nil
}

func (s *MemoryStore) GetMessages(_ context.Context, roomId string) ([]types.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	room, ok := s.rooms[roomId]
	if !ok {
		return []types.Message{}, nil
	}

	messages := make([]types.Message, len(room.Messages))
	for i, m := range room.Messages {
		messages[i] = m.Clone()
	}
	return messages, nil
}

func (s *MemoryStore) Subscribe(roomId string, l Listener) func() {
	_, remove := s.listeners.add(roomId, l)
	return func() { remove() }
}

func (s *MemoryStore) EmitEvent(roomId string, event types.RoomEvent) {
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().UnixMilli()
	}
	s.listeners.emit(roomId, event)
}

func (s *MemoryStore) WaveAgent() types.Participant {
	return s.agent
}

func (s *MemoryStore) Ping(context.Context) error {
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}
