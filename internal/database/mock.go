package database

import (
	"context"

	"github.com/npezzotti/wave/internal/types"
	"github.com/stretchr/testify/mock"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) CreateRoom(ctx context.Context, name, creatorName, creatorExternalId string) (types.Room, types.Participant, error) {
	args := m.Called(ctx, name, creatorName, creatorExternalId)
	return args.Get(0).(types.Room), args.Get(1).(types.Participant), args.Error(2)
}
func (m *MockStore) GetRoom(ctx context.Context, roomId string) (types.Room, error) {
	args := m.Called(ctx, roomId)
	return args.Get(0).(types.Room), args.Error(1)
}
func (m *MockStore) JoinRoom(ctx context.Context, roomId, name, externalId string) (types.Room, types.Participant, error) {
	args := m.Called(ctx, roomId, name, externalId)
	return args.Get(0).(types.Room), args.Get(1).(types.Participant), args.Error(2)
}
func (m *MockStore) AddMessage(ctx context.Context, roomId, participantId string, content types.ContentList) (types.Message, error) {
	args := m.Called(ctx, roomId, participantId, content)
	return args.Get(0).(types.Message), args.Error(1)
}
func (m *MockStore) GetMessages(ctx context.Context, roomId string) ([]types.Message, error) {
	args := m.Called(ctx, roomId)
	return args.Get(0).([]types.Message), args.Error(1)
}
func (m *MockStore) Subscribe(roomId string, l Listener) func() {
	args := m.Called(roomId, l)
	if unsubscribe, ok := args.Get(0).(func()); ok {
		return unsubscribe
	}
	return func() {}
}
func (m *MockStore) EmitEvent(roomId string, event types.RoomEvent) {
	m.Called(roomId, event)
}
func (m *MockStore) WaveAgent() types.Participant {
	args := m.Called()
	return args.Get(0).(types.Participant)
}
func (m *MockStore) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
func (m *MockStore) Close() error {
	args := m.Called()
	return args.Error(0)
}
