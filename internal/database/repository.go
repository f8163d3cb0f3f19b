package database

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/npezzotti/wave/internal/types"
	"github.com/teris-io/shortid"
)

const (
	WaveAgentId     = "wave-agent"
	WaveAgentName   = "Wave"
	WaveAgentAvatar = "/wave-avatar.png"
)

var (
	ErrRoomNotFound        = errors.New("room not found")
	ErrParticipantNotFound = errors.New("participant not found")
	ErrEmptyContent        = errors.New("message content cannot be empty")
)

// Listener receives room events. It is invoked synchronously by the
// goroutine that emits the event and must not block.
type Listener func(event types.RoomEvent)

// Pseudonymizer derives participant ids from external identities.
type Pseudonymizer interface {
	Pseudonym(externalId string) string
}

// Store is implemented by every room backend.
type Store interface {
	CreateRoom(ctx context.Context, name, creatorName, creatorExternalId string) (types.Room, types.Participant, error)
	GetRoom(ctx context.Context, roomId string) (types.Room, error)
	JoinRoom(ctx context.Context, roomId, name, externalId string) (types.Room, types.Participant, error)
	AddMessage(ctx context.Context, roomId, participantId string, content types.ContentList) (types.Message, error)
	GetMessages(ctx context.Context, roomId string) ([]types.Message, error)
	Subscribe(roomId string, l Listener) (unsubscribe func())
	EmitEvent(roomId string, event types.RoomEvent)
	WaveAgent() types.Participant
	Ping(ctx context.Context) error
	Close() error
}

func newWaveAgent(joinedAt time.Time) types.Participant {
	return types.Participant{
		Id:       WaveAgentId,
		Type:     types.ParticipantAgent,
		Name:     WaveAgentName,
		Avatar:   WaveAgentAvatar,
		JoinedAt: joinedAt,
	}
}

func newRoomId() (string, error) {
	return shortid.Generate()
}

func newParticipantId(p Pseudonymizer, externalId string) string {
	if externalId != "" && p != nil {
		return p.Pseudonym(externalId)
	}
	return uuid.NewString()
}

func newMessageId() string {
	return uuid.NewString()
}

func now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
