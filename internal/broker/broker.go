// Package broker is the single entry point the rest of the service uses to
// reach room storage. The backend is chosen once, when the broker is opened.
package broker

import (
	"context"
	"errors"
	"fmt"

	"github.com/npezzotti/wave/internal/config"
	"github.com/npezzotti/wave/internal/database"
	"github.com/npezzotti/wave/internal/logging"
	"github.com/npezzotti/wave/internal/pseudonym"
	"github.com/npezzotti/wave/internal/stats"
	"github.com/npezzotti/wave/internal/types"
	"github.com/rs/zerolog"
)

const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
)

type Broker struct {
	store   database.Store
	backend string
	log     zerolog.Logger
	stats   stats.StatsProvider
}

func New(store database.Store, backend string, logger zerolog.Logger, statsProvider stats.StatsProvider) *Broker {
	return &Broker{
		store:   store,
		backend: backend,
		log:     logging.WithComponent(logger, "broker").With().Str("backend", backend).Logger(),
		stats:   statsProvider,
	}
}

// Open selects the durable backend when a database DSN is configured and
// the in-memory backend otherwise.
func Open(ctx context.Context, cfg *config.Config, logger zerolog.Logger, statsProvider stats.StatsProvider) (*Broker, error) {
	pseudo, err := pseudonym.New(cfg.PseudonymSecret)
	if err != nil {
		return nil, fmt.Errorf("pseudonymizer: %w", err)
	}

	if !cfg.UsesDatabase() {
		return New(database.NewMemoryStore(pseudo), BackendMemory, logger, statsProvider), nil
	}

	if err := database.Migrate(cfg.DatabaseDSN); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	store, err := database.NewPgStore(ctx, cfg.DatabaseDSN, pseudo, logger)
	if err != nil {
		return nil, fmt.Errorf("postgres store: %w", err)
	}

	return New(store, BackendPostgres, logger, statsProvider), nil
}

func (b *Broker) Backend() string {
	return b.backend
}

func (b *Broker) CreateRoom(ctx context.Context, name, creatorName, creatorExternalId string) (types.Room, types.Participant, error) {
	room, creator, err := b.store.CreateRoom(ctx, name, creatorName, creatorExternalId)
	if err != nil {
		return types.Room{}, types.Participant{}, err
	}

	b.log.Info().Str("room_id", room.Id).Str("participant_id", creator.Id).Msg("room created")
	return room, creator, nil
}

func (b *Broker) GetRoom(ctx context.Context, roomId string) (types.Room, error) {
	return b.store.GetRoom(ctx, roomId)
}

func (b *Broker) JoinRoom(ctx context.Context, roomId, name, externalId string) (types.Room, types.Participant, error) {
	room, participant, err := b.store.JoinRoom(ctx, roomId, name, externalId)
	if err != nil {
		return types.Room{}, types.Participant{}, err
	}

	b.log.Info().Str("room_id", roomId).Str("participant_id", participant.Id).Msg("participant joined")
	return room, participant, nil
}

func (b *Broker) AddMessage(ctx context.Context, roomId, participantId string, content types.ContentList) (types.Message, error) {
	msg, err := b.store.AddMessage(ctx, roomId, participantId, content)
	if err != nil {
		return types.Message{}, err
	}

	participantType := types.ParticipantHuman
	if participantId == database.WaveAgentId {
		participantType = types.ParticipantAgent
	}
	b.stats.MessageStored(string(participantType))

	return msg, nil
}

func (b *Broker) GetMessages(ctx context.Context, roomId string) ([]types.Message, error) {
	return b.store.GetMessages(ctx, roomId)
}

func (b *Broker) Subscribe(roomId string, l database.Listener) func() {
	return b.store.Subscribe(roomId, l)
}

func (b *Broker) EmitEvent(roomId string, event types.RoomEvent) {
	b.store.EmitEvent(roomId, event)
}

// SetTyping announces that participantId is composing a message.
func (b *Broker) SetTyping(roomId, participantId string) {
	b.store.EmitEvent(roomId, types.NewRoomEvent(types.EventTyping, types.TypingData{ParticipantId: participantId}))
}

func (b *Broker) WaveAgent() types.Participant {
	return b.store.WaveAgent()
}

func (b *Broker) Ping(ctx context.Context) error {
	return b.store.Ping(ctx)
}

func (b *Broker) Close() error {
	return b.store.Close()
}

// IsNotFound reports whether err means the room or participant is absent.
func IsNotFound(err error) bool {
	return errors.Is(err, database.ErrRoomNotFound) || errors.Is(err, database.ErrParticipantNotFound)
}
