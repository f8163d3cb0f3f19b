package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/lib/pq"
	"github.com/npezzotti/wave/internal/logging"
	"github.com/npezzotti/wave/internal/types"
	"github.com/rs/zerolog"
)

type scanner interface {
	Scan(dest ...any) error
}

// PgStore keeps rooms in PostgreSQL. Message inserts are observed through
// a per-room LISTEN/NOTIFY feed which is the only path by which message
// events reach local listeners.
type PgStore struct {
	conn      *sql.DB
	dsn       string
	log       zerolog.Logger
	pseudo    Pseudonymizer
	listeners *listenerRegistry
	agent     types.Participant

	feedsLock sync.Mutex
	feeds     map[string]*roomFeed
	closed    bool
	dialFeed  func(zerolog.Logger) feedListener
}

func NewPgStore(ctx context.Context, dsn string, pseudo Pseudonymizer, logger zerolog.Logger) (*PgStore, error) {
	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	return newPgStore(conn, dsn, pseudo, logger), nil
}

func newPgStore(conn *sql.DB, dsn string, pseudo Pseudonymizer, logger zerolog.Logger) *PgStore {
	s := &PgStore{
		conn:      conn,
		dsn:       dsn,
		log:       logging.WithComponent(logger, "pgstore"),
		pseudo:    pseudo,
		listeners: newListenerRegistry(),
		agent:     newWaveAgent(now()),
		feeds:     make(map[string]*roomFeed),
	}
	s.dialFeed = s.pqListener
	return s
}

func (s *PgStore) CreateRoom(ctx context.Context, name, creatorName, creatorExternalId string) (types.Room, types.Participant, error) {
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
	agent := newWaveAgent(createdAt)

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return types.Room{}, types.Participant{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, insertRoomQuery, roomId, name, creator.Id, createdAt); err != nil {
		return types.Room{}, types.Participant{}, fmt.Errorf("insert room: %w", err)
	}

	for _, p := range []types.Participant{creator, agent} {
		if err := insertParticipant(ctx, tx, roomId, p); err != nil {
			return types.Room{}, types.Participant{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return types.Room{}, types.Participant{}, fmt.Errorf("commit: %w", err)
	}

	return types.Room{
		Id:           roomId,
		Name:         name,
		CreatedBy:    creator.Id,
		Participants: []types.Participant{creator, agent},
		Messages:     []types.Message{},
		CreatedAt:    createdAt,
	}, creator, nil
}

// GetRoom reads the room document, its participants and its messages.
func (s *PgStore) GetRoom(ctx context.Context, roomId string) (types.Room, error) {
	room := types.Room{Id: roomId}

	var createdAt sql.NullTime
	err := s.conn.QueryRowContext(ctx, selectRoomQuery, roomId).Scan(&room.Name, &room.CreatedBy, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Room{}, ErrRoomNotFound
		}
		return types.Room{}, fmt.Errorf("select room: %w", err)
	}
	room.CreatedAt = timeOrNow(createdAt)

	room.Participants, err = s.listParticipants(ctx, roomId)
	if err != nil {
		return types.Room{}, err
	}

	room.Messages, err = s.listMessages(ctx, roomId)
	if err != nil {
		return types.Room{}, err
	}

	return room, nil
}

// JoinRoom adds a participant record per call. A pseudonymous participant
// that is already a member is returned without a new record or event.
func (s *PgStore) JoinRoom(ctx context.Context, roomId, name, externalId string) (types.Room, types.Participant, error) {
	participant := types.Participant{
		Id:       newParticipantId(s.pseudo, externalId),
		Type:     types.ParticipantHuman,
		Name:     name,
		JoinedAt: now(),
	}

	var exists bool
	if err := s.conn.QueryRowContext(ctx, roomExistsQuery, roomId).Scan(&exists); err != nil {
		return types.Room{}, types.Participant{}, fmt.Errorf("room exists: %w", err)
	}
	if !exists {
		return types.Room{}, types.Participant{}, ErrRoomNotFound
	}

	res, err := s.conn.ExecContext(ctx, insertParticipantQuery,
		roomId,
		participant.Id,
		participant.Type,
		participant.Name,
		nullString(participant.Avatar),
		participant.Id,
		participant.JoinedAt,
	)
	if err != nil {
		return types.Room{}, types.Participant{}, fmt.Errorf("insert participant: %w", err)
	}

	inserted := true
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		inserted = false
		participant, err = scanParticipant(s.conn.QueryRowContext(ctx, selectParticipantQuery, roomId, participant.Id))
		if err != nil {
			return types.Room{}, types.Participant{}, fmt.Errorf("select participant: %w", err)
		}
	}

	room, err := s.GetRoom(ctx, roomId)
	if err != nil {
		return types.Room{}, types.Participant{}, err
	}

	if inserted {
		s.listeners.emit(roomId, types.NewRoomEvent(types.EventParticipantJoined, participant))
	}

	return room, participant, nil
}

// AddMessage inserts the message while holding the room row lock, so
// writers to the same room are serialized and creation times never go
// backwards. The message event is delivered by the room feed.
func (s *PgStore) AddMessage(ctx context.Context, roomId, participantId string, content types.ContentList) (types.Message, error) {
	if len(content) == 0 {
		return types.Message{}, ErrEmptyContent
	}

	raw, err := json.Marshal(content)
	if err != nil {
		return types.Message{}, fmt.Errorf("marshal content: %w", err)
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return types.Message{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var locked string
	if err := tx.QueryRowContext(ctx, lockRoomQuery, roomId).Scan(&locked); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Message{}, ErrRoomNotFound
		}
		return types.Message{}, fmt.Errorf("lock room: %w", err)
	}

	var member bool
	if err := tx.QueryRowContext(ctx, participantExistsQuery, roomId, participantId).Scan(&member); err != nil {
		return types.Message{}, fmt.Errorf("participant exists: %w", err)
	}
	if !member {
		return types.Message{}, ErrParticipantNotFound
	}

	createdAt := now()
	var last sql.NullTime
	if err := tx.QueryRowContext(ctx, lastMessageTimeQuery, roomId).Scan(&last); err != nil {
		return types.Message{}, fmt.Errorf("last message time: %w", err)
	}
	if last.Valid && createdAt.Before(last.Time) {
		createdAt = last.Time.UTC()
	}

	msg := types.Message{
		Id:            newMessageId(),
		RoomId:        roomId,
		ParticipantId: participantId,
		Content:       append(types.ContentList(nil), content...),
		CreatedAt:     createdAt,
	}

	if _, err := tx.ExecContext(ctx, insertMessageQuery,
		msg.Id,
		roomId,
		participantId,
		string(content[0].Type),
		string(raw),
		createdAt,
	); err != nil {
		return types.Message{}, fmt.Errorf("insert message: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return types.Message{}, fmt.Errorf("commit: %w", err)
	}

	return msg, nil
}

func (s *PgStore) GetMessages(ctx context.Context, roomId string) ([]types.Message, error) {
	return s.listMessages(ctx, roomId)
}

// Subscribe registers l and makes sure the room's change feed is open.
// It does not wait for the feed to connect. The feed is closed when the
// last listener leaves.
func (s *PgStore) Subscribe(roomId string, l Listener) func() {
	_, remove := s.listeners.add(roomId, l)
	s.openFeed(roomId)

	return func() {
		if remove() {
			s.closeFeed(roomId)
		}
	}
}

func (s *PgStore) EmitEvent(roomId string, event types.RoomEvent) {
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().UnixMilli()
	}
	s.listeners.emit(roomId, event)
}

func (s *PgStore) WaveAgent() types.Participant {
	return s.agent
}

func (s *PgStore) Ping(ctx context.Context) error {
	return s.conn.PingContext(ctx)
}

func (s *PgStore) Close() error {
	s.feedsLock.Lock()
	s.closed = true
	for roomId, feed := range s.feeds {
		feed.close()
		delete(s.feeds, roomId)
	}
	s.feedsLock.Unlock()

	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

func (s *PgStore) listParticipants(ctx context.Context, roomId string) ([]types.Participant, error) {
	rows, err := s.conn.QueryContext(ctx, selectParticipantsQuery, roomId)
	if err != nil {
		return nil, fmt.Errorf("select participants: %w", err)
	}
	defer rows.Close()

	participants := []types.Participant{}
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, err
		}
		participants = append(participants, p)
	}

	return participants, rows.Err()
}

func (s *PgStore) listMessages(ctx context.Context, roomId string) ([]types.Message, error) {
	rows, err := s.conn.QueryContext(ctx, selectMessagesQuery, roomId)
	if err != nil {
		return nil, fmt.Errorf("select messages: %w", err)
	}
	defer rows.Close()

	messages := []types.Message{}
	for rows.Next() {
		msg, err := scanMessage(rows, roomId)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}

	return messages, rows.Err()
}

func (s *PgStore) getMessage(ctx context.Context, roomId, messageId string) (types.Message, error) {
	return scanMessage(s.conn.QueryRowContext(ctx, selectMessageQuery, roomId, messageId), roomId)
}

func insertParticipant(ctx context.Context, tx *sql.Tx, roomId string, p types.Participant) error {
	_, err := tx.ExecContext(ctx, insertParticipantQuery,
		roomId,
		p.Id,
		p.Type,
		p.Name,
		nullString(p.Avatar),
		p.Id,
		p.JoinedAt,
	)
	if err != nil {
		return fmt.Errorf("insert participant %q: %w", p.Id, err)
	}
	return nil
}

func scanParticipant(row scanner) (types.Participant, error) {
	var (
		p        types.Participant
		avatar   sql.NullString
		joinedAt sql.NullTime
	)
	if err := row.Scan(&p.Id, &p.Type, &p.Name, &avatar, &joinedAt); err != nil {
		return types.Participant{}, fmt.Errorf("scan participant: %w", err)
	}
	p.Avatar = avatar.String
	p.JoinedAt = timeOrNow(joinedAt)
	return p, nil
}

func scanMessage(row scanner, roomId string) (types.Message, error) {
	var (
		msg       types.Message
		raw       []byte
		createdAt sql.NullTime
	)
	if err := row.Scan(&msg.Id, &msg.ParticipantId, &raw, &createdAt); err != nil {
		return types.Message{}, fmt.Errorf("scan message: %w", err)
	}
	if err := json.Unmarshal(raw, &msg.Content); err != nil {
		return types.Message{}, fmt.Errorf("decode content of %q: %w", msg.Id, err)
	}
	msg.RoomId = roomId
	msg.CreatedAt = timeOrNow(createdAt)
	return msg, nil
}

// timeOrNow tolerates partially written rows that lack a timestamp.
func timeOrNow(t sql.NullTime) time.Time {
	if !t.Valid {
		return now()
	}
	return t.Time.UTC()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
