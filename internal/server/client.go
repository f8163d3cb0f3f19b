package server

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/npezzotti/wave/internal/types"
	"github.com/rs/zerolog"
)

const clientSendBuffer = 256

// Sink writes frames to one subscriber connection.
type Sink interface {
	Send(v any) error
}

// pinger is implemented by sinks whose transport has its own keepalive.
type pinger interface {
	Ping() error
	PingInterval() time.Duration
}

// Client is one open stream of a room's events.
type Client struct {
	id       string
	roomId   string
	hub      *Hub
	log      zerolog.Logger
	send     chan types.RoomEvent
	joined   chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
}

func newClient(roomId string, h *Hub, logger zerolog.Logger) *Client {
	id := uuid.NewString()
	return &Client{
		id:     id,
		roomId: roomId,
		hub:    h,
		log:    logger.With().Str("room_id", roomId).Str("client_id", id).Logger(),
		send:   make(chan types.RoomEvent, clientSendBuffer),
		joined: make(chan struct{}),
		stop:   make(chan struct{}),
	}
}

func (c *Client) Id() string {
	return c.id
}

// Write streams the connected frame, every room event and periodic
// heartbeats to sink until ctx is done, the hub stops the client or the
// sink fails. The client is detached from its room on return.
func (c *Client) Write(ctx context.Context, sink Sink) {
	heartbeat := time.NewTicker(c.hub.heartbeat)
	defer func() {
		heartbeat.Stop()
		c.hub.deRegister(c)
		c.log.Debug().Msg("stream closed")
	}()

	var pingC <-chan time.Time
	p, canPing := sink.(pinger)
	if canPing {
		ping := time.NewTicker(p.PingInterval())
		defer ping.Stop()
		pingC = ping.C
	}

	if err := sink.Send(Connected(c.roomId)); err != nil {
		c.log.Debug().Err(err).Msg("write connected frame")
		return
	}

	for {
		select {
		case ev := <-c.send:
			if err := sink.Send(ev); err != nil {
				c.log.Debug().Err(err).Msg("write event")
				return
			}
		case <-heartbeat.C:
			if err := sink.Send(Heartbeat()); err != nil {
				c.log.Debug().Err(err).Msg("write heartbeat")
				return
			}
		case <-pingC:
			if err := p.Ping(); err != nil {
				c.log.Debug().Err(err).Msg("write ping")
				return
			}
		case <-c.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// queueEvent drops ev when the client is not keeping up.
func (c *Client) queueEvent(ev types.RoomEvent) bool {
	select {
	case c.send <- ev:
	default:
		c.log.Warn().Str("event", string(ev.Type)).Msg("client buffer full, dropping event")
		return false
	}

	return true
}

func (c *Client) stopClient() {
	c.stopOnce.Do(func() { close(c.stop) })
}
