package server

import (
	"github.com/npezzotti/wave/internal/types"
	"github.com/rs/zerolog"
)

const roomEventBuffer = 256

// Room forwards the events of one room to the clients streaming it. The
// hub creates a Room for the first client and stops it after the last.
type Room struct {
	id          string
	log         zerolog.Logger
	clients     map[*Client]struct{}
	joinChan    chan *Client
	leaveChan   chan *Client
	eventChan   chan types.RoomEvent
	unsubscribe func()
	exit        chan struct{}
	done        chan struct{}
}

func newRoom(id string, logger zerolog.Logger) *Room {
	return &Room{
		id:        id,
		log:       logger.With().Str("room_id", id).Logger(),
		clients:   make(map[*Client]struct{}),
		joinChan:  make(chan *Client, 256),
		leaveChan: make(chan *Client, 256),
		eventChan: make(chan types.RoomEvent, roomEventBuffer),
		exit:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

func (r *Room) start() {
	r.log.Debug().Msg("starting room")
	defer close(r.done)

	for {
		select {
		case c := <-r.joinChan:
			r.clients[c] = struct{}{}
			close(c.joined)
		case c := <-r.leaveChan:
			delete(r.clients, c)
		case ev := <-r.eventChan:
			r.broadcast(ev)
		case <-r.exit:
			r.log.Debug().Msg("room exiting")
			return
		}
	}
}

// enqueue is registered as the room's broker listener. It never blocks
// the goroutine that emitted the event.
func (r *Room) enqueue(ev types.RoomEvent) {
	select {
	case r.eventChan <- ev:
	default:
		r.log.Warn().Str("event", string(ev.Type)).Msg("room event buffer full, dropping event")
	}
}

func (r *Room) broadcast(ev types.RoomEvent) {
	for c := range r.clients {
		c.queueEvent(ev)
	}
}
